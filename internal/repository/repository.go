package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/esteticcore/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, so every repository
// runs unchanged inside or outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type SlotRepository interface {
	Get(ctx context.Context, id int64) (*domain.AvailabilitySlot, error)
	// GetForUpdate row-locks the slot until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id int64) (*domain.AvailabilitySlot, error)
	GetService(ctx context.Context, id int64) (*domain.Service, error)
	// ListServices returns active services ordered by name.
	ListServices(ctx context.Context) ([]domain.Service, error)
	ListAvailable(ctx context.Context, serviceID int64, from, to time.Time) ([]domain.AvailabilitySlot, error)
}

type BookingRepository interface {
	Create(ctx context.Context, booking *domain.Booking) error
	Get(ctx context.Context, id int64) (*domain.Booking, error)
	GetForUpdate(ctx context.Context, id int64) (*domain.Booking, error)
	HasActiveForSlot(ctx context.Context, slotID int64) (bool, error)
	UpdateStatus(ctx context.Context, id int64, status domain.BookingStatus) (*domain.Booking, error)
	ExpirePendingBefore(ctx context.Context, deadline time.Time) ([]domain.Booking, error)
}

type ProductRepository interface {
	ListActive(ctx context.Context) ([]domain.Product, error)
	GetBySKU(ctx context.Context, sku string) (*domain.Product, error)
	// DecrementStock takes qty units only if that many are left.
	DecrementStock(ctx context.Context, productID int64, qty int) error
}

type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	Get(ctx context.Context, id int64) (*domain.Order, error)
	GetForUpdate(ctx context.Context, id int64) (*domain.Order, error)
	AddItem(ctx context.Context, item *domain.OrderItem) error
	UpdateItemQty(ctx context.Context, orderID, itemID int64, qty int) (*domain.OrderItem, error)
	DeleteItem(ctx context.Context, orderID, itemID int64) error
	// RecomputeTotal stores and returns the sum of the order's line totals.
	RecomputeTotal(ctx context.Context, orderID int64) (int64, error)
	MarkPaid(ctx context.Context, id int64, paidAt time.Time) error
}

type DonationRepository interface {
	Create(ctx context.Context, donation *domain.Donation) error
	Get(ctx context.Context, id int64) (*domain.Donation, error)
	GetForUpdate(ctx context.Context, id int64) (*domain.Donation, error)
	MarkPaid(ctx context.Context, id int64) error
	List(ctx context.Context, limit int) ([]domain.Donation, error)
}

type PaymentRepository interface {
	// Upsert inserts the intent or overwrites the row with the same buy order.
	Upsert(ctx context.Context, intent *domain.PaymentIntent) error
	Get(ctx context.Context, id string) (*domain.PaymentIntent, error)
	GetByToken(ctx context.Context, token string) (*domain.PaymentIntent, error)
	GetByBuyOrder(ctx context.Context, buyOrder string) (*domain.PaymentIntent, error)
	GetByBuyOrderForUpdate(ctx context.Context, buyOrder string) (*domain.PaymentIntent, error)
	ListPendingBefore(ctx context.Context, before time.Time, limit int) ([]domain.PaymentIntent, error)
	// SaveAttempt inserts the attempt or overwrites the row with the same token.
	SaveAttempt(ctx context.Context, attempt *domain.PaymentAttempt) error
	GetAttempt(ctx context.Context, token string) (*domain.PaymentAttempt, error)
}

type Repos struct {
	Slots     SlotRepository
	Bookings  BookingRepository
	Products  ProductRepository
	Orders    OrderRepository
	Donations DonationRepository
	Payments  PaymentRepository
}

// Store hands out repositories and runs units of work. Inside InTx callers
// must use only the Repos passed to fn.
type Store interface {
	Repos() Repos
	InTx(ctx context.Context, fn func(r Repos) error) error
}

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Repos() Repos {
	return newRepos(s.db)
}

func (s *PGStore) InTx(ctx context.Context, fn func(r Repos) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(newRepos(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func newRepos(db DBTX) Repos {
	return Repos{
		Slots:     NewSlotRepository(db),
		Bookings:  NewBookingRepository(db),
		Products:  NewProductRepository(db),
		Orders:    NewOrderRepository(db),
		Donations: NewDonationRepository(db),
		Payments:  NewPaymentRepository(db),
	}
}

const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// notFound maps pgx.ErrNoRows to the given domain sentinel.
func notFound(err, sentinel error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return sentinel
	}
	return err
}

var _ Store = (*PGStore)(nil)
