package orders

import (
	"context"
	"errors"
	"strings"

	"github.com/Domenick1991/esteticcore/internal/domain"
	"github.com/Domenick1991/esteticcore/internal/repository"
	apperrors "github.com/Domenick1991/esteticcore/pkg/errors"
	"github.com/Domenick1991/esteticcore/pkg/logger"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultDonationLimit = 50
	maxDonationLimit     = 500
)

type OrderUseCase interface {
	CreateOrder(ctx context.Context, checkout Checkout) (*domain.Order, error)
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
	AddItem(ctx context.Context, orderID int64, line Line) (*domain.Order, error)
	UpdateItemQty(ctx context.Context, orderID, itemID int64, qty int) (*domain.Order, error)
	RemoveItem(ctx context.Context, orderID, itemID int64) (*domain.Order, error)
	ListDonations(ctx context.Context, limit int) ([]domain.Donation, error)
}

type Line struct {
	SKU string `json:"sku" validate:"required"`
	Qty int    `json:"qty" validate:"gte=1"`
}

type Checkout struct {
	Items         []Line `json:"items" validate:"required,min=1,dive"`
	CustomerName  string `json:"customer_name" validate:"max=120"`
	CustomerEmail string `json:"customer_email" validate:"omitempty,email"`
}

type OrderService struct {
	store    repository.Store
	log      *logger.Logger
	validate *validator.Validate
	tracer   trace.Tracer
}

func NewOrderService(store repository.Store, log *logger.Logger) *OrderService {
	if log == nil {
		log = logger.Nop()
	}
	return &OrderService{
		store:    store,
		log:      log.With("component", "order_service"),
		validate: validator.New(),
		tracer:   otel.Tracer("esteticcore/service/orders"),
	}
}

// CreateOrder snapshots current prices into a new pending order. Stock is
// only checked here; it is consumed when the order is paid.
func (s *OrderService) CreateOrder(ctx context.Context, checkout Checkout) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "orders.CreateOrder", trace.WithAttributes(attribute.Int("order.lines", len(checkout.Items))))
	defer span.End()

	if err := s.validate.Struct(checkout); err != nil {
		return nil, apperrors.Validation("invalid checkout", err)
	}

	var orderID int64
	err := s.store.InTx(ctx, func(r repository.Repos) error {
		order := &domain.Order{
			CustomerName:  strings.TrimSpace(checkout.CustomerName),
			CustomerEmail: strings.TrimSpace(checkout.CustomerEmail),
			Status:        domain.OrderStatusPending,
		}
		if err := r.Orders.Create(ctx, order); err != nil {
			return err
		}
		for _, line := range checkout.Items {
			if err := addLine(ctx, r, order.ID, line); err != nil {
				return err
			}
		}
		if _, err := r.Orders.RecomputeTotal(ctx, order.ID); err != nil {
			return err
		}
		orderID = order.ID
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, toAppError(err)
	}

	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "order created", "order_id", order.ID, "total", order.TotalAmount)
	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	order, err := s.store.Repos().Orders.Get(ctx, id)
	if err != nil {
		return nil, toAppError(err)
	}
	return order, nil
}

func (s *OrderService) AddItem(ctx context.Context, orderID int64, line Line) (*domain.Order, error) {
	if err := s.validate.Struct(line); err != nil {
		return nil, apperrors.Validation("invalid order line", err)
	}
	return s.mutate(ctx, orderID, func(r repository.Repos, _ *domain.Order) error {
		return addLine(ctx, r, orderID, line)
	})
}

func (s *OrderService) UpdateItemQty(ctx context.Context, orderID, itemID int64, qty int) (*domain.Order, error) {
	if qty < 1 {
		return nil, apperrors.Validation("qty must be at least 1", nil)
	}
	return s.mutate(ctx, orderID, func(r repository.Repos, order *domain.Order) error {
		item := findItem(order, itemID)
		if item == nil {
			return domain.ErrOrderItemNotFound
		}
		product, err := r.Products.GetBySKU(ctx, item.SKU)
		if err != nil {
			return err
		}
		if !product.HasStock(qty) {
			return domain.ErrInsufficientStock
		}
		_, err = r.Orders.UpdateItemQty(ctx, orderID, itemID, qty)
		return err
	})
}

func (s *OrderService) RemoveItem(ctx context.Context, orderID, itemID int64) (*domain.Order, error) {
	return s.mutate(ctx, orderID, func(r repository.Repos, _ *domain.Order) error {
		return r.Orders.DeleteItem(ctx, orderID, itemID)
	})
}

// mutate locks a pending order, applies fn and recomputes the total before
// the transaction commits.
func (s *OrderService) mutate(ctx context.Context, orderID int64, fn func(r repository.Repos, order *domain.Order) error) (*domain.Order, error) {
	err := s.store.InTx(ctx, func(r repository.Repos) error {
		order, err := r.Orders.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != domain.OrderStatusPending {
			return domain.ErrOrderNotPending
		}
		if err := fn(r, order); err != nil {
			return err
		}
		_, err = r.Orders.RecomputeTotal(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, toAppError(err)
	}
	return s.GetOrder(ctx, orderID)
}

func (s *OrderService) ListDonations(ctx context.Context, limit int) ([]domain.Donation, error) {
	switch {
	case limit <= 0:
		limit = defaultDonationLimit
	case limit > maxDonationLimit:
		limit = maxDonationLimit
	}
	donations, err := s.store.Repos().Donations.List(ctx, limit)
	if err != nil {
		return nil, apperrors.Internal("failed to list donations", err)
	}
	return donations, nil
}

func addLine(ctx context.Context, r repository.Repos, orderID int64, line Line) error {
	product, err := r.Products.GetBySKU(ctx, strings.TrimSpace(line.SKU))
	if err != nil {
		return err
	}
	if !product.Active {
		return domain.ErrProductNotFound
	}
	if !product.HasStock(line.Qty) {
		return domain.ErrInsufficientStock
	}
	item := domain.NewOrderItem(orderID, *product, line.Qty)
	return r.Orders.AddItem(ctx, &item)
}

func findItem(order *domain.Order, itemID int64) *domain.OrderItem {
	for i := range order.Items {
		if order.Items[i].ID == itemID {
			return &order.Items[i]
		}
	}
	return nil
}

func toAppError(err error) error {
	if apperrors.IsAppError(err) {
		return err
	}
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		return apperrors.NotFound("order", err)
	case errors.Is(err, domain.ErrOrderItemNotFound):
		return apperrors.NotFound("order item", err)
	case errors.Is(err, domain.ErrProductNotFound):
		return apperrors.NotFound("product", err)
	case errors.Is(err, domain.ErrOrderNotPending):
		return apperrors.Conflict(domain.ErrOrderNotPending.Error(), err)
	case errors.Is(err, domain.ErrInsufficientStock):
		return apperrors.Conflict(domain.ErrInsufficientStock.Error(), err)
	}
	return apperrors.Internal("order operation failed", err)
}

var _ OrderUseCase = (*OrderService)(nil)
