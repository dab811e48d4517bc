package payments

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Domenick1991/esteticcore/internal/domain"
	"github.com/Domenick1991/esteticcore/internal/gateway"
	"github.com/Domenick1991/esteticcore/internal/kafka"
	"github.com/Domenick1991/esteticcore/internal/repository"
	apperrors "github.com/Domenick1991/esteticcore/pkg/errors"
	"github.com/Domenick1991/esteticcore/pkg/logger"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultGatewayTimeout        = 15 * time.Second
	paymentLockTTL               = time.Minute
	reconciliationPublishRetries = 3
)

type PaymentUseCase interface {
	CreatePayment(ctx context.Context, in CreatePaymentInput) (*Checkout, error)
	ConfirmPayment(ctx context.Context, token string) (*Confirmation, error)
	AbortPayment(ctx context.Context, in AbortInput) (*domain.PaymentIntent, error)
	GetPayment(ctx context.Context, id string) (*domain.PaymentIntent, error)
	ReconcileStale(ctx context.Context, olderThan time.Duration, limit int) (ReconcileReport, error)
}

// CreatePaymentInput names what is being paid. A nil Reference with a
// positive Amount is a donation.
type CreatePaymentInput struct {
	Reference   domain.Reference
	Amount      int64  `validate:"gte=0"`
	Description string `validate:"max=255"`
	DonorName   string `validate:"max=120"`
	DonorEmail  string `validate:"omitempty,email"`
}

type Checkout struct {
	IntentID    string
	BuyOrder    string
	Token       string
	Amount      int64
	Currency    string
	RedirectURL string
}

type Confirmation struct {
	OK       bool
	BuyOrder string
	Status   domain.PaymentStatus
	Intent   *domain.PaymentIntent
}

// AbortInput carries what the gateway sends when the payer leaves: the
// session token, or only the buy order when the session timed out.
type AbortInput struct {
	Token    string
	BuyOrder string
}

type Locker interface {
	AcquirePaymentLock(ctx context.Context, token string, ttl time.Duration) (bool, error)
	ReleasePaymentLock(ctx context.Context, token string) error
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value any) error
	PublishWithRetry(ctx context.Context, topic, key string, value any, maxRetries int) error
}

type CalendarNotifier interface {
	Notify(b domain.Booking)
}

// StockObserver is told when paid orders changed product stock.
type StockObserver interface {
	Invalidate(ctx context.Context)
}

type PaymentService struct {
	store              repository.Store
	gw                 gateway.Gateway
	locker             Locker
	producer           Producer
	calendar           CalendarNotifier
	stock              StockObserver
	paymentTopic       string
	notificationsTopic string
	returnURL          string
	currency           string
	gatewayTimeout     time.Duration
	now                func() time.Time
	log                *logger.Logger
	validate           *validator.Validate
	tracer             trace.Tracer
}

type PaymentServiceOption func(*PaymentService)

func WithLocker(l Locker) PaymentServiceOption {
	return func(s *PaymentService) { s.locker = l }
}

func WithProducer(p Producer, paymentTopic string) PaymentServiceOption {
	return func(s *PaymentService) {
		s.producer = p
		s.paymentTopic = paymentTopic
	}
}

func WithNotificationsTopic(topic string) PaymentServiceOption {
	return func(s *PaymentService) { s.notificationsTopic = topic }
}

func WithCalendar(c CalendarNotifier) PaymentServiceOption {
	return func(s *PaymentService) { s.calendar = c }
}

func WithStockObserver(o StockObserver) PaymentServiceOption {
	return func(s *PaymentService) { s.stock = o }
}

func WithReturnURL(url string) PaymentServiceOption {
	return func(s *PaymentService) { s.returnURL = url }
}

func WithCurrency(currency string) PaymentServiceOption {
	return func(s *PaymentService) { s.currency = currency }
}

func WithGatewayTimeout(d time.Duration) PaymentServiceOption {
	return func(s *PaymentService) { s.gatewayTimeout = d }
}

func WithClock(now func() time.Time) PaymentServiceOption {
	return func(s *PaymentService) { s.now = now }
}

func WithLogger(l *logger.Logger) PaymentServiceOption {
	return func(s *PaymentService) { s.log = l }
}

func NewPaymentService(store repository.Store, gw gateway.Gateway, opts ...PaymentServiceOption) *PaymentService {
	s := &PaymentService{
		store:          store,
		gw:             gw,
		currency:       domain.DefaultCurrency,
		gatewayTimeout: defaultGatewayTimeout,
		now:            time.Now,
		log:            logger.Nop(),
		validate:       validator.New(),
		tracer:         otel.Tracer("esteticcore/service/payments"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "payment_service", "provider", gw.Name())
	return s
}

// CreatePayment opens a gateway session for the referenced object and stores
// a PENDING intent keyed by its buy order. A retry of an unfinished checkout
// reuses the intent row with the new token; earlier tokens stay on record as
// attempts.
func (s *PaymentService) CreatePayment(ctx context.Context, in CreatePaymentInput) (*Checkout, error) {
	ctx, span := s.tracer.Start(ctx, "payments.CreatePayment")
	defer span.End()

	if err := s.validate.Struct(in); err != nil {
		return nil, apperrors.Validation("invalid payment request", err)
	}
	if in.Reference == nil && in.Amount <= 0 {
		return nil, apperrors.Validation("either a reference or a positive amount is required", nil)
	}

	ref, amount, description, err := s.resolve(ctx, in)
	if err != nil {
		span.RecordError(err)
		return nil, toAppError(err)
	}
	buyOrder := ref.BuyOrder()
	span.SetAttributes(attribute.String("payment.buy_order", buyOrder), attribute.Int64("payment.amount", amount))

	intentID := uuid.NewString()
	existing, err := s.store.Repos().Payments.GetByBuyOrder(ctx, buyOrder)
	switch {
	case err == nil:
		if err := checkReopenable(existing); err != nil {
			return nil, toAppError(err)
		}
		intentID = existing.ID
	case !errors.Is(err, domain.ErrPaymentNotFound):
		return nil, toAppError(err)
	}

	sessionID := uuid.NewString()
	gctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	session, err := s.gw.OpenSession(gctx, gateway.SessionRequest{
		BuyOrder:  buyOrder,
		SessionID: sessionID,
		Amount:    amount,
		ReturnURL: s.returnURL,
	})
	cancel()
	if err != nil {
		span.RecordError(err)
		s.log.WarnContext(ctx, "gateway session failed", "buy_order", buyOrder, "error", err)
		return nil, apperrors.Gateway("payment gateway unavailable", err)
	}

	intent := &domain.PaymentIntent{
		ID:          intentID,
		Amount:      amount,
		Currency:    s.currency,
		Status:      domain.PaymentStatusPending,
		Description: description,
		Reference:   ref,
		Provider:    s.gw.Name(),
		BuyOrder:    buyOrder,
		SessionID:   sessionID,
		Token:       session.Token,
		ReturnURL:   s.returnURL,
	}
	err = s.store.InTx(ctx, func(r repository.Repos) error {
		current, err := r.Payments.GetByBuyOrderForUpdate(ctx, buyOrder)
		switch {
		case err == nil:
			if err := checkReopenable(current); err != nil {
				return err
			}
			intent.ID = current.ID
		case !errors.Is(err, domain.ErrPaymentNotFound):
			return err
		}
		if err := r.Payments.Upsert(ctx, intent); err != nil {
			return err
		}
		return r.Payments.SaveAttempt(ctx, &domain.PaymentAttempt{
			Token:    session.Token,
			IntentID: intent.ID,
			BuyOrder: buyOrder,
			Status:   domain.PaymentStatusPending,
		})
	})
	if err != nil {
		span.RecordError(err)
		return nil, toAppError(err)
	}

	s.log.InfoContext(ctx, "payment created", "intent_id", intent.ID, "buy_order", buyOrder, "amount", amount)
	s.publish(ctx, kafka.EventPaymentCreated, intent)
	return &Checkout{
		IntentID:    intent.ID,
		BuyOrder:    buyOrder,
		Token:       session.Token,
		Amount:      amount,
		Currency:    intent.Currency,
		RedirectURL: session.RedirectURL(),
	}, nil
}

// resolve works out what is charged. Donations without a reference are
// created here so the buy order can carry their id.
func (s *PaymentService) resolve(ctx context.Context, in CreatePaymentInput) (domain.Reference, int64, string, error) {
	repos := s.store.Repos()
	switch ref := in.Reference.(type) {
	case domain.OrderRef:
		o, err := repos.Orders.Get(ctx, ref.OrderID)
		if err != nil {
			return nil, 0, "", err
		}
		if o.Finalized() {
			return nil, 0, "", domain.ErrAlreadyPaid
		}
		if len(o.Items) == 0 || o.TotalAmount <= 0 {
			return nil, 0, "", domain.ErrEmptyOrder
		}
		return ref, o.TotalAmount, describe(in.Description, "Orden #%d", ref.OrderID), nil

	case domain.BookingRef:
		b, err := repos.Bookings.Get(ctx, ref.BookingID)
		if err != nil {
			return nil, 0, "", err
		}
		switch b.Status {
		case domain.BookingStatusPending:
		case domain.BookingStatusPaid, domain.BookingStatusFulfilled:
			return nil, 0, "", domain.ErrAlreadyPaid
		default:
			return nil, 0, "", domain.ErrInvalidTransition
		}
		slot, err := repos.Slots.Get(ctx, b.SlotID)
		if err != nil {
			return nil, 0, "", err
		}
		svc, err := repos.Slots.GetService(ctx, slot.ServiceID)
		if err != nil {
			return nil, 0, "", err
		}
		return ref, svc.Price, describe(in.Description, "Reserva #%d", ref.BookingID), nil

	case domain.DonationRef:
		dn, err := repos.Donations.Get(ctx, ref.DonationID)
		if err != nil {
			return nil, 0, "", err
		}
		if dn.Status == domain.DonationStatusPaid {
			return nil, 0, "", domain.ErrAlreadyPaid
		}
		return ref, dn.Amount, describe(in.Description, "Donación #%d", ref.DonationID), nil

	case nil:
		dn := &domain.Donation{DonorName: in.DonorName, DonorEmail: in.DonorEmail, Amount: in.Amount}
		if err := s.store.InTx(ctx, func(r repository.Repos) error {
			return r.Donations.Create(ctx, dn)
		}); err != nil {
			return nil, 0, "", err
		}
		return domain.DonationRef{DonationID: dn.ID}, dn.Amount, describe(in.Description, "Donación #%d", dn.ID), nil
	}
	return nil, 0, "", domain.ErrInvalidReference
}

func checkReopenable(p *domain.PaymentIntent) error {
	if p.Reopenable() {
		return nil
	}
	if p.NeedsReconciliation() {
		return apperrors.Conflict("payment awaits manual reconciliation", domain.ErrAlreadyPaid).
			WithDetails(map[string]any{"reason": "reconciliation_required", "buy_order": p.BuyOrder})
	}
	return domain.ErrAlreadyPaid
}

func describe(given, format string, id int64) string {
	if given != "" {
		return given
	}
	return fmt.Sprintf(format, id)
}

// AbortPayment records that the payer left the gateway. Terminal intents are
// returned unchanged. Aborting a superseded session closes only its attempt.
func (s *PaymentService) AbortPayment(ctx context.Context, in AbortInput) (*domain.PaymentIntent, error) {
	ctx, span := s.tracer.Start(ctx, "payments.AbortPayment")
	defer span.End()

	var (
		intent *domain.PaymentIntent
		err    error
	)
	switch {
	case in.Token != "":
		intent, _, err = s.lookup(ctx, in.Token)
	case in.BuyOrder != "":
		intent, err = s.store.Repos().Payments.GetByBuyOrder(ctx, in.BuyOrder)
	default:
		return nil, apperrors.Validation("token or buy order is required", nil)
	}
	if err != nil {
		return nil, toAppError(err)
	}

	reason := "payer cancelled at the gateway"
	if in.Token == "" {
		reason = "gateway session timed out"
	}
	updated, changed, err := s.abort(ctx, intent.BuyOrder, in.Token, reason)
	if err != nil {
		span.RecordError(err)
		return nil, toAppError(err)
	}
	if changed {
		s.log.InfoContext(ctx, "payment aborted", "intent_id", updated.ID, "buy_order", updated.BuyOrder)
		s.publish(ctx, kafka.EventPaymentAborted, updated)
	}
	return updated, nil
}

// abort moves the intent to ABORTED together with the attempt of its current
// token. An empty token means the current one.
func (s *PaymentService) abort(ctx context.Context, buyOrder, token, reason string) (*domain.PaymentIntent, bool, error) {
	var (
		intent  *domain.PaymentIntent
		changed bool
	)
	err := s.store.InTx(ctx, func(r repository.Repos) error {
		current, err := r.Payments.GetByBuyOrderForUpdate(ctx, buyOrder)
		if err != nil {
			return err
		}
		intent = current
		if token == "" {
			token = current.Token
		}
		if current.Status.Terminal() && token == current.Token {
			return nil
		}
		if token != "" {
			attempt, err := attemptFor(ctx, r, current, token)
			if err != nil {
				return err
			}
			if !attempt.Status.Terminal() {
				attempt.Status = domain.PaymentStatusAborted
				attempt.FailureReason = reason
				if err := r.Payments.SaveAttempt(ctx, attempt); err != nil {
					return err
				}
			}
		}
		if token != current.Token {
			return nil
		}
		current.Status = domain.PaymentStatusAborted
		current.FailureReason = reason
		changed = true
		return r.Payments.Upsert(ctx, current)
	})
	return intent, changed, err
}

func (s *PaymentService) GetPayment(ctx context.Context, id string) (*domain.PaymentIntent, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.Validation("payment id must be a uuid", err)
	}
	intent, err := s.store.Repos().Payments.Get(ctx, id)
	if err != nil {
		return nil, toAppError(err)
	}
	return intent, nil
}

func (s *PaymentService) publish(ctx context.Context, eventType string, p *domain.PaymentIntent) {
	if s.producer == nil || s.paymentTopic == "" {
		return
	}
	if err := s.producer.Publish(ctx, s.paymentTopic, p.BuyOrder, s.event(eventType, p)); err != nil {
		s.log.WarnContext(ctx, "failed to publish payment event", "type", eventType, "buy_order", p.BuyOrder, "error", err)
	}
}

// publishReconciliation is the one payment event retried before giving up.
func (s *PaymentService) publishReconciliation(ctx context.Context, p *domain.PaymentIntent) {
	if s.producer == nil || s.paymentTopic == "" {
		return
	}
	event := s.event(kafka.EventPaymentReconciliationRequired, p)
	if err := s.producer.PublishWithRetry(ctx, s.paymentTopic, p.BuyOrder, event, reconciliationPublishRetries); err != nil {
		s.log.ErrorContext(ctx, "failed to publish reconciliation event", "buy_order", p.BuyOrder, "error", err)
	}
}

func (s *PaymentService) event(eventType string, p *domain.PaymentIntent) kafka.PaymentEvent {
	event := kafka.PaymentEvent{
		Type:              eventType,
		IntentID:          p.ID,
		BuyOrder:          p.BuyOrder,
		Amount:            p.Amount,
		Currency:          p.Currency,
		Status:            string(p.Status),
		Token:             p.Token,
		AuthorizationCode: p.AuthorizationCode,
		FailureReason:     p.FailureReason,
		OccurredAt:        s.now(),
	}
	if p.Reference != nil {
		event.Reference = p.Reference.String()
	}
	return event
}

// notify sends the payer a receipt for a settled payment.
func (s *PaymentService) notify(ctx context.Context, p *domain.PaymentIntent, f *finalized) {
	if s.producer == nil || s.notificationsTopic == "" || f == nil || f.email == "" {
		return
	}
	n := kafka.Notification{
		Type:    kafka.EventPaymentConfirmed,
		Email:   f.email,
		Name:    f.name,
		Subject: "Pago confirmado",
		Fields: map[string]string{
			"orden":        p.BuyOrder,
			"monto":        strconv.FormatInt(p.Amount, 10) + " " + p.Currency,
			"detalle":      p.Description,
			"autorizacion": p.AuthorizationCode,
			"tarjeta":      "**** " + p.CardLast4,
		},
		OccurredAt: s.now(),
	}
	if err := s.producer.Publish(ctx, s.notificationsTopic, p.BuyOrder, n); err != nil {
		s.log.WarnContext(ctx, "failed to publish notification", "buy_order", p.BuyOrder, "error", err)
	}
}

func toAppError(err error) error {
	if apperrors.IsAppError(err) {
		return err
	}
	switch {
	case errors.Is(err, domain.ErrPaymentNotFound):
		return apperrors.NotFound("payment", err)
	case errors.Is(err, domain.ErrOrderNotFound):
		return apperrors.NotFound("order", err)
	case errors.Is(err, domain.ErrBookingNotFound):
		return apperrors.NotFound("booking", err)
	case errors.Is(err, domain.ErrDonationNotFound):
		return apperrors.NotFound("donation", err)
	case errors.Is(err, domain.ErrSlotNotFound):
		return apperrors.NotFound("slot", err)
	case errors.Is(err, domain.ErrAlreadyPaid):
		return apperrors.Conflict(domain.ErrAlreadyPaid.Error(), err).
			WithDetails(map[string]any{"reason": "already_paid"})
	case errors.Is(err, domain.ErrInvalidTransition):
		return apperrors.Conflict("booking can no longer be paid", err)
	case errors.Is(err, domain.ErrEmptyOrder):
		return apperrors.Validation(domain.ErrEmptyOrder.Error(), err)
	case errors.Is(err, domain.ErrInvalidReference):
		return apperrors.Validation(domain.ErrInvalidReference.Error(), err)
	}
	return apperrors.Internal("payment operation failed", err)
}

var _ PaymentUseCase = (*PaymentService)(nil)
