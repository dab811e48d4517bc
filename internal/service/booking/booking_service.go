package booking

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/Domenick1991/esteticcore/internal/domain"
	"github.com/Domenick1991/esteticcore/internal/kafka"
	"github.com/Domenick1991/esteticcore/internal/repository"
	apperrors "github.com/Domenick1991/esteticcore/pkg/errors"
	"github.com/Domenick1991/esteticcore/pkg/logger"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultLockTTL   = 15 * time.Minute
	defaultSlotRange = 30 * 24 * time.Hour
)

type BookingUseCase interface {
	ClaimSlot(ctx context.Context, slotID int64, customer domain.Customer) (*domain.Booking, error)
	GetBooking(ctx context.Context, id int64) (*domain.Booking, error)
	UpdateBookingStatus(ctx context.Context, id int64, status domain.BookingStatus) (*domain.Booking, error)
	ExpirePendingBookings(ctx context.Context) ([]domain.Booking, error)
	ListAvailableSlots(ctx context.Context, serviceID int64, from, to time.Time) ([]domain.AvailabilitySlot, error)
	ListServices(ctx context.Context) ([]domain.Service, error)
}

type Cache interface {
	AcquireSlotLock(ctx context.Context, slotID int64, ttl time.Duration) (bool, error)
	ReleaseSlotLock(ctx context.Context, slotID int64) error
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value any) error
}

type CalendarNotifier interface {
	Notify(b domain.Booking)
}

type BookingService struct {
	store              repository.Store
	cache              Cache
	producer           Producer
	calendar           CalendarNotifier
	bookingTopic       string
	notificationsTopic string
	holdTTL            time.Duration
	loc                *time.Location
	now                func() time.Time
	log                *logger.Logger
	validate           *validator.Validate
	tracer             trace.Tracer
}

type BookingServiceOption func(*BookingService)

func WithCache(c Cache) BookingServiceOption {
	return func(s *BookingService) { s.cache = c }
}

func WithProducer(p Producer, bookingTopic string) BookingServiceOption {
	return func(s *BookingService) {
		s.producer = p
		s.bookingTopic = bookingTopic
	}
}

func WithNotificationsTopic(topic string) BookingServiceOption {
	return func(s *BookingService) { s.notificationsTopic = topic }
}

func WithCalendar(c CalendarNotifier) BookingServiceOption {
	return func(s *BookingService) { s.calendar = c }
}

// WithHoldTTL sets how long a pending booking keeps its slot. Zero disables
// expiry.
func WithHoldTTL(d time.Duration) BookingServiceOption {
	return func(s *BookingService) { s.holdTTL = d }
}

func WithLocation(loc *time.Location) BookingServiceOption {
	return func(s *BookingService) { s.loc = loc }
}

func WithClock(now func() time.Time) BookingServiceOption {
	return func(s *BookingService) { s.now = now }
}

func WithLogger(l *logger.Logger) BookingServiceOption {
	return func(s *BookingService) { s.log = l }
}

func NewBookingService(store repository.Store, opts ...BookingServiceOption) *BookingService {
	s := &BookingService{
		store:    store,
		loc:      time.UTC,
		now:      time.Now,
		log:      logger.Nop(),
		validate: validator.New(),
		tracer:   otel.Tracer("esteticcore/service/booking"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "booking_service")
	return s
}

// ClaimSlot assigns the slot to a new pending booking. The slot row stays
// locked from the availability check until the booking row is inserted, so
// of two concurrent claimers the second always sees the first one's booking.
func (s *BookingService) ClaimSlot(ctx context.Context, slotID int64, customer domain.Customer) (*domain.Booking, error) {
	ctx, span := s.tracer.Start(ctx, "booking.ClaimSlot", trace.WithAttributes(attribute.Int64("slot.id", slotID)))
	defer span.End()

	if slotID <= 0 {
		return nil, apperrors.Validation("slot id must be positive", nil)
	}
	if err := s.validate.Struct(customer); err != nil {
		return nil, apperrors.Validation("invalid customer data", err)
	}

	locked, err := s.acquireAdvisoryLock(ctx, slotID)
	if err != nil {
		return nil, err
	}

	now := s.now().In(s.loc)
	var booking *domain.Booking
	err = s.store.InTx(ctx, func(r repository.Repos) error {
		slot, err := r.Slots.GetForUpdate(ctx, slotID)
		if err != nil {
			return err
		}
		if !slot.IsActive {
			return domain.ErrSlotNotFound
		}
		if slot.StartedBy(now) {
			return domain.ErrSlotExpired
		}
		taken, err := r.Bookings.HasActiveForSlot(ctx, slotID)
		if err != nil {
			return err
		}
		if taken {
			return domain.ErrAlreadyBooked
		}
		service, err := r.Slots.GetService(ctx, slot.ServiceID)
		if err != nil {
			return err
		}

		b := &domain.Booking{
			SlotID:        slotID,
			CustomerName:  customer.Name,
			CustomerEmail: customer.Email,
			CustomerPhone: customer.Phone,
			Notes:         customer.Notes,
			Status:        domain.BookingStatusPending,
		}
		if err := r.Bookings.Create(ctx, b); err != nil {
			return err
		}
		b.Slot, b.Service = slot, service
		booking = b
		return nil
	})
	if err != nil {
		if locked {
			s.releaseAdvisoryLock(ctx, slotID)
		}
		span.RecordError(err)
		return nil, toAppError(err)
	}

	s.log.InfoContext(ctx, "slot claimed", "slot_id", slotID, "booking_id", booking.ID)
	s.publish(ctx, kafka.EventBookingCreated, booking)
	return booking, nil
}

// acquireAdvisoryLock rejects obvious duplicates before the database is
// touched. Redis being down is not an error; the row lock still decides.
func (s *BookingService) acquireAdvisoryLock(ctx context.Context, slotID int64) (bool, error) {
	if s.cache == nil {
		return false, nil
	}
	ok, err := s.cache.AcquireSlotLock(ctx, slotID, s.lockTTL())
	if err != nil {
		s.log.WarnContext(ctx, "slot lock unavailable", "slot_id", slotID, "error", err)
		return false, nil
	}
	if ok {
		return true, nil
	}

	// Someone holds the lock. Report the same error the database path would,
	// and fall through to it when the holder left no booking behind.
	repos := s.store.Repos()
	slot, err := repos.Slots.Get(ctx, slotID)
	switch {
	case err != nil:
		return false, toAppError(err)
	case !slot.IsActive:
		return false, toAppError(domain.ErrSlotNotFound)
	case slot.StartedBy(s.now()):
		return false, toAppError(domain.ErrSlotExpired)
	}
	taken, err := repos.Bookings.HasActiveForSlot(ctx, slotID)
	if err != nil {
		return false, toAppError(err)
	}
	if taken {
		return false, toAppError(domain.ErrAlreadyBooked)
	}
	return false, nil
}

func (s *BookingService) releaseAdvisoryLock(ctx context.Context, slotID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.ReleaseSlotLock(ctx, slotID); err != nil {
		s.log.WarnContext(ctx, "slot lock release failed", "slot_id", slotID, "error", err)
	}
}

func (s *BookingService) lockTTL() time.Duration {
	if s.holdTTL > 0 {
		return s.holdTTL
	}
	return defaultLockTTL
}

func (s *BookingService) GetBooking(ctx context.Context, id int64) (*domain.Booking, error) {
	repos := s.store.Repos()
	b, err := repos.Bookings.Get(ctx, id)
	if err != nil {
		return nil, toAppError(err)
	}
	if err := enrich(ctx, repos, b); err != nil {
		return nil, toAppError(err)
	}
	return b, nil
}

// UpdateBookingStatus moves a booking forward. Setting the current status
// again is a no-op; any other move outside the transition table is a
// conflict.
func (s *BookingService) UpdateBookingStatus(ctx context.Context, id int64, status domain.BookingStatus) (*domain.Booking, error) {
	if !status.Valid() {
		return nil, apperrors.Validation("unknown booking status "+strconv.Quote(string(status)), nil)
	}

	var (
		updated *domain.Booking
		changed bool
	)
	err := s.store.InTx(ctx, func(r repository.Repos) error {
		current, err := r.Bookings.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Status == status {
			updated = current
			return enrich(ctx, r, updated)
		}
		if !current.Status.CanTransitionTo(status) {
			return domain.ErrInvalidTransition
		}
		updated, err = r.Bookings.UpdateStatus(ctx, id, status)
		if err != nil {
			return err
		}
		changed = true
		return enrich(ctx, r, updated)
	})
	if err != nil {
		return nil, toAppError(err)
	}
	if !changed {
		return updated, nil
	}

	switch status {
	case domain.BookingStatusCancelled:
		s.releaseAdvisoryLock(ctx, updated.SlotID)
		s.publish(ctx, kafka.EventBookingCancelled, updated)
	case domain.BookingStatusPaid:
		s.publish(ctx, kafka.EventBookingPaid, updated)
		if s.calendar != nil {
			s.calendar.Notify(*updated)
		}
	default:
		s.publish(ctx, kafka.EventBookingStatus, updated)
	}
	return updated, nil
}

// ExpirePendingBookings cancels bookings that stayed pending past the hold
// TTL so their slots can be claimed again.
func (s *BookingService) ExpirePendingBookings(ctx context.Context) ([]domain.Booking, error) {
	if s.holdTTL <= 0 {
		return nil, nil
	}
	deadline := s.now().Add(-s.holdTTL)

	var expired []domain.Booking
	err := s.store.InTx(ctx, func(r repository.Repos) error {
		var err error
		expired, err = r.Bookings.ExpirePendingBefore(ctx, deadline)
		return err
	})
	if err != nil {
		return nil, toAppError(err)
	}

	for i := range expired {
		b := &expired[i]
		s.releaseAdvisoryLock(ctx, b.SlotID)
		s.publish(ctx, kafka.EventBookingCancelled, b)
	}
	if len(expired) > 0 {
		s.log.InfoContext(ctx, "expired pending bookings", "count", len(expired))
	}
	return expired, nil
}

// ListAvailableSlots returns active, future, unbooked slots of a service
// ordered by start. A zero from means now; a zero to means 30 days after from.
func (s *BookingService) ListAvailableSlots(ctx context.Context, serviceID int64, from, to time.Time) ([]domain.AvailabilitySlot, error) {
	now := s.now()
	if from.IsZero() || from.Before(now) {
		from = now
	}
	if to.IsZero() {
		to = from.Add(defaultSlotRange)
	}
	if !to.After(from) {
		return nil, apperrors.Validation("range end must be after its start", nil)
	}

	repos := s.store.Repos()
	if _, err := repos.Slots.GetService(ctx, serviceID); err != nil {
		if errors.Is(err, domain.ErrSlotNotFound) {
			return nil, apperrors.NotFound("service", err)
		}
		return nil, toAppError(err)
	}
	slots, err := repos.Slots.ListAvailable(ctx, serviceID, from, to)
	if err != nil {
		return nil, toAppError(err)
	}
	return slots, nil
}

func (s *BookingService) ListServices(ctx context.Context) ([]domain.Service, error) {
	services, err := s.store.Repos().Slots.ListServices(ctx)
	if err != nil {
		return nil, toAppError(err)
	}
	return services, nil
}

func enrich(ctx context.Context, r repository.Repos, b *domain.Booking) error {
	slot, err := r.Slots.Get(ctx, b.SlotID)
	if err != nil {
		return err
	}
	service, err := r.Slots.GetService(ctx, slot.ServiceID)
	if err != nil {
		return err
	}
	b.Slot, b.Service = slot, service
	return nil
}

func (s *BookingService) publish(ctx context.Context, eventType string, b *domain.Booking) {
	if s.producer == nil {
		return
	}
	event := kafka.BookingEvent{
		Type:          eventType,
		BookingID:     b.ID,
		SlotID:        b.SlotID,
		CustomerName:  b.CustomerName,
		CustomerEmail: b.CustomerEmail,
		Status:        string(b.Status),
		OccurredAt:    s.now(),
	}
	if b.Slot != nil {
		event.StartsAt, event.EndsAt = b.Slot.StartsAt, b.Slot.EndsAt
	}
	if b.Service != nil {
		event.ServiceID, event.ServiceName = b.Service.ID, b.Service.Name
	}

	key := strconv.FormatInt(b.ID, 10)
	if s.bookingTopic != "" {
		if err := s.producer.Publish(ctx, s.bookingTopic, key, event); err != nil {
			s.log.WarnContext(ctx, "failed to publish booking event", "type", eventType, "booking_id", b.ID, "error", err)
		}
	}
	if s.notificationsTopic != "" {
		if err := s.producer.Publish(ctx, s.notificationsTopic, key, notification(eventType, b, s.loc)); err != nil {
			s.log.WarnContext(ctx, "failed to publish notification", "type", eventType, "booking_id", b.ID, "error", err)
		}
	}
}

func notification(eventType string, b *domain.Booking, loc *time.Location) kafka.Notification {
	subjects := map[string]string{
		kafka.EventBookingCreated:   "Recibimos tu reserva",
		kafka.EventBookingPaid:      "Tu reserva está confirmada",
		kafka.EventBookingCancelled: "Tu reserva fue cancelada",
		kafka.EventBookingStatus:    "Tu reserva fue actualizada",
	}
	fields := map[string]string{
		"reserva": strconv.FormatInt(b.ID, 10),
		"estado":  string(b.Status),
	}
	if b.Service != nil {
		fields["servicio"] = b.Service.Name
	}
	if b.Slot != nil {
		fields["fecha"] = b.Slot.StartsAt.In(loc).Format("02-01-2006 15:04")
	}
	return kafka.Notification{
		Type:       eventType,
		Email:      b.CustomerEmail,
		Name:       b.CustomerName,
		Subject:    subjects[eventType],
		Fields:     fields,
		OccurredAt: time.Now(),
	}
}

func toAppError(err error) error {
	if apperrors.IsAppError(err) {
		return err
	}
	switch {
	case errors.Is(err, domain.ErrSlotNotFound):
		return apperrors.NotFound("slot", err)
	case errors.Is(err, domain.ErrBookingNotFound):
		return apperrors.NotFound("booking", err)
	case errors.Is(err, domain.ErrSlotExpired):
		return apperrors.Validation(domain.ErrSlotExpired.Error(), err).
			WithDetails(map[string]any{"reason": "slot_expired"})
	case errors.Is(err, domain.ErrAlreadyBooked):
		return apperrors.Conflict(domain.ErrAlreadyBooked.Error(), err).
			WithDetails(map[string]any{"reason": "already_booked"})
	case errors.Is(err, domain.ErrInvalidTransition):
		return apperrors.Conflict(domain.ErrInvalidTransition.Error(), err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return apperrors.Internal("request cancelled", err)
	}
	return apperrors.Internal("booking operation failed", err)
}

var _ BookingUseCase = (*BookingService)(nil)
