package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Domenick1991/esteticcore/internal/domain"
	"github.com/Domenick1991/esteticcore/internal/kafka"
	"github.com/Domenick1991/esteticcore/internal/repository/memory"
	apperrors "github.com/Domenick1991/esteticcore/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockCache struct {
	mock.Mock
}

func (m *MockCache) AcquireSlotLock(ctx context.Context, slotID int64, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, slotID, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockCache) ReleaseSlotLock(ctx context.Context, slotID int64) error {
	args := m.Called(ctx, slotID)
	return args.Error(0)
}

type MockProducer struct {
	mock.Mock
}

func (m *MockProducer) Publish(ctx context.Context, topic, key string, value any) error {
	args := m.Called(ctx, topic, key, value)
	return args.Error(0)
}

type MockCalendar struct {
	mock.Mock
}

func (m *MockCalendar) Notify(b domain.Booking) {
	m.Called(b)
}

type fixture struct {
	store   *memory.Store
	service domain.Service
	future  domain.AvailabilitySlot
	past    domain.AvailabilitySlot
	now     time.Time
}

func newFixture() *fixture {
	now := time.Now()
	store := memory.NewStore()
	svc := store.AddService(domain.Service{Name: "Limpieza facial", Slug: "limpieza-facial", DurationMinutes: 60, Price: 25000, Active: true})
	return &fixture{
		store:   store,
		service: svc,
		future:  store.AddSlot(domain.AvailabilitySlot{ServiceID: svc.ID, StartsAt: now.Add(24 * time.Hour), EndsAt: now.Add(25 * time.Hour), IsActive: true}),
		past:    store.AddSlot(domain.AvailabilitySlot{ServiceID: svc.ID, StartsAt: now.Add(-time.Hour), EndsAt: now, IsActive: true}),
		now:     now,
	}
}

var ana = domain.Customer{Name: "Ana", Email: "ana@example.com", Phone: "+56911111111"}
var bea = domain.Customer{Name: "Bea", Email: "bea@example.com"}

// ============================ ClaimSlot ============================

func TestBookingService_ClaimSlot_Success(t *testing.T) {
	f := newFixture()
	producer := &MockProducer{}
	producer.On("Publish", mock.Anything, "bookings", mock.AnythingOfType("string"), mock.AnythingOfType("kafka.BookingEvent")).
		Return(nil).Once()

	s := NewBookingService(f.store, WithProducer(producer, "bookings"))

	b, err := s.ClaimSlot(context.Background(), f.future.ID, ana)
	require.NoError(t, err)

	assert.NotZero(t, b.ID)
	assert.Equal(t, domain.BookingStatusPending, b.Status)
	assert.Equal(t, f.future.ID, b.SlotID)
	require.NotNil(t, b.Slot)
	assert.Equal(t, f.future.StartsAt, b.Slot.StartsAt)
	require.NotNil(t, b.Service)
	assert.Equal(t, "Limpieza facial", b.Service.Name)
	producer.AssertExpectations(t)
}

func TestBookingService_ClaimSlot_SecondClaimConflicts(t *testing.T) {
	f := newFixture()
	s := NewBookingService(f.store)

	_, err := s.ClaimSlot(context.Background(), f.future.ID, ana)
	require.NoError(t, err)

	_, err = s.ClaimSlot(context.Background(), f.future.ID, bea)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAlreadyBooked)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))
	assert.Equal(t, "slot already taken", apperrors.AsAppError(err).Message)
}

func TestBookingService_ClaimSlot_Errors(t *testing.T) {
	f := newFixture()
	inactive := f.store.AddSlot(domain.AvailabilitySlot{ServiceID: f.service.ID, StartsAt: f.now.Add(time.Hour), IsActive: false})

	tests := []struct {
		name     string
		slotID   int64
		customer domain.Customer
		code     string
		sentinel error
	}{
		{"past slot", f.past.ID, ana, apperrors.CodeValidation, domain.ErrSlotExpired},
		{"missing slot", 9999, ana, apperrors.CodeNotFound, domain.ErrSlotNotFound},
		{"inactive slot", inactive.ID, ana, apperrors.CodeNotFound, domain.ErrSlotNotFound},
		{"no email", f.future.ID, domain.Customer{Name: "Ana"}, apperrors.CodeValidation, nil},
		{"bad email", f.future.ID, domain.Customer{Name: "Ana", Email: "not-an-email"}, apperrors.CodeValidation, nil},
		{"no name", f.future.ID, domain.Customer{Email: "ana@example.com"}, apperrors.CodeValidation, nil},
		{"zero id", 0, ana, apperrors.CodeValidation, nil},
	}

	s := NewBookingService(f.store)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.ClaimSlot(context.Background(), tt.slotID, tt.customer)
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, tt.code), "got %v", err)
			if tt.sentinel != nil {
				assert.ErrorIs(t, err, tt.sentinel)
			}
		})
	}

	taken, err := f.store.Repos().Bookings.HasActiveForSlot(context.Background(), f.past.ID)
	require.NoError(t, err)
	assert.False(t, taken)
}

func TestBookingService_ClaimSlot_PastSlotAlwaysExpired(t *testing.T) {
	f := newFixture()
	s := NewBookingService(f.store)

	for i := 0; i < 3; i++ {
		_, err := s.ClaimSlot(context.Background(), f.past.ID, ana)
		assert.ErrorIs(t, err, domain.ErrSlotExpired)
	}
}

func TestBookingService_ClaimSlot_ConcurrentClaimsOneWinner(t *testing.T) {
	f := newFixture()
	s := NewBookingService(f.store)

	const claimers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	start := make(chan struct{})
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := s.ClaimSlot(context.Background(), f.future.ID, ana)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, domain.ErrAlreadyBooked):
				conflicts++
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, claimers-1, conflicts)
}

func TestBookingService_ClaimSlot_AdvisoryLockHeld(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	require.NoError(t, f.store.Repos().Bookings.Create(ctx, &domain.Booking{SlotID: f.future.ID, CustomerName: "Ana", CustomerEmail: "ana@example.com"}))

	cache := &MockCache{}
	cache.On("AcquireSlotLock", mock.Anything, f.future.ID, 30*time.Minute).Return(false, nil).Once()

	s := NewBookingService(f.store, WithCache(cache), WithHoldTTL(30*time.Minute))

	_, err := s.ClaimSlot(ctx, f.future.ID, bea)
	assert.ErrorIs(t, err, domain.ErrAlreadyBooked)
	cache.AssertExpectations(t)
	cache.AssertNotCalled(t, "ReleaseSlotLock", mock.Anything, mock.Anything)
}

func TestBookingService_ClaimSlot_StaleAdvisoryLockFallsThrough(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	cache := &MockCache{}
	cache.On("AcquireSlotLock", mock.Anything, f.future.ID, defaultLockTTL).Return(false, nil).Once()

	s := NewBookingService(f.store, WithCache(cache))

	b, err := s.ClaimSlot(ctx, f.future.ID, ana)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusPending, b.Status)
	cache.AssertExpectations(t)
}

func TestBookingService_ClaimSlot_ReleasesLockOnFailure(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	cache := &MockCache{}
	cache.On("AcquireSlotLock", mock.Anything, f.past.ID, defaultLockTTL).Return(true, nil).Once()
	cache.On("ReleaseSlotLock", mock.Anything, f.past.ID).Return(nil).Once()

	s := NewBookingService(f.store, WithCache(cache))

	_, err := s.ClaimSlot(ctx, f.past.ID, ana)
	assert.ErrorIs(t, err, domain.ErrSlotExpired)
	cache.AssertExpectations(t)
}

func TestBookingService_ClaimSlot_RedisDownStillClaims(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	cache := &MockCache{}
	cache.On("AcquireSlotLock", mock.Anything, f.future.ID, defaultLockTTL).Return(false, errors.New("dial tcp: connection refused")).Once()

	s := NewBookingService(f.store, WithCache(cache))

	_, err := s.ClaimSlot(ctx, f.future.ID, ana)
	require.NoError(t, err)
}

// ============================ Status changes ============================

func TestBookingService_UpdateBookingStatus(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	cal := &MockCalendar{}
	cal.On("Notify", mock.MatchedBy(func(b domain.Booking) bool { return b.Status == domain.BookingStatusPaid })).Once()

	s := NewBookingService(f.store, WithCalendar(cal))
	b, err := s.ClaimSlot(ctx, f.future.ID, ana)
	require.NoError(t, err)

	paid, err := s.UpdateBookingStatus(ctx, b.ID, domain.BookingStatusPaid)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusPaid, paid.Status)
	cal.AssertExpectations(t)

	again, err := s.UpdateBookingStatus(ctx, b.ID, domain.BookingStatusPaid)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusPaid, again.Status)

	_, err = s.UpdateBookingStatus(ctx, b.ID, domain.BookingStatusCancelled)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))

	done, err := s.UpdateBookingStatus(ctx, b.ID, domain.BookingStatusFulfilled)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusFulfilled, done.Status)

	_, err = s.UpdateBookingStatus(ctx, b.ID, domain.BookingStatusNoShow)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = s.UpdateBookingStatus(ctx, b.ID, "expired")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = s.UpdateBookingStatus(ctx, 9999, domain.BookingStatusPaid)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestBookingService_CancelFreesSlot(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	cache := &MockCache{}
	cache.On("AcquireSlotLock", mock.Anything, f.future.ID, defaultLockTTL).Return(true, nil).Twice()
	cache.On("ReleaseSlotLock", mock.Anything, f.future.ID).Return(nil).Once()

	s := NewBookingService(f.store, WithCache(cache))

	b, err := s.ClaimSlot(ctx, f.future.ID, ana)
	require.NoError(t, err)

	_, err = s.UpdateBookingStatus(ctx, b.ID, domain.BookingStatusCancelled)
	require.NoError(t, err)

	_, err = s.ClaimSlot(ctx, f.future.ID, bea)
	require.NoError(t, err)
	cache.AssertExpectations(t)
}

func TestBookingService_ExpirePendingBookings(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	producer := &MockProducer{}
	producer.On("Publish", mock.Anything, "bookings", mock.Anything, mock.MatchedBy(func(e kafka.BookingEvent) bool {
		return e.Type == kafka.EventBookingCreated
	})).Return(nil)
	producer.On("Publish", mock.Anything, "bookings", mock.Anything, mock.MatchedBy(func(e kafka.BookingEvent) bool {
		return e.Type == kafka.EventBookingCancelled && e.Status == string(domain.BookingStatusCancelled)
	})).Return(nil).Once()

	clock := f.now
	s := NewBookingService(f.store,
		WithProducer(producer, "bookings"),
		WithHoldTTL(30*time.Minute),
		WithClock(func() time.Time { return clock }),
	)

	b, err := s.ClaimSlot(ctx, f.future.ID, ana)
	require.NoError(t, err)

	expired, err := s.ExpirePendingBookings(ctx)
	require.NoError(t, err)
	assert.Empty(t, expired)

	clock = f.now.Add(31 * time.Minute)
	expired, err = s.ExpirePendingBookings(ctx)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, b.ID, expired[0].ID)

	got, err := s.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCancelled, got.Status)
	producer.AssertExpectations(t)
}

func TestBookingService_ExpireDisabledWithoutHoldTTL(t *testing.T) {
	s := NewBookingService(memory.NewStore())
	expired, err := s.ExpirePendingBookings(context.Background())
	require.NoError(t, err)
	assert.Nil(t, expired)
}

func TestBookingService_ListAvailableSlots(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	s := NewBookingService(f.store, WithClock(func() time.Time { return f.now }))

	slots, err := s.ListAvailableSlots(ctx, f.service.ID, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, f.future.ID, slots[0].ID)

	_, err = s.ClaimSlot(ctx, f.future.ID, ana)
	require.NoError(t, err)
	slots, err = s.ListAvailableSlots(ctx, f.service.ID, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, slots)

	_, err = s.ListAvailableSlots(ctx, 9999, time.Time{}, time.Time{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	_, err = s.ListAvailableSlots(ctx, f.service.ID, f.now.Add(2*time.Hour), f.now.Add(time.Hour))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestBookingService_ListServices(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.store.AddService(domain.Service{Name: "Depilación", Slug: "depilacion", DurationMinutes: 30, Price: 15000, Active: true})
	f.store.AddService(domain.Service{Name: "Masaje", Slug: "masaje", DurationMinutes: 45, Price: 30000, Active: false})
	s := NewBookingService(f.store)

	services, err := s.ListServices(ctx)
	require.NoError(t, err)
	require.Len(t, services, 2)
	assert.Equal(t, "depilacion", services[0].Slug)
	assert.Equal(t, f.service.ID, services[1].ID)
}
