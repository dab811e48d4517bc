package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Domenick1991/esteticcore/internal/domain"
	"github.com/Domenick1991/esteticcore/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_InTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	p := s.AddProduct(domain.Product{SKU: "SERUM-30", Name: "Serum", Stock: 5, Price: 8490, Active: true})

	boom := errors.New("boom")
	err := s.InTx(ctx, func(r repository.Repos) error {
		require.NoError(t, r.Products.DecrementStock(ctx, p.ID, 2))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.Repos().Products.GetBySKU(ctx, "SERUM-30")
	require.NoError(t, err)
	assert.Equal(t, 5, got.Stock)
}

func TestStore_InTxCommits(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	p := s.AddProduct(domain.Product{SKU: "SERUM-30", Stock: 5, Active: true})

	err := s.InTx(ctx, func(r repository.Repos) error {
		return r.Products.DecrementStock(ctx, p.ID, 5)
	})
	require.NoError(t, err)

	got, _ := s.Repos().Products.GetBySKU(ctx, "SERUM-30")
	assert.Equal(t, 0, got.Stock)
	assert.ErrorIs(t, s.Repos().Products.DecrementStock(ctx, p.ID, 1), domain.ErrInsufficientStock)
}

func TestBookingRepo_OneLiveBookingPerSlot(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	slot := s.AddSlot(domain.AvailabilitySlot{ServiceID: 1, StartsAt: time.Now().Add(time.Hour), IsActive: true})
	r := s.Repos()

	first := &domain.Booking{SlotID: slot.ID, CustomerName: "Ana", CustomerEmail: "ana@example.com"}
	require.NoError(t, r.Bookings.Create(ctx, first))
	assert.Equal(t, domain.BookingStatusPending, first.Status)

	err := r.Bookings.Create(ctx, &domain.Booking{SlotID: slot.ID, CustomerName: "Bea", CustomerEmail: "bea@example.com"})
	assert.ErrorIs(t, err, domain.ErrAlreadyBooked)

	_, err = r.Bookings.UpdateStatus(ctx, first.ID, domain.BookingStatusCancelled)
	require.NoError(t, err)
	require.NoError(t, r.Bookings.Create(ctx, &domain.Booking{SlotID: slot.ID, CustomerName: "Bea", CustomerEmail: "bea@example.com"}))
}

func TestSlotRepo_ListAvailable(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	now := time.Now()
	later := s.AddSlot(domain.AvailabilitySlot{ServiceID: 1, StartsAt: now.Add(2 * time.Hour), IsActive: true})
	sooner := s.AddSlot(domain.AvailabilitySlot{ServiceID: 1, StartsAt: now.Add(time.Hour), IsActive: true})
	booked := s.AddSlot(domain.AvailabilitySlot{ServiceID: 1, StartsAt: now.Add(3 * time.Hour), IsActive: true})
	s.AddSlot(domain.AvailabilitySlot{ServiceID: 1, StartsAt: now.Add(-time.Hour), IsActive: true})
	s.AddSlot(domain.AvailabilitySlot{ServiceID: 1, StartsAt: now.Add(time.Hour), IsActive: false})
	s.AddSlot(domain.AvailabilitySlot{ServiceID: 2, StartsAt: now.Add(time.Hour), IsActive: true})
	require.NoError(t, s.Repos().Bookings.Create(ctx, &domain.Booking{SlotID: booked.ID}))

	slots, err := s.Repos().Slots.ListAvailable(ctx, 1, now, now.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, sooner.ID, slots[0].ID)
	assert.Equal(t, later.ID, slots[1].ID)
}

func TestOrderRepo_ItemsAndTotal(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	p := s.AddProduct(domain.Product{SKU: "SERUM-30", Price: 8490, Stock: 10, Active: true})
	r := s.Repos()

	o := &domain.Order{CustomerEmail: "ana@example.com"}
	require.NoError(t, r.Orders.Create(ctx, o))
	item := domain.NewOrderItem(o.ID, p, 2)
	require.NoError(t, r.Orders.AddItem(ctx, &item))

	total, err := r.Orders.RecomputeTotal(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(16980), total)

	_, err = r.Orders.UpdateItemQty(ctx, o.ID, item.ID, 3)
	require.NoError(t, err)
	total, _ = r.Orders.RecomputeTotal(ctx, o.ID)
	assert.Equal(t, int64(25470), total)

	got, err := r.Orders.Get(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "SERUM-30", got.Items[0].SKU)
	assert.Equal(t, int64(25470), got.TotalAmount)

	require.NoError(t, r.Orders.DeleteItem(ctx, o.ID, item.ID))
	assert.ErrorIs(t, r.Orders.DeleteItem(ctx, o.ID, item.ID), domain.ErrOrderItemNotFound)
	total, _ = r.Orders.RecomputeTotal(ctx, o.ID)
	assert.Equal(t, int64(0), total)
}

func TestPaymentRepo_UpsertByBuyOrder(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	r := s.Repos()

	first := &domain.PaymentIntent{ID: "a", BuyOrder: "42", Token: "tok-1", Amount: 100, Status: domain.PaymentStatusPending, Reference: domain.OrderRef{OrderID: 42}}
	require.NoError(t, r.Payments.Upsert(ctx, first))

	second := &domain.PaymentIntent{ID: "b", BuyOrder: "42", Token: "tok-2", Amount: 100, Status: domain.PaymentStatusPending, Reference: domain.OrderRef{OrderID: 42}}
	require.NoError(t, r.Payments.Upsert(ctx, second))
	assert.Equal(t, "a", second.ID)

	_, err := r.Payments.GetByToken(ctx, "tok-1")
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)

	got, err := r.Payments.GetByToken(ctx, "tok-2")
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)
	assert.Equal(t, first.CreatedAt, got.CreatedAt)
}

func TestPaymentRepo_AttemptsKeyedByToken(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	r := s.Repos()

	_, err := r.Payments.GetAttempt(ctx, "tok-1")
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)
	assert.ErrorIs(t, r.Payments.SaveAttempt(ctx, &domain.PaymentAttempt{}), domain.ErrPaymentNotFound)

	a := &domain.PaymentAttempt{Token: "tok-1", IntentID: "a", BuyOrder: "42", Status: domain.PaymentStatusPending}
	require.NoError(t, r.Payments.SaveAttempt(ctx, a))
	created := a.CreatedAt

	a.Status = domain.PaymentStatusFailed
	require.NoError(t, r.Payments.SaveAttempt(ctx, a))
	require.NoError(t, r.Payments.SaveAttempt(ctx, &domain.PaymentAttempt{Token: "tok-2", IntentID: "a", BuyOrder: "42", Status: domain.PaymentStatusPending}))

	got, err := r.Payments.GetAttempt(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusFailed, got.Status)
	assert.Equal(t, created, got.CreatedAt)
}

func TestSlotRepo_ListServices(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	s.AddService(domain.Service{Name: "Masaje", Slug: "masaje", Active: true})
	s.AddService(domain.Service{Name: "Peeling", Slug: "peeling", Active: false})
	s.AddService(domain.Service{Name: "Depilación", Slug: "depilacion", Active: true})

	services, err := s.Repos().Slots.ListServices(ctx)
	require.NoError(t, err)
	require.Len(t, services, 2)
	assert.Equal(t, "depilacion", services[0].Slug)
	assert.Equal(t, "masaje", services[1].Slug)
}

func TestDonationRepo_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	r := s.Repos()
	for _, amount := range []int64{1000, 2000, 3000} {
		require.NoError(t, r.Donations.Create(ctx, &domain.Donation{Amount: amount}))
	}

	list, err := r.Donations.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(3000), list[0].Amount)
	assert.Equal(t, int64(2000), list[1].Amount)
}
