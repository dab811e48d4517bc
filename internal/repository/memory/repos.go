package memory

import (
	"context"
	"sort"
	"time"

	"github.com/Domenick1991/esteticcore/internal/domain"
)

type slotRepo struct{ base }

func (r *slotRepo) Get(_ context.Context, id int64) (*domain.AvailabilitySlot, error) {
	var out *domain.AvailabilitySlot
	err := r.do(func(d *data) error {
		s, ok := d.slots[id]
		if !ok {
			return domain.ErrSlotNotFound
		}
		out = &s
		return nil
	})
	return out, err
}

func (r *slotRepo) GetForUpdate(ctx context.Context, id int64) (*domain.AvailabilitySlot, error) {
	return r.Get(ctx, id)
}

func (r *slotRepo) GetService(_ context.Context, id int64) (*domain.Service, error) {
	var out *domain.Service
	err := r.do(func(d *data) error {
		s, ok := d.services[id]
		if !ok {
			return domain.ErrSlotNotFound
		}
		out = &s
		return nil
	})
	return out, err
}

func (r *slotRepo) ListServices(_ context.Context) ([]domain.Service, error) {
	out := make([]domain.Service, 0)
	err := r.do(func(d *data) error {
		for _, id := range sortedKeys(d.services) {
			if svc := d.services[id]; svc.Active {
				out = append(out, svc)
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, err
}

func (r *slotRepo) ListAvailable(_ context.Context, serviceID int64, from, to time.Time) ([]domain.AvailabilitySlot, error) {
	out := make([]domain.AvailabilitySlot, 0)
	err := r.do(func(d *data) error {
		taken := make(map[int64]bool)
		for _, b := range d.bookings {
			if b.Status != domain.BookingStatusCancelled {
				taken[b.SlotID] = true
			}
		}
		for _, s := range d.slots {
			if s.ServiceID != serviceID || !s.IsActive || taken[s.ID] {
				continue
			}
			if !s.StartsAt.After(from) || !s.StartsAt.Before(to) {
				continue
			}
			out = append(out, s)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out, err
}

type bookingRepo struct{ base }

func (r *bookingRepo) Create(_ context.Context, b *domain.Booking) error {
	return r.do(func(d *data) error {
		for _, existing := range d.bookings {
			if existing.SlotID == b.SlotID && existing.Status != domain.BookingStatusCancelled {
				return domain.ErrAlreadyBooked
			}
		}
		if b.Status == "" {
			b.Status = domain.BookingStatusPending
		}
		now := time.Now()
		b.ID = d.nextID()
		b.CreatedAt, b.UpdatedAt = now, now
		stored := *b
		stored.Slot, stored.Service = nil, nil
		d.bookings[b.ID] = stored
		return nil
	})
}

func (r *bookingRepo) Get(_ context.Context, id int64) (*domain.Booking, error) {
	var out *domain.Booking
	err := r.do(func(d *data) error {
		b, ok := d.bookings[id]
		if !ok {
			return domain.ErrBookingNotFound
		}
		out = &b
		return nil
	})
	return out, err
}

func (r *bookingRepo) GetForUpdate(ctx context.Context, id int64) (*domain.Booking, error) {
	return r.Get(ctx, id)
}

func (r *bookingRepo) HasActiveForSlot(_ context.Context, slotID int64) (bool, error) {
	var found bool
	err := r.do(func(d *data) error {
		for _, b := range d.bookings {
			if b.SlotID == slotID && b.Status != domain.BookingStatusCancelled {
				found = true
				return nil
			}
		}
		return nil
	})
	return found, err
}

func (r *bookingRepo) UpdateStatus(_ context.Context, id int64, status domain.BookingStatus) (*domain.Booking, error) {
	var out *domain.Booking
	err := r.do(func(d *data) error {
		b, ok := d.bookings[id]
		if !ok {
			return domain.ErrBookingNotFound
		}
		b.Status = status
		b.UpdatedAt = time.Now()
		d.bookings[id] = b
		out = &b
		return nil
	})
	return out, err
}

func (r *bookingRepo) ExpirePendingBefore(_ context.Context, deadline time.Time) ([]domain.Booking, error) {
	var expired []domain.Booking
	err := r.do(func(d *data) error {
		for _, id := range sortedKeys(d.bookings) {
			b := d.bookings[id]
			if b.Status != domain.BookingStatusPending || b.CreatedAt.After(deadline) {
				continue
			}
			b.Status = domain.BookingStatusCancelled
			b.UpdatedAt = time.Now()
			d.bookings[id] = b
			expired = append(expired, b)
		}
		return nil
	})
	return expired, err
}

type productRepo struct{ base }

func (r *productRepo) ListActive(_ context.Context) ([]domain.Product, error) {
	out := make([]domain.Product, 0)
	err := r.do(func(d *data) error {
		for _, p := range d.products {
			if p.Active {
				out = append(out, p)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, err
}

func (r *productRepo) GetBySKU(_ context.Context, sku string) (*domain.Product, error) {
	var out *domain.Product
	err := r.do(func(d *data) error {
		for _, p := range d.products {
			if p.SKU == sku {
				out = &p
				return nil
			}
		}
		return domain.ErrProductNotFound
	})
	return out, err
}

func (r *productRepo) DecrementStock(_ context.Context, productID int64, qty int) error {
	return r.do(func(d *data) error {
		p, ok := d.products[productID]
		if !ok || p.Stock < qty {
			return domain.ErrInsufficientStock
		}
		p.Stock -= qty
		p.UpdatedAt = time.Now()
		d.products[productID] = p
		return nil
	})
}

type orderRepo struct{ base }

func (r *orderRepo) Create(_ context.Context, o *domain.Order) error {
	return r.do(func(d *data) error {
		if o.Status == "" {
			o.Status = domain.OrderStatusPending
		}
		o.ID = d.nextID()
		o.CreatedAt = time.Now()
		stored := *o
		stored.Items = nil
		d.orders[o.ID] = stored
		return nil
	})
}

func (r *orderRepo) Get(_ context.Context, id int64) (*domain.Order, error) {
	var out *domain.Order
	err := r.do(func(d *data) error {
		o, ok := d.orders[id]
		if !ok {
			return domain.ErrOrderNotFound
		}
		o.Items = make([]domain.OrderItem, 0)
		for _, itemID := range sortedKeys(d.items) {
			it := d.items[itemID]
			if it.OrderID != id {
				continue
			}
			it.SKU = d.products[it.ProductID].SKU
			o.Items = append(o.Items, it)
		}
		out = &o
		return nil
	})
	return out, err
}

func (r *orderRepo) GetForUpdate(ctx context.Context, id int64) (*domain.Order, error) {
	return r.Get(ctx, id)
}

func (r *orderRepo) AddItem(_ context.Context, item *domain.OrderItem) error {
	return r.do(func(d *data) error {
		if _, ok := d.orders[item.OrderID]; !ok {
			return domain.ErrOrderNotFound
		}
		item.ID = d.nextID()
		item.LineTotal = item.ComputeLineTotal()
		d.items[item.ID] = *item
		return nil
	})
}

func (r *orderRepo) UpdateItemQty(_ context.Context, orderID, itemID int64, qty int) (*domain.OrderItem, error) {
	var out *domain.OrderItem
	err := r.do(func(d *data) error {
		it, ok := d.items[itemID]
		if !ok || it.OrderID != orderID {
			return domain.ErrOrderItemNotFound
		}
		it.Qty = qty
		it.LineTotal = it.ComputeLineTotal()
		d.items[itemID] = it
		out = &it
		return nil
	})
	return out, err
}

func (r *orderRepo) DeleteItem(_ context.Context, orderID, itemID int64) error {
	return r.do(func(d *data) error {
		it, ok := d.items[itemID]
		if !ok || it.OrderID != orderID {
			return domain.ErrOrderItemNotFound
		}
		delete(d.items, itemID)
		return nil
	})
}

func (r *orderRepo) RecomputeTotal(_ context.Context, orderID int64) (int64, error) {
	var total int64
	err := r.do(func(d *data) error {
		o, ok := d.orders[orderID]
		if !ok {
			return domain.ErrOrderNotFound
		}
		for _, it := range d.items {
			if it.OrderID == orderID {
				total += it.LineTotal
			}
		}
		o.TotalAmount = total
		d.orders[orderID] = o
		return nil
	})
	return total, err
}

func (r *orderRepo) MarkPaid(_ context.Context, id int64, paidAt time.Time) error {
	return r.do(func(d *data) error {
		o, ok := d.orders[id]
		if !ok {
			return domain.ErrOrderNotFound
		}
		o.Status = domain.OrderStatusPaid
		o.PaidAt = &paidAt
		d.orders[id] = o
		return nil
	})
}

type donationRepo struct{ base }

func (r *donationRepo) Create(_ context.Context, dn *domain.Donation) error {
	return r.do(func(d *data) error {
		if dn.Status == "" {
			dn.Status = domain.DonationStatusPending
		}
		dn.ID = d.nextID()
		dn.CreatedAt = time.Now()
		d.donations[dn.ID] = *dn
		return nil
	})
}

func (r *donationRepo) Get(_ context.Context, id int64) (*domain.Donation, error) {
	var out *domain.Donation
	err := r.do(func(d *data) error {
		dn, ok := d.donations[id]
		if !ok {
			return domain.ErrDonationNotFound
		}
		out = &dn
		return nil
	})
	return out, err
}

func (r *donationRepo) GetForUpdate(ctx context.Context, id int64) (*domain.Donation, error) {
	return r.Get(ctx, id)
}

func (r *donationRepo) MarkPaid(_ context.Context, id int64) error {
	return r.do(func(d *data) error {
		dn, ok := d.donations[id]
		if !ok {
			return domain.ErrDonationNotFound
		}
		dn.Status = domain.DonationStatusPaid
		d.donations[id] = dn
		return nil
	})
}

func (r *donationRepo) List(_ context.Context, limit int) ([]domain.Donation, error) {
	out := make([]domain.Donation, 0)
	err := r.do(func(d *data) error {
		keys := sortedKeys(d.donations)
		for i := len(keys) - 1; i >= 0 && len(out) < limit; i-- {
			out = append(out, d.donations[keys[i]])
		}
		return nil
	})
	return out, err
}

type paymentRepo struct{ base }

func (r *paymentRepo) Upsert(_ context.Context, p *domain.PaymentIntent) error {
	if p.Reference == nil {
		return domain.ErrInvalidReference
	}
	return r.do(func(d *data) error {
		now := time.Now()
		for id, existing := range d.payments {
			if p.Token != "" && existing.Token == p.Token && existing.BuyOrder != p.BuyOrder {
				return domain.ErrInvalidReference
			}
			if existing.BuyOrder == p.BuyOrder {
				p.ID = id
				p.CreatedAt = existing.CreatedAt
			}
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		p.UpdatedAt = now
		d.payments[p.ID] = *p
		return nil
	})
}

func (r *paymentRepo) Get(_ context.Context, id string) (*domain.PaymentIntent, error) {
	return r.find(func(p domain.PaymentIntent) bool { return p.ID == id })
}

func (r *paymentRepo) GetByToken(_ context.Context, token string) (*domain.PaymentIntent, error) {
	if token == "" {
		return nil, domain.ErrPaymentNotFound
	}
	return r.find(func(p domain.PaymentIntent) bool { return p.Token == token })
}

func (r *paymentRepo) GetByBuyOrder(_ context.Context, buyOrder string) (*domain.PaymentIntent, error) {
	return r.find(func(p domain.PaymentIntent) bool { return p.BuyOrder == buyOrder })
}

func (r *paymentRepo) GetByBuyOrderForUpdate(ctx context.Context, buyOrder string) (*domain.PaymentIntent, error) {
	return r.GetByBuyOrder(ctx, buyOrder)
}

func (r *paymentRepo) ListPendingBefore(_ context.Context, before time.Time, limit int) ([]domain.PaymentIntent, error) {
	out := make([]domain.PaymentIntent, 0)
	err := r.do(func(d *data) error {
		for _, p := range d.payments {
			if p.Status == domain.PaymentStatusPending && p.Token != "" && !p.UpdatedAt.After(before) {
				out = append(out, p)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (r *paymentRepo) SaveAttempt(_ context.Context, a *domain.PaymentAttempt) error {
	if a.Token == "" {
		return domain.ErrPaymentNotFound
	}
	return r.do(func(d *data) error {
		now := time.Now()
		if existing, ok := d.attempts[a.Token]; ok {
			a.CreatedAt = existing.CreatedAt
		} else {
			a.CreatedAt = now
		}
		a.UpdatedAt = now
		d.attempts[a.Token] = *a
		return nil
	})
}

func (r *paymentRepo) GetAttempt(_ context.Context, token string) (*domain.PaymentAttempt, error) {
	var out *domain.PaymentAttempt
	err := r.do(func(d *data) error {
		a, ok := d.attempts[token]
		if !ok {
			return domain.ErrPaymentNotFound
		}
		out = &a
		return nil
	})
	return out, err
}

func (r *paymentRepo) find(match func(domain.PaymentIntent) bool) (*domain.PaymentIntent, error) {
	var out *domain.PaymentIntent
	err := r.do(func(d *data) error {
		for _, p := range d.payments {
			if match(p) {
				out = &p
				return nil
			}
		}
		return domain.ErrPaymentNotFound
	})
	return out, err
}
