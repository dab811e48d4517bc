// Package memory is an in-process implementation of repository.Store used by
// tests and by the local development mode. A transaction holds the store-wide
// lock for its whole duration and restores a snapshot on error, which gives
// the same serialization a row lock would for the contended rows.
package memory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/Domenick1991/esteticcore/internal/domain"
	"github.com/Domenick1991/esteticcore/internal/repository"
)

type data struct {
	seq       int64
	services  map[int64]domain.Service
	slots     map[int64]domain.AvailabilitySlot
	bookings  map[int64]domain.Booking
	products  map[int64]domain.Product
	orders    map[int64]domain.Order
	items     map[int64]domain.OrderItem
	donations map[int64]domain.Donation
	payments  map[string]domain.PaymentIntent
	attempts  map[string]domain.PaymentAttempt
}

func newData() *data {
	return &data{
		services:  make(map[int64]domain.Service),
		slots:     make(map[int64]domain.AvailabilitySlot),
		bookings:  make(map[int64]domain.Booking),
		products:  make(map[int64]domain.Product),
		orders:    make(map[int64]domain.Order),
		items:     make(map[int64]domain.OrderItem),
		donations: make(map[int64]domain.Donation),
		payments:  make(map[string]domain.PaymentIntent),
		attempts:  make(map[string]domain.PaymentAttempt),
	}
}

func (d *data) clone() *data {
	return &data{
		seq:       d.seq,
		services:  maps.Clone(d.services),
		slots:     maps.Clone(d.slots),
		bookings:  maps.Clone(d.bookings),
		products:  maps.Clone(d.products),
		orders:    maps.Clone(d.orders),
		items:     maps.Clone(d.items),
		donations: maps.Clone(d.donations),
		payments:  maps.Clone(d.payments),
		attempts:  maps.Clone(d.attempts),
	}
}

func (d *data) nextID() int64 {
	d.seq++
	return d.seq
}

type Store struct {
	mu sync.Mutex
	d  *data
}

func NewStore() *Store {
	return &Store{d: newData()}
}

func (s *Store) Repos() repository.Repos {
	return s.repos(false)
}

// InTx must not be nested, and fn must not use repositories obtained from
// Repos(): both would wait on the lock already held here.
func (s *Store) InTx(ctx context.Context, fn func(r repository.Repos) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.d.clone()
	if err := fn(s.repos(true)); err != nil {
		s.d = snapshot
		return err
	}
	return nil
}

func (s *Store) repos(inTx bool) repository.Repos {
	b := base{s: s, inTx: inTx}
	return repository.Repos{
		Slots:     &slotRepo{b},
		Bookings:  &bookingRepo{b},
		Products:  &productRepo{b},
		Orders:    &orderRepo{b},
		Donations: &donationRepo{b},
		Payments:  &paymentRepo{b},
	}
}

type base struct {
	s    *Store
	inTx bool
}

func (b base) do(fn func(d *data) error) error {
	if !b.inTx {
		b.s.mu.Lock()
		defer b.s.mu.Unlock()
	}
	return fn(b.s.d)
}

// Seeding helpers. IDs are assigned when zero.

func (s *Store) AddService(svc domain.Service) domain.Service {
	s.mu.Lock()
	defer s.mu.Unlock()
	if svc.ID == 0 {
		svc.ID = s.d.nextID()
	}
	s.d.services[svc.ID] = svc
	return svc
}

func (s *Store) AddSlot(slot domain.AvailabilitySlot) domain.AvailabilitySlot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slot.ID == 0 {
		slot.ID = s.d.nextID()
	}
	s.d.slots[slot.ID] = slot
	return slot
}

func (s *Store) AddProduct(p domain.Product) domain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.d.nextID()
	}
	p.UpdatedAt = time.Now()
	s.d.products[p.ID] = p
	return p
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

var _ repository.Store = (*Store)(nil)
