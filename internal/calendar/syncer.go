// Package calendar mirrors paid bookings into the business Google Calendar.
// Sync is best effort: failures are reported on Errors() and never reach the
// booking or payment outcome.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Domenick1991/esteticcore/internal/domain"
	"github.com/Domenick1991/esteticcore/pkg/logger"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// Inserter creates one event in a calendar.
type Inserter interface {
	Insert(ctx context.Context, calendarID string, ev *gcal.Event) error
}

type googleInserter struct {
	svc *gcal.Service
}

func NewGoogleInserter(ctx context.Context, credentialsFile string) (Inserter, error) {
	svc, err := gcal.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(gcal.CalendarScope),
	)
	if err != nil {
		return nil, fmt.Errorf("calendar service: %w", err)
	}
	return &googleInserter{svc: svc}, nil
}

func (g *googleInserter) Insert(ctx context.Context, calendarID string, ev *gcal.Event) error {
	_, err := g.svc.Events.Insert(calendarID, ev).SendUpdates("none").Context(ctx).Do()
	return err
}

// SyncError carries the booking whose event could not be created.
type SyncError struct {
	BookingID int64
	Err       error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("calendar sync booking %d: %v", e.BookingID, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

var ErrQueueFull = errors.New("calendar queue full")

type Syncer struct {
	calendarID string
	inserter   Inserter
	timeout    time.Duration
	loc        *time.Location
	log        *logger.Logger

	queue chan domain.Booking
	errs  chan error
	wg    sync.WaitGroup
	once  sync.Once
}

type Option func(*Syncer)

func WithLogger(l *logger.Logger) Option {
	return func(s *Syncer) { s.log = l }
}

func WithTimeout(d time.Duration) Option {
	return func(s *Syncer) { s.timeout = d }
}

func WithLocation(loc *time.Location) Option {
	return func(s *Syncer) { s.loc = loc }
}

// NewSyncer returns a syncer feeding inserter. A nil inserter yields a
// disabled syncer whose Notify is a no-op.
func NewSyncer(inserter Inserter, calendarID string, queueSize int, opts ...Option) *Syncer {
	if queueSize <= 0 {
		queueSize = 64
	}
	s := &Syncer{
		calendarID: calendarID,
		inserter:   inserter,
		timeout:    10 * time.Second,
		loc:        time.UTC,
		log:        logger.Nop(),
		queue:      make(chan domain.Booking, queueSize),
		errs:       make(chan error, queueSize),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Syncer) Enabled() bool {
	return s != nil && s.inserter != nil && s.calendarID != ""
}

// Start runs the delivery loop until Close is called.
func (s *Syncer) Start(ctx context.Context) {
	if !s.Enabled() {
		close(s.errs)
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(s.errs)
		for b := range s.queue {
			if err := s.insert(ctx, b); err != nil {
				s.report(&SyncError{BookingID: b.ID, Err: err})
			}
		}
	}()
}

// Notify queues a paid booking. It never blocks.
func (s *Syncer) Notify(b domain.Booking) {
	if !s.Enabled() {
		return
	}
	select {
	case s.queue <- b:
	default:
		s.report(&SyncError{BookingID: b.ID, Err: ErrQueueFull})
	}
}

// Errors yields sync failures. It is closed after Close once the queue drains.
func (s *Syncer) Errors() <-chan error {
	return s.errs
}

func (s *Syncer) Close() {
	s.once.Do(func() {
		close(s.queue)
		s.wg.Wait()
	})
}

func (s *Syncer) insert(ctx context.Context, b domain.Booking) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.inserter.Insert(ctx, s.calendarID, BuildEvent(b, s.loc))
}

func (s *Syncer) report(err error) {
	select {
	case s.errs <- err:
	default:
		s.log.Warn("calendar error dropped", "error", err)
	}
}

// BuildEvent maps a booking to a calendar event. Bookings without slot data
// produce an event without times, which the API rejects and the error is
// reported like any other.
func BuildEvent(b domain.Booking, loc *time.Location) *gcal.Event {
	serviceName := "Reserva"
	if b.Service != nil {
		serviceName = b.Service.Name
	}
	notes := b.Notes
	if notes == "" {
		notes = "-"
	}

	ev := &gcal.Event{
		Summary:     fmt.Sprintf("%s - %s", serviceName, b.CustomerName),
		Description: fmt.Sprintf("Notas: %s / Email: %s / Reserva #%d", notes, b.CustomerEmail, b.ID),
	}
	if b.Slot != nil {
		end := b.Slot.EndsAt
		if end.IsZero() {
			end = b.Slot.StartsAt
		}
		ev.Start = &gcal.EventDateTime{DateTime: b.Slot.StartsAt.In(loc).Format(time.RFC3339), TimeZone: loc.String()}
		ev.End = &gcal.EventDateTime{DateTime: end.In(loc).Format(time.RFC3339), TimeZone: loc.String()}
	}
	return ev
}
