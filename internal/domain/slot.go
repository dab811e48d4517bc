package domain

import "time"

type Service struct {
	ID              int64
	Name            string
	Slug            string
	DurationMinutes int
	Price           int64
	Active          bool
}

// AvailabilitySlot is a bookable interval of a service. At most one
// non-cancelled booking may reference it.
type AvailabilitySlot struct {
	ID        int64
	ServiceID int64
	StartsAt  time.Time
	EndsAt    time.Time
	IsActive  bool
}

// StartedBy reports whether the slot has already started at now.
func (s AvailabilitySlot) StartedBy(now time.Time) bool {
	return !s.StartsAt.After(now)
}
