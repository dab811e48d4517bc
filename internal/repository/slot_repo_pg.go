package repository

import (
	"context"
	"time"

	"github.com/Domenick1991/esteticcore/internal/domain"
	"github.com/jackc/pgx/v5"
)

const slotColumns = `id, service_id, starts_at, ends_at, is_active`

type PGSlotRepository struct {
	db DBTX
}

func NewSlotRepository(db DBTX) SlotRepository {
	return &PGSlotRepository{db: db}
}

func (r *PGSlotRepository) Get(ctx context.Context, id int64) (*domain.AvailabilitySlot, error) {
	return scanSlot(r.db.QueryRow(ctx, `SELECT `+slotColumns+` FROM availability_slots WHERE id=$1`, id))
}

func (r *PGSlotRepository) GetForUpdate(ctx context.Context, id int64) (*domain.AvailabilitySlot, error) {
	return scanSlot(r.db.QueryRow(ctx, `SELECT `+slotColumns+` FROM availability_slots WHERE id=$1 FOR UPDATE`, id))
}

func (r *PGSlotRepository) GetService(ctx context.Context, id int64) (*domain.Service, error) {
	row := r.db.QueryRow(ctx, `SELECT id, name, slug, duration_minutes, price, active FROM services WHERE id=$1`, id)
	var s domain.Service
	if err := row.Scan(&s.ID, &s.Name, &s.Slug, &s.DurationMinutes, &s.Price, &s.Active); err != nil {
		return nil, notFound(err, domain.ErrSlotNotFound)
	}
	return &s, nil
}

func (r *PGSlotRepository) ListServices(ctx context.Context) ([]domain.Service, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, slug, duration_minutes, price, active FROM services WHERE active ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	services := make([]domain.Service, 0)
	for rows.Next() {
		var s domain.Service
		if err := rows.Scan(&s.ID, &s.Name, &s.Slug, &s.DurationMinutes, &s.Price, &s.Active); err != nil {
			return nil, err
		}
		services = append(services, s)
	}
	return services, rows.Err()
}

func (r *PGSlotRepository) ListAvailable(ctx context.Context, serviceID int64, from, to time.Time) ([]domain.AvailabilitySlot, error) {
	rows, err := r.db.Query(ctx, `
        SELECT s.id, s.service_id, s.starts_at, s.ends_at, s.is_active
        FROM availability_slots s
        WHERE s.service_id = $1
          AND s.is_active
          AND s.starts_at > $2
          AND s.starts_at < $3
          AND NOT EXISTS (
              SELECT 1 FROM bookings b WHERE b.slot_id = s.id AND b.status <> 'cancelled'
          )
        ORDER BY s.starts_at`, serviceID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	slots := make([]domain.AvailabilitySlot, 0)
	for rows.Next() {
		var s domain.AvailabilitySlot
		if err := rows.Scan(&s.ID, &s.ServiceID, &s.StartsAt, &s.EndsAt, &s.IsActive); err != nil {
			return nil, err
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

func scanSlot(row pgx.Row) (*domain.AvailabilitySlot, error) {
	var s domain.AvailabilitySlot
	if err := row.Scan(&s.ID, &s.ServiceID, &s.StartsAt, &s.EndsAt, &s.IsActive); err != nil {
		return nil, notFound(err, domain.ErrSlotNotFound)
	}
	return &s, nil
}

var _ SlotRepository = (*PGSlotRepository)(nil)
