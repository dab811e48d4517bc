package repository

import (
	"context"

	"github.com/Domenick1991/esteticcore/internal/domain"
	"github.com/jackc/pgx/v5"
)

const donationColumns = `id, donor_name, donor_email, amount, status, created_at`

type PGDonationRepository struct {
	db DBTX
}

func NewDonationRepository(db DBTX) DonationRepository {
	return &PGDonationRepository{db: db}
}

func (r *PGDonationRepository) Create(ctx context.Context, d *domain.Donation) error {
	if d.Status == "" {
		d.Status = domain.DonationStatusPending
	}
	return r.db.QueryRow(ctx, `INSERT INTO donations (donor_name, donor_email, amount, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`, d.DonorName, d.DonorEmail, d.Amount, d.Status).
		Scan(&d.ID, &d.CreatedAt)
}

func (r *PGDonationRepository) Get(ctx context.Context, id int64) (*domain.Donation, error) {
	return scanDonation(r.db.QueryRow(ctx, `SELECT `+donationColumns+` FROM donations WHERE id=$1`, id))
}

func (r *PGDonationRepository) GetForUpdate(ctx context.Context, id int64) (*domain.Donation, error) {
	return scanDonation(r.db.QueryRow(ctx, `SELECT `+donationColumns+` FROM donations WHERE id=$1 FOR UPDATE`, id))
}

func (r *PGDonationRepository) MarkPaid(ctx context.Context, id int64) error {
	res, err := r.db.Exec(ctx, `UPDATE donations SET status=$2 WHERE id=$1`, id, domain.DonationStatusPaid)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return domain.ErrDonationNotFound
	}
	return nil
}

func (r *PGDonationRepository) List(ctx context.Context, limit int) ([]domain.Donation, error) {
	rows, err := r.db.Query(ctx, `SELECT `+donationColumns+` FROM donations ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	donations := make([]domain.Donation, 0)
	for rows.Next() {
		d, err := scanDonation(rows)
		if err != nil {
			return nil, err
		}
		donations = append(donations, *d)
	}
	return donations, rows.Err()
}

func scanDonation(row pgx.Row) (*domain.Donation, error) {
	var d domain.Donation
	if err := row.Scan(&d.ID, &d.DonorName, &d.DonorEmail, &d.Amount, &d.Status, &d.CreatedAt); err != nil {
		return nil, notFound(err, domain.ErrDonationNotFound)
	}
	return &d, nil
}

var _ DonationRepository = (*PGDonationRepository)(nil)
