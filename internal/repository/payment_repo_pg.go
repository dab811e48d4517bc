package repository

import (
	"context"
	"time"

	"github.com/Domenick1991/esteticcore/internal/domain"
	"github.com/jackc/pgx/v5"
)

const paymentColumns = `id, amount, currency, status, description, ref_kind, ref_id, provider, buy_order,
	session_id, COALESCE(token, ''), return_url, authorization_code, card_last4, response_code,
	transaction_date, gateway_response, failure_reason, reconciliation_required, created_at, updated_at`

type PGPaymentRepository struct {
	db DBTX
}

func NewPaymentRepository(db DBTX) PaymentRepository {
	return &PGPaymentRepository{db: db}
}

func (r *PGPaymentRepository) Upsert(ctx context.Context, p *domain.PaymentIntent) error {
	if p.Reference == nil {
		return domain.ErrInvalidReference
	}
	var token *string
	if p.Token != "" {
		token = &p.Token
	}
	var raw []byte
	if len(p.GatewayResponse) > 0 {
		raw = p.GatewayResponse
	}

	// On conflict the original id and created_at are kept.
	return r.db.QueryRow(ctx, `
        INSERT INTO payment_intents (id, amount, currency, status, description, ref_kind, ref_id, provider,
            buy_order, session_id, token, return_url, authorization_code, card_last4, response_code,
            transaction_date, gateway_response, failure_reason, reconciliation_required)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
        ON CONFLICT (buy_order) DO UPDATE SET
            amount = EXCLUDED.amount,
            currency = EXCLUDED.currency,
            status = EXCLUDED.status,
            description = EXCLUDED.description,
            provider = EXCLUDED.provider,
            session_id = EXCLUDED.session_id,
            token = EXCLUDED.token,
            return_url = EXCLUDED.return_url,
            authorization_code = EXCLUDED.authorization_code,
            card_last4 = EXCLUDED.card_last4,
            response_code = EXCLUDED.response_code,
            transaction_date = EXCLUDED.transaction_date,
            gateway_response = EXCLUDED.gateway_response,
            failure_reason = EXCLUDED.failure_reason,
            reconciliation_required = EXCLUDED.reconciliation_required,
            updated_at = now()
        RETURNING id, created_at, updated_at`,
		p.ID, p.Amount, p.Currency, p.Status, p.Description, string(p.Reference.Kind()), p.Reference.ID(), p.Provider,
		p.BuyOrder, p.SessionID, token, p.ReturnURL, p.AuthorizationCode, p.CardLast4, p.ResponseCode,
		p.TransactionDate, raw, p.FailureReason, p.ReconciliationRequired).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

func (r *PGPaymentRepository) Get(ctx context.Context, id string) (*domain.PaymentIntent, error) {
	return scanPayment(r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payment_intents WHERE id=$1`, id))
}

func (r *PGPaymentRepository) GetByToken(ctx context.Context, token string) (*domain.PaymentIntent, error) {
	return scanPayment(r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payment_intents WHERE token=$1`, token))
}

func (r *PGPaymentRepository) GetByBuyOrder(ctx context.Context, buyOrder string) (*domain.PaymentIntent, error) {
	return scanPayment(r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payment_intents WHERE buy_order=$1`, buyOrder))
}

func (r *PGPaymentRepository) GetByBuyOrderForUpdate(ctx context.Context, buyOrder string) (*domain.PaymentIntent, error) {
	return scanPayment(r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payment_intents WHERE buy_order=$1 FOR UPDATE`, buyOrder))
}

func (r *PGPaymentRepository) ListPendingBefore(ctx context.Context, before time.Time, limit int) ([]domain.PaymentIntent, error) {
	rows, err := r.db.Query(ctx, `SELECT `+paymentColumns+` FROM payment_intents
		WHERE status=$1 AND updated_at <= $2 AND token IS NOT NULL
		ORDER BY updated_at LIMIT $3`, domain.PaymentStatusPending, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	intents := make([]domain.PaymentIntent, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		intents = append(intents, *p)
	}
	return intents, rows.Err()
}

func scanPayment(row pgx.Row) (*domain.PaymentIntent, error) {
	var (
		p       domain.PaymentIntent
		refKind string
		refID   int64
		raw     []byte
	)
	if err := row.Scan(&p.ID, &p.Amount, &p.Currency, &p.Status, &p.Description, &refKind, &refID, &p.Provider, &p.BuyOrder,
		&p.SessionID, &p.Token, &p.ReturnURL, &p.AuthorizationCode, &p.CardLast4, &p.ResponseCode,
		&p.TransactionDate, &raw, &p.FailureReason, &p.ReconciliationRequired, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, notFound(err, domain.ErrPaymentNotFound)
	}
	ref, err := domain.NewReference(domain.ReferenceKind(refKind), refID)
	if err != nil {
		return nil, err
	}
	p.Reference = ref
	p.GatewayResponse = raw
	return &p, nil
}

func (r *PGPaymentRepository) SaveAttempt(ctx context.Context, a *domain.PaymentAttempt) error {
	if a.Token == "" {
		return domain.ErrPaymentNotFound
	}
	var raw []byte
	if len(a.GatewayResponse) > 0 {
		raw = a.GatewayResponse
	}
	return r.db.QueryRow(ctx, `
        INSERT INTO payment_attempts (token, intent_id, buy_order, status, authorization_code, response_code,
            gateway_response, failure_reason, reconciliation_required)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (token) DO UPDATE SET
            status = EXCLUDED.status,
            authorization_code = EXCLUDED.authorization_code,
            response_code = EXCLUDED.response_code,
            gateway_response = EXCLUDED.gateway_response,
            failure_reason = EXCLUDED.failure_reason,
            reconciliation_required = EXCLUDED.reconciliation_required,
            updated_at = now()
        RETURNING created_at, updated_at`,
		a.Token, a.IntentID, a.BuyOrder, a.Status, a.AuthorizationCode, a.ResponseCode,
		raw, a.FailureReason, a.ReconciliationRequired).
		Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *PGPaymentRepository) GetAttempt(ctx context.Context, token string) (*domain.PaymentAttempt, error) {
	var (
		a   domain.PaymentAttempt
		raw []byte
	)
	err := r.db.QueryRow(ctx, `
        SELECT token, intent_id, buy_order, status, authorization_code, response_code, gateway_response,
            failure_reason, reconciliation_required, created_at, updated_at
        FROM payment_attempts WHERE token=$1`, token).
		Scan(&a.Token, &a.IntentID, &a.BuyOrder, &a.Status, &a.AuthorizationCode, &a.ResponseCode, &raw,
			&a.FailureReason, &a.ReconciliationRequired, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, notFound(err, domain.ErrPaymentNotFound)
	}
	a.GatewayResponse = raw
	return &a, nil
}

var _ PaymentRepository = (*PGPaymentRepository)(nil)
