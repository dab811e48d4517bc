package repository

import (
	"context"
	"testing"

	"github.com/Domenick1991/esteticcore/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
)

func TestNewPaymentRepository(t *testing.T) {
	repo := NewPaymentRepository(&pgxpool.Pool{})
	assert.NotNil(t, repo)
}

func TestPGPaymentRepository_UpsertRequiresReference(t *testing.T) {
	repo := NewPaymentRepository(&pgxpool.Pool{})

	err := repo.Upsert(context.Background(), &domain.PaymentIntent{BuyOrder: "42"})
	assert.ErrorIs(t, err, domain.ErrInvalidReference)
}

func TestNewOrderAndProductRepositories(t *testing.T) {
	pool := &pgxpool.Pool{}
	assert.NotNil(t, NewOrderRepository(pool))
	assert.NotNil(t, NewProductRepository(pool))
	assert.NotNil(t, NewDonationRepository(pool))
	assert.NotNil(t, NewSlotRepository(pool))
}
