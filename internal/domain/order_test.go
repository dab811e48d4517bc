package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewOrderItem_SnapshotsPrice(t *testing.T) {
	p := Product{ID: 3, SKU: "SERUM-30", Price: 8490, Stock: 10}

	item := NewOrderItem(42, p, 2)

	assert.Equal(t, int64(42), item.OrderID)
	assert.Equal(t, int64(3), item.ProductID)
	assert.Equal(t, int64(8490), item.PriceAt)
	assert.Equal(t, int64(16980), item.LineTotal)

	p.Price = 9990
	assert.Equal(t, int64(8490), item.PriceAt)
}

func TestSumLineTotals(t *testing.T) {
	items := []OrderItem{
		{Qty: 2, PriceAt: 8490, LineTotal: 16980},
		{Qty: 1, PriceAt: 5000, LineTotal: 5000},
	}
	assert.Equal(t, int64(21980), SumLineTotals(items))
	assert.Equal(t, int64(0), SumLineTotals(nil))
}

func TestProduct_HasStock(t *testing.T) {
	p := Product{Stock: 2}
	assert.True(t, p.HasStock(2))
	assert.False(t, p.HasStock(3))
	assert.False(t, p.HasStock(0))
}

func TestAvailabilitySlot_StartedBy(t *testing.T) {
	s := AvailabilitySlot{StartsAt: mustTime(t, "2026-03-01T10:00:00Z")}
	assert.False(t, s.StartedBy(mustTime(t, "2026-03-01T09:59:59Z")))
	assert.True(t, s.StartedBy(mustTime(t, "2026-03-01T10:00:00Z")))
}
