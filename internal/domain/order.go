package domain

import "time"

type OrderStatus string

const (
	OrderStatusPending OrderStatus = "pending"
	OrderStatusPaid    OrderStatus = "paid"
)

type Order struct {
	ID            int64
	CustomerName  string
	CustomerEmail string
	Status        OrderStatus
	TotalAmount   int64
	CreatedAt     time.Time
	PaidAt        *time.Time
	Items         []OrderItem
}

// OrderItem snapshots the product price at purchase time.
type OrderItem struct {
	ID        int64
	OrderID   int64
	ProductID int64
	SKU       string
	Qty       int
	PriceAt   int64
	LineTotal int64
}

func NewOrderItem(orderID int64, p Product, qty int) OrderItem {
	item := OrderItem{
		OrderID:   orderID,
		ProductID: p.ID,
		SKU:       p.SKU,
		Qty:       qty,
		PriceAt:   p.Price,
	}
	item.LineTotal = item.ComputeLineTotal()
	return item
}

func (i OrderItem) ComputeLineTotal() int64 {
	return int64(i.Qty) * i.PriceAt
}

// SumLineTotals is the value Order.TotalAmount must always hold.
func SumLineTotals(items []OrderItem) int64 {
	var total int64
	for _, it := range items {
		total += it.LineTotal
	}
	return total
}

func (o *Order) Finalized() bool {
	return o.Status == OrderStatusPaid
}
