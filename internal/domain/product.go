package domain

import "time"

type Product struct {
	ID        int64
	SKU       string
	Name      string
	Stock     int
	Price     int64
	Active    bool
	UpdatedAt time.Time
}

// HasStock reports whether qty units can be taken from the current stock.
func (p Product) HasStock(qty int) bool {
	return qty > 0 && p.Stock >= qty
}
