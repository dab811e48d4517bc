package repository

import (
	"context"
	"time"

	"github.com/Domenick1991/esteticcore/internal/domain"
)

const orderColumns = `id, customer_name, customer_email, status, total_amount, created_at, paid_at`

type PGOrderRepository struct {
	db DBTX
}

func NewOrderRepository(db DBTX) OrderRepository {
	return &PGOrderRepository{db: db}
}

func (r *PGOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	if order.Status == "" {
		order.Status = domain.OrderStatusPending
	}
	return r.db.QueryRow(ctx, `INSERT INTO orders (customer_name, customer_email, status, total_amount)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		order.CustomerName, order.CustomerEmail, order.Status, order.TotalAmount).
		Scan(&order.ID, &order.CreatedAt)
}

func (r *PGOrderRepository) Get(ctx context.Context, id int64) (*domain.Order, error) {
	return r.load(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id)
}

func (r *PGOrderRepository) GetForUpdate(ctx context.Context, id int64) (*domain.Order, error) {
	return r.load(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, id)
}

func (r *PGOrderRepository) load(ctx context.Context, query string, id int64) (*domain.Order, error) {
	var o domain.Order
	if err := r.db.QueryRow(ctx, query, id).
		Scan(&o.ID, &o.CustomerName, &o.CustomerEmail, &o.Status, &o.TotalAmount, &o.CreatedAt, &o.PaidAt); err != nil {
		return nil, notFound(err, domain.ErrOrderNotFound)
	}

	rows, err := r.db.Query(ctx, `
        SELECT i.id, i.order_id, i.product_id, p.sku, i.qty, i.price_at, i.line_total
        FROM order_items i
        JOIN products p ON p.id = i.product_id
        WHERE i.order_id = $1
        ORDER BY i.id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	o.Items = make([]domain.OrderItem, 0)
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.SKU, &it.Qty, &it.PriceAt, &it.LineTotal); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, it)
	}
	return &o, rows.Err()
}

func (r *PGOrderRepository) AddItem(ctx context.Context, item *domain.OrderItem) error {
	item.LineTotal = item.ComputeLineTotal()
	return r.db.QueryRow(ctx, `INSERT INTO order_items (order_id, product_id, qty, price_at, line_total)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`, item.OrderID, item.ProductID, item.Qty, item.PriceAt, item.LineTotal).
		Scan(&item.ID)
}

func (r *PGOrderRepository) UpdateItemQty(ctx context.Context, orderID, itemID int64, qty int) (*domain.OrderItem, error) {
	var it domain.OrderItem
	err := r.db.QueryRow(ctx, `UPDATE order_items SET qty=$3, line_total=$3 * price_at
		WHERE id=$2 AND order_id=$1
		RETURNING id, order_id, product_id, qty, price_at, line_total`, orderID, itemID, qty).
		Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Qty, &it.PriceAt, &it.LineTotal)
	if err != nil {
		return nil, notFound(err, domain.ErrOrderItemNotFound)
	}
	return &it, nil
}

func (r *PGOrderRepository) DeleteItem(ctx context.Context, orderID, itemID int64) error {
	res, err := r.db.Exec(ctx, `DELETE FROM order_items WHERE id=$2 AND order_id=$1`, orderID, itemID)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return domain.ErrOrderItemNotFound
	}
	return nil
}

func (r *PGOrderRepository) RecomputeTotal(ctx context.Context, orderID int64) (int64, error) {
	var total int64
	err := r.db.QueryRow(ctx, `
        UPDATE orders
        SET total_amount = COALESCE((SELECT SUM(line_total) FROM order_items WHERE order_id = $1), 0)
        WHERE id = $1
        RETURNING total_amount`, orderID).Scan(&total)
	if err != nil {
		return 0, notFound(err, domain.ErrOrderNotFound)
	}
	return total, nil
}

func (r *PGOrderRepository) MarkPaid(ctx context.Context, id int64, paidAt time.Time) error {
	res, err := r.db.Exec(ctx, `UPDATE orders SET status=$2, paid_at=$3 WHERE id=$1`, id, domain.OrderStatusPaid, paidAt)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

var _ OrderRepository = (*PGOrderRepository)(nil)
