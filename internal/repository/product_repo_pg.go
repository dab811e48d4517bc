package repository

import (
	"context"

	"github.com/Domenick1991/esteticcore/internal/domain"
)

type PGProductRepository struct {
	db DBTX
}

func NewProductRepository(db DBTX) ProductRepository {
	return &PGProductRepository{db: db}
}

func (r *PGProductRepository) ListActive(ctx context.Context) ([]domain.Product, error) {
	rows, err := r.db.Query(ctx, `SELECT id, sku, name, stock, price, active, updated_at FROM products WHERE active ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Stock, &p.Price, &p.Active, &p.UpdatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (r *PGProductRepository) GetBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	row := r.db.QueryRow(ctx, `SELECT id, sku, name, stock, price, active, updated_at FROM products WHERE sku=$1`, sku)
	var p domain.Product
	if err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Stock, &p.Price, &p.Active, &p.UpdatedAt); err != nil {
		return nil, notFound(err, domain.ErrProductNotFound)
	}
	return &p, nil
}

func (r *PGProductRepository) DecrementStock(ctx context.Context, productID int64, qty int) error {
	res, err := r.db.Exec(ctx, `UPDATE products SET stock = stock - $2, updated_at = now() WHERE id=$1 AND stock >= $2`, productID, qty)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return domain.ErrInsufficientStock
	}
	return nil
}

var _ ProductRepository = (*PGProductRepository)(nil)
