package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orderdesk/orderdesk/internal/shared"
)

// Repository provides PostgreSQL backed read access to catalog items.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const itemColumns = `id, org_id, name, kind, unit_price, stock_qty, reorder_point, created_at, updated_at`

// List returns all orderable items for the organization.
func (r *Repository) List(ctx context.Context, orgID int64) ([]CatalogItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM catalog_items WHERE org_id = $1 ORDER BY name`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CatalogItem
	for rows.Next() {
		var item CatalogItem
		if err := rows.Scan(&item.ID, &item.OrgID, &item.Name, &item.Kind, &item.UnitPrice, &item.StockQty, &item.ReorderPoint, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Get returns a single catalog item.
func (r *Repository) Get(ctx context.Context, id int64) (*CatalogItem, error) {
	var item CatalogItem
	err := r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM catalog_items WHERE id = $1`, id).
		Scan(&item.ID, &item.OrgID, &item.Name, &item.Kind, &item.UnitPrice, &item.StockQty, &item.ReorderPoint, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}
