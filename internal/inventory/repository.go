package inventory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orderdesk/orderdesk/internal/shared"
)

// TxRepository exposes the stock mutations available inside a reservation
// transaction.
type TxRepository interface {
	DecrementStock(ctx context.Context, itemID, qty int64) error
	IncrementStock(ctx context.Context, itemID, qty int64) error
}

// Repository persists stock levels in PostgreSQL. The conditional UPDATE is
// the authoritative out-of-stock check: the row serializes concurrent
// decrements, so stock can never go negative.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps the callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepo{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func (r *txRepo) DecrementStock(ctx context.Context, itemID, qty int64) error {
	tag, err := r.tx.Exec(ctx,
		`UPDATE catalog_items SET stock_qty = stock_qty - $2, updated_at = NOW() WHERE id = $1 AND kind = 'PRODUCT' AND stock_qty >= $2`,
		itemID, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// The conditional update matched nothing: either the item is missing,
	// untracked, or short on stock. Read back for the error detail.
	var kind string
	var available int64
	err = r.tx.QueryRow(ctx, `SELECT kind, stock_qty FROM catalog_items WHERE id = $1`, itemID).Scan(&kind, &available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return shared.ErrNotFound
		}
		return err
	}
	if kind != "PRODUCT" {
		return ErrItemNotTracked
	}
	return &OutOfStockError{ItemID: itemID, Requested: qty, Available: available}
}

func (r *txRepo) IncrementStock(ctx context.Context, itemID, qty int64) error {
	tag, err := r.tx.Exec(ctx,
		`UPDATE catalog_items SET stock_qty = stock_qty + $2, updated_at = NOW() WHERE id = $1 AND kind = 'PRODUCT'`,
		itemID, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
