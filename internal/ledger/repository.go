package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orderdesk/orderdesk/internal/shared"
)

// TxRepository exposes the ledger mutations available inside a payment
// transaction. The balance row is locked for the duration, so two concurrent
// payments against the same order serialize and the second one sees the
// updated outstanding amount.
type TxRepository interface {
	GetOrderForUpdate(ctx context.Context, orderID int64) (*OrderBalance, error)
	InsertPayment(ctx context.Context, p *Payment) (int64, error)
	UpdateOrderBalance(ctx context.Context, orderID int64, outstanding float64, status PaymentStatus) error
}

// Repository persists payments and order balances in PostgreSQL.
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

func (r *txRepo) GetOrderForUpdate(ctx context.Context, orderID int64) (*OrderBalance, error) {
	var b OrderBalance
	err := r.tx.QueryRow(ctx,
		`SELECT id, org_id, number, total, outstanding_balance, payment_status
		   FROM orders WHERE id = $1 FOR UPDATE`,
		orderID).Scan(&b.OrderID, &b.OrgID, &b.Number, &b.Total, &b.Outstanding, &b.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (r *txRepo) InsertPayment(ctx context.Context, p *Payment) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx,
		`INSERT INTO payments (order_id, number, amount, method, reference, recorded_by, state, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		p.OrderID, p.Number, p.Amount, p.Method, p.Reference, p.RecordedBy, p.State, p.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepo) UpdateOrderBalance(ctx context.Context, orderID int64, outstanding float64, status PaymentStatus) error {
	tag, err := r.tx.Exec(ctx,
		`UPDATE orders SET outstanding_balance = $2, payment_status = $3, updated_at = NOW() WHERE id = $1`,
		orderID, outstanding, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// GetOrderBalance reads the order balance row without locking it.
func (r *Repository) GetOrderBalance(ctx context.Context, orderID int64) (*OrderBalance, error) {
	var b OrderBalance
	err := r.pool.QueryRow(ctx,
		`SELECT id, org_id, number, total, outstanding_balance, payment_status FROM orders WHERE id = $1`,
		orderID).Scan(&b.OrderID, &b.OrgID, &b.Number, &b.Total, &b.Outstanding, &b.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

// GetPayment loads a single payment.
func (r *Repository) GetPayment(ctx context.Context, id int64) (*Payment, error) {
	var p Payment
	err := r.pool.QueryRow(ctx,
		`SELECT id, order_id, number, amount, method, reference, recorded_by, state, created_at
		   FROM payments WHERE id = $1`,
		id).Scan(&p.ID, &p.OrderID, &p.Number, &p.Amount, &p.Method, &p.Reference, &p.RecordedBy, &p.State, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// ListByOrder returns every payment for an order, newest first.
func (r *Repository) ListByOrder(ctx context.Context, orderID int64) ([]Payment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, order_id, number, amount, method, reference, recorded_by, state, created_at
		   FROM payments WHERE order_id = $1 ORDER BY created_at DESC, id DESC`,
		orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]Payment, 0)
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.OrderID, &p.Number, &p.Amount, &p.Method, &p.Reference,
			&p.RecordedBy, &p.State, &p.CreatedAt); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// MarkCancelled flips an active payment to cancelled. The order balance is
// not touched: historical totals stay as they were when the payment applied.
func (r *Repository) MarkCancelled(ctx context.Context, paymentID int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE payments SET state = $2 WHERE id = $1 AND state = $3`,
		paymentID, PaymentCancelled, PaymentActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentCancelled
	}
	return nil
}
