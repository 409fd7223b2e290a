package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orderdesk/orderdesk/internal/ledger"
	"github.com/orderdesk/orderdesk/internal/platform/db"
	"github.com/orderdesk/orderdesk/internal/shared"
)

// Repository persists orders, lines and creation attempts in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create writes the order header and all lines in one transaction, so a
// header can never exist without its lines. The server-assigned number and
// generated ids are written back into the order.
func (r *Repository) Create(ctx context.Context, o *Order) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		number, err := nextNumber(ctx, tx, o.OrgID, o.CreatedAt)
		if err != nil {
			return fmt.Errorf("assign order number: %w", err)
		}
		o.Number = number

		err = tx.QueryRow(ctx,
			`INSERT INTO orders (org_id, client_id, worker_id, kind, number, total, outstanding_balance, payment_status, notes, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10) RETURNING id`,
			o.OrgID, o.ClientID, o.WorkerID, o.Kind, o.Number, o.Total, o.Outstanding, o.PaymentStatus, o.Notes, o.CreatedAt,
		).Scan(&o.ID)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		for i := range o.Lines {
			line := &o.Lines[i]
			line.OrderID = o.ID
			err = tx.QueryRow(ctx,
				`INSERT INTO order_lines (order_id, catalog_item_id, name, qty, unit_price, total, is_custom)
				 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
				line.OrderID, line.CatalogItemID, line.Name, line.Qty, line.UnitPrice, line.Total, line.IsCustom,
			).Scan(&line.ID)
			if err != nil {
				return fmt.Errorf("insert order line: %w", err)
			}
		}
		return nil
	})
}

// nextNumber draws the next value from the org's monthly counter row. The
// upsert locks the row for the rest of the creation transaction, so two
// concurrent creates in the same org serialize here instead of racing to the
// same number. Counters in different orgs are independent rows and never
// contend.
func nextNumber(ctx context.Context, tx pgx.Tx, orgID int64, at time.Time) (string, error) {
	period := at.Format("0601")
	var seq int64
	err := tx.QueryRow(ctx,
		`INSERT INTO order_counters (org_id, period, counter) VALUES ($1, $2, 1)
		 ON CONFLICT (org_id, period) DO UPDATE SET counter = order_counters.counter + 1
		 RETURNING counter`,
		orgID, period).Scan(&seq)
	if err != nil {
		return "", err
	}
	return orderNumber(period, seq), nil
}

// orderNumber formats ORD-YYMM-NNNN. Sequences past 9999 widen, they never wrap.
func orderNumber(period string, seq int64) string {
	return fmt.Sprintf("ORD-%s-%04d", period, seq)
}

// Get loads an order with its lines.
func (r *Repository) Get(ctx context.Context, id int64) (*Order, error) {
	var o Order
	err := r.pool.QueryRow(ctx,
		`SELECT id, org_id, client_id, worker_id, kind, number, total, outstanding_balance, payment_status, notes, created_at, updated_at
		   FROM orders WHERE id = $1`,
		id).Scan(&o.ID, &o.OrgID, &o.ClientID, &o.WorkerID, &o.Kind, &o.Number, &o.Total,
		&o.Outstanding, &o.PaymentStatus, &o.Notes, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, order_id, catalog_item_id, name, qty, unit_price, total, is_custom
		   FROM order_lines WHERE order_id = $1 ORDER BY id`,
		id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	o.Lines = make([]OrderLine, 0)
	for rows.Next() {
		var line OrderLine
		if err := rows.Scan(&line.ID, &line.OrderID, &line.CatalogItemID, &line.Name,
			&line.Qty, &line.UnitPrice, &line.Total, &line.IsCustom); err != nil {
			return nil, err
		}
		o.Lines = append(o.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &o, nil
}

// UpdatePaymentStatus overrides the order's payment status. Used only for
// the explicit cancelled override; normal status changes go through the ledger.
func (r *Repository) UpdatePaymentStatus(ctx context.Context, orderID int64, status ledger.PaymentStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE orders SET payment_status = $2, updated_at = NOW() WHERE id = $1`,
		orderID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Filters narrows an order listing. A non-empty Search overrides the date
// range; Status always applies.
type Filters struct {
	Status  ledger.PaymentStatus
	From    time.Time
	To      time.Time
	Search  string
	Page    int
	PerPage int
}

// List returns order summaries for the organization, newest first, along
// with the total row count for pagination.
func (r *Repository) List(ctx context.Context, orgID int64, f Filters) ([]Summary, int, error) {
	where := []string{"o.org_id = $1"}
	args := []any{orgID}

	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("o.payment_status = $%d", len(args)))
	}
	if search := strings.TrimSpace(f.Search); search != "" {
		args = append(args, "%"+search+"%")
		where = append(where, fmt.Sprintf("(o.number ILIKE $%d OR c.name ILIKE $%d)", len(args), len(args)))
	} else {
		if !f.From.IsZero() {
			args = append(args, f.From)
			where = append(where, fmt.Sprintf("o.created_at >= $%d", len(args)))
		}
		if !f.To.IsZero() {
			args = append(args, f.To)
			where = append(where, fmt.Sprintf("o.created_at <= $%d", len(args)))
		}
	}

	base := ` FROM orders o JOIN clients c ON c.id = o.client_id WHERE ` + strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+base, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page := shared.NewPagination(f.Page, f.PerPage, total)
	args = append(args, page.PerPage, page.Offset())
	query := `SELECT o.id, o.number, o.kind, o.client_id, c.name, o.total, o.outstanding_balance, o.payment_status, o.created_at` +
		base + fmt.Sprintf(` ORDER BY o.created_at DESC, o.id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	summaries := make([]Summary, 0)
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.ID, &s.Number, &s.Kind, &s.ClientID, &s.ClientName,
			&s.Total, &s.Outstanding, &s.PaymentStatus, &s.CreatedAt); err != nil {
			return nil, 0, err
		}
		s.DisplayTotal = shared.FormatAmount(s.Total)
		summaries = append(summaries, s)
	}
	return summaries, total, rows.Err()
}

// CreateAttempt writes a fresh attempt row before the first order write.
func (r *Repository) CreateAttempt(ctx context.Context, a *Attempt) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO order_attempts (org_id, key, order_id, stage, state, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NOW(), NOW()) RETURNING id`,
		a.OrgID, a.Key, a.OrderID, a.Stage, a.State).Scan(&a.ID)
}

// AdvanceAttempt records the last completed stage, attaching the order id
// once the header exists.
func (r *Repository) AdvanceAttempt(ctx context.Context, id int64, stage AttemptStage, orderID *int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE order_attempts SET stage = $2, order_id = COALESCE($3, order_id), updated_at = NOW() WHERE id = $1`,
		id, stage, orderID)
	return err
}

// FinishAttempt closes an attempt as completed or voided.
func (r *Repository) FinishAttempt(ctx context.Context, id int64, state AttemptState) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE order_attempts SET state = $2, updated_at = NOW() WHERE id = $1`,
		id, state)
	return err
}

// ListStaleAttempts returns pending attempts untouched since the cutoff.
// These are the runs that crashed mid-sequence without reporting back.
func (r *Repository) ListStaleAttempts(ctx context.Context, cutoff time.Time) ([]Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, org_id, key, order_id, stage, state, created_at, updated_at
		   FROM order_attempts WHERE state = $1 AND updated_at < $2 ORDER BY updated_at`,
		AttemptPending, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attempts := make([]Attempt, 0)
	for rows.Next() {
		var a Attempt
		if err := rows.Scan(&a.ID, &a.OrgID, &a.Key, &a.OrderID, &a.Stage, &a.State,
			&a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}
