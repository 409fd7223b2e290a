package orders

import (
	"fmt"
	"time"

	"github.com/orderdesk/orderdesk/internal/ledger"
)

// Kind distinguishes service orders from goods orders. Both share the same
// invariants; service orders additionally carry an assigned worker.
type Kind string

const (
	KindService Kind = "SERVICE"
	KindSales   Kind = "SALES"
)

// OrderLine is one priced entry within an order. Lines are immutable once
// the order is created; only the assembler produces them.
type OrderLine struct {
	ID            int64   `json:"id"`
	OrderID       int64   `json:"order_id"`
	CatalogItemID *int64  `json:"catalog_item_id,omitempty"`
	Name          string  `json:"name"`
	Qty           int64   `json:"qty"`
	UnitPrice     float64 `json:"unit_price"`
	Total         float64 `json:"total"`
	IsCustom      bool    `json:"is_custom"`
}

// Order is the order header plus its lines. Total and the lines are fixed at
// creation; only the balance columns mutate afterwards, and only through the
// payment ledger.
type Order struct {
	ID            int64                `json:"id"`
	OrgID         int64                `json:"org_id"`
	ClientID      int64                `json:"client_id"`
	WorkerID      *int64               `json:"worker_id,omitempty"`
	Kind          Kind                 `json:"kind"`
	Number        string               `json:"number"`
	Lines         []OrderLine          `json:"lines"`
	Total         float64              `json:"total"`
	Outstanding   float64              `json:"outstanding_balance"`
	PaymentStatus ledger.PaymentStatus `json:"payment_status"`
	Notes         *string              `json:"notes,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

// Summary is the listing projection of an order.
type Summary struct {
	ID            int64                `json:"id"`
	Number        string               `json:"number"`
	Kind          Kind                 `json:"kind"`
	ClientID      int64                `json:"client_id"`
	ClientName    string               `json:"client_name"`
	Total         float64              `json:"total"`
	DisplayTotal  string               `json:"display_total"`
	Outstanding   float64              `json:"outstanding_balance"`
	PaymentStatus ledger.PaymentStatus `json:"payment_status"`
	CreatedAt     time.Time            `json:"created_at"`
}

// AttemptStage is the last stage an order-creation attempt completed. The
// attempt row is written before the first order write and advanced after
// every committed step, so a crash always leaves an inspectable trail.
type AttemptStage string

const (
	StageStarted          AttemptStage = "STARTED"
	StageItemsPersisted   AttemptStage = "ITEMS_PERSISTED"
	StageInventoryApplied AttemptStage = "INVENTORY_APPLIED"
	StagePaymentRecorded  AttemptStage = "PAYMENT_RECORDED"
)

// AttemptState is the lifecycle of an attempt row.
type AttemptState string

const (
	AttemptPending   AttemptState = "pending"
	AttemptCompleted AttemptState = "completed"
	AttemptVoided    AttemptState = "voided"
)

// Attempt is the persisted record of one order-creation run.
type Attempt struct {
	ID        int64
	OrgID     int64
	Key       string
	OrderID   *int64
	Stage     AttemptStage
	State     AttemptState
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StageError wraps a failure with the stage it interrupted, so callers can
// tell a clean rejection from a partially-created order.
type StageError struct {
	Stage   AttemptStage
	OrderID int64
	Err     error
}

func (e *StageError) Error() string {
	if e.OrderID != 0 {
		return fmt.Sprintf("order %d: stage %s: %v", e.OrderID, e.Stage, e.Err)
	}
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
