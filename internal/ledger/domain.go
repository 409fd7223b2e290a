package ledger

import (
	"fmt"
	"time"

	"github.com/orderdesk/orderdesk/internal/platform/httpx"
)

// PaymentStatus is the derived settlement state of an order. Except for the
// explicit cancelled override it is a pure function of the outstanding
// balance, never stored independently of it.
type PaymentStatus string

const (
	StatusUnpaid        PaymentStatus = "unpaid"
	StatusPartiallyPaid PaymentStatus = "partially_paid"
	StatusPaid          PaymentStatus = "paid"
	StatusCancelled     PaymentStatus = "cancelled"
)

// PaymentState is the lifecycle state of a single ledger entry. Payments are
// append-only: never edited, never deleted, only logically cancelled.
type PaymentState string

const (
	PaymentActive    PaymentState = "active"
	PaymentCancelled PaymentState = "cancelled"
)

// Payment is one ledger entry against an order.
type Payment struct {
	ID         int64        `json:"id"`
	OrderID    int64        `json:"order_id"`
	Number     string       `json:"number"`
	Amount     float64      `json:"amount"`
	Method     string       `json:"method"`
	Reference  *string      `json:"reference,omitempty"`
	RecordedBy int64        `json:"recorded_by"`
	State      PaymentState `json:"state"`
	CreatedAt  time.Time    `json:"created_at"`
}

// OrderBalance is the ledger's view of an order row.
type OrderBalance struct {
	OrderID     int64
	OrgID       int64
	Number      string
	Total       float64
	Outstanding float64
	Status      PaymentStatus
}

// Receipt aggregates the active ledger entries for display. Cancelled
// payments are excluded from every total computed after cancellation.
type Receipt struct {
	OrderID     int64     `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	Total       float64   `json:"total"`
	PaidTotal   float64   `json:"paid_total"`
	Outstanding float64   `json:"outstanding"`
	Payments    []Payment `json:"payments"`
}

var (
	// ErrInvalidAmount rejects non-positive or non-finite amounts before any write.
	ErrInvalidAmount = fmt.Errorf("%w: payment amount must be a positive finite number", httpx.ErrValidation)
	// ErrExceedsBalance rejects amounts above the outstanding balance before any write.
	ErrExceedsBalance = fmt.Errorf("%w: payment exceeds outstanding balance", httpx.ErrUnprocessable)
	// ErrOrderCancelled rejects payments against a cancelled order.
	ErrOrderCancelled = fmt.Errorf("%w: order is cancelled", httpx.ErrConflict)
	// ErrPaymentCancelled rejects cancelling an already-cancelled payment.
	ErrPaymentCancelled = fmt.Errorf("%w: payment already cancelled", httpx.ErrConflict)
)

// balanceEpsilon absorbs float drift when comparing currency amounts.
const balanceEpsilon = 1e-6

// DeriveStatus computes the payment status from the balance. An order is
// unpaid only while nothing was ever recorded against it; a fully open
// balance with cancelled payments behind it counts as partially paid.
func DeriveStatus(total, outstanding float64, hasPayments bool) PaymentStatus {
	switch {
	case outstanding <= balanceEpsilon:
		return StatusPaid
	case !hasPayments && outstanding >= total-balanceEpsilon:
		return StatusUnpaid
	default:
		return StatusPartiallyPaid
	}
}
