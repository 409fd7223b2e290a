package inventory

import (
	"errors"
	"fmt"

	"github.com/orderdesk/orderdesk/internal/platform/httpx"
)

// ReservationLine is one catalog-backed order line to reserve stock for.
type ReservationLine struct {
	ItemID int64
	Qty    int64
}

// ErrInvalidQuantity indicates a non-positive reservation quantity.
var ErrInvalidQuantity = errors.New("inventory: quantity must be positive")

// ErrItemNotTracked indicates a decrement against a service item.
var ErrItemNotTracked = errors.New("inventory: item does not carry stock")

// OutOfStockError reports the first line whose decrement would drive stock
// below zero. The whole reservation is rolled back when it is returned.
type OutOfStockError struct {
	ItemID    int64
	Requested int64
	Available int64
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("out of stock: item %d has %d, requested %d", e.ItemID, e.Available, e.Requested)
}

// Unwrap maps the error to a conflict response.
func (e *OutOfStockError) Unwrap() error {
	return httpx.ErrConflict
}
