package orders

import (
	"errors"
	"fmt"
)

// ErrOrderNotFound indicates the order does not exist.
var ErrOrderNotFound = errors.New("orders: order not found")

// ErrInvalidTransition indicates a status update the state machine forbids.
var ErrInvalidTransition = errors.New("orders: invalid status transition")

// ErrAlreadyCancelled indicates a cancel for an order past the point of
// cancellation.
var ErrAlreadyCancelled = errors.New("orders: order cannot be cancelled")

// ItemError pinpoints the line item that made a placement fail. Unwrap exposes
// the underlying stock error so callers can match insufficient stock.
type ItemError struct {
	Index     int
	ProductID int64
	VariantID int64
	Err       error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("orders: item %d (product %d, variant %d): %v", e.Index, e.ProductID, e.VariantID, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}
