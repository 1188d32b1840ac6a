// Package stock owns the movement ledger and the reconciliation engine. It is
// the only write path to a variant's quantity; every committed mutation pairs
// a conditional counter update with an append-only ledger entry.
package stock

import (
	"errors"
	"fmt"
	"time"
)

// MovementType enumerates supported stock movements.
type MovementType string

const (
	// MovementIn represents inbound stock (receiving).
	MovementIn MovementType = "in"
	// MovementOut represents outbound stock (sale, fulfillment).
	MovementOut MovementType = "out"
	// MovementAdjustment sets the counter to an absolute target.
	MovementAdjustment MovementType = "adjustment"
	// MovementReturn restores stock, including saga compensation.
	MovementReturn MovementType = "return"
	// MovementTransfer moves stock out toward another warehouse.
	MovementTransfer MovementType = "transfer"
)

// MovementRecord is one immutable ledger entry. Delta is the signed change
// actually applied, normalized across all movement types.
type MovementRecord struct {
	ID                int64        `json:"id"`
	ProductID         int64        `json:"product_id"`
	VariantID         int64        `json:"variant_id"`
	WarehouseID       int64        `json:"warehouse_id,omitempty"`
	Type              MovementType `json:"movement_type"`
	Delta             int64        `json:"delta"`
	PreviousQuantity  int64        `json:"previous_quantity"`
	ResultingQuantity int64        `json:"resulting_quantity"`
	ActorID           int64        `json:"actor_id,omitempty"`
	RefModule         string       `json:"ref_module,omitempty"`
	RefID             string       `json:"ref_id,omitempty"`
	ReversalOf        int64        `json:"reversal_of,omitempty"`
	Note              string       `json:"note,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
}

// MovementInput describes a requested movement. Magnitude carries the
// positive requested amount for delta movements; Target carries the absolute
// quantity for adjustments.
type MovementInput struct {
	ProductID   int64
	VariantID   int64
	WarehouseID int64
	Type        MovementType
	Magnitude   int64
	Target      int64
	ActorID     int64
	RefModule   string
	RefID       string
	ReversalOf  int64
	Note        string
}

// MovementFilter restricts ledger listings. Offset/Limit make the listing
// restartable.
type MovementFilter struct {
	ProductID int64
	VariantID int64
	Limit     int
	Offset    int
}

// Divergence describes a variant whose counter disagrees with its ledger sum.
type Divergence struct {
	ProductID int64 `json:"product_id"`
	VariantID int64 `json:"variant_id"`
	Expected  int64 `json:"expected"`
	Actual    int64 `json:"actual"`
}

// ErrVariantNotFound indicates the referenced variant does not exist.
var ErrVariantNotFound = errors.New("stock: variant not found")

// ErrInvalidQuantity indicates a non-positive magnitude or negative target.
var ErrInvalidQuantity = errors.New("stock: invalid quantity")

// ErrInsufficientStock is matched by InsufficientStockError via errors.Is.
var ErrInsufficientStock = errors.New("stock: insufficient stock")

// ErrVariantBlocked indicates the variant is frozen pending consistency repair.
var ErrVariantBlocked = errors.New("stock: variant blocked pending repair")

// ErrNotBlocked indicates a repair was requested for a healthy variant.
var ErrNotBlocked = errors.New("stock: variant is not blocked")

// InsufficientStockError carries the counts a client needs to adjust and retry.
type InsufficientStockError struct {
	Available int64
	Requested int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("stock: insufficient stock: available %d, requested %d", e.Available, e.Requested)
}

// Is makes errors.Is(err, ErrInsufficientStock) hold.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// ConsistencyError reports divergence between counter and ledger sum. It is
// fatal for the variant: writes stay blocked until an explicit repair.
type ConsistencyError struct {
	ProductID int64
	VariantID int64
	Expected  int64
	Actual    int64
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("stock: variant %d/%d diverged from ledger: expected %d, have %d",
		e.ProductID, e.VariantID, e.Expected, e.Actual)
}
