// Package orders implements order intake and the fulfillment saga that
// decrements stock per line item with compensation on partial failure.
package orders

import "time"

// Status enumerates order states.
type Status string

const (
	// StatusPending is the state a successfully placed order starts in.
	StatusPending Status = "pending"
	// StatusCompleted marks payment/processing done.
	StatusCompleted Status = "completed"
	// StatusShipped marks the order handed to the carrier.
	StatusShipped Status = "shipped"
	// StatusCancelled is terminal; stock has been compensated back.
	StatusCancelled Status = "cancelled"
)

// Order is one customer order. Ref is allocated before the row exists and is
// stamped onto every stock movement of the fulfillment, which is what lets
// recovery find movements whose order never materialised.
type Order struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id,omitempty"`
	Ref           string    `json:"ref"`
	Barcode       string    `json:"barcode"`
	Status        Status    `json:"status"`
	CustomerName  string    `json:"customer_name"`
	CustomerPhone string    `json:"customer_phone,omitempty"`
	Note          string    `json:"note,omitempty"`
	TotalAmount   float64   `json:"total_amount"`
	Items         []Item    `json:"items,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Item is one order line with a price snapshot taken at placement time and
// the ledger entry id of its fulfillment decrement.
type Item struct {
	ID         int64   `json:"id"`
	OrderID    int64   `json:"order_id"`
	ProductID  int64   `json:"product_id"`
	VariantID  int64   `json:"variant_id"`
	Size       string  `json:"size"`
	Color      string  `json:"color"`
	Quantity   int64   `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	LineTotal  float64 `json:"line_total"`
	MovementID int64   `json:"movement_id"`
}

// ListFilter restricts order listings.
type ListFilter struct {
	Status Status
	Limit  int
	Offset int
}

// validNext maps each state to the states an explicit status update may reach.
// Cancellation is not here; it goes through Cancel so stock gets compensated.
var validNext = map[Status][]Status{
	StatusPending:   {StatusCompleted},
	StatusCompleted: {StatusShipped},
}

// statusesReaching returns the states from which an explicit status update
// may move into to. An empty result means to is not a reachable target.
func statusesReaching(to Status) []Status {
	var from []Status
	for state, nexts := range validNext {
		for _, next := range nexts {
			if next == to {
				from = append(from, state)
			}
		}
	}
	return from
}
