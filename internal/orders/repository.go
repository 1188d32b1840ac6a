package orders

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-store/meridian/internal/stock"
)

// Repository persists orders in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateOrder inserts the order row and its items in one transaction and
// fills in the generated ids.
func (r *Repository) CreateOrder(ctx context.Context, o *Order) error {
	if r == nil {
		return errors.New("orders repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `INSERT INTO orders (user_id, ref, barcode, status, customer_name, customer_phone, note, total_amount, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW(),NOW())
RETURNING id, created_at, updated_at`,
		o.UserID, o.Ref, o.Barcode, string(o.Status), o.CustomerName, o.CustomerPhone, o.Note, o.TotalAmount).
		Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return err
	}
	for i := range o.Items {
		item := &o.Items[i]
		item.OrderID = o.ID
		err = tx.QueryRow(ctx, `INSERT INTO order_items (order_id, product_id, variant_id, size, color, quantity, unit_price, line_total, movement_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id`,
			o.ID, item.ProductID, item.VariantID, item.Size, item.Color, item.Quantity, item.UnitPrice, item.LineTotal, item.MovementID).
			Scan(&item.ID)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// GetOrder loads one order with its items.
func (r *Repository) GetOrder(ctx context.Context, id int64) (Order, error) {
	var o Order
	var status string
	err := r.pool.QueryRow(ctx, `SELECT id, COALESCE(user_id, 0), ref, barcode, status, customer_name, COALESCE(customer_phone,''), COALESCE(note,''), total_amount, created_at, updated_at
FROM orders WHERE id = $1`, id).
		Scan(&o.ID, &o.UserID, &o.Ref, &o.Barcode, &status, &o.CustomerName, &o.CustomerPhone, &o.Note, &o.TotalAmount, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	if err != nil {
		return Order{}, err
	}
	o.Status = Status(status)

	rows, err := r.pool.Query(ctx, `SELECT id, order_id, product_id, variant_id, size, color, quantity, unit_price, line_total, movement_id
FROM order_items WHERE order_id = $1 ORDER BY id`, id)
	if err != nil {
		return Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.VariantID, &item.Size, &item.Color, &item.Quantity, &item.UnitPrice, &item.LineTotal, &item.MovementID); err != nil {
			return Order{}, err
		}
		o.Items = append(o.Items, item)
	}
	return o, rows.Err()
}

// ListOrders returns a page of orders without items.
func (r *Repository) ListOrders(ctx context.Context, filter ListFilter) ([]Order, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT id, COALESCE(user_id, 0), ref, barcode, status, customer_name, COALESCE(customer_phone,''), COALESCE(note,''), total_amount, created_at, updated_at
FROM orders
WHERE ($1 = '' OR status = $1)
ORDER BY id DESC
LIMIT $2 OFFSET $3`, string(filter.Status), limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Order{}
	for rows.Next() {
		var o Order
		var status string
		if err := rows.Scan(&o.ID, &o.UserID, &o.Ref, &o.Barcode, &status, &o.CustomerName, &o.CustomerPhone, &o.Note, &o.TotalAmount, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		o.Status = Status(status)
		out = append(out, o)
	}
	return out, rows.Err()
}

// UpdateStatus flips the order into `to` only when its current status is one
// of `from`. The conditional write is the guard against double transitions.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, from []Status, to Status) error {
	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}
	tag, err := r.pool.Exec(ctx, `UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1 AND status = ANY($3)`,
		id, string(to), allowed)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrOrderNotFound
	}
	return ErrInvalidTransition
}

// ReversalExists reports whether a ledger entry already reverses movementID.
func (r *Repository) ReversalExists(ctx context.Context, movementID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM stock_movements WHERE reversal_of = $1)`, movementID).Scan(&exists)
	return exists, err
}

// OrphanedFulfillments finds outbound movements past the grace window and not
// yet reversed whose order either never got a row (placement crashed before
// the insert) or is cancelled (cancellation crashed before its returns).
func (r *Repository) OrphanedFulfillments(ctx context.Context, grace time.Duration) ([]stock.MovementRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT m.id, m.product_id, m.variant_id, m.delta, m.ref_id::text
FROM stock_movements m
LEFT JOIN orders o ON o.ref = m.ref_id
WHERE m.ref_module = 'ORDERS'
  AND m.movement_type = 'out'
  AND (o.id IS NULL OR o.status = 'cancelled')
  AND m.created_at < NOW() - $1::interval
  AND NOT EXISTS (SELECT 1 FROM stock_movements rev WHERE rev.reversal_of = m.id)
ORDER BY m.id`, grace.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var orphans []stock.MovementRecord
	for rows.Next() {
		var m stock.MovementRecord
		if err := rows.Scan(&m.ID, &m.ProductID, &m.VariantID, &m.Delta, &m.RefID); err != nil {
			return nil, err
		}
		m.Type = stock.MovementOut
		orphans = append(orphans, m)
	}
	return orphans, rows.Err()
}
