package stock

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-store/meridian/internal/platform/db"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListMovements(ctx context.Context, filter MovementFilter) ([]MovementRecord, error)
	LedgerChecksums(ctx context.Context) ([]Checksum, error)
	BlockVariant(ctx context.Context, productID, variantID int64) error
	RepairVariant(ctx context.Context, productID, variantID, quantity int64) error
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	// ApplyDelta performs the conditional counter update in a single
	// statement: the non-negativity check and the write are indivisible.
	ApplyDelta(ctx context.Context, productID, variantID, delta int64) (DeltaResult, error)
	// VariantForUpdate locks the variant row for the adjustment path, which
	// needs the previous value to compute the delta.
	VariantForUpdate(ctx context.Context, productID, variantID int64) (VariantState, error)
	SetQuantity(ctx context.Context, productID, variantID, quantity int64) error
	InsertMovement(ctx context.Context, rec MovementRecord) (int64, error)
}

// DeltaResult reports the counter values around a committed delta.
type DeltaResult struct {
	Previous  int64
	Resulting int64
}

// VariantState is the locked snapshot read for adjustments.
type VariantState struct {
	Quantity int64
	Blocked  bool
}

// Checksum pairs a variant's counter with its ledger-derived expectation.
type Checksum struct {
	ProductID       int64
	VariantID       int64
	Quantity        int64
	InitialQuantity int64
	Blocked         bool
	LedgerSum       int64
}

// Repository persists stock data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("stock repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *txRepository) ApplyDelta(ctx context.Context, productID, variantID, delta int64) (DeltaResult, error) {
	var resulting int64
	err := r.tx.QueryRow(ctx, `UPDATE product_variants
SET quantity = quantity + $3, updated_at = NOW()
WHERE product_id = $1 AND id = $2 AND quantity + $3 >= 0 AND NOT stock_blocked
RETURNING quantity`, productID, variantID, delta).Scan(&resulting)
	if err == nil {
		return DeltaResult{Previous: resulting - delta, Resulting: resulting}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return DeltaResult{}, err
	}
	// The guarded update matched nothing; classify without mutating.
	var available int64
	var blocked bool
	err = r.tx.QueryRow(ctx, `SELECT quantity, stock_blocked FROM product_variants WHERE product_id = $1 AND id = $2`,
		productID, variantID).Scan(&available, &blocked)
	if errors.Is(err, pgx.ErrNoRows) {
		return DeltaResult{}, ErrVariantNotFound
	}
	if err != nil {
		return DeltaResult{}, err
	}
	if blocked {
		return DeltaResult{}, ErrVariantBlocked
	}
	return DeltaResult{}, &InsufficientStockError{Available: available, Requested: -delta}
}

func (r *txRepository) VariantForUpdate(ctx context.Context, productID, variantID int64) (VariantState, error) {
	var state VariantState
	err := r.tx.QueryRow(ctx, `SELECT quantity, stock_blocked FROM product_variants WHERE product_id = $1 AND id = $2 FOR UPDATE`,
		productID, variantID).Scan(&state.Quantity, &state.Blocked)
	if errors.Is(err, pgx.ErrNoRows) {
		return VariantState{}, ErrVariantNotFound
	}
	if err != nil {
		return VariantState{}, err
	}
	return state, nil
}

func (r *txRepository) SetQuantity(ctx context.Context, productID, variantID, quantity int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE product_variants SET quantity = $3, updated_at = NOW() WHERE product_id = $1 AND id = $2`,
		productID, variantID, quantity)
	return err
}

func (r *txRepository) InsertMovement(ctx context.Context, rec MovementRecord) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movements
(product_id, variant_id, warehouse_id, movement_type, delta, previous_quantity, resulting_quantity, actor_id, ref_module, ref_id, reversal_of, note, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13) RETURNING id`,
		rec.ProductID, rec.VariantID, nullInt(rec.WarehouseID), string(rec.Type), rec.Delta,
		rec.PreviousQuantity, rec.ResultingQuantity, nullInt(rec.ActorID), rec.RefModule,
		nullStr(rec.RefID), nullInt(rec.ReversalOf), rec.Note, rec.CreatedAt).Scan(&id)
	return id, err
}

// ListMovements returns ledger entries in insertion order.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]MovementRecord, error) {
	if r == nil {
		return nil, errors.New("stock repository not initialised")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, variant_id, COALESCE(warehouse_id, 0), movement_type, delta,
previous_quantity, resulting_quantity, COALESCE(actor_id, 0), ref_module, COALESCE(ref_id::text, ''), COALESCE(reversal_of, 0), note, created_at
FROM stock_movements
WHERE product_id = $1 AND ($2 = 0 OR variant_id = $2)
ORDER BY id ASC
LIMIT $3 OFFSET $4`, filter.ProductID, filter.VariantID, limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	records := []MovementRecord{}
	for rows.Next() {
		var rec MovementRecord
		var movementType string
		if err := rows.Scan(&rec.ID, &rec.ProductID, &rec.VariantID, &rec.WarehouseID, &movementType, &rec.Delta,
			&rec.PreviousQuantity, &rec.ResultingQuantity, &rec.ActorID, &rec.RefModule, &rec.RefID, &rec.ReversalOf, &rec.Note, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Type = MovementType(movementType)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// LedgerChecksums joins every variant against the sum of its ledger deltas.
func (r *Repository) LedgerChecksums(ctx context.Context) ([]Checksum, error) {
	rows, err := r.pool.Query(ctx, `SELECT v.product_id, v.id, v.quantity, v.initial_quantity, v.stock_blocked, COALESCE(SUM(m.delta), 0)
FROM product_variants v
LEFT JOIN stock_movements m ON m.variant_id = v.id AND m.product_id = v.product_id
GROUP BY v.product_id, v.id, v.quantity, v.initial_quantity, v.stock_blocked
ORDER BY v.product_id, v.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sums []Checksum
	for rows.Next() {
		var c Checksum
		if err := rows.Scan(&c.ProductID, &c.VariantID, &c.Quantity, &c.InitialQuantity, &c.Blocked, &c.LedgerSum); err != nil {
			return nil, err
		}
		sums = append(sums, c)
	}
	return sums, rows.Err()
}

// BlockVariant freezes further writes to the variant.
func (r *Repository) BlockVariant(ctx context.Context, productID, variantID int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE product_variants SET stock_blocked = TRUE, updated_at = NOW() WHERE product_id = $1 AND id = $2`,
		productID, variantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVariantNotFound
	}
	return nil
}

// RepairVariant restores the counter to the ledger-derived value and unblocks
// the variant. Only called by the explicit repair operation.
func (r *Repository) RepairVariant(ctx context.Context, productID, variantID, quantity int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE product_variants SET quantity = $3, stock_blocked = FALSE, updated_at = NOW()
WHERE product_id = $1 AND id = $2 AND stock_blocked`, productID, variantID, quantity)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotBlocked
	}
	return nil
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullStr(value string) any {
	if value == "" {
		return nil
	}
	return value
}
