package stock

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type memVariant struct {
	productID int64
	variantID int64
	quantity  int64
	initial   int64
	blocked   bool
}

type memoryRepo struct {
	mu        sync.Mutex
	variants  map[string]*memVariant
	movements []MovementRecord
	nextID    int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{variants: make(map[string]*memVariant)}
}

func key(productID, variantID int64) string {
	return fmt.Sprintf("%d:%d", productID, variantID)
}

func (r *memoryRepo) addVariant(productID, variantID, quantity int64) {
	r.variants[key(productID, variantID)] = &memVariant{
		productID: productID,
		variantID: variantID,
		quantity:  quantity,
		initial:   quantity,
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := make(map[string]memVariant, len(r.variants))
	for k, v := range r.variants {
		snapshot[k] = *v
	}
	movementCount := len(r.movements)

	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		for k := range r.variants {
			prev := snapshot[k]
			*r.variants[k] = prev
		}
		r.movements = r.movements[:movementCount]
		return err
	}
	return nil
}

func (r *memoryRepo) ListMovements(ctx context.Context, filter MovementFilter) ([]MovementRecord, error) {
	var result []MovementRecord
	for _, m := range r.movements {
		if m.ProductID != filter.ProductID {
			continue
		}
		if filter.VariantID != 0 && m.VariantID != filter.VariantID {
			continue
		}
		result = append(result, m)
	}
	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return nil, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (r *memoryRepo) LedgerChecksums(ctx context.Context) ([]Checksum, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sums []Checksum
	for _, v := range r.variants {
		var ledgerSum int64
		for _, m := range r.movements {
			if m.ProductID == v.productID && m.VariantID == v.variantID {
				ledgerSum += m.Delta
			}
		}
		sums = append(sums, Checksum{
			ProductID:       v.productID,
			VariantID:       v.variantID,
			Quantity:        v.quantity,
			InitialQuantity: v.initial,
			Blocked:         v.blocked,
			LedgerSum:       ledgerSum,
		})
	}
	return sums, nil
}

func (r *memoryRepo) BlockVariant(ctx context.Context, productID, variantID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.variants[key(productID, variantID)]
	if !ok {
		return ErrVariantNotFound
	}
	v.blocked = true
	return nil
}

func (r *memoryRepo) RepairVariant(ctx context.Context, productID, variantID, quantity int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.variants[key(productID, variantID)]
	if !ok || !v.blocked {
		return ErrNotBlocked
	}
	v.quantity = quantity
	v.blocked = false
	return nil
}

func (tx *memoryTx) ApplyDelta(ctx context.Context, productID, variantID, delta int64) (DeltaResult, error) {
	v, ok := tx.repo.variants[key(productID, variantID)]
	if !ok {
		return DeltaResult{}, ErrVariantNotFound
	}
	if v.blocked {
		return DeltaResult{}, ErrVariantBlocked
	}
	if v.quantity+delta < 0 {
		return DeltaResult{}, &InsufficientStockError{Available: v.quantity, Requested: -delta}
	}
	prev := v.quantity
	v.quantity += delta
	return DeltaResult{Previous: prev, Resulting: v.quantity}, nil
}

func (tx *memoryTx) VariantForUpdate(ctx context.Context, productID, variantID int64) (VariantState, error) {
	v, ok := tx.repo.variants[key(productID, variantID)]
	if !ok {
		return VariantState{}, ErrVariantNotFound
	}
	return VariantState{Quantity: v.quantity, Blocked: v.blocked}, nil
}

func (tx *memoryTx) SetQuantity(ctx context.Context, productID, variantID, quantity int64) error {
	v, ok := tx.repo.variants[key(productID, variantID)]
	if !ok {
		return ErrVariantNotFound
	}
	v.quantity = quantity
	return nil
}

func (tx *memoryTx) InsertMovement(ctx context.Context, rec MovementRecord) (int64, error) {
	tx.repo.nextID++
	rec.ID = tx.repo.nextID
	tx.repo.movements = append(tx.repo.movements, rec)
	return rec.ID, nil
}

func (r *memoryRepo) quantity(t *testing.T, productID, variantID int64) int64 {
	t.Helper()
	v, ok := r.variants[key(productID, variantID)]
	require.True(t, ok)
	return v.quantity
}

func TestRoundTripChainsLedger(t *testing.T) {
	repo := newMemoryRepo()
	repo.addVariant(1, 10, 7)
	svc := NewService(repo, nil, nil, nil, nil)
	ctx := context.Background()

	in, err := svc.StockIn(ctx, MovementInput{ProductID: 1, VariantID: 10, Magnitude: 5})
	require.NoError(t, err)
	require.Equal(t, int64(5), in.Delta)
	require.Equal(t, int64(7), in.PreviousQuantity)
	require.Equal(t, int64(12), in.ResultingQuantity)

	out, err := svc.StockOut(ctx, MovementInput{ProductID: 1, VariantID: 10, Magnitude: 5})
	require.NoError(t, err)
	require.Equal(t, int64(-5), out.Delta)
	require.Equal(t, in.ResultingQuantity, out.PreviousQuantity)
	require.Equal(t, int64(7), out.ResultingQuantity)
	require.Equal(t, int64(7), repo.quantity(t, 1, 10))
}

func TestConcurrentOversellExactlyOneWinner(t *testing.T) {
	repo := newMemoryRepo()
	repo.addVariant(1, 10, 10)
	svc := NewService(repo, nil, nil, nil, nil)
	ctx := context.Background()

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.StockOut(ctx, MovementInput{ProductID: 1, VariantID: 10, Magnitude: 6})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var won, lost int
	for err := range errs {
		if err == nil {
			won++
		} else {
			require.ErrorIs(t, err, ErrInsufficientStock)
			lost++
		}
	}
	require.Equal(t, 1, won)
	require.Equal(t, 1, lost)
	require.Equal(t, int64(4), repo.quantity(t, 1, 10))
	require.Len(t, repo.movements, 1)
}

// serializingRepo aborts the first failures transactions the way PostgreSQL
// aborts the loser of a repeatable-read write conflict.
type serializingRepo struct {
	*memoryRepo
	failures int
}

func (r *serializingRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r.failures > 0 {
		r.failures--
		return &pgconn.PgError{Code: "40001", Message: "could not serialize access due to concurrent update"}
	}
	return r.memoryRepo.WithTx(ctx, fn)
}

func TestApplyMovementRetriesSerializationFailure(t *testing.T) {
	inner := newMemoryRepo()
	inner.addVariant(1, 10, 10)
	repo := &serializingRepo{memoryRepo: inner, failures: 2}
	svc := NewService(repo, nil, nil, nil, nil)

	rec, err := svc.StockOut(context.Background(), MovementInput{ProductID: 1, VariantID: 10, Magnitude: 6})
	require.NoError(t, err)
	require.Equal(t, int64(4), rec.ResultingQuantity)
	require.Equal(t, int64(4), inner.quantity(t, 1, 10))
	require.Len(t, inner.movements, 1)
}

func TestApplyMovementSerializationRetryBound(t *testing.T) {
	inner := newMemoryRepo()
	inner.addVariant(1, 10, 10)
	repo := &serializingRepo{memoryRepo: inner, failures: 10}
	svc := NewService(repo, nil, nil, nil, nil)

	_, err := svc.StockOut(context.Background(), MovementInput{ProductID: 1, VariantID: 10, Magnitude: 6})
	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	require.Equal(t, int64(10), inner.quantity(t, 1, 10))
	require.Empty(t, inner.movements)
	require.Equal(t, 10-movementTxAttempts, repo.failures)
}

func TestAdjustmentSetsTargetQuantity(t *testing.T) {
	repo := newMemoryRepo()
	repo.addVariant(1, 10, 30)
	svc := NewService(repo, nil, nil, nil, nil)

	rec, err := svc.StockAdjust(context.Background(), MovementInput{ProductID: 1, VariantID: 10, Target: 50})
	require.NoError(t, err)
	require.Equal(t, MovementAdjustment, rec.Type)
	require.Equal(t, int64(20), rec.Delta)
	require.Equal(t, int64(30), rec.PreviousQuantity)
	require.Equal(t, int64(50), rec.ResultingQuantity)
	require.Equal(t, int64(50), repo.quantity(t, 1, 10))
}

func TestAdjustmentToCurrentQuantityIsNoOp(t *testing.T) {
	repo := newMemoryRepo()
	repo.addVariant(1, 10, 30)
	svc := NewService(repo, nil, nil, nil, nil)

	rec, err := svc.StockAdjust(context.Background(), MovementInput{ProductID: 1, VariantID: 10, Target: 30})
	require.NoError(t, err)
	require.Zero(t, rec.Delta)
	require.Equal(t, int64(30), rec.PreviousQuantity)
	require.Equal(t, int64(30), rec.ResultingQuantity)
	require.Equal(t, int64(30), repo.quantity(t, 1, 10))

	// The zero-delta entry keeps the ledger sum unchanged.
	diverged, err := svc.VerifyLedger(context.Background())
	require.NoError(t, err)
	require.Empty(t, diverged)
}

func TestAdjustmentNegativeTargetRejected(t *testing.T) {
	repo := newMemoryRepo()
	repo.addVariant(1, 10, 5)
	svc := NewService(repo, nil, nil, nil, nil)

	_, err := svc.StockAdjust(context.Background(), MovementInput{ProductID: 1, VariantID: 10, Target: -1})
	require.ErrorIs(t, err, ErrInvalidQuantity)
	require.Empty(t, repo.movements)
}

func TestRejectedMovementWritesNoLedgerEntry(t *testing.T) {
	repo := newMemoryRepo()
	repo.addVariant(1, 10, 3)
	svc := NewService(repo, nil, nil, nil, nil)

	_, err := svc.StockOut(context.Background(), MovementInput{ProductID: 1, VariantID: 10, Magnitude: 4})
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Empty(t, repo.movements)
	require.Equal(t, int64(3), repo.quantity(t, 1, 10))
}

func TestLedgerInvariantAfterMixedSequence(t *testing.T) {
	repo := newMemoryRepo()
	repo.addVariant(1, 10, 4)
	svc := NewService(repo, nil, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.StockIn(ctx, MovementInput{ProductID: 1, VariantID: 10, Magnitude: 12})
	require.NoError(t, err)
	_, err = svc.StockOut(ctx, MovementInput{ProductID: 1, VariantID: 10, Magnitude: 9})
	require.NoError(t, err)
	_, err = svc.StockAdjust(ctx, MovementInput{ProductID: 1, VariantID: 10, Target: 20})
	require.NoError(t, err)
	_, err = svc.Return(ctx, MovementInput{ProductID: 1, VariantID: 10, Magnitude: 2})
	require.NoError(t, err)

	var sum int64
	for _, m := range repo.movements {
		sum += m.Delta
	}
	require.Equal(t, repo.quantity(t, 1, 10), int64(4)+sum)
}

func TestUnknownVariant(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil)

	_, err := svc.StockIn(context.Background(), MovementInput{ProductID: 1, VariantID: 99, Magnitude: 1})
	require.ErrorIs(t, err, ErrVariantNotFound)
}

func TestVerifyLedgerBlocksDivergedVariant(t *testing.T) {
	repo := newMemoryRepo()
	repo.addVariant(1, 10, 10)
	svc := NewService(repo, nil, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.StockOut(ctx, MovementInput{ProductID: 1, VariantID: 10, Magnitude: 4})
	require.NoError(t, err)

	// Corrupt the counter behind the engine's back.
	repo.variants[key(1, 10)].quantity = 9

	diverged, err := svc.VerifyLedger(ctx)
	require.NoError(t, err)
	require.Len(t, diverged, 1)
	require.Equal(t, int64(6), diverged[0].Expected)
	require.Equal(t, int64(9), diverged[0].Actual)

	_, err = svc.StockIn(ctx, MovementInput{ProductID: 1, VariantID: 10, Magnitude: 1})
	require.ErrorIs(t, err, ErrVariantBlocked)

	quantity, err := svc.Repair(ctx, 1, 10, 42)
	require.NoError(t, err)
	require.Equal(t, int64(6), quantity)
	require.Equal(t, int64(6), repo.quantity(t, 1, 10))

	// Writes flow again once repaired.
	_, err = svc.StockIn(ctx, MovementInput{ProductID: 1, VariantID: 10, Magnitude: 1})
	require.NoError(t, err)
}

func TestRepairHealthyVariantRejected(t *testing.T) {
	repo := newMemoryRepo()
	repo.addVariant(1, 10, 5)
	svc := NewService(repo, nil, nil, nil, nil)

	_, err := svc.Repair(context.Background(), 1, 10, 42)
	require.ErrorIs(t, err, ErrNotBlocked)
}
