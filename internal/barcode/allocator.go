// Package barcode issues collision-free codes for variants and orders and
// drives the external image renderer.
package barcode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-store/meridian/internal/shared"
)

// Kind selects the code namespace and format.
type Kind string

const (
	// KindVariant is a 12-digit numeric variant barcode.
	KindVariant Kind = "variant"
	// KindOrder is a 12-digit numeric order barcode.
	KindOrder Kind = "order"
	// KindSKU is a PROD-XXXXXX product SKU.
	KindSKU Kind = "sku"
)

// ErrAllocationFailed indicates the retry bound was exhausted.
var ErrAllocationFailed = errors.New("barcode: allocation failed")

// Store persists allocated codes under a unique index. Insert returns
// shared.ErrConflict when the code is already taken; that rejection is the
// collision signal, there is no existence pre-check.
type Store interface {
	Insert(ctx context.Context, code string, kind Kind) error
}

// RenderEnqueuer schedules rendering of a scannable image for a code.
type RenderEnqueuer interface {
	EnqueueRender(ctx context.Context, code string) error
}

// Allocator issues globally unique codes.
type Allocator struct {
	store    Store
	renders  RenderEnqueuer
	logger   *slog.Logger
	attempts int
}

// NewAllocator constructs an Allocator. renders may be nil when image
// rendering is not wired (tests, worker-side allocation).
func NewAllocator(store Store, renders RenderEnqueuer, logger *slog.Logger, attempts int) *Allocator {
	if attempts <= 0 {
		attempts = 5
	}
	return &Allocator{store: store, renders: renders, logger: logger, attempts: attempts}
}

// Allocate generates a candidate, inserts it, and retries on conflict up to
// the configured bound.
func (a *Allocator) Allocate(ctx context.Context, kind Kind) (string, error) {
	for i := 0; i < a.attempts; i++ {
		code := candidate(kind)
		err := a.store.Insert(ctx, code, kind)
		if err == nil {
			if a.renders != nil && kind != KindSKU {
				if err := a.renders.EnqueueRender(ctx, code); err != nil && a.logger != nil {
					a.logger.Warn("enqueue barcode render", slog.String("code", code), slog.Any("error", err))
				}
			}
			return code, nil
		}
		if errors.Is(err, shared.ErrConflict) {
			continue
		}
		return "", err
	}
	return "", fmt.Errorf("%w: %s after %d attempts", ErrAllocationFailed, kind, a.attempts)
}

const skuCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func candidate(kind Kind) string {
	if kind == KindSKU {
		buf := make([]byte, 6)
		for i := range buf {
			buf[i] = skuCharset[rand.Intn(len(skuCharset))]
		}
		return "PROD-" + string(buf)
	}
	// 12-digit numeric, first digit never zero.
	return fmt.Sprintf("%012d", 100000000000+rand.Int63n(900000000000))
}

// PGStore persists codes in the barcodes table.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs PGStore.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Insert writes the code, translating the unique-index rejection into
// shared.ErrConflict.
func (s *PGStore) Insert(ctx context.Context, code string, kind Kind) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO barcodes (code, kind, created_at) VALUES ($1, $2, NOW())`, code, string(kind))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("barcode %s: %w", code, shared.ErrConflict)
		}
		return err
	}
	return nil
}
