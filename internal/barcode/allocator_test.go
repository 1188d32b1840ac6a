package barcode

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-store/meridian/internal/shared"
)

type memoryStore struct {
	mu    sync.Mutex
	codes map[string]Kind
}

func newMemoryStore() *memoryStore {
	return &memoryStore{codes: make(map[string]Kind)}
}

func (s *memoryStore) Insert(ctx context.Context, code string, kind Kind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codes[code]; ok {
		return fmt.Errorf("barcode %s: %w", code, shared.ErrConflict)
	}
	s.codes[code] = kind
	return nil
}

type alwaysConflictStore struct{}

func (alwaysConflictStore) Insert(ctx context.Context, code string, kind Kind) error {
	return shared.ErrConflict
}

func TestAllocateUnderLoad(t *testing.T) {
	store := newMemoryStore()
	alloc := NewAllocator(store, nil, nil, 5)
	ctx := context.Background()

	const n = 1000
	type result struct {
		code string
		err  error
	}
	results := make(chan result, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			code, err := alloc.Allocate(ctx, KindVariant)
			results <- result{code: code, err: err}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[string]bool, n)
	for res := range results {
		require.NoError(t, res.err)
		require.Len(t, res.code, 12)
		require.False(t, seen[res.code], "duplicate code %s", res.code)
		seen[res.code] = true
	}
	require.Len(t, seen, n)
}

func TestAllocateRetryBound(t *testing.T) {
	alloc := NewAllocator(alwaysConflictStore{}, nil, nil, 5)

	_, err := alloc.Allocate(context.Background(), KindOrder)
	require.ErrorIs(t, err, ErrAllocationFailed)
}

func TestAllocateSKUFormat(t *testing.T) {
	store := newMemoryStore()
	alloc := NewAllocator(store, nil, nil, 5)

	sku, err := alloc.Allocate(context.Background(), KindSKU)
	require.NoError(t, err)
	require.Regexp(t, `^PROD-[A-Z0-9]{6}$`, sku)
}
