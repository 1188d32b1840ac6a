package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*AvailabilityCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewAvailabilityCache(client, time.Minute, nil), mr
}

func TestAvailabilityCacheRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	_, ok := cache.Get(ctx, 7)
	require.False(t, ok)

	want := Availability{ProductID: 3, VariantID: 7, Quantity: 12, Barcode: "100000000007"}
	cache.Set(ctx, want)

	got, ok := cache.Get(ctx, 7)
	require.True(t, ok)
	require.Equal(t, want, got)
}

func TestAvailabilityCacheInvalidate(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	cache.Set(ctx, Availability{ProductID: 3, VariantID: 7, Quantity: 12})
	cache.InvalidateAvailability(ctx, 7)

	_, ok := cache.Get(ctx, 7)
	require.False(t, ok)
}

func TestAvailabilityCacheExpires(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	cache.Set(ctx, Availability{ProductID: 3, VariantID: 7, Quantity: 12})
	mr.FastForward(2 * time.Minute)

	_, ok := cache.Get(ctx, 7)
	require.False(t, ok)
}
