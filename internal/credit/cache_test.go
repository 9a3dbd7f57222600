package credit

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute)
}

func TestCacheFetchPopulatesOnce(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	calls := 0
	loader := func(ctx context.Context) (Summary, error) {
		calls++
		return Summary{
			FornecedoraID: 5,
			Pending:       decimal.RequireFromString("12.34"),
			Released:      decimal.Zero,
			Used:          decimal.Zero,
			Paid:          decimal.Zero,
			Count:         1,
		}, nil
	}

	first, err := cache.Fetch(ctx, 5, loader)
	require.NoError(t, err)
	second, err := cache.Fetch(ctx, 5, loader)
	require.NoError(t, err)

	require.Equal(t, 1, calls, "second fetch must hit the cache")
	require.True(t, first.Pending.Equal(second.Pending))
	require.Equal(t, first.Count, second.Count)
}

func TestCacheInvalidateForcesReload(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	calls := 0
	loader := func(ctx context.Context) (Summary, error) {
		calls++
		return Summary{FornecedoraID: 2, Count: calls}, nil
	}

	_, err := cache.Fetch(ctx, 2, loader)
	require.NoError(t, err)
	require.NoError(t, cache.Invalidate(ctx, 2))

	sum, err := cache.Fetch(ctx, 2, loader)
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.Equal(t, 2, sum.Count)
}

func TestCacheLoaderErrorIsNotCached(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	boom := errors.New("ledger scan failed")
	_, err := cache.Fetch(ctx, 3, func(ctx context.Context) (Summary, error) {
		return Summary{}, boom
	})
	require.ErrorIs(t, err, boom)

	sum, err := cache.Fetch(ctx, 3, func(ctx context.Context) (Summary, error) {
		return Summary{FornecedoraID: 3, Count: 4}, nil
	})
	require.NoError(t, err)
	require.Equal(t, 4, sum.Count)
}
