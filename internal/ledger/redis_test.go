package ledger

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// newTestRedis connects to the redis named by REDIS_ADDR, or skips the test
// when no instance is available.
func newTestRedis(t *testing.T) *Redis {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	r, err := NewRedis(ctx, addr, os.Getenv("REDIS_PASSWORD"), 15, "seckill:test:stock:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRedisTryDecrementStopsAtZero(t *testing.T) {
	r := newTestRedis(t)
	ctx := context.Background()
	require.NoError(t, r.SetStock(ctx, "p1", 2))

	for i := 0; i < 2; i++ {
		ok, err := r.TryDecrement(ctx, "p1")
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, err := r.TryDecrement(ctx, "p1")
	require.NoError(t, err)
	require.False(t, ok)

	n, err := r.Stock(ctx, "p1")
	require.NoError(t, err)
	require.EqualValues(t, 0, n)
}

func TestRedisTryDecrementMissingKey(t *testing.T) {
	r := newTestRedis(t)
	ctx := context.Background()
	ok, err := r.TryDecrement(ctx, "never-stocked")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisConcurrentDecrements(t *testing.T) {
	r := newTestRedis(t)
	ctx := context.Background()
	const stock, requests = 10, 50
	require.NoError(t, r.SetStock(ctx, "p-conc", stock))

	var granted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := r.TryDecrement(ctx, "p-conc")
			require.NoError(t, err)
			if ok {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, stock, granted.Load())
	n, err := r.Stock(ctx, "p-conc")
	require.NoError(t, err)
	require.EqualValues(t, 0, n)
}

func TestRedisIncrementRestores(t *testing.T) {
	r := newTestRedis(t)
	ctx := context.Background()
	require.NoError(t, r.SetStock(ctx, "p-restore", 0))
	require.NoError(t, r.Increment(ctx, "p-restore"))
	ok, err := r.TryDecrement(ctx, "p-restore")
	require.NoError(t, err)
	require.True(t, ok)
}
