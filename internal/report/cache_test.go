package report

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute)
}

func TestCacheVersionInitialises(t *testing.T) {
	c := newTestCache(t)
	ver, err := c.Version(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), ver)
}

func TestCacheFetchJSONLoadsOnce(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	key, err := c.BuildKey(ctx, keyReport("2026-01-01", "2026-01-31")...)
	require.NoError(t, err)

	loads := 0
	loader := func(ctx context.Context) (interface{}, error) {
		loads++
		return &Report{Start: "2026-01-01", End: "2026-01-31"}, nil
	}

	var first, second Report
	require.NoError(t, c.FetchJSON(ctx, key, &first, loader))
	require.NoError(t, c.FetchJSON(ctx, key, &second, loader))
	require.Equal(t, 1, loads)
	require.Equal(t, first.Start, second.Start)
}

func TestCacheBumpChangesKeys(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	before, err := c.BuildKey(ctx, keyReport("2026-01-01", "2026-01-31")...)
	require.NoError(t, err)
	require.NoError(t, c.Bump(ctx))
	after, err := c.BuildKey(ctx, keyReport("2026-01-01", "2026-01-31")...)
	require.NoError(t, err)
	require.NotEqual(t, before, after)
}

func TestNilCachePassesThrough(t *testing.T) {
	var c *Cache
	ctx := context.Background()

	key, err := c.BuildKey(ctx, keyReport("2026-01-01", "2026-01-31")...)
	require.NoError(t, err)

	loads := 0
	loader := func(ctx context.Context) (interface{}, error) {
		loads++
		return &Report{Start: "2026-01-01"}, nil
	}
	var out Report
	require.NoError(t, c.FetchJSON(ctx, key, &out, loader))
	require.NoError(t, c.FetchJSON(ctx, key, &out, loader))
	require.Equal(t, 2, loads)
	require.NoError(t, c.Bump(ctx))
}
