package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type item struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, "a", []byte("1"), time.Minute))
	b, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("1"), b)

	now = now.Add(2 * time.Minute)
	_, ok, err = s.Get(ctx, "a")
	require.NoError(t, err)
	require.False(t, ok)
	require.Zero(t, s.Len())
}

func TestMemoryStore_DeletePrefix(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, k := range []string{"servicelog:stats:7", "servicelog:stats:30", "patient:doc:1234567"} {
		require.NoError(t, s.Set(ctx, k, []byte("x"), time.Minute))
	}
	require.NoError(t, s.DeletePrefix(ctx, "servicelog:"))
	require.Equal(t, 1, s.Len())

	require.NoError(t, s.Delete(ctx, "patient:doc:1234567", "missing"))
	require.Zero(t, s.Len())
}

func TestMemoryStore_Purge(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, "short", []byte("x"), time.Second))
	require.NoError(t, s.Set(ctx, "long", []byte("x"), time.Hour))
	now = now.Add(time.Minute)
	require.Equal(t, 1, s.Purge())
	require.Equal(t, 1, s.Len())
}

func TestFetch_CacheAside(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryStore(), time.Minute, zerolog.Nop())

	calls := 0
	load := func(context.Context) (item, error) {
		calls++
		return item{Name: "stats", Count: calls}, nil
	}

	v, err := Fetch(ctx, c, "k", load)
	require.NoError(t, err)
	require.Equal(t, item{Name: "stats", Count: 1}, v)

	v, err = Fetch(ctx, c, "k", load)
	require.NoError(t, err)
	require.Equal(t, 1, v.Count)
	require.Equal(t, 1, calls)

	c.Invalidate(ctx, "k")
	v, err = Fetch(ctx, c, "k", load)
	require.NoError(t, err)
	require.Equal(t, 2, v.Count)

	st := c.Stats()
	require.True(t, st.Enabled)
	require.EqualValues(t, 1, st.Hits)
	require.EqualValues(t, 2, st.Misses)
	require.InDelta(t, 1.0/3.0, st.HitRate, 1e-9)
}

func TestFetch_InvalidationDuringLoadNotCached(t *testing.T) {
	ctx := context.Background()
	c := New(NewMemoryStore(), time.Minute, zerolog.Nop())

	calls := 0
	load := func(ctx context.Context) (item, error) {
		calls++
		v := item{Name: "patient", Count: calls}
		if calls == 1 {
			// A write commits and invalidates after this loader read the row.
			c.Invalidate(ctx, "k")
		}
		return v, nil
	}

	v, err := Fetch(ctx, c, "k", load)
	require.NoError(t, err)
	require.Equal(t, 1, v.Count)

	v, err = Fetch(ctx, c, "k", load)
	require.NoError(t, err)
	require.Equal(t, 2, v.Count, "stale load must not be served from cache")

	v, err = Fetch(ctx, c, "k", load)
	require.NoError(t, err)
	require.Equal(t, 2, v.Count)
}

func TestFetch_LoaderErrorNotCached(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	c := New(store, time.Minute, zerolog.Nop())
	boom := errors.New("boom")

	_, err := Fetch(ctx, c, "k", func(context.Context) (item, error) { return item{}, boom })
	require.ErrorIs(t, err, boom)
	require.Zero(t, store.Len())
}

func TestFetch_NilCacheCallsLoader(t *testing.T) {
	var c *Cache
	calls := 0
	for i := 0; i < 3; i++ {
		_, err := Fetch(context.Background(), c, "k", func(context.Context) (int, error) {
			calls++
			return calls, nil
		})
		require.NoError(t, err)
	}
	require.Equal(t, 3, calls)
	require.Equal(t, Stats{}, c.Stats())
	c.Invalidate(context.Background(), "k")
	c.InvalidatePrefix(context.Background(), "k")
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("connection refused")
}

func (failingStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}

func (failingStore) Delete(context.Context, ...string) error { return nil }

func (failingStore) DeletePrefix(context.Context, string) error { return nil }

func TestFetch_StoreFailureFallsBackToLoader(t *testing.T) {
	c := New(failingStore{}, time.Minute, zerolog.Nop())
	v, err := Fetch(context.Background(), c, "k", func(context.Context) (string, error) { return "fresh", nil })
	require.NoError(t, err)
	require.Equal(t, "fresh", v)
	require.EqualValues(t, 2, c.Stats().Errors)
}

func TestFetch_OnLookup(t *testing.T) {
	c := New(NewMemoryStore(), 0, zerolog.Nop())
	require.Equal(t, DefaultTTL, c.TTL())

	var hits, misses int
	c.OnLookup(func(hit bool) {
		if hit {
			hits++
		} else {
			misses++
		}
	})
	for i := 0; i < 3; i++ {
		_, err := Fetch(context.Background(), c, "k", func(context.Context) (int, error) { return 1, nil })
		require.NoError(t, err)
	}
	require.Equal(t, 2, hits)
	require.Equal(t, 1, misses)
}
