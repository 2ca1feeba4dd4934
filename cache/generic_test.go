package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/stow/internal/testutil"
)

func TestGetOrComputeRunsOnce(t *testing.T) {
	t.Parallel()

	m := testutil.NewMetrics()
	c := newTestCache(t, t.TempDir(), WithMetrics(m))

	var calls int
	gen := func(context.Context) (int, error) {
		calls++
		return 42, nil
	}

	for range 2 {
		v, err := GetOrCompute(t.Context(), c, "u3", gen)
		require.NoError(t, err)
		assert.Equal(t, 42, v)
	}
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, m.Count(testutil.EventCompute))
}

func TestGetOrComputeConcurrentCallersShareOneCall(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, t.TempDir())

	var calls atomic.Int32
	release := make(chan struct{})
	gen := func(context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "value", nil
	}

	const callers = 16
	var (
		wg      sync.WaitGroup
		started sync.WaitGroup
	)
	results := make([]string, callers)
	for i := range callers {
		wg.Add(1)
		started.Add(1)
		go func() {
			defer wg.Done()
			started.Done()
			v, err := GetOrCompute(t.Context(), c, "k", gen)
			assert.NoError(t, err)
			results[i] = v
		}()
	}
	started.Wait()
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, v := range results {
		assert.Equal(t, "value", v)
	}
	assert.Equal(t, 1, c.Len())
}

func TestGetOrComputeGeneratorError(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, t.TempDir())
	errBoom := errors.New("boom")

	_, err := GetOrCompute(t.Context(), c, "k", func(context.Context) (int, error) {
		return 0, errBoom
	})
	require.ErrorIs(t, err, errBoom)
	assert.False(t, c.Contains("k"), "failed computations are not cached")

	v, err := GetOrCompute(t.Context(), c, "k", func(context.Context) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestGetOrComputeCanceledContext(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, t.TempDir())
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	called := false
	_, err := GetOrCompute(ctx, c, "k", func(context.Context) (int, error) {
		called = true
		return 1, nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestGetOrComputePassesContext(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, t.TempDir())
	type ctxKey struct{}
	ctx := context.WithValue(t.Context(), ctxKey{}, "marker")

	v, err := GetOrCompute(ctx, c, "k", func(ctx context.Context) (string, error) {
		s, _ := ctx.Value(ctxKey{}).(string)
		return s, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "marker", v)
}

func TestGetOrComputeStaleHitRecompute(t *testing.T) {
	t.Parallel()

	clock := newClock()
	c := newTestCache(t, t.TempDir(), WithClock(clock.Now))
	require.NoError(t, c.Set("k", "old", WithExpiration(time.Minute)))
	clock.Advance(2 * time.Minute)

	require.True(t, c.Contains("k"), "expired entries stay listed until observed")
	v, err := GetOrCompute(t.Context(), c, "k", func(context.Context) (string, error) {
		return "fresh", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fresh", v)

	stored, ok, err := Get[string](c, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "fresh", stored)
}

func TestGetOrComputeStaleHitMiss(t *testing.T) {
	t.Parallel()

	clock := newClock()
	c := newTestCache(t, t.TempDir(), WithClock(clock.Now), WithStaleHitPolicy(StaleHitMiss))
	require.NoError(t, c.Set("k", "old", WithExpiration(time.Minute)))
	clock.Advance(2 * time.Minute)

	calls := 0
	gen := func(context.Context) (string, error) {
		calls++
		return "fresh", nil
	}

	v, err := GetOrCompute(t.Context(), c, "k", gen)
	require.NoError(t, err)
	assert.Empty(t, v, "a stale hit yields the zero value")
	assert.Zero(t, calls)
	assert.False(t, c.Contains("k"))

	v, err = GetOrCompute(t.Context(), c, "k", gen)
	require.NoError(t, err)
	assert.Equal(t, "fresh", v)
	assert.Equal(t, 1, calls)
}

func TestGetOrComputeExpiration(t *testing.T) {
	t.Parallel()

	clock := newClock()
	c := newTestCache(t, t.TempDir(), WithClock(clock.Now))

	_, err := GetOrCompute(t.Context(), c, "k", func(context.Context) (int, error) {
		return 1, nil
	}, WithExpiration(time.Second))
	require.NoError(t, err)

	entries := c.Entries()
	require.Len(t, entries, 1)
	assert.True(t, clock.Now().Add(time.Second).Equal(entries[0].ExpiresAt))
}

func TestGetOrComputeDeserializationError(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, t.TempDir())
	require.NoError(t, c.Set("k", "text"))

	_, err := GetOrCompute(t.Context(), c, "k", func(context.Context) (int, error) {
		return 1, nil
	})
	require.ErrorIs(t, err, ErrDeserialization)
}

func TestGetOrStore(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, t.TempDir())

	v, err := GetOrStore(t.Context(), c, "k", user{Name: "Alice"})
	require.NoError(t, err)
	assert.Equal(t, "Alice", v.Name)

	v, err = GetOrStore(t.Context(), c, "k", user{Name: "Bob"})
	require.NoError(t, err)
	assert.Equal(t, "Alice", v.Name, "an existing value is not replaced")
}

func TestGetGenericMiss(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, t.TempDir())
	v, ok, err := Get[*user](c, "absent")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, v)
}
