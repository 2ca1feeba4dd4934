package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetAsyncGetAsync(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, t.TempDir())

	require.NoError(t, <-c.SetAsync("u1", user{Name: "Alice"}))

	res := <-GetAsync[user](c, "u1")
	require.NoError(t, res.Err)
	assert.True(t, res.OK)
	assert.Equal(t, "Alice", res.Value.Name)

	res = <-GetAsync[user](c, "absent")
	require.NoError(t, res.Err)
	assert.False(t, res.OK)
}

func TestSetAsyncReportsError(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, t.TempDir())

	ch := c.SetAsync("a/b", 1)
	require.ErrorIs(t, <-ch, ErrInvalidIdentifier)
	_, open := <-ch
	assert.False(t, open, "the channel is closed after the result")
}

func TestGetOrComputeAsync(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, t.TempDir())
	calls := 0
	gen := func(context.Context) (int, error) {
		calls++
		return 42, nil
	}

	first := <-GetOrComputeAsync(t.Context(), c, "k", gen)
	require.NoError(t, first.Err)
	assert.True(t, first.OK)
	assert.Equal(t, 42, first.Value)

	second := <-GetOrComputeAsync(t.Context(), c, "k", gen)
	require.NoError(t, second.Err)
	assert.Equal(t, 42, second.Value)
	assert.Equal(t, 1, calls)
}
