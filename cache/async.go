package cache

import "context"

// Result carries the outcome of an asynchronous lookup.
type Result[T any] struct {
	Value T
	OK    bool
	Err   error
}

// GetAsync runs Get on a new goroutine. The returned channel receives exactly
// one Result and is then closed.
func GetAsync[T any](c *Cache, id string) <-chan Result[T] {
	ch := make(chan Result[T], 1)
	go func() {
		defer close(ch)
		v, ok, err := Get[T](c, id)
		ch <- Result[T]{Value: v, OK: ok, Err: err}
	}()
	return ch
}

// SetAsync runs Set on a new goroutine. The returned channel receives the
// error from Set, nil on success, and is then closed.
func (c *Cache) SetAsync(id string, v any, opts ...SetOption) <-chan error {
	ch := make(chan error, 1)
	go func() {
		defer close(ch)
		ch <- c.Set(id, v, opts...)
	}()
	return ch
}

// GetOrComputeAsync runs GetOrCompute on a new goroutine. OK is set when the
// call succeeded.
func GetOrComputeAsync[T any](ctx context.Context, c *Cache, id string, gen func(context.Context) (T, error), opts ...SetOption) <-chan Result[T] {
	ch := make(chan Result[T], 1)
	go func() {
		defer close(ch)
		v, err := GetOrCompute(ctx, c, id, gen, opts...)
		ch <- Result[T]{Value: v, OK: err == nil, Err: err}
	}()
	return ch
}
