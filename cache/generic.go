package cache

import "context"

// Get returns the value stored for id decoded as T.
// It reports false with a nil error on a miss.
func Get[T any](c *Cache, id string) (T, bool, error) {
	var v T
	ok, err := c.Get(id, &v)
	if err != nil || !ok {
		var zero T
		return zero, false, err
	}
	return v, true, nil
}

// GetOrCompute returns the value stored for id, or calls gen, stores its
// result and returns it.
//
// Concurrent calls for the same id on one Cache share a single gen call,
// which receives the context of the caller that started it. An error from
// gen is returned and nothing is stored.
//
// When the ledger lists id but the value turns out to be expired or missing,
// the cache's StaleHitPolicy decides between recomputing (the default) and
// returning the zero value.
func GetOrCompute[T any](ctx context.Context, c *Cache, id string, gen func(context.Context) (T, error), opts ...SetOption) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	if c.Contains(id) {
		v, ok, err := Get[T](c, id)
		if err != nil || ok {
			return v, err
		}
		if c.cfg.staleHit == StaleHitMiss {
			return zero, nil
		}
	}

	res, err, _ := c.flight.Do(id, func() (any, error) {
		// A caller that finished just before this one may have stored it.
		if v, ok, err := Get[T](c, id); err != nil || ok {
			return v, err
		}

		timer := c.cfg.metrics.ComputeDuration(c.name)
		v, err := gen(ctx)
		timer.ObserveDuration()
		if err != nil {
			return nil, err
		}
		if err := c.Set(id, v, opts...); err != nil {
			return nil, err
		}
		return v, nil
	})
	if err != nil {
		return zero, err
	}
	if v, ok := res.(T); ok {
		return v, nil
	}
	// The shared call was started with a different type parameter, or
	// produced a nil interface value.
	v, _, err := Get[T](c, id)
	return v, err
}

// GetOrStore returns the value stored for id, or stores value and returns it.
func GetOrStore[T any](ctx context.Context, c *Cache, id string, value T, opts ...SetOption) (T, error) {
	return GetOrCompute(ctx, c, id, func(context.Context) (T, error) {
		return value, nil
	}, opts...)
}
