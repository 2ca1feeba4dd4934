package stow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/meigma/stow/cache"
)

// DefaultNamespace is the namespace every Registry creates on construction.
const DefaultNamespace = "default"

// DefaultExpiration is the registry-wide default expiration.
const DefaultExpiration = cache.DefaultExpiration

// Registry creates and looks up cache namespaces sharing a base directory.
type Registry struct {
	dir                  string
	logger               *slog.Logger
	cacheOpts            []cache.Option
	reconcileConcurrency int

	mu         sync.RWMutex
	namespaces map[string]*cache.Cache
	opening    map[string]struct{}
	closed     bool
}

// New creates a Registry rooted at dir and opens the default namespace.
func New(dir string, opts ...Option) (*Registry, error) {
	if dir == "" {
		return nil, errors.New("stow: base directory is empty")
	}
	r := &Registry{
		dir:                  dir,
		logger:               slog.New(slog.DiscardHandler),
		reconcileConcurrency: DefaultReconcileConcurrency,
		namespaces:           make(map[string]*cache.Cache),
		opening:              make(map[string]struct{}),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	if _, err := r.CreateNamespace(DefaultNamespace); err != nil {
		return nil, err
	}
	return r, nil
}

// Dir returns the base directory.
func (r *Registry) Dir() string {
	return r.dir
}

// CreateNamespace opens the namespace name and registers it. Options given
// here override the registry defaults for this namespace only.
//
// It returns ErrDuplicateName if name is already registered.
func (r *Registry) CreateNamespace(name string, opts ...cache.Option) (*cache.Cache, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	_, registered := r.namespaces[name]
	_, pending := r.opening[name]
	if registered || pending {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	r.opening[name] = struct{}{}
	all := append(slices.Clone(r.cacheOpts), opts...)
	r.mu.Unlock()

	// Opening reconciles the namespace directory, so it runs without the
	// registry lock; the reservation in opening keeps the name unique.
	c, err := cache.New(r.dir, name, all...)

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.opening, name)
	if err != nil {
		return nil, fmt.Errorf("create namespace %q: %w", name, err)
	}
	if r.closed {
		_ = c.Close()
		return nil, ErrClosed
	}
	r.namespaces[name] = c
	r.logger.Debug("created namespace",
		slog.String("namespace", name),
		slog.Int("entries", c.Len()))
	return c, nil
}

// Namespace returns the registered namespace name.
// It returns ErrNotFound if there is none.
func (r *Registry) Namespace(name string) (*cache.Cache, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.namespaces[name]
	if !ok {
		return nil, fmt.Errorf("%w: namespace %q", ErrNotFound, name)
	}
	return c, nil
}

// Default returns the default namespace, or nil if it was removed.
func (r *Registry) Default() *cache.Cache {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namespaces[DefaultNamespace]
}

// RemoveNamespace forgets the namespace name. Files on disk are kept and the
// namespace itself stays open; the caller becomes responsible for closing it.
// It returns ErrNotFound if name is not registered.
func (r *Registry) RemoveNamespace(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.namespaces[name]; !ok {
		return fmt.Errorf("%w: namespace %q", ErrNotFound, name)
	}
	delete(r.namespaces, name)
	r.logger.Debug("removed namespace", slog.String("namespace", name))
	return nil
}

// Namespaces returns the registered namespace names in sorted order.
func (r *Registry) Namespaces() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.namespaces))
}

// Reconcile runs a reconciliation pass on every registered namespace and
// returns the total number of entries pruned.
func (r *Registry) Reconcile(ctx context.Context) (int, error) {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return 0, ErrClosed
	}
	caches := slices.Collect(maps.Values(r.namespaces))
	r.mu.RUnlock()
	start := time.Now()

	var pruned atomic.Int64
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(r.reconcileConcurrency)
	for _, c := range caches {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			n, err := c.Reconcile()
			if err != nil {
				return fmt.Errorf("reconcile namespace %q: %w", c.Name(), err)
			}
			pruned.Add(int64(n))
			return nil
		})
	}
	err := eg.Wait()

	r.logger.Info("reconciled registry",
		slog.Int("namespaces", len(caches)),
		slog.Int64("pruned", pruned.Load()),
		slog.Duration("elapsed", time.Since(start)))
	return int(pruned.Load()), err
}

// Close closes every registered namespace. Further calls to CreateNamespace
// return ErrClosed. Close is idempotent.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	caches := slices.Collect(maps.Values(r.namespaces))
	clear(r.namespaces)
	r.mu.Unlock()

	errs := make([]error, len(caches))
	var eg errgroup.Group
	for i, c := range caches {
		eg.Go(func() error {
			if err := c.Close(); err != nil {
				errs[i] = fmt.Errorf("close namespace %q: %w", c.Name(), err)
			}
			return nil
		})
	}
	_ = eg.Wait()
	return errors.Join(errs...)
}
