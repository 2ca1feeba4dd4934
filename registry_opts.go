package stow

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/meigma/stow/cache"
	"github.com/meigma/stow/metrics"
)

// Option configures a Registry.
type Option func(*Registry) error

// DefaultReconcileConcurrency bounds how many namespaces Reconcile processes at once.
const DefaultReconcileConcurrency = 4

// WithDefaultExpiration sets the expiration applied to values stored without
// an explicit one, in every namespace. Defaults to 24 hours.
func WithDefaultExpiration(d time.Duration) Option {
	return func(r *Registry) error {
		if d <= 0 {
			return fmt.Errorf("%w: %s", ErrInvalidExpiration, d)
		}
		r.cacheOpts = append(r.cacheOpts, cache.WithDefaultExpiration(d))
		return nil
	}
}

// WithLogger sets the logger for the registry and its namespaces.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) error {
		if logger == nil {
			return errors.New("stow: logger is nil")
		}
		r.logger = logger
		r.cacheOpts = append(r.cacheOpts, cache.WithLogger(logger))
		return nil
	}
}

// WithMetrics sets the metrics sink shared by all namespaces.
func WithMetrics(m metrics.Metrics) Option {
	return func(r *Registry) error {
		if m == nil {
			return errors.New("stow: metrics is nil")
		}
		r.cacheOpts = append(r.cacheOpts, cache.WithMetrics(m))
		return nil
	}
}

// WithCompression sets the payload encoding for all namespaces.
func WithCompression(c cache.Compression) Option {
	return func(r *Registry) error {
		if c != cache.CompressionNone && c != cache.CompressionZstd {
			return fmt.Errorf("stow: unsupported compression %d", c)
		}
		r.cacheOpts = append(r.cacheOpts, cache.WithCompression(c))
		return nil
	}
}

// WithDirPerm sets the permissions used when creating namespace directories.
func WithDirPerm(mode os.FileMode) Option {
	return func(r *Registry) error {
		r.cacheOpts = append(r.cacheOpts, cache.WithDirPerm(mode))
		return nil
	}
}

// WithFilePerm sets the permissions of payload files in every namespace.
func WithFilePerm(mode os.FileMode) Option {
	return func(r *Registry) error {
		r.cacheOpts = append(r.cacheOpts, cache.WithFilePerm(mode))
		return nil
	}
}

// WithFileLock makes every namespace hold an advisory lock on its directory,
// so a second process opening the same namespace fails with ErrLocked.
func WithFileLock(enabled bool) Option {
	return func(r *Registry) error {
		r.cacheOpts = append(r.cacheOpts, cache.WithFileLock(enabled))
		return nil
	}
}

// WithStaleHitPolicy sets how GetOrCompute treats listed but unusable entries.
func WithStaleHitPolicy(p cache.StaleHitPolicy) Option {
	return func(r *Registry) error {
		r.cacheOpts = append(r.cacheOpts, cache.WithStaleHitPolicy(p))
		return nil
	}
}

// WithReconcileConcurrency bounds how many namespaces Reconcile processes
// concurrently. Defaults to DefaultReconcileConcurrency.
func WithReconcileConcurrency(n int) Option {
	return func(r *Registry) error {
		if n < 1 {
			return errors.New("stow: reconcile concurrency must be >= 1")
		}
		r.reconcileConcurrency = n
		return nil
	}
}

// WithCacheOptions appends options applied to every namespace, after the
// registry's own defaults.
func WithCacheOptions(opts ...cache.Option) Option {
	return func(r *Registry) error {
		r.cacheOpts = append(r.cacheOpts, opts...)
		return nil
	}
}
