package cache

import (
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/meigma/stow/internal/payload"
	"github.com/meigma/stow/metrics"
)

const (
	// DefaultExpiration is applied when neither the cache nor the call sets one.
	DefaultExpiration = 24 * time.Hour

	defaultDirPerm  = 0o700
	defaultFilePerm = 0o600
)

// Compression identifies how payloads are encoded on disk.
type Compression = payload.Compression

const (
	// CompressionNone stores payloads as plain serialized text.
	CompressionNone = payload.CompressionNone
	// CompressionZstd stores payloads as zstd frames.
	CompressionZstd = payload.CompressionZstd
)

// StaleHitPolicy decides what GetOrCompute does when the ledger lists an
// identifier but its value turns out to be expired or missing.
type StaleHitPolicy uint8

const (
	// StaleHitRecompute runs the generator and stores a fresh value.
	StaleHitRecompute StaleHitPolicy = iota
	// StaleHitMiss returns the zero value without running the generator.
	StaleHitMiss
)

func (p StaleHitPolicy) String() string {
	switch p {
	case StaleHitRecompute:
		return "recompute"
	case StaleHitMiss:
		return "miss"
	default:
		return "unknown"
	}
}

// config holds the settings of one cache namespace.
type config struct {
	defaultExpiration time.Duration
	logger            *slog.Logger
	metrics           metrics.Metrics
	compression       Compression
	dirPerm           os.FileMode
	filePerm          os.FileMode
	fileLock          bool
	staleHit          StaleHitPolicy
	now               func() time.Time
}

func defaultConfig() config {
	return config{
		defaultExpiration: DefaultExpiration,
		logger:            slog.New(slog.DiscardHandler),
		metrics:           metrics.Nop(),
		dirPerm:           defaultDirPerm,
		filePerm:          defaultFilePerm,
		now:               time.Now,
	}
}

func (c *config) validate() error {
	if c.defaultExpiration <= 0 {
		return ErrInvalidExpiration
	}
	if c.staleHit != StaleHitRecompute && c.staleHit != StaleHitMiss {
		return errors.New("cache: unknown stale hit policy")
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	if c.metrics == nil {
		c.metrics = metrics.Nop()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return nil
}

// Option configures a Cache.
type Option func(*config)

// WithDefaultExpiration sets the expiration applied by Set when the call does
// not pass WithExpiration. Must be positive. Defaults to 24 hours.
func WithDefaultExpiration(d time.Duration) Option {
	return func(c *config) {
		c.defaultExpiration = d
	}
}

// WithLogger sets the logger for cache diagnostics.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics sink. If not set, metrics are discarded.
func WithMetrics(m metrics.Metrics) Option {
	return func(c *config) {
		c.metrics = m
	}
}

// WithCompression sets the encoding of newly written payloads.
// Payloads written with a different setting remain readable.
func WithCompression(comp Compression) Option {
	return func(c *config) {
		c.compression = comp
	}
}

// WithDirPerm sets the permissions used when creating the namespace directory.
func WithDirPerm(mode os.FileMode) Option {
	return func(c *config) {
		c.dirPerm = mode
	}
}

// WithFilePerm sets the permissions of payload files. Defaults to 0600.
func WithFilePerm(mode os.FileMode) Option {
	return func(c *config) {
		c.filePerm = mode
	}
}

// WithFileLock makes the cache hold an exclusive advisory lock on its
// directory for its lifetime. Opening a namespace already locked by another
// cache, in this or another process, fails with ErrLocked.
func WithFileLock(enabled bool) Option {
	return func(c *config) {
		c.fileLock = enabled
	}
}

// WithStaleHitPolicy sets how GetOrCompute treats a listed but unusable entry.
// Defaults to StaleHitRecompute.
func WithStaleHitPolicy(p StaleHitPolicy) Option {
	return func(c *config) {
		c.staleHit = p
	}
}

// WithClock sets the time source used for expiration.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		c.now = now
	}
}

// SetOption configures a single Set call.
type SetOption func(*setOptions)

type setOptions struct {
	expiration time.Duration
}

// WithExpiration overrides the cache's default expiration for one value.
// Must be positive.
func WithExpiration(d time.Duration) SetOption {
	return func(o *setOptions) {
		o.expiration = d
	}
}
