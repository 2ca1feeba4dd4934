package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	digest "github.com/opencontainers/go-digest"
	"golang.org/x/sync/singleflight"

	"github.com/meigma/stow/internal/flock"
	"github.com/meigma/stow/internal/index"
	"github.com/meigma/stow/internal/payload"
	"github.com/meigma/stow/metrics"
)

// lockName is the advisory lock file taken with WithFileLock.
const lockName = ".lock"

// Entry describes one ledger entry.
type Entry struct {
	Identifier string
	ExpiresAt  time.Time
	Digest     digest.Digest
}

// Cache is one namespace of persistent cached values.
type Cache struct {
	name string
	dir  string
	cfg  config

	root     *os.Root
	lock     *flock.Lock
	payloads *payload.Store

	// mu guards ledger and closed. Payload files are only written or
	// removed under the write lock.
	mu     sync.RWMutex
	ledger *index.Index
	closed bool

	flight singleflight.Group
}

// New opens the namespace name under the base directory dir, creating the
// namespace directory if needed, and reconciles its ledger with the payload
// files on disk.
func New(dir, name string, opts ...Option) (*Cache, error) {
	if dir == "" {
		return nil, errors.New("cache: base directory is empty")
	}
	if err := payload.ValidName(name); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidName, err)
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	nsDir := filepath.Join(dir, name)
	if err := os.MkdirAll(nsDir, cfg.dirPerm); err != nil {
		return nil, fmt.Errorf("create namespace directory: %w", err)
	}
	root, err := os.OpenRoot(nsDir)
	if err != nil {
		return nil, fmt.Errorf("open namespace directory: %w", err)
	}

	c := &Cache{
		name: name,
		dir:  nsDir,
		cfg:  cfg,
		root: root,
	}

	if cfg.fileLock {
		lock, err := flock.TryLock(root, lockName)
		if err != nil {
			_ = root.Close()
			if errors.Is(err, flock.ErrLocked) {
				return nil, fmt.Errorf("%w: %s", ErrLocked, nsDir)
			}
			return nil, fmt.Errorf("lock namespace: %w", err)
		}
		c.lock = lock
	}

	c.payloads, err = payload.New(root,
		payload.WithCompression(cfg.compression),
		payload.WithFilePerm(cfg.filePerm),
	)
	if err != nil {
		_ = c.release()
		return nil, err
	}

	ledger, err := index.Load(root, index.DefaultName)
	if err != nil {
		cfg.logger.Warn("discarding unreadable ledger",
			slog.String("namespace", name),
			slog.Any("error", err))
	}
	c.ledger = ledger

	if _, err := c.reconcileLocked(); err != nil {
		_ = c.release()
		return nil, err
	}
	return c, nil
}

// Name returns the namespace name.
func (c *Cache) Name() string {
	return c.name
}

// Dir returns the namespace directory.
func (c *Cache) Dir() string {
	return c.dir
}

// Contains reports whether the ledger has an entry for id. The entry may
// already be expired; Contains does not check.
func (c *Cache) Contains(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	_, ok := c.ledger.Lookup(id)
	return ok
}

// Get decodes the value stored for id into v, which must be a pointer.
//
// It reports false with a nil error on a miss. An expired entry, or one whose
// payload is missing or corrupt, is evicted and reported as a miss. A payload
// that cannot be decoded into v returns ErrDeserialization. A v that is not
// a non-nil pointer is rejected before the entry is looked up.
func (c *Cache) Get(id string, v any) (bool, error) {
	if rv := reflect.ValueOf(v); rv.Kind() != reflect.Pointer || rv.IsNil() {
		return false, fmt.Errorf("cache: get %q: target must be a non-nil pointer, got %T", id, v)
	}
	data, ok, err := c.load(id)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("%w: %q: %w", ErrDeserialization, id, err)
	}
	return true, nil
}

// Set stores v under id, replacing any previous value. The entry expires
// after the cache's default expiration unless WithExpiration is given.
func (c *Cache) Set(id string, v any, opts ...SetOption) error {
	if err := validID(id); err != nil {
		return err
	}
	so := setOptions{expiration: c.cfg.defaultExpiration}
	for _, opt := range opts {
		opt(&so)
	}
	if so.expiration <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidExpiration, so.expiration)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: encode %q: %w", id, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return c.setLocked(id, data, so.expiration)
}

func (c *Cache) setLocked(id string, data []byte, ttl time.Duration) error {
	dgst, err := c.payloads.Write(id, data)
	if err != nil {
		return fmt.Errorf("write payload %q: %w", id, err)
	}

	prev, existed := c.ledger.Lookup(id)
	c.ledger.Upsert(index.Entry{
		Identifier: id,
		ExpiresAt:  c.cfg.now().Add(ttl),
		Digest:     dgst,
	})
	if err := c.ledger.Persist(); err != nil {
		// The new payload no longer matches prev's digest, so a later Get
		// evicts it as corrupt.
		if existed {
			c.ledger.Upsert(prev)
		} else {
			_ = c.ledger.Remove(id)
		}
		return fmt.Errorf("persist ledger: %w", err)
	}

	c.cfg.metrics.Stored(c.name, len(data))
	c.cfg.metrics.Entries(c.name, c.ledger.Len())
	c.cfg.logger.Debug("stored entry",
		slog.String("namespace", c.name),
		slog.String("id", id),
		slog.Duration("ttl", ttl),
		slog.Int("size", len(data)))
	return nil
}

// Remove deletes the entry and payload for id.
// It returns ErrNotFound if the ledger has no entry for id.
func (c *Cache) Remove(id string) error {
	if err := validID(id); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	e, ok := c.ledger.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	if err := c.evictLocked(e); err != nil {
		return err
	}
	c.cfg.metrics.Removed(c.name)
	c.cfg.metrics.Entries(c.name, c.ledger.Len())
	return nil
}

// Entries returns a snapshot of the ledger sorted by identifier.
func (c *Cache) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil
	}
	out := make([]Entry, 0, c.ledger.Len())
	for e := range c.ledger.All() {
		out = append(out, Entry(e))
	}
	return out
}

// Len returns the number of ledger entries, including expired ones not yet
// evicted.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return 0
	}
	return c.ledger.Len()
}

// Close releases the namespace lock and directory handle. Further operations
// return ErrClosed. Close is idempotent.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.release()
}

func (c *Cache) release() error {
	var errs []error
	if c.payloads != nil {
		errs = append(errs, c.payloads.Close())
	}
	errs = append(errs, c.lock.Unlock(), c.root.Close())
	return errors.Join(errs...)
}

// load returns the payload for id, evicting the entry if it turns out to be
// unusable.
func (c *Cache) load(id string) ([]byte, bool, error) {
	if err := validID(id); err != nil {
		return nil, false, err
	}

	e, data, reason, err := c.read(id)
	switch {
	case err != nil:
		return nil, false, err
	case e == nil:
		c.cfg.metrics.Miss(c.name)
		return nil, false, nil
	case reason == "":
		c.cfg.metrics.Hit(c.name)
		return data, true, nil
	}

	c.cfg.metrics.Miss(c.name)
	if err := c.evictStale(*e, reason); err != nil {
		return nil, false, err
	}
	return nil, false, nil
}

// read looks up id under the read lock. A nil entry means absent; a non-empty
// reason means the entry exists but must be evicted.
func (c *Cache) read(id string) (*index.Entry, []byte, string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, nil, "", ErrClosed
	}

	e, ok := c.ledger.Lookup(id)
	if !ok {
		return nil, nil, "", nil
	}
	if e.Expired(c.cfg.now()) {
		return &e, nil, metrics.ReasonExpired, nil
	}

	data, err := c.payloads.Read(id, e.Digest)
	switch {
	case err == nil:
		return &e, data, "", nil
	case errors.Is(err, payload.ErrNotFound):
		return &e, nil, metrics.ReasonMissing, nil
	case errors.Is(err, payload.ErrCorrupt):
		return &e, nil, metrics.ReasonCorrupt, nil
	default:
		return nil, nil, "", fmt.Errorf("read payload %q: %w", id, err)
	}
}

// evictStale removes e if the ledger still holds the same entry. Another
// caller may have replaced or evicted it since it was read.
func (c *Cache) evictStale(e index.Entry, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	cur, ok := c.ledger.Lookup(e.Identifier)
	if !ok || cur.Digest != e.Digest || !cur.ExpiresAt.Equal(e.ExpiresAt) {
		return nil
	}
	if err := c.evictLocked(cur); err != nil {
		return err
	}

	attrs := []any{
		slog.String("namespace", c.name),
		slog.String("id", e.Identifier),
		slog.String("reason", reason),
	}
	if reason == metrics.ReasonExpired {
		c.cfg.logger.Debug("evicted entry", attrs...)
	} else {
		c.cfg.logger.Warn("evicted unreadable entry", attrs...)
	}
	c.cfg.metrics.Evicted(c.name, reason)
	c.cfg.metrics.Entries(c.name, c.ledger.Len())
	return nil
}

// evictLocked removes e from the ledger, persists it, then deletes the
// payload. A payload left behind by a failed delete is swept as an orphan by
// the next reconciliation.
func (c *Cache) evictLocked(e index.Entry) error {
	if err := c.ledger.Remove(e.Identifier); err != nil {
		return err
	}
	if err := c.ledger.Persist(); err != nil {
		c.ledger.Upsert(e)
		return fmt.Errorf("persist ledger: %w", err)
	}
	if err := c.payloads.Delete(e.Identifier); err != nil {
		return fmt.Errorf("delete payload %q: %w", e.Identifier, err)
	}
	return nil
}

func validID(id string) error {
	if err := payload.ValidName(id); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidIdentifier, err)
	}
	return nil
}
