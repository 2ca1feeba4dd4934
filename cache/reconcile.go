package cache

import (
	"fmt"
	"log/slog"

	"github.com/meigma/stow/internal/fileops"
	"github.com/meigma/stow/internal/index"
	"github.com/meigma/stow/internal/payload"
	"github.com/meigma/stow/metrics"
)

// Reconcile prunes expired entries and entries whose payload file is gone,
// then removes payload files the ledger does not reference and temporary
// files left by interrupted writes. It returns the number of ledger entries
// pruned.
//
// Reconcile runs automatically when a Cache is opened.
func (c *Cache) Reconcile() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, ErrClosed
	}
	return c.reconcileLocked()
}

type prunedEntry struct {
	entry  index.Entry
	reason string
}

func (c *Cache) reconcileLocked() (int, error) {
	now := c.cfg.now()

	var pruned []prunedEntry
	for e := range c.ledger.All() {
		var reason string
		switch {
		case payload.ValidName(e.Identifier) != nil:
			reason = metrics.ReasonMissing
		case e.Expired(now):
			reason = metrics.ReasonExpired
		default:
			ok, err := c.payloads.Exists(e.Identifier)
			if err != nil {
				return 0, fmt.Errorf("stat payload %q: %w", e.Identifier, err)
			}
			if !ok {
				reason = metrics.ReasonMissing
			}
		}
		if reason == "" {
			continue
		}
		_ = c.ledger.Remove(e.Identifier)
		pruned = append(pruned, prunedEntry{entry: e, reason: reason})
	}

	if len(pruned) > 0 {
		if err := c.ledger.Persist(); err != nil {
			for _, p := range pruned {
				c.ledger.Upsert(p.entry)
			}
			return 0, fmt.Errorf("persist ledger: %w", err)
		}
	}
	for _, p := range pruned {
		if p.reason == metrics.ReasonExpired {
			if err := c.payloads.Delete(p.entry.Identifier); err != nil {
				c.cfg.logger.Warn("failed to delete expired payload",
					slog.String("namespace", c.name),
					slog.String("id", p.entry.Identifier),
					slog.Any("error", err))
			}
		}
		c.cfg.metrics.Evicted(c.name, p.reason)
	}

	orphans := c.sweepOrphans()

	temps, err := fileops.RemoveTemps(c.root, ".")
	if err != nil {
		c.cfg.logger.Warn("failed to remove temporary files",
			slog.String("namespace", c.name),
			slog.Any("error", err))
	}

	if len(pruned) > 0 || orphans > 0 || temps > 0 {
		c.cfg.logger.Info("reconciled namespace",
			slog.String("namespace", c.name),
			slog.Int("pruned", len(pruned)),
			slog.Int("orphans", orphans),
			slog.Int("temps", temps),
			slog.Int("entries", c.ledger.Len()))
	}
	c.cfg.metrics.Reconciled(c.name, len(pruned))
	c.cfg.metrics.Entries(c.name, c.ledger.Len())
	return len(pruned), nil
}

// sweepOrphans deletes payload files with no ledger entry.
func (c *Cache) sweepOrphans() int {
	ids, err := c.payloads.List()
	if err != nil {
		c.cfg.logger.Warn("failed to list payloads",
			slog.String("namespace", c.name),
			slog.Any("error", err))
		return 0
	}

	removed := 0
	for _, id := range ids {
		if _, ok := c.ledger.Lookup(id); ok {
			continue
		}
		if err := c.payloads.Delete(id); err != nil {
			c.cfg.logger.Warn("failed to delete orphan payload",
				slog.String("namespace", c.name),
				slog.String("id", id),
				slog.Any("error", err))
			continue
		}
		removed++
		c.cfg.metrics.Evicted(c.name, metrics.ReasonOrphan)
	}
	return removed
}
