// Package index maintains the metadata ledger of a cache namespace.
//
// The ledger maps identifiers to expiration timestamps and payload digests.
// It is persisted as a single JSON document that is rewritten in full on
// every Persist:
//
//	{"Files":[{"Expired":"2025-01-02T03:04:05Z","Identifier":"u1","Digest":"sha256:..."}]}
package index

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"slices"
	"strings"
	"time"

	digest "github.com/opencontainers/go-digest"

	"github.com/meigma/stow/internal/fileops"
)

// DefaultName is the file name of the ledger document.
const DefaultName = "main.json"

const defaultFilePerm = 0o600

// ErrNotFound is returned by Remove when no entry exists for an identifier.
var ErrNotFound = errors.New("index: entry not found")

// Entry is the metadata for one cached payload.
type Entry struct {
	Identifier string
	ExpiresAt  time.Time
	Digest     digest.Digest
}

// Expired reports whether e has expired at now.
func (e Entry) Expired(now time.Time) bool {
	return e.ExpiresAt.Before(now)
}

// Index is the in-memory ledger. It is not safe for concurrent use.
type Index struct {
	root     *os.Root
	name     string
	filePerm os.FileMode
	entries  map[string]Entry
}

// Load reads the ledger document name under root.
//
// Load never fails: an absent, empty or undecodable document yields an empty
// ledger. A non-nil error explains why an existing document was discarded;
// the returned Index is usable either way. Duplicate identifiers in the
// document collapse to the entry with the latest expiry.
func Load(root *os.Root, name string) (*Index, error) {
	if name == "" {
		name = DefaultName
	}
	idx := &Index{
		root:     root,
		name:     name,
		filePerm: defaultFilePerm,
		entries:  make(map[string]Entry),
	}

	data, err := root.ReadFile(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return idx, nil
		}
		return idx, fmt.Errorf("read index: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return idx, nil
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return idx, fmt.Errorf("decode index: %w", err)
	}
	for _, rec := range doc.Files {
		if rec.Identifier == "" {
			continue
		}
		expires := time.Time(rec.Expired).UTC()
		if cur, ok := idx.entries[rec.Identifier]; ok && !expires.After(cur.ExpiresAt) {
			continue
		}
		idx.entries[rec.Identifier] = Entry{
			Identifier: rec.Identifier,
			ExpiresAt:  expires,
			Digest:     rec.Digest,
		}
	}
	return idx, nil
}

// Lookup returns the entry for id.
func (idx *Index) Lookup(id string) (Entry, bool) {
	e, ok := idx.entries[id]
	return e, ok
}

// Upsert inserts e, replacing any existing entry with the same identifier.
func (idx *Index) Upsert(e Entry) {
	e.ExpiresAt = e.ExpiresAt.UTC()
	idx.entries[e.Identifier] = e
}

// Remove deletes the entry for id. It returns ErrNotFound if there is none.
func (idx *Index) Remove(id string) error {
	if _, ok := idx.entries[id]; !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	delete(idx.entries, id)
	return nil
}

// Len returns the number of entries.
func (idx *Index) Len() int {
	return len(idx.entries)
}

// Entries returns all entries sorted by identifier.
func (idx *Index) Entries() []Entry {
	out := make([]Entry, 0, len(idx.entries))
	for _, e := range idx.entries {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b Entry) int {
		return strings.Compare(a.Identifier, b.Identifier)
	})
	return out
}

// All returns an iterator over all entries sorted by identifier.
func (idx *Index) All() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for _, e := range idx.Entries() {
			if !yield(e) {
				return
			}
		}
	}
}

// Persist writes the full ledger, replacing the previous document atomically.
func (idx *Index) Persist() error {
	doc := document{Files: make([]record, 0, len(idx.entries))}
	for _, e := range idx.Entries() {
		doc.Files = append(doc.Files, record{
			Expired:    timestamp(e.ExpiresAt),
			Identifier: e.Identifier,
			Digest:     e.Digest,
		})
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	if err := fileops.WriteFile(idx.root, idx.name, data, idx.filePerm); err != nil {
		return fmt.Errorf("persist index: %w", err)
	}
	return nil
}

type document struct {
	Files []record `json:"Files"`
}

type record struct {
	Expired    timestamp     `json:"Expired"`
	Identifier string        `json:"Identifier"`
	Digest     digest.Digest `json:"Digest,omitempty"`
}

// timestamp is a UTC time that also accepts zone-less ISO 8601 values, which
// older ledgers wrote for UTC timestamps.
type timestamp time.Time

// zonelessLayout also matches fractional seconds when parsing.
const zonelessLayout = "2006-01-02T15:04:05"

func (t timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(t).UTC().Format(time.RFC3339Nano))
}

func (t *timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
		*t = timestamp(parsed.UTC())
		return nil
	}
	parsed, err := time.ParseInLocation(zonelessLayout, s, time.UTC)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q", s)
	}
	*t = timestamp(parsed)
	return nil
}
