package index

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	digest "github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openRoot(t *testing.T) (*os.Root, string) {
	t.Helper()
	dir := t.TempDir()
	root, err := os.OpenRoot(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = root.Close() })
	return root, dir
}

// mustLoad loads the default ledger and fails on any discard.
func mustLoad(tb testing.TB, root *os.Root) *Index {
	tb.Helper()
	idx, err := Load(root, DefaultName)
	require.NoError(tb, err)
	require.NotNil(tb, idx)
	return idx
}

func TestLoad(t *testing.T) {
	t.Parallel()

	t.Run("absent document", func(t *testing.T) {
		t.Parallel()
		root, _ := openRoot(t)
		idx := mustLoad(t, root)
		assert.Equal(t, 0, idx.Len())
	})

	t.Run("empty document", func(t *testing.T) {
		t.Parallel()
		root, dir := openRoot(t)
		require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultName), []byte("  \n"), 0o600))
		idx := mustLoad(t, root)
		assert.Equal(t, 0, idx.Len())
	})

	t.Run("corrupt document", func(t *testing.T) {
		t.Parallel()
		root, dir := openRoot(t)
		require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultName), []byte(`{"Files":[{`), 0o600))
		idx, err := Load(root, DefaultName)
		require.Error(t, err)
		require.NotNil(t, idx, "a discarded document still yields a usable ledger")
		assert.Equal(t, 0, idx.Len())
	})

	t.Run("default name", func(t *testing.T) {
		t.Parallel()
		root, _ := openRoot(t)
		idx, err := Load(root, "")
		require.NoError(t, err)
		idx.Upsert(Entry{Identifier: "k", ExpiresAt: time.Now().Add(time.Hour)})
		require.NoError(t, idx.Persist())
		_, err = root.Stat(DefaultName)
		require.NoError(t, err)
	})
}

func TestUpsertReplaces(t *testing.T) {
	t.Parallel()

	root, _ := openRoot(t)
	idx := mustLoad(t, root)
	first := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)

	idx.Upsert(Entry{Identifier: "u1", ExpiresAt: first})
	idx.Upsert(Entry{Identifier: "u1", ExpiresAt: second})
	idx.Upsert(Entry{Identifier: "u2", ExpiresAt: first})

	require.Equal(t, 2, idx.Len())
	e, ok := idx.Lookup("u1")
	require.True(t, ok)
	assert.Equal(t, second, e.ExpiresAt)
}

func TestRemove(t *testing.T) {
	t.Parallel()

	root, _ := openRoot(t)
	idx := mustLoad(t, root)
	idx.Upsert(Entry{Identifier: "k", ExpiresAt: time.Now()})

	require.NoError(t, idx.Remove("k"))
	require.ErrorIs(t, idx.Remove("k"), ErrNotFound)
	_, ok := idx.Lookup("k")
	assert.False(t, ok)
}

func TestPersistRoundTrip(t *testing.T) {
	t.Parallel()

	root, _ := openRoot(t)
	idx := mustLoad(t, root)
	expires := time.Date(2031, 5, 6, 7, 8, 9, 123456789, time.UTC)
	dgst := digest.FromString("payload")

	idx.Upsert(Entry{Identifier: "b", ExpiresAt: expires, Digest: dgst})
	idx.Upsert(Entry{Identifier: "a", ExpiresAt: expires.In(time.FixedZone("X", 3600))})
	require.NoError(t, idx.Persist())

	reloaded := mustLoad(t, root)
	got := reloaded.Entries()
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Identifier)
	assert.True(t, got[0].ExpiresAt.Equal(expires))
	assert.Equal(t, time.UTC, got[0].ExpiresAt.Location())
	assert.Empty(t, got[0].Digest)
	assert.Equal(t, "b", got[1].Identifier)
	assert.Equal(t, dgst, got[1].Digest)
}

func TestPersistDocumentFormat(t *testing.T) {
	t.Parallel()

	root, dir := openRoot(t)
	idx := mustLoad(t, root)
	idx.Upsert(Entry{Identifier: "u1", ExpiresAt: time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)})
	require.NoError(t, idx.Persist())

	data, err := os.ReadFile(filepath.Join(dir, DefaultName))
	require.NoError(t, err)
	assert.JSONEq(t, `{"Files":[{"Expired":"2030-01-02T03:04:05Z","Identifier":"u1"}]}`, string(data))
}

func TestLoadLegacyDocument(t *testing.T) {
	t.Parallel()

	root, dir := openRoot(t)
	legacy := `{"Files":[
		{"Expired":"2030-01-01T00:00:00.1234567Z","Identifier":"dup"},
		{"Expired":"2030-06-01T00:00:00","Identifier":"dup"},
		{"Expired":"2029-01-01T00:00:00Z","Identifier":"dup"},
		{"Expired":"2030-01-01T00:00:00Z","Identifier":""}
	]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultName), []byte(legacy), 0o600))

	idx := mustLoad(t, root)
	require.Equal(t, 1, idx.Len(), "duplicates collapse to one entry per identifier")
	e, ok := idx.Lookup("dup")
	require.True(t, ok)
	assert.Equal(t, time.Date(2030, 6, 1, 0, 0, 0, 0, time.UTC), e.ExpiresAt)
}

func TestEntryExpired(t *testing.T) {
	t.Parallel()

	now := time.Now()
	assert.True(t, Entry{ExpiresAt: now.Add(-time.Nanosecond)}.Expired(now))
	assert.False(t, Entry{ExpiresAt: now}.Expired(now))
	assert.False(t, Entry{ExpiresAt: now.Add(time.Second)}.Expired(now))
}

func TestAllStopsEarly(t *testing.T) {
	t.Parallel()

	root, _ := openRoot(t)
	idx := mustLoad(t, root)
	for _, id := range []string{"c", "a", "b"} {
		idx.Upsert(Entry{Identifier: id, ExpiresAt: time.Now()})
	}

	var seen []string
	for e := range idx.All() {
		seen = append(seen, e.Identifier)
		if len(seen) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"a", "b"}, seen)
}

func TestTimestampRejectsGarbage(t *testing.T) {
	t.Parallel()

	var ts timestamp
	require.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))
	require.Error(t, json.Unmarshal([]byte(`42`), &ts))
}
