package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/stow/cache"
)

func seed(t *testing.T, dir string) {
	t.Helper()
	c, err := cache.New(dir, "default")
	require.NoError(t, err)
	require.NoError(t, c.Set("u1", map[string]string{"name": "Alice"}))
	require.NoError(t, c.Close())
}

func TestRunList(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	seed(t, dir)

	var out bytes.Buffer
	require.NoError(t, run(config{dir: dir, namespace: "default", args: []string{"list"}}, &out))
	assert.Contains(t, out.String(), "IDENTIFIER")
	assert.Contains(t, out.String(), "u1")
	assert.Contains(t, out.String(), "live")
}

func TestRunGet(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	seed(t, dir)

	var out bytes.Buffer
	require.NoError(t, run(config{dir: dir, namespace: "default", args: []string{"get", "u1"}}, &out))
	assert.JSONEq(t, `{"name":"Alice"}`, out.String())

	err := run(config{dir: dir, namespace: "default", args: []string{"get", "nope"}}, &out)
	require.ErrorIs(t, err, cache.ErrNotFound)
}

func TestRunRemove(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	seed(t, dir)

	var out bytes.Buffer
	require.NoError(t, run(config{dir: dir, namespace: "default", args: []string{"rm", "u1"}}, &out))
	err := run(config{dir: dir, namespace: "default", args: []string{"rm", "u1"}}, &out)
	require.ErrorIs(t, err, cache.ErrNotFound)
}

func TestRunPrune(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	seed(t, dir)

	var out bytes.Buffer
	require.NoError(t, run(config{dir: dir, namespace: "default", args: []string{"prune"}}, &out))
	assert.Equal(t, "pruned 0 entries, 1 remaining\n", out.String())
}

func TestRunUsageErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var out bytes.Buffer
	require.Error(t, run(config{dir: dir, namespace: "default", args: []string{"get"}}, &out))
	require.Error(t, run(config{dir: dir, namespace: "default", args: []string{"frobnicate"}}, &out))
}
