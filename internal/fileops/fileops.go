// Package fileops provides file replacement helpers scoped to an os.Root.
//
// Files are written to a temporary sibling and renamed into place, so readers
// observe either the previous content or the new content, never a partial
// write.
package fileops

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// TempPrefix is the name prefix of in-flight temporary files.
const TempPrefix = ".tmp-"

// CreateTemp creates a new file in dir with a random name derived from pattern.
// The last "*" in pattern is replaced by random hex; a pattern without "*" gets
// the random suffix appended. It returns the open file and its root-relative path.
func CreateTemp(root *os.Root, dir, pattern string, perm os.FileMode) (*os.File, string, error) {
	if pattern == "" {
		pattern = "tmp"
	}
	if !strings.Contains(pattern, "*") {
		pattern += "*"
	}
	if dir == "" {
		dir = "."
	}

	for tries := 0; tries < 10000; tries++ {
		var randBytes [8]byte
		if _, err := rand.Read(randBytes[:]); err != nil {
			return nil, "", err
		}
		i := strings.LastIndex(pattern, "*")
		name := pattern[:i] + hex.EncodeToString(randBytes[:]) + pattern[i+1:]
		path := filepath.Join(dir, name)
		f, err := root.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, perm)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, "", err
		}
		return f, path, nil
	}

	return nil, "", errors.New("failed to create temp file")
}

// WriteFile replaces name under root with data.
//
// The data is written and synced to a temporary file in the same directory,
// then renamed over name. On failure the temporary file is removed and name
// is left untouched.
func WriteFile(root *os.Root, name string, data []byte, perm os.FileMode) error {
	tmp, tmpPath, err := CreateTemp(root, filepath.Dir(name), TempPrefix+"*", perm)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	// The final mode is perm regardless of the process umask.
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		_ = root.Remove(tmpPath)
		return fmt.Errorf("chmod %s: %w", name, err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = root.Remove(tmpPath)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = root.Remove(tmpPath)
		return fmt.Errorf("sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = root.Remove(tmpPath)
		return fmt.Errorf("close %s: %w", name, err)
	}

	if err := root.Rename(tmpPath, name); err != nil {
		_ = root.Remove(tmpPath)
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}

// IsTemp reports whether name is a temporary file created by WriteFile.
func IsTemp(name string) bool {
	return strings.HasPrefix(filepath.Base(name), TempPrefix)
}

// RemoveTemps deletes temporary files left in dir by interrupted writes.
// It returns the number of files removed.
func RemoveTemps(root *os.Root, dir string) (int, error) {
	if dir == "" {
		dir = "."
	}
	d, err := root.Open(dir)
	if err != nil {
		return 0, err
	}
	entries, err := d.ReadDir(-1)
	_ = d.Close()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !IsTemp(entry.Name()) {
			continue
		}
		if err := root.Remove(filepath.Join(dir, entry.Name())); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return removed, err
		}
		removed++
	}
	return removed, nil
}
