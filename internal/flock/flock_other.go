//go:build !(darwin || dragonfly || freebsd || linux || netbsd || openbsd)

package flock

import "os"

// Lock is a placeholder on platforms without flock(2); it only keeps the lock
// file open and never excludes other holders.
type Lock struct {
	f *os.File
}

// TryLock opens (creating if needed) name under root. It never returns ErrLocked.
func TryLock(root *os.Root, name string) (*Lock, error) {
	f, err := root.OpenFile(name, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, err
	}
	return &Lock{f: f}, nil
}

// Unlock closes the lock file.
func (l *Lock) Unlock() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}
