// Package flock provides an advisory, non-blocking exclusive lock on a file
// inside an os.Root.
//
// The lock guards a directory shared by several processes. It is advisory:
// only processes that also take the lock are excluded.
package flock

import "errors"

// ErrLocked is returned by TryLock when another holder owns the lock.
var ErrLocked = errors.New("flock: already locked")
