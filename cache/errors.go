package cache

import "errors"

// Sentinel errors for cache operations.
var (
	// ErrNotFound is returned when an operation requires an entry that does not exist.
	ErrNotFound = errors.New("cache: not found")

	// ErrDeserialization is returned when a stored payload cannot be decoded
	// into the requested type.
	ErrDeserialization = errors.New("cache: deserialization failed")

	// ErrInvalidIdentifier is returned for identifiers that cannot name a payload file.
	ErrInvalidIdentifier = errors.New("cache: invalid identifier")

	// ErrInvalidName is returned for namespace names that cannot name a directory.
	ErrInvalidName = errors.New("cache: invalid namespace name")

	// ErrInvalidExpiration is returned for expirations that are not positive.
	ErrInvalidExpiration = errors.New("cache: expiration must be positive")

	// ErrClosed is returned by operations on a closed cache.
	ErrClosed = errors.New("cache: closed")

	// ErrLocked is returned when another process holds the namespace lock.
	ErrLocked = errors.New("cache: namespace locked by another process")
)
