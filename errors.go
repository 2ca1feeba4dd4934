package stow

import (
	"errors"

	"github.com/meigma/stow/cache"
)

// ErrDuplicateName is returned by CreateNamespace for a name already registered.
var ErrDuplicateName = errors.New("stow: duplicate namespace name")

// Errors re-exported from cache.
var (
	// ErrNotFound is returned for unknown namespaces and, by cache operations,
	// for unknown identifiers.
	ErrNotFound = cache.ErrNotFound

	// ErrDeserialization is returned when a stored value cannot be decoded
	// into the requested type.
	ErrDeserialization = cache.ErrDeserialization

	// ErrInvalidIdentifier is returned for identifiers that cannot name a payload file.
	ErrInvalidIdentifier = cache.ErrInvalidIdentifier

	// ErrInvalidName is returned for namespace names that cannot name a directory.
	ErrInvalidName = cache.ErrInvalidName

	// ErrInvalidExpiration is returned for expirations that are not positive.
	ErrInvalidExpiration = cache.ErrInvalidExpiration

	// ErrClosed is returned by operations on a closed registry or namespace.
	ErrClosed = cache.ErrClosed

	// ErrLocked is returned when another process holds a namespace lock.
	ErrLocked = cache.ErrLocked
)
