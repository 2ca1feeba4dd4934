// Package stow provides a process-local, disk-persistent cache for
// JSON-serializable values with per-entry expiration.
//
// Values are grouped into namespaces. Each namespace is a [cache.Cache] that
// owns one directory under the registry's base directory:
//
//	<dir>/default/main.json   ledger of identifiers and expirations
//	<dir>/default/u1.bm       payload for identifier "u1"
//
// A [Registry] creates and looks up namespaces. The namespace "default" is
// created automatically.
//
// # Quick Start
//
//	reg, err := stow.New("/var/cache/myapp", stow.WithDefaultExpiration(time.Hour))
//	if err != nil {
//	    return err
//	}
//	defer reg.Close()
//
//	users, err := reg.CreateNamespace("users")
//	if err != nil {
//	    return err
//	}
//	u, err := cache.GetOrCompute(ctx, users, "u1", func(ctx context.Context) (User, error) {
//	    return fetchUser(ctx, "u1")
//	})
//
// # Consistency
//
// Ledger and payload writes go to a temporary file that is renamed into
// place, so a crash never leaves a truncated document. Within a process each
// namespace serializes its mutations. Namespaces opened with WithFileLock also
// exclude other processes through an advisory lock.
package stow
