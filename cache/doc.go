// Package cache implements a disk-persistent, expiring key/value cache for
// one namespace directory.
//
// A Cache stores each value as a JSON payload file named after its
// identifier and keeps a ledger (main.json) mapping identifiers to expiration
// times and payload digests:
//
//	<dir>/<name>/main.json
//	<dir>/<name>/<identifier>.bm
//
// Expired entries are removed lazily, when a lookup observes them, and by a
// reconciliation pass that runs when the cache is opened. Entries whose
// payload is missing or fails verification are treated as expired.
//
// All writes replace files atomically. A Cache is safe for concurrent use
// within a process; WithFileLock guards a namespace against a second process.
//
// Basic usage:
//
//	c, err := cache.New("/var/cache/app", "users", cache.WithDefaultExpiration(time.Hour))
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	u, err := cache.GetOrCompute(ctx, c, "u1", func(ctx context.Context) (User, error) {
//	    return loadUser(ctx, "u1")
//	})
package cache
