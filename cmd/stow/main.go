// Command stow inspects and maintains a stow cache directory.
//
// Usage:
//
//	stow -dir <base> [-ns name] [-v] [-lock] list
//	stow -dir <base> [-ns name] get <id>
//	stow -dir <base> [-ns name] rm <id>
//	stow -dir <base> [-ns name] prune
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/meigma/stow/cache"
)

type config struct {
	dir       string
	namespace string
	verbose   bool
	lock      bool
	zstd      bool
	args      []string
}

func main() {
	log.SetFlags(0)
	log.SetPrefix("stow: ")

	cfg := parseFlags()
	if err := run(cfg, os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func parseFlags() config {
	var cfg config
	flag.StringVar(&cfg.dir, "dir", "bmcache", "base cache directory")
	flag.StringVar(&cfg.namespace, "ns", "default", "namespace")
	flag.BoolVar(&cfg.verbose, "v", false, "log cache activity to stderr")
	flag.BoolVar(&cfg.lock, "lock", false, "take the namespace advisory lock")
	flag.BoolVar(&cfg.zstd, "zstd", false, "compress payloads written by this run")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: stow [flags] list | get <id> | rm <id> | prune\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	cfg.args = flag.Args()
	if len(cfg.args) == 0 {
		flag.Usage()
		os.Exit(2)
	}
	return cfg
}

func run(cfg config, out io.Writer) error {
	opts := []cache.Option{cache.WithFileLock(cfg.lock)}
	if cfg.verbose {
		opts = append(opts, cache.WithLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))))
	}
	if cfg.zstd {
		opts = append(opts, cache.WithCompression(cache.CompressionZstd))
	}

	c, err := cache.New(cfg.dir, cfg.namespace, opts...)
	if err != nil {
		return err
	}
	defer c.Close()

	cmd, args := cfg.args[0], cfg.args[1:]
	switch cmd {
	case "list":
		return list(c, out)
	case "get":
		if len(args) != 1 {
			return errors.New("get requires an identifier")
		}
		return get(c, args[0], out)
	case "rm":
		if len(args) != 1 {
			return errors.New("rm requires an identifier")
		}
		return c.Remove(args[0])
	case "prune":
		n, err := c.Reconcile()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "pruned %d entries, %d remaining\n", n, c.Len())
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func list(c *cache.Cache, out io.Writer) error {
	now := time.Now()
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "IDENTIFIER\tEXPIRES\tSTATE\tDIGEST")
	for _, e := range c.Entries() {
		state := "live"
		if e.ExpiresAt.Before(now) {
			state = "expired"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Identifier, e.ExpiresAt.Format(time.RFC3339), state, e.Digest)
	}
	return tw.Flush()
}

func get(c *cache.Cache, id string, out io.Writer) error {
	raw, ok, err := cache.Get[json.RawMessage](c, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%q: %w", id, cache.ErrNotFound)
	}
	_, err = fmt.Fprintf(out, "%s\n", raw)
	return err
}
