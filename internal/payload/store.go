// Package payload stores one opaque blob per identifier as a file in a
// namespace directory.
//
// Each payload lives in "<identifier>.bm". Writes replace the file atomically.
// Content may optionally be zstd-compressed on disk; reads detect compressed
// frames by their magic number, so compression can be toggled between runs.
package payload

import (
	"bytes"
	_ "crypto/sha256" // registers digest.Canonical
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/klauspost/compress/zstd"
	digest "github.com/opencontainers/go-digest"

	"github.com/meigma/stow/internal/fileops"
)

// Ext is the file extension of payload files.
const Ext = ".bm"

const (
	defaultFilePerm = 0o600

	// maxNameLen leaves room for Ext and temp prefixes within common
	// 255-byte file name limits.
	maxNameLen = 200

	// defaultMaxDecoderMemory bounds the memory a single decode may use.
	defaultMaxDecoderMemory = 256 << 20
)

// zstdMagic is the little-endian zstd frame magic number.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

var (
	// ErrNotFound is returned when no payload file exists for an identifier.
	ErrNotFound = errors.New("payload: not found")

	// ErrCorrupt is returned when a payload fails decompression or digest verification.
	ErrCorrupt = errors.New("payload: corrupt")

	// ErrInvalidName is returned for identifiers that cannot be used as file names.
	ErrInvalidName = errors.New("payload: invalid name")
)

// Compression identifies how payloads are encoded on disk.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZstd
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// Option configures a Store.
type Option func(*Store)

// WithCompression sets the encoding used for new writes. Defaults to CompressionNone.
func WithCompression(c Compression) Option {
	return func(s *Store) {
		s.compression = c
	}
}

// WithFilePerm sets the permissions of payload files.
func WithFilePerm(mode os.FileMode) Option {
	return func(s *Store) {
		s.filePerm = mode
	}
}

// Store reads and writes payload files under a root directory.
// The store is safe for concurrent use, but concurrent writes to the same
// identifier race; last rename wins.
type Store struct {
	root        *os.Root
	compression Compression
	filePerm    os.FileMode

	encOnce sync.Once
	enc     *zstd.Encoder
	encErr  error

	decOnce sync.Once
	dec     *zstd.Decoder
	decErr  error
}

// New creates a Store rooted at root. The caller retains ownership of root.
func New(root *os.Root, opts ...Option) (*Store, error) {
	if root == nil {
		return nil, errors.New("payload: root is nil")
	}
	s := &Store{
		root:     root,
		filePerm: defaultFilePerm,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.compression != CompressionNone && s.compression != CompressionZstd {
		return nil, fmt.Errorf("payload: unsupported compression %d", s.compression)
	}
	return s, nil
}

// ValidName reports whether id can be stored as a payload file name.
func ValidName(id string) error {
	switch {
	case id == "", id == ".", id == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, id)
	case len(id) > maxNameLen:
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidName, maxNameLen)
	case !utf8.ValidString(id):
		return fmt.Errorf("%w: %q is not valid UTF-8", ErrInvalidName, id)
	case strings.ContainsAny(id, "/\\\x00"):
		return fmt.Errorf("%w: %q contains a path separator or NUL", ErrInvalidName, id)
	case fileops.IsTemp(id):
		return fmt.Errorf("%w: %q uses the reserved %q prefix", ErrInvalidName, id, fileops.TempPrefix)
	}
	return nil
}

// Name returns the file name used for id.
func Name(id string) (string, error) {
	if err := ValidName(id); err != nil {
		return "", err
	}
	return id + Ext, nil
}

// Write replaces the payload for id with data and returns the digest of data.
func (s *Store) Write(id string, data []byte) (digest.Digest, error) {
	name, err := Name(id)
	if err != nil {
		return "", err
	}

	dgst := digest.Canonical.FromBytes(data)
	out := data
	if s.compression == CompressionZstd {
		enc, err := s.encoder()
		if err != nil {
			return "", fmt.Errorf("create zstd encoder: %w", err)
		}
		out = enc.EncodeAll(data, make([]byte, 0, len(data)/2))
	}

	if err := fileops.WriteFile(s.root, name, out, s.filePerm); err != nil {
		return "", err
	}
	return dgst, nil
}

// Read returns the payload for id.
//
// It returns ErrNotFound if no file exists. When want is non-empty the
// decoded content must match it, otherwise ErrCorrupt is returned.
func (s *Store) Read(id string, want digest.Digest) ([]byte, error) {
	name, err := Name(id)
	if err != nil {
		return nil, err
	}

	data, err := s.root.ReadFile(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
		}
		return nil, err
	}

	if bytes.HasPrefix(data, zstdMagic) {
		dec, err := s.decoder()
		if err != nil {
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
		data, err = dec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: decompress %q: %v", ErrCorrupt, id, err)
		}
	}

	if want != "" {
		if err := verify(want, data); err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrCorrupt, id, err)
		}
	}
	return data, nil
}

// Delete removes the payload for id. A missing file is not an error.
func (s *Store) Delete(id string) error {
	name, err := Name(id)
	if err != nil {
		return err
	}
	if err := s.root.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Exists reports whether a payload file exists for id.
func (s *Store) Exists(id string) (bool, error) {
	name, err := Name(id)
	if err != nil {
		return false, err
	}
	info, err := s.root.Stat(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// List returns the identifiers of all payload files in the root directory.
func (s *Store) List() ([]string, error) {
	d, err := s.root.Open(".")
	if err != nil {
		return nil, err
	}
	entries, err := d.ReadDir(-1)
	_ = d.Close()
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || !strings.HasSuffix(name, Ext) {
			continue
		}
		id := strings.TrimSuffix(name, Ext)
		if ValidName(id) != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Close releases compression resources. The root is not closed.
func (s *Store) Close() error {
	if s.enc != nil {
		if err := s.enc.Close(); err != nil {
			return err
		}
	}
	if s.dec != nil {
		s.dec.Close()
	}
	return nil
}

func (s *Store) encoder() (*zstd.Encoder, error) {
	s.encOnce.Do(func() {
		s.enc, s.encErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	})
	return s.enc, s.encErr
}

func (s *Store) decoder() (*zstd.Decoder, error) {
	s.decOnce.Do(func() {
		s.dec, s.decErr = zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(0),
			zstd.WithDecoderMaxMemory(defaultMaxDecoderMemory),
		)
	})
	return s.dec, s.decErr
}

func verify(want digest.Digest, data []byte) error {
	if err := want.Validate(); err != nil {
		return fmt.Errorf("validate digest %q: %w", want, err)
	}
	algo := want.Algorithm()
	if !algo.Available() {
		return fmt.Errorf("digest algorithm %q unavailable", algo)
	}
	if got := algo.FromBytes(data); got != want {
		return fmt.Errorf("digest mismatch: got %s, want %s", got, want)
	}
	return nil
}
