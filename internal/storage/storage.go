// Package storage owns a process-scoped private temporary directory and the
// secure write and delete primitives that operate on files.
//
// Secure deletion here is best effort. On copy-on-write, log-structured, or
// wear-leveled storage the overwritten bytes may never reach the physical
// blocks that held the original data; snapshots can retain it outright.
// Callers on such media must treat deletion as risk reduction, not erasure.
package storage

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/acolita/secure-automation-mcp/internal/security"
)

// DefaultPasses is the number of random overwrite passes performed before
// the final zero pass.
const DefaultPasses = 3

const (
	tempPrefix    = "secure-auto-"
	wipeChunkSize = 4096
)

// SecureStorage owns a 0700 scratch directory created at construction. It is
// intended for a single automation session; it provides no internal locking,
// so concurrent callers sharing one instance must serialize access
// themselves.
type SecureStorage struct {
	root   string
	passes int
	tokens *security.TokenGenerator
	logger *slog.Logger
}

// Option configures a SecureStorage.
type Option func(*SecureStorage)

// WithLogger sets the logger used by the storage.
func WithLogger(logger *slog.Logger) Option {
	return func(s *SecureStorage) {
		s.logger = logger
	}
}

// WithPasses sets the number of random overwrite passes used by Cleanup and
// by SecureDelete when the caller passes a non-positive count.
func WithPasses(passes int) Option {
	return func(s *SecureStorage) {
		s.passes = passes
	}
}

// WithTokenGenerator sets the token generator used for scratch file names.
func WithTokenGenerator(g *security.TokenGenerator) Option {
	return func(s *SecureStorage) {
		s.tokens = g
	}
}

// Open creates the private scratch directory with an unguessable name and
// owner-only permissions. On any failure the directory is removed again and
// no storage is returned; there is no partially-initialized state.
func Open(opts ...Option) (*SecureStorage, error) {
	s := &SecureStorage{
		passes: DefaultPasses,
		tokens: security.NewTokenGenerator(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.passes <= 0 {
		s.passes = DefaultPasses
	}

	root, err := os.MkdirTemp("", tempPrefix)
	if err != nil {
		return nil, fmt.Errorf("create secure temp directory: %w", err)
	}
	if err := os.Chmod(root, 0o700); err != nil {
		_ = os.RemoveAll(root)
		return nil, fmt.Errorf("restrict temp directory permissions: %w", err)
	}

	s.root = root
	s.logger.Debug("created secure temp directory", slog.String("path", root))
	return s, nil
}

// Root returns the scratch directory path.
func (s *SecureStorage) Root() string {
	return s.root
}

// WriteSecure writes content to dest by staging it in a randomly named
// scratch file under the owned root and atomically renaming it into place.
// A concurrent reader of dest observes either the prior content or the new
// content in full, never a partial write. The requested permissions are
// applied before the file becomes visible at dest. A zero perm means 0600.
func (s *SecureStorage) WriteSecure(dest string, content []byte, perm fs.FileMode) error {
	if perm == 0 {
		perm = 0o600
	}

	token, err := s.tokens.Token(8)
	if err != nil {
		return fmt.Errorf("name scratch file: %w", err)
	}
	scratch := filepath.Join(s.root, "scratch_"+token)

	f, err := os.OpenFile(scratch, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create scratch file: %w", err)
	}
	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		_ = os.Remove(scratch)
		return fmt.Errorf("write scratch file: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(scratch)
		return fmt.Errorf("sync scratch file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(scratch)
		return fmt.Errorf("close scratch file: %w", err)
	}

	if err := os.Chmod(scratch, perm); err != nil {
		_ = os.Remove(scratch)
		return fmt.Errorf("set permissions on scratch file: %w", err)
	}
	if err := os.Rename(scratch, dest); err != nil {
		_ = os.Remove(scratch)
		return fmt.Errorf("replace %s: %w", dest, err)
	}

	s.logger.Debug("wrote file atomically",
		slog.String("path", dest),
		slog.Int("bytes", len(content)),
	)
	return nil
}

// SecureDelete overwrites the file at path with random bytes passes times
// and with zeros once, forcing each pass to storage, then unlinks it. A
// non-positive passes uses the configured default. An absent path is a
// successful no-op, so deletion is idempotent. On any failure the file is
// left in place and the error names the step that failed; a file is never
// unlinked without the full overwrite sequence having succeeded.
func (s *SecureStorage) SecureDelete(path string, passes int) error {
	if passes <= 0 {
		passes = s.passes
	}

	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("refusing to overwrite non-regular file %s", path)
	}
	size := info.Size()

	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("open %s for overwrite: %w", path, err)
	}

	for pass := 1; pass <= passes; pass++ {
		if err := overwrite(f, size, randomFill); err != nil {
			_ = f.Close()
			return fmt.Errorf("overwrite pass %d/%d of %s: %w", pass, passes, path, err)
		}
	}
	if err := overwrite(f, size, zeroFill); err != nil {
		_ = f.Close()
		return fmt.Errorf("zero pass of %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s after overwrite: %w", path, err)
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("unlink %s: %w", path, err)
	}

	s.logger.Debug("securely deleted file",
		slog.String("path", path),
		slog.Int("passes", passes+1),
		slog.Int64("bytes", size),
	)
	return nil
}

// Cleanup secure-deletes every regular file under the scratch root, then
// removes the directory tree. It is safe in both the success path and an
// aborting session: whatever files exist are deleted, and an already-absent
// root is a no-op.
func (s *SecureStorage) Cleanup() error {
	if s.root == "" {
		return nil
	}
	if _, err := os.Stat(s.root); errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return s.SecureDelete(path, s.passes)
	})
	if err != nil {
		return fmt.Errorf("purge scratch files: %w", err)
	}

	if err := os.RemoveAll(s.root); err != nil {
		return fmt.Errorf("remove scratch directory: %w", err)
	}

	s.logger.Debug("secure cleanup completed", slog.String("path", s.root))
	return nil
}

// overwrite writes size bytes from fill over the start of f and forces them
// to storage before returning.
func overwrite(f *os.File, size int64, fill func([]byte) error) error {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek: %w", err)
	}

	buf := make([]byte, wipeChunkSize)
	remaining := size
	for remaining > 0 {
		chunk := int64(len(buf))
		if remaining < chunk {
			chunk = remaining
		}
		if err := fill(buf[:chunk]); err != nil {
			return fmt.Errorf("fill buffer: %w", err)
		}
		if _, err := f.Write(buf[:chunk]); err != nil {
			return fmt.Errorf("write: %w", err)
		}
		remaining -= chunk
	}

	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	return nil
}

var randomFill = func(b []byte) error {
	_, err := rand.Read(b)
	return err
}

var zeroFill = func(b []byte) error {
	for i := range b {
		b[i] = 0
	}
	return nil
}
