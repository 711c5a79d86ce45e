// Package fs implements the content-addressed file store. Originals are
// placed under a directory derived from their content hash and the month
// they were stored in, with a unique time-plus-random filename.
package fs

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/tendant/simple-media/pkg/simplemedia"
	"github.com/tendant/simple-media/pkg/simplemedia/retry"
)

const (
	// DefaultDirMode is the permission used for created shard directories
	DefaultDirMode os.FileMode = 0755

	// DefaultNameAttempts bounds unique filename allocation
	DefaultNameAttempts = 100

	monthSeconds = 30 * 24 * 60 * 60
)

var errNameTaken = errors.New("name taken")

// Store is a filesystem implementation of simplemedia.FileStore
type Store struct {
	root      string
	tempDir   string
	dirMode   os.FileMode
	attempts  int
	pruneDirs bool
	nameFunc  func(now time.Time) string
	logger    *slog.Logger
}

// Config options for the filesystem store
type Config struct {
	Root         string      // Storage root; stored paths are relative to it
	TempDir      string      // Spool directory, defaults to <Root>/.tmp
	DirMode      os.FileMode // Mode for created directories, defaults to 0755
	NameAttempts int         // Unique name attempts, defaults to 100
	PruneDirs    bool        // Remove empty parent directories after Remove
}

// Option configures a Store
type Option func(*Store)

// WithNameFunc replaces the candidate filename generator
func WithNameFunc(fn func(now time.Time) string) Option {
	return func(s *Store) {
		s.nameFunc = fn
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a new filesystem store
func New(config Config, options ...Option) (*Store, error) {
	if config.Root == "" {
		return nil, errors.New("storage root is required")
	}
	root, err := filepath.Abs(config.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root: %w", err)
	}

	s := &Store{
		root:      root,
		tempDir:   config.TempDir,
		dirMode:   config.DirMode,
		attempts:  config.NameAttempts,
		pruneDirs: config.PruneDirs,
		nameFunc:  UniqueName,
		logger:    slog.Default(),
	}
	if s.tempDir == "" {
		s.tempDir = filepath.Join(root, ".tmp")
	}
	if s.dirMode == 0 {
		s.dirMode = DefaultDirMode
	}
	if s.attempts <= 0 {
		s.attempts = DefaultNameAttempts
	}
	for _, option := range options {
		option(s)
	}
	s.logger = s.logger.With("component", "filestore")

	if err := os.MkdirAll(root, s.dirMode); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	if err := os.MkdirAll(s.tempDir, s.dirMode); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	return s, nil
}

// Root returns the absolute storage root
func (s *Store) Root() string {
	return s.root
}

// UniqueName builds a candidate filename from the unix time and 128 random bits
func UniqueName(now time.Time) string {
	return simplemedia.NewToken(now)
}

// ComputeHash returns the hex sha1 digest of r
func ComputeHash(r io.Reader) (string, error) {
	h := sha1.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// MonthBucket returns the 30-day period number of t
func MonthBucket(t time.Time) int64 {
	secs := t.Unix()
	if secs < 0 {
		return (secs - monthSeconds + 1) / monthSeconds
	}
	return secs / monthSeconds
}

// ShardPath returns baseDir/month/seg1/.../remainder for a digest. The first
// level*2 characters of the digest are split into two-character segments and
// the rest of the digest is the last component. A level that does not fit
// the digest falls back to the default.
func ShardPath(baseDir, digest string, level int, now time.Time) string {
	if level <= 0 || len(digest) < level*2 {
		level = simplemedia.DefaultLevel
	}
	prefixLen := level * 2
	if prefixLen > len(digest) {
		prefixLen = len(digest) - len(digest)%2
	}

	parts := []string{"/", baseDir, fmt.Sprintf("%d", MonthBucket(now))}
	for i := 0; i < prefixLen; i += 2 {
		parts = append(parts, digest[i:i+2])
	}
	if rest := digest[prefixLen:]; rest != "" {
		parts = append(parts, rest)
	}
	return path.Join(parts...)
}

// Hash returns the content digest of the file at an absolute path
func (s *Store) Hash(filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", &simplemedia.StorageError{Op: "hash", Path: filePath, Err: err}
	}
	defer f.Close()

	digest, err := ComputeHash(f)
	if err != nil {
		return "", &simplemedia.StorageError{Op: "hash", Path: filePath, Err: err}
	}
	return digest, nil
}

// AllocateUniqueName returns a name (without extension) that does not exist
// in the absolute directory dir
func (s *Store) AllocateUniqueName(ctx context.Context, dir, ext string, now time.Time) (string, error) {
	name, err := retry.Do(ctx, s.attempts, retry.On(errNameTaken), func(int) (string, error) {
		candidate := s.nameFunc(now)
		_, err := os.Stat(filepath.Join(dir, candidate+"."+ext))
		switch {
		case err == nil:
			return "", errNameTaken
		case errors.Is(err, os.ErrNotExist):
			return candidate, nil
		default:
			return "", err
		}
	})
	if errors.Is(err, retry.ErrExhausted) {
		s.logger.Error("unique name allocation exhausted", "dir", dir, "attempts", s.attempts)
		return "", &simplemedia.StorageError{Op: "allocate", Path: dir, Err: simplemedia.ErrStorageExhausted}
	}
	if err != nil {
		return "", &simplemedia.StorageError{Op: "allocate", Path: dir, Err: err}
	}
	return name, nil
}

// Commit creates dir and moves tempPath into it as filename
func (s *Store) Commit(tempPath, dir, filename string) (string, error) {
	if err := os.MkdirAll(dir, s.dirMode); err != nil {
		return "", &simplemedia.StorageError{Op: "mkdir", Path: dir, Err: err}
	}

	dst := filepath.Join(dir, filename)
	if err := os.Rename(tempPath, dst); err != nil {
		if !errors.Is(err, syscall.EXDEV) {
			return "", &simplemedia.StorageError{Op: "rename", Path: dst, Err: err}
		}
		if err := moveAcrossDevices(tempPath, dst); err != nil {
			return "", &simplemedia.StorageError{Op: "rename", Path: dst, Err: err}
		}
	}
	return dst, nil
}

// moveAcrossDevices copies src next to dst, syncs it and renames it into place
func moveAcrossDevices(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".commit-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Remove(src)
}

// Put shards, names and commits tempPath under baseDir
func (s *Store) Put(ctx context.Context, tempPath, baseDir, hash, ext string, level int, now time.Time) (*simplemedia.StoredFile, error) {
	relDir := ShardPath(baseDir, hash, level, now)
	absDir := s.Abs(relDir)

	name, err := s.AllocateUniqueName(ctx, absDir, ext, now)
	if err != nil {
		return nil, err
	}
	if _, err := s.Commit(tempPath, absDir, name+"."+ext); err != nil {
		return nil, err
	}

	s.logger.Debug("file committed", "dir", relDir, "name", name, "hash", hash)
	return &simplemedia.StoredFile{Dir: relDir + "/", Name: name, Ext: ext}, nil
}

// Spool copies r into a new temporary file
func (s *Store) Spool(ctx context.Context, r io.Reader) (string, error) {
	f, err := os.CreateTemp(s.tempDir, "upload-*")
	if err != nil {
		return "", &simplemedia.StorageError{Op: "spool", Path: s.tempDir, Err: err}
	}
	name := f.Name()

	if _, err := io.Copy(f, &ctxReader{ctx: ctx, r: r}); err != nil {
		f.Close()
		os.Remove(name)
		return "", &simplemedia.StorageError{Op: "spool", Path: name, Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", &simplemedia.StorageError{Op: "spool", Path: name, Err: err}
	}
	return name, nil
}

// TempPath returns a fresh absolute path in the spool directory
func (s *Store) TempPath(suffix string) string {
	return filepath.Join(s.tempDir, UniqueName(time.Now())+suffix)
}

// Abs resolves a store-relative path
func (s *Store) Abs(rel string) string {
	return filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(rel, "/")))
}

// Rel converts an absolute path under the root into a store-relative one
func (s *Store) Rel(abs string) string {
	rel, err := filepath.Rel(s.root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return abs
	}
	return "/" + filepath.ToSlash(rel)
}

// Stat returns the size of a stored file
func (s *Store) Stat(rel string) (int64, error) {
	info, err := os.Stat(s.Abs(rel))
	if err != nil {
		return 0, &simplemedia.StorageError{Op: "stat", Path: rel, Err: err}
	}
	return info.Size(), nil
}

// Rename moves a stored file. A missing source is ignored.
func (s *Store) Rename(oldRel, newRel string) error {
	err := os.Rename(s.Abs(oldRel), s.Abs(newRel))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return &simplemedia.StorageError{Op: "rename", Path: oldRel, Err: err}
	}
	return nil
}

// Remove deletes a stored file. A missing file counts as already deleted.
func (s *Store) Remove(rel string) error {
	abs := s.Abs(rel)
	if err := os.Remove(abs); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return &simplemedia.StorageError{Op: "remove", Path: rel, Err: err}
	}
	if s.pruneDirs {
		s.cleanupEmptyDirectories(filepath.Dir(abs))
	}
	return nil
}

// cleanupEmptyDirectories recursively removes empty directories up to the root
func (s *Store) cleanupEmptyDirectories(dir string) {
	if dir == s.root || !strings.HasPrefix(dir, s.root) {
		return
	}

	if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
		if os.Remove(dir) == nil {
			s.cleanupEmptyDirectories(filepath.Dir(dir))
		}
	}
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

var _ simplemedia.FileStore = (*Store)(nil)
