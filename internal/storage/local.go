package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/djherbis/times"
)

// Compile-time check that LocalStore implements Store.
var _ Store = (*LocalStore)(nil)

// tempPrefix marks in-flight writes; List and ValidateName ignore such names.
const tempPrefix = ".tmp-"

// LocalStore implements the Store interface on a single flat directory.
type LocalStore struct {
	dir string
	now func() time.Time
}

// LocalOption configures a LocalStore.
type LocalOption func(*LocalStore)

// WithClock sets the time source used to stamp new assets.
func WithClock(now func() time.Time) LocalOption {
	return func(s *LocalStore) {
		s.now = now
	}
}

// NewLocalStore creates a new LocalStore rooted at dir.
// If dir is empty, a directory under os.TempDir() is used.
// The directory is created if it doesn't exist.
func NewLocalStore(dir string, opts ...LocalOption) (*LocalStore, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "slidenotes", "uploads")
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create uploads directory: %w", err)
	}

	s := &LocalStore{dir: dir, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the store directory path.
func (s *LocalStore) Dir() string {
	return s.dir
}

// Put writes data to a temporary file and renames it into place, so readers
// never observe a partially written asset. Both timestamps are set to now.
func (s *LocalStore) Put(ctx context.Context, index int, data []byte, ext string) (File, error) {
	if err := ctx.Err(); err != nil {
		return File{}, fmt.Errorf("context cancelled: %w", err)
	}

	// The directory may have been removed since start-up; MkdirAll is idempotent
	// and tolerates concurrent creation.
	if err := os.MkdirAll(s.dir, 0750); err != nil {
		return File{}, fmt.Errorf("create uploads directory: %w", err)
	}

	now := s.now()
	name := NewName(index, ext, now)

	f, err := os.CreateTemp(s.dir, tempPrefix+"*")
	if err != nil {
		return File{}, fmt.Errorf("create temp file: %w", err)
	}

	tmpName := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpName)
		return File{}, fmt.Errorf("write temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmpName)
		return File{}, fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Chmod(tmpName, 0640); err != nil {
		_ = os.Remove(tmpName)
		return File{}, fmt.Errorf("chmod asset: %w", err)
	}

	if err := os.Chtimes(tmpName, now, now); err != nil {
		_ = os.Remove(tmpName)
		return File{}, fmt.Errorf("stamp asset: %w", err)
	}

	if err := os.Rename(tmpName, s.path(name)); err != nil {
		_ = os.Remove(tmpName)
		return File{}, fmt.Errorf("rename asset: %w", err)
	}

	return File{
		Name:           name,
		SizeBytes:      int64(len(data)),
		CreatedAt:      now,
		LastAccessedAt: now,
	}, nil
}

// Get reads the content of an asset.
func (s *LocalStore) Get(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path(name))
	if err != nil {
		return nil, notFound(name, err)
	}
	return data, nil
}

// Stat returns the metadata of an asset.
func (s *LocalStore) Stat(ctx context.Context, name string) (File, error) {
	if err := ctx.Err(); err != nil {
		return File{}, fmt.Errorf("context cancelled: %w", err)
	}
	if err := ValidateName(name); err != nil {
		return File{}, err
	}

	fi, err := os.Stat(s.path(name))
	if err != nil {
		return File{}, notFound(name, err)
	}
	if !fi.Mode().IsRegular() {
		return File{}, fmt.Errorf("%w: %s", ErrAssetNotFound, name)
	}
	return fileFromInfo(fi), nil
}

// Delete removes an asset.
func (s *LocalStore) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	if err := ValidateName(name); err != nil {
		return err
	}

	if err := os.Remove(s.path(name)); err != nil {
		return notFound(name, err)
	}
	return nil
}

// List returns the metadata of every asset, ordered by name.
// A missing directory is an empty store. Files that vanish while listing are skipped.
func (s *LocalStore) List(ctx context.Context) ([]File, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []File{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read uploads directory: %w", err)
	}

	files := make([]File, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("context cancelled: %w", err)
		}
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, fileFromInfo(fi))
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// Touch sets the access time of an asset, keeping its modification time.
func (s *LocalStore) Touch(ctx context.Context, name string, at time.Time) error {
	f, err := s.Stat(ctx, name)
	if err != nil {
		return err
	}
	if !at.After(f.LastAccessedAt) {
		return nil
	}

	if err := os.Chtimes(s.path(name), at, f.CreatedAt); err != nil {
		return notFound(name, err)
	}
	return nil
}

func (s *LocalStore) path(name string) string {
	return filepath.Join(s.dir, name)
}

func fileFromInfo(fi os.FileInfo) File {
	ts := times.Get(fi)
	return File{
		Name:           fi.Name(),
		SizeBytes:      fi.Size(),
		CreatedAt:      ts.ModTime(),
		LastAccessedAt: ts.AccessTime(),
	}
}

// notFound maps missing files to ErrAssetNotFound and wraps everything else.
func notFound(name string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrAssetNotFound, name)
	}
	return fmt.Errorf("storage: %s: %w", name, err)
}
