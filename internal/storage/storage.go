// Package storage provides the asset store for rendered slide images.
// It defines the Store interface (port) for hexagonal architecture, a local
// flat-directory implementation and an optional S3 mirror.
//
// The store keeps no index: every piece of metadata is derived from the
// filesystem at read time.
package storage

import (
	"context"
	"errors"
	"time"
)

// Static errors for asset store operations.
var (
	// ErrAssetNotFound is returned when an asset does not exist, including
	// assets that were evicted between two calls.
	ErrAssetNotFound = errors.New("storage: asset not found")
	// ErrInvalidName is returned for names that could escape the store directory.
	ErrInvalidName = errors.New("storage: invalid asset name")
)

// File is the metadata of one stored asset.
type File struct {
	// Name is the unique file name inside the store.
	Name string `json:"name"`
	// SizeBytes is the file size.
	SizeBytes int64 `json:"sizeBytes"`
	// CreatedAt is when the asset was written. Assets are immutable, so this
	// is the modification time.
	CreatedAt time.Time `json:"createdAt"`
	// LastAccessedAt is the last time the asset was served.
	LastAccessedAt time.Time `json:"lastAccessedAt"`
}

// IdleFor returns how long the asset has not been accessed as of now.
func (f File) IdleFor(now time.Time) time.Duration {
	return now.Sub(f.LastAccessedAt)
}

// Store defines the interface for the asset store.
// Implementations rely on the filesystem's single-file atomicity; there is
// no locking across calls.
type Store interface {
	// Put stores data as a new asset for the given 1-based slide index.
	// The extension (".png") is appended to the generated name.
	Put(ctx context.Context, index int, data []byte, ext string) (File, error)

	// Get returns the content of an asset or ErrAssetNotFound.
	Get(ctx context.Context, name string) ([]byte, error)

	// Stat returns the metadata of an asset or ErrAssetNotFound.
	Stat(ctx context.Context, name string) (File, error)

	// Delete removes an asset. Deleting a missing asset returns ErrAssetNotFound.
	Delete(ctx context.Context, name string) error

	// List returns the metadata of every asset.
	List(ctx context.Context) ([]File, error)

	// Touch moves the last-access time of an asset forward to at.
	// It never moves the time backwards.
	Touch(ctx context.Context, name string, at time.Time) error
}
