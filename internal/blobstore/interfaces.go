package blobstore

import (
	"context"
	"io"
)

// DefaultMaxUploadBytes caps a single upload at 500 MiB
const DefaultMaxUploadBytes int64 = 500 * 1024 * 1024

// Blob describes a stored file
type Blob struct {
	Name string `json:"filename"`
	Size int64  `json:"size"`
}

// BlobStore defines the interface for uploaded file storage, keyed by stored name
type BlobStore interface {
	// Store saves the contents of r under a new name derived from originalName
	Store(ctx context.Context, originalName string, r io.Reader) (Blob, error)

	// Open returns a reader over the blob. Returns ErrBlobMissing if absent.
	Open(ctx context.Context, name string) (io.ReadCloser, Blob, error)

	// Delete removes the blob. Deleting an absent blob is not an error.
	Delete(ctx context.Context, name string) error

	// Exists reports whether the blob is present
	Exists(ctx context.Context, name string) (bool, error)
}
