package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// DiskStore implements BlobStore on a local directory
type DiskStore struct {
	dir      string
	maxBytes int64
	clock    clockwork.Clock
	logger   *zap.Logger
}

// NewDiskStore creates the upload directory if needed and returns a store
// rooted at it. clock stamps stored names; nil means the real clock.
func NewDiskStore(dir string, maxBytes int64, clock clockwork.Clock, logger *zap.Logger) (*DiskStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("upload directory is required")
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	return &DiskStore{
		dir:      dir,
		maxBytes: maxBytes,
		clock:    clock,
		logger:   logger,
	}, nil
}

// Store streams r into a temporary file and renames it into place once the
// size limit has been verified.
func (s *DiskStore) Store(ctx context.Context, originalName string, r io.Reader) (Blob, error) {
	if err := ctx.Err(); err != nil {
		return Blob{}, err
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return Blob{}, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	n, err := io.Copy(tmp, io.LimitReader(r, s.maxBytes+1))
	closeErr := tmp.Close()
	if err != nil {
		return Blob{}, fmt.Errorf("failed to write upload: %w", err)
	}
	if closeErr != nil {
		return Blob{}, fmt.Errorf("failed to close upload: %w", closeErr)
	}
	if n > s.maxBytes {
		return Blob{}, tooLarge(s.maxBytes)
	}

	name := StoredName(originalName, s.clock.Now())
	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		return Blob{}, fmt.Errorf("failed to store upload: %w", err)
	}

	s.logger.Info("Blob stored",
		zap.String("filename", name),
		zap.String("original_name", originalName),
		zap.Int64("size", n))

	return Blob{Name: name, Size: n}, nil
}

// Open returns the blob contents
func (s *DiskStore) Open(ctx context.Context, name string) (io.ReadCloser, Blob, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, Blob{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, Blob{}, missing(name)
		}
		return nil, Blob{}, fmt.Errorf("failed to open blob: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, Blob{}, fmt.Errorf("failed to stat blob: %w", err)
	}

	return f, Blob{Name: name, Size: info.Size()}, nil
}

// Delete removes the blob file if present
func (s *DiskStore) Delete(ctx context.Context, name string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to delete blob %s: %w", name, err)
	}

	s.logger.Info("Blob deleted", zap.String("filename", name))
	return nil
}

// Exists reports whether the blob file is present
func (s *DiskStore) Exists(ctx context.Context, name string) (bool, error) {
	path, err := s.path(name)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat blob: %w", err)
}

func (s *DiskStore) path(name string) (string, error) {
	if !ValidName(name) {
		return "", invalid(name)
	}
	return filepath.Join(s.dir, name), nil
}

var _ BlobStore = (*DiskStore)(nil)
