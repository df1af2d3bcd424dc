package relay

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/pairshare/pairshare/internal/blobstore"
	"github.com/pairshare/pairshare/internal/sessions"
)

// Cleaner reclaims the blobs referenced by a finished session
type Cleaner struct {
	blobs  blobstore.BlobStore
	logger *zap.Logger
}

// NewCleaner creates a new cleanup coordinator
func NewCleaner(blobs blobstore.BlobStore, logger *zap.Logger) *Cleaner {
	return &Cleaner{blobs: blobs, logger: logger}
}

// CleanupSession deletes every blob the session announced. Missing blobs are
// expected (already removed, or the upload never completed) and skipped.
// Other failures are collected; one bad blob never stops the rest. Safe to
// call more than once for the same session.
func (c *Cleaner) CleanupSession(ctx context.Context, s *sessions.Session) error {
	if s == nil {
		return nil
	}

	var errs []error
	for _, f := range s.Files {
		err := c.blobs.Delete(ctx, f.Filename)
		switch {
		case err == nil:
		case errors.Is(err, blobstore.ErrBlobMissing):
			c.logger.Debug("Blob already gone",
				zap.String("session_code", s.Code),
				zap.String("filename", f.Filename))
		default:
			c.logger.Error("Failed to delete blob",
				zap.String("session_code", s.Code),
				zap.String("filename", f.Filename),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("delete %s: %w", f.Filename, err))
		}
	}

	return errors.Join(errs...)
}
