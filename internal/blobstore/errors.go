package blobstore

import (
	"errors"
	"fmt"
)

var (
	// ErrUploadTooLarge is returned when an upload exceeds the configured cap
	ErrUploadTooLarge = errors.New("upload exceeds size limit")

	// ErrBlobMissing is returned when a blob was already removed or never materialized
	ErrBlobMissing = errors.New("blob not found")

	// ErrInvalidName is returned for names that were not produced by StoredName
	ErrInvalidName = errors.New("invalid blob name")
)

func missing(name string) error {
	return fmt.Errorf("%w: %s", ErrBlobMissing, name)
}

func invalid(name string) error {
	return fmt.Errorf("%w: %q", ErrInvalidName, name)
}

func tooLarge(limit int64) error {
	return fmt.Errorf("%w of %d bytes", ErrUploadTooLarge, limit)
}
