package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisConfig contains configuration options for the Redis blob store
type RedisConfig struct {
	// Client is the Redis client instance
	Client *redis.Client

	// KeyPrefix is the prefix for all blob keys
	// Default: "pairshare:blobs:"
	KeyPrefix string

	// MaxBytes caps a single blob. Redis strings top out at 512 MiB.
	MaxBytes int64

	// Clock stamps stored names
	// Default: the real clock
	Clock clockwork.Clock
}

// RedisStore implements BlobStore with one Redis string per blob. Suitable
// when several relay nodes share uploads.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	maxBytes  int64
	clock     clockwork.Clock
	logger    *zap.Logger
}

// NewRedisStore creates a new Redis-backed blob store
func NewRedisStore(cfg RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "pairshare:blobs:"
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxUploadBytes
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	return &RedisStore{
		client:    cfg.Client,
		keyPrefix: cfg.KeyPrefix,
		maxBytes:  cfg.MaxBytes,
		clock:     cfg.Clock,
		logger:    logger,
	}, nil
}

// Store buffers r up to the size limit and writes it under a new key
func (s *RedisStore) Store(ctx context.Context, originalName string, r io.Reader) (Blob, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return Blob{}, fmt.Errorf("failed to read upload: %w", err)
	}
	if n > s.maxBytes {
		return Blob{}, tooLarge(s.maxBytes)
	}

	name := StoredName(originalName, s.clock.Now())
	if err := s.client.Set(ctx, s.key(name), buf.Bytes(), 0).Err(); err != nil {
		return Blob{}, fmt.Errorf("failed to store blob %s: %w", name, err)
	}

	s.logger.Info("Blob stored",
		zap.String("filename", name),
		zap.String("original_name", originalName),
		zap.Int64("size", n))

	return Blob{Name: name, Size: n}, nil
}

// Open fetches the blob into memory
func (s *RedisStore) Open(ctx context.Context, name string) (io.ReadCloser, Blob, error) {
	if !ValidName(name) {
		return nil, Blob{}, invalid(name)
	}

	data, err := s.client.Get(ctx, s.key(name)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, Blob{}, missing(name)
		}
		return nil, Blob{}, fmt.Errorf("failed to get blob %s: %w", name, err)
	}

	return io.NopCloser(bytes.NewReader(data)), Blob{Name: name, Size: int64(len(data))}, nil
}

// Delete removes the blob key; DEL on a missing key is a no-op
func (s *RedisStore) Delete(ctx context.Context, name string) error {
	if !ValidName(name) {
		return invalid(name)
	}

	removed, err := s.client.Del(ctx, s.key(name)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete blob %s: %w", name, err)
	}
	if removed > 0 {
		s.logger.Info("Blob deleted", zap.String("filename", name))
	}
	return nil
}

// Exists reports whether the blob key is present
func (s *RedisStore) Exists(ctx context.Context, name string) (bool, error) {
	if !ValidName(name) {
		return false, invalid(name)
	}

	n, err := s.client.Exists(ctx, s.key(name)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check blob %s: %w", name, err)
	}
	return n > 0, nil
}

func (s *RedisStore) key(name string) string {
	return s.keyPrefix + name
}

var _ BlobStore = (*RedisStore)(nil)
