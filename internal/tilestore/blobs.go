package tilestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by Blobs.Get when no object exists at the key.
var ErrNotFound = errors.New("blob not found")

// Blobs is a key/value blob store with list-by-prefix.
type Blobs interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// blobNamespace separates blob objects from any other keys in the same Redis.
const blobNamespace = "terrain:blob:"

// RedisBlobs stores blobs as plain Redis strings under terrain:blob:{key}.
type RedisBlobs struct {
	rdb *redis.Client
}

// NewRedisBlobs creates a blob store backed by a new Redis client.
func NewRedisBlobs(redisOpts *redis.Options) *RedisBlobs {
	return &RedisBlobs{rdb: redis.NewClient(redisOpts)}
}

// Close closes the Redis connection. Implements io.Closer.
func (b *RedisBlobs) Close() error {
	return b.rdb.Close()
}

// Ping verifies Redis connectivity.
func (b *RedisBlobs) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}

// Get returns the object at key, or ErrNotFound.
func (b *RedisBlobs) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := b.rdb.Get(ctx, blobNamespace+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", key, err)
	}
	return data, nil
}

// Put writes data at key, overwriting any previous object.
func (b *RedisBlobs) Put(ctx context.Context, key string, data []byte) error {
	if err := b.rdb.Set(ctx, blobNamespace+key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write blob %s: %w", key, err)
	}
	return nil
}

// List returns every key that starts with prefix, in no particular order.
func (b *RedisBlobs) List(ctx context.Context, prefix string) ([]string, error) {
	match := escapeGlob(blobNamespace+prefix) + "*"

	var keys []string
	iter := b.rdb.Scan(ctx, 0, match, 1000).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), blobNamespace))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to list blobs under %s: %w", prefix, err)
	}
	return keys, nil
}

// escapeGlob escapes the characters Redis MATCH treats as pattern syntax.
func escapeGlob(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
