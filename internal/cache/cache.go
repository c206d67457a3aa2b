package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/mediclaim/internal/model"
)

// KeyPrefix namespaces every key this package writes
const KeyPrefix = "mediclaim:v1:"

// Cache defines the interface for caching
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// CacheKey generates a cache key from a claim ID.
// IDs are hashed so raw identifiers never appear in file names or redis keys.
func CacheKey(claimID string) string {
	hash := sha256.Sum256([]byte(claimID))
	return KeyPrefix + hex.EncodeToString(hash[:])
}

// New builds the cache backend named in cfg. It returns nil when caching is disabled.
func New(cfg model.CacheConfig) (Cache, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	switch strings.ToLower(cfg.Backend) {
	case "", "memory":
		return NewMemoryCache(cfg.TTL, 10*time.Minute), nil
	case "layered", "disk":
		return NewLayeredCache(cfg.MemoryTTL, cfg.Dir, cfg.TTL), nil
	case "redis":
		return NewRedisCache(NewRedisClient(cfg), cfg.TTL), nil
	default:
		return nil, fmt.Errorf("unknown cache backend: %s (supported: memory, layered, redis)", cfg.Backend)
	}
}
