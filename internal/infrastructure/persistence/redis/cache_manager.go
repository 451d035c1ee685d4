package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/ckms/internal/domain/service"
	"github.com/turtacn/ckms/pkg/logger"
)

const publicKeyCacheKeyPrefix = "ckms:pubkey:"

// PublicKeyCacheManager implements service.PublicKeyCache against Redis. It
// is the cache CryptoFacade consults, keyed on alias, after resolving a
// scope's current key through the AliasIndex and HSM/database tiers.
type PublicKeyCacheManager struct {
	redis *RedisConnection
	log   logger.Logger
}

// NewPublicKeyCacheManager creates a new PublicKeyCacheManager.
func NewPublicKeyCacheManager(redis *RedisConnection, log logger.Logger) *PublicKeyCacheManager {
	return &PublicKeyCacheManager{redis: redis, log: log}
}

// Get returns the cached DER SubjectPublicKeyInfo for alias, and whether it
// was present. Any Redis error is treated as a cache miss rather than
// propagated, since the cache is an optimization and never a source of
// truth.
func (c *PublicKeyCacheManager) Get(ctx context.Context, alias string) ([]byte, bool) {
	client := c.redis.GetClient()
	if client == nil {
		return nil, false
	}

	val, err := client.Get(ctx, publicKeyCacheKeyPrefix+alias).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn(ctx, "public key cache read failed", logger.Fields{"alias": alias, "error": err.Error()})
		}
		return nil, false
	}
	return val, true
}

// Set caches the DER SubjectPublicKeyInfo for alias with the given TTL.
func (c *PublicKeyCacheManager) Set(ctx context.Context, alias string, der []byte, ttl time.Duration) {
	client := c.redis.GetClient()
	if client == nil {
		return
	}

	if err := client.Set(ctx, publicKeyCacheKeyPrefix+alias, der, ttl).Err(); err != nil {
		c.log.Warn(ctx, "public key cache write failed", logger.Fields{"alias": alias, "error": err.Error()})
	}
}

var _ service.PublicKeyCache = (*PublicKeyCacheManager)(nil)
