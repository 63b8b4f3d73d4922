package cache

import (
	"time"

	"github.com/eko/gocache/lib/v4/store"
	redisstore "github.com/eko/gocache/store/redis/v4"
	"github.com/redis/go-redis/v9"
)

// Caches reports in Redis, so they're shared between processes.
type Redis struct {
	storeCache
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{
		storeCache: newStoreCache(redisstore.NewRedis(client, store.WithExpiration(ttl))),
	}
}
