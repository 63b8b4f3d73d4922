package cache

import (
	"time"

	gocachestore "github.com/eko/gocache/store/go_cache/v4"
	gocacheclient "github.com/patrickmn/go-cache"
)

// Caches reports in process. Entries expire after a TTL; a zero TTL
// keeps them forever.
type Memory struct {
	storeCache

	client *gocacheclient.Cache
}

func NewMemory(ttl time.Duration) *Memory {
	expiration := ttl
	cleanup := 2 * ttl
	if ttl <= 0 {
		expiration = gocacheclient.NoExpiration
		cleanup = 0
	}

	client := gocacheclient.New(expiration, cleanup)

	return &Memory{
		storeCache: newStoreCache(gocachestore.NewGoCache(client)),
		client:     client,
	}
}

// Number of entries, expired ones not yet cleaned up included.
func (m *Memory) Len() int {
	return m.client.ItemCount()
}
