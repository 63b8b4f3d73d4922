package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	gocache "github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	"github.com/redis/go-redis/v9"

	"tidbyt.dev/gtfsmetrics"
)

// Reports as JSON strings behind any gocache store. Readers get
// their own copy of a cached report.
type storeCache struct {
	cache *gocache.Cache[string]
}

func newStoreCache(s store.StoreInterface) storeCache {
	return storeCache{cache: gocache.New[string](s)}
}

func (c storeCache) Get(ctx context.Context, key Key) (*gtfsmetrics.Report, bool, error) {
	value, err := c.cache.Get(ctx, key.String())
	if err != nil {
		if isMiss(err) {
			return nil, false, nil
		}
		return nil, false, err
	}

	report := &gtfsmetrics.Report{}
	err = json.Unmarshal([]byte(value), report)
	if err != nil {
		return nil, false, fmt.Errorf("unmarshaling report: %w", err)
	}

	return report, true, nil
}

func (c storeCache) Set(ctx context.Context, key Key, report *gtfsmetrics.Report) error {
	buf, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}

	return c.cache.Set(ctx, key.String(), string(buf))
}

func isMiss(err error) bool {
	var ptr *store.NotFound
	var val store.NotFound
	return errors.As(err, &ptr) ||
		errors.As(err, &val) ||
		errors.Is(err, store.NotFound{}) ||
		errors.Is(err, redis.Nil)
}
