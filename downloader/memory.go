package downloader

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

type FetchFunc func(ctx context.Context, url string, headers map[string]string, options GetOptions) ([]byte, error)

// Keeps downloaded feeds in memory, by URL and headers. Expired
// entries are replaced on the next cached Get.
type MemoryDownloader struct {
	TimeNow func() time.Time
	Logger  zerolog.Logger

	// Performs the actual fetch. Defaults to HTTPGet.
	Fetch FetchFunc

	mutex   sync.Mutex
	entries map[string]memoryEntry

	// One fetch per key at a time. Other keys don't wait.
	fetches singleflight.Group
}

type memoryEntry struct {
	body    []byte
	expires time.Time
}

func NewMemoryDownloader() *MemoryDownloader {
	return &MemoryDownloader{
		TimeNow: time.Now,
		Logger:  zerolog.Nop(),
		Fetch:   HTTPGet,
		entries: map[string]memoryEntry{},
	}
}

func (d *MemoryDownloader) Get(
	ctx context.Context,
	url string,
	headers map[string]string,
	options GetOptions,
) ([]byte, error) {
	if !options.Cache {
		return d.Fetch(ctx, url, headers, options)
	}

	key := cacheKey(url, headers)
	logger := d.Logger.With().Str("url", url).Logger()

	if body, found := d.lookup(key, logger); found {
		return body, nil
	}

	v, err, _ := d.fetches.Do(key, func() (interface{}, error) {
		// Another fetch may have filled the entry meanwhile.
		if body, found := d.lookup(key, logger); found {
			return body, nil
		}

		body, err := d.Fetch(ctx, url, headers, options)
		if err != nil {
			return nil, err
		}

		d.mutex.Lock()
		d.entries[key] = memoryEntry{
			body:    body,
			expires: d.TimeNow().Add(options.CacheTTL),
		}
		d.mutex.Unlock()

		return body, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (d *MemoryDownloader) lookup(key string, logger zerolog.Logger) ([]byte, bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	entry, found := d.entries[key]
	if !found {
		return nil, false
	}
	if d.TimeNow().Before(entry.expires) {
		logger.Debug().Msg("download cache hit")
		return entry.body, true
	}

	logger.Debug().Msg("download cache expired")
	delete(d.entries, key)
	return nil, false
}

// Number of cached downloads, expired ones included.
func (d *MemoryDownloader) Len() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return len(d.entries)
}
