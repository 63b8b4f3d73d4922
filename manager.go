package gtfsmetrics

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"tidbyt.dev/gtfsmetrics/downloader"
	"tidbyt.dev/gtfsmetrics/parse"
	"tidbyt.dev/gtfsmetrics/storage"
)

const (
	DefaultStaticTimeout = 60 * time.Second
	DefaultStaticMaxSize = 800 << 20 // 800 MB
	DefaultRetries       = 3
)

var ErrFeedNotLoaded = errors.New("feed not loaded")

// Manager loads feeds by URL and keeps them in memory.
//
// A feed is parsed into storage the first time its URL is seen. Later
// loads (including from other processes sharing the storage) read
// the parsed tables back instead of downloading again.
type Manager struct {
	StaticTimeout time.Duration
	StaticMaxSize int
	Retries       int
	Headers       map[string]string
	Downloader    downloader.Downloader

	// Downloads are kept by the Downloader for this long when
	// positive. Refresh always goes to the network.
	DownloadCacheTTL time.Duration

	Logger zerolog.Logger

	// For testing
	TimeNow func() time.Time

	storage storage.Storage

	mutex  sync.Mutex
	loaded map[string]*Static

	// Concurrent loads of a URL share one download and parse.
	loads singleflight.Group

	// Held while a hash is checked for and parsed into storage.
	hashMutex sync.Mutex
	hashLocks map[string]*sync.Mutex
}

// Creates a new Manager of GTFS data, on top of the given storage.
//
// Downloads are not cached by the default downloader, since parsed
// feeds are persisted in storage.
func NewManager(s storage.Storage) *Manager {
	return &Manager{
		StaticTimeout: DefaultStaticTimeout,
		StaticMaxSize: DefaultStaticMaxSize,
		Retries:       DefaultRetries,
		Downloader:    downloader.NewMemoryDownloader(),
		Logger:        zerolog.Nop(),
		TimeNow:       time.Now,

		storage:   s,
		loaded:    map[string]*Static{},
		hashLocks: map[string]*sync.Mutex{},
	}
}

// Loads the feed at url.
//
// Repeated loads of the same URL return the same *Static until it is
// evicted. On a miss, the most recently retrieved copy in storage is
// used, and only if there is none is the feed downloaded.
func (m *Manager) Load(ctx context.Context, url string) (*Static, error) {
	if static := m.cached(url); static != nil {
		return static, nil
	}

	v, err, _ := m.loads.Do("load\x00"+url, func() (interface{}, error) {
		return m.load(ctx, url)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Static), nil
}

func (m *Manager) load(ctx context.Context, url string) (*Static, error) {
	// A load that finished while this one waited to start.
	if static := m.cached(url); static != nil {
		return static, nil
	}

	feeds, err := m.storage.ListFeeds(storage.ListFeedsFilter{URL: url})
	if err != nil {
		return nil, fmt.Errorf("listing feeds: %w", err)
	}

	var metadata *storage.FeedMetadata
	if len(feeds) > 0 {
		metadata = feeds[0]
		m.Logger.Debug().Str("url", url).Str("hash", metadata.Hash).Msg("feed found in storage")
	} else {
		metadata, err = m.fetch(ctx, url, true)
		if err != nil {
			return nil, err
		}
	}

	return m.open(url, metadata)
}

// Downloads url again, replacing the in-memory copy. If the content
// is unchanged, the stored tables are reused.
func (m *Manager) Refresh(ctx context.Context, url string) (*Static, error) {
	v, err, _ := m.loads.Do("refresh\x00"+url, func() (interface{}, error) {
		metadata, err := m.fetch(ctx, url, false)
		if err != nil {
			return nil, err
		}

		m.Evict(url)
		return m.open(url, metadata)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Static), nil
}

// Drops url from the in-memory cache. Storage is left as is.
func (m *Manager) Evict(url string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.loaded, url)
}

// Returns the loaded feed for url without loading it.
func (m *Manager) Get(url string) (*Static, error) {
	if static := m.cached(url); static != nil {
		return static, nil
	}
	return nil, ErrFeedNotLoaded
}

// All feeds in storage, most recent first.
func (m *Manager) Feeds() ([]*storage.FeedMetadata, error) {
	feeds, err := m.storage.ListFeeds(storage.ListFeedsFilter{})
	if err != nil {
		return nil, fmt.Errorf("listing feeds: %w", err)
	}
	return feeds, nil
}

func (m *Manager) cached(url string) *Static {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.loaded[url]
}

// Builds the Static for metadata and caches it under url. If another
// load for url finished first, that one wins.
func (m *Manager) open(url string, metadata *storage.FeedMetadata) (*Static, error) {
	reader, err := m.storage.GetReader(metadata.Hash)
	if err != nil {
		return nil, fmt.Errorf("getting reader: %w", err)
	}

	static, err := NewStatic(reader, metadata)
	if err != nil {
		return nil, fmt.Errorf("creating static: %w", err)
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if existing, found := m.loaded[url]; found {
		return existing, nil
	}
	m.loaded[url] = static

	return static, nil
}

// Downloads url and makes sure its tables are in storage, returning
// metadata for (hash, url).
func (m *Manager) fetch(ctx context.Context, url string, useCache bool) (*storage.FeedMetadata, error) {
	// Retries are logged through the context.
	ctx = m.Logger.WithContext(ctx)

	body, err := m.Downloader.Get(
		ctx,
		url,
		m.Headers,
		downloader.GetOptions{
			Cache:    useCache && m.DownloadCacheTTL > 0,
			CacheTTL: m.DownloadCacheTTL,
			Timeout:  m.StaticTimeout,
			MaxSize:  m.StaticMaxSize,
			Retries:  m.Retries,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("downloading feed at %s: %w", url, err)
	}
	hash := fmt.Sprintf("%x", sha256.Sum256(body))

	logger := m.Logger.With().Str("url", url).Str("hash", hash).Logger()

	// Other URLs may carry the same content. Only one of them gets
	// to parse it.
	unlock := m.lockHash(hash)
	defer unlock()

	// The data we just downloaded may already exist in storage.
	feeds, err := m.storage.ListFeeds(storage.ListFeedsFilter{Hash: hash})
	if err != nil {
		return nil, fmt.Errorf("listing feeds: %w", err)
	}

	if len(feeds) > 0 {
		for _, feed := range feeds {
			if feed.URL == url {
				// Hash exists for this same URL. Nothing to do.
				logger.Debug().Msg("feed unchanged")
				return feed, nil
			}
		}

		// It's in storage, but for a different URL. Add a
		// metadata record for this URL.
		metadata := *feeds[0]
		metadata.URL = url
		metadata.RetrievedAt = m.TimeNow().UTC()

		err = m.storage.WriteFeedMetadata(&metadata)
		if err != nil {
			return nil, fmt.Errorf("writing metadata: %w", err)
		}

		logger.Info().Msg("feed shared with another url")
		return &metadata, nil
	}

	// Hash doesn't exist in storage. Parse the feed.
	writer, err := m.storage.GetWriter(hash)
	if err != nil {
		return nil, fmt.Errorf("getting writer: %w", err)
	}

	started := m.TimeNow()
	metadata, err := parse.ParseStatic(writer, body)
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("parsing: %w", err)
	}

	// And write the metadata
	metadata.Hash = hash
	metadata.URL = url
	metadata.RetrievedAt = m.TimeNow().UTC()

	err = m.storage.WriteFeedMetadata(metadata)
	if err != nil {
		return nil, fmt.Errorf("writing metadata: %w", err)
	}

	logger.Info().
		Int("bytes", len(body)).
		Dur("parse_time", m.TimeNow().Sub(started)).
		Strs("tables", tableNames(metadata)).
		Msg("feed loaded")

	return metadata, nil
}

func (m *Manager) lockHash(hash string) func() {
	m.hashMutex.Lock()
	lock, found := m.hashLocks[hash]
	if !found {
		lock = &sync.Mutex{}
		m.hashLocks[hash] = lock
	}
	m.hashMutex.Unlock()

	lock.Lock()
	return lock.Unlock
}

func tableNames(metadata *storage.FeedMetadata) []string {
	names := make([]string, 0, len(metadata.Tables))
	for _, t := range metadata.Tables {
		names = append(names, string(t))
	}
	return names
}
