package downloader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Keeps downloaded feeds in a directory, so they survive restarts.
//
// Each download is stored as <key>.zip next to a <key>.json record
// naming its URL and retrieval time. The record is written last, so
// a body without a record is never served.
type Filesystem struct {
	Dir string

	TimeNow func() time.Time
	Logger  zerolog.Logger

	// Performs the actual fetch. Defaults to HTTPGet.
	Fetch FetchFunc

	// Entries are replaced by atomic renames, so only fetches of
	// one key need collapsing.
	fetches singleflight.Group
}

type fsRecord struct {
	URL         string    `json:"url"`
	RetrievedAt time.Time `json:"retrieved_at"`
	Size        int       `json:"size"`
}

func NewFilesystem(dir string) (*Filesystem, error) {
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", dir, err)
	}

	return &Filesystem{
		Dir:     dir,
		TimeNow: time.Now,
		Logger:  zerolog.Nop(),
		Fetch:   HTTPGet,
	}, nil
}

func (f *Filesystem) Get(
	ctx context.Context,
	url string,
	headers map[string]string,
	options GetOptions,
) ([]byte, error) {
	if !options.Cache {
		return f.Fetch(ctx, url, headers, options)
	}

	key := cacheKey(url, headers)
	logger := f.Logger.With().Str("url", url).Str("key", key).Logger()

	v, err, _ := f.fetches.Do(key, func() (interface{}, error) {
		body, err := f.read(key, url, options.CacheTTL)
		if err != nil {
			// A broken entry is refetched and overwritten.
			logger.Warn().Err(err).Msg("reading download cache")
		} else if body != nil {
			logger.Debug().Msg("download cache hit")
			return body, nil
		}

		body, err = f.Fetch(ctx, url, headers, options)
		if err != nil {
			return nil, fmt.Errorf("http get: %w", err)
		}

		err = f.write(key, url, body)
		if err != nil {
			return nil, fmt.Errorf("saving: %w", err)
		}

		return body, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (f *Filesystem) paths(key string) (string, string) {
	return filepath.Join(f.Dir, key+".zip"), filepath.Join(f.Dir, key+".json")
}

// Returns nil on a miss or when the entry is older than ttl.
func (f *Filesystem) read(key string, url string, ttl time.Duration) ([]byte, error) {
	bodyPath, recordPath := f.paths(key)

	buf, err := os.ReadFile(recordPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading record: %w", err)
	}

	record := fsRecord{}
	err = json.Unmarshal(buf, &record)
	if err != nil {
		return nil, fmt.Errorf("unmarshalling record: %w", err)
	}
	if record.URL != url {
		return nil, fmt.Errorf("record is for %s", record.URL)
	}
	if !record.RetrievedAt.Add(ttl).After(f.TimeNow()) {
		f.Logger.Debug().Str("url", url).Msg("download cache expired")
		return nil, nil
	}

	body, err := os.ReadFile(bodyPath)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	if len(body) != record.Size {
		return nil, fmt.Errorf("body is %d bytes, record says %d", len(body), record.Size)
	}

	return body, nil
}

func (f *Filesystem) write(key string, url string, body []byte) error {
	bodyPath, recordPath := f.paths(key)

	buf, err := json.Marshal(fsRecord{
		URL:         url,
		RetrievedAt: f.TimeNow().UTC(),
		Size:        len(body),
	})
	if err != nil {
		return fmt.Errorf("marshalling record: %w", err)
	}

	err = writeFileAtomic(bodyPath, body)
	if err != nil {
		return err
	}

	return writeFileAtomic(recordPath, buf)
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"

	err := os.WriteFile(tmp, data, 0644)
	if err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}

	err = os.Rename(tmp, path)
	if err != nil {
		return fmt.Errorf("renaming %s: %w", tmp, err)
	}

	return nil
}
