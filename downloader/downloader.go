package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

type GetOptions struct {
	MaxSize  int
	Timeout  time.Duration
	Cache    bool
	CacheTTL time.Duration

	// Retries after the first attempt. Only transport errors and
	// 5xx responses are retried.
	Retries int
	// Initial wait between attempts. Defaults to 500ms.
	RetryInterval time.Duration
}

// A thing capable of downloading a file, optionally with caching
type Downloader interface {
	Get(ctx context.Context, url string, headers map[string]string, options GetOptions) ([]byte, error)
}

// Non-200 response.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d", e.StatusCode)
}

// Response body exceeded GetOptions.MaxSize.
type TooLargeError struct {
	MaxSize int
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("body exceeds %d bytes", e.MaxSize)
}

// Gets a file. Doesn't cache. Provided as convenience for
// implementing custom Downloaders.
//
// Retries use exponential backoff and are logged to the context's
// zerolog logger, if any.
func HTTPGet(ctx context.Context, url string, headers map[string]string, options GetOptions) ([]byte, error) {
	client := &http.Client{
		Timeout: options.Timeout,
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	if options.RetryInterval > 0 {
		b.InitialInterval = options.RetryInterval
	}
	b.MaxElapsedTime = 0

	logger := zerolog.Ctx(ctx)

	return backoff.RetryNotifyWithData(
		func() ([]byte, error) {
			return httpGetOnce(ctx, client, url, headers, options)
		},
		backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(options.Retries, 0))), ctx),
		func(err error, d time.Duration) {
			logger.Warn().Err(err).Str("url", url).Dur("backoff", d).Msg("retrying download")
		},
	)
}

func httpGetOnce(ctx context.Context, client *http.Client, url string, headers map[string]string, options GetOptions) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("creating request: %w", err))
	}

	for k, v := range headers {
		req.Header.Add(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(fmt.Errorf("making request: %w", err))
		}
		return nil, fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := &StatusError{StatusCode: resp.StatusCode}
		if resp.StatusCode >= 500 {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	var reader io.Reader = resp.Body
	if options.MaxSize > 0 {
		// One extra byte tells an exact fit from an overflow.
		reader = io.LimitReader(resp.Body, int64(options.MaxSize)+1)
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}

	if options.MaxSize > 0 && len(body) > options.MaxSize {
		return nil, backoff.Permanent(&TooLargeError{MaxSize: options.MaxSize})
	}

	return body, nil
}
