// Package cache keeps built reports, keyed by the feed, date and
// service they were computed for.
package cache

import (
	"context"
	"fmt"

	"tidbyt.dev/gtfsmetrics"
)

// Identifies a report. Metrics depend only on the feed content
// (hash), the service day and the selected service.
type Key struct {
	FeedHash  string
	Date      string
	ServiceID string
}

func (k Key) String() string {
	return fmt.Sprintf("gtfsmetrics/report/%s/%s/svc=%s", k.FeedHash, k.Date, k.ServiceID)
}

// Key for a report.
func KeyFor(r *gtfsmetrics.Report) Key {
	return Key{FeedHash: r.FeedHash, Date: r.Date, ServiceID: r.ServiceID}
}

type ReportCache interface {
	// Returns the cached report and true, or false on a miss.
	Get(ctx context.Context, key Key) (*gtfsmetrics.Report, bool, error)
	Set(ctx context.Context, key Key, report *gtfsmetrics.Report) error
}

// Returns the cached report for key, building and storing it on a
// miss.
func GetOrBuild(
	ctx context.Context,
	c ReportCache,
	key Key,
	build func(ctx context.Context) (*gtfsmetrics.Report, error),
) (*gtfsmetrics.Report, error) {
	report, found, err := c.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("getting %s: %w", key, err)
	}
	if found {
		return report, nil
	}

	report, err = build(ctx)
	if err != nil {
		return nil, err
	}

	err = c.Set(ctx, key, report)
	if err != nil {
		return nil, fmt.Errorf("setting %s: %w", key, err)
	}

	return report, nil
}
