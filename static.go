package gtfsmetrics

import (
	"context"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/pool"

	"tidbyt.dev/gtfsmetrics/metrics"
	"tidbyt.dev/gtfsmetrics/model"
	"tidbyt.dev/gtfsmetrics/storage"
)

// A loaded feed. The table set is read from storage once and never
// modified, so a Static can be shared between goroutines.
type Static struct {
	Metadata *storage.FeedMetadata
	Feed     *model.Feed

	location *time.Location
}

func NewStatic(reader storage.FeedReader, metadata *storage.FeedMetadata) (*Static, error) {
	location := time.UTC
	if metadata.Timezone != "" {
		var err error
		location, err = time.LoadLocation(metadata.Timezone)
		if err != nil {
			return nil, fmt.Errorf("loading timezone: %w", err)
		}
	}

	feed, err := readFeed(reader, metadata)
	if err != nil {
		return nil, err
	}

	return &Static{
		Metadata: metadata,
		Feed:     feed,
		location: location,
	}, nil
}

// Copies every table listed in metadata out of the reader. Tables
// not listed stay nil.
func readFeed(reader storage.FeedReader, metadata *storage.FeedMetadata) (*model.Feed, error) {
	feed := &model.Feed{}

	for _, table := range metadata.Tables {
		var err error
		switch table {
		case model.TableAgency:
			feed.Agencies, err = readTable(reader.Agencies)
		case model.TableStops:
			feed.Stops, err = readTable(reader.Stops)
		case model.TableRoutes:
			feed.Routes, err = readTable(reader.Routes)
		case model.TableTrips:
			feed.Trips, err = readTable(reader.Trips)
		case model.TableStopTimes:
			feed.StopTimes, err = readTable(reader.StopTimes)
		case model.TableCalendar:
			feed.Calendars, err = readTable(reader.Calendars)
		case model.TableCalendarDates:
			feed.CalendarDates, err = readTable(reader.CalendarDates)
		case model.TableShapes:
			feed.Shapes, err = readTable(reader.Shapes)
		case model.TableFrequencies:
			feed.Frequencies, err = readTable(reader.Frequencies)
		case model.TableTransfers:
			feed.Transfers, err = readTable(reader.Transfers)
		default:
			err = fmt.Errorf("unknown table")
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", table, err)
		}
	}

	return feed, nil
}

// Always returns a non-nil slice, so a present table with no rows
// stays present.
func readTable[T any](read func() ([]*T, error)) ([]T, error) {
	rows, err := read()
	if err != nil {
		return nil, err
	}
	values := make([]T, 0, len(rows))
	for _, row := range rows {
		values = append(values, *row)
	}
	return values, nil
}

// The feed's agency timezone, or UTC if it has none.
func (s *Static) Location() *time.Location {
	return s.location
}

// The current service date in the feed's timezone.
func (s *Static) Today(now time.Time) time.Time {
	there := now.In(s.location)
	return time.Date(there.Year(), there.Month(), there.Day(), 0, 0, 0, 0, s.location)
}

// Reports whether date falls within the feed's calendar range.
func (s *Static) Covers(date time.Time) bool {
	if s.Metadata.CalendarStartDate == "" || s.Metadata.CalendarEndDate == "" {
		return false
	}
	day := date.Format("20060102")
	return s.Metadata.CalendarStartDate <= day && day <= s.Metadata.CalendarEndDate
}

// Service IDs active on date, sorted.
func (s *Static) ActiveServices(date time.Time) []string {
	return metrics.SortedServices(metrics.ActiveServices(s.Feed, date))
}

// The service the metrics for date are computed against: the first
// active service in lexical order, or "" (all service) when none is
// active.
func (s *Static) ServiceFor(date time.Time) string {
	services := s.ActiveServices(date)
	if len(services) == 0 {
		return ""
	}
	return services[0]
}

func (s *Static) System() (metrics.SystemMetrics, error) {
	return metrics.System(s.Feed)
}

func (s *Static) RouteFrequencies(serviceID string) ([]metrics.RouteFrequency, error) {
	return metrics.RouteFrequencies(s.Feed, serviceID)
}

func (s *Static) ServiceHours(serviceID string) (metrics.ServiceHours, error) {
	return metrics.ServiceHoursFor(s.Feed, serviceID)
}

func (s *Static) StopActivity(serviceID string) ([]metrics.StopMetric, error) {
	return metrics.StopActivity(s.Feed, serviceID)
}

func (s *Static) TripsByHour(serviceID string) ([]metrics.HourCount, error) {
	return metrics.TripsByHour(s.Feed, serviceID)
}

func (s *Static) PeakOffPeak(serviceID string) ([]metrics.PeriodMetric, error) {
	return metrics.PeakOffPeak(s.Feed, serviceID)
}

func (s *Static) RouteDetail(routeID string, serviceID string) (*metrics.RouteDetails, error) {
	return metrics.RouteDetail(s.Feed, routeID, serviceID)
}

// Every feed level metric for one service day.
type Report struct {
	FeedHash       string   `json:"feed_hash"`
	Date           string   `json:"date"`
	ServiceID      string   `json:"service_id"`
	ActiveServices []string `json:"active_services"`

	// False when the date is outside the feed's calendar range.
	InCalendar bool `json:"in_calendar"`

	System       metrics.SystemMetrics    `json:"system"`
	Routes       []metrics.RouteFrequency `json:"routes"`
	ServiceHours metrics.ServiceHours     `json:"service_hours"`
	Stops        []metrics.StopMetric     `json:"stops"`
	Hours        []metrics.HourCount      `json:"trips_by_hour"`
	Peak         []metrics.PeriodMetric   `json:"peak"`
}

// Builds the report for date, selecting the service with
// ServiceFor.
func (s *Static) Report(ctx context.Context, date time.Time) (*Report, error) {
	return s.ReportFor(ctx, date, s.ServiceFor(date))
}

// Builds the report for date against an explicit service ("" for all
// service). The metrics are computed concurrently over the shared
// feed. The first error cancels the rest.
func (s *Static) ReportFor(ctx context.Context, date time.Time, serviceID string) (*Report, error) {
	r := &Report{
		FeedHash:       s.Metadata.Hash,
		Date:           date.Format("20060102"),
		ServiceID:      serviceID,
		ActiveServices: s.ActiveServices(date),
		InCalendar:     s.Covers(date),
	}

	// Each task writes a distinct field of r.
	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()

	p.Go(func(ctx context.Context) error {
		var err error
		r.System, err = s.System()
		return err
	})
	p.Go(func(ctx context.Context) error {
		var err error
		r.Routes, err = s.RouteFrequencies(serviceID)
		return err
	})
	p.Go(func(ctx context.Context) error {
		var err error
		r.ServiceHours, err = s.ServiceHours(serviceID)
		return err
	})
	p.Go(func(ctx context.Context) error {
		var err error
		r.Stops, err = s.StopActivity(serviceID)
		return err
	})
	p.Go(func(ctx context.Context) error {
		var err error
		r.Hours, err = s.TripsByHour(serviceID)
		return err
	})
	p.Go(func(ctx context.Context) error {
		var err error
		r.Peak, err = s.PeakOffPeak(serviceID)
		return err
	})

	if err := p.Wait(); err != nil {
		return nil, fmt.Errorf("building report: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return r, nil
}
