package storage

import (
	"strings"
	"time"

	"tidbyt.dev/gtfsmetrics/model"
)

type Storage interface {
	// Retrieves all feed metadata records matching the given
	// filter, most recently retrieved first.
	ListFeeds(filter ListFeedsFilter) ([]*FeedMetadata, error)

	// Writes a FeedMetadata record. If a record with the same URL
	// and hash exists, it is updated.
	WriteFeedMetadata(metadata *FeedMetadata) error

	// Removes the metadata record for a URL and hash. Parsed
	// tables are left in place.
	DeleteFeedMetadata(url string, hash string) error

	// Gets a reader for the feed with the given hash.
	GetReader(feed string) (FeedReader, error)

	// Gets a writer for the feed with the given hash. Any tables
	// previously written for the hash are discarded.
	GetWriter(feed string) (FeedWriter, error)
}

type ListFeedsFilter struct {
	// If set, only include feeds with the given URL.
	URL string

	// If set, only include feeds with the given hash.
	Hash string
}

// Metadata for a downloaded static GTFS feed. The parsed data can be
// accessed via FeedReader.
type FeedMetadata struct {
	URL               string
	Hash              string
	RetrievedAt       time.Time
	Timezone          string
	CalendarStartDate string
	CalendarEndDate   string
	MaxArrival        string
	MaxDeparture      string

	// Tables present in the feed. Readers return empty results
	// for absent tables; this is what tells the two apart.
	Tables []model.TableName
}

// Reports whether the feed had the given table.
func (m *FeedMetadata) HasTable(table model.TableName) bool {
	for _, t := range m.Tables {
		if t == table {
			return true
		}
	}
	return false
}

// Writes GTFS records for a single feed.
//
// Large tables (trips, stop_times, shapes) are bracketed by Begin()
// and End() calls, allowing transactions/batching/whathaveyou.
// Records must be written in feed order; readers return them in the
// same order.
type FeedWriter interface {
	WriteAgency(agency *model.Agency) error
	WriteStop(stop *model.Stop) error
	WriteRoute(route *model.Route) error
	WriteTrip(trip *model.Trip) error
	WriteCalendar(cal *model.Calendar) error
	WriteCalendarDate(caldate *model.CalendarDate) error
	WriteStopTime(stopTime *model.StopTime) error
	WriteShape(shape *model.Shape) error
	WriteFrequency(freq *model.Frequency) error
	WriteTransfer(transfer *model.Transfer) error
	Begin(table model.TableName) error
	End(table model.TableName) error
	Close() error
}

type FeedReader interface {
	Agencies() ([]*model.Agency, error)
	Stops() ([]*model.Stop, error)
	Routes() ([]*model.Route, error)
	Trips() ([]*model.Trip, error)
	StopTimes() ([]*model.StopTime, error)
	Calendars() ([]*model.Calendar, error)
	CalendarDates() ([]*model.CalendarDate, error)
	Shapes() ([]*model.Shape, error)
	Frequencies() ([]*model.Frequency, error)
	Transfers() ([]*model.Transfer, error)
}

func encodeTables(tables []model.TableName) string {
	names := make([]string, 0, len(tables))
	for _, t := range tables {
		names = append(names, string(t))
	}
	return strings.Join(names, ",")
}

func decodeTables(s string) []model.TableName {
	tables := []model.TableName{}
	if s == "" {
		return tables
	}
	for _, name := range strings.Split(s, ",") {
		if t, ok := model.TableFromFile(name); ok {
			tables = append(tables, t)
		}
	}
	return tables
}

// Splits a weekday bitmask into monday..sunday 0/1 columns.
func weekdayColumns(weekday int8) [7]int {
	cols := [7]int{}
	for i, day := range []time.Weekday{
		time.Monday,
		time.Tuesday,
		time.Wednesday,
		time.Thursday,
		time.Friday,
		time.Saturday,
		time.Sunday,
	} {
		if weekday&(1<<day) != 0 {
			cols[i] = 1
		}
	}
	return cols
}

func weekdayFromColumns(cols [7]int) int8 {
	var weekday int8
	for i, day := range []time.Weekday{
		time.Monday,
		time.Tuesday,
		time.Wednesday,
		time.Thursday,
		time.Friday,
		time.Saturday,
		time.Sunday,
	} {
		if cols[i] == 1 {
			weekday |= 1 << day
		}
	}
	return weekday
}
