package model

import (
	"strings"
)

type TableName string

const (
	TableAgency        TableName = "agency"
	TableStops         TableName = "stops"
	TableRoutes        TableName = "routes"
	TableTrips         TableName = "trips"
	TableStopTimes     TableName = "stop_times"
	TableCalendar      TableName = "calendar"
	TableCalendarDates TableName = "calendar_dates"
	TableShapes        TableName = "shapes"
	TableFrequencies   TableName = "frequencies"
	TableTransfers     TableName = "transfers"
)

var RequiredTables = []TableName{
	TableAgency,
	TableStops,
	TableRoutes,
	TableTrips,
	TableStopTimes,
}

var OptionalTables = []TableName{
	TableCalendar,
	TableCalendarDates,
	TableShapes,
	TableFrequencies,
	TableTransfers,
}

// File name of the table within a GTFS zip.
func (t TableName) File() string {
	return string(t) + ".txt"
}

// Parses a file name such as "stop_times.txt" into a TableName. The
// second return value is false for files that aren't GTFS tables
// known to this package.
func TableFromFile(name string) (TableName, bool) {
	name = strings.TrimSuffix(name, ".txt")
	for _, t := range RequiredTables {
		if string(t) == name {
			return t, true
		}
	}
	for _, t := range OptionalTables {
		if string(t) == name {
			return t, true
		}
	}
	return "", false
}

// A complete, read-only set of GTFS tables for one feed.
//
// A nil slice means the table was not part of the feed. A present
// but empty table is a non-nil slice of length zero. Rows are kept in
// feed order.
type Feed struct {
	Agencies  []Agency
	Stops     []Stop
	Routes    []Route
	Trips     []Trip
	StopTimes []StopTime

	Calendars     []Calendar
	CalendarDates []CalendarDate
	Shapes        []Shape
	Frequencies   []Frequency
	Transfers     []Transfer
}

// Reports whether the table was present in the feed.
func (f *Feed) Has(table TableName) bool {
	switch table {
	case TableAgency:
		return f.Agencies != nil
	case TableStops:
		return f.Stops != nil
	case TableRoutes:
		return f.Routes != nil
	case TableTrips:
		return f.Trips != nil
	case TableStopTimes:
		return f.StopTimes != nil
	case TableCalendar:
		return f.Calendars != nil
	case TableCalendarDates:
		return f.CalendarDates != nil
	case TableShapes:
		return f.Shapes != nil
	case TableFrequencies:
		return f.Frequencies != nil
	case TableTransfers:
		return f.Transfers != nil
	}
	return false
}

// Names of all tables present, required ones first.
func (f *Feed) Tables() []TableName {
	tables := []TableName{}
	for _, t := range RequiredTables {
		if f.Has(t) {
			tables = append(tables, t)
		}
	}
	for _, t := range OptionalTables {
		if f.Has(t) {
			tables = append(tables, t)
		}
	}
	return tables
}
