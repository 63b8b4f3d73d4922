package model

import (
	"time"
)

// Holds all external facing types and constants.

type LocationType int

const (
	LocationTypeStop LocationType = iota
	LocationTypeStation
	LocationTypeEntranceExit
	LocationTypeGenericNode
	LocationTypeBoardingArea
)

type RouteType int

const (
	RouteTypeTram       RouteType = 0
	RouteTypeSubway     RouteType = 1
	RouteTypeRail       RouteType = 2
	RouteTypeBus        RouteType = 3
	RouteTypeFerry      RouteType = 4
	RouteTypeCable      RouteType = 5
	RouteTypeAerial     RouteType = 6
	RouteTypeFunicular  RouteType = 7
	RouteTypeTrolleybus RouteType = 11
	RouteTypeMonorail   RouteType = 12
)

type ExceptionType int8

const (
	ExceptionTypeAdded   ExceptionType = 1
	ExceptionTypeRemoved ExceptionType = 2
)

type Agency struct {
	ID       string
	Name     string
	URL      string
	Timezone string
}

type Calendar struct {
	ServiceID string
	StartDate string
	EndDate   string
	Weekday   int8
}

// Reports whether the calendar's weekday flag is set for the given
// day.
func (c *Calendar) RunsOn(day time.Weekday) bool {
	return c.Weekday&(1<<day) != 0
}

type CalendarDate struct {
	ServiceID     string
	Date          string
	ExceptionType ExceptionType
}

type Stop struct {
	ID            string
	Code          string
	Name          string
	Desc          string
	Lat           float64
	Lon           float64
	URL           string
	LocationType  LocationType
	ParentStation string
	PlatformCode  string
}

type Trip struct {
	ID          string
	RouteID     string
	ServiceID   string
	Headsign    string
	ShortName   string
	DirectionID int8
	ShapeID     string
}

type Route struct {
	ID        string
	AgencyID  string
	ShortName string
	LongName  string
	Desc      string
	Type      RouteType
	URL       string
	Color     string
	TextColor string
}

// A stop_times.txt record. Arrival and Departure hold the raw
// strings from the feed, ArrivalTime and DepartureTime their parsed
// values.
type StopTime struct {
	TripID        string
	StopID        string
	Headsign      string
	StopSequence  uint32
	Arrival       string
	Departure     string
	ArrivalTime   ServiceTime
	DepartureTime ServiceTime
}

// Builds a StopTime, parsing arrival and departure once.
func NewStopTime(tripID, stopID string, seq uint32, arrival, departure string) StopTime {
	return StopTime{
		TripID:        tripID,
		StopID:        stopID,
		StopSequence:  seq,
		Arrival:       arrival,
		Departure:     departure,
		ArrivalTime:   ParseServiceTime(arrival),
		DepartureTime: ParseServiceTime(departure),
	}
}

type Shape struct {
	ID           string
	Lat          float64
	Lon          float64
	Sequence     uint32
	DistTraveled float64
}

type Frequency struct {
	TripID      string
	StartTime   string
	EndTime     string
	HeadwaySecs int
	ExactTimes  int8
}

type Transfer struct {
	FromStopID      string
	ToStopID        string
	TransferType    int8
	MinTransferTime int
}

// A point along a route's path.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}
