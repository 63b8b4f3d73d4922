package parse

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/gtfsmetrics/model"
)

func TestParseAgency(t *testing.T) {
	for _, tc := range []struct {
		name     string
		content  string
		timezone string
		agencies []*model.Agency
		err      bool
	}{
		{
			"minimal",
			`
agency_name,agency_url,agency_timezone
Agency Name,http://www.example.com,America/New_York`,
			"America/New_York",
			[]*model.Agency{{
				Name:     "Agency Name",
				URL:      "http://www.example.com",
				Timezone: "America/New_York",
			}},
			false,
		},

		{
			"multiple agencies, first timezone wins",
			`
agency_id,agency_name,agency_url,agency_timezone
1,Agency One,http://www.example.com/one,
2,Agency Two,http://www.example.com/two,America/New_York
3,Agency Three,http://www.example.com/three,America/Chicago`,
			"America/New_York",
			[]*model.Agency{
				{ID: "1", Name: "Agency One", URL: "http://www.example.com/one"},
				{ID: "2", Name: "Agency Two", URL: "http://www.example.com/two", Timezone: "America/New_York"},
				{ID: "3", Name: "Agency Three", URL: "http://www.example.com/three", Timezone: "America/Chicago"},
			},
			false,
		},

		{
			"no timezone",
			`
agency_name,agency_url
Agency Name,http://www.example.com`,
			"",
			[]*model.Agency{{Name: "Agency Name", URL: "http://www.example.com"}},
			false,
		},

		{
			"invalid timezone",
			`
agency_name,agency_url,agency_timezone
Agency Name,http://www.example.com,Mars/Olympus_Mons`,
			"", nil, true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			writer, reader := memoryFeed(t)
			tz, err := ParseAgency(writer, bytes.NewBufferString(tc.content))
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.timezone, tz)

			agencies, err := reader.Agencies()
			require.NoError(t, err)
			assert.Equal(t, tc.agencies, agencies)
		})
	}
}

func TestParseRoutes(t *testing.T) {
	for _, tc := range []struct {
		name    string
		content string
		routes  []*model.Route
		err     bool
	}{
		{
			"minimal",
			`
route_id,route_short_name,route_type
r,R,3`,
			[]*model.Route{{
				ID:        "r",
				ShortName: "R",
				Type:      model.RouteTypeBus,
				Color:     "FFFFFF",
				TextColor: "000000",
			}},
			false,
		},

		{
			"all fields",
			`
route_id,agency_id,route_short_name,route_long_name,route_desc,route_type,route_url,route_color,route_text_color
r,a,R,Long,Desc,1,http://r,ff0000,00ff00`,
			[]*model.Route{{
				ID:        "r",
				AgencyID:  "a",
				ShortName: "R",
				LongName:  "Long",
				Desc:      "Desc",
				Type:      model.RouteTypeSubway,
				URL:       "http://r",
				Color:     "FF0000",
				TextColor: "00FF00",
			}},
			false,
		},

		{
			"repeated route_id is kept",
			`
route_id,route_short_name,route_type
r,A,3
r,B,3`,
			[]*model.Route{
				{ID: "r", ShortName: "A", Type: 3, Color: "FFFFFF", TextColor: "000000"},
				{ID: "r", ShortName: "B", Type: 3, Color: "FFFFFF", TextColor: "000000"},
			},
			false,
		},

		{
			"extended route type and bad color",
			`
route_id,route_short_name,route_type,route_color
r,R,700,#12345`,
			[]*model.Route{{
				ID:        "r",
				ShortName: "R",
				Type:      700,
				Color:     "FFFFFF",
				TextColor: "000000",
			}},
			false,
		},

		{
			"missing route_id",
			`
route_id,route_short_name,route_type
,R,3`,
			nil, true,
		},

		{
			"missing route_type",
			`
route_id,route_short_name
r,R`,
			nil, true,
		},

		{
			"bad route_type",
			`
route_id,route_short_name,route_type
r,R,bus`,
			nil, true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			writer, reader := memoryFeed(t)
			err := ParseRoutes(writer, bytes.NewBufferString(tc.content))
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			routes, err := reader.Routes()
			require.NoError(t, err)
			assert.Equal(t, tc.routes, routes)
		})
	}
}

func TestParseStops(t *testing.T) {
	for _, tc := range []struct {
		name    string
		content string
		stops   []*model.Stop
		err     bool
	}{
		{
			"all fields",
			`
stop_id,stop_code,stop_name,stop_desc,stop_lat,stop_lon,stop_url,location_type,parent_station,platform_code
s,c,Stop,Desc,1.5,-2.5,http://s,0,p,A
p,,Parent,,1,2,,1,,`,
			[]*model.Stop{
				{
					ID:            "s",
					Code:          "c",
					Name:          "Stop",
					Desc:          "Desc",
					Lat:           1.5,
					Lon:           -2.5,
					URL:           "http://s",
					LocationType:  model.LocationTypeStop,
					ParentStation: "p",
					PlatformCode:  "A",
				},
				{ID: "p", Name: "Parent", Lat: 1, Lon: 2, LocationType: model.LocationTypeStation},
			},
			false,
		},

		{
			"unknown parent and missing coordinates are tolerated",
			`
stop_id,stop_name,parent_station
s,S,nope`,
			[]*model.Stop{{ID: "s", Name: "S", ParentStation: "nope"}},
			false,
		},

		{
			"missing stop_id",
			`
stop_id,stop_name,stop_lat,stop_lon
,S,1,2`,
			nil, true,
		},

		{
			"bad latitude",
			`
stop_id,stop_name,stop_lat,stop_lon
s,S,north,2`,
			nil, true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			writer, reader := memoryFeed(t)
			err := ParseStops(writer, bytes.NewBufferString(tc.content))
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			stops, err := reader.Stops()
			require.NoError(t, err)
			assert.Equal(t, tc.stops, stops)
		})
	}
}

func TestParseTrips(t *testing.T) {
	for _, tc := range []struct {
		name    string
		content string
		trips   []*model.Trip
		err     bool
	}{
		{
			"minimal",
			`
trip_id,route_id,service_id
t,r,s`,
			[]*model.Trip{{ID: "t", RouteID: "r", ServiceID: "s"}},
			false,
		},

		{
			"all fields",
			`
trip_id,route_id,service_id,trip_headsign,trip_short_name,direction_id,shape_id
t,r,s,head,short,1,sh`,
			[]*model.Trip{{
				ID:          "t",
				RouteID:     "r",
				ServiceID:   "s",
				Headsign:    "head",
				ShortName:   "short",
				DirectionID: 1,
				ShapeID:     "sh",
			}},
			false,
		},

		{
			"empty direction_id reads as 0",
			`
trip_id,route_id,service_id,direction_id
t1,r1,s2,
t2,r2,s1,1`,
			[]*model.Trip{
				{ID: "t1", RouteID: "r1", ServiceID: "s2"},
				{ID: "t2", RouteID: "r2", ServiceID: "s1", DirectionID: 1},
			},
			false,
		},

		{
			"missing trip_id",
			`
trip_id,route_id,service_id
,r,s`,
			nil, true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			writer, reader := memoryFeed(t)
			err := ParseTrips(writer, bytes.NewBufferString(tc.content))
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			trips, err := reader.Trips()
			require.NoError(t, err)
			assert.Equal(t, tc.trips, trips)
		})
	}
}

func TestParseStopTimes(t *testing.T) {
	st := func(trip, stop string, seq uint32, arr, dep, headsign string) *model.StopTime {
		s := model.NewStopTime(trip, stop, seq, arr, dep)
		s.Headsign = headsign
		return &s
	}

	for _, tc := range []struct {
		name         string
		content      string
		stopTimes    []*model.StopTime
		maxArrival   string
		maxDeparture string
		err          bool
	}{
		{
			"minimal",
			`
trip_id,arrival_time,departure_time,stop_id,stop_sequence
t,10:00:00,10:00:01,s,1`,
			[]*model.StopTime{st("t", "s", 1, "10:00:00", "10:00:01", "")},
			"10:00:00", "10:00:01",
			false,
		},

		{
			"file order kept",
			`
trip_id,arrival_time,departure_time,stop_id,stop_sequence,stop_headsign
t,10:00:02,10:00:03,s2,2,sh2
t,10:00:00,10:00:01,s1,1,sh1
`,
			[]*model.StopTime{
				st("t", "s2", 2, "10:00:02", "10:00:03", "sh2"),
				st("t", "s1", 1, "10:00:00", "10:00:01", "sh1"),
			},
			"10:00:02", "10:00:03",
			false,
		},

		{
			"times above 24h",
			`
trip_id,arrival_time,departure_time,stop_id,stop_sequence
t,25:00:00,25:00:01,s,1
t,9:00:00,9:00:00,s,2`,
			[]*model.StopTime{
				st("t", "s", 1, "25:00:00", "25:00:01", ""),
				st("t", "s", 2, "9:00:00", "9:00:00", ""),
			},
			"25:00:00", "25:00:01",
			false,
		},

		{
			"missing and malformed times kept raw",
			`
trip_id,arrival_time,departure_time,stop_id,stop_sequence
t,,,s,1
t,10:61:00,noon,s,2`,
			[]*model.StopTime{
				st("t", "s", 1, "", "", ""),
				st("t", "s", 2, "10:61:00", "noon", ""),
			},
			"", "",
			false,
		},

		{
			"duplicate stop_sequence kept",
			`
trip_id,arrival_time,departure_time,stop_id,stop_sequence
t,10:00:00,10:00:00,a,1
t,11:00:00,11:00:00,b,1`,
			[]*model.StopTime{
				st("t", "a", 1, "10:00:00", "10:00:00", ""),
				st("t", "b", 1, "11:00:00", "11:00:00", ""),
			},
			"11:00:00", "11:00:00",
			false,
		},

		{
			"missing trip_id",
			`
arrival_time,departure_time,stop_id,stop_sequence
10:00:00,10:00:01,s,1`,
			nil, "", "", true,
		},

		{
			"missing stop_id",
			`
trip_id,arrival_time,departure_time,stop_sequence
t,10:00:00,10:00:01,1`,
			nil, "", "", true,
		},

		{
			"bad stop_sequence",
			`
trip_id,arrival_time,departure_time,stop_id,stop_sequence
t,10:00:00,10:00:01,s,first`,
			nil, "", "", true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			writer, reader := memoryFeed(t)
			maxArrival, maxDeparture, err := ParseStopTimes(writer, bytes.NewBufferString(tc.content))
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.maxArrival, maxArrival)
			assert.Equal(t, tc.maxDeparture, maxDeparture)

			stopTimes, err := reader.StopTimes()
			require.NoError(t, err)
			assert.Equal(t, tc.stopTimes, stopTimes)
		})
	}
}

func TestParseCalendar(t *testing.T) {
	for _, tc := range []struct {
		name      string
		content   string
		calendars []*model.Calendar
		minDate   string
		maxDate   string
		err       bool
	}{
		{
			"weekdays and weekend",
			`
service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date
wk,1,1,1,1,1,0,0,20240101,20241231
we,0,0,0,0,0,1,1,20231201,20240630`,
			[]*model.Calendar{
				{
					ServiceID: "wk",
					StartDate: "20240101",
					EndDate:   "20241231",
					Weekday:   1<<time.Monday | 1<<time.Tuesday | 1<<time.Wednesday | 1<<time.Thursday | 1<<time.Friday,
				},
				{
					ServiceID: "we",
					StartDate: "20231201",
					EndDate:   "20240630",
					Weekday:   1<<time.Saturday | 1<<time.Sunday,
				},
			},
			"20231201", "20241231",
			false,
		},

		{
			"invalid weekday value",
			`
service_id,monday,start_date,end_date
s,2,20240101,20241231`,
			nil, "", "", true,
		},

		{
			"invalid start_date",
			`
service_id,monday,start_date,end_date
s,1,2024-01-01,20241231`,
			nil, "", "", true,
		},

		{
			"invalid end_date",
			`
service_id,monday,start_date,end_date
s,1,20240101,`,
			nil, "", "", true,
		},

		{
			"empty service_id",
			`
service_id,monday,start_date,end_date
,1,20240101,20241231`,
			nil, "", "", true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			writer, reader := memoryFeed(t)
			minDate, maxDate, err := ParseCalendar(writer, bytes.NewBufferString(tc.content))
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.minDate, minDate)
			assert.Equal(t, tc.maxDate, maxDate)

			calendars, err := reader.Calendars()
			require.NoError(t, err)
			assert.Equal(t, tc.calendars, calendars)
		})
	}
}

func TestParseCalendarDates(t *testing.T) {
	for _, tc := range []struct {
		name    string
		content string
		dates   []*model.CalendarDate
		minDate string
		maxDate string
		err     bool
	}{
		{
			"repeated service/date kept in order",
			`
service_id,date,exception_type
s,20240313,2
s,20240313,1
x,20240101,1`,
			[]*model.CalendarDate{
				{ServiceID: "s", Date: "20240313", ExceptionType: model.ExceptionTypeRemoved},
				{ServiceID: "s", Date: "20240313", ExceptionType: model.ExceptionTypeAdded},
				{ServiceID: "x", Date: "20240101", ExceptionType: model.ExceptionTypeAdded},
			},
			"20240101", "20240313",
			false,
		},

		{
			"bad date",
			`
service_id,date,exception_type
s,March 13,1`,
			nil, "", "", true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			writer, reader := memoryFeed(t)
			minDate, maxDate, err := ParseCalendarDates(writer, bytes.NewBufferString(tc.content))
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.minDate, minDate)
			assert.Equal(t, tc.maxDate, maxDate)

			dates, err := reader.CalendarDates()
			require.NoError(t, err)
			assert.Equal(t, tc.dates, dates)
		})
	}
}

func TestParseShapes(t *testing.T) {
	writer, reader := memoryFeed(t)
	err := ParseShapes(writer, bytes.NewBufferString(`
shape_id,shape_pt_lat,shape_pt_lon,shape_pt_sequence,shape_dist_traveled
a,1.1,2.2,2,10.5
a,1.0,2.0,1,
b,3,4,1,0`))
	require.NoError(t, err)

	shapes, err := reader.Shapes()
	require.NoError(t, err)
	assert.Equal(t, []*model.Shape{
		{ID: "a", Lat: 1.1, Lon: 2.2, Sequence: 2, DistTraveled: 10.5},
		{ID: "a", Lat: 1.0, Lon: 2.0, Sequence: 1},
		{ID: "b", Lat: 3, Lon: 4, Sequence: 1},
	}, shapes)

	writer, _ = memoryFeed(t)
	err = ParseShapes(writer, bytes.NewBufferString(`
shape_id,shape_pt_lat,shape_pt_lon,shape_pt_sequence
,1,2,1`))
	assert.Error(t, err)
}

func TestParseFrequenciesAndTransfers(t *testing.T) {
	writer, reader := memoryFeed(t)

	require.NoError(t, ParseFrequencies(writer, bytes.NewBufferString(`
trip_id,start_time,end_time,headway_secs,exact_times
t,06:00:00,09:00:00,300,1
t,09:00:00,25:00:00,900,`)))

	require.NoError(t, ParseTransfers(writer, bytes.NewBufferString(`
from_stop_id,to_stop_id,transfer_type,min_transfer_time
a,b,2,180
b,a,0,`)))

	freqs, err := reader.Frequencies()
	require.NoError(t, err)
	assert.Equal(t, []*model.Frequency{
		{TripID: "t", StartTime: "06:00:00", EndTime: "09:00:00", HeadwaySecs: 300, ExactTimes: 1},
		{TripID: "t", StartTime: "09:00:00", EndTime: "25:00:00", HeadwaySecs: 900},
	}, freqs)

	transfers, err := reader.Transfers()
	require.NoError(t, err)
	assert.Equal(t, []*model.Transfer{
		{FromStopID: "a", ToStopID: "b", TransferType: 2, MinTransferTime: 180},
		{FromStopID: "b", ToStopID: "a"},
	}, transfers)
}
