package metrics

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/gtfsmetrics/model"
)

func st(tripID, stopID string, seq uint32, arrival, departure string) model.StopTime {
	return model.NewStopTime(tripID, stopID, seq, arrival, departure)
}

// Three routes. R1 runs T1 and T2 on service S1 and T3 on S2 in the
// opposite direction. R2 runs T4 and T5, R3 a single late trip T6.
func fixtureFeed() *model.Feed {
	return &model.Feed{
		Agencies: []model.Agency{{ID: "a", Name: "Agency", Timezone: "UTC"}},
		Routes: []model.Route{
			{ID: "R1", ShortName: "1", LongName: "Main", Type: model.RouteTypeBus},
			{ID: "R2", ShortName: "2", LongName: "Cross", Type: model.RouteTypeBus},
			{ID: "R3", ShortName: "3", LongName: "Night", Type: model.RouteTypeBus},
			{ID: "R1", ShortName: "1X", LongName: "Main (old)", Type: model.RouteTypeBus},
		},
		Trips: []model.Trip{
			{ID: "T1", RouteID: "R1", ServiceID: "S1", DirectionID: 0, ShapeID: "A"},
			{ID: "T2", RouteID: "R1", ServiceID: "S1", DirectionID: 0, ShapeID: "A"},
			{ID: "T3", RouteID: "R1", ServiceID: "S2", DirectionID: 1, ShapeID: "B"},
			{ID: "T4", RouteID: "R2", ServiceID: "S1"},
			{ID: "T5", RouteID: "R2", ServiceID: "S1"},
			{ID: "T6", RouteID: "R3", ServiceID: "S1"},
		},
		Stops: []model.Stop{
			{ID: "s1", Name: "First", Lat: 1, Lon: 10},
			{ID: "s2", Name: "Second", Lat: 2, Lon: 20},
			{ID: "s3", Name: "Third", Lat: 3, Lon: 30},
			{ID: "s4", Name: "Fourth", Lat: 4, Lon: 40},
		},
		StopTimes: []model.StopTime{
			st("T1", "s1", 1, "08:00:00", "08:00:00"),
			st("T1", "s2", 2, "08:10:00", "08:10:00"),
			st("T1", "s3", 3, "08:20:00", "08:20:00"),
			st("T2", "s2", 2, "08:40:00", "08:40:00"),
			st("T2", "s1", 1, "08:30:00", "08:30:00"),
			st("T2", "s3", 3, "08:50:00", "08:50:00"),
			st("T3", "s3", 1, "08:10:00", "08:10:00"),
			st("T3", "s2", 2, "08:20:00", "08:20:00"),
			st("T3", "s1", 3, "08:30:00", "08:30:00"),
			st("T4", "s2", 1, "06:00:00", "06:00:00"),
			st("T4", "s4", 2, "06:15:00", "06:15:00"),
			st("T5", "s2", 1, "07:00:00", "07:00:00"),
			st("T5", "s4", 2, "07:15:00", "07:15:00"),
			st("T6", "s4", 1, "23:30:00", "23:30:00"),
			st("T6", "s1", 2, "24:10:00", "24:10:00"),
		},
		Shapes: []model.Shape{
			{ID: "A", Lat: 1.2, Lon: 10.2, Sequence: 2},
			{ID: "A", Lat: 1.1, Lon: 10.1, Sequence: 1},
			{ID: "B", Lat: 3.1, Lon: 30.1, Sequence: 1},
		},
	}
}

func ptr(f float64) *float64 {
	return &f
}

func TestSystem(t *testing.T) {
	m, err := System(fixtureFeed())
	require.NoError(t, err)
	assert.Equal(t, 4, m.TotalRoutes)
	assert.Equal(t, 4, m.TotalStops)
	assert.Equal(t, 6, m.TotalTrips)
	require.NotNil(t, m.TotalShapes)
	assert.Equal(t, 2, *m.TotalShapes)

	feed := fixtureFeed()
	feed.Shapes = nil
	m, err = System(feed)
	require.NoError(t, err)
	assert.Nil(t, m.TotalShapes)
}

func TestRouteFrequencies(t *testing.T) {
	feed := fixtureFeed()

	// T3 is on S2 and filtered out: 08:00 and 08:30 remain.
	freqs, err := RouteFrequencies(feed, "S1")
	require.NoError(t, err)
	assert.Equal(t, []RouteFrequency{
		{RouteID: "R1", ShortName: "1", LongName: "Main", AvgHeadwayMin: ptr(30)},
		{RouteID: "R2", ShortName: "2", LongName: "Cross", AvgHeadwayMin: ptr(60)},
		{RouteID: "R3", ShortName: "3", LongName: "Night", AvgHeadwayMin: nil},
	}, freqs)

	// All service: 08:00, 08:10, 08:30 give headways 10 and 20.
	freqs, err = RouteFrequencies(feed, "")
	require.NoError(t, err)
	require.Len(t, freqs, 3)
	assert.Equal(t, "R1", freqs[0].RouteID)
	assert.Equal(t, 15.0, *freqs[0].AvgHeadwayMin)

	// Unknown service: no rows at all.
	freqs, err = RouteFrequencies(feed, "S9")
	require.NoError(t, err)
	assert.Empty(t, freqs)
}

func TestRouteFrequenciesSingleTripIsNil(t *testing.T) {
	freqs, err := RouteFrequencies(fixtureFeed(), "S2")
	require.NoError(t, err)
	require.Len(t, freqs, 1)
	assert.Equal(t, "R1", freqs[0].RouteID)
	assert.Nil(t, freqs[0].AvgHeadwayMin)
}

func TestRouteFrequenciesSkipsUnparseableTimes(t *testing.T) {
	feed := fixtureFeed()
	feed.StopTimes = append(feed.StopTimes, st("T7", "s2", 1, "", "garbage"))
	feed.Trips = append(feed.Trips, model.Trip{ID: "T7", RouteID: "R2", ServiceID: "S1"})

	freqs, err := RouteFrequencies(feed, "S1")
	require.NoError(t, err)
	assert.Equal(t, "R2", freqs[1].RouteID)
	assert.Equal(t, 60.0, *freqs[1].AvgHeadwayMin)
}

func TestServiceHours(t *testing.T) {
	sh, err := ServiceHoursFor(fixtureFeed(), "")
	require.NoError(t, err)
	assert.Equal(t, 6, sh.TotalTrips)
	assert.InDelta(t, 130.0/60, sh.TotalRevenueHours, 1e-9)
	require.NotNil(t, sh.AvgTripDurationMin)
	assert.InDelta(t, 130.0/6, *sh.AvgTripDurationMin, 1e-9)

	sh, err = ServiceHoursFor(fixtureFeed(), "S2")
	require.NoError(t, err)
	assert.Equal(t, 1, sh.TotalTrips)
	assert.InDelta(t, 20.0/60, sh.TotalRevenueHours, 1e-9)
}

func TestServiceHoursExcludesUntimedTrips(t *testing.T) {
	feed := fixtureFeed()
	feed.Trips = append(feed.Trips, model.Trip{ID: "T7", RouteID: "R2", ServiceID: "S3"})
	feed.StopTimes = append(feed.StopTimes,
		st("T7", "s2", 1, "", ""),
		st("T7", "s4", 2, "bad", "bad"),
	)

	sh, err := ServiceHoursFor(feed, "S3")
	require.NoError(t, err)
	assert.Equal(t, 1, sh.TotalTrips)
	assert.Equal(t, 0.0, sh.TotalRevenueHours)
	assert.Nil(t, sh.AvgTripDurationMin)
}

func TestStopActivity(t *testing.T) {
	stops, err := StopActivity(fixtureFeed(), "S1")
	require.NoError(t, err)
	assert.Equal(t, []StopMetric{
		{StopID: "s2", StopName: "Second", Lat: 2, Lon: 20, NumTrips: 4, NumRoutes: 2},
		{StopID: "s1", StopName: "First", Lat: 1, Lon: 10, NumTrips: 3, NumRoutes: 2},
		{StopID: "s4", StopName: "Fourth", Lat: 4, Lon: 40, NumTrips: 3, NumRoutes: 2},
		{StopID: "s3", StopName: "Third", Lat: 3, Lon: 30, NumTrips: 2, NumRoutes: 1},
	}, stops)
}

func TestStopActivityDropsUnknownStops(t *testing.T) {
	feed := fixtureFeed()
	feed.StopTimes = append(feed.StopTimes, st("T6", "ghost", 3, "24:30:00", "24:30:00"))

	stops, err := StopActivity(feed, "")
	require.NoError(t, err)
	for _, s := range stops {
		assert.NotEqual(t, "ghost", s.StopID)
	}
	assert.Len(t, stops, 4)
}

func TestTripsByHour(t *testing.T) {
	hours, err := TripsByHour(fixtureFeed(), "")
	require.NoError(t, err)
	assert.Equal(t, []HourCount{
		{Hour: 6, TripCount: 1},
		{Hour: 7, TripCount: 1},
		{Hour: 8, TripCount: 3},
		{Hour: 23, TripCount: 1},
	}, hours)
}

func TestTripsByHourDuplicateFirstStop(t *testing.T) {
	feed := fixtureFeed()
	feed.Trips = append(feed.Trips, model.Trip{ID: "T9", RouteID: "R2", ServiceID: "S4"})
	feed.StopTimes = append(feed.StopTimes,
		st("T9", "s1", 1, "09:00:00", "09:00:00"),
		st("T9", "s2", 1, "10:00:00", "10:00:00"),
	)

	hours, err := TripsByHour(feed, "S4")
	require.NoError(t, err)
	assert.Equal(t, []HourCount{{Hour: 9, TripCount: 1}}, hours)
}

func TestTripsByHourPastMidnight(t *testing.T) {
	feed := fixtureFeed()
	feed.Trips = append(feed.Trips, model.Trip{ID: "T8", RouteID: "R3", ServiceID: "S5"})
	feed.StopTimes = append(feed.StopTimes, st("T8", "s1", 1, "25:05:00", "25:05:00"))

	hours, err := TripsByHour(feed, "S5")
	require.NoError(t, err)
	assert.Equal(t, []HourCount{{Hour: 25, TripCount: 1}}, hours)
}

func TestBlockFor(t *testing.T) {
	for _, tc := range []struct {
		time  string
		block TimeBlock
	}{
		{"00:00:00", BlockPreEarlyAM},
		{"03:59:59", BlockPreEarlyAM},
		{"04:00:00", BlockEarlyAM},
		{"05:59:59", BlockEarlyAM},
		{"06:00:00", BlockAMPeak},
		{"08:59:59", BlockAMPeak},
		{"09:00:00", BlockBase},
		{"14:59:59", BlockBase},
		{"15:00:00", BlockPMPeak},
		{"17:59:59", BlockPMPeak},
		{"18:00:00", BlockEvening},
		{"21:59:59", BlockEvening},
		{"22:00:00", BlockLateEvening},
		{"25:30:00", BlockLateEvening},
	} {
		assert.Equal(t, tc.block, BlockFor(model.ParseServiceTime(tc.time)), tc.time)
	}
}

func TestPeakOffPeak(t *testing.T) {
	periods, err := PeakOffPeak(fixtureFeed(), "")
	require.NoError(t, err)
	assert.Equal(t, []PeriodMetric{
		{Block: BlockAMPeak, NumTrips: 5, NumRoutes: 2, PctOfService: 83.33},
		{Block: BlockLateEvening, NumTrips: 1, NumRoutes: 1, PctOfService: 16.67},
	}, periods)
}

func TestPeakOffPeakPartition(t *testing.T) {
	feed := fixtureFeed()
	times := []string{"00:30:00", "04:00:00", "05:00:00", "06:00:00", "09:00:00", "12:00:00",
		"15:00:00", "18:00:00", "21:59:59", "22:00:00", "26:00:00", "bad"}
	for i, tm := range times {
		id := "P" + string(rune('a'+i))
		feed.Trips = append(feed.Trips, model.Trip{ID: id, RouteID: "R2", ServiceID: "P"})
		feed.StopTimes = append(feed.StopTimes, st(id, "s2", 1, tm, tm))
	}

	periods, err := PeakOffPeak(feed, "P")
	require.NoError(t, err)
	require.Len(t, periods, 7)

	sum := 0
	for i, p := range periods {
		assert.Equal(t, TimeBlocks[i], p.Block)
		sum += p.NumTrips
	}

	hours, err := TripsByHour(feed, "P")
	require.NoError(t, err)
	total := 0
	for _, h := range hours {
		total += h.TripCount
	}
	assert.Equal(t, total, sum)
	assert.Equal(t, len(times)-1, sum)
}

func TestRouteDetail(t *testing.T) {
	d, err := RouteDetail(fixtureFeed(), "R1", "")
	require.NoError(t, err)

	assert.Equal(t, "R1", d.RouteID)
	assert.Equal(t, "1", d.ShortName)
	assert.Equal(t, "Main", d.LongName)
	assert.Equal(t, model.RouteTypeBus, d.RouteType)
	assert.Equal(t, 3, d.NumTrips)
	assert.Equal(t, 3, d.NumStops)

	ids := []string{}
	for _, s := range d.Stops {
		ids = append(ids, s.StopID)
	}
	assert.Equal(t, []string{"s1", "s3", "s2"}, ids)

	// Direction 0 has 08:00 and 08:30, direction 1 only 08:10.
	require.NotNil(t, d.AvgHeadwayMin)
	assert.Equal(t, 30.0, *d.AvgHeadwayMin)

	assert.Equal(t, "08:00:00", d.FirstTrip)
	assert.Equal(t, "08:30:00", d.LastTrip)
	require.NotNil(t, d.ServiceSpanHours)
	assert.Equal(t, 0.5, *d.ServiceSpanHours)
	assert.Equal(t, []string{"08:00:00", "08:10:00", "08:30:00"}, d.DepartureTimes)

	assert.Equal(t, "A", d.ShapeID)
	assert.Equal(t, []model.LatLon{{Lat: 1.1, Lon: 10.1}, {Lat: 1.2, Lon: 10.2}}, d.Shape)
}

func TestRouteDetailPooledHeadway(t *testing.T) {
	feed := fixtureFeed()
	feed.Trips = append(feed.Trips,
		model.Trip{ID: "U1", RouteID: "R2", ServiceID: "U", DirectionID: 0},
		model.Trip{ID: "U2", RouteID: "R2", ServiceID: "U", DirectionID: 0},
		model.Trip{ID: "U3", RouteID: "R2", ServiceID: "U", DirectionID: 1},
		model.Trip{ID: "U4", RouteID: "R2", ServiceID: "U", DirectionID: 1},
		model.Trip{ID: "U5", RouteID: "R2", ServiceID: "U", DirectionID: 1},
	)
	feed.StopTimes = append(feed.StopTimes,
		st("U1", "s2", 1, "10:00:00", "10:00:00"),
		st("U2", "s2", 1, "11:00:00", "11:00:00"),
		st("U3", "s4", 1, "10:05:00", "10:05:00"),
		st("U4", "s4", 1, "10:15:00", "10:15:00"),
		st("U5", "s4", 1, "10:25:00", "10:25:00"),
	)

	// Pooled [60, 10, 10] averages 26.67. Averaging the two
	// direction means would give 35.
	d, err := RouteDetail(feed, "R2", "U")
	require.NoError(t, err)
	require.NotNil(t, d.AvgHeadwayMin)
	assert.Equal(t, 26.67, *d.AvgHeadwayMin)
	assert.Equal(t, 1.0, *d.ServiceSpanHours)
}

func TestRouteDetailSingleTrip(t *testing.T) {
	d, err := RouteDetail(fixtureFeed(), "R1", "S2")
	require.NoError(t, err)
	assert.Equal(t, 1, d.NumTrips)
	assert.Nil(t, d.AvgHeadwayMin)
	assert.Equal(t, "08:10:00", d.FirstTrip)
	assert.Equal(t, "08:10:00", d.LastTrip)
	assert.Equal(t, 0.0, *d.ServiceSpanHours)
	assert.Equal(t, "B", d.ShapeID)
}

func TestRouteDetailWithoutShapes(t *testing.T) {
	feed := fixtureFeed()
	feed.Shapes = nil

	d, err := RouteDetail(feed, "R1", "")
	require.NoError(t, err)
	assert.Equal(t, "", d.ShapeID)
	assert.Nil(t, d.Shape)
}

func TestRouteDetailNoTimedTrips(t *testing.T) {
	d, err := RouteDetail(fixtureFeed(), "R1", "S9")
	require.NoError(t, err)
	assert.Equal(t, 0, d.NumTrips)
	assert.Nil(t, d.AvgHeadwayMin)
	assert.Nil(t, d.ServiceSpanHours)
	assert.Equal(t, "", d.FirstTrip)
	assert.Empty(t, d.Stops)
}

func TestRouteDetailNotFound(t *testing.T) {
	_, err := RouteDetail(fixtureFeed(), "nope", "")
	require.Error(t, err)

	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "nope", nf.RouteID)
}

func TestMissingRequiredTable(t *testing.T) {
	feed := fixtureFeed()
	feed.StopTimes = nil

	check := func(err error) {
		var de *DataError
		require.True(t, errors.As(err, &de), "%v", err)
		assert.Equal(t, model.TableStopTimes, de.Table)
	}

	_, err := RouteFrequencies(feed, "")
	check(err)
	_, err = ServiceHoursFor(feed, "")
	check(err)
	_, err = StopActivity(feed, "")
	check(err)
	_, err = TripsByHour(feed, "")
	check(err)
	_, err = PeakOffPeak(feed, "")
	check(err)
	_, err = RouteDetail(feed, "R1", "")
	check(err)

	feed = fixtureFeed()
	feed.Routes = nil
	_, err = System(feed)
	var de *DataError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, model.TableRoutes, de.Table)

	_, err = System(nil)
	require.True(t, errors.As(err, &de))
}

func TestIdempotent(t *testing.T) {
	feed := fixtureFeed()

	f1, err := RouteFrequencies(feed, "")
	require.NoError(t, err)
	f2, err := RouteFrequencies(feed, "")
	require.NoError(t, err)
	assert.Equal(t, f1, f2)

	s1, err := StopActivity(feed, "S1")
	require.NoError(t, err)
	s2, err := StopActivity(feed, "S1")
	require.NoError(t, err)
	assert.Equal(t, s1, s2)

	d1, err := RouteDetail(feed, "R1", "")
	require.NoError(t, err)
	d2, err := RouteDetail(feed, "R1", "")
	require.NoError(t, err)
	assert.Equal(t, d1, d2)

	p1, err := PeakOffPeak(feed, "")
	require.NoError(t, err)
	p2, err := PeakOffPeak(feed, "")
	require.NoError(t, err)
	assert.Equal(t, p1, p2)

	// And the feed is untouched.
	assert.Equal(t, fixtureFeed(), feed)
}
