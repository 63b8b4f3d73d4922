package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/gtfsmetrics"
	"tidbyt.dev/gtfsmetrics/cache"
	"tidbyt.dev/gtfsmetrics/downloader"
	"tidbyt.dev/gtfsmetrics/metrics"
	"tidbyt.dev/gtfsmetrics/model"
	"tidbyt.dev/gtfsmetrics/storage"
	"tidbyt.dev/gtfsmetrics/testutil"
)

const (
	fixtureURL = "http://example.com/gtfs.zip"
	brokenURL  = "http://example.com/broken.zip"
	slashURL   = "http://example.com/slash.zip"
)

type testServer struct {
	server   *Server
	handler  http.Handler
	requests map[string]int
}

func newTestServer(t *testing.T) *testServer {
	fixture := testutil.FixtureZip(t)
	ts := &testServer{requests: map[string]int{}}

	// The fixture with R1 renamed to R/1.
	slashFiles := testutil.FixtureFiles()
	for _, name := range []string{"routes.txt", "trips.txt"} {
		for i, line := range slashFiles[name] {
			slashFiles[name][i] = strings.Replace(line, "R1,", "R/1,", 1)
		}
	}
	slash := testutil.BuildZip(t, slashFiles)

	d := downloader.NewMemoryDownloader()
	d.Fetch = func(ctx context.Context, url string, headers map[string]string, options downloader.GetOptions) ([]byte, error) {
		ts.requests[url]++
		switch url {
		case brokenURL:
			return nil, &downloader.StatusError{StatusCode: http.StatusInternalServerError}
		case slashURL:
			return slash, nil
		}
		return fixture, nil
	}

	manager := gtfsmetrics.NewManager(storage.NewMemoryStorage())
	manager.Downloader = d

	ts.server = NewServer(manager, map[string]string{
		"fixture": fixtureURL,
		"broken":  brokenURL,
		"slash":   slashURL,
	})
	ts.server.TimeNow = func() time.Time {
		// A Wednesday
		return time.Date(2024, 3, 13, 12, 0, 0, 0, time.UTC)
	}
	ts.handler = ts.server.Handler()

	return ts
}

func (ts *testServer) get(t *testing.T, path string, body interface{}) int {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	if body != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), body), rec.Body.String())
	}
	return rec.Code
}

func TestFeeds(t *testing.T) {
	ts := newTestServer(t)

	feeds := []feedEntry{}
	require.Equal(t, http.StatusOK, ts.get(t, "/feeds", &feeds))
	require.Equal(t, 3, len(feeds))
	assert.Equal(t, "broken", feeds[0].Name)
	assert.Equal(t, "fixture", feeds[1].Name)
	assert.Equal(t, "slash", feeds[2].Name)
	assert.False(t, feeds[1].Loaded)

	require.Equal(t, http.StatusOK, ts.get(t, "/feeds/fixture/hours", nil))

	require.Equal(t, http.StatusOK, ts.get(t, "/feeds", &feeds))
	assert.True(t, feeds[1].Loaded)
	assert.NotEmpty(t, feeds[1].Hash)
	assert.False(t, feeds[0].Loaded)
}

func TestSummary(t *testing.T) {
	ts := newTestServer(t)

	report := gtfsmetrics.Report{}
	require.Equal(t, http.StatusOK, ts.get(t, "/feeds/fixture/summary", &report))
	assert.Equal(t, "20240313", report.Date)
	assert.Equal(t, "weekday", report.ServiceID)
	assert.Equal(t, []string{"weekday"}, report.ActiveServices)
	assert.True(t, report.InCalendar)
	assert.Equal(t, 5, report.System.TotalTrips)
	assert.Equal(t, []metrics.HourCount{
		{Hour: 8, TripCount: 2},
		{Hour: 9, TripCount: 1},
	}, report.Hours)

	// Explicit date and service
	require.Equal(t, http.StatusOK, ts.get(t, "/feeds/fixture/summary?date=2024-03-16", &report))
	assert.Equal(t, "weekend", report.ServiceID)
	assert.Equal(t, []metrics.HourCount{{Hour: 10, TripCount: 1}}, report.Hours)

	require.Equal(t, http.StatusOK, ts.get(t, "/feeds/fixture/summary?date=20240316&service=", &report))
	assert.Equal(t, "", report.ServiceID)
	assert.Equal(t, []string{"weekend"}, report.ActiveServices)
	assert.Equal(t, 4, len(report.Hours))

	// Outside the calendar
	require.Equal(t, http.StatusOK, ts.get(t, "/feeds/fixture/summary?date=20250101", &report))
	assert.False(t, report.InCalendar)
	assert.Equal(t, "", report.ServiceID)

	// The feed is downloaded once
	assert.Equal(t, 1, ts.requests[fixtureURL])
}

func TestSummaryCached(t *testing.T) {
	ts := newTestServer(t)
	reports := cache.NewMemory(time.Hour)
	ts.server.Cache = reports

	report := gtfsmetrics.Report{}
	require.Equal(t, http.StatusOK, ts.get(t, "/feeds/fixture/summary", &report))
	assert.Equal(t, 1, reports.Len())

	require.Equal(t, http.StatusOK, ts.get(t, "/feeds/fixture/summary", &report))
	assert.Equal(t, 1, reports.Len())

	require.Equal(t, http.StatusOK, ts.get(t, "/feeds/fixture/summary?date=20240316", &report))
	assert.Equal(t, 2, reports.Len())

	cached, found, err := reports.Get(context.Background(), cache.KeyFor(&report))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "weekend", cached.ServiceID)
}

func TestServices(t *testing.T) {
	ts := newTestServer(t)

	for _, tc := range []struct {
		date     string
		active   []string
		service  string
		calendar bool
	}{
		{"20240313", []string{"weekday"}, "weekday", true},
		{"20240316", []string{"weekend"}, "weekend", true},
		{"20240704", []string{"holiday"}, "holiday", true},
		{"20250101", []string{}, "", false},
	} {
		t.Run(tc.date, func(t *testing.T) {
			resp := servicesResponse{}
			require.Equal(t, http.StatusOK, ts.get(t, "/feeds/fixture/services?date="+tc.date, &resp))
			assert.Equal(t, tc.date, resp.Date)
			assert.Equal(t, tc.active, resp.ActiveServices)
			assert.Equal(t, tc.service, resp.ServiceID)
			assert.Equal(t, tc.calendar, resp.InCalendar)
		})
	}
}

func TestCatalog(t *testing.T) {
	ts := newTestServer(t)

	entries := []map[string]string{}
	require.Equal(t, http.StatusOK, ts.get(t, "/feeds/fixture/catalog", &entries))
	require.Equal(t, 2, len(entries))
	assert.Equal(t, "1 - One", entries[0]["display"])
	assert.Equal(t, "2 - Two", entries[1]["display"])
}

func TestRoutes(t *testing.T) {
	ts := newTestServer(t)

	routes := []metrics.RouteFrequency{}
	require.Equal(t, http.StatusOK, ts.get(t, "/feeds/fixture/routes", &routes))
	require.Equal(t, 1, len(routes))
	assert.Equal(t, "R1", routes[0].RouteID)
	require.NotNil(t, routes[0].AvgHeadwayMin)
	assert.Equal(t, 30.0, *routes[0].AvgHeadwayMin)

	require.Equal(t, http.StatusOK, ts.get(t, "/feeds/fixture/routes?service=", &routes))
	require.Equal(t, 2, len(routes))
	assert.Equal(t, "R1", routes[0].RouteID)
	assert.Equal(t, "R2", routes[1].RouteID)
	require.NotNil(t, routes[1].AvgHeadwayMin)
	assert.Equal(t, 60.0, *routes[1].AvgHeadwayMin)
}

func TestRoute(t *testing.T) {
	ts := newTestServer(t)

	detail := metrics.RouteDetails{}
	require.Equal(t, http.StatusOK, ts.get(t, "/feeds/fixture/routes/R1", &detail))
	assert.Equal(t, "R1", detail.RouteID)
	assert.Equal(t, 3, detail.NumTrips)

	body := errorBody{}
	require.Equal(t, http.StatusNotFound, ts.get(t, "/feeds/fixture/routes/R9", &body))
	assert.Equal(t, http.StatusNotFound, body.Code)
	assert.Contains(t, body.Text, "R9")
}

func TestRouteIDWithSlash(t *testing.T) {
	ts := newTestServer(t)

	detail := metrics.RouteDetails{}
	require.Equal(t, http.StatusOK, ts.get(t, "/feeds/slash/route?route_id=R%2F1", &detail))
	assert.Equal(t, "R/1", detail.RouteID)
	assert.Equal(t, 3, detail.NumTrips)

	require.Equal(t, http.StatusOK, ts.get(t, "/feeds/fixture/route?route_id=R1", &detail))
	assert.Equal(t, "R1", detail.RouteID)

	body := errorBody{}
	require.Equal(t, http.StatusNotFound, ts.get(t, "/feeds/slash/routes/R/1", &body))

	require.Equal(t, http.StatusNotFound, ts.get(t, "/feeds/slash/route?route_id=R1", &body))
	assert.Contains(t, body.Text, "R1")

	require.Equal(t, http.StatusBadRequest, ts.get(t, "/feeds/slash/route", &body))
	assert.Contains(t, body.Text, "missing route_id")
}

func TestStops(t *testing.T) {
	ts := newTestServer(t)

	stops := []metrics.StopMetric{}
	require.Equal(t, http.StatusOK, ts.get(t, "/feeds/fixture/stops", &stops))
	require.Equal(t, 2, len(stops))
	assert.Equal(t, "A", stops[0].StopID)
	assert.Equal(t, 3, stops[0].NumTrips)
	assert.Equal(t, "B", stops[1].StopID)

	require.Equal(t, http.StatusOK, ts.get(t, "/feeds/fixture/stops?limit=1", &stops))
	require.Equal(t, 1, len(stops))
	assert.Equal(t, "A", stops[0].StopID)

	for _, limit := range []string{"x", "-1"} {
		body := errorBody{}
		require.Equal(t, http.StatusBadRequest, ts.get(t, "/feeds/fixture/stops?limit="+limit, &body))
		assert.Contains(t, body.Text, "invalid limit")
	}
}

func TestHoursAndPeak(t *testing.T) {
	ts := newTestServer(t)

	hours := []metrics.HourCount{}
	require.Equal(t, http.StatusOK, ts.get(t, "/feeds/fixture/hours?date=20240704", &hours))
	assert.Equal(t, []metrics.HourCount{{Hour: 11, TripCount: 1}}, hours)

	peak := []metrics.PeriodMetric{}
	require.Equal(t, http.StatusOK, ts.get(t, "/feeds/fixture/peak", &peak))
	total := 0
	for _, p := range peak {
		total += p.NumTrips
	}
	assert.Equal(t, 3, total)
}

func TestErrors(t *testing.T) {
	ts := newTestServer(t)

	for _, tc := range []struct {
		path   string
		status int
	}{
		{"/feeds/nope/summary", http.StatusNotFound},
		{"/feeds/broken/summary", http.StatusBadGateway},
		{"/feeds/fixture/summary?date=2024-13-45", http.StatusBadRequest},
		{"/feeds/fixture/hours?date=yesterday", http.StatusBadRequest},
		{"/nothing/here", http.StatusNotFound},
	} {
		t.Run(tc.path, func(t *testing.T) {
			body := errorBody{}
			require.Equal(t, tc.status, ts.get(t, tc.path, &body))
			assert.Equal(t, tc.status, body.Code)
			assert.NotEmpty(t, body.Text)
		})
	}
}

func TestStatusFor(t *testing.T) {
	for _, tc := range []struct {
		err    error
		status int
	}{
		{&requestError{msg: "bad"}, http.StatusBadRequest},
		{&unknownFeedError{name: "x"}, http.StatusNotFound},
		{&metrics.NotFoundError{RouteID: "R"}, http.StatusNotFound},
		{&metrics.DataError{Table: model.TableStopTimes}, http.StatusUnprocessableEntity},
		{fmt.Errorf("building report: %w", &metrics.DataError{Table: model.TableTrips}), http.StatusUnprocessableEntity},
		{&feedError{err: errors.New("timeout")}, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	} {
		assert.Equal(t, tc.status, statusFor(tc.err), tc.err.Error())
	}
}
