package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"

	"tidbyt.dev/gtfsmetrics"
	"tidbyt.dev/gtfsmetrics/cache"
	"tidbyt.dev/gtfsmetrics/catalog"
)

func (s *Server) load(r *http.Request, ps httprouter.Params) (*gtfsmetrics.Static, error) {
	name := ps.ByName("feed")
	url, found := s.Feeds[name]
	if !found {
		return nil, &unknownFeedError{name: name}
	}

	static, err := s.Manager.Load(r.Context(), url)
	if err != nil {
		return nil, &feedError{err: err}
	}
	return static, nil
}

// Reads ?date= (YYYYMMDD or YYYY-MM-DD, default today in the feed's
// timezone) and ?service=. Without a service parameter the date's
// default service is used. An empty service parameter selects all
// service.
func (s *Server) serviceDay(r *http.Request, static *gtfsmetrics.Static) (time.Time, string, error) {
	query := r.URL.Query()

	date := static.Today(s.TimeNow())
	if value := query.Get("date"); value != "" {
		var err error
		date, err = parseDate(value, static.Location())
		if err != nil {
			return time.Time{}, "", err
		}
	}

	if query.Has("service") {
		return date, query.Get("service"), nil
	}
	return date, static.ServiceFor(date), nil
}

func parseDate(value string, loc *time.Location) (time.Time, error) {
	for _, layout := range []string{"20060102", "2006-01-02"} {
		date, err := time.ParseInLocation(layout, value, loc)
		if err == nil {
			return date, nil
		}
	}
	return time.Time{}, &requestError{msg: "invalid date " + strconv.Quote(value)}
}

type feedEntry struct {
	Name        string     `json:"name"`
	URL         string     `json:"url"`
	Loaded      bool       `json:"loaded"`
	Hash        string     `json:"hash,omitempty"`
	RetrievedAt *time.Time `json:"retrieved_at,omitempty"`
}

func (s *Server) feedsHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	feeds := []feedEntry{}
	for _, name := range s.feedNames() {
		entry := feedEntry{Name: name, URL: s.Feeds[name]}
		if static, err := s.Manager.Get(entry.URL); err == nil {
			entry.Loaded = true
			entry.Hash = static.Metadata.Hash
			retrievedAt := static.Metadata.RetrievedAt
			entry.RetrievedAt = &retrievedAt
		}
		feeds = append(feeds, entry)
	}

	s.sendResponse(w, r, feeds)
}

func (s *Server) summaryHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	static, err := s.load(r, ps)
	if err != nil {
		s.sendError(w, r, err)
		return
	}

	date, service, err := s.serviceDay(r, static)
	if err != nil {
		s.sendError(w, r, err)
		return
	}

	build := func(ctx context.Context) (*gtfsmetrics.Report, error) {
		return static.ReportFor(ctx, date, service)
	}

	var report *gtfsmetrics.Report
	if s.Cache != nil {
		key := cache.Key{
			FeedHash:  static.Metadata.Hash,
			Date:      date.Format("20060102"),
			ServiceID: service,
		}
		report, err = cache.GetOrBuild(r.Context(), s.Cache, key, build)
	} else {
		report, err = build(r.Context())
	}
	if err != nil {
		s.sendError(w, r, err)
		return
	}

	s.sendResponse(w, r, report)
}

type servicesResponse struct {
	Date           string   `json:"date"`
	ActiveServices []string `json:"active_services"`
	ServiceID      string   `json:"service_id"`
	InCalendar     bool     `json:"in_calendar"`
}

func (s *Server) servicesHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	static, err := s.load(r, ps)
	if err != nil {
		s.sendError(w, r, err)
		return
	}

	date, service, err := s.serviceDay(r, static)
	if err != nil {
		s.sendError(w, r, err)
		return
	}

	s.sendResponse(w, r, servicesResponse{
		Date:           date.Format("20060102"),
		ActiveServices: static.ActiveServices(date),
		ServiceID:      service,
		InCalendar:     static.Covers(date),
	})
}

func (s *Server) catalogHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	static, err := s.load(r, ps)
	if err != nil {
		s.sendError(w, r, err)
		return
	}

	entries, err := catalog.Routes(static.Feed, s.Catalog)
	if err != nil {
		s.sendError(w, r, err)
		return
	}

	s.sendResponse(w, r, entries)
}

func (s *Server) routesHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	static, err := s.load(r, ps)
	if err != nil {
		s.sendError(w, r, err)
		return
	}

	_, service, err := s.serviceDay(r, static)
	if err != nil {
		s.sendError(w, r, err)
		return
	}

	routes, err := static.RouteFrequencies(service)
	if err != nil {
		s.sendError(w, r, err)
		return
	}

	s.sendResponse(w, r, routes)
}

func (s *Server) routeHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	static, err := s.load(r, ps)
	if err != nil {
		s.sendError(w, r, err)
		return
	}

	_, service, err := s.serviceDay(r, static)
	if err != nil {
		s.sendError(w, r, err)
		return
	}

	// route_ids may contain slashes, which only the query form
	// can carry.
	routeID := ps.ByName("route")
	if routeID == "" {
		routeID = r.URL.Query().Get("route_id")
	}
	if routeID == "" {
		s.sendError(w, r, &requestError{msg: "missing route_id"})
		return
	}

	detail, err := static.RouteDetail(routeID, service)
	if err != nil {
		s.sendError(w, r, err)
		return
	}

	s.sendResponse(w, r, detail)
}

func (s *Server) stopsHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	static, err := s.load(r, ps)
	if err != nil {
		s.sendError(w, r, err)
		return
	}

	_, service, err := s.serviceDay(r, static)
	if err != nil {
		s.sendError(w, r, err)
		return
	}

	limit := 0
	if value := r.URL.Query().Get("limit"); value != "" {
		limit, err = strconv.Atoi(value)
		if err != nil || limit < 0 {
			s.sendError(w, r, &requestError{msg: "invalid limit " + strconv.Quote(value)})
			return
		}
	}

	stops, err := static.StopActivity(service)
	if err != nil {
		s.sendError(w, r, err)
		return
	}
	if limit > 0 && len(stops) > limit {
		stops = stops[:limit]
	}

	s.sendResponse(w, r, stops)
}

func (s *Server) hoursHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	static, err := s.load(r, ps)
	if err != nil {
		s.sendError(w, r, err)
		return
	}

	_, service, err := s.serviceDay(r, static)
	if err != nil {
		s.sendError(w, r, err)
		return
	}

	hours, err := static.TripsByHour(service)
	if err != nil {
		s.sendError(w, r, err)
		return
	}

	s.sendResponse(w, r, hours)
}

func (s *Server) peakHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	static, err := s.load(r, ps)
	if err != nil {
		s.sendError(w, r, err)
		return
	}

	_, service, err := s.serviceDay(r, static)
	if err != nil {
		s.sendError(w, r, err)
		return
	}

	peak, err := static.PeakOffPeak(service)
	if err != nil {
		s.sendError(w, r, err)
		return
	}

	s.sendResponse(w, r, peak)
}
