// Package api serves feed metrics as JSON.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"

	"tidbyt.dev/gtfsmetrics"
	"tidbyt.dev/gtfsmetrics/cache"
	"tidbyt.dev/gtfsmetrics/catalog"
	"tidbyt.dev/gtfsmetrics/metrics"
)

type Server struct {
	Manager *gtfsmetrics.Manager

	// Feed name to URL.
	Feeds map[string]string

	// Summary reports are cached here when set.
	Cache   cache.ReportCache
	Catalog catalog.Options
	Logger  zerolog.Logger
	TimeNow func() time.Time
}

func NewServer(manager *gtfsmetrics.Manager, feeds map[string]string) *Server {
	return &Server{
		Manager: manager,
		Feeds:   feeds,
		Logger:  zerolog.Nop(),
		TimeNow: time.Now,
	}
}

func (s *Server) Handler() http.Handler {
	router := httprouter.New()

	router.GET("/feeds", s.feedsHandler)
	router.GET("/feeds/:feed/summary", s.summaryHandler)
	router.GET("/feeds/:feed/services", s.servicesHandler)
	router.GET("/feeds/:feed/catalog", s.catalogHandler)
	router.GET("/feeds/:feed/routes", s.routesHandler)
	router.GET("/feeds/:feed/routes/:route", s.routeHandler)
	router.GET("/feeds/:feed/route", s.routeHandler)
	router.GET("/feeds/:feed/stops", s.stopsHandler)
	router.GET("/feeds/:feed/hours", s.hoursHandler)
	router.GET("/feeds/:feed/peak", s.peakHandler)

	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.errorResponse(w, r, http.StatusNotFound, "not found")
	})

	return s.logRequests(router)
}

type errorBody struct {
	Code int    `json:"code"`
	Text string `json:"text"`
}

// Error returned when the request itself is malformed.
type requestError struct {
	msg string
}

func (e *requestError) Error() string {
	return e.msg
}

// Error returned when the feed can't be loaded.
type feedError struct {
	err error
}

func (e *feedError) Error() string {
	return "loading feed: " + e.err.Error()
}

func (e *feedError) Unwrap() error {
	return e.err
}

type unknownFeedError struct {
	name string
}

func (e *unknownFeedError) Error() string {
	return "unknown feed " + e.name
}

// HTTP status for an error from a handler.
func statusFor(err error) int {
	var reqErr *requestError
	var unknownFeed *unknownFeedError
	var notFound *metrics.NotFoundError
	var dataErr *metrics.DataError
	var feedErr *feedError

	switch {
	case errors.As(err, &reqErr):
		return http.StatusBadRequest
	case errors.As(err, &unknownFeed), errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &dataErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &feedErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) sendResponse(w http.ResponseWriter, r *http.Request, body interface{}) {
	w.Header().Set("Content-Type", "application/json")

	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		s.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("failed to encode response")
	}
}

func (s *Server) sendError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError || status == http.StatusBadGateway {
		s.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	s.errorResponse(w, r, status, err.Error())
}

func (s *Server) errorResponse(w http.ResponseWriter, r *http.Request, status int, text string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(errorBody{Code: status, Text: text})
	if err != nil {
		s.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("failed to encode error response")
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := s.TimeNow()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		s.Logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", s.TimeNow().Sub(started)).
			Msg("request")
	})
}

func (s *Server) feedNames() []string {
	names := make([]string, 0, len(s.Feeds))
	for name := range s.Feeds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
