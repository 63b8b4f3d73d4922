package parse

import (
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"

	"tidbyt.dev/gtfsmetrics/model"
	"tidbyt.dev/gtfsmetrics/storage"
)

type RouteCSV struct {
	ID        string `csv:"route_id"`
	AgencyID  string `csv:"agency_id"`
	ShortName string `csv:"route_short_name"`
	LongName  string `csv:"route_long_name"`
	Desc      string `csv:"route_desc"`
	Type      string `csv:"route_type"`
	URL       string `csv:"route_url"`
	Color     string `csv:"route_color"`
	TextColor string `csv:"route_text_color"`
	// SortOrder string `csv:"route_sort_order"`
}

func validRouteColor(color string) bool {
	if len(color) != 6 {
		return false
	}
	if _, err := hex.DecodeString(color); err != nil {
		return false
	}
	return true
}

// Writes all routes in file order. Repeated route_id rows are kept.
func ParseRoutes(writer storage.FeedWriter, data io.Reader) error {
	configureCSV()

	routeCsv := []*RouteCSV{}
	if err := gocsv.Unmarshal(data, &routeCsv); err != nil {
		return fmt.Errorf("unmarshaling routes: %w", err)
	}

	for i, r := range routeCsv {
		if r.ID == "" {
			return fmt.Errorf("route has no route_id (row %d)", i+1)
		}

		routeType, err := strconv.Atoi(strings.TrimSpace(r.Type))
		if err != nil || routeType < 0 {
			return fmt.Errorf("route_id '%s' has invalid route_type: '%s'", r.ID, r.Type)
		}

		// GTFS defaults
		if !validRouteColor(r.Color) {
			r.Color = "FFFFFF"
		}
		if !validRouteColor(r.TextColor) {
			r.TextColor = "000000"
		}

		err = writer.WriteRoute(&model.Route{
			ID:        r.ID,
			AgencyID:  r.AgencyID,
			ShortName: r.ShortName,
			LongName:  r.LongName,
			Desc:      r.Desc,
			Type:      model.RouteType(routeType),
			URL:       r.URL,
			Color:     strings.ToUpper(r.Color),
			TextColor: strings.ToUpper(r.TextColor),
		})
		if err != nil {
			return fmt.Errorf("writing route: %w", err)
		}
	}

	return nil
}
