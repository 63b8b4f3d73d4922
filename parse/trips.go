package parse

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"

	"tidbyt.dev/gtfsmetrics/model"
	"tidbyt.dev/gtfsmetrics/storage"
)

type TripCSV struct {
	ID          string `csv:"trip_id"`
	RouteID     string `csv:"route_id"`
	ServiceID   string `csv:"service_id"`
	Headsign    string `csv:"trip_headsign"`
	ShortName   string `csv:"trip_short_name"`
	DirectionID int8   `csv:"direction_id"`
	ShapeID     string `csv:"shape_id"`
	// BlockID              string `csv:"block_id"`
	// WheelchairAccessible int8   `csv:"wheelchair_accessible"`
	// BikesAllowed         int8   `csv:"bikes_allowed"`
}

// Writes all trips. References to routes and services are not
// checked; joins downstream drop what doesn't match.
func ParseTrips(writer storage.FeedWriter, data io.Reader) error {
	configureCSV()

	tripCsv := []*TripCSV{}
	if err := gocsv.Unmarshal(data, &tripCsv); err != nil {
		return fmt.Errorf("unmarshaling trips csv: %w", err)
	}

	for i, t := range tripCsv {
		if t.ID == "" {
			return fmt.Errorf("empty trip_id (row %d)", i+1)
		}

		err := writer.WriteTrip(&model.Trip{
			ID:          t.ID,
			RouteID:     t.RouteID,
			ServiceID:   t.ServiceID,
			Headsign:    t.Headsign,
			ShortName:   t.ShortName,
			DirectionID: t.DirectionID,
			ShapeID:     t.ShapeID,
		})
		if err != nil {
			return fmt.Errorf("writing trip: %w", err)
		}
	}

	return nil
}
