package metrics

import (
	"tidbyt.dev/gtfsmetrics/model"
)

type SystemMetrics struct {
	TotalRoutes int `json:"total_routes"`
	TotalStops  int `json:"total_stops"`
	TotalTrips  int `json:"total_trips"`

	// Distinct shape_id count. Nil when the feed has no shapes
	// table.
	TotalShapes *int `json:"total_shapes,omitempty"`
}

// Feed wide row counts. Not filtered by service.
func System(feed *model.Feed) (SystemMetrics, error) {
	err := requireTables(feed, model.TableRoutes, model.TableStops, model.TableTrips)
	if err != nil {
		return SystemMetrics{}, err
	}

	m := SystemMetrics{
		TotalRoutes: len(feed.Routes),
		TotalStops:  len(feed.Stops),
		TotalTrips:  len(feed.Trips),
	}

	if feed.Has(model.TableShapes) {
		shapes := map[string]bool{}
		for _, s := range feed.Shapes {
			shapes[s.ID] = true
		}
		n := len(shapes)
		m.TotalShapes = &n
	}

	return m, nil
}
