package metrics

import (
	"sort"

	"tidbyt.dev/gtfsmetrics/model"
)

type StopMetric struct {
	StopID    string  `json:"stop_id"`
	StopName  string  `json:"stop_name"`
	Lat       float64 `json:"stop_lat"`
	Lon       float64 `json:"stop_lon"`
	NumTrips  int     `json:"n_trips"`
	NumRoutes int     `json:"n_routes"`
}

// Distinct trips and routes serving each stop, busiest first.
func StopActivity(feed *model.Feed, serviceID string) ([]StopMetric, error) {
	if err := requireTables(feed, model.TableStops); err != nil {
		return nil, err
	}

	rows, err := TripStopJoin(feed, serviceID)
	if err != nil {
		return nil, err
	}

	type activity struct {
		trips  map[string]bool
		routes map[string]bool
	}

	order := []string{}
	byStop := map[string]*activity{}
	for _, row := range rows {
		a, found := byStop[row.StopTime.StopID]
		if !found {
			a = &activity{trips: map[string]bool{}, routes: map[string]bool{}}
			byStop[row.StopTime.StopID] = a
			order = append(order, row.StopTime.StopID)
		}
		a.trips[row.Trip.ID] = true
		a.routes[row.Trip.RouteID] = true
	}

	stops := indexStops(feed)

	result := []StopMetric{}
	for _, stopID := range order {
		stop, found := stops[stopID]
		if !found {
			continue
		}
		result = append(result, StopMetric{
			StopID:    stop.ID,
			StopName:  stop.Name,
			Lat:       stop.Lat,
			Lon:       stop.Lon,
			NumTrips:  len(byStop[stopID].trips),
			NumRoutes: len(byStop[stopID].routes),
		})
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].NumTrips != result[j].NumTrips {
			return result[i].NumTrips > result[j].NumTrips
		}
		return result[i].StopID < result[j].StopID
	})

	return result, nil
}
