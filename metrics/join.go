package metrics

import (
	"tidbyt.dev/gtfsmetrics/model"
)

// A stop_time joined with its trip, and optionally its route and
// stop. Pointers reference rows of the source feed and must not be
// written through.
type TripStop struct {
	StopTime *model.StopTime
	Trip     *model.Trip
	Route    *model.Route
	Stop     *model.Stop
}

// Filter for RouteTripStopJoin. Empty strings match everything.
type JoinFilter struct {
	RouteID   string
	ServiceID string

	// Also inner join stops, dropping stop_times whose stop_id is
	// unknown.
	WithStops bool
}

// Inner join of routes, trips and stop_times (and stops, if
// requested), in stop_times order. Trips are filtered before the
// join. When route_id is repeated in routes, the first row is used.
func RouteTripStopJoin(feed *model.Feed, filter JoinFilter) ([]TripStop, error) {
	required := []model.TableName{model.TableRoutes, model.TableTrips, model.TableStopTimes}
	if filter.WithStops {
		required = append(required, model.TableStops)
	}
	if err := requireTables(feed, required...); err != nil {
		return nil, err
	}

	routes := indexRoutes(feed)
	trips := indexTrips(feed, filter.RouteID, filter.ServiceID)

	var stops map[string]*model.Stop
	if filter.WithStops {
		stops = indexStops(feed)
	}

	rows := []TripStop{}
	for i := range feed.StopTimes {
		st := &feed.StopTimes[i]
		trip, found := trips[st.TripID]
		if !found {
			continue
		}
		route, found := routes[trip.RouteID]
		if !found {
			continue
		}
		row := TripStop{StopTime: st, Trip: trip, Route: route}
		if filter.WithStops {
			row.Stop, found = stops[st.StopID]
			if !found {
				continue
			}
		}
		rows = append(rows, row)
	}

	return rows, nil
}

// Inner join of trips and stop_times, in stop_times order,
// optionally restricted to one service.
func TripStopJoin(feed *model.Feed, serviceID string) ([]TripStop, error) {
	if err := requireTables(feed, model.TableTrips, model.TableStopTimes); err != nil {
		return nil, err
	}

	trips := indexTrips(feed, "", serviceID)

	rows := []TripStop{}
	for i := range feed.StopTimes {
		st := &feed.StopTimes[i]
		trip, found := trips[st.TripID]
		if !found {
			continue
		}
		rows = append(rows, TripStop{StopTime: st, Trip: trip})
	}

	return rows, nil
}

// Reduces joined rows to the one with minimum stop_sequence per
// trip. If several rows share the minimum, the first in input order
// is kept. Output is ordered by first appearance of each trip.
func FirstStopPerTrip(rows []TripStop) []TripStop {
	pos := map[string]int{}
	first := []TripStop{}

	for _, row := range rows {
		i, seen := pos[row.Trip.ID]
		if !seen {
			pos[row.Trip.ID] = len(first)
			first = append(first, row)
			continue
		}
		if row.StopTime.StopSequence < first[i].StopTime.StopSequence {
			first[i] = row
		}
	}

	return first
}

func indexRoutes(feed *model.Feed) map[string]*model.Route {
	routes := map[string]*model.Route{}
	for i := range feed.Routes {
		r := &feed.Routes[i]
		if _, dup := routes[r.ID]; !dup {
			routes[r.ID] = r
		}
	}
	return routes
}

func indexTrips(feed *model.Feed, routeID string, serviceID string) map[string]*model.Trip {
	trips := map[string]*model.Trip{}
	for i := range feed.Trips {
		t := &feed.Trips[i]
		if routeID != "" && t.RouteID != routeID {
			continue
		}
		if serviceID != "" && t.ServiceID != serviceID {
			continue
		}
		if _, dup := trips[t.ID]; !dup {
			trips[t.ID] = t
		}
	}
	return trips
}

func indexStops(feed *model.Feed) map[string]*model.Stop {
	stops := map[string]*model.Stop{}
	for i := range feed.Stops {
		s := &feed.Stops[i]
		if _, dup := stops[s.ID]; !dup {
			stops[s.ID] = s
		}
	}
	return stops
}
