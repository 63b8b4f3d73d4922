package metrics

import (
	"sort"

	"tidbyt.dev/gtfsmetrics/model"
)

type RouteStop struct {
	StopID   string  `json:"stop_id"`
	Name     string  `json:"stop_name"`
	Lat      float64 `json:"stop_lat"`
	Lon      float64 `json:"stop_lon"`
	Sequence uint32  `json:"stop_sequence"`
}

type RouteDetails struct {
	RouteID   string          `json:"route_id"`
	ShortName string          `json:"short_name"`
	LongName  string          `json:"long_name"`
	RouteType model.RouteType `json:"route_type"`

	NumStops int `json:"num_stops"`
	NumTrips int `json:"num_trips"`

	AvgHeadwayMin    *float64 `json:"avg_headway_min"`
	FirstTrip        string   `json:"first_trip"`
	LastTrip         string   `json:"last_trip"`
	ServiceSpanHours *float64 `json:"service_span_hours"`

	Stops          []RouteStop    `json:"stops"`
	DepartureTimes []string       `json:"departure_times"`
	ShapeID        string         `json:"shape_id,omitempty"`
	Shape          []model.LatLon `json:"shape_coords"`
}

// Everything about a single route.
//
// Headways are computed separately for each direction_id and then
// pooled before averaging. Only non-negative differences count.
// The shape is the one used by most of the route's trips, ties going
// to the shape seen first.
func RouteDetail(feed *model.Feed, routeID string, serviceID string) (*RouteDetails, error) {
	err := requireTables(
		feed,
		model.TableRoutes,
		model.TableTrips,
		model.TableStopTimes,
		model.TableStops,
	)
	if err != nil {
		return nil, err
	}

	route, found := indexRoutes(feed)[routeID]
	if !found {
		return nil, &NotFoundError{RouteID: routeID}
	}

	details := &RouteDetails{
		RouteID:        route.ID,
		ShortName:      route.ShortName,
		LongName:       route.LongName,
		RouteType:      route.Type,
		Stops:          []RouteStop{},
		DepartureTimes: []string{},
	}

	// Trips on the route, in feed order.
	trips := []*model.Trip{}
	tripSeen := map[string]bool{}
	for i := range feed.Trips {
		t := &feed.Trips[i]
		if t.RouteID != routeID || (serviceID != "" && t.ServiceID != serviceID) {
			continue
		}
		trips = append(trips, t)
		tripSeen[t.ID] = true
	}
	details.NumTrips = len(tripSeen)

	rows, err := RouteTripStopJoin(feed, JoinFilter{
		RouteID:   routeID,
		ServiceID: serviceID,
		WithStops: true,
	})
	if err != nil {
		return nil, err
	}

	details.Stops = routeStops(rows)
	details.NumStops = len(details.Stops)

	first := []TripStop{}
	for _, row := range FirstStopPerTrip(rows) {
		if row.StopTime.DepartureTime.Valid {
			first = append(first, row)
		}
	}
	sort.SliceStable(first, func(i, j int) bool {
		return first[i].StopTime.DepartureTime.Seconds < first[j].StopTime.DepartureTime.Seconds
	})

	details.AvgHeadwayMin = pooledHeadway(first)

	for _, row := range first {
		details.DepartureTimes = append(details.DepartureTimes, row.StopTime.DepartureTime.String())
	}

	if len(first) > 0 {
		firstDep := first[0].StopTime.DepartureTime
		lastDep := first[len(first)-1].StopTime.DepartureTime
		details.FirstTrip = firstDep.String()
		details.LastTrip = lastDep.String()
		span := round2((lastDep.Minutes() - firstDep.Minutes()) / 60)
		details.ServiceSpanHours = &span
	}

	if len(feed.Shapes) > 0 {
		details.ShapeID = mostCommonShape(trips)
		if details.ShapeID != "" {
			details.Shape = shapeCoords(feed, details.ShapeID)
		}
	}

	return details, nil
}

// Unique stops in order of their lowest stop_sequence on the route.
func routeStops(rows []TripStop) []RouteStop {
	pos := map[string]int{}
	stops := []RouteStop{}

	for _, row := range rows {
		i, seen := pos[row.Stop.ID]
		if !seen {
			pos[row.Stop.ID] = len(stops)
			stops = append(stops, RouteStop{
				StopID:   row.Stop.ID,
				Name:     row.Stop.Name,
				Lat:      row.Stop.Lat,
				Lon:      row.Stop.Lon,
				Sequence: row.StopTime.StopSequence,
			})
			continue
		}
		if row.StopTime.StopSequence < stops[i].Sequence {
			stops[i].Sequence = row.StopTime.StopSequence
		}
	}

	sort.SliceStable(stops, func(i, j int) bool {
		return stops[i].Sequence < stops[j].Sequence
	})

	return stops
}

func pooledHeadway(first []TripStop) *float64 {
	order := []int8{}
	byDirection := map[int8][]float64{}
	for _, row := range first {
		dir := row.Trip.DirectionID
		if _, seen := byDirection[dir]; !seen {
			order = append(order, dir)
		}
		byDirection[dir] = append(byDirection[dir], row.StopTime.DepartureTime.Minutes())
	}

	pooled := []float64{}
	for _, dir := range order {
		for _, h := range headways(byDirection[dir]) {
			if h >= 0 {
				pooled = append(pooled, h)
			}
		}
	}

	avg := mean(pooled)
	if avg != nil {
		*avg = round2(*avg)
	}
	return avg
}

func mostCommonShape(trips []*model.Trip) string {
	order := []string{}
	counts := map[string]int{}
	for _, t := range trips {
		if t.ShapeID == "" {
			continue
		}
		if counts[t.ShapeID] == 0 {
			order = append(order, t.ShapeID)
		}
		counts[t.ShapeID]++
	}

	best := ""
	for _, id := range order {
		if best == "" || counts[id] > counts[best] {
			best = id
		}
	}
	return best
}

func shapeCoords(feed *model.Feed, shapeID string) []model.LatLon {
	points := []model.Shape{}
	for _, s := range feed.Shapes {
		if s.ID == shapeID {
			points = append(points, s)
		}
	}
	if len(points) == 0 {
		return nil
	}

	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Sequence < points[j].Sequence
	})

	coords := make([]model.LatLon, 0, len(points))
	for _, p := range points {
		coords = append(coords, model.LatLon{Lat: p.Lat, Lon: p.Lon})
	}
	return coords
}
