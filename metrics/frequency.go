package metrics

import (
	"math"
	"sort"

	"tidbyt.dev/gtfsmetrics/model"
)

type RouteFrequency struct {
	RouteID   string `json:"route_id"`
	ShortName string `json:"route_short_name"`
	LongName  string `json:"route_long_name"`

	// Mean minutes between consecutive first-stop departures. Nil
	// for routes with fewer than two timed trips.
	AvgHeadwayMin *float64 `json:"avg_headway_min"`
}

// Average headway per route, most frequent first.
//
// Each trip contributes the departure time at its first stop. Routes
// with trips in the (filtered) feed but no computable headway are
// kept with a nil average and sort last.
func RouteFrequencies(feed *model.Feed, serviceID string) ([]RouteFrequency, error) {
	rows, err := RouteTripStopJoin(feed, JoinFilter{ServiceID: serviceID})
	if err != nil {
		return nil, err
	}

	order := []*model.Route{}
	departures := map[string][]float64{}

	for _, row := range FirstStopPerTrip(rows) {
		id := row.Route.ID
		if _, seen := departures[id]; !seen {
			order = append(order, row.Route)
			departures[id] = []float64{}
		}
		if row.StopTime.DepartureTime.Valid {
			departures[id] = append(departures[id], row.StopTime.DepartureTime.Minutes())
		}
	}

	freqs := make([]RouteFrequency, 0, len(order))
	for _, route := range order {
		freqs = append(freqs, RouteFrequency{
			RouteID:       route.ID,
			ShortName:     route.ShortName,
			LongName:      route.LongName,
			AvgHeadwayMin: mean(headways(departures[route.ID])),
		})
	}

	sort.SliceStable(freqs, func(i, j int) bool {
		a, b := freqs[i].AvgHeadwayMin, freqs[j].AvgHeadwayMin
		if a == nil || b == nil {
			return a != nil && b == nil
		}
		if *a != *b {
			return *a < *b
		}
		return freqs[i].RouteID < freqs[j].RouteID
	})

	return freqs, nil
}

// Successive differences of the sorted departure minutes.
func headways(departures []float64) []float64 {
	if len(departures) < 2 {
		return nil
	}

	sorted := append([]float64(nil), departures...)
	sort.Float64s(sorted)

	diffs := make([]float64, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		diffs = append(diffs, sorted[i]-sorted[i-1])
	}
	return diffs
}

func mean(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	m := sum / float64(len(values))
	return &m
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
