package metrics

import (
	"sort"

	"tidbyt.dev/gtfsmetrics/model"
)

type HourCount struct {
	Hour      int `json:"hour"`
	TripCount int `json:"trip_count"`
}

// Number of trips starting in each hour, by first-stop departure.
// Hours past midnight of the service day are reported as 24, 25, and
// so on. Trips without a valid first departure are not counted.
func TripsByHour(feed *model.Feed, serviceID string) ([]HourCount, error) {
	rows, err := TripStopJoin(feed, serviceID)
	if err != nil {
		return nil, err
	}

	trips := map[int]map[string]bool{}
	for _, row := range FirstStopPerTrip(rows) {
		dep := row.StopTime.DepartureTime
		if !dep.Valid {
			continue
		}
		h := dep.Hour()
		if trips[h] == nil {
			trips[h] = map[string]bool{}
		}
		trips[h][row.Trip.ID] = true
	}

	counts := make([]HourCount, 0, len(trips))
	for h, ids := range trips {
		counts = append(counts, HourCount{Hour: h, TripCount: len(ids)})
	}
	sort.Slice(counts, func(i, j int) bool {
		return counts[i].Hour < counts[j].Hour
	})

	return counts, nil
}
