package metrics

import (
	"tidbyt.dev/gtfsmetrics/model"
)

type ServiceHours struct {
	TotalRevenueHours  float64  `json:"total_revenue_hours"`
	AvgTripDurationMin *float64 `json:"avg_trip_duration_min"`
	TotalTrips         int      `json:"total_trips"`
}

// Revenue hours and mean trip duration.
//
// A trip's duration runs from its earliest valid departure to its
// latest valid arrival. Trips lacking either are counted in
// TotalTrips but left out of both the sum and the mean.
func ServiceHoursFor(feed *model.Feed, serviceID string) (ServiceHours, error) {
	rows, err := TripStopJoin(feed, serviceID)
	if err != nil {
		return ServiceHours{}, err
	}

	type span struct {
		start, end       int
		hasStart, hasEnd bool
	}

	order := []string{}
	spans := map[string]*span{}

	for _, row := range rows {
		s, found := spans[row.Trip.ID]
		if !found {
			s = &span{}
			spans[row.Trip.ID] = s
			order = append(order, row.Trip.ID)
		}

		dep := row.StopTime.DepartureTime
		if dep.Valid && (!s.hasStart || dep.Seconds < s.start) {
			s.start = dep.Seconds
			s.hasStart = true
		}

		arr := row.StopTime.ArrivalTime
		if arr.Valid && (!s.hasEnd || arr.Seconds > s.end) {
			s.end = arr.Seconds
			s.hasEnd = true
		}
	}

	durations := []float64{}
	total := 0.0
	for _, tripID := range order {
		s := spans[tripID]
		if !s.hasStart || !s.hasEnd {
			continue
		}
		d := float64(s.end-s.start) / 60
		durations = append(durations, d)
		total += d
	}

	return ServiceHours{
		TotalRevenueHours:  total / 60,
		AvgTripDurationMin: mean(durations),
		TotalTrips:         len(order),
	}, nil
}
