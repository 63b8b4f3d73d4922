package metrics

import (
	"time"

	"tidbyt.dev/gtfsmetrics/model"
)

type TimeBlock string

const (
	BlockPreEarlyAM  TimeBlock = "Pre-Early AM/Other"
	BlockEarlyAM     TimeBlock = "Early AM"
	BlockAMPeak      TimeBlock = "AM Peak"
	BlockBase        TimeBlock = "Base"
	BlockPMPeak      TimeBlock = "PM Peak"
	BlockEvening     TimeBlock = "Evening"
	BlockLateEvening TimeBlock = "Late Evening"
)

// All time blocks in reporting order.
var TimeBlocks = []TimeBlock{
	BlockPreEarlyAM,
	BlockEarlyAM,
	BlockAMPeak,
	BlockBase,
	BlockPMPeak,
	BlockEvening,
	BlockLateEvening,
}

// Lower bounds of the half-open blocks, latest first.
var blockStarts = []struct {
	start time.Duration
	block TimeBlock
}{
	{22 * time.Hour, BlockLateEvening},
	{18 * time.Hour, BlockEvening},
	{15 * time.Hour, BlockPMPeak},
	{9 * time.Hour, BlockBase},
	{6 * time.Hour, BlockAMPeak},
	{4 * time.Hour, BlockEarlyAM},
}

// Time block containing a departure. Anything before 04:00 is
// BlockPreEarlyAM; anything from 22:00 on, including times past
// midnight, is BlockLateEvening.
func BlockFor(t model.ServiceTime) TimeBlock {
	d := t.Duration()
	for _, b := range blockStarts {
		if d >= b.start {
			return b.block
		}
	}
	return BlockPreEarlyAM
}

type PeriodMetric struct {
	Block        TimeBlock `json:"time_block"`
	NumTrips     int       `json:"n_trips"`
	NumRoutes    int       `json:"n_routes"`
	PctOfService float64   `json:"pct_of_service"`
}

// Trips and routes per time block, by first-stop departure, in
// TimeBlocks order. Only blocks with at least one trip are
// included. Percentages are of all trips with a valid first
// departure, rounded to two decimals.
func PeakOffPeak(feed *model.Feed, serviceID string) ([]PeriodMetric, error) {
	rows, err := TripStopJoin(feed, serviceID)
	if err != nil {
		return nil, err
	}

	trips := map[TimeBlock]map[string]bool{}
	routes := map[TimeBlock]map[string]bool{}
	total := 0

	for _, row := range FirstStopPerTrip(rows) {
		dep := row.StopTime.DepartureTime
		if !dep.Valid {
			continue
		}
		block := BlockFor(dep)
		if trips[block] == nil {
			trips[block] = map[string]bool{}
			routes[block] = map[string]bool{}
		}
		trips[block][row.Trip.ID] = true
		routes[block][row.Trip.RouteID] = true
		total++
	}

	periods := []PeriodMetric{}
	for _, block := range TimeBlocks {
		if len(trips[block]) == 0 {
			continue
		}
		periods = append(periods, PeriodMetric{
			Block:        block,
			NumTrips:     len(trips[block]),
			NumRoutes:    len(routes[block]),
			PctOfService: round2(float64(len(trips[block])) / float64(total) * 100),
		})
	}

	return periods, nil
}
