package parse

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"

	"tidbyt.dev/gtfsmetrics/model"
	"tidbyt.dev/gtfsmetrics/storage"
)

type StopTimeCSV struct {
	TripID        string `csv:"trip_id"`
	StopID        string `csv:"stop_id"`
	StopSequence  uint32 `csv:"stop_sequence"`
	ArrivalTime   string `csv:"arrival_time"`
	DepartureTime string `csv:"departure_time"`
	Headsign      string `csv:"stop_headsign"`
}

// Writes all stop_times, and returns the latest valid arrival and
// departure times seen (as HH:MM:SS, empty if none).
//
// Times are kept as given. Missing or malformed values are not an
// error: they parse to an invalid model.ServiceTime and are skipped
// by aggregations.
func ParseStopTimes(writer storage.FeedWriter, data io.Reader) (string, string, error) {
	configureCSV()

	maxArrival := model.ServiceTime{}
	maxDeparture := model.ServiceTime{}

	i := -1
	err := gocsv.UnmarshalToCallbackWithError(data, func(st *StopTimeCSV) error {
		i += 1
		if st.TripID == "" {
			return fmt.Errorf("missing trip_id (row %d)", i+1)
		}
		if st.StopID == "" {
			return fmt.Errorf("missing stop_id (row %d)", i+1)
		}

		stopTime := model.NewStopTime(
			st.TripID,
			st.StopID,
			st.StopSequence,
			st.ArrivalTime,
			st.DepartureTime,
		)
		stopTime.Headsign = st.Headsign

		if stopTime.ArrivalTime.Valid && (!maxArrival.Valid || stopTime.ArrivalTime.Seconds > maxArrival.Seconds) {
			maxArrival = stopTime.ArrivalTime
		}
		if stopTime.DepartureTime.Valid && (!maxDeparture.Valid || stopTime.DepartureTime.Seconds > maxDeparture.Seconds) {
			maxDeparture = stopTime.DepartureTime
		}

		err := writer.WriteStopTime(&stopTime)
		if err != nil {
			return errors.Wrapf(err, "writing stop_time (row %d)", i+1)
		}

		return nil
	})
	if err != nil {
		return "", "", errors.Wrap(err, "unmarshaling stop_times csv")
	}

	return maxArrival.String(), maxDeparture.String(), nil
}
