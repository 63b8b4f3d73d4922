package parse

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"

	"tidbyt.dev/gtfsmetrics/model"
	"tidbyt.dev/gtfsmetrics/storage"
)

type FrequencyCSV struct {
	TripID      string `csv:"trip_id"`
	StartTime   string `csv:"start_time"`
	EndTime     string `csv:"end_time"`
	HeadwaySecs int    `csv:"headway_secs"`
	ExactTimes  int8   `csv:"exact_times"`
}

func ParseFrequencies(writer storage.FeedWriter, data io.Reader) error {
	configureCSV()

	freqCsv := []*FrequencyCSV{}
	if err := gocsv.Unmarshal(data, &freqCsv); err != nil {
		return fmt.Errorf("unmarshaling frequencies csv: %w", err)
	}

	for _, f := range freqCsv {
		err := writer.WriteFrequency(&model.Frequency{
			TripID:      f.TripID,
			StartTime:   f.StartTime,
			EndTime:     f.EndTime,
			HeadwaySecs: f.HeadwaySecs,
			ExactTimes:  f.ExactTimes,
		})
		if err != nil {
			return fmt.Errorf("writing frequency: %w", err)
		}
	}

	return nil
}
