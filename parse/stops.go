package parse

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"

	"tidbyt.dev/gtfsmetrics/model"
	"tidbyt.dev/gtfsmetrics/storage"
)

type StopCSV struct {
	ID   string  `csv:"stop_id"`
	Code string  `csv:"stop_code"`
	Name string  `csv:"stop_name"`
	Desc string  `csv:"stop_desc"`
	Lat  float64 `csv:"stop_lat"`
	Lon  float64 `csv:"stop_lon"`
	// ZoneID        string  `csv:"zone_id"`
	URL           string `csv:"stop_url"`
	LocationType  int8   `csv:"location_type"`
	ParentStation string `csv:"parent_station"`
	// Timezone      string  `csv:"stop_timezone"`
	// WheelchairBoarding string `csv:"wheelchair_boarding"`
	PlatformCode string `csv:"platform_code"`
}

func ParseStops(writer storage.FeedWriter, data io.Reader) error {
	configureCSV()

	stopCsv := []*StopCSV{}
	if err := gocsv.Unmarshal(data, &stopCsv); err != nil {
		return fmt.Errorf("unmarshaling stops csv: %w", err)
	}

	for i, st := range stopCsv {
		if st.ID == "" {
			return fmt.Errorf("empty stop_id (row %d)", i+1)
		}

		err := writer.WriteStop(&model.Stop{
			ID:            st.ID,
			Code:          st.Code,
			Name:          st.Name,
			Desc:          st.Desc,
			Lat:           st.Lat,
			Lon:           st.Lon,
			URL:           st.URL,
			LocationType:  model.LocationType(st.LocationType),
			ParentStation: st.ParentStation,
			PlatformCode:  st.PlatformCode,
		})
		if err != nil {
			return fmt.Errorf("writing stop '%s': %w", st.ID, err)
		}
	}

	return nil
}
