package parse

import (
	"fmt"
	"io"
	"time"

	"github.com/gocarina/gocsv"

	"tidbyt.dev/gtfsmetrics/model"
	"tidbyt.dev/gtfsmetrics/storage"
)

type AgencyCSV struct {
	ID       string `csv:"agency_id"`
	Name     string `csv:"agency_name"`
	URL      string `csv:"agency_url"`
	Timezone string `csv:"agency_timezone"`
	// Lang     string `csv:"agency_lang"`
	// Phone    string `csv:"agency_phone"`
	// FareURL  string `csv:"agency_fare_url"`
	// Email    string `csv:"agency_email"`
}

// Writes all agencies and returns the feed's timezone, taken from
// the first agency that has one.
func ParseAgency(writer storage.FeedWriter, data io.Reader) (string, error) {
	configureCSV()

	agencyCsv := []*AgencyCSV{}
	if err := gocsv.Unmarshal(data, &agencyCsv); err != nil {
		return "", fmt.Errorf("unmarshaling agency csv: %w", err)
	}

	tz := ""
	for _, a := range agencyCsv {
		if a.Timezone != "" {
			tz = a.Timezone
			break
		}
	}

	if tz != "" {
		_, err := time.LoadLocation(tz)
		if err != nil {
			return "", fmt.Errorf("agency_timezone '%s' is invalid: %w", tz, err)
		}
	}

	for _, a := range agencyCsv {
		err := writer.WriteAgency(&model.Agency{
			ID:       a.ID,
			Name:     a.Name,
			URL:      a.URL,
			Timezone: a.Timezone,
		})
		if err != nil {
			return "", fmt.Errorf("writing agency: %w", err)
		}
	}

	return tz, nil
}
