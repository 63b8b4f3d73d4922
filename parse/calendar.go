package parse

import (
	"fmt"
	"io"
	"time"

	"github.com/gocarina/gocsv"

	"tidbyt.dev/gtfsmetrics/model"
	"tidbyt.dev/gtfsmetrics/storage"
)

type CalendarCSV struct {
	ServiceID string `csv:"service_id"`
	StartDate string `csv:"start_date"`
	EndDate   string `csv:"end_date"`
	Monday    int8   `csv:"monday"`
	Tuesday   int8   `csv:"tuesday"`
	Wednesday int8   `csv:"wednesday"`
	Thursday  int8   `csv:"thursday"`
	Friday    int8   `csv:"friday"`
	Saturday  int8   `csv:"saturday"`
	Sunday    int8   `csv:"sunday"`
}

func (c *CalendarCSV) weekday() (int8, error) {
	var weekday int8
	for _, d := range []struct {
		day   time.Weekday
		value int8
	}{
		{time.Monday, c.Monday},
		{time.Tuesday, c.Tuesday},
		{time.Wednesday, c.Wednesday},
		{time.Thursday, c.Thursday},
		{time.Friday, c.Friday},
		{time.Saturday, c.Saturday},
		{time.Sunday, c.Sunday},
	} {
		switch d.value {
		case 1:
			weekday |= 1 << d.day
		case 0:
		default:
			return 0, fmt.Errorf("invalid %s value '%d'", d.day, d.value)
		}
	}
	return weekday, nil
}

// Writes all calendar rows, returning the min start date and max end
// date.
func ParseCalendar(writer storage.FeedWriter, data io.Reader) (string, string, error) {
	configureCSV()

	calendarCsv := []*CalendarCSV{}
	if err := gocsv.Unmarshal(data, &calendarCsv); err != nil {
		return "", "", fmt.Errorf("unmarshaling csv: %w", err)
	}

	var minDate, maxDate string

	for _, c := range calendarCsv {
		if c.ServiceID == "" {
			return "", "", fmt.Errorf("empty service_id")
		}

		weekday, err := c.weekday()
		if err != nil {
			return "", "", fmt.Errorf("service_id '%s': %w", c.ServiceID, err)
		}

		_, err = time.ParseInLocation("20060102", c.StartDate, time.UTC)
		if err != nil {
			return "", "", fmt.Errorf("parsing start_date: %w", err)
		}

		_, err = time.ParseInLocation("20060102", c.EndDate, time.UTC)
		if err != nil {
			return "", "", fmt.Errorf("parsing end_date: %w", err)
		}

		if minDate == "" || c.StartDate < minDate {
			minDate = c.StartDate
		}
		if maxDate == "" || c.EndDate > maxDate {
			maxDate = c.EndDate
		}

		err = writer.WriteCalendar(&model.Calendar{
			ServiceID: c.ServiceID,
			StartDate: c.StartDate,
			EndDate:   c.EndDate,
			Weekday:   weekday,
		})
		if err != nil {
			return "", "", fmt.Errorf("writing calendar: %w", err)
		}
	}

	return minDate, maxDate, nil
}
