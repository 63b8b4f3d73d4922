package parse

import (
	"fmt"
	"io"
	"time"

	"github.com/gocarina/gocsv"

	"tidbyt.dev/gtfsmetrics/model"
	"tidbyt.dev/gtfsmetrics/storage"
)

type CalendarDateCSV struct {
	ServiceID     string `csv:"service_id"`
	Date          string `csv:"date"`
	ExceptionType int8   `csv:"exception_type"`
}

// Writes all calendar_dates rows in file order, returning the min and
// max date. Repeated service/date pairs are kept; they are applied
// in order when resolving a date.
func ParseCalendarDates(writer storage.FeedWriter, data io.Reader) (string, string, error) {
	configureCSV()

	calendarDateCsv := []*CalendarDateCSV{}
	if err := gocsv.Unmarshal(data, &calendarDateCsv); err != nil {
		return "", "", fmt.Errorf("unmarshaling calendar_dates csv: %w", err)
	}

	var minDate, maxDate string

	for _, cd := range calendarDateCsv {
		_, err := time.ParseInLocation("20060102", cd.Date, time.UTC)
		if err != nil {
			return "", "", fmt.Errorf("parsing date '%s': %w", cd.Date, err)
		}

		if minDate == "" || cd.Date < minDate {
			minDate = cd.Date
		}
		if maxDate == "" || cd.Date > maxDate {
			maxDate = cd.Date
		}

		err = writer.WriteCalendarDate(&model.CalendarDate{
			ServiceID:     cd.ServiceID,
			Date:          cd.Date,
			ExceptionType: model.ExceptionType(cd.ExceptionType),
		})
		if err != nil {
			return "", "", fmt.Errorf("writing calendar date: %w", err)
		}
	}

	return minDate, maxDate, nil
}
