package metrics

import (
	"sort"
	"time"

	"tidbyt.dev/gtfsmetrics/model"
)

// Set of service IDs active on the given date.
//
// Only the date's year, month, day and weekday are used. Without a
// calendar table the result is empty and calendar_dates are not
// consulted; callers wanting "all service" must handle that
// themselves. Exceptions for the date are applied in table order.
func ActiveServices(feed *model.Feed, date time.Time) map[string]bool {
	services := map[string]bool{}

	if feed == nil || feed.Calendars == nil {
		return services
	}

	day := date.Format("20060102")
	weekday := date.Weekday()

	for i := range feed.Calendars {
		calendar := &feed.Calendars[i]
		if !calendar.RunsOn(weekday) {
			continue
		}
		if calendar.StartDate > day {
			continue
		}
		if calendar.EndDate < day {
			continue
		}
		services[calendar.ServiceID] = true
	}

	for _, cd := range feed.CalendarDates {
		if cd.Date != day {
			continue
		}
		switch cd.ExceptionType {
		case model.ExceptionTypeAdded:
			services[cd.ServiceID] = true
		case model.ExceptionTypeRemoved:
			delete(services, cd.ServiceID)
		}
	}

	return services
}

// Service IDs of a set in lexical order.
func SortedServices(services map[string]bool) []string {
	ids := make([]string, 0, len(services))
	for id, active := range services {
		if active {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
