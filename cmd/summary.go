package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"tidbyt.dev/gtfsmetrics"
	"tidbyt.dev/gtfsmetrics/cache"
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Prints every metric for a service day",
	Args:  cobra.NoArgs,
	RunE:  summary,
}

var servicesCmd = &cobra.Command{
	Use:   "services",
	Short: "Lists the services active on a date",
	Args:  cobra.NoArgs,
	RunE:  services,
}

func init() {
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(servicesCmd)
}

func summary(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	static, err := a.loadFeed(cmd.Context())
	if err != nil {
		return err
	}

	day, service, err := serviceDay(cmd, static)
	if err != nil {
		return err
	}

	build := func(ctx context.Context) (*gtfsmetrics.Report, error) {
		return static.ReportFor(ctx, day, service)
	}

	var report *gtfsmetrics.Report
	if a.cache != nil {
		key := cache.Key{
			FeedHash:  static.Metadata.Hash,
			Date:      day.Format("20060102"),
			ServiceID: service,
		}
		report, err = cache.GetOrBuild(cmd.Context(), a.cache, key, build)
	} else {
		report, err = build(cmd.Context())
	}
	if err != nil {
		return err
	}

	return output(report, func(w io.Writer) {
		fmt.Fprintf(w, "Date:\t%s\n", report.Date)
		fmt.Fprintf(w, "Service:\t%s\n", serviceLabel(report.ServiceID))
		fmt.Fprintf(w, "Active:\t%s\n", strings.Join(report.ActiveServices, ", "))
		fmt.Fprintf(w, "In calendar:\t%t\n", report.InCalendar)
		fmt.Fprintf(w, "Routes:\t%d\n", report.System.TotalRoutes)
		fmt.Fprintf(w, "Stops:\t%d\n", report.System.TotalStops)
		fmt.Fprintf(w, "Trips:\t%d\n", report.System.TotalTrips)
		if report.System.TotalShapes != nil {
			fmt.Fprintf(w, "Shapes:\t%d\n", *report.System.TotalShapes)
		}
		fmt.Fprintf(w, "Revenue hours:\t%.2f\n", report.ServiceHours.TotalRevenueHours)
		fmt.Fprintf(w, "Avg trip (min):\t%s\n", formatFloat(report.ServiceHours.AvgTripDurationMin))
		fmt.Fprintf(w, "Service trips:\t%d\n", report.ServiceHours.TotalTrips)
		if len(report.Routes) > 0 && report.Routes[0].AvgHeadwayMin != nil {
			best := report.Routes[0]
			fmt.Fprintf(w, "Most frequent:\t%s %s (%s min)\n", best.ShortName, best.LongName, formatFloat(best.AvgHeadwayMin))
		}
		if len(report.Stops) > 0 {
			busiest := report.Stops[0]
			fmt.Fprintf(w, "Busiest stop:\t%s (%d trips)\n", busiest.StopName, busiest.NumTrips)
		}
	})
}

func services(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	static, err := a.loadFeed(cmd.Context())
	if err != nil {
		return err
	}

	day, service, err := serviceDay(cmd, static)
	if err != nil {
		return err
	}

	result := struct {
		Date           string   `json:"date"`
		ActiveServices []string `json:"active_services"`
		ServiceID      string   `json:"service_id"`
		InCalendar     bool     `json:"in_calendar"`
	}{
		Date:           day.Format("20060102"),
		ActiveServices: static.ActiveServices(day),
		ServiceID:      service,
		InCalendar:     static.Covers(day),
	}

	return output(result, func(w io.Writer) {
		if !result.InCalendar {
			fmt.Fprintf(w, "%s is outside the feed's calendar (%s - %s)\n",
				result.Date,
				static.Metadata.CalendarStartDate,
				static.Metadata.CalendarEndDate,
			)
		}
		for _, id := range result.ActiveServices {
			marker := ""
			if id == result.ServiceID {
				marker = "*"
			}
			fmt.Fprintf(w, "%s\t%s\n", id, marker)
		}
	})
}

func serviceLabel(id string) string {
	if id == "" {
		return "(all)"
	}
	return id
}
