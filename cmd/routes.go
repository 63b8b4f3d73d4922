package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"tidbyt.dev/gtfsmetrics/catalog"
)

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Lists routes by average headway",
	Args:  cobra.NoArgs,
	RunE:  routes,
}

var routeCmd = &cobra.Command{
	Use:   "route <route_id>",
	Short: "Prints details for a single route",
	Args:  cobra.ExactArgs(1),
	RunE:  route,
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Lists deduplicated route labels",
	Args:  cobra.NoArgs,
	RunE:  routeCatalog,
}

var preferRule string

func init() {
	catalogCmd.Flags().StringVarP(&preferRule, "prefer", "", "", "Rule selecting among rows sharing a route_id")

	rootCmd.AddCommand(routesCmd)
	rootCmd.AddCommand(routeCmd)
	rootCmd.AddCommand(catalogCmd)
}

func routes(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	static, err := a.loadFeed(cmd.Context())
	if err != nil {
		return err
	}

	_, service, err := serviceDay(cmd, static)
	if err != nil {
		return err
	}

	freqs, err := static.RouteFrequencies(service)
	if err != nil {
		return err
	}

	return output(freqs, func(w io.Writer) {
		fmt.Fprintf(w, "ROUTE\tNAME\tHEADWAY (MIN)\n")
		for _, f := range freqs {
			fmt.Fprintf(w, "%s\t%s %s\t%s\n", f.RouteID, f.ShortName, f.LongName, formatFloat(f.AvgHeadwayMin))
		}
	})
}

func route(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	static, err := a.loadFeed(cmd.Context())
	if err != nil {
		return err
	}

	_, service, err := serviceDay(cmd, static)
	if err != nil {
		return err
	}

	detail, err := static.RouteDetail(args[0], service)
	if err != nil {
		return err
	}

	return output(detail, func(w io.Writer) {
		fmt.Fprintf(w, "Route:\t%s %s %s\n", detail.RouteID, detail.ShortName, detail.LongName)
		fmt.Fprintf(w, "Trips:\t%d\n", detail.NumTrips)
		fmt.Fprintf(w, "Stops:\t%d\n", detail.NumStops)
		fmt.Fprintf(w, "Headway (min):\t%s\n", formatFloat(detail.AvgHeadwayMin))
		fmt.Fprintf(w, "First trip:\t%s\n", detail.FirstTrip)
		fmt.Fprintf(w, "Last trip:\t%s\n", detail.LastTrip)
		fmt.Fprintf(w, "Span (hours):\t%s\n", formatFloat(detail.ServiceSpanHours))
		if detail.ShapeID != "" {
			fmt.Fprintf(w, "Shape:\t%s (%d points)\n", detail.ShapeID, len(detail.Shape))
		}
		for _, stop := range detail.Stops {
			fmt.Fprintf(w, "  %d\t%s\t%s\n", stop.Sequence, stop.StopID, stop.Name)
		}
	})
}

func routeCatalog(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	static, err := a.loadFeed(cmd.Context())
	if err != nil {
		return err
	}

	opts := catalog.Options{Prefer: a.cfg.Catalog.Prefer}
	if preferRule != "" {
		opts.Prefer = preferRule
	}

	entries, err := catalog.Routes(static.Feed, opts)
	if err != nil {
		return err
	}

	return output(entries, func(w io.Writer) {
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\n", e.RouteID, strings.TrimSpace(e.Display))
		}
	})
}
