package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

var hoursCmd = &cobra.Command{
	Use:   "hours",
	Short: "Prints trips started per hour",
	Args:  cobra.NoArgs,
	RunE:  hours,
}

var peakCmd = &cobra.Command{
	Use:   "peak",
	Short: "Prints trips per peak and off-peak block",
	Args:  cobra.NoArgs,
	RunE:  peak,
}

func init() {
	rootCmd.AddCommand(hoursCmd)
	rootCmd.AddCommand(peakCmd)
}

func hours(cmd *cobra.Command, args []string) error {
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

	counts, err := static.TripsByHour(service)
	if err != nil {
		return err
	}

	return output(counts, func(w io.Writer) {
		for _, c := range counts {
			fmt.Fprintf(w, "%02d:00\t%d\t%s\n", c.Hour, c.TripCount, strings.Repeat("#", c.TripCount))
		}
	})
}

func peak(cmd *cobra.Command, args []string) error {
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

	periods, err := static.PeakOffPeak(service)
	if err != nil {
		return err
	}

	return output(periods, func(w io.Writer) {
		fmt.Fprintf(w, "BLOCK\tTRIPS\tROUTES\tSHARE\n")
		for _, p := range periods {
			fmt.Fprintf(w, "%s\t%d\t%d\t%.2f%%\n", p.Block, p.NumTrips, p.NumRoutes, p.PctOfService)
		}
	})
}
