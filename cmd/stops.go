package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
)

var stopsCmd = &cobra.Command{
	Use:   "stops [limit]",
	Short: "Lists stops by number of trips served",
	Args:  cobra.RangeArgs(0, 1),
	RunE:  stops,
}

func init() {
	rootCmd.AddCommand(stopsCmd)
}

func stops(cmd *cobra.Command, args []string) error {
	var limit int
	var err error

	if len(args) == 1 {
		limit, err = strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid limit: %w", err)
		}
		if limit < 0 {
			return fmt.Errorf("limit must be >= 0")
		}
	}

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

	stops, err := static.StopActivity(service)
	if err != nil {
		return err
	}
	if limit > 0 && len(stops) > limit {
		stops = stops[:limit]
	}

	return output(stops, func(w io.Writer) {
		fmt.Fprintf(w, "STOP\tNAME\tTRIPS\tROUTES\n")
		for _, stop := range stops {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", stop.StopID, stop.StopName, stop.NumTrips, stop.NumRoutes)
		}
	})
}
