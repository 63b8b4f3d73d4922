package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tidbyt.dev/gtfsmetrics/api"
	"tidbyt.dev/gtfsmetrics/catalog"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves metrics over HTTP",
	Args:  cobra.NoArgs,
	RunE:  serve,
}

var (
	serveAddr string
	feedNames []string
)

func init() {
	serveCmd.Flags().StringVarP(&serveAddr, "addr", "", "", "Listen address (default from config)")
	serveCmd.Flags().StringSliceVarP(
		&feedNames,
		"feed",
		"",
		[]string{},
		"Served feed, on form <name>=<url>. The --feed-url feed is served as 'default'.",
	)

	rootCmd.AddCommand(serveCmd)
}

func parseFeeds(values []string, defaultURL string) (map[string]string, error) {
	feeds := map[string]string{}
	if defaultURL != "" {
		feeds["default"] = defaultURL
	}
	for _, value := range values {
		name, url, found := strings.Cut(value, "=")
		if !found || name == "" || url == "" {
			return nil, fmt.Errorf("'%s' is not on form <name>=<url>", value)
		}
		feeds[name] = url
	}
	if len(feeds) == 0 {
		return nil, fmt.Errorf("no feeds to serve")
	}
	return feeds, nil
}

func serve(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	feeds, err := parseFeeds(feedNames, a.cfg.Feed.URL)
	if err != nil {
		return err
	}

	if a.cfg.Catalog.Prefer != "" {
		// Fail at startup rather than on the first request.
		if _, err := catalog.Compile(a.cfg.Catalog.Prefer); err != nil {
			return err
		}
	}

	server := api.NewServer(a.manager, feeds)
	server.Cache = a.cache
	server.Catalog = catalog.Options{Prefer: a.cfg.Catalog.Prefer}
	server.Logger = a.logger

	addr := a.cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Feeds are loaded up front so the first requests don't wait on
	// downloads. A failure here is retried on request.
	for name, url := range feeds {
		if _, err := a.manager.Load(ctx, url); err != nil {
			a.logger.Warn().Err(err).Str("feed", name).Msg("preloading feed")
		}
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info().Str("addr", addr).Int("feeds", len(feeds)).Msg("serving")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
