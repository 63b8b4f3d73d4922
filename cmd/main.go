package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"tidbyt.dev/gtfsmetrics"
	"tidbyt.dev/gtfsmetrics/cache"
	"tidbyt.dev/gtfsmetrics/config"
	"tidbyt.dev/gtfsmetrics/downloader"
	"tidbyt.dev/gtfsmetrics/logging"
	"tidbyt.dev/gtfsmetrics/storage"
)

var rootCmd = &cobra.Command{
	Use:          "gtfsmetrics",
	Short:        "GTFS metrics tool",
	Long:         "Computes service metrics for GTFS static feeds",
	SilenceUsage: true,
}

var (
	configPath    string
	feedURL       string
	feedHeaders   []string
	date          string
	serviceID     string
	storageFlag   string
	format        string
	downloadCache string
	verbose       bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVarP(&feedURL, "feed-url", "", "", "GTFS static URL")
	rootCmd.PersistentFlags().StringSliceVarP(
		&feedHeaders,
		"header",
		"",
		[]string{},
		"HTTP header for feed downloads, on form <key>:<value>",
	)
	rootCmd.PersistentFlags().StringVarP(&date, "date", "d", "", "Service date, YYYYMMDD (default today)")
	rootCmd.PersistentFlags().StringVarP(&serviceID, "service", "s", "", "Service ID (default first active on date, empty for all)")
	rootCmd.PersistentFlags().StringVarP(&storageFlag, "storage", "", "", "Storage backend: memory, sqlite or postgres")
	rootCmd.PersistentFlags().StringVarP(&format, "format", "f", "text", "Output format: text or json")
	rootCmd.PersistentFlags().StringVarP(&downloadCache, "download-cache", "", "", "Directory to cache feed downloads in")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func parseHeaders(headers []string) (map[string]string, error) {
	parsed := map[string]string{}
	for _, header := range headers {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("'%s' is not on form <key>:<value>", header)
		}
		parsed[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return parsed, nil
}

// Everything a command needs, built from config and flags.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	manager *gtfsmetrics.Manager
	cache   cache.ReportCache
}

// Loads config and applies flags on top of it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if feedURL != "" {
		cfg.Feed.URL = feedURL
	}
	if storageFlag != "" {
		cfg.Storage.Backend = storageFlag
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	headers, err := parseHeaders(feedHeaders)
	if err != nil {
		return nil, fmt.Errorf("invalid header: %w", err)
	}
	if len(headers) > 0 && cfg.Feed.Headers == nil {
		cfg.Feed.Headers = map[string]string{}
	}
	for k, v := range headers {
		cfg.Feed.Headers[k] = v
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	s, err := openStorage(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("opening %s storage: %w", cfg.Storage.Backend, err)
	}

	manager := gtfsmetrics.NewManager(s)
	manager.StaticTimeout = cfg.Feed.Timeout
	manager.StaticMaxSize = cfg.Feed.MaxSizeMB << 20
	manager.Retries = cfg.Feed.Retries
	manager.Headers = cfg.Feed.Headers
	manager.Logger = logger

	if downloadCache != "" {
		fs, err := downloader.NewFilesystem(downloadCache)
		if err != nil {
			return nil, fmt.Errorf("creating download cache: %w", err)
		}
		fs.Logger = logger
		manager.Downloader = fs
		manager.DownloadCacheTTL = 24 * time.Hour
	}

	reports, err := openCache(cfg.Cache)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		manager: manager,
		cache:   reports,
	}, nil
}

func openStorage(cfg config.StorageConfig) (storage.Storage, error) {
	switch cfg.Backend {
	case "sqlite":
		return storage.NewSQLiteStorage(storage.SQLiteConfig{
			OnDisk:    cfg.Directory != "",
			Directory: cfg.Directory,
		})
	case "postgres":
		return storage.NewPSQLStorage(cfg.PostgresURL, cfg.ClearDB)
	}
	return storage.NewMemoryStorage(), nil
}

// The report cache, or nil when caching is off.
func openCache(cfg config.CacheConfig) (cache.ReportCache, error) {
	switch cfg.Backend {
	case "memory":
		return cache.NewMemory(cfg.TTL), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return cache.NewRedis(client, cfg.TTL), nil
	}
	return nil, nil
}

// Loads the feed given by --feed-url or the config.
func (a *app) loadFeed(ctx context.Context) (*gtfsmetrics.Static, error) {
	if a.cfg.Feed.URL == "" {
		return nil, fmt.Errorf("feed URL is required")
	}

	static, err := a.manager.Load(ctx, a.cfg.Feed.URL)
	if err != nil {
		return nil, fmt.Errorf("loading feed: %w", err)
	}

	return static, nil
}

// The service day selected by --date and --service.
func serviceDay(cmd *cobra.Command, static *gtfsmetrics.Static) (time.Time, string, error) {
	day := static.Today(time.Now())
	if date != "" {
		var err error
		day, err = time.ParseInLocation("20060102", date, static.Location())
		if err != nil {
			return time.Time{}, "", fmt.Errorf("invalid date '%s': %w", date, err)
		}
	}

	if cmd.Flags().Changed("service") {
		return day, serviceID, nil
	}
	return day, static.ServiceFor(day), nil
}
