// Package config loads settings from a YAML file, a .env file and
// GTFSMETRICS_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"tidbyt.dev/gtfsmetrics/logging"
)

const EnvPrefix = "GTFSMETRICS_"

type Config struct {
	Feed    FeedConfig     `yaml:"feed"`
	Storage StorageConfig  `yaml:"storage"`
	Cache   CacheConfig    `yaml:"cache"`
	Server  ServerConfig   `yaml:"server"`
	Catalog CatalogConfig  `yaml:"catalog"`
	Logging logging.Config `yaml:"logging"`
}

type FeedConfig struct {
	URL       string            `yaml:"url" validate:"omitempty,url"`
	Headers   map[string]string `yaml:"headers"`
	Timeout   time.Duration     `yaml:"timeout" validate:"gte=0"`
	MaxSizeMB int               `yaml:"max_size_mb" validate:"gte=0"`
	Retries   int               `yaml:"retries" validate:"gte=0,lte=10"`
}

type StorageConfig struct {
	Backend string `yaml:"backend" validate:"oneof=memory sqlite postgres"`

	// SQLite databases go here. In memory when empty.
	Directory string `yaml:"directory"`

	PostgresURL string `yaml:"postgres_url" validate:"required_if=Backend postgres"`
	ClearDB     bool   `yaml:"clear_db"`
}

type CacheConfig struct {
	Backend       string        `yaml:"backend" validate:"oneof=none memory redis"`
	TTL           time.Duration `yaml:"ttl" validate:"gte=0"`
	RedisAddr     string        `yaml:"redis_addr" validate:"required_if=Backend redis"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db" validate:"gte=0"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required"`
}

type CatalogConfig struct {
	// Preference rule for repeated route_id rows.
	Prefer string `yaml:"prefer"`
}

func Default() *Config {
	return &Config{
		Feed: FeedConfig{
			Timeout:   60 * time.Second,
			MaxSizeMB: 800,
			Retries:   3,
		},
		Storage: StorageConfig{
			Backend: "memory",
		},
		Cache: CacheConfig{
			Backend: "memory",
			TTL:     time.Hour,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Logging: logging.DefaultConfig(),
	}
}

// Loads the config at path on top of the defaults. An empty path
// skips the file. Variables from envFiles (default ".env") are added
// to the environment when present, then GTFSMETRICS_* overrides are
// applied and the result validated.
func Load(path string, envFiles ...string) (*Config, error) {
	err := godotenv.Load(envFiles...)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading env file: %w", err)
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		err = yaml.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	err = cfg.applyEnv()
	if err != nil {
		return nil, err
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	for name, dst := range map[string]*string{
		"FEED_URL":          &c.Feed.URL,
		"STORAGE_BACKEND":   &c.Storage.Backend,
		"STORAGE_DIRECTORY": &c.Storage.Directory,
		"POSTGRES_URL":      &c.Storage.PostgresURL,
		"CACHE_BACKEND":     &c.Cache.Backend,
		"REDIS_ADDR":        &c.Cache.RedisAddr,
		"REDIS_PASSWORD":    &c.Cache.RedisPassword,
		"SERVER_ADDR":       &c.Server.Addr,
		"CATALOG_PREFER":    &c.Catalog.Prefer,
		"LOG_LEVEL":         &c.Logging.Level,
		"LOG_FORMAT":        &c.Logging.Format,
		"LOG_FILE":          &c.Logging.File,
	} {
		if value, found := os.LookupEnv(EnvPrefix + name); found {
			*dst = value
		}
	}

	for name, dst := range map[string]*time.Duration{
		"FEED_TIMEOUT": &c.Feed.Timeout,
		"CACHE_TTL":    &c.Cache.TTL,
	} {
		if value, found := os.LookupEnv(EnvPrefix + name); found {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("parsing %s%s: %w", EnvPrefix, name, err)
			}
			*dst = d
		}
	}

	for name, dst := range map[string]*int{
		"FEED_RETRIES": &c.Feed.Retries,
		"REDIS_DB":     &c.Cache.RedisDB,
	} {
		if value, found := os.LookupEnv(EnvPrefix + name); found {
			n, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("parsing %s%s: %w", EnvPrefix, name, err)
			}
			*dst = n
		}
	}

	return nil
}
