package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"barlab/internal/domain"
	"barlab/internal/util"
)

// DefaultPath is where the CLIs look for the config file unless
// BARLAB_CONFIG points elsewhere.
const DefaultPath = "config/barlab.yaml"

// Storage back-end names.
const (
	BackendParquet = "parquet"
	BackendSQLite  = "sqlite"
)

// Feed source names.
const (
	SourceAlpaca = "alpaca"
	SourceCSV    = "csv"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for barlab.
type Config struct {
	Storage  Storage  `yaml:"storage"`
	Alpaca   Alpaca   `yaml:"alpaca"`
	Feed     Feed     `yaml:"feed"`
	Logging  Logging  `yaml:"logging"`
	Gather   Gather   `yaml:"gather"`
	Labels   Labels   `yaml:"labels"`
	Calendar Calendar `yaml:"calendar"`
}

// Storage selects and locates the series store.
type Storage struct {
	Backend    string `yaml:"backend" validate:"oneof=parquet sqlite"`
	DataDir    string `yaml:"data_dir" validate:"required_if=Backend parquet"`
	SQLitePath string `yaml:"sqlite_path" validate:"required_if=Backend sqlite"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed"`
}

// Feed picks the history source used by bars-fetch.
type Feed struct {
	Source string `yaml:"source" validate:"oneof=alpaca csv"`
	URL    string `yaml:"url" validate:"required_if=Source csv"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// Gather holds parameters for the daily bar refresh.
type Gather struct {
	Symbols         []string      `yaml:"symbols"`
	StartDate       string        `yaml:"start_date" validate:"omitempty,datetime=2006-01-02"`
	MaxWorkers      int           `yaml:"max_workers" validate:"gte=0"`
	RateLimitPerMin int           `yaml:"rate_limit_per_min" validate:"gte=0"`
	Retries         int           `yaml:"retries" validate:"gte=0"`
	RetryDelay      time.Duration `yaml:"retry_delay" validate:"gte=0"`
	// Schedule is a cron expression with a seconds field. When set,
	// bars-fetch -daemon refreshes on this schedule.
	Schedule string `yaml:"schedule"`
}

// Labels holds dataset defaults.
type Labels struct {
	Window int `yaml:"window" validate:"gt=0"`
	Smooth int `yaml:"smooth" validate:"gte=0"`
}

// Calendar configures trading-day resolution.
type Calendar struct {
	Timezone  string `yaml:"timezone"`
	CloseHour int    `yaml:"close_hour" validate:"gte=0,lte=23"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Storage: Storage{
			Backend:    BackendParquet,
			DataDir:    "data",
			SQLitePath: "data/barlab.db",
		},
		Alpaca:  Alpaca{Feed: "sip"},
		Feed:    Feed{Source: SourceAlpaca},
		Logging: Logging{Level: "info", Format: "text"},
		Gather: Gather{
			StartDate:       "2016-01-01",
			MaxWorkers:      4,
			RateLimitPerMin: 180,
			Retries:         3,
			RetryDelay:      2 * time.Second,
			Schedule:        "0 30 20 * * 1-5",
		},
		Labels:   Labels{Window: 5},
		Calendar: Calendar{Timezone: "America/New_York", CloseHour: 16},
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path on top of the
// defaults, applies environment variable overrides and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadDefault loads the file named by BARLAB_CONFIG, or DefaultPath. A
// missing DefaultPath is not an error: the defaults plus environment
// overrides are used instead.
func LoadDefault() (*Config, error) {
	if p := os.Getenv("BARLAB_CONFIG"); p != "" {
		return Load(p)
	}
	cfg, err := Load(DefaultPath)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = Default()
		applyEnvOverrides(cfg)
		return cfg, cfg.Validate()
	}
	return cfg, err
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}

	if v := os.Getenv("FEED_URL"); v != "" {
		cfg.Feed.URL = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars win: they are the names the SDK itself reads.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// ---------------------------------------------------------------------------
// Validation and derived values
// ---------------------------------------------------------------------------

var validate = validator.New()

// Validate normalizes enum fields and reports the first setting that cannot
// work.
func (c *Config) Validate() error {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	c.Feed.Source = strings.ToLower(strings.TrimSpace(c.Feed.Source))
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	c.Logging.Format = strings.ToLower(c.Logging.Format)

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s = %v: fails %q", fe.Namespace(), fe.Value(), fe.ActualTag())
		}
		return err
	}

	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location loads the calendar timezone. An empty name means UTC.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Calendar.Timezone)
	if err != nil {
		return nil, fmt.Errorf("calendar.timezone %q: %w", c.Calendar.Timezone, err)
	}
	return loc, nil
}

// StartTime returns gather.start_date as a date, or the zero time when it is
// unset.
func (c *Config) StartTime() time.Time {
	t, err := time.Parse(domain.DateFormat, c.Gather.StartDate)
	if err != nil {
		return time.Time{}
	}
	return t
}

// TradingCalendar builds the trading-day resolver described by the calendar
// section.
func (c *Config) TradingCalendar() (*util.TradingCalendar, error) {
	loc, err := c.Location()
	if err != nil {
		return nil, err
	}
	return util.NewTradingCalendar(loc, util.WithCloseHour(c.Calendar.CloseHour)), nil
}
