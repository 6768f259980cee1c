// Package config loads service settings from defaults, an optional YAML
// file, a .env file and CSVINTAKE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "CSVINTAKE"

// Backends and raw stores accepted by Validate.
var (
	Backends  = []string{"sqlite", "bigquery"}
	RawStores = []string{"none", "disk", "gcs"}
)

type Config struct {
	// HTTP server
	Port        string   `mapstructure:"port"`
	CORSOrigins []string `mapstructure:"cors_origins"`
	RateLimit   float64  `mapstructure:"rate_limit"`
	RateBurst   int      `mapstructure:"rate_burst"`

	// Logging
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	// Persistence
	Backend         string `mapstructure:"backend"`
	SQLitePath      string `mapstructure:"sqlite_path"`
	BigQueryProject string `mapstructure:"bigquery_project"`
	BigQueryDataset string `mapstructure:"bigquery_dataset"`

	// Raw file storage
	RawStore     string        `mapstructure:"raw_store"`
	RawDir       string        `mapstructure:"raw_dir"`
	GCSBucket    string        `mapstructure:"gcs_bucket"`
	RawRetention time.Duration `mapstructure:"raw_retention"`

	// Events
	AMQPURL      string `mapstructure:"amqp_url"`
	AMQPExchange string `mapstructure:"amqp_exchange"`
	AMQPQueue    string `mapstructure:"amqp_queue"`

	// Upload processing
	MaxFileSize      int64  `mapstructure:"max_file_size"`
	Encoding         string `mapstructure:"encoding"`
	RulesFile        string `mapstructure:"rules_file"`
	AllowFutureDates bool   `mapstructure:"allow_future_dates"`

	// Reprocessing jobs
	JobWorkers    int           `mapstructure:"job_workers"`
	JobMaxRetries int           `mapstructure:"job_max_retries"`
	JobBackoff    time.Duration `mapstructure:"job_backoff"`
}

var defaults = map[string]any{
	"port":               "8080",
	"cors_origins":       []string{"*"},
	"rate_limit":         10.0,
	"rate_burst":         20,
	"log_level":          "info",
	"log_format":         "console",
	"backend":            "sqlite",
	"sqlite_path":        "./data/csv-intake.db",
	"bigquery_project":   "",
	"bigquery_dataset":   "csv_intake",
	"raw_store":          "disk",
	"raw_dir":            "./uploads",
	"gcs_bucket":         "",
	"raw_retention":      30 * 24 * time.Hour,
	"amqp_url":           "",
	"amqp_exchange":      "csv_intake",
	"amqp_queue":         "upload_processed",
	"max_file_size":      int64(10 * 1024 * 1024),
	"encoding":           "utf-8",
	"rules_file":         "",
	"allow_future_dates": false,
	"job_workers":        2,
	"job_max_retries":    3,
	"job_backoff":        2 * time.Second,
}

// NewViper returns a viper instance with every default registered and
// CSVINTAKE_* environment variables bound. Callers may bind flags to it
// before calling Load.
func NewViper() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads .env (if present), then file (if non-empty) into v and decodes
// the result. A missing .env is not an error; a missing config file is.
func Load(v *viper.Viper, file string) (*Config, error) {
	_ = godotenv.Load()

	if v == nil {
		v = NewViper()
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	// Lists from the environment arrive comma separated.
	cfg.CORSOrigins = splitList(strings.Join(cfg.CORSOrigins, ","))
	return &cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the settings of the selected backend, raw store and event
// publisher. Every problem is reported.
func (c *Config) Validate() error {
	var problems []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		problems = append(problems, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	switch c.Backend {
	case "sqlite":
		if c.SQLitePath == "" {
			problems = append(problems, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLitePath); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				problems = append(problems, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
			}
		}
	case "bigquery":
		if c.BigQueryProject == "" {
			problems = append(problems, "BigQuery project is required when using bigquery backend")
		}
		if c.BigQueryDataset == "" {
			problems = append(problems, "BigQuery dataset is required when using bigquery backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("invalid backend '%s': must be one of %v", c.Backend, Backends))
	}

	switch c.RawStore {
	case "none":
	case "disk":
		if c.RawDir == "" {
			problems = append(problems, "raw directory cannot be empty when using disk raw store")
		}
	case "gcs":
		if c.GCSBucket == "" {
			problems = append(problems, "GCS bucket is required when using gcs raw store")
		}
	default:
		problems = append(problems, fmt.Sprintf("invalid raw store '%s': must be one of %v", c.RawStore, RawStores))
	}

	if c.AMQPURL != "" {
		if u, err := url.Parse(c.AMQPURL); err != nil {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if u.Scheme != "amqp" && u.Scheme != "amqps" {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", u.Scheme))
		}
		if c.AMQPExchange == "" || c.AMQPQueue == "" {
			problems = append(problems, "AMQP exchange and queue names are required when AMQP URL is provided")
		}
	}

	if c.MaxFileSize <= 0 {
		problems = append(problems, fmt.Sprintf("invalid max file size %d: must be positive", c.MaxFileSize))
	}
	if c.RateLimit < 0 || c.RateBurst < 0 {
		problems = append(problems, "rate limit and burst cannot be negative")
	}
	if !slices.Contains([]string{"console", "json"}, c.LogFormat) {
		problems = append(problems, fmt.Sprintf("invalid log format '%s': must be console or json", c.LogFormat))
	}
	if c.JobWorkers < 1 {
		problems = append(problems, fmt.Sprintf("invalid job workers %d: must be at least 1", c.JobWorkers))
	}
	if c.JobMaxRetries < 0 {
		problems = append(problems, fmt.Sprintf("invalid job max retries %d: cannot be negative", c.JobMaxRetries))
	}

	if len(problems) > 0 {
		return errors.New("configuration validation failed:\n- " + strings.Join(problems, "\n- "))
	}
	return nil
}

// PublishesEvents reports whether an AMQP broker is configured.
func (c *Config) PublishesEvents() bool {
	return c.AMQPURL != ""
}
