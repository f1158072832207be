package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config is read from DISCOVER_* environment variables, after an optional
// .env file in the working directory.
type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	ElasticsearchURL      string `envconfig:"ELASTICSEARCH_URL" default:"http://localhost:9200"`
	ElasticsearchUsername string `envconfig:"ELASTICSEARCH_USERNAME"`
	ElasticsearchPassword string `envconfig:"ELASTICSEARCH_PASSWORD"`
	ConfigIndex           string `envconfig:"CONFIG_INDEX" default:".kibana"`
	TimeField             string `envconfig:"TIME_FIELD" default:"@timestamp"`

	ExportTimeout time.Duration `envconfig:"EXPORT_TIMEOUT" default:"10s"`
	SampleSize    int           `envconfig:"SAMPLE_SIZE" default:"500"`

	// Bearer token required on /api routes when set
	APIToken string `envconfig:"API_TOKEN"`

	// Optional: enables the export audit log
	DatabaseURL string        `envconfig:"DATABASE_URL"`
	Retention   time.Duration `envconfig:"RETENTION" default:"720h"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"discover-exports"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("DISCOVER", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if cfg.SampleSize <= 0 {
		return nil, fmt.Errorf("DISCOVER_SAMPLE_SIZE must be positive, got %d", cfg.SampleSize)
	}
	if cfg.ExportTimeout <= 0 {
		return nil, fmt.Errorf("DISCOVER_EXPORT_TIMEOUT must be positive, got %s", cfg.ExportTimeout)
	}

	return &cfg, nil
}

func (c *Config) HasDatabase() bool {
	return c.DatabaseURL != ""
}

// HasS3 reports whether export archival is configured.
func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasAuth() bool {
	return c.APIToken != ""
}
