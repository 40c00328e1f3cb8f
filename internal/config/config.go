package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// It is loaded once at startup and must not be modified afterwards.
type Config struct {
	LogLevel       string `mapstructure:"LOG_LEVEL"`
	HTTPAddr       string `mapstructure:"HTTP_ADDR"`
	DBURL          string `mapstructure:"DB_URL"`
	MigrationsPath string `mapstructure:"MIGRATIONS_PATH"`

	GithubToken  string `mapstructure:"GITHUB_TOKEN"`
	GithubOrg    string `mapstructure:"GITHUB_ORG"`
	GithubAPIURL string `mapstructure:"GITHUB_API_URL"`

	CatalogURL   string `mapstructure:"CATALOG_URL"`
	CatalogToken string `mapstructure:"CATALOG_TOKEN"`

	SonarURL          string `mapstructure:"SONAR_URL"`
	SonarToken        string `mapstructure:"SONAR_TOKEN"`
	SonarOrganization string `mapstructure:"SONAR_ORGANIZATION"`

	CacheTTL     time.Duration `mapstructure:"CACHE_TTL"`
	FileCacheTTL time.Duration `mapstructure:"FILE_CACHE_TTL"`

	EnrichConcurrency int           `mapstructure:"ENRICH_CONCURRENCY"`
	EnrichChunkSize   int           `mapstructure:"ENRICH_CHUNK_SIZE"`
	EnrichChunkPause  time.Duration `mapstructure:"ENRICH_CHUNK_PAUSE"`

	SyncBatchSize int           `mapstructure:"SYNC_BATCH_SIZE"`
	SyncInterval  time.Duration `mapstructure:"SYNC_INTERVAL"`
}

// keys lists every setting so AutomaticEnv can resolve them during Unmarshal.
var keys = []string{
	"LOG_LEVEL", "HTTP_ADDR", "DB_URL", "MIGRATIONS_PATH",
	"GITHUB_TOKEN", "GITHUB_ORG", "GITHUB_API_URL",
	"CATALOG_URL", "CATALOG_TOKEN",
	"SONAR_URL", "SONAR_TOKEN", "SONAR_ORGANIZATION",
	"CACHE_TTL", "FILE_CACHE_TTL",
	"ENRICH_CONCURRENCY", "ENRICH_CHUNK_SIZE", "ENRICH_CHUNK_PAUSE",
	"SYNC_BATCH_SIZE", "SYNC_INTERVAL",
}

// LoadConfig reads configuration from file and/or environment variables.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// Set default values
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("MIGRATIONS_PATH", "file://migrations")
	v.SetDefault("SONAR_URL", "https://sonarcloud.io")
	v.SetDefault("CACHE_TTL", "30m")
	v.SetDefault("FILE_CACHE_TTL", "60m")
	v.SetDefault("ENRICH_CONCURRENCY", 4)
	v.SetDefault("ENRICH_CHUNK_SIZE", 10)
	v.SetDefault("ENRICH_CHUNK_PAUSE", "1s")
	v.SetDefault("SYNC_BATCH_SIZE", 10)
	v.SetDefault("SYNC_INTERVAL", "0s")

	// Load from .env file if it exists
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // Ignore error if file not found

	// Bind environment variables
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range keys {
		_ = v.BindEnv(key)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.DBURL == "" {
		return errors.New("DB_URL is a required configuration field")
	}
	if c.GithubToken == "" {
		return errors.New("GITHUB_TOKEN is a required configuration field")
	}
	if c.GithubOrg == "" {
		return errors.New("GITHUB_ORG is a required configuration field")
	}
	if c.SyncBatchSize < 1 || c.SyncBatchSize > 50 {
		return fmt.Errorf("SYNC_BATCH_SIZE must be between 1 and 50, got %d", c.SyncBatchSize)
	}
	if c.EnrichConcurrency < 1 {
		return fmt.Errorf("ENRICH_CONCURRENCY must be positive, got %d", c.EnrichConcurrency)
	}
	if c.EnrichChunkSize < 1 {
		return fmt.Errorf("ENRICH_CHUNK_SIZE must be positive, got %d", c.EnrichChunkSize)
	}
	if c.SyncInterval < 0 {
		return errors.New("SYNC_INTERVAL must not be negative")
	}
	return nil
}
