// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/grants"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	GrantsGov GrantsGovConfig `mapstructure:"grantsgov"`
	Scrape    ScrapeConfig    `mapstructure:"scrape"`
	Bulkload  BulkloadConfig  `mapstructure:"bulkload"`
	Queue     QueueConfig     `mapstructure:"queue"`
	RawStore  RawStoreConfig  `mapstructure:"rawstore"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Collect   CollectConfig   `mapstructure:"collect"`
	Retention RetentionConfig `mapstructure:"retention"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// DatabaseConfig controls access to the relational database. An empty
// DSN selects the in-memory store.
type DatabaseConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// GrantsGovConfig governs the upstream API client.
type GrantsGovConfig struct {
	BaseURL        string  `mapstructure:"base_url"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	UserAgent      string  `mapstructure:"user_agent"`
	RatePerSec     float64 `mapstructure:"rate_per_sec"`
}

// ScrapeConfig governs the HTML fallback fetcher.
type ScrapeConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// BulkloadConfig governs the nightly database extract loader.
type BulkloadConfig struct {
	BaseURL string `mapstructure:"base_url"`
	DestDir string `mapstructure:"dest_dir"`
}

// QueueConfig selects the enrichment task queue backend.
type QueueConfig struct {
	Kind         string `mapstructure:"kind"`
	Depth        int    `mapstructure:"depth"`
	ProjectID    string `mapstructure:"project_id"`
	Topic        string `mapstructure:"topic"`
	Subscription string `mapstructure:"subscription"`
}

// RawStoreConfig selects where raw source payloads are archived.
type RawStoreConfig struct {
	Kind   string `mapstructure:"kind"`
	Dir    string `mapstructure:"dir"`
	Bucket string `mapstructure:"bucket"`
}

// RedisConfig enables shared dedupe state across collector instances.
// An empty Addr keeps dedupe in process memory.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
	TTLHours int    `mapstructure:"ttl_hours"`
}

// QueryConfig is one configured search to run per collection cycle.
type QueryConfig struct {
	Keyword    string `mapstructure:"keyword"`
	Agency     string `mapstructure:"agency"`
	Strategy   string `mapstructure:"strategy"`
	MaxResults int    `mapstructure:"max_results"`
}

// CollectConfig governs the collection pipeline.
type CollectConfig struct {
	Workers  int           `mapstructure:"workers"`
	Schedule string        `mapstructure:"schedule"`
	Queries  []QueryConfig `mapstructure:"queries"`
}

// RetentionConfig governs archive cleanup.
type RetentionConfig struct {
	MaxAgeDays int `mapstructure:"max_age_days"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GRANTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.timeout_seconds", 60)
	v.SetDefault("logging.development", true)
	v.SetDefault("database.table", "opportunities")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("grantsgov.base_url", "https://api.grants.gov")
	v.SetDefault("grantsgov.timeout_seconds", 30)
	v.SetDefault("grantsgov.user_agent", "grantsetl/1.0")
	v.SetDefault("grantsgov.rate_per_sec", 2.0)
	v.SetDefault("scrape.user_agent", "grantsetl/1.0")
	v.SetDefault("scrape.timeout_seconds", 30)
	v.SetDefault("bulkload.base_url", "https://prod-grants-gov-chatbot.s3.amazonaws.com/extracts/")
	v.SetDefault("bulkload.dest_dir", "data/extracts")
	v.SetDefault("queue.kind", "memory")
	v.SetDefault("queue.depth", 256)
	v.SetDefault("rawstore.kind", "none")
	v.SetDefault("rawstore.dir", "data/raw")
	v.SetDefault("redis.prefix", "grantsetl:seen")
	v.SetDefault("redis.ttl_hours", 24)
	v.SetDefault("collect.workers", 5)
	v.SetDefault("collect.schedule", "@every 6h")
	v.SetDefault("retention.max_age_days", 90)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Collect.Workers <= 0 {
		return fmt.Errorf("collect.workers must be > 0")
	}
	if c.GrantsGov.TimeoutSeconds <= 0 {
		return fmt.Errorf("grantsgov.timeout_seconds must be > 0")
	}
	if c.Retention.MaxAgeDays <= 0 {
		return fmt.Errorf("retention.max_age_days must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Queue.Kind {
	case "memory":
	case "pubsub":
		if c.Queue.ProjectID == "" || c.Queue.Topic == "" || c.Queue.Subscription == "" {
			return fmt.Errorf("queue.project_id, queue.topic and queue.subscription must be set for pubsub")
		}
	default:
		return fmt.Errorf("queue.kind must be memory or pubsub")
	}
	switch c.RawStore.Kind {
	case "none", "local":
	case "gcs":
		if c.RawStore.Bucket == "" {
			return fmt.Errorf("rawstore.bucket must be set for gcs")
		}
	default:
		return fmt.Errorf("rawstore.kind must be none, local or gcs")
	}
	return nil
}

// APITimeout converts the server timeout into a duration.
func (c Config) APITimeout() time.Duration {
	return time.Duration(c.Server.TimeoutSeconds) * time.Second
}

// Queries maps the configured searches onto collector queries. A
// config with no queries gets one recent-opportunities sweep.
func (c Config) Queries() []grants.Query {
	if len(c.Collect.Queries) == 0 {
		return []grants.Query{{Strategy: grants.StrategyRecent, MaxResults: 500}}
	}
	out := make([]grants.Query, 0, len(c.Collect.Queries))
	for _, q := range c.Collect.Queries {
		out = append(out, grants.Query{
			Keyword:    q.Keyword,
			AgencyCode: q.Agency,
			Strategy:   grants.Strategy(q.Strategy),
			MaxResults: q.MaxResults,
		})
	}
	return out
}
