package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Source kinds.
const (
	SourceFile  = "file"
	SourceIndex = "index"
)

// Destination kinds.
const (
	DestElasticsearch = "elasticsearch"
	DestSQLite        = "sqlite"
	DestPostgres      = "postgres"
)

// Cache kinds. An empty kind disables the fetch cache.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config is the resolved ingester configuration. It is not modified after Load.
type Config struct {
	Source        SourceConfig        `json:"source" yaml:"source"`
	Destination   DestinationConfig   `json:"destIndex" yaml:"destIndex"`
	ScanInterval  Duration            `json:"scan_interval" yaml:"scan_interval"`
	StreamBuffer  int                 `json:"stream_buffer" yaml:"stream_buffer"`
	Analytics     AnalyticsConfig     `json:"analytics" yaml:"analytics"`
	Elasticsearch ElasticsearchConfig `json:"elasticsearch" yaml:"elasticsearch"`
	SQLite        SQLiteConfig        `json:"sqlite" yaml:"sqlite"`
	Postgres      PostgresConfig      `json:"postgres" yaml:"postgres"`
	Redis         RedisConfig         `json:"redis" yaml:"redis"`
	Cache         CacheConfig         `json:"cache" yaml:"cache"`
	Events        EventsConfig        `json:"events" yaml:"events"`
	Log           LogConfig           `json:"log" yaml:"log"`
	Server        ServerConfig        `json:"server" yaml:"server"`
	Sentry        SentryConfig        `json:"sentry" yaml:"sentry"`
}

// SourceConfig selects where short URLs are read from.
type SourceConfig struct {
	Type      string   `json:"type" yaml:"type"`
	FilePath  string   `json:"filePath" yaml:"filePath"`
	IndexName string   `json:"sourceIndexName" yaml:"sourceIndexName"`
	IndexType string   `json:"sourceIndexType" yaml:"sourceIndexType"`
	URLField  string   `json:"urlFieldName" yaml:"urlFieldName"`
	PageSize  int      `json:"page_size" yaml:"page_size"`
	KeepAlive Duration `json:"scroll_keep_alive" yaml:"scroll_keep_alive"`
}

// DestinationConfig describes the bulk destination and the flush engine.
type DestinationConfig struct {
	Kind              string   `json:"kind" yaml:"kind"`
	Index             string   `json:"index" yaml:"index"`
	Type              string   `json:"type" yaml:"type"`
	BulkSize          int      `json:"bulk_size" yaml:"bulk_size"`
	FlushInterval     Duration `json:"flush_interval" yaml:"flush_interval"`
	MaxConcurrentBulk int      `json:"max_concurrent_bulk" yaml:"max_concurrent_bulk"`
	RequestTimeout    Duration `json:"request_timeout" yaml:"request_timeout"`
}

type AnalyticsConfig struct {
	Endpoint  string   `json:"endpoint" yaml:"endpoint"`
	Timeout   Duration `json:"timeout" yaml:"timeout"`
	UserAgent string   `json:"user_agent" yaml:"user_agent"`
}

type ElasticsearchConfig struct {
	Addresses []string `json:"addresses" yaml:"addresses"`
	Username  string   `json:"username" yaml:"username"`
	Password  string   `json:"password" yaml:"password"`
}

type SQLiteConfig struct {
	Path string `json:"path" yaml:"path"`
}

type PostgresConfig struct {
	DSN      string `json:"dsn" yaml:"dsn"`
	Table    string `json:"table" yaml:"table"`
	MaxConns int    `json:"max_conns" yaml:"max_conns"`
}

type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
}

type CacheConfig struct {
	Kind string   `json:"kind" yaml:"kind"`
	TTL  Duration `json:"ttl" yaml:"ttl"`
}

type EventsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Channel string `json:"channel" yaml:"channel"`
}

// LogConfig controls the rotating log files. An empty Dir keeps logs on stderr.
type LogConfig struct {
	Dir        string `json:"dir" yaml:"dir"`
	Debug      bool   `json:"debug" yaml:"debug"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `json:"compress" yaml:"compress"`
}

type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

type SentryConfig struct {
	DSN         string `json:"dsn" yaml:"dsn"`
	Environment string `json:"environment" yaml:"environment"`
}

// Defaults returns the configuration used for every key a file leaves out.
func Defaults() *Config {
	return &Config{
		Source: SourceConfig{
			Type:      SourceFile,
			PageSize:  100,
			KeepAlive: Duration(60 * time.Second),
		},
		Destination: DestinationConfig{
			Kind:              DestElasticsearch,
			Index:             "url-analytics",
			Type:              "doc",
			BulkSize:          100,
			FlushInterval:     Duration(5 * time.Second),
			MaxConcurrentBulk: 1,
			RequestTimeout:    Duration(30 * time.Second),
		},
		ScanInterval: Duration(7200 * time.Second),
		StreamBuffer: 256,
		Analytics: AnalyticsConfig{
			Endpoint:  "https://www.googleapis.com/urlshortener/v1/url",
			Timeout:   Duration(20 * time.Second),
			UserAgent: "shorturl-analytics/1.0",
		},
		Elasticsearch: ElasticsearchConfig{
			Addresses: []string{"http://localhost:9200"},
		},
		SQLite: SQLiteConfig{Path: "url_analytics.db"},
		Postgres: PostgresConfig{
			Table:    "click_snapshots",
			MaxConns: 2,
		},
		Redis: RedisConfig{Addr: "localhost:6379"},
		Cache: CacheConfig{TTL: Duration(10 * time.Minute)},
		Events: EventsConfig{Channel: "events"},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Compress:   true,
		},
		Server: ServerConfig{Addr: ":8080"},
	}
}

// Decode reads the configuration file at path (JSON or YAML by extension) on
// top of Defaults and applies environment overrides, without validating.
// An empty path yields defaults plus environment.
func Decode(path string) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := decode(path, data, cfg); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// Load is Decode followed by Validate.
func Load(path string) (*Config, error) {
	cfg, err := Decode(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parsing JSON config: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parsing YAML config: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config format: %q", ext)
	}
	return nil
}

// ApplyEnv overrides settings from the process environment.
func (c *Config) ApplyEnv() {
	if port := os.Getenv("PORT"); port != "" {
		c.Server.Addr = ":" + port
	}
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		c.Sentry.DSN = dsn
	}
	if addr := os.Getenv("REDIS_URL"); addr != "" {
		c.Redis.Addr = addr
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		c.Redis.Password = pw
	}
	if dsn := os.Getenv("PG_DSN"); dsn != "" {
		c.Postgres.DSN = dsn
	}
	if urls := os.Getenv("ES_URL"); urls != "" {
		var addrs []string
		for _, u := range strings.Split(urls, ",") {
			if u = strings.TrimSpace(u); u != "" {
				addrs = append(addrs, u)
			}
		}
		c.Elasticsearch.Addresses = addrs
	}
	if v := os.Getenv("LOG_DEBUG"); v != "" {
		if debug, err := strconv.ParseBool(v); err == nil {
			c.Log.Debug = debug
		}
	}
}

// Validate checks that every setting needed by the chosen source and
// destination is present. It returns a *ConfigError.
func (c *Config) Validate() error {
	switch c.Source.Type {
	case SourceFile:
		if c.Source.FilePath == "" {
			return &ConfigError{Field: "source.filePath", Reason: "required for file source"}
		}
	case SourceIndex:
		if c.Source.IndexName == "" || c.Source.IndexType == "" || c.Source.URLField == "" {
			return &ConfigError{Field: "source", Reason: "index source needs sourceIndexName, sourceIndexType and urlFieldName"}
		}
		if c.Source.PageSize <= 0 {
			return &ConfigError{Field: "source.page_size", Reason: "must be positive"}
		}
	case "":
		return &ConfigError{Field: "source.type", Reason: "source configuration missing"}
	default:
		return &ConfigError{Field: "source.type", Reason: fmt.Sprintf("unknown source type %q", c.Source.Type)}
	}

	d := c.Destination
	if d.BulkSize <= 0 {
		return &ConfigError{Field: "destIndex.bulk_size", Reason: "must be positive"}
	}
	if d.FlushInterval < 0 {
		return &ConfigError{Field: "destIndex.flush_interval", Reason: "must not be negative"}
	}
	if d.MaxConcurrentBulk < 1 {
		return &ConfigError{Field: "destIndex.max_concurrent_bulk", Reason: "must be at least 1"}
	}
	switch d.Kind {
	case DestElasticsearch:
		if d.Index == "" {
			return &ConfigError{Field: "destIndex.index", Reason: "required"}
		}
		if len(c.Elasticsearch.Addresses) == 0 {
			return &ConfigError{Field: "elasticsearch.addresses", Reason: "at least one address is required"}
		}
	case DestSQLite:
		if c.SQLite.Path == "" {
			return &ConfigError{Field: "sqlite.path", Reason: "required for sqlite destination"}
		}
	case DestPostgres:
		if c.Postgres.DSN == "" {
			return &ConfigError{Field: "postgres.dsn", Reason: "required for postgres destination"}
		}
		if c.Postgres.Table == "" {
			return &ConfigError{Field: "postgres.table", Reason: "required for postgres destination"}
		}
	default:
		return &ConfigError{Field: "destIndex.kind", Reason: fmt.Sprintf("unknown destination kind %q", d.Kind)}
	}
	if c.Source.Type == SourceIndex && len(c.Elasticsearch.Addresses) == 0 {
		return &ConfigError{Field: "elasticsearch.addresses", Reason: "index source needs an Elasticsearch address"}
	}

	if c.ScanInterval <= 0 {
		return &ConfigError{Field: "scan_interval", Reason: "must be positive"}
	}
	if c.StreamBuffer < 0 {
		return &ConfigError{Field: "stream_buffer", Reason: "must not be negative"}
	}
	if c.Analytics.Endpoint == "" {
		return &ConfigError{Field: "analytics.endpoint", Reason: "required"}
	}

	switch c.Cache.Kind {
	case "", CacheMemory:
	case CacheRedis:
		if c.Redis.Addr == "" {
			return &ConfigError{Field: "redis.addr", Reason: "required for redis cache"}
		}
	default:
		return &ConfigError{Field: "cache.kind", Reason: fmt.Sprintf("unknown cache kind %q", c.Cache.Kind)}
	}
	if c.Cache.Kind != "" && c.Cache.TTL <= 0 {
		return &ConfigError{Field: "cache.ttl", Reason: "must be positive when the cache is enabled"}
	}
	if c.Events.Enabled {
		if c.Redis.Addr == "" {
			return &ConfigError{Field: "redis.addr", Reason: "required for events"}
		}
		if c.Events.Channel == "" {
			return &ConfigError{Field: "events.channel", Reason: "required for events"}
		}
	}
	return nil
}
