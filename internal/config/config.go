// Package config loads and validates scraper configuration via Viper.
package config

import (
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// RetentionAppend keeps every run's rows in the queryable store.
const RetentionAppend = "append"

// Schedule modes, mirrored from the scheduler package to keep config free of
// runtime imports.
const (
	ScheduleOnce     = "once"
	ScheduleInterval = "interval"
	ScheduleCron     = "cron"
)

var localLayouts = []string{"2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02 15:04"}

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Source   SourceConfig   `mapstructure:"source"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Output   OutputConfig   `mapstructure:"output"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Store    StoreConfig    `mapstructure:"store"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	Mirror   MirrorConfig   `mapstructure:"mirror"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// SourceConfig names the page to scrape and how to select items.
type SourceConfig struct {
	URL      string            `mapstructure:"url"`
	Selector string            `mapstructure:"selector"`
	Headers  map[string]string `mapstructure:"headers"`
}

// FetchConfig governs the single HTTP retrieval per run.
type FetchConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	RespectRobots bool          `mapstructure:"respect_robots"`
	UserAgent     string        `mapstructure:"user_agent"`
}

// OutputConfig sets where the snapshot artifacts are written.
type OutputConfig struct {
	Dir            string `mapstructure:"dir"`
	DocumentFile   string `mapstructure:"document_file"`
	TabularFile    string `mapstructure:"tabular_file"`
	ScreenshotFile string `mapstructure:"screenshot_file"`
}

// LoggingConfig toggles zap development features and the log file.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	File        string `mapstructure:"file"`
}

// StoreConfig selects and configures the queryable store.
type StoreConfig struct {
	Driver      string `mapstructure:"driver"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
	Table       string `mapstructure:"table"`
	Retention   string `mapstructure:"retention"`
	MaxConns    int32  `mapstructure:"max_conns"`
}

// CacheConfig enables the optional Redis copy of the encoded cache.
type CacheConfig struct {
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	Key           string        `mapstructure:"key"`
	TTL           time.Duration `mapstructure:"ttl"`
}

// SnapshotConfig configures the headless page capture.
type SnapshotConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
	ExecPath  string        `mapstructure:"exec_path"`
}

// MirrorConfig enables copying artifacts to a GCS bucket.
type MirrorConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// NotifyConfig holds the Pub/Sub destination for run notifications.
type NotifyConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ScheduleConfig selects when runs fire.
type ScheduleConfig struct {
	Mode       string        `mapstructure:"mode"`
	At         string        `mapstructure:"at"`
	Interval   time.Duration `mapstructure:"interval"`
	Cron       string        `mapstructure:"cron"`
	RunOnStart bool          `mapstructure:"run_on_start"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SCRAPER")
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
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("source.url", "https://www.imdb.com/chart/top/")
	v.SetDefault("source.selector", ".ipc-title__text")
	v.SetDefault("source.headers", map[string]string{
		"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/58.0.3029.110 Safari/537.3",
		"Accept-Language": "en-US,en;q=0.9",
		"Referer":         "https://www.imdb.com/",
	})
	v.SetDefault("fetch.timeout", 15*time.Second)
	v.SetDefault("fetch.respect_robots", false)
	v.SetDefault("output.dir", "data")
	v.SetDefault("output.document_file", "filmes.json")
	v.SetDefault("output.tabular_file", "filmes.csv")
	v.SetDefault("output.screenshot_file", "screenshot.png")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.file", "logger.txt")
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.sqlite_path", "movies.db")
	v.SetDefault("store.table", "movies")
	v.SetDefault("store.retention", RetentionAppend)
	v.SetDefault("cache.key", "chartscraper:movies:base64")
	v.SetDefault("snapshot.enabled", true)
	v.SetDefault("snapshot.timeout", 60*time.Second)
	v.SetDefault("snapshot.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/58.0.3029.110 Safari/537.3")
	v.SetDefault("schedule.mode", ScheduleOnce)
	v.SetDefault("schedule.at", "2024-08-02 21:57:00")
	v.SetDefault("schedule.interval", 24*time.Hour)
	v.SetDefault("schedule.run_on_start", false)

	// Keys without a meaningful default still need registering so that
	// AutomaticEnv picks them up during Unmarshal.
	for _, key := range []string{
		"fetch.user_agent",
		"store.postgres_dsn",
		"cache.redis_addr",
		"cache.redis_password",
		"snapshot.exec_path",
		"mirror.gcs_bucket",
		"mirror.prefix",
		"notify.project_id",
		"notify.topic",
		"schedule.cron",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("store.max_conns", 0)
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.ttl", time.Duration(0))
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	u, err := url.Parse(c.Source.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("source.url must be an absolute http(s) URL")
	}
	if strings.TrimSpace(c.Source.Selector) == "" {
		return fmt.Errorf("source.selector must not be empty")
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be > 0")
	}
	if c.Output.Dir == "" || c.Output.DocumentFile == "" || c.Output.TabularFile == "" {
		return fmt.Errorf("output.dir, output.document_file and output.tabular_file are required")
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if c.Snapshot.Enabled {
		if c.Output.ScreenshotFile == "" {
			return fmt.Errorf("output.screenshot_file is required when snapshot is enabled")
		}
		if c.Snapshot.Timeout <= 0 {
			return fmt.Errorf("snapshot.timeout must be > 0 when snapshot is enabled")
		}
	}
	if c.Notify.Topic != "" && c.Notify.ProjectID == "" {
		return fmt.Errorf("notify.project_id must be set when notify.topic is set")
	}
	return c.validateSchedule()
}

func (c Config) validateStore() error {
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("store.postgres_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("store.driver must be %q or %q", DriverSQLite, DriverPostgres)
	}
	if c.Store.Retention != RetentionAppend {
		return fmt.Errorf("store.retention must be %q", RetentionAppend)
	}
	return nil
}

func (c Config) validateSchedule() error {
	switch c.Schedule.Mode {
	case ScheduleOnce:
		if _, err := c.ScheduleAt(); err != nil {
			return err
		}
	case ScheduleInterval:
		if c.Schedule.Interval <= 0 {
			return fmt.Errorf("schedule.interval must be > 0")
		}
	case ScheduleCron:
		if strings.TrimSpace(c.Schedule.Cron) == "" {
			return fmt.Errorf("schedule.cron must be set for cron mode")
		}
	default:
		return fmt.Errorf("schedule.mode must be one of once, interval, cron")
	}
	return nil
}

// ScheduleAt parses schedule.at. RFC 3339 values carry their own offset;
// values without an offset are read in the local time zone.
func (c Config) ScheduleAt() (time.Time, error) {
	raw := strings.TrimSpace(c.Schedule.At)
	if raw == "" {
		return time.Time{}, fmt.Errorf("schedule.at is required for once mode")
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("schedule.at %q must be RFC 3339 or YYYY-MM-DD HH:MM[:SS]", raw)
}

// HTTPHeaders returns the configured request headers in canonical form.
func (c Config) HTTPHeaders() http.Header {
	h := http.Header{}
	for k, v := range c.Source.Headers {
		h.Set(k, v)
	}
	return h
}

// SQLitePath resolves store.sqlite_path against output.dir when relative.
func (c Config) SQLitePath() string {
	if filepath.IsAbs(c.Store.SQLitePath) {
		return c.Store.SQLitePath
	}
	return filepath.Join(c.Output.Dir, c.Store.SQLitePath)
}

// Address returns the HTTP listen address.
func (c Config) Address() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
