// Package config loads ecsportal settings: compiled-in defaults, then an
// optional YAML file, then environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/ecsportal/dbopen"
)

// Config is the top-level configuration.
type Config struct {
	Scraper   ScraperConfig   `yaml:"scraper"`
	Browser   BrowserConfig   `yaml:"browser"`
	Cache     CacheConfig     `yaml:"cache"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Store     StoreConfig     `yaml:"store"`
	Server    ServerConfig    `yaml:"server"`
	LogLevel  string          `yaml:"log_level"`
}

// ScraperConfig controls extraction runs.
type ScraperConfig struct {
	TargetURL     string        `yaml:"target_url"`
	RateLimit     time.Duration `yaml:"rate_limit"`
	PageTimeout   time.Duration `yaml:"page_timeout"`
	WaitTimeout   time.Duration `yaml:"wait_timeout"`
	UserAgent     string        `yaml:"user_agent"`
	MaxItems      int           `yaml:"max_items"`
	SelectorsFile string        `yaml:"selectors_file"`
}

// BrowserConfig controls the headless Chrome.
type BrowserConfig struct {
	Remote           string   `yaml:"remote"`
	Bin              string   `yaml:"bin"`
	Stealth          bool     `yaml:"stealth"`
	ResourceBlocking []string `yaml:"resource_blocking"`
}

// CacheConfig controls the in-process cache.
type CacheConfig struct {
	DefaultTTL  time.Duration `yaml:"default_ttl"`
	MaxKeys     int           `yaml:"max_keys"`
	CheckPeriod time.Duration `yaml:"check_period"`
}

// SchedulerConfig controls recurring jobs.
type SchedulerConfig struct {
	// Enabled defaults to true when unset.
	Enabled  *bool  `yaml:"enabled"`
	Timezone string `yaml:"timezone"`
}

// StoreConfig selects the persistence backend. SupabaseURL plus SupabaseKey
// selects the REST backend; otherwise see DSN.
type StoreConfig struct {
	DatabaseURL        string `yaml:"database_url"`
	SupabaseURL        string `yaml:"supabase_url"`
	SupabaseKey        string `yaml:"supabase_key"`
	SupabaseDBPassword string `yaml:"supabase_db_password"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port            string        `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Default returns a config with every default applied.
func Default() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Load reads path (skipped when empty) and overlays the process environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.FromEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Scraper.TargetURL == "" {
		c.Scraper.TargetURL = "https://www.ecs.gov.bd/"
	}
	if c.Scraper.RateLimit <= 0 {
		c.Scraper.RateLimit = 2 * time.Second
	}
	if c.Scraper.PageTimeout <= 0 {
		c.Scraper.PageTimeout = 30 * time.Second
	}
	if c.Scraper.WaitTimeout <= 0 {
		c.Scraper.WaitTimeout = 10 * time.Second
	}
	if c.Scraper.UserAgent == "" {
		c.Scraper.UserAgent = "ECS-Scraper/1.0"
	}
	if c.Scraper.MaxItems <= 0 {
		c.Scraper.MaxItems = 20
	}
	if c.Cache.DefaultTTL <= 0 {
		c.Cache.DefaultTTL = time.Hour
	}
	if c.Cache.MaxKeys <= 0 {
		c.Cache.MaxKeys = 1000
	}
	if c.Cache.CheckPeriod <= 0 {
		c.Cache.CheckPeriod = 10 * time.Minute
	}
	if c.Scheduler.Enabled == nil {
		on := true
		c.Scheduler.Enabled = &on
	}
	if c.Scheduler.Timezone == "" {
		c.Scheduler.Timezone = "Asia/Dhaka"
	}
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// FromEnv overlays environment variables read through lookup. Durations
// are given in milliseconds (SCRAPING_*) or seconds (CACHE_*).
func (c *Config) FromEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, unit time.Duration, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("config: %s=%q: want a positive integer", key, v)
		}
		*dst = time.Duration(n) * unit
		return nil
	}

	str("SCRAPING_TARGET_URL", &c.Scraper.TargetURL)
	str("SCRAPING_USER_AGENT", &c.Scraper.UserAgent)
	str("SCRAPING_SELECTORS_FILE", &c.Scraper.SelectorsFile)
	str("BROWSER_REMOTE_URL", &c.Browser.Remote)
	str("BROWSER_BIN", &c.Browser.Bin)
	str("SCHEDULER_TIMEZONE", &c.Scheduler.Timezone)
	str("DATABASE_URL", &c.Store.DatabaseURL)
	str("SUPABASE_URL", &c.Store.SupabaseURL)
	str("SUPABASE_SERVICE_ROLE_KEY", &c.Store.SupabaseKey)
	str("SUPABASE_DB_PASSWORD", &c.Store.SupabaseDBPassword)
	str("PORT", &c.Server.Port)
	str("LOG_LEVEL", &c.LogLevel)

	for _, d := range []struct {
		key  string
		unit time.Duration
		dst  *time.Duration
	}{
		{"SCRAPING_RATE_LIMIT_MS", time.Millisecond, &c.Scraper.RateLimit},
		{"SCRAPING_TIMEOUT_MS", time.Millisecond, &c.Scraper.PageTimeout},
		{"CACHE_TTL_SECONDS", time.Second, &c.Cache.DefaultTTL},
		{"CACHE_CHECK_PERIOD_SECONDS", time.Second, &c.Cache.CheckPeriod},
	} {
		if err := num(d.key, d.unit, d.dst); err != nil {
			return err
		}
	}

	if v, ok := lookup("CACHE_MAX_KEYS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("config: CACHE_MAX_KEYS=%q: want a positive integer", v)
		}
		c.Cache.MaxKeys = n
	}
	if v, ok := lookup("SCHEDULER_ENABLED"); ok && v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: SCHEDULER_ENABLED=%q: %w", v, err)
		}
		c.Scheduler.Enabled = &on
	}
	if v, ok := lookup("BROWSER_STEALTH"); ok && v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: BROWSER_STEALTH=%q: %w", v, err)
		}
		c.Browser.Stealth = on
	}
	return nil
}

// SchedulerEnabled reports whether recurring jobs should run.
func (c *Config) SchedulerEnabled() bool {
	return c.Scheduler.Enabled == nil || *c.Scheduler.Enabled
}

// Location loads the scheduler time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: timezone %q: %w", c.Scheduler.Timezone, err)
	}
	return loc, nil
}

// UseSupabaseREST reports whether the PostgREST backend is configured.
func (c *Config) UseSupabaseREST() bool {
	return c.Store.SupabaseURL != "" && c.Store.SupabaseKey != ""
}

// DefaultDatabasePath is the SQLite file used when no database is configured.
const DefaultDatabasePath = "data/ecsportal.db"

// DSN resolves the database to open: DatabaseURL when set, else the direct
// Postgres DSN of the Supabase project when its password is known, else the
// local SQLite file.
func (c *Config) DSN() (string, error) {
	switch {
	case c.Store.DatabaseURL != "":
		return c.Store.DatabaseURL, nil
	case c.Store.SupabaseURL != "" && c.Store.SupabaseDBPassword != "":
		return dbopen.SupabaseDSN(c.Store.SupabaseURL, c.Store.SupabaseDBPassword)
	default:
		return DefaultDatabasePath, nil
	}
}

// Level parses LogLevel; unknown values mean info.
func (c *Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
