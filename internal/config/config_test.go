package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	c := Default()
	if c.Scraper.RateLimit != 2*time.Second || c.Scraper.PageTimeout != 30*time.Second {
		t.Fatalf("scraper timings = %v / %v", c.Scraper.RateLimit, c.Scraper.PageTimeout)
	}
	if c.Scraper.UserAgent != "ECS-Scraper/1.0" || c.Scraper.TargetURL != "https://www.ecs.gov.bd/" {
		t.Fatalf("scraper = %+v", c.Scraper)
	}
	if c.Cache.DefaultTTL != time.Hour || c.Cache.MaxKeys != 1000 {
		t.Fatalf("cache = %+v", c.Cache)
	}
	if !c.SchedulerEnabled() || c.Scheduler.Timezone != "Asia/Dhaka" {
		t.Fatalf("scheduler = %+v", c.Scheduler)
	}
	if c.UseSupabaseREST() {
		t.Fatalf("store = %+v", c.Store)
	}
}

func TestDSN(t *testing.T) {
	c := Default()
	if dsn, _ := c.DSN(); dsn != DefaultDatabasePath {
		t.Fatalf("default dsn = %q", dsn)
	}

	c.Store.SupabaseURL = "https://abcd.supabase.co"
	c.Store.SupabaseDBPassword = "pw"
	dsn, err := c.DSN()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(dsn, "postgresql://postgres:pw@db.abcd.supabase.co:5432/") {
		t.Fatalf("supabase dsn = %q", dsn)
	}

	c.Store.DatabaseURL = "postgres://u:p@localhost/ecs"
	if dsn, _ := c.DSN(); dsn != c.Store.DatabaseURL {
		t.Fatalf("explicit dsn = %q", dsn)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ecsportal.yaml")
	body := `scraper:
  rate_limit: 5s
  max_items: 50
scheduler:
  enabled: false
server:
  port: "9090"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Scraper.RateLimit != 5*time.Second || c.Scraper.MaxItems != 50 {
		t.Fatalf("scraper = %+v", c.Scraper)
	}
	if c.SchedulerEnabled() {
		t.Fatal("scheduler should be disabled by file")
	}
	if c.Server.Port != "9090" || c.Scraper.UserAgent != "ECS-Scraper/1.0" {
		t.Fatalf("defaults lost: %+v", c)
	}
}

func TestFromEnv(t *testing.T) {
	// WHAT: environment variables override file and defaults.
	// WHY: container deployments configure everything through env.
	c := Default()
	err := c.FromEnv(envMap(map[string]string{
		"SCRAPING_RATE_LIMIT_MS":    "500",
		"SCRAPING_TIMEOUT_MS":       "45000",
		"SCRAPING_USER_AGENT":       "ECS-Bot/2.0",
		"CACHE_TTL_SECONDS":         "120",
		"CACHE_MAX_KEYS":            "50",
		"SCHEDULER_ENABLED":         "false",
		"SUPABASE_URL":              "https://abc.supabase.co",
		"SUPABASE_SERVICE_ROLE_KEY": "service-key",
		"LOG_LEVEL":                 "debug",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if c.Scraper.RateLimit != 500*time.Millisecond || c.Scraper.PageTimeout != 45*time.Second {
		t.Fatalf("scraper = %+v", c.Scraper)
	}
	if c.Scraper.UserAgent != "ECS-Bot/2.0" || c.Cache.DefaultTTL != 2*time.Minute || c.Cache.MaxKeys != 50 {
		t.Fatalf("config = %+v", c)
	}
	if c.SchedulerEnabled() || !c.UseSupabaseREST() || c.Level() != slog.LevelDebug {
		t.Fatalf("config = %+v", c)
	}
}

func TestFromEnv_Invalid(t *testing.T) {
	for key, val := range map[string]string{
		"SCRAPING_RATE_LIMIT_MS": "fast",
		"CACHE_TTL_SECONDS":      "-1",
		"CACHE_MAX_KEYS":         "many",
		"SCHEDULER_ENABLED":      "sometimes",
	} {
		if err := Default().FromEnv(envMap(map[string]string{key: val})); err == nil {
			t.Errorf("%s=%q: expected error", key, val)
		}
	}
}

func TestLocation(t *testing.T) {
	c := Default()
	c.Scheduler.Timezone = "UTC"
	loc, err := c.Location()
	if err != nil || loc != time.UTC {
		t.Fatalf("loc = %v, err = %v", loc, err)
	}
	c.Scheduler.Timezone = "Mars/Olympus"
	if _, err := c.Location(); err == nil {
		t.Fatal("expected error for unknown zone")
	}
}
