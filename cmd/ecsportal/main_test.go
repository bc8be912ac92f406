package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestJobsCommand(t *testing.T) {
	// WHAT: `ecsportal jobs` lists every default job with a next fire time.
	// WHY: operators check the schedule before deploying.
	t.Setenv("SCHEDULER_TIMEZONE", "UTC")
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs([]string{"jobs"})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 5 {
		t.Fatalf("lines = %d:\n%s", len(lines), out.String())
	}
	for _, id := range []string{"news-scraping", "notices-scraping", "officers-scraping", "elections-scraping", "cache-cleanup"} {
		if !strings.Contains(out.String(), id) {
			t.Errorf("missing job %s", id)
		}
	}
}

func TestBadConfig(t *testing.T) {
	t.Setenv("CACHE_MAX_KEYS", "lots")
	root := newRootCmd()
	root.SetOut(new(bytes.Buffer))
	root.SetErr(new(bytes.Buffer))
	root.SetArgs([]string{"jobs"})
	if err := root.ExecuteContext(context.Background()); err == nil {
		t.Fatal("expected config error")
	}
}

func TestScrapeCommand_InvalidType(t *testing.T) {
	t.Setenv("DATABASE_URL", t.TempDir()+"/ecs.db")
	root := newRootCmd()
	root.SetOut(new(bytes.Buffer))
	root.SetErr(new(bytes.Buffer))
	root.SetArgs([]string{"scrape", "--type", "weather"})
	if err := root.ExecuteContext(context.Background()); err == nil {
		t.Fatal("expected error for unknown type")
	}
}
