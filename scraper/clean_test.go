package scraper

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hazyhaar/ecsportal/records"
)

func TestCleanText(t *testing.T) {
	cases := map[string]string{
		"  Hello\n\nWorld  ":             "Hello World",
		"a\t\tb":                         "a b",
		"no\u200bbreak\u00a0space":    "nobreak space",
		"":                               "",
		"\n\t ":                          "",
		"Election   Commission\r\nNotice": "Election Commission Notice",
	}
	for in, want := range cases {
		if got := CleanText(in); got != want {
			t.Errorf("CleanText(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseDate(t *testing.T) {
	day := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }
	cases := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"15/10/2025", day(2025, time.October, 15), true},
		{"Published: 5-3-2024", day(2024, time.March, 5), true},
		{"2025-10-15", day(2025, time.October, 15), true},
		{"2025/1/9", day(2025, time.January, 9), true},
		{"15 Oct 2025", day(2025, time.October, 15), true},
		{"3 September, 2024", day(2024, time.September, 3), true},
		{"31/02/2025", time.Time{}, false},
		{"not a date", time.Time{}, false},
		{"", time.Time{}, false},
	}
	for _, c := range cases {
		got, ok := ParseDate(c.in)
		if ok != c.ok || !got.Equal(c.want) {
			t.Errorf("ParseDate(%q) = %v, %v; want %v, %v", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestNoticePriority(t *testing.T) {
	cases := map[string]records.Priority{
		"Urgent: office closed":          records.PriorityHigh,
		"An IMPORTANT update for voters": records.PriorityHigh,
		"Office schedule":                records.PriorityMedium,
	}
	for title, want := range cases {
		if got := NoticePriority(title); got != want {
			t.Errorf("NoticePriority(%q) = %s, want %s", title, got, want)
		}
	}
}

func TestLoadProfiles_Overlay(t *testing.T) {
	// WHAT: a YAML file overrides only the fields it names.
	// WHY: operators retune one selector after a site redesign without
	// restating the whole table.
	path := filepath.Join(t.TempDir(), "selectors.yaml")
	yaml := "news:\n  containers: [\".headline-box\"]\n  min_title_len: 15\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	profiles, err := LoadProfiles(path)
	if err != nil {
		t.Fatal(err)
	}
	news := profiles[records.News]
	if len(news.Containers) != 1 || news.Containers[0] != ".headline-box" {
		t.Fatalf("containers = %v", news.Containers)
	}
	if news.MinTitleLen != 15 {
		t.Fatalf("min_title_len = %d", news.MinTitleLen)
	}
	if news.Title != DefaultProfiles()[records.News].Title {
		t.Fatalf("title selector lost: %q", news.Title)
	}
	if len(profiles[records.Officers].Containers) == 0 {
		t.Fatal("untouched profile lost its containers")
	}
}

func TestLoadProfiles_Errors(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"unknown type":     "weather:\n  title: h2\n",
		"empty containers": "notices:\n  containers: []\n",
		"bad yaml":         "news: [",
	}
	for name, body := range cases {
		path := filepath.Join(dir, name+".yaml")
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadProfiles(path); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
	if _, err := LoadProfiles(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("missing file: expected error")
	}
}
