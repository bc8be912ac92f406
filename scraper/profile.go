package scraper

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/ecsportal/records"
)

// Profile is the selector table for one content type. Containers are tried
// in order; the first that matches any element is the only one used.
type Profile struct {
	Containers []string `yaml:"containers"`
	// Title selects the headline (the name, for officers) inside a container.
	Title string `yaml:"title"`
	// NoTextFallback disables falling back to the container's own text when
	// Title matches nothing.
	NoTextFallback bool `yaml:"no_text_fallback"`
	// MinTitleLen: headlines of this many characters or fewer are noise.
	MinTitleLen int `yaml:"min_title_len"`

	Body       string `yaml:"body"`
	Date       string `yaml:"date"`
	Image      string `yaml:"image"`
	File       string `yaml:"file"`
	Email      string `yaml:"email"`
	Phone      string `yaml:"phone"`
	Position   string `yaml:"position"`
	Department string `yaml:"department"`

	// FallbackLinks, when set, is scanned for bare links if the containers
	// yield no valid record.
	FallbackLinks string `yaml:"fallback_links"`
}

// DefaultProfiles returns the compiled-in selector tables.
func DefaultProfiles() map[records.ContentType]*Profile {
	return map[records.ContentType]*Profile{
		records.News: {
			Containers: []string{
				".news-item",
				".news-list li",
				".latest-news .item",
				`[class*="news"] a`,
				".content-area .post",
			},
			Title:         "h1, h2, h3, h4, .title, .headline",
			MinTitleLen:   10,
			Body:          "p, .content, .description",
			Date:          `.date, .time, [class*="date"]`,
			Image:         "img",
			FallbackLinks: "a",
		},
		records.Notices: {
			Containers: []string{
				".notice-item",
				".notice-list li",
				".notices .item",
				`[class*="notice"] a`,
				".announcements .item",
			},
			Title:       "h1, h2, h3, h4, .title",
			MinTitleLen: 10,
			Body:        "p, .content, .description",
			Date:        `.date, .time, [class*="date"]`,
			File:        `a[href*=".pdf"], a[href*=".doc"]`,
		},
		records.Officers: {
			Containers: []string{
				".officer-item",
				".staff-list li",
				".officers .item",
				`[class*="officer"] .person`,
				".team-member",
			},
			Title:          ".name, h1, h2, h3, h4",
			NoTextFallback: true,
			MinTitleLen:    2,
			Position:       ".position, .title, .designation",
			Department:     ".department, .office",
			Email:          `a[href^="mailto:"]`,
			Phone:          `.phone, .mobile, [class*="phone"]`,
			Image:          "img",
		},
		records.Elections: {
			Containers: []string{
				".election-item",
				".elections li",
				`[class*="election"] .item`,
				".voting-info",
				".election-schedule",
			},
			Title:       "h1, h2, h3, h4, .title",
			MinTitleLen: 10,
			Body:        "p, .content, .description",
			Date:        `.date, .time, [class*="date"]`,
		},
	}
}

// LoadProfiles reads a YAML selector file keyed by content type and overlays
// it on the defaults. Fields absent from the file keep their default value.
//
//	news:
//	  containers: [".headline-box", ".news-item"]
//	  min_title_len: 15
func LoadProfiles(path string) (map[records.ContentType]*Profile, error) {
	profiles := DefaultProfiles()
	if path == "" {
		return profiles, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scraper: read selectors: %w", err)
	}
	var nodes map[string]yaml.Node
	if err := yaml.Unmarshal(data, &nodes); err != nil {
		return nil, fmt.Errorf("scraper: parse selectors: %w", err)
	}
	for name, node := range nodes {
		t, err := records.ParseContentType(name)
		if err != nil {
			return nil, fmt.Errorf("scraper: selectors file: %w", err)
		}
		p := profiles[t]
		if err := node.Decode(p); err != nil {
			return nil, fmt.Errorf("scraper: selectors for %s: %w", t, err)
		}
		if len(p.Containers) == 0 || p.Title == "" {
			return nil, fmt.Errorf("scraper: selectors for %s: containers and title are required", t)
		}
	}
	return profiles, nil
}
