package scraper

import (
	"context"
	"log/slog"
	"time"

	"github.com/hazyhaar/ecsportal/scraper/internal/browser"
)

// RodConfig configures the headless Chrome page source.
type RodConfig struct {
	// RemoteURL connects to an external Chrome instead of launching one.
	RemoteURL string
	Bin       string
	UserAgent string
	// PageTimeout bounds navigation. Default: 30s.
	PageTimeout time.Duration
	// WaitTimeout bounds the wait for <body>. Default: 10s.
	WaitTimeout time.Duration
	// BlockResources lists resource types never loaded (images, fonts, media).
	BlockResources []string
	Stealth        bool
}

// RodSource renders pages in a shared headless Chrome. The browser is
// launched on the first Fetch and kept warm until Close.
type RodSource struct {
	m    *browser.Manager
	opts browser.FetchOptions
}

// NewRodSource creates a RodSource. Nothing is launched yet.
func NewRodSource(cfg RodConfig, logger *slog.Logger) *RodSource {
	return &RodSource{
		m: browser.NewManager(browser.Config{
			RemoteURL:        cfg.RemoteURL,
			Bin:              cfg.Bin,
			ResourceBlocking: cfg.BlockResources,
			Stealth:          cfg.Stealth,
			Logger:           logger,
		}),
		opts: browser.FetchOptions{
			UserAgent:   cfg.UserAgent,
			Timeout:     cfg.PageTimeout,
			WaitTimeout: cfg.WaitTimeout,
		},
	}
}

// Fetch returns the rendered HTML of pageURL.
func (s *RodSource) Fetch(ctx context.Context, pageURL string) (string, error) {
	return s.m.FetchHTML(ctx, pageURL, s.opts)
}

// Running reports whether Chrome is up.
func (s *RodSource) Running() bool { return s.m.Running() }

// Close shuts Chrome down.
func (s *RodSource) Close() error { return s.m.Close() }
