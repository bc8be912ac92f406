package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// FetchOptions tunes one page fetch.
type FetchOptions struct {
	UserAgent string
	Width     int
	Height    int
	// Timeout bounds navigation plus network idle. Default: 30s.
	Timeout time.Duration
	// WaitTimeout bounds the wait for the body element. Default: 10s.
	WaitTimeout time.Duration
	// IdleTime is how long the network must stay quiet. Default: 500ms.
	IdleTime time.Duration
}

func (o *FetchOptions) defaults() {
	if o.Width <= 0 {
		o.Width = 1920
	}
	if o.Height <= 0 {
		o.Height = 1080
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.WaitTimeout <= 0 {
		o.WaitTimeout = 10 * time.Second
	}
	if o.IdleTime <= 0 {
		o.IdleTime = 500 * time.Millisecond
	}
}

// FetchHTML opens a page, navigates to pageURL, waits for the network to go
// idle and for <body>, and returns the rendered HTML. The page is closed
// before returning whatever the outcome.
func (m *Manager) FetchHTML(ctx context.Context, pageURL string, opts FetchOptions) (string, error) {
	opts.defaults()

	b, err := m.acquire()
	if err != nil {
		return "", err
	}
	defer m.release()

	page, err := m.openPage(b)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := page.Close(); err != nil {
			m.cfg.Logger.Debug("browser: close page", "error", err)
		}
	}()

	if opts.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: opts.UserAgent}); err != nil {
			return "", fmt.Errorf("browser: set user agent: %w", err)
		}
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             opts.Width,
		Height:            opts.Height,
		DeviceScaleFactor: 1,
	}); err != nil {
		return "", fmt.Errorf("browser: set viewport: %w", err)
	}

	if len(m.cfg.ResourceBlocking) > 0 {
		router, err := applyResourceBlocking(page, m.cfg.ResourceBlocking)
		if err != nil {
			m.cfg.Logger.Warn("browser: resource blocking failed", "error", err)
		} else {
			defer router.Stop()
		}
	}

	navCtx, cancelNav := context.WithTimeout(ctx, opts.Timeout)
	defer cancelNav()
	nav := page.Context(navCtx)
	waitIdle := nav.WaitRequestIdle(opts.IdleTime, nil, nil, nil)
	if err := nav.Navigate(pageURL); err != nil {
		return "", fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	waitIdle()

	waitCtx, cancelWait := context.WithTimeout(ctx, opts.WaitTimeout)
	defer cancelWait()
	if _, err := page.Context(waitCtx).Element("body"); err != nil {
		return "", fmt.Errorf("browser: wait for body: %w", err)
	}

	html, err := page.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("browser: read html: %w", err)
	}
	return html, nil
}

func (m *Manager) openPage(b *rod.Browser) (*rod.Page, error) {
	var (
		page *rod.Page
		err  error
	)
	if m.cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create page: %w", err)
	}
	return page, nil
}
