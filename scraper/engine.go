// Package scraper extracts news, notices, officers and elections from the
// commission website. A run fetches the rendered page through a PageSource,
// applies the content type's selector Profile, validates every candidate,
// persists the accepted batch through a Sink and records the run log.
//
// Entry points never return an error: failures end up in the run log and in
// Outcome.Err, and the accepted records are returned either way.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/ecsportal/idgen"
	"github.com/hazyhaar/ecsportal/records"
)

// PageSource returns the rendered HTML of a page.
type PageSource interface {
	Fetch(ctx context.Context, pageURL string) (string, error)
}

// Sink persists accepted records and run logs.
type Sink interface {
	InsertRecords(ctx context.Context, t records.ContentType, recs []records.Record) error
	StartRun(ctx context.Context, run *records.RunLog) error
	FinishRun(ctx context.Context, run *records.RunLog) error
}

// Config tunes the engine.
type Config struct {
	// TargetURL is the page every content type is extracted from.
	// Default: https://www.ecs.gov.bd/.
	TargetURL string
	// RateLimit is the pause after each run. Default: 2s.
	RateLimit time.Duration
	// MaxItems caps the accepted records per run. Default: 20.
	MaxItems int
	// Profiles overrides the compiled-in selector tables.
	Profiles map[records.ContentType]*Profile

	// Now and NewJobID are overridable for tests.
	Now      func() time.Time
	NewJobID idgen.Generator
}

func (c *Config) defaults() {
	if c.TargetURL == "" {
		c.TargetURL = "https://www.ecs.gov.bd/"
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 2 * time.Second
	}
	if c.MaxItems <= 0 {
		c.MaxItems = 20
	}
	if c.Profiles == nil {
		c.Profiles = DefaultProfiles()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.NewJobID == nil {
		c.NewJobID = idgen.JobID(c.Now)
	}
}

// Outcome is the result of one run.
type Outcome struct {
	Type     records.ContentType `json:"type"`
	JobID    string              `json:"job_id"`
	Records  []records.Record    `json:"records"`
	Rejected []Candidate         `json:"-"`
	Err      error               `json:"-"`
}

// Results groups the outcome of a full sequential pass.
type Results struct {
	News      []*records.NewsItem     `json:"news"`
	Notices   []*records.NoticeItem   `json:"notices"`
	Officers  []*records.OfficerItem  `json:"officers"`
	Elections []*records.ElectionItem `json:"elections"`
	Outcomes  []Outcome               `json:"-"`
}

// Total is the number of accepted records across all types.
func (r Results) Total() int {
	return len(r.News) + len(r.Notices) + len(r.Officers) + len(r.Elections)
}

// Stats are point-in-time counters.
type Stats struct {
	Runs     int64 `json:"runs"`
	Failed   int64 `json:"failed"`
	Accepted int64 `json:"accepted"`
	Rejected int64 `json:"rejected"`
}

// Engine runs extractions. Runs of the same content type are serialised;
// different types may overlap.
type Engine struct {
	source PageSource
	sink   Sink
	cfg    Config
	base   *url.URL
	logger *slog.Logger

	locks map[records.ContentType]*sync.Mutex

	runs     atomic.Int64
	failed   atomic.Int64
	accepted atomic.Int64
	rejected atomic.Int64
}

// New creates an Engine.
func New(source PageSource, sink Sink, cfg Config, logger *slog.Logger) (*Engine, error) {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	base, err := url.Parse(cfg.TargetURL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("scraper: invalid target url %q", cfg.TargetURL)
	}
	locks := make(map[records.ContentType]*sync.Mutex, len(records.ContentTypes))
	for _, t := range records.ContentTypes {
		if cfg.Profiles[t] == nil {
			return nil, fmt.Errorf("scraper: no selector profile for %s", t)
		}
		locks[t] = new(sync.Mutex)
	}
	return &Engine{
		source: source,
		sink:   sink,
		cfg:    cfg,
		base:   base,
		logger: logger,
		locks:  locks,
	}, nil
}

// Scrape runs one extraction for t.
func (e *Engine) Scrape(ctx context.Context, t records.ContentType) Outcome {
	out := Outcome{Type: t}
	lock, ok := e.locks[t]
	if !ok {
		out.Err = fmt.Errorf("scraper: %w", records.ErrInvalid)
		return out
	}
	lock.Lock()
	defer lock.Unlock()

	e.runs.Add(1)
	out.JobID = e.cfg.NewJobID()
	run := records.NewRunLog(out.JobID, t, e.cfg.Now())
	if err := e.sink.StartRun(ctx, run); err != nil {
		e.logger.Warn("scraper: start run log", "job_id", out.JobID, "type", t, "error", err)
	}
	e.logger.Info("scraper: run started", "job_id", out.JobID, "type", t, "url", e.cfg.TargetURL)

	out.Records, out.Rejected, out.Err = e.extract(ctx, t)
	if len(out.Records) > 0 && out.Err == nil {
		if err := e.sink.InsertRecords(ctx, t, out.Records); err != nil {
			out.Err = fmt.Errorf("scraper: persist %s: %w", t, err)
		}
	}

	if err := run.Finish(len(out.Records), len(out.Rejected), out.Err, e.cfg.Now()); err != nil {
		e.logger.Warn("scraper: finish run log", "job_id", out.JobID, "error", err)
	}
	if err := e.sink.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		e.logger.Warn("scraper: write run log", "job_id", out.JobID, "error", err)
	}

	e.accepted.Add(int64(len(out.Records)))
	e.rejected.Add(int64(len(out.Rejected)))
	if out.Err != nil {
		e.failed.Add(1)
		e.logger.Error("scraper: run failed", "job_id", out.JobID, "type", t,
			"accepted", len(out.Records), "error", out.Err)
	} else {
		e.logger.Info("scraper: run completed", "job_id", out.JobID, "type", t,
			"accepted", len(out.Records), "rejected", len(out.Rejected))
	}

	e.pause(ctx)
	return out
}

// extract fetches and parses the page. On a fetch or parse failure no
// records are returned.
func (e *Engine) extract(ctx context.Context, t records.ContentType) ([]records.Record, []Candidate, error) {
	page, err := e.source.Fetch(ctx, e.cfg.TargetURL)
	if err != nil {
		return nil, nil, fmt.Errorf("scraper: fetch %s: %w", e.cfg.TargetURL, err)
	}
	doc, err := parseDocument(page)
	if err != nil {
		return nil, nil, err
	}
	x := (&extractor{
		kind:    t,
		profile: e.cfg.Profiles[t],
		base:    e.base,
		now:     e.cfg.Now(),
	}).run(doc)

	accepted, rejected := x.split()
	for _, c := range rejected {
		e.logger.Debug("scraper: candidate rejected", "type", t,
			"headline", c.Record.Headline(), "reason", c.Reason)
	}
	e.logger.Debug("scraper: extracted", "type", t, "selector", x.selector,
		"fallback", x.fallback, "accepted", len(accepted), "rejected", len(rejected))

	if len(accepted) > e.cfg.MaxItems {
		accepted = accepted[:e.cfg.MaxItems]
	}
	return accepted, rejected, nil
}

func (e *Engine) pause(ctx context.Context) {
	t := time.NewTimer(e.cfg.RateLimit)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// ScrapeNews runs a news extraction.
func (e *Engine) ScrapeNews(ctx context.Context) []*records.NewsItem {
	return typed[*records.NewsItem](e.Scrape(ctx, records.News).Records)
}

// ScrapeNotices runs a notices extraction.
func (e *Engine) ScrapeNotices(ctx context.Context) []*records.NoticeItem {
	return typed[*records.NoticeItem](e.Scrape(ctx, records.Notices).Records)
}

// ScrapeOfficers runs an officers extraction.
func (e *Engine) ScrapeOfficers(ctx context.Context) []*records.OfficerItem {
	return typed[*records.OfficerItem](e.Scrape(ctx, records.Officers).Records)
}

// ScrapeElections runs an elections extraction.
func (e *Engine) ScrapeElections(ctx context.Context) []*records.ElectionItem {
	return typed[*records.ElectionItem](e.Scrape(ctx, records.Elections).Records)
}

// ScrapeAll runs news, notices, officers and elections one after another.
// A cancelled context stops the pass between runs.
func (e *Engine) ScrapeAll(ctx context.Context) Results {
	var res Results
	for _, t := range records.ContentTypes {
		if ctx.Err() != nil {
			break
		}
		out := e.Scrape(ctx, t)
		res.Outcomes = append(res.Outcomes, out)
		switch t {
		case records.News:
			res.News = typed[*records.NewsItem](out.Records)
		case records.Notices:
			res.Notices = typed[*records.NoticeItem](out.Records)
		case records.Officers:
			res.Officers = typed[*records.OfficerItem](out.Records)
		case records.Elections:
			res.Elections = typed[*records.ElectionItem](out.Records)
		}
	}
	return res
}

// Stats returns the engine counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Runs:     e.runs.Load(),
		Failed:   e.failed.Load(),
		Accepted: e.accepted.Load(),
		Rejected: e.rejected.Load(),
	}
}

// Close releases the page source (the shared browser for RodSource).
func (e *Engine) Close() error {
	if c, ok := e.source.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Err joins the errors of all outcomes.
func (r Results) Err() error {
	var errs []error
	for _, o := range r.Outcomes {
		if o.Err != nil {
			errs = append(errs, o.Err)
		}
	}
	return errors.Join(errs...)
}

func typed[P records.Record](recs []records.Record) []P {
	out := make([]P, 0, len(recs))
	for _, r := range recs {
		if v, ok := r.(P); ok {
			out = append(out, v)
		}
	}
	return out
}
