// Package api serves the ecsportal HTTP interface: paginated listings of
// the four content types through a read-through cache, record creation,
// on-demand scrapes, and the admin endpoints for run history and jobs.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/ecsportal/cache"
	"github.com/hazyhaar/ecsportal/records"
	"github.com/hazyhaar/ecsportal/scheduler"
	"github.com/hazyhaar/ecsportal/scraper"
	"github.com/hazyhaar/ecsportal/store"
)

// Backend is the persistence the API reads from and writes to.
type Backend interface {
	InsertRecord(ctx context.Context, r records.Record) error
	List(ctx context.Context, q records.Query) (records.Page, error)
	Counts(ctx context.Context) (map[records.ContentType]int, error)
	RecentRuns(ctx context.Context, limit int) ([]records.RunLog, error)
	RunStats(ctx context.Context, since time.Time) (store.RunStats, error)
}

// Scraper triggers extraction runs.
type Scraper interface {
	Scrape(ctx context.Context, t records.ContentType) scraper.Outcome
	ScrapeAll(ctx context.Context) scraper.Results
	Stats() scraper.Stats
}

// Jobs is the scheduler registry.
type Jobs interface {
	ScheduleJob(id string, cfg scheduler.JobConfig) (bool, error)
	RestartJob(id string, cfg scheduler.JobConfig) (bool, error)
	StopJob(id string) bool
	Job(id string) (scheduler.JobConfig, bool)
	Jobs() []scheduler.JobStatus
	ActiveJobs() []string
}

// Config tunes the server.
type Config struct {
	// DataTTL is how long listings stay cached. Default: 30m.
	DataTTL time.Duration
	// StatsTTL is how long the dashboard stats stay cached. Default: 5m.
	StatsTTL time.Duration
	// MaxBodyBytes caps request bodies. Default: 1 MiB.
	MaxBodyBytes int64
	// Location defines "today" for the failed-runs counter. Default: UTC.
	Location *time.Location
}

func (c *Config) defaults() {
	if c.DataTTL <= 0 {
		c.DataTTL = cache.TTLMedium
	}
	if c.StatsTTL <= 0 {
		c.StatsTTL = cache.TTLShort
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 1 << 20
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
}

// Server holds the API dependencies.
type Server struct {
	backend Backend
	scraper Scraper
	jobs    Jobs
	cache   *cache.Cache
	config  Config
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a Server.
func New(backend Backend, scr Scraper, jobs Jobs, c *cache.Cache, cfg Config, logger *slog.Logger) *Server {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		backend: backend,
		scraper: scr,
		jobs:    jobs,
		cache:   c,
		config:  cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(recoverer, headToGet, securityHeaders, maxBody(s.config.MaxBodyBytes), requestLogger(s.logger))

	r.Get("/health", s.health)

	r.Route("/api/data/{type}", func(r chi.Router) {
		r.Get("/", s.listData)
		r.Post("/", s.createData)
	})

	r.Route("/api/scrape", func(r chi.Router) {
		r.Get("/", s.scrapeStatus)
		r.Post("/", s.triggerScrape)
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Get("/stats", s.stats)
		r.Get("/jobs", s.listJobs)
		r.Post("/jobs/{id}", s.scheduleJob)
		r.Delete("/jobs/{id}", s.stopJob)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "Not found", Message: r.URL.Path})
	})
	return r
}

// --- Envelopes ---

type envelope struct {
	Success    bool        `json:"success"`
	Data       any         `json:"data"`
	Count      *int        `json:"count,omitempty"`
	Message    string      `json:"message,omitempty"`
	Pagination *pagination `json:"pagination,omitempty"`
}

type pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

func newPagination(p records.Pagination, total int) *pagination {
	pages := (total + p.Limit - 1) / p.Limit
	return &pagination{
		Page:       p.Page,
		Limit:      p.Limit,
		Total:      total,
		TotalPages: pages,
		HasNext:    p.Page < pages,
		HasPrev:    p.Page > 1,
	}
}

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, code int, data any) {
	writeJSON(w, code, envelope{Success: true, Data: data})
}

// writeError maps err to a status: validation failures are 400, missing
// rows 404, everything else 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, records.ErrInvalid), errors.Is(err, scheduler.ErrInvalidSchedule):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Bad request", Message: err.Error()})
	case errors.As(err, &maxErr):
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "Request too large", Message: err.Error()})
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "Not found", Message: err.Error()})
	default:
		loggerFrom(r.Context()).Error("api: request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Internal server error", Message: err.Error()})
	}
}
