package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/ecsportal/cache"
	"github.com/hazyhaar/ecsportal/records"
	"github.com/hazyhaar/ecsportal/scheduler"
	"github.com/hazyhaar/ecsportal/scraper"
)

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   s.now().UTC().Format(time.RFC3339),
	})
}

// --- Data ---

func (s *Server) listData(w http.ResponseWriter, r *http.Request) {
	t, err := records.ParseContentType(chi.URLParam(r, "type"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, q, err := parseListQuery(t, r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}

	key := cache.DataKey(string(t), q.Params())
	page, err := cache.GetOrSet(r.Context(), s.cache, key, func(ctx context.Context) (records.Page, error) {
		return s.backend.List(ctx, q)
	}, s.config.DataTTL)
	if err != nil {
		writeError(w, r, err)
		return
	}

	items := page.Items
	if items == nil {
		items = []records.Record{}
	}
	n := len(items)
	writeJSON(w, http.StatusOK, envelope{
		Success:    true,
		Data:       items,
		Count:      &n,
		Pagination: newPagination(p, page.Total),
	})
}

// parseListQuery reads pagination and the type's filters from the query
// string. Malformed values are validation errors.
func parseListQuery(t records.ContentType, v url.Values) (records.Pagination, records.Query, error) {
	p := records.Pagination{}.Normalize()
	var err error
	if v.Has("page") {
		if p.Page, err = intParam(v, "page"); err != nil {
			return p, records.Query{}, err
		}
	}
	if v.Has("limit") {
		if p.Limit, err = intParam(v, "limit"); err != nil {
			return p, records.Query{}, err
		}
	}
	p.SortBy = v.Get("sort_by")
	p.SortOrder = records.SortOrder(v.Get("sort_order"))

	from, err := records.ParseDate("date_from", v.Get("date_from"))
	if err != nil {
		return p, records.Query{}, err
	}
	to, err := records.ParseDate("date_to", v.Get("date_to"))
	if err != nil {
		return p, records.Query{}, err
	}
	search := v.Get("search")

	var q records.Query
	switch t {
	case records.News:
		q, err = records.NewsFilter{
			Category: v.Get("category"),
			DateFrom: from,
			DateTo:   to,
			Search:   search,
			Language: v.Get("language"),
		}.Query(p)
	case records.Notices:
		q, err = records.NoticeFilter{
			Priority:   records.Priority(v.Get("priority")),
			NoticeType: v.Get("notice_type"),
			DateFrom:   from,
			DateTo:     to,
			Search:     search,
		}.Query(p)
	case records.Officers:
		f := records.OfficerFilter{Department: v.Get("department"), Search: search}
		if v.Has("hierarchy_level") {
			lvl, perr := intParam(v, "hierarchy_level")
			if perr != nil {
				return p, records.Query{}, perr
			}
			f.HierarchyLevel = &lvl
		}
		q, err = f.Query(p)
	case records.Elections:
		q, err = records.ElectionFilter{
			Status:   records.ElectionStatus(v.Get("status")),
			DateFrom: from,
			DateTo:   to,
			Search:   search,
		}.Query(p)
	}
	return p, q, err
}

func intParam(v url.Values, name string) (int, error) {
	s := v.Get(name)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, &records.FieldError{Field: name, Reason: "must be an integer"}
	}
	return n, nil
}

func (s *Server) createData(w http.ResponseWriter, r *http.Request) {
	t, err := records.ParseContentType(chi.URLParam(r, "type"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	rec := t.New()
	if err := decodeBody(r, rec); err != nil {
		if errors.Is(err, io.EOF) {
			err = fmt.Errorf("%w: empty body", records.ErrInvalid)
		}
		writeError(w, r, err)
		return
	}
	rec.SetID("")
	records.Sanitize(rec)
	rec.ApplyDefaults()
	if err := rec.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.backend.InsertRecord(r.Context(), rec); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidate(t)
	writeData(w, http.StatusCreated, rec)
}

// --- Scrape ---

type scrapeRequest struct {
	Type  string `json:"type"`
	Force bool   `json:"force"`
}

type scrapeSummary struct {
	JobID    string `json:"job_id"`
	Accepted int    `json:"accepted"`
	Rejected int    `json:"rejected"`
	Error    string `json:"error,omitempty"`
}

func summarize(o scraper.Outcome) scrapeSummary {
	sum := scrapeSummary{JobID: o.JobID, Accepted: len(o.Records), Rejected: len(o.Rejected)}
	if o.Err != nil {
		sum.Error = o.Err.Error()
	}
	return sum
}

func (s *Server) triggerScrape(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := decodeBody(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, err)
		return
	}
	if req.Type == "" {
		req.Type = scheduler.DataTypeAll
	}

	var (
		count int
		data  = map[string]any{}
		runs  = map[records.ContentType]scrapeSummary{}
	)
	if req.Type == scheduler.DataTypeAll {
		res := s.scraper.ScrapeAll(r.Context())
		for _, o := range res.Outcomes {
			runs[o.Type] = summarize(o)
		}
		data["news"], data["notices"] = res.News, res.Notices
		data["officers"], data["elections"] = res.Officers, res.Elections
		count = res.Total()
		s.invalidate("")
	} else {
		t, err := records.ParseContentType(req.Type)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: type must be news, notices, officers, elections or all", records.ErrInvalid))
			return
		}
		o := s.scraper.Scrape(r.Context(), t)
		runs[t] = summarize(o)
		data[string(t)] = o.Records
		count = len(o.Records)
		s.invalidate(t)
	}
	if req.Force {
		s.cache.Flush()
	}
	data["runs"] = runs

	loggerFrom(r.Context()).Info("api: scrape triggered", "type", req.Type, "count", count)
	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Data:    data,
		Count:   &count,
		Message: fmt.Sprintf("Successfully scraped %d items", count),
	})
}

func (s *Server) scrapeStatus(w http.ResponseWriter, r *http.Request) {
	runs, err := s.backend.RecentRuns(r.Context(), 10)
	if err != nil {
		writeError(w, r, err)
		return
	}
	running := 0
	for _, run := range runs {
		if run.Status == records.RunRunning {
			running++
		}
	}
	writeData(w, http.StatusOK, map[string]any{
		"recent_runs": runs,
		"running":     running,
		"engine":      s.scraper.Stats(),
	})
}

// --- Admin ---

type dashboard struct {
	Totals          map[records.ContentType]int `json:"totals"`
	LastScrape      *time.Time                  `json:"last_scrape,omitempty"`
	FailedRunsToday int                         `json:"failed_runs_today"`
	ActiveJobs      int                         `json:"active_jobs"`
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	d, err := cache.GetOrSet(r.Context(), s.cache, cache.KeyStats, func(ctx context.Context) (dashboard, error) {
		counts, err := s.backend.Counts(ctx)
		if err != nil {
			return dashboard{}, err
		}
		now := s.now().In(s.config.Location)
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.config.Location)
		rs, err := s.backend.RunStats(ctx, today)
		if err != nil {
			return dashboard{}, err
		}
		return dashboard{
			Totals:          counts,
			LastScrape:      rs.LastCompletedAt,
			FailedRunsToday: rs.FailedSince,
			ActiveJobs:      len(s.jobs.ActiveJobs()),
		}, nil
	}, s.config.StatsTTL)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"dashboard": d,
		"cache":     s.cache.Stats(),
		"scraper":   s.scraper.Stats(),
	})
}

func (s *Server) listJobs(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, s.jobs.Jobs())
}

type jobRequest struct {
	Name     string `json:"name"`
	Schedule string `json:"schedule"`
	DataType string `json:"data_type"`
	Enabled  *bool  `json:"enabled"`
}

// scheduleJob arms or re-arms a job. An empty body restarts an armed job
// with its current config.
func (s *Server) scheduleJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req jobRequest
	err := decodeBody(r, &req)
	if err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, err)
		return
	}

	var (
		armed bool
		cfg   scheduler.JobConfig
	)
	if errors.Is(err, io.EOF) {
		current, ok := s.jobs.Job(id)
		if !ok {
			writeJSON(w, http.StatusNotFound, errorBody{Error: "Not found", Message: "no armed job " + id})
			return
		}
		armed, err = s.jobs.RestartJob(id, current)
		cfg = current
	} else {
		cfg = scheduler.JobConfig{Name: req.Name, Schedule: req.Schedule, DataType: req.DataType, Enabled: true}
		if req.Enabled != nil {
			cfg.Enabled = *req.Enabled
		}
		armed, err = s.jobs.ScheduleJob(id, cfg)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	if armed {
		cfg, _ = s.jobs.Job(id)
	}
	s.cache.Del(cache.KeyStats)
	writeData(w, http.StatusOK, map[string]any{"armed": armed, "job": cfg})
}

func (s *Server) stopJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.jobs.StopJob(id) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "Not found", Message: "no armed job " + id})
		return
	}
	s.cache.Del(cache.KeyStats)
	writeData(w, http.StatusOK, map[string]any{"stopped": id})
}

// --- Helpers ---

// decodeBody decodes a JSON body into v. An empty body yields io.EOF;
// malformed JSON is a validation error.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	var maxErr *http.MaxBytesError
	switch {
	case err == nil, errors.Is(err, io.EOF), errors.As(err, &maxErr):
		return err
	}
	return fmt.Errorf("%w: malformed JSON body: %v", records.ErrInvalid, err)
}

// invalidate drops cached listings of t (all types when t is empty) and
// the dashboard stats.
func (s *Server) invalidate(t records.ContentType) {
	pattern := cache.DataPrefix
	if t != "" {
		pattern = cache.DataKey(string(t), nil)
	}
	s.cache.InvalidatePattern(pattern)
	s.cache.Del(cache.KeyStats)
}
