// Package scheduler fires named cron jobs that run the scraper and keep the
// cache fresh. One loop goroutine sleeps until the earliest armed job is
// due; each fired job runs in its own goroutine.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/hazyhaar/ecsportal/cache"
	"github.com/hazyhaar/ecsportal/records"
	"github.com/hazyhaar/ecsportal/scraper"
)

// DataTypeAll and DataTypeCache are the job targets besides the four
// content types.
const (
	DataTypeAll   = "all"
	DataTypeCache = "cache"
)

// Scraper is the part of the scraper engine the scheduler drives.
type Scraper interface {
	Scrape(ctx context.Context, t records.ContentType) scraper.Outcome
	ScrapeAll(ctx context.Context) scraper.Results
}

// Cache is the part of the cache the scheduler maintains.
type Cache interface {
	InvalidatePattern(substr string) int
	EvictOlderThan(age time.Duration) int
	Del(key string) bool
}

// JobConfig describes one recurring job.
type JobConfig struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Schedule string `json:"schedule"`
	// DataType is a content type, "all" or "cache".
	DataType  string    `json:"data_type"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JobStatus is an armed job and its run history.
type JobStatus struct {
	JobConfig
	NextRun   time.Time  `json:"next_run"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	LastError string     `json:"last_error,omitempty"`
	Busy      bool       `json:"busy"`
}

// Config configures the scheduler.
type Config struct {
	// Location is the zone cron expressions are evaluated in.
	// Default: Asia/Dhaka, falling back to UTC if the zone database is missing.
	Location *time.Location
	// CacheMaxAge is the age beyond which the cache job evicts entries.
	// Default: 24h.
	CacheMaxAge time.Duration
	Now         func() time.Time
}

func (c *Config) defaults() {
	if c.Location == nil {
		loc, err := time.LoadLocation("Asia/Dhaka")
		if err != nil {
			loc = time.UTC
		}
		c.Location = loc
	}
	if c.CacheMaxAge <= 0 {
		c.CacheMaxAge = 24 * time.Hour
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

type job struct {
	cfg   JobConfig
	sched *Schedule
	next  time.Time
}

// history survives re-registration of the same ID.
type history struct {
	lastRun *time.Time
	lastErr string
	busy    bool
}

// Scheduler owns the job registry.
type Scheduler struct {
	scraper Scraper
	cache   Cache
	config  Config
	logger  *slog.Logger

	mu      sync.Mutex
	jobs    map[string]*job
	history map[string]*history
	wake    chan struct{}
	running sync.WaitGroup
}

// New creates a Scheduler. Jobs are armed by ScheduleJob and fire once Run
// is called.
func New(scr Scraper, c Cache, cfg Config, logger *slog.Logger) *Scheduler {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		scraper: scr,
		cache:   c,
		config:  cfg,
		logger:  logger,
		jobs:    make(map[string]*job),
		history: make(map[string]*history),
		wake:    make(chan struct{}, 1),
	}
}

// Location returns the zone jobs are evaluated in.
func (s *Scheduler) Location() *time.Location { return s.config.Location }

// ScheduleJob arms id with cfg, replacing any job already under id. A
// disabled config only unregisters. The result reports whether a job was
// armed.
func (s *Scheduler) ScheduleJob(id string, cfg JobConfig) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("%w: empty job id", ErrInvalidSchedule)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.jobs[id]
	delete(s.jobs, id)
	if !cfg.Enabled {
		s.logger.Info("scheduler: job disabled", "job", id)
		s.notify()
		return false, nil
	}
	if err := validDataType(cfg.DataType); err != nil {
		return false, err
	}
	sched, err := ParseCron(cfg.Schedule, s.config.Location)
	if err != nil {
		s.logger.Error("scheduler: invalid cron expression", "job", id, "schedule", cfg.Schedule, "error", err)
		return false, err
	}

	now := s.config.Now()
	cfg.ID = id
	if cfg.Name == "" {
		cfg.Name = id
	}
	cfg.UpdatedAt = now
	switch {
	case existed:
		cfg.CreatedAt = prev.cfg.CreatedAt
	case cfg.CreatedAt.IsZero():
		cfg.CreatedAt = now
	}
	j := &job{cfg: cfg, sched: sched, next: sched.Next(now)}
	s.jobs[id] = j
	if s.history[id] == nil {
		s.history[id] = &history{}
	}
	s.notify()
	s.logger.Info("scheduler: job scheduled", "job", id, "schedule", sched.String(),
		"data_type", cfg.DataType, "next_run", j.next)
	return true, nil
}

// StopJob unregisters id. It returns false if id was not armed.
func (s *Scheduler) StopJob(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return false
	}
	delete(s.jobs, id)
	s.notify()
	s.logger.Info("scheduler: job stopped", "job", id)
	return true
}

// StopAll unregisters every job.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.jobs)
	clear(s.jobs)
	s.notify()
	s.logger.Info("scheduler: all jobs stopped", "count", n)
}

// RestartJob stops id and arms it again with cfg.
func (s *Scheduler) RestartJob(id string, cfg JobConfig) (bool, error) {
	s.StopJob(id)
	return s.ScheduleJob(id, cfg)
}

// ActiveJobs returns the armed job IDs, sorted.
func (s *Scheduler) ActiveJobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// IsJobRunning reports whether id is armed.
func (s *Scheduler) IsJobRunning(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[id]
	return ok
}

// Job returns the config of an armed job.
func (s *Scheduler) Job(id string) (JobConfig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return JobConfig{}, false
	}
	return j.cfg, true
}

// Jobs returns the status of every armed job, sorted by ID.
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobStatus, 0, len(s.jobs))
	for id, j := range s.jobs {
		st := JobStatus{JobConfig: j.cfg, NextRun: j.next}
		if h := s.history[id]; h != nil {
			st.LastRun, st.LastError, st.Busy = h.lastRun, h.lastErr, h.busy
		}
		out = append(out, st)
	}
	slices.SortFunc(out, func(a, b JobStatus) int {
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out
}

// DefaultJobs returns the standard job set.
func DefaultJobs() []JobConfig {
	return []JobConfig{
		{ID: "news-scraping", Name: "News scraping", Schedule: Every2Hours, DataType: string(records.News), Enabled: true},
		{ID: "notices-scraping", Name: "Notices scraping", Schedule: Every4Hours, DataType: string(records.Notices), Enabled: true},
		{ID: "officers-scraping", Name: "Officers scraping", Schedule: DailyAt6AM, DataType: string(records.Officers), Enabled: true},
		{ID: "elections-scraping", Name: "Elections scraping", Schedule: DailyAt8AM, DataType: string(records.Elections), Enabled: true},
		{ID: "cache-cleanup", Name: "Cache cleanup", Schedule: Every6Hours, DataType: DataTypeCache, Enabled: true},
	}
}

// InitializeDefaultSchedules arms DefaultJobs.
func (s *Scheduler) InitializeDefaultSchedules() error {
	for _, cfg := range DefaultJobs() {
		if _, err := s.ScheduleJob(cfg.ID, cfg); err != nil {
			return err
		}
	}
	s.logger.Info("scheduler: default schedules initialized", "jobs", len(DefaultJobs()))
	return nil
}

// Run fires due jobs until ctx is cancelled, then waits for jobs in flight.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler: started", "location", s.config.Location.String())
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	for {
		now := s.config.Now()
		s.tick(ctx, now)

		wait := time.Hour
		if next, ok := s.earliest(); ok {
			wait = max(next.Sub(now), 0)
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			s.running.Wait()
			s.logger.Info("scheduler: stopped")
			return nil
		case <-s.wake:
		case <-timer.C:
		}
	}
}

// tick starts every job due at now and advances its next fire time. A job
// whose previous run is still going skips this firing. It returns the IDs
// started.
func (s *Scheduler) tick(ctx context.Context, now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var fired []string
	for id, j := range s.jobs {
		if j.next.IsZero() || j.next.After(now) {
			continue
		}
		j.next = j.sched.Next(now)
		h := s.history[id]
		if h.busy {
			s.logger.Warn("scheduler: previous run still in progress, skipping", "job", id)
			continue
		}
		h.busy = true
		fired = append(fired, id)
		s.running.Add(1)
		go s.fire(ctx, j.cfg)
	}
	return fired
}

func (s *Scheduler) earliest() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var next time.Time
	for _, j := range s.jobs {
		if j.next.IsZero() {
			continue
		}
		if next.IsZero() || j.next.Before(next) {
			next = j.next
		}
	}
	return next, !next.IsZero()
}

func (s *Scheduler) fire(ctx context.Context, cfg JobConfig) {
	defer s.running.Done()
	start := s.config.Now()
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		s.finish(cfg.ID, start, err)
	}()
	s.logger.Info("scheduler: job started", "job", cfg.ID, "data_type", cfg.DataType)
	err = s.dispatch(ctx, cfg.DataType)
}

func (s *Scheduler) finish(id string, start time.Time, err error) {
	s.mu.Lock()
	h := s.history[id]
	h.busy = false
	h.lastRun = &start
	h.lastErr = ""
	if err != nil {
		h.lastErr = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("scheduler: job failed", "job", id, "error", err)
		return
	}
	s.logger.Info("scheduler: job completed", "job", id, "duration", s.config.Now().Sub(start))
}

// dispatch runs the action for dataType and invalidates the matching cache
// entries afterwards.
func (s *Scheduler) dispatch(ctx context.Context, dataType string) error {
	switch dataType {
	case DataTypeCache:
		n := s.cache.EvictOlderThan(s.config.CacheMaxAge)
		s.logger.Info("scheduler: cache cleanup", "evicted", n)
		return nil
	case DataTypeAll:
		res := s.scraper.ScrapeAll(ctx)
		n := s.cache.InvalidatePattern(cache.DataPrefix)
		s.cache.Del(cache.KeyStats)
		s.logger.Debug("scheduler: cache invalidated", "pattern", cache.DataPrefix, "keys", n)
		return res.Err()
	}
	t, err := records.ParseContentType(dataType)
	if err != nil {
		return err
	}
	out := s.scraper.Scrape(ctx, t)
	tag := cache.DataKey(string(t), nil)
	n := s.cache.InvalidatePattern(tag)
	// The dashboard reports the last scrape and today's failures.
	s.cache.Del(cache.KeyStats)
	s.logger.Debug("scheduler: cache invalidated", "pattern", tag, "keys", n)
	return out.Err
}

// notify wakes the loop without blocking. Callers hold mu.
func (s *Scheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func validDataType(dt string) error {
	if dt == DataTypeAll || dt == DataTypeCache {
		return nil
	}
	if _, err := records.ParseContentType(dt); err != nil {
		return fmt.Errorf("%w: data type %q", ErrInvalidSchedule, dt)
	}
	return nil
}
