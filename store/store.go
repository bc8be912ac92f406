// Package store persists content records and scraping run logs.
//
// SQLStore speaks SQL over database/sql (SQLite or Postgres, see dbopen).
// SupabaseStore speaks PostgREST to a managed Supabase project. Both expose
// the same method set.
package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a run log does not exist or is not running.
var ErrNotFound = errors.New("store: not found")

// RunStats summarises recent scraping activity.
type RunStats struct {
	LastCompletedAt *time.Time `json:"last_completed_at,omitempty"`
	FailedSince     int        `json:"failed_since"`
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func optMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}
