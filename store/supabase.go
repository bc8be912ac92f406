package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/supabase-community/postgrest-go"
	supabase "github.com/supabase-community/supabase-go"

	"github.com/hazyhaar/ecsportal/idgen"
	"github.com/hazyhaar/ecsportal/records"
)

// SupabaseStore stores records through the PostgREST API of a Supabase
// project. The managed tables use timestamptz columns, so times travel as
// RFC 3339 strings.
type SupabaseStore struct {
	client *supabase.Client
	newID  idgen.Generator
	now    func() time.Time
}

// NewSupabaseStore connects to the project at url with a service-role key.
func NewSupabaseStore(url, key string, opts ...Option) (*SupabaseStore, error) {
	if url == "" || key == "" {
		return nil, fmt.Errorf("store: supabase url and key are required")
	}
	client, err := supabase.NewClient(url, key, nil)
	if err != nil {
		return nil, fmt.Errorf("store: supabase client: %w", err)
	}
	o := buildOptions(opts)
	return &SupabaseStore{client: client, newID: o.newID, now: o.now}, nil
}

// InsertRecords inserts recs in one PostgREST request. PostgREST runs a
// multi-row insert in a single transaction.
func (s *SupabaseStore) InsertRecords(ctx context.Context, t records.ContentType, recs []records.Record) error {
	if len(recs) == 0 {
		return nil
	}
	if _, err := codecFor(t); err != nil {
		return err
	}
	now := s.now()
	for _, r := range recs {
		if err := prepare(r, t, s.newID, now); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, _, err := s.client.From(t.Table()).Insert(recs, false, "", "minimal", "").Execute(); err != nil {
		return fmt.Errorf("store: supabase insert %s: %w", t, err)
	}
	return nil
}

// InsertRecord inserts a single record.
func (s *SupabaseStore) InsertRecord(ctx context.Context, r records.Record) error {
	return s.InsertRecords(ctx, r.Kind(), []records.Record{r})
}

// StartRun inserts a running log.
func (s *SupabaseStore) StartRun(ctx context.Context, run *records.RunLog) error {
	if err := run.Validate(); err != nil {
		return err
	}
	if run.ID == "" {
		run.ID = s.newID()
	}
	if _, _, err := s.client.From("scraping_logs").Insert(run, false, "", "minimal", "").Execute(); err != nil {
		return fmt.Errorf("store: supabase start run: %w", err)
	}
	return nil
}

// FinishRun updates a log still in the running state.
func (s *SupabaseStore) FinishRun(ctx context.Context, run *records.RunLog) error {
	patch := map[string]any{
		"status":         run.Status,
		"items_scraped":  run.ItemsScraped,
		"items_rejected": run.ItemsRejected,
		"error_message":  run.ErrorMessage,
		"completed_at":   run.CompletedAt,
	}
	body, _, err := s.client.From("scraping_logs").
		Update(patch, "representation", "").
		Eq("job_id", run.JobID).
		Eq("status", string(records.RunRunning)).
		Execute()
	if err != nil {
		return fmt.Errorf("store: supabase finish run: %w", err)
	}
	var updated []json.RawMessage
	if err := json.Unmarshal(body, &updated); err == nil && len(updated) == 0 {
		return fmt.Errorf("%w: running job %s", ErrNotFound, run.JobID)
	}
	return nil
}

// RecentRuns returns run logs, newest first.
func (s *SupabaseStore) RecentRuns(ctx context.Context, limit int) ([]records.RunLog, error) {
	if limit <= 0 {
		limit = 10
	}
	body, _, err := s.client.From("scraping_logs").
		Select("*", "", false).
		Order("started_at", &postgrest.OrderOpts{Ascending: false}).
		Limit(limit, "").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("store: supabase recent runs: %w", err)
	}
	var out []records.RunLog
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("store: decode run logs: %w", err)
	}
	return out, nil
}

// RunStats reports the latest completion time and the failures since since.
func (s *SupabaseStore) RunStats(ctx context.Context, since time.Time) (RunStats, error) {
	var st RunStats
	body, _, err := s.client.From("scraping_logs").
		Select("completed_at", "", false).
		Eq("status", string(records.RunCompleted)).
		Order("completed_at", &postgrest.OrderOpts{Ascending: false}).
		Limit(1, "").
		Execute()
	if err != nil {
		return st, fmt.Errorf("store: supabase run stats: %w", err)
	}
	var last []struct {
		CompletedAt *time.Time `json:"completed_at"`
	}
	if err := json.Unmarshal(body, &last); err != nil {
		return st, fmt.Errorf("store: decode run stats: %w", err)
	}
	if len(last) > 0 {
		st.LastCompletedAt = last[0].CompletedAt
	}

	_, n, err := s.client.From("scraping_logs").
		Select("id", "exact", true).
		Eq("status", string(records.RunFailed)).
		Gte("started_at", since.UTC().Format(time.RFC3339)).
		Execute()
	if err != nil {
		return st, fmt.Errorf("store: supabase run stats: %w", err)
	}
	st.FailedSince = int(n)
	return st, nil
}

// Counts returns the number of rows per content type.
func (s *SupabaseStore) Counts(ctx context.Context) (map[records.ContentType]int, error) {
	out := make(map[records.ContentType]int, len(records.ContentTypes))
	for _, t := range records.ContentTypes {
		_, n, err := s.client.From(t.Table()).Select("id", "exact", true).Execute()
		if err != nil {
			return nil, fmt.Errorf("store: supabase count %s: %w", t, err)
		}
		out[t] = int(n)
	}
	return out, nil
}

// List runs q against the PostgREST resource of q.Type.
func (s *SupabaseStore) List(ctx context.Context, q records.Query) (records.Page, error) {
	if _, err := codecFor(q.Type); err != nil {
		return records.Page{}, err
	}
	f := s.client.From(q.Type.Table()).Select("*", "exact", false)
	for _, c := range q.Where {
		v := restValue(c.Value)
		switch c.Op {
		case records.OpEq:
			f = f.Eq(c.Column, v)
		case records.OpGte:
			f = f.Gte(c.Column, v)
		case records.OpLt:
			f = f.Lt(c.Column, v)
		default:
			return records.Page{}, fmt.Errorf("%w: unknown operator %q", records.ErrInvalid, c.Op)
		}
	}
	if term := restSearchTerm(q.Search); term != "" && len(q.SearchColumns) > 0 {
		ors := make([]string, len(q.SearchColumns))
		for i, col := range q.SearchColumns {
			ors[i] = col + ".ilike.%" + term + "%"
		}
		f = f.Or(strings.Join(ors, ","), "")
	}
	f = f.Order(q.SortBy, &postgrest.OrderOpts{Ascending: q.Ascending}).
		Range(q.Offset, q.Offset+q.Limit-1, "")

	body, total, err := f.Execute()
	if err != nil {
		return records.Page{}, fmt.Errorf("store: supabase list %s: %w", q.Type, err)
	}
	items, err := decodeRecords(q.Type, body)
	if err != nil {
		return records.Page{}, err
	}
	return records.Page{Items: items, Total: int(total)}, nil
}

func restValue(v any) string {
	switch x := v.(type) {
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	default:
		return fmt.Sprint(x)
	}
}

// restSearchTerm drops the characters that delimit PostgREST logic trees.
func restSearchTerm(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ',', '(', ')', '"':
			return -1
		}
		return r
	}, s)
}

func decodeRecords(t records.ContentType, body []byte) ([]records.Record, error) {
	switch t {
	case records.News:
		return decodeAs[records.NewsItem](body)
	case records.Notices:
		return decodeAs[records.NoticeItem](body)
	case records.Officers:
		return decodeAs[records.OfficerItem](body)
	case records.Elections:
		return decodeAs[records.ElectionItem](body)
	}
	return nil, fmt.Errorf("%w: unknown content type %q", records.ErrInvalid, t)
}

func decodeAs[T any, P interface {
	*T
	records.Record
}](body []byte) ([]records.Record, error) {
	var items []T
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("store: decode rows: %w", err)
	}
	out := make([]records.Record, len(items))
	for i := range items {
		out[i] = P(&items[i])
	}
	return out, nil
}
