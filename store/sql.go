package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/hazyhaar/ecsportal/dbopen"
	"github.com/hazyhaar/ecsportal/idgen"
	"github.com/hazyhaar/ecsportal/records"
)

// SQLStore stores records in SQLite or Postgres.
type SQLStore struct {
	DB      *sql.DB
	dialect dbopen.Dialect
	newID   idgen.Generator
	now     func() time.Time
}

// Option customises a store.
type Option func(*options)

type options struct {
	newID idgen.Generator
	now   func() time.Time
}

// WithIDGenerator overrides the UUIDv7 record ID generator.
func WithIDGenerator(g idgen.Generator) Option { return func(o *options) { o.newID = g } }

// WithClock overrides time.Now for created/updated stamps.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

func buildOptions(opts []Option) options {
	o := options{newID: idgen.Default, now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// NewSQLStore wraps an already-opened database. Call ApplySchema first.
func NewSQLStore(db *sql.DB, dialect dbopen.Dialect, opts ...Option) *SQLStore {
	o := buildOptions(opts)
	return &SQLStore{DB: db, dialect: dialect, newID: o.newID, now: o.now}
}

// rebind turns ? placeholders into $1, $2... for Postgres.
func (s *SQLStore) rebind(q string) string {
	if s.dialect != dbopen.Postgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// prepare validates r and assigns its ID and timestamps.
func prepare(r records.Record, t records.ContentType, newID idgen.Generator, now time.Time) error {
	if r.Kind() != t {
		return fmt.Errorf("%w: %s record in %s batch", records.ErrInvalid, r.Kind(), t)
	}
	r.ApplyDefaults()
	if err := r.Validate(); err != nil {
		return err
	}
	if r.GetID() == "" {
		r.SetID(newID())
	}
	r.Stamp(now)
	return nil
}

// InsertRecords inserts recs into the table of t in one transaction. Every
// record is validated first; one invalid record aborts the whole batch.
func (s *SQLStore) InsertRecords(ctx context.Context, t records.ContentType, recs []records.Record) error {
	if len(recs) == 0 {
		return nil
	}
	c, err := codecFor(t)
	if err != nil {
		return err
	}
	now := s.now()
	for _, r := range recs {
		if err := prepare(r, t, s.newID, now); err != nil {
			return err
		}
	}

	stmt := s.rebind(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		t.Table(), strings.Join(c.columns, ", "), placeholders(len(c.columns))))
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		for _, r := range recs {
			if _, err := tx.ExecContext(ctx, stmt, c.values(r)...); err != nil {
				return fmt.Errorf("store: insert %s: %w", t, err)
			}
		}
		return nil
	})
}

// InsertRecord inserts a single record.
func (s *SQLStore) InsertRecord(ctx context.Context, r records.Record) error {
	return s.InsertRecords(ctx, r.Kind(), []records.Record{r})
}

// StartRun inserts a running log.
func (s *SQLStore) StartRun(ctx context.Context, run *records.RunLog) error {
	if err := run.Validate(); err != nil {
		return err
	}
	if run.ID == "" {
		run.ID = s.newID()
	}
	_, err := dbopen.Exec(ctx, s.DB, s.rebind(
		`INSERT INTO scraping_logs (id, job_id, target_type, status, items_scraped,
		items_rejected, error_message, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		run.ID, run.JobID, string(run.TargetType), string(run.Status), run.ItemsScraped,
		run.ItemsRejected, run.ErrorMessage, toMillis(run.StartedAt), optMillis(run.CompletedAt))
	if err != nil {
		return fmt.Errorf("store: start run: %w", err)
	}
	return nil
}

// FinishRun writes the terminal state of run. Only a log still in the
// running state is updated; otherwise ErrNotFound is returned.
func (s *SQLStore) FinishRun(ctx context.Context, run *records.RunLog) error {
	res, err := dbopen.Exec(ctx, s.DB, s.rebind(
		`UPDATE scraping_logs SET status = ?, items_scraped = ?, items_rejected = ?,
		error_message = ?, completed_at = ?
		WHERE job_id = ? AND status = 'running'`),
		string(run.Status), run.ItemsScraped, run.ItemsRejected, run.ErrorMessage,
		optMillis(run.CompletedAt), run.JobID)
	if err != nil {
		return fmt.Errorf("store: finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: running job %s", ErrNotFound, run.JobID)
	}
	return nil
}

// RecentRuns returns run logs, newest first.
func (s *SQLStore) RecentRuns(ctx context.Context, limit int) ([]records.RunLog, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.DB.QueryContext(ctx, s.rebind(
		`SELECT id, job_id, target_type, status, items_scraped, items_rejected,
		error_message, started_at, completed_at
		FROM scraping_logs ORDER BY started_at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent runs: %w", err)
	}
	defer rows.Close()

	var out []records.RunLog
	for rows.Next() {
		var r records.RunLog
		var target, status string
		var scraped, rejected, started int64
		var completed sql.NullInt64
		if err := rows.Scan(&r.ID, &r.JobID, &target, &status, &scraped, &rejected,
			&r.ErrorMessage, &started, &completed); err != nil {
			return nil, fmt.Errorf("scan run log: %w", err)
		}
		r.TargetType = records.ContentType(target)
		r.Status = records.RunStatus(status)
		r.ItemsScraped = int(scraped)
		r.ItemsRejected = int(rejected)
		r.StartedAt = fromMillis(started)
		r.CompletedAt = nullTime(completed)
		out = append(out, r)
	}
	return out, rows.Err()
}

// RunStats reports the latest completion time and the failures since since.
func (s *SQLStore) RunStats(ctx context.Context, since time.Time) (RunStats, error) {
	var st RunStats
	var last sql.NullInt64
	if err := s.DB.QueryRowContext(ctx,
		`SELECT MAX(completed_at) FROM scraping_logs WHERE status = 'completed'`).Scan(&last); err != nil {
		return st, fmt.Errorf("store: run stats: %w", err)
	}
	st.LastCompletedAt = nullTime(last)
	if err := s.DB.QueryRowContext(ctx, s.rebind(
		`SELECT COUNT(*) FROM scraping_logs WHERE status = 'failed' AND started_at >= ?`),
		toMillis(since)).Scan(&st.FailedSince); err != nil {
		return st, fmt.Errorf("store: run stats: %w", err)
	}
	return st, nil
}

// Counts returns the number of rows per content type.
func (s *SQLStore) Counts(ctx context.Context) (map[records.ContentType]int, error) {
	out := make(map[records.ContentType]int, len(records.ContentTypes))
	for _, t := range records.ContentTypes {
		var n int
		if err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+t.Table()).Scan(&n); err != nil {
			return nil, fmt.Errorf("store: count %s: %w", t, err)
		}
		out[t] = n
	}
	return out, nil
}

// List runs q and returns one page plus the total matching rows.
func (s *SQLStore) List(ctx context.Context, q records.Query) (records.Page, error) {
	c, err := codecFor(q.Type)
	if err != nil {
		return records.Page{}, err
	}
	where, args, err := s.whereClause(c, q)
	if err != nil {
		return records.Page{}, err
	}

	var page records.Page
	if err := s.DB.QueryRowContext(ctx, s.rebind("SELECT COUNT(*) FROM "+q.Type.Table()+where),
		args...).Scan(&page.Total); err != nil {
		return page, fmt.Errorf("store: count %s: %w", q.Type, err)
	}

	dir := "DESC"
	if q.Ascending {
		dir = "ASC"
	}
	stmt := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s %s NULLS LAST, id %s LIMIT ? OFFSET ?",
		strings.Join(c.columns, ", "), q.Type.Table(), where, q.SortBy, dir, dir)
	rows, err := s.DB.QueryContext(ctx, s.rebind(stmt), append(args, q.Limit, q.Offset)...)
	if err != nil {
		return page, fmt.Errorf("store: list %s: %w", q.Type, err)
	}
	defer rows.Close()

	page.Items = []records.Record{}
	for rows.Next() {
		r, err := c.scan(rows)
		if err != nil {
			return page, err
		}
		page.Items = append(page.Items, r)
	}
	return page, rows.Err()
}

func (s *SQLStore) whereClause(c codec, q records.Query) (string, []any, error) {
	known := func(col string) bool { return slices.Contains(c.columns, col) }
	if !known(q.SortBy) {
		return "", nil, fmt.Errorf("%w: unknown sort column %q", records.ErrInvalid, q.SortBy)
	}

	var parts []string
	var args []any
	for _, cond := range q.Where {
		if !known(cond.Column) {
			return "", nil, fmt.Errorf("%w: unknown column %q", records.ErrInvalid, cond.Column)
		}
		var op string
		switch cond.Op {
		case records.OpEq:
			op = "="
		case records.OpGte:
			op = ">="
		case records.OpLt:
			op = "<"
		default:
			return "", nil, fmt.Errorf("%w: unknown operator %q", records.ErrInvalid, cond.Op)
		}
		parts = append(parts, cond.Column+" "+op+" ?")
		args = append(args, sqlValue(cond.Value))
	}

	if q.Search != "" && len(q.SearchColumns) > 0 {
		like := "LIKE"
		if s.dialect == dbopen.Postgres {
			like = "ILIKE"
		}
		pattern := "%" + escapeLike(q.Search) + "%"
		var ors []string
		for _, col := range q.SearchColumns {
			if !known(col) {
				return "", nil, fmt.Errorf("%w: unknown column %q", records.ErrInvalid, col)
			}
			ors = append(ors, col+" "+like+` ? ESCAPE '\'`)
			args = append(args, pattern)
		}
		parts = append(parts, "("+strings.Join(ors, " OR ")+")")
	}

	if len(parts) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

func sqlValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return toMillis(t)
	}
	return v
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// IsNotFound reports whether err is ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
