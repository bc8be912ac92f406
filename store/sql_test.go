package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hazyhaar/ecsportal/dbopen"
	"github.com/hazyhaar/ecsportal/idgen"
	"github.com/hazyhaar/ecsportal/records"
)

var t0 = time.Date(2025, 10, 15, 10, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	db := dbopen.OpenMemory(t)
	if err := ApplySchema(context.Background(), db); err != nil {
		t.Fatalf("schema: %v", err)
	}
	return NewSQLStore(db, dbopen.SQLite,
		WithIDGenerator(idgen.Sequence("rec_")),
		WithClock(func() time.Time { return t0 }))
}

func day(d int) *time.Time {
	v := time.Date(2025, 10, d, 0, 0, 0, 0, time.UTC)
	return &v
}

// must unwraps a filter's Query result; filters in these tests are valid.
func must(q records.Query, err error) records.Query {
	if err != nil {
		panic(err)
	}
	return q
}

func mustList(t *testing.T, s *SQLStore, q records.Query) records.Page {
	t.Helper()
	page, err := s.List(context.Background(), q)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	return page
}

func seedNews(t *testing.T, s *SQLStore) {
	t.Helper()
	recs := []records.Record{
		&records.NewsItem{Title: "Voter list update", TitleBN: "ভোটার তালিকা হালনাগাদ", Category: "voter", PublishedDate: day(10)},
		&records.NewsItem{Title: "By-election schedule", Category: "election", PublishedDate: day(12)},
		&records.NewsItem{Title: "Turnout reached 100% in pilot", Category: "election", PublishedDate: day(14)},
	}
	if err := s.InsertRecords(context.Background(), records.News, recs); err != nil {
		t.Fatalf("insert: %v", err)
	}
}

func TestInsertRecords_AssignsIDAndStamps(t *testing.T) {
	s := newTestStore(t)
	n := &records.NewsItem{Title: "Commission meeting held"}
	if err := s.InsertRecords(context.Background(), records.News, []records.Record{n}); err != nil {
		t.Fatal(err)
	}
	if n.ID != "rec_1" {
		t.Fatalf("id = %q", n.ID)
	}
	if !n.CreatedAt.Equal(t0) || !n.UpdatedAt.Equal(t0) {
		t.Fatalf("stamps = %v / %v", n.CreatedAt, n.UpdatedAt)
	}

	page := mustList(t, s, must(records.NewsFilter{}.Query(records.Pagination{}.Normalize())))
	if page.Total != 1 || page.Items[0].GetID() != "rec_1" {
		t.Fatalf("page = %+v", page)
	}
	got := page.Items[0].(*records.NewsItem)
	if got.Title != "Commission meeting held" || !got.CreatedAt.Equal(t0) {
		t.Fatalf("round trip = %+v", got)
	}
}

func TestInsertRecords_BatchIsAtomic(t *testing.T) {
	// WHAT: one invalid record aborts the whole batch.
	// WHY: a run either persists all accepted records or none.
	s := newTestStore(t)
	recs := []records.Record{
		&records.NoticeItem{Title: "Valid notice"},
		&records.NoticeItem{Title: "Bad priority", Priority: "urgent"},
	}
	err := s.InsertRecords(context.Background(), records.Notices, recs)
	if !errors.Is(err, records.ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
	counts, err := s.Counts(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if counts[records.Notices] != 0 {
		t.Fatalf("notices = %d, want 0", counts[records.Notices])
	}
}

func TestInsertRecords_KindMismatch(t *testing.T) {
	s := newTestStore(t)
	err := s.InsertRecords(context.Background(), records.News, []records.Record{&records.OfficerItem{Name: "A. Rahman"}})
	if !errors.Is(err, records.ErrInvalid) {
		t.Fatalf("err = %v", err)
	}
}

func TestInsertRecord_AppliesDefaults(t *testing.T) {
	s := newTestStore(t)
	n := &records.NoticeItem{Title: "Office closed"}
	if err := s.InsertRecord(context.Background(), n); err != nil {
		t.Fatal(err)
	}
	if n.Priority != records.PriorityMedium {
		t.Fatalf("priority = %q", n.Priority)
	}
}

func TestList_DefaultOrderAndPaging(t *testing.T) {
	s := newTestStore(t)
	seedNews(t, s)

	page := mustList(t, s, must(records.NewsFilter{}.Query(records.Pagination{Page: 1, Limit: 2})))
	if page.Total != 3 || len(page.Items) != 2 {
		t.Fatalf("total=%d items=%d", page.Total, len(page.Items))
	}
	if got := page.Items[0].Headline(); got != "Turnout reached 100% in pilot" {
		t.Fatalf("first = %q, want newest", got)
	}

	page = mustList(t, s, must(records.NewsFilter{}.Query(records.Pagination{Page: 2, Limit: 2})))
	if len(page.Items) != 1 || page.Items[0].Headline() != "Voter list update" {
		t.Fatalf("page 2 = %+v", page.Items)
	}
}

func TestList_Filters(t *testing.T) {
	s := newTestStore(t)
	seedNews(t, s)
	p := records.Pagination{}.Normalize()

	page := mustList(t, s, must(records.NewsFilter{Category: "election"}.Query(p)))
	if page.Total != 2 {
		t.Fatalf("category total = %d", page.Total)
	}

	// date_to is inclusive of the whole day.
	page = mustList(t, s, must(records.NewsFilter{DateFrom: day(10), DateTo: day(12)}.Query(p)))
	if page.Total != 2 {
		t.Fatalf("range total = %d", page.Total)
	}

	page = mustList(t, s, must(records.NewsFilter{Search: "schedule", Language: "en"}.Query(p)))
	if page.Total != 1 || page.Items[0].Headline() != "By-election schedule" {
		t.Fatalf("search = %+v", page.Items)
	}

	page = mustList(t, s, must(records.NewsFilter{Search: "ভোটার"}.Query(p)))
	if page.Total != 1 {
		t.Fatalf("bengali search total = %d", page.Total)
	}
}

func TestList_SearchEscapesWildcards(t *testing.T) {
	// WHAT: % in the search term matches a literal percent sign.
	s := newTestStore(t)
	seedNews(t, s)
	page := mustList(t, s, must(records.NewsFilter{Search: "100%", Language: "en"}.Query(records.Pagination{}.Normalize())))
	if page.Total != 1 {
		t.Fatalf("total = %d, want 1", page.Total)
	}
	page = mustList(t, s, must(records.NewsFilter{Search: "%", Language: "en"}.Query(records.Pagination{}.Normalize())))
	if page.Total != 1 {
		t.Fatalf("bare %% total = %d, want 1", page.Total)
	}
}

func TestList_OfficersAscending(t *testing.T) {
	s := newTestStore(t)
	recs := []records.Record{
		&records.OfficerItem{Name: "Deputy Secretary", Department: "Admin", HierarchyLevel: 3},
		&records.OfficerItem{Name: "Chief Commissioner", Department: "Commission", HierarchyLevel: 1},
		&records.OfficerItem{Name: "Senior Secretary", Department: "Admin", HierarchyLevel: 2},
	}
	if err := s.InsertRecords(context.Background(), records.Officers, recs); err != nil {
		t.Fatal(err)
	}
	p := records.Pagination{}.Normalize()

	page := mustList(t, s, must(records.OfficerFilter{}.Query(p)))
	if page.Items[0].Headline() != "Chief Commissioner" {
		t.Fatalf("first = %q", page.Items[0].Headline())
	}

	lvl := 2
	page = mustList(t, s, must(records.OfficerFilter{HierarchyLevel: &lvl}.Query(p)))
	if page.Total != 1 || page.Items[0].Headline() != "Senior Secretary" {
		t.Fatalf("level filter = %+v", page.Items)
	}

	page = mustList(t, s, must(records.OfficerFilter{Department: "Admin"}.Query(p)))
	if page.Total != 2 {
		t.Fatalf("department total = %d", page.Total)
	}
}

func TestList_ElectionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	e := &records.ElectionItem{
		Title:        "Dhaka-10 by-election",
		ElectionDate: "2025-11-02",
		Results:      json.RawMessage(`{"turnout":41.2}`),
	}
	if err := s.InsertRecord(context.Background(), e); err != nil {
		t.Fatal(err)
	}
	page := mustList(t, s, must(records.ElectionFilter{Status: records.StatusUpcoming}.Query(records.Pagination{}.Normalize())))
	if page.Total != 1 {
		t.Fatalf("total = %d", page.Total)
	}
	got := page.Items[0].(*records.ElectionItem)
	if got.ElectionDate != "2025-11-02" || string(got.Results) != `{"turnout":41.2}` {
		t.Fatalf("round trip = %+v", got)
	}
}

func TestList_RejectsUnknownColumns(t *testing.T) {
	s := newTestStore(t)
	_, err := s.List(context.Background(), records.Query{Type: records.News, SortBy: "title; DROP TABLE news", Limit: 10})
	if !errors.Is(err, records.ErrInvalid) {
		t.Fatalf("sort err = %v", err)
	}
	_, err = s.List(context.Background(), records.Query{
		Type: records.News, SortBy: "title", Limit: 10,
		Where: []records.Condition{{Column: "password", Op: records.OpEq, Value: "x"}},
	})
	if !errors.Is(err, records.ErrInvalid) {
		t.Fatalf("where err = %v", err)
	}
}

func TestRunLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ok := records.NewRunLog("job_ok", records.News, t0)
	failed := records.NewRunLog("job_failed", records.Notices, t0.Add(time.Minute))
	for _, r := range []*records.RunLog{ok, failed} {
		if err := s.StartRun(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	if err := ok.Finish(5, 1, nil, t0.Add(30*time.Second)); err != nil {
		t.Fatal(err)
	}
	if err := s.FinishRun(ctx, ok); err != nil {
		t.Fatal(err)
	}
	if err := failed.Finish(0, 0, errors.New("fetch: timeout"), t0.Add(2*time.Minute)); err != nil {
		t.Fatal(err)
	}
	if err := s.FinishRun(ctx, failed); err != nil {
		t.Fatal(err)
	}

	// A finished log is no longer running.
	if err := s.FinishRun(ctx, ok); !IsNotFound(err) {
		t.Fatalf("second finish err = %v, want ErrNotFound", err)
	}

	runs, err := s.RecentRuns(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].JobID != "job_failed" {
		t.Fatalf("runs = %+v", runs)
	}
	if runs[0].Status != records.RunFailed || runs[0].ErrorMessage != "fetch: timeout" {
		t.Fatalf("failed run = %+v", runs[0])
	}
	if runs[1].ItemsScraped != 5 || runs[1].ItemsRejected != 1 || runs[1].CompletedAt == nil {
		t.Fatalf("ok run = %+v", runs[1])
	}

	st, err := s.RunStats(ctx, t0)
	if err != nil {
		t.Fatal(err)
	}
	if st.FailedSince != 1 || st.LastCompletedAt == nil || !st.LastCompletedAt.Equal(t0.Add(30*time.Second)) {
		t.Fatalf("stats = %+v", st)
	}
	st, err = s.RunStats(ctx, t0.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if st.FailedSince != 0 {
		t.Fatalf("failed since later = %d", st.FailedSince)
	}
}

func TestStartRun_Invalid(t *testing.T) {
	s := newTestStore(t)
	err := s.StartRun(context.Background(), &records.RunLog{TargetType: records.News, Status: records.RunRunning})
	if !errors.Is(err, records.ErrInvalid) {
		t.Fatalf("err = %v", err)
	}
}

func TestRebind(t *testing.T) {
	pg := NewSQLStore(nil, dbopen.Postgres)
	if got := pg.rebind("a = ? AND b LIKE ?"); got != "a = $1 AND b LIKE $2" {
		t.Fatalf("postgres = %q", got)
	}
	lite := NewSQLStore(nil, dbopen.SQLite)
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Fatalf("sqlite = %q", got)
	}
}
