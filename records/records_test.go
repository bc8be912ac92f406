package records

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

func TestParseContentType(t *testing.T) {
	for _, ct := range ContentTypes {
		got, err := ParseContentType(string(ct))
		if err != nil || got != ct {
			t.Fatalf("ParseContentType(%q) = %q, %v", ct, got, err)
		}
		if ct.New().Kind() != ct {
			t.Fatalf("%s.New().Kind() mismatch", ct)
		}
	}
	if _, err := ParseContentType("all"); !errors.Is(err, ErrInvalid) {
		t.Fatalf("ParseContentType(all): got %v, want ErrInvalid", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		rec   Record
		field string // empty means valid
	}{
		{"news ok", &NewsItem{Title: "Voter list update published", ImageURL: "https://www.ecs.gov.bd/a.jpg"}, ""},
		{"news empty title", &NewsItem{Title: "   "}, "title"},
		{"news long title", &NewsItem{Title: strings.Repeat("x", 501)}, "title"},
		{"news bengali title at limit", &NewsItem{Title: strings.Repeat("ন", 500)}, ""},
		{"news relative image", &NewsItem{Title: "Some headline text", ImageURL: "/img/a.jpg"}, "image_url"},
		{"notice bad priority", &NoticeItem{Title: "Notice", Priority: "urgent"}, "priority"},
		{"notice bad file", &NoticeItem{Title: "Notice", Priority: PriorityLow, FileURL: "ftp://x/y.pdf"}, "file_url"},
		{"officer ok", &OfficerItem{Name: "Md. Rahman", Email: "rahman@ecs.gov.bd"}, ""},
		{"officer bad email", &OfficerItem{Name: "Md. Rahman", Email: "not-an-email"}, "email"},
		{"officer negative level", &OfficerItem{Name: "Md. Rahman", HierarchyLevel: -1}, "hierarchy_level"},
		{"officer long phone", &OfficerItem{Name: "Md. Rahman", Phone: strings.Repeat("1", 51)}, "phone"},
		{"election ok", &ElectionItem{Title: "By-election", Status: StatusOngoing, ElectionDate: "2025-10-15"}, ""},
		{"election bad date", &ElectionItem{Title: "By-election", Status: StatusUpcoming, ElectionDate: "15/10/2025"}, "election_date"},
		{"election bad results", &ElectionItem{Title: "By-election", Status: StatusCompleted, Results: json.RawMessage(`{`)}, "results"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.rec.ApplyDefaults()
			err := tt.rec.Validate()
			if tt.field == "" {
				if err != nil {
					t.Fatalf("Validate: unexpected error %v", err)
				}
				return
			}
			var fe *FieldError
			if !errors.As(err, &fe) {
				t.Fatalf("Validate: got %v, want FieldError on %s", err, tt.field)
			}
			if fe.Field != tt.field {
				t.Fatalf("Validate: field %q, want %q", fe.Field, tt.field)
			}
			if !errors.Is(err, ErrInvalid) {
				t.Fatal("FieldError must unwrap to ErrInvalid")
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	n := &NoticeItem{Title: "x"}
	n.ApplyDefaults()
	if n.Priority != PriorityMedium {
		t.Fatalf("notice priority: got %q, want medium", n.Priority)
	}
	e := &ElectionItem{Title: "x"}
	e.ApplyDefaults()
	if e.Status != StatusUpcoming {
		t.Fatalf("election status: got %q, want upcoming", e.Status)
	}
}

func TestMetaStamp(t *testing.T) {
	var n NewsItem
	t1 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	n.Stamp(t1)
	n.Stamp(t2)
	if !n.CreatedAt.Equal(t1) || !n.UpdatedAt.Equal(t2) {
		t.Fatalf("Stamp: created=%v updated=%v", n.CreatedAt, n.UpdatedAt)
	}
}

func TestRunLog_Lifecycle(t *testing.T) {
	// WHAT: a run log finishes exactly once.
	// WHY: a terminal run must never be re-opened or overwritten.
	now := time.Now()
	r := NewRunLog("job_1_abc", News, now)
	if r.Status != RunRunning {
		t.Fatalf("status: got %q, want running", r.Status)
	}
	if err := r.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := r.Finish(3, 1, nil, now); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if r.Status != RunCompleted || r.ItemsScraped != 3 || r.ItemsRejected != 1 || r.CompletedAt == nil {
		t.Fatalf("after Finish: %+v", r)
	}
	if err := r.Finish(0, 0, errors.New("late"), now); !errors.Is(err, ErrRunClosed) {
		t.Fatalf("second Finish: got %v, want ErrRunClosed", err)
	}
	if r.Status != RunCompleted {
		t.Fatal("second Finish changed status")
	}
}

func TestRunLog_Failed(t *testing.T) {
	r := NewRunLog("job_2_abc", Notices, time.Now())
	if err := r.Finish(2, 0, errors.New("navigation timeout"), time.Now()); err != nil {
		t.Fatal(err)
	}
	if r.Status != RunFailed || r.ItemsScraped != 2 || r.ErrorMessage != "navigation timeout" {
		t.Fatalf("failed run: %+v", r)
	}
}

func TestPagination_Validate(t *testing.T) {
	bad := []Pagination{
		{Page: 0, Limit: 10},
		{Page: MaxPage + 1, Limit: 10},
		{Page: math.MaxInt, Limit: 10},
		{Page: 1, Limit: 0},
		{Page: 1, Limit: 101},
		{Page: 1, Limit: 10, SortOrder: "up"},
	}
	for _, p := range bad {
		if err := p.Validate(); !errors.Is(err, ErrInvalid) {
			t.Errorf("Validate(%+v): got %v, want ErrInvalid", p, err)
		}
	}
	if p := (Pagination{Page: MaxPage, Limit: MaxLimit}); p.Validate() != nil || p.Offset() < 0 {
		t.Fatalf("last page: offset %d", p.Offset())
	}
	p := Pagination{Page: 3, Limit: 20}
	if p.Validate() != nil || p.Offset() != 40 {
		t.Fatalf("Pagination{3,20}: offset %d", p.Offset())
	}
	if n := (Pagination{}).Normalize(); n.Page != DefaultPage || n.Limit != DefaultLimit {
		t.Fatalf("Normalize = %+v", n)
	}
}

func TestFilterQueries(t *testing.T) {
	page := Pagination{Page: 1, Limit: 10}

	q, err := OfficerFilter{}.Query(page)
	if err != nil {
		t.Fatal(err)
	}
	if q.SortBy != "hierarchy_level" || !q.Ascending {
		t.Fatalf("officers default sort: %s asc=%v", q.SortBy, q.Ascending)
	}

	q, err = ElectionFilter{}.Query(page)
	if err != nil {
		t.Fatal(err)
	}
	if q.SortBy != "election_date" || q.Ascending {
		t.Fatalf("elections default sort: %s asc=%v", q.SortBy, q.Ascending)
	}

	q, err = NewsFilter{Search: "voter", Language: "en"}.Query(page)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(q.SearchColumns, ",") != "title,content" {
		t.Fatalf("news en search columns: %v", q.SearchColumns)
	}

	if _, err := (NewsFilter{}).Query(Pagination{Page: 1, Limit: 10, SortBy: "password"}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("unknown sort column: got %v", err)
	}
	if _, err := (NoticeFilter{Priority: "urgent"}).Query(page); !errors.Is(err, ErrInvalid) {
		t.Fatalf("bad priority filter: got %v", err)
	}
}

func TestQueryParams_OrderIndependent(t *testing.T) {
	lvl := 2
	a, _ := OfficerFilter{Department: "Admin", HierarchyLevel: &lvl}.Query(Pagination{Page: 1, Limit: 10})
	b, _ := OfficerFilter{HierarchyLevel: &lvl, Department: "Admin"}.Query(Pagination{Limit: 10, Page: 1})
	pa, pb := a.Params(), b.Params()
	if len(pa) != len(pb) {
		t.Fatalf("params differ: %v vs %v", pa, pb)
	}
	for k, v := range pa {
		if pb[k] != v {
			t.Fatalf("params[%s]: %q vs %q", k, v, pb[k])
		}
	}
}

func TestSanitize(t *testing.T) {
	n := &NewsItem{Title: "<b>Election</b> &amp; results", Content: "plain"}
	Sanitize(n)
	if n.Title != "Election & results" {
		t.Fatalf("Sanitize title: got %q", n.Title)
	}
	if n.Content != "plain" {
		t.Fatalf("Sanitize content: got %q", n.Content)
	}
}
