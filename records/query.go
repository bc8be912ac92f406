package records

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Pagination bounds.
const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
	// MaxPage keeps (Page-1)*Limit within int for every valid Limit.
	MaxPage = math.MaxInt32 / MaxLimit
)

// SortOrder is asc or desc.
type SortOrder string

const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

// Pagination is the page/limit/sort part of a list request.
// Zero values are replaced by Normalize.
type Pagination struct {
	Page      int       `json:"page"`
	Limit     int       `json:"limit"`
	SortBy    string    `json:"sort_by,omitempty"`
	SortOrder SortOrder `json:"sort_order,omitempty"`
}

// Normalize returns p with zero Page and Limit set to the defaults.
func (p Pagination) Normalize() Pagination {
	if p.Page == 0 {
		p.Page = DefaultPage
	}
	if p.Limit == 0 {
		p.Limit = DefaultLimit
	}
	return p
}

// Validate checks bounds without touching defaults.
func (p Pagination) Validate() error {
	if p.Page < 1 || p.Page > MaxPage {
		return &FieldError{Field: "page", Reason: fmt.Sprintf("must be between 1 and %d", MaxPage)}
	}
	if p.Limit < 1 || p.Limit > MaxLimit {
		return &FieldError{Field: "limit", Reason: fmt.Sprintf("must be between 1 and %d", MaxLimit)}
	}
	if p.SortOrder != "" && p.SortOrder != Asc && p.SortOrder != Desc {
		return &FieldError{Field: "sort_order", Reason: "must be asc or desc"}
	}
	return nil
}

// Offset is the zero-based index of the first row of the page.
func (p Pagination) Offset() int { return (p.Page - 1) * p.Limit }

// Op is a comparison operator in a Condition.
type Op string

const (
	OpEq  Op = "eq"
	OpGte Op = "gte"
	OpLt  Op = "lt"
)

// Condition restricts a column. Value is a string, an int or a time.Time.
type Condition struct {
	Column string
	Op     Op
	Value  any
}

// Query is a backend-neutral list request for one content type.
type Query struct {
	Type          ContentType
	Where         []Condition
	Search        string
	SearchColumns []string
	SortBy        string
	Ascending     bool
	Offset        int
	Limit         int
}

// Params renders q as flat key/value pairs, suitable for cache keys.
func (q Query) Params() map[string]string {
	p := map[string]string{
		"sort":   q.SortBy,
		"asc":    strconv.FormatBool(q.Ascending),
		"offset": strconv.Itoa(q.Offset),
		"limit":  strconv.Itoa(q.Limit),
	}
	for _, c := range q.Where {
		p[c.Column+"."+string(c.Op)] = formatValue(c.Value)
	}
	if q.Search != "" {
		p["search"] = q.Search
		p["search_in"] = strings.Join(q.SearchColumns, ",")
	}
	return p
}

func formatValue(v any) string {
	switch x := v.(type) {
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

// sortable lists the columns each type may be ordered by; the first entry
// is the default along with its direction.
var sortable = map[ContentType]struct {
	columns    []string
	defaultAsc bool
}{
	News:      {[]string{"published_date", "created_at", "updated_at", "title", "category"}, false},
	Notices:   {[]string{"published_date", "created_at", "updated_at", "title", "priority", "notice_type"}, false},
	Officers:  {[]string{"hierarchy_level", "name", "department", "position", "created_at"}, true},
	Elections: {[]string{"election_date", "created_at", "title", "status"}, false},
}

func baseQuery(t ContentType, p Pagination) (Query, error) {
	if err := p.Validate(); err != nil {
		return Query{}, err
	}
	s := sortable[t]
	q := Query{
		Type:      t,
		SortBy:    s.columns[0],
		Ascending: s.defaultAsc,
		Offset:    p.Offset(),
		Limit:     p.Limit,
	}
	if p.SortBy != "" {
		ok := false
		for _, c := range s.columns {
			if c == p.SortBy {
				ok = true
				break
			}
		}
		if !ok {
			return Query{}, &FieldError{Field: "sort_by", Reason: fmt.Sprintf("cannot sort %s by %q", t, p.SortBy)}
		}
		q.SortBy = p.SortBy
	}
	if p.SortOrder != "" {
		q.Ascending = p.SortOrder == Asc
	}
	return q, nil
}

// ParseDate parses a YYYY-MM-DD filter bound. Empty input yields nil.
func ParseDate(field, s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return nil, &FieldError{Field: field, Reason: "must be YYYY-MM-DD"}
	}
	return &t, nil
}

// dateRange adds published-style timestamp bounds; to is inclusive of its day.
func dateRange(q *Query, column string, from, to *time.Time) {
	if from != nil {
		q.Where = append(q.Where, Condition{Column: column, Op: OpGte, Value: *from})
	}
	if to != nil {
		q.Where = append(q.Where, Condition{Column: column, Op: OpLt, Value: to.AddDate(0, 0, 1)})
	}
}

// NewsFilter narrows a news listing. Language selects the search columns:
// "en" searches title/content, anything else the Bengali columns.
type NewsFilter struct {
	Category string
	DateFrom *time.Time
	DateTo   *time.Time
	Search   string
	Language string
}

func (f NewsFilter) Query(p Pagination) (Query, error) {
	if err := maxLen("category", f.Category, maxShort); err != nil {
		return Query{}, err
	}
	q, err := baseQuery(News, p)
	if err != nil {
		return Query{}, err
	}
	if f.Category != "" {
		q.Where = append(q.Where, Condition{Column: "category", Op: OpEq, Value: f.Category})
	}
	dateRange(&q, "published_date", f.DateFrom, f.DateTo)
	if f.Search != "" {
		q.Search = f.Search
		q.SearchColumns = []string{"title_bn", "content_bn"}
		if f.Language == "en" {
			q.SearchColumns = []string{"title", "content"}
		}
	}
	return q, nil
}

// NoticeFilter narrows a notice listing.
type NoticeFilter struct {
	Priority   Priority
	NoticeType string
	DateFrom   *time.Time
	DateTo     *time.Time
	Search     string
}

func (f NoticeFilter) Query(p Pagination) (Query, error) {
	if f.Priority != "" && !f.Priority.Valid() {
		return Query{}, &FieldError{Field: "priority", Reason: "must be high, medium or low"}
	}
	q, err := baseQuery(Notices, p)
	if err != nil {
		return Query{}, err
	}
	if f.Priority != "" {
		q.Where = append(q.Where, Condition{Column: "priority", Op: OpEq, Value: string(f.Priority)})
	}
	if f.NoticeType != "" {
		q.Where = append(q.Where, Condition{Column: "notice_type", Op: OpEq, Value: f.NoticeType})
	}
	dateRange(&q, "published_date", f.DateFrom, f.DateTo)
	if f.Search != "" {
		q.Search = f.Search
		q.SearchColumns = []string{"title", "content"}
	}
	return q, nil
}

// OfficerFilter narrows the officer directory.
type OfficerFilter struct {
	Department     string
	HierarchyLevel *int
	Search         string
}

func (f OfficerFilter) Query(p Pagination) (Query, error) {
	if f.HierarchyLevel != nil && *f.HierarchyLevel < 0 {
		return Query{}, &FieldError{Field: "hierarchy_level", Reason: "must be >= 0"}
	}
	q, err := baseQuery(Officers, p)
	if err != nil {
		return Query{}, err
	}
	if f.Department != "" {
		q.Where = append(q.Where, Condition{Column: "department", Op: OpEq, Value: f.Department})
	}
	if f.HierarchyLevel != nil {
		q.Where = append(q.Where, Condition{Column: "hierarchy_level", Op: OpEq, Value: *f.HierarchyLevel})
	}
	if f.Search != "" {
		q.Search = f.Search
		q.SearchColumns = []string{"name", "position", "department"}
	}
	return q, nil
}

// ElectionFilter narrows an election listing. Date bounds compare the
// election day itself.
type ElectionFilter struct {
	Status   ElectionStatus
	DateFrom *time.Time
	DateTo   *time.Time
	Search   string
}

func (f ElectionFilter) Query(p Pagination) (Query, error) {
	if f.Status != "" && !f.Status.Valid() {
		return Query{}, &FieldError{Field: "status", Reason: "must be upcoming, ongoing, completed or cancelled"}
	}
	q, err := baseQuery(Elections, p)
	if err != nil {
		return Query{}, err
	}
	if f.Status != "" {
		q.Where = append(q.Where, Condition{Column: "status", Op: OpEq, Value: string(f.Status)})
	}
	if f.DateFrom != nil {
		q.Where = append(q.Where, Condition{Column: "election_date", Op: OpGte, Value: f.DateFrom.Format(DateLayout)})
	}
	if f.DateTo != nil {
		q.Where = append(q.Where, Condition{Column: "election_date", Op: OpLt, Value: f.DateTo.AddDate(0, 0, 1).Format(DateLayout)})
	}
	if f.Search != "" {
		q.Search = f.Search
		q.SearchColumns = []string{"title", "description"}
	}
	return q, nil
}

// Page is one page of a listing plus the total row count.
type Page struct {
	Items []Record
	Total int
}
