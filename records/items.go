package records

import (
	"encoding/json"
	"time"
)

// NewsItem is a news article from the commission website.
type NewsItem struct {
	Meta
	Title         string     `json:"title"`
	Content       string     `json:"content,omitempty"`
	TitleBN       string     `json:"title_bn,omitempty"`
	ContentBN     string     `json:"content_bn,omitempty"`
	Category      string     `json:"category,omitempty"`
	ImageURL      string     `json:"image_url,omitempty"`
	PublishedDate *time.Time `json:"published_date,omitempty"`
}

func (n *NewsItem) Kind() ContentType { return News }
func (n *NewsItem) Headline() string  { return n.Title }
func (n *NewsItem) ApplyDefaults()    {}

func (n *NewsItem) Validate() error {
	return firstErr(
		requiredMax("title", n.Title, maxTitle),
		maxLen("title_bn", n.TitleBN, maxTitle),
		maxLen("category", n.Category, maxShort),
		optionalURL("image_url", n.ImageURL),
	)
}

// NoticeItem is an official notice, optionally with an attached file.
type NoticeItem struct {
	Meta
	Title         string     `json:"title"`
	Content       string     `json:"content,omitempty"`
	TitleBN       string     `json:"title_bn,omitempty"`
	ContentBN     string     `json:"content_bn,omitempty"`
	Priority      Priority   `json:"priority"`
	NoticeType    string     `json:"notice_type,omitempty"`
	FileURL       string     `json:"file_url,omitempty"`
	PublishedDate *time.Time `json:"published_date,omitempty"`
}

func (n *NoticeItem) Kind() ContentType { return Notices }
func (n *NoticeItem) Headline() string  { return n.Title }

func (n *NoticeItem) ApplyDefaults() {
	if n.Priority == "" {
		n.Priority = PriorityMedium
	}
}

func (n *NoticeItem) Validate() error {
	var perr error
	if !n.Priority.Valid() {
		perr = &FieldError{Field: "priority", Reason: "must be high, medium or low"}
	}
	return firstErr(
		requiredMax("title", n.Title, maxTitle),
		maxLen("title_bn", n.TitleBN, maxTitle),
		perr,
		maxLen("notice_type", n.NoticeType, maxShort),
		optionalURL("file_url", n.FileURL),
	)
}

// OfficerItem is a member of the commission staff directory.
type OfficerItem struct {
	Meta
	Name           string `json:"name"`
	NameBN         string `json:"name_bn,omitempty"`
	Position       string `json:"position,omitempty"`
	PositionBN     string `json:"position_bn,omitempty"`
	Department     string `json:"department,omitempty"`
	Email          string `json:"email,omitempty"`
	Phone          string `json:"phone,omitempty"`
	ImageURL       string `json:"image_url,omitempty"`
	HierarchyLevel int    `json:"hierarchy_level"`
}

func (o *OfficerItem) Kind() ContentType { return Officers }
func (o *OfficerItem) Headline() string  { return o.Name }

// ApplyDefaults is a no-op: the zero HierarchyLevel is the default.
func (o *OfficerItem) ApplyDefaults() {}

func (o *OfficerItem) Validate() error {
	var herr error
	if o.HierarchyLevel < 0 {
		herr = &FieldError{Field: "hierarchy_level", Reason: "must be >= 0"}
	}
	return firstErr(
		requiredMax("name", o.Name, maxName),
		maxLen("name_bn", o.NameBN, maxName),
		maxLen("position", o.Position, maxName),
		maxLen("position_bn", o.PositionBN, maxName),
		maxLen("department", o.Department, maxName),
		optionalEmail("email", o.Email),
		maxLen("phone", o.Phone, maxPhone),
		optionalURL("image_url", o.ImageURL),
		herr,
	)
}

// ElectionItem is an election with its schedule and, once held, results.
type ElectionItem struct {
	Meta
	Title         string          `json:"title"`
	TitleBN       string          `json:"title_bn,omitempty"`
	Description   string          `json:"description,omitempty"`
	DescriptionBN string          `json:"description_bn,omitempty"`
	ElectionDate  string          `json:"election_date,omitempty"`
	Status        ElectionStatus  `json:"status"`
	Results       json.RawMessage `json:"results,omitempty"`
}

func (e *ElectionItem) Kind() ContentType { return Elections }
func (e *ElectionItem) Headline() string  { return e.Title }

func (e *ElectionItem) ApplyDefaults() {
	if e.Status == "" {
		e.Status = StatusUpcoming
	}
}

func (e *ElectionItem) Validate() error {
	var serr, derr, rerr error
	if !e.Status.Valid() {
		serr = &FieldError{Field: "status", Reason: "must be upcoming, ongoing, completed or cancelled"}
	}
	if e.ElectionDate != "" {
		if _, err := time.Parse(DateLayout, e.ElectionDate); err != nil {
			derr = &FieldError{Field: "election_date", Reason: "must be YYYY-MM-DD"}
		}
	}
	if len(e.Results) > 0 && !json.Valid(e.Results) {
		rerr = &FieldError{Field: "results", Reason: "must be valid JSON"}
	}
	return firstErr(
		requiredMax("title", e.Title, maxTitle),
		maxLen("title_bn", e.TitleBN, maxTitle),
		derr,
		serr,
		rerr,
	)
}
