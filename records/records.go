// Package records defines the content records served by ecsportal (news,
// notices, officers, elections), the scraping run log, and the validation
// rules applied to untrusted data before it reaches a store.
package records

import (
	"fmt"
	"time"
)

// ContentType names one of the four record kinds.
type ContentType string

const (
	News      ContentType = "news"
	Notices   ContentType = "notices"
	Officers  ContentType = "officers"
	Elections ContentType = "elections"
)

// ContentTypes lists every content type in scrape order.
var ContentTypes = []ContentType{News, Notices, Officers, Elections}

// ParseContentType validates s as a content type.
func ParseContentType(s string) (ContentType, error) {
	switch ct := ContentType(s); ct {
	case News, Notices, Officers, Elections:
		return ct, nil
	}
	return "", fmt.Errorf("%w: unknown content type %q", ErrInvalid, s)
}

// Table returns the table (or PostgREST resource) that stores this type.
func (c ContentType) Table() string { return string(c) }

// New returns an empty record of this type.
func (c ContentType) New() Record {
	switch c {
	case News:
		return &NewsItem{}
	case Notices:
		return &NoticeItem{}
	case Officers:
		return &OfficerItem{}
	case Elections:
		return &ElectionItem{}
	}
	return nil
}

// Record is implemented by every content record.
type Record interface {
	Kind() ContentType
	// Headline is the primary-language title, or the name for officers.
	Headline() string
	ApplyDefaults()
	Validate() error
	SetID(id string)
	GetID() string
	// Stamp sets CreatedAt (once) and UpdatedAt.
	Stamp(now time.Time)
}

// Meta holds the identifier and timestamps shared by all records.
type Meta struct {
	ID        string     `json:"id,omitempty"`
	ScrapedAt *time.Time `json:"scraped_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (m *Meta) SetID(id string) { m.ID = id }
func (m *Meta) GetID() string   { return m.ID }

func (m *Meta) Stamp(now time.Time) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
}

// Priority of a notice.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func (p Priority) Valid() bool {
	return p == PriorityHigh || p == PriorityMedium || p == PriorityLow
}

// ElectionStatus of an election.
type ElectionStatus string

const (
	StatusUpcoming  ElectionStatus = "upcoming"
	StatusOngoing   ElectionStatus = "ongoing"
	StatusCompleted ElectionStatus = "completed"
	StatusCancelled ElectionStatus = "cancelled"
)

func (s ElectionStatus) Valid() bool {
	switch s {
	case StatusUpcoming, StatusOngoing, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// DateLayout is the wire and storage layout of election dates.
const DateLayout = "2006-01-02"
