package records

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// StripMarkup removes every HTML tag from s and decodes entities, leaving
// plain text.
func StripMarkup(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	return html.UnescapeString(strict.Sanitize(s))
}

// Sanitize strips markup from the free-text fields of r in place.
// URL and enum fields are left to Validate.
func Sanitize(r Record) {
	switch v := r.(type) {
	case *NewsItem:
		stripAll(&v.Title, &v.Content, &v.TitleBN, &v.ContentBN, &v.Category)
	case *NoticeItem:
		stripAll(&v.Title, &v.Content, &v.TitleBN, &v.ContentBN, &v.NoticeType)
	case *OfficerItem:
		stripAll(&v.Name, &v.NameBN, &v.Position, &v.PositionBN, &v.Department, &v.Phone)
	case *ElectionItem:
		stripAll(&v.Title, &v.TitleBN, &v.Description, &v.DescriptionBN)
	}
}

func stripAll(fields ...*string) {
	for _, f := range fields {
		*f = StripMarkup(*f)
	}
}
