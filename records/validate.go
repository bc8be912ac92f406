package records

import (
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"unicode/utf8"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("records: invalid")

// FieldError reports which field failed validation and why.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("records: invalid %s: %s", e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error { return ErrInvalid }

// Length limits count runes, so Bengali text is measured like Latin text.
const (
	maxTitle = 500
	maxName  = 200
	maxShort = 100
	maxPhone = 50
	maxJobID = 100
)

func requiredMax(field, v string, max int) error {
	if strings.TrimSpace(v) == "" {
		return &FieldError{Field: field, Reason: "is required"}
	}
	return maxLen(field, v, max)
}

func maxLen(field, v string, max int) error {
	if utf8.RuneCountInString(v) > max {
		return &FieldError{Field: field, Reason: fmt.Sprintf("exceeds %d characters", max)}
	}
	return nil
}

func optionalURL(field, v string) error {
	if v == "" {
		return nil
	}
	u, err := url.Parse(v)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &FieldError{Field: field, Reason: "must be an absolute http(s) URL"}
	}
	return nil
}

func optionalEmail(field, v string) error {
	if v == "" {
		return nil
	}
	addr, err := mail.ParseAddress(v)
	if err != nil || addr.Address != v {
		return &FieldError{Field: field, Reason: "must be a valid email address"}
	}
	return nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
