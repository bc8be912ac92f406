// Package idgen provides pluggable ID generation for ecsportal.
//
// Stores and the scraper accept a Generator, making the ID strategy a
// startup-time decision and letting tests pin deterministic IDs.
package idgen

import (
	"crypto/rand"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// NanoID returns a Generator that produces base-36 IDs of the given length.
func NanoID(length int) Generator {
	return func() string {
		b := make([]byte, length)
		buf := make([]byte, length)
		if _, err := rand.Read(buf); err != nil {
			panic("idgen: crypto/rand failed: " + err.Error())
		}
		for i := range b {
			b[i] = base36[int(buf[i])%len(base36)]
		}
		return string(b)
	}
}

// UUIDv7 returns a Generator that produces RFC 9562 UUID v7 strings.
// Record primary keys use it so rows sort by insertion time.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed wraps a Generator and prepends a fixed prefix to every ID.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// JobID returns a Generator for run identifiers of the form
// "job_<unix millis>_<9 base-36 chars>". now may be nil.
func JobID(now func() time.Time) Generator {
	if now == nil {
		now = time.Now
	}
	suffix := NanoID(9)
	return func() string {
		return "job_" + strconv.FormatInt(now().UnixMilli(), 10) + "_" + suffix()
	}
}

// Sequence returns a Generator yielding prefix1, prefix2, ... It is meant for
// tests that need stable identifiers.
func Sequence(prefix string) Generator {
	var n atomic.Int64
	return func() string {
		return prefix + strconv.FormatInt(n.Add(1), 10)
	}
}

// Default is UUIDv7.
var Default Generator = UUIDv7()

// New produces an ID using the Default generator.
func New() string {
	return Default()
}

// Parse validates a UUID string and returns it or an error.
func Parse(s string) (string, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid UUID: %w", err)
	}
	return u.String(), nil
}
