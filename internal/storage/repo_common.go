package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	timestampLayout = "2006-01-02T15:04:05.000Z"
	dateLayout      = "2006-01-02"
)

func ensureID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

// fmtTimestamp renders a fixed-width UTC timestamp so that lexical order
// matches chronological order.
func fmtTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", raw, err)
	}
	return t.UTC(), nil
}

func truncateTimestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

func normalizeDate(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	day := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return &day
}

func fmtDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(dateLayout)
}

func parseDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, fmt.Errorf("parse date %q: %w", raw, err)
	}
	return &t, nil
}

// ParseDate reads a YYYY-MM-DD calendar date. An empty string yields nil.
func ParseDate(raw string) (*time.Time, error) {
	t, err := parseDate(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return t, nil
}

// FormatDate is the inverse of ParseDate.
func FormatDate(t *time.Time) string {
	return fmtDate(t)
}

// FormatTimestamp renders updatedAt the way both backends persist it.
func FormatTimestamp(t time.Time) string {
	return fmtTimestamp(t)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDate(t *time.Time) sql.NullString {
	return nullString(fmtDate(t))
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(raw sql.NullFloat64) *float64 {
	if !raw.Valid {
		return nil
	}
	v := raw.Float64
	return &v
}
