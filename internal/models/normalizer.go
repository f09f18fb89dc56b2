package models

import (
	"errors"
	"strings"
	"time"
)

// ErrInvalidTimestamp is returned when no supported format matches.
var ErrInvalidTimestamp = errors.New("invalid timestamp format")

// SupportedTimestampFormats lists formats we attempt to parse
var SupportedTimestampFormats = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC1123,
	time.UnixDate,
}

// NowTimestamp renders t as the ISO-8601 UTC timestamp used when a document has none.
func NowTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTimestamp attempts to parse a timestamp string into time.Time
func ParseTimestamp(ts string) (time.Time, error) {
	ts = strings.TrimSpace(ts)

	for _, format := range SupportedTimestampFormats {
		if t, err := time.Parse(format, ts); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, ErrInvalidTimestamp
}

// NormalizeTimestamp parses ts and re-renders it in UTC, so the date prefix
// always reflects the UTC calendar day.
func NormalizeTimestamp(ts string) (string, error) {
	t, err := ParseTimestamp(ts)
	if err != nil {
		return "", err
	}
	return NowTimestamp(t), nil
}
