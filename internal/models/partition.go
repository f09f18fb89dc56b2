package models

import (
	"fmt"
	"time"
)

const (
	// DefaultService is used when a document carries no service_name
	DefaultService = "unknown"

	// KeyExtension is appended to every object key
	KeyExtension = ".json.gz"

	datePrefixLen = 10
)

// PartitionKey locates a stored document:
// year=YYYY/month=MM/day=DD/service=<service>/<epoch_millis>.json.gz
//
// Date parts are taken positionally from the timestamp text without parsing,
// so a malformed timestamp yields a malformed (but well-formed as a key) path.
type PartitionKey struct {
	Year    string
	Month   string
	Day     string
	Service string
	Millis  int64
}

// NewPartitionKey derives the key parts from a timestamp string, a service
// name and the wall-clock time used for the unique suffix.
func NewPartitionKey(timestamp, service string, now time.Time) PartitionKey {
	day := substr(timestamp, 0, datePrefixLen)
	return PartitionKey{
		Year:    substr(day, 0, 4),
		Month:   substr(day, 5, 7),
		Day:     substr(day, 8, 10),
		Service: service,
		Millis:  now.UnixMilli(),
	}
}

// Key renders the object key.
func (k PartitionKey) Key() string {
	return fmt.Sprintf("year=%s/month=%s/day=%s/service=%s/%d%s",
		k.Year, k.Month, k.Day, k.Service, k.Millis, KeyExtension)
}

// Date returns the partition date as YYYY-MM-DD.
func (k PartitionKey) Date() string {
	return k.Year + "-" + k.Month + "-" + k.Day
}

func (k PartitionKey) String() string {
	return k.Key()
}

// substr slices s by character position, clamping out-of-range bounds.
func substr(s string, lo, hi int) string {
	r := []rune(s)
	if lo > len(r) {
		lo = len(r)
	}
	if hi > len(r) {
		hi = len(r)
	}
	if lo >= hi {
		return ""
	}
	return string(r[lo:hi])
}
