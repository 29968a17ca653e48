// Package revision orders volume revision identifiers.
//
// Two id formats exist on disk. The legacy format is a bare unix timestamp
// ("1521556239"). The current format prefixes a monotonic revision number
// ("3.1521556239"). Either may carry a trailing "-back" marker left behind
// by older tooling. Every current-format id orders after every legacy id.
package revision

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Key is the sort key of a revision id.
type Key struct {
	Number    int64 // 0 for legacy ids
	Timestamp int64 // unix seconds
}

// Compare returns -1, 0 or +1 ordering k against o by number, then timestamp.
func (k Key) Compare(o Key) int {
	switch {
	case k.Number < o.Number:
		return -1
	case k.Number > o.Number:
		return 1
	case k.Timestamp < o.Timestamp:
		return -1
	case k.Timestamp > o.Timestamp:
		return 1
	}
	return 0
}

// Parse returns the sort key of a revision id.
func Parse(id string) (Key, error) {
	base := StripSuffix(id)
	if base == "" {
		return Key{}, fmt.Errorf("invalid revision id %q", id)
	}

	number, timestamp, found := strings.Cut(base, ".")
	if !found {
		ts, err := strconv.ParseInt(base, 10, 64)
		if err != nil {
			return Key{}, fmt.Errorf("invalid revision id %q: %w", id, err)
		}
		return Key{Timestamp: ts}, nil
	}

	n, err := strconv.ParseInt(number, 10, 64)
	if err != nil {
		return Key{}, fmt.Errorf("invalid revision number in %q: %w", id, err)
	}
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return Key{}, fmt.Errorf("invalid revision timestamp in %q: %w", id, err)
	}
	return Key{Number: n, Timestamp: ts}, nil
}

// StripSuffix removes any "-suffix" marker from a revision id.
func StripSuffix(id string) string {
	base, _, _ := strings.Cut(id, "-")
	return base
}

// Compare orders two revision ids. Ids that fail to parse sort before all
// valid ids and among themselves by string.
func Compare(a, b string) int {
	ka, errA := Parse(a)
	kb, errB := Parse(b)
	switch {
	case errA != nil && errB != nil:
		return strings.Compare(a, b)
	case errA != nil:
		return -1
	case errB != nil:
		return 1
	}
	if c := ka.Compare(kb); c != 0 {
		return c
	}
	// "5.100" and "5.100-back" share a key; keep the order deterministic.
	return strings.Compare(a, b)
}

// Sort sorts ids in place, oldest first.
func Sort(ids []string) {
	sort.SliceStable(ids, func(i, j int) bool {
		return Compare(ids[i], ids[j]) < 0
	})
}

// Latest returns the newest id, or "" when ids is empty.
func Latest(ids []string) string {
	latest := ""
	for _, id := range ids {
		if latest == "" || Compare(id, latest) > 0 {
			latest = id
		}
	}
	return latest
}

// Format builds a current-format revision id.
func Format(number int64, t time.Time) string {
	return fmt.Sprintf("%d.%d", number, t.Unix())
}

// Next returns 1 + the highest revision number among ids. Legacy ids count as 0.
func Next(ids []string) int64 {
	var highest int64
	for _, id := range ids {
		k, err := Parse(id)
		if err != nil {
			continue
		}
		if k.Number > highest {
			highest = k.Number
		}
	}
	return highest + 1
}

// Created returns the creation time encoded in a revision id.
func Created(id string) (time.Time, error) {
	k, err := Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(k.Timestamp, 0).UTC(), nil
}

// ISODate renders t the way revision listings show it: UTC, second precision.
func ISODate(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05")
}
