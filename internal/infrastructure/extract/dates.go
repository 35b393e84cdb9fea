package extract

import (
	"strings"
	"time"
)

// dateLayouts covers the textual formats the tracked publishers emit.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05",
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	"2 Jan 2006 15:04:05 -0700",
	"2 Jan 2006",
	"2006-01-02",
}

// ParseDate normalizes a heterogeneous date string to UTC. Timestamps
// without zone information are assumed UTC. Unparsable input yields nil so
// a bad date never sinks the whole extraction.
func ParseDate(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}

	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, value)
		if err != nil {
			continue
		}
		utc := t.UTC()
		return &utc
	}
	return nil
}
