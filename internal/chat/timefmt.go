package chat

import (
	"sync"
	"time"
	_ "time/tzdata" // display rendering must work in scratch containers
)

// Timestamps are written as RFC3339 in the display zone and rendered as
// "Sat, Sep 6, 01:38". Older rows may carry a naive ISO form or the SQL
// CURRENT_TIMESTAMP form; both are assumed UTC. Anything unparseable is
// returned as-is — rendering never fails a request.

const (
	displayLayout  = "Mon, Jan 2, 15:04"
	naiveISOLayout = "2006-01-02T15:04:05"
	legacyLayout   = "2006-01-02 15:04:05"
)

var displayZone = sync.OnceValue(func() *time.Location {
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		return time.UTC
	}
	return loc
})

// NowStamp returns the storage form of the current server time.
func NowStamp() string {
	return time.Now().In(displayZone()).Format(time.RFC3339)
}

// FormatDisplay converts a stored timestamp string to the fixed human form in
// the display zone, falling back to the raw string if nothing parses.
func FormatDisplay(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		t, err = time.Parse(naiveISOLayout, ts)
	}
	if err != nil {
		t, err = time.Parse(legacyLayout, ts)
	}
	if err != nil {
		return ts
	}
	return t.In(displayZone()).Format(displayLayout)
}
