// Package bucket groups usage into fixed-width time buckets.
package bucket

import (
	"fmt"
	"time"

	"github.com/okian/usagedash/internal/domain/model"
)

// Granularity is a bucket width.
type Granularity int

const (
	Minute Granularity = iota + 1
	Hour
	Day
)

const (
	minuteWindowLimit = time.Hour
	hourWindowLimit   = 48 * time.Hour
)

// SelectGranularity picks the bucket width for a window. All-time windows
// use days.
func SelectGranularity(w model.Window) Granularity {
	if w.AllTime {
		return Day
	}
	return ForDuration(w.Duration())
}

// ForDuration maps a window length to a granularity: up to one hour is
// minute, up to 48 hours is hour, anything longer is day.
func ForDuration(d time.Duration) Granularity {
	switch {
	case d <= minuteWindowLimit:
		return Minute
	case d <= hourWindowLimit:
		return Hour
	default:
		return Day
	}
}

// ParseGranularity accepts the String form.
func ParseGranularity(s string) (Granularity, error) {
	switch s {
	case "minute":
		return Minute, nil
	case "hour":
		return Hour, nil
	case "day":
		return Day, nil
	}
	return 0, fmt.Errorf("unknown granularity %q", s)
}

func (g Granularity) String() string {
	switch g {
	case Minute:
		return "minute"
	case Hour:
		return "hour"
	case Day:
		return "day"
	default:
		return "unknown"
	}
}

// Step is the nominal bucket width.
func (g Granularity) Step() time.Duration {
	switch g {
	case Minute:
		return time.Minute
	case Hour:
		return time.Hour
	default:
		return 24 * time.Hour
	}
}

// Truncate floors t to the bucket boundary using t's own clock fields.
// No zone conversion takes place.
func (g Granularity) Truncate(t time.Time) time.Time {
	y, mo, d := t.Date()
	switch g {
	case Minute:
		return time.Date(y, mo, d, t.Hour(), t.Minute(), 0, 0, t.Location())
	case Hour:
		return time.Date(y, mo, d, t.Hour(), 0, 0, 0, t.Location())
	default:
		return time.Date(y, mo, d, 0, 0, 0, 0, t.Location())
	}
}

// Next returns the start of the bucket after start.
func (g Granularity) Next(start time.Time) time.Time {
	if g == Day {
		return start.AddDate(0, 0, 1)
	}
	return start.Add(g.Step())
}

// Keys returns every bucket start from Truncate(first) to Truncate(last)
// inclusive, ascending.
func (g Granularity) Keys(first, last time.Time) []time.Time {
	start, end := g.Truncate(first), g.Truncate(last)
	if end.Before(start) {
		return nil
	}
	keys := make([]time.Time, 0, int(end.Sub(start)/g.Step())+1)
	for k := start; !k.After(end); k = g.Next(k) {
		keys = append(keys, k)
	}
	return keys
}
