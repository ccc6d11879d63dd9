package model

import (
	"fmt"
	"time"
)

// Window is a half-open time range [From, To) in UTC. AllTime windows carry
// no bounds.
type Window struct {
	From    time.Time
	To      time.Time
	AllTime bool
}

// NewWindow returns the window [from, to) normalized to UTC.
func NewWindow(from, to time.Time) (Window, error) {
	if from.IsZero() || to.IsZero() {
		return Window{}, fmt.Errorf("%w: both bounds are required", ErrInvalidWindow)
	}
	if !to.After(from) {
		return Window{}, fmt.Errorf("%w: end %s is not after start %s", ErrInvalidWindow,
			to.Format(time.RFC3339), from.Format(time.RFC3339))
	}
	return Window{From: from.UTC(), To: to.UTC()}, nil
}

// AllTimeWindow returns an unbounded window.
func AllTimeWindow() Window {
	return Window{AllTime: true}
}

// LastDays returns the window covering the days before now.
func LastDays(now time.Time, days int) (Window, error) {
	if days <= 0 {
		return Window{}, fmt.Errorf("%w: days must be positive, got %d", ErrInvalidWindow, days)
	}
	return NewWindow(now.AddDate(0, 0, -days), now)
}

// Duration is zero for all-time windows.
func (w Window) Duration() time.Duration {
	if w.AllTime {
		return 0
	}
	return w.To.Sub(w.From)
}

// Contains reports whether t falls in [From, To).
func (w Window) Contains(t time.Time) bool {
	if w.AllTime {
		return true
	}
	return !t.Before(w.From) && t.Before(w.To)
}

// Key is a stable string form used for cache keys.
func (w Window) Key() string {
	if w.AllTime {
		return "all"
	}
	return w.From.Format(time.RFC3339Nano) + "/" + w.To.Format(time.RFC3339Nano)
}
