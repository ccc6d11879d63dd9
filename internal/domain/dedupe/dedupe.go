// Package dedupe drops telemetry events repeated across pages of one fetch.
//
// Offset pagination over a live trace store drifts: an event inserted while
// a fetch is in progress shifts later pages, so the same event can be
// returned twice. A Deduper is scoped to one fetch and is not shared.
package dedupe

import (
	"github.com/okian/usagedash/internal/domain/model"
)

// Deduper records seen event IDs.
type Deduper interface {
	// SeenAndRecord reports whether id was already recorded and records it
	// if not. Empty ids are never considered seen.
	SeenAndRecord(id string) bool

	Size() int
}

// seenSet is a set of ids. When bounded, the oldest id is forgotten first.
type seenSet struct {
	seen    map[string]struct{}
	ring    []string // insertion order, bounded mode only
	next    int
	maxSize int // <= 0 means unbounded
}

// New creates a Deduper. Without options it is unbounded.
func New(opts ...Option) Deduper {
	s := &seenSet{}
	for _, opt := range opts {
		opt(s)
	}
	s.seen = make(map[string]struct{})
	if s.maxSize > 0 {
		s.ring = make([]string, 0, s.maxSize)
	}
	return s
}

func (s *seenSet) SeenAndRecord(id string) bool {
	if id == "" {
		return false
	}
	if _, ok := s.seen[id]; ok {
		return true
	}

	if s.maxSize > 0 {
		if len(s.ring) < s.maxSize {
			s.ring = append(s.ring, id)
		} else {
			delete(s.seen, s.ring[s.next])
			s.ring[s.next] = id
			s.next = (s.next + 1) % s.maxSize
		}
	}
	s.seen[id] = struct{}{}
	return false
}

func (s *seenSet) Size() int {
	return len(s.seen)
}

// Unique returns the events whose ids d has not seen, in order. onDuplicate,
// if set, is called once per dropped event.
func Unique(events []model.TelemetryEvent, d Deduper, onDuplicate func()) []model.TelemetryEvent {
	out := events[:0:0]
	for _, e := range events {
		if d.SeenAndRecord(e.ID) {
			if onDuplicate != nil {
				onDuplicate()
			}
			continue
		}
		out = append(out, e)
	}
	return out
}
