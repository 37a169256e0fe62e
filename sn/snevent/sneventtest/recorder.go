// Package sneventtest contains test helpers for consumers of snevent.
package sneventtest

import (
	"strings"
	"sync"

	"github.com/gordian-engine/gsentor/sn/snevent"
)

// Recorder is a [snevent.Sink] that keeps every event it receives.
// The zero value is ready to use.
type Recorder struct {
	mu     sync.Mutex
	events []snevent.Event
}

func (r *Recorder) HandleEvent(e snevent.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events in arrival order.
func (r *Recorder) Events() []snevent.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]snevent.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Texts returns the text of every recorded event in arrival order.
func (r *Recorder) Texts() []string {
	evs := r.Events()
	out := make([]string, len(evs))
	for i, e := range evs {
		out[i] = e.Text
	}
	return out
}

// Count returns the number of recorded events with severity s.
func (r *Recorder) Count(s snevent.Severity) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Severity == s {
			n++
		}
	}
	return n
}

// Matching returns the recorded events whose text contains substr.
func (r *Recorder) Matching(substr string) []snevent.Event {
	var out []snevent.Event
	for _, e := range r.Events() {
		if strings.Contains(e.Text, substr) {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of recorded events.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Reset discards all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
