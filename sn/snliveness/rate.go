// Package snliveness contains the primitives that report whether a subject
// is currently receiving traffic.
package snliveness

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gordian-engine/gsentor/sn/snsubject"
)

const (
	// DefaultWindow is the number of recent arrivals used to compute a rate.
	DefaultWindow = 50

	// DefaultStaleAfter is how long a subject may go without a message
	// before it is considered silent.
	DefaultStaleAfter = time.Second
)

// RateMonitor measures the arrival rate of messages on one subject.
type RateMonitor struct {
	clk        clock.Clock
	window     int
	staleAfter time.Duration

	mu sync.Mutex

	// Ring buffer of arrival times; head is the next write position.
	stamps []time.Time
	head   int
	n      int
}

// NewRateMonitor returns a RateMonitor using clk for arrival stamps.
// Non-positive window or staleAfter values select the defaults.
func NewRateMonitor(clk clock.Clock, window int, staleAfter time.Duration) *RateMonitor {
	if window <= 0 {
		window = DefaultWindow
	}
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &RateMonitor{
		clk:        clk,
		window:     window,
		staleAfter: staleAfter,
		stamps:     make([]time.Time, window),
	}
}

// Observe records the arrival of m.
// It has the signature of a [snsubject.Handler].
func (m *RateMonitor) Observe(snsubject.Message) {
	now := m.clk.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.stamps[m.head] = now
	m.head = (m.head + 1) % m.window
	if m.n < m.window {
		m.n++
	}
}

// Rate returns the recent arrival rate in messages per second.
// The ok result is false when no message arrived within the staleness window,
// in which case the subject should be treated as silent.
//
// A single recent message reports ok with a rate of zero.
func (m *RateMonitor) Rate() (hz float64, ok bool) {
	now := m.clk.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.n == 0 {
		return 0, false
	}

	last := m.stamps[(m.head-1+m.window)%m.window]
	if now.Sub(last) > m.staleAfter {
		return 0, false
	}

	if m.n < 2 {
		return 0, true
	}

	first := m.stamps[(m.head-m.n+m.window)%m.window]
	span := last.Sub(first)
	if span <= 0 {
		return 0, true
	}
	return float64(m.n-1) / span.Seconds(), true
}

// Reset forgets every observed arrival.
func (m *RateMonitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.head = 0
	m.n = 0
}
