package snmonitor

import (
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gordian-engine/gsentor/sn/snevent"
	"github.com/gordian-engine/gsentor/sn/snsafety"
	"github.com/gordian-engine/gsentor/sn/snsubject"
	"github.com/gordian-engine/gsentor/sn/snwatchdog"
)

// Opt is an option for [New].
type Opt func(*Monitor) error

// WithSubscriber sets the transport used to receive messages on the subject.
// This option is required.
func WithSubscriber(s snsubject.Subscriber) Opt {
	return func(m *Monitor) error {
		m.subscriber = s
		return nil
	}
}

// WithGraph sets the transport view used to discover the subject and its publishers.
// This option is required.
func WithGraph(g snsubject.Graph) Opt {
	return func(m *Monitor) error {
		m.graph = g
		return nil
	}
}

// WithRegistry sets the shared safety registry.
// This option is required.
func WithRegistry(r *snsafety.Registry) Opt {
	return func(m *Monitor) error {
		m.reg = r
		return nil
	}
}

// WithEventSink sets where notifications are reported.
// This option is required.
func WithEventSink(s snevent.Sink) Opt {
	return func(m *Monitor) error {
		m.sink = s
		return nil
	}
}

// WithExecutor sets the executor for remediation steps.
// Without it, conditions notify but execute nothing.
func WithExecutor(e Executor) Opt {
	return func(m *Monitor) error {
		m.exec = e
		return nil
	}
}

// WithClock sets the clock driving polls and debounce timers.
// It is primarily intended for tests.
func WithClock(c clock.Clock) Opt {
	return func(m *Monitor) error {
		m.clk = c
		return nil
	}
}

// WithPollIntervals overrides how often liveness is polled
// while watching and while stopped.
func WithPollIntervals(watching, stopped time.Duration) Opt {
	return func(m *Monitor) error {
		if watching <= 0 || stopped <= 0 {
			return errors.New("poll intervals must be positive")
		}
		m.pollWatching = watching
		m.pollStopped = stopped
		return nil
	}
}

// WithStaleAfter sets how long the subject may go without a message
// before it is considered silent.
func WithStaleAfter(d time.Duration) Opt {
	return func(m *Monitor) error {
		if d <= 0 {
			return errors.New("stale-after duration must be positive")
		}
		m.staleAfter = d
		return nil
	}
}

// WithWatchdog makes the monitor's polling loop answer signals from w,
// so that a wedged loop terminates the process.
func WithWatchdog(w *snwatchdog.Watchdog) Opt {
	return func(m *Monitor) error {
		m.wd = w
		return nil
	}
}
