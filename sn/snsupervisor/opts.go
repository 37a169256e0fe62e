package snsupervisor

import (
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gordian-engine/gsentor/sn/snaction"
	"github.com/gordian-engine/gsentor/sn/snevent"
	"github.com/gordian-engine/gsentor/sn/snmonitor"
	"github.com/gordian-engine/gsentor/sn/snsafety"
	"github.com/gordian-engine/gsentor/sn/snsubject"
	"github.com/gordian-engine/gsentor/sn/snwatchdog"
)

// Opt is an option for [New].
type Opt func(*Supervisor) error

// WithSubscriber sets the transport monitors receive messages from.
// This option is required.
func WithSubscriber(s snsubject.Subscriber) Opt {
	return func(sv *Supervisor) error {
		sv.subscriber = s
		return nil
	}
}

// WithGraph sets the transport view used to discover subjects.
// This option is required.
func WithGraph(g snsubject.Graph) Opt {
	return func(sv *Supervisor) error {
		sv.graph = g
		return nil
	}
}

// WithPublisher enables the event feed and the safety publisher.
func WithPublisher(p snsubject.Publisher) Opt {
	return func(sv *Supervisor) error {
		sv.publisher = p
		return nil
	}
}

// WithResolver sets the resolver for call, publish, and goal steps.
// Without it, such steps are dropped.
func WithResolver(r snaction.Resolver) Opt {
	return func(sv *Supervisor) error {
		sv.resolver = r
		return nil
	}
}

// WithRegistry sets the safety registry.
// By default the supervisor creates its own.
func WithRegistry(r *snsafety.Registry) Opt {
	return func(sv *Supervisor) error {
		sv.reg = r
		return nil
	}
}

// WithEventSink adds a sink receiving every event,
// in addition to the log and the event feed.
func WithEventSink(s snevent.Sink) Opt {
	return func(sv *Supervisor) error {
		sv.extraSinks = append(sv.extraSinks, s)
		return nil
	}
}

// WithWatchdog makes every monitor loop answer w's signals.
func WithWatchdog(w *snwatchdog.Watchdog) Opt {
	return func(sv *Supervisor) error {
		sv.wd = w
		return nil
	}
}

// WithClock sets the clock for monitors, executors, and the safety publisher.
func WithClock(c clock.Clock) Opt {
	return func(sv *Supervisor) error {
		sv.clk = c
		return nil
	}
}

// WithSafetyInterval sets how often the safety state is published
// when it does not change.
func WithSafetyInterval(d time.Duration) Opt {
	return func(sv *Supervisor) error {
		if d <= 0 {
			return errors.New("safety interval must be positive")
		}
		sv.safetyInterval = d
		return nil
	}
}

// WithSubjects overrides the event feed and safety subjects.
func WithSubjects(event, safety string) Opt {
	return func(sv *Supervisor) error {
		if event == "" || safety == "" {
			return errors.New("feed subjects must not be empty")
		}
		sv.eventSubject = event
		sv.safetySubject = safety
		return nil
	}
}

// WithMonitorOptions appends options passed to every [snmonitor.New] call.
func WithMonitorOptions(opts ...snmonitor.Opt) Opt {
	return func(sv *Supervisor) error {
		sv.monitorOpts = append(sv.monitorOpts, opts...)
		return nil
	}
}

// WithExecutorOptions appends options passed to every [snaction.NewExecutor] call.
func WithExecutorOptions(opts ...snaction.Opt) Opt {
	return func(sv *Supervisor) error {
		sv.execOpts = append(sv.execOpts, opts...)
		return nil
	}
}
