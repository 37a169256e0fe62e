package snaction

import (
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gordian-engine/gsentor/sn/snevent"
)

// Opt is an option for [NewExecutor].
type Opt func(*Executor) error

// WithResolver sets the resolver used for call, publish, and goal steps.
// This option is required if any such step is configured.
func WithResolver(r Resolver) Opt {
	return func(e *Executor) error {
		e.resolver = r
		return nil
	}
}

// WithEventSink sets where step progress and outcomes are reported.
// This option is required.
func WithEventSink(s snevent.Sink) Opt {
	return func(e *Executor) error {
		e.sink = s
		return nil
	}
}

// WithLockExec serializes concurrent calls to [*Executor.Execute].
func WithLockExec(lock bool) Opt {
	return func(e *Executor) error {
		e.lockExec = lock
		return nil
	}
}

// WithStepPause sets the pause before each step.
// The default is [DefaultStepPause]; zero disables the pause.
func WithStepPause(d time.Duration) Opt {
	return func(e *Executor) error {
		if d < 0 {
			return errors.New("step pause must not be negative")
		}
		e.pause = d
		return nil
	}
}

// WithReadyTimeout bounds how long construction waits
// for each service or goal endpoint to become ready.
// The default is [DefaultReadyTimeout].
func WithReadyTimeout(d time.Duration) Opt {
	return func(e *Executor) error {
		if d <= 0 {
			return errors.New("ready timeout must be positive")
		}
		e.readyTimeout = d
		return nil
	}
}

// WithCallTimeout overrides [DefaultCallTimeout].
func WithCallTimeout(d time.Duration) Opt {
	return func(e *Executor) error {
		if d <= 0 {
			return errors.New("call timeout must be positive")
		}
		e.callTimeout = d
		return nil
	}
}

// WithClock sets the clock used for pauses and sleep steps.
// It is primarily intended for tests.
func WithClock(c clock.Clock) Opt {
	return func(e *Executor) error {
		e.clk = c
		return nil
	}
}
