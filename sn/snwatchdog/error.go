package snwatchdog

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// termination is implemented by every cause the watchdog cancels its context with.
type termination interface {
	error
	watchdogTermination()
}

// IsTermination reports whether ctx was canceled by the watchdog,
// as opposed to by its parent.
func IsTermination(ctx context.Context) bool {
	var t termination
	return errors.As(context.Cause(ctx), &t)
}

// FailureToRespondError indicates that a monitored loop
// did not acknowledge a signal within its response timeout.
type FailureToRespondError struct {
	Name    string
	Timeout time.Duration
}

func (e FailureToRespondError) Error() string {
	return fmt.Sprintf("%s did not answer watchdog signal within %s", e.Name, e.Timeout)
}

// ForcedTerminationError indicates that [*Watchdog.Terminate] was called.
type ForcedTerminationError struct {
	Reason string
}

func (e ForcedTerminationError) Error() string {
	return "terminated by watchdog: " + e.Reason
}

func (FailureToRespondError) watchdogTermination()  {}
func (ForcedTerminationError) watchdogTermination() {}
