package snaction

import (
	"context"
	"errors"
	"fmt"

	"github.com/gordian-engine/gsentor/sn/snevent"
)

// ErrNotReady is returned by a [Resolver] when an endpoint
// did not become ready within the allowed wait.
var ErrNotReady = errors.New("endpoint not ready")

// Resolver turns logical endpoint names into handles.
// Each method should return promptly once ctx is done.
type Resolver interface {
	ResolveService(ctx context.Context, name string) (ServiceClient, error)
	ResolvePublisher(ctx context.Context, subject string, latched bool) (PublishTarget, error)
	ResolveGoal(ctx context.Context, namespace, spec string) (GoalClient, error)
}

// ServiceClient invokes one remote service.
type ServiceClient interface {
	Call(ctx context.Context, req []byte) (ServiceResponse, error)
}

// ServiceResponse is the reply to a service call.
type ServiceResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// PublishTarget emits messages on one subject.
type PublishTarget interface {
	Publish(ctx context.Context, data []byte) error
}

// GoalClient dispatches goals to one action server.
//
// SendGoal returns once the goal has been sent.
// The done callback is invoked at most once, when the goal reaches a terminal status,
// and may be invoked from any goroutine.
type GoalClient interface {
	SendGoal(ctx context.Context, goal []byte, done func(GoalStatus)) error
}

// GoalStatus is the terminal status of a dispatched goal.
type GoalStatus uint8

const (
	GoalStatusUnknown GoalStatus = iota
	GoalSucceeded
	GoalPreempted
	GoalRecalled
	GoalAborted
	GoalRejected
	GoalLost
)

var goalStatusNames = [...]string{
	GoalStatusUnknown: "unknown",
	GoalSucceeded:     "succeeded",
	GoalPreempted:     "preempted",
	GoalRecalled:      "recalled",
	GoalAborted:       "aborted",
	GoalRejected:      "rejected",
	GoalLost:          "lost",
}

func (s GoalStatus) String() string {
	if int(s) < len(goalStatusNames) {
		return goalStatusNames[s]
	}
	return fmt.Sprintf("GoalStatus(%d)", uint8(s))
}

// ParseGoalStatus is the inverse of [GoalStatus.String].
// Unrecognized names report false.
func ParseGoalStatus(name string) (GoalStatus, bool) {
	for i, n := range goalStatusNames {
		if n == name && i != int(GoalStatusUnknown) {
			return GoalStatus(i), true
		}
	}
	return GoalStatusUnknown, false
}

// Severity classifies the outcome of a goal with status s:
// achieved goals are informational, preempted and recalled goals are warnings,
// and everything else is an error.
func (s GoalStatus) Severity() snevent.Severity {
	switch s {
	case GoalSucceeded:
		return snevent.SeverityInfo
	case GoalPreempted, GoalRecalled:
		return snevent.SeverityWarn
	default:
		return snevent.SeverityError
	}
}

// Outcome is the event text reported for a goal that finished with status s.
func (s GoalStatus) Outcome() string {
	switch s.Severity() {
	case snevent.SeverityInfo:
		return "Goal achieved"
	case snevent.SeverityWarn:
		return "Goal preempted"
	default:
		return "Goal failed"
	}
}
