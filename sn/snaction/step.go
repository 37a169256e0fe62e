// Package snaction contains the remediation steps a monitor can trigger,
// and the [Executor] that runs them.
package snaction

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Step is one configured remediation operation.
//
// The set of implementations is closed:
// [CallStep], [PublishStep], [GoalStep], [SleepStep], and [ShellStep].
// The Executor dispatches over them with a single type switch.
type Step interface {
	// Kind is the configuration keyword for the step, e.g. "call".
	Kind() string

	// Annotation is the optional operator-supplied text for the step.
	Annotation() string

	// DefaultDescription is synthesized from the step's fields.
	DefaultDescription() string

	validate() error
	isStep()
}

// CallStep invokes a remote service with a request built from Fields.
type CallStep struct {
	Service string
	Fields  map[string]any
	Message string
}

// PublishStep emits a message built from Fields on Subject.
type PublishStep struct {
	Subject string
	Latched bool
	Fields  map[string]any
	Message string
}

// GoalStep dispatches a goal, built from Fields,
// to the action server at Namespace that accepts goals of type Spec.
type GoalStep struct {
	Namespace string
	Package   string
	Spec      string
	Fields    map[string]any
	Message   string
}

// SleepStep pauses the executing goroutine.
type SleepStep struct {
	Duration time.Duration
	Message  string
}

// ShellStep runs Command[0] with the remaining elements as arguments.
type ShellStep struct {
	Command []string
	Message string
}

func (CallStep) Kind() string    { return "call" }
func (PublishStep) Kind() string { return "publish" }
func (GoalStep) Kind() string    { return "action" }
func (SleepStep) Kind() string   { return "sleep" }
func (ShellStep) Kind() string   { return "shell" }

func (s CallStep) Annotation() string    { return s.Message }
func (s PublishStep) Annotation() string { return s.Message }
func (s GoalStep) Annotation() string    { return s.Message }
func (s SleepStep) Annotation() string   { return s.Message }
func (s ShellStep) Annotation() string   { return s.Message }

func (s CallStep) DefaultDescription() string {
	return fmt.Sprintf("Calling service '%s'.", s.Service)
}

func (s PublishStep) DefaultDescription() string {
	return fmt.Sprintf("Publishing to subject '%s'.", s.Subject)
}

func (s GoalStep) DefaultDescription() string {
	return fmt.Sprintf("Sending goal for action with spec '%s'.", s.Spec)
}

func (s SleepStep) DefaultDescription() string {
	return fmt.Sprintf("Sleeping for %s.", s.Duration)
}

func (s ShellStep) DefaultDescription() string {
	return fmt.Sprintf("Executing shell command %q.", strings.Join(s.Command, " "))
}

func (s CallStep) validate() error {
	if s.Service == "" {
		return errors.New("service name must not be empty")
	}
	return nil
}

func (s PublishStep) validate() error {
	if s.Subject == "" {
		return errors.New("subject must not be empty")
	}
	return nil
}

func (s GoalStep) validate() error {
	var err error
	if s.Namespace == "" {
		err = errors.Join(err, errors.New("namespace must not be empty"))
	}
	if s.Spec == "" {
		err = errors.Join(err, errors.New("action spec must not be empty"))
	}
	return err
}

func (s SleepStep) validate() error {
	if s.Duration < 0 {
		return fmt.Errorf("duration must not be negative (got %s)", s.Duration)
	}
	return nil
}

func (s ShellStep) validate() error {
	if len(s.Command) == 0 || s.Command[0] == "" {
		return errors.New("command must not be empty")
	}
	return nil
}

func (CallStep) isStep()    {}
func (PublishStep) isStep() {}
func (GoalStep) isStep()    {}
func (SleepStep) isStep()   {}
func (ShellStep) isStep()   {}

// Describe combines the annotation and default description of s
// into the text reported when s runs.
func Describe(s Step) string {
	a := s.Annotation()
	if a == "" {
		return s.DefaultDescription()
	}
	return a + " " + s.DefaultDescription()
}

// StepConfigError describes a step that was dropped
// because it could not be validated or resolved.
type StepConfigError struct {
	// Position of the step in the configured list.
	Index int
	Kind  string
	Err   error
}

func (e StepConfigError) Error() string {
	return fmt.Sprintf("step %d (%s) dropped: %v", e.Index, e.Kind, e.Err)
}

func (e StepConfigError) Unwrap() error { return e.Err }
