package snaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gordian-engine/gsentor/internal/glog"
	"github.com/gordian-engine/gsentor/sn/snevent"
	"github.com/gordian-engine/gsentor/sn/snsubject"
)

const (
	// DefaultStepPause precedes every step,
	// so that steps triggered in quick succession do not flood downstream services.
	DefaultStepPause = 100 * time.Millisecond

	// DefaultReadyTimeout bounds the wait for each endpoint at construction.
	DefaultReadyTimeout = 5 * time.Second

	// DefaultCallTimeout bounds a service call, or the acknowledgement of a goal.
	DefaultCallTimeout = 5 * time.Second
)

// Executor runs an ordered list of steps for one monitored subject.
//
// The runnable list is fixed at construction.
// Steps that fail validation or resolution are dropped then,
// and the remaining steps keep their relative order.
type Executor struct {
	log *slog.Logger

	resolver Resolver
	sink     snevent.Sink
	clk      clock.Clock

	lockExec     bool
	pause        time.Duration
	readyTimeout time.Duration
	callTimeout  time.Duration

	// Held for the duration of Execute when lockExec is set.
	execMu sync.Mutex

	steps   []runnable
	dropped []StepConfigError
}

// runnable is a validated step and the handles it needs.
type runnable struct {
	step    Step
	desc    string
	payload []byte

	svc  ServiceClient
	pub  PublishTarget
	goal GoalClient
}

// NewExecutor validates and resolves steps, and returns an Executor
// over the steps that succeeded.
//
// A returned error indicates a problem with opts;
// problems with individual steps are logged and reported by [*Executor.Dropped].
func NewExecutor(ctx context.Context, log *slog.Logger, steps []Step, opts ...Opt) (*Executor, error) {
	e := &Executor{
		log:          log,
		pause:        DefaultStepPause,
		readyTimeout: DefaultReadyTimeout,
		callTimeout:  DefaultCallTimeout,
	}

	var err error
	for _, opt := range opts {
		err = errors.Join(err, opt(e))
	}
	if err != nil {
		return nil, err
	}

	if e.sink == nil {
		return nil, errors.New("no event sink set (use snaction.WithEventSink)")
	}
	if e.clk == nil {
		e.clk = clock.New()
	}

	for i, s := range steps {
		r, err := e.prepare(ctx, s)
		if err != nil {
			sce := StepConfigError{Index: i, Kind: s.Kind(), Err: err}
			e.dropped = append(e.dropped, sce)
			e.log.Error("Dropping remediation step", "index", i, "kind", s.Kind(), "err", err)
			continue
		}
		e.steps = append(e.steps, r)
	}

	return e, nil
}

func (e *Executor) prepare(ctx context.Context, s Step) (runnable, error) {
	if err := s.validate(); err != nil {
		return runnable{}, err
	}

	r := runnable{step: s, desc: Describe(s)}

	var fields map[string]any
	switch s := s.(type) {
	case CallStep:
		fields = s.Fields
	case PublishStep:
		fields = s.Fields
	case GoalStep:
		fields = s.Fields
	case SleepStep, ShellStep:
		return r, nil
	default:
		return runnable{}, fmt.Errorf("unsupported step type %T", s)
	}

	if e.resolver == nil {
		return runnable{}, errors.New("no resolver configured for remote steps")
	}

	payload, err := BuildPayload(fields)
	if err != nil {
		return runnable{}, err
	}
	r.payload = payload

	rCtx, cancel := context.WithTimeout(ctx, e.readyTimeout)
	defer cancel()

	switch s := s.(type) {
	case CallStep:
		r.svc, err = e.resolver.ResolveService(rCtx, s.Service)
		if err != nil {
			return runnable{}, fmt.Errorf("resolve service %q: %w", s.Service, err)
		}
	case PublishStep:
		r.pub, err = e.resolver.ResolvePublisher(rCtx, s.Subject, s.Latched)
		if err != nil {
			return runnable{}, fmt.Errorf("resolve publisher %q: %w", s.Subject, err)
		}
	case GoalStep:
		r.goal, err = e.resolver.ResolveGoal(rCtx, s.Namespace, s.Spec)
		if err != nil {
			return runnable{}, fmt.Errorf(
				"action server with namespace %q and spec %q not available: %w",
				s.Namespace, s.Spec, err,
			)
		}
	}

	return r, nil
}

// Len returns the number of runnable steps.
func (e *Executor) Len() int {
	return len(e.steps)
}

// Steps returns the runnable steps in order.
func (e *Executor) Steps() []Step {
	out := make([]Step, len(e.steps))
	for i, r := range e.steps {
		out[i] = r.step
	}
	return out
}

// Dropped returns the steps that were excluded at construction.
func (e *Executor) Dropped() []StepConfigError {
	return e.dropped
}

// Execute runs the runnable steps in order,
// or only those at the given positions when indices is non-nil.
// Positions refer to the runnable list, after dropped steps are removed.
//
// Each step is preceded by a short pause and an informational event.
// A failing step is reported as an error event
// and does not prevent the following steps from running.
//
// The trigger message may be nil.
func (e *Executor) Execute(ctx context.Context, trigger *snsubject.Message, indices []int) {
	if e.lockExec {
		e.execMu.Lock()
		defer e.execMu.Unlock()
	}

	var payload []byte
	if trigger != nil {
		payload = trigger.Data
	}

	for _, r := range e.selected(indices) {
		if e.pause > 0 {
			if !e.sleep(ctx, e.pause) {
				e.log.Info("Abandoning execution", "cause", context.Cause(ctx))
				return
			}
		}

		e.emit(snevent.SeverityInfo, r.desc, payload)

		if err := e.run(ctx, r); err != nil {
			e.log.Warn("Remediation step failed", "kind", r.step.Kind(), "payload", glog.Payload(payload), "err", err)
			e.emit(snevent.SeverityError, err.Error(), payload)
		}
	}
}

func (e *Executor) selected(indices []int) []runnable {
	if indices == nil {
		return e.steps
	}

	out := make([]runnable, 0, len(indices))
	for _, i := range indices {
		if i < 0 || i >= len(e.steps) {
			e.log.Warn("Ignoring out of range step index", "index", i, "n_steps", len(e.steps))
			continue
		}
		out = append(out, e.steps[i])
	}
	return out
}

// run performs a single step.
// A panic inside the step is converted to an error.
func (e *Executor) run(ctx context.Context, r runnable) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%s step panicked: %v", r.step.Kind(), p)
		}
	}()

	switch s := r.step.(type) {
	case CallStep:
		cCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
		defer cancel()
		resp, err := r.svc.Call(cCtx, r.payload)
		if err != nil {
			return fmt.Errorf("call service %q: %w", s.Service, err)
		}
		sev := snevent.SeverityInfo
		if !resp.Success {
			sev = snevent.SeverityError
		}
		e.emit(sev, fmt.Sprintf("Service call success: %t", resp.Success), nil)
		return nil

	case PublishStep:
		if err := r.pub.Publish(ctx, r.payload); err != nil {
			return fmt.Errorf("publish to %q: %w", s.Subject, err)
		}
		return nil

	case GoalStep:
		// Only the acknowledgement is bounded; the outcome arrives through the callback.
		gCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
		defer cancel()
		if err := r.goal.SendGoal(gCtx, r.payload, func(st GoalStatus) {
			e.log.Debug("Goal finished", "namespace", s.Namespace, "status", st)
			e.emit(st.Severity(), st.Outcome(), nil)
		}); err != nil {
			return fmt.Errorf("send goal to %q: %w", s.Namespace, err)
		}
		return nil

	case SleepStep:
		if !e.sleep(ctx, s.Duration) {
			return fmt.Errorf("sleep interrupted: %w", context.Cause(ctx))
		}
		return nil

	case ShellStep:
		out, err := exec.CommandContext(ctx, s.Command[0], s.Command[1:]...).CombinedOutput()
		output := strings.TrimSpace(string(out))
		e.log.Info("Shell command finished", "cmd", s.Command, "output", output, "err", err)
		if err != nil {
			if output != "" {
				return fmt.Errorf("shell command %q: %w: %s", strings.Join(s.Command, " "), err, output)
			}
			return fmt.Errorf("shell command %q: %w", strings.Join(s.Command, " "), err)
		}
		return nil

	default:
		panic(fmt.Errorf("BUG: unhandled step type %T", s))
	}
}

// sleep blocks for d or until ctx is done, reporting whether d elapsed.
func (e *Executor) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	t := e.clk.Timer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (e *Executor) emit(sev snevent.Severity, text string, payload []byte) {
	e.sink.HandleEvent(snevent.Event{
		Text:     text,
		Severity: sev,
		Payload:  payload,
	})
}
