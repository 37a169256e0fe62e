// Package snmonitor contains the per-subject condition monitor.
//
// A [Monitor] watches one subject for a liveness condition
// ("published" or "not published") and any number of content expressions.
// Each condition is debounced by its own timer;
// when a timer fires, the monitor notifies, updates the shared safety registry,
// and runs its executor's remediation steps.
//
// Message callbacks, timer callbacks, and the polling loop
// all run on different goroutines.
// Every piece of condition state is guarded by the monitor's own mutex,
// which is never held while notifying or executing.
package snmonitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gordian-engine/gsentor/internal/glog"
	"github.com/gordian-engine/gsentor/sn/snevent"
	"github.com/gordian-engine/gsentor/sn/snfilter"
	"github.com/gordian-engine/gsentor/sn/snliveness"
	"github.com/gordian-engine/gsentor/sn/snsafety"
	"github.com/gordian-engine/gsentor/sn/snsubject"
	"github.com/gordian-engine/gsentor/sn/snwatchdog"
)

const (
	DefaultPollWatching = 300 * time.Millisecond
	DefaultPollStopped  = time.Second
)

// Executor runs remediation steps.
// It is satisfied by *snaction.Executor.
type Executor interface {
	Execute(ctx context.Context, trigger *snsubject.Message, indices []int)
}

// State is the lifecycle state of a [Monitor].
type State uint8

const (
	// The subject has not been observed yet.
	StateUninitialized State = iota
	StateWatching
	StateStopped

	// Terminal.
	StateKilled
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateWatching:
		return "watching"
	case StateStopped:
		return "stopped"
	case StateKilled:
		return "killed"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

var errKilled = errors.New("monitor killed")

// Monitor is the condition monitor for one subject.
type Monitor struct {
	log *slog.Logger

	cfg     Config
	lambdas []*lambda

	subscriber snsubject.Subscriber
	graph      snsubject.Graph
	exec       Executor
	reg        *snsafety.Registry
	sink       snevent.Sink
	clk        clock.Clock
	wd         *snwatchdog.Watchdog

	pollWatching, pollStopped time.Duration
	staleAfter                time.Duration

	rate     *snliveness.RateMonitor
	detector snliveness.Detector

	nodes atomic.Pointer[[]string]

	ctx    context.Context
	cancel context.CancelCauseFunc
	done   chan struct{}

	mu sync.Mutex

	started, stopped, killed bool
	instantiated             bool
	lastInstantiateFailure   string
	subscription             snsubject.Subscription

	// Whether the subject is currently receiving traffic.
	// It starts out true so that a subject that is silent from the outset
	// goes through the live-to-silent transition.
	isLive bool

	livenessSafe     bool
	lambdasSafe      bool
	activeViolations map[string]struct{}

	liveTimer, liveRepeat *timerEntry

	// Keyed by expression text.
	debounce map[string]*timerEntry
	repeat   map[string]*timerEntry
}

type lambda struct {
	cfg  LambdaConfig
	prog *snfilter.Program
}

// timerEntry identifies one armed timer.
// Timer callbacks compare their entry against the map
// to detect that they were cancelled or replaced after firing.
type timerEntry struct {
	t *clock.Timer

	// The message passed to the executor when the timer fires.
	msg snsubject.Message
}

// New returns a monitor for cfg.Subject.
// The monitor does nothing until [*Monitor.Start] is called.
//
// Lambdas whose expression cannot be compiled, or that repeat an earlier expression,
// are reported and dropped.
// A returned error indicates a problem with cfg or opts.
func New(ctx context.Context, log *slog.Logger, cfg Config, lambdas []LambdaConfig, opts ...Opt) (*Monitor, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	m := &Monitor{
		log: glog.Subject(log, cfg.Subject),
		cfg: cfg.normalized(),

		pollWatching: DefaultPollWatching,
		pollStopped:  DefaultPollStopped,
		staleAfter:   snliveness.DefaultStaleAfter,

		done: make(chan struct{}),

		isLive:           true,
		livenessSafe:     true,
		lambdasSafe:      true,
		activeViolations: make(map[string]struct{}),
		debounce:         make(map[string]*timerEntry),
		repeat:           make(map[string]*timerEntry),
	}

	var err error
	for _, opt := range opts {
		err = errors.Join(err, opt(m))
	}
	if err != nil {
		return nil, err
	}

	if err := m.validateSettings(); err != nil {
		return nil, err
	}

	if m.clk == nil {
		m.clk = clock.New()
	}
	m.rate = snliveness.NewRateMonitor(m.clk, 0, m.staleAfter)

	seen := make(map[string]bool, len(lambdas))
	for _, lc := range lambdas {
		lc = lc.normalized()
		if seen[lc.Expression] {
			m.log.Error("Dropping duplicate expression", "expr", lc.Expression)
			continue
		}
		p, err := snfilter.Compile(lc.Expression)
		if err != nil {
			m.log.Error("Dropping invalid expression", "expr", lc.Expression, "err", err)
			m.notify(snevent.SeverityError, fmt.Sprintf(
				"Expression '%s' on subject %s is invalid: %v", lc.Expression, cfg.Subject, err,
			), nil)
			continue
		}
		seen[lc.Expression] = true
		m.lambdas = append(m.lambdas, &lambda{cfg: lc, prog: p})
	}

	if m.cfg.SafetyCritical && m.cfg.Liveness != LivenessNone {
		m.reg.Register(m.livenessKey(), m.cfg.Tags)
	}
	for _, l := range m.lambdas {
		if l.cfg.SafetyCritical {
			m.reg.Register(m.lambdaKey(l.cfg.Expression), l.cfg.Tags)
		}
	}

	if m.cfg.Liveness == LivenessPublished {
		m.detector.Register(m.published)
	}

	m.ctx, m.cancel = context.WithCancelCause(ctx)

	return m, nil
}

func (m *Monitor) validateSettings() error {
	var err error

	if m.subscriber == nil {
		err = errors.Join(err, errors.New("no subscriber set (use snmonitor.WithSubscriber)"))
	}
	if m.graph == nil {
		err = errors.Join(err, errors.New("no graph set (use snmonitor.WithGraph)"))
	}
	if m.reg == nil {
		err = errors.Join(err, errors.New("no registry set (use snmonitor.WithRegistry)"))
	}
	if m.sink == nil {
		err = errors.Join(err, errors.New("no event sink set (use snmonitor.WithEventSink)"))
	}

	return err
}

// Subject returns the monitored subject.
func (m *Monitor) Subject() string {
	return m.cfg.Subject
}

// Config returns the normalized configuration of m.
func (m *Monitor) Config() Config {
	return m.cfg
}

// Expressions returns the content expressions that survived construction.
func (m *Monitor) Expressions() []string {
	out := make([]string, len(m.lambdas))
	for i, l := range m.lambdas {
		out[i] = l.cfg.Expression
	}
	return out
}

// SafetyKeys returns the registry keys of m's safety-critical conditions.
func (m *Monitor) SafetyKeys() []snsafety.Key {
	var keys []snsafety.Key
	if m.cfg.SafetyCritical && m.cfg.Liveness != LivenessNone {
		keys = append(keys, m.livenessKey())
	}
	for _, l := range m.lambdas {
		if l.cfg.SafetyCritical {
			keys = append(keys, m.lambdaKey(l.cfg.Expression))
		}
	}
	return keys
}

// Nodes returns the nodes known to publish on the subject.
func (m *Monitor) Nodes() []string {
	p := m.nodes.Load()
	if p == nil {
		return nil
	}
	return slices.Clone(*p)
}

// Start begins or resumes evaluation.
// The first call starts the polling goroutine.
// Start has no effect after Kill.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.killed {
		m.mu.Unlock()
		m.log.Warn("Ignoring start of killed monitor")
		return
	}
	m.stopped = false
	first := !m.started
	m.started = true
	m.mu.Unlock()

	if first {
		go m.kernel()
	}
}

// Stop suspends evaluation without discarding state.
// Pending timers are left to fire.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.killed {
		return
	}
	m.stopped = true
}

// Kill permanently stops m: it cancels every pending timer,
// releases the subscription, and waits for the polling goroutine to finish.
func (m *Monitor) Kill() {
	m.mu.Lock()
	if m.killed {
		m.mu.Unlock()
		<-m.done
		return
	}
	m.killed = true

	stopTimer(&m.liveTimer)
	stopTimer(&m.liveRepeat)
	for expr, e := range m.debounce {
		e.t.Stop()
		delete(m.debounce, expr)
	}
	for expr, e := range m.repeat {
		e.t.Stop()
		delete(m.repeat, expr)
	}

	sub := m.subscription
	m.subscription = nil

	if !m.started {
		close(m.done)
	}
	m.mu.Unlock()

	m.cancel(errKilled)

	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			m.log.Warn("Failed to unsubscribe", "err", err)
		}
	}

	<-m.done
}

// Wait blocks until m has been killed
// or the context passed to New is canceled and the polling goroutine has returned.
func (m *Monitor) Wait() {
	<-m.done
}

// State reports the lifecycle state of m.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.killed:
		return StateKilled
	case !m.instantiated:
		return StateUninitialized
	case m.stopped:
		return StateStopped
	default:
		return StateWatching
	}
}

// IsSafe reports whether neither the liveness condition
// nor any safety-critical expression is currently violated.
func (m *Monitor) IsSafe() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.livenessSafe && m.lambdasSafe
}

// LivenessSafe reports the safety flag of the liveness condition.
func (m *Monitor) LivenessSafe() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.livenessSafe
}

// LambdasSafe reports whether no safety-critical expression is currently violated.
func (m *Monitor) LambdasSafe() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lambdasSafe
}

// ActiveViolations returns the safety-critical expressions currently violated, sorted.
func (m *Monitor) ActiveViolations() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.activeViolations))
	for expr := range m.activeViolations {
		out = append(out, expr)
	}
	slices.Sort(out)
	return out
}

func (m *Monitor) kernel() {
	defer close(m.done)

	var sigCh <-chan snwatchdog.Signal
	if m.wd != nil {
		sigCh = m.wd.Monitor(m.ctx, snwatchdog.MonitorConfig{
			Name:            "snmonitor:" + m.cfg.Subject,
			Interval:        10 * time.Second,
			Jitter:          time.Second,
			ResponseTimeout: 5 * time.Second,
		})
	}

	for {
		m.poll()

		if !m.waitPoll(sigCh) {
			m.log.Debug("Stopping monitor loop", "cause", context.Cause(m.ctx))
			return
		}
	}
}

// waitPoll blocks until the next poll is due, answering watchdog signals meanwhile.
// It reports false when the monitor's context is done.
func (m *Monitor) waitPoll(sigCh <-chan snwatchdog.Signal) bool {
	t := m.clk.Timer(m.pollInterval())
	defer t.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return false
		case sig := <-sigCh:
			close(sig.Alive)
		case <-t.C:
			return true
		}
	}
}

func (m *Monitor) pollInterval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return m.pollStopped
	}
	return m.pollWatching
}

func (m *Monitor) poll() {
	m.mu.Lock()
	skip := m.stopped || m.killed
	inst := m.instantiated
	m.mu.Unlock()

	if skip {
		return
	}
	if !inst && !m.instantiate() {
		return
	}
	m.checkLiveness()
}

// instantiate discovers the subject and subscribes to it.
// On failure it reports a warning, once per distinct reason,
// and the next poll tries again.
func (m *Monitor) instantiate() bool {
	subject := m.cfg.Subject

	exists, err := m.graph.Exists(m.ctx, subject)
	if err != nil {
		m.instantiateFailed(fmt.Sprintf(
			"Subject %s type cannot be determined, or the transport cannot be reached", subject,
		), err)
		return false
	}

	if !exists {
		if m.cfg.Liveness == LivenessNotPublished && m.cfg.SafetyCritical {
			m.mu.Lock()
			m.setLivenessSafeLocked(false)
			m.mu.Unlock()
		}
		m.instantiateFailed(fmt.Sprintf("Subject %s is not published", subject), nil)
		return false
	}

	nodes, err := m.graph.Publishers(m.ctx, subject)
	if err != nil {
		m.log.Debug("Failed to enumerate publishers", "err", err)
		m.notify(snevent.SeverityWarn, fmt.Sprintf("Could not retrieve nodes for subject %s", subject), nil)
		nodes = []string{}
	}
	m.nodes.Store(&nodes)

	sub, err := m.subscriber.Subscribe(subject, m.handler())
	if err != nil {
		m.instantiateFailed(fmt.Sprintf("Could not subscribe to subject %s", subject), err)
		return false
	}

	m.mu.Lock()
	if m.killed {
		m.mu.Unlock()
		_ = sub.Unsubscribe()
		return false
	}
	m.subscription = sub
	m.instantiated = true
	m.lastInstantiateFailure = ""
	// A subject that must never be published is already a violation once it exists.
	if m.cfg.Liveness == LivenessPublished && m.cfg.SafetyCritical {
		m.setLivenessSafeLocked(false)
	}
	m.mu.Unlock()

	m.log.Info(
		"Monitor initialized",
		"liveness", m.cfg.Liveness, "timeout", m.cfg.Timeout,
		"expressions", len(m.lambdas), "nodes", nodes,
	)
	return true
}

func (m *Monitor) instantiateFailed(text string, err error) {
	m.log.Debug("Monitor not yet initialized", "reason", text, "err", err)

	m.mu.Lock()
	repeated := m.lastInstantiateFailure == text
	m.lastInstantiateFailure = text
	m.mu.Unlock()

	if !repeated {
		m.notify(snevent.SeverityWarn, text, nil)
	}
}

// handler builds the delivery chain for the subject.
// The rate monitor sees every message;
// publication detection and content expressions see throttled traffic.
func (m *Monitor) handler() snsubject.Handler {
	content := make([]snsubject.Handler, 0, len(m.lambdas)+1)
	if m.cfg.Liveness == LivenessPublished {
		content = append(content, m.detector.Observe)
	}
	for _, l := range m.lambdas {
		f := snfilter.NewFilter(m.log, l.prog, snfilter.Callbacks{
			Satisfied: func(_ string, msg snsubject.Message) {
				m.satisfied(l, msg)
			},
			Unsatisfied: func(string) {
				m.unsatisfied(l)
			},
		})
		content = append(content, f.Observe)
	}

	return snsubject.Fanout(
		m.rate.Observe,
		snsubject.Throttle(snsubject.Fanout(content...), m.cfg.ThrottleHz, m.clk.Now),
	)
}

func (m *Monitor) notify(sev snevent.Severity, text string, payload []byte) {
	m.sink.HandleEvent(snevent.Event{
		Text:     text,
		Severity: sev,
		Subject:  m.cfg.Subject,
		Nodes:    m.Nodes(),
		Payload:  payload,
	})
}

func (m *Monitor) execute(trigger *snsubject.Message, indices []int) {
	if m.exec == nil {
		return
	}
	m.exec.Execute(m.ctx, trigger, indices)
}

func (m *Monitor) livenessKey() snsafety.Key {
	return snsafety.Key{Subject: m.cfg.Subject, Expression: m.cfg.Liveness.String()}
}

func (m *Monitor) lambdaKey(expr string) snsafety.Key {
	return snsafety.Key{Subject: m.cfg.Subject, Expression: expr}
}

// stopTimer stops and clears *e, if set.
func stopTimer(e **timerEntry) {
	if *e == nil {
		return
	}
	(*e).t.Stop()
	*e = nil
}
