// Package snsupervisor builds one condition monitor per configured subject
// and manages them as a group.
//
// The supervisor also owns the outward-facing surfaces shared by all monitors:
// the event feed, where every event is published as JSON,
// and the safety publisher, which broadcasts the aggregate safety state.
package snsupervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gordian-engine/gsentor/sn/snaction"
	"github.com/gordian-engine/gsentor/sn/snconfig"
	"github.com/gordian-engine/gsentor/sn/snevent"
	"github.com/gordian-engine/gsentor/sn/snmonitor"
	"github.com/gordian-engine/gsentor/sn/snsafety"
	"github.com/gordian-engine/gsentor/sn/snsubject"
	"github.com/gordian-engine/gsentor/sn/snwatchdog"
)

type Supervisor struct {
	log *slog.Logger
	ctx context.Context

	subscriber snsubject.Subscriber
	graph      snsubject.Graph
	publisher  snsubject.Publisher
	resolver   snaction.Resolver
	reg        *snsafety.Registry
	wd         *snwatchdog.Watchdog
	clk        clock.Clock

	extraSinks []snevent.Sink
	sink       snevent.Sink

	safetyInterval              time.Duration
	eventSubject, safetySubject string

	monitorOpts []snmonitor.Opt
	execOpts    []snaction.Opt

	safetyPub *snsafety.Publisher

	mu       sync.Mutex
	monitors []*subjectMonitor
	started  bool
	stopped  bool
}

type subjectMonitor struct {
	entry snconfig.Entry
	mon   *snmonitor.Monitor
	exec  *snaction.Executor
}

// New builds a monitor for every included entry.
// The monitors do not run until [*Supervisor.Start].
//
// If a publisher is configured, the safety publisher starts immediately
// and runs until ctx is canceled.
func New(ctx context.Context, log *slog.Logger, entries []snconfig.Entry, opts ...Opt) (*Supervisor, error) {
	s := &Supervisor{
		log: log,
		ctx: ctx,

		safetyInterval: time.Second,
		eventSubject:   DefaultEventSubject,
		safetySubject:  DefaultSafetySubject,
	}

	var err error
	for _, opt := range opts {
		err = errors.Join(err, opt(s))
	}
	if err != nil {
		return nil, err
	}

	if s.subscriber == nil {
		err = errors.Join(err, errors.New("no subscriber set (use snsupervisor.WithSubscriber)"))
	}
	if s.graph == nil {
		err = errors.Join(err, errors.New("no graph set (use snsupervisor.WithGraph)"))
	}
	if err != nil {
		return nil, err
	}

	if s.reg == nil {
		s.reg = snsafety.NewRegistry()
	}
	if s.clk == nil {
		s.clk = clock.New()
	}

	sinks := []snevent.Sink{snevent.LogSink(log.With("sys", "event"))}
	if s.publisher != nil {
		sinks = append(sinks, FeedSink(ctx, log, s.publisher, s.eventSubject))
	}
	s.sink = snevent.Fanout(append(sinks, s.extraSinks...)...)

	monitors, err := s.build(entries)
	if err != nil {
		return nil, err
	}
	s.monitors = monitors

	if s.publisher != nil {
		s.safetyPub = snsafety.NewPublisher(
			ctx, log.With("sys", "safety"), s.reg, s.publisher,
			snsafety.PublisherConfig{
				Subject:  s.safetySubject,
				Interval: s.safetyInterval,
				Clock:    s.clk,
			},
		)
	}

	return s, nil
}

func (s *Supervisor) build(entries []snconfig.Entry) ([]*subjectMonitor, error) {
	out := make([]*subjectMonitor, 0, len(entries))
	for _, e := range entries {
		if !e.Include {
			s.log.Info("Skipping excluded subject", "subject", e.Monitor.Subject)
			continue
		}

		sm, err := s.buildOne(e)
		if err != nil {
			for _, built := range out {
				built.mon.Kill()
				s.unregister(built)
			}
			return nil, fmt.Errorf("build monitor for %q: %w", e.Monitor.Subject, err)
		}
		out = append(out, sm)
	}
	return out, nil
}

func (s *Supervisor) buildOne(e snconfig.Entry) (*subjectMonitor, error) {
	subject := e.Monitor.Subject
	log := s.log.With("subject", subject)

	sm := &subjectMonitor{entry: e}

	// The monitor is assigned before it starts, and events only flow after that.
	nodes := func() []string {
		if sm.mon == nil {
			return nil
		}
		return sm.mon.Nodes()
	}
	sink := snevent.WithSubject(s.sink, subject, nodes)

	for _, sce := range e.StepErrors {
		s.reportDropped(sink, subject, sce)
	}

	if len(e.Steps) > 0 {
		eopts := []snaction.Opt{
			snaction.WithEventSink(sink),
			snaction.WithLockExec(e.LockExec),
			snaction.WithClock(s.clk),
		}
		if s.resolver != nil {
			eopts = append(eopts, snaction.WithResolver(s.resolver))
		}
		eopts = append(eopts, s.execOpts...)

		ex, err := snaction.NewExecutor(s.ctx, log.With("sys", "executor"), e.Steps, eopts...)
		if err != nil {
			return nil, err
		}
		for _, sce := range ex.Dropped() {
			s.reportDropped(sink, subject, sce)
		}
		sm.exec = ex
	}

	mopts := []snmonitor.Opt{
		snmonitor.WithSubscriber(s.subscriber),
		snmonitor.WithGraph(s.graph),
		snmonitor.WithRegistry(s.reg),
		snmonitor.WithEventSink(sink),
		snmonitor.WithClock(s.clk),
	}
	if sm.exec != nil {
		mopts = append(mopts, snmonitor.WithExecutor(sm.exec))
	}
	if s.wd != nil {
		mopts = append(mopts, snmonitor.WithWatchdog(s.wd))
	}
	mopts = append(mopts, s.monitorOpts...)

	mon, err := snmonitor.New(s.ctx, log, e.Monitor, e.Lambdas, mopts...)
	if err != nil {
		return nil, err
	}
	sm.mon = mon

	return sm, nil
}

func (s *Supervisor) reportDropped(sink snevent.Sink, subject string, sce snaction.StepConfigError) {
	sink.HandleEvent(snevent.Event{
		Text:     fmt.Sprintf("Subject %s: %v", subject, sce),
		Severity: snevent.SeverityError,
	})
}

func (s *Supervisor) unregister(sm *subjectMonitor) {
	for _, k := range sm.mon.SafetyKeys() {
		s.reg.Unregister(k)
	}
}

// Start starts every monitor.
func (s *Supervisor) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.started = true
	s.stopped = false
	for _, sm := range s.monitors {
		sm.mon.Start()
	}
	s.log.Info("Monitoring subjects", "n", len(s.monitors))
}

// StopMonitors suspends every monitor.
func (s *Supervisor) StopMonitors() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for _, sm := range s.monitors {
		sm.mon.Stop()
	}
	s.log.Warn("Stopped monitoring")
}

// StartMonitors resumes every monitor.
func (s *Supervisor) StartMonitors() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.started = true
	s.stopped = false
	for _, sm := range s.monitors {
		sm.mon.Start()
	}
	s.log.Warn("Started monitoring")
}

// Kill terminates every monitor and waits for them to finish.
func (s *Supervisor) Kill() {
	s.mu.Lock()
	monitors := s.monitors
	s.monitors = nil
	s.mu.Unlock()

	killAll(monitors)
}

func killAll(monitors []*subjectMonitor) {
	var wg sync.WaitGroup
	for _, sm := range monitors {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sm.mon.Kill()
		}()
	}
	wg.Wait()
}

// Reload replaces every monitor with monitors built from entries.
// The new monitors are started if monitoring is active.
//
// Reload returns an error only when a monitor could not be constructed,
// in which case no monitors are left running.
func (s *Supervisor) Reload(entries []snconfig.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := context.Cause(s.ctx); err != nil {
		return fmt.Errorf("supervisor is shutting down: %w", err)
	}

	killAll(s.monitors)
	for _, sm := range s.monitors {
		s.unregister(sm)
	}
	s.monitors = nil

	monitors, err := s.build(entries)
	if err != nil {
		return err
	}
	s.monitors = monitors

	// Stopped monitors are started by the next StartMonitors.
	if s.started && !s.stopped {
		for _, sm := range s.monitors {
			sm.mon.Start()
		}
	}

	s.log.Info("Reloaded configuration", "n", len(s.monitors))
	return nil
}

// Monitors returns the current monitors in configuration order.
func (s *Supervisor) Monitors() []*snmonitor.Monitor {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*snmonitor.Monitor, len(s.monitors))
	for i, sm := range s.monitors {
		out[i] = sm.mon
	}
	return out
}

// Executor returns the executor of the monitor for subject,
// or nil if the subject has no monitor or no runnable steps.
func (s *Supervisor) Executor(subject string) *snaction.Executor {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sm := range s.monitors {
		if sm.entry.Monitor.Subject == subject {
			return sm.exec
		}
	}
	return nil
}

func (s *Supervisor) Registry() *snsafety.Registry {
	return s.reg
}

// IsSafe reports whether no safety-critical condition is violated.
func (s *Supervisor) IsSafe() bool {
	return s.reg.AllSafe()
}

// Wait blocks until the context passed to New is canceled
// and the supervisor's background work has finished.
// Monitors are killed once the context is canceled.
func (s *Supervisor) Wait() {
	<-s.ctx.Done()
	s.Kill()
	if s.safetyPub != nil {
		s.safetyPub.Wait()
	}
}
