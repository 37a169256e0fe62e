package snmonitor

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gordian-engine/gsentor/internal/gtest"
	"github.com/gordian-engine/gsentor/sn/snevent"
	"github.com/gordian-engine/gsentor/sn/snevent/sneventtest"
	"github.com/gordian-engine/gsentor/sn/snsafety"
	"github.com/gordian-engine/gsentor/sn/snsubject"
	"github.com/gordian-engine/gsentor/sn/snsubject/snsubjecttest"
	"github.com/stretchr/testify/require"
)

type execCall struct {
	At      time.Time
	Trigger *snsubject.Message
	Indices []int
}

type recordingExecutor struct {
	clk clock.Clock

	mu    sync.Mutex
	calls []execCall
}

func (e *recordingExecutor) Execute(_ context.Context, trigger *snsubject.Message, indices []int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, execCall{At: e.clk.Now(), Trigger: trigger, Indices: slices.Clone(indices)})
}

func (e *recordingExecutor) Calls() []execCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.calls)
}

type fixture struct {
	t *testing.T

	clk  *clock.Mock
	bus  *snsubjecttest.Bus
	reg  *snsafety.Registry
	rec  *sneventtest.Recorder
	exec *recordingExecutor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clk := gtest.NewMockClock()
	bus := snsubjecttest.NewBus()
	bus.SetNow(clk.Now)

	return &fixture{
		t:    t,
		clk:  clk,
		bus:  bus,
		reg:  snsafety.NewRegistry(),
		rec:  new(sneventtest.Recorder),
		exec: &recordingExecutor{clk: clk},
	}
}

func (f *fixture) NewMonitor(cfg Config, lambdas ...LambdaConfig) *Monitor {
	f.t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	f.t.Cleanup(cancel)

	m, err := New(
		ctx, gtest.NewLogger(f.t), cfg, lambdas,
		WithSubscriber(f.bus),
		WithGraph(f.bus),
		WithRegistry(f.reg),
		WithEventSink(f.rec),
		WithExecutor(f.exec),
		WithClock(f.clk),
	)
	require.NoError(f.t, err)
	f.t.Cleanup(m.Kill)
	return m
}

// Publish sends body on subject from a fixed node.
func (f *fixture) Publish(subject, body string) {
	f.bus.PublishFrom("node-a", subject, []byte(body))
}

// Run advances the clock by total in increments of step,
// calling each (if non-nil) before every increment.
func (f *fixture) Run(total, step time.Duration, each func()) {
	for elapsed := time.Duration(0); elapsed < total; elapsed += step {
		if each != nil {
			each()
		}
		f.clk.Add(step)
		gtest.Sleep(gtest.ScaleMs(2))
	}
}

func (f *fixture) Settle() {
	gtest.Sleep(gtest.ScaleMs(10))
}

func TestNew_requiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), gtest.NewLogger(t), Config{Subject: "/a"}, nil)
	require.ErrorContains(t, err, "WithSubscriber")
	require.ErrorContains(t, err, "WithGraph")
	require.ErrorContains(t, err, "WithRegistry")
	require.ErrorContains(t, err, "WithEventSink")

	_, err = New(context.Background(), gtest.NewLogger(t), Config{}, nil)
	require.ErrorContains(t, err, "Subject")
}

func TestNew_dropsInvalidAndDuplicateExpressions(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := f.NewMonitor(
		Config{Subject: "/power"},
		LambdaConfig{Expression: "msg.voltage < 10", SafetyCritical: true},
		LambdaConfig{Expression: "msg.voltage <"},
		LambdaConfig{Expression: "msg.voltage < 10"},
		LambdaConfig{Expression: "lambda msg: msg.current > 3"},
	)

	// Expressions keep their configured text, prefix included.
	require.Equal(t, []string{"msg.voltage < 10", "lambda msg: msg.current > 3"}, m.Expressions())
	require.Len(t, f.rec.Matching("is invalid"), 1)

	_, ok := f.reg.Get(snsafety.Key{Subject: "/power", Expression: "msg.voltage < 10"})
	require.True(t, ok)
	_, ok = f.reg.Get(snsafety.Key{Subject: "/power", Expression: "lambda msg: msg.current > 3"})
	require.False(t, ok, "non-critical expressions are not registered")
}

func TestNew_floorsTimeouts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := f.NewMonitor(Config{Subject: "/a", Timeout: -time.Second})
	require.Equal(t, MinTimeout, m.Config().Timeout)
}

func TestMonitor_instantiate(t *testing.T) {
	t.Parallel()

	t.Run("subject not yet published", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		m := f.NewMonitor(Config{
			Subject:        "/scan",
			Liveness:       LivenessNotPublished,
			SafetyCritical: true,
		})

		require.False(t, m.instantiate())
		require.False(t, m.instantiate())
		require.Equal(t, StateUninitialized, m.State())

		// Reported once per distinct reason.
		require.Equal(t, []string{"Subject /scan is not published"}, f.rec.Texts())
		require.Equal(t, 1, f.rec.Count(snevent.SeverityWarn))

		// A critical "not published" condition is violated while the subject is absent.
		c, ok := f.reg.Get(snsafety.Key{Subject: "/scan", Expression: "not published"})
		require.True(t, ok)
		require.False(t, c.Safe)
		require.False(t, m.IsSafe())

		f.bus.Advertise("/scan", "lidar")
		require.True(t, m.instantiate())
		require.Equal(t, StateWatching, m.State())
		require.Equal(t, []string{"lidar"}, m.Nodes())
		require.Equal(t, 1, f.bus.Subscribers("/scan"))
	})

	t.Run("transport unreachable", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		m := f.NewMonitor(Config{Subject: "/scan"})

		f.bus.SetExistsError(fmt.Errorf("connection refused"))
		require.False(t, m.instantiate())
		require.Equal(t, []string{
			"Subject /scan type cannot be determined, or the transport cannot be reached",
		}, f.rec.Texts())
	})

	t.Run("nodes cannot be enumerated", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		m := f.NewMonitor(Config{Subject: "/scan"})

		f.bus.Advertise("/scan", "lidar")
		f.bus.SetPublishersError(fmt.Errorf("graph unavailable"))
		require.True(t, m.instantiate())
		require.Empty(t, m.Nodes())
		require.Equal(t, []string{"Could not retrieve nodes for subject /scan"}, f.rec.Texts())
	})
}

func TestMonitor_notPublished_debounced(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := f.NewMonitor(Config{
		Subject:              "/battery",
		Liveness:             LivenessNotPublished,
		Timeout:              2 * time.Second,
		SafetyCritical:       true,
		DefaultNotifications: true,
	})
	f.bus.Advertise("/battery")
	require.True(t, m.instantiate())

	// Silent for 1.5s, then back before the timeout.
	f.Run(1500*time.Millisecond, 100*time.Millisecond, m.checkLiveness)
	f.Publish("/battery", `{"voltage":12}`)
	m.checkLiveness()

	f.Run(3*time.Second, 100*time.Millisecond, func() {
		f.Publish("/battery", `{"voltage":12}`)
		m.checkLiveness()
	})
	f.Settle()

	require.Zero(t, f.rec.Len())
	require.Empty(t, f.exec.Calls())
	require.True(t, m.IsSafe())
}

func TestMonitor_notPublished_battery(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := f.NewMonitor(Config{
		Subject:              "/battery",
		Liveness:             LivenessNotPublished,
		Timeout:              2 * time.Second,
		SafetyCritical:       true,
		DefaultNotifications: true,
	})
	f.bus.Advertise("/battery", "bms")
	require.True(t, m.instantiate())

	start := f.clk.Now()
	f.Run(5*time.Second, 100*time.Millisecond, m.checkLiveness)
	f.Settle()

	require.Equal(t, []string{"SAFETY CRITICAL: Subject /battery is not published anymore"}, f.rec.Texts())
	ev := f.rec.Events()[0]
	require.Equal(t, snevent.SeverityError, ev.Severity)
	require.Equal(t, []string{"bms"}, ev.Nodes)

	calls := f.exec.Calls()
	require.Len(t, calls, 1)
	require.Nil(t, calls[0].Trigger)
	require.InDelta(t, float64(2*time.Second), float64(calls[0].At.Sub(start)), float64(100*time.Millisecond))

	c, ok := f.reg.Get(snsafety.Key{Subject: "/battery", Expression: "not published"})
	require.True(t, ok)
	require.False(t, c.Safe)
	require.False(t, m.LivenessSafe())

	// Traffic resumes and the condition is safe again.
	f.Publish("/battery", `{}`)
	m.checkLiveness()
	require.True(t, m.LivenessSafe())
	c, _ = f.reg.Get(snsafety.Key{Subject: "/battery", Expression: "not published"})
	require.True(t, c.Safe)
}

func TestMonitor_notPublished_warnWithoutSafetyCritical(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := f.NewMonitor(Config{
		Subject:              "/odom",
		Liveness:             LivenessNotPublished,
		Timeout:              time.Second,
		DefaultNotifications: true,
		ProcessIndices:       []int{1},
	})
	f.bus.Advertise("/odom")
	require.True(t, m.instantiate())

	f.Run(2*time.Second, 100*time.Millisecond, m.checkLiveness)
	f.Settle()

	require.Equal(t, []string{"Subject /odom is not published anymore"}, f.rec.Texts())
	require.Equal(t, 1, f.rec.Count(snevent.SeverityWarn))
	require.True(t, m.IsSafe())

	calls := f.exec.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, []int{1}, calls[0].Indices)
}

func TestMonitor_notPublished_repeatExec(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := f.NewMonitor(Config{
		Subject:              "/heartbeat",
		Liveness:             LivenessNotPublished,
		Timeout:              time.Second,
		DefaultNotifications: true,
		RepeatExec:           true,
	})
	f.bus.Advertise("/heartbeat")
	require.True(t, m.instantiate())

	start := f.clk.Now()
	m.checkLiveness()
	f.Run(3*time.Second, 100*time.Millisecond, m.checkLiveness)
	f.Settle()

	calls := f.exec.Calls()
	require.Len(t, calls, 3)
	for i, c := range calls {
		require.InDelta(t, float64(time.Duration(i+1)*time.Second), float64(c.At.Sub(start)), float64(100*time.Millisecond))
	}

	// One notification for the episode, regardless of the repeats.
	require.Equal(t, 1, f.rec.Len())

	// Resuming traffic stops the repeats.
	f.Run(3*time.Second, 100*time.Millisecond, func() {
		f.Publish("/heartbeat", `{}`)
		m.checkLiveness()
	})
	f.Settle()
	require.Len(t, f.exec.Calls(), 3)
}

func TestMonitor_published(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := f.NewMonitor(Config{
		Subject:              "/estop",
		Liveness:             LivenessPublished,
		SafetyCritical:       true,
		DefaultNotifications: true,
	})
	require.True(t, m.IsSafe())

	f.bus.Advertise("/estop")
	require.True(t, m.instantiate())

	// The subject exists, which is already unsafe before any message arrives.
	require.False(t, m.IsSafe())
	c, ok := f.reg.Get(snsafety.Key{Subject: "/estop", Expression: "published"})
	require.True(t, ok)
	require.False(t, c.Safe)
	require.Empty(t, f.rec.Texts())

	f.Publish("/estop", `{"data":true}`)

	require.Equal(t, []string{"SAFETY CRITICAL: Subject /estop is published"}, f.rec.Texts())
	require.False(t, m.IsSafe())
	c, _ = f.reg.Get(snsafety.Key{Subject: "/estop", Expression: "published"})
	require.False(t, c.Safe)

	// Publication is a point event; traffic does not restore safety.
	f.Run(time.Second, 100*time.Millisecond, m.checkLiveness)
	require.False(t, m.IsSafe())

	f.Settle()
	require.Empty(t, f.exec.Calls())
}

func TestMonitor_published_notCritical(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := f.NewMonitor(Config{
		Subject:              "/bumper",
		Liveness:             LivenessPublished,
		DefaultNotifications: true,
	})
	f.bus.Advertise("/bumper")
	require.True(t, m.instantiate())
	require.True(t, m.IsSafe())

	f.Publish("/bumper", `{"pressed":true}`)
	require.Equal(t, []string{"Subject /bumper is published"}, f.rec.Texts())
	require.True(t, m.IsSafe())
}

func voltageMonitor(f *fixture, lc LambdaConfig) *Monitor {
	f.t.Helper()

	if lc.Expression == "" {
		lc.Expression = "msg.voltage < 10"
	}
	m := f.NewMonitor(Config{Subject: "/power"}, lc)
	f.bus.Advertise("/power")
	require.True(f.t, m.instantiate())
	return m
}

func TestMonitor_expression_cancelledBeforeTimeout(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := voltageMonitor(f, LambdaConfig{
		Timeout:              time.Second,
		SafetyCritical:       true,
		DefaultNotifications: true,
	})

	f.Run(500*time.Millisecond, 100*time.Millisecond, func() {
		f.Publish("/power", `{"voltage":9.5}`)
	})
	f.Publish("/power", `{"voltage":11}`)

	f.Run(2*time.Second, 100*time.Millisecond, nil)
	f.Settle()

	require.Zero(t, f.rec.Len())
	require.Empty(t, f.exec.Calls())
	require.True(t, m.IsSafe())
	c, _ := f.reg.Get(snsafety.Key{Subject: "/power", Expression: "msg.voltage < 10"})
	require.True(t, c.Safe)
}

func TestMonitor_expression_fires(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := voltageMonitor(f, LambdaConfig{
		Timeout:              time.Second,
		SafetyCritical:       true,
		DefaultNotifications: true,
		ProcessIndices:       []int{0, 2},
	})
	key := snsafety.Key{Subject: "/power", Expression: "msg.voltage < 10"}

	f.Publish("/power", `{"voltage":9}`)
	f.Run(2500*time.Millisecond, 100*time.Millisecond, func() {
		f.Publish("/power", `{"voltage":8}`)
	})
	f.Settle()

	require.Equal(t, []string{
		"SAFETY CRITICAL: Expression 'msg.voltage < 10' for 1 seconds on subject /power satisfied",
	}, f.rec.Texts())
	ev := f.rec.Events()[0]
	require.Equal(t, snevent.SeverityError, ev.Severity)
	require.JSONEq(t, `{"voltage":9}`, string(ev.Payload))

	calls := f.exec.Calls()
	require.Len(t, calls, 1)
	require.NotNil(t, calls[0].Trigger)
	require.JSONEq(t, `{"voltage":9}`, string(calls[0].Trigger.Data))
	require.Equal(t, []int{0, 2}, calls[0].Indices)

	require.False(t, m.LambdasSafe())
	require.Equal(t, []string{"msg.voltage < 10"}, m.ActiveViolations())
	c, _ := f.reg.Get(key)
	require.False(t, c.Safe)

	// Unsatisfied clears the violation.
	f.Publish("/power", `{"voltage":12}`)
	require.True(t, m.LambdasSafe())
	require.Empty(t, m.ActiveViolations())
	c, _ = f.reg.Get(key)
	require.True(t, c.Safe)

	// A new episode starts a fresh timer.
	f.Run(1500*time.Millisecond, 100*time.Millisecond, func() {
		f.Publish("/power", `{"voltage":7}`)
	})
	f.Settle()
	require.Equal(t, 2, f.rec.Len())
	require.Len(t, f.exec.Calls(), 2)
}

func TestMonitor_expression_repeatExec(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	voltageMonitor(f, LambdaConfig{
		Timeout:              time.Second,
		DefaultNotifications: true,
		RepeatExec:           true,
	})

	f.Run(3500*time.Millisecond, 100*time.Millisecond, func() {
		f.Publish("/power", `{"voltage":9}`)
	})
	f.Settle()

	require.Equal(t, 1, f.rec.Count(snevent.SeverityWarn))
	require.Len(t, f.exec.Calls(), 3)

	f.Publish("/power", `{"voltage":12}`)
	f.Run(3*time.Second, 100*time.Millisecond, nil)
	f.Settle()
	require.Len(t, f.exec.Calls(), 3)
}

func TestMonitor_expression_whenPublishedGate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := voltageMonitor(f, LambdaConfig{
		Timeout:              2 * time.Second,
		DefaultNotifications: true,
		WhenPublished:        true,
	})

	// A single message, then silence past the staleness window.
	f.Publish("/power", `{"voltage":9}`)
	f.Run(2500*time.Millisecond, 100*time.Millisecond, nil)
	f.Settle()

	require.Zero(t, f.rec.Len())
	require.Empty(t, f.exec.Calls())

	m.mu.Lock()
	_, pending := m.debounce["msg.voltage < 10"]
	m.mu.Unlock()
	require.False(t, pending, "gate failure discards the timer")

	// With steady traffic the gate is open.
	f.Run(2500*time.Millisecond, 100*time.Millisecond, func() {
		f.Publish("/power", `{"voltage":9}`)
	})
	f.Settle()
	require.Equal(t, 1, f.rec.Len())
	require.Len(t, f.exec.Calls(), 1)
}

func TestMonitor_expression_notificationsSuppressed(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	voltageMonitor(f, LambdaConfig{Timeout: time.Second})

	f.Run(1500*time.Millisecond, 100*time.Millisecond, func() {
		f.Publish("/power", `{"voltage":9}`)
	})
	f.Settle()

	require.Zero(t, f.rec.Len())
	require.Len(t, f.exec.Calls(), 1)
}

func TestMonitor_expressionsAreIndependent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := f.NewMonitor(
		Config{Subject: "/power"},
		LambdaConfig{Expression: "msg.voltage < 10", Timeout: time.Second, SafetyCritical: true},
		LambdaConfig{Expression: "msg.current > 5", Timeout: 2 * time.Second, SafetyCritical: true},
	)
	f.bus.Advertise("/power")
	require.True(t, m.instantiate())

	f.Run(1500*time.Millisecond, 100*time.Millisecond, func() {
		f.Publish("/power", `{"voltage":9,"current":6}`)
	})
	f.Settle()
	require.Equal(t, []string{"msg.voltage < 10"}, m.ActiveViolations())

	f.Run(time.Second, 100*time.Millisecond, func() {
		f.Publish("/power", `{"voltage":12,"current":6}`)
	})
	f.Settle()
	require.Equal(t, []string{"msg.current > 5"}, m.ActiveViolations())
	require.False(t, m.LambdasSafe())
}

func TestMonitor_safetyInvariant(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	exprs := []string{"msg.a > 0", "msg.b > 0", "msg.c > 0"}
	lambdas := make([]LambdaConfig, len(exprs))
	for i, e := range exprs {
		lambdas[i] = LambdaConfig{Expression: e, Timeout: 200 * time.Millisecond, SafetyCritical: true}
	}
	m := f.NewMonitor(Config{Subject: "/flags"}, lambdas...)
	f.bus.Advertise("/flags")
	require.True(t, m.instantiate())

	rng := rand.New(rand.NewPCG(1, 2))
	for range 60 {
		body := fmt.Sprintf(`{"a":%d,"b":%d,"c":%d}`, rng.IntN(2), rng.IntN(2), rng.IntN(2))
		f.Publish("/flags", body)
		f.Run(100*time.Millisecond, 100*time.Millisecond, nil)
		f.Settle()

		m.mu.Lock()
		require.Equal(t, len(m.activeViolations) == 0, m.lambdasSafe, "after %s", body)
		for _, e := range exprs {
			_, active := m.activeViolations[e]
			c, _ := f.reg.Get(snsafety.Key{Subject: "/flags", Expression: e})
			require.Equal(t, !active, c.Safe, "registry for %s after %s", e, body)
		}
		m.mu.Unlock()
	}
}

func TestMonitor_stoppedIgnoresMessages(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := voltageMonitor(f, LambdaConfig{Timeout: time.Second, DefaultNotifications: true})
	m.Start()
	require.Eventually(t, func() bool { return m.State() == StateWatching }, time.Second, time.Millisecond)

	// A timer armed before the stop still fires.
	f.Publish("/power", `{"voltage":9}`)
	m.Stop()
	require.Equal(t, StateStopped, m.State())

	f.Run(1500*time.Millisecond, 100*time.Millisecond, nil)
	f.Settle()
	require.Equal(t, 1, f.rec.Len())

	// New messages are ignored while stopped.
	f.Publish("/power", `{"voltage":12}`)
	require.Equal(t, 1, f.bus.Subscribers("/power"))
	m.mu.Lock()
	_, pending := m.debounce["msg.voltage < 10"]
	m.mu.Unlock()
	require.True(t, pending, "unsatisfied is ignored while stopped")

	m.Start()
	require.Equal(t, StateWatching, m.State())
	f.Publish("/power", `{"voltage":12}`)
	m.mu.Lock()
	_, pending = m.debounce["msg.voltage < 10"]
	m.mu.Unlock()
	require.False(t, pending)
}

func TestMonitor_lifecycle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := f.NewMonitor(Config{Subject: "/scan"})
	require.Equal(t, StateUninitialized, m.State())

	m.Start()

	// The first poll finds nothing.
	require.Eventually(t, func() bool { return f.rec.Len() == 1 }, time.Second, time.Millisecond)
	require.Equal(t, StateUninitialized, m.State())

	f.bus.Advertise("/scan")
	f.Run(time.Second, 100*time.Millisecond, nil)
	require.Eventually(t, func() bool { return m.State() == StateWatching }, time.Second, time.Millisecond)

	m.Kill()
	require.Equal(t, StateKilled, m.State())
	require.Zero(t, f.bus.Subscribers("/scan"))
	m.Wait()

	// Start after Kill is ignored.
	m.Start()
	require.Equal(t, StateKilled, m.State())
}

func TestMonitor_killCancelsTimers(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := voltageMonitor(f, LambdaConfig{
		Timeout:              time.Second,
		DefaultNotifications: true,
		RepeatExec:           true,
	})
	f.Publish("/power", `{"voltage":9}`)

	m.Kill()
	f.Run(3*time.Second, 100*time.Millisecond, nil)
	f.Settle()

	require.Zero(t, f.rec.Len())
	require.Empty(t, f.exec.Calls())
}

func TestMonitor_killBeforeStart(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := f.NewMonitor(Config{Subject: "/scan"})

	m.Kill()
	gtest.ReceiveSoon(t, waitChan(m))
}

func waitChan(m *Monitor) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		m.Wait()
		close(ch)
	}()
	return ch
}

func TestParseLiveness(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Liveness{
		"":              LivenessNone,
		"none":          LivenessNone,
		"published":     LivenessPublished,
		"Not Published": LivenessNotPublished,
		"not_published": LivenessNotPublished,
	} {
		got, err := ParseLiveness(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	_, err := ParseLiveness("sometimes")
	require.Error(t, err)
}

func TestSeconds(t *testing.T) {
	t.Parallel()

	require.Equal(t, "1", seconds(time.Second))
	require.Equal(t, "0.1", seconds(MinTimeout))
	require.Equal(t, "2.5", seconds(2500*time.Millisecond))
}
