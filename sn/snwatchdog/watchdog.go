package snwatchdog

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gordian-engine/gsentor/internal/gchan"
)

type Watchdog struct {
	log *slog.Logger
	clk clock.Clock

	cancel          context.CancelCauseFunc
	monitorRequests chan monitorRequest

	mu       sync.Mutex
	lastAcks map[string]time.Time

	// The number of pollers is not known up front.
	wg sync.WaitGroup
}

// Opt is an option for [NewWatchdog].
type Opt func(*Watchdog)

// WithClock sets the clock used for signal intervals and response timeouts.
func WithClock(c clock.Clock) Opt {
	return func(w *Watchdog) {
		w.clk = c
	}
}

// NewWatchdog returns a new Watchdog and a context derived from ctx.
//
// The returned context is canceled when a loop registered through [*Watchdog.Monitor]
// fails to respond within its response timeout,
// or upon a call to [*Watchdog.Terminate].
func NewWatchdog(ctx context.Context, log *slog.Logger, opts ...Opt) (*Watchdog, context.Context) {
	w := newWatchdog(log, opts)
	w.monitorRequests = make(chan monitorRequest) // Unbuffered: requests are synchronous.
	return w, w.start(ctx)
}

// NewNopWatchdog returns a Watchdog that ignores calls to [*Watchdog.Monitor]
// but still honors Terminate.
func NewNopWatchdog(ctx context.Context, log *slog.Logger) (*Watchdog, context.Context) {
	w := newWatchdog(log, nil)
	return w, w.start(ctx)
}

func newWatchdog(log *slog.Logger, opts []Opt) *Watchdog {
	w := &Watchdog{
		log:      log,
		lastAcks: make(map[string]time.Time),
	}
	for _, o := range opts {
		o(w)
	}
	if w.clk == nil {
		w.clk = clock.New()
	}
	return w
}

func (w *Watchdog) start(ctx context.Context) context.Context {
	wCtx, cancel := context.WithCancelCause(ctx)
	w.cancel = cancel
	w.wg.Add(1)
	go w.kernel(ctx, wCtx)
	return wCtx
}

// Wait blocks until w's goroutines complete.
// They are tied to the context passed to [NewWatchdog];
// a termination alone does not stop them.
func (w *Watchdog) Wait() {
	w.wg.Wait()
}

// Terminate cancels the watchdog context with a [ForcedTerminationError].
func (w *Watchdog) Terminate(reason string) {
	w.cancel(ForcedTerminationError{Reason: reason})
}

// LastAcks returns, per monitored name, the time of the most recent acknowledged signal.
func (w *Watchdog) LastAcks() map[string]time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return maps.Clone(w.lastAcks)
}

// Names returns the names of loops that have acknowledged at least one signal, sorted.
func (w *Watchdog) Names() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Sorted(maps.Keys(w.lastAcks))
}

func (w *Watchdog) ack(name string, at time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastAcks[name] = at
}

func (w *Watchdog) kernel(rootCtx, wCtx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-rootCtx.Done():
			w.log.Info("Stopping due to root context cancellation", "cause", context.Cause(rootCtx))
			return
		case req := <-w.monitorRequests:
			sigCh := make(chan Signal) // Unbuffered: acceptance must be synchronous.

			// The poller stops with either the watchdog or the requester.
			pCtx, pCancel := context.WithCancel(wCtx)
			stop := context.AfterFunc(req.Ctx, pCancel)

			p := poller{
				log:    w.log.With("target", req.Cfg.Name),
				clk:    w.clk,
				cfg:    req.Cfg,
				sigCh:  sigCh,
				cancel: w.cancel,
				acked:  w.ack,
			}

			w.wg.Add(1)
			go func() {
				defer w.wg.Done()
				defer pCancel()
				defer stop()
				p.run(pCtx)
			}()

			req.Resp <- sigCh
		}
	}
}

type monitorRequest struct {
	Ctx context.Context
	Cfg MonitorConfig

	Resp chan (<-chan Signal)
}

// Monitor registers a loop with the watchdog.
// The loop must receive from the returned channel
// and close [Signal.Alive] promptly on each signal.
// Signals stop once ctx is done.
//
// The returned channel is nil when w is a nop watchdog,
// or when ctx is canceled before the registration completes.
//
// Monitor panics if cfg is invalid.
func (w *Watchdog) Monitor(ctx context.Context, cfg MonitorConfig) <-chan Signal {
	if err := cfg.validate(); err != nil {
		panic(fmt.Errorf("(*Watchdog).Monitor: MonitorConfig is invalid: %w", err))
	}

	if w.monitorRequests == nil {
		return nil
	}

	req := monitorRequest{
		Ctx:  ctx,
		Cfg:  cfg,
		Resp: make(chan (<-chan Signal), 1),
	}

	ch, _ := gchan.ReqResp(
		ctx, w.log,
		w.monitorRequests, req,
		req.Resp,
		"watchdog registration",
	)
	return ch
}

// Signal is delivered on the channel returned by [*Watchdog.Monitor].
type Signal struct {
	// Close to acknowledge the signal. Never nil.
	Alive chan<- struct{}
}
