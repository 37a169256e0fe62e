package snwatchdog

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/benbjohnson/clock"
)

type MonitorConfig struct {
	// Name of the monitored loop, for reporting.
	Name string

	// The loop is signaled every Interval + [-Jitter, +Jitter).
	Interval, Jitter time.Duration

	// If the loop does not both accept the signal
	// and close its Alive channel within ResponseTimeout,
	// the watchdog terminates.
	ResponseTimeout time.Duration
}

func (c MonitorConfig) validate() error {
	var err error
	if c.Name == "" {
		err = errors.Join(err, errors.New("MonitorConfig.Name must not be empty"))
	}

	if c.Interval <= 0 {
		err = errors.Join(err, errors.New("MonitorConfig.Interval must be positive"))
	}

	if c.Jitter <= 0 {
		err = errors.Join(err, errors.New("MonitorConfig.Jitter must be positive"))
	} else if c.Jitter > c.Interval {
		err = errors.Join(err, errors.New("MonitorConfig.Jitter must not exceed MonitorConfig.Interval"))
	}

	if c.ResponseTimeout <= 0 {
		err = errors.Join(err, errors.New("MonitorConfig.ResponseTimeout must be positive"))
	}

	return err
}

// poller signals one monitored loop until ctx is done
// or the loop fails to respond.
type poller struct {
	log *slog.Logger
	clk clock.Clock
	cfg MonitorConfig

	sigCh  chan<- Signal
	cancel context.CancelCauseFunc

	// Records every acknowledged signal.
	acked func(name string, at time.Time)
}

func (p poller) run(ctx context.Context) {
	// Each poller owns its RNG so that no lock is shared between them.
	rng := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))

	for {
		j := rng.Int64N(int64(2*p.cfg.Jitter)) - int64(p.cfg.Jitter)
		timer := p.clk.Timer(p.cfg.Interval + time.Duration(j))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if !p.check(ctx) {
				return
			}
		}
	}
}

// check sends one signal and waits for its acknowledgement.
// It reports whether polling should continue.
func (p poller) check(ctx context.Context) bool {
	alive := make(chan struct{})
	timer := p.clk.Timer(p.cfg.ResponseTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case p.sigCh <- Signal{Alive: alive}:
	case <-timer.C:
		p.fail()
		return false
	}

	select {
	case <-ctx.Done():
		return false
	case <-alive:
		p.acked(p.cfg.Name, p.clk.Now())
		return true
	case <-timer.C:
		// Both cases may have been ready; prefer the acknowledgement.
		select {
		case <-alive:
			p.acked(p.cfg.Name, p.clk.Now())
			return true
		default:
			p.fail()
			return false
		}
	}
}

func (p poller) fail() {
	p.log.Error("Monitored loop failed to respond; terminating", "timeout", p.cfg.ResponseTimeout)
	p.cancel(FailureToRespondError{Name: p.cfg.Name, Timeout: p.cfg.ResponseTimeout})
}
