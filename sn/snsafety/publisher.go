package snsafety

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gordian-engine/gsentor/sn/snsubject"
)

// State is the document broadcast by a [Publisher].
type State struct {
	Safe       bool        `json:"safe"`
	Violations []Violation `json:"violations"`
}

// Violation is one unsafe condition within a [State].
type Violation struct {
	Subject    string   `json:"subject"`
	Expression string   `json:"expression"`
	Tags       []string `json:"tags,omitempty"`
}

// CurrentState builds the broadcast document from the registry.
func CurrentState(r *Registry) State {
	vs := r.Violations()
	s := State{
		Safe:       len(vs) == 0,
		Violations: make([]Violation, 0, len(vs)),
	}
	for _, c := range vs {
		s.Violations = append(s.Violations, Violation{
			Subject:    c.Subject,
			Expression: c.Expression,
			Tags:       c.Tags,
		})
	}
	return s
}

// Publisher periodically broadcasts the aggregate safety state,
// and also broadcasts immediately whenever the registry changes.
type Publisher struct {
	log *slog.Logger

	reg     *Registry
	out     snsubject.Publisher
	subject string

	interval time.Duration
	clk      clock.Clock

	done chan struct{}
}

// PublisherConfig configures a [Publisher].
type PublisherConfig struct {
	Subject  string
	Interval time.Duration

	// Clock defaults to the real clock when nil.
	Clock clock.Clock
}

// NewPublisher starts a Publisher that runs until ctx is canceled.
func NewPublisher(
	ctx context.Context,
	log *slog.Logger,
	reg *Registry,
	out snsubject.Publisher,
	cfg PublisherConfig,
) *Publisher {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Second
	}

	p := &Publisher{
		log:      log,
		reg:      reg,
		out:      out,
		subject:  cfg.Subject,
		interval: interval,
		clk:      clk,
		done:     make(chan struct{}),
	}
	go p.kernel(ctx)
	return p
}

// Wait blocks until p's background goroutine finishes.
func (p *Publisher) Wait() {
	<-p.done
}

func (p *Publisher) kernel(ctx context.Context) {
	defer close(p.done)

	ticker := p.clk.Ticker(p.interval)
	defer ticker.Stop()

	for {
		// Capture the change channel before publishing,
		// so a change during the publish is not missed.
		changed := p.reg.Changed()
		p.publish(ctx)

		select {
		case <-ctx.Done():
			p.log.Info("Stopping safety publisher", "cause", context.Cause(ctx))
			return
		case <-ticker.C:
		case <-changed:
		}
	}
}

func (p *Publisher) publish(ctx context.Context) {
	s := CurrentState(p.reg)
	b, err := json.Marshal(s)
	if err != nil {
		p.log.Error("Failed to encode safety state", "err", err)
		return
	}
	if err := p.out.Publish(ctx, p.subject, b); err != nil {
		if ctx.Err() == nil {
			p.log.Warn("Failed to publish safety state", "subject", p.subject, "err", err)
		}
		return
	}
	if !s.Safe {
		p.log.Debug("Published unsafe state", "violations", len(s.Violations))
	}
}
