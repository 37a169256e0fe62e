package snnats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gordian-engine/gsentor/sn/snaction"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/micro"
)

const (
	// DefaultDiscoveryInterval is how often readiness is re-checked while waiting.
	DefaultDiscoveryInterval = 250 * time.Millisecond

	// DefaultGoalTimeout bounds how long a dispatched goal may run
	// before it is reported as lost.
	DefaultGoalTimeout = 10 * time.Minute

	// How long a discovery round collects replies from services.
	discoveryGather = 100 * time.Millisecond
)

// GoalSubject returns the subject on which the action server at namespace accepts goals.
func GoalSubject(namespace string) string {
	return namespace + ".goal"
}

// Resolver implements [snaction.Resolver] on top of a [Conn].
//
// Services and action servers are expected to be NATS micro services;
// an endpoint is ready once some service reports it through $SRV.INFO.
type Resolver struct {
	log *slog.Logger
	c   *Conn

	discoveryInterval time.Duration
	goalTimeout       time.Duration
}

func NewResolver(log *slog.Logger, c *Conn) *Resolver {
	return &Resolver{
		log:               log,
		c:                 c,
		discoveryInterval: DefaultDiscoveryInterval,
		goalTimeout:       DefaultGoalTimeout,
	}
}

func (r *Resolver) ResolveService(ctx context.Context, name string) (snaction.ServiceClient, error) {
	if err := r.waitForEndpoint(ctx, name); err != nil {
		return nil, err
	}
	return serviceClient{nc: r.c.nc, subject: name}, nil
}

func (r *Resolver) ResolvePublisher(_ context.Context, subject string, latched bool) (snaction.PublishTarget, error) {
	return publishTarget{c: r.c, subject: subject, latched: latched}, nil
}

func (r *Resolver) ResolveGoal(ctx context.Context, namespace, spec string) (snaction.GoalClient, error) {
	subject := GoalSubject(namespace)
	if err := r.waitForEndpoint(ctx, subject); err != nil {
		return nil, err
	}
	return &goalClient{
		log:     r.log.With("namespace", namespace),
		c:       r.c,
		subject: subject,
		spec:    spec,
		timeout: r.goalTimeout,
	}, nil
}

// waitForEndpoint polls service discovery until an endpoint with the given subject
// is reported or ctx is done.
func (r *Resolver) waitForEndpoint(ctx context.Context, subject string) error {
	for {
		infos, err := r.discover(ctx)
		if err != nil {
			r.log.Debug("Service discovery failed", "err", err)
		} else if hasEndpoint(infos, subject) {
			return nil
		}

		t := time.NewTimer(r.discoveryInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("%w: %s: %w", snaction.ErrNotReady, subject, context.Cause(ctx))
		case <-t.C:
		}
	}
}

// discover broadcasts one $SRV.INFO request and gathers the replies
// that arrive within a short window.
func (r *Resolver) discover(ctx context.Context) ([]micro.Info, error) {
	subject, err := micro.ControlSubject(micro.InfoVerb, "", "")
	if err != nil {
		return nil, err
	}

	nc := r.c.nc
	inbox := nc.NewRespInbox()
	replies := make(chan *nats.Msg, 64)
	sub, err := nc.ChanSubscribe(inbox, replies)
	if err != nil {
		return nil, fmt.Errorf("subscribe to discovery inbox: %w", err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	if err := nc.PublishRequest(subject, inbox, nil); err != nil {
		return nil, fmt.Errorf("publish discovery request: %w", err)
	}

	t := time.NewTimer(discoveryGather)
	defer t.Stop()

	var infos []micro.Info
	for {
		select {
		case <-ctx.Done():
			return infos, nil
		case <-t.C:
			return infos, nil
		case m := <-replies:
			var info micro.Info
			if err := json.Unmarshal(m.Data, &info); err != nil {
				r.log.Debug("Ignoring malformed discovery reply", "err", err)
				continue
			}
			infos = append(infos, info)
		}
	}
}

func hasEndpoint(infos []micro.Info, subject string) bool {
	for _, info := range infos {
		if slices.ContainsFunc(info.Endpoints, func(e micro.EndpointInfo) bool {
			return e.Subject == subject
		}) {
			return true
		}
	}
	return false
}

type serviceClient struct {
	nc      *nats.Conn
	subject string
}

func (s serviceClient) Call(ctx context.Context, req []byte) (snaction.ServiceResponse, error) {
	m, err := s.nc.RequestWithContext(ctx, s.subject, req)
	if err != nil {
		return snaction.ServiceResponse{}, err
	}
	return decodeServiceResponse(m)
}

// decodeServiceResponse interprets a service reply.
// A micro error header is an error;
// an empty body is an unsuccessful call.
func decodeServiceResponse(m *nats.Msg) (snaction.ServiceResponse, error) {
	if m.Header != nil {
		if desc := m.Header.Get(micro.ErrorHeader); desc != "" {
			return snaction.ServiceResponse{}, fmt.Errorf(
				"service error %s: %s", m.Header.Get(micro.ErrorCodeHeader), desc,
			)
		}
	}

	var resp snaction.ServiceResponse
	if len(m.Data) == 0 {
		return resp, nil
	}
	if err := json.Unmarshal(m.Data, &resp); err != nil {
		return snaction.ServiceResponse{}, fmt.Errorf("decode service response: %w", err)
	}
	return resp, nil
}

type publishTarget struct {
	c       *Conn
	subject string
	latched bool
}

func (p publishTarget) Publish(_ context.Context, data []byte) error {
	return p.c.publish(p.subject, data, p.latched)
}

// GoalRequest is sent to an action server's goal subject.
type GoalRequest struct {
	ID   string          `json:"id"`
	Spec string          `json:"spec"`
	Goal json.RawMessage `json:"goal,omitempty"`

	// The server reports progress as [GoalUpdate] messages on this subject.
	StatusSubject string `json:"status_subject"`
}

// GoalAck is the action server's immediate reply to a [GoalRequest].
type GoalAck struct {
	Accepted bool   `json:"accepted"`
	Message  string `json:"message,omitempty"`
}

// GoalUpdate reports the status of a goal.
// Statuses other than the names of [snaction.GoalStatus] values,
// such as "pending" or "active", are not terminal.
type GoalUpdate struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type goalClient struct {
	log     *slog.Logger
	c       *Conn
	subject string
	spec    string
	timeout time.Duration
}

func (g *goalClient) SendGoal(ctx context.Context, goal []byte, done func(snaction.GoalStatus)) error {
	id := uuid.NewString()
	statusSubject := g.c.nc.NewRespInbox()

	var once sync.Once
	var sub *nats.Subscription
	var timer *time.Timer
	finish := func(st snaction.GoalStatus) {
		once.Do(func() {
			if timer != nil {
				timer.Stop()
			}
			if sub != nil {
				_ = sub.Unsubscribe()
			}
			done(st)
		})
	}

	var mu sync.Mutex
	mu.Lock()
	sub, err := g.c.nc.Subscribe(statusSubject, func(m *nats.Msg) {
		// Wait until sub and timer are assigned.
		mu.Lock()
		mu.Unlock()

		st, terminal, err := parseGoalUpdate(m.Data, id)
		if err != nil {
			g.log.Debug("Ignoring goal update", "id", id, "err", err)
			return
		}
		if terminal {
			finish(st)
		}
	})
	if err != nil {
		mu.Unlock()
		return fmt.Errorf("subscribe to goal status: %w", err)
	}
	timer = time.AfterFunc(g.timeout, func() {
		g.log.Warn("Goal timed out", "id", id, "timeout", g.timeout)
		finish(snaction.GoalLost)
	})
	mu.Unlock()

	req, err := json.Marshal(GoalRequest{
		ID:            id,
		Spec:          g.spec,
		Goal:          json.RawMessage(goal),
		StatusSubject: statusSubject,
	})
	if err != nil {
		finish(snaction.GoalStatusUnknown)
		return fmt.Errorf("encode goal: %w", err)
	}

	m, err := g.c.nc.RequestWithContext(ctx, g.subject, req)
	if err != nil {
		once.Do(func() {
			timer.Stop()
			_ = sub.Unsubscribe()
		})
		return err
	}

	var ack GoalAck
	if err := json.Unmarshal(m.Data, &ack); err != nil {
		once.Do(func() {
			timer.Stop()
			_ = sub.Unsubscribe()
		})
		return fmt.Errorf("decode goal acknowledgement: %w", err)
	}
	if !ack.Accepted {
		g.log.Info("Goal rejected", "id", id, "reason", ack.Message)
		finish(snaction.GoalRejected)
	}
	return nil
}

// parseGoalUpdate decodes a status update for the goal with the given id.
func parseGoalUpdate(data []byte, id string) (st snaction.GoalStatus, terminal bool, err error) {
	var u GoalUpdate
	if err := json.Unmarshal(data, &u); err != nil {
		return snaction.GoalStatusUnknown, false, fmt.Errorf("decode goal update: %w", err)
	}
	if u.ID != id {
		return snaction.GoalStatusUnknown, false, errors.New("update for a different goal")
	}
	st, terminal = snaction.ParseGoalStatus(u.Status)
	return st, terminal, nil
}

var _ snaction.Resolver = (*Resolver)(nil)
