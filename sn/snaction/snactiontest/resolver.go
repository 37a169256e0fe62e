// Package snactiontest contains a fake [snaction.Resolver] for tests.
package snactiontest

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/gordian-engine/gsentor/sn/snaction"
)

// ServiceFunc handles a call to a fake service.
type ServiceFunc func(req []byte) (snaction.ServiceResponse, error)

// GoalFunc handles a goal sent to a fake action server.
// The returned status is reported to the goal's done callback
// on a separate goroutine.
type GoalFunc func(goal []byte) snaction.GoalStatus

// Op is one operation recorded by the [Resolver].
type Op struct {
	// One of "call", "publish", or "goal".
	Kind string

	// The service name, subject, or action namespace.
	Target string

	Payload []byte
}

func (o Op) String() string {
	return fmt.Sprintf("%s:%s", o.Kind, o.Target)
}

// Resolver is an in-memory [snaction.Resolver].
// Endpoints must be added before the executor is built.
type Resolver struct {
	mu sync.Mutex

	services   map[string]ServiceFunc
	goals      map[string]GoalFunc
	publishers map[string]bool

	ops []Op
}

func NewResolver() *Resolver {
	return &Resolver{
		services:   make(map[string]ServiceFunc),
		goals:      make(map[string]GoalFunc),
		publishers: make(map[string]bool),
	}
}

// AddService makes the named service resolvable.
func (r *Resolver) AddService(name string, fn ServiceFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[name] = fn
}

// AddGoalServer makes the action server at namespace resolvable.
func (r *Resolver) AddGoalServer(namespace string, fn GoalFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.goals[namespace] = fn
}

// AddPublisher makes subject resolvable as a publish target.
func (r *Resolver) AddPublisher(subject string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publishers[subject] = true
}

// Ops returns every recorded operation in order.
func (r *Resolver) Ops() []Op {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.ops)
}

// OpStrings returns the String form of every recorded operation.
func (r *Resolver) OpStrings() []string {
	ops := r.Ops()
	out := make([]string, len(ops))
	for i, o := range ops {
		out[i] = o.String()
	}
	return out
}

func (r *Resolver) record(kind, target string, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, Op{Kind: kind, Target: target, Payload: slices.Clone(payload)})
}

func (r *Resolver) ResolveService(ctx context.Context, name string) (snaction.ServiceClient, error) {
	r.mu.Lock()
	fn, ok := r.services[name]
	r.mu.Unlock()
	if !ok {
		return nil, snaction.ErrNotReady
	}
	return serviceClient{r: r, name: name, fn: fn}, nil
}

func (r *Resolver) ResolvePublisher(ctx context.Context, subject string, latched bool) (snaction.PublishTarget, error) {
	r.mu.Lock()
	ok := r.publishers[subject]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no publisher for %q", subject)
	}
	return publishTarget{r: r, subject: subject}, nil
}

func (r *Resolver) ResolveGoal(ctx context.Context, namespace, spec string) (snaction.GoalClient, error) {
	r.mu.Lock()
	fn, ok := r.goals[namespace]
	r.mu.Unlock()
	if !ok {
		return nil, snaction.ErrNotReady
	}
	return goalClient{r: r, namespace: namespace, fn: fn}, nil
}

type serviceClient struct {
	r    *Resolver
	name string
	fn   ServiceFunc
}

func (c serviceClient) Call(_ context.Context, req []byte) (snaction.ServiceResponse, error) {
	c.r.record("call", c.name, req)
	return c.fn(req)
}

type publishTarget struct {
	r       *Resolver
	subject string
}

func (p publishTarget) Publish(_ context.Context, data []byte) error {
	p.r.record("publish", p.subject, data)
	return nil
}

type goalClient struct {
	r         *Resolver
	namespace string
	fn        GoalFunc
}

func (g goalClient) SendGoal(_ context.Context, goal []byte, done func(snaction.GoalStatus)) error {
	g.r.record("goal", g.namespace, goal)
	go func() {
		done(g.fn(goal))
	}()
	return nil
}

var _ snaction.Resolver = (*Resolver)(nil)
