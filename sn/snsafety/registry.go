// Package snsafety tracks which safety-critical conditions are currently violated
// and broadcasts the aggregate go/no-go state.
package snsafety

import (
	"slices"
	"sync"
)

// Key identifies one condition in the [Registry].
//
// Liveness conditions are keyed by their kind text ("not published"),
// which is shared across subjects, so the subject is part of the key.
type Key struct {
	Subject    string
	Expression string
}

// Condition is a snapshot of one registry entry.
type Condition struct {
	Key
	Safe bool
	Tags []string
}

// Registry maps safety-critical conditions to their last known state.
//
// Each key is written only by the monitor that owns the condition.
// Readers observe an eventually consistent view:
// a [*Registry.Snapshot] is internally consistent,
// but may interleave arbitrarily with concurrent monitor updates.
type Registry struct {
	mu    sync.RWMutex
	conds map[Key]*Condition
	order []Key

	// Closed and replaced on every state change,
	// so that publishers can wait for a change without polling.
	changed chan struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		conds:   make(map[Key]*Condition),
		changed: make(chan struct{}),
	}
}

// Register adds an entry for k, initially safe.
// Registering an existing key updates its tags and leaves its state unchanged.
func (r *Registry) Register(k Key, tags []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.conds[k]; ok {
		c.Tags = slices.Clone(tags)
		return
	}

	r.conds[k] = &Condition{Key: k, Safe: true, Tags: slices.Clone(tags)}
	r.order = append(r.order, k)
	r.notifyLocked()
}

// Unregister removes the entry for k, if present.
func (r *Registry) Unregister(k Key) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conds[k]; !ok {
		return
	}
	delete(r.conds, k)
	r.order = slices.DeleteFunc(r.order, func(o Key) bool { return o == k })
	r.notifyLocked()
}

// SetSafe records the state of the condition k.
// It reports false if k was never registered,
// in which case the registry is unchanged.
func (r *Registry) SetSafe(k Key, safe bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conds[k]
	if !ok {
		return false
	}
	if c.Safe != safe {
		c.Safe = safe
		r.notifyLocked()
	}
	return true
}

// Get returns the entry for k.
func (r *Registry) Get(k Key) (Condition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conds[k]
	if !ok {
		return Condition{}, false
	}
	return clone(c), true
}

// Snapshot returns every entry in registration order.
func (r *Registry) Snapshot() []Condition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Condition, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, clone(r.conds[k]))
	}
	return out
}

// Violations returns the entries that are currently unsafe, in registration order.
func (r *Registry) Violations() []Condition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Condition
	for _, k := range r.order {
		if c := r.conds[k]; !c.Safe {
			out = append(out, clone(c))
		}
	}
	return out
}

// AllSafe reports whether no registered condition is currently violated.
func (r *Registry) AllSafe() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.conds {
		if !c.Safe {
			return false
		}
	}
	return true
}

// Changed returns a channel that is closed on the next state change.
func (r *Registry) Changed() <-chan struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.changed
}

func (r *Registry) notifyLocked() {
	close(r.changed)
	r.changed = make(chan struct{})
}

func clone(c *Condition) Condition {
	out := *c
	out.Tags = slices.Clone(c.Tags)
	return out
}
