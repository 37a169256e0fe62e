// Package snsubjecttest provides an in-memory transport for tests.
package snsubjecttest

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/gordian-engine/gsentor/sn/snsubject"
)

// Bus is an in-memory implementation of [snsubject.Subscriber],
// [snsubject.Publisher], and [snsubject.Graph].
//
// Published messages are delivered synchronously,
// on the publishing goroutine, to every handler subscribed at the time of the publish.
type Bus struct {
	mu sync.Mutex

	handlers map[string]map[uint64]snsubject.Handler
	nextID   uint64

	advertised map[string][]string
	published  map[string][]snsubject.Message

	existsErr, publishersErr error

	now func() time.Time
}

func NewBus() *Bus {
	return &Bus{
		handlers:   make(map[string]map[uint64]snsubject.Handler),
		advertised: make(map[string][]string),
		published:  make(map[string][]snsubject.Message),
		now:        time.Now,
	}
}

// SetNow sets the time source used to stamp delivered messages.
func (b *Bus) SetNow(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

func (b *Bus) Subscribe(subject string, h snsubject.Handler) (snsubject.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	hs := b.handlers[subject]
	if hs == nil {
		hs = make(map[uint64]snsubject.Handler)
		b.handlers[subject] = hs
	}
	hs[id] = h

	return subscription{b: b, subject: subject, id: id}, nil
}

type subscription struct {
	b       *Bus
	subject string
	id      uint64
}

func (s subscription) Unsubscribe() error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	delete(s.b.handlers[s.subject], s.id)
	return nil
}

// Subscribers returns the number of active handlers on subject.
func (b *Bus) Subscribers(subject string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers[subject])
}

// Publish delivers data to every handler on subject.
// The subject is considered to exist afterwards.
func (b *Bus) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.PublishFrom("", subject, data)
	return nil
}

// PublishFrom is like Publish, but attributes the message to node.
// A non-empty node is also recorded as a publisher of subject.
func (b *Bus) PublishFrom(node, subject string, data []byte) {
	b.mu.Lock()
	if _, ok := b.advertised[subject]; !ok {
		b.advertised[subject] = nil
	}
	if node != "" && !slices.Contains(b.advertised[subject], node) {
		b.advertised[subject] = append(b.advertised[subject], node)
	}

	m := snsubject.Message{
		Subject:   subject,
		Data:      slices.Clone(data),
		Publisher: node,
		Received:  b.now(),
	}
	b.published[subject] = append(b.published[subject], m)

	hs := make([]snsubject.Handler, 0, len(b.handlers[subject]))
	for _, h := range b.handlers[subject] {
		hs = append(hs, h)
	}
	b.mu.Unlock()

	for _, h := range hs {
		h(m)
	}
}

// Advertise marks subject as existing, published by the given nodes,
// without delivering any message.
func (b *Bus) Advertise(subject string, nodes ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, n := range nodes {
		if !slices.Contains(b.advertised[subject], n) {
			b.advertised[subject] = append(b.advertised[subject], n)
		}
	}
	if _, ok := b.advertised[subject]; !ok {
		b.advertised[subject] = nil
	}
}

// Published returns every message published on subject so far.
func (b *Bus) Published(subject string) []snsubject.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.published[subject])
}

// SetExistsError causes subsequent calls to Exists to fail with err.
// Pass nil to clear.
func (b *Bus) SetExistsError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.existsErr = err
}

// SetPublishersError causes subsequent calls to Publishers to fail with err.
// Pass nil to clear.
func (b *Bus) SetPublishersError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.publishersErr = err
}

func (b *Bus) Exists(_ context.Context, subject string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.existsErr != nil {
		return false, b.existsErr
	}
	_, ok := b.advertised[subject]
	return ok, nil
}

func (b *Bus) Publishers(_ context.Context, subject string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publishersErr != nil {
		return nil, b.publishersErr
	}
	nodes, ok := b.advertised[subject]
	if !ok {
		return nil, snsubject.ErrUnknownSubject
	}
	return slices.Clone(nodes), nil
}

var (
	_ snsubject.Subscriber = (*Bus)(nil)
	_ snsubject.Publisher  = (*Bus)(nil)
	_ snsubject.Graph      = (*Bus)(nil)
)
