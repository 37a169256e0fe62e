// Package snnats adapts a NATS connection to the snsubject and snaction contracts.
//
// NATS has no registry of subjects or publishers.
// A [Conn] therefore learns about a subject by observing it:
// the first time a subject is asked about, the Conn subscribes to it,
// and the subject exists once a message has been seen.
// Publishers identify themselves with the [HeaderNode] header.
package snnats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/gordian-engine/gsentor/sn/snsubject"
	"github.com/nats-io/nats.go"
)

const (
	// HeaderNode names the node that published a message.
	HeaderNode = "Sentor-Node"

	// HeaderLatched marks a message whose publisher asked for it to be retained.
	// Core NATS does not retain messages; the header lets receivers that care
	// tell such messages apart.
	HeaderLatched = "Sentor-Latched"
)

// ErrNotConnected is returned when the underlying connection is not currently usable.
var ErrNotConnected = errors.New("not connected to NATS")

// Conn implements [snsubject.Subscriber], [snsubject.Publisher], and [snsubject.Graph]
// over one NATS connection.
type Conn struct {
	log  *slog.Logger
	nc   *nats.Conn
	node string

	observeWindow time.Duration

	mu       sync.Mutex
	observed map[string]*observation
}

type observation struct {
	sub   *nats.Subscription
	seen  bool
	nodes []string

	// Closed when seen becomes true.
	firstSeen chan struct{}
}

// DefaultObserveWindow is how long the first Exists call for a subject
// waits for traffic before reporting that the subject does not exist.
const DefaultObserveWindow = time.Second

// Dial connects to the NATS server at url, identifying as node.
// The connection reconnects indefinitely; disconnects are logged.
func Dial(log *slog.Logger, url, node string) (*Conn, error) {
	nc, err := nats.Connect(
		url,
		nats.Name(node),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("Disconnected from NATS", "err", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("Reconnected to NATS", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			log.Info("NATS connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", url, err)
	}
	return NewConn(log, nc, node), nil
}

// NewConn wraps an established NATS connection.
func NewConn(log *slog.Logger, nc *nats.Conn, node string) *Conn {
	return &Conn{
		log:           log,
		nc:            nc,
		node:          node,
		observeWindow: DefaultObserveWindow,
		observed:      make(map[string]*observation),
	}
}

// NATS returns the underlying connection.
func (c *Conn) NATS() *nats.Conn {
	return c.nc
}

// Node returns the name c publishes as.
func (c *Conn) Node() string {
	return c.node
}

// Close drains the observation subscriptions and closes the connection.
func (c *Conn) Close() {
	c.mu.Lock()
	for subject, o := range c.observed {
		if err := o.sub.Unsubscribe(); err != nil {
			c.log.Debug("Failed to unsubscribe observer", "subject", subject, "err", err)
		}
	}
	clear(c.observed)
	c.mu.Unlock()

	c.nc.Close()
}

func (c *Conn) Subscribe(subject string, h snsubject.Handler) (snsubject.Subscription, error) {
	sub, err := c.nc.Subscribe(subject, func(m *nats.Msg) {
		msg := messageFromNATS(m, time.Now())
		c.record(subject, msg.Publisher)
		h(msg)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to %q: %w", subject, err)
	}
	return sub, nil
}

func (c *Conn) Publish(_ context.Context, subject string, data []byte) error {
	return c.publish(subject, data, false)
}

func (c *Conn) publish(subject string, data []byte, latched bool) error {
	m := c.newMsg(subject, data)
	if latched {
		m.Header.Set(HeaderLatched, "true")
	}
	if err := c.nc.PublishMsg(m); err != nil {
		return fmt.Errorf("publish to %q: %w", subject, err)
	}
	return nil
}

func (c *Conn) newMsg(subject string, data []byte) *nats.Msg {
	m := nats.NewMsg(subject)
	m.Data = data
	if c.node != "" {
		m.Header.Set(HeaderNode, c.node)
	}
	return m
}

// Exists reports whether a message has been observed on subject.
// The first call for a subject starts observing it
// and waits up to the observe window for a first message.
func (c *Conn) Exists(ctx context.Context, subject string) (bool, error) {
	if !c.nc.IsConnected() {
		return false, ErrNotConnected
	}

	o, isNew, err := c.observe(ctx, subject)
	if err != nil {
		return false, err
	}

	if isNew {
		t := time.NewTimer(c.observeWindow)
		defer t.Stop()
		select {
		case <-o.firstSeen:
			return true, nil
		case <-t.C:
			return false, nil
		case <-ctx.Done():
			return false, context.Cause(ctx)
		}
	}

	select {
	case <-o.firstSeen:
		return true, nil
	default:
		return false, nil
	}
}

// SetObserveWindow overrides [DefaultObserveWindow].
func (c *Conn) SetObserveWindow(d time.Duration) {
	c.observeWindow = d
}

// Publishers returns the nodes seen publishing on subject.
func (c *Conn) Publishers(_ context.Context, subject string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	o, ok := c.observed[subject]
	if !ok || !o.seen {
		return nil, snsubject.ErrUnknownSubject
	}
	return slices.Clone(o.nodes), nil
}

func (c *Conn) observe(ctx context.Context, subject string) (o *observation, isNew bool, err error) {
	c.mu.Lock()
	if o, ok := c.observed[subject]; ok {
		c.mu.Unlock()
		return o, false, nil
	}

	o = &observation{firstSeen: make(chan struct{})}
	sub, err := c.nc.Subscribe(subject, func(m *nats.Msg) {
		c.record(subject, m.Header.Get(HeaderNode))
	})
	if err != nil {
		c.mu.Unlock()
		return nil, false, fmt.Errorf("observe %q: %w", subject, err)
	}
	o.sub = sub
	c.observed[subject] = o
	c.mu.Unlock()

	// Make sure the server knows about the subscription before waiting on it.
	fctx, cancel := context.WithTimeout(ctx, c.observeWindow)
	defer cancel()
	if err := c.nc.FlushWithContext(fctx); err != nil {
		return nil, false, fmt.Errorf("flush observation of %q: %w", subject, err)
	}
	return o, true, nil
}

func (c *Conn) record(subject, node string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	o, ok := c.observed[subject]
	if !ok {
		return
	}
	if !o.seen {
		o.seen = true
		close(o.firstSeen)
	}
	if node != "" && !slices.Contains(o.nodes, node) {
		o.nodes = append(o.nodes, node)
	}
}

// messageFromNATS converts m, received at now.
func messageFromNATS(m *nats.Msg, now time.Time) snsubject.Message {
	msg := snsubject.Message{
		Subject:  m.Subject,
		Data:     m.Data,
		Received: now,
	}
	if m.Header != nil {
		msg.Publisher = m.Header.Get(HeaderNode)
	}
	return msg
}

var (
	_ snsubject.Subscriber = (*Conn)(nil)
	_ snsubject.Publisher  = (*Conn)(nil)
	_ snsubject.Graph      = (*Conn)(nil)
)
