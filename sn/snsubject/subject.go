// Package snsubject defines the contracts between monitors and the transport
// that carries messages on named subjects.
//
// The transport itself lives elsewhere (see snnats for production,
// and snsubjecttest for an in-memory bus used in tests).
package snsubject

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Message is a single message observed on a subject.
type Message struct {
	Subject string
	Data    []byte

	// Publisher is the node that published the message, if the transport reports it.
	Publisher string

	Received time.Time
}

// Fields decodes m.Data as a JSON object.
// Content expressions are evaluated against the result.
func (m Message) Fields() (map[string]any, error) {
	if len(m.Data) == 0 {
		return map[string]any{}, nil
	}
	var out map[string]any
	if err := json.Unmarshal(m.Data, &out); err != nil {
		return nil, fmt.Errorf("decode message on %q: %w", m.Subject, err)
	}
	return out, nil
}

// Handler is invoked once per delivered message.
// Handlers are called from the transport's delivery goroutine.
type Handler func(Message)

// Subscription is returned by [Subscriber.Subscribe].
type Subscription interface {
	Unsubscribe() error
}

// Subscriber delivers messages on a subject to a handler.
type Subscriber interface {
	Subscribe(subject string, h Handler) (Subscription, error)
}

// Publisher emits a message on a subject.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Graph answers questions about which subjects exist and who publishes them.
type Graph interface {
	// Exists reports whether the subject has been observed on the transport.
	// A non-nil error means the answer could not be determined.
	Exists(ctx context.Context, subject string) (bool, error)

	// Publishers returns the nodes known to publish on subject.
	Publishers(ctx context.Context, subject string) ([]string, error)
}

// ErrUnknownSubject is returned by transports when an operation
// requires a subject that has never been observed.
var ErrUnknownSubject = errors.New("subject has not been observed")

// Fanout returns a Handler that calls every non-nil handler in order.
func Fanout(hs ...Handler) Handler {
	var live []Handler
	for _, h := range hs {
		if h != nil {
			live = append(live, h)
		}
	}
	return func(m Message) {
		for _, h := range live {
			h(m)
		}
	}
}
