package snsupervisor

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/gordian-engine/gsentor/sn/snevent"
	"github.com/gordian-engine/gsentor/sn/snsubject"
)

const (
	DefaultEventSubject  = "sentor.event"
	DefaultSafetySubject = "sentor.safe_operation"
)

// FeedEvent is the JSON form of an event published on the event feed.
type FeedEvent struct {
	Severity string   `json:"severity"`
	Text     string   `json:"text"`
	Subject  string   `json:"subject,omitempty"`
	Nodes    []string `json:"nodes,omitempty"`

	// The triggering message, embedded as-is when it is JSON
	// and as a string otherwise.
	Payload json.RawMessage `json:"payload,omitempty"`

	// The "<severity>: <text>" line.
	Line string `json:"line"`
}

func NewFeedEvent(e snevent.Event) FeedEvent {
	fe := FeedEvent{
		Severity: e.Severity.String(),
		Text:     e.Text,
		Subject:  e.Subject,
		Nodes:    e.Nodes,
		Line:     e.Line(),
	}
	switch {
	case len(e.Payload) == 0:
	case json.Valid(e.Payload):
		fe.Payload = json.RawMessage(e.Payload)
	default:
		// Marshaling a string cannot fail.
		fe.Payload, _ = json.Marshal(string(e.Payload))
	}
	return fe
}

// FeedSink returns a Sink that publishes each event as a [FeedEvent] on subject.
// Publish failures are logged and otherwise ignored.
func FeedSink(ctx context.Context, log *slog.Logger, pub snsubject.Publisher, subject string) snevent.Sink {
	return snevent.SinkFunc(func(e snevent.Event) {
		b, err := json.Marshal(NewFeedEvent(e))
		if err != nil {
			log.Warn("Failed to encode event", "err", err)
			return
		}
		if err := pub.Publish(ctx, subject, b); err != nil && ctx.Err() == nil {
			log.Warn("Failed to publish event", "subject", subject, "err", err)
		}
	})
}
