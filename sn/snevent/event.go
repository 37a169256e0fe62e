// Package snevent contains the event tuple emitted by monitors and executors,
// and the sinks that route events to logs and outward-facing feeds.
package snevent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Severity classifies an [Event].
type Severity uint8

const (
	SeverityUnspecified Severity = iota
	SeverityInfo
	SeverityWarn
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarn:
		return "warn"
	case SeverityError:
		return "error"
	default:
		return fmt.Sprintf("Severity(%d)", uint8(s))
	}
}

// Level maps s to the slog level used when the event is logged.
func (s Severity) Level() slog.Level {
	switch s {
	case SeverityWarn:
		return slog.LevelWarn
	case SeverityError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseSeverity is the inverse of [Severity.String].
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(s) {
	case "info":
		return SeverityInfo, nil
	case "warn", "warning":
		return SeverityWarn, nil
	case "error":
		return SeverityError, nil
	}
	return SeverityUnspecified, fmt.Errorf("unknown severity %q", s)
}

// Event is a single notification about a monitored subject.
type Event struct {
	Text     string
	Severity Severity

	// The subject the event originated from,
	// and the nodes known to publish on it.
	Subject string
	Nodes   []string

	// Raw data of the message that triggered the event, if any.
	Payload []byte
}

// Line renders e in the "<severity>: <text>" form used by the text feed.
func (e Event) Line() string {
	return e.Severity.String() + ": " + e.Text
}

// Sink receives events.
// Implementations must be safe for concurrent use,
// as events arrive from every monitor and timer goroutine.
type Sink interface {
	HandleEvent(Event)
}

// SinkFunc adapts a plain function to a [Sink].
type SinkFunc func(Event)

func (f SinkFunc) HandleEvent(e Event) { f(e) }

// Fanout returns a Sink that forwards each event to every sink in order.
func Fanout(sinks ...Sink) Sink {
	return SinkFunc(func(e Event) {
		for _, s := range sinks {
			s.HandleEvent(e)
		}
	})
}

// WithSubject returns a Sink that fills in the subject and nodes of events
// that do not already carry them, before forwarding to s.
//
// The nodes function may be nil.
func WithSubject(s Sink, subject string, nodes func() []string) Sink {
	return SinkFunc(func(e Event) {
		if e.Subject == "" {
			e.Subject = subject
		}
		if e.Nodes == nil && nodes != nil {
			e.Nodes = nodes()
		}
		s.HandleEvent(e)
	})
}

// LogSink returns a Sink that writes each event to log
// at the level matching its severity.
func LogSink(log *slog.Logger) Sink {
	return SinkFunc(func(e Event) {
		attrs := []any{"subject", e.Subject}
		if len(e.Nodes) > 0 {
			attrs = append(attrs, "nodes", e.Nodes)
		}
		log.Log(context.Background(), e.Severity.Level(), e.Text, attrs...)
	})
}

// Discard is a Sink that drops every event.
var Discard Sink = SinkFunc(func(Event) {})
