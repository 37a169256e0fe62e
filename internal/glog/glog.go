// Package glog contains small helpers for consistent structured logging.
package glog

import (
	"log/slog"
	"unicode/utf8"
)

// Subject returns a copy of log that includes the monitored subject.
func Subject(log *slog.Logger, subject string) *slog.Logger {
	return log.With("subject", subject)
}

// SubjectExpr returns a copy of log that includes the subject and a condition expression.
//
// This is a convenient shorthand in the content-expression paths
// where both details are pertinent.
func SubjectExpr(log *slog.Logger, subject, expr string) *slog.Logger {
	return log.With("subject", subject, "expr", expr)
}

// maxPayloadLog bounds how much of a message body is rendered in a log line.
const maxPayloadLog = 128

// Payload wraps raw message data so that it is rendered as a bounded string.
// Binary data is rendered as its length only.
type Payload []byte

func (p Payload) LogValue() slog.Value {
	if len(p) == 0 {
		return slog.StringValue("")
	}
	if !utf8.Valid(p) {
		return slog.GroupValue(slog.Int("binary_len", len(p)))
	}
	if len(p) > maxPayloadLog {
		return slog.StringValue(string(p[:maxPayloadLog]) + "...")
	}
	return slog.StringValue(string(p))
}
