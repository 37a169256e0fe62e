package gtest

import (
	"log/slog"
	"testing"

	"github.com/neilotoole/slogt"
)

// NewLogger returns a *slog.Logger associated with the test t.
func NewLogger(t testing.TB) *slog.Logger {
	return slogt.New(t, slogt.Text())
}
