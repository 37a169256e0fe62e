package gtest

import (
	"time"

	"github.com/benbjohnson/clock"
)

// Advance moves clk forward by total in increments of step,
// pausing briefly after each increment.
//
// A mock AfterFunc callback runs in its own goroutine,
// so callbacks that re-arm timers need a moment to do so
// before the clock moves past their next deadline.
func Advance(clk *clock.Mock, total, step time.Duration) {
	if step <= 0 || step > total {
		step = total
	}
	for elapsed := time.Duration(0); elapsed < total; elapsed += step {
		d := step
		if rem := total - elapsed; rem < d {
			d = rem
		}
		clk.Add(d)
		Sleep(ScaleMs(2))
	}
}

// NewMockClock returns a mock clock set to a fixed, non-zero wall time,
// so that zero time values in the code under test stand out.
func NewMockClock() *clock.Mock {
	clk := clock.NewMock()
	clk.Set(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	return clk
}
