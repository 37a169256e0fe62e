package gtest

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// TimeFactor is a multiplier that can be controlled by the
// GSENTOR_TEST_TIME_FACTOR environment variable
// to increase test-related timeouts.
//
// Debounce tests wait on real goroutines spawned by mock timers,
// and a contended CI machine may need more time for those to run.
// Rather than changing tests, the operator can set e.g. GSENTOR_TEST_TIME_FACTOR=3.
var TimeFactor ScaledDuration = 1

const timeFactorEnv = "GSENTOR_TEST_TIME_FACTOR"

func init() {
	f := os.Getenv(timeFactorEnv)
	if f == "" {
		return
	}

	n, err := strconv.Atoi(f)
	if err != nil {
		panic(fmt.Errorf(
			"failed to parse %s (%q) into an integer: %w",
			timeFactorEnv, f, err,
		))
	}

	if n <= 0 {
		panic(fmt.Errorf("%s must be positive; got %d", timeFactorEnv, n))
	}

	TimeFactor = ScaledDuration(n)
}

type ScaledDuration time.Duration

// ScaleMs returns ms in milliseconds, multiplied by [TimeFactor].
//
// Tests should use this rather than literal durations
// whenever they wait on another goroutine.
func ScaleMs(ms int64) ScaledDuration {
	return TimeFactor * ScaledDuration(ms) * ScaledDuration(time.Millisecond)
}

// Sleep calls [time.Sleep] with the given scaled duration.
func Sleep(dur ScaledDuration) {
	time.Sleep(time.Duration(dur))
}

// D converts a ScaledDuration to a time.Duration,
// for APIs such as require.Eventually.
func (d ScaledDuration) D() time.Duration {
	return time.Duration(d)
}
