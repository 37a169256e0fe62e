package snsubject

import (
	"time"

	"golang.org/x/time/rate"
)

// Throttle returns a Handler that forwards at most hz messages per second to h,
// dropping the rest.
// If hz is not positive, h is returned unchanged.
//
// The now function supplies the time used for rate accounting;
// pass the Now method of the clock in use.
func Throttle(h Handler, hz float64, now func() time.Time) Handler {
	if hz <= 0 {
		return h
	}

	lim := rate.NewLimiter(rate.Limit(hz), 1)
	return func(m Message) {
		if !lim.AllowN(now(), 1) {
			return
		}
		h(m)
	}
}
