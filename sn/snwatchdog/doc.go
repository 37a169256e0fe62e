// Package snwatchdog provides a Watchdog that periodically signals
// the long-running loops that opted in to it.
//
// Each loop that opts in supplies a polling interval with jitter,
// and a timeout for its response.
// A loop that fails to accept and acknowledge a signal within its timeout
// is considered wedged, and the watchdog cancels its own context,
// which the process treats as fatal.
//
// A monitored loop that exits normally stops being polled
// once the context it passed to [*Watchdog.Monitor] is done.
package snwatchdog
