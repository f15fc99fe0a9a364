// Package stm implements the hardware-independent spatio-temporal
// modulation controller: a ring of pre-built gain frames replayed at a
// fixed frequency by a high-resolution periodic timer.
package stm

import "time"

// PeriodicTimer is a cancellable, reconfigurable fixed-rate callback
// source. Implementations must serialize callback invocations (no
// reentry) and guarantee Stop has returned before any further callback
// fires.
type PeriodicTimer interface {
	// Start begins calling fn every interval until Stop is called.
	// Start is not safe to call again before a matching Stop.
	Start(interval time.Duration, fn func())
	// Stop disarms the timer, blocking until any in-flight callback
	// has returned and no further callback will fire.
	Stop()
}
