package shutdown

import "sync/atomic"

// Flag marks that a shutdown sequence is in progress.
//
// It starts false, is set exactly once by the Orchestrator and is never
// reset. There is a single writer and any number of readers (the LED
// renderer polls it every tick).
type Flag struct {
	v atomic.Bool
}

// Set raises the flag. It returns true only for the call that changed it
// from false to true.
func (f *Flag) Set() bool {
	return f.v.CompareAndSwap(false, true)
}

// IsSet reports whether the flag has been raised.
func (f *Flag) IsSet() bool {
	return f.v.Load()
}
