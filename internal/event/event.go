// Package event defines the daemon's lifecycle events and the sinks that consume them.
package event

import (
	"sync"
	"time"
)

// Type identifies a lifecycle event.
type Type string

const (
	Startup            Type = "STARTUP"
	ButtonPressed      Type = "BUTTON_PRESSED"
	Bounce             Type = "BOUNCE"
	ShutdownStarted    Type = "SHUTDOWN_STARTED"
	ShutdownIgnored    Type = "SHUTDOWN_IGNORED"
	WorkloadStopped    Type = "WORKLOAD_STOPPED"
	WorkloadStopFailed Type = "WORKLOAD_STOP_FAILED"
	RebootRequested    Type = "REBOOT_REQUESTED"
	RebootFailed       Type = "REBOOT_FAILED"
	PatternChanged     Type = "PATTERN_CHANGED"
	Stopping           Type = "STOPPING"
)

// Button names carried in Event.Source.
const (
	SourcePower = "power"
	SourceReset = "reset"
)

// Event is a single lifecycle occurrence.
type Event struct {
	Timestamp time.Time
	Type      Type
	Source    string // button name or component; may be empty
	Detail    string // free-form context, e.g. the new pattern or an error
}

// Sink consumes events. Implementations must not block for long: events
// are emitted from the button and LED goroutines.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Event)

// Emit calls f(e).
func (f SinkFunc) Emit(e Event) { f(e) }

// Multi fans an event out to every non-nil sink in order.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(e Event) {
		for _, s := range sinks {
			if s != nil {
				s.Emit(e)
			}
		}
	})
}

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Recorder collects events for test assertions. Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit records e.
func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many events of type t were recorded.
func (r *Recorder) Count(t Type) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}
