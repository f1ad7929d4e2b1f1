// Package button watches a case button line and fires its action once per
// debounced press.
package button

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sweeney/safeshutdown/internal/event"
	"github.com/sweeney/safeshutdown/internal/gpio"
)

// State is the monitor's position in the press state machine.
type State string

const (
	StateIdle       State = "IDLE"
	StateDebouncing State = "DEBOUNCING"
	StatePressed    State = "PRESSED"
)

// Defaults.
const (
	DefaultSettle   = 50 * time.Millisecond
	edgeWaitTimeout = 500 * time.Millisecond
	errorBackoff    = time.Second
)

// Action is invoked once per confirmed press, on the monitor's goroutine.
type Action func(ctx context.Context)

// Options configures a Monitor. Zero values select defaults.
type Options struct {
	Settle time.Duration
	Events event.Sink
	Now    func() time.Time
	Sleep  func(time.Duration)
}

// Monitor runs the debounce state machine for one button.
// All fields are owned by the goroutine running Run.
type Monitor struct {
	name   string
	in     gpio.Input
	action Action
	settle time.Duration
	events event.Sink
	now    func() time.Time
	sleep  func(time.Duration)
	logger zerolog.Logger

	state        State
	lastLevel    bool
	lastAccepted time.Time
}

// New creates a Monitor for the named button.
func New(name string, in gpio.Input, action Action, opts Options) *Monitor {
	m := &Monitor{
		name:   name,
		in:     in,
		action: action,
		settle: opts.Settle,
		events: opts.Events,
		now:    opts.Now,
		sleep:  opts.Sleep,
		state:  StateIdle,
		logger: log.With().Str("component", "button").Str("button", name).Logger(),
	}
	if m.settle <= 0 {
		m.settle = DefaultSettle
	}
	if m.events == nil {
		m.events = event.Discard
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.sleep == nil {
		m.sleep = time.Sleep
	}
	return m
}

// Name returns the button name.
func (m *Monitor) Name() string {
	return m.name
}

// State returns the current state. Only meaningful from the Run goroutine
// or after Run has returned.
func (m *Monitor) State() State {
	return m.state
}

// LastLevel returns the level observed by the most recent read.
func (m *Monitor) LastLevel() bool {
	return m.lastLevel
}

// Run waits for press edges until ctx is cancelled. Edge waits are bounded
// so cancellation is observed within edgeWaitTimeout.
func (m *Monitor) Run(ctx context.Context) {
	m.logger.Info().Dur("settle", m.settle).Msg("button monitor started")
	for ctx.Err() == nil {
		occurred, err := m.in.WaitForEdge(edgeWaitTimeout)
		if err != nil {
			m.logger.Error().Err(err).Msg("edge wait failed")
			m.sleep(errorBackoff)
			continue
		}
		if !occurred {
			continue
		}
		m.handleEdge(ctx)
	}
}

// handleEdge runs one pass of the state machine for a press edge and
// reports whether the action fired.
func (m *Monitor) handleEdge(ctx context.Context) bool {
	now := m.now()
	if !m.lastAccepted.IsZero() && now.Sub(m.lastAccepted) < m.settle {
		m.rejectBounce("edge inside settle window")
		return false
	}

	m.state = StateDebouncing
	m.sleep(m.settle)

	level, err := m.in.Read()
	if err != nil {
		m.logger.Error().Err(err).Msg("read after settle failed")
		m.state = StateIdle
		return false
	}
	m.lastLevel = level
	if !level {
		m.rejectBounce("released before settle")
		return false
	}

	m.state = StatePressed
	m.lastAccepted = now
	m.logger.Info().Msg("button pressed")
	m.events.Emit(event.Event{Timestamp: now, Type: event.ButtonPressed, Source: m.name})
	if m.action != nil {
		m.action(ctx)
	}

	m.waitRelease(ctx)
	m.state = StateIdle
	return true
}

// waitRelease polls the line until the button is let go so a held button
// does not fire again.
func (m *Monitor) waitRelease(ctx context.Context) {
	for ctx.Err() == nil {
		level, err := m.in.Read()
		if err != nil {
			m.logger.Error().Err(err).Msg("read while held failed")
			return
		}
		m.lastLevel = level
		if !level {
			m.lastAccepted = m.now()
			return
		}
		m.sleep(m.settle)
	}
}

func (m *Monitor) rejectBounce(reason string) {
	m.state = StateIdle
	m.logger.Debug().Str("reason", reason).Msg("bounce ignored")
	m.events.Emit(event.Event{Timestamp: m.now(), Type: event.Bounce, Source: m.name, Detail: reason})
}
