// Package led renders the selected blink pattern on the case LED.
package led

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sweeney/safeshutdown/internal/event"
	"github.com/sweeney/safeshutdown/internal/gpio"
	"github.com/sweeney/safeshutdown/internal/pattern"
	"github.com/sweeney/safeshutdown/internal/sampler"
)

// Default timings.
const (
	DefaultTick   = 200 * time.Millisecond
	DefaultStrobe = 200 * time.Millisecond
)

// FlagReader reports whether a shutdown is in progress.
type FlagReader interface {
	IsSet() bool
}

// Observer is notified after every rendered step.
type Observer interface {
	Observe(p pattern.Pattern, m sampler.Metrics, shuttingDown bool)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(p pattern.Pattern, m sampler.Metrics, shuttingDown bool)

// Observe calls f.
func (f ObserverFunc) Observe(p pattern.Pattern, m sampler.Metrics, shuttingDown bool) {
	f(p, m, shuttingDown)
}

// Options configures a Renderer. Zero values select defaults.
type Options struct {
	Thresholds pattern.Thresholds
	Tick       time.Duration
	Strobe     time.Duration
	Observers  []Observer
	Events     event.Sink
	Now        func() time.Time
}

// Renderer drives the LED line from the current metrics and shutdown flag.
type Renderer struct {
	out        gpio.Output
	sampler    sampler.Sampler
	flag       FlagReader
	thresholds pattern.Thresholds
	tick       time.Duration
	strobe     time.Duration
	observers  []Observer
	events     event.Sink
	now        func() time.Time
	logger     zerolog.Logger

	current     pattern.Pattern
	phase       int
	writeFailed bool
	lastTick    atomic.Int64 // unix nanos, read by the watchdog
}

// New creates a Renderer.
func New(out gpio.Output, s sampler.Sampler, flag FlagReader, opts Options) *Renderer {
	r := &Renderer{
		out:        out,
		sampler:    s,
		flag:       flag,
		thresholds: opts.Thresholds,
		tick:       opts.Tick,
		strobe:     opts.Strobe,
		observers:  opts.Observers,
		events:     opts.Events,
		now:        opts.Now,
		logger:     log.With().Str("component", "led").Logger(),
	}
	if r.thresholds == (pattern.Thresholds{}) {
		r.thresholds = pattern.DefaultThresholds()
	}
	if r.tick <= 0 {
		r.tick = DefaultTick
	}
	if r.strobe <= 0 {
		r.strobe = DefaultStrobe
	}
	if r.events == nil {
		r.events = event.Discard
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Run renders until ctx is cancelled. Errors never stop the loop.
func (r *Renderer) Run(ctx context.Context) {
	r.logger.Info().Dur("tick", r.tick).Dur("strobe", r.strobe).Msg("LED renderer started")

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			timer.Reset(r.Step())
		}
	}
}

// Step renders one step and returns how long to hold it.
func (r *Renderer) Step() time.Duration {
	m := r.sampler.Sample()
	shuttingDown := r.flag.IsSet()
	p := pattern.Select(shuttingDown, m, r.thresholds)

	if p != r.current {
		r.logger.Info().
			Str("from", string(r.current)).
			Str("to", string(p)).
			Float64("load1", m.Load1).
			Float64("temp_c", m.TempC).
			Msg("pattern changed")
		r.events.Emit(event.Event{Timestamp: r.now(), Type: event.PatternChanged, Detail: string(p)})
		r.current = p
		r.phase = 0
	}

	seq := p.Sequence()
	r.write(seq.LevelAt(r.phase))
	r.phase = (r.phase + 1) % seq.Period()

	for _, o := range r.observers {
		o.Observe(p, m, shuttingDown)
	}
	r.lastTick.Store(r.now().UnixNano())

	if p.Strobe() {
		return r.strobe
	}
	return r.tick
}

func (r *Renderer) write(on bool) {
	err := r.out.Write(on)
	switch {
	case err != nil && !r.writeFailed:
		r.logger.Error().Err(err).Msg("LED write failed")
		r.writeFailed = true
	case err == nil && r.writeFailed:
		r.logger.Info().Msg("LED write recovered")
		r.writeFailed = false
	}
}

// Pattern returns the pattern rendered by the last Step.
func (r *Renderer) Pattern() pattern.Pattern {
	return r.current
}

// LastTick returns the time of the last completed step, or the zero time.
// Safe to call from any goroutine.
func (r *Renderer) LastTick() time.Time {
	n := r.lastTick.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
