// Package shutdown runs the power-button shutdown sequence and the
// reset-button reboot.
package shutdown

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sweeney/safeshutdown/internal/event"
)

// Default timings.
const (
	// DefaultGrace keeps the strobe visible before workloads are stopped.
	DefaultGrace = 3 * time.Second
	// DefaultStopTimeout bounds the workload-stop step.
	DefaultStopTimeout = 60 * time.Second
)

// Options configures an Orchestrator. Zero values select defaults, except
// Grace where zero skips the delay.
type Options struct {
	Stopper     WorkloadStopper
	Rebooter    Rebooter
	Events      event.Sink
	Grace       time.Duration
	StopTimeout time.Duration
	Now         func() time.Time
	Sleep       func(context.Context, time.Duration)
}

// Orchestrator drives the shutdown sequence. The Flag it owns is shared
// read-only with the LED renderer.
type Orchestrator struct {
	flag        *Flag
	stopper     WorkloadStopper
	rebooter    Rebooter
	events      event.Sink
	grace       time.Duration
	stopTimeout time.Duration
	now         func() time.Time
	sleep       func(context.Context, time.Duration)
	logger      zerolog.Logger
}

// NewOrchestrator creates an Orchestrator writing to flag.
func NewOrchestrator(flag *Flag, opts Options) *Orchestrator {
	o := &Orchestrator{
		flag:        flag,
		stopper:     opts.Stopper,
		rebooter:    opts.Rebooter,
		events:      opts.Events,
		grace:       opts.Grace,
		stopTimeout: opts.StopTimeout,
		now:         opts.Now,
		sleep:       opts.Sleep,
		logger:      log.With().Str("component", "shutdown").Logger(),
	}
	if o.stopper == nil {
		o.stopper = NoopStopper{}
	}
	if o.rebooter == nil {
		o.rebooter = NewCommandRebooter(nil)
	}
	if o.events == nil {
		o.events = event.Discard
	}
	if o.stopTimeout <= 0 {
		o.stopTimeout = DefaultStopTimeout
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.sleep == nil {
		o.sleep = sleepContext
	}
	return o
}

// OnPowerPress runs the shutdown sequence: raise the flag, wait the grace
// period, stop workloads (best effort) and request a reboot. A press while
// the sequence is already running is ignored.
func (o *Orchestrator) OnPowerPress(ctx context.Context) {
	if !o.flag.Set() {
		o.logger.Info().Msg("power button pressed again, shutdown already in progress - ignoring")
		o.emit(event.ShutdownIgnored, event.SourcePower, "")
		return
	}

	// Once started the sequence runs to completion even if the service is
	// being stopped.
	ctx = context.WithoutCancel(ctx)

	o.logger.Info().Dur("grace", o.grace).Msg("power button pressed - starting shutdown sequence")
	o.emit(event.ShutdownStarted, event.SourcePower, "")

	if o.grace > 0 {
		o.sleep(ctx, o.grace)
	}

	if err := o.stopWorkloads(ctx); err != nil {
		o.logger.Warn().Err(err).Msg("workload stop failed, rebooting anyway")
		o.emit(event.WorkloadStopFailed, "", err.Error())
	} else {
		o.logger.Info().Msg("workloads stopped")
		o.emit(event.WorkloadStopped, "", "")
	}

	o.reboot(ctx, event.SourcePower)
}

// OnResetPress requests an immediate reboot. Workloads are not stopped and
// the shutdown flag is left untouched.
func (o *Orchestrator) OnResetPress(ctx context.Context) {
	o.logger.Info().Msg("reset button pressed - triggering reboot")
	o.reboot(ctx, event.SourceReset)
}

// ShuttingDown reports whether the shutdown sequence has started.
func (o *Orchestrator) ShuttingDown() bool {
	return o.flag.IsSet()
}

// stopWorkloads invokes the stopper with a bounded deadline. Panics in the
// stopper are recovered and reported as errors.
func (o *Orchestrator) stopWorkloads(ctx context.Context) (err error) {
	ctx, cancel := context.WithTimeout(ctx, o.stopTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("workload stopper panicked: %v", r)
		}
	}()
	return o.stopper.StopWorkloads(ctx)
}

func (o *Orchestrator) reboot(ctx context.Context, source string) {
	o.emit(event.RebootRequested, source, "")
	if err := o.rebooter.Reboot(ctx); err != nil {
		o.logger.Error().Err(err).Str("source", source).Msg("reboot request failed")
		o.emit(event.RebootFailed, source, err.Error())
		return
	}
	o.logger.Info().Str("source", source).Msg("reboot requested")
}

func (o *Orchestrator) emit(t event.Type, source, detail string) {
	o.events.Emit(event.Event{Timestamp: o.now(), Type: t, Source: source, Detail: detail})
}

func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
