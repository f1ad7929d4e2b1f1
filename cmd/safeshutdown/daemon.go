package main

import (
	"context"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/sweeney/safeshutdown/internal/button"
	"github.com/sweeney/safeshutdown/internal/config"
	"github.com/sweeney/safeshutdown/internal/event"
	"github.com/sweeney/safeshutdown/internal/gpio"
	"github.com/sweeney/safeshutdown/internal/led"
	"github.com/sweeney/safeshutdown/internal/mqtt"
	"github.com/sweeney/safeshutdown/internal/pattern"
	"github.com/sweeney/safeshutdown/internal/sampler"
	"github.com/sweeney/safeshutdown/internal/shutdown"
	"github.com/sweeney/safeshutdown/internal/status"
	"github.com/sweeney/safeshutdown/internal/telemetry"
)

// notifier is the supervisor surface used by the daemon.
type notifier interface {
	Ready()
	Stopping()
	RunWatchdog(ctx context.Context, lastTick func() time.Time)
}

// daemonDeps are the pieces that differ between the device and tests.
// publisher, conn and statsd may be nil.
type daemonDeps struct {
	power     gpio.Input
	reset     gpio.Input
	led       gpio.Output
	sampler   sampler.Sampler
	stopper   shutdown.WorkloadStopper
	rebooter  shutdown.Rebooter
	publisher mqtt.Publisher
	conn      mqtt.ConnectionStatus
	registry  prometheus.Registerer
	statsd    telemetry.StatsdClient
	now       func() time.Time
}

type daemon struct {
	flag     *shutdown.Flag
	orch     *shutdown.Orchestrator
	renderer *led.Renderer
	monitors []*button.Monitor
	tracker  *status.Tracker
	events   event.Sink
	sink     *mqtt.Sink
	pub      mqtt.Publisher
	now      func() time.Time

	// shutdowns tracks power-press sequences started from a monitor.
	shutdowns sync.WaitGroup
}

func newDaemon(cfg config.Config, deps daemonDeps) *daemon {
	now := deps.now
	if now == nil {
		now = time.Now
	}
	registry := deps.registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	d := &daemon{
		flag:    &shutdown.Flag{},
		tracker: status.NewTracker(now(), statusConfig(cfg)),
		pub:     deps.publisher,
		now:     now,
	}

	tel := telemetry.New(registry, deps.statsd)
	sinks := []event.Sink{d.tracker, tel}
	if deps.publisher != nil {
		d.sink = mqtt.NewSink(deps.publisher, 64)
		sinks = append(sinks, d.sink)
	}
	d.events = event.Multi(sinks...)

	d.orch = shutdown.NewOrchestrator(d.flag, shutdown.Options{
		Stopper:     deps.stopper,
		Rebooter:    deps.rebooter,
		Events:      d.events,
		Grace:       cfg.Timing.Grace.Std(),
		StopTimeout: cfg.Timing.WorkloadTimeout.Std(),
		Now:         now,
	})

	observers := []led.Observer{d.tracker, tel}
	if deps.conn != nil {
		conn := deps.conn
		observers = append(observers, led.ObserverFunc(func(pattern.Pattern, sampler.Metrics, bool) {
			d.tracker.SetMQTTConnected(conn.IsConnected())
		}))
	}
	d.renderer = led.New(deps.led, deps.sampler, d.flag, led.Options{
		Thresholds: cfg.Thresholds.Pattern(),
		Tick:       cfg.Timing.Tick.Std(),
		Observers:  observers,
		Events:     d.events,
		Now:        now,
	})

	opts := button.Options{Settle: cfg.Timing.Settle.Std(), Events: d.events, Now: now}
	d.monitors = []*button.Monitor{
		button.New(event.SourcePower, deps.power, d.onPower, opts),
		button.New(event.SourceReset, deps.reset, d.orch.OnResetPress, opts),
	}
	return d
}

// onPower starts the shutdown sequence on its own goroutine so the power
// monitor keeps debouncing and later presses are reported as ignored.
func (d *daemon) onPower(ctx context.Context) {
	d.shutdowns.Add(1)
	go func() {
		defer d.shutdowns.Done()
		d.orch.OnPowerPress(ctx)
	}()
}

// run starts every component and blocks until a signal arrives.
func (d *daemon) run(sig <-chan os.Signal, n notifier) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sinkCtx, stopSink := context.WithCancel(context.Background())
	var sinkDone sync.WaitGroup
	if d.sink != nil {
		sinkDone.Add(1)
		go func() {
			defer sinkDone.Done()
			d.sink.Run(sinkCtx)
		}()
	}

	var wg sync.WaitGroup
	start := func(f func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f(ctx)
		}()
	}
	start(d.renderer.Run)
	for _, m := range d.monitors {
		start(m.Run)
	}
	start(func(ctx context.Context) { n.RunWatchdog(ctx, d.renderer.LastTick) })

	d.emit(event.Startup, "")
	d.publishStatus("STARTUP", "")
	n.Ready()
	log.Info().Msg("started")

	s := <-sig
	log.Info().Str("signal", s.String()).Msg("received signal, stopping")
	n.Stopping()
	reason := signalName(s)
	d.emit(event.Stopping, reason)
	d.publishStatus("STOPPING", reason)

	cancel()
	wg.Wait()
	// A started shutdown sequence finishes before the daemon exits.
	d.shutdowns.Wait()
	stopSink()
	sinkDone.Wait()
	return nil
}

func (d *daemon) emit(t event.Type, detail string) {
	d.events.Emit(event.Event{Timestamp: d.now(), Type: t, Detail: detail})
}

func (d *daemon) publishStatus(ev, reason string) {
	if d.pub == nil {
		return
	}
	snap := d.tracker.Snapshot()
	if err := d.pub.PublishStatus(status.FormatStatusEvent(snap, ev, reason)); err != nil {
		log.Warn().Err(err).Str("event", ev).Msg("failed to publish status")
	}
}

func statusConfig(cfg config.Config) status.Config {
	return status.Config{
		TickMs:     cfg.Timing.Tick.Std().Milliseconds(),
		StrobeMs:   led.DefaultStrobe.Milliseconds(),
		SettleMs:   cfg.Timing.Settle.Std().Milliseconds(),
		GraceMs:    cfg.Timing.Grace.Std().Milliseconds(),
		Workload:   cfg.Workload.Mode,
		Reboot:     cfg.Reboot.Method,
		Broker:     cfg.MQTT.Broker,
		HTTPAddr:   cfg.HTTP.Addr,
		Thresholds: cfg.Thresholds.Pattern(),
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}
