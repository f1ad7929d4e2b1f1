// Command safeshutdown watches the NESPi case buttons, drives the case LED
// and reboots the Pi safely when asked to.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/sweeney/safeshutdown/internal/config"
	"github.com/sweeney/safeshutdown/internal/gpio"
	"github.com/sweeney/safeshutdown/internal/logging"
	"github.com/sweeney/safeshutdown/internal/mqtt"
	"github.com/sweeney/safeshutdown/internal/sampler"
	"github.com/sweeney/safeshutdown/internal/shutdown"
	"github.com/sweeney/safeshutdown/internal/supervisor"
	"github.com/sweeney/safeshutdown/internal/telemetry"
	"github.com/sweeney/safeshutdown/internal/web"
)

func main() {
	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	logging.Init(level, os.Stderr)

	if err := run(cfg); err != nil {
		var hwErr *gpio.HardwareError
		if errors.As(err, &hwErr) {
			log.Fatal().Err(err).Str("line", hwErr.Line).Int("pin", hwErr.Pin).Msg("GPIO setup failed")
		}
		log.Fatal().Err(err).Msg("fatal")
	}
}

func run(cfg config.Config) error {
	chip, err := gpio.OpenChip(cfg.GPIO.Chip)
	if err != nil {
		return err
	}
	defer func() {
		if err := chip.Close(); err != nil {
			log.Warn().Err(err).Msg("release GPIO lines")
		}
	}()

	lines, err := claimLines(chip, cfg.GPIO)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	deps := daemonDeps{
		power:    lines.power,
		reset:    lines.reset,
		led:      lines.led,
		sampler:  sampler.NewHostSampler(sampler.DefaultThermalPath),
		stopper:  newStopper(cfg.Workload),
		rebooter: newRebooter(cfg.Reboot),
		registry: reg,
	}

	if cfg.Statsd.Addr != "" {
		sd, err := telemetry.NewStatsd(cfg.Statsd.Addr, cfg.Statsd.Namespace, cfg.Statsd.Tags)
		if err != nil {
			log.Warn().Err(err).Str("addr", cfg.Statsd.Addr).Msg("Failed to create DogStatsD client")
		} else {
			defer sd.Close()
			deps.statsd = sd
			log.Info().Str("addr", cfg.Statsd.Addr).Str("namespace", cfg.Statsd.Namespace).Msg("statsd metrics initialized")
		}
	}

	if cfg.MQTT.Broker != "" {
		pub := mqtt.NewRealPublisher(mqtt.Options{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
		})
		defer pub.Close()
		deps.publisher = pub
		deps.conn = pub
	}

	d := newDaemon(cfg, deps)

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, d.tracker, reg)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("http server error")
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("http status server listening")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return d.run(sigCh, supervisor.New())
}

type claimedLines struct {
	power *gpio.RealInput
	reset *gpio.RealInput
	led   *gpio.RealOutput
}

// claimLines takes the power latch first so the case keeps the board powered,
// then the LED and both buttons. Buttons are wired to ground with pull-ups,
// so a press is a logical rising edge on an active-low line.
func claimLines(chip *gpio.Chip, g config.GPIO) (claimedLines, error) {
	var l claimedLines

	if _, err := chip.Output(gpio.OutputConfig{Name: "power-enable", Pin: g.PowerEnable, Initial: true}); err != nil {
		return l, err
	}
	led, err := chip.Output(gpio.OutputConfig{Name: "led", Pin: g.LED, Initial: true})
	if err != nil {
		return l, err
	}
	power, err := chip.Input(gpio.InputConfig{Name: "power", Pin: g.PowerButton, Pull: gpio.PullUp, Edge: gpio.EdgeRising, ActiveLow: true})
	if err != nil {
		return l, err
	}
	reset, err := chip.Input(gpio.InputConfig{Name: "reset", Pin: g.ResetButton, Pull: gpio.PullUp, Edge: gpio.EdgeRising, ActiveLow: true})
	if err != nil {
		return l, err
	}

	l.power, l.reset, l.led = power, reset, led
	return l, nil
}

func newStopper(w config.Workload) shutdown.WorkloadStopper {
	switch w.Mode {
	case config.WorkloadSystemd:
		return shutdown.NewUnitStopper(w.Units)
	case config.WorkloadNone:
		return shutdown.NoopStopper{}
	default:
		return shutdown.NewDockerStopper()
	}
}

func newRebooter(r config.Reboot) shutdown.Rebooter {
	switch r.Method {
	case config.RebootLogind:
		return shutdown.NewLogindRebooter()
	case config.RebootCommand:
		return shutdown.NewCommandRebooter(r.Command)
	default:
		return shutdown.FallbackRebooter{
			Primary:   shutdown.NewLogindRebooter(),
			Secondary: shutdown.NewCommandRebooter(r.Command),
		}
	}
}
