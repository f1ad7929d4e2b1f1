// Package telemetry exports the renderer's view of the host and the daemon's
// lifecycle events as Prometheus metrics and, optionally, DogStatsD gauges.
package telemetry

import (
	"strings"
	"sync/atomic"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sweeney/safeshutdown/internal/event"
	"github.com/sweeney/safeshutdown/internal/pattern"
	"github.com/sweeney/safeshutdown/internal/sampler"
)

const namespace = "safeshutdown"

var allPatterns = []pattern.Pattern{
	pattern.Idle,
	pattern.LowLoad,
	pattern.MediumLoad,
	pattern.HighLoad,
	pattern.ShuttingDown,
}

// StatsdClient is the subset of *statsd.Client used here.
type StatsdClient interface {
	Gauge(name string, value float64, tags []string, rate float64) error
	Incr(name string, tags []string, rate float64) error
}

// Telemetry implements led.Observer and event.Sink.
type Telemetry struct {
	load         prometheus.Gauge
	temp         prometheus.Gauge
	shuttingDown prometheus.Gauge
	pattern      *prometheus.GaugeVec
	events       *prometheus.CounterVec

	statsd       StatsdClient
	statsdFailed atomic.Bool
	logger       zerolog.Logger
}

// New registers the metrics with reg. sd may be nil.
func New(reg prometheus.Registerer, sd StatsdClient) *Telemetry {
	f := promauto.With(reg)
	return &Telemetry{
		load: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "load1",
			Help:      "One-minute load average seen by the LED renderer",
		}),
		temp: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cpu_temperature_celsius",
			Help:      "CPU temperature seen by the LED renderer",
		}),
		shuttingDown: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "shutting_down",
			Help:      "1 once a safe shutdown has started",
		}),
		pattern: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "led",
			Name:      "pattern",
			Help:      "1 for the pattern currently rendered, 0 otherwise",
		}, []string{"pattern"}),
		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Lifecycle events by type and source",
		}, []string{"type", "source"}),
		statsd: sd,
		logger: log.With().Str("component", "telemetry").Logger(),
	}
}

// NewStatsd creates a DogStatsD client for addr.
func NewStatsd(addr, ns string, tags []string) (*statsd.Client, error) {
	return statsd.New(addr, statsd.WithNamespace(ns), statsd.WithTags(tags))
}

// Observe records one rendered step.
func (t *Telemetry) Observe(p pattern.Pattern, m sampler.Metrics, shuttingDown bool) {
	t.load.Set(m.Load1)
	t.temp.Set(m.TempC)
	t.shuttingDown.Set(boolGauge(shuttingDown))
	for _, q := range allPatterns {
		t.pattern.WithLabelValues(string(q)).Set(boolGauge(q == p))
	}

	if t.statsd == nil {
		return
	}
	tags := []string{"pattern:" + strings.ToLower(string(p))}
	t.report(t.statsd.Gauge("load1", m.Load1, tags, 1))
	t.report(t.statsd.Gauge("cpu_temperature", m.TempC, tags, 1))
	t.report(t.statsd.Gauge("shutting_down", boolGauge(shuttingDown), tags, 1))
}

// Emit counts a lifecycle event.
func (t *Telemetry) Emit(e event.Event) {
	t.events.WithLabelValues(string(e.Type), e.Source).Inc()

	if t.statsd == nil {
		return
	}
	tags := []string{"type:" + strings.ToLower(string(e.Type))}
	if e.Source != "" {
		tags = append(tags, "button:"+e.Source)
	}
	t.report(t.statsd.Incr("events", tags, 1))
}

// report logs the first statsd failure and the recovery after it.
func (t *Telemetry) report(err error) {
	if err != nil {
		if !t.statsdFailed.Swap(true) {
			t.logger.Warn().Err(err).Msg("Failed to emit statsd metric")
		}
		return
	}
	if t.statsdFailed.Swap(false) {
		t.logger.Info().Msg("statsd metrics recovered")
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
