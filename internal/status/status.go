// Package status provides a thread-safe status tracker for the safeshutdown daemon.
// It is fed by the LED renderer and the event stream and read by HTTP handlers.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/safeshutdown/internal/event"
	"github.com/sweeney/safeshutdown/internal/pattern"
	"github.com/sweeney/safeshutdown/internal/sampler"
)

// Config contains daemon configuration for display.
type Config struct {
	TickMs     int64
	StrobeMs   int64
	SettleMs   int64
	GraceMs    int64
	Workload   string
	Reboot     string
	Broker     string
	HTTPAddr   string
	Thresholds pattern.Thresholds
}

// Counts tallies button activity since start.
type Counts struct {
	PowerPresses     int
	ResetPresses     int
	Bounces          int
	ShutdownsIgnored int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Pattern       pattern.Pattern
	Metrics       sampler.Metrics
	ShuttingDown  bool
	Counts        Counts
	LastEvent     *event.Event
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
// It implements led.Observer and event.Sink.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Observe records the pattern and metrics of the latest rendered step.
func (t *Tracker) Observe(p pattern.Pattern, m sampler.Metrics, shuttingDown bool) {
	t.mu.Lock()
	t.snap.Pattern = p
	t.snap.Metrics = m
	t.snap.ShuttingDown = shuttingDown
	t.mu.Unlock()
}

// Emit updates counters and the last significant event.
func (t *Tracker) Emit(e event.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch e.Type {
	case event.ButtonPressed:
		switch e.Source {
		case event.SourcePower:
			t.snap.Counts.PowerPresses++
		case event.SourceReset:
			t.snap.Counts.ResetPresses++
		}
	case event.Bounce:
		t.snap.Counts.Bounces++
		return
	case event.ShutdownIgnored:
		t.snap.Counts.ShutdownsIgnored++
	case event.PatternChanged:
		return
	}
	ev := e
	t.snap.LastEvent = &ev
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	if s.LastEvent != nil {
		ev := *s.LastEvent
		s.LastEvent = &ev
	}
	s.Now = time.Now()
	return s
}
