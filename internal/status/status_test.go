package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/safeshutdown/internal/event"
	"github.com/sweeney/safeshutdown/internal/pattern"
	"github.com/sweeney/safeshutdown/internal/sampler"
)

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := Config{TickMs: 200, SettleMs: 50, Broker: "tcp://localhost:1883", HTTPAddr: ":8080"}
	tr := NewTracker(start, cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config.TickMs != 200 {
		t.Errorf("Config.TickMs: got %d, want 200", snap.Config.TickMs)
	}
	if snap.Config.HTTPAddr != ":8080" {
		t.Errorf("Config.HTTPAddr: got %q, want %q", snap.Config.HTTPAddr, ":8080")
	}
	if snap.ShuttingDown {
		t.Error("expected ShuttingDown=false initially")
	}
	if snap.LastEvent != nil {
		t.Error("expected no LastEvent initially")
	}
}

func TestObserveAndSnapshot(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.Observe(pattern.MediumLoad, sampler.Metrics{Load1: 2.4, TempC: 58}, false)

	snap := tr.Snapshot()
	if snap.Pattern != pattern.MediumLoad {
		t.Errorf("Pattern: got %q, want MEDIUM", snap.Pattern)
	}
	if snap.Metrics.Load1 != 2.4 || snap.Metrics.TempC != 58 {
		t.Errorf("Metrics: got %+v", snap.Metrics)
	}

	tr.Observe(pattern.ShuttingDown, sampler.Metrics{}, true)
	if !tr.Snapshot().ShuttingDown {
		t.Error("expected ShuttingDown=true")
	}
}

func TestEmitCounts(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tr.Emit(event.Event{Timestamp: at, Type: event.ButtonPressed, Source: event.SourcePower})
	tr.Emit(event.Event{Timestamp: at, Type: event.ShutdownStarted})
	tr.Emit(event.Event{Timestamp: at, Type: event.Bounce, Source: event.SourcePower})
	tr.Emit(event.Event{Timestamp: at, Type: event.ButtonPressed, Source: event.SourceReset})
	tr.Emit(event.Event{Timestamp: at, Type: event.ShutdownIgnored})
	tr.Emit(event.Event{Timestamp: at, Type: event.PatternChanged, Detail: "SHUTTING_DOWN"})

	snap := tr.Snapshot()
	want := Counts{PowerPresses: 1, ResetPresses: 1, Bounces: 1, ShutdownsIgnored: 1}
	if snap.Counts != want {
		t.Errorf("Counts: got %+v, want %+v", snap.Counts, want)
	}
	if snap.LastEvent == nil || snap.LastEvent.Type != event.ShutdownIgnored {
		t.Errorf("LastEvent: got %+v, want SHUTDOWN_IGNORED", snap.LastEvent)
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.SetMQTTConnected(true)
	if !tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}

	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSnapshotUptime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		StartTime: start,
		Now:       start.Add(15 * time.Minute),
	}

	if snap.Uptime() != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", snap.Uptime())
	}
}

func TestSnapshotNowIsSet(t *testing.T) {
	tr := NewTracker(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), Config{})

	before := time.Now()
	snap := tr.Snapshot()
	after := time.Now()

	if snap.Now.Before(before) || snap.Now.After(after) {
		t.Errorf("Now (%v) not between %v and %v", snap.Now, before, after)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.Observe(pattern.LowLoad, sampler.Metrics{Load1: 1.2}, false)
	tr.Emit(event.Event{Type: event.ButtonPressed, Source: event.SourcePower})

	snap1 := tr.Snapshot()
	snap1.LastEvent.Detail = "mutated"

	tr.Observe(pattern.HighLoad, sampler.Metrics{Load1: 4}, false)

	if snap1.Pattern != pattern.LowLoad {
		t.Error("snapshot should be a copy; Pattern was modified")
	}
	if tr.Snapshot().LastEvent.Detail != "" {
		t.Error("mutating a snapshot's LastEvent must not affect the tracker")
	}
}

func TestFormatJSON(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		Pattern:       pattern.HighLoad,
		Metrics:       sampler.Metrics{Load1: 3.5, TempC: 71.5},
		Counts:        Counts{PowerPresses: 0, ResetPresses: 2, Bounces: 7},
		LastEvent:     &event.Event{Timestamp: start.Add(time.Minute), Type: event.ButtonPressed, Source: event.SourceReset},
		StartTime:     start,
		Now:           start.Add(15 * time.Minute),
		MQTTConnected: true,
		Config: Config{
			TickMs:     200,
			Workload:   "docker",
			Broker:     "tcp://localhost:1883",
			Thresholds: pattern.DefaultThresholds(),
		},
	}

	data := FormatJSON(snap)

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.Pattern != "HIGH" {
		t.Errorf("Pattern: got %q, want HIGH", parsed.Status.Pattern)
	}
	if parsed.Status.TempC != 71.5 {
		t.Errorf("TempC: got %v, want 71.5", parsed.Status.TempC)
	}
	if parsed.Status.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", parsed.Status.UptimeSeconds)
	}
	if !parsed.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if parsed.Status.Counts.Bounces != 7 {
		t.Errorf("Counts.Bounces: got %d, want 7", parsed.Status.Counts.Bounces)
	}
	if parsed.Status.LastEvent == nil || parsed.Status.LastEvent.Source != "reset" {
		t.Errorf("LastEvent: got %+v", parsed.Status.LastEvent)
	}
	if parsed.Status.Config.Thresholds.TempC != [3]float64{60, 67, 75} {
		t.Errorf("Thresholds.TempC: got %v", parsed.Status.Config.Thresholds.TempC)
	}
	// Event and Reason should be omitted
	if parsed.Status.Event != "" {
		t.Errorf("expected empty Event for web format, got %q", parsed.Status.Event)
	}
	if parsed.Status.Reason != "" {
		t.Errorf("expected empty Reason for web format, got %q", parsed.Status.Reason)
	}
}

func TestFormatJSONUnknownPattern(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
	}

	var parsed StatusJSON
	json.Unmarshal(FormatJSON(snap), &parsed)

	if parsed.Status.Pattern != "UNKNOWN" {
		t.Errorf("Pattern: got %q, want UNKNOWN", parsed.Status.Pattern)
	}
	if parsed.Status.LastEvent != nil {
		t.Error("last_event should be omitted before any event")
	}
}

func TestFormatStatusEvent(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		Pattern:   pattern.Idle,
		StartTime: start,
		Now:       start.Add(30 * time.Minute),
		Config:    Config{Broker: "tcp://localhost:1883"},
	}

	data := FormatStatusEvent(snap, "STOPPING", "SIGTERM")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.Event != "STOPPING" {
		t.Errorf("Event: got %q, want STOPPING", parsed.Status.Event)
	}
	if parsed.Status.Reason != "SIGTERM" {
		t.Errorf("Reason: got %q, want SIGTERM", parsed.Status.Reason)
	}
	if parsed.Status.UptimeSeconds != 1800 {
		t.Errorf("UptimeSeconds: got %d, want 1800", parsed.Status.UptimeSeconds)
	}
}

func TestFormatStatusEventOmitsReasonWhenEmpty(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
	}

	data := FormatStatusEvent(snap, "STARTUP", "")

	// Verify "reason" is not in the raw JSON output
	var raw map[string]interface{}
	json.Unmarshal(data, &raw)
	status := raw["status"].(map[string]interface{})
	if _, exists := status["reason"]; exists {
		t.Error("reason should be omitted when empty")
	}
	if status["event"] != "STARTUP" {
		t.Errorf("event: got %v, want STARTUP", status["event"])
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	var wg sync.WaitGroup

	// Renderer
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.Observe(pattern.LowLoad, sampler.Metrics{Load1: float64(i)}, false)
			tr.SetMQTTConnected(i%2 == 0)
		}
	}()

	// Button monitors
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.Emit(event.Event{Type: event.Bounce, Source: event.SourceReset})
		}
	}()

	// Reader
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			snap := tr.Snapshot()
			_ = snap.Uptime()
		}
	}()

	wg.Wait()

	if got := tr.Snapshot().Counts.Bounces; got != 1000 {
		t.Errorf("Bounces: got %d, want 1000", got)
	}
}
