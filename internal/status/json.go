package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string     `json:"event,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	Pattern       string     `json:"pattern"`
	Load1         float64    `json:"load1"`
	TempC         float64    `json:"temp_c"`
	ShuttingDown  bool       `json:"shutting_down"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	StartTime     string     `json:"start_time"`
	Timestamp     string     `json:"timestamp"`
	MQTT          MQTTStatus `json:"mqtt"`
	Counts        CountsJSON `json:"counts"`
	LastEvent     *EventJSON `json:"last_event,omitempty"`
	Config        ConfigJSON `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of button counts.
type CountsJSON struct {
	PowerPresses     int `json:"power_presses"`
	ResetPresses     int `json:"reset_presses"`
	Bounces          int `json:"bounces"`
	ShutdownsIgnored int `json:"shutdowns_ignored"`
}

// EventJSON is the JSON representation of the last event.
type EventJSON struct {
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Source    string `json:"source,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	TickMs     int64          `json:"tick_ms"`
	StrobeMs   int64          `json:"strobe_ms"`
	SettleMs   int64          `json:"settle_ms"`
	GraceMs    int64          `json:"grace_ms"`
	Workload   string         `json:"workload"`
	Reboot     string         `json:"reboot"`
	Broker     string         `json:"broker"`
	HTTPAddr   string         `json:"http_addr"`
	Thresholds ThresholdsJSON `json:"thresholds"`
}

// ThresholdsJSON lists the pattern thresholds.
type ThresholdsJSON struct {
	Load  [3]float64 `json:"load"`
	TempC [3]float64 `json:"temp_c"`
}

func buildInner(snap Snapshot) StatusInner {
	p := string(snap.Pattern)
	if p == "" {
		p = "UNKNOWN"
	}
	th := snap.Config.Thresholds

	inner := StatusInner{
		Pattern:       p,
		Load1:         snap.Metrics.Load1,
		TempC:         snap.Metrics.TempC,
		ShuttingDown:  snap.ShuttingDown,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			PowerPresses:     snap.Counts.PowerPresses,
			ResetPresses:     snap.Counts.ResetPresses,
			Bounces:          snap.Counts.Bounces,
			ShutdownsIgnored: snap.Counts.ShutdownsIgnored,
		},
		Config: ConfigJSON{
			TickMs:   snap.Config.TickMs,
			StrobeMs: snap.Config.StrobeMs,
			SettleMs: snap.Config.SettleMs,
			GraceMs:  snap.Config.GraceMs,
			Workload: snap.Config.Workload,
			Reboot:   snap.Config.Reboot,
			Broker:   snap.Config.Broker,
			HTTPAddr: snap.Config.HTTPAddr,
			Thresholds: ThresholdsJSON{
				Load:  [3]float64{th.LowLoad, th.MediumLoad, th.HighLoad},
				TempC: [3]float64{th.LowTempC, th.MediumTempC, th.HighTempC},
			},
		},
	}
	if e := snap.LastEvent; e != nil {
		inner.LastEvent = &EventJSON{
			Timestamp: e.Timestamp.UTC().Format(time.RFC3339),
			Type:      string(e.Type),
			Source:    e.Source,
			Detail:    e.Detail,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for a retained MQTT status message.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
