// Package mqtt publishes daemon lifecycle events to an MQTT broker.
// Publishing is outbound only; nothing received from the broker can
// trigger a shutdown or reboot.
package mqtt

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sweeney/safeshutdown/internal/event"
)

// DefaultTopic is the topic lifecycle events are published to.
const DefaultTopic = "safeshutdown/events"

// StatusSuffix is appended to the event topic for retained status messages.
const StatusSuffix = "/status"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a lifecycle event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(e event.Event) error

	// PublishStatus sends a retained status snapshot.
	PublishStatus(payload []byte) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Event EventPayload `json:"event"`
}

// EventPayload contains the event details.
type EventPayload struct {
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Source    string `json:"source,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// FormatPayload creates the JSON payload for an event.
func FormatPayload(e event.Event) ([]byte, error) {
	payload := Payload{
		Event: EventPayload{
			Timestamp: e.Timestamp.UTC().Format(time.RFC3339),
			Type:      string(e.Type),
			Source:    e.Source,
			Detail:    e.Detail,
		},
	}
	return json.Marshal(payload)
}

// Sink adapts a Publisher to event.Sink. Emit never blocks: events are
// queued and published from Run, and dropped when the queue is full.
type Sink struct {
	pub     Publisher
	queue   chan event.Event
	dropped atomic.Int64
	logger  zerolog.Logger
}

// NewSink creates a Sink with a queue of the given size.
func NewSink(pub Publisher, size int) *Sink {
	if size <= 0 {
		size = 64
	}
	return &Sink{
		pub:    pub,
		queue:  make(chan event.Event, size),
		logger: log.With().Str("component", "mqtt").Logger(),
	}
}

// Emit queues e for publishing.
func (s *Sink) Emit(e event.Event) {
	select {
	case s.queue <- e:
	default:
		if s.dropped.Add(1) == 1 {
			s.logger.Warn().Str("event", string(e.Type)).Msg("event queue full, dropping")
		}
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (s *Sink) Dropped() int64 {
	return s.dropped.Load()
}

// Run publishes queued events until ctx is cancelled, then publishes
// whatever is still queued and returns.
func (s *Sink) Run(ctx context.Context) {
	for {
		select {
		case e := <-s.queue:
			s.publish(e)
		case <-ctx.Done():
			for {
				select {
				case e := <-s.queue:
					s.publish(e)
				default:
					return
				}
			}
		}
	}
}

func (s *Sink) publish(e event.Event) {
	if err := s.pub.Publish(e); err != nil {
		s.logger.Warn().Err(err).Str("event", string(e.Type)).Msg("publish failed")
	}
}
