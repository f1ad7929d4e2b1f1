package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/safeshutdown/internal/event"
)

func TestFormatPayload(t *testing.T) {
	e := event.Event{
		Timestamp: time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC),
		Type:      event.ButtonPressed,
		Source:    event.SourcePower,
	}

	payload, err := FormatPayload(e)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed Payload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Event.Timestamp != "2026-02-02T22:18:12Z" {
		t.Errorf("unexpected timestamp: %s", parsed.Event.Timestamp)
	}
	if parsed.Event.Type != "BUTTON_PRESSED" {
		t.Errorf("unexpected type: %s", parsed.Event.Type)
	}
	if parsed.Event.Source != "power" {
		t.Errorf("unexpected source: %s", parsed.Event.Source)
	}
}

func TestFormatPayloadExactJSON(t *testing.T) {
	e := event.Event{
		Timestamp: time.Date(2026, 2, 3, 10, 30, 45, 0, time.UTC),
		Type:      event.WorkloadStopFailed,
		Detail:    "docker stop: exit status 1",
	}

	payload, err := FormatPayload(e)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"event":{"timestamp":"2026-02-03T10:30:45Z","type":"WORKLOAD_STOP_FAILED","detail":"docker stop: exit status 1"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatPayloadOmitsEmptyFields(t *testing.T) {
	payload, err := FormatPayload(event.Event{Timestamp: time.Now(), Type: event.Startup})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var raw map[string]map[string]interface{}
	json.Unmarshal(payload, &raw)
	for _, key := range []string{"source", "detail"} {
		if _, exists := raw["event"][key]; exists {
			t.Errorf("%s should be omitted when empty", key)
		}
	}
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()

	if err := f.Publish(event.Event{Timestamp: time.Now(), Type: event.ShutdownStarted}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.PublishStatus([]byte(`{}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.Events) != 1 || f.Events[0].Type != event.ShutdownStarted {
		t.Fatalf("unexpected events: %+v", f.Events)
	}
	if len(f.Payloads) != 1 {
		t.Fatalf("expected 1 payload, got %d", len(f.Payloads))
	}
	if len(f.Statuses) != 1 {
		t.Fatalf("expected 1 status, got %d", len(f.Statuses))
	}

	f.Close()
	if !f.Closed {
		t.Error("should be closed after Close()")
	}
}

func TestFakePublisherError(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("simulated error")

	if err := f.Publish(event.Event{Type: event.Startup}); err == nil {
		t.Error("expected error")
	}
	if len(f.Events) != 0 {
		t.Errorf("expected no events recorded on error, got %d", len(f.Events))
	}
}

func TestSinkPublishesInOrder(t *testing.T) {
	f := NewFakePublisher()
	s := NewSink(f, 8)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	types := []event.Type{event.ButtonPressed, event.ShutdownStarted, event.WorkloadStopped, event.RebootRequested}
	for _, typ := range types {
		s.Emit(event.Event{Timestamp: time.Now(), Type: typ})
	}
	cancel()
	<-done

	got := f.Published()
	if len(got) != len(types) {
		t.Fatalf("expected %d events, got %d", len(types), len(got))
	}
	for i, typ := range types {
		if got[i].Type != typ {
			t.Errorf("event %d: got %s, want %s", i, got[i].Type, typ)
		}
	}
}

func TestSinkEmitNeverBlocks(t *testing.T) {
	f := NewFakePublisher()
	s := NewSink(f, 2) // nobody is draining

	start := time.Now()
	for i := 0; i < 10; i++ {
		s.Emit(event.Event{Type: event.Bounce})
	}
	if time.Since(start) > time.Second {
		t.Fatal("Emit blocked on a full queue")
	}
	if s.Dropped() != 8 {
		t.Errorf("Dropped: got %d, want 8", s.Dropped())
	}
}

func TestSinkToleratesPublishErrors(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("broker gone")
	s := NewSink(f, 4)
	s.Emit(event.Event{Type: event.Startup})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Run(ctx) // drains and returns
}

// fakeToken completes immediately with err.
type fakeToken struct{ err error }

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type published struct {
	topic    string
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu           sync.Mutex
	open         bool
	err          error
	sent         []published
	disconnected bool
}

func (c *fakeClient) IsConnectionOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeClient) Publish(topic string, _ byte, retained bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, published{topic: topic, retained: retained, payload: payload.([]byte)})
	return &fakeToken{err: c.err}
}

func (c *fakeClient) Disconnect(uint) { c.disconnected = true }

func TestRealPublisherConnected(t *testing.T) {
	c := &fakeClient{open: true}
	p := newPublisher(c, DefaultTopic)

	if err := p.Publish(event.Event{Timestamp: time.Now(), Type: event.RebootRequested}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.PublishStatus([]byte(`{"status":{}}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(c.sent) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(c.sent))
	}
	if c.sent[0].topic != "safeshutdown/events" || c.sent[0].retained {
		t.Errorf("event message: got %+v", c.sent[0])
	}
	if c.sent[1].topic != "safeshutdown/events/status" || !c.sent[1].retained {
		t.Errorf("status message: got %+v", c.sent[1])
	}
	if !p.IsConnected() {
		t.Error("expected IsConnected=true")
	}
}

func TestRealPublisherPublishError(t *testing.T) {
	c := &fakeClient{open: true, err: errors.New("not authorized")}
	p := newPublisher(c, DefaultTopic)

	if err := p.Publish(event.Event{Type: event.Startup}); err == nil {
		t.Error("expected error")
	}
}

func TestRealPublisherBuffersWhileDisconnected(t *testing.T) {
	c := &fakeClient{}
	p := newPublisher(c, DefaultTopic)

	if err := p.Publish(event.Event{Type: event.ButtonPressed, Source: event.SourcePower}); err != nil {
		t.Errorf("buffered publish should not fail: %v", err)
	}
	if err := p.Publish(event.Event{Type: event.ShutdownStarted}); err != nil {
		t.Errorf("buffered publish should not fail: %v", err)
	}
	if len(c.sent) != 0 {
		t.Fatalf("nothing should be sent while disconnected, got %d", len(c.sent))
	}
	if p.Buffered() != 2 {
		t.Fatalf("Buffered: got %d, want 2", p.Buffered())
	}

	c.open = true
	p.onConnect()

	if p.Buffered() != 0 {
		t.Errorf("Buffered after reconnect: got %d, want 0", p.Buffered())
	}
	if len(c.sent) != 2 {
		t.Fatalf("expected 2 replayed messages, got %d", len(c.sent))
	}
	var first Payload
	json.Unmarshal(c.sent[0].payload, &first)
	if first.Event.Type != "BUTTON_PRESSED" {
		t.Errorf("replay order: first was %s", first.Event.Type)
	}
}

func TestRealPublisherClose(t *testing.T) {
	c := &fakeClient{open: true}
	p := newPublisher(c, DefaultTopic)
	p.Close()
	if !c.disconnected {
		t.Error("expected Disconnect")
	}
}

func TestSinkOverDisconnectedPublisherBuffers(t *testing.T) {
	c := &fakeClient{}
	p := newPublisher(c, DefaultTopic)
	s := NewSink(p, 8)

	s.Emit(event.Event{Type: event.PatternChanged, Detail: "LOW"})
	s.Emit(event.Event{Type: event.PatternChanged, Detail: "IDLE"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Run(ctx)

	if p.Buffered() != 2 {
		t.Errorf("Buffered: got %d, want 2", p.Buffered())
	}
}

func TestNewRealPublisherDoesNotWaitForBroker(t *testing.T) {
	start := time.Now()
	p := NewRealPublisher(Options{Broker: "tcp://127.0.0.1:1"})
	defer p.Close()

	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("NewRealPublisher blocked for %v", elapsed)
	}
	if p.IsConnected() {
		t.Error("expected no connection to an unreachable broker")
	}
	if err := p.Publish(event.Event{Timestamp: time.Now(), Type: event.Startup}); err != nil {
		t.Errorf("publish before connect should buffer: %v", err)
	}
	if p.Buffered() != 1 {
		t.Errorf("Buffered: got %d, want 1", p.Buffered())
	}
}
