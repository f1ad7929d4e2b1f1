package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sweeney/safeshutdown/internal/event"
)

const (
	publishTimeout = 2 * time.Second
	bufferSize     = 256
)

// offlinePayload is left retained on the status topic by the broker when the
// daemon disappears without a clean disconnect.
const offlinePayload = `{"status":{"event":"OFFLINE"}}`

// client is the part of paho.Client the publisher uses.
type client interface {
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// Options configures a RealPublisher.
type Options struct {
	Broker   string
	ClientID string
	Topic    string
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are kept in a ring buffer and replayed on reconnect.
type RealPublisher struct {
	client      client
	topic       string
	statusTopic string
	logger      zerolog.Logger

	mu  sync.Mutex
	buf *outbox
}

// NewRealPublisher creates a publisher for the given broker and returns
// without waiting for the connection. An unreachable broker is not an error:
// the client keeps retrying in the background and messages are buffered.
func NewRealPublisher(o Options) *RealPublisher {
	if o.Topic == "" {
		o.Topic = DefaultTopic
	}
	if o.ClientID == "" {
		o.ClientID = "safeshutdown"
	}

	p := newPublisher(nil, o.Topic)

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(p.statusTopic, offlinePayload, 1, true).
		SetOnConnectHandler(func(paho.Client) { p.onConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.logger.Warn().Err(err).Msg("connection lost")
		})

	c := paho.NewClient(opts)
	p.client = c

	p.logger.Info().Str("broker", o.Broker).Msg("connecting to broker")
	go p.awaitConnect(c.Connect(), o.Broker)
	return p
}

// awaitConnect reports the outcome of the first connection attempt. With
// connect retry enabled the token completes once connected or on Close.
func (p *RealPublisher) awaitConnect(token paho.Token, broker string) {
	<-token.Done()
	if err := token.Error(); err != nil {
		p.logger.Warn().Err(err).Str("broker", broker).Msg("connect to broker failed")
	}
}

func newPublisher(c client, topic string) *RealPublisher {
	return &RealPublisher{
		client:      c,
		topic:       topic,
		statusTopic: topic + StatusSuffix,
		buf:         newOutbox(bufferSize),
		logger:      log.With().Str("component", "mqtt").Logger(),
	}
}

// Publish sends an event to the MQTT broker.
func (p *RealPublisher) Publish(e event.Event) error {
	payload, err := FormatPayload(e)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 1 (at-least-once): shutdown events are rare and worth confirming
	return p.send(bufferedMsg{topic: p.topic, payload: payload, qos: 1})
}

// PublishStatus sends a retained status snapshot.
func (p *RealPublisher) PublishStatus(payload []byte) error {
	return p.send(bufferedMsg{topic: p.statusTopic, payload: payload, qos: 1, retained: true})
}

// send publishes msg, or buffers it while the broker is unreachable. A
// buffered message is not a failure.
func (p *RealPublisher) send(msg bufferedMsg) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		p.buf.push(msg)
		n := p.buf.len()
		p.mu.Unlock()
		p.logger.Debug().Str("topic", msg.topic).Int("buffered", n).Msg("not connected, message buffered")
		return nil
	}

	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s: timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", msg.topic, err)
	}
	return nil
}

// onConnect replays buffered messages in order.
func (p *RealPublisher) onConnect() {
	p.mu.Lock()
	pending := p.buf.drain()
	p.mu.Unlock()

	p.logger.Info().Int("buffered", len(pending)).Msg("connected to broker")
	for _, m := range pending {
		p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	}
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
