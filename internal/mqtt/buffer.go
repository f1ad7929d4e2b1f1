package mqtt

import "github.com/rs/zerolog/log"

// bufferedMsg is a serialized message waiting for the broker.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox holds messages published while the broker is unreachable.
// Events queue in order up to a fixed capacity, evicting the oldest event
// when full. A retained message replaces any retained message already queued
// for its topic, since the broker would only keep the last one.
// Not safe for concurrent use; RealPublisher holds its mutex around calls.
type outbox struct {
	msgs     []bufferedMsg
	capacity int
	dropped  int // evictions since the last drain
}

func newOutbox(capacity int) *outbox {
	if capacity < 1 {
		capacity = 1
	}
	return &outbox{capacity: capacity}
}

func (o *outbox) push(msg bufferedMsg) {
	if msg.retained {
		for i := range o.msgs {
			if o.msgs[i].retained && o.msgs[i].topic == msg.topic {
				o.msgs[i] = msg
				return
			}
		}
	}
	if len(o.msgs) == o.capacity {
		o.evict()
	}
	o.msgs = append(o.msgs, msg)
}

// evict removes the oldest event, or the oldest message if only retained
// status messages are queued.
func (o *outbox) evict() {
	victim := 0
	for i, m := range o.msgs {
		if !m.retained {
			victim = i
			break
		}
	}
	o.msgs = append(o.msgs[:victim], o.msgs[victim+1:]...)

	if o.dropped == 0 {
		log.Warn().Str("component", "mqtt").Int("capacity", o.capacity).Msg("outbox full, dropping oldest event")
	}
	o.dropped++
}

// drain returns the queued messages in publish order and empties the outbox.
func (o *outbox) drain() []bufferedMsg {
	if len(o.msgs) == 0 {
		return nil
	}
	out := o.msgs
	o.msgs = nil
	if o.dropped > 0 {
		log.Info().Str("component", "mqtt").Int("dropped", o.dropped).Msg("events lost while disconnected")
	}
	o.dropped = 0
	return out
}

func (o *outbox) len() int {
	return len(o.msgs)
}
