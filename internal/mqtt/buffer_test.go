package mqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msg(i int) bufferedMsg {
	return bufferedMsg{topic: DefaultTopic, payload: []byte{byte(i)}, qos: 1}
}

func statusMsg(i int) bufferedMsg {
	return bufferedMsg{topic: DefaultTopic + StatusSuffix, payload: []byte{byte(i)}, qos: 1, retained: true}
}

func payloads(msgs []bufferedMsg) []byte {
	out := make([]byte, len(msgs))
	for i, m := range msgs {
		out[i] = m.payload[0]
	}
	return out
}

func TestOutboxEmptyDrain(t *testing.T) {
	o := newOutbox(4)
	assert.Nil(t, o.drain())
	assert.Zero(t, o.len())
}

func TestOutboxKeepsOrder(t *testing.T) {
	o := newOutbox(8)
	for i := 0; i < 5; i++ {
		o.push(msg(i))
	}
	assert.Equal(t, 5, o.len())

	assert.Equal(t, []byte{0, 1, 2, 3, 4}, payloads(o.drain()))
	assert.Nil(t, o.drain(), "second drain is empty")
}

func TestOutboxOverflowDropsOldestEvent(t *testing.T) {
	o := newOutbox(4)
	for i := 0; i < 7; i++ {
		o.push(msg(i))
	}
	assert.Equal(t, 3, o.dropped)
	assert.Equal(t, 4, o.len())

	assert.Equal(t, []byte{3, 4, 5, 6}, payloads(o.drain()))
	assert.Zero(t, o.dropped, "drain resets the drop count")
}

func TestOutboxRetainedStatusReplacesEarlierStatus(t *testing.T) {
	o := newOutbox(8)
	o.push(statusMsg(1))
	o.push(msg(2))
	o.push(statusMsg(3))

	got := o.drain()
	require.Len(t, got, 2)
	assert.Equal(t, []byte{3, 2}, payloads(got), "latest status keeps the first status slot")
	assert.True(t, got[0].retained)
}

func TestOutboxEvictsEventsBeforeStatus(t *testing.T) {
	o := newOutbox(3)
	o.push(statusMsg(1))
	o.push(msg(2))
	o.push(msg(3))
	o.push(msg(4))

	assert.Equal(t, []byte{1, 3, 4}, payloads(o.drain()))
}

func TestOutboxReuseAfterDrain(t *testing.T) {
	o := newOutbox(3)
	o.push(msg(1))
	o.push(msg(2))
	o.drain()

	for i := 10; i < 13; i++ {
		o.push(msg(i))
	}
	assert.Equal(t, []byte{10, 11, 12}, payloads(o.drain()))
}

func TestOutboxPreservesFields(t *testing.T) {
	o := newOutbox(2)
	o.push(bufferedMsg{
		topic:    DefaultTopic + StatusSuffix,
		payload:  []byte(`{"status":{"event":"STARTUP"}}`),
		qos:      1,
		retained: true,
	})

	got := o.drain()
	require.Len(t, got, 1)
	assert.Equal(t, "safeshutdown/events/status", got[0].topic)
	assert.Equal(t, `{"status":{"event":"STARTUP"}}`, string(got[0].payload))
	assert.Equal(t, byte(1), got[0].qos)
	assert.True(t, got[0].retained)
}
