package pusher

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrame(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		frame   string
		channel string
		event   string
		data    string
	}{
		{"string data", `{"event":"my-event","channel":"orders","data":"hello"}`, "orders", "my-event", "hello"},
		{"json string data kept verbatim", `{"event":"e","channel":"c","data":"{\"a\": 1}"}`, "c", "e", `{"a": 1}`},
		{"object data compacted", `{"event":"e","channel":"c","data":{ "a" : 1, "b":[1, 2] }}`, "c", "e", `{"a":1,"b":[1,2]}`},
		{"number data", `{"event":"e","data":42}`, "", "e", "42"},
		{"no channel", `{"event":"protocol:ping","data":{}}`, "", "protocol:ping", "{}"},
		{"null channel", `{"event":"e","channel":null}`, "", "e", ""},
		{"no data", `{"event":"e","channel":"c"}`, "c", "e", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := decodeFrame([]byte(tt.frame), now)
			require.NoError(t, err)
			assert.Equal(t, tt.channel, msg.Channel)
			assert.Equal(t, tt.event, msg.Event)
			assert.Equal(t, tt.data, msg.Data)
			assert.Equal(t, now, msg.ReceivedAt)
		})
	}
}

func TestDecodeFrame_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		frame  string
		reason string
	}{
		{"not json", `{"event":`, "invalid json"},
		{"array", `[1,2]`, "frame is not an object"},
		{"missing event", `{"channel":"c"}`, "missing event"},
		{"empty event", `{"event":""}`, "missing event"},
		{"numeric event", `{"event":1}`, "missing event"},
		{"numeric channel", `{"event":"e","channel":5}`, "channel is not a string"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeFrame([]byte(tt.frame), time.Now())
			var pe *ProtocolError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.reason, pe.Reason)
			assert.Equal(t, tt.frame, string(pe.Frame))
		})
	}
}

func TestMessage_Accessors(t *testing.T) {
	msg := Message{Event: "order-created", Data: `{"id":7,"items":["a","b"]}`}

	assert.Equal(t, int64(7), msg.Get("id").Int())
	assert.Equal(t, "b", msg.Get("items.1").String())
	assert.False(t, msg.IsControl())

	var v struct {
		ID    int      `json:"id"`
		Items []string `json:"items"`
	}
	require.NoError(t, msg.Unmarshal(&v))
	assert.Equal(t, 7, v.ID)
	assert.Equal(t, []string{"a", "b"}, v.Items)

	assert.True(t, Message{Event: EventPing}.IsControl())
	assert.True(t, Message{Event: EventSubscriptionCount}.IsControl())
}
