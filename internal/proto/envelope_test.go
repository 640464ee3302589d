package proto

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBodyRoundTrip(t *testing.T) {
	id := int64(5)
	irt := int64(4)
	body, err := NewBody("echo", &id, &irt, map[string]any{"echo": "hello"})
	require.NoError(t, err)

	data, err := body.MarshalJSON()
	require.NoError(t, err)

	var decoded Body
	require.NoError(t, decoded.UnmarshalJSON(data))

	require.Equal(t, "echo", decoded.Type)
	require.EqualValues(t, 5, *decoded.MsgID)
	require.EqualValues(t, 4, *decoded.InReplyTo)
	echo, ok := decoded.Field("echo")
	require.True(t, ok)
	require.Equal(t, "hello", echo)
}

func TestBodyOmitsNilCorrelationFields(t *testing.T) {
	body, err := NewBody("init_ok", nil, nil, nil)
	require.NoError(t, err)

	data, err := body.MarshalJSON()
	require.NoError(t, err)
	require.NotContains(t, string(data), "msg_id")
	require.NotContains(t, string(data), "in_reply_to")
}

func TestEnvelopeRoundTrip(t *testing.T) {
	id := int64(1)
	body, err := NewBody("send", &id, nil, map[string]any{"key": "k1", "msg": 100})
	require.NoError(t, err)
	env := Envelope{Src: "c1", Dest: "n1", Body: body}

	data, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded Envelope
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, env.Src, decoded.Src)
	require.Equal(t, env.Dest, decoded.Dest)
	require.Equal(t, env.Body.Type, decoded.Body.Type)

	var payload struct {
		Key string `json:"key"`
		Msg int64  `json:"msg"`
	}
	require.NoError(t, decoded.Body.Decode(&payload))
	require.Equal(t, "k1", payload.Key)
	require.EqualValues(t, 100, payload.Msg)
}
