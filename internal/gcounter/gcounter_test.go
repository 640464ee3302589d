package gcounter

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-glomers/internal/kv"
	"github.com/joeycumines/go-glomers/internal/msgid"
	"github.com/joeycumines/go-glomers/internal/node"
	"github.com/joeycumines/go-glomers/internal/obslog"
	"github.com/joeycumines/go-glomers/internal/proto"
)

type harness struct {
	t    *testing.T
	buf  *bytes.Buffer
	node *Node
}

func newHarness(t *testing.T) *harness {
	buf := &bytes.Buffer{}
	wr := proto.NewWriter(buf)
	gen := msgid.New()
	base := &node.Base{ID: "n1", Peers: []string{"n1", "n2"}, Writer: wr, Gen: gen, Logger: obslog.NewDiscard()}
	client := kv.NewClient("n1", gen, wr)
	return &harness{t: t, buf: buf, node: New(base, client)}
}

func (h *harness) drain() []proto.Envelope {
	h.t.Helper()
	sc := bufio.NewScanner(h.buf)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	var out []proto.Envelope
	for sc.Scan() {
		var env proto.Envelope
		require.NoError(h.t, json.Unmarshal(sc.Bytes(), &env))
		out = append(out, env)
	}
	h.buf.Reset()
	return out
}

func clientEnv(msgID int64, typ string, extra map[string]any) proto.Envelope {
	id := msgID
	return proto.Envelope{Src: "c1", Dest: "n1", Body: proto.Body{MsgID: &id, Type: typ, Extra: extra}}
}

func TestAddThenReadReflectsLocalDelta(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.node.Handle(clientEnv(1, "add", map[string]any{"delta": float64(5)})))
	out := h.drain()
	require.Len(t, out, 2, "add_ok reply plus the fire-and-forget seq-kv write")

	require.NoError(t, h.node.Handle(clientEnv(2, "read", nil)))
	out = h.drain()
	require.Len(t, out, 1)
	value, _ := out[0].Body.Field("value")
	require.EqualValues(t, 5, value)
}

func TestSyncFoldsMaxPeerValueIntoRead(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.node.Sync())
	out := h.drain()
	require.Len(t, out, 1)
	readReq := out[0]
	require.Equal(t, kv.SeqKV, readReq.Dest)

	require.NoError(t, h.node.Handle(proto.Envelope{
		Src: kv.SeqKV, Dest: "n1",
		Body: proto.Body{InReplyTo: readReq.Body.MsgID, Type: kv.TypeReadOK, Extra: map[string]any{"value": float64(7)}},
	}))

	require.NoError(t, h.node.Handle(clientEnv(3, "read", nil)))
	out = h.drain()
	require.Len(t, out, 1)
	value, _ := out[0].Body.Field("value")
	require.EqualValues(t, 7, value)
}
