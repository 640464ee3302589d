package txn

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-glomers/internal/msgid"
	"github.com/joeycumines/go-glomers/internal/node"
	"github.com/joeycumines/go-glomers/internal/obslog"
	"github.com/joeycumines/go-glomers/internal/proto"
)

func newBase(buf *bytes.Buffer, peers []string) *node.Base {
	wr := proto.NewWriter(buf)
	return &node.Base{ID: "n1", Peers: peers, Writer: wr, Gen: msgid.New(), Logger: obslog.NewDiscard()}
}

func drain(t *testing.T, buf *bytes.Buffer) []proto.Envelope {
	t.Helper()
	sc := bufio.NewScanner(buf)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	var out []proto.Envelope
	for sc.Scan() {
		var env proto.Envelope
		require.NoError(t, json.Unmarshal(sc.Bytes(), &env))
		out = append(out, env)
	}
	buf.Reset()
	return out
}

func TestTxnWriteThenReadSameKey(t *testing.T) {
	buf := &bytes.Buffer{}
	n := New(newBase(buf, nil), false)

	msgID := int64(1)
	env := proto.Envelope{
		Src: "c1", Dest: "n1",
		Body: proto.Body{MsgID: &msgID, Type: "txn", Extra: map[string]any{
			"txn": []any{[]any{"w", float64(1), float64(42)}, []any{"r", float64(1), nil}},
		}},
	}
	require.NoError(t, n.Handle(env))

	out := drain(t, buf)
	require.Len(t, out, 1)
	txn, _ := out[0].Body.Field("txn")
	ops, ok := txn.([]any)
	require.True(t, ok)
	require.Len(t, ops, 2)
	readOp := ops[1].([]any)
	require.EqualValues(t, 42, readOp[2])
}

func TestTxnReadMissingKeyReturnsNil(t *testing.T) {
	buf := &bytes.Buffer{}
	n := New(newBase(buf, nil), false)

	msgID := int64(1)
	env := proto.Envelope{
		Src: "c1", Dest: "n1",
		Body: proto.Body{MsgID: &msgID, Type: "txn", Extra: map[string]any{
			"txn": []any{[]any{"r", float64(99), nil}},
		}},
	}
	require.NoError(t, n.Handle(env))

	out := drain(t, buf)
	txn, _ := out[0].Body.Field("txn")
	ops := txn.([]any)
	readOp := ops[0].([]any)
	require.Nil(t, readOp[2])
}

func TestMultiPartitionBroadcastsReplicateToPeers(t *testing.T) {
	buf := &bytes.Buffer{}
	n := New(newBase(buf, []string{"n1", "n2", "n3"}), true)

	msgID := int64(1)
	env := proto.Envelope{
		Src: "c1", Dest: "n1",
		Body: proto.Body{MsgID: &msgID, Type: "txn", Extra: map[string]any{
			"txn": []any{[]any{"w", float64(1), float64(5)}},
		}},
	}
	require.NoError(t, n.Handle(env))

	out := drain(t, buf)
	require.Len(t, out, 3, "txn_ok to the client plus txn_replicate to every other peer")

	var replicateDests []string
	for _, e := range out {
		if e.Body.Type == "txn_replicate" {
			replicateDests = append(replicateDests, e.Dest)
		}
	}
	require.ElementsMatch(t, []string{"n2", "n3"}, replicateDests)
}

func TestTxnReplicateIsAbsorbedSilently(t *testing.T) {
	buf := &bytes.Buffer{}
	n := New(newBase(buf, []string{"n1", "n2"}), true)

	env := proto.Envelope{Src: "n2", Dest: "n1", Body: proto.Body{Type: "txn_replicate", Extra: map[string]any{
		"txn": []any{[]any{"w", float64(1), float64(5)}},
	}}}
	require.NoError(t, n.Handle(env))
	require.Empty(t, buf.Bytes())
}
