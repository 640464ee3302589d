package uniqueid

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-glomers/internal/config"
	"github.com/joeycumines/go-glomers/internal/msgid"
	"github.com/joeycumines/go-glomers/internal/node"
	"github.com/joeycumines/go-glomers/internal/obslog"
	"github.com/joeycumines/go-glomers/internal/proto"
)

func generate(t *testing.T, n *Node, src string, msgID int64) proto.Envelope {
	t.Helper()
	env := proto.Envelope{Src: src, Dest: "n1", Body: proto.Body{MsgID: &msgID, Type: "generate"}}
	require.NoError(t, n.Handle(env))
	return env
}

func drainOne(t *testing.T, buf *bytes.Buffer) proto.Envelope {
	t.Helper()
	sc := bufio.NewScanner(buf)
	require.True(t, sc.Scan())
	var out proto.Envelope
	require.NoError(t, json.Unmarshal(sc.Bytes(), &out))
	return out
}

func TestCounterStrategyUsesOwnAllocatorNotIncomingMsgID(t *testing.T) {
	buf := &bytes.Buffer{}
	wr := proto.NewWriter(buf)
	base := &node.Base{ID: "n1", Writer: wr, Gen: msgid.New(), Logger: obslog.NewDiscard()}
	n := New(base, config.StrategyCounter)

	generate(t, n, "c1", 7)
	out := drainOne(t, buf)
	id, _ := out.Body.Field("id")
	require.Equal(t, "n1-1", id, "the minted id is built from this node's own allocator, not the inbound msg_id")
}

func TestCounterStrategyDiffersAcrossCollidingClientMsgIDs(t *testing.T) {
	buf := &bytes.Buffer{}
	wr := proto.NewWriter(buf)
	base := &node.Base{ID: "n1", Writer: wr, Gen: msgid.New(), Logger: obslog.NewDiscard()}
	n := New(base, config.StrategyCounter)

	// Two distinct client nodes, each sending their own first request, so
	// both carry msg_id=1 on the wire. If the minted id were derived from
	// the inbound msg_id, both would collide as "n1-1".
	generate(t, n, "c1", 1)
	first := drainOne(t, buf)
	generate(t, n, "c2", 1)
	second := drainOne(t, buf)

	firstID, _ := first.Body.Field("id")
	secondID, _ := second.Body.Field("id")
	require.NotEqual(t, firstID, secondID)
}

func TestUUIDStrategyMintsNonEmptyID(t *testing.T) {
	buf := &bytes.Buffer{}
	wr := proto.NewWriter(buf)
	base := &node.Base{ID: "n1", Writer: wr, Gen: msgid.New(), Logger: obslog.NewDiscard()}
	n := New(base, config.StrategyUUID)

	generate(t, n, "c1", 1)
	out := drainOne(t, buf)
	id, _ := out.Body.Field("id")
	require.NotEmpty(t, id)
	require.NotEqual(t, "n1-1", id)
}
