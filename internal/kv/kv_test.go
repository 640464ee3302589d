package kv

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-glomers/internal/msgid"
	"github.com/joeycumines/go-glomers/internal/proto"
)

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

func TestReadWithoutLogKeyLeavesNoSideTableEntry(t *testing.T) {
	buf := &bytes.Buffer{}
	gen := msgid.New()
	c := NewClient("n1", gen, proto.NewWriter(buf))

	msgID, err := c.Read(SeqKV, "k1", "")
	require.NoError(t, err)

	_, ok := gen.ConsumeLogKey(msgID)
	require.False(t, ok)

	out := drain(t, buf)
	require.Len(t, out, 1)
	require.Equal(t, SeqKV, out[0].Dest)
	require.Equal(t, "read", out[0].Body.Type)
	key, _ := out[0].Body.Field("key")
	require.Equal(t, "k1", key)
}

func TestReadWithLogKeyRecordsSideTableEntry(t *testing.T) {
	buf := &bytes.Buffer{}
	gen := msgid.New()
	c := NewClient("n1", gen, proto.NewWriter(buf))

	msgID, err := c.Read(SeqKV, "k1", "log1")
	require.NoError(t, err)

	key, ok := gen.ConsumeLogKey(msgID)
	require.True(t, ok)
	require.Equal(t, "log1", key)
}

func TestCasRequestShape(t *testing.T) {
	buf := &bytes.Buffer{}
	gen := msgid.New()
	c := NewClient("n1", gen, proto.NewWriter(buf))

	_, err := c.Cas(LinKV, "k1", 1, 2, true, "")
	require.NoError(t, err)

	out := drain(t, buf)
	require.Len(t, out, 1)
	require.Equal(t, "cas", out[0].Body.Type)
	from, _ := out[0].Body.Field("from")
	to, _ := out[0].Body.Field("to")
	createIfNotExists, _ := out[0].Body.Field("create_if_not_exists")
	require.EqualValues(t, 1, from)
	require.EqualValues(t, 2, to)
	require.Equal(t, true, createIfNotExists)
}

func TestIsKVSource(t *testing.T) {
	require.True(t, IsKVSource(SeqKV))
	require.True(t, IsKVSource(LinKV))
	require.False(t, IsKVSource("n2"))
}
