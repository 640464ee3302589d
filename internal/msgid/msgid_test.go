package msgid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNextIsOneBasedAndIncreasing(t *testing.T) {
	g := New()
	require.EqualValues(t, 1, g.Next())
	require.EqualValues(t, 2, g.Next())
}

func TestNextForLogRoundTrip(t *testing.T) {
	g := New()
	id := g.NextForLog("log1")

	key, ok := g.ConsumeLogKey(id)
	require.True(t, ok)
	require.Equal(t, "log1", key)

	_, ok = g.ConsumeLogKey(id)
	require.False(t, ok, "a msg_id's log key can only be consumed once")
}

func TestConsumeLogKeyUnknownID(t *testing.T) {
	g := New()
	_, ok := g.ConsumeLogKey(999)
	require.False(t, ok)
}
