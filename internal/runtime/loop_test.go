package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-glomers/internal/obslog"
)

func TestInternalTasksDrainBeforeExternal(t *testing.T) {
	l := New(obslog.NewDiscard())
	ctx, cancel := context.WithCancel(context.Background())

	var order []string
	require.NoError(t, l.Submit(func() { order = append(order, "external") }))
	require.NoError(t, l.SubmitInternal(func() { order = append(order, "internal") }))
	require.NoError(t, l.Submit(func() { order = append(order, "external2"); cancel() }))

	require.NoError(t, l.Run(ctx))
	require.Equal(t, []string{"internal", "external", "external2"}, order)
}

func TestCancelledContextReturnsNilOnCleanShutdown(t *testing.T) {
	l := New(obslog.NewDiscard())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, l.Run(ctx))
}

func TestSubmitAfterShutdownFails(t *testing.T) {
	l := New(obslog.NewDiscard())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, l.Run(ctx))

	// Give Run's deferred close(l.done) a moment to land; Run already
	// returned, so done is closed synchronously before Run returns.
	time.Sleep(0)
	require.Error(t, l.Submit(func() {}))
}

func TestPanicInTaskIsRecovered(t *testing.T) {
	l := New(obslog.NewDiscard())
	ctx, cancel := context.WithCancel(context.Background())

	ran := false
	require.NoError(t, l.SubmitInternal(func() { panic("boom") }))
	require.NoError(t, l.Submit(func() { ran = true; cancel() }))

	require.NoError(t, l.Run(ctx))
	require.True(t, ran, "a panicking task must not stop the loop from processing later tasks")
}
