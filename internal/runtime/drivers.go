package runtime

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/joeycumines/go-glomers/internal/obslog"
	"github.com/joeycumines/go-glomers/internal/proto"
)

// RunReader reads envelopes from rd until EOF or ctx cancellation, submitting
// one Task per decoded envelope onto the loop. It calls cancel on EOF (or on
// a fatal read error) so the rest of the node's goroutines (timers, the loop
// itself) unwind together, per the process-wide cancellation contract.
//
// A non-EOF read failure (transport or protocol, per the error taxonomy) is
// reported on errCh rather than merely logged, so the caller can distinguish
// a fatal stdin failure from a clean EOF once Run returns and set the
// process exit code accordingly. errCh must have capacity for at least one
// error; RunReader sends at most one.
func RunReader(ctx context.Context, rd *proto.Reader, loop *Loop, cancel context.CancelFunc, logger *obslog.Logger, errCh chan<- error, handle func(proto.Envelope)) {
	defer cancel()
	for {
		env, err := rd.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Err().Err(err).Log("runtime: stdin read failed")
				select {
				case errCh <- err:
				default:
				}
			}
			return
		}
		e := env
		if err := loop.Submit(func() { handle(e) }); err != nil {
			return
		}
	}
}

// RunTicker submits fn as an internal task every interval until ctx is
// cancelled. Used for gossip and counter-sync timers.
func RunTicker(ctx context.Context, loop *Loop, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = loop.SubmitInternal(fn)
		}
	}
}
