// Package runtime implements the single cooperative event loop that drives
// every node program.
//
// A node demultiplexes its event sources onto one goroutine: inbound wire
// messages (client requests and KV replies alike) decoded by a reader
// goroutine, and timer-injected events produced by periodic ticker
// goroutines. They are funnelled through Submit (external, i.e. inbound wire
// traffic) or SubmitInternal (everything else, in practice timer ticks), and
// log-engine completions are handled synchronously inside the Task that
// received the KV reply. The Loop goroutine runs exactly one Task to
// completion before picking up the next. Node state is only ever touched
// from inside a Task, so no locking is required for node-local state.
package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/joeycumines/go-glomers/internal/obslog"
)

// Task is a unit of work executed on the Loop goroutine.
type Task func()

// Loop is a single-threaded cooperative event loop.
type Loop struct {
	external chan Task
	internal chan Task
	logger   *obslog.Logger
	done     chan struct{}
}

// New constructs a Loop. The channel depths are generous but finite: the
// harness is cooperative and does not require unbounded buffering (see
// Non-goals on backpressure).
func New(logger *obslog.Logger) *Loop {
	if logger == nil {
		logger = obslog.NewDiscard()
	}
	return &Loop{
		external: make(chan Task, 256),
		internal: make(chan Task, 256),
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Submit enqueues an externally-sourced task, i.e. handling of one inbound
// wire envelope. Safe to call concurrently, including from the Loop's own
// goroutine (e.g. a handler re-entrantly scheduling follow-up work).
func (l *Loop) Submit(t Task) error {
	return l.push(l.external, t)
}

// SubmitInternal enqueues a task sourced from a timer tick or a per-log
// completion. Internal tasks are drained ahead of external ones on each
// iteration, so that e.g. a gossip or counter-sync tick is not starved behind
// a burst of inbound wire traffic.
func (l *Loop) SubmitInternal(t Task) error {
	return l.push(l.internal, t)
}

func (l *Loop) push(ch chan Task, t Task) error {
	select {
	case <-l.done:
		return fmt.Errorf("runtime: loop is shut down")
	default:
	}
	select {
	case ch <- t:
		return nil
	case <-l.done:
		return fmt.Errorf("runtime: loop is shut down")
	}
}

// Run drives the loop until ctx is cancelled, then drains nothing further
// and returns. The caller is expected to have already stopped all producer
// goroutines (reader, tickers) by the time ctx is cancelled, per the
// package's single-consumer contract.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)
	for {
		// Internal tasks (timers, completions) always win a race against
		// external ones, draining fully before a single external task runs.
		select {
		case t := <-l.internal:
			l.safeExecute(t)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			// Cancellation is the normal shutdown path: stdin EOF or a
			// termination signal, per the process-wide cancellation
			// contract. Only report it as a failure when it carries some
			// other cause.
			if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		case t := <-l.internal:
			l.safeExecute(t)
		case t := <-l.external:
			l.safeExecute(t)
		}
	}
}

// safeExecute runs t, recovering and logging any panic so one misbehaving
// handler cannot take down the whole node.
func (l *Loop) safeExecute(t Task) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Err().Interface("panic", r).Log("runtime: task panicked, recovered")
		}
	}()
	t()
}
