// Package txn implements the single- and multi-partition transaction
// workloads: an in-memory key/value map, executed against serially by a
// list of read/write micro-operations per transaction.
//
// The multi-partition variant additionally broadcasts its transaction's
// operations to every other node after local execution, but — matching the
// acknowledged weakness of the system this was distilled from — never
// reconciles what comes back. This is a deliberate, documented limitation,
// not an oversight: fixing it would require a real replication protocol,
// which is out of scope for this workload.
package txn

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/joeycumines/go-glomers/internal/node"
	"github.com/joeycumines/go-glomers/internal/proto"
)

// Node is the transaction workload's state machine.
type Node struct {
	base  *node.Base
	multi bool

	store map[int64]int64
}

// New constructs a txn Node. When multi is true, every transaction's
// operations are broadcast to every other node after local execution.
func New(base *node.Base, multi bool) *Node {
	return &Node{base: base, multi: multi, store: make(map[int64]int64)}
}

// Handle executes an inbound txn, or silently absorbs a replicated one.
func (n *Node) Handle(env proto.Envelope) error {
	switch env.Body.Type {
	case "txn":
		return n.handleTxn(env)
	case "txn_replicate":
		// Received but never reconciled into local state — see package doc.
		return nil
	default:
		n.base.Logger.Warning().Str("type", env.Body.Type).Log("txn: unrecognised message type, dropped")
		return nil
	}
}

func (n *Node) handleTxn(env proto.Envelope) error {
	var payload struct {
		Txn [][]any `json:"txn"`
	}
	if err := env.Body.Decode(&payload); err != nil {
		return fmt.Errorf("txn: decoding txn: %w", err)
	}

	updated := make([][]any, len(payload.Txn))
	for i, op := range payload.Txn {
		kind, key, err := parseOp(op)
		if err != nil {
			return err
		}
		switch kind {
		case "r":
			v, ok := n.store[key]
			if !ok {
				updated[i] = []any{"r", key, nil}
			} else {
				updated[i] = []any{"r", key, v}
			}
		case "w":
			val := toInt64(op[2])
			n.store[key] = val
			updated[i] = []any{"w", key, val}
		default:
			return fmt.Errorf("txn: unrecognised op kind %q", kind)
		}
	}

	if err := n.base.Reply(env, "txn_ok", map[string]any{"txn": updated}); err != nil {
		return err
	}

	if n.multi {
		var g errgroup.Group
		for _, peer := range n.base.OtherPeers() {
			peer := peer
			g.Go(func() error {
				_, err := n.base.Send(peer, "txn_replicate", map[string]any{"txn": updated})
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}

func parseOp(op []any) (kind string, key int64, err error) {
	if len(op) < 2 {
		return "", 0, fmt.Errorf("txn: malformed op %v", op)
	}
	kind, ok := op[0].(string)
	if !ok {
		return "", 0, fmt.Errorf("txn: op kind not a string: %v", op[0])
	}
	return kind, toInt64(op[1]), nil
}

func toInt64(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case float64:
		return int64(x)
	default:
		return 0
	}
}
