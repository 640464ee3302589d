// Package gcounter implements the grow-only counter workload: a local
// monotonically-increasing counter, replicated via seq-kv writes and
// periodic peer reads.
//
// The counter's seq-kv write after add ignores offsets and races with peer
// reads; this matches the harness's tolerance for sequential consistency
// only, and is preserved as-is rather than "fixed" with a CAS loop.
package gcounter

import (
	"sync"

	"github.com/joeycumines/go-glomers/internal/kv"
	"github.com/joeycumines/go-glomers/internal/node"
	"github.com/joeycumines/go-glomers/internal/proto"
)

// Node is the grow-only counter workload's state machine.
type Node struct {
	base *node.Base
	kv   *kv.Client

	mu            sync.Mutex
	counter       int64
	peerCache     map[string]int64
	pendingPeerOf map[int64]string
}

// New constructs a gcounter Node.
func New(base *node.Base, kvClient *kv.Client) *Node {
	return &Node{
		base:          base,
		kv:            kvClient,
		peerCache:     make(map[string]int64),
		pendingPeerOf: make(map[int64]string),
	}
}

// Handle dispatches one inbound add, read, or seq-kv read_ok message.
func (n *Node) Handle(env proto.Envelope) error {
	if kv.IsKVSource(env.Src) {
		return n.handleKVReply(env)
	}
	switch env.Body.Type {
	case "add":
		return n.handleAdd(env)
	case "read":
		return n.handleRead(env)
	default:
		n.base.Logger.Warning().Str("type", env.Body.Type).Log("gcounter: unrecognised message type, dropped")
		return nil
	}
}

func (n *Node) handleAdd(env proto.Envelope) error {
	delta, _ := env.Body.Field("delta")

	n.mu.Lock()
	n.counter += toInt64(delta)
	current := n.counter
	n.mu.Unlock()

	if err := n.base.Reply(env, "add_ok", nil); err != nil {
		return err
	}
	_, err := n.kv.Write(kv.SeqKV, n.base.ID, current, "")
	return err
}

func (n *Node) handleRead(env proto.Envelope) error {
	n.mu.Lock()
	total := n.counter
	for _, v := range n.peerCache {
		total += v
	}
	n.mu.Unlock()

	return n.base.Reply(env, "read_ok", map[string]any{"value": total})
}

func (n *Node) handleKVReply(env proto.Envelope) error {
	if env.Body.Type != kv.TypeReadOK || env.Body.InReplyTo == nil {
		return nil
	}
	n.mu.Lock()
	peer, ok := n.pendingPeerOf[*env.Body.InReplyTo]
	if ok {
		delete(n.pendingPeerOf, *env.Body.InReplyTo)
	}
	n.mu.Unlock()
	if !ok {
		return nil
	}

	var payload kv.ReadOkPayload
	if err := env.Body.Decode(&payload); err != nil {
		return err
	}

	n.mu.Lock()
	if payload.Value > n.peerCache[peer] {
		n.peerCache[peer] = payload.Value
	}
	n.mu.Unlock()
	return nil
}

// Sync is invoked by the runtime timer every counter-sync interval: read
// every peer's seq-kv-stored counter and fold the maximum seen into the
// local cache.
func (n *Node) Sync() error {
	for _, peer := range n.base.OtherPeers() {
		msgID, err := n.kv.Read(kv.SeqKV, peer, "")
		if err != nil {
			return err
		}
		n.mu.Lock()
		n.pendingPeerOf[msgID] = peer
		n.mu.Unlock()
	}
	return nil
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
