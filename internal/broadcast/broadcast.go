// Package broadcast implements the gossip broadcast workload: every node
// keeps a set of seen message integers and periodically gossips the
// messages it believes a given neighbour hasn't seen yet.
//
// An early broadcast draft this was distilled from has an empty neighbour
// fan-out loop — neighbours never actually receive anything. This
// implementation always performs the fan-out from the gossip timer; nothing
// here is a no-op stand-in.
package broadcast

import (
	"sync"

	"github.com/joeycumines/go-glomers/internal/node"
	"github.com/joeycumines/go-glomers/internal/proto"
)

// gossipSent records one in-flight gossip message awaiting gossip_ok, so its
// contents can be folded into the neighbour's acknowledged set on ack.
type gossipSent struct {
	neighbour string
	sent      map[int64]struct{}
}

// Node is the broadcast workload's state machine.
type Node struct {
	base *node.Base

	mu         sync.Mutex
	seen       map[int64]struct{}
	neighbours []string
	// known[neighbour] is the set of message ids that neighbour has
	// acknowledged receiving.
	known map[string]map[int64]struct{}
	// inFlight[gossipMsgID] is the payload of a not-yet-acked gossip send.
	inFlight map[int64]gossipSent
}

// New constructs a broadcast Node with no neighbours until topology arrives.
func New(base *node.Base) *Node {
	return &Node{
		base:     base,
		seen:     make(map[int64]struct{}),
		known:    make(map[string]map[int64]struct{}),
		inFlight: make(map[int64]gossipSent),
	}
}

// Handle dispatches one inbound broadcast, read, topology, gossip, or
// gossip_ok message.
func (n *Node) Handle(env proto.Envelope) error {
	switch env.Body.Type {
	case "broadcast":
		return n.handleBroadcast(env)
	case "read":
		return n.handleRead(env)
	case "topology":
		return n.handleTopology(env)
	case "gossip":
		return n.handleGossip(env)
	case "gossip_ok":
		return n.handleGossipOK(env)
	default:
		n.base.Logger.Warning().Str("type", env.Body.Type).Log("broadcast: unrecognised message type, dropped")
		return nil
	}
}

func (n *Node) handleBroadcast(env proto.Envelope) error {
	msg, ok := env.Body.Field("message")
	if !ok {
		return n.base.Reply(env, "broadcast_ok", nil)
	}
	id := toInt64(msg)

	n.mu.Lock()
	n.seen[id] = struct{}{}
	n.mu.Unlock()

	return n.base.Reply(env, "broadcast_ok", nil)
}

func (n *Node) handleRead(env proto.Envelope) error {
	n.mu.Lock()
	messages := make([]int64, 0, len(n.seen))
	for id := range n.seen {
		messages = append(messages, id)
	}
	n.mu.Unlock()

	return n.base.Reply(env, "read_ok", map[string]any{"messages": messages})
}

func (n *Node) handleTopology(env proto.Envelope) error {
	var payload struct {
		Topology map[string][]string `json:"topology"`
	}
	if err := env.Body.Decode(&payload); err != nil {
		return err
	}

	n.mu.Lock()
	n.neighbours = payload.Topology[n.base.ID]
	for _, nb := range n.neighbours {
		if _, ok := n.known[nb]; !ok {
			n.known[nb] = make(map[int64]struct{})
		}
	}
	n.mu.Unlock()

	return n.base.Reply(env, "topology_ok", nil)
}

func (n *Node) handleGossip(env proto.Envelope) error {
	var payload struct {
		Seen []int64 `json:"seen"`
	}
	if err := env.Body.Decode(&payload); err != nil {
		return err
	}

	n.mu.Lock()
	for _, id := range payload.Seen {
		n.seen[id] = struct{}{}
	}
	n.mu.Unlock()

	return n.base.Reply(env, "gossip_ok", nil)
}

func (n *Node) handleGossipOK(env proto.Envelope) error {
	if env.Body.InReplyTo == nil {
		return nil
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	sent, ok := n.inFlight[*env.Body.InReplyTo]
	if !ok {
		return nil
	}
	delete(n.inFlight, *env.Body.InReplyTo)
	for id := range sent.sent {
		n.known[sent.neighbour][id] = struct{}{}
	}
	return nil
}

// Gossip is invoked by the runtime timer every gossip interval: for each
// neighbour not yet fully synced, send it the messages it's missing.
func (n *Node) Gossip() error {
	n.mu.Lock()
	type pending struct {
		neighbour string
		unseen    map[int64]struct{}
	}
	var batch []pending
	for _, nb := range n.neighbours {
		unseen := make(map[int64]struct{})
		for id := range n.seen {
			if _, ok := n.known[nb][id]; !ok {
				unseen[id] = struct{}{}
			}
		}
		if len(unseen) > 0 {
			batch = append(batch, pending{neighbour: nb, unseen: unseen})
		}
	}
	n.mu.Unlock()

	for _, p := range batch {
		ids := make([]int64, 0, len(p.unseen))
		for id := range p.unseen {
			ids = append(ids, id)
		}
		msgID, err := n.base.Send(p.neighbour, "gossip", map[string]any{"seen": ids})
		if err != nil {
			return err
		}
		n.mu.Lock()
		n.inFlight[msgID] = gossipSent{neighbour: p.neighbour, sent: p.unseen}
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
