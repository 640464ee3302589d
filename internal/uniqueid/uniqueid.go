// Package uniqueid implements the unique-id-generation workload.
package uniqueid

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/joeycumines/go-glomers/internal/config"
	"github.com/joeycumines/go-glomers/internal/node"
	"github.com/joeycumines/go-glomers/internal/proto"
)

// Node mints an id per generate request, using the configured strategy.
type Node struct {
	base     *node.Base
	strategy config.UniqueIDStrategy
}

// New constructs a unique-id Node using the given strategy.
func New(base *node.Base, strategy config.UniqueIDStrategy) *Node {
	return &Node{base: base, strategy: strategy}
}

// Handle mints and replies a fresh id for every generate request.
func (n *Node) Handle(env proto.Envelope) error {
	if env.Body.Type != "generate" {
		n.base.Logger.Warning().Str("type", env.Body.Type).Log("uniqueid: unrecognised message type, dropped")
		return nil
	}

	var id string
	switch n.strategy {
	case config.StrategyUUID:
		id = uuid.NewString()
	default:
		// Collision-free because Gen.Next is this node's own monotonic
		// counter: the inbound envelope's msg_id is only unique per sender,
		// and the harness runs multiple client nodes each starting their own
		// counter at 1.
		id = fmt.Sprintf("%s-%d", n.base.ID, n.base.Gen.Next())
	}

	return n.base.Reply(env, "generate_ok", map[string]any{"id": id})
}
