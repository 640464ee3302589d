// Package echo implements the trivial echo workload: reply echo_ok to every
// echo.
package echo

import (
	"github.com/joeycumines/go-glomers/internal/node"
	"github.com/joeycumines/go-glomers/internal/proto"
)

// Node is the echo workload's state machine — it is, in fact, stateless.
type Node struct {
	base *node.Base
}

// New constructs an echo Node.
func New(base *node.Base) *Node {
	return &Node{base: base}
}

// Handle replies to an echo request; anything else is logged and dropped.
func (n *Node) Handle(env proto.Envelope) error {
	if env.Body.Type != "echo" {
		n.base.Logger.Warning().Str("type", env.Body.Type).Log("echo: unrecognised message type, dropped")
		return nil
	}
	echo, _ := env.Body.Field("echo")
	return n.base.Reply(env, "echo_ok", map[string]any{"echo": echo})
}
