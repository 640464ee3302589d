// Package node implements the bootstrap handshake and reply helper shared by
// every workload: read the init envelope, reply init_ok, and thereafter
// stamp in_reply_to on every outbound reply from a fresh, process-wide
// msg_id.
package node

import (
	"fmt"

	"github.com/joeycumines/go-glomers/internal/errs"
	"github.com/joeycumines/go-glomers/internal/msgid"
	"github.com/joeycumines/go-glomers/internal/obslog"
	"github.com/joeycumines/go-glomers/internal/proto"
)

// Base holds the identity and wiring every workload needs: who this node is,
// who its peers are, and how to write a reply.
type Base struct {
	ID     string
	Peers  []string
	Writer *proto.Writer
	Gen    *msgid.Generator
	Logger *obslog.Logger
}

type initPayload struct {
	NodeID  string   `json:"node_id"`
	NodeIDs []string `json:"node_ids"`
}

// Bootstrap reads the first inbound envelope, requires it to be an init
// message, replies init_ok, and returns a Base ready to drive the rest of
// the node's lifecycle.
func Bootstrap(rd *proto.Reader, writer *proto.Writer, gen *msgid.Generator, logger *obslog.Logger) (*Base, error) {
	env, err := rd.Next()
	if err != nil {
		return nil, fmt.Errorf("node: reading init: %w", err)
	}
	if env.Body.Type != "init" {
		return nil, fmt.Errorf("node: expected init, got %q: %w", env.Body.Type, errs.ErrProtocol)
	}
	var payload initPayload
	if err := env.Body.Decode(&payload); err != nil {
		return nil, fmt.Errorf("node: decoding init payload: %w", err)
	}

	base := &Base{
		ID:     payload.NodeID,
		Peers:  payload.NodeIDs,
		Writer: writer,
		Gen:    gen,
		Logger: logger,
	}
	if err := base.Reply(env, "init_ok", nil); err != nil {
		return nil, fmt.Errorf("node: replying init_ok: %w", err)
	}
	return base, nil
}

// Reply sends a reply to src's envelope with a fresh msg_id and
// in_reply_to set to src's own msg_id, if any.
func (b *Base) Reply(src proto.Envelope, typ string, payload any) error {
	id := b.Gen.Next()
	body, err := proto.NewBody(typ, &id, src.Body.MsgID, payload)
	if err != nil {
		return err
	}
	return b.Writer.Write(proto.Envelope{Src: b.ID, Dest: src.Src, Body: body})
}

// Send originates a brand-new message (not a reply) to dest.
func (b *Base) Send(dest, typ string, payload any) (int64, error) {
	id := b.Gen.Next()
	body, err := proto.NewBody(typ, &id, nil, payload)
	if err != nil {
		return 0, err
	}
	return id, b.Writer.Write(proto.Envelope{Src: b.ID, Dest: dest, Body: body})
}

// OtherPeers returns every peer id except this node's own.
func (b *Base) OtherPeers() []string {
	out := make([]string, 0, len(b.Peers))
	for _, p := range b.Peers {
		if p != b.ID {
			out = append(out, p)
		}
	}
	return out
}
