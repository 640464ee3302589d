// Package proto defines the wire envelope shared by every node-to-node,
// node-to-client, and node-to-service exchange.
//
// One JSON object is read or written per line. Payloads are discriminated by
// body.type; this package only models the envelope and the fields common to
// every payload, keeping the rest as a generic map (Body.Extra) for the caller
// to decode a second time, via Body.Decode, once the type is known.
package proto

import "encoding/json"

// Envelope is the outermost shape of every message on the wire.
type Envelope struct {
	Src  string `json:"src"`
	Dest string `json:"dest"`
	Body Body   `json:"body"`
}

// Body carries the correlation fields common to every payload, plus the
// payload itself flattened alongside them. Go's json package has no
// equivalent to serde's #[serde(flatten)], so Body is decoded/encoded via
// custom MarshalJSON/UnmarshalJSON that merge the fixed fields with an
// arbitrary payload map.
type Body struct {
	MsgID     *int64         `json:"-"`
	InReplyTo *int64         `json:"-"`
	Type      string         `json:"-"`
	Extra     map[string]any `json:"-"`
}

type bodyFixed struct {
	MsgID     *int64 `json:"msg_id,omitempty"`
	InReplyTo *int64 `json:"in_reply_to,omitempty"`
	Type      string `json:"type"`
}

// MarshalJSON merges the fixed correlation fields with the free-form payload
// fields into a single flat JSON object.
func (b Body) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(b.Extra)+3)
	for k, v := range b.Extra {
		out[k] = v
	}
	out["type"] = b.Type
	if b.MsgID != nil {
		out["msg_id"] = *b.MsgID
	}
	if b.InReplyTo != nil {
		out["in_reply_to"] = *b.InReplyTo
	}
	return json.Marshal(out)
}

// UnmarshalJSON splits a flat JSON object back into the fixed correlation
// fields and the remaining payload fields.
func (b *Body) UnmarshalJSON(data []byte) error {
	var fixed bodyFixed
	if err := json.Unmarshal(data, &fixed); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	delete(raw, "type")
	delete(raw, "msg_id")
	delete(raw, "in_reply_to")

	extra := make(map[string]any, len(raw))
	for k, v := range raw {
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return err
		}
		extra[k] = val
	}

	b.MsgID = fixed.MsgID
	b.InReplyTo = fixed.InReplyTo
	b.Type = fixed.Type
	b.Extra = extra
	return nil
}

// Field fetches a payload field by name, matching the second return value of
// a map index expression. Used by handlers reading typed request fields out
// of Body.Extra without re-marshalling the whole envelope.
func (b Body) Field(name string) (any, bool) {
	v, ok := b.Extra[name]
	return v, ok
}

// Decode re-marshals the flattened body and unmarshals it into v, the
// idiomatic Go stand-in for decoding a tagged-union payload variant once its
// discriminant (Type) is known.
func (b Body) Decode(v any) error {
	data, err := json.Marshal(b.Extra)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// NewBody constructs a Body for an outgoing message of the given type,
// optionally attaching an in_reply_to, from an arbitrary payload struct
// marshalled via encoding/json then merged into Extra.
func NewBody(typ string, msgID *int64, inReplyTo *int64, payload any) (Body, error) {
	extra := map[string]any{}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Body{}, err
		}
		if err := json.Unmarshal(data, &extra); err != nil {
			return Body{}, err
		}
	}
	return Body{
		MsgID:     msgID,
		InReplyTo: inReplyTo,
		Type:      typ,
		Extra:     extra,
	}, nil
}
