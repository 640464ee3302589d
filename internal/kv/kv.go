// Package kv models the JSON RPC interface exposed by the two external
// key-value services, seq-kv (sequentially consistent) and lin-kv
// (linearisable), and provides a small client for issuing requests against
// either one over the shared stdio wire codec.
package kv

import (
	"github.com/joeycumines/go-glomers/internal/msgid"
	"github.com/joeycumines/go-glomers/internal/proto"
)

// Well-known destination node ids for the two external services.
const (
	SeqKV = "seq-kv"
	LinKV = "lin-kv"
)

// Error codes recognised in an error{} reply; any other code is logged and
// discarded per the error handling design.
const (
	ErrCodeKeyNotFound = 20
	ErrCodeCASFailed   = 22
)

// Reply type discriminants, matching body.type on an inbound KV reply.
const (
	TypeReadOK  = "read_ok"
	TypeWriteOK = "write_ok"
	TypeCasOK   = "cas_ok"
	TypeError   = "error"
)

// Request payload shapes, marshalled via proto.NewBody.
type (
	readRequest struct {
		Key string `json:"key"`
	}

	writeRequest struct {
		Key   string `json:"key"`
		Value any    `json:"value"`
	}

	casRequest struct {
		Key               string `json:"key"`
		From              any    `json:"from"`
		To                any    `json:"to"`
		CreateIfNotExists bool   `json:"create_if_not_exists"`
	}

	// ReadOkPayload is decoded from a read_ok reply's Body. Every value this
	// module ever stores (log messages, offsets, counter totals) is an
	// integer, so Value is typed directly rather than left as any.
	ReadOkPayload struct {
		Value int64 `json:"value"`
	}

	// ErrorPayload is decoded from an error reply's Body.
	ErrorPayload struct {
		Code int    `json:"code"`
		Text string `json:"text"`
	}
)

// Client issues read/write/cas requests against a KV service and writes them
// through the shared, serialising wire codec.
type Client struct {
	nodeID string
	gen    *msgid.Generator
	writer *proto.Writer
}

// NewClient constructs a Client that originates requests as nodeID.
func NewClient(nodeID string, gen *msgid.Generator, writer *proto.Writer) *Client {
	return &Client{nodeID: nodeID, gen: gen, writer: writer}
}

// Read issues a read{key} request to dest. If logKey is non-empty, the
// allocated msg_id is associated with it in the generator's side table, so
// the dispatcher can route the eventual reply back to the owning log engine.
func (c *Client) Read(dest, key, logKey string) (int64, error) {
	id := c.allocID(logKey)
	return id, c.send(dest, id, "read", readRequest{Key: key})
}

// Write issues a write{key,value} request to dest.
func (c *Client) Write(dest, key string, value any, logKey string) (int64, error) {
	id := c.allocID(logKey)
	return id, c.send(dest, id, "write", writeRequest{Key: key, Value: value})
}

// Cas issues a cas{key,from,to,create_if_not_exists} request to dest.
func (c *Client) Cas(dest, key string, from, to any, createIfNotExists bool, logKey string) (int64, error) {
	id := c.allocID(logKey)
	return id, c.send(dest, id, "cas", casRequest{
		Key:               key,
		From:              from,
		To:                to,
		CreateIfNotExists: createIfNotExists,
	})
}

func (c *Client) allocID(logKey string) int64 {
	if logKey == "" {
		return c.gen.Next()
	}
	return c.gen.NextForLog(logKey)
}

func (c *Client) send(dest string, msgID int64, typ string, payload any) error {
	body, err := proto.NewBody(typ, &msgID, nil, payload)
	if err != nil {
		return err
	}
	return c.writer.Write(proto.Envelope{
		Src:  c.nodeID,
		Dest: dest,
		Body: body,
	})
}

// IsKVSource reports whether src names one of the two external KV services.
func IsKVSource(src string) bool {
	return src == SeqKV || src == LinKV
}
