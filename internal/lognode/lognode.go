// Package lognode is the replicated-log dispatcher: it owns one
// logengine.Engine per named log key, fans out multi-key client requests
// (poll, commit_offsets, list_committed_offsets) across the relevant
// engines via progress trackers, and routes inbound KV replies back to the
// engine that originated them.
package lognode

import (
	"fmt"

	"github.com/joeycumines/go-glomers/internal/errs"
	"github.com/joeycumines/go-glomers/internal/kv"
	"github.com/joeycumines/go-glomers/internal/logengine"
	"github.com/joeycumines/go-glomers/internal/msgid"
	"github.com/joeycumines/go-glomers/internal/node"
	"github.com/joeycumines/go-glomers/internal/proto"
)

// pollTracker accumulates per-log poll results for one client poll request.
type pollTracker struct {
	env       proto.Envelope
	remaining int
	msgs      map[string][]logengine.OffsetValue
}

// commitTracker counts per-log commit completions for one client request.
// Every completion — synchronous no-op or asynchronous CAS — passes through
// this tracker, so a commit_offsets_ok is never sent until every filtered
// log key has reported, even when every CommitOffset call happens to
// complete immediately.
type commitTracker struct {
	env       proto.Envelope
	remaining int
}

// listTracker accumulates per-log committed offsets for one client request.
type listTracker struct {
	env       proto.Envelope
	remaining int
	offsets   map[string]int64
}

// Node is the replicated-log dispatcher.
type Node struct {
	base    *node.Base
	kv      *kv.Client
	gen     *msgid.Generator
	maxPoll int

	logs map[string]*logengine.Engine

	pendingSends   map[int64]proto.Envelope
	pollTrackers   map[int64]*pollTracker
	commitTrackers map[int64]*commitTracker
	listTrackers   map[int64]*listTracker
}

// New constructs a dispatcher. Engine construction for each log key is lazy,
// happening on the first send referencing that key.
func New(base *node.Base, kvClient *kv.Client, gen *msgid.Generator, maxPoll int) *Node {
	return &Node{
		base:           base,
		kv:             kvClient,
		gen:            gen,
		maxPoll:        maxPoll,
		logs:           make(map[string]*logengine.Engine),
		pendingSends:   make(map[int64]proto.Envelope),
		pollTrackers:   make(map[int64]*pollTracker),
		commitTrackers: make(map[int64]*commitTracker),
		listTrackers:   make(map[int64]*listTracker),
	}
}

func (n *Node) getOrCreateLog(key string) *logengine.Engine {
	if e, ok := n.logs[key]; ok {
		return e
	}
	e := logengine.New(key, n.kv, n.maxPoll, n.base.Logger)
	n.logs[key] = e
	return e
}

// Handle routes one inbound envelope: a client request, or a reply
// originating from seq-kv/lin-kv.
func (n *Node) Handle(env proto.Envelope) error {
	if kv.IsKVSource(env.Src) {
		return n.handleKVReply(env)
	}
	return n.handleClient(env)
}

func (n *Node) handleClient(env proto.Envelope) error {
	switch env.Body.Type {
	case "send":
		var payload struct {
			Key string `json:"key"`
			Msg int64  `json:"msg"`
		}
		if err := env.Body.Decode(&payload); err != nil {
			return fmt.Errorf("lognode: decoding send: %w", err)
		}
		sendID := n.gen.Next()
		n.pendingSends[sendID] = env
		return n.getOrCreateLog(payload.Key).Send(sendID, payload.Msg)

	case "poll":
		var payload struct {
			Offsets map[string]int64 `json:"offsets"`
		}
		if err := env.Body.Decode(&payload); err != nil {
			return fmt.Errorf("lognode: decoding poll: %w", err)
		}
		return n.dispatchPoll(env, payload.Offsets)

	case "commit_offsets":
		var payload struct {
			Offsets map[string]int64 `json:"offsets"`
		}
		if err := env.Body.Decode(&payload); err != nil {
			return fmt.Errorf("lognode: decoding commit_offsets: %w", err)
		}
		return n.dispatchCommit(env, payload.Offsets)

	case "list_committed_offsets":
		var payload struct {
			Keys []string `json:"keys"`
		}
		if err := env.Body.Decode(&payload); err != nil {
			return fmt.Errorf("lognode: decoding list_committed_offsets: %w", err)
		}
		return n.dispatchList(env, payload.Keys)

	default:
		n.base.Logger.Warning().Str("type", env.Body.Type).Log("lognode: unrecognised client message type, dropped")
		return nil
	}
}

func (n *Node) dispatchPoll(env proto.Envelope, offsets map[string]int64) error {
	filtered := make(map[string]int64, len(offsets))
	for k, v := range offsets {
		if _, ok := n.logs[k]; ok {
			filtered[k] = v
		}
	}
	if len(filtered) == 0 {
		return n.base.Reply(env, "poll_ok", map[string]any{"msgs": map[string]any{}})
	}

	pollID := n.gen.Next()
	n.pollTrackers[pollID] = &pollTracker{env: env, remaining: len(filtered), msgs: make(map[string][]logengine.OffsetValue, len(filtered))}
	for k, start := range filtered {
		if err := n.logs[k].Poll(pollID, start); err != nil {
			return err
		}
	}
	return nil
}

func (n *Node) dispatchCommit(env proto.Envelope, offsets map[string]int64) error {
	filtered := make(map[string]int64, len(offsets))
	for k, v := range offsets {
		if _, ok := n.logs[k]; ok {
			filtered[k] = v
		}
	}
	if len(filtered) == 0 {
		return n.base.Reply(env, "commit_offsets_ok", nil)
	}

	commitID := n.gen.Next()
	n.commitTrackers[commitID] = &commitTracker{env: env, remaining: len(filtered)}
	for k, offset := range filtered {
		result, done, err := n.logs[k].CommitOffset(commitID, offset)
		if err != nil {
			return err
		}
		if done {
			if err := n.advanceCommitTracker(result.CommitID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (n *Node) dispatchList(env proto.Envelope, keys []string) error {
	filtered := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := n.logs[k]; ok {
			filtered = append(filtered, k)
		}
	}
	if len(filtered) == 0 {
		return n.base.Reply(env, "list_committed_offsets_ok", map[string]any{"offsets": map[string]any{}})
	}

	listID := n.gen.Next()
	n.listTrackers[listID] = &listTracker{env: env, remaining: len(filtered), offsets: make(map[string]int64, len(filtered))}
	for _, k := range filtered {
		if err := n.logs[k].ReadCommittedOffset(listID); err != nil {
			return err
		}
	}
	return nil
}

func (n *Node) handleKVReply(env proto.Envelope) error {
	if env.Body.InReplyTo == nil {
		n.base.Logger.Debug().Str("src", env.Src).Log("lognode: KV reply missing in_reply_to, dropped")
		return nil
	}
	msgID := *env.Body.InReplyTo

	logKey, ok := n.gen.ConsumeLogKey(msgID)
	if !ok {
		err := fmt.Errorf("lognode: no pending log key for msg_id %d: %w", msgID, errs.ErrUnknownKV)
		n.base.Logger.Debug().Err(err).Log("lognode: unknown KV reply, dropped")
		return nil
	}
	engine, ok := n.logs[logKey]
	if !ok {
		n.base.Logger.Err().Str("log", logKey).Log("lognode: KV reply for log with no engine, dropped")
		return nil
	}

	switch env.Body.Type {
	case kv.TypeCasOK:
		result, done, err := engine.CasOK(msgID)
		if err != nil || !done {
			return err
		}
		return n.completeResult(logKey, result)

	case kv.TypeReadOK:
		var payload kv.ReadOkPayload
		if err := env.Body.Decode(&payload); err != nil {
			return fmt.Errorf("lognode: decoding read_ok: %w", err)
		}
		result, done, err := engine.ReadOK(msgID, payload.Value)
		if err != nil || !done {
			return err
		}
		return n.completeResult(logKey, result)

	case kv.TypeError:
		var payload kv.ErrorPayload
		if err := env.Body.Decode(&payload); err != nil {
			return fmt.Errorf("lognode: decoding error: %w", err)
		}
		switch payload.Code {
		case kv.ErrCodeCASFailed:
			_, err := engine.CasError(msgID)
			return err
		case kv.ErrCodeKeyNotFound:
			result, done, err := engine.KeyNotFound(msgID)
			if err != nil || !done {
				return err
			}
			return n.completeResult(logKey, result)
		default:
			n.base.Logger.Warning().Int("code", payload.Code).Log("lognode: unhandled KV error code, dropped")
			return nil
		}

	case kv.TypeWriteOK:
		// Fire-and-forget: write_ok replies never carry a log-key
		// association (see logengine.Engine.CasOK), so this branch is
		// unreachable in practice; kept for completeness of the switch.
		return nil

	default:
		n.base.Logger.Warning().Str("type", env.Body.Type).Log("lognode: unrecognised KV reply type, dropped")
		return nil
	}
}

func (n *Node) completeResult(logKey string, result logengine.Result) error {
	switch result.Kind {
	case logengine.ResultSendCas:
		env, ok := n.pendingSends[result.SendID]
		if !ok {
			n.base.Logger.Err().Log("lognode: send completion with no pending client request, dropped")
			return nil
		}
		delete(n.pendingSends, result.SendID)
		return n.base.Reply(env, "send_ok", map[string]any{"offset": result.Offset})

	case logengine.ResultCommitCas, logengine.ResultCommitOffsetCompleted:
		return n.advanceCommitTracker(result.CommitID)

	case logengine.ResultPollCompleted:
		return n.advancePollTracker(result.PollID, logKey, result.Msgs)

	case logengine.ResultListCommitOffsetCompleted:
		return n.advanceListTracker(result.CommitID, logKey, result.Offset)

	default:
		return nil
	}
}

func (n *Node) advanceCommitTracker(commitID int64) error {
	t, ok := n.commitTrackers[commitID]
	if !ok {
		return nil
	}
	t.remaining--
	if t.remaining > 0 {
		return nil
	}
	delete(n.commitTrackers, commitID)
	return n.base.Reply(t.env, "commit_offsets_ok", nil)
}

func (n *Node) advancePollTracker(pollID int64, logKey string, msgs []logengine.OffsetValue) error {
	t, ok := n.pollTrackers[pollID]
	if !ok {
		return nil
	}
	t.msgs[logKey] = msgs
	t.remaining--
	if t.remaining > 0 {
		return nil
	}
	delete(n.pollTrackers, pollID)

	out := make(map[string][][2]int64, len(t.msgs))
	for k, ov := range t.msgs {
		pairs := make([][2]int64, len(ov))
		for i, v := range ov {
			pairs[i] = [2]int64{v.Offset, v.Value}
		}
		out[k] = pairs
	}
	return n.base.Reply(t.env, "poll_ok", map[string]any{"msgs": out})
}

func (n *Node) advanceListTracker(listID int64, logKey string, offset int64) error {
	t, ok := n.listTrackers[listID]
	if !ok {
		return nil
	}
	t.offsets[logKey] = offset
	t.remaining--
	if t.remaining > 0 {
		return nil
	}
	delete(n.listTrackers, listID)
	return n.base.Reply(t.env, "list_committed_offsets_ok", map[string]any{"offsets": t.offsets})
}
