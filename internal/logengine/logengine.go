// Package logengine owns a single named log's offset state and in-flight KV
// operations, translating client operations into KV compare-and-swap, read,
// and write exchanges, and retrying automatically on CAS contention.
//
// Every public method is a response to either a client request (Send, Poll,
// CommitOffset, ReadCommittedOffset) or an inbound KV reply (CasOK,
// CasError, ReadOK, KeyNotFound) previously originated by this engine. The
// continuation to run on a KV reply is never a captured closure: it is
// recorded explicitly in the pending table, keyed by the KV request's own
// msg_id, so the reply path is driven entirely by data rather than
// suspended goroutine state.
package logengine

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/joeycumines/go-glomers/internal/kv"
	"github.com/joeycumines/go-glomers/internal/obslog"
)

type pendingKind int

const (
	kindCasSend pendingKind = iota
	kindCasCommitOffset
	kindReadUpdatedOffset
	kindReadPollMessage
	kindReadUpdatedCommittedOffset
)

type pendingEntry struct {
	kind pendingKind

	// CasSend / ReadUpdatedOffset
	sendID int64
	msg    int64

	// CasSend / CasCommitOffset
	offset int64

	// CasCommitOffset / ReadUpdatedCommittedOffset / ReadPollMessage
	commitID int64
	pollID   int64

	// ReadUpdatedCommittedOffset: whether offset carries the retry target
	// (commit_offset retry) or is absent (list_committed_offsets read).
	hasOffset bool
}

type pollSlot struct {
	filled  bool
	present bool
	value   int64
}

type pollBuffer struct {
	startOffset int64
	slots       []pollSlot
	remaining   int
}

// ResultKind discriminates the outcome an Engine method hands back to the
// dispatcher. ResultNone means the call only issued further KV traffic; the
// eventual outcome will arrive via a later CasOK/ReadOK/KeyNotFound call.
type ResultKind int

const (
	ResultNone ResultKind = iota
	ResultSendCas
	ResultCommitCas
	ResultCommitOffsetCompleted
	ResultPollCompleted
	ResultListCommitOffsetCompleted
)

// OffsetValue is one populated slot of a poll result: the log offset and the
// value stored there.
type OffsetValue struct {
	Offset int64
	Value  int64
}

// Result is the outcome of a pending KV exchange completing, for the
// dispatcher to fold into a client-facing progress tracker.
type Result struct {
	Kind     ResultKind
	SendID   int64
	CommitID int64
	PollID   int64
	Offset   int64
	Msgs     []OffsetValue
}

// Engine is the per-log-key state machine described in the package doc.
type Engine struct {
	key     string
	kv      *kv.Client
	maxPoll int
	logger  *obslog.Logger

	localOffset          atomic.Int64
	localCommittedOffset atomic.Int64

	mu           sync.Mutex
	pending      map[int64]pendingEntry
	pollPartials map[int64]*pollBuffer
}

// New constructs an Engine for the named log, backed by kvClient, reading at
// most maxPoll messages per Poll call.
func New(key string, kvClient *kv.Client, maxPoll int, logger *obslog.Logger) *Engine {
	if logger == nil {
		logger = obslog.NewDiscard()
	}
	return &Engine{
		key:          key,
		kv:           kvClient,
		maxPoll:      maxPoll,
		logger:       logger,
		pending:      make(map[int64]pendingEntry),
		pollPartials: make(map[int64]*pollBuffer),
	}
}

// Send appends msg on behalf of sendID, the client-request correlation id.
func (e *Engine) Send(sendID, msg int64) error {
	from := e.localOffset.Load()
	offset := from + 1
	casID, err := e.kv.Cas(kv.LinKV, "offset-"+e.key, from, offset, true, e.key)
	if err != nil {
		return err
	}
	e.setPending(casID, pendingEntry{kind: kindCasSend, sendID: sendID, msg: msg, offset: offset})
	return nil
}

// CasOK handles a cas_ok reply for casID, previously issued by Send or
// CommitOffset. The second return value is false if casID is unknown (an
// unrelated CAS reply, or a reply for a request this engine never issued).
func (e *Engine) CasOK(casID int64) (Result, bool, error) {
	entry, ok := e.takePending(casID)
	if !ok {
		return Result{}, false, nil
	}
	switch entry.kind {
	case kindCasSend:
		e.localOffset.Store(entry.offset)
		// Fire-and-forget: no pending entry is recorded for the write's
		// msg_id, so its eventual write_ok reply is silently dropped as an
		// unknown KV reply, matching the error-handling design.
		if _, err := e.kv.Write(kv.SeqKV, e.key+"-"+strconv.FormatInt(entry.offset, 10), entry.msg, ""); err != nil {
			return Result{}, false, err
		}
		return Result{Kind: ResultSendCas, SendID: entry.sendID, Offset: entry.offset}, true, nil
	case kindCasCommitOffset:
		e.localCommittedOffset.Store(entry.offset)
		return Result{Kind: ResultCommitCas, CommitID: entry.commitID}, true, nil
	default:
		e.logger.Err().Int("msg_id", int(casID)).Log("logengine: cas_ok for non-CAS pending entry, dropped")
		return Result{}, false, nil
	}
}

// CasError handles an error{code:22} reply for casID, retrying by reading
// the authoritative value from lin-kv.
func (e *Engine) CasError(casID int64) (bool, error) {
	entry, ok := e.takePending(casID)
	if !ok {
		return false, nil
	}
	switch entry.kind {
	case kindCasSend:
		readID, err := e.kv.Read(kv.LinKV, "offset-"+e.key, e.key)
		if err != nil {
			return true, err
		}
		e.setPending(readID, pendingEntry{kind: kindReadUpdatedOffset, sendID: entry.sendID, msg: entry.msg})
		return true, nil
	case kindCasCommitOffset:
		readID, err := e.kv.Read(kv.LinKV, "committed-offset-"+e.key, e.key)
		if err != nil {
			return true, err
		}
		e.setPending(readID, pendingEntry{kind: kindReadUpdatedCommittedOffset, commitID: entry.commitID, hasOffset: true, offset: entry.offset})
		return true, nil
	default:
		e.logger.Err().Int("msg_id", int(casID)).Log("logengine: cas_error for non-CAS pending entry, dropped")
		return true, nil
	}
}

// ReadOK handles a read_ok{value} reply for msgID.
func (e *Engine) ReadOK(msgID int64, value int64) (Result, bool, error) {
	entry, ok := e.takePending(msgID)
	if !ok {
		return Result{}, false, nil
	}
	switch entry.kind {
	case kindReadUpdatedOffset:
		e.localOffset.Store(value)
		return Result{}, false, e.Send(entry.sendID, entry.msg)
	case kindReadUpdatedCommittedOffset:
		e.localCommittedOffset.Store(value)
		if entry.hasOffset {
			r, done, err := e.CommitOffset(entry.commitID, entry.offset)
			return r, done, err
		}
		return Result{Kind: ResultListCommitOffsetCompleted, CommitID: entry.commitID, Offset: value}, true, nil
	case kindReadPollMessage:
		v := value
		return e.completePollSlot(entry.pollID, entry.offset, &v)
	default:
		e.logger.Err().Int("msg_id", int(msgID)).Log("logengine: read_ok for non-read pending entry, dropped")
		return Result{}, false, nil
	}
}

// KeyNotFound handles an error{code:20} reply for msgID.
func (e *Engine) KeyNotFound(msgID int64) (Result, bool, error) {
	entry, ok := e.takePending(msgID)
	if !ok {
		return Result{}, false, nil
	}
	switch entry.kind {
	case kindReadPollMessage:
		return e.completePollSlot(entry.pollID, entry.offset, nil)
	case kindReadUpdatedCommittedOffset:
		if entry.hasOffset {
			e.logger.Err().Int("msg_id", int(msgID)).Log("logengine: key_not_found for commit-offset retry read, dropped")
			return Result{}, false, nil
		}
		e.localCommittedOffset.Store(0)
		return Result{Kind: ResultListCommitOffsetCompleted, CommitID: entry.commitID, Offset: 0}, true, nil
	default:
		e.logger.Err().Int("msg_id", int(msgID)).Log("logengine: key_not_found for unexpected pending entry, dropped")
		return Result{}, false, nil
	}
}

// Poll starts reading maxPoll consecutive offsets from startOffset on behalf
// of pollID, the client-request correlation id.
func (e *Engine) Poll(pollID, startOffset int64) error {
	e.mu.Lock()
	e.pollPartials[pollID] = &pollBuffer{
		startOffset: startOffset,
		slots:       make([]pollSlot, e.maxPoll),
		remaining:   e.maxPoll,
	}
	e.mu.Unlock()

	for i := 0; i < e.maxPoll; i++ {
		offset := startOffset + int64(i)
		readID, err := e.kv.Read(kv.SeqKV, e.key+"-"+strconv.FormatInt(offset, 10), e.key)
		if err != nil {
			return err
		}
		e.setPending(readID, pendingEntry{kind: kindReadPollMessage, pollID: pollID, offset: offset})
	}
	return nil
}

// CommitOffset advances the committed offset to offset on behalf of
// commitID, short-circuiting to ResultCommitOffsetCompleted when offset is
// already covered (invariant 3: a commit at or below the known committed
// offset is a no-op success).
func (e *Engine) CommitOffset(commitID, offset int64) (Result, bool, error) {
	cur := e.localCommittedOffset.Load()
	if cur >= offset {
		return Result{Kind: ResultCommitOffsetCompleted, CommitID: commitID}, true, nil
	}
	casID, err := e.kv.Cas(kv.LinKV, "committed-offset-"+e.key, cur, offset, true, e.key)
	if err != nil {
		return Result{}, false, err
	}
	e.setPending(casID, pendingEntry{kind: kindCasCommitOffset, commitID: commitID, offset: offset})
	return Result{}, false, nil
}

// ReadCommittedOffset starts a list_committed_offsets read on behalf of id.
func (e *Engine) ReadCommittedOffset(id int64) error {
	readID, err := e.kv.Read(kv.LinKV, "committed-offset-"+e.key, e.key)
	if err != nil {
		return err
	}
	e.setPending(readID, pendingEntry{kind: kindReadUpdatedCommittedOffset, commitID: id, hasOffset: false})
	return nil
}

func (e *Engine) setPending(msgID int64, entry pendingEntry) {
	e.mu.Lock()
	e.pending[msgID] = entry
	e.mu.Unlock()
}

func (e *Engine) takePending(msgID int64) (pendingEntry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.pending[msgID]
	if ok {
		delete(e.pending, msgID)
	}
	return entry, ok
}

// completePollSlot fills one slot (present=value!=nil) of the poll buffer
// owning pollID at the given offset, returning a PollCompleted Result once
// every slot has reported.
func (e *Engine) completePollSlot(pollID, offset int64, value *int64) (Result, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	buf, ok := e.pollPartials[pollID]
	if !ok {
		return Result{}, false, nil
	}
	idx := offset - buf.startOffset
	if idx < 0 || idx >= int64(len(buf.slots)) {
		return Result{}, false, nil
	}
	if buf.slots[idx].filled {
		return Result{}, false, nil
	}
	buf.slots[idx].filled = true
	if value != nil {
		buf.slots[idx].present = true
		buf.slots[idx].value = *value
	}
	buf.remaining--
	if buf.remaining > 0 {
		return Result{}, false, nil
	}

	delete(e.pollPartials, pollID)
	msgs := make([]OffsetValue, 0, len(buf.slots))
	for i, s := range buf.slots {
		if s.present {
			msgs = append(msgs, OffsetValue{Offset: buf.startOffset + int64(i), Value: s.value})
		}
	}
	return Result{Kind: ResultPollCompleted, PollID: pollID, Msgs: msgs}, true, nil
}
