package proto

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/joeycumines/go-glomers/internal/errs"
)

// Reader decodes one Envelope per input line.
type Reader struct {
	scanner *bufio.Scanner
}

// NewReader wraps r for line-delimited envelope decoding. The scanner buffer
// is grown well past bufio's default, since a poll_ok reply for a log with
// many populated offsets can exceed 64KiB.
func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &Reader{scanner: sc}
}

// Next reads and decodes the next line. It returns io.EOF once the input is
// exhausted, matching bufio.Scanner's own EOF signalling.
func (rd *Reader) Next() (Envelope, error) {
	if !rd.scanner.Scan() {
		if err := rd.scanner.Err(); err != nil {
			return Envelope{}, fmt.Errorf("proto: read line: %w: %w", errs.ErrTransport, err)
		}
		return Envelope{}, io.EOF
	}
	var env Envelope
	if err := json.Unmarshal(rd.scanner.Bytes(), &env); err != nil {
		return Envelope{}, fmt.Errorf("proto: decode envelope: %w: %w", errs.ErrProtocol, err)
	}
	return env, nil
}

// Writer serialises Envelope writes so concurrently produced lines never
// interleave on the underlying stream.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter wraps w for serialised, line-delimited envelope encoding.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write encodes env as one line, terminated by \n.
func (wr *Writer) Write(env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("proto: encode envelope: %w: %w", errs.ErrProtocol, err)
	}
	data = append(data, '\n')

	wr.mu.Lock()
	defer wr.mu.Unlock()
	if _, err := wr.w.Write(data); err != nil {
		return fmt.Errorf("proto: write line: %w: %w", errs.ErrTransport, err)
	}
	return nil
}
