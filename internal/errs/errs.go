// Package errs defines the sentinel error kinds shared across the node:
// transport failures, protocol violations, and unrecognised KV traffic.
// Callers wrap one of these via fmt.Errorf("...: %w", ...) and distinguish
// them downstream with errors.Is.
package errs

import "errors"

var (
	// ErrTransport marks a failure reading or writing the wire stream itself
	// (stdin read failure, stdout write failure). A stdin read failure is
	// fatal; a stdout write failure is returned to the caller, which is fatal
	// during bootstrap and logged by the message handler's caller afterwards.
	ErrTransport = errors.New("transport error")

	// ErrProtocol marks a message that violates the wire protocol (malformed
	// JSON, unexpected type where one is required). Fatal whichever node sent
	// the offending line, KV services included.
	ErrProtocol = errors.New("protocol error")

	// ErrUnknownKV marks a KV reply with no corresponding pending entry.
	// Never fatal: logged at debug level and dropped.
	ErrUnknownKV = errors.New("unknown KV reply")
)
