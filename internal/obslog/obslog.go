// Package obslog wires the node's structured logging facade.
//
// All log output goes to stderr; stdout is reserved for the wire protocol,
// since the test harness reads stdout as the message stream.
package obslog

import (
	"io"
	"os"

	"github.com/joeycumines/izerolog"
	"github.com/joeycumines/logiface"
	"github.com/rs/zerolog"
)

// Logger is the concrete facade type used throughout this module.
type Logger = logiface.Logger[*izerolog.Event]

// Level mirrors the syslog-style levels exposed by logiface.
type Level = logiface.Level

// New constructs a Logger that writes NDJSON to w at the given minimum level.
// NodeID, if non-empty, is attached to every event as a "node" field.
func New(w io.Writer, level Level, nodeID string) *Logger {
	zl := zerolog.New(w).With().Timestamp().Logger()
	if nodeID != "" {
		zl = zl.With().Str("node", nodeID).Logger()
	}
	return logiface.New[*izerolog.Event](
		izerolog.WithZerolog(zl),
		logiface.WithLevel[*izerolog.Event](level),
	)
}

// NewStderr is a convenience wrapper around New targeting os.Stderr.
func NewStderr(level Level, nodeID string) *Logger {
	return New(os.Stderr, level, nodeID)
}

// NewDiscard returns a Logger that drops everything, for use in tests that
// don't care about log output but still need a non-nil facade to satisfy
// constructors.
func NewDiscard() *Logger {
	return New(io.Discard, logiface.LevelDisabled, "")
}

// ParseLevel maps the configuration string vocabulary onto logiface levels.
func ParseLevel(s string) (Level, bool) {
	switch s {
	case "trace":
		return logiface.LevelTrace, true
	case "debug":
		return logiface.LevelDebug, true
	case "info", "":
		return logiface.LevelInformational, true
	case "warn", "warning":
		return logiface.LevelWarning, true
	case "error":
		return logiface.LevelError, true
	default:
		return logiface.LevelDisabled, false
	}
}
