package buffer

import (
	"strings"
	"time"

	"github.com/dshills/strand/internal/clock"
	"github.com/dshills/strand/internal/history"
	"github.com/dshills/strand/internal/logging"
)

// LineEnding selects how inserted line breaks are normalized.
type LineEnding uint8

const (
	// LineEndingKeep stores text as given.
	LineEndingKeep LineEnding = iota
	// LineEndingLF converts CRLF and lone CR to LF.
	LineEndingLF
)

// ParseLineEnding maps "lf" to LineEndingLF and anything else to
// LineEndingKeep.
func ParseLineEnding(s string) LineEnding {
	if strings.EqualFold(s, "lf") {
		return LineEndingLF
	}
	return LineEndingKeep
}

func (le LineEnding) normalize(s string) string {
	if le != LineEndingLF || !strings.Contains(s, "\r") {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// Option configures a Buffer.
type Option func(*Buffer)

// WithReplica sets the local replica id. Defaults to a fresh id.
func WithReplica(id clock.ReplicaID) Option {
	return func(b *Buffer) {
		b.local.Replica = id
		b.lamport.Replica = id
	}
}

// WithID sets the document id shared by all replicas. Defaults to a
// fresh id.
func WithID(id ID) Option {
	return func(b *Buffer) {
		b.id = id
	}
}

// WithUndoLimit bounds the number of local undo transactions.
func WithUndoLimit(n int) Option {
	return func(b *Buffer) {
		b.historyOpts = append(b.historyOpts, history.WithMaxEntries(n))
	}
}

// WithGroupInterval merges local edits made within d into one undo
// transaction.
func WithGroupInterval(d time.Duration) Option {
	return func(b *Buffer) {
		b.historyOpts = append(b.historyOpts, history.WithGroupInterval(d))
	}
}

// WithLineEnding normalizes line breaks in locally inserted text.
func WithLineEnding(le LineEnding) Option {
	return func(b *Buffer) {
		b.lineEnding = le
	}
}

// WithInvariantChecks verifies internal consistency after every operation.
// A failure disables the buffer.
func WithInvariantChecks(on bool) Option {
	return func(b *Buffer) {
		b.checkInvariants = on
	}
}

// WithLogger sets the logger. Defaults to logging.Null.
func WithLogger(l *logging.Logger) Option {
	return func(b *Buffer) {
		b.log = logging.OrNull(l)
	}
}

// WithClock sets the time source used for undo grouping.
func WithClock(now func() time.Time) Option {
	return func(b *Buffer) {
		if now != nil {
			b.now = now
		}
	}
}
