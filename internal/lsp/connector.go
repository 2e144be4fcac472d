package lsp

import (
	"context"

	"github.com/dshills/strand/internal/buffer"
)

// Connector supplies language intelligence for buffer snapshots. Results
// are in the coordinates of the snapshot they were computed for.
type Connector interface {
	Highlights(ctx context.Context, snap *buffer.Snapshot, r buffer.Range) ([]Span, error)
	Diagnostics(ctx context.Context, snap *buffer.Snapshot, r buffer.Range) ([]Diagnostic, error)
	Completions(ctx context.Context, snap *buffer.Snapshot, offset int) ([]Completion, error)
}

// Span is a highlighted range, such as a semantic token.
type Span struct {
	Range buffer.Range
	Kind  string
}

// Severity of a diagnostic. Lower is more severe.
type Severity int

const (
	SeverityError Severity = iota + 1
	SeverityWarning
	SeverityInfo
	SeverityHint
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	case SeverityHint:
		return "hint"
	default:
		return "unknown"
	}
}

// Diagnostic is a problem reported for a range.
type Diagnostic struct {
	Range    buffer.Range
	Severity Severity
	Message  string
	Source   string
	Code     string
}

// Completion is a candidate replacing Range with Text.
type Completion struct {
	Label    string
	Detail   string
	Kind     string
	Range    buffer.Range
	Text     string
	SortText string
}

// Edit returns the buffer edit that accepts the completion.
func (c Completion) Edit() buffer.Edit {
	return buffer.Edit{Range: c.Range, Text: c.Text}
}
