package lsp

import (
	"unicode/utf16"
	"unicode/utf8"

	"github.com/dshills/strand/internal/buffer"
	"github.com/dshills/strand/internal/lsp/protocol"
)

// ToPosition converts a byte offset to an LSP position, whose character
// counts UTF-16 code units. The offset is clamped to the text.
func ToPosition(snap *buffer.Snapshot, offset int) protocol.Position {
	offset = max(0, min(offset, snap.Len()))
	p, _ := snap.OffsetToPoint(offset)
	start := snap.LineStartOffset(p.Line)
	return protocol.Position{
		Line:      p.Line,
		Character: snap.OffsetToUTF16(offset) - snap.OffsetToUTF16(start),
	}
}

// ToOffset converts an LSP position to a byte offset. Positions past the
// end of a line clamp to the line end; lines past the end clamp to the end
// of the text. A character inside a surrogate pair rounds down.
func ToOffset(snap *buffer.Snapshot, pos protocol.Position) int {
	if pos.Line < 0 {
		return 0
	}
	if pos.Line >= snap.LineCount() {
		return snap.Len()
	}
	start := snap.LineStartOffset(pos.Line)
	line := snap.LineText(pos.Line)
	units, i := 0, 0
	for i < len(line) {
		r, size := utf8.DecodeRuneInString(line[i:])
		if r == '\n' {
			break
		}
		n := utf16.RuneLen(r)
		if n < 0 {
			n = 1
		}
		if units+n > pos.Character {
			break
		}
		units += n
		i += size
	}
	return start + i
}

// ToRange converts a byte range to an LSP range.
func ToRange(snap *buffer.Snapshot, r buffer.Range) protocol.Range {
	return protocol.Range{Start: ToPosition(snap, r.Start), End: ToPosition(snap, r.End)}
}

// FromRange converts an LSP range to a byte range.
func FromRange(snap *buffer.Snapshot, r protocol.Range) buffer.Range {
	start, end := ToOffset(snap, r.Start), ToOffset(snap, r.End)
	return buffer.Range{Start: start, End: max(start, end)}
}
