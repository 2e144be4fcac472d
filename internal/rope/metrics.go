package rope

import (
	"strings"
	"unicode/utf8"
)

// Point is a zero-based line/column position. Column counts bytes.
type Point struct {
	Line   int
	Column int
}

// Less reports whether p comes before o.
func (p Point) Less(o Point) bool {
	return p.Line < o.Line || (p.Line == o.Line && p.Column < o.Column)
}

// TextSummary aggregates metrics for a span of text. It is the summary type
// of the chunk tree; the zero value summarizes empty text.
type TextSummary struct {
	// Bytes is the UTF-8 byte count.
	Bytes int

	// UTF16Units is the UTF-16 code unit count, used for LSP positions.
	UTF16Units int

	// Lines is the number of newline characters.
	Lines int

	// LongestLine is the byte length of the longest line.
	LongestLine int

	// FirstLineLen is the byte length of the first line, excluding the newline.
	FirstLineLen int

	// LastLineLen is the byte length of the last line, excluding the newline.
	LastLineLen int

	// NonASCII is set when any character is outside the ASCII range.
	NonASCII bool
}

// Add combines two adjacent summaries.
func (s TextSummary) Add(other TextSummary) TextSummary {
	if s.Bytes == 0 {
		return other
	}
	if other.Bytes == 0 {
		return s
	}

	result := TextSummary{
		Bytes:      s.Bytes + other.Bytes,
		UTF16Units: s.UTF16Units + other.UTF16Units,
		Lines:      s.Lines + other.Lines,
		NonASCII:   s.NonASCII || other.NonASCII,
	}

	if other.Lines > 0 {
		joined := s.LastLineLen + other.FirstLineLen
		result.LongestLine = max(s.LongestLine, other.LongestLine, joined)
		result.FirstLineLen = s.FirstLineLen
		if s.Lines == 0 {
			result.FirstLineLen = joined
		}
		result.LastLineLen = other.LastLineLen
	} else {
		combined := s.LastLineLen + other.LastLineLen
		result.LongestLine = max(s.LongestLine, combined)
		result.FirstLineLen = s.FirstLineLen
		if s.Lines == 0 {
			result.FirstLineLen = combined
		}
		result.LastLineLen = combined
	}
	return result
}

// End returns the point just past the summarized text.
func (s TextSummary) End() Point {
	return Point{Line: s.Lines, Column: s.LastLineLen}
}

// Summarize computes metrics for a string.
func Summarize(s string) TextSummary {
	if len(s) == 0 {
		return TextSummary{}
	}

	sum := TextSummary{Bytes: len(s)}
	lineLen := 0
	for _, r := range s {
		if r <= 0xFFFF {
			sum.UTF16Units++
		} else {
			sum.UTF16Units += 2
		}
		if r >= utf8.RuneSelf {
			sum.NonASCII = true
		}
		if r == '\n' {
			if sum.Lines == 0 {
				sum.FirstLineLen = lineLen
			}
			sum.Lines++
			sum.LongestLine = max(sum.LongestLine, lineLen)
			lineLen = 0
			continue
		}
		lineLen += utf8.RuneLen(r)
	}

	sum.LastLineLen = lineLen
	sum.LongestLine = max(sum.LongestLine, lineLen)
	if sum.Lines == 0 {
		sum.FirstLineLen = lineLen
	}
	return sum
}

// advance moves p over text.
func advance(p Point, text string) Point {
	if n := strings.Count(text, "\n"); n > 0 {
		p.Line += n
		p.Column = len(text) - strings.LastIndexByte(text, '\n') - 1
		return p
	}
	p.Column += len(text)
	return p
}

// nthNewline returns the byte index of the nth newline (1-based) in s, or -1.
func nthNewline(s string, n int) int {
	if n <= 0 {
		return -1
	}
	base := 0
	for {
		i := strings.IndexByte(s[base:], '\n')
		if i < 0 {
			return -1
		}
		n--
		if n == 0 {
			return base + i
		}
		base += i + 1
	}
}
