package rope

// Chunk size bounds for leaf text.
const (
	// MinChunkSize is the size below which adjacent chunks are merged.
	MinChunkSize = 128

	// MaxChunkSize is the maximum bytes per chunk.
	MaxChunkSize = 256

	// TargetChunkSize is the preferred chunk size when splitting text.
	TargetChunkSize = (MinChunkSize + MaxChunkSize) / 2
)

// Chunk is an immutable run of text stored as one tree item.
type Chunk struct {
	text    string
	summary TextSummary
}

// NewChunk creates a chunk and computes its metrics.
func NewChunk(s string) Chunk {
	return Chunk{text: s, summary: Summarize(s)}
}

// String returns the chunk's text.
func (c Chunk) String() string { return c.text }

// Summary returns the chunk's metrics.
func (c Chunk) Summary() TextSummary { return c.summary }

// Len returns the byte length of the chunk.
func (c Chunk) Len() int { return len(c.text) }

// Split divides the chunk at byte offset.
func (c Chunk) Split(offset int) (Chunk, Chunk) {
	if offset <= 0 {
		return Chunk{}, c
	}
	if offset >= len(c.text) {
		return c, Chunk{}
	}
	return NewChunk(c.text[:offset]), NewChunk(c.text[offset:])
}

// splitIntoChunks cuts s into chunks no larger than MaxChunkSize.
func splitIntoChunks(s string) []Chunk {
	if len(s) == 0 {
		return nil
	}
	var chunks []Chunk
	for len(s) > MaxChunkSize {
		at := chunkBoundary(s, TargetChunkSize)
		chunks = append(chunks, NewChunk(s[:at]))
		s = s[at:]
	}
	return append(chunks, NewChunk(s))
}

// chunkBoundary finds a UTF-8 boundary near target, preferring the byte
// after a newline.
func chunkBoundary(s string, target int) int {
	lo := max(target-MinChunkSize/4, 1)
	hi := min(target+MinChunkSize/4, len(s))
	for i := target; i < hi; i++ {
		if s[i] == '\n' {
			return i + 1
		}
	}
	for i := target - 1; i >= lo; i-- {
		if s[i] == '\n' {
			return i + 1
		}
	}
	pos := target
	for pos > 0 && !isUTF8Start(s[pos]) {
		pos--
	}
	return pos
}

// isUTF8Start reports whether b begins a UTF-8 sequence.
func isUTF8Start(b byte) bool {
	return b&0xC0 != 0x80
}
