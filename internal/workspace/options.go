package workspace

import (
	"time"

	"github.com/dshills/strand/internal/buffer"
	"github.com/dshills/strand/internal/diff"
	"github.com/dshills/strand/internal/event"
	"github.com/dshills/strand/internal/logging"
	"github.com/dshills/strand/internal/lsp"
	"github.com/dshills/strand/internal/syntax"
)

type settings struct {
	log        *logging.Logger
	bus        *event.Bus
	bufferOpts []buffer.Option
	syntaxOpts []syntax.LayerOption
	diffOpts   []diff.Option
	connector  lsp.Connector
	languages  map[string]string
	watch      bool
	debounce   time.Duration
}

// Option configures a Session.
type Option func(*settings)

// WithLogger sets the session logger. Documents log through it too.
func WithLogger(l *logging.Logger) Option {
	return func(s *settings) { s.log = logging.OrNull(l) }
}

// WithBus makes the session publish on bus instead of a bus of its own.
// The caller starts and stops it.
func WithBus(bus *event.Bus) Option {
	return func(s *settings) { s.bus = bus }
}

// WithBufferOptions applies opts to every buffer the session creates.
func WithBufferOptions(opts ...buffer.Option) Option {
	return func(s *settings) { s.bufferOpts = append(s.bufferOpts, opts...) }
}

// WithSyntaxOptions applies opts to every syntax layer.
func WithSyntaxOptions(opts ...syntax.LayerOption) Option {
	return func(s *settings) { s.syntaxOpts = append(s.syntaxOpts, opts...) }
}

// WithDiffOptions applies opts to every diff overlay.
func WithDiffOptions(opts ...diff.Option) Option {
	return func(s *settings) { s.diffOpts = append(s.diffOpts, opts...) }
}

// WithConnector gives every document an lsp.Store fed by c.
func WithConnector(c lsp.Connector) Option {
	return func(s *settings) { s.connector = c }
}

// WithLanguages maps file extensions (".go") to language names, ahead of
// detection by file name.
func WithLanguages(byExt map[string]string) Option {
	return func(s *settings) { s.languages = byExt }
}

// WithDiskWatch reloads the diff reference of open files when they change
// on disk, coalescing changes within delay.
func WithDiskWatch(delay time.Duration) Option {
	return func(s *settings) {
		s.watch = true
		s.debounce = delay
	}
}
