package config

import (
	"time"

	"github.com/cenkalti/backoff"

	"github.com/dshills/strand/internal/buffer"
	"github.com/dshills/strand/internal/collab"
	"github.com/dshills/strand/internal/diff"
	"github.com/dshills/strand/internal/logging"
	"github.com/dshills/strand/internal/syntax"
	"github.com/dshills/strand/internal/workspace"
)

func (c BufferConfig) Options() []buffer.Option {
	return []buffer.Option{
		buffer.WithUndoLimit(c.UndoLimit),
		buffer.WithGroupInterval(time.Duration(c.GroupInterval)),
		buffer.WithLineEnding(buffer.ParseLineEnding(c.LineEnding)),
	}
}

func (c SyntaxConfig) Options() []syntax.LayerOption {
	return []syntax.LayerOption{
		syntax.WithDebounce(time.Duration(c.Debounce)),
		syntax.WithSizeLimit(c.MaxBytes),
	}
}

func (c DiffConfig) Options() []diff.Option {
	opts := []diff.Option{
		diff.WithMaxLines(c.MaxLines),
		diff.WithIgnoreWhitespace(c.IgnoreWhitespace),
		diff.WithInline(c.Inline),
	}
	if c.Debounce > 0 {
		opts = append(opts, diff.WithAutoRecompute(time.Duration(c.Debounce)))
	}
	return opts
}

// BackOff returns the redial policy: exponential between RetryInitial and
// RetryMax, never giving up.
func (c CollabConfig) BackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Duration(c.RetryInitial)
	b.MaxInterval = time.Duration(c.RetryMax)
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (c CollabConfig) Options(log *logging.Logger) []collab.Option {
	return []collab.Option{
		collab.WithLogger(log),
		collab.WithQueueSize(c.QueueSize),
		collab.WithBackOff(c.BackOff),
	}
}

// SessionOptions configures a workspace session and the documents it
// opens.
func (c *Config) SessionOptions(log *logging.Logger) []workspace.Option {
	opts := []workspace.Option{
		workspace.WithLogger(log),
		workspace.WithBufferOptions(c.Buffer.Options()...),
		workspace.WithSyntaxOptions(c.Syntax.Options()...),
		workspace.WithDiffOptions(c.Diff.Options()...),
	}
	if len(c.Syntax.Languages) > 0 {
		opts = append(opts, workspace.WithLanguages(c.Syntax.Languages))
	}
	if c.Diff.WatchDisk {
		opts = append(opts, workspace.WithDiskWatch(time.Duration(c.Diff.WatchDelay)))
	}
	return opts
}
