package multibuffer

import (
	"fmt"

	"github.com/dshills/strand/internal/buffer"
)

// Edit applies edits given in multi-buffer offsets to the source buffers.
// Every edit must lie within one excerpt's text; nothing is applied if
// any edit is rejected. Edits to one buffer are applied as one operation.
func (mb *MultiBuffer) Edit(edits ...buffer.Edit) error {
	snap := mb.Snapshot()

	type batch struct {
		buf   *buffer.Buffer
		edits []buffer.Edit
	}
	var batches []*batch
	byBuffer := make(map[buffer.ID]*batch)
	for _, e := range edits {
		if err := snap.check(e.Range); err != nil {
			return err
		}
		_, ex, before, err := snap.excerptAt(e.Range.Start)
		if err != nil {
			return err
		}
		local := e.Range.Start - before.bytes
		if e.Range.End-before.bytes > ex.rng.Len() {
			return fmt.Errorf("%w: %v", ErrCrossExcerptEdit, e.Range)
		}
		if ex.readOnly {
			return fmt.Errorf("%w: %s", ErrReadOnlyExcerpt, ex.id)
		}
		b, ok := byBuffer[ex.buf.ID()]
		if !ok {
			b = &batch{buf: ex.buf}
			byBuffer[ex.buf.ID()] = b
			batches = append(batches, b)
		}
		start := ex.rng.Start + local
		b.edits = append(b.edits, buffer.Edit{
			Range: buffer.Range{Start: start, End: start + e.Range.Len()},
			Text:  e.Text,
		})
	}

	for _, b := range batches {
		if !b.buf.Version().Equal(snap.sources[b.buf.ID()].Version()) {
			return fmt.Errorf("%w: %s", ErrSourceChanged, b.buf.ID())
		}
		if err := snap.sources[b.buf.ID()].CheckEdits(b.edits...); err != nil {
			return err
		}
	}
	for _, b := range batches {
		if _, err := b.buf.Edit(b.edits...); err != nil {
			return fmt.Errorf("edit %s: %w", b.buf.ID(), err)
		}
	}
	return nil
}
