// Package lsp connects buffers to language intelligence.
//
// A Connector answers highlight, diagnostic and completion requests for a
// buffer snapshot. Server implements it by talking to a language server
// over JSON-RPC (see the protocol subpackage), converting between byte
// offsets and LSP's UTF-16 positions.
//
// Results describe the snapshot they were computed for, which may be gone
// by the time they arrive. A Store accepts them only while that snapshot
// is still the buffer's current version and keeps them as anchor ranges,
// so they move with later edits until the next refresh:
//
//	store := lsp.NewStore(buf, lsp.WithBus(bus))
//	if err := store.Refresh(ctx, server); errors.Is(err, lsp.ErrStale) {
//		// the buffer changed; try again later
//	}
//	for _, d := range store.Diagnostics() {
//		fmt.Println(d.Range, d.Severity, d.Message)
//	}
//
// RequestCompletions cancels its request as soon as the buffer changes.
package lsp
