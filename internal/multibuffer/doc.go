// Package multibuffer composes ranges of several buffers, called excerpts,
// into one text with its own offsets. It backs views such as search
// results or the changed lines of many files shown as a single document.
//
// Excerpts are joined with a newline. Each one is held by anchors into its
// source buffer, so edits made directly to a source move and resize the
// excerpt; text typed at either edge of an excerpt becomes part of it.
// Edits made through the multi-buffer are translated back to the source
// buffers, and source edits are reported to subscribers as edits of the
// combined text.
package multibuffer
