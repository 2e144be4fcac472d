// Package syntax maintains incremental syntax trees for buffers.
//
// A Tokenizer classifies text (chroma lexers when available, built-in
// rule grammars otherwise) and a Parser arranges tokens into a tree of
// bracketed blocks. BlockParser reparses only the children of the
// innermost block enclosing an edit and shares every other subtree with
// the previous tree. Unbalanced input never fails a parse: stray closers
// become invalid leaves and unclosed blocks run to the end of the text.
//
// Layer tracks one buffer. It moves through
//
//	Unparsed -> Parsing -> Parsed -> Reparsing -> Parsed ...
//
// running each parse in the background. Edits that arrive while a parse
// is in flight cancel it, and their dirty ranges are folded into the next
// parse. Results are checked against the buffer version on completion and
// dropped if the buffer has moved on.
//
// The tree_sitter build tag adds TreeSitterParser.
package syntax
