//go:build !tree_sitter

package main

import "github.com/dshills/strand/internal/syntax"

func treeSitterParser(string) (syntax.Parser, bool) {
	return nil, false
}
