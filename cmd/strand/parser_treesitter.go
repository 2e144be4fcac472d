//go:build tree_sitter

package main

import "github.com/dshills/strand/internal/syntax"

func treeSitterParser(language string) (syntax.Parser, bool) {
	if language == "Go" {
		return syntax.NewGoTreeSitterParser(), true
	}
	return nil, false
}
