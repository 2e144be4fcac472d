package syntax

import (
	"path/filepath"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
)

// ChromaTokenizer classifies text with a chroma lexer.
type ChromaTokenizer struct {
	lexer chroma.Lexer
	name  string
}

// NewChromaTokenizer returns a tokenizer for a chroma language name or
// alias.
func NewChromaTokenizer(language string) (*ChromaTokenizer, bool) {
	return newChroma(lexers.Get(language))
}

// ChromaTokenizerForFile picks a lexer by file name.
func ChromaTokenizerForFile(path string) (*ChromaTokenizer, bool) {
	return newChroma(lexers.Match(filepath.Base(path)))
}

func newChroma(l chroma.Lexer) (*ChromaTokenizer, bool) {
	if l == nil {
		return nil, false
	}
	return &ChromaTokenizer{lexer: l, name: l.Config().Name}, true
}

func (t *ChromaTokenizer) Language() string {
	return t.name
}

// Tokenize implements Tokenizer. Lexer output that does not reproduce the
// input byte for byte falls back to the plain grammar.
func (t *ChromaTokenizer) Tokenize(text string) []Token {
	it, err := t.lexer.Tokenise(&chroma.TokeniseOptions{State: "root"}, text)
	if err != nil {
		return plainTokenizer.Tokenize(text)
	}
	var (
		toks []Token
		pos  int
	)
	for tok := it(); tok != chroma.EOF; tok = it() {
		v := tok.Value
		if rest := len(text) - pos; len(v) > rest {
			// Lexers configured with EnsureNL add a trailing newline.
			v = v[:rest]
		}
		if v == "" {
			continue
		}
		if text[pos:pos+len(v)] != v {
			return plainTokenizer.Tokenize(text)
		}
		kind := chromaKind(tok.Type)
		if kind == KindPunctuation || kind == KindOperator {
			toks = splitBrackets(toks, v, kind)
		} else {
			toks = appendToken(toks, Token{Kind: kind, Len: len(v)})
		}
		pos += len(v)
	}
	if pos < len(text) {
		toks = appendToken(toks, Token{Kind: KindText, Len: len(text) - pos})
	}
	return toks
}

// splitBrackets emits every bracket in v as its own token.
func splitBrackets(toks []Token, v string, kind Kind) []Token {
	run := 0
	for i := 0; i < len(v); i++ {
		if !isOpenBracket(v[i]) && !isCloseBracket(v[i]) {
			run++
			continue
		}
		toks = appendToken(toks, Token{Kind: kind, Len: run})
		toks = append(toks, Token{Kind: KindPunctuation, Len: 1})
		run = 0
	}
	return appendToken(toks, Token{Kind: kind, Len: run})
}

func chromaKind(t chroma.TokenType) Kind {
	switch {
	case t.InCategory(chroma.Comment):
		return KindComment
	case t.InSubCategory(chroma.LiteralString):
		return KindString
	case t.InSubCategory(chroma.LiteralNumber):
		return KindNumber
	case t == chroma.KeywordType:
		return KindType
	case t == chroma.KeywordConstant:
		return KindConstant
	case t.InCategory(chroma.Keyword):
		return KindKeyword
	case t == chroma.NameBuiltin, t == chroma.NameFunction:
		return KindFunction
	case t.InCategory(chroma.Name):
		return KindName
	case t.InCategory(chroma.Literal):
		return KindConstant
	case t.InCategory(chroma.Operator):
		return KindOperator
	case t.InCategory(chroma.Punctuation):
		return KindPunctuation
	}
	return KindText
}

var plainTokenizer = NewRuleTokenizer(Plain)

// TokenizerForFile returns the chroma lexer matching path, then a built-in
// rule grammar, then the plain grammar.
func TokenizerForFile(path string) Tokenizer {
	if t, ok := ChromaTokenizerForFile(path); ok {
		return t
	}
	if l, ok := LanguageForFile(path); ok {
		return NewRuleTokenizer(l)
	}
	return plainTokenizer
}

// TokenizerForLanguage resolves a language name the same way.
func TokenizerForLanguage(name string) Tokenizer {
	if t, ok := NewChromaTokenizer(name); ok {
		return t
	}
	if l, ok := LanguageByName(name); ok {
		return NewRuleTokenizer(l)
	}
	return plainTokenizer
}
