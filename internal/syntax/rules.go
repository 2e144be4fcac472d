package syntax

import (
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Language describes a C-family lexical grammar for RuleTokenizer.
type Language struct {
	Name       string
	Extensions []string

	LineComment  string
	BlockComment [2]string
	// Quotes lists string delimiters that honour backslash escapes and
	// stop at a newline.
	Quotes string
	// RawQuotes lists delimiters of strings that may span lines and have
	// no escapes.
	RawQuotes string

	Keywords  []string
	Types     []string
	Constants []string
	Builtins  []string
}

// RuleTokenizer is a hand-written scanner driven by a Language. It is
// the fallback when chroma has no lexer for a file.
type RuleTokenizer struct {
	lang  Language
	words map[string]Kind
}

// NewRuleTokenizer creates a tokenizer for lang.
func NewRuleTokenizer(lang Language) *RuleTokenizer {
	t := &RuleTokenizer{lang: lang, words: make(map[string]Kind)}
	for _, set := range []struct {
		words []string
		kind  Kind
	}{
		{lang.Builtins, KindFunction},
		{lang.Constants, KindConstant},
		{lang.Types, KindType},
		{lang.Keywords, KindKeyword},
	} {
		for _, w := range set.words {
			t.words[w] = set.kind
		}
	}
	return t
}

func (t *RuleTokenizer) Language() string {
	return t.lang.Name
}

// Tokens only look at text up to the byte that ends them, so a window
// can be rescanned on its own.
func (*RuleTokenizer) windowed() {}

// Tokenize implements Tokenizer.
func (t *RuleTokenizer) Tokenize(text string) []Token {
	var toks []Token
	for i := 0; i < len(text); {
		n, kind := t.next(text[i:])
		toks = appendToken(toks, Token{Kind: kind, Len: n})
		i += n
	}
	return toks
}

func (t *RuleTokenizer) next(s string) (int, Kind) {
	c := s[0]
	switch {
	case isOpenBracket(c) || isCloseBracket(c):
		return 1, KindPunctuation
	case t.lang.LineComment != "" && strings.HasPrefix(s, t.lang.LineComment):
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			return i, KindComment
		}
		return len(s), KindComment
	case t.lang.BlockComment[0] != "" && strings.HasPrefix(s, t.lang.BlockComment[0]):
		start, end := t.lang.BlockComment[0], t.lang.BlockComment[1]
		if i := strings.Index(s[len(start):], end); i >= 0 {
			return len(start) + i + len(end), KindComment
		}
		return len(s), KindComment
	case strings.IndexByte(t.lang.RawQuotes, c) >= 0:
		if i := strings.IndexByte(s[1:], c); i >= 0 {
			return i + 2, KindString
		}
		return len(s), KindString
	case strings.IndexByte(t.lang.Quotes, c) >= 0:
		return scanQuoted(s), KindString
	case c == ' ' || c == '\t' || c == '\n' || c == '\r':
		i := 1
		for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
			i++
		}
		return i, KindText
	case c >= '0' && c <= '9':
		i := 1
		for i < len(s) && (isWordByte(s[i]) || s[i] == '.') {
			i++
		}
		return i, KindNumber
	case isWordByte(c) || c >= utf8.RuneSelf:
		i := 0
		for i < len(s) {
			r, size := utf8.DecodeRuneInString(s[i:])
			if !(r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)) {
				break
			}
			i += size
		}
		if i == 0 {
			_, size := utf8.DecodeRuneInString(s)
			return size, KindText
		}
		if k, ok := t.words[s[:i]]; ok {
			return i, k
		}
		return i, KindName
	case strings.IndexByte(",;.:", c) >= 0:
		return 1, KindPunctuation
	default:
		i := 1
		for i < len(s) && strings.IndexByte("+-*/%&|^!=<>~?", s[i]) >= 0 && !t.startsComment(s[i:]) {
			i++
		}
		return i, KindOperator
	}
}

func (t *RuleTokenizer) startsComment(s string) bool {
	return (t.lang.LineComment != "" && strings.HasPrefix(s, t.lang.LineComment)) ||
		(t.lang.BlockComment[0] != "" && strings.HasPrefix(s, t.lang.BlockComment[0]))
}

// scanQuoted returns the length of the quoted string at the start of s.
// An unterminated string ends at the newline.
func scanQuoted(s string) int {
	q := s[0]
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if i+1 < len(s) && s[i+1] != '\n' {
				i++
			}
		case q:
			return i + 1
		case '\n':
			return i
		}
	}
	return len(s)
}

func isWordByte(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// Plain recognises brackets and words only.
var Plain = Language{Name: "plain"}

var Go = Language{
	Name:         "go",
	Extensions:   []string{".go"},
	LineComment:  "//",
	BlockComment: [2]string{"/*", "*/"},
	Quotes:       `"'`,
	RawQuotes:    "`",
	Keywords: []string{
		"if", "else", "for", "range", "switch", "case", "default",
		"break", "continue", "return", "goto", "fallthrough", "select",
		"func", "var", "const", "type", "struct", "interface", "map", "chan",
		"package", "import", "defer", "go",
	},
	Constants: []string{"true", "false", "nil", "iota"},
	Types: []string{
		"int", "int8", "int16", "int32", "int64",
		"uint", "uint8", "uint16", "uint32", "uint64", "uintptr",
		"float32", "float64", "complex64", "complex128",
		"bool", "byte", "rune", "string", "error", "any",
	},
	Builtins: []string{
		"make", "new", "len", "cap", "append", "copy", "delete",
		"close", "panic", "recover", "print", "println",
		"real", "imag", "complex", "min", "max", "clear",
	},
}

var Python = Language{
	Name:        "python",
	Extensions:  []string{".py", ".pyw", ".pyi"},
	LineComment: "#",
	Quotes:      `"'`,
	Keywords: []string{
		"if", "elif", "else", "for", "while", "break", "continue",
		"return", "try", "except", "finally", "raise", "with", "as",
		"match", "case", "def", "class", "lambda", "async", "await",
		"import", "from", "global", "nonlocal", "pass", "yield",
		"assert", "del", "in", "is", "not", "and", "or",
	},
	Constants: []string{"True", "False", "None"},
	Types: []string{
		"int", "float", "str", "bool", "list", "dict", "set", "tuple",
		"bytes", "bytearray", "complex", "frozenset", "object",
	},
	Builtins: []string{
		"print", "len", "range", "enumerate", "zip", "map", "filter",
		"open", "isinstance", "iter", "next", "sorted", "sum", "min", "max",
		"super",
	},
}

var JavaScript = Language{
	Name:         "javascript",
	Extensions:   []string{".js", ".jsx", ".ts", ".tsx", ".mjs", ".cjs"},
	LineComment:  "//",
	BlockComment: [2]string{"/*", "*/"},
	Quotes:       `"'`,
	RawQuotes:    "`",
	Keywords: []string{
		"if", "else", "for", "while", "do", "switch", "case", "default",
		"break", "continue", "return", "throw", "try", "catch", "finally",
		"function", "var", "let", "const", "class", "extends", "async", "await",
		"type", "interface", "enum", "namespace", "module", "declare",
		"import", "export", "from", "as", "new", "delete",
		"typeof", "instanceof", "in", "of", "this", "super", "static",
		"yield", "public", "private", "protected", "readonly",
	},
	Constants: []string{"true", "false", "null", "undefined", "NaN", "Infinity"},
}

var Rust = Language{
	Name:         "rust",
	Extensions:   []string{".rs"},
	LineComment:  "//",
	BlockComment: [2]string{"/*", "*/"},
	Quotes:       `"`,
	Keywords: []string{
		"if", "else", "match", "for", "while", "loop", "break", "continue",
		"return", "fn", "let", "mut", "const", "static", "struct", "enum",
		"trait", "impl", "type", "mod", "use", "crate", "super", "self",
		"Self", "pub", "where", "as", "async", "await", "dyn", "move", "ref",
		"unsafe", "extern",
	},
	Constants: []string{"true", "false", "None", "Some", "Ok", "Err"},
	Types: []string{
		"i8", "i16", "i32", "i64", "i128", "isize",
		"u8", "u16", "u32", "u64", "u128", "usize",
		"f32", "f64", "bool", "char", "str", "String",
		"Vec", "Box", "Option", "Result",
	},
}

// Languages are the built-in rule grammars.
var Languages = []Language{Go, Python, JavaScript, Rust}

// LanguageForFile returns the built-in grammar for path's extension.
func LanguageForFile(path string) (Language, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	for _, l := range Languages {
		for _, e := range l.Extensions {
			if e == ext {
				return l, true
			}
		}
	}
	return Language{}, false
}

// LanguageByName returns the built-in grammar called name.
func LanguageByName(name string) (Language, bool) {
	for _, l := range Languages {
		if strings.EqualFold(l.Name, name) {
			return l, true
		}
	}
	if strings.EqualFold(name, Plain.Name) {
		return Plain, true
	}
	return Language{}, false
}
