package syntax

// Token is a lexical token: Len bytes of one Kind.
type Token struct {
	Kind Kind
	Len  int
}

// Tokenizer splits text into tokens that exactly cover it. Brackets that
// delimit blocks must be emitted as single-byte KindPunctuation tokens;
// brackets inside strings and comments must not.
type Tokenizer interface {
	Tokenize(text string) []Token
	Language() string
}

// bracketPair returns the closer for an opening bracket.
func bracketPair(open byte) byte {
	switch open {
	case '(':
		return ')'
	case '[':
		return ']'
	case '{':
		return '}'
	}
	return 0
}

func isOpenBracket(c byte) bool {
	return c == '(' || c == '[' || c == '{'
}

func isCloseBracket(c byte) bool {
	return c == ')' || c == ']' || c == '}'
}

// appendToken appends t, merging runs of text so whitespace does not
// fragment the tree.
func appendToken(toks []Token, t Token) []Token {
	if t.Len == 0 {
		return toks
	}
	if n := len(toks); n > 0 && t.Kind == KindText && toks[n-1].Kind == KindText {
		toks[n-1].Len += t.Len
		return toks
	}
	return append(toks, t)
}
