package syntax

// Kind is the semantic class of a syntax node.
type Kind uint8

const (
	KindText Kind = iota
	KindComment
	KindString
	KindNumber
	KindKeyword
	KindOperator
	KindPunctuation
	KindName
	KindType
	KindConstant
	KindFunction
	// KindInvalid marks a closing bracket with no matching opener.
	KindInvalid

	// KindBlock is a bracketed region. Its first child is the opening
	// bracket and, unless the block is unterminated, its last child is the
	// closing bracket.
	KindBlock
	// KindRoot is the document node.
	KindRoot
	// KindGroup is an unbracketed interior node from a grammar-driven
	// parser.
	KindGroup

	kindCount
)

var kindNames = [kindCount]string{
	KindText:        "text",
	KindComment:     "comment",
	KindString:      "string",
	KindNumber:      "number",
	KindKeyword:     "keyword",
	KindOperator:    "operator",
	KindPunctuation: "punctuation",
	KindName:        "name",
	KindType:        "type",
	KindConstant:    "constant",
	KindFunction:    "function",
	KindInvalid:     "invalid",
	KindBlock:       "block",
	KindRoot:        "root",
	KindGroup:       "group",
}

func (k Kind) String() string {
	if k < kindCount {
		return kindNames[k]
	}
	return "unknown"
}

// ParseKind is the inverse of Kind.String. Unknown names map to KindText.
func ParseKind(s string) Kind {
	for k, name := range kindNames {
		if name == s {
			return Kind(k)
		}
	}
	return KindText
}

// IsLeaf reports whether nodes of this kind hold a single token.
func (k Kind) IsLeaf() bool {
	return k < KindBlock
}

// Highlighted reports whether the kind carries a highlight. Plain text
// and structural nodes do not.
func (k Kind) Highlighted() bool {
	return k != KindText && k.IsLeaf()
}
