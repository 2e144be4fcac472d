//go:build tree_sitter

package syntax

import (
	"context"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"

	"github.com/dshills/strand/internal/buffer"
)

// TreeSitterParser parses with a tree-sitter grammar. Incremental parses
// hand the previous tree-sitter tree, edited to the new text, back to
// tree-sitter.
type TreeSitterParser struct {
	mu     sync.Mutex
	parser *sitter.Parser
	name   string
}

type sitterState struct {
	tree *sitter.Tree
	text string
}

// NewTreeSitterParser creates a parser for lang.
func NewTreeSitterParser(name string, lang *sitter.Language) *TreeSitterParser {
	p := sitter.NewParser()
	p.SetLanguage(lang)
	return &TreeSitterParser{parser: p, name: name}
}

// NewGoTreeSitterParser parses Go source.
func NewGoTreeSitterParser() *TreeSitterParser {
	return NewTreeSitterParser("tree-sitter-go", golang.GetLanguage())
}

// Parse implements Parser.
func (p *TreeSitterParser) Parse(ctx context.Context, text string, old *Tree, edits []buffer.TextEdit) (*Tree, ParseStats, error) {
	var (
		prev  *sitter.Tree
		stats = ParseStats{Full: true, Region: buffer.Range{End: len(text)}, ReparsedBytes: len(text)}
	)
	if old != nil && old.language == p.name {
		st, ok := old.ext.(sitterState)
		env, valid := envelope(old.Len(), len(text), edits)
		if ok && valid {
			if env.unchanged() {
				return old, ParseStats{}, nil
			}
			newEnd := env.oldEnd + env.delta
			prev = st.tree.Copy()
			prev.Edit(sitter.EditInput{
				StartIndex:  uint32(env.oldStart),
				OldEndIndex: uint32(env.oldEnd),
				NewEndIndex: uint32(newEnd),
				StartPoint:  pointAt(st.text, env.oldStart),
				OldEndPoint: pointAt(st.text, env.oldEnd),
				NewEndPoint: pointAt(text, newEnd),
			})
			stats = ParseStats{Region: buffer.Range{Start: env.oldStart, End: newEnd}, ReparsedBytes: newEnd - env.oldStart}
		}
	}

	p.mu.Lock()
	tree, err := p.parser.ParseCtx(ctx, prev, []byte(text))
	p.mu.Unlock()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ParseStats{}, cancelled(ctx.Err())
		}
		return fallbackTree(text, p.name), stats, nil
	}

	root := convertSpan(tree.RootNode(), text, 0, len(text))
	root.kind = KindRoot
	return &Tree{root: root, language: p.name, ext: sitterState{tree: tree, text: text}}, stats, nil
}

func pointAt(text string, offset int) sitter.Point {
	prefix := text[:offset]
	row := strings.Count(prefix, "\n")
	col := offset - (strings.LastIndexByte(prefix, '\n') + 1)
	return sitter.Point{Row: uint32(row), Column: uint32(col)}
}

func fallbackTree(text, name string) *Tree {
	t := oversize(len(text))
	t.language = name
	return t
}

// convert maps a tree-sitter node onto a Node whose children tile it.
// Gaps between tree-sitter children become text leaves.
func convert(n *sitter.Node, text string) *Node {
	return convertSpan(n, text, int(n.StartByte()), int(n.EndByte()))
}

func convertSpan(n *sitter.Node, text string, start, end int) *Node {
	typ := n.Type()
	if n.ChildCount() == 0 || strings.Contains(typ, "string") || strings.Contains(typ, "comment") {
		return &Node{kind: sitterLeafKind(n, text[start:end]), length: end - start}
	}
	var children []*Node
	pos := start
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if cs := int(c.StartByte()); cs > pos {
			children = append(children, &Node{kind: KindText, length: cs - pos})
		}
		if c.EndByte() == c.StartByte() {
			continue
		}
		children = append(children, convert(c, text))
		pos = int(c.EndByte())
	}
	if pos < end {
		children = append(children, &Node{kind: KindText, length: end - pos})
	}
	kind := KindGroup
	if len(children) >= 2 && end > start {
		first, last := text[start], text[end-1]
		if children[0].length == 1 && isOpenBracket(first) && bracketPair(first) == last && children[len(children)-1].length == 1 {
			kind = KindBlock
		}
	}
	return newBlock(kind, children, false)
}

func sitterLeafKind(n *sitter.Node, value string) Kind {
	typ := n.Type()
	switch {
	case strings.Contains(typ, "comment"):
		return KindComment
	case strings.Contains(typ, "string"), typ == "rune_literal":
		return KindString
	case strings.HasSuffix(typ, "int_literal"), strings.HasSuffix(typ, "float_literal"), typ == "imaginary_literal":
		return KindNumber
	case typ == "true", typ == "false", typ == "nil", typ == "iota":
		return KindConstant
	case typ == "type_identifier":
		return KindType
	case typ == "identifier", typ == "field_identifier", typ == "package_identifier":
		return KindName
	case !n.IsNamed() && len(value) == 1 && (isOpenBracket(value[0]) || isCloseBracket(value[0]) || strings.IndexByte(",;.:", value[0]) >= 0):
		return KindPunctuation
	case !n.IsNamed() && value != "" && isWordByte(value[0]):
		return KindKeyword
	case !n.IsNamed():
		return KindOperator
	}
	return KindText
}
