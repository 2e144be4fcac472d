package syntax

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/dshills/strand/internal/buffer"
)

func parseFull(t testing.TB, p *BlockParser, text string) *Tree {
	t.Helper()
	tree, _, err := p.Parse(context.Background(), text, nil, nil)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return tree
}

// shape renders a tree as nested kinds for comparison in failures.
func shape(n *Node) string {
	if n.kind.IsLeaf() {
		return n.kind.String()[:1]
	}
	var sb strings.Builder
	sb.WriteString(n.kind.String() + "(")
	for i, c := range n.children {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(shape(c))
	}
	if n.unterminated {
		sb.WriteString(" ...")
	}
	sb.WriteByte(')')
	return sb.String()
}

func TestBlockParserStructure(t *testing.T) {
	p := NewBlockParser(NewRuleTokenizer(Go))
	tree := parseFull(t, p, "f(a[1]) { x }")
	blocks := tree.Blocks()
	var got []string
	for _, b := range blocks {
		got = append(got, b.Range.String())
	}
	want := "[[1:7) [3:6) [8:13)]"
	if fmt.Sprint(got) != want {
		t.Errorf("Blocks() = %v, want %v (%s)", got, want, shape(tree.root))
	}
	if tree.Len() != 13 {
		t.Errorf("Len() = %d", tree.Len())
	}
}

func TestBlockParserRecovers(t *testing.T) {
	p := NewBlockParser(NewRuleTokenizer(Go))
	tests := []struct {
		name string
		text string
		want string
	}{
		{"stray closer", "a)", "root(n i)"},
		{"mismatched closer", "(]", "root(block(p i ...))"},
		{"unterminated", "{a", "root(block(p n ...))"},
		{"closer inside other block", "{(}", "root(block(p block(p i ...) ...))"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := parseFull(t, p, tt.text)
			if got := shape(tree.root); got != tt.want {
				t.Errorf("shape = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestNodeAtAndHighlights(t *testing.T) {
	p := NewBlockParser(NewRuleTokenizer(Go))
	text := `if x { return "s" }`
	tree := parseFull(t, p, text)

	ref := tree.NodeAt(15)
	if ref.Node.Kind() != KindString || ref.Range != buffer.NewRange(14, 17) || ref.Depth != 2 {
		t.Errorf("NodeAt(15) = %v %v depth %d", ref.Node.Kind(), ref.Range, ref.Depth)
	}
	if ref := tree.NodeAt(len(text)); ref.Node != tree.Root() {
		t.Error("NodeAt(end) should be the root")
	}

	spans := tree.Highlights(buffer.NewRange(5, 14))
	var got []string
	for _, s := range spans {
		got = append(got, s.Kind.String()+text[s.Range.Start:s.Range.End])
	}
	want := "[punctuation{ keywordreturn]"
	if fmt.Sprint(got) != want {
		t.Errorf("Highlights = %v, want %v", got, want)
	}
}

func TestEnvelope(t *testing.T) {
	tests := []struct {
		name   string
		oldLen int
		newLen int
		edits  []buffer.TextEdit
		want   dirty
		ok     bool
	}{
		{"insert", 10, 12, []buffer.TextEdit{{Old: buffer.NewRange(4, 4), NewLen: 2}}, dirty{4, 4, 2}, true},
		{"delete", 10, 7, []buffer.TextEdit{{Old: buffer.NewRange(2, 5)}}, dirty{2, 5, -3}, true},
		{"two edits", 10, 10, []buffer.TextEdit{
			{Old: buffer.NewRange(1, 2), NewLen: 3},
			{Old: buffer.NewRange(8, 10), NewLen: 0},
		}, dirty{1, 8, 0}, true},
		{"length mismatch", 10, 11, []buffer.TextEdit{{Old: buffer.NewRange(0, 0), NewLen: 2}}, dirty{}, false},
		{"out of range", 10, 10, []buffer.TextEdit{{Old: buffer.NewRange(9, 11), NewLen: 2}}, dirty{}, false},
		{"none", 5, 5, nil, dirty{5, 5, 0}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := envelope(tt.oldLen, tt.newLen, tt.edits)
			if ok != tt.ok || (ok && got != tt.want) {
				t.Errorf("envelope() = %+v, %v, want %+v, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

// goFile returns Go-like source with funcs functions of ten lines each.
func goFile(funcs int) string {
	var sb strings.Builder
	for i := range funcs {
		fmt.Fprintf(&sb, "func f%d(a int) int {\n", i)
		sb.WriteString("\tx := a * 2\n")
		sb.WriteString("\tif x > 10 {\n")
		sb.WriteString("\t\tx = x - 1 // trim\n")
		sb.WriteString("\t}\n")
		sb.WriteString("\tfor i := 0; i < x; i++ {\n")
		sb.WriteString("\t\ts := \"v{\" + string(rune(i))\n")
		sb.WriteString("\t\t_ = s\n")
		sb.WriteString("\t}\n")
		sb.WriteString("\treturn x\n}\n")
	}
	return sb.String()
}

func edit(text string, start, end int, repl string) (string, buffer.TextEdit) {
	return text[:start] + repl + text[end:], buffer.TextEdit{Old: buffer.NewRange(start, end), NewLen: len(repl)}
}

func TestIncrementalReparseIsLocal(t *testing.T) {
	p := NewBlockParser(NewRuleTokenizer(Go))
	text := goFile(1000)
	if n := strings.Count(text, "\n"); n != 11000 {
		t.Fatalf("fixture has %d lines", n)
	}
	old := parseFull(t, p, text)

	// A one-character edit on line 5000, inside the body of a function.
	at := 0
	for range 5000 {
		at += strings.IndexByte(text[at:], '\n') + 1
	}
	target := at + strings.Index(text[at:], "x")
	newText, e := edit(text, target, target+1, "y")

	tree, stats, err := p.Parse(context.Background(), newText, old, []buffer.TextEdit{e})
	if err != nil {
		t.Fatal(err)
	}
	if stats.Full {
		t.Fatal("edit inside a function triggered a full parse")
	}
	if limit := 256; stats.ReparsedBytes > limit {
		t.Errorf("reparsed %d bytes of %d, want at most %d", stats.ReparsedBytes, len(newText), limit)
	}
	if !stats.Region.Contains(target) {
		t.Errorf("region %v does not contain the edit at %d", stats.Region, target)
	}
	if !tree.Equal(parseFull(t, p, newText)) {
		t.Error("incremental tree differs from a full parse")
	}
	if shared := tree.shared(old); shared < 999 {
		t.Errorf("only %d subtrees shared with the previous tree", shared)
	}
}

func TestReparseEscalates(t *testing.T) {
	p := NewBlockParser(NewRuleTokenizer(Go))
	text := "a { b { c } d } e"
	old := parseFull(t, p, text)

	// Deleting the inner closer unbalances the inner block's parent.
	i := strings.Index(text, "}")
	newText, e := edit(text, i, i+1, "")
	tree, stats, err := p.Parse(context.Background(), newText, old, []buffer.TextEdit{e})
	if err != nil {
		t.Fatal(err)
	}
	if stats.Escalations == 0 {
		t.Errorf("stats = %+v, want an escalation", stats)
	}
	want := parseFull(t, p, newText)
	if !tree.Equal(want) {
		t.Errorf("got %s, want %s", shape(tree.root), shape(want.root))
	}
}

func TestReparseMatchesFullParse(t *testing.T) {
	checkReparse(t, NewBlockParser(NewRuleTokenizer(Go)), 30, 60)
}

func TestChromaReparseMatchesFullParse(t *testing.T) {
	for _, lang := range []string{"go", "javascript", "python", "rust", "c"} {
		t.Run(lang, func(t *testing.T) {
			tok, ok := NewChromaTokenizer(lang)
			if !ok {
				t.Fatalf("no chroma lexer for %s", lang)
			}
			checkReparse(t, NewBlockParser(tok), 10, 80)
		})
	}
}

// checkReparse applies random edits and compares every incremental parse
// with a full parse of the same text.
func checkReparse(t *testing.T, p *BlockParser, seeds uint64, steps int) {
	t.Helper()
	alphabet := []string{"{", "}", "(", ")", "[", "]", "\"", "`", "'", "/", "*", "\n", " ", "x", "1", "if", "//", "/*", "*/", "#"}
	for seed := range seeds {
		rng := rand.New(rand.NewPCG(seed, 7))
		text := goFile(3)
		tree := parseFull(t, p, text)
		for step := range steps {
			var edits []buffer.TextEdit
			for range 1 + rng.IntN(3) {
				start := rng.IntN(len(text) + 1)
				end := min(len(text), start+rng.IntN(4))
				var repl string
				if rng.IntN(3) > 0 {
					repl = alphabet[rng.IntN(len(alphabet))]
				}
				var e buffer.TextEdit
				text, e = edit(text, start, end, repl)
				edits = append(edits, e)
			}
			next, _, err := p.Parse(context.Background(), text, tree, edits)
			if err != nil {
				t.Fatal(err)
			}
			if want := parseFull(t, p, text); !next.Equal(want) {
				t.Fatalf("seed %d step %d: incremental tree differs for %q\ngot  %s\nwant %s",
					seed, step, text, shape(next.root), shape(want.root))
			}
			tree = next
		}
	}
}

func TestChromaReparseSeesDistantQuote(t *testing.T) {
	tok, _ := NewChromaTokenizer("go")
	p := NewBlockParser(tok)
	text := goFile(3)
	old := parseFull(t, p, text)

	// An opening quote whose closing quote is on a later line: chroma's Go
	// lexer makes one string of everything in between.
	at := strings.Index(text, "x = x")
	newText, e := edit(text, at+2, at+3, `"`)
	tree, _, err := p.Parse(context.Background(), newText, old, []buffer.TextEdit{e})
	if err != nil {
		t.Fatal(err)
	}
	want := parseFull(t, p, newText)
	if !tree.Equal(want) {
		t.Fatalf("got %s\nwant %s", shape(tree.root), shape(want.root))
	}
	ref := tree.NodeAt(at + 3)
	if ref.Node.Kind() != KindString || ref.Range.End <= strings.IndexByte(newText[at:], '\n')+at {
		t.Errorf("NodeAt(%d) = %v %v, want a string running past the line", at+3, ref.Node.Kind(), ref.Range)
	}
}

func TestChromaReparseIsLocal(t *testing.T) {
	tok, _ := NewChromaTokenizer("go")
	p := NewBlockParser(tok)
	text := goFile(100)
	old := parseFull(t, p, text)

	at := len(text)/2 + strings.Index(text[len(text)/2:], "x :=")
	newText, e := edit(text, at, at+1, "y")
	tree, stats, err := p.Parse(context.Background(), newText, old, []buffer.TextEdit{e})
	if err != nil {
		t.Fatal(err)
	}
	if stats.Full || stats.Region.Len() > 64 {
		t.Errorf("stats = %+v, want a small incremental region", stats)
	}
	if !tree.Equal(parseFull(t, p, newText)) {
		t.Error("incremental tree differs from a full parse")
	}
	if shared := tree.shared(old); shared < 99 {
		t.Errorf("only %d subtrees shared with the previous tree", shared)
	}
}

func TestParseCancelled(t *testing.T) {
	p := NewBlockParser(NewRuleTokenizer(Go))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := p.Parse(ctx, "x", nil, nil); !errors.Is(err, ErrCancelled) || !errors.Is(err, context.Canceled) {
		t.Errorf("Parse(cancelled) = %v", err)
	}
}

func TestParseLanguageChange(t *testing.T) {
	old := parseFull(t, NewBlockParser(NewRuleTokenizer(Python)), "x")
	_, stats, err := NewBlockParser(NewRuleTokenizer(Go)).Parse(context.Background(), "xy", old,
		[]buffer.TextEdit{{Old: buffer.NewRange(1, 1), NewLen: 1}})
	if err != nil || !stats.Full {
		t.Errorf("stats = %+v, err = %v; want a full parse", stats, err)
	}
}

func BenchmarkFullParse(b *testing.B) {
	p := NewBlockParser(NewRuleTokenizer(Go))
	text := goFile(1000)
	b.SetBytes(int64(len(text)))
	for i := 0; i < b.N; i++ {
		_, _, _ = p.Parse(context.Background(), text, nil, nil)
	}
}

func BenchmarkIncrementalParse(b *testing.B) {
	p := NewBlockParser(NewRuleTokenizer(Go))
	text := goFile(1000)
	old := parseFull(b, p, text)
	mid := len(text) / 2
	mid += strings.Index(text[mid:], "x :=")
	newText, e := edit(text, mid, mid+1, "z")
	edits := []buffer.TextEdit{e}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = p.Parse(context.Background(), newText, old, edits)
	}
}
