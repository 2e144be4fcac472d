package syntax

import (
	"strings"
	"testing"
)

type tokText struct {
	kind Kind
	text string
}

func tokenTexts(text string, toks []Token) []tokText {
	var out []tokText
	pos := 0
	for _, t := range toks {
		out = append(out, tokText{t.Kind, text[pos : pos+t.Len]})
		pos += t.Len
	}
	return out
}

func coverage(toks []Token) int {
	n := 0
	for _, t := range toks {
		n += t.Len
	}
	return n
}

func TestRuleTokenizerGo(t *testing.T) {
	src := "func f(x int) string { // call\n\treturn \"a(b\" + `raw\n)` /* c{ */ }"
	got := tokenTexts(src, NewRuleTokenizer(Go).Tokenize(src))
	want := []tokText{
		{KindKeyword, "func"}, {KindText, " "}, {KindName, "f"},
		{KindPunctuation, "("}, {KindName, "x"}, {KindText, " "}, {KindType, "int"}, {KindPunctuation, ")"},
		{KindText, " "}, {KindType, "string"}, {KindText, " "}, {KindPunctuation, "{"}, {KindText, " "},
		{KindComment, "// call"}, {KindText, "\n\t"}, {KindKeyword, "return"}, {KindText, " "},
		{KindString, `"a(b"`}, {KindText, " "}, {KindOperator, "+"}, {KindText, " "},
		{KindString, "`raw\n)`"}, {KindText, " "}, {KindComment, "/* c{ */"}, {KindText, " "},
		{KindPunctuation, "}"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d tokens, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestRuleTokenizerUnterminated(t *testing.T) {
	tests := []struct {
		name string
		src  string
		last tokText
	}{
		{"string stops at newline", "\"abc\nx", tokText{KindName, "x"}},
		{"block comment runs to end", "a /* b", tokText{KindComment, "/* b"}},
		{"raw string runs to end", "`ab", tokText{KindString, "`ab"}},
		{"escape at end", `"a\`, tokText{KindString, `"a\`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			toks := NewRuleTokenizer(Go).Tokenize(tt.src)
			if coverage(toks) != len(tt.src) {
				t.Fatalf("tokens cover %d bytes, want %d", coverage(toks), len(tt.src))
			}
			got := tokenTexts(tt.src, toks)
			if got[len(got)-1] != tt.last {
				t.Errorf("last token = %v, want %v", got[len(got)-1], tt.last)
			}
		})
	}
}

func TestRuleTokenizerCoversUnicode(t *testing.T) {
	src := "naïve := \"ü\" // ✓\n👍 (x)"
	toks := NewRuleTokenizer(Go).Tokenize(src)
	if coverage(toks) != len(src) {
		t.Fatalf("tokens cover %d bytes, want %d", coverage(toks), len(src))
	}
	for _, tt := range tokenTexts(src, toks) {
		if tt.text == "naïve" && tt.kind != KindName {
			t.Errorf("naïve tokenized as %v", tt.kind)
		}
	}
}

func TestChromaTokenizer(t *testing.T) {
	tok, ok := NewChromaTokenizer("go")
	if !ok {
		t.Fatal("no chroma lexer for go")
	}
	src := "package main\n\nfunc main() {\n\ts := \"x{\" // y(\n\t_ = s\n}\n"
	toks := tok.Tokenize(src)
	if coverage(toks) != len(src) {
		t.Fatalf("tokens cover %d bytes, want %d", coverage(toks), len(src))
	}
	kinds := map[Kind]bool{}
	brackets := 0
	for _, tt := range tokenTexts(src, toks) {
		kinds[tt.kind] = true
		if strings.ContainsAny(tt.text, "(){}") && (tt.kind == KindPunctuation || tt.kind == KindOperator) {
			if len(tt.text) != 1 {
				t.Errorf("bracket not split: %q", tt.text)
			}
			brackets++
		}
	}
	for _, k := range []Kind{KindKeyword, KindString, KindComment, KindPunctuation} {
		if !kinds[k] {
			t.Errorf("no %v token in %v", k, tokenTexts(src, toks))
		}
	}
	if brackets != 4 {
		t.Errorf("found %d bracket tokens, want 4", brackets)
	}
}

func TestTokenizerSelection(t *testing.T) {
	if tok := TokenizerForFile("main.go"); tok.Language() != "Go" {
		t.Errorf("TokenizerForFile(main.go) = %q", tok.Language())
	}
	if tok := TokenizerForFile("notes.strandunknown"); tok.Language() != "plain" {
		t.Errorf("unknown extension = %q, want plain", tok.Language())
	}
	if tok := TokenizerForLanguage("no-such-language"); tok.Language() != "plain" {
		t.Errorf("unknown language = %q, want plain", tok.Language())
	}
	if l, ok := LanguageForFile("lib.RS"); !ok || l.Name != "rust" {
		t.Errorf("LanguageForFile(lib.RS) = %v, %v", l.Name, ok)
	}
}

func FuzzRuleTokenizerCoverage(f *testing.F) {
	for _, s := range []string{"", "func f() {}", "\"unterminated", "/* x", "a\\", "((]]}"} {
		f.Add(s)
	}
	tok := NewRuleTokenizer(Go)
	f.Fuzz(func(t *testing.T, s string) {
		toks := tok.Tokenize(s)
		if coverage(toks) != len(s) {
			t.Fatalf("tokens cover %d bytes of %d", coverage(toks), len(s))
		}
		for _, tk := range toks {
			if tk.Len <= 0 {
				t.Fatalf("empty token in %v", toks)
			}
		}
	})
}
