package rope

import (
	"strings"
	"testing"
	"testing/quick"
	"unicode/utf8"
)

func TestFromString(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"single char", "a"},
		{"with newline", "hello\nworld"},
		{"unicode", "hello 世界 🌍"},
		{"long", strings.Repeat("abcdefghij", 100)},
		{"very long lines", strings.Repeat("line of text\n", 2000)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := FromString(tt.input)
			if r.String() != tt.input {
				t.Errorf("String() = %q, want %q", r.String(), tt.input)
			}
			if r.Len() != len(tt.input) {
				t.Errorf("Len() = %d, want %d", r.Len(), len(tt.input))
			}
			if r.LineCount() != strings.Count(tt.input, "\n")+1 {
				t.Errorf("LineCount() = %d", r.LineCount())
			}
			if err := r.Validate(); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestInsertDeleteReplace(t *testing.T) {
	tests := []struct {
		name string
		fn   func(Rope) Rope
		want string
	}{
		{"insert start", func(r Rope) Rope { return r.Insert(0, ">>") }, ">>hello world"},
		{"insert middle", func(r Rope) Rope { return r.Insert(5, ",") }, "hello, world"},
		{"insert end", func(r Rope) Rope { return r.Insert(11, "!") }, "hello world!"},
		{"delete prefix", func(r Rope) Rope { return r.Delete(0, 6) }, "world"},
		{"delete empty range", func(r Rope) Rope { return r.Delete(3, 3) }, "hello world"},
		{"replace", func(r Rope) Rope { return r.Replace(6, 11, "there") }, "hello there"},
		{"replace clamps", func(r Rope) Rope { return r.Replace(6, 100, "x") }, "hello x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orig := FromString("hello world")
			got := tt.fn(orig)
			if got.String() != tt.want {
				t.Errorf("got %q, want %q", got.String(), tt.want)
			}
			if orig.String() != "hello world" {
				t.Error("original rope was modified")
			}
		})
	}
}

func TestLargeEditsStayBalanced(t *testing.T) {
	text := strings.Repeat("0123456789abcdef\n", 500)
	r := FromString(text)
	for i := 0; i < 200; i++ {
		at := (i * 977) % r.Len()
		r = r.Insert(at, "xyz")
		text = text[:at] + "xyz" + text[at:]
	}
	if r.String() != text {
		t.Fatal("rope diverged from string model")
	}
	if err := r.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestPoints(t *testing.T) {
	r := FromString("ab\ncde\n\nf")
	tests := []struct {
		offset int
		point  Point
	}{
		{0, Point{0, 0}},
		{2, Point{0, 2}},
		{3, Point{1, 0}},
		{6, Point{1, 3}},
		{7, Point{2, 0}},
		{8, Point{3, 0}},
		{9, Point{3, 1}},
	}
	for _, tt := range tests {
		if got := r.OffsetToPoint(tt.offset); got != tt.point {
			t.Errorf("OffsetToPoint(%d) = %+v, want %+v", tt.offset, got, tt.point)
		}
		if got := r.PointToOffset(tt.point); got != tt.offset {
			t.Errorf("PointToOffset(%+v) = %d, want %d", tt.point, got, tt.offset)
		}
	}
	if got := r.PointToOffset(Point{Line: 0, Column: 99}); got != 2 {
		t.Errorf("column clamp = %d, want 2", got)
	}
	if got := r.LineText(1); got != "cde" {
		t.Errorf("LineText(1) = %q", got)
	}
	if got := r.LineText(2); got != "" {
		t.Errorf("LineText(2) = %q", got)
	}
}

func TestPointsAcrossChunks(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 1000; i++ {
		sb.WriteString(strings.Repeat("x", i%37))
		sb.WriteByte('\n')
	}
	text := sb.String()
	r := FromString(text)
	for line := 0; line < 1000; line += 13 {
		start := r.LineStartOffset(line)
		want := 0
		for l := 0; l < line; l++ {
			want += l%37 + 1
		}
		if start != want {
			t.Fatalf("LineStartOffset(%d) = %d, want %d", line, start, want)
		}
		if p := r.OffsetToPoint(start); p.Line != line || p.Column != 0 {
			t.Fatalf("OffsetToPoint(%d) = %+v", start, p)
		}
	}
}

func TestUTF16(t *testing.T) {
	r := FromString("a🌍b")
	if got := r.OffsetToUTF16(5); got != 3 {
		t.Errorf("OffsetToUTF16(5) = %d, want 3", got)
	}
	if got := r.Summary().UTF16Units; got != 4 {
		t.Errorf("UTF16Units = %d, want 4", got)
	}
}

func TestLines(t *testing.T) {
	r := FromString("one\ntwo\n")
	var got []string
	for _, l := range r.Lines() {
		got = append(got, l)
	}
	if strings.Join(got, "|") != "one|two|" {
		t.Errorf("Lines = %q", got)
	}
}

func TestSummaryAddMatchesConcatenation(t *testing.T) {
	f := func(a, b string) bool {
		if !utf8.ValidString(a) || !utf8.ValidString(b) {
			return true
		}
		return Summarize(a).Add(Summarize(b)) == Summarize(a+b)
	}
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}
	if got := Summarize("ab\ncd").Add(Summarize("ef\ng")); got != Summarize("ab\ncdef\ng") {
		t.Errorf("joined line summary = %+v", got)
	}
}

func FuzzEdits(f *testing.F) {
	f.Add("hello\nworld", 3, 2, "xy")
	f.Add("", 0, 0, "日本語")
	f.Fuzz(func(t *testing.T, s string, at, n int, ins string) {
		if !utf8.ValidString(s) || !utf8.ValidString(ins) || at < 0 || n < 0 {
			return
		}
		at %= len(s) + 1
		end := min(at+n, len(s))
		if !utf8.ValidString(s[:at]) || !utf8.ValidString(s[end:]) {
			return
		}
		r := FromString(s).Replace(at, end, ins)
		want := s[:at] + ins + s[end:]
		if r.String() != want {
			t.Fatalf("Replace = %q, want %q", r.String(), want)
		}
		if r.Summary() != Summarize(want) {
			t.Fatalf("summary mismatch")
		}
	})
}

func BenchmarkInsert(b *testing.B) {
	r := FromString(strings.Repeat("the quick brown fox\n", 50000))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = r.Insert(r.Len()/2, "x")
	}
}
