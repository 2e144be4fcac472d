package topic

import (
	"slices"
	"testing"
)

func TestSegments(t *testing.T) {
	tests := []struct {
		topic Topic
		want  []string
	}{
		{"buffer.abc.changed", []string{"buffer", "abc", "changed"}},
		{"single", []string{"single"}},
		{"", nil},
	}
	for _, tt := range tests {
		t.Run(tt.topic.String(), func(t *testing.T) {
			if got := tt.topic.Segments(); !slices.Equal(got, tt.want) {
				t.Errorf("Segments() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestChildAndBase(t *testing.T) {
	if got := Topic("").Child("buffer"); got != "buffer" {
		t.Errorf("Child on empty = %q", got)
	}
	tp := Topic("buffer").Child("abc").Child("changed")
	if tp != "buffer.abc.changed" {
		t.Errorf("Child chain = %q", tp)
	}
	if tp.Base() != "changed" || Topic("single").Base() != "single" {
		t.Errorf("Base() = %q", tp.Base())
	}
	if Join("diff", "abc", "updated") != "diff.abc.updated" {
		t.Error("Join mismatch")
	}
}

func TestHasPrefix(t *testing.T) {
	tests := []struct {
		topic, prefix Topic
		want          bool
	}{
		{"buffer.abc.changed", "buffer", true},
		{"buffer.abc.changed", "buffer.abc", true},
		{"buffer.abc.changed", "buffer.abc.changed", true},
		{"buffer.abc.changed", "buff", false},
		{"buffer.abc.changed", "abc", false},
		{"buffer", "buffer.abc", false},
		{"buffer.abc", "", true},
	}
	for _, tt := range tests {
		if got := tt.topic.HasPrefix(tt.prefix); got != tt.want {
			t.Errorf("%q.HasPrefix(%q) = %v, want %v", tt.topic, tt.prefix, got, tt.want)
		}
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		topic Topic
		want  bool
	}{
		{"buffer.abc.changed", true},
		{"buffer.*", true},
		{"", false},
		{".buffer", false},
		{"buffer.", false},
		{"buffer..changed", false},
		{".", false},
	}
	for _, tt := range tests {
		if got := tt.topic.IsValid(); got != tt.want {
			t.Errorf("%q.IsValid() = %v, want %v", tt.topic, got, tt.want)
		}
	}
}

func TestMatches(t *testing.T) {
	tests := []struct {
		topic, pattern Topic
		want           bool
	}{
		{"buffer.abc.changed", "buffer.abc.changed", true},
		{"buffer.abc.changed", "buffer.abc.closed", false},
		{"buffer", "buffer.abc", false},

		{"buffer.abc.changed", "buffer.*.changed", true},
		{"buffer.xyz.changed", "buffer.*.changed", true},
		{"syntax.abc.parsed", "buffer.*.changed", false},
		{"buffer.abc", "*.*", true},
		{"buffer.abc.changed", "*.*", false},

		{"buffer.abc.changed", "buffer.**", true},
		{"buffer", "buffer.**", true},
		{"diff.abc.updated", "buffer.**", false},
		{"anything.at.all", "**", true},
		{"a.b.c.changed", "**.changed", true},
		{"changed", "**.changed", true},
		{"buffer.abc.closed", "**.changed", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.topic)+"~"+string(tt.pattern), func(t *testing.T) {
			if got := tt.topic.Matches(tt.pattern); got != tt.want {
				t.Errorf("%q.Matches(%q) = %v, want %v", tt.topic, tt.pattern, got, tt.want)
			}
		})
	}
}

func TestIsWildcard(t *testing.T) {
	if !Topic("buffer.*").IsWildcard() || !Topic("**").IsWildcard() || Topic("buffer.abc").IsWildcard() {
		t.Error("IsWildcard mismatch")
	}
}

func BenchmarkMatchesMultiWildcard(b *testing.B) {
	tp := Topic("buffer.abc.changed")
	for i := 0; i < b.N; i++ {
		_ = tp.Matches("**.changed")
	}
}
