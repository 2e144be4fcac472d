package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, text string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	t.Setenv("STRAND_CONFIG", "")
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestVersion(t *testing.T) {
	code, out, _ := runCLI(t, "version")
	if code != 0 || !strings.HasPrefix(out, "strand dev\n") {
		t.Errorf("version = %d, %q", code, out)
	}
}

func TestUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no command", nil, "Usage: strand"},
		{"unknown command", []string{"frobnicate"}, `unknown command "frobnicate"`},
		{"bad level", []string{"-log-level", "loud", "version"}, "invalid log level"},
		{"missing argument", []string{"diff", "only-one"}, "Usage: strand diff"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, errOut := runCLI(t, tt.args...)
			if code != 2 || !strings.Contains(errOut, tt.want) {
				t.Errorf("code %d, stderr %q", code, errOut)
			}
		})
	}
}

func TestConfigFlag(t *testing.T) {
	dir := t.TempDir()
	bad := writeFile(t, dir, "bad.toml", "[diff]\nmax_lines = -4\n")
	code, _, errOut := runCLI(t, "-config", bad, "version")
	if code != 1 || !strings.Contains(errOut, "diff.max_lines") {
		t.Errorf("code %d, stderr %q", code, errOut)
	}
}

func TestDiff(t *testing.T) {
	dir := t.TempDir()
	ref := writeFile(t, dir, "a.txt", "one\ntwo\nthree\n")
	changed := writeFile(t, dir, "b.txt", "one\nTWO\nthree\nfour\n")
	same := writeFile(t, dir, "c.txt", "one\ntwo\nthree\n")

	code, out, _ := runCLI(t, "diff", ref, changed)
	if code != 1 {
		t.Errorf("diff of different files exited %d", code)
	}
	want := "     1  one\n~    2  TWO\n     3  three\n+    4  four\n"
	if out != want {
		t.Errorf("statuses:\n%s\nwant:\n%s", out, want)
	}

	code, out, _ = runCLI(t, "diff", "-unified", ref, changed)
	if code != 1 || !strings.Contains(out, "@@") || !strings.Contains(out, "+TWO") {
		t.Errorf("unified = %d, %q", code, out)
	}

	code, out, _ = runCLI(t, "diff", "-unified", ref, same)
	if code != 0 || out != "" {
		t.Errorf("identical files = %d, %q", code, out)
	}
}

func TestHighlight(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "main.go", "package main\n\nfunc main() {\n\treturn\n}\n")

	code, out, errOut := runCLI(t, "highlight", path)
	if code != 0 {
		t.Fatalf("highlight = %d: %s", code, errOut)
	}
	for _, want := range []string{"1:1\tkeyword\t\"package\"", "3:1\tkeyword\t\"func\"", "4:2\tkeyword\t\"return\""} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in\n%s", want, out)
		}
	}

	code, out, _ = runCLI(t, "highlight", "-folds", path)
	if code != 0 || out != "3-5\n" {
		t.Errorf("folds = %d, %q", code, out)
	}

	if code, _, errOut := runCLI(t, "highlight", "-tree-sitter", writeFile(t, dir, "x.txt", "x")); code != 2 || !strings.Contains(errOut, "tree-sitter") {
		t.Errorf("tree-sitter for plain text = %d, %q", code, errOut)
	}
}
