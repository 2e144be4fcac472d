package workspace

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dshills/strand/internal/buffer"
	"github.com/dshills/strand/internal/diff"
	"github.com/dshills/strand/internal/lsp"
	"github.com/dshills/strand/internal/syntax"
)

func newSession(t *testing.T, opts ...Option) *Session {
	t.Helper()
	s, err := NewSession(opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func writeFile(t *testing.T, path, text string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestOpenWiresLayers(t *testing.T) {
	s := newSession(t)
	doc, err := s.Open("main.go", "package main\n\nfunc main() {}\n")
	if err != nil {
		t.Fatal(err)
	}
	if doc.Language != "Go" {
		t.Errorf("Language = %q", doc.Language)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := doc.Syntax.WaitIdle(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if ref := snap.NodeAt(0); ref.Node == nil || ref.Node.Kind() != syntax.KindKeyword {
		t.Errorf("NodeAt(0) = %+v", ref)
	}

	if _, err := doc.Buffer.Edit(buffer.Insert(27, " println() ")); err != nil {
		t.Fatal(err)
	}
	ds, err := doc.Diff.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if got := ds.LineStatus(2); got != diff.Modified {
		t.Errorf("LineStatus(2) = %v", got)
	}
	if got := ds.LineStatus(0); got != diff.Unchanged {
		t.Errorf("LineStatus(0) = %v", got)
	}
}

func TestRegistry(t *testing.T) {
	s := newSession(t)
	a, _ := s.Open("a.txt", "a")
	b, _ := s.Open("", "b")
	c, _ := s.Open("c.md", "c")

	if got := s.Buffers(); len(got) != 3 || got[0] != a.Buffer || got[1] != b.Buffer || got[2] != c.Buffer {
		t.Fatalf("Buffers() = %v", got)
	}
	if d, ok := s.Get(b.Buffer.ID()); !ok || d != b {
		t.Error("Get() did not find the document")
	}
	if err := s.CloseBuffer(b.Buffer.ID()); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Get(b.Buffer.ID()); ok {
		t.Error("closed document still registered")
	}
	if err := s.CloseBuffer(b.Buffer.ID()); !errors.Is(err, ErrBufferNotFound) {
		t.Errorf("second CloseBuffer() = %v", err)
	}
	if got := s.Buffers(); len(got) != 2 || got[1] != c.Buffer {
		t.Errorf("Buffers() after close = %v", got)
	}
	if err := s.ReloadReference(a.Buffer.ID()); !errors.Is(err, ErrNotFile) {
		t.Errorf("ReloadReference(untitled) = %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Open("x", "x"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Open() after Close = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}

func TestOpenFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	writeFile(t, path, "one\ntwo\n")
	s := newSession(t)

	doc, err := s.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Buffer.Text() != "one\ntwo\n" || doc.Path != path {
		t.Errorf("document = %q at %s", doc.Buffer.Text(), doc.Path)
	}
	if _, err := s.OpenFile(path); !errors.Is(err, ErrAlreadyOpen) {
		t.Errorf("second OpenFile() = %v", err)
	}
	if d, ok := s.Lookup(path); !ok || d != doc {
		t.Error("Lookup() did not find the document")
	}
	if _, err := s.OpenFile(filepath.Join(dir, "missing")); err == nil {
		t.Error("OpenFile(missing) succeeded")
	}

	// The reference is the file content; edits show as changes until the
	// file is reloaded with the same content.
	doc.Buffer.Edit(buffer.Insert(0, "zero\n"))
	ds, _ := doc.Diff.Snapshot()
	if got := ds.ChangedLines(); len(got) != 1 || got[0] != 0 {
		t.Errorf("ChangedLines() = %v", got)
	}
	writeFile(t, path, doc.Buffer.Text())
	if err := s.ReloadReference(doc.Buffer.ID()); err != nil {
		t.Fatal(err)
	}
	ds, _ = doc.Diff.Snapshot()
	if got := ds.ChangedLines(); len(got) != 0 {
		t.Errorf("ChangedLines() after reload = %v", got)
	}
}

func TestLanguageOverride(t *testing.T) {
	s := newSession(t, WithLanguages(map[string]string{".tpl": "go"}))
	doc, err := s.Open("page.tpl", "package x")
	if err != nil {
		t.Fatal(err)
	}
	if doc.Language != "Go" {
		t.Errorf("Language = %q", doc.Language)
	}
}

func TestDiskChangeReloadsReference(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.go")
	writeFile(t, path, "package main\n")
	s := newSession(t, WithDiskWatch(10*time.Millisecond))
	doc, err := s.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}

	writeFile(t, path, "package main\n\nvar x = 1\n")
	eventually(t, "reference reload", func() bool {
		ds, err := doc.Diff.Snapshot()
		return err == nil && ds.Reference() == "package main\n\nvar x = 1\n"
	})
	ds, _ := doc.Diff.Snapshot()
	if got := ds.Hunks(); len(got) != 1 || got[0].Status != diff.Removed {
		t.Errorf("hunks = %v", got)
	}
	if doc.Buffer.Text() != "package main\n" {
		t.Errorf("buffer changed to %q", doc.Buffer.Text())
	}

	// Removing the file keeps the last reference.
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	ds, _ = doc.Diff.Snapshot()
	if ds.Reference() != "package main\n\nvar x = 1\n" {
		t.Errorf("reference after removal = %q", ds.Reference())
	}
}

type todoConnector struct{}

func (todoConnector) Highlights(context.Context, *buffer.Snapshot, buffer.Range) ([]lsp.Span, error) {
	return nil, lsp.ErrNotSupported
}

func (todoConnector) Diagnostics(_ context.Context, snap *buffer.Snapshot, _ buffer.Range) ([]lsp.Diagnostic, error) {
	var out []lsp.Diagnostic
	for i := 0; i < snap.LineCount(); i++ {
		if snap.LineText(i) == "TODO" {
			start := snap.LineStartOffset(i)
			out = append(out, lsp.Diagnostic{Range: buffer.Range{Start: start, End: start + 4}, Severity: lsp.SeverityHint})
		}
	}
	return out, nil
}

func (todoConnector) Completions(context.Context, *buffer.Snapshot, int) ([]lsp.Completion, error) {
	return nil, nil
}

func TestRefreshLSP(t *testing.T) {
	plain := newSession(t)
	doc, _ := plain.Open("", "x")
	if err := plain.RefreshLSP(context.Background(), doc.Buffer.ID()); !errors.Is(err, ErrNoConnector) {
		t.Errorf("RefreshLSP() without connector = %v", err)
	}

	s := newSession(t, WithConnector(todoConnector{}))
	doc, err := s.Open("", "a\nTODO\nb\nTODO")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.RefreshLSP(context.Background(), doc.Buffer.ID()); err != nil {
		t.Fatal(err)
	}
	if got := doc.LSP.Diagnostics(); len(got) != 2 {
		t.Fatalf("diagnostics = %+v", got)
	}
	doc.Buffer.Edit(buffer.Insert(0, "--\n"))
	if got := doc.LSP.DiagnosticsAt(5); len(got) != 1 {
		t.Errorf("DiagnosticsAt(5) after insert = %+v", got)
	}
}

func TestAttach(t *testing.T) {
	s := newSession(t)
	origin := buffer.New("shared text")
	replica := origin.Replicate()
	doc, err := s.Attach("notes.md", replica)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Buffer != replica || doc.Language == "" {
		t.Errorf("document = %+v", doc)
	}
	if _, err := s.Attach("again.md", replica); !errors.Is(err, ErrAlreadyOpen) {
		t.Errorf("second Attach() = %v", err)
	}

	if _, err := origin.Edit(buffer.Insert(0, "> ")); err != nil {
		t.Fatal(err)
	}
	ops, err := origin.HistorySince(replica.Version())
	if err != nil {
		t.Fatal(err)
	}
	if err := replica.Apply(ops...); err != nil {
		t.Fatal(err)
	}
	ds, err := doc.Diff.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if got := ds.LineStatus(0); got != diff.Modified {
		t.Errorf("LineStatus(0) after remote edit = %v", got)
	}
}
