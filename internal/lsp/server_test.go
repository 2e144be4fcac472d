package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf16"

	"github.com/dshills/strand/internal/buffer"
	"github.com/dshills/strand/internal/lsp/protocol"
)

type closers []io.Closer

func (cs closers) Close() error {
	for _, c := range cs {
		c.Close()
	}
	return nil
}

// fakeServer is a tiny language server: it marks "var" as a keyword token,
// reports every "bad" as an error and completes with fixed labels.
type fakeServer struct {
	conn *protocol.Conn

	mu       sync.Mutex
	texts    map[protocol.DocumentURI]string
	versions []int
	silent   bool
}

func startFake(t *testing.T, caps protocol.ServerCapabilities) (*Server, *fakeServer) {
	t.Helper()
	c2sR, c2sW := io.Pipe()
	s2cR, s2cW := io.Pipe()
	f := &fakeServer{
		conn:  protocol.NewConn(c2sR, s2cW, closers{s2cW, c2sR}, nil),
		texts: make(map[protocol.DocumentURI]string),
	}
	f.conn.OnRequest("initialize", func(context.Context, json.RawMessage) (any, error) {
		return protocol.InitializeResult{Capabilities: caps}, nil
	})
	f.conn.OnRequest("shutdown", func(context.Context, json.RawMessage) (any, error) {
		return nil, nil
	})
	f.conn.OnNotification("textDocument/didOpen", func(_ string, raw json.RawMessage) {
		var p protocol.DidOpenTextDocumentParams
		json.Unmarshal(raw, &p)
		f.update(p.TextDocument.URI, p.TextDocument.Version, p.TextDocument.Text)
	})
	f.conn.OnNotification("textDocument/didChange", func(_ string, raw json.RawMessage) {
		var p protocol.DidChangeTextDocumentParams
		json.Unmarshal(raw, &p)
		f.update(p.TextDocument.URI, p.TextDocument.Version, p.ContentChanges[0].Text)
	})
	f.conn.OnRequest("textDocument/semanticTokens/range", func(_ context.Context, raw json.RawMessage) (any, error) {
		var p protocol.SemanticTokensRangeParams
		json.Unmarshal(raw, &p)
		return f.tokens(p.TextDocument.URI), nil
	})
	f.conn.OnRequest("textDocument/completion", func(_ context.Context, raw json.RawMessage) (any, error) {
		var p protocol.CompletionParams
		json.Unmarshal(raw, &p)
		pos := p.Position
		return []protocol.CompletionItem{
			{Label: "println", Kind: protocol.CompletionItemKindFunction},
			{Label: "print", TextEdit: &protocol.TextEdit{
				Range:   protocol.Range{Start: protocol.Position{Line: pos.Line, Character: pos.Character - 2}, End: pos},
				NewText: "print",
			}},
		}, nil
	})
	f.conn.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s, err := Connect(ctx, s2cR, c2sW, closers{c2sW, s2cR}, ServerConfig{LanguageID: "go", Timeout: time.Second})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() {
		s.Shutdown(context.Background())
		f.conn.Close()
	})
	return s, f
}

func (f *fakeServer) update(uri protocol.DocumentURI, version int, text string) {
	f.mu.Lock()
	f.texts[uri] = text
	f.versions = append(f.versions, version)
	silent := f.silent
	f.mu.Unlock()
	if silent {
		return
	}
	var diags []protocol.Diagnostic
	for _, line := range lines(text) {
		if at := strings.Index(line.text, "bad"); at >= 0 {
			diags = append(diags, protocol.Diagnostic{
				Range: protocol.Range{
					Start: protocol.Position{Line: line.n, Character: at},
					End:   protocol.Position{Line: line.n, Character: at + 3},
				},
				Severity: protocol.SeverityError,
				Code:     42,
				Message:  "bad word",
			})
		}
	}
	go f.conn.Notify(context.Background(), "textDocument/publishDiagnostics", protocol.PublishDiagnosticsParams{
		URI: uri, Version: version, Diagnostics: diags,
	})
}

type numberedLine struct {
	n    int
	text string
}

func lines(text string) []numberedLine {
	var out []numberedLine
	for i, l := range strings.Split(text, "\n") {
		out = append(out, numberedLine{i, l})
	}
	return out
}

func (f *fakeServer) tokens(uri protocol.DocumentURI) protocol.SemanticTokens {
	f.mu.Lock()
	text := f.texts[uri]
	f.mu.Unlock()
	var data []uint32
	prevLine, prevChar := 0, 0
	for _, line := range lines(text) {
		for _, b := range occurrences(line.text, "var") {
			at := len(utf16.Encode([]rune(line.text[:b])))
			dl, dc := line.n-prevLine, at
			if dl == 0 {
				dc = at - prevChar
			}
			data = append(data, uint32(dl), uint32(dc), 3, 0, 0)
			prevLine, prevChar = line.n, at
		}
	}
	return protocol.SemanticTokens{Data: data}
}

func allCaps() protocol.ServerCapabilities {
	return protocol.ServerCapabilities{
		TextDocumentSync:   json.RawMessage(`1`),
		CompletionProvider: &protocol.CompletionOptions{},
		SemanticTokensProvider: &protocol.SemanticTokensOptions{
			Legend: protocol.SemanticTokensLegend{TokenTypes: []string{"keyword"}},
			Range:  json.RawMessage(`true`),
		},
	}
}

func TestServerHighlights(t *testing.T) {
	s, _ := startFake(t, allCaps())
	b := buffer.New("var x = 1\n// 😀 var y\n")
	snap := b.Snapshot()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	spans, err := s.Highlights(ctx, snap, buffer.Range{End: snap.Len()})
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, sp := range spans {
		text, _ := snap.TextForRange(sp.Range)
		got = append(got, sp.Kind+":"+text)
	}
	if strings.Join(got, " ") != "keyword:var keyword:var" {
		t.Errorf("spans = %v (%+v)", got, spans)
	}
}

func TestServerDiagnostics(t *testing.T) {
	s, f := startFake(t, allCaps())
	b := buffer.New("good\nbad line\n")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	snap := b.Snapshot()
	diags, err := s.Diagnostics(ctx, snap, buffer.Range{End: snap.Len()})
	if err != nil {
		t.Fatal(err)
	}
	if len(diags) != 1 || diags[0].Range != (buffer.Range{Start: 5, End: 8}) || diags[0].Code != "42" || diags[0].Severity != SeverityError {
		t.Fatalf("diagnostics = %+v", diags)
	}

	if _, err := b.Edit(buffer.Delete(5, 9)); err != nil {
		t.Fatal(err)
	}
	snap = b.Snapshot()
	diags, err = s.Diagnostics(ctx, snap, buffer.Range{End: snap.Len()})
	if err != nil || len(diags) != 0 {
		t.Fatalf("diagnostics after fix = %+v, %v", diags, err)
	}
	// Asking again for the same snapshot does not resend the text.
	if _, err := s.Diagnostics(ctx, snap, buffer.Range{End: snap.Len()}); err != nil {
		t.Fatal(err)
	}
	f.mu.Lock()
	versions := f.versions
	f.mu.Unlock()
	if len(versions) != 2 || versions[0] != 1 || versions[1] != 2 {
		t.Errorf("document versions sent = %v", versions)
	}
}

func TestServerDiagnosticsWaitsForPublication(t *testing.T) {
	s, f := startFake(t, allCaps())
	f.mu.Lock()
	f.silent = true
	f.mu.Unlock()

	snap := buffer.New("bad").Snapshot()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := s.Diagnostics(ctx, snap, buffer.Range{End: 3}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Diagnostics() = %v, want DeadlineExceeded", err)
	}
}

func TestServerRejectsOlderSnapshot(t *testing.T) {
	s, _ := startFake(t, allCaps())
	b := buffer.New("x")
	old := b.Snapshot()
	b.Edit(buffer.Insert(1, "y"))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := s.Highlights(ctx, b.Snapshot(), buffer.Range{End: 2}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Highlights(ctx, old, buffer.Range{End: 1}); !errors.Is(err, ErrStale) {
		t.Errorf("Highlights(old) = %v, want ErrStale", err)
	}
}

func TestServerCompletions(t *testing.T) {
	s, _ := startFake(t, allCaps())
	b := buffer.New("fmt.pr")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	items, err := RequestCompletions(ctx, s, b, 6)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %+v", items)
	}
	if items[0].Label != "println" || items[0].Kind != "function" || items[0].Edit() != buffer.Insert(6, "println") {
		t.Errorf("items[0] = %+v", items[0])
	}
	want := buffer.Edit{Range: buffer.Range{Start: 4, End: 6}, Text: "print"}
	if items[1].Edit() != want {
		t.Errorf("items[1].Edit() = %+v, want %+v", items[1].Edit(), want)
	}
	if _, err := b.Edit(items[1].Edit()); err != nil || b.Text() != "fmt.print" {
		t.Errorf("accepting completion: %q, %v", b.Text(), err)
	}
}

func TestServerUnsupported(t *testing.T) {
	s, _ := startFake(t, protocol.ServerCapabilities{})
	snap := buffer.New("x").Snapshot()
	ctx := context.Background()
	if _, err := s.Highlights(ctx, snap, buffer.Range{End: 1}); !errors.Is(err, ErrNotSupported) {
		t.Errorf("Highlights() = %v", err)
	}
	if _, err := s.Completions(ctx, snap, 0); !errors.Is(err, ErrNotSupported) {
		t.Errorf("Completions() = %v", err)
	}
}

func TestServerShutdown(t *testing.T) {
	s, _ := startFake(t, allCaps())
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	snap := buffer.New("x").Snapshot()
	if _, err := s.Diagnostics(context.Background(), snap, buffer.Range{}); !errors.Is(err, ErrShutdown) {
		t.Errorf("Diagnostics() after Shutdown = %v", err)
	}
}
