package lsp

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/dshills/strand/internal/buffer"
	"github.com/dshills/strand/internal/logging"
	"github.com/dshills/strand/internal/lsp/protocol"
)

// ServerConfig describes how to start a language server.
type ServerConfig struct {
	Command string
	Args    []string
	// Env holds additional environment variables.
	Env     map[string]string
	WorkDir string
	// RootPath is sent as the workspace root.
	RootPath string
	// LanguageID is used for documents without a path.
	LanguageID            string
	InitializationOptions any
	// Timeout bounds the initialize handshake. Default 30s.
	Timeout time.Duration
}

// ServerOption configures a Server.
type ServerOption func(*Server)

func WithServerLogger(log *logging.Logger) ServerOption {
	return func(s *Server) { s.log = logging.OrNull(log) }
}

// Server is a Connector backed by a language server. Documents are sent
// to the server in full whenever a request names a snapshot the server has
// not seen.
type Server struct {
	cfg  ServerConfig
	log  *logging.Logger
	conn *protocol.Conn
	cmd  *exec.Cmd
	caps protocol.ServerCapabilities

	// syncMu orders document updates; mu guards the maps and documents
	// and is never held while writing to the server.
	syncMu sync.Mutex
	mu     sync.Mutex
	docs   map[buffer.ID]*document
	uris   map[protocol.DocumentURI]*document
}

// document is a buffer as the server knows it.
type document struct {
	uri        protocol.DocumentURI
	languageID string
	open       bool
	version    int
	snap       *buffer.Snapshot

	// diagnostics were published for diagVersion; published is closed
	// and replaced on every publication.
	diagnostics []protocol.Diagnostic
	diagVersion int
	published   chan struct{}
}

// StartServer runs the configured language server and performs the
// initialize handshake. The process is killed when ctx ends.
func StartServer(ctx context.Context, cfg ServerConfig, opts ...ServerOption) (*Server, error) {
	cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)
	cmd.Env = os.Environ()
	for k, v := range cfg.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Dir = cmp.Or(cfg.WorkDir, cfg.RootPath)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		stdin.Close()
		return nil, fmt.Errorf("start %s: %w", cfg.Command, err)
	}
	s, err := Connect(ctx, stdout, stdin, stdin, cfg, opts...)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, err
	}
	s.cmd = cmd
	go func() {
		err := cmd.Wait()
		s.log.Info("server %s exited: %v", cfg.Command, err)
		s.conn.Close()
	}()
	return s, nil
}

// Connect performs the initialize handshake with a server reachable over
// r and w. c, if not nil, is closed on shutdown.
func Connect(ctx context.Context, r io.Reader, w io.Writer, c io.Closer, cfg ServerConfig, opts ...ServerOption) (*Server, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	s := &Server{
		cfg:  cfg,
		log:  logging.Null,
		docs: make(map[buffer.ID]*document),
		uris: make(map[protocol.DocumentURI]*document),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithComponent("lsp").WithField("server", cmp.Or(cfg.Command, "pipe"))
	s.conn = protocol.NewConn(r, w, c, s.log)
	s.conn.OnNotification("textDocument/publishDiagnostics", s.onDiagnostics)
	s.conn.OnNotification("window/logMessage", func(_ string, params json.RawMessage) {
		s.log.Debug("server log: %s", params)
	})
	s.conn.OnRequest("workspace/configuration", func(context.Context, json.RawMessage) (any, error) {
		return []any{}, nil
	})
	s.conn.OnRequest("window/workDoneProgress/create", func(context.Context, json.RawMessage) (any, error) {
		return nil, nil
	})
	s.conn.Start(context.WithoutCancel(ctx))

	if err := s.initialize(ctx); err != nil {
		s.conn.Close()
		return nil, fmt.Errorf("initialize: %w", err)
	}
	return s, nil
}

func (s *Server) initialize(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	caps := protocol.ClientCapabilities{}
	caps.TextDocument.Completion = &protocol.CompletionClientCapabilities{}
	caps.TextDocument.PublishDiagnostics = &protocol.PublishDiagnosticsCapabilities{VersionSupport: true}
	tokens := &protocol.SemanticTokensClientCapabilities{
		TokenTypes: []string{"namespace", "type", "class", "function", "method", "variable",
			"parameter", "property", "keyword", "comment", "string", "number", "operator"},
		TokenModifiers: []string{},
		Formats:        []string{"relative"},
	}
	tokens.Requests.Range = true
	tokens.Requests.Full = true
	caps.TextDocument.SemanticTokens = tokens

	params := protocol.InitializeParams{
		ProcessID:             os.Getpid(),
		ClientInfo:            &protocol.ClientInfo{Name: "strand"},
		InitializationOptions: s.cfg.InitializationOptions,
		Capabilities:          caps,
	}
	if s.cfg.RootPath != "" {
		params.RootURI = protocol.FilePathToURI(s.cfg.RootPath)
	}
	var result protocol.InitializeResult
	if err := s.conn.Call(ctx, "initialize", params, &result); err != nil {
		return err
	}
	s.caps = result.Capabilities
	return s.conn.Notify(ctx, "initialized", protocol.InitializedParams{})
}

// Capabilities returns what the server announced during initialization.
func (s *Server) Capabilities() protocol.ServerCapabilities {
	return s.caps
}

// Bind associates a buffer with a file path. Unbound buffers are sent
// under an untitled: URI.
func (s *Server) Bind(id buffer.ID, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; ok {
		return
	}
	s.addLocked(id, protocol.FilePathToURI(path), protocol.DetectLanguageID(path))
}

func (s *Server) addLocked(id buffer.ID, uri protocol.DocumentURI, lang string) *document {
	d := &document{uri: uri, languageID: lang, published: make(chan struct{})}
	s.docs[id] = d
	s.uris[uri] = d
	return d
}

// sync makes sure the server has snap's text and returns the document.
func (s *Server) sync(ctx context.Context, snap *buffer.Snapshot) (*document, error) {
	if s.conn.IsClosed() {
		return nil, ErrShutdown
	}
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	s.mu.Lock()
	d, ok := s.docs[snap.ID()]
	if !ok {
		d = s.addLocked(snap.ID(), protocol.DocumentURI("untitled:"+snap.ID().String()), cmp.Or(s.cfg.LanguageID, "plaintext"))
	}
	if d.snap != nil {
		seen, want := d.snap.Version(), snap.Version()
		if seen.Equal(want) {
			s.mu.Unlock()
			return d, nil
		}
		if seen.ObservedAll(want) {
			s.mu.Unlock()
			return nil, fmt.Errorf("%w: server has a newer version", ErrStale)
		}
	}
	open, uri, lang := d.open, d.uri, d.languageID
	d.version++
	version := d.version
	s.mu.Unlock()

	var err error
	if !open {
		err = s.conn.Notify(ctx, "textDocument/didOpen", protocol.DidOpenTextDocumentParams{
			TextDocument: protocol.TextDocumentItem{URI: uri, LanguageID: lang, Version: version, Text: snap.Text()},
		})
	} else {
		err = s.conn.Notify(ctx, "textDocument/didChange", protocol.DidChangeTextDocumentParams{
			TextDocument:   protocol.VersionedTextDocumentIdentifier{TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: uri}, Version: version},
			ContentChanges: []protocol.TextDocumentContentChangeEvent{{Text: snap.Text()}},
		})
	}
	if err != nil {
		return nil, fmt.Errorf("sync %s: %w", uri, err)
	}
	s.mu.Lock()
	d.open = true
	d.snap = snap
	s.mu.Unlock()
	return d, nil
}

func (s *Server) onDiagnostics(_ string, params json.RawMessage) {
	var p protocol.PublishDiagnosticsParams
	if err := json.Unmarshal(params, &p); err != nil {
		s.log.Warn("decode diagnostics: %v", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.uris[p.URI]
	if !ok {
		return
	}
	d.diagnostics = p.Diagnostics
	d.diagVersion = p.Version
	if p.Version == 0 {
		d.diagVersion = d.version
	}
	close(d.published)
	d.published = make(chan struct{})
}

// Highlights returns the semantic tokens in r.
func (s *Server) Highlights(ctx context.Context, snap *buffer.Snapshot, r buffer.Range) ([]Span, error) {
	opts := s.caps.SemanticTokensProvider
	if opts == nil {
		return nil, ErrNotSupported
	}
	d, err := s.sync(ctx, snap)
	if err != nil {
		return nil, err
	}
	var tokens protocol.SemanticTokens
	doc := protocol.TextDocumentIdentifier{URI: d.uri}
	if opts.SupportsRange() {
		err = s.conn.Call(ctx, "textDocument/semanticTokens/range", protocol.SemanticTokensRangeParams{TextDocument: doc, Range: ToRange(snap, r)}, &tokens)
	} else {
		err = s.conn.Call(ctx, "textDocument/semanticTokens/full", protocol.SemanticTokensParams{TextDocument: doc}, &tokens)
	}
	if err != nil {
		return nil, s.requestError("semantic tokens", err)
	}
	var out []Span
	for _, t := range tokens.Decode(opts.Legend) {
		start := ToOffset(snap, protocol.Position{Line: t.Line, Character: t.Character})
		end := ToOffset(snap, protocol.Position{Line: t.Line, Character: t.Character + t.Length})
		if end > start && start < r.End && end > r.Start {
			out = append(out, Span{Range: buffer.Range{Start: start, End: end}, Kind: t.Type})
		}
	}
	return out, nil
}

// Diagnostics waits for the server to publish diagnostics for snap and
// returns those overlapping r.
func (s *Server) Diagnostics(ctx context.Context, snap *buffer.Snapshot, r buffer.Range) ([]Diagnostic, error) {
	d, err := s.sync(ctx, snap)
	if err != nil {
		return nil, err
	}
	for {
		s.mu.Lock()
		if !d.snap.Version().Equal(snap.Version()) {
			s.mu.Unlock()
			return nil, fmt.Errorf("%w: document changed while waiting", ErrStale)
		}
		if d.diagVersion == d.version {
			diags := d.diagnostics
			s.mu.Unlock()
			return convertDiagnostics(snap, diags, r), nil
		}
		wait := d.published
		s.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.conn.Done():
			return nil, ErrShutdown
		case <-wait:
		}
	}
}

func convertDiagnostics(snap *buffer.Snapshot, diags []protocol.Diagnostic, r buffer.Range) []Diagnostic {
	out := make([]Diagnostic, 0, len(diags))
	for _, pd := range diags {
		rng := FromRange(snap, pd.Range)
		if rng.End < r.Start || rng.Start > r.End {
			continue
		}
		d := Diagnostic{
			Range:    rng,
			Severity: Severity(pd.Severity),
			Message:  pd.Message,
			Source:   pd.Source,
		}
		if d.Severity == 0 {
			d.Severity = SeverityError
		}
		if pd.Code != nil {
			d.Code = fmt.Sprint(pd.Code)
		}
		out = append(out, d)
	}
	return out
}

// Completions asks the server for completions at offset.
func (s *Server) Completions(ctx context.Context, snap *buffer.Snapshot, offset int) ([]Completion, error) {
	if s.caps.CompletionProvider == nil {
		return nil, ErrNotSupported
	}
	d, err := s.sync(ctx, snap)
	if err != nil {
		return nil, err
	}
	params := protocol.CompletionParams{TextDocumentPositionParams: protocol.TextDocumentPositionParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: d.uri},
		Position:     ToPosition(snap, offset),
	}}
	var raw json.RawMessage
	if err := s.conn.Call(ctx, "textDocument/completion", params, &raw); err != nil {
		return nil, s.requestError("completion", err)
	}
	list, err := protocol.ParseCompletionResult(raw)
	if err != nil {
		return nil, err
	}
	out := make([]Completion, 0, len(list.Items))
	for _, it := range list.Items {
		c := Completion{
			Label:    it.Label,
			Detail:   it.Detail,
			Kind:     it.Kind.String(),
			Range:    buffer.Range{Start: offset, End: offset},
			Text:     cmp.Or(it.InsertText, it.Label),
			SortText: cmp.Or(it.SortText, it.Label),
		}
		if it.TextEdit != nil {
			c.Range = FromRange(snap, it.TextEdit.Range)
			c.Text = it.TextEdit.NewText
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Server) requestError(what string, err error) error {
	var rpcErr *protocol.RPCError
	switch {
	case errors.Is(err, protocol.ErrClosed):
		return ErrShutdown
	case errors.As(err, &rpcErr) && rpcErr.Code == protocol.CodeContentModified:
		return fmt.Errorf("%s: %w", what, ErrStale)
	case errors.As(err, &rpcErr) && rpcErr.Code == protocol.CodeMethodNotFound:
		return fmt.Errorf("%s: %w", what, ErrNotSupported)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// CloseDocument tells the server a buffer is no longer open.
func (s *Server) CloseDocument(ctx context.Context, id buffer.ID) error {
	s.mu.Lock()
	d, ok := s.docs[id]
	delete(s.docs, id)
	if ok {
		delete(s.uris, d.uri)
	}
	s.mu.Unlock()
	if !ok || !d.open {
		return nil
	}
	return s.conn.Notify(ctx, "textDocument/didClose", protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: d.uri},
	})
}

// Shutdown asks the server to exit and closes the connection.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.conn.IsClosed() {
		return nil
	}
	err := s.conn.Call(ctx, "shutdown", nil, nil)
	if err == nil {
		err = s.conn.Notify(ctx, "exit", nil)
	}
	s.conn.Close()
	if s.cmd != nil && err != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	if errors.Is(err, protocol.ErrClosed) {
		return nil
	}
	return err
}
