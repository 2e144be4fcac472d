package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dshills/strand/internal/buffer"
	"github.com/dshills/strand/internal/diff"
	"github.com/dshills/strand/internal/event"
	"github.com/dshills/strand/internal/logging"
	"github.com/dshills/strand/internal/lsp"
	"github.com/dshills/strand/internal/syntax"
)

// Document is an open buffer with the layers that follow it.
type Document struct {
	Buffer   *buffer.Buffer
	Path     string
	Language string
	Syntax   *syntax.Layer
	Diff     *diff.Overlay
	// LSP is nil unless the session has a connector.
	LSP *lsp.Store

	detach func()
}

// Session is the registry of open documents. It is created when an
// editing session starts and closed when it ends; nothing is shared
// between sessions.
type Session struct {
	cfg     settings
	bus     *event.Bus
	ownsBus bool
	log     *logging.Logger
	watcher *DiskWatcher
	sub     *event.Subscription

	mu     sync.RWMutex
	docs   map[buffer.ID]*Document
	byPath map[string]buffer.ID
	order  []buffer.ID
	closed bool
}

// NewSession starts a session.
func NewSession(opts ...Option) (*Session, error) {
	cfg := settings{log: logging.Null}
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Session{
		cfg:    cfg,
		bus:    cfg.bus,
		log:    cfg.log.WithComponent("workspace"),
		docs:   make(map[buffer.ID]*Document),
		byPath: make(map[string]buffer.ID),
	}
	if s.bus == nil {
		s.bus = event.NewBus(event.WithLogger(cfg.log))
		if err := s.bus.Start(); err != nil {
			return nil, err
		}
		s.ownsBus = true
	}
	if cfg.watch {
		w, err := NewDiskWatcher(s.bus, cfg.debounce, cfg.log)
		if err != nil {
			s.stopBus()
			return nil, err
		}
		s.watcher = w
		s.sub, err = s.bus.Subscribe(event.WorkspaceFileChanged, event.Typed(s.onFileChanged),
			event.WithDeliveryMode(event.DeliveryAsync))
		if err != nil {
			w.Close()
			s.stopBus()
			return nil, err
		}
	}
	return s, nil
}

// Bus returns the bus documents publish on.
func (s *Session) Bus() *event.Bus {
	return s.bus
}

// Open creates a document holding text. name picks the language and may
// be empty.
func (s *Session) Open(name, text string) (*Document, error) {
	return s.open(name, "", s.newBuffer(text), text)
}

// Attach registers an existing buffer, such as a replica of a shared
// document, under name. Its current text becomes the diff reference.
func (s *Session) Attach(name string, b *buffer.Buffer) (*Document, error) {
	if _, ok := s.Get(b.ID()); ok {
		return nil, fmt.Errorf("%w: %v", ErrAlreadyOpen, b.ID())
	}
	return s.open(name, "", b, b.Text())
}

// OpenFile reads path into a new document. The file's content becomes
// the diff reference.
func (s *Session) OpenFile(path string) (*Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	_, open := s.byPath[abs]
	s.mu.RUnlock()
	if open {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyOpen, abs)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("workspace: open %s: %w", path, err)
	}
	return s.open(abs, abs, s.newBuffer(string(data)), string(data))
}

func (s *Session) newBuffer(text string) *buffer.Buffer {
	return buffer.New(text, append(slices.Clone(s.cfg.bufferOpts), buffer.WithLogger(s.cfg.log))...)
}

func (s *Session) open(name, path string, b *buffer.Buffer, reference string) (*Document, error) {
	tok := s.tokenizer(name)
	doc := &Document{
		Buffer:   b,
		Path:     path,
		Language: tok.Language(),
		Syntax: syntax.NewLayer(b, syntax.NewBlockParser(tok),
			append([]syntax.LayerOption{syntax.WithBus(s.bus), syntax.WithLayerLogger(s.cfg.log)}, s.cfg.syntaxOpts...)...),
		Diff: diff.New(b,
			append([]diff.Option{diff.WithBus(s.bus), diff.WithLogger(s.cfg.log)}, s.cfg.diffOpts...)...),
	}
	if s.cfg.connector != nil {
		doc.LSP = lsp.NewStore(b, lsp.WithBus(s.bus), lsp.WithLogger(s.cfg.log))
		if binder, ok := s.cfg.connector.(interface{ Bind(buffer.ID, string) }); ok && path != "" {
			binder.Bind(b.ID(), path)
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if _, dup := s.docs[b.ID()]; dup {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", ErrAlreadyOpen, b.ID())
	}
	if path != "" {
		if _, dup := s.byPath[path]; dup {
			s.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", ErrAlreadyOpen, path)
		}
		s.byPath[path] = b.ID()
	}
	s.docs[b.ID()] = doc
	s.order = append(s.order, b.ID())
	s.mu.Unlock()

	doc.detach = event.BridgeBuffer(s.bus, b)
	doc.Diff.SetReference(reference)
	doc.Diff.Start()
	doc.Syntax.Start()
	if path != "" && s.watcher != nil {
		if err := s.watcher.Add(path); err != nil {
			s.log.Warn("not watching %s: %v", path, err)
		}
	}
	s.log.Info("opened %s (%s, %d bytes)", displayName(name, b.ID()), doc.Language, b.Len())
	return doc, nil
}

func displayName(name string, id buffer.ID) string {
	if name == "" {
		return "untitled:" + id.String()[:8]
	}
	return name
}

func (s *Session) tokenizer(name string) syntax.Tokenizer {
	if lang, ok := s.cfg.languages[strings.ToLower(filepath.Ext(name))]; ok {
		return syntax.TokenizerForLanguage(lang)
	}
	return syntax.TokenizerForFile(name)
}

// Get returns the document of a buffer.
func (s *Session) Get(id buffer.ID) (*Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[id]
	return d, ok
}

// Lookup returns the document open for path.
func (s *Session) Lookup(path string) (*Document, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPath[abs]
	if !ok {
		return nil, false
	}
	return s.docs[id], true
}

// Buffers returns the open buffers in the order they were opened.
func (s *Session) Buffers() []*buffer.Buffer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*buffer.Buffer, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.docs[id].Buffer)
	}
	return out
}

// ReloadReference rereads a file document's content from disk and makes
// it the diff reference. The buffer is not touched.
func (s *Session) ReloadReference(id buffer.ID) error {
	doc, ok := s.Get(id)
	if !ok {
		return fmt.Errorf("%w: %v", ErrBufferNotFound, id)
	}
	if doc.Path == "" {
		return ErrNotFile
	}
	data, err := os.ReadFile(doc.Path)
	if err != nil {
		return fmt.Errorf("workspace: reload %s: %w", doc.Path, err)
	}
	doc.Diff.SetReference(string(data))
	s.log.Debug("reloaded reference of %s", doc.Path)
	return nil
}

// RefreshLSP asks the connector for a document's highlights and
// diagnostics.
func (s *Session) RefreshLSP(ctx context.Context, id buffer.ID) error {
	doc, ok := s.Get(id)
	if !ok {
		return fmt.Errorf("%w: %v", ErrBufferNotFound, id)
	}
	if doc.LSP == nil {
		return ErrNoConnector
	}
	return doc.LSP.Refresh(ctx, s.cfg.connector)
}

func (s *Session) onFileChanged(_ context.Context, e event.Event[FileChange]) error {
	ch := e.Payload
	s.mu.RLock()
	id, ok := s.byPath[ch.Path]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	if ch.Op.Has(OpRemove) || ch.Op.Has(OpRename) {
		if _, err := os.Stat(ch.Path); err != nil {
			s.log.Warn("%s was removed on disk; keeping the last reference", ch.Path)
			return nil
		}
	}
	return s.ReloadReference(id)
}

// CloseBuffer closes one document and stops its layers.
func (s *Session) CloseBuffer(id buffer.ID) error {
	s.mu.Lock()
	doc, ok := s.docs[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrBufferNotFound, id)
	}
	delete(s.docs, id)
	s.order = slices.DeleteFunc(s.order, func(x buffer.ID) bool { return x == id })
	if doc.Path != "" {
		delete(s.byPath, doc.Path)
	}
	s.mu.Unlock()
	return s.shutdown(doc)
}

func (s *Session) shutdown(doc *Document) error {
	doc.Syntax.Close()
	doc.Diff.Close()
	doc.detach()
	var err error
	if doc.Path != "" && s.watcher != nil {
		err = s.watcher.Remove(doc.Path)
	}
	if closer, ok := s.cfg.connector.(interface {
		CloseDocument(context.Context, buffer.ID) error
	}); ok {
		if cerr := closer.CloseDocument(context.Background(), doc.Buffer.ID()); cerr != nil {
			s.log.Debug("close %v on language server: %v", doc.Buffer.ID(), cerr)
		}
	}
	return err
}

// Close closes every document, stops the watcher and, if the session
// created it, the bus.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	docs := make([]*Document, 0, len(s.order))
	for _, id := range s.order {
		docs = append(docs, s.docs[id])
	}
	s.docs = make(map[buffer.ID]*Document)
	s.byPath = make(map[string]buffer.ID)
	s.order = nil
	s.mu.Unlock()

	if s.sub != nil {
		s.sub.Cancel()
	}
	var errs []error
	for _, doc := range docs {
		errs = append(errs, s.shutdown(doc))
	}
	if s.watcher != nil {
		errs = append(errs, s.watcher.Close())
	}
	s.stopBus()
	s.log.Info("session closed, %d documents", len(docs))
	return errors.Join(errs...)
}

func (s *Session) stopBus() {
	if s.ownsBus {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.bus.Stop(ctx); err != nil {
			s.log.Warn("stop bus: %v", err)
		}
	}
}
