package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/dshills/strand/internal/buffer"
	"github.com/dshills/strand/internal/clock"
	"github.com/dshills/strand/internal/collab"
	"github.com/dshills/strand/internal/config"
	"github.com/dshills/strand/internal/logging"
	"github.com/dshills/strand/internal/workspace"
)

// runServe hosts documents for collaborators until interrupted. Files
// named on the command line are hosted from the start; any other
// document is created empty when its first collaborator connects.
func runServe(e *env, args []string) (int, error) {
	addr := e.cfg.Collab.Addr
	fs, err := subcommand(e, "serve", "serve [-addr :8090] [files...]", -1, args, func(fs *flag.FlagSet) {
		fs.StringVar(&addr, "addr", addr, "Listen address")
	})
	if err != nil {
		return 2, err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	srv, err := newServer(ctx, e.cfg, e.log)
	if err != nil {
		return 1, err
	}
	defer srv.Close()
	for _, path := range fs.Args() {
		doc, err := srv.session.OpenFile(path)
		if err != nil {
			return 1, err
		}
		if err := srv.host(doc); err != nil {
			return 1, err
		}
		fmt.Fprintf(e.stdout, "%s\t%s\n", doc.Buffer.ID(), path)
	}

	hs := &http.Server{Addr: addr, Handler: srv.routes(), ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- hs.ListenAndServe() }()
	e.log.Info("serving on %s", addr)

	select {
	case err := <-errc:
		return 1, err
	case <-ctx.Done():
	}
	e.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		return 1, err
	}
	return 0, nil
}

// server keeps one replica of every hosted document. The replica takes
// part in the document's hub room like any collaborator, so documents
// outlive their clients and late joiners catch up from it.
type server struct {
	cfg     *config.Config
	log     *logging.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	session *workspace.Session
	hub     *collab.Hub

	mu    sync.Mutex
	peers map[buffer.ID]*collab.Peer
	wg    sync.WaitGroup
}

func newServer(ctx context.Context, cfg *config.Config, log *logging.Logger) (*server, error) {
	session, err := workspace.NewSession(cfg.SessionOptions(log)...)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	return &server{
		cfg:     cfg,
		log:     log.WithComponent("serve"),
		ctx:     ctx,
		cancel:  cancel,
		session: session,
		hub: collab.NewHub(append(cfg.Collab.Options(log),
			collab.WithCheckOrigin(func(*http.Request) bool { return true }))...),
		peers: make(map[buffer.ID]*collab.Peer),
	}, nil
}

func (s *server) routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/docs", s.handleDocs).Methods(http.MethodGet)
	r.HandleFunc("/ws/{doc}", s.handleWS)
	r.HandleFunc("/version/{doc}", s.handleVersion).Methods(http.MethodGet)
	r.HandleFunc("/state/{doc}", s.handleState).Methods(http.MethodGet)
	return r
}

// host joins doc's replica to its hub room.
func (s *server) host(doc *workspace.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startPeerLocked(doc.Buffer)
}

// ensure returns the hosted document id, creating an empty one.
func (s *server) ensure(id buffer.ID) (*workspace.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc, ok := s.session.Get(id); ok {
		return doc, nil
	}
	b := buffer.New("", append(s.cfg.Buffer.Options(), buffer.WithID(id), buffer.WithLogger(s.log))...)
	doc, err := s.session.Attach("", b)
	if err != nil {
		return nil, err
	}
	if err := s.startPeerLocked(b); err != nil {
		return nil, err
	}
	s.log.Info("created document %v", id)
	return doc, nil
}

func (s *server) startPeerLocked(b *buffer.Buffer) error {
	id := b.ID()
	tr, err := s.hub.Join(id)
	if err != nil {
		return err
	}
	peer := collab.NewPeer(b, tr, s.cfg.Collab.Options(s.log)...)
	s.peers[id] = peer
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer tr.Close()
		if err := peer.Run(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Warn("document %v stopped: %v", id, err)
		}
	}()
	return nil
}

func docID(w http.ResponseWriter, r *http.Request) (buffer.ID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["doc"])
	if err != nil {
		http.Error(w, "invalid document id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func (s *server) handleWS(w http.ResponseWriter, r *http.Request) {
	id, ok := docID(w, r)
	if !ok {
		return
	}
	if _, err := s.ensure(id); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	s.hub.ServeWS(w, r, id)
}

// docInfo describes a hosted document.
type docInfo struct {
	ID      buffer.ID        `json:"id"`
	Path    string           `json:"path,omitempty"`
	Version clock.Version    `json:"version"`
	Length  int              `json:"length"`
	Lines   int              `json:"lines"`
	Members int              `json:"members"`
	Peer    collab.PeerStats `json:"peer"`
}

func (s *server) info(doc *workspace.Document) docInfo {
	snap := doc.Buffer.Snapshot()
	id := doc.Buffer.ID()
	info := docInfo{
		ID:      id,
		Path:    doc.Path,
		Version: snap.Version(),
		Length:  snap.Len(),
		Lines:   snap.LineCount(),
		Members: s.hub.Members(id),
	}
	s.mu.Lock()
	if p := s.peers[id]; p != nil {
		info.Peer = p.Stats()
	}
	s.mu.Unlock()
	return info
}

// handleDocs lists the hosted documents in the order they were opened.
func (s *server) handleDocs(w http.ResponseWriter, _ *http.Request) {
	bufs := s.session.Buffers()
	out := make([]docInfo, 0, len(bufs))
	for _, b := range bufs {
		if doc, ok := s.session.Get(b.ID()); ok {
			out = append(out, s.info(doc))
		}
	}
	writeJSON(w, out)
}

func (s *server) handleVersion(w http.ResponseWriter, r *http.Request) {
	id, ok := docID(w, r)
	if !ok {
		return
	}
	doc, ok := s.session.Get(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, s.info(doc))
}

// handleState returns the full replica state. A collaborator restores it
// before connecting to join a document that did not start empty.
func (s *server) handleState(w http.ResponseWriter, r *http.Request) {
	id, ok := docID(w, r)
	if !ok {
		return
	}
	doc, ok := s.session.Get(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, doc.Buffer.Export())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Default().Warn("write response: %v", err)
	}
}

// Close stops every document replica and the hub.
func (s *server) Close() error {
	s.cancel()
	s.hub.Close()
	s.wg.Wait()
	return s.session.Close()
}
