package workspace

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dshills/strand/internal/event"
	"github.com/dshills/strand/internal/logging"
)

// Op is a set of file system operations.
type Op uint32

const (
	OpCreate Op = 1 << iota
	OpWrite
	OpRemove
	OpRename
)

// Has reports whether op includes o.
func (op Op) Has(o Op) bool {
	return op&o == o
}

func (op Op) String() string {
	var s string
	for _, n := range []struct {
		op   Op
		name string
	}{{OpCreate, "CREATE"}, {OpWrite, "WRITE"}, {OpRemove, "REMOVE"}, {OpRename, "RENAME"}} {
		if op.Has(n.op) {
			if s != "" {
				s += "|"
			}
			s += n.name
		}
	}
	if s == "" {
		return "NONE"
	}
	return s
}

func convertOp(op fsnotify.Op) Op {
	var out Op
	if op.Has(fsnotify.Create) {
		out |= OpCreate
	}
	if op.Has(fsnotify.Write) {
		out |= OpWrite
	}
	if op.Has(fsnotify.Remove) {
		out |= OpRemove
	}
	if op.Has(fsnotify.Rename) {
		out |= OpRename
	}
	return out
}

// FileChange is published under event.WorkspaceFileChanged when a watched
// file changes on disk.
type FileChange struct {
	Path      string
	Op        Op
	Timestamp time.Time
}

// DiskWatcher reports changes to individual files. It watches their
// directories, because editors often save by renaming a new file over the
// old one, and coalesces bursts of operations on one file into one
// FileChange published after the debounce delay.
type DiskWatcher struct {
	fsw   *fsnotify.Watcher
	bus   *event.Bus
	log   *logging.Logger
	delay time.Duration

	mu      sync.Mutex
	files   map[string]bool
	dirs    map[string]int
	pending map[string]*pendingChange
	closed  bool

	done chan struct{}
	wg   sync.WaitGroup
}

type pendingChange struct {
	change FileChange
	timer  *time.Timer
}

// NewDiskWatcher creates a watcher that publishes on bus.
func NewDiskWatcher(bus *event.Bus, delay time.Duration, log *logging.Logger) (*DiskWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("workspace: watcher: %w", err)
	}
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	w := &DiskWatcher{
		fsw:     fsw,
		bus:     bus,
		log:     logging.OrNull(log).WithComponent("workspace.watcher"),
		delay:   delay,
		files:   make(map[string]bool),
		dirs:    make(map[string]int),
		pending: make(map[string]*pendingChange),
		done:    make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// Add starts reporting changes to path.
func (w *DiskWatcher) Add(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWatcherClosed
	}
	if w.files[abs] {
		return nil
	}
	dir := filepath.Dir(abs)
	if w.dirs[dir] == 0 {
		if err := w.fsw.Add(dir); err != nil {
			return fmt.Errorf("workspace: watch %s: %w", dir, err)
		}
	}
	w.dirs[dir]++
	w.files[abs] = true
	return nil
}

// Remove stops reporting changes to path.
func (w *DiskWatcher) Remove(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || !w.files[abs] {
		return nil
	}
	delete(w.files, abs)
	if p := w.pending[abs]; p != nil {
		p.timer.Stop()
		delete(w.pending, abs)
	}
	dir := filepath.Dir(abs)
	if w.dirs[dir]--; w.dirs[dir] == 0 {
		delete(w.dirs, dir)
		if err := w.fsw.Remove(dir); err != nil && !errors.Is(err, fsnotify.ErrNonExistentWatch) {
			return err
		}
	}
	return nil
}

// Close stops watching. Pending changes are dropped.
func (w *DiskWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.done)
	for path, p := range w.pending {
		p.timer.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()
	err := w.fsw.Close()
	w.wg.Wait()
	return err
}

// Flush publishes pending changes now.
func (w *DiskWatcher) Flush() {
	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for path, p := range w.pending {
		p.timer.Stop()
		paths = append(paths, path)
	}
	w.mu.Unlock()
	for _, path := range paths {
		w.fire(path)
	}
}

func (w *DiskWatcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error: %v", err)
		}
	}
}

func (w *DiskWatcher) handle(ev fsnotify.Event) {
	op := convertOp(ev.Op)
	if op == 0 {
		return
	}
	path := filepath.Clean(ev.Name)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || !w.files[path] {
		return
	}
	if p := w.pending[path]; p != nil {
		p.change.Op |= op
		p.change.Timestamp = time.Now()
		p.timer.Reset(w.delay)
		return
	}
	w.pending[path] = &pendingChange{
		change: FileChange{Path: path, Op: op, Timestamp: time.Now()},
		timer:  time.AfterFunc(w.delay, func() { w.fire(path) }),
	}
}

func (w *DiskWatcher) fire(path string) {
	w.mu.Lock()
	p := w.pending[path]
	delete(w.pending, path)
	closed := w.closed
	w.mu.Unlock()
	if p == nil || closed {
		return
	}
	w.log.Debug("%s %s", p.change.Op, path)
	err := w.bus.Publish(context.Background(), event.NewEvent(event.WorkspaceFileChanged, p.change, "workspace"))
	if err != nil && !errors.Is(err, event.ErrBusNotRunning) {
		w.log.Warn("publish change of %s: %v", path, err)
	}
}
