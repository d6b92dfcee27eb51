// Package watch reports batched changes to source and project files under a
// workspace root.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"kmpls/internal/project"
)

// Op is the kind of a file change.
type Op uint8

const (
	OpCreate Op = iota
	OpWrite
	OpRemove
)

func (op Op) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpWrite:
		return "write"
	case OpRemove:
		return "remove"
	}
	return "unknown"
}

// Change is one debounced file event.
type Change struct {
	Path   string
	Op     Op
	Config bool // project configuration file rather than a source file
}

// Handler receives one batch; it runs on the watcher goroutine.
type Handler func([]Change)

// Options configures a Watcher.
type Options struct {
	Debounce time.Duration
	Logger   *slog.Logger
	// Buffer is the capacity of the pending event queue.
	Buffer int
}

// Watcher watches a directory tree recursively.
type Watcher struct {
	root     string
	fsw      *fsnotify.Watcher
	handler  Handler
	debounce time.Duration
	log      *slog.Logger

	changes  chan Change
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
	started  bool
	mu       sync.Mutex
}

// New prepares a watcher for root; call Start to begin.
func New(root string, handler Handler, opts Options) (*Watcher, error) {
	if handler == nil {
		return nil, errors.New("watch: nil handler")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 200 * time.Millisecond
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 1024
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Watcher{
		root:     root,
		fsw:      fsw,
		handler:  handler,
		debounce: opts.Debounce,
		log:      log,
		changes:  make(chan Change, opts.Buffer),
		done:     make(chan struct{}),
	}, nil
}

// Start registers every directory under root and spawns the event and
// debounce goroutines. Both exit on Stop or when ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	if err := w.addRecursive(w.root); err != nil {
		return err
	}
	w.started = true
	w.wg.Add(2)
	go w.processEvents(ctx)
	go w.debounceLoop(ctx)
	return nil
}

// Stop closes the watcher and waits for its goroutines. Pending changes are
// flushed to the handler.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.fsw.Close()
		w.wg.Wait()
	})
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && project.SkipDir(d.Name()) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// classify reports whether an event path is interesting and whether it is a
// configuration file.
func classify(path string) (keep, config bool) {
	if project.IsConfigFile(path) {
		return true, true
	}
	return project.IsSourceFile(filepath.Base(path)), false
}

func convertOp(op fsnotify.Op) Op {
	switch {
	case op.Has(fsnotify.Create):
		return OpCreate
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return OpRemove
	}
	return OpWrite
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if !project.SkipDir(info.Name()) {
						if err := w.addRecursive(ev.Name); err != nil {
							w.log.Debug("watch new directory", "path", ev.Name, "err", err)
						}
					}
					continue
				}
			}
			keep, config := classify(ev.Name)
			if !keep || ev.Op == fsnotify.Chmod {
				continue
			}
			select {
			case w.changes <- Change{Path: ev.Name, Op: convertOp(ev.Op), Config: config}:
			default:
				w.log.Warn("watch queue full, event dropped", "path", ev.Name)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", "err", err)
		}
	}
}

func (w *Watcher) debounceLoop(ctx context.Context) {
	defer w.wg.Done()
	var (
		batch  []Change
		timer  *time.Timer
		timerC <-chan time.Time
	)
	flush := func() {
		if len(batch) > 0 {
			w.handler(dedupe(batch))
			batch = nil
		}
		if timer != nil {
			timer.Stop()
			timer, timerC = nil, nil
		}
	}
	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-w.done:
			flush()
			return
		case c := <-w.changes:
			batch = append(batch, c)
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			timer, timerC = nil, nil
			flush()
		}
	}
}

// dedupe keeps the latest change per path, in order of first appearance.
// A create followed by writes stays a create.
func dedupe(changes []Change) []Change {
	seen := make(map[string]int, len(changes))
	out := make([]Change, 0, len(changes))
	for _, c := range changes {
		i, ok := seen[c.Path]
		if !ok {
			seen[c.Path] = len(out)
			out = append(out, c)
			continue
		}
		if out[i].Op == OpCreate && c.Op == OpWrite {
			continue
		}
		out[i] = c
	}
	return out
}
