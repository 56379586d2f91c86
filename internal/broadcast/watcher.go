package broadcast

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/imishinist/runboard/internal/discovery"
	"github.com/imishinist/runboard/internal/store"
)

// Watch modes accepted by NewWatcher.
const (
	ModeAuto     = "auto"
	ModeFSNotify = "fsnotify"
	ModePoll     = "poll"
)

// DefaultInterval is how often watchers rescan for new runs, and how often
// the poll watcher re-stats run files.
const DefaultInterval = 2 * time.Second

// Change is an observed mutation under a run directory.
type Change struct {
	Run  discovery.Candidate
	Path string
	Time time.Time
}

// Watcher reports run mutations until ctx is cancelled, then closes the channel.
type Watcher interface {
	Watch(ctx context.Context) (<-chan Change, error)
}

// Source lists the runs to watch. *discovery.Scanner satisfies it.
type Source interface {
	Scan(ctx context.Context) []discovery.Candidate
}

// NewWatcher builds the watcher for mode. In auto mode a failure to set up
// native notifications falls back to polling.
func NewWatcher(mode string, src Source, interval time.Duration, logger *slog.Logger) (Watcher, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	switch mode {
	case ModePoll:
		return NewPollWatcher(src, interval, logger), nil
	case ModeFSNotify:
		return NewFSNotifyWatcher(src, interval, logger)
	case ModeAuto, "":
		w, err := NewFSNotifyWatcher(src, interval, logger)
		if err != nil {
			logger.Warn("native file watching unavailable, polling instead", "error", err)
			return NewPollWatcher(src, interval, logger), nil
		}
		return w, nil
	default:
		return nil, fmt.Errorf("unknown watch mode %q (valid: auto, fsnotify, poll)", mode)
	}
}

// watchedDirs are the directories of a run whose entries signal progress.
func watchedDirs(runDir string) []string {
	return []string{
		runDir,
		filepath.Join(runDir, store.PlotsDir),
		filepath.Join(runDir, store.SamplesDir),
	}
}

// FSNotifyWatcher uses OS file notifications. The watch set follows the
// discovered runs and is re-synced every interval, and immediately when a new
// entry appears in a runs root.
type FSNotifyWatcher struct {
	src      Source
	interval time.Duration
	logger   *slog.Logger
	fsw      *fsnotify.Watcher

	watched map[string]discovery.Candidate
	roots   map[string]bool
}

func NewFSNotifyWatcher(src Source, interval time.Duration, logger *slog.Logger) (*FSNotifyWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &FSNotifyWatcher{
		src:      src,
		interval: interval,
		logger:   logger,
		fsw:      fsw,
		watched:  make(map[string]discovery.Candidate),
		roots:    make(map[string]bool),
	}, nil
}

func (w *FSNotifyWatcher) Watch(ctx context.Context) (<-chan Change, error) {
	w.sync(ctx)

	out := make(chan Change)
	go func() {
		defer close(out)
		defer w.fsw.Close()

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.sync(ctx)
			case err, ok := <-w.fsw.Errors:
				if !ok {
					return
				}
				w.logger.Warn("file watcher error", "error", err)
			case ev, ok := <-w.fsw.Events:
				if !ok {
					return
				}
				c, found := w.handle(ctx, ev)
				if !found {
					continue
				}
				select {
				case out <- c:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (w *FSNotifyWatcher) handle(ctx context.Context, ev fsnotify.Event) (Change, bool) {
	if store.IsTempFile(ev.Name) || ev.Op == fsnotify.Chmod {
		return Change{}, false
	}

	dir := filepath.Dir(ev.Name)
	if run, ok := w.lookup(ev.Name, dir); ok {
		if ev.Has(fsnotify.Create) && run.Path == dir {
			// plots/ or samples/ created after the run started.
			for _, d := range watchedDirs(run.Path)[1:] {
				if d == ev.Name {
					w.add(d, run)
				}
			}
		}
		return Change{Run: run, Path: ev.Name, Time: time.Now()}, true
	}

	// A new run directory in a watched root.
	if w.roots[dir] && ev.Has(fsnotify.Create) {
		w.sync(ctx)
		if run, ok := w.watched[ev.Name]; ok {
			return Change{Run: run, Path: ev.Name, Time: time.Now()}, true
		}
	}
	return Change{}, false
}

func (w *FSNotifyWatcher) lookup(name, dir string) (discovery.Candidate, bool) {
	if run, ok := w.watched[dir]; ok {
		return run, true
	}
	run, ok := w.watched[name]
	return run, ok && run.Path == name
}

// sync makes the watch set match the current scan.
func (w *FSNotifyWatcher) sync(ctx context.Context) {
	want := make(map[string]discovery.Candidate)
	roots := make(map[string]bool)
	for _, c := range w.src.Scan(ctx) {
		roots[filepath.Dir(c.Path)] = true
		for _, d := range watchedDirs(c.Path) {
			want[d] = c
		}
	}

	for dir := range w.watched {
		if _, ok := want[dir]; !ok {
			_ = w.fsw.Remove(dir)
			delete(w.watched, dir)
		}
	}
	for dir, c := range want {
		if _, ok := w.watched[dir]; !ok {
			w.add(dir, c)
		}
	}

	for root := range w.roots {
		if !roots[root] {
			_ = w.fsw.Remove(root)
			delete(w.roots, root)
		}
	}
	for root := range roots {
		if w.roots[root] {
			continue
		}
		if err := w.fsw.Add(root); err != nil {
			w.logger.Debug("cannot watch runs root", "dir", root, "error", err)
			continue
		}
		w.roots[root] = true
	}
}

func (w *FSNotifyWatcher) add(dir string, c discovery.Candidate) {
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return
	}
	if err := w.fsw.Add(dir); err != nil {
		w.logger.Debug("cannot watch directory", "dir", dir, "error", err)
		return
	}
	w.watched[dir] = c
}

// PollWatcher re-stats run files every interval and reports runs whose
// fingerprint changed. Runs present on the first pass form the baseline.
type PollWatcher struct {
	src      Source
	interval time.Duration
	logger   *slog.Logger
}

func NewPollWatcher(src Source, interval time.Duration, logger *slog.Logger) *PollWatcher {
	return &PollWatcher{src: src, interval: interval, logger: logger}
}

func (w *PollWatcher) Watch(ctx context.Context) (<-chan Change, error) {
	last := w.fingerprints(ctx)

	out := make(chan Change)
	go func() {
		defer close(out)

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			current := w.fingerprints(ctx)
			for _, fp := range current {
				if prev, ok := last[fp.run.Path]; ok && prev.sig == fp.sig {
					continue
				}
				select {
				case out <- Change{Run: fp.run, Path: fp.run.Path, Time: time.Now()}:
				case <-ctx.Done():
					return
				}
			}
			last = current
		}
	}()
	return out, nil
}

type fingerprint struct {
	run discovery.Candidate
	sig signature
}

type signature struct {
	files   int
	size    int64
	modTime time.Time
}

func (w *PollWatcher) fingerprints(ctx context.Context) map[string]fingerprint {
	out := make(map[string]fingerprint)
	for _, c := range w.src.Scan(ctx) {
		out[c.Path] = fingerprint{run: c, sig: stat(c.Path)}
	}
	return out
}

// stat summarizes the top-level files of a run plus its plots and samples.
func stat(runDir string) signature {
	var sig signature
	for _, dir := range watchedDirs(runDir) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.Type().IsRegular() || store.IsTempFile(e.Name()) {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			sig.files++
			sig.size += info.Size()
			if info.ModTime().After(sig.modTime) {
				sig.modTime = info.ModTime()
			}
		}
	}
	return sig
}
