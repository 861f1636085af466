// Package watcher compares service orders dropped into the inbox folder.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"oscheck/internal/config"
	"oscheck/internal/pipeline"
)

const defaultDebounce = 500 * time.Millisecond

// DocumentExtensions are the file types the inbox accepts.
var DocumentExtensions = []string{".pdf", ".html", ".htm", ".txt"}

// Watcher calls onFile once a matching file in dir stops changing for the
// debounce interval.
type Watcher struct {
	dir         string
	extensions  []string
	debounce    time.Duration
	onFile      func(path string)
	logger      *zap.Logger
	mu          sync.Mutex
	debounceMap map[string]*time.Timer
}

func New(dir string, extensions []string, debounce time.Duration, onFile func(path string), logger *zap.Logger) *Watcher {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		dir:         filepath.Clean(dir),
		extensions:  extensions,
		debounce:    debounce,
		onFile:      onFile,
		logger:      logger,
		debounceMap: make(map[string]*time.Timer),
	}
}

// Run watches until ctx is cancelled. The directory is created when missing.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return err
	}
	w.logger.Info("inbox watcher started", zap.String("dir", w.dir), zap.Strings("extensions", w.extensions))

	defer w.stopTimers()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("inbox watcher stopped")
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if !matchExtension(ev.Name, w.extensions) {
		return
	}
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", ev.Name))
	switch {
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		w.schedule(ev.Name)
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		w.cancel(ev.Name)
	}
}

func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
	}
	w.debounceMap[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.debounceMap, path)
		w.mu.Unlock()
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			return
		}
		w.onFile(path)
	})
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
		delete(w.debounceMap, path)
	}
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.debounceMap {
		t.Stop()
		delete(w.debounceMap, path)
	}
}

func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range extensions {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

// NewInbox wires a watcher on cfg.InboxDir that compares each arriving
// document against the default sheet.
func NewInbox(cfg config.Config, svc *pipeline.ComparisonService, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	compare := func(path string) {
		input, err := pipeline.LoadDocumentFile(path, "")
		if err != nil {
			logger.Warn("inbox document not loaded", zap.String("path", path), zap.Error(err))
			return
		}
		res, err := svc.CompareDocument(context.Background(), input, "", nil)
		if err != nil {
			logger.Error("inbox comparison failed", zap.String("path", path), zap.Error(err))
			return
		}
		logger.Info("inbox document compared",
			zap.String("document", input.Name),
			zap.String("comparison_id", res.Comparison.ID),
			zap.Int("score", res.Comparison.Report.MatchScore),
			zap.String("note", res.Comparison.Report.ComparisonNote),
		)
	}
	return New(cfg.InboxDir, DocumentExtensions, time.Duration(cfg.WatchDebounceMs)*time.Millisecond, compare, logger)
}
