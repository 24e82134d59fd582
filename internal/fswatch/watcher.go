// Package fswatch turns raw file-creation events into rule-matched actions.
// New files are debounced until writes settle, evaluated against the folder's
// rules, and moved/renamed accordingly. Every processed file yields exactly
// one activity entry; per-file errors never stop the watcher.
package fswatch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/sortwatch/sortwatch/internal/events"
	"github.com/sortwatch/sortwatch/internal/rules"
	"github.com/sortwatch/sortwatch/internal/types"
)

// State is the watcher lifecycle state.
type State int

const (
	Stopped State = iota
	Running
	Paused
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Paused:
		return "paused"
	default:
		return "stopped"
	}
}

// FileEvaluator classifies one file against the rules.
type FileEvaluator interface {
	EvaluateFile(ctx context.Context, item rules.FileItem, rs []types.Rule) rules.FileResult
}

// ActivityRecorder persists one audit entry per processed file.
type ActivityRecorder interface {
	AppendFSActivity(e types.ActivityEntry) error
}

// Stats tracks watcher activity.
type Stats struct {
	FilesSeen  int
	FilesMoved int
	Skipped    int
	Errors     int
}

// Watcher monitors one folder non-recursively.
type Watcher struct {
	cfg      types.WatcherConfig
	eval     FileEvaluator
	recorder ActivityRecorder
	bus      *events.Bus
	log      *zap.Logger
	debounce time.Duration

	mu       sync.Mutex
	state    State
	pending  map[string]time.Time // path -> last write
	stats    Stats
	notifier *fsnotify.Watcher
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New builds a watcher for the folder in cfg. debounce is the write-stability
// window; zero means 2s.
func New(cfg types.WatcherConfig, eval FileEvaluator, recorder ActivityRecorder, bus *events.Bus, log *zap.Logger, debounce time.Duration) *Watcher {
	if log == nil {
		log = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &Watcher{
		cfg:      cfg,
		eval:     eval,
		recorder: recorder,
		bus:      bus,
		log:      log,
		debounce: debounce,
		pending:  make(map[string]time.Time),
	}
}

// State returns the current lifecycle state.
func (w *Watcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Stats returns a copy of the counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// Start begins monitoring. Fails if the watcher is already running or paused.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.state != Stopped {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running for %s", w.cfg.Folder)
	}

	notifier, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return fmt.Errorf("create notifier: %w", err)
	}
	if err := notifier.Add(w.cfg.Folder); err != nil {
		notifier.Close()
		w.mu.Unlock()
		return fmt.Errorf("watch %s: %w", w.cfg.Folder, err)
	}

	w.notifier = notifier
	w.state = Running
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	go w.run(ctx)

	w.publish(events.WatcherStarted)
	w.log.Info("watching folder", zap.String("folder", w.cfg.Folder))
	return nil
}

// Pause suspends event handling without tearing down the monitor.
func (w *Watcher) Pause() {
	w.mu.Lock()
	if w.state == Running {
		w.state = Paused
	}
	w.mu.Unlock()
	w.publish(events.WatcherPaused)
}

// Resume re-enables event handling.
func (w *Watcher) Resume() {
	w.mu.Lock()
	if w.state == Paused {
		w.state = Running
	}
	w.mu.Unlock()
	w.publish(events.WatcherResumed)
}

// Stop tears down the monitor and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.state == Stopped {
		w.mu.Unlock()
		return
	}
	w.state = Stopped
	stopCh := w.stopCh
	doneCh := w.doneCh
	w.mu.Unlock()

	close(stopCh)
	<-doneCh

	if err := w.notifier.Close(); err != nil {
		w.log.Warn("closing notifier", zap.Error(err))
	}
	w.publish(events.WatcherStopped)
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.notifier.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.notifier.Errors:
			if !ok {
				return
			}
			w.log.Warn("notifier error", zap.Error(err))
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
		case <-ticker.C:
			w.processSettled(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	if w.ignored(event.Name) {
		return
	}

	w.mu.Lock()
	if w.state != Running {
		w.mu.Unlock()
		return
	}
	if _, seen := w.pending[event.Name]; !seen && event.Op&fsnotify.Create != 0 {
		w.stats.FilesSeen++
	}
	w.pending[event.Name] = time.Now()
	w.mu.Unlock()
}

// processSettled processes files whose last write is older than the debounce
// window.
func (w *Watcher) processSettled(ctx context.Context) {
	now := time.Now()

	w.mu.Lock()
	if w.state != Running {
		w.mu.Unlock()
		return
	}
	var ready []string
	for path, last := range w.pending {
		if now.Sub(last) >= w.debounce {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	for _, path := range ready {
		w.processFile(ctx, path)
	}
}

// ignored filters dotfiles, temp/partial-download suffixes, directories, and
// the watcher's own activity log.
func (w *Watcher) ignored(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") {
		return true
	}
	for _, suffix := range []string{".part", ".partial", ".crdownload", ".download", ".tmp", "~"} {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	if w.cfg.LogPath != "" && path == w.cfg.LogPath {
		return true
	}
	return false
}

func (w *Watcher) processFile(ctx context.Context, path string) {
	// Races are expected: the file may be gone by the time it settles.
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return
		}
		w.record(types.ActivityEntry{
			Time: types.Now(), File: filepath.Base(path), Action: "error",
			Error: err.Error(),
		})
		return
	}
	if info.IsDir() {
		return
	}

	item := rules.FileItem{
		Name: filepath.Base(path),
		Ext:  filepath.Ext(path),
		Size: info.Size(),
	}
	if mime := imageMIME(item.Ext); mime != "" {
		if data, err := os.ReadFile(path); err == nil {
			item.ImageData = data
			item.ImageMIME = mime
		}
	}

	res := w.eval.EvaluateFile(ctx, item, w.cfg.EnabledRules())

	if res.Action != rules.ActionMove {
		if res.Err != "" {
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
			w.record(types.ActivityEntry{
				Time: types.Now(), File: item.Name, Action: "error",
				MatchedRule: res.MatchedRule, Confidence: res.Confidence,
				UsedAI: res.UsedAI, Error: res.Err,
			})
			return
		}
		w.mu.Lock()
		w.stats.Skipped++
		w.mu.Unlock()
		w.record(types.ActivityEntry{
			Time: types.Now(), File: item.Name, Action: "skipped",
			MatchedRule: res.MatchedRule, Confidence: res.Confidence,
			UsedAI: res.UsedAI,
		})
		return
	}

	destName := item.Name
	renamed := false
	if res.Rename != "" && res.Rename != item.Name {
		destName = res.Rename
		renamed = true
	}

	destDir := filepath.Join(w.cfg.Folder, res.Destination)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		w.recordError(item.Name, res, fmt.Errorf("create destination: %w", err))
		return
	}

	destPath := ResolveCollision(destDir, destName)
	if err := os.Rename(path, destPath); err != nil {
		w.recordError(item.Name, res, fmt.Errorf("move: %w", err))
		return
	}

	action := "moved"
	if renamed {
		action = "renamed"
	}
	w.mu.Lock()
	w.stats.FilesMoved++
	w.mu.Unlock()
	w.record(types.ActivityEntry{
		Time: types.Now(), File: item.Name, Action: action,
		Destination: destPath, MatchedRule: res.MatchedRule,
		Confidence: res.Confidence, UsedAI: res.UsedAI,
	})
	if w.bus != nil {
		w.bus.Publish(events.Event{Kind: events.ItemProcessed, Source: w.cfg.Folder, Payload: destPath})
	}
}

func (w *Watcher) recordError(file string, res rules.FileResult, err error) {
	w.mu.Lock()
	w.stats.Errors++
	w.mu.Unlock()
	w.record(types.ActivityEntry{
		Time: types.Now(), File: file, Action: "error",
		MatchedRule: res.MatchedRule, Confidence: res.Confidence,
		UsedAI: res.UsedAI, Error: err.Error(),
	})
}

func (w *Watcher) record(e types.ActivityEntry) {
	if w.recorder != nil {
		if err := w.recorder.AppendFSActivity(e); err != nil {
			w.log.Warn("recording activity", zap.Error(err))
		}
	}
	if w.cfg.LogActivity && w.cfg.LogPath != "" {
		appendLogLine(w.cfg.LogPath, e)
	}
}

func (w *Watcher) publish(kind events.Kind) {
	if w.bus != nil {
		w.bus.Publish(events.Event{Kind: kind, Source: w.cfg.Folder})
	}
}

// ResolveCollision returns a path in dir for name that does not collide with
// an existing file, appending " (n)" before the extension as needed.
func ResolveCollision(dir, name string) string {
	candidate := filepath.Join(dir, name)
	if _, err := os.Stat(candidate); os.IsNotExist(err) {
		return candidate
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 1; ; n++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, n, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

func appendLogLine(path string, e types.ActivityEntry) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	line := fmt.Sprintf("%s\t%s\t%s\t%s\t%s\n", e.Time, e.Action, e.File, e.Destination, e.Error)
	f.WriteString(line)
}

func imageMIME(ext string) string {
	switch strings.ToLower(ext) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return ""
	}
}
