package fswatch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sortwatch/sortwatch/internal/rules"
	"github.com/sortwatch/sortwatch/internal/types"
)

// moveEvaluator sends everything to one destination without a model call.
type moveEvaluator struct {
	dest string
}

func (m *moveEvaluator) EvaluateFile(ctx context.Context, item rules.FileItem, rs []types.Rule) rules.FileResult {
	return rules.FileResult{
		MatchedRule: 1, Action: rules.ActionMove,
		Destination: m.dest, Confidence: 0.9, UsedAI: true,
	}
}

// skipEvaluator matches nothing.
type skipEvaluator struct{}

func (skipEvaluator) EvaluateFile(ctx context.Context, item rules.FileItem, rs []types.Rule) rules.FileResult {
	return rules.FileResult{Action: rules.ActionSkip, Reasoning: "no rule matched"}
}

// cannedEvaluator returns one fixed result.
type cannedEvaluator struct {
	res rules.FileResult
}

func (c cannedEvaluator) EvaluateFile(ctx context.Context, item rules.FileItem, rs []types.Rule) rules.FileResult {
	return c.res
}

// memRecorder collects activity entries.
type memRecorder struct {
	mu      sync.Mutex
	entries []types.ActivityEntry
}

func (m *memRecorder) AppendFSActivity(e types.ActivityEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memRecorder) all() []types.ActivityEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.ActivityEntry(nil), m.entries...)
}

func ruleSet() []types.Rule {
	return []types.Rule{{ID: "r1", Text: "pdfs to Documents", Enabled: true}}
}

func TestResolveCollisionSequence(t *testing.T) {
	dir := t.TempDir()

	first := ResolveCollision(dir, "report.pdf")
	assert.Equal(t, filepath.Join(dir, "report.pdf"), first)

	require.NoError(t, os.WriteFile(first, []byte("a"), 0o644))
	second := ResolveCollision(dir, "report.pdf")
	assert.Equal(t, filepath.Join(dir, "report (1).pdf"), second)

	require.NoError(t, os.WriteFile(second, []byte("b"), 0o644))
	third := ResolveCollision(dir, "report.pdf")
	assert.Equal(t, filepath.Join(dir, "report (2).pdf"), third)
}

func TestResolveCollisionNoExtension(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("a"), 0o644))
	assert.Equal(t, filepath.Join(dir, "README (1)"), ResolveCollision(dir, "README"))
}

func TestWatcherMovesSettledFile(t *testing.T) {
	dir := t.TempDir()
	recorder := &memRecorder{}
	cfg := types.WatcherConfig{Folder: dir, Rules: ruleSet()}

	w := New(cfg, &moveEvaluator{dest: "Sorted"}, recorder, nil, nil, 100*time.Millisecond)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "invoice.pdf"), []byte("pdf"), 0o644))

	moved := filepath.Join(dir, "Sorted", "invoice.pdf")
	require.Eventually(t, func() bool {
		_, err := os.Stat(moved)
		return err == nil
	}, 5*time.Second, 50*time.Millisecond, "file should be moved once writes settle")

	stats := w.Stats()
	assert.Equal(t, 1, stats.FilesMoved)

	entries := recorder.all()
	require.Len(t, entries, 1)
	assert.Equal(t, "moved", entries[0].Action)
	assert.Equal(t, "invoice.pdf", entries[0].File)
	assert.Equal(t, 1, entries[0].MatchedRule)
}

func TestWatcherSkipRecordsEntryAndLeavesFile(t *testing.T) {
	dir := t.TempDir()
	recorder := &memRecorder{}
	cfg := types.WatcherConfig{Folder: dir, Rules: ruleSet()}

	w := New(cfg, skipEvaluator{}, recorder, nil, nil, 100*time.Millisecond)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	require.Eventually(t, func() bool {
		return len(recorder.all()) == 1
	}, 5*time.Second, 50*time.Millisecond)

	entries := recorder.all()
	assert.Equal(t, "skipped", entries[0].Action)
	_, err := os.Stat(path)
	assert.NoError(t, err, "skipped file stays put")
}

func TestWatcherSkipWithFailureWordStaysSkipped(t *testing.T) {
	dir := t.TempDir()
	recorder := &memRecorder{}
	eval := cannedEvaluator{res: rules.FileResult{
		Action: rules.ActionSkip, UsedAI: true,
		Reasoning: "the earlier upload failed, so no sorting rule applies",
	}}

	w := New(types.WatcherConfig{Folder: dir, Rules: ruleSet()}, eval, recorder, nil, nil, 100*time.Millisecond)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "upload.txt"), []byte("x"), 0o644))
	require.Eventually(t, func() bool {
		return len(recorder.all()) == 1
	}, 5*time.Second, 50*time.Millisecond)

	entries := recorder.all()
	assert.Equal(t, "skipped", entries[0].Action, "reasoning wording must not flip the audit label")
	assert.Empty(t, entries[0].Error)
	assert.Equal(t, 1, w.Stats().Skipped)
	assert.Zero(t, w.Stats().Errors)
}

func TestWatcherEvaluatorFailureRecordsErrorEntry(t *testing.T) {
	dir := t.TempDir()
	recorder := &memRecorder{}
	eval := cannedEvaluator{res: rules.FileResult{
		Action: rules.ActionSkip, UsedAI: true,
		Err: "classification failed: quota exceeded",
	}}

	w := New(types.WatcherConfig{Folder: dir, Rules: ruleSet()}, eval, recorder, nil, nil, 100*time.Millisecond)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.pdf"), []byte("x"), 0o644))
	require.Eventually(t, func() bool {
		return len(recorder.all()) == 1
	}, 5*time.Second, 50*time.Millisecond)

	entries := recorder.all()
	assert.Equal(t, "error", entries[0].Action)
	assert.Contains(t, entries[0].Error, "quota exceeded")
	assert.Equal(t, 1, w.Stats().Errors)
	assert.Zero(t, w.Stats().Skipped)
}

func TestWatcherIgnoresTempAndDotfiles(t *testing.T) {
	dir := t.TempDir()
	recorder := &memRecorder{}
	cfg := types.WatcherConfig{Folder: dir, Rules: ruleSet()}

	w := New(cfg, &moveEvaluator{dest: "Sorted"}, recorder, nil, nil, 100*time.Millisecond)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	for _, name := range []string{".hidden", "download.crdownload", "partial.part", "scratch.tmp"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	// Give the debounce window plenty of time to fire if it were going to.
	time.Sleep(600 * time.Millisecond)
	assert.Empty(t, recorder.all())
	assert.Zero(t, w.Stats().FilesSeen)
}

func TestWatcherStartTwiceFails(t *testing.T) {
	dir := t.TempDir()
	w := New(types.WatcherConfig{Folder: dir, Rules: ruleSet()}, skipEvaluator{}, nil, nil, nil, time.Second)

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()
	assert.Error(t, w.Start(context.Background()))
}

func TestWatcherPauseSuppressesProcessing(t *testing.T) {
	dir := t.TempDir()
	recorder := &memRecorder{}
	w := New(types.WatcherConfig{Folder: dir, Rules: ruleSet()}, &moveEvaluator{dest: "Sorted"}, recorder, nil, nil, 100*time.Millisecond)

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	w.Pause()
	assert.Equal(t, Paused, w.State())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.pdf"), []byte("x"), 0o644))
	time.Sleep(600 * time.Millisecond)
	assert.Empty(t, recorder.all(), "paused watcher must not act")

	w.Resume()
	assert.Equal(t, Running, w.State())
}

func TestWatcherVanishedFileIsSilent(t *testing.T) {
	dir := t.TempDir()
	recorder := &memRecorder{}
	w := New(types.WatcherConfig{Folder: dir, Rules: ruleSet()}, &moveEvaluator{dest: "Sorted"}, recorder, nil, nil, 300*time.Millisecond)

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	path := filepath.Join(dir, "flash.pdf")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	// Delete before the debounce window elapses.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.Remove(path))

	time.Sleep(800 * time.Millisecond)
	assert.Empty(t, recorder.all(), "a file that vanished before settling is not an error")
	assert.Zero(t, w.Stats().Errors)
}

func TestScanDirBoundedDepth(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub", "deep"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "top.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "mid.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "deep", "low.txt"), []byte("x"), 0o644))

	assert.Len(t, ScanDir(dir, 1), 1)
	assert.Len(t, ScanDir(dir, 2), 2)
	assert.Len(t, ScanDir(dir, 3), 3)
	assert.Empty(t, ScanDir(filepath.Join(dir, "missing"), 1))
}
