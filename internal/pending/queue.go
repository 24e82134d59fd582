// Package pending holds destructive operations until a human approves them.
// Nothing in sortwatch deletes a file directly; it queues here, and approval
// moves the target into a recoverable trash directory instead of erasing it.
package pending

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sortwatch/sortwatch/internal/events"
	"github.com/sortwatch/sortwatch/internal/types"
)

// AuditFunc records an executed or kept action. Optional.
type AuditFunc func(action types.PendingAction, outcome string, err error)

// Queue is an in-memory, append-ordered ledger of reversible destructive
// operations awaiting approval.
type Queue struct {
	mu       sync.Mutex
	trashDir string
	bus      *events.Bus
	log      *zap.Logger
	audit    AuditFunc
	actions  []types.PendingAction
}

// ExecResult is the per-item outcome of a batch execute.
type ExecResult struct {
	ID      string
	Success bool
	Error   string
}

// NewQueue returns an empty queue trashing into trashDir.
func NewQueue(trashDir string, bus *events.Bus, log *zap.Logger, audit AuditFunc) *Queue {
	if log == nil {
		log = zap.NewNop()
	}
	return &Queue{trashDir: trashDir, bus: bus, log: log, audit: audit}
}

// QueueDeletion snapshots the target's size and enqueues a delete action.
// Fails if the path cannot be stat'ed.
func (q *Queue) QueueDeletion(path, reason string) (types.PendingAction, error) {
	info, err := os.Stat(path)
	if err != nil {
		return types.PendingAction{}, fmt.Errorf("stat %s: %w", path, err)
	}

	a := types.PendingAction{
		ID:        uuid.NewString(),
		Kind:      types.PendingDelete,
		Source:    path,
		FileName:  filepath.Base(path),
		Size:      info.Size(),
		Reason:    reason,
		CreatedAt: types.Now(),
	}

	q.mu.Lock()
	q.actions = append(q.actions, a)
	q.mu.Unlock()

	q.publishQueueChanged()
	return a, nil
}

// QueueMultiple queues each path independently. Individual failures are
// logged and skipped; the batch never aborts.
func (q *Queue) QueueMultiple(paths []string, reason string) []types.PendingAction {
	var queued []types.PendingAction
	for _, p := range paths {
		a, err := q.QueueDeletion(p, reason)
		if err != nil {
			q.log.Warn("skipping unqueueable path", zap.String("path", p), zap.Error(err))
			continue
		}
		queued = append(queued, a)
	}
	return queued
}

// QueueMove enqueues a move awaiting approval.
func (q *Queue) QueueMove(src, dst, reason string) (types.PendingAction, error) {
	info, err := os.Stat(src)
	if err != nil {
		return types.PendingAction{}, fmt.Errorf("stat %s: %w", src, err)
	}

	a := types.PendingAction{
		ID:          uuid.NewString(),
		Kind:        types.PendingMove,
		Source:      src,
		Destination: dst,
		FileName:    filepath.Base(src),
		Size:        info.Size(),
		Reason:      reason,
		CreatedAt:   types.Now(),
	}

	q.mu.Lock()
	q.actions = append(q.actions, a)
	q.mu.Unlock()

	q.publishQueueChanged()
	return a, nil
}

// List returns the queued actions in insertion order.
func (q *Queue) List() []types.PendingAction {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]types.PendingAction, len(q.actions))
	copy(out, q.actions)
	return out
}

// Len returns the queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.actions)
}

// Execute performs the underlying operation for one queued action and removes
// the entry only on success. On failure the entry stays queued.
func (q *Queue) Execute(id string) error {
	q.mu.Lock()
	idx := -1
	for i, a := range q.actions {
		if a.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		q.mu.Unlock()
		return fmt.Errorf("pending action %q not found", id)
	}
	action := q.actions[idx]
	q.mu.Unlock()

	if err := q.perform(action); err != nil {
		if q.audit != nil {
			q.audit(action, "failed", err)
		}
		return err
	}

	q.mu.Lock()
	// Re-find: the queue may have shifted while we were on the filesystem.
	for i, a := range q.actions {
		if a.ID == id {
			q.actions = append(q.actions[:i], q.actions[i+1:]...)
			break
		}
	}
	q.mu.Unlock()

	if q.audit != nil {
		q.audit(action, "executed", nil)
	}
	q.publishQueueChanged()
	if q.bus != nil {
		q.bus.Publish(events.Event{Kind: events.FSChanged, Source: "pending", Payload: action.Source})
	}
	return nil
}

// ExecuteAll applies Execute to every queued action and returns per-item
// results. Partial failure is expected, not fatal.
func (q *Queue) ExecuteAll() []ExecResult {
	ids := make([]string, 0)
	q.mu.Lock()
	for _, a := range q.actions {
		ids = append(ids, a.ID)
	}
	q.mu.Unlock()
	return q.ExecuteSelected(ids)
}

// ExecuteSelected applies Execute per id.
func (q *Queue) ExecuteSelected(ids []string) []ExecResult {
	results := make([]ExecResult, 0, len(ids))
	for _, id := range ids {
		r := ExecResult{ID: id, Success: true}
		if err := q.Execute(id); err != nil {
			r.Success = false
			r.Error = err.Error()
		}
		results = append(results, r)
	}
	return results
}

// Remove discards an entry without performing its action ("keep the file").
func (q *Queue) Remove(id string) error {
	q.mu.Lock()
	var removed *types.PendingAction
	for i, a := range q.actions {
		if a.ID == id {
			kept := a
			removed = &kept
			q.actions = append(q.actions[:i], q.actions[i+1:]...)
			break
		}
	}
	q.mu.Unlock()

	if removed == nil {
		return fmt.Errorf("pending action %q not found", id)
	}
	if q.audit != nil {
		q.audit(*removed, "kept", nil)
	}
	q.publishQueueChanged()
	return nil
}

// KeepAll clears the queue without touching the filesystem and returns the
// number of entries discarded.
func (q *Queue) KeepAll() int {
	q.mu.Lock()
	discarded := q.actions
	q.actions = nil
	q.mu.Unlock()

	if q.audit != nil {
		for _, a := range discarded {
			q.audit(a, "kept", nil)
		}
	}
	if len(discarded) > 0 {
		q.publishQueueChanged()
	}
	return len(discarded)
}

func (q *Queue) perform(a types.PendingAction) error {
	switch a.Kind {
	case types.PendingDelete:
		return q.moveToTrash(a.Source)
	case types.PendingMove, types.PendingRename:
		if a.Destination == "" {
			return fmt.Errorf("move without destination")
		}
		if _, err := os.Stat(a.Destination); err == nil {
			return fmt.Errorf("destination %s already exists", a.Destination)
		}
		if err := os.MkdirAll(filepath.Dir(a.Destination), 0o755); err != nil {
			return fmt.Errorf("create destination dir: %w", err)
		}
		return os.Rename(a.Source, a.Destination)
	case types.PendingOverwrite:
		if a.Destination == "" {
			return fmt.Errorf("overwrite without destination")
		}
		// The file being replaced goes to trash first, so it stays recoverable.
		if _, err := os.Stat(a.Destination); err == nil {
			if err := q.moveToTrash(a.Destination); err != nil {
				return err
			}
		}
		return os.Rename(a.Source, a.Destination)
	default:
		return fmt.Errorf("unknown pending kind %q", a.Kind)
	}
}

// moveToTrash relocates a path into the app-owned trash directory with a
// timestamp prefix. Recoverable by a plain move back.
func (q *Queue) moveToTrash(path string) error {
	if err := os.MkdirAll(q.trashDir, 0o755); err != nil {
		return fmt.Errorf("create trash dir: %w", err)
	}

	base := time.Now().UTC().Format("20060102-150405") + "-" + filepath.Base(path)
	dst := filepath.Join(q.trashDir, base)
	for n := 1; ; n++ {
		if _, err := os.Stat(dst); os.IsNotExist(err) {
			break
		}
		dst = filepath.Join(q.trashDir, fmt.Sprintf("%s.%d", base, n))
	}

	if err := os.Rename(path, dst); err != nil {
		return fmt.Errorf("move to trash: %s: %w", path, err)
	}
	return nil
}

func (q *Queue) publishQueueChanged() {
	if q.bus != nil {
		q.bus.Publish(events.Event{Kind: events.QueueChanged, Source: "pending", Payload: q.Len()})
	}
}
