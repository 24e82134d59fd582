// Package types defines core data structures for sortwatch.
package types

import (
	"fmt"
	"time"
)

// Rule is a user-authored natural-language statement evaluated by the
// classification capability to decide match/action.
type Rule struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Enabled bool   `json:"enabled"`
	Order   int    `json:"order"`
}

// WatcherConfig configures a filesystem watcher.
type WatcherConfig struct {
	Folder      string `json:"folder"`
	Rules       []Rule `json:"rules"`
	LogActivity bool   `json:"log_activity"`
	LogPath     string `json:"log_path,omitempty"`
}

// EnabledRules returns the enabled rules in priority order.
func (c *WatcherConfig) EnabledRules() []Rule {
	var out []Rule
	for _, r := range c.Rules {
		if r.Enabled {
			out = append(out, r)
		}
	}
	return out
}

// LogTargetKind identifies where a mail watcher logs matched messages.
type LogTargetKind string

const (
	LogTargetLocalXLSX   LogTargetKind = "local_xlsx"
	LogTargetRemoteSheet LogTargetKind = "remote_sheet"
)

// LogTarget is an explicit link between a mail watcher and a log destination.
// Deleting a message through the watcher also strips its row from every
// configured target; there is no guessing from rule text.
type LogTarget struct {
	Kind             LogTargetKind `json:"kind"`
	Path             string        `json:"path,omitempty"`              // local workbook path
	SpreadsheetTitle string        `json:"spreadsheet_title,omitempty"` // remote spreadsheet title
	Sheet            string        `json:"sheet,omitempty"`             // tab name, defaults to "Log"
}

// MailWatcherConfig configures one mailbox watcher.
type MailWatcherConfig struct {
	ID              string                  `json:"id"`
	Name            string                  `json:"name"`
	Account         string                  `json:"account"`
	PollSeconds     int                     `json:"poll_seconds"`
	Rules           []string                `json:"rules"`
	Categories      []string                `json:"categories"`
	CategoryActions map[string][]ActionSpec `json:"category_actions,omitempty"`
	CustomLabels    map[string]string       `json:"custom_labels,omitempty"`
	LogTargets      []LogTarget             `json:"log_targets,omitempty"`
	ProcessedIDs    *RingWindow             `json:"processed_ids"`
	LastChecked     string                  `json:"last_checked,omitempty"`
	IsActive        bool                    `json:"is_active"`
	CreatedAt       string                  `json:"created_at"`
}

// Clone returns a deep copy that is safe to read while the original keeps
// mutating under its own lock.
func (c MailWatcherConfig) Clone() MailWatcherConfig {
	out := c
	out.Rules = append([]string(nil), c.Rules...)
	out.Categories = append([]string(nil), c.Categories...)
	out.LogTargets = append([]LogTarget(nil), c.LogTargets...)
	if c.CategoryActions != nil {
		out.CategoryActions = make(map[string][]ActionSpec, len(c.CategoryActions))
		for k, v := range c.CategoryActions {
			out.CategoryActions[k] = append([]ActionSpec(nil), v...)
		}
	}
	if c.CustomLabels != nil {
		out.CustomLabels = make(map[string]string, len(c.CustomLabels))
		for k, v := range c.CustomLabels {
			out.CustomLabels[k] = v
		}
	}
	out.ProcessedIDs = c.ProcessedIDs.Clone()
	return out
}

// WatcherStats tracks one mail watcher's activity counters.
type WatcherStats struct {
	EmailsChecked    int    `json:"emails_checked"`
	MatchesFound     int    `json:"matches_found"`
	ActionsPerformed int    `json:"actions_performed"`
	LastCheckTime    string `json:"last_check_time,omitempty"`
	Errors           int    `json:"errors"`
}

// Default bounds. Windows and logs are capped; oldest entries are evicted.
const (
	DefaultProcessedIDCap = 200
	DefaultActivityCap    = 100
	DefaultMatchCap       = 50
)

// RingWindow is a bounded FIFO set of recently-seen item ids. Appending past
// the cap evicts the oldest id first.
type RingWindow struct {
	Cap int      `json:"cap"`
	IDs []string `json:"ids"`
}

// NewRingWindow returns a window with the given cap (or DefaultProcessedIDCap
// if max is not positive).
func NewRingWindow(max int) *RingWindow {
	if max <= 0 {
		max = DefaultProcessedIDCap
	}
	return &RingWindow{Cap: max}
}

// Add appends an id, evicting the oldest entries beyond the cap.
func (w *RingWindow) Add(id string) {
	if w.Cap <= 0 {
		w.Cap = DefaultProcessedIDCap
	}
	w.IDs = append(w.IDs, id)
	if over := len(w.IDs) - w.Cap; over > 0 {
		w.IDs = append([]string(nil), w.IDs[over:]...)
	}
}

// Contains reports whether id is in the window.
func (w *RingWindow) Contains(id string) bool {
	for _, v := range w.IDs {
		if v == id {
			return true
		}
	}
	return false
}

// Len returns the number of ids currently held.
func (w *RingWindow) Len() int { return len(w.IDs) }

// Clone returns an independent copy of the window.
func (w *RingWindow) Clone() *RingWindow {
	if w == nil {
		return nil
	}
	return &RingWindow{Cap: w.Cap, IDs: append([]string(nil), w.IDs...)}
}

// ActivityEntry is an immutable audit record of one filesystem decision.
type ActivityEntry struct {
	Time        string  `json:"time"`
	File        string  `json:"file"`
	Action      string  `json:"action"` // moved, renamed, skipped, error
	Destination string  `json:"destination,omitempty"`
	MatchedRule int     `json:"matched_rule"` // 1-based, 0 = no match
	Confidence  float64 `json:"confidence"`
	UsedAI      bool    `json:"used_ai"`
	Error       string  `json:"error,omitempty"`
}

// EmailActivityEntry is an immutable audit record of one mail decision.
type EmailActivityEntry struct {
	Time        string  `json:"time"`
	MessageID   string  `json:"message_id"`
	Subject     string  `json:"subject,omitempty"`
	Category    string  `json:"category,omitempty"`
	Action      string  `json:"action"`
	MatchedRule string  `json:"matched_rule,omitempty"`
	Confidence  float64 `json:"confidence"`
	UsedAI      bool    `json:"used_ai"`
	Error       string  `json:"error,omitempty"`
}

// MatchEntry records one matched message.
type MatchEntry struct {
	Time       string   `json:"time"`
	MessageID  string   `json:"message_id"`
	ThreadID   string   `json:"thread_id,omitempty"`
	Subject    string   `json:"subject"`
	From       string   `json:"from"`
	Category   string   `json:"category"`
	Confidence float64  `json:"confidence"`
	Actions    []string `json:"actions,omitempty"`
}

// PrependActivity adds an entry newest-first, trimming to max.
func PrependActivity(log []EmailActivityEntry, e EmailActivityEntry, max int) []EmailActivityEntry {
	log = append([]EmailActivityEntry{e}, log...)
	if max > 0 && len(log) > max {
		log = log[:max]
	}
	return log
}

// PrependMatch adds an entry newest-first, trimming to max.
func PrependMatch(log []MatchEntry, e MatchEntry, max int) []MatchEntry {
	log = append([]MatchEntry{e}, log...)
	if max > 0 && len(log) > max {
		log = log[:max]
	}
	return log
}

// PendingKind is the kind of a queued destructive operation.
type PendingKind string

const (
	PendingDelete    PendingKind = "delete"
	PendingMove      PendingKind = "move"
	PendingRename    PendingKind = "rename"
	PendingOverwrite PendingKind = "overwrite"
)

// PendingAction is a queued, reversible destructive operation awaiting
// explicit approval.
type PendingAction struct {
	ID          string      `json:"id"`
	Kind        PendingKind `json:"kind"`
	Source      string      `json:"source"`
	Destination string      `json:"destination,omitempty"`
	FileName    string      `json:"file_name"`
	Size        int64       `json:"size"`
	Reason      string      `json:"reason,omitempty"`
	CreatedAt   string      `json:"created_at"`
}

// TaskClassification is the router's ephemeral profile of a request.
type TaskClassification struct {
	TaskType       string  `json:"task_type"`
	NeedsVision    bool    `json:"needs_vision"`
	MultiTool      bool    `json:"multi_tool"`
	EstimatedSteps int     `json:"estimated_steps"`
	Complexity     float64 `json:"complexity"` // [0,1]
	Tier           string  `json:"tier,omitempty"`
	Rationale      string  `json:"rationale,omitempty"`
}

// Mail categories a watcher can care about.
const (
	CategoryImportant    = "important"
	CategoryInvoice      = "invoice"
	CategoryReceipt      = "receipt"
	CategoryNewsletter   = "newsletter"
	CategoryNotification = "notification"
	CategoryPersonal     = "personal"
	CategorySpam         = "spam"
	CategoryOther        = "other"
)

// ValidCategories is the set of recognised mail categories.
var ValidCategories = []string{
	CategoryImportant, CategoryInvoice, CategoryReceipt, CategoryNewsletter,
	CategoryNotification, CategoryPersonal, CategorySpam, CategoryOther,
}

// IsValidCategory checks if a category string is recognised.
func IsValidCategory(c string) bool {
	for _, v := range ValidCategories {
		if v == c {
			return true
		}
	}
	return false
}

// ActionKind identifies one mail action.
type ActionKind string

const (
	ActionNotify    ActionKind = "notify"
	ActionStar      ActionKind = "star"
	ActionArchive   ActionKind = "archive"
	ActionMarkRead  ActionKind = "mark_read"
	ActionLabel     ActionKind = "label"
	ActionLogLocal  ActionKind = "log_local"
	ActionLogRemote ActionKind = "log_remote"
	ActionDelete    ActionKind = "delete"
)

// ActionSpec is a validated, tagged mail action. Stringly-typed actions from
// the classification capability are coerced into this shape at the boundary.
type ActionSpec struct {
	Kind  ActionKind `json:"kind"`
	Label string     `json:"label,omitempty"` // for ActionLabel
	Note  string     `json:"note,omitempty"`
}

// UnknownActionError reports an action name the dispatcher does not know.
type UnknownActionError struct {
	Name string
}

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("unknown action %q", e.Name)
}

// ParseActionSpec coerces a raw action name (plus optional argument) into a
// tagged ActionSpec. Unknown names return *UnknownActionError.
func ParseActionSpec(name, arg string) (ActionSpec, error) {
	switch ActionKind(name) {
	case ActionNotify, ActionStar, ActionArchive, ActionMarkRead,
		ActionLogLocal, ActionLogRemote, ActionDelete:
		return ActionSpec{Kind: ActionKind(name), Note: arg}, nil
	case ActionLabel:
		if arg == "" {
			return ActionSpec{}, fmt.Errorf("label action requires a label name")
		}
		return ActionSpec{Kind: ActionLabel, Label: arg}, nil
	default:
		return ActionSpec{}, &UnknownActionError{Name: name}
	}
}

// Now returns the current time as an ISO 8601 string.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
