// Package mailwatch polls mailboxes on per-watcher timers, classifies unseen
// messages against each watcher's rules, and dispatches the resulting
// actions. Watchers are isolated: each owns its timer, its dedup window, and
// its bounded logs; an in-flight flag keeps poll cycles from overlapping.
package mailwatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sortwatch/sortwatch/internal/events"
	"github.com/sortwatch/sortwatch/internal/gmail"
	"github.com/sortwatch/sortwatch/internal/rules"
	"github.com/sortwatch/sortwatch/internal/sheets"
	"github.com/sortwatch/sortwatch/internal/store"
	"github.com/sortwatch/sortwatch/internal/types"
)

// Provider is the mail provider surface one watcher needs.
type Provider interface {
	Search(query string, since time.Time, max int64) ([]gmail.MessageSummary, error)
	Get(id string) (*gmail.FullMessage, error)
	ModifyLabels(id string, add, remove []string) error
	Trash(id string) error
	ListLabels() (map[string]string, error)
	CreateLabel(name string) (string, error)
}

// ProviderFactory builds a provider for an account.
type ProviderFactory func(ctx context.Context, account string) (Provider, error)

// SinkFactory builds a log sink for a target.
type SinkFactory func(target types.LogTarget) (sheets.Sink, error)

// EmailEvaluator classifies one message against the watcher's rules.
type EmailEvaluator interface {
	EvaluateEmail(ctx context.Context, item rules.EmailItem, ruleTexts []string) rules.EmailResult
}

// Saver persists watcher state.
type Saver interface {
	SaveWatcher(s *store.WatcherState) error
	LoadWatchers() ([]*store.WatcherState, error)
	DeleteWatcher(id string) error
}

// Limits bounds the registry.
type Limits struct {
	MaxWatchers    int
	MinPoll        time.Duration
	ProcessedIDCap int
	ActivityCap    int
	MatchCap       int
}

// Instance is one running (or paused) mail watcher.
type Instance struct {
	mu       sync.Mutex
	Config   types.MailWatcherConfig
	Stats    types.WatcherStats
	Matches  []types.MatchEntry
	Activity []types.EmailActivityEntry

	paused   bool
	checking bool // in-flight flag: the sole guard against overlapping polls
	timer    *time.Timer
	provider Provider
	labels   map[string]string // label name -> id, filled lazily
	saveMu   sync.Mutex        // serializes saves for this watcher id
}

// Paused reports whether the watcher is paused.
func (in *Instance) Paused() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.paused
}

// Snapshot returns copies of the instance's state for display.
func (in *Instance) Snapshot() (types.MailWatcherConfig, types.WatcherStats, []types.MatchEntry, []types.EmailActivityEntry) {
	in.mu.Lock()
	defer in.mu.Unlock()
	matches := make([]types.MatchEntry, len(in.Matches))
	copy(matches, in.Matches)
	activity := make([]types.EmailActivityEntry, len(in.Activity))
	copy(activity, in.Activity)
	return in.Config.Clone(), in.Stats, matches, activity
}

// Registry owns every mail watcher instance. It is constructed at process
// start and passed explicitly; there is no package-level watcher table.
type Registry struct {
	limits    Limits
	providers ProviderFactory
	sinks     SinkFactory
	eval      EmailEvaluator
	db        Saver
	bus       *events.Bus
	log       *zap.Logger

	mu       sync.Mutex
	watchers map[string]*Instance
}

// NewRegistry builds an empty registry.
func NewRegistry(limits Limits, providers ProviderFactory, sinks SinkFactory, eval EmailEvaluator, db Saver, bus *events.Bus, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	if limits.MaxWatchers <= 0 {
		limits.MaxWatchers = 5
	}
	if limits.MinPoll <= 0 {
		limits.MinPoll = time.Minute
	}
	if limits.ProcessedIDCap <= 0 {
		limits.ProcessedIDCap = types.DefaultProcessedIDCap
	}
	if limits.ActivityCap <= 0 {
		limits.ActivityCap = types.DefaultActivityCap
	}
	if limits.MatchCap <= 0 {
		limits.MatchCap = types.DefaultMatchCap
	}
	return &Registry{
		limits:    limits,
		providers: providers,
		sinks:     sinks,
		eval:      eval,
		db:        db,
		bus:       bus,
		log:       log,
		watchers:  make(map[string]*Instance),
	}
}

// LoadAll restores persisted watchers. Every instance is created paused, then
// auto-started if its config says active.
func (r *Registry) LoadAll(ctx context.Context) error {
	states, err := r.db.LoadWatchers()
	if err != nil {
		return fmt.Errorf("load watchers: %w", err)
	}

	for _, s := range states {
		inst := &Instance{
			Config:   s.Config,
			Stats:    s.Stats,
			Matches:  s.Matches,
			Activity: s.Activity,
			paused:   true,
		}
		r.mu.Lock()
		r.watchers[s.Config.ID] = inst
		r.mu.Unlock()

		if s.Config.IsActive {
			if err := r.Start(ctx, s.Config.ID); err != nil {
				r.log.Warn("auto-start failed", zap.String("watcher", s.Config.ID), zap.Error(err))
			}
		}
	}
	return nil
}

// Create registers a new watcher config. Rejected once the concurrent
// watcher cap is reached.
func (r *Registry) Create(ctx context.Context, cfg types.MailWatcherConfig) (*Instance, error) {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.CreatedAt == "" {
		cfg.CreatedAt = types.Now()
	}
	if cfg.ProcessedIDs == nil {
		cfg.ProcessedIDs = types.NewRingWindow(r.limits.ProcessedIDCap)
	}
	if min := int(r.limits.MinPoll / time.Second); cfg.PollSeconds < min {
		cfg.PollSeconds = min
	}

	r.mu.Lock()
	if _, exists := r.watchers[cfg.ID]; !exists && len(r.watchers) >= r.limits.MaxWatchers {
		r.mu.Unlock()
		return nil, fmt.Errorf("maximum watcher count (%d) reached", r.limits.MaxWatchers)
	}
	inst, exists := r.watchers[cfg.ID]
	if !exists {
		inst = &Instance{paused: true}
		r.watchers[cfg.ID] = inst
	}
	r.mu.Unlock()

	inst.mu.Lock()
	inst.Config = cfg
	inst.mu.Unlock()

	if err := r.persist(inst); err != nil {
		return nil, err
	}

	if cfg.IsActive {
		if err := r.Start(ctx, cfg.ID); err != nil {
			return nil, err
		}
	}
	return inst, nil
}

// Get returns a watcher by id.
func (r *Registry) Get(id string) (*Instance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.watchers[id]
	return inst, ok
}

// List returns every instance, keyed order unspecified.
func (r *Registry) List() []*Instance {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Instance, 0, len(r.watchers))
	for _, inst := range r.watchers {
		out = append(out, inst)
	}
	return out
}

// Count returns the number of registered watchers.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.watchers)
}

// Start arms the watcher's poll timer (clamped to the minimum interval) and
// fires one immediate out-of-band check.
func (r *Registry) Start(ctx context.Context, id string) error {
	inst, ok := r.Get(id)
	if !ok {
		return fmt.Errorf("watcher %q not found", id)
	}

	inst.mu.Lock()
	inst.paused = false
	inst.Config.IsActive = true
	if inst.timer != nil {
		inst.timer.Stop()
		inst.timer = nil
	}
	inst.mu.Unlock()

	r.scheduleNext(ctx, inst)
	go r.CheckNow(ctx, id)

	r.publish(events.WatcherStarted, id)
	r.log.Info("watcher started", zap.String("watcher", id))
	return nil
}

// Pause stops the timer before its next tick. An in-progress poll finishes.
func (r *Registry) Pause(id string) error {
	inst, ok := r.Get(id)
	if !ok {
		return fmt.Errorf("watcher %q not found", id)
	}

	inst.mu.Lock()
	inst.paused = true
	inst.Config.IsActive = false
	if inst.timer != nil {
		inst.timer.Stop()
		inst.timer = nil
	}
	inst.mu.Unlock()

	if err := r.persist(inst); err != nil {
		return err
	}
	r.publish(events.WatcherPaused, id)
	return nil
}

// Delete stops and removes a watcher and its persisted state.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	inst, ok := r.watchers[id]
	if ok {
		delete(r.watchers, id)
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("watcher %q not found", id)
	}

	inst.mu.Lock()
	if inst.timer != nil {
		inst.timer.Stop()
		inst.timer = nil
	}
	inst.paused = true
	inst.mu.Unlock()

	if err := r.db.DeleteWatcher(id); err != nil {
		return err
	}
	r.publish(events.WatcherStopped, id)
	return nil
}

// StopAll pauses every watcher timer. In-progress polls are allowed to
// finish.
func (r *Registry) StopAll() {
	for _, inst := range r.List() {
		inst.mu.Lock()
		inst.paused = true
		if inst.timer != nil {
			inst.timer.Stop()
			inst.timer = nil
		}
		inst.mu.Unlock()
	}
}

// scheduleNext arms one tick. Each tick re-arms itself after the poll
// completes, so config changes are picked up at tick time and a slow poll
// can never stack ticks.
func (r *Registry) scheduleNext(ctx context.Context, inst *Instance) {
	inst.mu.Lock()
	if inst.paused {
		inst.mu.Unlock()
		return
	}
	interval := time.Duration(inst.Config.PollSeconds) * time.Second
	if interval < r.limits.MinPoll {
		interval = r.limits.MinPoll
	}
	id := inst.Config.ID
	inst.timer = time.AfterFunc(interval, func() {
		r.CheckNow(ctx, id)
		if in, ok := r.Get(id); ok {
			r.scheduleNext(ctx, in)
		}
	})
	inst.mu.Unlock()
}

// persist saves one watcher's state. Saves for the same watcher id are
// serialized; distinct watchers save concurrently.
func (r *Registry) persist(inst *Instance) error {
	inst.saveMu.Lock()
	defer inst.saveMu.Unlock()

	inst.mu.Lock()
	state := &store.WatcherState{
		Config:   inst.Config.Clone(),
		Stats:    inst.Stats,
		Matches:  append([]types.MatchEntry(nil), inst.Matches...),
		Activity: append([]types.EmailActivityEntry(nil), inst.Activity...),
	}
	inst.mu.Unlock()

	return r.db.SaveWatcher(state)
}

func (r *Registry) publish(kind events.Kind, id string) {
	if r.bus != nil {
		r.bus.Publish(events.Event{Kind: kind, Source: id})
	}
}
