package mailwatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sortwatch/sortwatch/internal/events"
	"github.com/sortwatch/sortwatch/internal/gmail"
	"github.com/sortwatch/sortwatch/internal/rules"
	"github.com/sortwatch/sortwatch/internal/types"
)

const (
	searchQuery  = "in:inbox"
	searchMax    = 50
	overlapSkew  = 5 * time.Minute
	firstRunBack = 24 * time.Hour
)

// CheckNow runs one poll cycle for the watcher. It is a no-op when the
// watcher is paused or a cycle is already in flight.
func (r *Registry) CheckNow(ctx context.Context, id string) {
	inst, ok := r.Get(id)
	if !ok {
		return
	}

	inst.mu.Lock()
	if inst.paused || inst.checking {
		inst.mu.Unlock()
		return
	}
	inst.checking = true
	inst.mu.Unlock()

	// Cleared unconditionally so one panic or early return can never wedge
	// the watcher into a permanently-skipping state.
	defer func() {
		inst.mu.Lock()
		inst.checking = false
		inst.mu.Unlock()
	}()

	r.checkEmails(ctx, inst)
}

// RunOnce polls one watcher immediately, paused or not. Used for manual
// checks from the CLI; the in-flight flag still applies.
func (r *Registry) RunOnce(ctx context.Context, id string) {
	inst, ok := r.Get(id)
	if !ok {
		return
	}

	inst.mu.Lock()
	if inst.checking {
		inst.mu.Unlock()
		return
	}
	inst.checking = true
	inst.mu.Unlock()

	defer func() {
		inst.mu.Lock()
		inst.checking = false
		inst.mu.Unlock()
	}()

	r.checkEmails(ctx, inst)
}

func (r *Registry) checkEmails(ctx context.Context, inst *Instance) {
	log := r.log.With(zap.String("watcher", inst.Config.ID), zap.String("name", inst.Config.Name))

	provider, err := r.providerFor(ctx, inst)
	if err != nil {
		r.recordError(inst, "", "provider unavailable: "+err.Error())
		log.Warn("poll skipped", zap.Error(err))
		return
	}

	since := r.sinceFor(inst)
	summaries, err := provider.Search(searchQuery, since, searchMax)
	if err != nil {
		r.recordError(inst, "", "search failed: "+err.Error())
		log.Warn("mailbox search failed", zap.Error(err))
		return
	}

	inst.mu.Lock()
	ruleTexts := append([]string(nil), inst.Config.Rules...)
	categories := append([]string(nil), inst.Config.Categories...)
	window := inst.Config.ProcessedIDs
	inst.mu.Unlock()

	for _, summary := range summaries {
		if window != nil && window.Contains(summary.ID) {
			continue
		}
		r.processMessage(ctx, inst, provider, summary, ruleTexts, categories, log)
	}

	now := types.Now()
	inst.mu.Lock()
	inst.Config.LastChecked = now
	inst.Stats.LastCheckTime = now
	inst.mu.Unlock()

	if err := r.persist(inst); err != nil {
		log.Warn("persisting watcher state", zap.Error(err))
	}
}

// processMessage fetches, classifies, and acts on one message. Every fetched
// message enters the dedup window, matched or not, and yields one activity
// entry.
func (r *Registry) processMessage(ctx context.Context, inst *Instance, provider Provider, summary gmail.MessageSummary, ruleTexts, categories []string, log *zap.Logger) {
	msg, err := provider.Get(summary.ID)
	if err != nil {
		// Not fetched, so not windowed: the next poll retries it.
		r.recordError(inst, summary.ID, "fetch failed: "+err.Error())
		log.Warn("fetch failed", zap.String("message", summary.ID), zap.Error(err))
		return
	}

	res := r.eval.EvaluateEmail(ctx, rules.EmailItem{
		ID:      msg.ID,
		Subject: msg.Subject,
		From:    msg.From,
		Snippet: msg.Snippet,
		Body:    msg.Body,
	}, ruleTexts)

	inst.mu.Lock()
	inst.Stats.EmailsChecked++
	if inst.Config.ProcessedIDs != nil {
		inst.Config.ProcessedIDs.Add(msg.ID)
	}
	inst.mu.Unlock()

	if res.Err != "" && len(res.Actions) == 0 && res.MatchedRule == "" {
		r.recordError(inst, msg.ID, res.Err)
		return
	}

	if !categoryWanted(res.Category, categories) {
		r.recordActivity(inst, types.EmailActivityEntry{
			Time: types.Now(), MessageID: msg.ID, Subject: msg.Subject,
			Category: res.Category, Action: "none",
			MatchedRule: res.MatchedRule, Confidence: res.Confidence,
			UsedAI: res.UsedAI, Error: res.Err,
		})
		return
	}

	inst.mu.Lock()
	inst.Stats.MatchesFound++
	static := append([]types.ActionSpec(nil), inst.Config.CategoryActions[res.Category]...)
	inst.mu.Unlock()

	// Dynamic actions chosen by the classifier run first, then the static
	// per-category actions from the watcher config.
	specs := append(append([]types.ActionSpec(nil), res.Actions...), static...)

	var performed []string
	for _, spec := range specs {
		if err := r.executeAction(ctx, inst, provider, msg, res, spec); err != nil {
			r.recordError(inst, msg.ID, fmt.Sprintf("%s: %v", spec.Kind, err))
			log.Warn("action failed", zap.String("message", msg.ID), zap.String("action", string(spec.Kind)), zap.Error(err))
			continue
		}
		performed = append(performed, string(spec.Kind))
		inst.mu.Lock()
		inst.Stats.ActionsPerformed++
		inst.mu.Unlock()
	}

	now := types.Now()
	inst.mu.Lock()
	inst.Matches = types.PrependMatch(inst.Matches, types.MatchEntry{
		Time: now, MessageID: msg.ID, ThreadID: msg.ThreadID,
		Subject: msg.Subject, From: msg.From,
		Category: res.Category, Confidence: res.Confidence,
		Actions: performed,
	}, r.limits.MatchCap)
	inst.mu.Unlock()

	r.recordActivity(inst, types.EmailActivityEntry{
		Time: now, MessageID: msg.ID, Subject: msg.Subject,
		Category: res.Category, Action: strings.Join(performed, ","),
		MatchedRule: res.MatchedRule, Confidence: res.Confidence,
		UsedAI: res.UsedAI, Error: res.Err,
	})

	if r.bus != nil {
		r.bus.Publish(events.Event{Kind: events.ItemProcessed, Source: inst.Config.ID, Payload: msg.Subject})
	}
}

func (r *Registry) executeAction(ctx context.Context, inst *Instance, provider Provider, msg *gmail.FullMessage, res rules.EmailResult, spec types.ActionSpec) error {
	switch spec.Kind {
	case types.ActionNotify:
		if r.bus != nil {
			r.bus.Publish(events.Event{
				Kind:    events.Notification,
				Source:  inst.Config.ID,
				Payload: fmt.Sprintf("%s: %s (%s)", res.Category, msg.Subject, msg.From),
			})
		}
		return nil
	case types.ActionStar:
		return provider.ModifyLabels(msg.ID, []string{"STARRED"}, nil)
	case types.ActionArchive:
		return provider.ModifyLabels(msg.ID, nil, []string{"INBOX"})
	case types.ActionMarkRead:
		return provider.ModifyLabels(msg.ID, nil, []string{"UNREAD"})
	case types.ActionLabel:
		labelID, err := r.ensureLabel(inst, provider, spec.Label)
		if err != nil {
			return err
		}
		return provider.ModifyLabels(msg.ID, []string{labelID}, nil)
	case types.ActionLogLocal:
		return r.logTo(inst, types.LogTargetLocalXLSX, logRow(msg, res))
	case types.ActionLogRemote:
		return r.logTo(inst, types.LogTargetRemoteSheet, logRow(msg, res))
	case types.ActionDelete:
		return r.deleteMessage(inst, provider, msg.ID, true)
	default:
		return &types.UnknownActionError{Name: string(spec.Kind)}
	}
}

// ensureLabel resolves a label name to its id, creating the label once.
// CustomLabels maps the watcher's label names to provider label names.
func (r *Registry) ensureLabel(inst *Instance, provider Provider, name string) (string, error) {
	inst.mu.Lock()
	if mapped, ok := inst.Config.CustomLabels[name]; ok && mapped != "" {
		name = mapped
	}
	cached, ok := inst.labels[name]
	inst.mu.Unlock()
	if ok {
		return cached, nil
	}

	labels, err := provider.ListLabels()
	if err != nil {
		return "", fmt.Errorf("list labels: %w", err)
	}
	id, ok := labels[name]
	if !ok {
		id, err = provider.CreateLabel(name)
		if err != nil {
			return "", err
		}
	}

	inst.mu.Lock()
	if inst.labels == nil {
		inst.labels = make(map[string]string)
	}
	inst.labels[name] = id
	inst.mu.Unlock()
	return id, nil
}

// logTo appends one row to every configured target of the given kind.
func (r *Registry) logTo(inst *Instance, kind types.LogTargetKind, row []string) error {
	inst.mu.Lock()
	targets := append([]types.LogTarget(nil), inst.Config.LogTargets...)
	inst.mu.Unlock()

	matched := false
	for _, target := range targets {
		if target.Kind != kind {
			continue
		}
		matched = true
		sink, err := r.sinks(target)
		if err != nil {
			return err
		}
		if err := sink.Append(row); err != nil {
			return err
		}
	}
	if !matched {
		return fmt.Errorf("no %s log target configured", kind)
	}
	return nil
}

// DeleteMessage trashes a matched message and strips its rows from every
// configured log target. Local state is cleaned even when the remote trash
// fails; the remote error is still reported.
func (r *Registry) DeleteMessage(ctx context.Context, watcherID, messageID string, fromRemote bool) error {
	inst, ok := r.Get(watcherID)
	if !ok {
		return fmt.Errorf("watcher %q not found", watcherID)
	}

	var provider Provider
	if fromRemote {
		var err error
		provider, err = r.providerFor(ctx, inst)
		if err != nil {
			return err
		}
	}
	return r.deleteMessage(inst, provider, messageID, fromRemote)
}

func (r *Registry) deleteMessage(inst *Instance, provider Provider, messageID string, fromRemote bool) error {
	inst.mu.Lock()
	kept := inst.Matches[:0]
	for _, m := range inst.Matches {
		if m.MessageID != messageID {
			kept = append(kept, m)
		}
	}
	inst.Matches = kept
	targets := append([]types.LogTarget(nil), inst.Config.LogTargets...)
	inst.mu.Unlock()

	var errs []string
	for _, target := range targets {
		sink, err := r.sinks(target)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		if err := sink.RemoveByKey(messageID); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if fromRemote && provider != nil {
		if err := provider.Trash(messageID); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if err := r.persist(inst); err != nil {
		errs = append(errs, err.Error())
	}

	r.recordActivity(inst, types.EmailActivityEntry{
		Time: types.Now(), MessageID: messageID, Action: "delete",
		Error: strings.Join(errs, "; "),
	})
	if len(errs) > 0 {
		return fmt.Errorf("delete %s: %s", messageID, strings.Join(errs, "; "))
	}
	return nil
}

// providerFor returns the instance's cached provider, building it from the
// factory on first use.
func (r *Registry) providerFor(ctx context.Context, inst *Instance) (Provider, error) {
	inst.mu.Lock()
	cached := inst.provider
	account := inst.Config.Account
	inst.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	provider, err := r.providers(ctx, account)
	if err != nil {
		return nil, err
	}

	inst.mu.Lock()
	inst.provider = provider
	inst.mu.Unlock()
	return provider, nil
}

// sinceFor picks the search window: last check minus a small skew, or a day
// back on the first run.
func (r *Registry) sinceFor(inst *Instance) time.Time {
	inst.mu.Lock()
	last := inst.Config.LastChecked
	inst.mu.Unlock()

	if last == "" {
		return time.Now().Add(-firstRunBack)
	}
	t, err := time.Parse(time.RFC3339, last)
	if err != nil {
		return time.Now().Add(-firstRunBack)
	}
	return t.Add(-overlapSkew)
}

func (r *Registry) recordActivity(inst *Instance, e types.EmailActivityEntry) {
	inst.mu.Lock()
	inst.Activity = types.PrependActivity(inst.Activity, e, r.limits.ActivityCap)
	inst.mu.Unlock()
}

func (r *Registry) recordError(inst *Instance, messageID, text string) {
	inst.mu.Lock()
	inst.Stats.Errors++
	inst.mu.Unlock()
	r.recordActivity(inst, types.EmailActivityEntry{
		Time: types.Now(), MessageID: messageID, Action: "error", Error: text,
	})
}

func logRow(msg *gmail.FullMessage, res rules.EmailResult) []string {
	return []string{msg.ID, msg.Date, msg.From, msg.Subject, res.Category, fmt.Sprintf("%.2f", res.Confidence)}
}

func categoryWanted(category string, wanted []string) bool {
	if len(wanted) == 0 {
		return true
	}
	for _, c := range wanted {
		if strings.EqualFold(c, category) {
			return true
		}
	}
	return false
}
