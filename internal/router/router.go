// Package router profiles an incoming request with a cheap model call, picks
// a model tier for it, and runs it through a bounded tool loop. A failed run
// escalates to the maximum tier exactly once.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sortwatch/sortwatch/internal/ai"
	"github.com/sortwatch/sortwatch/internal/types"
)

// Tier names, cheapest to strongest.
const (
	TierMinimal  = "minimal"
	TierBalanced = "balanced"
	TierMaximum  = "maximum"
)

// Models maps tiers to concrete model names.
type Models struct {
	Minimal  string
	Balanced string
	Maximum  string
}

// ForTier resolves a tier name to its model.
func (m Models) ForTier(tier string) string {
	switch tier {
	case TierMinimal:
		return m.Minimal
	case TierMaximum:
		return m.Maximum
	default:
		return m.Balanced
	}
}

// Router classifies requests and selects tiers.
type Router struct {
	client  ai.Client
	models  Models
	metrics *ai.SessionMetrics
	log     *zap.Logger
}

// New returns a router. metrics may be nil.
func New(client ai.Client, models Models, metrics *ai.SessionMetrics, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	if metrics == nil {
		metrics = &ai.SessionMetrics{}
	}
	return &Router{client: client, models: models, metrics: metrics, log: log}
}

// Metrics exposes the session counters.
func (r *Router) Metrics() *ai.SessionMetrics { return r.metrics }

const classifySystemPrompt = `You profile a user request for task routing. Respond with ONLY a JSON object:
{"task_type": "<short label>", "needs_vision": bool, "multi_tool": bool, "estimated_steps": int, "complexity": float 0.0-1.0}
complexity reflects reasoning depth, not length. Do not add commentary.`

// Classify profiles the request with the minimal model. Classification is
// advisory: on any failure it returns a conservative mid-range profile so
// the request still runs, just not on the cheapest tier.
func (r *Router) Classify(ctx context.Context, request string) types.TaskClassification {
	fallback := types.TaskClassification{
		TaskType:       "general",
		EstimatedSteps: 3,
		Complexity:     0.5,
		Rationale:      "classification unavailable, using balanced default",
	}

	raw, err := r.client.CompleteJSON(ctx, r.models.Minimal, classifySystemPrompt, request)
	if err != nil {
		r.metrics.RecordFailure()
		r.log.Warn("task classification failed", zap.Error(err))
		return fallback
	}

	body, err := ai.ExtractJSON(raw)
	if err != nil {
		r.log.Warn("unparseable classification", zap.Error(err))
		return fallback
	}

	var c types.TaskClassification
	if err := json.Unmarshal([]byte(body), &c); err != nil {
		r.log.Warn("unparseable classification", zap.Error(err))
		return fallback
	}

	if c.Complexity < 0 {
		c.Complexity = 0
	}
	if c.Complexity > 1 {
		c.Complexity = 1
	}
	if c.EstimatedSteps < 1 {
		c.EstimatedSteps = 1
	}
	if c.TaskType == "" {
		c.TaskType = "general"
	}
	return c
}

// SelectTier maps a profile to a tier. Trivial single-step text tasks run on
// the minimal tier; heavy reasoning or long multi-tool chains get the
// maximum tier; everything else is balanced.
func SelectTier(c types.TaskClassification) string {
	switch {
	case c.Complexity >= 0.8, c.MultiTool && c.EstimatedSteps > 5:
		return TierMaximum
	case !c.NeedsVision && !c.MultiTool && c.EstimatedSteps <= 1 && c.Complexity < 0.3:
		return TierMinimal
	default:
		return TierBalanced
	}
}

// Route classifies the request and returns the profile with its tier and
// rationale filled in.
func (r *Router) Route(ctx context.Context, request string) types.TaskClassification {
	c := r.Classify(ctx, request)
	c.Tier = SelectTier(c)
	if c.Rationale == "" {
		c.Rationale = fmt.Sprintf("type=%s steps=%d complexity=%.2f multi_tool=%t",
			c.TaskType, c.EstimatedSteps, c.Complexity, c.MultiTool)
	}
	r.log.Debug("routed request",
		zap.String("tier", c.Tier),
		zap.String("type", c.TaskType),
		zap.Float64("complexity", c.Complexity))
	return c
}

// escalate returns the tier one rung up, or "" when already at the top.
func escalate(tier string) string {
	switch strings.ToLower(tier) {
	case TierMinimal, TierBalanced:
		return TierMaximum
	default:
		return ""
	}
}
