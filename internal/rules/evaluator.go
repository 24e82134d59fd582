// Package rules evaluates items against user-authored natural-language rules
// via the classification capability. First matching rule wins; anything that
// goes wrong degrades to a zero-confidence skip so a watch loop never dies on
// a bad model response.
package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sortwatch/sortwatch/internal/ai"
	"github.com/sortwatch/sortwatch/internal/types"
)

// FileItem is one file to classify.
type FileItem struct {
	Name      string
	Ext       string
	Size      int64
	ImageData []byte // set for images; triggers the vision pre-pass
	ImageMIME string
}

// FileResult is the evaluator's decision for a file.
type FileResult struct {
	MatchedRule int // 1-based rule number, 0 = no match
	Action      string
	Destination string
	Rename      string
	Confidence  float64
	UsedVision  bool
	UsedAI      bool
	Reasoning   string
	Err         string
}

// EmailItem is one message to classify.
type EmailItem struct {
	ID      string
	Subject string
	From    string
	Snippet string
	Body    string
}

// EmailResult is the evaluator's decision for a message.
type EmailResult struct {
	Category    string
	Confidence  float64
	Actions     []types.ActionSpec
	MatchedRule string
	Reasoning   string
	UsedAI      bool
	Err         string
}

// Actions the file evaluator may return.
const (
	ActionMove = "move"
	ActionSkip = "skip"
)

// Evaluator maps (item, rules) to a single matched action.
type Evaluator struct {
	client ai.Client
	model  string
	log    *zap.Logger
}

// New returns an evaluator using the given capability and model.
func New(client ai.Client, model string, log *zap.Logger) *Evaluator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Evaluator{client: client, model: model, log: log}
}

// fileDecision is the strict JSON contract for file classification.
type fileDecision struct {
	MatchedRule int     `json:"matched_rule"`
	Action      string  `json:"action"`
	Destination string  `json:"destination"`
	Rename      string  `json:"rename"`
	Confidence  float64 `json:"confidence"`
	Reasoning   string  `json:"reasoning"`
}

// EvaluateFile classifies one file against the enabled rules in priority
// order. It never returns an error: classification failures yield a skip
// result that records the attempt and the error text.
func (e *Evaluator) EvaluateFile(ctx context.Context, item FileItem, rs []types.Rule) FileResult {
	enabled := enabledRules(rs)
	if len(enabled) == 0 {
		return FileResult{Action: ActionSkip, Reasoning: "no enabled rules"}
	}

	var analysis *ImageAnalysis
	usedVision := false
	if len(item.ImageData) > 0 {
		a, err := e.analyzeImage(ctx, item)
		if err != nil {
			e.log.Warn("vision pre-pass failed", zap.String("file", item.Name), zap.Error(err))
		} else {
			analysis = a
			usedVision = true
		}
	}

	prompt := buildFilePrompt(item, enabled, analysis)
	raw, err := e.client.CompleteJSON(ctx, e.model, fileSystemPrompt, prompt)
	if err != nil {
		return FileResult{
			Action:     ActionSkip,
			UsedVision: usedVision,
			UsedAI:     true,
			Err:        fmt.Sprintf("classification failed: %v", err),
		}
	}

	dec, err := parseFileDecision(raw)
	if err != nil {
		e.log.Warn("unparseable classification output", zap.String("file", item.Name), zap.Error(err))
		return FileResult{
			Action:     ActionSkip,
			UsedVision: usedVision,
			UsedAI:     true,
			Err:        fmt.Sprintf("unparseable response: %v", err),
		}
	}

	res := FileResult{
		MatchedRule: dec.MatchedRule,
		Action:      dec.Action,
		Destination: dec.Destination,
		Rename:      dec.Rename,
		Confidence:  dec.Confidence,
		UsedVision:  usedVision,
		UsedAI:      true,
		Reasoning:   dec.Reasoning,
	}

	if res.Action != ActionMove {
		res.Action = ActionSkip
	}
	if res.MatchedRule < 0 || res.MatchedRule > len(enabled) {
		res.MatchedRule = 0
	}
	if res.MatchedRule == 0 {
		res.Action = ActionSkip
	}

	// Receipts and screenshots get a reproducible local filename built from
	// the structured vision fields, not from model phrasing.
	if analysis != nil {
		if name := GenerateFilename(analysis, item.Ext); name != "" {
			res.Rename = name
		}
	}

	return res
}

// emailDecision is the strict JSON contract for mail classification.
type emailDecision struct {
	Category    string  `json:"category"`
	Confidence  float64 `json:"confidence"`
	MatchedRule string  `json:"matched_rule"`
	Reasoning   string  `json:"reasoning"`
	Actions     []struct {
		Name string `json:"name"`
		Arg  string `json:"arg"`
	} `json:"actions"`
}

// EvaluateEmail classifies one message against the watcher's rules. Like
// EvaluateFile it never returns an error; failures come back as a skip with
// the error text in Err.
func (e *Evaluator) EvaluateEmail(ctx context.Context, item EmailItem, ruleTexts []string) EmailResult {
	if len(ruleTexts) == 0 {
		return EmailResult{Category: types.CategoryOther, Reasoning: "no rules configured"}
	}

	prompt := buildEmailPrompt(item, ruleTexts)
	raw, err := e.client.CompleteJSON(ctx, e.model, emailSystemPrompt, prompt)
	if err != nil {
		return EmailResult{
			Category: types.CategoryOther,
			UsedAI:   true,
			Err:      fmt.Sprintf("classification failed: %v", err),
		}
	}

	body, err := ai.ExtractJSON(raw)
	if err != nil {
		return EmailResult{
			Category: types.CategoryOther,
			UsedAI:   true,
			Err:      fmt.Sprintf("unparseable response: %v", err),
		}
	}

	var dec emailDecision
	if err := json.Unmarshal([]byte(body), &dec); err != nil {
		return EmailResult{
			Category: types.CategoryOther,
			UsedAI:   true,
			Err:      fmt.Sprintf("unparseable response: %v", err),
		}
	}

	res := EmailResult{
		Category:    strings.ToLower(strings.TrimSpace(dec.Category)),
		Confidence:  dec.Confidence,
		MatchedRule: dec.MatchedRule,
		Reasoning:   dec.Reasoning,
		UsedAI:      true,
	}
	if !types.IsValidCategory(res.Category) {
		res.Category = types.CategoryOther
	}

	// Coerce stringly-typed actions at the boundary; unknown names are
	// recorded, not silently dropped into no-ops.
	for _, a := range dec.Actions {
		spec, err := types.ParseActionSpec(strings.ToLower(strings.TrimSpace(a.Name)), a.Arg)
		if err != nil {
			e.log.Warn("dropping action from model", zap.String("name", a.Name), zap.Error(err))
			if res.Err == "" {
				res.Err = err.Error()
			}
			continue
		}
		res.Actions = append(res.Actions, spec)
	}

	return res
}

func parseFileDecision(raw string) (*fileDecision, error) {
	body, err := ai.ExtractJSON(raw)
	if err != nil {
		return nil, err
	}
	var dec fileDecision
	if err := json.Unmarshal([]byte(body), &dec); err != nil {
		return nil, fmt.Errorf("decode decision: %w", err)
	}
	return &dec, nil
}

func enabledRules(rs []types.Rule) []types.Rule {
	var out []types.Rule
	for _, r := range rs {
		if r.Enabled {
			out = append(out, r)
		}
	}
	return out
}
