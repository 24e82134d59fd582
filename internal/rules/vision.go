package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/sortwatch/sortwatch/internal/ai"
)

// ImageAnalysis holds the structured fields from the vision pre-pass.
type ImageAnalysis struct {
	Type        string `json:"type"` // receipt, screenshot, photo, document, other
	Vendor      string `json:"vendor"`
	Date        string `json:"date"` // YYYY-MM-DD when the model can read one
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

const visionPrompt = `Analyze this image and respond with exactly one JSON object:
{"type": "receipt"|"screenshot"|"photo"|"document"|"other",
 "vendor": "<merchant or app name, empty if unknown>",
 "date": "<YYYY-MM-DD if visible, else empty>",
 "amount": "<total amount with currency, empty if none>",
 "description": "<short description, max 6 words>"}`

// analyzeImage runs the dedicated vision pre-pass for image files.
func (e *Evaluator) analyzeImage(ctx context.Context, item FileItem) (*ImageAnalysis, error) {
	raw, err := e.client.CompleteVision(ctx, e.model, visionPrompt, item.ImageData, item.ImageMIME)
	if err != nil {
		return nil, err
	}

	body, err := ai.ExtractJSON(raw)
	if err != nil {
		return nil, err
	}

	var a ImageAnalysis
	if err := json.Unmarshal([]byte(body), &a); err != nil {
		return nil, fmt.Errorf("decode vision analysis: %w", err)
	}
	a.Type = strings.ToLower(strings.TrimSpace(a.Type))
	return &a, nil
}

var unsafeFilename = regexp.MustCompile(`[^a-zA-Z0-9 ._-]+`)

// GenerateFilename builds a reproducible filename from vision fields. Only
// receipts and screenshots get generated names; the model never chooses the
// final filename. Returns "" when there is nothing deterministic to build.
func GenerateFilename(a *ImageAnalysis, ext string) string {
	if a == nil {
		return ""
	}

	clean := func(s string) string {
		s = unsafeFilename.ReplaceAllString(s, "")
		return strings.Join(strings.Fields(s), " ")
	}

	switch a.Type {
	case "receipt":
		parts := []string{}
		if a.Date != "" {
			parts = append(parts, clean(a.Date))
		}
		if a.Vendor != "" {
			parts = append(parts, clean(a.Vendor))
		}
		if a.Amount != "" {
			parts = append(parts, clean(a.Amount))
		}
		if len(parts) == 0 {
			return ""
		}
		return "Receipt " + strings.Join(parts, " ") + ext
	case "screenshot":
		parts := []string{"Screenshot"}
		if a.Date != "" {
			parts = append(parts, clean(a.Date))
		}
		if a.Description != "" {
			parts = append(parts, clean(a.Description))
		}
		if len(parts) == 1 {
			return ""
		}
		return strings.Join(parts, " ") + ext
	default:
		return ""
	}
}
