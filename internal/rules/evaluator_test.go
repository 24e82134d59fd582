package rules

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sortwatch/sortwatch/internal/types"
)

// fakeClient returns canned responses per call kind.
type fakeClient struct {
	jsonResponse   string
	jsonErr        error
	visionResponse string
	visionErr      error
	jsonCalls      int
	visionCalls    int
}

func (f *fakeClient) Complete(ctx context.Context, model, system, user string) (string, error) {
	return f.jsonResponse, f.jsonErr
}

func (f *fakeClient) CompleteJSON(ctx context.Context, model, system, user string) (string, error) {
	f.jsonCalls++
	return f.jsonResponse, f.jsonErr
}

func (f *fakeClient) CompleteVision(ctx context.Context, model, prompt string, image []byte, mime string) (string, error) {
	f.visionCalls++
	return f.visionResponse, f.visionErr
}

func enabledRule(text string) types.Rule {
	return types.Rule{ID: "r", Text: text, Enabled: true}
}

func TestEvaluateFileNoRulesSkips(t *testing.T) {
	e := New(&fakeClient{}, "model", nil)
	res := e.EvaluateFile(context.Background(), FileItem{Name: "a.pdf"}, nil)
	assert.Equal(t, ActionSkip, res.Action)
	assert.False(t, res.UsedAI)
}

func TestEvaluateFileMatch(t *testing.T) {
	client := &fakeClient{jsonResponse: `{"matched_rule": 1, "action": "move", "destination": "Documents/Invoices", "confidence": 0.92, "reasoning": "invoice pdf"}`}
	e := New(client, "model", nil)

	res := e.EvaluateFile(context.Background(), FileItem{Name: "invoice.pdf", Ext: ".pdf"},
		[]types.Rule{enabledRule("move invoices to Documents/Invoices")})

	assert.Equal(t, ActionMove, res.Action)
	assert.Equal(t, 1, res.MatchedRule)
	assert.Equal(t, "Documents/Invoices", res.Destination)
	assert.InDelta(t, 0.92, res.Confidence, 0.001)
	assert.True(t, res.UsedAI)
}

func TestEvaluateFileClassificationFailureSkipsWithZeroConfidence(t *testing.T) {
	client := &fakeClient{jsonErr: errors.New("quota exceeded")}
	e := New(client, "model", nil)

	res := e.EvaluateFile(context.Background(), FileItem{Name: "a.pdf"},
		[]types.Rule{enabledRule("anything")})

	assert.Equal(t, ActionSkip, res.Action)
	assert.Zero(t, res.Confidence)
	assert.Contains(t, res.Err, "classification failed")
}

func TestEvaluateFileUnparseableResponseSetsErr(t *testing.T) {
	client := &fakeClient{jsonResponse: "definitely not json"}
	e := New(client, "model", nil)

	res := e.EvaluateFile(context.Background(), FileItem{Name: "a.pdf"},
		[]types.Rule{enabledRule("anything")})

	assert.Equal(t, ActionSkip, res.Action)
	assert.Contains(t, res.Err, "unparseable response")
	assert.Empty(t, res.Reasoning, "failure text lives in Err, not Reasoning")
}

func TestEvaluateFileClampsOutOfRangeRule(t *testing.T) {
	client := &fakeClient{jsonResponse: `{"matched_rule": 7, "action": "move", "destination": "X", "confidence": 0.8}`}
	e := New(client, "model", nil)

	res := e.EvaluateFile(context.Background(), FileItem{Name: "a.pdf"},
		[]types.Rule{enabledRule("only rule")})

	assert.Equal(t, 0, res.MatchedRule, "rule number beyond the list clamps to no-match")
	assert.Equal(t, ActionSkip, res.Action, "no match means no move")
}

func TestEvaluateFileVisionRenamesReceipt(t *testing.T) {
	client := &fakeClient{
		jsonResponse:   `{"matched_rule": 1, "action": "move", "destination": "Receipts", "rename": "whatever.png", "confidence": 0.9}`,
		visionResponse: `{"type": "receipt", "vendor": "Acme Store", "date": "2026-03-14", "amount": "42.50 EUR"}`,
	}
	e := New(client, "model", nil)

	res := e.EvaluateFile(context.Background(),
		FileItem{Name: "IMG_2041.png", Ext: ".png", ImageData: []byte{1, 2}, ImageMIME: "image/png"},
		[]types.Rule{enabledRule("receipts go to Receipts")})

	require.Equal(t, ActionMove, res.Action)
	assert.True(t, res.UsedVision)
	assert.Equal(t, 1, client.visionCalls)
	assert.Equal(t, "Receipt 2026-03-14 Acme Store 42.50 EUR.png", res.Rename,
		"generated name overrides the model's rename")
}

func TestEvaluateEmailValid(t *testing.T) {
	client := &fakeClient{jsonResponse: `{"category": "Invoice", "confidence": 0.85, "matched_rule": "invoices get starred", "actions": [{"name": "star"}, {"name": "label", "arg": "Invoices"}]}`}
	e := New(client, "model", nil)

	res := e.EvaluateEmail(context.Background(),
		EmailItem{ID: "m1", Subject: "Invoice #42"}, []string{"invoices get starred"})

	assert.Equal(t, types.CategoryInvoice, res.Category, "category is lowercased")
	require.Len(t, res.Actions, 2)
	assert.Equal(t, types.ActionStar, res.Actions[0].Kind)
	assert.Equal(t, "Invoices", res.Actions[1].Label)
	assert.Empty(t, res.Err)
}

func TestEvaluateEmailUnknownCategoryFallsBack(t *testing.T) {
	client := &fakeClient{jsonResponse: `{"category": "urgent-ish", "confidence": 0.5}`}
	e := New(client, "model", nil)

	res := e.EvaluateEmail(context.Background(), EmailItem{ID: "m1"}, []string{"r"})
	assert.Equal(t, types.CategoryOther, res.Category)
}

func TestEvaluateEmailUnknownActionRecorded(t *testing.T) {
	client := &fakeClient{jsonResponse: `{"category": "spam", "confidence": 0.9, "actions": [{"name": "vaporize"}, {"name": "archive"}]}`}
	e := New(client, "model", nil)

	res := e.EvaluateEmail(context.Background(), EmailItem{ID: "m1"}, []string{"r"})

	require.Len(t, res.Actions, 1, "unknown action dropped, known one kept")
	assert.Equal(t, types.ActionArchive, res.Actions[0].Kind)
	assert.Contains(t, res.Err, "vaporize")
}

func TestEvaluateEmailFailureNeverPanics(t *testing.T) {
	client := &fakeClient{jsonResponse: "not json at all"}
	e := New(client, "model", nil)

	res := e.EvaluateEmail(context.Background(), EmailItem{ID: "m1"}, []string{"r"})
	assert.Equal(t, types.CategoryOther, res.Category)
	assert.NotEmpty(t, res.Err)
}

func TestGenerateFilename(t *testing.T) {
	name := GenerateFilename(&ImageAnalysis{
		Type: "receipt", Date: "2026-01-05", Vendor: "Cafe/Nero", Amount: "3.20",
	}, ".jpg")
	assert.Equal(t, "Receipt 2026-01-05 CafeNero 3.20.jpg", name, "unsafe characters stripped")

	name = GenerateFilename(&ImageAnalysis{
		Type: "screenshot", Date: "2026-01-05", Description: "login error dialog",
	}, ".png")
	assert.Equal(t, "Screenshot 2026-01-05 login error dialog.png", name)

	assert.Empty(t, GenerateFilename(&ImageAnalysis{Type: "photo", Description: "sunset"}, ".jpg"),
		"photos keep their original name")
	assert.Empty(t, GenerateFilename(&ImageAnalysis{Type: "receipt"}, ".jpg"),
		"no fields means no generated name")
	assert.Empty(t, GenerateFilename(nil, ".jpg"))
}
