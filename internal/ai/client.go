// Package ai wraps the classification capability behind a small interface.
// The capability is fallible and rate-limited; callers are expected to
// degrade, never to crash a watch loop on its errors.
package ai

import (
	"context"
	"sync"
)

// Client is the classification/generation capability.
type Client interface {
	// Complete sends a prompt and returns free-form text.
	Complete(ctx context.Context, model, systemPrompt, userPrompt string) (string, error)
	// CompleteJSON forces a JSON response body.
	CompleteJSON(ctx context.Context, model, systemPrompt, userPrompt string) (string, error)
	// CompleteVision sends a prompt plus inline image bytes.
	CompleteVision(ctx context.Context, model, prompt string, image []byte, mimeType string) (string, error)
}

// Usage is one call's token accounting.
type Usage struct {
	PromptTokens int
	OutputTokens int
}

// SessionMetrics accumulates per-call accounting across a session.
type SessionMetrics struct {
	mu           sync.Mutex
	Calls        int
	PromptTokens int
	OutputTokens int
	Escalations  int
	Failures     int
}

// Record adds one call's usage.
func (m *SessionMetrics) Record(u Usage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	m.PromptTokens += u.PromptTokens
	m.OutputTokens += u.OutputTokens
}

// RecordFailure counts a failed call.
func (m *SessionMetrics) RecordFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Failures++
}

// RecordEscalation counts one tier escalation.
func (m *SessionMetrics) RecordEscalation() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Escalations++
}

// Snapshot returns a copy safe to read.
func (m *SessionMetrics) Snapshot() SessionMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return SessionMetrics{
		Calls:        m.Calls,
		PromptTokens: m.PromptTokens,
		OutputTokens: m.OutputTokens,
		Escalations:  m.Escalations,
		Failures:     m.Failures,
	}
}
