package ai

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Low temperature for structured output.
const defaultTemperature float32 = 0.1

// GeminiClient implements Client using the Google GenAI API.
type GeminiClient struct {
	client  *genai.Client
	metrics *SessionMetrics
}

// NewGeminiClient creates a GenAI-backed client.
func NewGeminiClient(ctx context.Context, apiKey string, metrics *SessionMetrics) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create GenAI client: %w", err)
	}

	if metrics == nil {
		metrics = &SessionMetrics{}
	}
	return &GeminiClient{client: client, metrics: metrics}, nil
}

// Metrics returns the session accounting block.
func (c *GeminiClient) Metrics() *SessionMetrics { return c.metrics }

// Complete sends a prompt and returns the completion text.
func (c *GeminiClient) Complete(ctx context.Context, model, systemPrompt, userPrompt string) (string, error) {
	return c.generate(ctx, model, systemPrompt, userPrompt, "", nil, "")
}

// CompleteJSON sends a prompt with a forced-JSON response contract.
func (c *GeminiClient) CompleteJSON(ctx context.Context, model, systemPrompt, userPrompt string) (string, error) {
	return c.generate(ctx, model, systemPrompt, userPrompt, "application/json", nil, "")
}

// CompleteVision sends a prompt plus inline image bytes.
func (c *GeminiClient) CompleteVision(ctx context.Context, model, prompt string, image []byte, mimeType string) (string, error) {
	return c.generate(ctx, model, "", prompt, "application/json", image, mimeType)
}

func (c *GeminiClient) generate(ctx context.Context, model, systemPrompt, userPrompt, responseMIME string, image []byte, imageMIME string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(defaultTemperature),
	}
	if systemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}
	if responseMIME != "" {
		cfg.ResponseMIMEType = responseMIME
	}

	parts := []*genai.Part{genai.NewPartFromText(userPrompt)}
	if len(image) > 0 {
		parts = append(parts, genai.NewPartFromBytes(image, imageMIME))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := c.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		c.metrics.RecordFailure()
		return "", fmt.Errorf("generate content: %w", err)
	}

	if resp.UsageMetadata != nil {
		c.metrics.Record(Usage{
			PromptTokens: int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		})
	} else {
		c.metrics.Record(Usage{})
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("no completion returned")
	}
	return text, nil
}
