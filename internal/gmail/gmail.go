// Package gmail wraps the Gmail API as the sortwatch mail provider.
package gmail

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	gm "google.golang.org/api/gmail/v1"
)

// MessageSummary is the lightweight listing form of a message.
type MessageSummary struct {
	ID       string `json:"id"`
	ThreadID string `json:"thread_id"`
	From     string `json:"from"`
	To       string `json:"to"`
	Subject  string `json:"subject"`
	Date     string `json:"date"`
	Snippet  string `json:"snippet"`
}

// FullMessage is a fetched message with a decoded body.
type FullMessage struct {
	ID       string   `json:"id"`
	ThreadID string   `json:"thread_id"`
	From     string   `json:"from"`
	To       string   `json:"to"`
	Subject  string   `json:"subject"`
	Date     string   `json:"date"`
	Body     string   `json:"body"`
	Labels   []string `json:"labels,omitempty"`
	Snippet  string   `json:"snippet,omitempty"`
}

// Client wraps an authenticated Gmail service.
type Client struct {
	svc *gm.Service
}

// NewClient wraps a Gmail service.
func NewClient(svc *gm.Service) *Client {
	return &Client{svc: svc}
}

// Search finds messages matching a Gmail query, newest first. since, when
// non-zero, is added as an after: clause.
func (c *Client) Search(query string, since time.Time, max int64) ([]MessageSummary, error) {
	if !since.IsZero() {
		query = strings.TrimSpace(query + " after:" + since.Format("2006/01/02"))
	}

	resp, err := c.svc.Users.Messages.List("me").
		Q(query).
		MaxResults(max).
		Do()
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	if len(resp.Messages) == 0 {
		return nil, nil
	}

	summaries := make([]MessageSummary, 0, len(resp.Messages))
	for _, msg := range resp.Messages {
		detail, err := c.svc.Users.Messages.Get("me", msg.Id).
			Format("metadata").
			MetadataHeaders("From", "To", "Subject", "Date").
			Do()
		if err != nil {
			// Skip individual message failures.
			continue
		}

		headers := headerMap(detail.Payload.Headers)
		summaries = append(summaries, MessageSummary{
			ID:       detail.Id,
			ThreadID: detail.ThreadId,
			From:     headers["From"],
			To:       headers["To"],
			Subject:  defaultStr(headers["Subject"], "(no subject)"),
			Date:     headers["Date"],
			Snippet:  detail.Snippet,
		})
	}

	return summaries, nil
}

// Get fetches a complete message by ID, decoding the body.
func (c *Client) Get(messageID string) (*FullMessage, error) {
	msg, err := c.svc.Users.Messages.Get("me", messageID).
		Format("full").
		Do()
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", messageID, err)
	}

	headers := headerMap(msg.Payload.Headers)

	return &FullMessage{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		From:     headers["From"],
		To:       headers["To"],
		Subject:  defaultStr(headers["Subject"], "(no subject)"),
		Date:     headers["Date"],
		Body:     extractBody(msg.Payload),
		Labels:   msg.LabelIds,
		Snippet:  msg.Snippet,
	}, nil
}

// ModifyLabels adds and removes label ids on a message.
func (c *Client) ModifyLabels(messageID string, add, remove []string) error {
	_, err := c.svc.Users.Messages.Modify("me", messageID, &gm.ModifyMessageRequest{
		AddLabelIds:    add,
		RemoveLabelIds: remove,
	}).Do()
	if err != nil {
		return fmt.Errorf("modify labels on %s: %w", messageID, err)
	}
	return nil
}

// Trash moves a message to the Gmail trash (not permanent erasure).
func (c *Client) Trash(messageID string) error {
	if _, err := c.svc.Users.Messages.Trash("me", messageID).Do(); err != nil {
		return fmt.Errorf("trash message %s: %w", messageID, err)
	}
	return nil
}

// ListLabels returns label name -> id for the account.
func (c *Client) ListLabels() (map[string]string, error) {
	resp, err := c.svc.Users.Labels.List("me").Do()
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}
	labels := make(map[string]string, len(resp.Labels))
	for _, l := range resp.Labels {
		labels[l.Name] = l.Id
	}
	return labels, nil
}

// CreateLabel creates a user label and returns its id.
func (c *Client) CreateLabel(name string) (string, error) {
	l, err := c.svc.Users.Labels.Create("me", &gm.Label{
		Name:                  name,
		LabelListVisibility:   "labelShow",
		MessageListVisibility: "show",
	}).Do()
	if err != nil {
		return "", fmt.Errorf("create label %q: %w", name, err)
	}
	return l.Id, nil
}

// extractBody gets the plain text body from a message payload.
// Handles multipart messages recursively, preferring text/plain over text/html.
func extractBody(payload *gm.MessagePart) string {
	// Direct body on the payload itself.
	if payload.Body != nil && payload.Body.Data != "" {
		if decoded, err := decodeBase64URL(payload.Body.Data); err == nil {
			return decoded
		}
	}

	// Recurse into parts, text/plain first.
	for _, part := range payload.Parts {
		if part.MimeType == "text/plain" && part.Body != nil && part.Body.Data != "" {
			if decoded, err := decodeBase64URL(part.Body.Data); err == nil {
				return decoded
			}
		}
		if len(part.Parts) > 0 {
			if body := extractBody(part); body != "" {
				return body
			}
		}
	}

	// Second pass: fall back to HTML.
	for _, part := range payload.Parts {
		if part.MimeType == "text/html" && part.Body != nil && part.Body.Data != "" {
			if decoded, err := decodeBase64URL(part.Body.Data); err == nil {
				return "(HTML content)\n" + decoded
			}
		}
	}

	return "(No readable body found)"
}

// headerMap converts Gmail API headers into a simple key-value map.
func headerMap(headers []*gm.MessagePartHeader) map[string]string {
	m := make(map[string]string, len(headers))
	for _, h := range headers {
		m[h.Name] = h.Value
	}
	return m
}

// decodeBase64URL decodes Gmail's base64url-encoded content.
func decodeBase64URL(data string) (string, error) {
	// Gmail uses URL-safe base64 without padding.
	data = strings.ReplaceAll(data, "-", "+")
	data = strings.ReplaceAll(data, "_", "/")
	switch len(data) % 4 {
	case 2:
		data += "=="
	case 3:
		data += "="
	}
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

func defaultStr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
