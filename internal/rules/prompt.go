package rules

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sortwatch/sortwatch/internal/types"
)

const fileSystemPrompt = `You are a file-triage assistant. You are given an ordered list of rules and
metadata about one new file. Decide which rule, if any, applies. The FIRST
matching rule wins. Respond with exactly one JSON object:
{"matched_rule": <1-based rule number, 0 if none>, "action": "move"|"skip",
 "destination": "<relative folder, empty if skip>", "rename": "<new name or empty>",
 "confidence": <0..1>, "reasoning": "<one sentence>"}`

const emailSystemPrompt = `You are an email-triage assistant. You are given an ordered list of rules and
one email. Decide which rule, if any, applies; the FIRST matching rule wins.
Respond with exactly one JSON object:
{"category": "important"|"invoice"|"receipt"|"newsletter"|"notification"|"personal"|"spam"|"other",
 "confidence": <0..1>, "matched_rule": "<the rule text that matched, empty if none>",
 "actions": [{"name": "notify"|"star"|"archive"|"mark_read"|"label"|"log_local"|"log_remote"|"delete", "arg": "<label name or empty>"}],
 "reasoning": "<one sentence>"}`

func buildFilePrompt(item FileItem, rs []types.Rule, analysis *ImageAnalysis) string {
	var b strings.Builder

	b.WriteString("Rules (in priority order):\n")
	for i, r := range rs {
		fmt.Fprintf(&b, "%d. %s\n", i+1, r.Text)
	}

	b.WriteString("\nFile:\n")
	fmt.Fprintf(&b, "  name: %s\n", item.Name)
	fmt.Fprintf(&b, "  extension: %s\n", item.Ext)
	fmt.Fprintf(&b, "  size: %d bytes\n", item.Size)

	if analysis != nil {
		b.WriteString("\nImage content analysis:\n")
		fmt.Fprintf(&b, "  type: %s\n", analysis.Type)
		if analysis.Vendor != "" {
			fmt.Fprintf(&b, "  vendor: %s\n", analysis.Vendor)
		}
		if analysis.Date != "" {
			fmt.Fprintf(&b, "  date: %s\n", analysis.Date)
		}
		if analysis.Amount != "" {
			fmt.Fprintf(&b, "  amount: %s\n", analysis.Amount)
		}
		if analysis.Description != "" {
			fmt.Fprintf(&b, "  description: %s\n", analysis.Description)
		}
	}

	return b.String()
}

func buildEmailPrompt(item EmailItem, ruleTexts []string) string {
	var b strings.Builder

	b.WriteString("Rules (in priority order):\n")
	for i, r := range ruleTexts {
		fmt.Fprintf(&b, "%d. %s\n", i+1, r)
	}

	b.WriteString("\nEmail:\n")
	fmt.Fprintf(&b, "  from: %s\n", item.From)
	fmt.Fprintf(&b, "  subject: %s\n", item.Subject)
	if item.Snippet != "" {
		fmt.Fprintf(&b, "  snippet: %s\n", item.Snippet)
	}
	if item.Body != "" {
		fmt.Fprintf(&b, "\nBody (may be truncated):\n%s\n", truncate(item.Body, 2000))
	}

	return b.String()
}

// truncate cuts at a rune boundary so the prompt never carries a split
// UTF-8 sequence.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max] + "\n[truncated]"
}
