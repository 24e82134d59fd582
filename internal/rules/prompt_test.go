package rules

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/sortwatch/sortwatch/internal/types"
)

func TestBuildFilePromptNumbersRulesInOrder(t *testing.T) {
	prompt := buildFilePrompt(
		FileItem{Name: "a.pdf", Ext: ".pdf", Size: 42},
		[]types.Rule{
			{Text: "invoices to Documents", Enabled: true},
			{Text: "receipts to Receipts", Enabled: true},
		}, nil)

	assert.Contains(t, prompt, "1. invoices to Documents")
	assert.Contains(t, prompt, "2. receipts to Receipts")
	assert.Contains(t, prompt, "name: a.pdf")
}

func TestBuildEmailPromptTruncatesBody(t *testing.T) {
	prompt := buildEmailPrompt(
		EmailItem{From: "a@b.test", Subject: "hi", Body: strings.Repeat("x", 5000)},
		[]string{"rule"})

	assert.Contains(t, prompt, "[truncated]")
	assert.Less(t, len(prompt), 3000)
}

func TestTruncateKeepsRuneBoundary(t *testing.T) {
	// Two-byte runes: an odd byte cut would split one in half.
	s := strings.Repeat("é", 100)
	out := truncate(s, 33)
	assert.True(t, utf8.ValidString(out))
	assert.Equal(t, strings.Repeat("é", 16)+"\n[truncated]", out)

	assert.Equal(t, "short", truncate("short", 2000), "short strings pass through")
}
