package display

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "1234567...", Truncate("1234567890123", 10))
	assert.Equal(t, "ab", Truncate("abcdef", 2))
}

func TestTruncateKeepsRuneBoundary(t *testing.T) {
	out := Truncate(strings.Repeat("ü", 30), 10)
	assert.True(t, utf8.ValidString(out))
	assert.Equal(t, strings.Repeat("ü", 3)+"...", out)

	out = Truncate("ücker", 3)
	assert.True(t, utf8.ValidString(out))
	assert.Equal(t, "üc", out)
}

func TestHumanSize(t *testing.T) {
	assert.Equal(t, "512B", HumanSize(512))
	assert.Equal(t, "1.5KB", HumanSize(1536))
	assert.Equal(t, "2.0MB", HumanSize(2<<20))
}

func TestAccountLabel(t *testing.T) {
	assert.Equal(t, "example", AccountLabel("user@example.com"))
	assert.Equal(t, "corp", AccountLabel("it@corp"))
	assert.Equal(t, "local", AccountLabel("local"))
}
