// Package display provides terminal formatting for sortwatch output.
package display

import (
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
)

var (
	// Styles
	Muted    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
	Dim      = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ca3af"))
	Bold     = lipgloss.NewStyle().Bold(true)
	Success  = lipgloss.NewStyle().Foreground(lipgloss.Color("#16a34a"))
	Warn     = lipgloss.NewStyle().Foreground(lipgloss.Color("#d97706"))
	ErrStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#dc2626"))
)

// StateDot returns a colored dot for a watcher state.
func StateDot(state string) string {
	switch state {
	case "running", "active":
		return Success.Render("●")
	case "paused":
		return Warn.Render("○")
	case "error":
		return ErrStyle.Render("●")
	default:
		return Dim.Render("·")
	}
}

// CategoryLabel returns a fixed-width styled category label.
func CategoryLabel(category string) string {
	label := fmt.Sprintf("%-12s", strings.ToUpper(category))
	switch category {
	case "important", "invoice":
		return ErrStyle.Render(label)
	case "receipt", "personal":
		return Warn.Render(label)
	case "spam":
		return Dim.Render(label)
	default:
		return Muted.Render(label)
	}
}

// AccountLabel returns a short label for an account.
// Derives the label from the domain (e.g., "user@example.com" -> "example").
func AccountLabel(account string) string {
	if idx := strings.Index(account, "@"); idx > 0 {
		domain := account[idx+1:]
		if dotIdx := strings.Index(domain, "."); dotIdx > 0 {
			return domain[:dotIdx]
		}
		return domain
	}
	return account
}

// TimeAgo formats an ISO date string as a relative time.
func TimeAgo(isoDate string) string {
	if isoDate == "" {
		return ""
	}

	var t time.Time
	var err error
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05Z", "2006-01-02 15:04:05", time.RFC3339Nano} {
		t, err = time.Parse(layout, isoDate)
		if err == nil {
			break
		}
	}
	if err != nil {
		return isoDate[:min(10, len(isoDate))]
	}

	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("Jan 2")
	}
}

// Truncate shortens a string to maxLen bytes, adding ellipsis if needed.
// The cut always lands on a rune boundary.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut, ellipsis := maxLen-3, "..."
	if maxLen <= 3 {
		cut, ellipsis = maxLen, ""
	}
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + ellipsis
}

// SuccessMsg prints a green checkmark + message.
func SuccessMsg(format string, args ...any) {
	fmt.Println(Success.Render("✓") + " " + fmt.Sprintf(format, args...))
}

// ErrorMsg prints a red X + message to stderr.
func ErrorMsg(format string, args ...any) {
	fmt.Fprintln(os.Stderr, ErrStyle.Render("✗")+" "+fmt.Sprintf(format, args...))
}

// Header prints a section header.
func Header(title string) {
	fmt.Println(Bold.Render(title))
}

// SubHeader prints a dim subsection label.
func SubHeader(title string) {
	fmt.Println(Muted.Render(title))
}

// ActivityLine prints one audit entry in a tree-style format.
// connector is one of "┌─", "├─", "└─"
func ActivityLine(connector, action, subject, when string) {
	fmt.Printf("  %s %s %s  ·  %s\n",
		Muted.Render(connector),
		Bold.Render(fmt.Sprintf("%-8s", action)),
		Truncate(subject, 60),
		Dim.Render(TimeAgo(when)))
}

// PendingLine prints one queued destructive operation.
func PendingLine(idx int, kind, file, reason string, size int64) {
	fmt.Printf("  %s %s %s %s\n",
		Dim.Render(fmt.Sprintf("%d.", idx)),
		Warn.Render(fmt.Sprintf("%-9s", kind)),
		Bold.Render(file),
		Muted.Render(fmt.Sprintf("(%s) %s", HumanSize(size), reason)))
}

// HumanSize renders a byte count compactly.
func HumanSize(n int64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.1fGB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1fMB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1fKB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%dB", n)
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
