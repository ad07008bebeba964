package templates

import (
	"fmt"
	"html"
	"strings"
	"text/template"
	"time"

	"github.com/dustin/go-humanize"
)

// barWidth is the number of cells in a progress bar
const barWidth = 12

// Funcs returns the helpers available to every template. Message templates
// are rendered for Telegram's HTML parse mode, so anything user-controlled
// goes through esc.
func Funcs() template.FuncMap {
	return template.FuncMap{
		"esc":      EscapeHTML,
		"bytes":    HumanBytes,
		"duration": HumanDuration,
		"bar":      ProgressBar,
		"pct":      func(p float64) string { return fmt.Sprintf("%.1f%%", p) },
		"comma":    func(n int64) string { return humanize.Comma(n) },
		"ago":      func(t time.Time) string { return humanize.Time(t) },
		"title":    Title,
	}
}

// EscapeHTML makes text safe for Telegram's HTML parse mode, dropping
// invalid UTF-8 first
func EscapeHTML(text string) string {
	return html.EscapeString(strings.ToValidUTF8(text, ""))
}

// HumanBytes renders a byte count in IEC units ("1.5 GiB")
func HumanBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

// HumanDuration renders a duration compactly: "45s", "3m 05s", "1h 02m"
func HumanDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)

	switch {
	case h > 0:
		return fmt.Sprintf("%dh %02dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm %02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// ProgressBar draws percent (0-100) as filled and empty cells
func ProgressBar(percent float64) string {
	filled := int(percent / 100 * barWidth)
	filled = max(0, min(barWidth, filled))
	return strings.Repeat("■", filled) + strings.Repeat("□", barWidth-filled)
}

// Title upper-cases the first letter ("video" -> "Video")
func Title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
