package output

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/reflow/wordwrap"
)

// Markdown styles accepted by NewMarkdownRenderer.
const (
	StyleDark  = "dark"
	StyleLight = "light"
	StylePlain = "plain"
)

// NewMarkdownRenderer returns a function rendering changelog markdown for
// the terminal. The plain style, or any glamour failure, falls back to
// word-wrapped source text.
func NewMarkdownRenderer(style string, width int) func(string) string {
	if width <= 0 {
		width = 80
	}
	fallback := func(input string) string {
		return strings.TrimSpace(wordwrap.String(input, width))
	}

	style = strings.ToLower(strings.TrimSpace(style))
	if style == "" {
		style = StyleDark
	}
	if style == StylePlain {
		return fallback
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return fallback
	}
	return func(input string) string {
		out, err := renderer.Render(input)
		if err != nil {
			return fallback(input)
		}
		return strings.TrimSpace(out)
	}
}

// DefaultMarkdownStyle picks the dark style on a color terminal and plain
// text otherwise.
func DefaultMarkdownStyle() string {
	if IsColorEnabled() {
		return StyleDark
	}
	return StylePlain
}
