package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
)

// DefaultWrapWidth is the column model output wraps at.
const DefaultWrapWidth = 100

// NewRenderer returns a markdown renderer wrapping at width columns, or at
// DefaultWrapWidth when width is not positive. Without color support the
// plain "notty" style is used. If glamour cannot be set up, markdown passes
// through unchanged.
func NewRenderer(width int) func(string) (string, error) {
	if width <= 0 {
		width = DefaultWrapWidth
	}
	style := glamour.WithAutoStyle()
	if termenv.EnvColorProfile() == termenv.Ascii {
		style = glamour.WithStandardStyle("notty")
	}
	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width))
	if err != nil {
		return func(markdown string) (string, error) { return markdown, nil }
	}
	return func(markdown string) (string, error) {
		out, err := r.Render(markdown)
		if err != nil {
			return markdown, err
		}
		return strings.TrimRight(out, "\n") + "\n", nil
	}
}
