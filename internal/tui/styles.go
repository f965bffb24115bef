package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/litescript/ls-indexer/internal/health"
)

// Styles is the set of lipgloss styles the views render with.
type Styles struct {
	Header        lipgloss.Style
	Title         lipgloss.Style
	SearchPrompt  lipgloss.Style
	TableHeader   lipgloss.Style
	SortedHeader  lipgloss.Style
	TableRow      lipgloss.Style
	TableSelected lipgloss.Style
	Good          lipgloss.Style
	Warn          lipgloss.Style
	Bad           lipgloss.Style
	Muted         lipgloss.Style
	Error         lipgloss.Style
	HelpKey       lipgloss.Style
	PanelTitle    lipgloss.Style
	Spinner       lipgloss.Style
}

func fg(color string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color))
}

// NewStyles derives every style from p.
func NewStyles(p Palette) Styles {
	text := fg(p.FG)
	muted := fg(p.Muted)
	strong := text.Bold(true)

	return Styles{
		Header:       strong.Padding(0, 1),
		Title:        strong,
		SearchPrompt: muted,
		TableHeader: lipgloss.NewStyle().Bold(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color(p.Muted)),
		SortedHeader:  strong,
		TableRow:      text,
		TableSelected: strong.Background(lipgloss.Color(p.AccentBg)),
		Good:          fg(p.Good),
		Warn:          fg(p.Warn),
		Bad:           fg(p.Error),
		Muted:         muted,
		Error:         fg(p.Error),
		HelpKey:       muted,
		PanelTitle:    strong,
		Spinner:       fg(p.Accent),
	}
}

// HealthBar renders a visual swarm health indicator
func (s Styles) HealthBar(score int, width int) string {
	filled := min((score*width)/100, width)

	var style lipgloss.Style
	switch {
	case score >= 70:
		style = s.Good
	case score >= 40:
		style = s.Warn
	default:
		style = s.Bad
	}

	return style.Render(strings.Repeat("█", filled)) + s.Muted.Render(strings.Repeat("░", width-filled))
}

// Status renders an indexer health state.
func (s Styles) Status(st health.Status) string {
	switch st {
	case health.Healthy:
		return s.Good.Render(st.String())
	case health.Failing:
		return s.Bad.Render(st.String())
	default:
		return s.Muted.Render(st.String())
	}
}

// TruncateString shortens s to at most max runes, ending in "..." when cut.
func TruncateString(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

// PadRight fits s into width cells, cutting or space-filling on the right.
func PadRight(s string, width int) string {
	if w := lipgloss.Width(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return TruncateString(s, width)
}

// PadLeft is PadRight with the filling on the left.
func PadLeft(s string, width int) string {
	if w := lipgloss.Width(s); w < width {
		return strings.Repeat(" ", width-w) + s
	}
	return TruncateString(s, width)
}
