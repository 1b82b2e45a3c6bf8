package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/alfredjeanlab/garden/internal/model"
	"github.com/alfredjeanlab/garden/internal/render"
)

// ANSI256 colours for chrome; health colours come from the palette.
const (
	colorAccent = lipgloss.Color("74")  // blue
	colorCmd    = lipgloss.Color("250") // light gray
	colorMuted  = lipgloss.Color("245") // medium gray
)

var (
	noColor bool
	palette = render.DefaultPalette()

	accentStyle  = lipgloss.NewStyle().Foreground(colorAccent)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	commandStyle = lipgloss.NewStyle().Foreground(colorCmd)
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
)

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string { return styled(accentStyle, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return styled(mutedStyle, s) }

// RenderCommand returns s styled as a command name (light gray).
func RenderCommand(s string) string { return styled(commandStyle, s) }

// RenderTitle returns s bold in the accent color.
func RenderTitle(s string) string { return styled(titleStyle, s) }

// RenderHealth returns s in the palette colour for h.
func RenderHealth(h model.Health, s string) string {
	return styled(HealthStyle(h), s)
}

// HealthStyle returns the foreground style for h.
func HealthStyle(h model.Health) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(palette.Color(h)))
}

// HealthGlyph is the single-cell marker drawn for a node in the terminal.
func HealthGlyph(h model.Health) string {
	switch h {
	case model.HealthHealthy:
		return "●"
	case model.HealthAttention:
		return "◐"
	case model.HealthDormant:
		return "○"
	default:
		return "·"
	}
}

// SetPalette switches the health colours.
func SetPalette(p render.Palette) {
	palette = p
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}

func styled(st lipgloss.Style, s string) string {
	if noColor {
		return s
	}
	return st.Render(s)
}
