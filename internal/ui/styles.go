// Package ui renders CLI output.
package ui

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Palette. Semantic colors follow the sync status badges.
var (
	ColorAccent = lipgloss.Color("#2563eb")
	ColorPass   = lipgloss.Color("#16a34a")
	ColorWarn   = lipgloss.Color("#d97706")
	ColorFail   = lipgloss.Color("#dc2626")
	ColorMuted  = lipgloss.Color("#6b7280")
)

var (
	accentStyle = lipgloss.NewStyle().Foreground(ColorAccent).Bold(true)
	passStyle   = lipgloss.NewStyle().Foreground(ColorPass)
	warnStyle   = lipgloss.NewStyle().Foreground(ColorWarn)
	failStyle   = lipgloss.NewStyle().Foreground(ColorFail).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(ColorMuted)
)

// supplierColors maps the palette names stored on suppliers to hex values.
var supplierColors = map[string]lipgloss.Color{
	"red":     "#ef4444",
	"orange":  "#f97316",
	"amber":   "#f59e0b",
	"green":   "#22c55e",
	"emerald": "#10b981",
	"teal":    "#14b8a6",
	"cyan":    "#06b6d4",
	"blue":    "#3b82f6",
	"indigo":  "#6366f1",
	"violet":  "#8b5cf6",
	"purple":  "#a855f7",
	"fuchsia": "#d946ef",
	"pink":    "#ec4899",
	"rose":    "#f43f5e",
}

// Init selects the color profile for out. NO_COLOR and non-terminal outputs
// get plain text.
func Init(out io.Writer) {
	if os.Getenv("NO_COLOR") != "" {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	lipgloss.SetColorProfile(termenv.NewOutput(out).EnvColorProfile())
}

func RenderAccent(s string) string { return accentStyle.Render(s) }
func RenderPass(s string) string   { return passStyle.Render(s) }
func RenderWarn(s string) string   { return warnStyle.Render(s) }
func RenderFail(s string) string   { return failStyle.Render(s) }
func RenderMuted(s string) string  { return mutedStyle.Render(s) }

// RenderSupplier paints name with the supplier's palette color.
func RenderSupplier(name, color string) string {
	c, ok := supplierColors[color]
	if !ok {
		return name
	}
	return lipgloss.NewStyle().Foreground(c).Render(name)
}

// RenderStatus renders a sync status badge.
func RenderStatus(status string) string {
	switch status {
	case "saved":
		return RenderPass("✓ saved")
	case "saving":
		return RenderWarn("… saving")
	case "error":
		return RenderFail("✗ error")
	default:
		return RenderMuted("idle")
	}
}
