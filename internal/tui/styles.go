// Package tui provides the live terminal dashboard behind --watch.
//
// The TUI uses Bubble Tea for the application framework and Lipgloss for
// styling. It shows whether the debugging endpoint is reachable, whether it
// speaks the debugging protocol, and rolling connect latency.
package tui

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-wsl-devkit/internal/metrics"
)

// =============================================================================
// Color Palette
// =============================================================================

var (
	colorPrimary   = lipgloss.Color("#7C3AED") // Purple
	colorSecondary = lipgloss.Color("#06B6D4") // Cyan

	colorSuccess = lipgloss.Color("#10B981") // Green
	colorWarning = lipgloss.Color("#F59E0B") // Amber
	colorError   = lipgloss.Color("#EF4444") // Red

	colorText      = lipgloss.Color("#E5E7EB")
	colorTextMuted = lipgloss.Color("#9CA3AF")
	colorTextDim   = lipgloss.Color("#6B7280")
	colorBorder    = lipgloss.Color("#374151")
)

// =============================================================================
// Styles
// =============================================================================

var (
	mutedStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorTextDim)

	statusOK = lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true)

	statusWarning = lipgloss.NewStyle().
			Foreground(colorWarning).
			Bold(true)

	statusError = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Background(colorPrimary).
			Bold(true).
			Padding(0, 1).
			MarginBottom(1)

	sectionHeaderStyle = lipgloss.NewStyle().
				Foreground(colorSecondary).
				Bold(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(colorBorder)

	footerStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted).
			MarginTop(1)

	valueStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Bold(true)

	valueGoodStyle = lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true)

	valueBadStyle = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	valueWarnStyle = lipgloss.NewStyle().
			Foreground(colorWarning).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted).
			Width(20)
)

// =============================================================================
// Endpoint Status Indicator
// =============================================================================

// Status is the health of the debugging endpoint.
type Status int

const (
	StatusUnknown   Status = iota
	StatusDown             // TCP connect failed
	StatusListening        // port open, protocol metadata missing
	StatusUp               // port open and protocol metadata served
)

// String returns the short label of the status.
func (s Status) String() string {
	switch s {
	case StatusDown:
		return "DOWN"
	case StatusListening:
		return "LISTENING"
	case StatusUp:
		return "UP"
	default:
		return "WAITING"
	}
}

// StatusOf classifies endpoint metrics. Nil or unprobed metrics are
// StatusUnknown.
func StatusOf(m *metrics.EndpointMetrics) Status {
	switch {
	case m == nil || m.Probes == 0:
		return StatusUnknown
	case !m.Reachable:
		return StatusDown
	case !m.Protocol:
		return StatusListening
	default:
		return StatusUp
	}
}

// GetStatusStyle returns the style for a status.
func GetStatusStyle(s Status) lipgloss.Style {
	switch s {
	case StatusUp:
		return statusOK
	case StatusListening:
		return statusWarning
	case StatusDown:
		return statusError
	default:
		return mutedStyle
	}
}

// GetStatusLabel returns a styled status label.
func GetStatusLabel(s Status) string {
	return GetStatusStyle(s).Render("● " + s.String())
}

// =============================================================================
// Latency and Success Rate Indicators
// =============================================================================

// GetLatencyStyle returns a style based on connect latency. The relay adds
// a hop, so anything under 5ms is healthy.
func GetLatencyStyle(d time.Duration) lipgloss.Style {
	switch {
	case d <= 0:
		return valueStyle
	case d < 5*time.Millisecond:
		return valueGoodStyle
	case d < 50*time.Millisecond:
		return valueWarnStyle
	default:
		return valueBadStyle
	}
}

// GetSuccessRateStyle returns a style based on probe success rate.
func GetSuccessRateStyle(rate float64) lipgloss.Style {
	switch {
	case rate >= 0.999:
		return valueGoodStyle
	case rate >= 0.9:
		return valueWarnStyle
	default:
		return valueBadStyle
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

// RenderKeyValue renders a label-value pair.
func RenderKeyValue(label string, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Left,
		labelStyle.Render(label+":"),
		valueStyle.Render(value),
	)
}

// RenderHistory renders the most recent statuses as a strip of dots, one
// per probe, newest on the right. Only the last width entries are shown.
func RenderHistory(history []Status, width int) string {
	if width <= 0 || len(history) == 0 {
		return ""
	}
	if len(history) > width {
		history = history[len(history)-width:]
	}
	var b strings.Builder
	for _, s := range history {
		switch s {
		case StatusUp:
			b.WriteString(statusOK.Render("●"))
		case StatusListening:
			b.WriteString(statusWarning.Render("●"))
		case StatusDown:
			b.WriteString(statusError.Render("○"))
		default:
			b.WriteString(dimStyle.Render("·"))
		}
	}
	return b.String()
}
