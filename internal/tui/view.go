package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// =============================================================================
// Main View Rendering
// =============================================================================

// renderSummaryView renders the main dashboard.
func (m Model) renderSummaryView() string {
	sections := []string{
		m.renderHeader(),
		m.renderEndpoint(),
	}
	if m.current != nil && m.current.Probes > 0 {
		sections = append(sections, m.renderLatency(), m.renderProbes())
	}
	sections = append(sections, m.renderFooter())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// renderDetailedView adds the full probe history and the last error.
func (m Model) renderDetailedView() string {
	sections := []string{
		m.renderHeader(),
		m.renderEndpoint(),
		m.renderHistoryPanel(),
		m.renderFooter(),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// =============================================================================
// Header
// =============================================================================

func (m Model) renderHeader() string {
	header := fmt.Sprintf(
		" go-wsl-devkit │ %s │ %s @ %s │ Elapsed: %s ",
		GetStatusLabel(m.Status()),
		m.browser,
		m.endpoint,
		formatDuration(m.Elapsed()),
	)
	return headerStyle.Width(m.width).Render(header)
}

// =============================================================================
// Endpoint
// =============================================================================

func (m Model) renderEndpoint() string {
	rows := []string{
		sectionHeaderStyle.Render("Debugging Endpoint"),
		RenderKeyValue("Context", m.context),
		RenderKeyValue("Endpoint", m.endpoint),
	}

	cur := m.current
	if cur == nil || cur.Probes == 0 {
		rows = append(rows, mutedStyle.Render("Waiting for first probe..."))
		return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
	}

	rows = append(rows,
		lipgloss.JoinHorizontal(lipgloss.Left, labelStyle.Render("Status:"), GetStatusLabel(m.Status())),
	)
	if cur.Browser != "" {
		rows = append(rows, RenderKeyValue("Browser", cur.Browser))
	}
	if cur.Version != "" {
		rows = append(rows, RenderKeyValue("Protocol", cur.Version))
	}
	rows = append(rows, RenderKeyValue("Last change", formatAgo(cur.LastChange, time.Now())))
	if cur.Error != "" {
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("Last error:"),
			valueBadStyle.Render(truncate(cur.Error, m.width-26)),
		))
	}

	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// =============================================================================
// Latency
// =============================================================================

func (m Model) renderLatency() string {
	cur := m.current
	rows := []string{
		sectionHeaderStyle.Render(fmt.Sprintf("Connect Latency (%ds window)", cur.WindowSeconds)),
		renderLatencyRow("P50 (median)", cur.LatencyP50),
		renderLatencyRow("P95", cur.LatencyP95),
		renderLatencyRow("Max", cur.LatencyMax),
	}
	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func renderLatencyRow(label string, d time.Duration) string {
	return lipgloss.JoinHorizontal(lipgloss.Left,
		labelStyle.Render(label+":"),
		GetLatencyStyle(d).Render(formatMs(d)),
	)
}

// =============================================================================
// Probes
// =============================================================================

func (m Model) renderProbes() string {
	cur := m.current
	rate := cur.SuccessRate()
	rows := []string{
		sectionHeaderStyle.Render("Probes"),
		RenderKeyValue("Total", fmt.Sprintf("%d", cur.Probes)),
		RenderKeyValue("Failed", fmt.Sprintf("%d", cur.Failures)),
		lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("Success rate:"),
			GetSuccessRateStyle(rate).Render(formatPercent(rate)),
		),
		lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("Recent:"),
			RenderHistory(m.history, m.width-26),
		),
	}
	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m Model) renderHistoryPanel() string {
	rows := []string{
		sectionHeaderStyle.Render(fmt.Sprintf("History (last %d probes)", len(m.history))),
		RenderHistory(m.history, m.width-6),
		RenderKeyValue("Availability", formatPercent(m.Availability())),
	}
	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	shortcuts := []string{
		"q: quit",
		"d: toggle details",
		"r: refresh",
	}

	left := dimStyle.Render(strings.Join(shortcuts, " │ "))
	right := ""
	if m.metricsAddr != "" {
		right = dimStyle.Render("Metrics: http://" + m.metricsAddr + "/metrics")
	}

	padding := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 1 {
		padding = 1
	}

	return footerStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Left,
			left,
			strings.Repeat(" ", padding),
			right,
		),
	)
}

func truncate(s string, n int) string {
	if n < 10 || len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
