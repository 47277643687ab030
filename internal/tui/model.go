package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-wsl-devkit/internal/metrics"
)

// DefaultHistory is how many ticks of reachability the dashboard keeps.
const DefaultHistory = 60

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to update the display.
type TickMsg time.Time

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// =============================================================================
// Model
// =============================================================================

// EndpointSource provides the latest endpoint metrics.
type EndpointSource interface {
	GetMetrics() *metrics.EndpointMetrics
}

// Config holds TUI configuration.
type Config struct {
	Context     string
	Browser     string
	Host        string
	Port        int
	MetricsAddr string
	Source      EndpointSource
	History     int
}

// Model represents the TUI state.
type Model struct {
	// Configuration
	context     string
	browser     string
	endpoint    string
	metricsAddr string
	maxHistory  int

	// Current state
	current      *metrics.EndpointMetrics
	history      []Status
	startTime    time.Time
	lastUpdate   time.Time
	detailedView bool

	// Display options
	width  int
	height int

	source EndpointSource

	quitting bool
}

// New creates a new TUI model.
func New(cfg Config) Model {
	if cfg.History <= 0 {
		cfg.History = DefaultHistory
	}
	return Model{
		context:     cfg.Context,
		browser:     cfg.Browser,
		endpoint:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		metricsAddr: cfg.MetricsAddr,
		maxHistory:  cfg.History,
		source:      cfg.Source,
		startTime:   time.Now(),
		lastUpdate:  time.Now(),
		width:       80,
		height:      24,
	}
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "d":
			m.detailedView = !m.detailedView
			return m, nil
		case "r":
			return m, tickCmd()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		m = m.refresh()
		return m, tickCmd()

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// refresh pulls the latest metrics and appends to the history when a new
// probe has landed.
func (m Model) refresh() Model {
	if m.source == nil {
		return m
	}
	next := m.source.GetMetrics()
	if next == nil {
		return m
	}
	if m.current == nil || next.Probes != m.current.Probes {
		m.history = append(m.history, StatusOf(next))
		if len(m.history) > m.maxHistory {
			m.history = m.history[len(m.history)-m.maxHistory:]
		}
	}
	m.current = next
	m.lastUpdate = time.Now()
	return m
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.detailedView {
		return m.renderDetailedView()
	}
	return m.renderSummaryView()
}

// =============================================================================
// Commands
// =============================================================================

// tickCmd returns a command that sends a tick after 500ms.
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the time since the dashboard started.
func (m Model) Elapsed() time.Duration {
	return time.Since(m.startTime)
}

// Status returns the endpoint status from the latest metrics.
func (m Model) Status() Status {
	return StatusOf(m.current)
}

// Availability returns the fraction of recorded probes that reached the
// endpoint.
func (m Model) Availability() float64 {
	if len(m.history) == 0 {
		return 0
	}
	up := 0
	for _, s := range m.history {
		if s != StatusDown && s != StatusUnknown {
			up++
		}
	}
	return float64(up) / float64(len(m.history))
}

// History returns a copy of the recorded statuses, oldest first.
func (m Model) History() []Status {
	return append([]Status(nil), m.history...)
}

// SendQuit sends a quit message to the TUI.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}

// =============================================================================
// Formatting Helpers (used by view.go)
// =============================================================================

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// formatMs formats a duration as milliseconds, falling back to
// microseconds below one millisecond.
func formatMs(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d < time.Millisecond {
		return fmt.Sprintf("%d µs", d.Microseconds())
	}
	return fmt.Sprintf("%.1f ms", float64(d)/float64(time.Millisecond))
}

// formatPercent formats a ratio as a percentage.
func formatPercent(value float64) string {
	return fmt.Sprintf("%.1f%%", value*100)
}

// formatAgo formats the time since t.
func formatAgo(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t).Round(time.Second)
	if d < time.Second {
		return "just now"
	}
	return d.String() + " ago"
}
