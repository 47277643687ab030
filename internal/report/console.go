package report

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Colours follow the dashboard palette.
var (
	colorSuccess = lipgloss.Color("#10B981") // Green
	colorWarning = lipgloss.Color("#F59E0B") // Amber
	colorError   = lipgloss.Color("#EF4444") // Red
	colorInfo    = lipgloss.Color("#3B82F6") // Blue
	colorStep    = lipgloss.Color("#06B6D4") // Cyan
	colorHeader  = lipgloss.Color("#7C3AED") // Purple
)

// Console renders messages for a terminal: glyph-prefixed lines, coloured
// when the output is a TTY and colour is not disabled. Errors go to the
// error writer, everything else to the standard writer.
type Console struct {
	out    io.Writer
	errOut io.Writer

	step    lipgloss.Style
	success lipgloss.Style
	warning lipgloss.Style
	failure lipgloss.Style
	info    lipgloss.Style
	header  lipgloss.Style
}

// ConsoleOptions configures a Console.
type ConsoleOptions struct {
	Out     io.Writer // default os.Stdout
	ErrOut  io.Writer // default os.Stderr
	NoColor bool
}

// NewConsole creates a Console. Colour is enabled only when Out is a
// terminal, NoColor is false and NO_COLOR is unset.
func NewConsole(opts ConsoleOptions) *Console {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.ErrOut == nil {
		opts.ErrOut = os.Stderr
	}

	renderer := lipgloss.NewRenderer(opts.Out)
	if opts.NoColor || os.Getenv("NO_COLOR") != "" || !isTerminal(opts.Out) {
		renderer.SetColorProfile(termenv.Ascii)
	}

	return &Console{
		out:     opts.Out,
		errOut:  opts.ErrOut,
		step:    renderer.NewStyle().Foreground(colorStep),
		success: renderer.NewStyle().Foreground(colorSuccess),
		warning: renderer.NewStyle().Foreground(colorWarning),
		failure: renderer.NewStyle().Foreground(colorError),
		info:    renderer.NewStyle().Foreground(colorInfo),
		header:  renderer.NewStyle().Foreground(colorHeader).Bold(true),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

func (c *Console) Step(msg string) {
	fmt.Fprintln(c.out, c.step.Render("→ "+msg))
}

func (c *Console) Success(msg string) {
	fmt.Fprintln(c.out, c.success.Render("✓ "+msg))
}

func (c *Console) Warning(msg string) {
	fmt.Fprintln(c.out, c.warning.Render("⚠ "+msg))
}

func (c *Console) Error(msg string) {
	fmt.Fprintln(c.errOut, c.failure.Render("✗ "+msg))
}

func (c *Console) Info(msg string) {
	fmt.Fprintln(c.out, c.info.Render("ℹ "+msg))
}

// Header prints a banner line framed by rules.
func (c *Console) Header(msg string) {
	rule := strings.Repeat("=", 60)
	fmt.Fprintln(c.out, c.header.Render("\n"+rule+"\n"+msg+"\n"+rule))
}
