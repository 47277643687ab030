package logging

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
)

const (
	// MaxLineLength is the maximum length of a single captured line before truncation.
	MaxLineLength = 4096

	// MaxBufferedLines is the number of lines kept per captured stream.
	MaxBufferedLines = 100
)

// OutputBuffer captures the output of an external command (powershell,
// netsh, taskkill). It keeps the most recent lines for error messages and
// logs each line at a level derived from its content.
type OutputBuffer struct {
	source  string
	logger  *slog.Logger
	verbose bool

	// Circular buffer for recent lines
	buffer []string
	bufIdx int
	count  int
	mu     sync.Mutex
}

// NewOutputBuffer creates a buffer for output produced by source.
func NewOutputBuffer(source string, logger *slog.Logger, verbose bool) *OutputBuffer {
	if logger == nil {
		logger = Discard()
	}
	return &OutputBuffer{
		source:  source,
		logger:  logger,
		verbose: verbose,
		buffer:  make([]string, MaxBufferedLines),
	}
}

// ReadFrom consumes r line by line until EOF.
func (b *OutputBuffer) ReadFrom(r io.Reader) (int64, error) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, MaxLineLength)
	scanner.Buffer(buf, MaxLineLength)

	var n int64
	for scanner.Scan() {
		line := scanner.Text()
		n += int64(len(line)) + 1
		b.AddLine(line)
	}
	return n, scanner.Err()
}

// AddText splits text on newlines and adds each non-blank line.
func (b *OutputBuffer) AddText(text string) {
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		b.AddLine(line)
	}
}

// AddLine records a single line.
func (b *OutputBuffer) AddLine(line string) {
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength] + "...(truncated)"
	}

	b.mu.Lock()
	b.buffer[b.bufIdx] = line
	b.bufIdx = (b.bufIdx + 1) % MaxBufferedLines
	if b.count < MaxBufferedLines {
		b.count++
	}
	b.mu.Unlock()

	level := classifyLine(line)
	if !b.verbose && level == slog.LevelDebug {
		return
	}
	b.logger.Log(context.Background(), level, "command_output",
		"source", b.source,
		"line", line,
	)
}

// classifyLine picks a log level from the content of a line.
func classifyLine(line string) slog.Level {
	lower := strings.ToLower(line)

	for _, pattern := range ErrorPatterns {
		if strings.Contains(lower, pattern) {
			return slog.LevelWarn
		}
	}

	return slog.LevelDebug
}

// ErrorPatterns are lower-case substrings that mark a line as a problem.
var ErrorPatterns = []string{
	"error",
	"failed",
	"access is denied",
	"administrator",
	"elevation",
	"not recognized",
	"cannot find",
	"timed out",
}

// RecentLines returns up to n of the most recent lines, oldest first.
func (b *OutputBuffer) RecentLines(n int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n > b.count {
		n = b.count
	}

	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		idx := (b.bufIdx - n + i + MaxBufferedLines) % MaxBufferedLines
		lines = append(lines, b.buffer[idx])
	}
	return lines
}

// Summary joins the last n lines with "; " for use in a one-line error.
func (b *OutputBuffer) Summary(n int) string {
	lines := b.RecentLines(n)
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return strings.Join(lines, "; ")
}

// Len returns the number of lines currently held.
func (b *OutputBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}
