package remote

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/randomizedcoder/go-wsl-devkit/internal/process"
)

// WindowsBinaryName is the file name of the control-side build.
const WindowsBinaryName = "go-wsl-devkit.exe"

// ErrBinaryNotFound is returned when no control-side binary can be found.
var ErrBinaryNotFound = errors.New("windows binary not found")

// DrivePath converts a /mnt/<drive>/... path to its Windows form. ok is
// false for paths outside the mounted drives.
func DrivePath(p string) (string, bool) {
	rest, found := strings.CutPrefix(p, "/mnt/")
	if !found || len(rest) == 0 {
		return "", false
	}
	drive := rest[0]
	if !(drive >= 'a' && drive <= 'z' || drive >= 'A' && drive <= 'Z') {
		return "", false
	}
	if len(rest) > 1 && rest[1] != '/' {
		return "", false
	}
	tail := ""
	if len(rest) > 2 {
		tail = strings.ReplaceAll(rest[2:], "/", `\`)
	}
	return strings.ToUpper(string(drive)) + `:\` + tail, true
}

// PathConverter turns guest paths into paths the Windows side can open.
type PathConverter struct {
	Runner process.Runner
}

// ToWindows converts p. Mounted drive paths are rewritten directly; any
// other path is handed to wslpath, which yields a \\wsl.localhost share.
func (c *PathConverter) ToWindows(ctx context.Context, p string) (string, error) {
	if w, ok := DrivePath(p); ok {
		return w, nil
	}
	if c.Runner == nil {
		return "", fmt.Errorf("cannot convert %s without wslpath", p)
	}
	res, err := c.Runner.Run(ctx, "wslpath", "-w", p)
	if err != nil {
		return "", fmt.Errorf("wslpath: %w", err)
	}
	if !res.Success() {
		return "", fmt.Errorf("wslpath: exit %d: %s", res.ExitCode, res.Output())
	}
	return strings.TrimSpace(res.Stdout), nil
}

// BinaryLocator finds the control-side binary from inside the guest.
type BinaryLocator struct {
	Executable func() (string, error)
	Stat       func(string) (os.FileInfo, error)
}

// NewBinaryLocator returns a locator using the running executable.
func NewBinaryLocator() *BinaryLocator {
	return &BinaryLocator{Executable: os.Executable, Stat: os.Stat}
}

// Locate returns explicit when set, otherwise WindowsBinaryName next to
// the running executable.
func (l *BinaryLocator) Locate(explicit string) (string, error) {
	if explicit != "" {
		// Already a Windows path.
		if strings.Contains(explicit, `\`) {
			return explicit, nil
		}
		if _, err := l.Stat(explicit); err != nil {
			return "", fmt.Errorf("%w: %s", ErrBinaryNotFound, explicit)
		}
		return explicit, nil
	}

	self, err := l.Executable()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBinaryNotFound, err)
	}
	candidate := filepath.Join(filepath.Dir(self), WindowsBinaryName)
	if _, err := l.Stat(candidate); err != nil {
		return "", fmt.Errorf("%w: expected %s (use --windows-binary)", ErrBinaryNotFound, candidate)
	}
	return candidate, nil
}
