package browser

import (
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/randomizedcoder/go-wsl-devkit/internal/env"
)

// Locator resolves the executable for a browser kind.
type Locator struct {
	// Stat reports file info for a candidate path (default os.Stat).
	Stat func(path string) (fs.FileInfo, error)

	// LookPath searches the executable search path (default exec.LookPath).
	LookPath func(file string) (string, error)

	// Getenv expands %VAR% and $VAR references (default os.Getenv).
	Getenv func(key string) string

	// HomeDir returns the user's home directory for "~" expansion.
	HomeDir func() (string, error)
}

// NewLocator returns a Locator backed by the real filesystem.
func NewLocator() *Locator {
	return &Locator{
		Stat:     os.Stat,
		LookPath: exec.LookPath,
		Getenv:   os.Getenv,
		HomeDir:  os.UserHomeDir,
	}
}

// Locate returns the first existing regular file among the well-known
// install paths for (k, ctx), then the first binary name found on the
// search path. The ordering is fixed so machines with several installs
// behave the same way every time. ok is false when nothing was found.
func (l *Locator) Locate(k Kind, ctx env.Context) (path string, ok bool) {
	for _, candidate := range InstallPaths(k, ctx) {
		expanded := l.expand(candidate)
		if expanded == "" {
			continue
		}
		info, err := l.Stat(expanded)
		if err == nil && info.Mode().IsRegular() {
			return expanded, true
		}
	}

	for _, name := range BinaryNames(k) {
		if found, err := l.LookPath(name); err == nil && found != "" {
			return found, true
		}
	}

	return "", false
}

// Candidates returns the expanded fixed paths searched for (k, ctx). Used to
// tell the user where the tool looked.
func (l *Locator) Candidates(k Kind, ctx env.Context) []string {
	paths := InstallPaths(k, ctx)
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, l.expand(p))
	}
	return out
}

var windowsVarPattern = regexp.MustCompile(`%([A-Za-z0-9_]+)%`)

// expand resolves %VAR%, $VAR and a leading "~". A path whose %VAR% is
// unset expands to "" and is skipped.
func (l *Locator) expand(p string) string {
	unset := false
	p = windowsVarPattern.ReplaceAllStringFunc(p, func(m string) string {
		v := l.Getenv(strings.Trim(m, "%"))
		if v == "" {
			unset = true
		}
		return v
	})
	if unset {
		return ""
	}
	p = os.Expand(p, l.Getenv)

	if strings.HasPrefix(p, "~/") && l.HomeDir != nil {
		if home, err := l.HomeDir(); err == nil {
			p = filepath.Join(home, p[2:])
		}
	}
	return p
}
