package browser

import (
	"errors"
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randomizedcoder/go-wsl-devkit/internal/env"
)

// fakeInfo is a minimal fs.FileInfo.
type fakeInfo struct {
	name string
	mode fs.FileMode
}

func (f fakeInfo) Name() string       { return f.name }
func (f fakeInfo) Size() int64        { return 0 }
func (f fakeInfo) Mode() fs.FileMode  { return f.mode }
func (f fakeInfo) ModTime() time.Time { return time.Time{} }
func (f fakeInfo) IsDir() bool        { return f.mode.IsDir() }
func (f fakeInfo) Sys() any           { return nil }

// fakeLocator builds a Locator over an in-memory set of files and PATH entries.
func fakeLocator(files map[string]fs.FileMode, onPath map[string]string, vars map[string]string) *Locator {
	return &Locator{
		Stat: func(p string) (fs.FileInfo, error) {
			mode, ok := files[p]
			if !ok {
				return nil, fs.ErrNotExist
			}
			return fakeInfo{name: p, mode: mode}, nil
		},
		LookPath: func(name string) (string, error) {
			if p, ok := onPath[name]; ok {
				return p, nil
			}
			return "", errors.New("executable file not found in $PATH")
		},
		Getenv: func(k string) string { return vars[k] },
		HomeDir: func() (string, error) {
			return "/home/dev", nil
		},
	}
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"chrome", Chrome, false},
		{"Chrome", Chrome, false},
		{" firefox ", Firefox, false},
		{"LIBREWOLF", LibreWolf, false},
		{"edge", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKind(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDebugArgs_Chrome(t *testing.T) {
	args := DebugArgs(Chrome, 9222, "/tmp/profile")

	require.GreaterOrEqual(t, len(args), 3)
	assert.Equal(t, "--remote-debugging-port=9222", args[0])
	assert.Equal(t, "--user-data-dir=/tmp/profile", args[1])
	assert.Equal(t, "about:blank", args[len(args)-1])
	for _, a := range args {
		assert.False(t, strings.HasPrefix(a, "--remote-debugging-address"),
			"chrome binds loopback regardless, address flag must not be passed")
	}
	assert.Contains(t, args, "--no-first-run")
}

func TestDebugArgs_FirefoxFamily(t *testing.T) {
	for _, k := range []Kind{Firefox, LibreWolf} {
		t.Run(string(k), func(t *testing.T) {
			args := DebugArgs(k, 6000, "/tmp/ff")
			assert.Equal(t, []string{
				"--start-debugger-server=127.0.0.1:6000",
				"--profile", "/tmp/ff",
				"--no-remote",
				"about:blank",
			}, args)
		})
	}
}

func TestDebugArgs_UnknownKind(t *testing.T) {
	assert.Nil(t, DebugArgs(Kind("edge"), 1, "x"))
}

func TestProcessName(t *testing.T) {
	tests := []struct {
		kind Kind
		ctx  env.Context
		want string
	}{
		{Chrome, env.ControlNative, "chrome.exe"},
		{Firefox, env.ControlNative, "firefox.exe"},
		{LibreWolf, env.ControlNative, "librewolf.exe"},
		{Chrome, env.OtherLinux, "chrome"},
		{Firefox, env.OtherMacOS, "firefox"},
		{LibreWolf, env.GuestVirtualized, "librewolf"},
		{Kind("edge"), env.ControlNative, ""},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind)+"/"+tt.ctx.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, ProcessName(tt.kind, tt.ctx))
		})
	}
}

func TestInstallPaths_EveryKindAndContext(t *testing.T) {
	contexts := []env.Context{env.ControlNative, env.GuestVirtualized, env.OtherLinux, env.OtherMacOS}
	for _, k := range Kinds() {
		for _, ctx := range contexts {
			assert.NotEmpty(t, InstallPaths(k, ctx), "%s/%s has no install paths", k, ctx)
		}
		assert.Empty(t, InstallPaths(k, env.Unknown))
		assert.NotEmpty(t, BinaryNames(k))
	}
}

func TestLocator_FixedPathWins(t *testing.T) {
	l := fakeLocator(
		map[string]fs.FileMode{
			"/usr/bin/chromium": 0o755,
		},
		map[string]string{"google-chrome": "/opt/google/chrome/google-chrome"},
		nil,
	)

	path, ok := l.Locate(Chrome, env.OtherLinux)
	require.True(t, ok)
	assert.Equal(t, "/usr/bin/chromium", path, "fixed candidates must precede search-path candidates")
}

func TestLocator_FixedPathOrder(t *testing.T) {
	l := fakeLocator(
		map[string]fs.FileMode{
			"/usr/bin/google-chrome-stable": 0o755,
			"/snap/bin/chromium":            0o755,
		},
		nil, nil,
	)

	path, ok := l.Locate(Chrome, env.OtherLinux)
	require.True(t, ok)
	assert.Equal(t, "/usr/bin/google-chrome-stable", path)
}

func TestLocator_SkipsDirectories(t *testing.T) {
	l := fakeLocator(
		map[string]fs.FileMode{
			"/usr/bin/firefox":     fs.ModeDir | 0o755,
			"/usr/bin/firefox-esr": 0o755,
		},
		nil, nil,
	)

	path, ok := l.Locate(Firefox, env.OtherLinux)
	require.True(t, ok)
	assert.Equal(t, "/usr/bin/firefox-esr", path)
}

func TestLocator_FallsBackToSearchPath(t *testing.T) {
	l := fakeLocator(nil, map[string]string{"librewolf": "/home/dev/bin/librewolf"}, nil)

	path, ok := l.Locate(LibreWolf, env.OtherLinux)
	require.True(t, ok)
	assert.Equal(t, "/home/dev/bin/librewolf", path)
}

func TestLocator_NotFound(t *testing.T) {
	l := fakeLocator(nil, nil, nil)

	path, ok := l.Locate(Chrome, env.OtherMacOS)
	assert.False(t, ok)
	assert.Empty(t, path)
}

func TestLocator_ExpandsWindowsVariables(t *testing.T) {
	local := `C:\Users\dev\AppData\Local`
	l := fakeLocator(
		map[string]fs.FileMode{
			local + `\Google\Chrome\Application\chrome.exe`: 0o644,
		},
		nil,
		map[string]string{"LocalAppData": local},
	)

	path, ok := l.Locate(Chrome, env.ControlNative)
	require.True(t, ok)
	assert.Equal(t, local+`\Google\Chrome\Application\chrome.exe`, path)
}

func TestLocator_UnsetVariableSkipsCandidate(t *testing.T) {
	l := fakeLocator(nil, nil, nil)
	candidates := l.Candidates(Chrome, env.ControlNative)
	require.Len(t, candidates, 3)
	assert.Equal(t, "", candidates[2])
}

func TestProfileDirName(t *testing.T) {
	assert.Equal(t, "wsl-dev-chrome-profile", ProfileDirName(Chrome))
}
