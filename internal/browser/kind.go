// Package browser describes the supported browsers: where they are
// installed, how they are named as processes and which flags put them into
// remote-debugging mode.
//
// Kind is a closed set. Every per-kind table is an exhaustive switch, so a
// new browser means a new constant plus an update at each switch.
package browser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/randomizedcoder/go-wsl-devkit/internal/env"
)

// Kind identifies a supported browser.
type Kind string

const (
	// Chrome is the chrome family (Google Chrome, Chromium). Its debugging
	// server always binds the loopback address.
	Chrome Kind = "chrome"

	// Firefox is Mozilla Firefox.
	Firefox Kind = "firefox"

	// LibreWolf is the LibreWolf fork of Firefox.
	LibreWolf Kind = "librewolf"
)

// Kinds lists every supported kind in display order.
func Kinds() []Kind {
	return []Kind{Chrome, Firefox, LibreWolf}
}

// ParseKind converts a command-line value into a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case Chrome:
		return Chrome, nil
	case Firefox:
		return Firefox, nil
	case LibreWolf:
		return LibreWolf, nil
	default:
		return "", fmt.Errorf("unknown browser %q (want chrome, firefox or librewolf)", s)
	}
}

// String returns the command-line name of the kind.
func (k Kind) String() string {
	return string(k)
}

// LoopbackAddr is the address every debugging server is bound to.
const LoopbackAddr = "127.0.0.1"

// chromeFlags are passed to every chrome-family launch to get a quiet,
// self-contained instance.
var chromeFlags = []string{
	"--no-first-run",
	"--no-default-browser-check",
	"--disable-background-networking",
	"--disable-client-side-phishing-detection",
	"--disable-component-update",
	"--disable-default-apps",
	"--disable-hang-monitor",
	"--disable-popup-blocking",
	"--disable-prompt-on-repost",
	"--disable-sync",
	"--disable-web-resources",
	"--metrics-recording-only",
	"--password-store=basic",
	"--use-mock-keychain",
}

// startURL is the page every launch opens.
const startURL = "about:blank"

// DebugArgs returns the command-line arguments that start the browser with
// its debugging server on port, using profileDir as a throwaway profile.
//
// Chrome ignores --remote-debugging-address and always binds 127.0.0.1;
// that is why the control side needs a relay rule. The firefox family takes
// an address:port pair and is bound to loopback as well so both behave the
// same behind the relay.
func DebugArgs(k Kind, port int, profileDir string) []string {
	switch k {
	case Chrome:
		args := []string{
			"--remote-debugging-port=" + strconv.Itoa(port),
			"--user-data-dir=" + profileDir,
		}
		args = append(args, chromeFlags...)
		return append(args, startURL)
	case Firefox, LibreWolf:
		return []string{
			"--start-debugger-server=" + LoopbackAddr + ":" + strconv.Itoa(port),
			"--profile", profileDir,
			"--no-remote",
			startURL,
		}
	default:
		return nil
	}
}

// ProcessName returns the image name used to terminate running instances.
func ProcessName(k Kind, ctx env.Context) string {
	var base string
	switch k {
	case Chrome:
		base = "chrome"
	case Firefox:
		base = "firefox"
	case LibreWolf:
		base = "librewolf"
	default:
		return ""
	}
	if ctx.IsWindowsHost() {
		return base + ".exe"
	}
	return base
}

// BinaryNames returns the names searched for on PATH when none of the
// well-known install paths exist.
func BinaryNames(k Kind) []string {
	switch k {
	case Chrome:
		return []string{"chrome", "google-chrome", "google-chrome-stable", "chromium", "chromium-browser"}
	case Firefox:
		return []string{"firefox", "firefox-esr"}
	case LibreWolf:
		return []string{"librewolf"}
	default:
		return nil
	}
}

// ProfileDirName is the directory name (under the temp dir) of the
// throwaway profile used for a kind.
func ProfileDirName(k Kind) string {
	return "wsl-dev-" + string(k) + "-profile"
}
