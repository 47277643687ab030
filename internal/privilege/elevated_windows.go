//go:build windows

package privilege

import "golang.org/x/sys/windows"

// IsElevated reports whether the current process token is elevated
// (running as Administrator with UAC approval).
func IsElevated() bool {
	return windows.GetCurrentProcessToken().IsElevated()
}
