//go:build !windows

package privilege

// IsElevated always reports false: relay rules only exist on the Windows host.
func IsElevated() bool {
	return false
}
