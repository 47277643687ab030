// Package privilege reports whether the process holds the administrative
// rights needed to change the host's relay configuration.
package privilege

// Checker reports elevation.
type Checker interface {
	IsElevated() bool
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func() bool

// IsElevated calls f.
func (f CheckerFunc) IsElevated() bool { return f() }

// Static is a Checker with a fixed answer.
type Static bool

// IsElevated returns the fixed answer.
func (s Static) IsElevated() bool { return bool(s) }

// System returns the Checker for the running process.
func System() Checker {
	return CheckerFunc(IsElevated)
}
