// Package processtest provides in-memory Runner and Spawner implementations
// for tests.
package processtest

import (
	"context"
	"strings"
	"sync"

	"github.com/randomizedcoder/go-wsl-devkit/internal/process"
)

// Call records one command execution.
type Call struct {
	Name string
	Args []string
}

// String renders the call as a command line.
func (c Call) String() string {
	return process.CommandString(c.Name, c.Args)
}

// HandlerFunc decides the outcome of a command.
type HandlerFunc func(name string, args []string) (*process.Result, error)

// Runner is a process.Runner that records calls and answers through
// Handler. A nil Handler makes every command succeed with no output.
type Runner struct {
	Handler HandlerFunc

	mu    sync.Mutex
	calls []Call
}

// Run implements process.Runner.
func (r *Runner) Run(ctx context.Context, name string, args ...string) (*process.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, Call{Name: name, Args: append([]string(nil), args...)})
	r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return &process.Result{ExitCode: -1}, err
	}
	if r.Handler == nil {
		return &process.Result{}, nil
	}
	return r.Handler(name, args)
}

// Calls returns a copy of the recorded calls.
func (r *Runner) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// CallsTo returns the recorded calls of the named command.
func (r *Runner) CallsTo(name string) []Call {
	var out []Call
	for _, c := range r.Calls() {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// CountContaining returns how many calls have substr in their command line.
func (r *Runner) CountContaining(substr string) int {
	n := 0
	for _, c := range r.Calls() {
		if strings.Contains(c.String(), substr) {
			n++
		}
	}
	return n
}

// Exit returns a HandlerFunc result with the given code and stdout.
func Exit(code int, stdout string) (*process.Result, error) {
	return &process.Result{ExitCode: code, Stdout: stdout}, nil
}

// Spawner is a process.Spawner that records spawns instead of starting
// processes.
type Spawner struct {
	// Err, when set, is returned by every spawn.
	Err error

	mu      sync.Mutex
	spawned []*process.Handle
	nextPID int
}

// SpawnDetached implements process.Spawner.
func (s *Spawner) SpawnDetached(path string, args []string) (*process.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}
	s.nextPID++
	h := &process.Handle{PID: 1000 + s.nextPID, Path: path, Args: append([]string(nil), args...)}
	s.spawned = append(s.spawned, h)
	return h, nil
}

// Spawned returns every handle handed out.
func (s *Spawner) Spawned() []*process.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*process.Handle(nil), s.spawned...)
}
