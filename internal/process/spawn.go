package process

import (
	"fmt"
	"os/exec"

	"github.com/randomizedcoder/go-wsl-devkit/internal/env"
)

// Handle identifies a spawned, detached process.
type Handle struct {
	PID  int
	Path string
	Args []string
}

// Spawner starts a process detached from the current process group or
// session so that it keeps running after the tool exits.
type Spawner interface {
	SpawnDetached(path string, args []string) (*Handle, error)
}

// SpawnerFor returns the detach backend for a context: a new process group
// without a console for the Windows host, a new session everywhere else.
func SpawnerFor(ctx env.Context) Spawner {
	if ctx.IsWindowsHost() {
		return processGroupSpawner{}
	}
	return sessionSpawner{}
}

// spawn starts cmd with stdio on the null device and releases it, so the
// tool never waits on it.
func spawn(cmd *exec.Cmd) (*Handle, error) {
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", cmd.Path, err)
	}

	h := &Handle{
		PID:  cmd.Process.Pid,
		Path: cmd.Path,
		Args: cmd.Args[1:],
	}

	// Release rather than Wait: the browser outlives us.
	_ = cmd.Process.Release()

	return h, nil
}
