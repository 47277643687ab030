//go:build !windows

package process

import (
	"errors"
	"os/exec"
	"syscall"
)

// sessionSpawner detaches by starting the child in a new session.
type sessionSpawner struct{}

func (sessionSpawner) SpawnDetached(path string, args []string) (*Handle, error) {
	cmd := exec.Command(path, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	return spawn(cmd)
}

// processGroupSpawner is the Windows backend; it cannot run on this platform.
type processGroupSpawner struct{}

func (processGroupSpawner) SpawnDetached(path string, args []string) (*Handle, error) {
	return nil, errors.New("windows process detach is not available on this platform")
}
