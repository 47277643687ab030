//go:build windows

package process

import (
	"errors"
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"
)

// processGroupSpawner detaches by creating a new process group with no
// console attached.
type processGroupSpawner struct{}

func (processGroupSpawner) SpawnDetached(path string, args []string) (*Handle, error) {
	cmd := exec.Command(path, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: windows.CREATE_NEW_PROCESS_GROUP | windows.DETACHED_PROCESS,
	}
	return spawn(cmd)
}

// sessionSpawner is the unix backend; it cannot run on this platform.
type sessionSpawner struct{}

func (sessionSpawner) SpawnDetached(path string, args []string) (*Handle, error) {
	return nil, errors.New("unix session detach is not available on this platform")
}
