//go:build !windows

package runner

import (
	"os/exec"
	"syscall"
	"time"
)

// setProcessGroup puts the child in its own process group so a cancelled
// context kills helpers it spawned too (soffice forks oosplash).
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 5 * time.Second
}
