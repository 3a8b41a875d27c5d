//go:build windows

package runner

import (
	"os/exec"
	"time"
)

func setProcessGroup(cmd *exec.Cmd) {
	cmd.WaitDelay = 5 * time.Second
}
