//go:build unix

package exec

import (
	"os/exec"
	"syscall"
)

// killProcessGroup starts the command in its own process group and kills
// the whole group on cancellation, so children spawned by the tool go too.
func killProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		if err == syscall.ESRCH {
			return nil
		}
		return err
	}
}
