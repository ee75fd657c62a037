//go:build unix

package tool

import (
	"os/exec"
	"syscall"
)

// configureProcessGroup puts the tool in its own process group and
// arranges for cancellation to signal the whole group, so helper
// processes spawned by the tool die with it.
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
