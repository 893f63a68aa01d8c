//go:build linux

package driver

import (
	"os/exec"
	"syscall"
)

// setProcAttr makes the kernel kill the guest if leaf dies first, so a
// guest never outlives its orchestrator.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Pdeathsig: syscall.SIGKILL}
}
