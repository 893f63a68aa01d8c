//go:build !linux

package driver

import "os/exec"

// setProcAttr is a no-op where no parent-death signal exists; Launch's
// signal forwarding is the only guard there.
func setProcAttr(cmd *exec.Cmd) {}
