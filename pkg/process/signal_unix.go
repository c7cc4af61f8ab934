//go:build unix

package process

import (
	"os/exec"
	"syscall"
)

// configureProcGroup places the child in its own process group so signals
// reach grandchildren too.
func configureProcGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// signalGroup sends sig to the child's process group. Errors (e.g. the group
// is already gone) are ignored.
func signalGroup(cmd *exec.Cmd, sig syscall.Signal) {
	if cmd.Process == nil {
		return
	}
	_ = syscall.Kill(-cmd.Process.Pid, sig)
}

// terminateChild sends the graceful-stop signal to the child's group.
func terminateChild(cmd *exec.Cmd) {
	signalGroup(cmd, syscall.SIGTERM)
}

// killChild sends the unconditional kill signal to the child's group.
func killChild(cmd *exec.Cmd) {
	signalGroup(cmd, syscall.SIGKILL)
}
