//go:build windows

package process

import "os/exec"

// configureProcGroup is a no-op on Windows; there are no POSIX process groups.
func configureProcGroup(_ *exec.Cmd) {}

// terminateChild has no graceful-stop signal on Windows; kill outright.
func terminateChild(cmd *exec.Cmd) {
	killChild(cmd)
}

// killChild forcefully terminates the child process.
func killChild(cmd *exec.Cmd) {
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}
