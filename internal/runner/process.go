package runner

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

const (
	sigterm = unix.SIGTERM
	sigkill = unix.SIGKILL
)

// setProcessGroup puts the child in its own process group so a timeout can
// signal everything the command spawned.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// signalGroup sends sig to the child's process group.
func signalGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd.Process == nil {
		return nil
	}
	err := unix.Kill(-cmd.Process.Pid, sig)
	if err == unix.ESRCH {
		return nil
	}
	return err
}
