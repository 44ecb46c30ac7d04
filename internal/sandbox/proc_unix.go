//go:build unix

package sandbox

import (
	"os"
	"os/exec"
	"syscall"
)

// configureProcess starts the child in its own process group so a timeout
// kills everything it forked, not just the direct child.
func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}

// exitCode maps a finished process to a shell-style status:
// death by signal N becomes 128+N.
func exitCode(state *os.ProcessState) int {
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return state.ExitCode()
}

// killGroup kills whatever is left of the child's process group once the
// leader has exited. Background children must not outlive their run.
func killGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}
