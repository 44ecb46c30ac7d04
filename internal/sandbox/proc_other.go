//go:build !unix

package sandbox

import (
	"os"
	"os/exec"
)

func configureProcess(cmd *exec.Cmd) {}

func killGroup(cmd *exec.Cmd) {}

func exitCode(state *os.ProcessState) int {
	return state.ExitCode()
}
