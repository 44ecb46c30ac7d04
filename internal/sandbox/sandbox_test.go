//go:build unix

package sandbox

import (
	"context"
	"os"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"
)

func acquire(t *testing.T) (*Provisioner, *Workspace) {
	t.Helper()
	p := NewProvisioner(t.TempDir())
	ws, err := p.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { p.Release(ws) })
	return p, ws
}

func TestRunCapturesOutputAndExitCode(t *testing.T) {
	_, ws := acquire(t)
	r := NewRunner()

	res := r.Run(context.Background(), ws, []string{"sh", "-c", "echo out; echo err >&2; exit 3"}, RunOptions{Timeout: 5 * time.Second})

	if res.ExitCode != 3 {
		t.Errorf("Expected exit code 3, got %d", res.ExitCode)
	}
	if res.Stdout != "out\n" || res.Stderr != "err\n" {
		t.Errorf("Unexpected output %q / %q", res.Stdout, res.Stderr)
	}
	if res.TimedOut {
		t.Error("Should not time out")
	}
}

func TestRunUsesWorkspaceAsCwd(t *testing.T) {
	_, ws := acquire(t)
	r := NewRunner()

	if err := ws.WriteFile("input.txt", []byte("from file")); err != nil {
		t.Fatal(err)
	}
	res := r.Run(context.Background(), ws, []string{"cat", "input.txt"}, RunOptions{})
	if res.ExitCode != 0 || res.Stdout != "from file" {
		t.Errorf("Unexpected result %+v", res)
	}
}

func TestRunFeedsStdin(t *testing.T) {
	_, ws := acquire(t)
	r := NewRunner()

	res := r.Run(context.Background(), ws, []string{"cat"}, RunOptions{Stdin: "hello\n"})
	if res.Stdout != "hello\n" {
		t.Errorf("Expected stdin echoed, got %q", res.Stdout)
	}
}

func TestRunTimeoutKeepsPartialOutput(t *testing.T) {
	_, ws := acquire(t)
	r := NewRunner()

	start := time.Now()
	res := r.Run(context.Background(), ws, []string{"sh", "-c", "echo started; sleep 30"}, RunOptions{Timeout: 300 * time.Millisecond})
	elapsed := time.Since(start)

	if !res.TimedOut || res.ExitCode != TimeoutExitCode {
		t.Errorf("Expected timeout, got %+v", res)
	}
	if res.Stdout != "started\n" {
		t.Errorf("Partial output should survive, got %q", res.Stdout)
	}
	if elapsed > 300*time.Millisecond+2*time.Second {
		t.Errorf("Timeout took too long: %s", elapsed)
	}
}

func TestRunTimeoutKillsGrandchildren(t *testing.T) {
	_, ws := acquire(t)
	r := NewRunner()

	start := time.Now()
	res := r.Run(context.Background(), ws, []string{"sh", "-c", "sleep 30 & sleep 30; wait"}, RunOptions{Timeout: 200 * time.Millisecond})
	if !res.TimedOut {
		t.Errorf("Expected timeout, got %+v", res)
	}
	if time.Since(start) > 3*time.Second {
		t.Error("Background children kept the run alive")
	}
}

// running reports whether pid exists and is not a zombie.
func running(pid int) bool {
	stat, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return false
	}
	// state follows the parenthesised command name
	fields := strings.Fields(string(stat[strings.LastIndexByte(string(stat), ')')+1:]))
	return len(fields) > 0 && fields[0] != "Z"
}

func TestRunKillsBackgroundChildrenAfterNormalExit(t *testing.T) {
	if _, err := os.Stat("/proc/self/stat"); err != nil {
		t.Skip("procfs not available")
	}
	_, ws := acquire(t)
	r := NewRunner()

	res := r.Run(context.Background(), ws, []string{"sh", "-c", "sleep 317 >/dev/null 2>&1 & echo $!"}, RunOptions{Timeout: 5 * time.Second})
	if res.ExitCode != 0 || res.TimedOut {
		t.Fatalf("Expected clean exit, got %+v", res)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(res.Stdout))
	if err != nil {
		t.Fatalf("Unexpected stdout %q", res.Stdout)
	}

	deadline := time.Now().Add(2 * time.Second)
	for running(pid) && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if running(pid) {
		_ = syscall.Kill(pid, syscall.SIGKILL)
		t.Errorf("Background child %d outlived its run", pid)
	}
}

func TestRunCapsOutput(t *testing.T) {
	_, ws := acquire(t)
	r := NewRunner()

	res := r.Run(context.Background(), ws, []string{"sh", "-c", "head -c 100000 /dev/zero"}, RunOptions{MaxOutputBytes: 1024})
	if len(res.Stdout) != 1024 {
		t.Errorf("Expected 1024 bytes, got %d", len(res.Stdout))
	}
	if !res.Truncated {
		t.Error("Expected truncated flag")
	}
	if res.ExitCode != 0 {
		t.Errorf("Truncation must not fail the program, got exit %d", res.ExitCode)
	}
}

func TestRunSpawnFailure(t *testing.T) {
	_, ws := acquire(t)
	r := NewRunner()

	res := r.Run(context.Background(), ws, []string{"definitely-not-a-real-binary-4242"}, RunOptions{})
	if res.ExitCode != SpawnFailureExitCode {
		t.Errorf("Expected %d, got %d", SpawnFailureExitCode, res.ExitCode)
	}
	if !strings.Contains(res.Stderr, "definitely-not-a-real-binary-4242") {
		t.Errorf("Spawn error should be surfaced in stderr, got %q", res.Stderr)
	}
}

func TestRunSignalExitCode(t *testing.T) {
	_, ws := acquire(t)
	r := NewRunner()

	res := r.Run(context.Background(), ws, []string{"sh", "-c", "kill -SEGV $$"}, RunOptions{Timeout: 5 * time.Second})
	if res.ExitCode != 128+11 {
		t.Errorf("Expected 139, got %d", res.ExitCode)
	}
}

func TestRunEnvironmentIsReduced(t *testing.T) {
	_, ws := acquire(t)
	r := NewRunner()
	t.Setenv("COROOM_SECRET_FOR_TEST", "leak")

	res := r.Run(context.Background(), ws, []string{"sh", "-c", "echo \"$COROOM_SECRET_FOR_TEST|$HOME\""}, RunOptions{})
	if got := strings.TrimSpace(res.Stdout); got != "|"+ws.Dir {
		t.Errorf("Unexpected environment %q", got)
	}
}
