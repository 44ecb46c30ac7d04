package sandbox

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	TimeoutExitCode       = 124
	SpawnFailureExitCode  = 127
	CanceledExitCode      = 130
	DefaultMaxOutputBytes = 1 << 20

	// waitDelay bounds how long Run waits for output pipes after the child is gone.
	waitDelay = time.Second
)

type RunOptions struct {
	Stdin          string
	Timeout        time.Duration
	MaxOutputBytes int
}

// Result is the outcome of one spawned command. Program failures are data here,
// never errors.
type Result struct {
	Stdout    string
	Stderr    string
	ExitCode  int
	TimedOut  bool
	Truncated bool
	Duration  time.Duration
}

// Runner spawns commands inside workspaces with a reduced environment.
type Runner struct {
	// PassEnv lists host variables forwarded to the child.
	PassEnv []string
}

func NewRunner() *Runner {
	return &Runner{PassEnv: []string{"PATH", "NODE_PATH"}}
}

// Run executes args with ws as working directory. The deadline of ctx and
// opts.Timeout both apply; whichever is sooner kills the process group.
func (r *Runner) Run(ctx context.Context, ws *Workspace, args []string, opts RunOptions) Result {
	if len(args) == 0 {
		return Result{ExitCode: SpawnFailureExitCode, Stderr: "empty command"}
	}
	limit := opts.MaxOutputBytes
	if limit <= 0 {
		limit = DefaultMaxOutputBytes
	}
	runCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	name := args[0]
	if strings.HasPrefix(name, "./") {
		name = filepath.Join(ws.Dir, strings.TrimPrefix(name, "./"))
	}
	cmd := exec.CommandContext(runCtx, name, args[1:]...)
	cmd.Dir = ws.Dir
	cmd.Env = r.environ(ws)
	cmd.WaitDelay = waitDelay
	configureProcess(cmd)

	stdout := newCappedBuffer(limit)
	stderr := newCappedBuffer(limit)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if opts.Stdin != "" {
		cmd.Stdin = strings.NewReader(opts.Stdin)
	}

	started := time.Now()
	err := cmd.Run()
	killGroup(cmd)
	res := Result{
		Duration: time.Since(started),
	}

	switch {
	case err == nil:
		res.ExitCode = 0
	case cmd.ProcessState == nil && runCtx.Err() == nil:
		// never started: missing binary, bad workspace
		res.ExitCode = SpawnFailureExitCode
		stderr.Write([]byte(err.Error()))
		log.Warn().Err(err).Str("module", "sandbox").Str("run_id", ws.ID).Str("cmd", args[0]).Msg("spawn failed")
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		res.ExitCode = TimeoutExitCode
		res.TimedOut = true
	case runCtx.Err() != nil:
		res.ExitCode = CanceledExitCode
	default:
		res.ExitCode = exitCode(cmd.ProcessState)
	}

	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	res.Truncated = stdout.Truncated() || stderr.Truncated()
	return res
}

func (r *Runner) environ(ws *Workspace) []string {
	env := make([]string, 0, len(r.PassEnv)+3)
	for _, key := range r.PassEnv {
		if v, ok := os.LookupEnv(key); ok {
			env = append(env, key+"="+v)
		}
	}
	return append(env,
		"HOME="+ws.Dir,
		"TMPDIR="+ws.Dir,
		"LANG=C.UTF-8",
	)
}
