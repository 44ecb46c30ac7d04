package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/coroom/internal/languages"
	"github.com/dkeye/coroom/internal/metrics"
	"github.com/dkeye/coroom/internal/sandbox"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrInvalidRequest covers malformed payloads and unknown languages.
	ErrInvalidRequest = errors.New("invalid execution request")
	// ErrProvision means no workspace could be created.
	ErrProvision = errors.New("workspace provisioning failed")
	// ErrUnavailable means the request gave up waiting for an execution slot.
	ErrUnavailable = errors.New("execution capacity unavailable")
)

// Phase is a step of one execution request.
type Phase string

const (
	PhaseValidating   Phase = "validating"
	PhaseProvisioning Phase = "provisioning"
	PhaseResolving    Phase = "resolving"
	PhaseRunning      Phase = "running"
	PhaseCleaning     Phase = "cleaning"
	PhaseDone         Phase = "done"
)

type ExecuteOptions struct {
	LanguageID string
	SourceCode string
	Stdin      string
}

// ExecutionResult is returned to the requester as-is and never stored.
type ExecutionResult struct {
	Stdout    string `json:"stdout"`
	Stderr    string `json:"stderr"`
	ExitCode  int    `json:"exitCode"`
	TimedOut  bool   `json:"timedOut"`
	Truncated bool   `json:"truncated,omitempty"`
	Strategy  string `json:"strategy,omitempty"`
}

type Config struct {
	Timeout        time.Duration
	MaxOutputBytes int
	MaxConcurrent  int64
}

type Executor struct {
	resolver    *languages.Resolver
	provisioner *sandbox.Provisioner
	runner      *sandbox.Runner
	slots       *semaphore.Weighted
	cfg         Config
}

func NewExecutor(resolver *languages.Resolver, provisioner *sandbox.Provisioner, runner *sandbox.Runner, cfg Config) *Executor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = sandbox.DefaultMaxOutputBytes
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 8
	}
	return &Executor{
		resolver:    resolver,
		provisioner: provisioner,
		runner:      runner,
		slots:       semaphore.NewWeighted(cfg.MaxConcurrent),
		cfg:         cfg,
	}
}

// Execute runs one request through validate, provision, resolve, run and
// cleanup. Any program outcome, including compile errors and timeouts, is a
// result; errors are reserved for bad requests and provisioning faults.
func (e *Executor) Execute(ctx context.Context, opts ExecuteOptions) (*ExecutionResult, error) {
	logger := log.With().Str("module", "executor").Str("language", opts.LanguageID).Logger()

	logger.Debug().Str("phase", string(PhaseValidating)).Msg("phase")
	if err := e.validate(opts); err != nil {
		return nil, err
	}

	if err := e.slots.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer e.slots.Release(1)
	metrics.ActiveExecutions.Inc()
	defer metrics.ActiveExecutions.Dec()

	started := time.Now()

	logger.Debug().Str("phase", string(PhaseProvisioning)).Msg("phase")
	ws, err := e.provisioner.Acquire()
	if err != nil {
		metrics.ExecutionsTotal.WithLabelValues(opts.LanguageID, "provision_error").Inc()
		logger.Error().Err(err).Msg("provisioning failed")
		return nil, fmt.Errorf("%w: %v", ErrProvision, err)
	}
	logger = logger.With().Str("run_id", ws.ID).Logger()
	defer func() {
		logger.Debug().Str("phase", string(PhaseCleaning)).Msg("phase")
		e.provisioner.Release(ws)
		logger.Debug().Str("phase", string(PhaseDone)).Msg("phase")
	}()

	logger.Debug().Str("phase", string(PhaseResolving)).Msg("phase")
	tc, err := e.resolver.Resolve(ctx, opts.LanguageID)
	if err != nil {
		// validated above; only reachable if the table changes underneath us
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	logger.Debug().Str("phase", string(PhaseRunning)).Str("strategy", tc.Strategy).Msg("phase")
	res := e.run(ctx, ws, tc, opts)

	total := time.Since(started)
	metrics.ExecutionDuration.WithLabelValues(opts.LanguageID, "total").Observe(float64(total.Milliseconds()))
	metrics.ExecutionsTotal.WithLabelValues(opts.LanguageID, outcome(res)).Inc()
	logger.Info().
		Int("exit_code", res.ExitCode).
		Bool("timed_out", res.TimedOut).
		Dur("duration", total).
		Msg("execution finished")
	return res, nil
}

func (e *Executor) validate(opts ExecuteOptions) error {
	if opts.LanguageID == "" {
		return fmt.Errorf("%w: language is required", ErrInvalidRequest)
	}
	if !e.resolver.Supports(opts.LanguageID) {
		return fmt.Errorf("%w: %w: %q", ErrInvalidRequest, languages.ErrUnsupportedLanguage, opts.LanguageID)
	}
	return nil
}

// run writes the source and drives the compile and run stages under one
// shared deadline. The run stage starts only after a clean compile.
func (e *Executor) run(ctx context.Context, ws *sandbox.Workspace, tc languages.Toolchain, opts ExecuteOptions) *ExecutionResult {
	out := &ExecutionResult{Strategy: tc.Strategy}

	if err := ws.WriteFile(tc.SourceFile, []byte(opts.SourceCode)); err != nil {
		out.ExitCode = sandbox.SpawnFailureExitCode
		out.Stderr = err.Error()
		return out
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	budget := e.cfg.MaxOutputBytes
	if tc.Compiled() {
		res := e.runner.Run(ctx, ws, tc.CompileCommand, sandbox.RunOptions{MaxOutputBytes: budget})
		metrics.ExecutionDuration.WithLabelValues(tc.Language, "compile").Observe(float64(res.Duration.Milliseconds()))
		merge(out, res)
		if res.ExitCode != 0 || res.TimedOut {
			return out
		}
		budget -= max(len(res.Stdout), len(res.Stderr))
		if budget <= 0 {
			out.Truncated = true
			return out
		}
	}

	res := e.runner.Run(ctx, ws, tc.RunCommand, sandbox.RunOptions{
		Stdin:          opts.Stdin,
		MaxOutputBytes: budget,
	})
	metrics.ExecutionDuration.WithLabelValues(tc.Language, "run").Observe(float64(res.Duration.Milliseconds()))
	merge(out, res)
	return out
}

func merge(out *ExecutionResult, res sandbox.Result) {
	out.Stdout += res.Stdout
	out.Stderr += res.Stderr
	out.ExitCode = res.ExitCode
	out.TimedOut = res.TimedOut
	out.Truncated = out.Truncated || res.Truncated
}

func outcome(res *ExecutionResult) string {
	switch {
	case res.TimedOut:
		return "timeout"
	case res.ExitCode == sandbox.SpawnFailureExitCode:
		return "spawn_error"
	case res.ExitCode != 0:
		return "exit_nonzero"
	}
	return "ok"
}
