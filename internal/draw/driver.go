// Package draw binds the delegated geometry pipeline to an external
// OpenCASCADE Draw Test Harness process.
//
// A recorded plan becomes one Tcl batch script (script.go), a Runner
// executes it in a child kernel process (runner.go), and the transcript is
// parsed back into per-step results (parse.go). Holding the kernel at
// arm's length this way means a kernel crash surfaces as an error value
// instead of taking the tool down, and the kernel's thread-pool size is
// just an environment variable of the child process rather than global
// state of this one.
package draw

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"occfuse/internal/kernel"
)

// Driver executes recorded plans through a Runner. It implements
// kernel.Driver.
type Driver struct {
	runner Runner
	logger *zap.Logger
}

var _ kernel.Driver = (*Driver)(nil)

// NewDriver wraps a runner.
func NewDriver(runner Runner, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{runner: runner, logger: logger}
}

// Execute runs the plan in one kernel session.
func (d *Driver) Execute(ctx context.Context, plan *kernel.Plan, opts kernel.Options) (*kernel.Result, error) {
	if plan == nil || plan.Len() == 0 {
		return nil, fmt.Errorf("empty plan")
	}
	if err := plan.Err(); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	script, err := Script(plan, opts)
	if err != nil {
		return nil, err
	}

	inv := Invocation{
		Script: script,
		Env: []string{
			fmt.Sprintf("OMP_NUM_THREADS=%d", opts.Threads),
		},
		Timeout: opts.Timeout,
	}

	d.logger.Debug("executing plan",
		zap.Int("steps", plan.Len()),
		zap.Int("threads", opts.Threads),
		zap.Bool("run_parallel", opts.RunParallel))

	start := time.Now()
	tr, err := d.runner.Run(ctx, inv)
	if err != nil {
		return nil, fmt.Errorf("kernel session: %w", err)
	}

	result, inFlight := ParseTranscript(tr.Stdout, plan)
	result.Wall = time.Since(start)
	result.ExitCode = tr.ExitCode

	if tr.Killed {
		return result, &kernel.SessionError{
			ExitCode: tr.ExitCode,
			Stderr:   tr.KillReason,
			InFlight: inFlight,
		}
	}
	if inFlight != nil {
		return result, &kernel.SessionError{
			ExitCode: tr.ExitCode,
			Stderr:   tr.StderrTail(5),
			InFlight: inFlight,
		}
	}

	if failed := result.Failed(); failed != nil {
		d.logger.Debug("kernel rejected step",
			zap.Int("step", failed.Step.Index),
			zap.String("op", string(failed.Step.Op)),
			zap.String("message", failed.Message))
	}
	return result, nil
}

// Probe runs a minimal session to confirm the kernel answers and report its
// version.
func (d *Driver) Probe(ctx context.Context) (*kernel.Info, error) {
	inv := Invocation{
		Script:  probeScript,
		Timeout: 2 * time.Minute,
	}
	tr, err := d.runner.Run(ctx, inv)
	if err != nil {
		return nil, fmt.Errorf("kernel probe: %w", err)
	}
	if tr.Killed || tr.ExitCode != 0 {
		return nil, &kernel.SessionError{ExitCode: tr.ExitCode, Stderr: tr.StderrTail(5)}
	}

	version := ParseVersion(tr.Stdout)
	if version == "" {
		return nil, fmt.Errorf("kernel probe: no version banner in output")
	}
	return &kernel.Info{
		Binary:  d.runner.Binary(),
		Version: version,
	}, nil
}
