package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"occfuse/internal/kernel"
)

// StageTiming is one pipeline stage with its kernel-side duration.
type StageTiming struct {
	Op       kernel.Op     `json:"op"`
	Path     string        `json:"path,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Report is the outcome of one completed run.
type Report struct {
	// RunID uniquely identifies the run, also in the history store.
	RunID string `json:"run_id"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Spec is a copy of the executed job.
	Spec JobSpec `json:"spec"`

	// Output is the written BREP path.
	Output string `json:"output"`

	// Stages are the per-stage kernel-side durations, in pipeline order.
	Stages []StageTiming `json:"stages"`

	// MakeConnected is the duration of the topology unification stage,
	// the quantity this tool exists to measure.
	MakeConnected time.Duration `json:"make_connected"`

	// Wall is the whole kernel session including process startup.
	Wall time.Duration `json:"wall"`

	// Counts holds the result's subshape totals when stats were requested.
	Counts *kernel.ShapeCounts `json:"counts,omitempty"`

	// Valid holds the kernel's verdict when a check was requested.
	Valid *bool `json:"valid,omitempty"`

	// KernelVersion is filled in by callers that probed the kernel.
	KernelVersion string `json:"kernel_version,omitempty"`
}

// Stage returns the duration of the first stage with the given op.
func (r *Report) Stage(op kernel.Op) (time.Duration, bool) {
	for _, st := range r.Stages {
		if st.Op == op {
			return st.Duration, true
		}
	}
	return 0, false
}

// Runner executes fuse jobs against a kernel driver.
type Runner struct {
	driver kernel.Driver
	logger *zap.Logger
}

// NewRunner creates a runner.
func NewRunner(driver kernel.Driver, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{driver: driver, logger: logger}
}

// Run validates the spec, executes the pipeline in one kernel session and
// assembles the report. Errors keep their type: a missing or unreadable
// input surfaces as *kernel.ImportError carrying the filename, a kernel
// crash as *kernel.SessionError.
func (r *Runner) Run(ctx context.Context, spec JobSpec) (*Report, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	output := spec.OutputPath()
	plan := kernel.NewPlan()
	volume := plan.ImportSTEP(spec.Volume)
	surface := plan.ImportSTEP(spec.Surface)
	fused := plan.Fuse(volume, surface)
	connected := plan.MakeConnected(fused)
	plan.ExportBREP(connected, output)
	if spec.CollectStats {
		plan.Stats(connected)
	}
	if spec.CheckResult {
		plan.Check(connected)
	}
	if err := plan.Err(); err != nil {
		return nil, err
	}

	report := &Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Spec:      spec,
		Output:    output,
	}

	r.logger.Info("starting fuse run",
		zap.String("run_id", report.RunID),
		zap.String("volume", spec.Volume),
		zap.String("surface", spec.Surface),
		zap.Int("threads", spec.Threads),
		zap.Bool("run_parallel", spec.RunParallel),
		zap.String("output", output))

	opts := kernel.Options{
		Threads:     spec.Threads,
		RunParallel: spec.RunParallel,
		Timeout:     spec.Timeout,
	}
	result, err := r.driver.Execute(ctx, plan, opts)
	if err != nil {
		return nil, err
	}
	if failed := result.Failed(); failed != nil {
		return nil, kernel.StepFailure(failed)
	}

	report.FinishedAt = time.Now()
	report.Wall = result.Wall
	for _, sr := range result.Steps {
		report.Stages = append(report.Stages, StageTiming{
			Op:       sr.Step.Op,
			Path:     sr.Step.Path,
			Duration: sr.Duration,
		})
		switch sr.Step.Op {
		case kernel.OpMakeConnected:
			report.MakeConnected = sr.Duration
		case kernel.OpStats:
			report.Counts = sr.Counts
		case kernel.OpCheck:
			report.Valid = sr.Valid
		}
	}

	r.logger.Info("fuse run finished",
		zap.String("run_id", report.RunID),
		zap.Duration("make_connected", report.MakeConnected),
		zap.Duration("wall", report.Wall))

	return report, nil
}
