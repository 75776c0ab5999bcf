package kernel

import (
	"context"
	"time"
)

// StepStatus reports how a step ended.
type StepStatus string

const (
	// StepOK means the kernel completed the operation.
	StepOK StepStatus = "ok"

	// StepFailed means the kernel reported an error for the operation.
	StepFailed StepStatus = "failed"

	// StepSkipped means an earlier failure aborted the session before this
	// step ran.
	StepSkipped StepStatus = "skipped"
)

// ShapeCounts are subshape totals reported by a stats step.
type ShapeCounts struct {
	Solids   int `json:"solids"`
	Shells   int `json:"shells"`
	Faces    int `json:"faces"`
	Wires    int `json:"wires"`
	Edges    int `json:"edges"`
	Vertices int `json:"vertices"`
}

// StepResult is the outcome of one plan step.
type StepResult struct {
	// Step is a copy of the recorded step this result belongs to.
	Step Step `json:"step"`

	// Status reports how the step ended.
	Status StepStatus `json:"status"`

	// Duration is the kernel-side wall time of the operation, measured
	// inside the session so process startup never pollutes it.
	Duration time.Duration `json:"duration"`

	// Message is the kernel's error text for failed steps.
	Message string `json:"message,omitempty"`

	// Raw is the kernel output attributed to this step.
	Raw string `json:"-"`

	// Counts is populated for stats steps.
	Counts *ShapeCounts `json:"counts,omitempty"`

	// Valid is populated for check steps.
	Valid *bool `json:"valid,omitempty"`
}

// Result is the outcome of executing a plan in one kernel session.
type Result struct {
	// Steps has one entry per plan step, in plan order.
	Steps []StepResult `json:"steps"`

	// Wall is the wall time of the whole session, process startup included.
	Wall time.Duration `json:"wall"`

	// ExitCode is the kernel process exit code.
	ExitCode int `json:"exit_code"`
}

// Step returns the result of the step with the given index, or nil.
func (r *Result) Step(index int) *StepResult {
	if r == nil || index < 0 || index >= len(r.Steps) {
		return nil
	}
	return &r.Steps[index]
}

// Failed returns the first failed step, or nil when every step succeeded.
func (r *Result) Failed() *StepResult {
	if r == nil {
		return nil
	}
	for i := range r.Steps {
		if r.Steps[i].Status == StepFailed {
			return &r.Steps[i]
		}
	}
	return nil
}

// OK reports whether every step completed.
func (r *Result) OK() bool {
	if r == nil {
		return false
	}
	for i := range r.Steps {
		if r.Steps[i].Status != StepOK {
			return false
		}
	}
	return true
}

// Info describes a discovered kernel.
type Info struct {
	// Binary is the resolved path of the kernel executable.
	Binary string `json:"binary"`

	// Version is the kernel's self-reported version line.
	Version string `json:"version"`
}

// Driver executes recorded plans against a kernel.
//
// Execute runs the whole plan in a single kernel session. It returns an
// error for infrastructure failures (plan invalid, kernel missing, process
// died, context canceled); a step the kernel rejected is not an Execute
// error but a StepFailed entry in the result, so callers can still see the
// per-step timings and the skipped tail.
type Driver interface {
	Execute(ctx context.Context, plan *Plan, opts Options) (*Result, error)
	Probe(ctx context.Context) (*Info, error)
}
