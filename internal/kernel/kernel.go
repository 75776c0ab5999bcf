// Package kernel models the delegated geometry pipeline as data.
//
// The tool never computes geometry itself. Every modeling operation -
// STEP import, boolean fuse, topology unification, BREP export - is
// delegated to an external OpenCASCADE kernel process. This package
// defines the vocabulary for that delegation: a Plan records the ordered
// operations, Shape values name intermediate results, and a Driver
// executes a recorded plan in one kernel session and reports per-step
// outcomes.
//
// Plans are inert values. Building one performs no I/O and touches no
// kernel state, which keeps the sequencing rules (an operation may only
// consume shapes produced by earlier operations) checkable before any
// process is spawned.
package kernel

import (
	"fmt"
	"strings"
	"time"
)

// Op identifies a delegated kernel operation.
type Op string

const (
	// OpImportSTEP reads a STEP file and transfers its first root shape.
	OpImportSTEP Op = "import_step"

	// OpFuse computes the boolean union of two shapes.
	OpFuse Op = "fuse"

	// OpMakeConnected rebuilds the topology of a shape so that coincident
	// boundaries between its parts share a single geometric representation.
	OpMakeConnected Op = "make_connected"

	// OpExportBREP writes a shape in the kernel's native BREP format.
	OpExportBREP Op = "export_brep"

	// OpStats counts the subshapes (solids, faces, edges, ...) of a shape.
	OpStats Op = "stats"

	// OpCheck runs the kernel's validity analysis on a shape.
	OpCheck Op = "check"
)

// producesShape reports whether the operation yields a shape handle.
func (o Op) producesShape() bool {
	switch o {
	case OpImportSTEP, OpFuse, OpMakeConnected:
		return true
	}
	return false
}

// Shape is an opaque handle for the output of a plan step. A Shape is only
// meaningful within the plan that produced it.
type Shape struct {
	plan *Plan
	step int
}

// Step is one recorded kernel operation.
type Step struct {
	// Index is the step's position in the plan, starting at 0.
	Index int

	// Op is the delegated operation.
	Op Op

	// Inputs are the indices of the steps whose output shapes this step
	// consumes, in argument order.
	Inputs []int

	// Path is the file argument for import and export operations.
	Path string
}

// Plan is an append-only recording of kernel operations. The zero value is
// not usable; construct plans with NewPlan.
//
// Recording methods never fail loudly. The first construction error (empty
// path, foreign shape, shape from a failed append) is retained and reported
// by Err, and a Driver must refuse to execute a plan whose Err is non-nil.
type Plan struct {
	steps []Step
	err   error
}

// NewPlan returns an empty plan.
func NewPlan() *Plan {
	return &Plan{}
}

// ImportSTEP records a STEP import and returns the handle of the transferred
// root shape.
func (p *Plan) ImportSTEP(path string) Shape {
	if strings.TrimSpace(path) == "" {
		return p.fail(fmt.Errorf("import step: empty path"))
	}
	return p.append(OpImportSTEP, path)
}

// Fuse records a boolean union of a and b. Argument order is preserved all
// the way into the kernel session so transcripts stay comparable across runs.
func (p *Plan) Fuse(a, b Shape) Shape {
	if !p.own(a) || !p.own(b) {
		return Shape{step: -1}
	}
	return p.append(OpFuse, "", a.step, b.step)
}

// MakeConnected records topology unification of s.
func (p *Plan) MakeConnected(s Shape) Shape {
	if !p.own(s) {
		return Shape{step: -1}
	}
	return p.append(OpMakeConnected, "", s.step)
}

// ExportBREP records writing s to path in BREP format.
func (p *Plan) ExportBREP(s Shape, path string) {
	if strings.TrimSpace(path) == "" {
		p.fail(fmt.Errorf("export brep: empty path"))
		return
	}
	if !p.own(s) {
		return
	}
	p.append(OpExportBREP, path, s.step)
}

// Stats records a subshape count of s.
func (p *Plan) Stats(s Shape) {
	if !p.own(s) {
		return
	}
	p.append(OpStats, "", s.step)
}

// Check records a validity analysis of s.
func (p *Plan) Check(s Shape) {
	if !p.own(s) {
		return
	}
	p.append(OpCheck, "", s.step)
}

// Steps returns the recorded steps in execution order. The returned slice is
// shared; callers must not modify it.
func (p *Plan) Steps() []Step {
	return p.steps
}

// Len returns the number of recorded steps.
func (p *Plan) Len() int {
	return len(p.steps)
}

// Err returns the first construction error, if any.
func (p *Plan) Err() error {
	return p.err
}

func (p *Plan) append(op Op, path string, inputs ...int) Shape {
	step := Step{Index: len(p.steps), Op: op, Inputs: inputs, Path: path}
	p.steps = append(p.steps, step)
	if !op.producesShape() {
		return Shape{step: -1}
	}
	return Shape{plan: p, step: step.Index}
}

// own validates that s was produced by this plan. It records a construction
// error and returns false otherwise.
func (p *Plan) own(s Shape) bool {
	if s.step < 0 || s.plan == nil {
		p.fail(fmt.Errorf("shape does not name a step output"))
		return false
	}
	if s.plan != p {
		p.fail(fmt.Errorf("shape belongs to a different plan"))
		return false
	}
	if s.step >= len(p.steps) {
		p.fail(fmt.Errorf("shape names step %d which is not recorded", s.step))
		return false
	}
	return true
}

func (p *Plan) fail(err error) Shape {
	if p.err == nil {
		p.err = err
	}
	return Shape{step: -1}
}

// Options are the per-execution knobs of a kernel session.
type Options struct {
	// Threads sizes the kernel's internal thread pool. The driver passes it
	// to the kernel process explicitly; nothing in this process reads it.
	Threads int

	// RunParallel selects the kernel's parallelized code path for boolean
	// and topology algorithms.
	RunParallel bool

	// Timeout bounds the whole kernel session. Zero means the driver's
	// default.
	Timeout time.Duration
}

// DefaultOptions returns the options used when a caller has no opinion:
// a single kernel thread with the parallel code path enabled.
func DefaultOptions() Options {
	return Options{
		Threads:     1,
		RunParallel: true,
	}
}

// Validate rejects option values the kernel would silently misread.
func (o Options) Validate() error {
	if o.Threads < 1 {
		return fmt.Errorf("threads must be >= 1, got %d", o.Threads)
	}
	if o.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	return nil
}
