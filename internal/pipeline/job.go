// Package pipeline assembles and runs the fuse workflow: import the two
// STEP operands, fuse them, unify the topology of the result, export it as
// BREP. One JobSpec describes one run; the Runner turns it into a recorded
// kernel plan, executes it, and reports per-stage timings.
package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"occfuse/internal/kernel"
)

// DefaultOutputName returns the conventional result filename for a thread
// count. One file per thread count is the tool's naming scheme; repeated
// runs with the same count overwrite.
func DefaultOutputName(threads int) string {
	return fmt.Sprintf("connected_shape_%d.brep", threads)
}

// JobSpec describes one fuse run.
type JobSpec struct {
	// Volume is the solid STEP operand (first fuse argument).
	Volume string

	// Surface is the sheet STEP operand (second fuse argument).
	Surface string

	// Threads sizes the kernel's thread pool.
	Threads int

	// RunParallel selects the kernel's parallel code path.
	RunParallel bool

	// Output is the result BREP path. Empty means the conventional
	// thread-count name inside OutputDir.
	Output string

	// OutputDir is the directory for the conventional output name.
	// Empty means the current directory.
	OutputDir string

	// CollectStats appends a subshape count of the result to the plan.
	CollectStats bool

	// CheckResult appends a validity analysis of the result to the plan.
	CheckResult bool

	// Timeout bounds the kernel session. Zero means the driver default.
	Timeout time.Duration
}

// OutputPath resolves the result path for this spec.
func (s JobSpec) OutputPath() string {
	if s.Output != "" {
		return s.Output
	}
	dir := s.OutputDir
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, DefaultOutputName(s.Threads))
}

// Validate rejects specs the kernel session would be doomed by. Input
// files are checked up front so a mistyped path fails in milliseconds with
// the filename in the error instead of after a kernel launch.
func (s JobSpec) Validate() error {
	if s.Threads < 1 {
		return fmt.Errorf("threads must be >= 1, got %d", s.Threads)
	}
	if s.Volume == "" {
		return fmt.Errorf("volume input not set")
	}
	if s.Surface == "" {
		return fmt.Errorf("surface input not set")
	}
	for _, path := range []string{s.Volume, s.Surface} {
		if err := checkInput(path); err != nil {
			return err
		}
	}
	if s.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	return nil
}

// checkInput verifies a STEP operand exists before any kernel process is
// launched. Failures reuse the kernel's import error so the filename rides
// the same error type whether the miss is caught here or in the session.
func checkInput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &kernel.ImportError{Path: path, Detail: "file does not exist"}
		}
		return &kernel.ImportError{Path: path, Detail: err.Error()}
	}
	if info.IsDir() {
		return &kernel.ImportError{Path: path, Detail: "is a directory"}
	}
	return nil
}
