package kernel

import (
	"errors"
	"fmt"
	"strings"
)

// ImportError reports that the kernel could not read a STEP file. The
// failed filename always travels with the error; everything downstream
// (CLI output, run history) relies on that.
type ImportError struct {
	// Path is the file the kernel failed to read.
	Path string

	// Detail is the kernel's own account of the failure, possibly empty.
	Detail string
}

func (e *ImportError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("reading STEP file %s", e.Path)
	}
	return fmt.Sprintf("reading STEP file %s: %s", e.Path, e.Detail)
}

// StepError reports that the kernel rejected a delegated operation other
// than a file import (boolean failure, malformed geometry, write failure).
type StepError struct {
	// Op is the operation that failed.
	Op Op

	// Detail is the kernel's error text.
	Detail string
}

func (e *StepError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("kernel operation %s failed", e.Op)
	}
	return fmt.Sprintf("kernel operation %s failed: %s", e.Op, e.Detail)
}

// SessionError reports that the kernel process itself died or was cut off
// before finishing the session. Because the kernel runs out of process, a
// crash there surfaces as this error instead of taking the tool down.
type SessionError struct {
	// ExitCode is the process exit code, -1 when the process never ran.
	ExitCode int

	// Stderr is the tail of the captured standard error.
	Stderr string

	// InFlight names the step that was running when the session died, if
	// the transcript got far enough to tell.
	InFlight *Step
}

func (e *SessionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "kernel session failed (exit code %d)", e.ExitCode)
	if e.InFlight != nil {
		fmt.Fprintf(&b, " during %s", e.InFlight.Op)
		if e.InFlight.Path != "" {
			fmt.Fprintf(&b, " of %s", e.InFlight.Path)
		}
	}
	if tail := strings.TrimSpace(e.Stderr); tail != "" {
		fmt.Fprintf(&b, ": %s", tail)
	}
	return b.String()
}

// AsImportError unwraps err to an *ImportError if one is in the chain.
func AsImportError(err error) (*ImportError, bool) {
	var ie *ImportError
	if errors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}

// StepFailure converts a failed step result into the matching typed error.
// Import failures get the filename-carrying ImportError; everything else
// becomes a StepError.
func StepFailure(sr *StepResult) error {
	if sr == nil {
		return nil
	}
	if sr.Step.Op == OpImportSTEP {
		return &ImportError{Path: sr.Step.Path, Detail: sr.Message}
	}
	return &StepError{Op: sr.Step.Op, Detail: sr.Message}
}
