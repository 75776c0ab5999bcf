package draw

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// EnvBinary is the environment variable naming the kernel executable.
const EnvBinary = "OCCFUSE_DRAW"

// candidateNames are the conventional Draw Test Harness executable names
// looked up on PATH when nothing is configured.
var candidateNames = []string{"DRAWEXE", "drawexe"}

// NotFoundError reports a failed kernel discovery with everything that was
// tried, so the user can see which knob to set.
type NotFoundError struct {
	Tried []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("kernel executable not found (tried %s); install OpenCASCADE Draw or set %s",
		strings.Join(e.Tried, ", "), EnvBinary)
}

// Locate resolves the kernel executable. Resolution order: the explicit
// value (usually a flag), the OCCFUSE_DRAW environment variable, the
// configured path, then a PATH lookup of the conventional names. The first
// source that is set decides; a set source that does not resolve is an
// error rather than a fallthrough, so a typo cannot silently pick a
// different kernel.
func Locate(explicit, configured string) (string, error) {
	sources := []struct {
		label string
		value string
	}{
		{"flag", explicit},
		{"env " + EnvBinary, os.Getenv(EnvBinary)},
		{"config", configured},
	}

	tried := make([]string, 0, len(sources)+len(candidateNames))
	for _, src := range sources {
		if src.value == "" {
			continue
		}
		path, err := resolve(src.value)
		if err != nil {
			return "", fmt.Errorf("%s %q: %w", src.label, src.value, err)
		}
		return path, nil
	}

	for _, name := range candidateNames {
		if path, err := exec.LookPath(name); err == nil {
			return filepath.Abs(path)
		}
		tried = append(tried, name+" on PATH")
	}
	return "", &NotFoundError{Tried: tried}
}

// resolve turns a user-supplied value into an absolute executable path.
// Bare names go through PATH; anything with a separator must exist.
func resolve(value string) (string, error) {
	if filepath.Base(value) == value {
		path, err := exec.LookPath(value)
		if err != nil {
			return "", err
		}
		return filepath.Abs(path)
	}

	info, err := os.Stat(value)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("is a directory")
	}
	return filepath.Abs(value)
}
