package draw

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Invocation is one kernel process run: a Tcl script plus the knobs that
// vary per session.
type Invocation struct {
	// Script is the Tcl source the harness executes.
	Script string

	// Env holds extra KEY=VALUE pairs for the child process. Entries here
	// override the runner's allow-list passthrough.
	Env []string

	// Timeout bounds the session. Zero means the runner's default.
	Timeout time.Duration
}

// Transcript is the captured outcome of an invocation.
type Transcript struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration

	// Killed reports that the process was terminated by the runner.
	Killed bool

	// KillReason explains a termination (timeout, context canceled).
	KillReason string

	// Truncated reports that output capture hit the size cap.
	Truncated bool
}

// StderrTail returns the last lines of stderr for error messages.
func (t *Transcript) StderrTail(maxLines int) string {
	lines := strings.Split(strings.TrimRight(t.Stderr, "\n"), "\n")
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// Runner executes Tcl sessions against a kernel process.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (*Transcript, error)

	// Binary reports the kernel executable this runner drives.
	Binary() string
}

// RunnerConfig configures an ExecRunner.
type RunnerConfig struct {
	// Binary is the kernel executable (resolved beforehand, see Locate).
	Binary string

	// ExtraArgs are appended to the kernel command line before the
	// standard batch flags.
	ExtraArgs []string

	// WorkDir is the child's working directory. Empty means inherit.
	WorkDir string

	// DefaultTimeout applies when an invocation has none.
	DefaultTimeout time.Duration

	// MaxTimeout caps all timeouts.
	MaxTimeout time.Duration

	// MaxOutputBytes caps each captured stream.
	MaxOutputBytes int64

	// AllowedEnv lists environment variables passed through from this
	// process. Everything else is withheld from the kernel.
	AllowedEnv []string
}

// DefaultRunnerConfig returns the defaults used for a resolved kernel
// binary. The environment allow-list covers what an OpenCASCADE install
// needs to find its own libraries and resources.
func DefaultRunnerConfig(binary string) RunnerConfig {
	return RunnerConfig{
		Binary:         binary,
		DefaultTimeout: 30 * time.Minute,
		MaxTimeout:     2 * time.Hour,
		MaxOutputBytes: 10 * 1024 * 1024,
		AllowedEnv: []string{
			"PATH", "HOME", "USER", "LANG", "LC_ALL", "TMPDIR",
			"LD_LIBRARY_PATH", "DYLD_LIBRARY_PATH",
			"CASROOT", "DRAWHOME", "DRAWDEFAULT", "CSF_OCCTResourcePath",
		},
	}
}

// ExecRunner runs kernel sessions as child processes. The script travels
// through a temp file and the standard batch flags, stdout and stderr are
// captured with a size cap, and the child sees only the allow-listed
// environment plus the invocation's own entries.
type ExecRunner struct {
	config RunnerConfig
	logger *zap.Logger
}

// NewExecRunner creates a runner for the given config.
func NewExecRunner(cfg RunnerConfig, logger *zap.Logger) *ExecRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecRunner{config: cfg, logger: logger}
}

// Binary reports the configured kernel executable.
func (r *ExecRunner) Binary() string {
	return r.config.Binary
}

// Run executes one session. Infrastructure failures (no binary, temp file,
// process would not start) return an error; a process that ran and died is
// reported through the transcript.
func (r *ExecRunner) Run(ctx context.Context, inv Invocation) (*Transcript, error) {
	if r.config.Binary == "" {
		return nil, fmt.Errorf("kernel binary not configured")
	}
	if inv.Script == "" {
		return nil, fmt.Errorf("empty script")
	}

	timeout := inv.Timeout
	if timeout <= 0 {
		timeout = r.config.DefaultTimeout
	}
	if r.config.MaxTimeout > 0 && timeout > r.config.MaxTimeout {
		timeout = r.config.MaxTimeout
	}

	scriptFile, err := os.CreateTemp("", "occfuse-*.tcl")
	if err != nil {
		return nil, fmt.Errorf("writing session script: %w", err)
	}
	scriptPath := scriptFile.Name()
	defer os.Remove(scriptPath)
	if _, err := io.WriteString(scriptFile, inv.Script); err != nil {
		scriptFile.Close()
		return nil, fmt.Errorf("writing session script: %w", err)
	}
	if err := scriptFile.Close(); err != nil {
		return nil, fmt.Errorf("writing session script: %w", err)
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(append([]string{}, r.config.ExtraArgs...), "-b", "-f", scriptPath)
	cmd := exec.CommandContext(execCtx, r.config.Binary, args...)
	cmd.Dir = r.config.WorkDir
	cmd.Env = r.buildEnv(inv.Env)
	cmd.Stdin = strings.NewReader("")

	var stdoutBuf, stderrBuf bytes.Buffer
	stdout := &limitedWriter{w: &stdoutBuf, max: r.config.MaxOutputBytes}
	stderr := &limitedWriter{w: &stderrBuf, max: r.config.MaxOutputBytes}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	r.logger.Debug("starting kernel session",
		zap.String("binary", r.config.Binary),
		zap.Duration("timeout", timeout),
		zap.Int("script_bytes", len(inv.Script)))

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	tr := &Transcript{
		Stdout:    stdoutBuf.String(),
		Stderr:    stderrBuf.String(),
		ExitCode:  0,
		Duration:  elapsed,
		Truncated: stdout.truncated || stderr.truncated,
	}

	if runErr != nil {
		switch {
		case errors.Is(execCtx.Err(), context.DeadlineExceeded):
			tr.Killed = true
			tr.KillReason = fmt.Sprintf("timeout after %s", timeout)
			tr.ExitCode = -1
		case errors.Is(execCtx.Err(), context.Canceled):
			tr.Killed = true
			tr.KillReason = "context canceled"
			tr.ExitCode = -1
		default:
			var exitErr *exec.ExitError
			if errors.As(runErr, &exitErr) {
				tr.ExitCode = exitErr.ExitCode()
			} else {
				// The process never ran.
				return nil, fmt.Errorf("starting kernel process %s: %w", r.config.Binary, runErr)
			}
		}
	}

	r.logger.Debug("kernel session finished",
		zap.Int("exit_code", tr.ExitCode),
		zap.Duration("duration", elapsed),
		zap.Bool("killed", tr.Killed),
		zap.Bool("truncated", tr.Truncated))

	return tr, nil
}

// buildEnv assembles the child environment: allow-listed passthrough first,
// then the invocation's entries, later keys overriding earlier ones.
func (r *ExecRunner) buildEnv(extra []string) []string {
	env := make([]string, 0, len(r.config.AllowedEnv)+len(extra))
	for _, key := range r.config.AllowedEnv {
		if val := os.Getenv(key); val != "" {
			env = append(env, key+"="+val)
		}
	}
	for _, kv := range extra {
		key, _, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		env = setEnvKey(env, key, kv)
	}
	return env
}

// setEnvKey replaces an existing KEY= entry or appends the pair.
func setEnvKey(env []string, key, pair string) []string {
	prefix := key + "="
	for i, e := range env {
		if strings.HasPrefix(e, prefix) {
			env[i] = pair
			return env
		}
	}
	return append(env, pair)
}

// limitedWriter caps total bytes written, swallowing the rest so a noisy
// kernel cannot balloon memory.
type limitedWriter struct {
	w         io.Writer
	max       int64
	written   int64
	truncated bool
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	if lw.max <= 0 {
		return lw.w.Write(p)
	}
	if lw.written >= lw.max {
		lw.truncated = true
		return n, nil
	}
	remaining := lw.max - lw.written
	if int64(n) > remaining {
		lw.truncated = true
		written, err := lw.w.Write(p[:remaining])
		lw.written += int64(written)
		return n, err
	}
	written, err := lw.w.Write(p)
	lw.written += int64(written)
	return written, err
}
