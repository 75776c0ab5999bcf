package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"occfuse/internal/draw"
	"occfuse/internal/pipeline"
	"occfuse/internal/report"
	"occfuse/internal/store"
)

// Flags shared by run and bench.
var (
	volumePath  string
	surfacePath string
	outputDir   string
	sequential  bool
	runTimeout  time.Duration
)

// addJobFlags registers the input and execution flags shared by the
// commands that launch fuse jobs.
func addJobFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&volumePath, "volume", "", "Volume (solid) STEP input")
	cmd.Flags().StringVar(&surfacePath, "surface", "", "Surface (sheet) STEP input")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "Directory for the conventional output names")
	cmd.Flags().BoolVar(&sequential, "sequential", false, "Disable the kernel's parallel code path")
	cmd.Flags().DurationVar(&runTimeout, "timeout", 0, "Kernel session timeout (default from config)")
}

// jobSpec assembles a run spec from config defaults and flag overrides.
func jobSpec(threads int) pipeline.JobSpec {
	spec := pipeline.JobSpec{
		Volume:       cfg.Inputs.Volume,
		Surface:      cfg.Inputs.Surface,
		Threads:      threads,
		RunParallel:  cfg.Run.Parallel,
		OutputDir:    cfg.Output.Dir,
		CollectStats: cfg.Run.Stats,
		CheckResult:  cfg.Run.Check,
		Timeout:      cfg.DrawTimeout(),
	}
	if volumePath != "" {
		spec.Volume = volumePath
	}
	if surfacePath != "" {
		spec.Surface = surfacePath
	}
	if outputDir != "" {
		spec.OutputDir = outputDir
	}
	if sequential {
		spec.RunParallel = false
	}
	if runTimeout > 0 {
		spec.Timeout = runTimeout
	}
	return spec
}

// buildDriver resolves the kernel executable and assembles the execution
// stack around it.
func buildDriver() (*draw.Driver, error) {
	binary, err := draw.Locate(drawBin, cfg.Draw.Binary)
	if err != nil {
		return nil, err
	}
	return driverFor(binary), nil
}

// driverFor assembles the execution stack for a resolved kernel binary.
func driverFor(binary string) *draw.Driver {
	rc := draw.DefaultRunnerConfig(binary)
	rc.ExtraArgs = cfg.Draw.ExtraArgs
	if len(cfg.Draw.AllowedEnv) > 0 {
		rc.AllowedEnv = cfg.Draw.AllowedEnv
	}
	if t := cfg.DrawTimeout(); t > 0 {
		rc.DefaultTimeout = t
	}
	return draw.NewDriver(draw.NewExecRunner(rc, logger), logger)
}

// openHistory opens the run store, or returns nil (a valid no-op store)
// when recording is off or the store cannot be opened. History must never
// get in the way of a run.
func openHistory() *store.RunStore {
	if noHistory || !cfg.History.Enabled {
		return nil
	}
	s, err := store.Open(cfg.History.Path, logger)
	if err != nil {
		logger.Warn("run history disabled", zap.Error(err))
		return nil
	}
	return s
}

// probeVersion best-effort reads the kernel's version banner for run
// records. Failures are not fatal; the record just goes without it.
func probeVersion(ctx context.Context, drv *draw.Driver) string {
	info, err := drv.Probe(ctx)
	if err != nil {
		logger.Debug("kernel probe failed", zap.Error(err))
		return ""
	}
	return info.Version
}

// executeJob runs a single fuse job, records it, and prints the result
// lines. The two stdout lines are the tool's contract; everything else
// goes to the log or, with -v, below them.
func executeJob(ctx context.Context, out io.Writer, runner *pipeline.Runner, hist *store.RunStore, spec pipeline.JobSpec, kernelVersion string) error {
	rep, err := runner.Run(ctx, spec)
	if err != nil {
		status := store.StatusFailed
		if ctx.Err() != nil {
			status = store.StatusCanceled
		}
		if ierr := hist.Insert(store.FromFailure(spec, "run", status, err.Error())); ierr != nil {
			logger.Warn("failed to record run", zap.Error(ierr))
		}
		return err
	}
	rep.KernelVersion = kernelVersion
	if ierr := hist.Insert(store.FromReport(rep, "run")); ierr != nil {
		logger.Warn("failed to record run", zap.Error(ierr))
	}
	report.WriteRunResult(out, rep)
	if verbose {
		report.WriteRunDetail(out, rep, report.DefaultStyles())
	}
	return nil
}

// signalContext returns a context canceled by SIGINT or SIGTERM. The
// kernel child process dies with the context.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			logger.Info("shutdown signal received")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
