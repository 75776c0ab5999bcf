package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"occfuse/internal/pipeline"
	"occfuse/internal/store"
)

var (
	runOutput     string
	runNoStat     bool
	runCheckShape bool
	runWatch      bool
)

var runCmd = &cobra.Command{
	Use:   "run <threads>",
	Short: "Fuse the two inputs, unify the result and export it",
	Long: `Run imports the volume and surface STEP files, fuses them, makes the
fused shape connected and exports it as connected_shape_<threads>.brep.

The thread count is the single required argument. It is handed to the
kernel's parallel algorithms and to the output file name.`,
	Args: cobra.ExactArgs(1),
	RunE: runFuse,
}

func init() {
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "Output BREP path (overrides the conventional name)")
	runCmd.Flags().BoolVar(&runNoStat, "no-stats", false, "Skip the subshape count pass")
	runCmd.Flags().BoolVar(&runCheckShape, "check", false, "Validate the result shape after export")
	runCmd.Flags().BoolVar(&runWatch, "watch", false, "Re-run whenever an input file changes")
	addJobFlags(runCmd)
}

func runFuse(cmd *cobra.Command, args []string) error {
	threads, err := strconv.Atoi(args[0])
	if err != nil || threads < 1 {
		return fmt.Errorf("thread count must be a positive integer, got %q", args[0])
	}
	// Past argument parsing, errors are the kernel's fault, not usage.
	cmd.SilenceUsage = true

	spec := jobSpec(threads)
	if runOutput != "" {
		spec.Output = runOutput
	}
	if runNoStat {
		spec.CollectStats = false
	}
	if runCheckShape {
		spec.CheckResult = true
	}

	drv, err := buildDriver()
	if err != nil {
		return err
	}
	runner := pipeline.NewRunner(drv, logger)

	hist := openHistory()
	defer hist.Close()

	ctx, cancel := signalContext()
	defer cancel()

	kernelVersion := ""
	if hist != nil {
		kernelVersion = probeVersion(ctx, drv)
	}

	if runWatch {
		return watchAndRun(ctx, cmd, runner, hist, spec, kernelVersion)
	}
	return executeJob(ctx, cmd.OutOrStdout(), runner, hist, spec, kernelVersion)
}

// watchAndRun executes the job once, then re-runs it on every settled
// input change until interrupted. Failures of individual runs are
// reported and do not end the watch.
func watchAndRun(ctx context.Context, cmd *cobra.Command, runner *pipeline.Runner, hist *store.RunStore, spec pipeline.JobSpec, kernelVersion string) error {
	out := cmd.OutOrStdout()
	if err := executeJob(ctx, out, runner, hist, spec, kernelVersion); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}

	w, err := pipeline.NewWatcher([]string{spec.Volume, spec.Surface}, func(runCtx context.Context) {
		if err := executeJob(runCtx, out, runner, hist, spec, kernelVersion); err != nil {
			logger.Error("watched run failed", zap.Error(err))
			fmt.Fprintln(os.Stderr, err)
		}
	}, logger)
	if err != nil {
		return err
	}
	defer w.Stop()

	w.Start(ctx)
	logger.Info("watching inputs",
		zap.String("volume", spec.Volume),
		zap.String("surface", spec.Surface))

	<-ctx.Done()
	return nil
}
