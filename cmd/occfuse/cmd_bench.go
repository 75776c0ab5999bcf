package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"occfuse/internal/bench"
	"occfuse/internal/pipeline"
	"occfuse/internal/report"
	"occfuse/internal/store"
)

var (
	benchThreads []int
	benchRepeat  int
	benchWarmup  bool
	benchJSON    bool
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Sweep the fuse job across kernel thread counts",
	Long: `Bench runs the same fuse job at each requested thread count, several
times per count, and reports best and mean make-connected times plus the
speedup over the smallest count. Runs are sequential so kernel sessions
never contend for cores.`,
	Args: cobra.NoArgs,
	RunE: runBench,
}

func init() {
	benchCmd.Flags().IntSliceVar(&benchThreads, "threads", []int{1, 2, 4, 8}, "Thread counts to sweep")
	benchCmd.Flags().IntVar(&benchRepeat, "repeat", 3, "Measured runs per thread count")
	benchCmd.Flags().BoolVar(&benchWarmup, "warmup", true, "Run one unrecorded warmup job first")
	benchCmd.Flags().BoolVar(&benchJSON, "json", false, "Emit the full sweep result as JSON")
	addJobFlags(benchCmd)
}

func runBench(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	spec := bench.SweepSpec{
		Threads: benchThreads,
		Repeat:  benchRepeat,
		Warmup:  benchWarmup,
		Job:     jobSpec(1),
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

	res, sweepErr := bench.NewSweeper(runner, logger).Run(ctx, spec)
	if res != nil {
		for _, row := range res.Rows {
			rec := store.FromBenchRow(row, spec.Job)
			rec.KernelVersion = kernelVersion
			if ierr := hist.Insert(rec); ierr != nil {
				logger.Warn("failed to record bench run", zap.Error(ierr))
			}
		}
		out := cmd.OutOrStdout()
		if benchJSON {
			if err := report.WriteJSON(out, res); err != nil {
				return err
			}
		} else {
			report.WriteBenchSummary(out, res, report.DefaultStyles())
		}
	}
	return sweepErr
}
