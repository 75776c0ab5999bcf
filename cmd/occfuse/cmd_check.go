package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"occfuse/internal/check"
	"occfuse/internal/report"
)

var (
	checkJobs int
	checkJSON bool
)

var checkCmd = &cobra.Command{
	Use:   "check [file...]",
	Short: "Inspect STEP inputs without running a fuse",
	Long: `Check imports each file in its own kernel session, counts its subshapes
and validates it. Without arguments the configured volume and surface
inputs are checked. Sessions run concurrently; each file's verdict is
independent of the others.`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().IntVar(&checkJobs, "jobs", check.DefaultJobs, "Concurrent kernel sessions")
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "Emit the reports as JSON")
}

func runCheck(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	files := args
	if len(files) == 0 {
		files = []string{cfg.Inputs.Volume, cfg.Inputs.Surface}
	}

	drv, err := buildDriver()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	reports, err := check.NewInspector(drv, logger).Inspect(ctx, files, check.Options{
		Jobs:    checkJobs,
		Timeout: cfg.DrawTimeout(),
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if checkJSON {
		if err := report.WriteJSON(out, reports); err != nil {
			return err
		}
	} else {
		report.WriteCheckReports(out, reports, report.DefaultStyles())
	}

	failed := 0
	for _, r := range reports {
		if !r.OK {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d inputs failed inspection", failed, len(reports))
	}
	return nil
}
