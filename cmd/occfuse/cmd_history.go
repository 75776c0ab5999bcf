package main

import (
	"github.com/spf13/cobra"

	"occfuse/internal/report"
	"occfuse/internal/store"
)

var (
	historyLimit int
	historyJSON  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent recorded runs",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum runs to show")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Emit the runs as JSON")
}

// runHistory reads the store even when recording is disabled: past runs
// stay inspectable after history is turned off.
func runHistory(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	s, err := store.Open(cfg.History.Path, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	recs, err := s.Recent(historyLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if historyJSON {
		if recs == nil {
			recs = []store.Record{}
		}
		return report.WriteJSON(out, recs)
	}
	report.WriteHistory(out, recs, report.DefaultStyles())
	return nil
}
