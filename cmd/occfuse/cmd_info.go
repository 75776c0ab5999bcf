package main

import (
	"context"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"occfuse/internal/draw"
	"occfuse/internal/report"
	"occfuse/internal/version"
)

var infoJSON bool

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show tool, kernel and environment details",
	Args:  cobra.NoArgs,
	RunE:  runInfo,
}

func init() {
	infoCmd.Flags().BoolVar(&infoJSON, "json", false, "Emit the details as JSON")
}

type infoData struct {
	Tool          string `json:"tool"`
	GoVersion     string `json:"go_version"`
	Platform      string `json:"platform"`
	CPUs          int    `json:"cpus"`
	KernelBinary  string `json:"kernel_binary,omitempty"`
	KernelVersion string `json:"kernel_version,omitempty"`
	KernelError   string `json:"kernel_error,omitempty"`
	HistoryPath   string `json:"history_path,omitempty"`
}

// runInfo reports what it can find and never fails: a missing kernel is a
// finding here, not an error.
func runInfo(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	data := infoData{
		Tool:      version.Version,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		CPUs:      runtime.NumCPU(),
	}
	if cfg.History.Enabled {
		data.HistoryPath = cfg.History.Path
	}

	binary, err := draw.Locate(drawBin, cfg.Draw.Binary)
	if err != nil {
		data.KernelError = err.Error()
	} else {
		data.KernelBinary = binary
		info, perr := driverFor(binary).Probe(context.Background())
		if perr != nil {
			data.KernelError = perr.Error()
		} else {
			data.KernelVersion = info.Version
		}
	}

	out := cmd.OutOrStdout()
	if infoJSON {
		return report.WriteJSON(out, data)
	}

	pairs := [][2]string{
		{"version", data.Tool},
		{"go", data.GoVersion},
		{"platform", fmt.Sprintf("%s cpus=%d", data.Platform, data.CPUs)},
	}
	if data.KernelBinary != "" {
		pairs = append(pairs, [2]string{"kernel", data.KernelBinary})
	}
	if data.KernelVersion != "" {
		pairs = append(pairs, [2]string{"kernel version", data.KernelVersion})
	}
	if data.KernelError != "" {
		pairs = append(pairs, [2]string{"kernel error", data.KernelError})
	}
	if data.HistoryPath != "" {
		pairs = append(pairs, [2]string{"history", data.HistoryPath})
	}
	report.WriteKeyValues(out, report.DefaultStyles(), "occfuse", pairs)
	return nil
}
