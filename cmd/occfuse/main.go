package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"occfuse/internal/config"
	"occfuse/internal/logging"
	"occfuse/internal/version"
)

var (
	// Global flags
	cfgPath   string
	verbose   bool
	drawBin   string
	noHistory bool

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "occfuse",
	Short: "Fuse two STEP models through an external OpenCASCADE kernel",
	Long: `occfuse drives an external OpenCASCADE Draw Test Harness (DRAWEXE) to
import two STEP files, fuse them, rebuild the result as connected
topology and export it as BREP, timing the stages along the way.

The kernel runs as a child process per job; occfuse itself computes no
geometry. Thread scaling of the kernel's parallel code path is the
point: each run is pinned to a thread count and writes
connected_shape_<N>.brep.`,
	Version: version.Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		logger, err = logging.New(logging.Config{Level: level, Format: cfg.Logging.Format})
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", config.DefaultPath, "Config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging and stage breakdowns")
	rootCmd.PersistentFlags().StringVar(&drawBin, "draw-bin", "", "Kernel executable (overrides OCCFUSE_DRAW and config)")
	rootCmd.PersistentFlags().BoolVar(&noHistory, "no-history", false, "Do not record this invocation in run history")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(benchCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(initCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
