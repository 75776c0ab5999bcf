// Package check inspects STEP inputs without fusing them. Each file is
// imported in its own kernel session and reported on: importable or not
// (with the filename-carrying error), subshape counts, validity verdict.
// Sessions are independent, so unlike timing runs they may safely overlap.
package check

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"occfuse/internal/kernel"
)

// DefaultJobs is the default number of concurrent kernel sessions.
const DefaultJobs = 2

// Options tune an inspection.
type Options struct {
	// Jobs caps the number of concurrent kernel sessions. Values < 1
	// mean DefaultJobs.
	Jobs int

	// Timeout bounds each session. Zero means the driver default.
	Timeout time.Duration
}

// FileReport is the verdict on one input file.
type FileReport struct {
	Path string `json:"path"`

	// OK means the kernel imported the file.
	OK bool `json:"ok"`

	// Error is the failure text when OK is false.
	Error string `json:"error,omitempty"`

	// Import is the kernel-side duration of the import.
	Import time.Duration `json:"import"`

	Counts *kernel.ShapeCounts `json:"counts,omitempty"`
	Valid  *bool               `json:"valid,omitempty"`
}

// Inspector runs inspections against a kernel driver.
type Inspector struct {
	driver kernel.Driver
	logger *zap.Logger
}

// NewInspector creates an inspector.
func NewInspector(driver kernel.Driver, logger *zap.Logger) *Inspector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Inspector{driver: driver, logger: logger}
}

// Inspect reports on each file, in input order. Per-file failures land in
// the reports, not in the returned error; only an empty file list or a
// canceled context fail the inspection as a whole.
func (i *Inspector) Inspect(ctx context.Context, paths []string, opts Options) ([]FileReport, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no files to inspect")
	}
	jobs := opts.Jobs
	if jobs < 1 {
		jobs = DefaultJobs
	}

	reports := make([]FileReport, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for idx, path := range paths {
		idx, path := idx, path
		g.Go(func() error {
			reports[idx] = i.inspectOne(gctx, path, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return reports, err
	}
	if err := ctx.Err(); err != nil {
		return reports, err
	}
	return reports, nil
}

func (i *Inspector) inspectOne(ctx context.Context, path string, opts Options) FileReport {
	report := FileReport{Path: path}

	plan := kernel.NewPlan()
	shape := plan.ImportSTEP(path)
	plan.Stats(shape)
	plan.Check(shape)
	if err := plan.Err(); err != nil {
		report.Error = err.Error()
		return report
	}

	i.logger.Debug("inspecting input", zap.String("path", path))

	kopts := kernel.Options{Threads: 1, RunParallel: true, Timeout: opts.Timeout}
	result, err := i.driver.Execute(ctx, plan, kopts)
	if err != nil {
		report.Error = err.Error()
		return report
	}
	if failed := result.Failed(); failed != nil {
		report.Error = kernel.StepFailure(failed).Error()
		return report
	}

	report.OK = true
	for _, sr := range result.Steps {
		switch sr.Step.Op {
		case kernel.OpImportSTEP:
			report.Import = sr.Duration
		case kernel.OpStats:
			report.Counts = sr.Counts
		case kernel.OpCheck:
			report.Valid = sr.Valid
		}
	}
	return report
}
