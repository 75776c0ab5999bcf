// Package bench runs thread-scaling sweeps: the same fuse job across a
// list of kernel thread counts, repeated, with per-count aggregation. The
// sweep is what the tool's one-output-per-thread-count naming scheme was
// always for.
package bench

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"occfuse/internal/pipeline"
)

// Row statuses.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// JobRunner runs one fuse job. *pipeline.Runner satisfies it.
type JobRunner interface {
	Run(ctx context.Context, spec pipeline.JobSpec) (*pipeline.Report, error)
}

// SweepSpec describes one sweep.
type SweepSpec struct {
	// Threads are the kernel thread counts to measure, in run order.
	// Counts must be unique and >= 1.
	Threads []int

	// Repeat is the number of measured runs per thread count.
	Repeat int

	// Warmup runs one unrecorded job at the first thread count before
	// measuring, so cold file caches and kernel startup effects land
	// outside the recorded rows.
	Warmup bool

	// Job is the template for every run. Threads is overridden per run,
	// and Output is ignored: each run writes its conventional
	// thread-count name into Job.OutputDir.
	Job pipeline.JobSpec
}

// Validate rejects sweeps that could not produce a meaningful scaling
// series.
func (s SweepSpec) Validate() error {
	if len(s.Threads) == 0 {
		return fmt.Errorf("no thread counts to sweep")
	}
	seen := make(map[int]struct{}, len(s.Threads))
	for _, n := range s.Threads {
		if n < 1 {
			return fmt.Errorf("thread count must be >= 1, got %d", n)
		}
		if _, dup := seen[n]; dup {
			return fmt.Errorf("duplicate thread count %d", n)
		}
		seen[n] = struct{}{}
	}
	if s.Repeat < 1 {
		return fmt.Errorf("repeat must be >= 1, got %d", s.Repeat)
	}
	return nil
}

// jobFor derives the job for one measured run.
func (s SweepSpec) jobFor(threads int) pipeline.JobSpec {
	job := s.Job
	job.Threads = threads
	job.Output = ""
	return job
}

// Row is one measured run.
type Row struct {
	RunID         string        `json:"run_id,omitempty"`
	StartedAt     time.Time     `json:"started_at"`
	Threads       int           `json:"threads"`
	Repeat        int           `json:"repeat"`
	MakeConnected time.Duration `json:"make_connected"`
	Wall          time.Duration `json:"wall"`
	Output        string        `json:"output,omitempty"`
	Status        string        `json:"status"`
	Error         string        `json:"error,omitempty"`
}

// Summary aggregates the successful rows of one thread count.
type Summary struct {
	Threads int `json:"threads"`

	// Runs is the number of successful measured runs.
	Runs int `json:"runs"`

	// Best and Mean are over the make-connected stage, the quantity the
	// sweep studies.
	Best time.Duration `json:"best"`
	Mean time.Duration `json:"mean"`

	// Speedup is the baseline's best time divided by this count's best,
	// where the baseline is the smallest thread count in the sweep. Zero
	// when either side has no successful run.
	Speedup float64 `json:"speedup"`
}

// SweepResult is the outcome of one sweep.
type SweepResult struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Rows       []Row     `json:"rows"`
	Summaries  []Summary `json:"summaries"`
}

// Sweeper executes sweeps.
type Sweeper struct {
	jobs   JobRunner
	logger *zap.Logger
}

// NewSweeper creates a sweeper.
func NewSweeper(jobs JobRunner, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{jobs: jobs, logger: logger}
}

// Run executes the sweep. Runs are strictly sequential: overlapping kernel
// sessions would contend for cores and corrupt the scaling measurements.
// A failed run becomes a failed row and the sweep continues; a canceled
// context stops the sweep and returns the rows gathered so far.
func (s *Sweeper) Run(ctx context.Context, spec SweepSpec) (*SweepResult, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if err := spec.jobFor(spec.Threads[0]).Validate(); err != nil {
		return nil, err
	}

	res := &SweepResult{StartedAt: time.Now()}
	defer func() {
		res.FinishedAt = time.Now()
		res.Summaries = summarize(res.Rows)
	}()

	if spec.Warmup {
		s.logger.Info("warmup run", zap.Int("threads", spec.Threads[0]))
		if _, err := s.jobs.Run(ctx, spec.jobFor(spec.Threads[0])); err != nil {
			return res, fmt.Errorf("warmup run: %w", err)
		}
	}

	for _, n := range spec.Threads {
		for r := 0; r < spec.Repeat; r++ {
			if err := ctx.Err(); err != nil {
				return res, err
			}

			s.logger.Info("bench run",
				zap.Int("threads", n),
				zap.Int("repeat", r))

			started := time.Now()
			report, err := s.jobs.Run(ctx, spec.jobFor(n))
			row := Row{StartedAt: started, Threads: n, Repeat: r}
			if err != nil {
				row.Status = StatusFailed
				row.Error = err.Error()
				res.Rows = append(res.Rows, row)
				if ctx.Err() != nil {
					return res, ctx.Err()
				}
				s.logger.Warn("bench run failed",
					zap.Int("threads", n),
					zap.Int("repeat", r),
					zap.Error(err))
				continue
			}

			row.RunID = report.RunID
			row.Status = StatusOK
			row.MakeConnected = report.MakeConnected
			row.Wall = report.Wall
			row.Output = report.Output
			res.Rows = append(res.Rows, row)
		}
	}

	return res, nil
}

// summarize aggregates rows per thread count, in first-seen order.
func summarize(rows []Row) []Summary {
	if len(rows) == 0 {
		return nil
	}

	order := make([]int, 0)
	byThreads := make(map[int]*Summary)
	sums := make(map[int]time.Duration)
	baseline := 0

	for _, row := range rows {
		sum, ok := byThreads[row.Threads]
		if !ok {
			sum = &Summary{Threads: row.Threads}
			byThreads[row.Threads] = sum
			order = append(order, row.Threads)
			if baseline == 0 || row.Threads < baseline {
				baseline = row.Threads
			}
		}
		if row.Status != StatusOK {
			continue
		}
		sum.Runs++
		sums[row.Threads] += row.MakeConnected
		if sum.Best == 0 || row.MakeConnected < sum.Best {
			sum.Best = row.MakeConnected
		}
	}

	var baseBest time.Duration
	if base, ok := byThreads[baseline]; ok {
		baseBest = base.Best
	}

	out := make([]Summary, 0, len(order))
	for _, n := range order {
		sum := byThreads[n]
		if sum.Runs > 0 {
			sum.Mean = sums[n] / time.Duration(sum.Runs)
			if baseBest > 0 && sum.Best > 0 {
				sum.Speedup = float64(baseBest) / float64(sum.Best)
			}
		}
		out = append(out, *sum)
	}
	return out
}
