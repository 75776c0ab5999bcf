package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"occfuse/internal/bench"
	"occfuse/internal/check"
	"occfuse/internal/pipeline"
	"occfuse/internal/store"
)

// WriteRunResult prints the two-line result contract for one run: the
// exported path, then the make-connected time for the thread count. The
// wording and the nine-decimal seconds format are load-bearing; scripts
// parse these lines.
func WriteRunResult(w io.Writer, rep *pipeline.Report) {
	fmt.Fprintf(w, "Connected shape exported to %s\n", rep.Output)
	fmt.Fprintf(w, "Total execution time with %d threads: %.9f seconds\n",
		rep.Spec.Threads, rep.MakeConnected.Seconds())
}

// WriteRunDetail prints the per-stage breakdown of a run.
func WriteRunDetail(w io.Writer, rep *pipeline.Report, styles Styles) {
	tbl := NewTable("Stages", "STAGE", "FILE", "KERNEL TIME")
	for _, st := range rep.Stages {
		path := st.Path
		if path == "" {
			path = "-"
		}
		tbl.AddRow(string(st.Op), path, st.Duration.String())
	}
	fmt.Fprint(w, tbl.View(styles))

	fmt.Fprintf(w, "%s %s\n", styles.Header.Render("session wall time:"), rep.Wall)
	if rep.Counts != nil {
		c := rep.Counts
		fmt.Fprintf(w, "%s %d solids, %d shells, %d faces, %d wires, %d edges, %d vertices\n",
			styles.Header.Render("result shape:"),
			c.Solids, c.Shells, c.Faces, c.Wires, c.Edges, c.Vertices)
	}
	if rep.Valid != nil {
		verdict := styles.Success.Render("valid")
		if !*rep.Valid {
			verdict = styles.Error.Render("faulty")
		}
		fmt.Fprintf(w, "%s %s\n", styles.Header.Render("kernel check:"), verdict)
	}
}

// WriteBenchSummary prints the aggregated sweep table and flags failed
// runs.
func WriteBenchSummary(w io.Writer, res *bench.SweepResult, styles Styles) {
	tbl := NewTable("Thread scaling", "THREADS", "RUNS", "BEST", "MEAN", "SPEEDUP")
	for _, s := range res.Summaries {
		best, mean, speedup := "-", "-", "-"
		if s.Runs > 0 {
			best = s.Best.String()
			mean = s.Mean.String()
		}
		if s.Speedup > 0 {
			speedup = fmt.Sprintf("%.2fx", s.Speedup)
		}
		tbl.AddRow(strconv.Itoa(s.Threads), strconv.Itoa(s.Runs), best, mean, speedup)
	}
	fmt.Fprint(w, tbl.View(styles))

	failed := 0
	for _, row := range res.Rows {
		if row.Status != bench.StatusOK {
			failed++
		}
	}
	if failed > 0 {
		fmt.Fprintln(w, styles.Error.Render(fmt.Sprintf("%d of %d runs failed", failed, len(res.Rows))))
	}
}

// WriteCheckReports prints the per-file inspection table, with failure
// details below it.
func WriteCheckReports(w io.Writer, reports []check.FileReport, styles Styles) {
	tbl := NewTable("Inputs", "FILE", "IMPORT", "SOLIDS", "FACES", "EDGES", "VALID")
	for _, r := range reports {
		if !r.OK {
			tbl.AddRow(r.Path, "failed", "-", "-", "-", "-")
			continue
		}
		solids, faces, edges := "-", "-", "-"
		if r.Counts != nil {
			solids = strconv.Itoa(r.Counts.Solids)
			faces = strconv.Itoa(r.Counts.Faces)
			edges = strconv.Itoa(r.Counts.Edges)
		}
		valid := "-"
		if r.Valid != nil {
			valid = "yes"
			if !*r.Valid {
				valid = "no"
			}
		}
		tbl.AddRow(r.Path, r.Import.String(), solids, faces, edges, valid)
	}
	fmt.Fprint(w, tbl.View(styles))

	for _, r := range reports {
		if !r.OK {
			fmt.Fprintln(w, styles.Error.Render(fmt.Sprintf("%s: %s", r.Path, r.Error)))
		}
	}
}

// WriteHistory prints the most recent run records, newest first.
func WriteHistory(w io.Writer, recs []store.Record, styles Styles) {
	if len(recs) == 0 {
		fmt.Fprintln(w, styles.Muted.Render("no recorded runs"))
		return
	}

	tbl := NewTable("Run history", "STARTED", "COMMAND", "THREADS", "CONNECT", "STATUS", "OUTPUT")
	for _, rec := range recs {
		connect := "-"
		if rec.ConnectUsec > 0 {
			connect = (time.Duration(rec.ConnectUsec) * time.Microsecond).String()
		}
		output := rec.Output
		if output == "" {
			output = "-"
		}
		tbl.AddRow(
			rec.StartedAt.Local().Format("2006-01-02 15:04:05"),
			rec.Command,
			strconv.Itoa(rec.Threads),
			connect,
			rec.Status,
			output,
		)
	}
	fmt.Fprint(w, tbl.View(styles))
}

// WriteKeyValues prints an aligned key/value block.
func WriteKeyValues(w io.Writer, styles Styles, title string, pairs [][2]string) {
	if title != "" {
		fmt.Fprintln(w, styles.Title.Render(title))
	}
	width := 0
	for _, p := range pairs {
		if len(p[0]) > width {
			width = len(p[0])
		}
	}
	for _, p := range pairs {
		fmt.Fprintf(w, "%s  %s\n",
			styles.Header.Render(fmt.Sprintf("%-*s", width, p[0])),
			p[1])
	}
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
