package store

import (
	"time"

	"github.com/google/uuid"

	"occfuse/internal/bench"
	"occfuse/internal/kernel"
	"occfuse/internal/pipeline"
)

// FromReport converts a successful run report into a history record.
func FromReport(r *pipeline.Report, command string) Record {
	rec := Record{
		ID:            r.RunID,
		StartedAt:     r.StartedAt,
		Command:       command,
		Volume:        r.Spec.Volume,
		Surface:       r.Spec.Surface,
		Threads:       r.Spec.Threads,
		RunParallel:   r.Spec.RunParallel,
		WallUsec:      r.Wall.Microseconds(),
		Output:        r.Output,
		Status:        StatusOK,
		KernelVersion: r.KernelVersion,
		Host:          HostString(),
	}
	for _, st := range r.Stages {
		usec := st.Duration.Microseconds()
		switch st.Op {
		case kernel.OpImportSTEP:
			// Two imports per run; the record keeps their sum.
			rec.ImportUsec += usec
		case kernel.OpFuse:
			rec.FuseUsec = usec
		case kernel.OpMakeConnected:
			rec.ConnectUsec = usec
		case kernel.OpExportBREP:
			rec.ExportUsec = usec
		}
	}
	return rec
}

// FromFailure builds a record for a run that produced no report.
func FromFailure(spec pipeline.JobSpec, command, status, errText string) Record {
	return Record{
		ID:          uuid.NewString(),
		StartedAt:   time.Now(),
		Command:     command,
		Volume:      spec.Volume,
		Surface:     spec.Surface,
		Threads:     spec.Threads,
		RunParallel: spec.RunParallel,
		Output:      spec.OutputPath(),
		Status:      status,
		Error:       errText,
		Host:        HostString(),
	}
}

// FromBenchRow converts one sweep row into a history record.
func FromBenchRow(row bench.Row, job pipeline.JobSpec) Record {
	rec := Record{
		ID:          row.RunID,
		StartedAt:   row.StartedAt,
		Command:     "bench",
		Volume:      job.Volume,
		Surface:     job.Surface,
		Threads:     row.Threads,
		RunParallel: job.RunParallel,
		ConnectUsec: row.MakeConnected.Microseconds(),
		WallUsec:    row.Wall.Microseconds(),
		Output:      row.Output,
		Status:      StatusOK,
		Host:        HostString(),
	}
	if row.Status != bench.StatusOK {
		rec.Status = StatusFailed
		rec.Error = row.Error
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	return rec
}
