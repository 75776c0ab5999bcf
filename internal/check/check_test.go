package check

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap"

	"occfuse/internal/kernel"
)

// fakeDriver answers Execute from the plan. Imports of paths listed in
// failPaths fail with the kernel's usual message shape.
type fakeDriver struct {
	mu         sync.Mutex
	plans      []*kernel.Plan
	inFlight   int
	maxFlight  int
	delay      time.Duration
	failPaths  map[string]string
	sessionErr error
	gate       chan struct{} // when set, sessions rendezvous in pairs
}

func (f *fakeDriver) Execute(ctx context.Context, plan *kernel.Plan, opts kernel.Options) (*kernel.Result, error) {
	f.mu.Lock()
	f.plans = append(f.plans, plan)
	f.inFlight++
	if f.inFlight > f.maxFlight {
		f.maxFlight = f.inFlight
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.gate != nil {
		select {
		case f.gate <- struct{}{}:
		case <-f.gate:
		case <-time.After(5 * time.Second):
			return nil, errors.New("no concurrent partner arrived")
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.sessionErr != nil {
		return nil, f.sessionErr
	}

	res := &kernel.Result{}
	aborted := false
	for _, st := range plan.Steps() {
		sr := kernel.StepResult{Step: st, Status: kernel.StepOK, Duration: 3 * time.Millisecond}
		switch {
		case aborted:
			sr.Status = kernel.StepSkipped
			sr.Duration = 0
		case st.Op == kernel.OpImportSTEP && f.failPaths[st.Path] != "":
			sr.Status = kernel.StepFailed
			sr.Message = f.failPaths[st.Path]
			sr.Duration = 0
			aborted = true
		case st.Op == kernel.OpStats:
			sr.Counts = &kernel.ShapeCounts{Solids: 1, Faces: 6, Edges: 12}
		case st.Op == kernel.OpCheck:
			valid := true
			sr.Valid = &valid
		}
		res.Steps = append(res.Steps, sr)
	}
	return res, nil
}

func (f *fakeDriver) Probe(context.Context) (*kernel.Info, error) {
	return &kernel.Info{Binary: "/opt/fake/DRAWEXE", Version: "Test harness fake"}, nil
}

var _ kernel.Driver = (*fakeDriver)(nil)

func TestInspector_ReportsPerFile(t *testing.T) {
	defer goleak.VerifyNone(t)

	drv := &fakeDriver{failPaths: map[string]string{
		"broken.step": "cannot open file",
	}}
	ins := NewInspector(drv, zap.NewNop())

	reports, err := ins.Inspect(context.Background(),
		[]string{"good_a.step", "broken.step", "good_b.step"}, Options{Jobs: 1})
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if len(reports) != 3 {
		t.Fatalf("got %d reports", len(reports))
	}

	// Input order survives whatever order the sessions finish in.
	for i, want := range []string{"good_a.step", "broken.step", "good_b.step"} {
		if reports[i].Path != want {
			t.Errorf("reports[%d].Path = %q, want %q", i, reports[i].Path, want)
		}
	}

	good := reports[0]
	if !good.OK {
		t.Fatalf("good file reported not OK: %s", good.Error)
	}
	if good.Counts == nil || good.Counts.Faces != 6 {
		t.Errorf("counts not extracted: %+v", good.Counts)
	}
	if good.Valid == nil || !*good.Valid {
		t.Errorf("validity not extracted: %v", good.Valid)
	}
	if good.Import != 3*time.Millisecond {
		t.Errorf("Import = %v", good.Import)
	}

	bad := reports[1]
	if bad.OK {
		t.Error("broken file reported OK")
	}
	if !strings.Contains(bad.Error, "broken.step") {
		t.Errorf("error does not name the file: %q", bad.Error)
	}
	if !strings.Contains(bad.Error, "cannot open file") {
		t.Errorf("error drops the kernel detail: %q", bad.Error)
	}
}

func TestInspector_EachFileGetsOwnSession(t *testing.T) {
	defer goleak.VerifyNone(t)

	drv := &fakeDriver{}
	ins := NewInspector(drv, zap.NewNop())

	if _, err := ins.Inspect(context.Background(), []string{"a.step", "b.step"}, Options{Jobs: 1}); err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if len(drv.plans) != 2 {
		t.Fatalf("got %d sessions, want 2", len(drv.plans))
	}
	for _, plan := range drv.plans {
		steps := plan.Steps()
		if len(steps) != 3 {
			t.Fatalf("plan has %d steps", len(steps))
		}
		wantOps := []kernel.Op{kernel.OpImportSTEP, kernel.OpStats, kernel.OpCheck}
		for i, op := range wantOps {
			if steps[i].Op != op {
				t.Errorf("step %d op = %s, want %s", i, steps[i].Op, op)
			}
		}
	}
}

func TestInspector_ConcurrencyLimit(t *testing.T) {
	defer goleak.VerifyNone(t)

	drv := &fakeDriver{delay: 20 * time.Millisecond}
	ins := NewInspector(drv, zap.NewNop())

	paths := []string{"a.step", "b.step", "c.step", "d.step", "e.step", "f.step"}
	if _, err := ins.Inspect(context.Background(), paths, Options{Jobs: 2}); err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if drv.maxFlight > 2 {
		t.Errorf("max concurrent sessions = %d, want <= 2", drv.maxFlight)
	}
}

func TestInspector_SessionsOverlap(t *testing.T) {
	defer goleak.VerifyNone(t)

	// The gate only opens when two sessions are in flight at once; a
	// serial inspector would time out and fail both files.
	drv := &fakeDriver{gate: make(chan struct{})}
	ins := NewInspector(drv, zap.NewNop())

	reports, err := ins.Inspect(context.Background(), []string{"a.step", "b.step"}, Options{Jobs: 2})
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	for _, r := range reports {
		if !r.OK {
			t.Errorf("%s: %s", r.Path, r.Error)
		}
	}
}

func TestInspector_SessionErrorBecomesReport(t *testing.T) {
	defer goleak.VerifyNone(t)

	drv := &fakeDriver{sessionErr: &kernel.SessionError{ExitCode: 139, Stderr: "SIGSEGV"}}
	ins := NewInspector(drv, zap.NewNop())

	reports, err := ins.Inspect(context.Background(), []string{"a.step"}, Options{})
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if reports[0].OK {
		t.Error("crashed session reported OK")
	}
	if !strings.Contains(reports[0].Error, "kernel session") {
		t.Errorf("error = %q", reports[0].Error)
	}
}

func TestInspector_NoFiles(t *testing.T) {
	defer goleak.VerifyNone(t)

	ins := NewInspector(&fakeDriver{}, zap.NewNop())
	if _, err := ins.Inspect(context.Background(), nil, Options{}); err == nil {
		t.Fatal("expected an error")
	}
}

func TestInspector_CanceledContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ins := NewInspector(&fakeDriver{}, zap.NewNop())
	_, err := ins.Inspect(ctx, []string{"a.step"}, Options{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
