package draw

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"occfuse/internal/kernel"
)

// fakeRunner stands in for a kernel process and records what the driver
// asked for.
type fakeRunner struct {
	transcript *Transcript
	err        error
	lastInv    Invocation
	calls      int
}

func (f *fakeRunner) Run(_ context.Context, inv Invocation) (*Transcript, error) {
	f.lastInv = inv
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.transcript, nil
}

func (f *fakeRunner) Binary() string { return "/opt/fake/DRAWEXE" }

func cleanTranscript() *Transcript {
	return &Transcript{Stdout: `@occfuse session begin
@occfuse step 0 begin import_step
@occfuse step 0 ok 1000
@occfuse step 1 begin import_step
@occfuse step 1 ok 1100
@occfuse step 2 begin fuse
@occfuse step 2 ok 200000
@occfuse step 3 begin make_connected
@occfuse step 3 ok 3500000
@occfuse step 4 begin export_brep
@occfuse step 4 ok 40000
@occfuse session end
`}
}

func TestDriver_Execute(t *testing.T) {
	runner := &fakeRunner{transcript: cleanTranscript()}
	d := NewDriver(runner, zap.NewNop())

	plan := fusePlan(t, "last_diff.step", "last_dura.step", "connected_shape_4.brep")
	result, err := d.Execute(context.Background(), plan, kernel.Options{Threads: 4, RunParallel: true})
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, result.OK())
	assert.Equal(t, 1, runner.calls, "one plan, one session")
	assert.Contains(t, runner.lastInv.Env, "OMP_NUM_THREADS=4",
		"thread count must reach the kernel as child environment")
	assert.Contains(t, runner.lastInv.Script, "brunparallel 1")
}

func TestDriver_Execute_RejectsBadInput(t *testing.T) {
	d := NewDriver(&fakeRunner{transcript: cleanTranscript()}, zap.NewNop())

	t.Run("nil plan", func(t *testing.T) {
		_, err := d.Execute(context.Background(), nil, kernel.DefaultOptions())
		assert.Error(t, err)
	})

	t.Run("poisoned plan", func(t *testing.T) {
		p := kernel.NewPlan()
		p.ImportSTEP("")
		_, err := d.Execute(context.Background(), p, kernel.DefaultOptions())
		assert.Error(t, err)
	})

	t.Run("zero threads", func(t *testing.T) {
		p := fusePlan(t, "a.step", "b.step", "out.brep")
		_, err := d.Execute(context.Background(), p, kernel.Options{Threads: 0})
		assert.Error(t, err)
	})
}

func TestDriver_Execute_RunnerFailure(t *testing.T) {
	runner := &fakeRunner{err: fmt.Errorf("no such binary")}
	d := NewDriver(runner, zap.NewNop())

	plan := fusePlan(t, "a.step", "b.step", "out.brep")
	_, err := d.Execute(context.Background(), plan, kernel.DefaultOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kernel session")
}

func TestDriver_Execute_Timeout(t *testing.T) {
	runner := &fakeRunner{transcript: &Transcript{
		Stdout:     "@occfuse session begin\n@occfuse step 0 begin import_step\n",
		Killed:     true,
		KillReason: "timeout after 30m0s",
		ExitCode:   -1,
	}}
	d := NewDriver(runner, zap.NewNop())

	plan := fusePlan(t, "a.step", "b.step", "out.brep")
	result, err := d.Execute(context.Background(), plan, kernel.DefaultOptions())
	require.Error(t, err)

	var se *kernel.SessionError
	require.True(t, errors.As(err, &se))
	assert.Contains(t, se.Stderr, "timeout")
	require.NotNil(t, result, "partial results survive a timeout")
	assert.Equal(t, kernel.StepSkipped, result.Steps[0].Status)
}

func TestDriver_Execute_Crash(t *testing.T) {
	runner := &fakeRunner{transcript: &Transcript{
		Stdout: `@occfuse session begin
@occfuse step 0 begin import_step
@occfuse step 0 ok 1000
@occfuse step 1 begin import_step
@occfuse step 1 ok 1100
@occfuse step 2 begin fuse
`,
		Stderr:   "terminate called after throwing an instance of 'Standard_Failure'\n",
		ExitCode: 134,
	}}
	d := NewDriver(runner, zap.NewNop())

	plan := fusePlan(t, "a.step", "b.step", "out.brep")
	result, err := d.Execute(context.Background(), plan, kernel.DefaultOptions())
	require.Error(t, err)

	var se *kernel.SessionError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 134, se.ExitCode)
	require.NotNil(t, se.InFlight)
	assert.Equal(t, kernel.OpFuse, se.InFlight.Op)
	assert.Contains(t, se.Stderr, "Standard_Failure")

	require.NotNil(t, result)
	assert.Equal(t, kernel.StepOK, result.Steps[1].Status)
}

func TestDriver_Execute_StepFailureIsNotAnExecuteError(t *testing.T) {
	runner := &fakeRunner{transcript: &Transcript{
		Stdout: `@occfuse session begin
@occfuse step 0 begin import_step
@occfuse step 0 err cannot open file
@occfuse session end
`,
		ExitCode: 1,
	}}
	d := NewDriver(runner, zap.NewNop())

	plan := fusePlan(t, "missing.step", "b.step", "out.brep")
	result, err := d.Execute(context.Background(), plan, kernel.DefaultOptions())
	require.NoError(t, err, "a rejected step is a result, not an infrastructure error")

	failed := result.Failed()
	require.NotNil(t, failed)
	assert.Equal(t, kernel.OpImportSTEP, failed.Step.Op)
	assert.Equal(t, "missing.step", failed.Step.Path)
}

func TestDriver_Probe(t *testing.T) {
	runner := &fakeRunner{transcript: &Transcript{
		Stdout: "@occfuse session begin\nOpen CASCADE Technology 7.8.1\n@occfuse session end\n",
	}}
	d := NewDriver(runner, zap.NewNop())

	info, err := d.Probe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/opt/fake/DRAWEXE", info.Binary)
	assert.Equal(t, "Open CASCADE Technology 7.8.1", info.Version)
}

func TestDriver_Probe_DeadKernel(t *testing.T) {
	runner := &fakeRunner{transcript: &Transcript{ExitCode: 127, Stderr: "not found\n"}}
	d := NewDriver(runner, zap.NewNop())

	_, err := d.Probe(context.Background())
	require.Error(t, err)
	var se *kernel.SessionError
	assert.True(t, errors.As(err, &se))
}
