package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"occfuse/internal/kernel"
)

func writeStep(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("ISO-10303-21;\nEND-ISO-10303-21;\n"), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func validSpec(t *testing.T) JobSpec {
	t.Helper()
	dir := t.TempDir()
	return JobSpec{
		Volume:      writeStep(t, dir, "last_diff.step"),
		Surface:     writeStep(t, dir, "last_dura.step"),
		Threads:     4,
		RunParallel: true,
		OutputDir:   dir,
	}
}

func TestDefaultOutputName(t *testing.T) {
	if got := DefaultOutputName(8); got != "connected_shape_8.brep" {
		t.Errorf("DefaultOutputName(8) = %q", got)
	}
	if got := DefaultOutputName(1); got != "connected_shape_1.brep" {
		t.Errorf("DefaultOutputName(1) = %q", got)
	}
}

func TestJobSpec_OutputPath(t *testing.T) {
	s := JobSpec{Threads: 4}
	if got := s.OutputPath(); got != "connected_shape_4.brep" {
		t.Errorf("bare spec output = %q", got)
	}

	s.OutputDir = filepath.Join("out", "dir")
	if got, want := s.OutputPath(), filepath.Join("out", "dir", "connected_shape_4.brep"); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}

	s.Output = "explicit.brep"
	if got := s.OutputPath(); got != "explicit.brep" {
		t.Errorf("explicit output = %q", got)
	}
}

func TestJobSpec_Validate(t *testing.T) {
	spec := validSpec(t)
	if err := spec.Validate(); err != nil {
		t.Fatalf("valid spec rejected: %v", err)
	}

	t.Run("zero threads", func(t *testing.T) {
		s := validSpec(t)
		s.Threads = 0
		if err := s.Validate(); err == nil {
			t.Error("expected an error")
		}
	})

	t.Run("empty inputs", func(t *testing.T) {
		s := validSpec(t)
		s.Volume = ""
		if err := s.Validate(); err == nil {
			t.Error("expected an error")
		}
	})

	t.Run("missing file names the file", func(t *testing.T) {
		s := validSpec(t)
		s.Surface = filepath.Join(t.TempDir(), "nope.step")
		err := s.Validate()
		if err == nil {
			t.Fatal("expected an error")
		}
		ie, ok := kernel.AsImportError(err)
		if !ok {
			t.Fatalf("expected ImportError, got %T: %v", err, err)
		}
		if ie.Path != s.Surface {
			t.Errorf("error names %q, want %q", ie.Path, s.Surface)
		}
	})

	t.Run("directory input rejected", func(t *testing.T) {
		s := validSpec(t)
		s.Volume = t.TempDir()
		err := s.Validate()
		if _, ok := kernel.AsImportError(err); !ok {
			t.Fatalf("expected ImportError, got %v", err)
		}
	})

	t.Run("negative timeout", func(t *testing.T) {
		s := validSpec(t)
		s.Timeout = -1
		if err := s.Validate(); err == nil {
			t.Error("expected an error")
		}
	})
}
