package draw

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func fakeExecutable(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestLocate(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("executable bits and PATH semantics differ on windows")
	}

	t.Run("explicit path wins", func(t *testing.T) {
		dir := t.TempDir()
		bin := fakeExecutable(t, dir, "mykernel")
		t.Setenv(EnvBinary, fakeExecutable(t, dir, "envkernel"))

		got, err := Locate(bin, "")
		if err != nil {
			t.Fatalf("Locate: %v", err)
		}
		if got != bin {
			t.Errorf("Locate = %q, want %q", got, bin)
		}
	})

	t.Run("explicit path must exist", func(t *testing.T) {
		dir := t.TempDir()
		fakeExecutable(t, dir, "real")

		_, err := Locate(filepath.Join(dir, "missing"), "")
		if err == nil {
			t.Fatal("a broken explicit path must not fall through")
		}
	})

	t.Run("explicit directory rejected", func(t *testing.T) {
		if _, err := Locate(t.TempDir(), ""); err == nil {
			t.Fatal("a directory is not a kernel")
		}
	})

	t.Run("environment variable", func(t *testing.T) {
		bin := fakeExecutable(t, t.TempDir(), "envkernel")
		t.Setenv(EnvBinary, bin)

		got, err := Locate("", "")
		if err != nil {
			t.Fatalf("Locate: %v", err)
		}
		if got != bin {
			t.Errorf("Locate = %q, want %q", got, bin)
		}
	})

	t.Run("configured path", func(t *testing.T) {
		t.Setenv(EnvBinary, "")
		bin := fakeExecutable(t, t.TempDir(), "cfgkernel")

		got, err := Locate("", bin)
		if err != nil {
			t.Fatalf("Locate: %v", err)
		}
		if got != bin {
			t.Errorf("Locate = %q, want %q", got, bin)
		}
	})

	t.Run("path lookup of conventional names", func(t *testing.T) {
		t.Setenv(EnvBinary, "")
		dir := t.TempDir()
		bin := fakeExecutable(t, dir, "drawexe")
		t.Setenv("PATH", dir)

		got, err := Locate("", "")
		if err != nil {
			t.Fatalf("Locate: %v", err)
		}
		if got != bin {
			t.Errorf("Locate = %q, want %q", got, bin)
		}
	})

	t.Run("nothing found", func(t *testing.T) {
		t.Setenv(EnvBinary, "")
		t.Setenv("PATH", t.TempDir())

		_, err := Locate("", "")
		var nf *NotFoundError
		if !errors.As(err, &nf) {
			t.Fatalf("expected NotFoundError, got %v", err)
		}
		if len(nf.Tried) == 0 {
			t.Error("NotFoundError lists nothing")
		}
		if !strings.Contains(err.Error(), EnvBinary) {
			t.Errorf("error does not name the escape hatch: %v", err)
		}
	})

	t.Run("bare name resolved through PATH", func(t *testing.T) {
		dir := t.TempDir()
		bin := fakeExecutable(t, dir, "customdraw")
		t.Setenv("PATH", dir)

		got, err := Locate("customdraw", "")
		if err != nil {
			t.Fatalf("Locate: %v", err)
		}
		if got != bin {
			t.Errorf("Locate = %q, want %q", got, bin)
		}
	})
}
