//go:build smoke

package main

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// TestSmoke_Binary exercises the built binary end-to-end: version output,
// exit codes, and a progressive run against a throwaway workspace.
//
// Subtests run sequentially and depend on the first subtest building the binary.
func TestSmoke_Binary(t *testing.T) {
	projectRoot := findProjectRoot(t)
	binary := filepath.Join(t.TempDir(), "testorch")

	t.Run("go build produces a testorch binary", func(t *testing.T) {
		cmd := exec.Command("go", "build",
			"-ldflags", "-X main.version=smoke-test -X main.commit=abc1234 -X main.date=2026-01-01",
			"-o", binary, "./cmd/testorch")
		cmd.Dir = projectRoot
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("go build failed: %v\n%s", err, out)
		}
	})

	t.Run("version prints version commit and date", func(t *testing.T) {
		requireBinary(t, binary)

		out, _ := exec.Command(binary, "--version").CombinedOutput()

		for _, want := range []string{"smoke-test", "abc1234", "2026-01-01"} {
			if !strings.Contains(string(out), want) {
				t.Errorf("version output = %q, want to contain %q", out, want)
			}
		}
	})

	t.Run("unknown mode exits 1 with usage", func(t *testing.T) {
		requireBinary(t, binary)

		out, err := exec.Command(binary, "everything").CombinedOutput()

		if code := exitStatus(t, err); code != 1 {
			t.Errorf("exit code = %d, want 1", code)
		}
		if !strings.Contains(string(out), "Usage:") {
			t.Errorf("output = %q, want usage", out)
		}
	})

	t.Run("progressive stops at the failing stage", func(t *testing.T) {
		requireBinary(t, binary)
		dir := t.TempDir()
		cfg := `stages:
  unit:
    command: "echo unit-ran"
  integration:
    command: "exit 3"
  component:
    command: "touch component-ran"
`
		if err := os.MkdirAll(filepath.Join(dir, ".testorch"), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, ".testorch", "config.yaml"), []byte(cfg), 0o644); err != nil {
			t.Fatal(err)
		}

		cmd := exec.Command(binary, "progressive", "--no-tui")
		cmd.Dir = dir
		cmd.Env = append(os.Environ(), "HOME="+dir, "GITHUB_STEP_SUMMARY=")
		out, err := cmd.CombinedOutput()

		if code := exitStatus(t, err); code != 1 {
			t.Errorf("exit code = %d, want 1\n%s", code, out)
		}
		if _, err := os.Stat(filepath.Join(dir, "component-ran")); err == nil {
			t.Error("component stage ran after integration failed")
		}
		if _, err := os.Stat(filepath.Join(dir, "test-results", "test-report.json")); err != nil {
			t.Errorf("report not written: %v", err)
		}
	})
}

func requireBinary(t *testing.T, binary string) {
	t.Helper()
	if _, err := os.Stat(binary); err != nil {
		t.Fatal("binary not available -- the build subtest must run first and succeed")
	}
}

func exitStatus(t *testing.T, err error) int {
	t.Helper()
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("unexpected error: %v", err)
	}
	return exitErr.ExitCode()
}

func findProjectRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find project root (go.mod)")
		}
		dir = parent
	}
}
