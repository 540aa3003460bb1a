// Package vcs lists files changed relative to a git base ref.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
)

// ErrInvalidRef is returned for refs that could be mistaken for git flags.
var ErrInvalidRef = errors.New("vcs: invalid ref")

// Logger receives degraded-mode diagnostics. *logging.Logger satisfies it.
type Logger interface {
	Printf(format string, args ...any)
}

// Git reads changes from the repository containing dir.
type Git struct {
	dir string
	log Logger
}

// NewGit creates a Git rooted at dir. Paths it returns are relative to dir.
// log may be nil.
func NewGit(dir string, log Logger) *Git {
	return &Git{dir: dir, log: log}
}

// validateRef rejects empty and flag-like refs.
func validateRef(ref string) error {
	if ref == "" {
		return fmt.Errorf("%w: cannot be empty", ErrInvalidRef)
	}
	if strings.HasPrefix(ref, "-") {
		return fmt.Errorf("%w: %q (must not start with -)", ErrInvalidRef, ref)
	}
	return nil
}

// ChangedFiles returns the union of files changed on this branch since it
// forked from base and files with uncommitted changes, deduplicated and sorted.
//
// Failures never abort a run: each failing query is logged and contributes no
// files, so an unreachable base ref degrades to uncommitted changes only, and a
// missing repository to an empty list.
func (g *Git) ChangedFiles(ctx context.Context, base string) []string {
	seen := make(map[string]bool)
	var files []string
	add := func(list []string) {
		for _, f := range list {
			if !seen[f] {
				seen[f] = true
				files = append(files, f)
			}
		}
	}

	if err := validateRef(base); err != nil {
		g.logf("vcs: skipping branch diff: %v", err)
	} else if list, err := g.diff(ctx, base+"...HEAD"); err != nil {
		g.logf("vcs: branch diff against %s failed: %v", base, err)
	} else {
		add(list)
	}

	if list, err := g.diff(ctx, "HEAD"); err != nil {
		g.logf("vcs: working tree diff failed: %v", err)
	} else {
		add(list)
	}

	sort.Strings(files)
	return files
}

// diff runs "git diff --name-only --relative <rev>" in g.dir.
func (g *Git) diff(ctx context.Context, rev string) ([]string, error) {
	cmd := exec.CommandContext(ctx, "git", "diff", "--name-only", "--relative", rev, "--")
	cmd.Dir = g.dir
	out, err := cmd.Output()
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) && len(ee.Stderr) > 0 {
			return nil, fmt.Errorf("git diff %s: %w\n%s", rev, err, strings.TrimSpace(string(ee.Stderr)))
		}
		return nil, fmt.Errorf("git diff %s: %w", rev, err)
	}

	var files []string
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

func (g *Git) logf(format string, args ...any) {
	if g.log != nil {
		g.log.Printf(format, args...)
	}
}
