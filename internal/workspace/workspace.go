// Package workspace reads a JavaScript monorepo manifest into package descriptors.
//
// Members are listed by pnpm-workspace.yaml (packages: globs, "!" prefixes
// exclude) or, when that file is absent, by the "workspaces" field of the root
// package.json.
package workspace

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/smileynet/testorch/internal/graph"
)

// Sentinel errors for caller-checkable conditions.
var (
	ErrNoManifest = errors.New("workspace: no workspace manifest found")
	ErrNoPackages = errors.New("workspace: manifest lists no packages")
)

// workspaceProtocol marks a dependency version as a sibling workspace package.
const workspaceProtocol = "workspace:"

// skipDirs are never descended into during test discovery.
var skipDirs = map[string]bool{
	"node_modules": true,
	"dist":         true,
	".git":         true,
	".turbo":       true,
	"coverage":     true,
}

// Options configures a Reader.
type Options struct {
	Root         string   // Workspace root directory.
	Manifest     string   // pnpm-workspace.yaml path relative to Root.
	Scope        string   // Name prefix marking internal packages; empty = workspace: protocol only.
	Script       string   // package.json script that must exist for a package to be testable.
	Command      string   // Shell command run in the package directory when Script exists.
	TestPatterns []string // Basename globs identifying test files.
}

// Reader lists workspace packages.
type Reader struct {
	opts Options
}

// NewReader creates a Reader.
func NewReader(opts Options) *Reader {
	if opts.Root == "" {
		opts.Root = "."
	}
	return &Reader{opts: opts}
}

// packageJSON is the subset of package.json the reader consumes.
type packageJSON struct {
	Name             string            `json:"name"`
	Scripts          map[string]string `json:"scripts"`
	Dependencies     map[string]string `json:"dependencies"`
	DevDependencies  map[string]string `json:"devDependencies"`
	PeerDependencies map[string]string `json:"peerDependencies"`
	Workspaces       json.RawMessage   `json:"workspaces"`
}

// pnpmWorkspace is the YAML structure of pnpm-workspace.yaml.
type pnpmWorkspace struct {
	Packages []string `yaml:"packages"`
}

// List returns one descriptor per workspace member, sorted by ID.
func (r *Reader) List() ([]graph.PackageDescriptor, error) {
	patterns, err := r.memberPatterns()
	if err != nil {
		return nil, err
	}

	dirs, err := expandPatterns(r.opts.Root, patterns)
	if err != nil {
		return nil, err
	}

	descs := make([]graph.PackageDescriptor, 0, len(dirs))
	for _, rel := range dirs {
		d, ok, err := r.readPackage(rel)
		if err != nil {
			return nil, err
		}
		if ok {
			descs = append(descs, d)
		}
	}
	return descs, nil
}

// memberPatterns loads the member globs from pnpm-workspace.yaml or package.json.
func (r *Reader) memberPatterns() ([]string, error) {
	manifest := r.opts.Manifest
	if manifest == "" {
		manifest = "pnpm-workspace.yaml"
	}
	data, err := os.ReadFile(filepath.Join(r.opts.Root, manifest))
	switch {
	case err == nil:
		var ws pnpmWorkspace
		if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&ws); err != nil {
			return nil, fmt.Errorf("workspace: parsing %s: %w", manifest, err)
		}
		if len(ws.Packages) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrNoPackages, manifest)
		}
		return ws.Packages, nil
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("workspace: reading %s: %w", manifest, err)
	}

	root, err := readPackageJSON(filepath.Join(r.opts.Root, "package.json"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoManifest
		}
		return nil, err
	}
	patterns, err := parseWorkspacesField(root.Workspaces)
	if err != nil {
		return nil, err
	}
	if len(patterns) == 0 {
		return nil, ErrNoManifest
	}
	return patterns, nil
}

// parseWorkspacesField accepts both ["a/*"] and {"packages": ["a/*"]}.
func parseWorkspacesField(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var obj struct {
		Packages []string `json:"packages"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("workspace: parsing package.json workspaces: %w", err)
	}
	return obj.Packages, nil
}

// expandPatterns resolves include globs under root and drops directories that
// match any "!" exclusion. Returned paths are slash-separated, relative and sorted.
func expandPatterns(root string, patterns []string) ([]string, error) {
	var includes, excludes []string
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if ex, ok := strings.CutPrefix(p, "!"); ok {
			excludes = append(excludes, cleanPattern(ex))
			continue
		}
		includes = append(includes, cleanPattern(p))
	}

	seen := make(map[string]bool)
	var dirs []string
	for _, inc := range includes {
		matches, err := filepath.Glob(filepath.Join(root, filepath.FromSlash(inc)))
		if err != nil {
			return nil, fmt.Errorf("workspace: invalid pattern %q: %w", inc, err)
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil || !info.IsDir() {
				continue
			}
			rel, err := filepath.Rel(root, m)
			if err != nil {
				continue
			}
			rel = filepath.ToSlash(rel)
			if seen[rel] || excluded(rel, excludes) {
				continue
			}
			seen[rel] = true
			dirs = append(dirs, rel)
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

func cleanPattern(p string) string {
	return path.Clean(strings.TrimSuffix(strings.TrimPrefix(p, "./"), "/"))
}

// excluded reports whether rel matches an exclusion. A leading "**/" matches
// at any depth.
func excluded(rel string, excludes []string) bool {
	for _, ex := range excludes {
		if ok, _ := path.Match(ex, rel); ok {
			return true
		}
		if tail, ok := strings.CutPrefix(ex, "**/"); ok {
			segs := strings.Split(rel, "/")
			for i := range segs {
				if ok, _ := path.Match(tail, strings.Join(segs[i:], "/")); ok {
					return true
				}
			}
		}
	}
	return false
}

// readPackage builds a descriptor for the member at rel. Directories without a
// package.json are skipped.
func (r *Reader) readPackage(rel string) (graph.PackageDescriptor, bool, error) {
	dir := filepath.Join(r.opts.Root, filepath.FromSlash(rel))
	pkg, err := readPackageJSON(filepath.Join(dir, "package.json"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return graph.PackageDescriptor{}, false, nil
		}
		return graph.PackageDescriptor{}, false, err
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return graph.PackageDescriptor{}, false, fmt.Errorf("workspace: resolving %s: %w", dir, err)
	}

	tests, err := findTestFiles(dir, rel, r.opts.TestPatterns)
	if err != nil {
		return graph.PackageDescriptor{}, false, err
	}

	name := pkg.Name
	if name == "" {
		name = rel
	}

	d := graph.PackageDescriptor{
		ID:           rel,
		Name:         name,
		Dependencies: r.internalDependencies(pkg),
		TestFiles:    tests,
		Dir:          abs,
	}
	if script := r.opts.Script; script == "" || pkg.Scripts[script] != "" {
		d.TestCommand = r.opts.Command
	}
	return d, true, nil
}

// internalDependencies returns the sorted names of same-workspace dependencies
// across dependencies, devDependencies and peerDependencies.
func (r *Reader) internalDependencies(pkg packageJSON) []string {
	seen := make(map[string]bool)
	var names []string
	for _, deps := range []map[string]string{pkg.Dependencies, pkg.DevDependencies, pkg.PeerDependencies} {
		for name, version := range deps {
			if seen[name] || !r.isInternal(name, version) {
				continue
			}
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (r *Reader) isInternal(name, version string) bool {
	if strings.HasPrefix(version, workspaceProtocol) {
		return true
	}
	return r.opts.Scope != "" && strings.HasPrefix(name, r.opts.Scope)
}

// findTestFiles walks dir and returns workspace-relative paths of files whose
// basename matches any pattern, in lexical order.
func findTestFiles(dir, rel string, patterns []string) ([]string, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != dir && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		for _, pat := range patterns {
			if ok, _ := filepath.Match(pat, d.Name()); ok {
				sub, err := filepath.Rel(dir, p)
				if err != nil {
					return err
				}
				files = append(files, path.Join(rel, filepath.ToSlash(sub)))
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("workspace: scanning %s: %w", dir, err)
	}
	return files, nil
}

func readPackageJSON(p string) (packageJSON, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return packageJSON{}, err
		}
		return packageJSON{}, fmt.Errorf("workspace: reading %s: %w", p, err)
	}
	var pkg packageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return packageJSON{}, fmt.Errorf("workspace: parsing %s: %w", p, err)
	}
	return pkg, nil
}
