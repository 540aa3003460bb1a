package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/smileynet/testorch/internal/graph"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// setupPnpmWorkspace lays out a small design-system style monorepo.
func setupPnpmWorkspace(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "pnpm-workspace.yaml"), `packages:
  - "packages/*"
  - "apps/*"
  - "!packages/scratch"
`)
	writeFile(t, filepath.Join(root, "packages/tokens/package.json"), `{
  "name": "@acme/tokens",
  "scripts": {"test": "vitest run"}
}`)
	writeFile(t, filepath.Join(root, "packages/tokens/src/tokens.test.ts"), "")
	writeFile(t, filepath.Join(root, "packages/tokens/src/tokens.ts"), "")
	writeFile(t, filepath.Join(root, "packages/tokens/node_modules/x/x.test.ts"), "")

	writeFile(t, filepath.Join(root, "packages/ui/package.json"), `{
  "name": "@acme/ui",
  "scripts": {"test": "vitest run"},
  "dependencies": {"@acme/tokens": "workspace:*", "react": "^19.0.0"},
  "devDependencies": {"@acme/utils": "1.0.0"},
  "peerDependencies": {"@acme/tokens": "workspace:^"}
}`)
	writeFile(t, filepath.Join(root, "packages/ui/src/button.spec.tsx"), "")
	writeFile(t, filepath.Join(root, "packages/ui/dist/button.test.js"), "")

	writeFile(t, filepath.Join(root, "packages/scratch/package.json"), `{"name": "scratch"}`)
	writeFile(t, filepath.Join(root, "packages/notes/README.md"), "not a package")

	writeFile(t, filepath.Join(root, "apps/docs/package.json"), `{
  "name": "docs",
  "scripts": {"build": "astro build"},
  "dependencies": {"@acme/ui": "workspace:*"}
}`)
	return root
}

func TestReader_ListPnpm(t *testing.T) {
	// Given a pnpm workspace with an excluded member and a non-package dir
	root := setupPnpmWorkspace(t)
	r := NewReader(Options{
		Root:         root,
		Manifest:     "pnpm-workspace.yaml",
		Script:       "test",
		Command:      "pnpm run test",
		TestPatterns: []string{"*.test.ts", "*.spec.tsx", "*.test.js"},
	})

	// When listing packages
	descs, err := r.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	// Then members are sorted by ID and excluded or non-package dirs are absent
	var ids []string
	for _, d := range descs {
		ids = append(ids, d.ID)
	}
	if want := []string{"apps/docs", "packages/tokens", "packages/ui"}; !reflect.DeepEqual(ids, want) {
		t.Fatalf("IDs = %v, want %v", ids, want)
	}

	byID := make(map[string]graph.PackageDescriptor)
	for _, d := range descs {
		byID[d.ID] = d
	}

	ui := byID["packages/ui"]
	if ui.Name != "@acme/ui" {
		t.Errorf("ui.Name = %q", ui.Name)
	}
	if want := []string{"@acme/tokens"}; !reflect.DeepEqual(ui.Dependencies, want) {
		t.Errorf("ui.Dependencies = %v, want %v", ui.Dependencies, want)
	}
	if want := []string{"packages/ui/src/button.spec.tsx"}; !reflect.DeepEqual(ui.TestFiles, want) {
		t.Errorf("ui.TestFiles = %v, want %v (dist must be skipped)", ui.TestFiles, want)
	}
	if ui.TestCommand != "pnpm run test" {
		t.Errorf("ui.TestCommand = %q", ui.TestCommand)
	}
	if !filepath.IsAbs(ui.Dir) || filepath.Base(ui.Dir) != "ui" {
		t.Errorf("ui.Dir = %q, want absolute path ending in ui", ui.Dir)
	}

	tokens := byID["packages/tokens"]
	if want := []string{"packages/tokens/src/tokens.test.ts"}; !reflect.DeepEqual(tokens.TestFiles, want) {
		t.Errorf("tokens.TestFiles = %v, want %v (node_modules must be skipped)", tokens.TestFiles, want)
	}

	// A package without the test script has no command to run.
	docs := byID["apps/docs"]
	if docs.TestCommand != "" {
		t.Errorf("docs.TestCommand = %q, want empty", docs.TestCommand)
	}
	if want := []string{"@acme/ui"}; !reflect.DeepEqual(docs.Dependencies, want) {
		t.Errorf("docs.Dependencies = %v, want %v", docs.Dependencies, want)
	}
}

func TestReader_ScopePrefix(t *testing.T) {
	// Given the scope prefix, a plain semver dep on a sibling is internal too
	root := setupPnpmWorkspace(t)
	r := NewReader(Options{Root: root, Manifest: "pnpm-workspace.yaml", Scope: "@acme/"})

	descs, err := r.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	for _, d := range descs {
		if d.ID != "packages/ui" {
			continue
		}
		if want := []string{"@acme/tokens", "@acme/utils"}; !reflect.DeepEqual(d.Dependencies, want) {
			t.Errorf("Dependencies = %v, want %v", d.Dependencies, want)
		}
		return
	}
	t.Fatal("packages/ui not listed")
}

func TestReader_BuildsGraph(t *testing.T) {
	// Given descriptors from a real layout, the graph resolves name-based deps
	root := setupPnpmWorkspace(t)
	descs, err := NewReader(Options{Root: root, Manifest: "pnpm-workspace.yaml"}).List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	g, err := graph.Build(descs)
	if err != nil {
		t.Fatalf("graph.Build() error = %v", err)
	}

	got := graph.Affected(g, []string{"packages/tokens/src/tokens.ts"}).Sorted()
	want := []string{"apps/docs", "packages/tokens", "packages/ui"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Affected = %v, want %v", got, want)
	}
}

func TestReader_PackageJSONWorkspaces(t *testing.T) {
	tests := []struct {
		name       string
		workspaces string
	}{
		{name: "array form", workspaces: `["libs/*"]`},
		{name: "object form", workspaces: `{"packages": ["libs/*"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writeFile(t, filepath.Join(root, "package.json"), `{"name":"root","workspaces":`+tt.workspaces+`}`)
			writeFile(t, filepath.Join(root, "libs/a/package.json"), `{"name":"a"}`)

			descs, err := NewReader(Options{Root: root, Manifest: "pnpm-workspace.yaml"}).List()
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(descs) != 1 || descs[0].ID != "libs/a" || descs[0].Name != "a" {
				t.Errorf("List() = %+v, want single libs/a", descs)
			}
		})
	}
}

func TestReader_Errors(t *testing.T) {
	t.Run("no manifest", func(t *testing.T) {
		_, err := NewReader(Options{Root: t.TempDir()}).List()
		if !errors.Is(err, ErrNoManifest) {
			t.Errorf("List() error = %v, want ErrNoManifest", err)
		}
	})

	t.Run("empty packages", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, filepath.Join(root, "pnpm-workspace.yaml"), "packages: []\n")
		_, err := NewReader(Options{Root: root}).List()
		if !errors.Is(err, ErrNoPackages) {
			t.Errorf("List() error = %v, want ErrNoPackages", err)
		}
	})

	t.Run("invalid package.json", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, filepath.Join(root, "pnpm-workspace.yaml"), "packages: [\"p/*\"]\n")
		writeFile(t, filepath.Join(root, "p/broken/package.json"), "{not json")
		if _, err := NewReader(Options{Root: root}).List(); err == nil {
			t.Error("List() should fail on malformed package.json")
		}
	})
}

func TestExcluded(t *testing.T) {
	tests := []struct {
		rel      string
		excludes []string
		want     bool
	}{
		{"packages/scratch", []string{"packages/scratch"}, true},
		{"packages/ui", []string{"packages/scratch"}, false},
		{"packages/ui/test", []string{"**/test"}, true},
		{"packages/fixtures-a", []string{"packages/fixtures-*"}, true},
	}
	for _, tt := range tests {
		if got := excluded(tt.rel, tt.excludes); got != tt.want {
			t.Errorf("excluded(%q, %v) = %v, want %v", tt.rel, tt.excludes, got, tt.want)
		}
	}
}
