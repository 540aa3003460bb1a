package testorch

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
)

func TestEmbeddedSummaryTemplate(t *testing.T) {
	data, err := fs.ReadFile(Templates, "summary.md.tmpl")
	if err != nil {
		t.Fatalf("reading embedded summary.md.tmpl: %v", err)
	}
	if !strings.Contains(string(data), ".Summary.Total") {
		t.Error("embedded summary.md.tmpl does not render totals")
	}
}

func TestOverlayFS_FallsBackToEmbedded(t *testing.T) {
	// Given: a template only in the embedded FS
	embedded := fstest.MapFS{
		"summary.md.tmpl": &fstest.MapFile{Data: []byte("embedded")},
	}

	// When: reading through an overlay on an empty directory
	data, err := fs.ReadFile(OverlayFS(t.TempDir(), embedded), "summary.md.tmpl")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	// Then: the embedded copy is returned
	if string(data) != "embedded" {
		t.Errorf("got %q, want %q", data, "embedded")
	}
}

func TestOverlayFS_LocalFileWins(t *testing.T) {
	// Given: a local override of an embedded template and a second embedded-only file
	embedded := fstest.MapFS{
		"summary.md.tmpl": &fstest.MapFile{Data: []byte("embedded")},
		"other.tmpl":      &fstest.MapFile{Data: []byte("embedded-other")},
	}
	localDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(localDir, "summary.md.tmpl"), []byte("local"), 0o644); err != nil {
		t.Fatal(err)
	}
	ofs := OverlayFS(localDir, embedded)

	// When/Then: the override comes from disk, the rest from the embedded FS
	for name, want := range map[string]string{"summary.md.tmpl": "local", "other.tmpl": "embedded-other"} {
		data, err := fs.ReadFile(ofs, name)
		if err != nil {
			t.Fatalf("ReadFile(%s) error = %v", name, err)
		}
		if string(data) != want {
			t.Errorf("%s = %q, want %q", name, data, want)
		}
	}
}

func TestOverlayFS_Missing(t *testing.T) {
	_, err := fs.ReadFile(OverlayFS(t.TempDir(), fstest.MapFS{}), "missing.tmpl")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestOverlayFS_RejectsInvalidPath(t *testing.T) {
	ofs := OverlayFS(t.TempDir(), fstest.MapFS{})

	for _, name := range []string{"../escape", "/absolute", `bad\slash`} {
		if _, err := ofs.Open(name); err == nil {
			t.Errorf("Open(%q) should return error", name)
		}
	}
}
