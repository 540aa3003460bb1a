package report

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"text/template"
)

// SummaryTemplate is the template file WriteSummary looks up in its filesystem.
const SummaryTemplate = "summary.md.tmpl"

var summaryFuncs = template.FuncMap{
	"seconds": func(ms int64) string { return fmt.Sprintf("%.1fs", float64(ms)/1000) },
	"icon": func(success, skipped bool) string {
		switch {
		case skipped:
			return "⏭️"
		case success:
			return "✅"
		default:
			return "❌"
		}
	},
}

// WriteSummary renders r as Markdown using SummaryTemplate from fsys.
func WriteSummary(w io.Writer, fsys fs.FS, r RunReport) error {
	src, err := fs.ReadFile(fsys, SummaryTemplate)
	if err != nil {
		return fmt.Errorf("report: loading summary template: %w", err)
	}
	tmpl, err := template.New(SummaryTemplate).Funcs(summaryFuncs).Parse(string(src))
	if err != nil {
		return fmt.Errorf("report: parsing summary template: %w", err)
	}
	if err := tmpl.Execute(w, r); err != nil {
		return fmt.Errorf("report: rendering summary: %w", err)
	}
	return nil
}

// AppendSummary renders r and appends it to the file at path, creating it if
// needed. CI step summary files are shared between steps, so they are never
// truncated.
func AppendSummary(path string, fsys fs.FS, r RunReport) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("report: creating summary directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("report: opening summary %s: %w", path, err)
	}
	if err := WriteSummary(f, fsys, r); err != nil {
		f.Close() //nolint:errcheck,gosec // render error takes precedence
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("report: closing summary %s: %w", path, err)
	}
	return nil
}
