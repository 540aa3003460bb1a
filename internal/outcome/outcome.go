// Package outcome classifies test runner output into pass/fail counts.
//
// Runners should print a structured result line:
//
//	TESTORCH_RESULT {"total":12,"passed":11,"failed":1}
//
// Output without one falls back to best-effort parsing of vitest/jest summary
// lines and then to counting pass/fail symbols. Both fallbacks are tied to the
// printed format of specific frameworks and may stop matching when it changes.
package outcome

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// ResultMarker prefixes the structured result line.
const ResultMarker = "TESTORCH_RESULT"

// Source names the tier that produced a classification.
type Source string

const (
	SourceStructured Source = "structured"
	SourceSummary    Source = "summary-line"
	SourceSymbols    Source = "symbols"
	SourceNone       Source = "none"
)

// Counts holds classified test counts. Total always equals Passed + Failed.
type Counts struct {
	Total  int    `json:"total"`
	Passed int    `json:"passed"`
	Failed int    `json:"failed"`
	Source Source `json:"-"`
}

// Found reports whether any tier produced a signal.
func (c Counts) Found() bool { return c.Source != SourceNone }

// structuredLine is the JSON payload after ResultMarker.
type structuredLine struct {
	Total  *int `json:"total"`
	Passed *int `json:"passed"`
	Failed *int `json:"failed"`
}

var (
	summaryLine = regexp.MustCompile(`^Tests:?\s`)
	passedCount = regexp.MustCompile(`(\d+)\s+passed`)
	failedCount = regexp.MustCompile(`(\d+)\s+failed`)
)

// Parse classifies output, trying each tier in turn.
func Parse(output string) Counts {
	lines := strings.Split(ansi.Strip(output), "\n")

	if c, ok := parseStructured(lines); ok {
		return c
	}
	if c, ok := parseSummary(lines); ok {
		return c
	}
	if c, ok := countSymbols(lines); ok {
		return c
	}
	return Counts{Source: SourceNone}
}

// parseStructured returns the last valid structured result line.
func parseStructured(lines []string) (Counts, bool) {
	var last *Counts
	for _, line := range lines {
		line = strings.TrimSpace(line)
		rest, ok := strings.CutPrefix(line, ResultMarker)
		if !ok {
			continue
		}
		var sl structuredLine
		if err := json.Unmarshal([]byte(strings.TrimSpace(rest)), &sl); err != nil {
			continue
		}
		if sl.Passed == nil && sl.Failed == nil {
			continue
		}
		c := normalize(deref(sl.Passed), deref(sl.Failed), SourceStructured)
		last = &c
	}
	if last == nil {
		return Counts{}, false
	}
	return *last, true
}

// parseSummary matches "Tests  1 failed | 3 passed (4)" and
// "Tests:       1 failed, 3 passed, 4 total". The last match wins.
func parseSummary(lines []string) (Counts, bool) {
	var last *Counts
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if !summaryLine.MatchString(line) {
			continue
		}
		p, okP := firstInt(passedCount, line)
		f, okF := firstInt(failedCount, line)
		if !okP && !okF {
			continue
		}
		c := normalize(p, f, SourceSummary)
		last = &c
	}
	if last == nil {
		return Counts{}, false
	}
	return *last, true
}

// countSymbols counts lines that start with a pass or fail mark.
func countSymbols(lines []string) (Counts, bool) {
	var passed, failed int
	for _, line := range lines {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "✓"), strings.HasPrefix(line, "✔"):
			passed++
		case strings.HasPrefix(line, "✗"), strings.HasPrefix(line, "✘"), strings.HasPrefix(line, "×"):
			failed++
		}
	}
	if passed == 0 && failed == 0 {
		return Counts{}, false
	}
	return normalize(passed, failed, SourceSymbols), true
}

func normalize(passed, failed int, src Source) Counts {
	passed = max(passed, 0)
	failed = max(failed, 0)
	return Counts{Total: passed + failed, Passed: passed, Failed: failed, Source: src}
}

func firstInt(re *regexp.Regexp, s string) (int, bool) {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
