package graph

import (
	"path"
	"strings"
)

// Affected returns the packages that must be re-tested for changedFiles.
//
// A package is seeded when its ID is a path-segment prefix of a changed file,
// then status cascades to every direct and indirect dependent. The result does
// not depend on the order of changedFiles. An empty set means nothing to test.
func Affected(g *Graph, changedFiles []string) Set {
	affected := make(Set)
	var queue []string

	for _, f := range changedFiles {
		f = normalizePath(f)
		if f == "" {
			continue
		}
		for _, id := range g.ids {
			if affected.Has(id) || !containsPath(normalizePath(id), f) {
				continue
			}
			affected.Add(id)
			queue = append(queue, id)
		}
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, dep := range g.dependents[id] {
			if affected.Has(dep) {
				continue
			}
			affected.Add(dep)
			queue = append(queue, dep)
		}
	}

	return affected
}

// containsPath reports whether file lives under dir. "." contains everything.
func containsPath(dir, file string) bool {
	if dir == "." || dir == "" {
		return true
	}
	return file == dir || strings.HasPrefix(file, dir+"/")
}

func normalizePath(p string) string {
	p = strings.TrimSpace(strings.ReplaceAll(p, `\`, "/"))
	if p == "" {
		return ""
	}
	return path.Clean(strings.TrimPrefix(p, "./"))
}
