package graph

import (
	"errors"
	"reflect"
	"testing"
)

// chain returns A (no deps), B -> A, C -> B.
func chain() []PackageDescriptor {
	return []PackageDescriptor{
		{ID: "packages/a", Name: "@acme/a"},
		{ID: "packages/b", Name: "@acme/b", Dependencies: []string{"@acme/a"}},
		{ID: "packages/c", Name: "@acme/c", Dependencies: []string{"@acme/b"}},
	}
}

func mustBuild(t *testing.T, descs []PackageDescriptor) *Graph {
	t.Helper()
	g, err := Build(descs)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return g
}

func TestBuild_ResolvesNamesToIDs(t *testing.T) {
	// Given a chain of packages referencing each other by name
	g := mustBuild(t, chain())

	// Then edges are keyed by ID
	if got := g.Dependencies("packages/b"); !reflect.DeepEqual(got, []string{"packages/a"}) {
		t.Errorf("Dependencies(b) = %v, want [packages/a]", got)
	}
	if got := g.Dependents("packages/a"); !reflect.DeepEqual(got, []string{"packages/b"}) {
		t.Errorf("Dependents(a) = %v, want [packages/b]", got)
	}
	if g.Len() != 3 {
		t.Errorf("Len() = %d, want 3", g.Len())
	}
	if id, ok := g.Lookup("@acme/c"); !ok || id != "packages/c" {
		t.Errorf("Lookup(@acme/c) = %q, %v", id, ok)
	}
}

func TestBuild_DropsDanglingDependencies(t *testing.T) {
	// Given a package depending on something outside the workspace
	g := mustBuild(t, []PackageDescriptor{
		{ID: "packages/a", Name: "a", Dependencies: []string{"react", "left-pad"}},
	})

	// Then the unresolved names produce no edges
	if got := g.Dependencies("packages/a"); len(got) != 0 {
		t.Errorf("Dependencies(a) = %v, want none", got)
	}
}

func TestBuild_DeduplicatesEdges(t *testing.T) {
	g := mustBuild(t, []PackageDescriptor{
		{ID: "a", Name: "a"},
		{ID: "b", Name: "b", Dependencies: []string{"a", "a"}},
	})

	if got := g.Dependents("a"); !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("Dependents(a) = %v, want [b]", got)
	}
}

func TestBuild_DuplicateID(t *testing.T) {
	// Given two descriptors with the same ID
	_, err := Build([]PackageDescriptor{
		{ID: "packages/a", Name: "a"},
		{ID: "packages/a", Name: "a2"},
	})

	// Then Build fails with DuplicatePackageError
	if !errors.Is(err, ErrDuplicatePackage) {
		t.Fatalf("Build() error = %v, want ErrDuplicatePackage", err)
	}
	var de *DuplicatePackageError
	if !errors.As(err, &de) || de.ID != "packages/a" {
		t.Errorf("DuplicatePackageError.ID = %v, want packages/a", de)
	}
}

func TestBuild_DuplicateNameFirstWins(t *testing.T) {
	g := mustBuild(t, []PackageDescriptor{
		{ID: "one", Name: "shared"},
		{ID: "two", Name: "shared"},
		{ID: "three", Name: "three", Dependencies: []string{"shared"}},
	})

	if got := g.Dependencies("three"); !reflect.DeepEqual(got, []string{"one"}) {
		t.Errorf("Dependencies(three) = %v, want [one]", got)
	}
}

func TestGraph_AccessorsReturnCopies(t *testing.T) {
	g := mustBuild(t, chain())

	ids := g.IDs()
	ids[0] = "mutated"
	deps := g.Dependencies("packages/b")
	deps[0] = "mutated"

	if g.IDs()[0] != "packages/a" {
		t.Error("IDs() exposed internal slice")
	}
	if g.Dependencies("packages/b")[0] != "packages/a" {
		t.Error("Dependencies() exposed internal slice")
	}
}
