package graph

import (
	"reflect"
	"testing"
)

func TestAffected_CascadesToDependents(t *testing.T) {
	// Given A <- B <- C
	g := mustBuild(t, chain())

	// When a file under A changes
	got := Affected(g, []string{"packages/a/src/index.ts"})

	// Then A, B and C are all affected
	want := []string{"packages/a", "packages/b", "packages/c"}
	if !reflect.DeepEqual(got.Sorted(), want) {
		t.Errorf("Affected() = %v, want %v", got.Sorted(), want)
	}
}

func TestAffected_DoesNotCascadeToDependencies(t *testing.T) {
	g := mustBuild(t, chain())

	got := Affected(g, []string{"packages/c/README.md"})

	if !reflect.DeepEqual(got.Sorted(), []string{"packages/c"}) {
		t.Errorf("Affected() = %v, want [packages/c]", got.Sorted())
	}
}

func TestAffected_PathSegmentBoundary(t *testing.T) {
	g := mustBuild(t, []PackageDescriptor{
		{ID: "packages/ui", Name: "ui"},
		{ID: "packages/ui-kit", Name: "ui-kit"},
	})

	tests := []struct {
		name  string
		files []string
		want  []string
	}{
		{name: "sibling with common prefix", files: []string{"packages/ui-kit/a.ts"}, want: []string{"packages/ui-kit"}},
		{name: "leading dot slash", files: []string{"./packages/ui/a.ts"}, want: []string{"packages/ui"}},
		{name: "windows separators", files: []string{`packages\ui\a.ts`}, want: []string{"packages/ui"}},
		{name: "root file", files: []string{"package.json"}, want: []string{}},
		{name: "blank entry", files: []string{"  "}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Affected(g, tt.files).Sorted()
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Affected(%v) = %v, want %v", tt.files, got, tt.want)
			}
		})
	}
}

func TestAffected_NoMatchIsEmpty(t *testing.T) {
	g := mustBuild(t, chain())

	got := Affected(g, nil)

	if len(got) != 0 {
		t.Errorf("Affected(nil) = %v, want empty", got.Sorted())
	}
}

func TestAffected_MonotonicAndOrderIndependent(t *testing.T) {
	// Given a diamond: shared <- left, shared <- right, left+right <- app, plus an island
	g := mustBuild(t, []PackageDescriptor{
		{ID: "shared", Name: "shared"},
		{ID: "left", Name: "left", Dependencies: []string{"shared"}},
		{ID: "right", Name: "right", Dependencies: []string{"shared"}},
		{ID: "app", Name: "app", Dependencies: []string{"left", "right"}},
		{ID: "island", Name: "island"},
	})

	small := []string{"left/x.ts"}
	large := []string{"island/y.ts", "left/x.ts", "right/z.ts"}
	permuted := []string{"right/z.ts", "left/x.ts", "island/y.ts"}

	a := Affected(g, small)
	b := Affected(g, large)

	// Then a superset of files yields a superset of packages
	for id := range a {
		if !b.Has(id) {
			t.Errorf("monotonicity: %q in Affected(small) but not Affected(large)", id)
		}
	}

	// And permuting the input does not change the result
	if !reflect.DeepEqual(b.Sorted(), Affected(g, permuted).Sorted()) {
		t.Errorf("order dependence: %v vs %v", b.Sorted(), Affected(g, permuted).Sorted())
	}

	// And repeated calls agree
	if !reflect.DeepEqual(b.Sorted(), Affected(g, large).Sorted()) {
		t.Error("Affected is not idempotent")
	}
}

func TestAffected_RootPackageMatchesEverything(t *testing.T) {
	g := mustBuild(t, []PackageDescriptor{
		{ID: ".", Name: "root"},
		{ID: "packages/a", Name: "a"},
	})

	got := Affected(g, []string{"tsconfig.json"})

	if !reflect.DeepEqual(got.Sorted(), []string{"."}) {
		t.Errorf("Affected() = %v, want [.]", got.Sorted())
	}
}
