package index_test

import (
	"errors"
	"reflect"
	"testing"

	"stubgen/internal/index"
	"stubgen/internal/model"
)

func build(t *testing.T, names ...string) *index.Index {
	t.Helper()
	b := index.NewBuilder()
	for _, n := range names {
		if err := b.Register(model.Class{Name: n}); err != nil {
			t.Fatalf("Register(%q): %v", n, err)
		}
	}
	return b.Build()
}

func TestNestedUnderRegisteredOuter(t *testing.T) {
	idx := build(t, "com/example/A", "com/example/A$B")

	n, ok := idx.Nesting("com/example/A$B")
	if !ok {
		t.Fatal("expected A$B to be nested")
	}
	if n.Outer != "com/example/A" || n.SimpleName != "B" || n.Kind != index.KindMember {
		t.Errorf("unexpected nesting: %+v", n)
	}
	if _, ok := idx.Nesting("com/example/A"); ok {
		t.Error("A should be top-level")
	}
}

func TestMissingOuterIsTopLevel(t *testing.T) {
	idx := build(t, "com/example/A$B")
	if _, ok := idx.Nesting("com/example/A$B"); ok {
		t.Error("A$B without A should be top-level")
	}
}

func TestInnerRegisteredBeforeOuter(t *testing.T) {
	idx := build(t, "com/example/A$B", "com/example/A")
	n, ok := idx.Nesting("com/example/A$B")
	if !ok || n.Outer != "com/example/A" {
		t.Errorf("expected A$B nested under A regardless of order, got %+v ok=%v", n, ok)
	}
}

func TestMultiLevelNesting(t *testing.T) {
	idx := build(t, "A", "A$B", "A$B$C")

	c, ok := idx.Nesting("A$B$C")
	if !ok || c.Outer != "A$B" || c.SimpleName != "C" {
		t.Errorf("C: got %+v ok=%v", c, ok)
	}
	b, ok := idx.Nesting("A$B")
	if !ok || b.Outer != "A" || b.SimpleName != "B" {
		t.Errorf("B: got %+v ok=%v", b, ok)
	}

	chain := idx.Chain("A$B$C")
	var got []string
	for _, n := range chain {
		got = append(got, n.Name)
	}
	if want := []string{"A$B", "A$B$C"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Chain = %v, want %v", got, want)
	}
	if !reflect.DeepEqual(idx.Members("A"), []string{"A$B"}) {
		t.Errorf("Members(A) = %v", idx.Members("A"))
	}
	if !reflect.DeepEqual(idx.Members("A$B"), []string{"A$B$C"}) {
		t.Errorf("Members(A$B) = %v", idx.Members("A$B"))
	}
}

func TestClosestRegisteredAncestorWins(t *testing.T) {
	// A$B is not registered, so C attaches to A with simple name "B$C".
	idx := build(t, "A", "A$B$C")
	n, ok := idx.Nesting("A$B$C")
	if !ok {
		t.Fatal("expected A$B$C to be nested")
	}
	if n.Outer != "A" || n.SimpleName != "B$C" {
		t.Errorf("got %+v", n)
	}
}

func TestAnonymousAndLocal(t *testing.T) {
	idx := build(t, "p/Outer", "p/Outer$1", "p/Outer$1Local")

	anon, _ := idx.Nesting("p/Outer$1")
	if anon.Kind != index.KindAnonymous || anon.DeclaredName() != "" {
		t.Errorf("anonymous: %+v", anon)
	}
	local, _ := idx.Nesting("p/Outer$1Local")
	if local.Kind != index.KindLocal || local.DeclaredName() != "Local" {
		t.Errorf("local: %+v", local)
	}
}

func TestMalformedNamesAreTopLevel(t *testing.T) {
	idx := build(t, "p/A", "p/A$", "p/$A", "", "p/", "p/A$$ExternalSyntheticLambda0", "p/A$$B")
	for _, name := range []string{"p/A$", "p/$A", "", "p/", "p/A$$ExternalSyntheticLambda0", "p/A$$B"} {
		if _, ok := idx.Nesting(name); ok {
			t.Errorf("%q should fall back to top-level", name)
		}
	}
}

func TestPackageSeparatorIsNotNesting(t *testing.T) {
	// The '$' in a package segment must not be treated as a split point.
	idx := build(t, "p$q/A", "p")
	if _, ok := idx.Nesting("p$q/A"); ok {
		t.Error("'$' in package name must not produce nesting")
	}
}

func TestRegisterAfterBuild(t *testing.T) {
	b := index.NewBuilder()
	if err := b.Register(model.Class{Name: "A"}); err != nil {
		t.Fatal(err)
	}
	first := b.Build()
	if err := b.Register(model.Class{Name: "B"}); !errors.Is(err, index.ErrFrozen) {
		t.Errorf("expected ErrFrozen, got %v", err)
	}
	if b.Build() != first {
		t.Error("Build should be memoized")
	}
	if first.Contains("B") {
		t.Error("frozen index must not observe late registrations")
	}
}

func TestDuplicateRegistrationKeepsFirst(t *testing.T) {
	b := index.NewBuilder()
	b.Register(model.Class{Name: "A", Super: "first/Super"})
	b.Register(model.Class{Name: "A", Super: "second/Super"})
	idx := b.Build()
	c, ok := idx.Class("A")
	if !ok || c.Super != "first/Super" {
		t.Errorf("expected first definition, got %+v", c)
	}
	if len(idx.Names()) != 1 {
		t.Errorf("Names = %v", idx.Names())
	}
}

func TestDecompose(t *testing.T) {
	registered := map[string]bool{"a/Outer": true, "a/Outer$Mid": true}
	has := func(n string) bool { return registered[n] }

	tests := []struct {
		name       string
		wantOuter  string
		wantSimple string
		wantOK     bool
	}{
		{"a/Outer$Mid$Leaf", "a/Outer$Mid", "Leaf", true},
		{"a/Outer$Mid", "a/Outer", "Mid", true},
		{"a/Outer$Other$Leaf", "a/Outer", "Other$Leaf", true},
		{"a/Outer", "", "", false},
		{"b/Outer$Mid", "", "", false},
		{"a/Outer$", "", "", false},
		{"a/Outer$$ExternalSyntheticLambda0", "", "", false},
		{"a/Outer$$B", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outer, simple, ok := index.Decompose(tt.name, has)
			if outer != tt.wantOuter || simple != tt.wantSimple || ok != tt.wantOK {
				t.Errorf("Decompose(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.name, outer, simple, ok, tt.wantOuter, tt.wantSimple, tt.wantOK)
			}
		})
	}
}
