// Package index builds the class universe of a conversion run and infers the
// nesting relation between its classes.
//
// Nesting is a property of the whole class set: an outer class record does
// not enumerate its inner classes, and an inner class may be registered
// before its outer class. The index is therefore built in full by a Builder
// and then frozen into an Index, which is what emission reads.
package index

import (
	"errors"

	"stubgen/internal/model"
)

// ErrFrozen is returned when a class is registered after the index was built.
var ErrFrozen = errors.New("index: class registered after index was built")

// Kind classifies a nested class.
type Kind int

const (
	KindTopLevel  Kind = iota
	KindMember         // Outer$Inner
	KindLocal          // Outer$1Local
	KindAnonymous      // Outer$1
)

func (k Kind) String() string {
	switch k {
	case KindMember:
		return "member"
	case KindLocal:
		return "local"
	case KindAnonymous:
		return "anonymous"
	default:
		return "top-level"
	}
}

// Nesting is the resolved nesting relation of one class.
type Nesting struct {
	Name       string // Internal name of the nested class
	Outer      string // Internal name of the enclosing class
	SimpleName string // Name as declared inside Outer ("Inner", "1Local", "1")
	Kind       Kind
}

// Builder collects class definitions during the indexing pass.
type Builder struct {
	order   []string
	classes map[string]*model.Class
	built   *Index
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{classes: make(map[string]*model.Class)}
}

// Register records a class. A class registered twice keeps its first
// definition. Registering after Build returns ErrFrozen.
func (b *Builder) Register(c model.Class) error {
	if b.built != nil {
		return ErrFrozen
	}
	if _, ok := b.classes[c.Name]; ok {
		return nil
	}
	b.order = append(b.order, c.Name)
	b.classes[c.Name] = &c
	return nil
}

// Len returns the number of registered classes.
func (b *Builder) Len() int { return len(b.order) }

// Build resolves nesting for every registered class and freezes the builder.
// The result is memoized: later calls return the same Index.
func (b *Builder) Build() *Index {
	if b.built != nil {
		return b.built
	}
	idx := &Index{
		order:   b.order,
		classes: b.classes,
		nesting: make(map[string]Nesting),
		members: make(map[string][]string),
	}
	for _, name := range b.order {
		outer, simple, ok := Decompose(name, idx.Contains)
		if !ok {
			continue
		}
		n := Nesting{Name: name, Outer: outer, SimpleName: simple, Kind: classify(simple)}
		idx.nesting[name] = n
		idx.members[outer] = append(idx.members[outer], name)
	}
	b.built = idx
	return idx
}

// Index is the frozen class universe of a run. It is safe for concurrent
// reads and is never mutated after Build.
type Index struct {
	order   []string
	classes map[string]*model.Class
	nesting map[string]Nesting
	members map[string][]string
}

// Contains reports whether a class with the given internal name was registered.
func (x *Index) Contains(name string) bool {
	_, ok := x.classes[name]
	return ok
}

// Class returns the registered definition of name.
func (x *Index) Class(name string) (*model.Class, bool) {
	c, ok := x.classes[name]
	return c, ok
}

// Names returns registered class names in registration order.
func (x *Index) Names() []string {
	return append([]string(nil), x.order...)
}

// Nesting returns the nesting relation of name. The second result is false
// for top-level classes and for classes outside the index.
func (x *Index) Nesting(name string) (Nesting, bool) {
	n, ok := x.nesting[name]
	return n, ok
}

// Members returns the classes directly nested in name, in registration order.
func (x *Index) Members(name string) []string {
	return append([]string(nil), x.members[name]...)
}

// Chain returns the nesting relations from the outermost nested ancestor of
// name down to name itself. It is empty for top-level classes.
func (x *Index) Chain(name string) []Nesting {
	var chain []Nesting
	for {
		n, ok := x.nesting[name]
		if !ok {
			break
		}
		chain = append(chain, n)
		name = n.Outer
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}
