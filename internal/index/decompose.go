package index

import "strings"

// Decompose splits a nested class name into its enclosing class and simple
// name. Split points are the '$' separators of the class's own name (after
// the last '/'), tried right to left; the first prefix for which registered
// returns true is the enclosing class, so the closest registered ancestor
// wins. With "A$B$C" and only "A" registered the result is ("A", "B$C").
//
// ok is false when no registered prefix exists or the name cannot be
// decomposed; such classes are top-level. A '$' next to another '$' never
// splits a name.
func Decompose(name string, registered func(string) bool) (outer, simple string, ok bool) {
	base := strings.LastIndexByte(name, '/') + 1
	if base >= len(name) {
		return "", "", false
	}
	for i := len(name) - 1; i > base; i-- {
		if name[i] != '$' {
			continue
		}
		if i == len(name)-1 || name[i+1] == '$' || name[i-1] == '$' {
			// An empty segment on either side, as in the "A$$Lambda"
			// names of synthetic classes, is not a split point.
			continue
		}
		if prefix := name[:i]; registered(prefix) {
			return prefix, name[i+1:], true
		}
	}
	return "", "", false
}

func classify(simple string) Kind {
	if simple == "" || simple[0] < '0' || simple[0] > '9' {
		return KindMember
	}
	if strings.TrimLeft(simple, "0123456789") == "" {
		return KindAnonymous
	}
	return KindLocal
}

// DeclaredName returns the name a local class was declared with
// ("1Local" -> "Local"). Member names are returned unchanged and anonymous
// classes return "".
func (n Nesting) DeclaredName() string {
	return strings.TrimLeft(n.SimpleName, "0123456789")
}
