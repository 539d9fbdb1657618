// Package aidl reconciles an AIDL declaration file (framework.aidl style)
// with the AIDL interfaces found while generating stubs.
//
// The declaration file is append-only: existing lines are never rewritten,
// missing declarations are added at the end.
package aidl

import "stubgen/internal/model"

// Merger tracks declared and discovered interface names for one run.
type Merger struct {
	known      map[string]bool
	discovered []string
	seen       map[string]bool
}

// NewMerger creates an empty Merger.
func NewMerger() *Merger {
	return &Merger{known: make(map[string]bool), seen: make(map[string]bool)}
}

// Load seeds the set of names already declared.
func (m *Merger) Load(names []string) {
	for _, n := range names {
		m.known[n] = true
	}
}

// Discover records a fully-qualified interface name found during the run.
func (m *Merger) Discover(name string) {
	if m.seen[name] {
		return
	}
	m.seen[name] = true
	m.discovered = append(m.discovered, name)
}

// Missing returns the discovered names that are not declared, in the order
// they were first discovered.
func (m *Merger) Missing() []string {
	var out []string
	for _, n := range m.discovered {
		if !m.known[n] {
			out = append(out, n)
		}
	}
	return out
}

// IsAidlInterface reports whether c is an AIDL interface: an interface that
// directly extends marker. An empty marker accepts every interface.
// Annotation types are never AIDL interfaces.
func IsAidlInterface(c *model.Class, marker string) bool {
	if !c.Access.IsInterface() || c.Access.IsAnnotation() {
		return false
	}
	if marker == "" {
		return true
	}
	for _, iface := range c.Interfaces {
		if iface == marker {
			return true
		}
	}
	return false
}
