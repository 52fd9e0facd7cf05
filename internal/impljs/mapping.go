// Package impljs models rustdoc implementors artifacts: the trait.impl JS
// files that register a crate→fragment-list mapping with a documentation
// page, either immediately or via a pending slot.
package impljs

import (
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Names of the process-wide registration points an artifact probes for.
// Kept identical to the names rustdoc emits so generated sites interoperate.
const (
	HookName    = "register_implementors"
	PendingSlot = "pending_implementors"
)

// Mapping is an ordered mapping from crate name to the pre-rendered HTML
// fragments describing that crate's implementations of one trait. Keys are
// unique and insertion-ordered; fragment order within a key is preserved.
// Fragments are opaque — nothing in this package parses or validates them.
type Mapping struct {
	// Trait is the qualified path of the trait the fragments implement
	// (e.g. "objc::Message"). Empty when the origin artifact is unknown.
	Trait string

	entries *orderedmap.OrderedMap[string, []string]
}

func NewMapping() *Mapping {
	return &Mapping{entries: orderedmap.New[string, []string]()}
}

// Set associates fragments with a crate name. A repeated key replaces the
// previous value but keeps its original position.
func (m *Mapping) Set(crate string, fragments []string) {
	m.entries.Set(crate, fragments)
}

// Fragments returns the fragment list for a crate.
func (m *Mapping) Fragments(crate string) ([]string, bool) {
	return m.entries.Get(crate)
}

// Crates returns the crate names in insertion order.
func (m *Mapping) Crates() []string {
	names := make([]string, 0, m.entries.Len())
	for pair := m.entries.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

func (m *Mapping) Len() int {
	return m.entries.Len()
}

// FragmentCount returns the total number of fragments across all crates.
func (m *Mapping) FragmentCount() int {
	n := 0
	for pair := m.entries.Oldest(); pair != nil; pair = pair.Next() {
		n += len(pair.Value)
	}
	return n
}

// Equal reports whether two mappings hold the same entries in the same
// order, fragments included. The Trait field does not participate.
func (m *Mapping) Equal(other *Mapping) bool {
	if m.entries.Len() != other.entries.Len() {
		return false
	}
	a, b := m.entries.Oldest(), other.entries.Oldest()
	for a != nil && b != nil {
		if a.Key != b.Key || len(a.Value) != len(b.Value) {
			return false
		}
		for i := range a.Value {
			if a.Value[i] != b.Value[i] {
				return false
			}
		}
		a, b = a.Next(), b.Next()
	}
	return a == nil && b == nil
}

func (m *Mapping) String() string {
	return fmt.Sprintf("impljs.Mapping{trait: %q, crates: %d, fragments: %d}",
		m.Trait, m.Len(), m.FragmentCount())
}
