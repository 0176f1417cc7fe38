// Package bindings is the per-action symbol table. Step compilers register
// the identifier variable for each entity they touch; the impact and outbox
// compilers consume the bindings through lookup rather than reconstructing
// variable names by convention.
package bindings

import "fmt"

// Kind distinguishes identifiers supplied by the caller from identifiers
// captured during execution.
type Kind int

const (
	// Param is a function parameter holding an existing row's identifier.
	Param Kind = iota
	// Captured is a local variable filled by a RETURNING clause or a call
	// result during execution.
	Captured
)

func (k Kind) String() string {
	switch k {
	case Param:
		return "param"
	case Captured:
		return "captured"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Binding is one entity's identifier variable within a compiled function.
type Binding struct {
	Entity string
	Kind   Kind
	Name   string
	// Step is the index of the step that fills the variable, or -1 for
	// parameters available on entry.
	Step int
}

// Table maps entity names to bindings, preserving registration order.
type Table struct {
	order    []string
	byEntity map[string]Binding
}

func New() *Table {
	return &Table{byEntity: map[string]Binding{}}
}

// RegisterParam records a caller-supplied identifier for entity. Parameters
// are registered before any step compiles, so they never displace an
// existing binding.
func (t *Table) RegisterParam(entity, name string) {
	if _, ok := t.byEntity[entity]; ok {
		return
	}
	t.put(Binding{Entity: entity, Kind: Param, Name: name, Step: -1})
}

// RegisterCaptured records a variable captured by step. The first binding
// for an entity wins; later steps reuse it.
func (t *Table) RegisterCaptured(entity, name string, step int) Binding {
	if b, ok := t.byEntity[entity]; ok {
		return b
	}
	b := Binding{Entity: entity, Kind: Captured, Name: name, Step: step}
	t.put(b)
	return b
}

// Lookup returns the binding for entity.
func (t *Table) Lookup(entity string) (Binding, bool) {
	b, ok := t.byEntity[entity]
	return b, ok
}

// Entities returns entity names in registration order.
func (t *Table) Entities() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

func (t *Table) put(b Binding) {
	t.order = append(t.order, b.Entity)
	t.byEntity[b.Entity] = b
}
