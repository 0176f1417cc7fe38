package ast

// Step is a closed sum over the five imperative step kinds. The sealed
// marker keeps the set closed so the assembler's type switch stays
// exhaustive.
type Step interface {
	// Target is the entity the step operates on, or "" when the step has
	// no entity target (validate, call without capture).
	Target() string
	sealedStep()
}

// FieldValue pairs a column name with a SpecQL value expression. An empty
// Value means "take the matching function parameter".
type FieldValue struct {
	Name  string
	Value string
}

// InsertStep inserts one row and captures the generated identifier.
type InsertStep struct {
	Entity string
	Fields []FieldValue
}

// UpdateStep updates rows selected by Where. An empty Where addresses the
// row already bound for the entity.
type UpdateStep struct {
	Entity string
	Fields []FieldValue
	Where  string
}

// DeleteStep deletes rows selected by Where, with the same Where defaulting
// as UpdateStep.
type DeleteStep struct {
	Entity string
	Where  string
}

// ValidateStep guards the action body. On failure the generated function
// short-circuits with a structured failure result.
type ValidateStep struct {
	Expr  string
	Error string
	Code  string
}

// CallStep invokes an external procedure. When Into and IntoEntity are set
// the call result is captured as the entity's ID binding.
type CallStep struct {
	Function   string
	Args       []string
	Into       string
	IntoEntity string
}

func (s InsertStep) Target() string   { return s.Entity }
func (s UpdateStep) Target() string   { return s.Entity }
func (s DeleteStep) Target() string   { return s.Entity }
func (s ValidateStep) Target() string { return "" }
func (s CallStep) Target() string     { return s.IntoEntity }

func (InsertStep) sealedStep()   {}
func (UpdateStep) sealedStep()   {}
func (DeleteStep) sealedStep()   {}
func (ValidateStep) sealedStep() {}
func (CallStep) sealedStep()     {}
