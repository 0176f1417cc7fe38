package assemble

import (
	"github.com/specql/specql/compiler/ast"
)

// Param is one generated function parameter.
type Param struct {
	Name       string
	SQLType    string
	HasDefault bool
}

func (p Param) String() string {
	if p.HasDefault {
		return p.Name + " " + p.SQLType + " DEFAULT NULL"
	}
	return p.Name + " " + p.SQLType
}

var pgTypes = map[string]string{
	"text":      "TEXT",
	"integer":   "INTEGER",
	"boolean":   "BOOLEAN",
	"timestamp": "TIMESTAMPTZ",
	"date":      "DATE",
	"jsonb":     "JSONB",
	"uuid":      "UUID",
}

// PGType maps a SpecQL scalar name to its PostgreSQL type, defaulting to
// TEXT like the table generator does.
func PGType(specqlType string) string {
	if t, ok := pgTypes[specqlType]; ok {
		return t
	}
	return "TEXT"
}

// Params builds the function signature: the entity ID first when the action
// addresses an existing row, one parameter per entity field, and the caller
// context last.
func Params(entity *ast.Entity, action *ast.Action) []Param {
	var params []Param

	if RequiresEntityID(entity, action) {
		params = append(params, Param{Name: "p_" + entity.LowerName() + "_id", SQLType: "UUID"})
	}

	for _, f := range entity.Fields {
		if f.Type == "ref" {
			params = append(params, Param{Name: "p_" + f.Name + "_id", SQLType: "UUID", HasDefault: true})
			continue
		}
		params = append(params, Param{Name: "p_" + f.Name, SQLType: PGType(f.Type), HasDefault: true})
	}

	params = append(params, Param{Name: "p_caller_id", SQLType: "UUID", HasDefault: true})
	return params
}

// RequiresEntityID reports whether the action operates on an existing row
// of its owning entity: any update or delete step targeting it, or any
// validate guard (which checks the current row's state).
func RequiresEntityID(entity *ast.Entity, action *ast.Action) bool {
	for _, st := range action.Steps {
		switch s := st.(type) {
		case ast.UpdateStep:
			if s.Entity == entity.Name {
				return true
			}
		case ast.DeleteStep:
			if s.Entity == entity.Name {
				return true
			}
		case ast.ValidateStep:
			return true
		}
	}
	return false
}

// ParamTypes is the parameter name set handed to the step compilers for
// identifier resolution.
func ParamTypes(params []Param) map[string]string {
	m := make(map[string]string, len(params))
	for _, p := range params {
		m[p.Name] = p.SQLType
	}
	return m
}
