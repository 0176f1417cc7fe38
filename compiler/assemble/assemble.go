// Package assemble stitches the per-stage fragments into one complete
// PL/pgSQL function. The order is a dependency graph flattened into a fixed
// sequence: declarations, trinity resolution, session prologue, steps with
// interleaved cascade construction, outbox write, result assembly, session
// clear, return.
package assemble

import (
	"fmt"
	"strings"

	"github.com/specql/specql/compiler/ast"
	"github.com/specql/specql/compiler/bindings"
	"github.com/specql/specql/compiler/impact"
	"github.com/specql/specql/compiler/outbox"
	"github.com/specql/specql/compiler/steps"
)

// Pieces is everything the assembler concatenates.
type Pieces struct {
	Params    []Param
	Steps     []steps.Fragment
	Impact    *impact.Compiled
	Outbox    *outbox.Fragment
	TrinityPK bool
	Bindings  *bindings.Table
}

const indent = "    "

// Function renders the complete CREATE OR REPLACE FUNCTION statement.
func Function(entity *ast.Entity, action *ast.Action, p Pieces) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("CREATE OR REPLACE FUNCTION %s.%s(\n", entity.Schema, action.Name))
	for i, param := range p.Params {
		b.WriteString(indent + param.String())
		if i < len(p.Params)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(fmt.Sprintf(") RETURNS %s.mutation_result AS $$\n", impact.HelperSchema))

	b.WriteString("DECLARE\n")
	b.WriteString(indent + fmt.Sprintf("v_result %s.mutation_result;\n", impact.HelperSchema))
	if p.TrinityPK {
		b.WriteString(indent + "v_pk INTEGER;\n")
	}
	for _, decl := range declarations(p) {
		b.WriteString(indent + decl + "\n")
	}

	b.WriteString("BEGIN\n")
	body := bodyLines(entity, action, p)
	for _, line := range body {
		if line == "" {
			b.WriteString("\n")
			continue
		}
		b.WriteString(indent + line + "\n")
	}
	b.WriteString("END;\n$$ LANGUAGE plpgsql;\n")
	return b.String()
}

func declarations(p Pieces) []string {
	var decls []string
	for _, frag := range p.Steps {
		decls = append(decls, frag.Declares...)
	}
	if p.Impact != nil {
		decls = append(decls, p.Impact.Declares...)
	}
	if p.Outbox != nil {
		decls = append(decls, p.Outbox.Declares...)
	}
	return decls
}

func bodyLines(entity *ast.Entity, action *ast.Action, p Pieces) []string {
	var lines []string

	if p.TrinityPK {
		lines = append(lines, fmt.Sprintf("v_pk := %s.%s_pk(p_%s_id);", entity.Schema, entity.LowerName(), entity.LowerName()), "")
	}

	if p.Impact != nil && len(p.Impact.Prologue) > 0 {
		lines = append(lines, p.Impact.Prologue...)
		lines = append(lines, "")
	}

	for i, frag := range p.Steps {
		lines = append(lines, frag.Code...)
		if p.Impact != nil {
			if post, ok := p.Impact.PostStep[i]; ok {
				lines = append(lines, post...)
			}
		}
		lines = append(lines, "")
	}

	if p.Outbox != nil {
		lines = append(lines, p.Outbox.Code...)
		lines = append(lines, "")
	}

	if p.Impact != nil {
		lines = append(lines, p.Impact.Result...)
		lines = append(lines, "")
		lines = append(lines, p.Impact.Clear...)
	} else {
		lines = append(lines, basicResult(entity, action, p.Bindings)...)
	}

	lines = append(lines, "", "RETURN v_result;")
	return lines
}

// basicResult is the legacy success response for actions without impact
// metadata. It must stay free of cascade, session and outbox code.
func basicResult(entity *ast.Entity, action *ast.Action, table *bindings.Table) []string {
	lines := []string{
		"v_result.status := 'success';",
		fmt.Sprintf("v_result.message := '%s completed';", strings.ReplaceAll(action.Name, "'", "''")),
	}
	if table != nil {
		if b, ok := table.Lookup(entity.Name); ok {
			lines = append([]string{fmt.Sprintf("v_result.id := %s;", b.Name)}, lines...)
			lines = append(lines, fmt.Sprintf("v_result.object_data := COALESCE((SELECT data FROM %s.%s WHERE id = %s), '{}'::jsonb);",
				entity.Schema, entity.ViewName(), b.Name))
			return lines
		}
	}
	lines = append(lines, "v_result.object_data := '{}'::jsonb;")
	return lines
}
