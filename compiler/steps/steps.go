// Package steps compiles individual action steps into PL/pgSQL fragments.
// Each compiler registers or reuses the target entity's ID binding in the
// shared symbol table; nothing here knows about cascade, audit or CDC.
package steps

import (
	"errors"
	"fmt"
	"strings"

	"github.com/specql/specql/compiler/ast"
	"github.com/specql/specql/compiler/bindings"
	"github.com/specql/specql/compiler/expr"
)

// ErrBindingUndefined marks a step that addresses an entity row with no
// established ID binding and no explicit row selection.
var ErrBindingUndefined = errors.New("undefined entity binding")

// Fragment is one step's contribution to the function body.
type Fragment struct {
	Code     []string
	Declares []string
}

// Context carries the per-action compilation state shared by all step
// compilers.
type Context struct {
	Entity   *ast.Entity
	Entities map[string]*ast.Entity
	Bindings *bindings.Table
	Params   map[string]string

	// SessionActive is set by the assembler once audit session variables
	// have been published, so early returns can clear them.
	SessionActive bool
	// SessionClear holds the clear statements to emit on early return.
	SessionClear []string
}

// Compile dispatches on the step kind. The type switch is exhaustive over
// the sealed step sum; an unknown kind is a programming error surfaced as a
// compile error rather than a panic.
func Compile(ctx *Context, idx int, st ast.Step) (Fragment, error) {
	switch s := st.(type) {
	case ast.InsertStep:
		return compileInsert(ctx, idx, s)
	case ast.UpdateStep:
		return compileUpdate(ctx, idx, s)
	case ast.DeleteStep:
		return compileDelete(ctx, idx, s)
	case ast.ValidateStep:
		return compileValidate(ctx, idx, s)
	case ast.CallStep:
		return compileCall(ctx, idx, s)
	default:
		return Fragment{}, fmt.Errorf("step %d: unknown step kind %T", idx, st)
	}
}

func compileInsert(ctx *Context, idx int, s ast.InsertStep) (Fragment, error) {
	target, err := ctx.targetEntity(idx, s.Entity)
	if err != nil {
		return Fragment{}, err
	}

	cols := make([]string, 0, len(s.Fields))
	vals := make([]string, 0, len(s.Fields))
	for _, fv := range s.Fields {
		cols = append(cols, columnName(target, fv.Name))
		v, err := ctx.compileValue(idx, target, fv, ctx.rewriteValues(ctx.Entity))
		if err != nil {
			return Fragment{}, err
		}
		vals = append(vals, v)
	}

	// The first binding for an entity wins; an insert into an already
	// bound entity captures into a step-suffixed local so the existing
	// binding keeps its row identity.
	varName := "v_" + target.LowerName() + "_id"
	if _, bound := ctx.Bindings.Lookup(target.Name); bound {
		varName = fmt.Sprintf("v_%s_id_%d", target.LowerName(), idx)
	} else {
		ctx.Bindings.RegisterCaptured(target.Name, varName, idx)
	}

	return Fragment{
		Code: []string{
			fmt.Sprintf("INSERT INTO %s.%s (%s)", target.Schema, target.TableName(), strings.Join(cols, ", ")),
			fmt.Sprintf("VALUES (%s)", strings.Join(vals, ", ")),
			fmt.Sprintf("RETURNING id INTO %s;", varName),
		},
		Declares: []string{varName + " UUID;"},
	}, nil
}

func compileUpdate(ctx *Context, idx int, s ast.UpdateStep) (Fragment, error) {
	target, err := ctx.targetEntity(idx, s.Entity)
	if err != nil {
		return Fragment{}, err
	}

	sets := make([]string, 0, len(s.Fields))
	for _, fv := range s.Fields {
		v, err := ctx.compileValue(idx, target, fv, ctx.rewriteRow(target))
		if err != nil {
			return Fragment{}, err
		}
		sets = append(sets, fmt.Sprintf("%s = %s", columnName(target, fv.Name), v))
	}

	where, err := ctx.compileRowSelection(idx, target, s.Where)
	if err != nil {
		return Fragment{}, err
	}

	return Fragment{
		Code: []string{
			fmt.Sprintf("UPDATE %s.%s", target.Schema, target.TableName()),
			fmt.Sprintf("SET %s", strings.Join(sets, ", ")),
			fmt.Sprintf("WHERE %s;", where),
		},
	}, nil
}

func compileDelete(ctx *Context, idx int, s ast.DeleteStep) (Fragment, error) {
	target, err := ctx.targetEntity(idx, s.Entity)
	if err != nil {
		return Fragment{}, err
	}

	where, err := ctx.compileRowSelection(idx, target, s.Where)
	if err != nil {
		return Fragment{}, err
	}

	frag := Fragment{
		Code: []string{
			fmt.Sprintf("DELETE FROM %s.%s", target.Schema, target.TableName()),
			fmt.Sprintf("WHERE %s;", where),
		},
	}

	// The deleted-entity cascade path needs the ID after the row is gone.
	// When the row selection did not bind the entity, capture the ID here.
	if _, bound := ctx.Bindings.Lookup(target.Name); !bound {
		varName := "v_" + target.LowerName() + "_id"
		ctx.Bindings.RegisterCaptured(target.Name, varName, idx)
		frag.Code[len(frag.Code)-1] = fmt.Sprintf("WHERE %s", where)
		frag.Code = append(frag.Code, fmt.Sprintf("RETURNING id INTO %s;", varName))
		frag.Declares = append(frag.Declares, varName+" UUID;")
	}
	return frag, nil
}

func compileValidate(ctx *Context, idx int, s ast.ValidateStep) (Fragment, error) {
	cond, err := expr.Compile(s.Expr, ctx.rewriteValues(ctx.Entity))
	if err != nil {
		return Fragment{}, fmt.Errorf("step %d: validate expression: %w", idx, err)
	}

	message := s.Error
	if message == "" {
		message = "Validation failed"
	}
	code := s.Code
	if code == "" {
		code = "validation_failed"
	}

	lines := []string{fmt.Sprintf("IF NOT (%s) THEN", cond)}
	lines = append(lines,
		"    v_result.status := 'failed:validation';",
		fmt.Sprintf("    v_result.message := %s;", sqlString(message)),
		fmt.Sprintf("    v_result.extra_metadata := jsonb_build_object('code', %s);", sqlString(code)),
	)
	if ctx.SessionActive {
		for _, clear := range ctx.SessionClear {
			lines = append(lines, "    "+clear)
		}
	}
	lines = append(lines, "    RETURN v_result;", "END IF;")
	return Fragment{Code: lines}, nil
}

func compileCall(ctx *Context, idx int, s ast.CallStep) (Fragment, error) {
	if s.Function == "" {
		return Fragment{}, fmt.Errorf("step %d: call step missing function name", idx)
	}
	args := make([]string, 0, len(s.Args))
	for _, a := range s.Args {
		v, err := expr.Compile(a, ctx.rewriteValues(ctx.Entity))
		if err != nil {
			return Fragment{}, fmt.Errorf("step %d: call argument %q: %w", idx, a, err)
		}
		args = append(args, v)
	}
	call := fmt.Sprintf("%s(%s)", s.Function, strings.Join(args, ", "))

	if s.Into == "" {
		return Fragment{Code: []string{fmt.Sprintf("PERFORM %s;", call)}}, nil
	}

	frag := Fragment{
		Code:     []string{fmt.Sprintf("%s := %s;", s.Into, call)},
		Declares: []string{s.Into + " UUID;"},
	}
	if s.IntoEntity != "" {
		ctx.Bindings.RegisterCaptured(s.IntoEntity, s.Into, idx)
	}
	return frag, nil
}

// compileRowSelection resolves the WHERE predicate for update/delete. An
// empty predicate addresses the row already bound for the entity. A
// predicate of the form "id = p_x" binds the parameter as the entity's ID.
func (ctx *Context) compileRowSelection(idx int, target *ast.Entity, where string) (string, error) {
	if strings.TrimSpace(where) == "" {
		b, ok := ctx.Bindings.Lookup(target.Name)
		if !ok {
			return "", fmt.Errorf("step %d: %w for entity %s and no row selection given", idx, ErrBindingUndefined, target.Name)
		}
		return "id = " + b.Name, nil
	}

	compiled, err := expr.Compile(where, ctx.rewriteRow(target))
	if err != nil {
		return "", fmt.Errorf("step %d: where predicate: %w", idx, err)
	}

	// "id = <param>" identifies the row via a function input, so the
	// parameter itself becomes the entity's binding.
	if param, ok := paramEquality(compiled); ok {
		if _, exists := ctx.Params[param]; exists {
			ctx.Bindings.RegisterParam(target.Name, param)
		}
	}
	return compiled, nil
}

func paramEquality(compiled string) (string, bool) {
	parts := strings.SplitN(compiled, " = ", 2)
	if len(parts) != 2 {
		return "", false
	}
	if strings.TrimSpace(parts[0]) != "id" {
		return "", false
	}
	rhs := strings.TrimSpace(parts[1])
	if strings.HasPrefix(rhs, "p_") && !strings.ContainsAny(rhs, " ()'") {
		return rhs, true
	}
	return "", false
}

func (ctx *Context) compileValue(idx int, target *ast.Entity, fv ast.FieldValue, rewrite expr.Rewrite) (string, error) {
	if strings.TrimSpace(fv.Value) == "" {
		// Default: take the matching function parameter.
		name, ok := ctx.paramFor(target, fv.Name)
		if !ok {
			return "", fmt.Errorf("step %d: no parameter carries a value for %s.%s", idx, target.Name, fv.Name)
		}
		return name, nil
	}
	v, err := expr.Compile(fv.Value, rewrite)
	if err != nil {
		return "", fmt.Errorf("step %d: value for %s.%s: %w", idx, target.Name, fv.Name, err)
	}
	return v, nil
}

// rewriteValues maps identifiers in input-position expressions (insert
// values, validate guards, call arguments): entity field names resolve to
// the matching function parameter.
func (ctx *Context) rewriteValues(target *ast.Entity) expr.Rewrite {
	return func(ident string) (string, bool) {
		if mapped, ok := ctx.rewriteCommon(ident); ok {
			return mapped, true
		}
		if _, ok := target.FieldByName(ident); ok {
			return ctx.paramFor(target, ident)
		}
		return "", false
	}
}

// rewriteRow maps identifiers in row-position expressions (update SET
// values, where predicates): entity field names resolve to their storage
// column so self-references like "post_count + 1" work.
func (ctx *Context) rewriteRow(target *ast.Entity) expr.Rewrite {
	return func(ident string) (string, bool) {
		if ident == "id" {
			return "id", true
		}
		if mapped, ok := ctx.rewriteCommon(ident); ok {
			return mapped, true
		}
		if _, ok := target.FieldByName(ident); ok {
			return columnName(target, ident), true
		}
		return "", false
	}
}

func (ctx *Context) rewriteCommon(ident string) (string, bool) {
	if strings.HasPrefix(ident, "p_") {
		_, ok := ctx.Params[ident]
		return ident, ok
	}
	if strings.HasPrefix(ident, "v_") {
		return ident, true
	}
	switch ident {
	case "auth_user_id", "auth_tenant_id":
		return ident, true
	}
	return "", false
}

// paramFor resolves the function parameter carrying a field's input value.
// Reference fields arrive as p_{field}_id per the trinity convention.
func (ctx *Context) paramFor(target *ast.Entity, field string) (string, bool) {
	if f, ok := target.FieldByName(field); ok && f.Type == "ref" {
		name := "p_" + field + "_id"
		_, exists := ctx.Params[name]
		return name, exists
	}
	name := "p_" + field
	_, exists := ctx.Params[name]
	return name, exists
}

// columnName maps a field name to its storage column. References use the
// trinity convention fk_{field}.
func columnName(target *ast.Entity, field string) string {
	if f, ok := target.FieldByName(field); ok && f.Type == "ref" {
		return "fk_" + field
	}
	return field
}

func (ctx *Context) targetEntity(idx int, name string) (*ast.Entity, error) {
	if name == "" {
		return nil, fmt.Errorf("step %d: missing target entity", idx)
	}
	if name == ctx.Entity.Name {
		return ctx.Entity, nil
	}
	ent, ok := ctx.Entities[name]
	if !ok {
		return nil, fmt.Errorf("step %d: unknown entity %s", idx, name)
	}
	return ent, nil
}

func sqlString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
