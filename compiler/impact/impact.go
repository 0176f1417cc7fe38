// Package impact compiles ActionImpact declarations into the cascade,
// audit-bridge and result-assembly fragments of a generated function. It is
// the orchestration hub between step bindings, cascade configuration and
// the outbox compiler. When an action carries no impact the package emits
// nothing, preserving byte-identical output for legacy actions.
package impact

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/specql/specql/compiler/ast"
	"github.com/specql/specql/compiler/bindings"
)

// HelperSchema hosts the generated foundation objects: the mutation_result
// type, the cascade helper functions and the outbox table.
const HelperSchema = "app"

// Session-scoped keys bridging mutation context into row-level audit
// triggers. Transaction-local (set_config with is_local = true) and cleared
// explicitly before every return because pooled connections reuse sessions.
const (
	SessionCascadeKey       = "specql.cascade"
	SessionAffectedTypesKey = "specql.affected_types"
	SessionSourceActionKey  = "specql.source_action"
)

// ErrBindingUndefined marks a compile failure caused by an impacted entity
// with no ID binding. ErrOperationLabel marks an operation outside the
// CREATE/UPDATE/DELETE sum.
var (
	ErrBindingUndefined = errors.New("undefined entity binding")
	ErrOperationLabel   = errors.New("unmapped operation")
)

// Label maps a declared operation to its cascade label. The mapping is
// total over the operation sum; anything else is a compile error.
func Label(op ast.Operation) (string, error) {
	switch op {
	case ast.OpCreate:
		return "CREATED", nil
	case ast.OpUpdate:
		return "UPDATED", nil
	case ast.OpDelete:
		return "DELETED", nil
	}
	return "", fmt.Errorf("%w: no cascade label for %q", ErrOperationLabel, string(op))
}

// Input is everything the impact compiler consumes. Warn, when set,
// receives non-fatal diagnostics (currently max_entities truncation).
type Input struct {
	Entity     *ast.Entity
	Entities   map[string]*ast.Entity
	Action     *ast.Action
	Cascade    *ast.CascadeConfig
	Bindings   *bindings.Table
	CDCEnabled bool
	Warn       func(string)
}

// Compiled is the impact compiler's contribution, split so the assembler
// can interleave cascade construction with the steps that produce each
// entity's ID.
type Compiled struct {
	Declares []string
	// Prologue runs before the first DML statement: source-action and
	// affected-type session variables, plus cascade entries for entities
	// whose IDs are caller-supplied parameters.
	Prologue []string
	// PostStep holds cascade construction keyed by the step index that
	// captures the entity's ID.
	PostStep map[int][]string
	// Result assembles v_result; it does not emit RETURN.
	Result []string
	// Clear resets the session keys. Emitted before every return path.
	Clear []string
}

// ClearStatements are the session-variable resets shared with validate
// steps' early-return paths.
func ClearStatements() []string {
	return []string{
		fmt.Sprintf("PERFORM set_config('%s', '', true);", SessionCascadeKey),
		fmt.Sprintf("PERFORM set_config('%s', '', true);", SessionAffectedTypesKey),
		fmt.Sprintf("PERFORM set_config('%s', '', true);", SessionSourceActionKey),
	}
}

// Compile translates the action's impact declaration. Returns nil when the
// action has no impact: no declarations, no session variables, no cascade.
func Compile(in Input) (*Compiled, error) {
	imp := in.Action.Impact
	if imp == nil {
		return nil, nil
	}
	if !imp.Primary.Operation.Valid() {
		return nil, fmt.Errorf("action %s: primary impact operation %q is not one of CREATE/UPDATE/DELETE", in.Action.Name, string(imp.Primary.Operation))
	}

	out := &Compiled{
		Declares: []string{
			"v_cascade_updated JSONB := '[]'::jsonb;",
			"v_cascade_deleted JSONB := '[]'::jsonb;",
			"v_affected_count INTEGER := 0;",
		},
		PostStep: map[int][]string{},
		Clear:    ClearStatements(),
	}

	impacts := append([]ast.EntityImpact{imp.Primary}, imp.SideEffects...)

	included := make([]ast.EntityImpact, 0, len(impacts))
	for _, ei := range impacts {
		if in.Cascade.Allows(ei.Entity) {
			included = append(included, ei)
		}
	}
	if in.Cascade != nil && in.Cascade.MaxEntities > 0 && len(included) > in.Cascade.MaxEntities {
		if in.Warn != nil {
			in.Warn(fmt.Sprintf("max_entities %d drops %d of %d declared cascade entries",
				in.Cascade.MaxEntities, len(included)-in.Cascade.MaxEntities, len(included)))
		}
		included = included[:in.Cascade.MaxEntities]
	}

	out.Prologue = append(out.Prologue,
		fmt.Sprintf("PERFORM set_config('%s', %s, true);", SessionSourceActionKey, sqlString(in.Action.Name)),
		fmt.Sprintf("PERFORM set_config('%s', %s, true);", SessionAffectedTypesKey, sqlString(typeList(included))),
	)

	// Each entity gets its own one-element array local, filled in whenever
	// its ID becomes available. The visible arrays are rebuilt from those
	// locals in declaration order at every publication point, so the final
	// cascade always reads primary first, then side effects, no matter
	// which IDs were parameters and which were captured mid-action.
	entries := make([]cascadeEntry, 0, len(included))
	collections := map[string]string{}
	for _, ei := range included {
		ent, ok := lookupEntity(in, ei.Entity)
		if !ok {
			return nil, fmt.Errorf("action %s: impact references unknown entity %s", in.Action.Name, ei.Entity)
		}
		b, ok := in.Bindings.Lookup(ei.Entity)
		if !ok {
			return nil, fmt.Errorf("action %s: %w for impacted entity %s; add a step targeting it or pass its ID as a parameter", in.Action.Name, ErrBindingUndefined, ei.Entity)
		}
		label, err := Label(ei.Operation)
		if err != nil {
			return nil, fmt.Errorf("action %s: entity %s: %w", in.Action.Name, ei.Entity, err)
		}
		deleted := label == "DELETED"
		if deleted && in.Cascade != nil && !in.Cascade.IncludeDeleted {
			continue
		}
		entries = append(entries, cascadeEntry{
			ei:        ei,
			b:         b,
			deleted:   deleted,
			varName:   "v_cascade_" + strings.ToLower(ei.Entity),
			construct: entryConstruct(in.Cascade, ent, b, label),
		})
	}

	var updatedVars, deletedVars []string
	for _, e := range entries {
		if e.deleted {
			deletedVars = append(deletedVars, e.varName)
		} else {
			updatedVars = append(updatedVars, e.varName)
		}
	}
	updatedExpr := strings.Join(updatedVars, " || ")
	deletedExpr := strings.Join(deletedVars, " || ")

	for _, e := range entries {
		out.Declares = append(out.Declares, e.varName+" JSONB := '[]'::jsonb;")
	}

	for _, e := range entries {
		lines := []string{
			fmt.Sprintf("%s := jsonb_build_array(%s);", e.varName, e.construct),
			"v_affected_count := v_affected_count + 1;",
		}
		if updatedExpr != "" {
			lines = append(lines, fmt.Sprintf("v_cascade_updated := %s;", updatedExpr))
		}
		if deletedExpr != "" {
			lines = append(lines, fmt.Sprintf("v_cascade_deleted := %s;", deletedExpr))
		}
		lines = append(lines,
			fmt.Sprintf("PERFORM set_config('%s', jsonb_build_object('updated', v_cascade_updated, 'deleted', v_cascade_deleted)::text, true);", SessionCascadeKey))

		if e.ei.Collection != "" {
			varName, ok := collections[e.ei.Collection]
			if !ok {
				varName = "v_col_" + strings.ToLower(e.ei.Collection)
				collections[e.ei.Collection] = varName
			}
			lines = append(lines, fmt.Sprintf("%s := %s || %s;", varName, varName, e.varName))
		}

		if e.b.Step < 0 {
			out.Prologue = append(out.Prologue, lines...)
		} else {
			out.PostStep[e.b.Step] = append(out.PostStep[e.b.Step], lines...)
		}
	}

	for _, varName := range sortedValues(collections) {
		out.Declares = append(out.Declares, varName+" JSONB := '[]'::jsonb;")
	}

	result, err := assembleResult(in, imp, collections)
	if err != nil {
		return nil, err
	}
	out.Result = result
	return out, nil
}

// cascadeEntry is one included entity's contribution, resolved up front so
// the array concatenation order is fixed before any code is placed.
type cascadeEntry struct {
	ei        ast.EntityImpact
	b         bindings.Binding
	deleted   bool
	varName   string
	construct string
}

func entryConstruct(cfg *ast.CascadeConfig, ent *ast.Entity, b bindings.Binding, label string) string {
	if label == "DELETED" {
		// Deleted entities never carry payload data.
		return fmt.Sprintf("%s.cascade_deleted(%s, %s)", HelperSchema, sqlString(ent.Name), b.Name)
	}
	if cfg == nil || cfg.IncludeFullData {
		return fmt.Sprintf("%s.cascade_entity(%s, %s, %s, %s, %s)",
			HelperSchema, sqlString(ent.Name), b.Name, sqlString(label), sqlString(ent.Schema), sqlString(ent.ViewName()))
	}
	return fmt.Sprintf("jsonb_build_object('__typename', %s, 'id', %s, 'operation', %s)",
		sqlString(ent.Name), b.Name, sqlString(label))
}

func assembleResult(in Input, imp *ast.Impact, collections map[string]string) ([]string, error) {
	primaryEnt, ok := lookupEntity(in, imp.Primary.Entity)
	if !ok {
		return nil, fmt.Errorf("action %s: primary impact references unknown entity %s", in.Action.Name, imp.Primary.Entity)
	}
	b, ok := in.Bindings.Lookup(imp.Primary.Entity)
	if !ok {
		return nil, fmt.Errorf("action %s: %w for primary entity %s", in.Action.Name, ErrBindingUndefined, imp.Primary.Entity)
	}

	lines := []string{
		fmt.Sprintf("v_result.id := %s;", b.Name),
		fmt.Sprintf("v_result.updated_fields := %s;", textArray(imp.Primary.Fields)),
		"v_result.status := 'success';",
		fmt.Sprintf("v_result.message := %s;", sqlString(in.Action.Name+" completed")),
	}
	if imp.Primary.Operation == ast.OpDelete {
		lines = append(lines, "v_result.object_data := '{}'::jsonb;")
	} else {
		lines = append(lines, fmt.Sprintf("v_result.object_data := COALESCE((SELECT data FROM %s.%s WHERE id = %s), '{}'::jsonb);",
			primaryEnt.Schema, primaryEnt.ViewName(), b.Name))
	}

	meta := []string{
		"v_result.extra_metadata := jsonb_build_object(",
		"    'cascade', jsonb_build_object(",
		"        'updated', v_cascade_updated,",
		"        'deleted', v_cascade_deleted,",
		fmt.Sprintf("        'invalidations', %s,", invalidationsJSON(imp.CacheInvalidations)),
		"        'metadata', jsonb_build_object('timestamp', now(), 'affectedCount', v_affected_count)",
		"    ),",
		"    'meta', jsonb_build_object(",
		fmt.Sprintf("        'primary_entity', %s,", sqlString(imp.Primary.Entity)),
		fmt.Sprintf("        'actual_side_effects', %s,", sideEffectsJSON(imp.SideEffects)),
		fmt.Sprintf("        'cache_invalidations', %s", invalidationsJSON(imp.CacheInvalidations)),
		"    )",
	}
	for _, name := range sortedKeys(collections) {
		meta[len(meta)-1] += ","
		meta = append(meta, fmt.Sprintf("    %s, %s", sqlString(name), collections[name]))
	}
	if in.CDCEnabled {
		meta[len(meta)-1] += ","
		meta = append(meta, "    'eventId', v_event_id")
	}
	meta = append(meta, ");")
	return append(lines, meta...), nil
}

func invalidationsJSON(list []ast.CacheInvalidation) string {
	if len(list) == 0 {
		return "'[]'::jsonb"
	}
	parts := make([]string, 0, len(list))
	for _, ci := range list {
		parts = append(parts, fmt.Sprintf("jsonb_build_object('query', %s, 'strategy', %s, 'reason', %s)",
			sqlString(ci.Query), sqlString(defaultStrategy(ci.Strategy)), sqlString(ci.Reason)))
	}
	return "jsonb_build_array(" + strings.Join(parts, ", ") + ")"
}

func sideEffectsJSON(list []ast.EntityImpact) string {
	if len(list) == 0 {
		return "'[]'::jsonb"
	}
	parts := make([]string, 0, len(list))
	for _, ei := range list {
		parts = append(parts, fmt.Sprintf("jsonb_build_object('entity', %s, 'operation', %s, 'fields', %s)",
			sqlString(ei.Entity), sqlString(string(ei.Operation)), jsonStringArray(ei.Fields)))
	}
	return "jsonb_build_array(" + strings.Join(parts, ", ") + ")"
}

func defaultStrategy(s string) string {
	if s == "" {
		return "REFETCH"
	}
	return s
}

func jsonStringArray(items []string) string {
	if len(items) == 0 {
		return "'[]'::jsonb"
	}
	quoted := make([]string, 0, len(items))
	for _, it := range items {
		quoted = append(quoted, sqlString(it))
	}
	return "jsonb_build_array(" + strings.Join(quoted, ", ") + ")"
}

func textArray(items []string) string {
	if len(items) == 0 {
		return "ARRAY[]::TEXT[]"
	}
	quoted := make([]string, 0, len(items))
	for _, it := range items {
		quoted = append(quoted, sqlString(it))
	}
	return "ARRAY[" + strings.Join(quoted, ", ") + "]"
}

func typeList(impacts []ast.EntityImpact) string {
	seen := map[string]struct{}{}
	names := make([]string, 0, len(impacts))
	for _, ei := range impacts {
		if _, dup := seen[ei.Entity]; dup {
			continue
		}
		seen[ei.Entity] = struct{}{}
		names = append(names, ei.Entity)
	}
	return strings.Join(names, ",")
}

func lookupEntity(in Input, name string) (*ast.Entity, bool) {
	if name == in.Entity.Name {
		return in.Entity, true
	}
	ent, ok := in.Entities[name]
	return ent, ok
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedValues(m map[string]string) []string {
	vals := make([]string, 0, len(m))
	for _, k := range sortedKeys(m) {
		vals = append(vals, m[k])
	}
	return vals
}

func sqlString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
