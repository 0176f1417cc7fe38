// Package outbox compiles the transactional-outbox event write for actions
// with CDC enabled. One event per mutation, written with a plain INSERT in
// the same transaction as the business DML so the event and the change
// commit or roll back together.
package outbox

import (
	"fmt"
	"strings"

	"github.com/specql/specql/compiler/ast"
	"github.com/specql/specql/compiler/bindings"
	"github.com/specql/specql/compiler/impact"
)

// Fragment is the outbox compiler's contribution to the function body.
type Fragment struct {
	Declares []string
	Code     []string
}

// Input mirrors the impact compiler's inputs plus the resolved CDC config.
type Input struct {
	Entity   *ast.Entity
	Entities map[string]*ast.Entity
	Action   *ast.Action
	CDC      *ast.CDCConfig
	Cascade  *ast.CascadeConfig
	Bindings *bindings.Table
}

// EventType returns the explicit event type or infers
// {Entity}{Created|Updated|Deleted} from the primary impact.
func EventType(cdc *ast.CDCConfig, primary ast.EntityImpact) (string, error) {
	if cdc.EventType != "" {
		return cdc.EventType, nil
	}
	label, err := impact.Label(primary.Operation)
	if err != nil {
		return "", err
	}
	// CREATED -> Created
	suffix := strings.ToUpper(label[:1]) + strings.ToLower(label[1:])
	return primary.Entity + suffix, nil
}

// Compile emits the event-write call. CDC without impact metadata is a
// configuration error: there is no aggregate to describe.
func Compile(in Input) (*Fragment, error) {
	if in.CDC == nil || !in.CDC.Enabled {
		return nil, nil
	}
	if in.Action.Impact == nil {
		return nil, fmt.Errorf("action %s: cdc.enabled requires impact metadata", in.Action.Name)
	}

	primary := in.Action.Impact.Primary
	ent, ok := lookupEntity(in, primary.Entity)
	if !ok {
		return nil, fmt.Errorf("action %s: cdc aggregate references unknown entity %s", in.Action.Name, primary.Entity)
	}
	b, ok := in.Bindings.Lookup(primary.Entity)
	if !ok {
		return nil, fmt.Errorf("action %s: no ID binding for cdc aggregate %s", in.Action.Name, primary.Entity)
	}

	eventType, err := EventType(in.CDC, primary)
	if err != nil {
		return nil, fmt.Errorf("action %s: %w", in.Action.Name, err)
	}

	payload := "'{}'::jsonb"
	if in.CDC.IncludePayload {
		payload = fmt.Sprintf("COALESCE((SELECT data FROM %s.%s WHERE id = %s), '{}'::jsonb)", ent.Schema, ent.ViewName(), b.Name)
	}

	metaParts := []string{
		fmt.Sprintf("'action', %s", sqlString(in.Action.Name)),
		fmt.Sprintf("'affected_types', %s", affectedTypes(in.Action.Impact)),
	}
	if in.CDC.IncludeCascade {
		metaParts = append(metaParts, "'cascade', jsonb_build_object('updated', v_cascade_updated, 'deleted', v_cascade_deleted)")
	}

	return &Fragment{
		Declares: []string{"v_event_id UUID;"},
		Code: []string{
			fmt.Sprintf("v_event_id := %s.emit_event(", impact.HelperSchema),
			fmt.Sprintf("    p_aggregate_type => %s,", sqlString(primary.Entity)),
			fmt.Sprintf("    p_aggregate_id   => %s,", b.Name),
			fmt.Sprintf("    p_event_type     => %s,", sqlString(eventType)),
			fmt.Sprintf("    p_payload        => %s,", payload),
			fmt.Sprintf("    p_metadata       => jsonb_build_object(%s)", strings.Join(metaParts, ", ")),
			");",
		},
	}, nil
}

func affectedTypes(imp *ast.Impact) string {
	seen := map[string]struct{}{imp.Primary.Entity: {}}
	parts := []string{sqlString(imp.Primary.Entity)}
	for _, se := range imp.SideEffects {
		if _, dup := seen[se.Entity]; dup {
			continue
		}
		seen[se.Entity] = struct{}{}
		parts = append(parts, sqlString(se.Entity))
	}
	return "jsonb_build_array(" + strings.Join(parts, ", ") + ")"
}

func lookupEntity(in Input, name string) (*ast.Entity, bool) {
	if name == in.Entity.Name {
		return in.Entity, true
	}
	ent, ok := in.Entities[name]
	return ent, ok
}

func sqlString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
