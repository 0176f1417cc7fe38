package outbox

import (
	"strings"
	"testing"

	"github.com/specql/specql/compiler/ast"
	"github.com/specql/specql/compiler/bindings"
)

func orderInput(action *ast.Action, cdc *ast.CDCConfig) Input {
	order := &ast.Entity{Name: "Order", Schema: "shop"}
	return Input{
		Entity:   order,
		Entities: map[string]*ast.Entity{"Order": order},
		Action:   action,
		CDC:      cdc,
		Bindings: bindings.New(),
	}
}

func createOrderAction() *ast.Action {
	return &ast.Action{
		Name: "create_order",
		Impact: &ast.Impact{
			Primary: ast.EntityImpact{Entity: "Order", Operation: ast.OpCreate},
			SideEffects: []ast.EntityImpact{
				{Entity: "Inventory", Operation: ast.OpUpdate},
			},
		},
	}
}

func TestEventTypeInference(t *testing.T) {
	t.Parallel()

	cases := []struct {
		op   ast.Operation
		want string
	}{
		{ast.OpCreate, "OrderCreated"},
		{ast.OpUpdate, "OrderUpdated"},
		{ast.OpDelete, "OrderDeleted"},
	}
	for _, c := range cases {
		got, err := EventType(&ast.CDCConfig{Enabled: true}, ast.EntityImpact{Entity: "Order", Operation: c.op})
		if err != nil {
			t.Fatalf("EventType(%s): %v", c.op, err)
		}
		if got != c.want {
			t.Fatalf("EventType(%s) = %q, want %q", c.op, got, c.want)
		}
	}
}

func TestEventTypeExplicitWins(t *testing.T) {
	t.Parallel()

	got, err := EventType(
		&ast.CDCConfig{Enabled: true, EventType: "OrderPlaced"},
		ast.EntityImpact{Entity: "Order", Operation: ast.OpCreate},
	)
	if err != nil {
		t.Fatal(err)
	}
	if got != "OrderPlaced" {
		t.Fatalf("got %q", got)
	}
}

func TestCompileDisabledEmitsNothing(t *testing.T) {
	t.Parallel()

	in := orderInput(createOrderAction(), nil)
	frag, err := Compile(in)
	if err != nil || frag != nil {
		t.Fatalf("nil cdc: frag=%+v err=%v", frag, err)
	}

	in = orderInput(createOrderAction(), &ast.CDCConfig{Enabled: false})
	frag, err = Compile(in)
	if err != nil || frag != nil {
		t.Fatalf("disabled cdc: frag=%+v err=%v", frag, err)
	}
}

func TestCompileRequiresImpact(t *testing.T) {
	t.Parallel()

	in := orderInput(&ast.Action{Name: "legacy"}, &ast.CDCConfig{Enabled: true})
	if _, err := Compile(in); err == nil {
		t.Fatal("cdc without impact must fail")
	}
}

func TestCompileEmitEvent(t *testing.T) {
	t.Parallel()

	in := orderInput(createOrderAction(), &ast.CDCConfig{Enabled: true, IncludePayload: true})
	in.Bindings.RegisterCaptured("Order", "v_order_id", 0)

	frag, err := Compile(in)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	if len(frag.Declares) != 1 || frag.Declares[0] != "v_event_id UUID;" {
		t.Fatalf("declares: %v", frag.Declares)
	}

	code := strings.Join(frag.Code, "\n")
	if !strings.Contains(code, "v_event_id := app.emit_event(") {
		t.Fatalf("missing emit call:\n%s", code)
	}
	if !strings.Contains(code, "p_aggregate_type => 'Order'") {
		t.Fatalf("aggregate type:\n%s", code)
	}
	if !strings.Contains(code, "p_aggregate_id   => v_order_id") {
		t.Fatalf("aggregate id:\n%s", code)
	}
	if !strings.Contains(code, "p_event_type     => 'OrderCreated'") {
		t.Fatalf("event type:\n%s", code)
	}
	if !strings.Contains(code, "COALESCE((SELECT data FROM shop.tv_order WHERE id = v_order_id), '{}'::jsonb)") {
		t.Fatalf("payload must read the view:\n%s", code)
	}
	if !strings.Contains(code, "'affected_types', jsonb_build_array('Order', 'Inventory')") {
		t.Fatalf("affected types:\n%s", code)
	}
	if strings.Contains(code, "'cascade'") {
		t.Fatalf("cascade must be absent when include_cascade is off:\n%s", code)
	}
}

func TestCompilePayloadOff(t *testing.T) {
	t.Parallel()

	in := orderInput(createOrderAction(), &ast.CDCConfig{Enabled: true, IncludeCascade: true})
	in.Bindings.RegisterCaptured("Order", "v_order_id", 0)

	frag, err := Compile(in)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	code := strings.Join(frag.Code, "\n")
	if !strings.Contains(code, "p_payload        => '{}'::jsonb") {
		t.Fatalf("payload must be empty:\n%s", code)
	}
	if !strings.Contains(code, "'cascade', jsonb_build_object('updated', v_cascade_updated, 'deleted', v_cascade_deleted)") {
		t.Fatalf("cascade metadata missing:\n%s", code)
	}
}

func TestCompileMissingAggregateBinding(t *testing.T) {
	t.Parallel()

	in := orderInput(createOrderAction(), &ast.CDCConfig{Enabled: true})
	if _, err := Compile(in); err == nil {
		t.Fatal("missing aggregate binding must fail")
	}
}
