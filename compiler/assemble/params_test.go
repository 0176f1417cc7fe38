package assemble

import (
	"testing"

	"github.com/specql/specql/compiler/ast"
)

func postEntity() *ast.Entity {
	return &ast.Entity{
		Name:   "Post",
		Schema: "blog",
		Fields: []ast.Field{
			{Name: "title", Type: "text"},
			{Name: "published", Type: "boolean"},
			{Name: "author", Type: "ref", Ref: "User"},
		},
	}
}

func TestParamsCreateShape(t *testing.T) {
	t.Parallel()

	action := &ast.Action{
		Name:  "create_post",
		Steps: []ast.Step{ast.InsertStep{Entity: "Post"}},
	}
	params := Params(postEntity(), action)

	want := []Param{
		{Name: "p_title", SQLType: "TEXT", HasDefault: true},
		{Name: "p_published", SQLType: "BOOLEAN", HasDefault: true},
		{Name: "p_author_id", SQLType: "UUID", HasDefault: true},
		{Name: "p_caller_id", SQLType: "UUID", HasDefault: true},
	}
	if len(params) != len(want) {
		t.Fatalf("got %d params, want %d: %+v", len(params), len(want), params)
	}
	for i := range want {
		if params[i] != want[i] {
			t.Fatalf("param %d = %+v, want %+v", i, params[i], want[i])
		}
	}
}

func TestParamsUpdatePrependsEntityID(t *testing.T) {
	t.Parallel()

	action := &ast.Action{
		Name:  "update_post",
		Steps: []ast.Step{ast.UpdateStep{Entity: "Post"}},
	}
	params := Params(postEntity(), action)

	first := params[0]
	if first.Name != "p_post_id" || first.SQLType != "UUID" || first.HasDefault {
		t.Fatalf("first param must be the required entity ID: %+v", first)
	}
	last := params[len(params)-1]
	if last.Name != "p_caller_id" || !last.HasDefault {
		t.Fatalf("last param must be p_caller_id: %+v", last)
	}
}

func TestRequiresEntityID(t *testing.T) {
	t.Parallel()

	ent := postEntity()
	cases := []struct {
		name  string
		steps []ast.Step
		want  bool
	}{
		{"insert only", []ast.Step{ast.InsertStep{Entity: "Post"}}, false},
		{"update owning", []ast.Step{ast.UpdateStep{Entity: "Post"}}, true},
		{"update other", []ast.Step{ast.UpdateStep{Entity: "User"}}, false},
		{"delete owning", []ast.Step{ast.DeleteStep{Entity: "Post"}}, true},
		{"validate guard", []ast.Step{ast.ValidateStep{Expr: "published = FALSE"}}, true},
	}
	for _, c := range cases {
		got := RequiresEntityID(ent, &ast.Action{Name: c.name, Steps: c.steps})
		if got != c.want {
			t.Errorf("%s: got %v, want %v", c.name, got, c.want)
		}
	}
}

func TestPGTypeDefaultsToText(t *testing.T) {
	t.Parallel()

	if got := PGType("decimal"); got != "TEXT" {
		t.Fatalf("unknown scalar must default to TEXT, got %s", got)
	}
	if got := PGType("timestamp"); got != "TIMESTAMPTZ" {
		t.Fatalf("timestamp = %s", got)
	}
}

func TestParamString(t *testing.T) {
	t.Parallel()

	p := Param{Name: "p_title", SQLType: "TEXT", HasDefault: true}
	if p.String() != "p_title TEXT DEFAULT NULL" {
		t.Fatalf("got %q", p.String())
	}
	req := Param{Name: "p_post_id", SQLType: "UUID"}
	if req.String() != "p_post_id UUID" {
		t.Fatalf("got %q", req.String())
	}
}
