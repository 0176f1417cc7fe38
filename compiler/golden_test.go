package compiler

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/specql/specql/compiler/ast"
	"github.com/specql/specql/compiler/configres"
)

func blogBundle() *ast.Bundle {
	return &ast.Bundle{
		Entities: []ast.Entity{
			{
				Name:   "Post",
				Schema: "blog",
				Fields: []ast.Field{
					{Name: "title", Type: "text"},
					{Name: "author", Type: "ref", Ref: "User"},
				},
				Actions: []ast.Action{
					{
						Name: "create_post",
						Steps: []ast.Step{
							ast.InsertStep{Entity: "Post", Fields: []ast.FieldValue{{Name: "title"}, {Name: "author"}}},
							ast.UpdateStep{
								Entity: "User",
								Fields: []ast.FieldValue{{Name: "post_count", Value: "post_count + 1"}},
								Where:  "id = p_author_id",
							},
						},
						Impact: &ast.Impact{
							Primary: ast.EntityImpact{Entity: "Post", Operation: ast.OpCreate, Fields: []string{"title", "author"}},
							SideEffects: []ast.EntityImpact{
								{Entity: "User", Operation: ast.OpUpdate, Fields: []string{"post_count"}},
							},
							CacheInvalidations: []ast.CacheInvalidation{
								{Query: "listPosts", Strategy: "REFETCH", Reason: "new post affects listings"},
							},
						},
						CDC: &ast.CDCConfig{Enabled: true, IncludePayload: true},
					},
				},
			},
			{
				Name:   "User",
				Schema: "blog",
				Fields: []ast.Field{
					{Name: "post_count", Type: "integer"},
				},
			},
			{
				Name:   "Tag",
				Schema: "blog",
				Fields: []ast.Field{
					{Name: "name", Type: "text"},
				},
				Actions: []ast.Action{
					{
						Name: "create_tag",
						Steps: []ast.Step{
							ast.InsertStep{Entity: "Tag", Fields: []ast.FieldValue{{Name: "name"}}},
						},
					},
				},
			},
		},
	}
}

func TestCompileBundleGolden(t *testing.T) {
	t.Parallel()

	actions, err := CompileBundle(blogBundle(), Options{AppConfig: &configres.AppConfig{}})
	if err != nil {
		t.Fatalf("compile bundle: %v", err)
	}
	if len(actions) != 2 {
		t.Fatalf("got %d actions, want 2", len(actions))
	}

	g := goldie.New(t)
	for _, ca := range actions {
		g.Assert(t, ca.Entity+"_"+ca.Action, []byte(ca.SQL))
	}
}

func TestCompileBundleEventTypes(t *testing.T) {
	t.Parallel()

	actions, err := CompileBundle(blogBundle(), Options{AppConfig: &configres.AppConfig{}})
	if err != nil {
		t.Fatalf("compile bundle: %v", err)
	}
	byName := map[string]CompiledAction{}
	for _, ca := range actions {
		byName[ca.Action] = ca
	}

	if got := byName["create_post"]; !got.CDC || got.EventType != "PostCreated" {
		t.Fatalf("create_post: cdc=%v event=%q", got.CDC, got.EventType)
	}
	if got := byName["create_tag"]; got.CDC || got.EventType != "" {
		t.Fatalf("create_tag must not carry cdc: %+v", got)
	}
}
