package emitter

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRenderFoundation(t *testing.T) {
	t.Parallel()

	em := New(t.TempDir())
	sql, err := em.RenderFoundation()
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	for _, want := range []string{
		"CREATE TYPE app.mutation_result AS (",
		"CREATE OR REPLACE FUNCTION app.cascade_entity(",
		"CREATE OR REPLACE FUNCTION app.cascade_deleted(",
		"CREATE TABLE IF NOT EXISTS app.tb_outbox_event (",
		"CREATE OR REPLACE FUNCTION app.emit_event(",
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("foundation missing %q", want)
		}
	}

	// The composite type must be created before the functions returning it.
	typeIdx := strings.Index(sql, "mutation_result AS (")
	helperIdx := strings.Index(sql, "cascade_entity(")
	if typeIdx < 0 || helperIdx < 0 || typeIdx > helperIdx {
		t.Fatal("foundation objects out of dependency order")
	}
	if strings.Contains(sql, "{{") {
		t.Fatal("unrendered template markers in output")
	}
}

func TestRenderFoundationCustomSchema(t *testing.T) {
	t.Parallel()

	em := New(t.TempDir())
	em.HelperSchema = "core"
	sql, err := em.RenderFoundation()
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(sql, "core.mutation_result") {
		t.Fatal("helper schema not substituted")
	}
	if strings.Contains(sql, "app.mutation_result") {
		t.Fatal("default schema leaked into output")
	}
}

func TestWriteFunction(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	em := New(dir)
	path, err := em.WriteFunction("Post", "create_post", "SELECT 1;")
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if filepath.Base(path) != "post_create_post.sql" {
		t.Fatalf("file name %q", filepath.Base(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "SELECT 1;\n" {
		t.Fatalf("content %q", string(data))
	}
}

func TestWriteFoundation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	em := New(dir)
	path, err := em.WriteFoundation()
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if filepath.Base(path) != "00_foundation.sql" {
		t.Fatalf("file name %q", filepath.Base(path))
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatal(err)
	}
}
