package expr

import (
	"strings"
	"testing"
)

func passthrough(ident string) (string, bool) {
	if strings.HasPrefix(ident, "p_") || strings.HasPrefix(ident, "v_") {
		return ident, true
	}
	return "", false
}

func TestCompileComparison(t *testing.T) {
	t.Parallel()

	got, err := Compile("p_amount > 0", passthrough)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if got != "p_amount > 0" {
		t.Fatalf("got %q", got)
	}
}

func TestCompileRewritesIdentifiers(t *testing.T) {
	t.Parallel()

	rewrite := func(ident string) (string, bool) {
		if ident == "status" {
			return "status", true
		}
		return passthrough(ident)
	}
	got, err := Compile("status = 'draft' AND p_caller_id IS NOT NULL", rewrite)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	want := "status = 'draft' AND p_caller_id IS NOT NULL"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestCompileUnknownIdentifier(t *testing.T) {
	t.Parallel()

	if _, err := Compile("bogus = 1", passthrough); err == nil {
		t.Fatal("expected error for unknown identifier")
	}
}

func TestCompilePrecedence(t *testing.T) {
	t.Parallel()

	got, err := Compile("p_a = 1 OR p_b = 2 AND p_c = 3", passthrough)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	// OR must split first: it binds loosest.
	if !strings.Contains(got, "p_a = 1 OR") {
		t.Fatalf("OR not at top level: %q", got)
	}
}

func TestCompileGroupsPreserved(t *testing.T) {
	t.Parallel()

	got, err := Compile("(p_a + p_b) * 2", passthrough)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if got != "(p_a + p_b) * 2" {
		t.Fatalf("got %q", got)
	}
}

func TestCompileAllowedFunction(t *testing.T) {
	t.Parallel()

	got, err := Compile("LENGTH(TRIM(p_title)) > 0", passthrough)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if got != "LENGTH(TRIM(p_title)) > 0" {
		t.Fatalf("got %q", got)
	}
}

func TestCompileRejectsUnknownFunction(t *testing.T) {
	t.Parallel()

	if _, err := Compile("PG_SLEEP(10)", passthrough); err == nil {
		t.Fatal("expected disallowed function to be rejected")
	}
}

func TestCompileRejectsInjection(t *testing.T) {
	t.Parallel()

	cases := []string{
		"p_x = 1; -- comment",
		"p_x = 1; DROP TABLE tb_post",
		"p_x = 1 UNION SELECT * FROM secrets",
		"p_x = 1; DELETE FROM tb_post",
	}
	for _, c := range cases {
		if _, err := Compile(c, passthrough); err == nil {
			t.Errorf("expression %q should be rejected", c)
		}
	}
}

func TestCompileNot(t *testing.T) {
	t.Parallel()

	got, err := Compile("NOT p_archived", passthrough)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if got != "NOT p_archived" {
		t.Fatalf("got %q", got)
	}
}

func TestCompileQuotedOperatorIgnored(t *testing.T) {
	t.Parallel()

	got, err := Compile("p_status = 'a AND b'", passthrough)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if got != "p_status = 'a AND b'" {
		t.Fatalf("operator inside quotes split: %q", got)
	}
}

func TestCompileEmpty(t *testing.T) {
	t.Parallel()

	if _, err := Compile("  ", passthrough); err == nil {
		t.Fatal("expected error for empty expression")
	}
}
