package bindings

import "testing"

func TestRegisterParamDoesNotDisplace(t *testing.T) {
	t.Parallel()

	tbl := New()
	tbl.RegisterCaptured("Post", "v_post_id", 0)
	tbl.RegisterParam("Post", "p_post_id")

	b, ok := tbl.Lookup("Post")
	if !ok {
		t.Fatal("expected binding for Post")
	}
	if b.Kind != Captured || b.Name != "v_post_id" {
		t.Fatalf("captured binding displaced: %+v", b)
	}
}

func TestRegisterCapturedFirstWins(t *testing.T) {
	t.Parallel()

	tbl := New()
	first := tbl.RegisterCaptured("Post", "v_post_id", 0)
	second := tbl.RegisterCaptured("Post", "v_post_id_2", 2)

	if first != second {
		t.Fatalf("second registration returned a different binding: %+v vs %+v", first, second)
	}
	b, _ := tbl.Lookup("Post")
	if b.Name != "v_post_id" || b.Step != 0 {
		t.Fatalf("first binding lost: %+v", b)
	}
}

func TestEntitiesPreservesRegistrationOrder(t *testing.T) {
	t.Parallel()

	tbl := New()
	tbl.RegisterParam("User", "p_user_id")
	tbl.RegisterCaptured("Post", "v_post_id", 0)
	tbl.RegisterCaptured("Tag", "v_tag_id", 1)

	got := tbl.Entities()
	want := []string{"User", "Post", "Tag"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order mismatch at %d: got %v, want %v", i, got, want)
		}
	}
}

func TestParamBindingHasNoProducingStep(t *testing.T) {
	t.Parallel()

	tbl := New()
	tbl.RegisterParam("Post", "p_post_id")
	b, _ := tbl.Lookup("Post")
	if b.Step != -1 {
		t.Fatalf("param binding should have step -1, got %d", b.Step)
	}
	if b.Kind.String() != "param" {
		t.Fatalf("unexpected kind string %q", b.Kind.String())
	}
}
