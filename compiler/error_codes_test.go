package compiler

import (
	"strings"
	"testing"
)

func TestStableErrorCodesAreUniqueAndNonEmpty(t *testing.T) {
	seen := map[string]struct{}{}
	for _, code := range StableErrorCodes {
		if code == "" {
			t.Fatalf("found empty error code in registry")
		}
		if _, ok := seen[code]; ok {
			t.Fatalf("duplicate error code in registry: %s", code)
		}
		seen[code] = struct{}{}
	}
}

func TestStableErrorCodesFollowStageNaming(t *testing.T) {
	prefixes := []string{"AST_", "RESOLVE_", "STEP_", "IMPACT_", "OUTBOX_", "ASSEMBLE_", "EMIT_", "APPLY_"}
	for _, code := range StableErrorCodes {
		if !strings.HasSuffix(code, "_ERROR") {
			t.Errorf("code %s missing _ERROR suffix", code)
		}
		matched := false
		for _, p := range prefixes {
			if strings.HasPrefix(code, p) {
				matched = true
				break
			}
		}
		if !matched {
			t.Errorf("code %s has no known stage prefix", code)
		}
	}
}
