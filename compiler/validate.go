package compiler

import (
	"fmt"

	"github.com/specql/specql/compiler/assemble"
	"github.com/specql/specql/compiler/ast"
	"github.com/specql/specql/compiler/configres"
)

// Warning is a non-fatal diagnostic surfaced through the pipeline sink.
type Warning struct {
	Code    string
	Message string
	Entity  string
	Action  string
}

const (
	WarnCodeFilterUnknownEntity = "FILTER_UNKNOWN_ENTITY"
	WarnCodeCascadeTruncated    = "CASCADE_TRUNCATED"
)

// semanticValidate runs the compile-time configuration checks that must
// fail before any code is generated. Errors carry action/entity/step
// context so the bundle author can locate the problem.
func semanticValidate(ent *ast.Entity, reg map[string]*ast.Entity, action *ast.Action, cascade *ast.CascadeConfig, cdc *ast.CDCConfig, warn func(Warning)) error {
	if imp := action.Impact; imp != nil {
		if !imp.Primary.Operation.Valid() {
			return WrapContractError(StageAST, ErrCodeASTImpactOperation, "validate "+action.Name,
				fmt.Errorf("primary impact on %s has operation %q, want CREATE/UPDATE/DELETE", imp.Primary.Entity, string(imp.Primary.Operation)))
		}
		for i, se := range imp.SideEffects {
			if !se.Operation.Valid() {
				return WrapContractError(StageAST, ErrCodeASTImpactOperation, "validate "+action.Name,
					fmt.Errorf("side effect %d on %s has operation %q, want CREATE/UPDATE/DELETE", i, se.Entity, string(se.Operation)))
			}
			if !hasStepFor(action, se.Entity) && !paramBound(ent, action, se.Entity) {
				return WrapContractError(StageAST, ErrCodeASTSideEffectNoStep, "validate "+action.Name,
					fmt.Errorf("side effect %d declares entity %s but no step targets it", i, se.Entity))
			}
		}
	}

	if cdc != nil && cdc.Enabled && action.Impact == nil {
		return WrapContractError(StageResolve, ErrCodeResolveCDCNoImpact, "validate "+action.Name,
			fmt.Errorf("cdc.enabled requires impact metadata"))
	}

	if cascade != nil && warn != nil {
		for _, name := range cascade.IncludeEntities {
			if !knownEntity(ent, reg, name) {
				warn(Warning{Code: WarnCodeFilterUnknownEntity, Entity: ent.Name, Action: action.Name,
					Message: fmt.Sprintf("include_entities names unknown entity %s", name)})
			}
		}
		for _, name := range cascade.ExcludeEntities {
			if !knownEntity(ent, reg, name) {
				warn(Warning{Code: WarnCodeFilterUnknownEntity, Entity: ent.Name, Action: action.Name,
					Message: fmt.Sprintf("exclude_entities names unknown entity %s", name)})
			}
		}
	}
	return nil
}

func hasStepFor(action *ast.Action, entity string) bool {
	for _, st := range action.Steps {
		if st.Target() == entity {
			return true
		}
	}
	return false
}

// paramBound reports whether the entity's ID arrives as a function
// parameter: only the owning entity qualifies, and only when the signature
// carries p_{entity}_id.
func paramBound(ent *ast.Entity, action *ast.Action, entity string) bool {
	return entity == ent.Name && assemble.RequiresEntityID(ent, action)
}

func knownEntity(ent *ast.Entity, reg map[string]*ast.Entity, name string) bool {
	if name == ent.Name {
		return true
	}
	_, ok := reg[name]
	return ok
}

// resolveConfigs is a thin wrapper so pipeline call sites read as one step.
func resolveConfigs(action *ast.Action, app *configres.AppConfig) (*ast.CascadeConfig, *ast.CDCConfig) {
	return configres.ResolveCascade(action, app), configres.ResolveCDC(action, app)
}
