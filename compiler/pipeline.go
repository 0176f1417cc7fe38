// Package compiler orchestrates the action compilation pipeline:
// AST -> config resolution -> step compilation -> impact metadata ->
// outbox event -> function assembly. Each action compiles independently;
// the only shared state is the read-only entity registry.
package compiler

import (
	"errors"
	"fmt"

	"github.com/specql/specql/compiler/assemble"
	"github.com/specql/specql/compiler/ast"
	"github.com/specql/specql/compiler/bindings"
	"github.com/specql/specql/compiler/configres"
	"github.com/specql/specql/compiler/impact"
	"github.com/specql/specql/compiler/outbox"
	"github.com/specql/specql/compiler/steps"
)

const (
	Version       = "0.3.0"
	SchemaVersion = "1"
)

// Options configure one pipeline run.
type Options struct {
	AppConfig   *configres.AppConfig
	WarningSink func(Warning)
}

// CompiledAction is one action's emitted function plus its metadata.
type CompiledAction struct {
	Entity    string
	Action    string
	SQL       string
	EventType string
	CDC       bool
}

// CompileBundle compiles every action of every entity in the bundle.
func CompileBundle(b *ast.Bundle, opts Options) ([]CompiledAction, error) {
	reg := b.Registry()
	var out []CompiledAction
	for i := range b.Entities {
		ent := &b.Entities[i]
		for j := range ent.Actions {
			ca, err := CompileAction(ent, reg, &ent.Actions[j], opts)
			if err != nil {
				return nil, err
			}
			out = append(out, ca)
		}
	}
	return out, nil
}

// CompileAction runs the full pipeline for one action.
func CompileAction(ent *ast.Entity, reg map[string]*ast.Entity, action *ast.Action, opts Options) (CompiledAction, error) {
	cascade, cdc := resolveConfigs(action, opts.AppConfig)

	if err := semanticValidate(ent, reg, action, cascade, cdc, opts.WarningSink); err != nil {
		return CompiledAction{}, err
	}

	params := assemble.Params(ent, action)
	table := bindings.New()
	if assemble.RequiresEntityID(ent, action) {
		table.RegisterParam(ent.Name, "p_"+ent.LowerName()+"_id")
	}

	ctx := &steps.Context{
		Entity:        ent,
		Entities:      reg,
		Bindings:      table,
		Params:        assemble.ParamTypes(params),
		SessionActive: action.Impact != nil,
		SessionClear:  impact.ClearStatements(),
	}

	fragments := make([]steps.Fragment, 0, len(action.Steps))
	for i, st := range action.Steps {
		frag, err := steps.Compile(ctx, i, st)
		if err != nil {
			code := ErrCodeStepCompile
			if errors.Is(err, steps.ErrBindingUndefined) {
				code = ErrCodeStepBindingUndefined
			}
			return CompiledAction{}, WrapContractError(StageSteps, code,
				fmt.Sprintf("compile %s.%s", ent.Name, action.Name), err)
		}
		fragments = append(fragments, frag)
	}

	cdcEnabled := cdc != nil && cdc.Enabled
	imp, err := impact.Compile(impact.Input{
		Entity:     ent,
		Entities:   reg,
		Action:     action,
		Cascade:    cascade,
		Bindings:   table,
		CDCEnabled: cdcEnabled,
		Warn: func(msg string) {
			if opts.WarningSink != nil {
				opts.WarningSink(Warning{Code: WarnCodeCascadeTruncated, Entity: ent.Name, Action: action.Name, Message: msg})
			}
		},
	})
	if err != nil {
		code := ErrCodeImpactCompile
		switch {
		case errors.Is(err, impact.ErrBindingUndefined):
			code = ErrCodeImpactBindingUndefined
		case errors.Is(err, impact.ErrOperationLabel):
			code = ErrCodeImpactOperationLabel
		}
		return CompiledAction{}, WrapContractError(StageImpact, code,
			fmt.Sprintf("compile %s.%s", ent.Name, action.Name), err)
	}

	obx, err := outbox.Compile(outbox.Input{
		Entity:   ent,
		Entities: reg,
		Action:   action,
		CDC:      cdc,
		Cascade:  cascade,
		Bindings: table,
	})
	if err != nil {
		return CompiledAction{}, WrapContractError(StageOutbox, ErrCodeOutboxCompile,
			fmt.Sprintf("compile %s.%s", ent.Name, action.Name), err)
	}

	sql := assemble.Function(ent, action, assemble.Pieces{
		Params:    params,
		Steps:     fragments,
		Impact:    imp,
		Outbox:    obx,
		TrinityPK: assemble.RequiresEntityID(ent, action),
		Bindings:  table,
	})

	out := CompiledAction{
		Entity: ent.Name,
		Action: action.Name,
		SQL:    sql,
		CDC:    obx != nil,
	}
	if obx != nil {
		out.EventType, _ = outbox.EventType(cdc, action.Impact.Primary)
	}
	return out, nil
}
