package compiler

import (
	"errors"
	"fmt"
)

// Stage defines a formal compiler pipeline stage.
type Stage string

const (
	StageAST      Stage = "AST"
	StageResolve  Stage = "RESOLVE"
	StageSteps    Stage = "STEPS"
	StageImpact   Stage = "IMPACT"
	StageOutbox   Stage = "OUTBOX"
	StageAssemble Stage = "ASSEMBLE"
	StageEmit     Stage = "EMIT"
	StageApply    Stage = "APPLY"
)

// ContractError is a typed pipeline error with stage and stable code.
type ContractError struct {
	Stage Stage
	Code  string
	Op    string
	Err   error
}

func (e *ContractError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Op == "" {
		return fmt.Sprintf("[%s:%s] %v", e.Stage, e.Code, e.Err)
	}
	return fmt.Sprintf("[%s:%s] %s: %v", e.Stage, e.Code, e.Op, e.Err)
}

func (e *ContractError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ErrorCode extracts the stable code from anywhere in err's chain. Returns
// the empty string for errors that never passed through the pipeline.
func ErrorCode(err error) string {
	var ce *ContractError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// WrapContractError wraps err into ContractError and keeps the cause chain.
func WrapContractError(stage Stage, code, op string, err error) error {
	if err == nil {
		return nil
	}
	return &ContractError{
		Stage: stage,
		Code:  code,
		Op:    op,
		Err:   err,
	}
}
