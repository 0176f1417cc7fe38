package compiler

const (
	// AST stage
	ErrCodeASTBundleDecode     = "AST_BUNDLE_DECODE_ERROR"
	ErrCodeASTEntityUnknown    = "AST_ENTITY_UNKNOWN_ERROR"
	ErrCodeASTImpactOperation  = "AST_IMPACT_OPERATION_ERROR"
	ErrCodeASTSideEffectNoStep = "AST_SIDE_EFFECT_NO_STEP_ERROR"

	// Resolve stage
	ErrCodeResolveConfigLoad     = "RESOLVE_CONFIG_LOAD_ERROR"
	ErrCodeResolveConfigValidate = "RESOLVE_CONFIG_VALIDATE_ERROR"
	ErrCodeResolveCDCNoImpact    = "RESOLVE_CDC_NO_IMPACT_ERROR"

	// Steps stage
	ErrCodeStepCompile          = "STEP_COMPILE_ERROR"
	ErrCodeStepBindingUndefined = "STEP_BINDING_UNDEFINED_ERROR"

	// Impact stage
	ErrCodeImpactCompile          = "IMPACT_COMPILE_ERROR"
	ErrCodeImpactBindingUndefined = "IMPACT_BINDING_UNDEFINED_ERROR"
	ErrCodeImpactOperationLabel   = "IMPACT_OPERATION_LABEL_ERROR"

	// Outbox stage
	ErrCodeOutboxCompile = "OUTBOX_COMPILE_ERROR"

	// Emit stage
	ErrCodeEmitTemplate = "EMIT_TEMPLATE_ERROR"
	ErrCodeEmitWrite    = "EMIT_WRITE_ERROR"

	// Apply stage
	ErrCodeApplyConnect = "APPLY_CONNECT_ERROR"
	ErrCodeApplyExec    = "APPLY_EXEC_ERROR"
)

// StableErrorCodes is the canonical registry of compiler/CLI stage error codes.
var StableErrorCodes = []string{
	ErrCodeASTBundleDecode,
	ErrCodeASTEntityUnknown,
	ErrCodeASTImpactOperation,
	ErrCodeASTSideEffectNoStep,
	ErrCodeResolveConfigLoad,
	ErrCodeResolveConfigValidate,
	ErrCodeResolveCDCNoImpact,
	ErrCodeStepCompile,
	ErrCodeStepBindingUndefined,
	ErrCodeImpactCompile,
	ErrCodeImpactBindingUndefined,
	ErrCodeImpactOperationLabel,
	ErrCodeOutboxCompile,
	ErrCodeEmitTemplate,
	ErrCodeEmitWrite,
	ErrCodeApplyConnect,
	ErrCodeApplyExec,
}
