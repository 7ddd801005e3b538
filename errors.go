package crucible

import (
	"fmt"

	"github.com/cruciblelabs/crucible/wasm"
)

// TranslationError reports a function body the frontend could not lower:
// malformed bytecode, or a well-formed instruction outside the supported
// surface. It carries the local function index of the failing body.
type TranslationError struct {
	Index wasm.LocalFunctionIndex
	Err   error
}

func (e *TranslationError) Error() string {
	return fmt.Sprintf("translate function %d: %v", e.Index, e.Err)
}

func (e *TranslationError) Unwrap() error { return e.Err }

// CodegenError reports a body the backend rejected. IR holds the
// pretty-printed operation list so the diagnostic is actionable without
// re-running the pipeline.
type CodegenError struct {
	// What names the kind of body: "function", "call trampoline" or
	// "dynamic trampoline".
	What string
	// Index is a local function index, signature index or import index
	// depending on What.
	Index uint32
	IR    string
	Err   error
}

func (e *CodegenError) Error() string {
	if e.IR == "" {
		return fmt.Sprintf("compile %s %d: %v", e.What, e.Index, e.Err)
	}
	return fmt.Sprintf("compile %s %d: %v\n%s", e.What, e.Index, e.Err, e.IR)
}

func (e *CodegenError) Unwrap() error { return e.Err }

// InternalConsistencyError reports backend output that violates the contract
// between backend and normalizer: a relocation against an import or an
// unknown symbol, or a trap code with no portable equivalent. These are bugs
// in a backend, not user errors.
type InternalConsistencyError struct {
	Reason string
}

func (e *InternalConsistencyError) Error() string {
	return "internal consistency: " + e.Reason
}
