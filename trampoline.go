package crucible

import (
	"fmt"

	"github.com/cruciblelabs/crucible/backend"
	"github.com/cruciblelabs/crucible/ir"
)

// valueSlotBytes is the size of one slot in a trampoline values buffer.
// Every value type is boxed into a full slot regardless of width.
const valueSlotBytes = 8

// VMOffsets describes the layout of the runtime's VM context structures as
// far as trampolines need it. Trampoline compilation happens before any
// instance exists, so the layout is a pure function of the pointer size.
type VMOffsets struct {
	PointerBytes uint8
}

// NewVMOffsetsForTrampolines returns the offsets for a target with the given
// pointer size.
func NewVMOffsetsForTrampolines(pointerBytes uint8) VMOffsets {
	return VMOffsets{PointerBytes: pointerBytes}
}

// DynamicContextAddress is the offset of the target code pointer within a
// dynamic function context. The pointer is the first field.
func (VMOffsets) DynamicContextAddress() uint32 { return 0 }

// buildCallTrampoline builds the IR of the call trampoline for one
// signature. The trampoline has the fixed native signature
// (calleePtr, valuesPtr): it unboxes each parameter from the values buffer,
// calls the callee with the target's native convention, and boxes the
// results back into the same buffer.
func buildCallTrampoline(sig *ir.Signature) *ir.Func {
	const (
		calleeLocal = 0
		valuesLocal = 1
	)
	fn := &ir.Func{
		Name:      fmt.Sprintf("call_trampoline%s", sig),
		Signature: &ir.Signature{Params: []ir.Type{ir.TypeI64, ir.TypeI64}},
	}

	for i, p := range sig.Params {
		fn.Emit(0, &ir.OperationLocalGet{Index: valuesLocal})
		fn.Emit(0, &ir.OperationPointerLoad{Type: p, Offset: uint32(i) * valueSlotBytes})
	}
	fn.Emit(0, &ir.OperationLocalGet{Index: calleeLocal})
	fn.Emit(0, &ir.OperationCallPointer{Sig: sig})

	// Results are on the stack in signature order; store back from the
	// last down so each store consumes the current top.
	for j := len(sig.Results) - 1; j >= 0; j-- {
		fn.Emit(0, &ir.OperationLocalGet{Index: valuesLocal})
		fn.Emit(0, &ir.OperationSwap{Depth: 1})
		fn.Emit(0, &ir.OperationPointerStore{Type: sig.Results[j], Offset: uint32(j) * valueSlotBytes})
	}
	fn.Emit(0, &ir.OperationBr{Target: &ir.BranchTarget{}})
	return fn
}

// buildDynamicTrampoline builds the IR of the dynamic trampoline for one
// imported function: a native-convention entry point that boxes its
// arguments into a stack buffer, loads the target from the dynamic context,
// and calls it with the boxed convention (ctx, valuesPtr).
func buildDynamicTrampoline(offsets VMOffsets, sig *ir.Signature) *ir.Func {
	const ctxLocal = 0
	valuesLocal := uint32(1 + len(sig.Params))

	fn := &ir.Func{
		Signature: &ir.Signature{
			Params:  append([]ir.Type{ir.TypeI64}, sig.Params...),
			Results: append([]ir.Type(nil), sig.Results...),
		},
		Locals: []ir.Type{ir.TypeI64},
	}

	slots := len(sig.Params)
	if len(sig.Results) > slots {
		slots = len(sig.Results)
	}
	if slots == 0 {
		slots = 1
	}
	fn.Emit(0, &ir.OperationStackAlloc{Size: uint32(slots) * valueSlotBytes})
	fn.Emit(0, &ir.OperationLocalSet{Index: valuesLocal})

	for i, p := range sig.Params {
		fn.Emit(0, &ir.OperationLocalGet{Index: valuesLocal})
		fn.Emit(0, &ir.OperationLocalGet{Index: uint32(1 + i)})
		fn.Emit(0, &ir.OperationPointerStore{Type: p, Offset: uint32(i) * valueSlotBytes})
	}

	fn.Emit(0, &ir.OperationLocalGet{Index: ctxLocal})
	fn.Emit(0, &ir.OperationLocalGet{Index: valuesLocal})
	fn.Emit(0, &ir.OperationLocalGet{Index: ctxLocal})
	fn.Emit(0, &ir.OperationPointerLoad{Type: ir.TypeI64, Offset: offsets.DynamicContextAddress()})
	fn.Emit(0, &ir.OperationCallPointer{Sig: &ir.Signature{Params: []ir.Type{ir.TypeI64, ir.TypeI64}}})

	for j, r := range sig.Results {
		fn.Emit(0, &ir.OperationLocalGet{Index: valuesLocal})
		fn.Emit(0, &ir.OperationPointerLoad{Type: r, Offset: uint32(j) * valueSlotBytes})
	}
	fn.Emit(0, &ir.OperationBr{Target: &ir.BranchTarget{}})
	return fn
}

// compileTrampoline runs one trampoline body through the backend. Trampoline
// code must be fully self-contained; a backend emitting relocations for one
// is broken. Frame descriptors are dropped: the shared unwind table holds
// function frames only.
func compileTrampoline(m backend.Machine, fn *ir.Func, what string, index uint32) (FunctionBody, error) {
	cc, err := m.Compile(fn)
	if err != nil {
		return FunctionBody{}, &CodegenError{What: what, Index: index, IR: fn.String(), Err: err}
	}
	m.Reset()
	if len(cc.Relocs) != 0 {
		return FunctionBody{}, &InternalConsistencyError{
			Reason: fmt.Sprintf("%s %d emitted %d relocations", what, index, len(cc.Relocs)),
		}
	}
	unwind, _, err := normalizeUnwind(cc.Unwind, false)
	if err != nil {
		return FunctionBody{}, err
	}
	return FunctionBody{Code: cc.Code, Unwind: unwind}, nil
}
