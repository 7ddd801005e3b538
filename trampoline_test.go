package crucible

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cruciblelabs/crucible/ir"
)

func TestBuildCallTrampoline(t *testing.T) {
	sig := &ir.Signature{Params: []ir.Type{ir.TypeI32}, Results: []ir.Type{ir.TypeI32}}
	fn := buildCallTrampoline(sig)

	require.Equal(t, &ir.Signature{Params: []ir.Type{ir.TypeI64, ir.TypeI64}}, fn.Signature)
	require.Equal(t, []ir.Operation{
		&ir.OperationLocalGet{Index: 1},
		&ir.OperationPointerLoad{Type: ir.TypeI32, Offset: 0},
		&ir.OperationLocalGet{Index: 0},
		&ir.OperationCallPointer{Sig: sig},
		&ir.OperationLocalGet{Index: 1},
		&ir.OperationSwap{Depth: 1},
		&ir.OperationPointerStore{Type: ir.TypeI32, Offset: 0},
		&ir.OperationBr{Target: &ir.BranchTarget{}},
	}, fn.Ops)
}

func TestBuildCallTrampolineMultiValue(t *testing.T) {
	sig := &ir.Signature{
		Params:  []ir.Type{ir.TypeI64, ir.TypeF64},
		Results: []ir.Type{ir.TypeI32, ir.TypeF32},
	}
	fn := buildCallTrampoline(sig)

	// Each parameter is unboxed from its own 8-byte slot.
	require.Equal(t, &ir.OperationPointerLoad{Type: ir.TypeI64, Offset: 0}, fn.Ops[1])
	require.Equal(t, &ir.OperationPointerLoad{Type: ir.TypeF64, Offset: 8}, fn.Ops[3])
	// Results are boxed back from the last down.
	require.Equal(t, &ir.OperationPointerStore{Type: ir.TypeF32, Offset: 8}, fn.Ops[8])
	require.Equal(t, &ir.OperationPointerStore{Type: ir.TypeI32, Offset: 0}, fn.Ops[11])
}

func TestBuildDynamicTrampoline(t *testing.T) {
	offsets := NewVMOffsetsForTrampolines(8)

	t.Run("no params no results", func(t *testing.T) {
		fn := buildDynamicTrampoline(offsets, &ir.Signature{})
		require.Equal(t, []ir.Type{ir.TypeI64}, fn.Signature.Params)
		require.Equal(t, []ir.Type{ir.TypeI64}, fn.Locals)
		require.Equal(t, []ir.Operation{
			// Even a nullary signature gets a buffer: the boxed callee
			// receives a valid pointer unconditionally.
			&ir.OperationStackAlloc{Size: 8},
			&ir.OperationLocalSet{Index: 1},
			&ir.OperationLocalGet{Index: 0},
			&ir.OperationLocalGet{Index: 1},
			&ir.OperationLocalGet{Index: 0},
			&ir.OperationPointerLoad{Type: ir.TypeI64, Offset: 0},
			&ir.OperationCallPointer{Sig: &ir.Signature{Params: []ir.Type{ir.TypeI64, ir.TypeI64}}},
			&ir.OperationBr{Target: &ir.BranchTarget{}},
		}, fn.Ops)
	})

	t.Run("params and result", func(t *testing.T) {
		sig := &ir.Signature{
			Params:  []ir.Type{ir.TypeI32, ir.TypeF64},
			Results: []ir.Type{ir.TypeI64},
		}
		fn := buildDynamicTrampoline(offsets, sig)

		require.Equal(t, []ir.Type{ir.TypeI64, ir.TypeI32, ir.TypeF64}, fn.Signature.Params)
		require.Equal(t, []ir.Type{ir.TypeI64}, fn.Signature.Results)

		// Buffer sized by max(params, results), params boxed into their
		// slots, the single result unboxed from slot 0.
		require.Equal(t, &ir.OperationStackAlloc{Size: 16}, fn.Ops[0])
		require.Equal(t, &ir.OperationLocalSet{Index: 3}, fn.Ops[1])
		require.Equal(t, &ir.OperationPointerStore{Type: ir.TypeI32, Offset: 0}, fn.Ops[4])
		require.Equal(t, &ir.OperationPointerStore{Type: ir.TypeF64, Offset: 8}, fn.Ops[7])
		n := len(fn.Ops)
		require.Equal(t, &ir.OperationPointerLoad{Type: ir.TypeI64, Offset: 0}, fn.Ops[n-2])
		require.Equal(t, &ir.OperationBr{Target: &ir.BranchTarget{}}, fn.Ops[n-1])
	})
}

func TestTrampolineDeterminism(t *testing.T) {
	sig := &ir.Signature{Params: []ir.Type{ir.TypeI64}, Results: []ir.Type{ir.TypeI64}}
	be := newFakeBackend()
	m, err := be.NewMachine()
	require.NoError(t, err)

	first, err := compileTrampoline(m, buildCallTrampoline(sig), "call trampoline", 0)
	require.NoError(t, err)
	second, err := compileTrampoline(m, buildCallTrampoline(sig), "call trampoline", 0)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestVMOffsets(t *testing.T) {
	offsets := NewVMOffsetsForTrampolines(8)
	require.Equal(t, uint8(8), offsets.PointerBytes)
	require.Zero(t, offsets.DynamicContextAddress())
}
