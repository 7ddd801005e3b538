package amd64

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cruciblelabs/crucible/backend"
	"github.com/cruciblelabs/crucible/ir"
)

func newTestMachine(t *testing.T, cc backend.CallConv) backend.Machine {
	t.Helper()
	m, err := NewBackend(cc).NewMachine()
	require.NoError(t, err)
	return m
}

func constAddFunc() *ir.Func {
	fn := &ir.Func{
		Name:      "u0:0",
		Signature: &ir.Signature{Results: []ir.Type{ir.TypeI32}},
	}
	fn.Emit(1, &ir.OperationConstI32{Value: 1})
	fn.Emit(3, &ir.OperationConstI32{Value: 2})
	fn.Emit(5, &ir.OperationAdd{Type: ir.UnsignedTypeI32})
	fn.Emit(6, &ir.OperationBr{Target: &ir.BranchTarget{}})
	return fn
}

func TestCompileConstAdd(t *testing.T) {
	m := newTestMachine(t, backend.CallConvSystemV)
	out, err := m.Compile(constAddFunc())
	require.NoError(t, err)

	require.NotEmpty(t, out.Code)
	// Frame prologue starts with push rbp.
	require.Equal(t, byte(0x55), out.Code[0])
	require.Empty(t, out.Relocs)
	require.Empty(t, out.Traps)

	require.Len(t, out.SourceLocs, 4)
	require.Equal(t, uint32(1), out.SourceLocs[0].SrcOffset)
	require.Equal(t, uint32(6), out.SourceLocs[3].SrcOffset)
	for i := 1; i < len(out.SourceLocs); i++ {
		require.GreaterOrEqual(t, out.SourceLocs[i].CodeOffset, out.SourceLocs[i-1].CodeOffset)
	}

	fde, ok := out.Unwind.(*backend.UnwindFDE)
	require.True(t, ok)
	require.Equal(t, uint32(len(out.Code)), fde.CodeLen)
	require.NotEmpty(t, fde.Ops)
	for _, op := range fde.Ops {
		require.Less(t, op.CodeOffset, fde.CodeLen)
	}
}

func TestCompileDeterministic(t *testing.T) {
	fn := constAddFunc()
	first, err := newTestMachine(t, backend.CallConvSystemV).Compile(fn)
	require.NoError(t, err)
	second, err := newTestMachine(t, backend.CallConvSystemV).Compile(fn)
	require.NoError(t, err)
	require.Equal(t, first.Code, second.Code)
	require.Equal(t, first.Relocs, second.Relocs)
	require.Equal(t, first.Unwind, second.Unwind)
}

func TestCompileDirectCallReloc(t *testing.T) {
	callee := &ir.Signature{Params: []ir.Type{ir.TypeI64}, Results: []ir.Type{ir.TypeI64}}
	fn := &ir.Func{Name: "u0:1", Signature: &ir.Signature{}}
	fn.Emit(1, &ir.OperationConstI64{Value: 5})
	fn.Emit(3, &ir.OperationCall{FunctionIndex: 7, Sig: callee})
	fn.Emit(8, &ir.OperationDrop{})
	fn.Emit(9, &ir.OperationBr{Target: &ir.BranchTarget{}})

	out, err := newTestMachine(t, backend.CallConvSystemV).Compile(fn)
	require.NoError(t, err)

	require.Len(t, out.Relocs, 1)
	rel := out.Relocs[0]
	require.Equal(t, backend.RelocAbs8, rel.Kind)
	require.Equal(t, backend.NameKindUserFunc, rel.Name.Kind)
	require.Equal(t, uint32(7), rel.Name.FuncIndex)
	require.Zero(t, rel.Addend)

	// The patch site holds the placeholder that forced the 10-byte
	// mov-imm64 encoding.
	require.LessOrEqual(t, int(rel.Offset)+8, len(out.Code))
	imm := binary.LittleEndian.Uint64(out.Code[rel.Offset:])
	require.Equal(t, uint64(relocPlaceholder), imm)
}

func TestCompileLibCallReloc(t *testing.T) {
	fn := &ir.Func{Name: "u0:2", Signature: &ir.Signature{
		Params:  []ir.Type{ir.TypeF64},
		Results: []ir.Type{ir.TypeF64},
	}}
	fn.Emit(1, &ir.OperationLocalGet{Index: 0})
	fn.Emit(3, &ir.OperationCeil{Type: ir.Float64})
	fn.Emit(4, &ir.OperationBr{Target: &ir.BranchTarget{}})

	out, err := newTestMachine(t, backend.CallConvSystemV).Compile(fn)
	require.NoError(t, err)
	require.Len(t, out.Relocs, 1)
	require.Equal(t, backend.NameKindLibCall, out.Relocs[0].Name.Kind)
	require.Equal(t, backend.LibCallCeilF64, out.Relocs[0].Name.LibCall)
}

func TestCompileTraps(t *testing.T) {
	t.Run("unreachable", func(t *testing.T) {
		fn := &ir.Func{Name: "u0:3", Signature: &ir.Signature{}}
		fn.Emit(1, &ir.OperationUnreachable{})
		fn.Emit(2, &ir.OperationBr{Target: &ir.BranchTarget{}})

		out, err := newTestMachine(t, backend.CallConvSystemV).Compile(fn)
		require.NoError(t, err)
		require.Len(t, out.Traps, 1)
		require.Equal(t, backend.TrapUnreachable, out.Traps[0].Code)
		require.Less(t, int(out.Traps[0].Offset), len(out.Code))
	})
	t.Run("division", func(t *testing.T) {
		fn := &ir.Func{Name: "u0:4", Signature: &ir.Signature{
			Params:  []ir.Type{ir.TypeI32, ir.TypeI32},
			Results: []ir.Type{ir.TypeI32},
		}}
		fn.Emit(1, &ir.OperationLocalGet{Index: 0})
		fn.Emit(3, &ir.OperationLocalGet{Index: 1})
		fn.Emit(5, &ir.OperationDiv{Type: ir.SignedTypeInt32})
		fn.Emit(6, &ir.OperationBr{Target: &ir.BranchTarget{}})

		out, err := newTestMachine(t, backend.CallConvSystemV).Compile(fn)
		require.NoError(t, err)
		require.Len(t, out.Traps, 1)
		require.Equal(t, backend.TrapIntegerDivisionByZero, out.Traps[0].Code)
	})
}

func TestCompileTrampolineShape(t *testing.T) {
	// The shape the call-trampoline builder produces: load the argument
	// from the values buffer, call through the raw pointer, store the
	// result back.
	callee := &ir.Signature{Params: []ir.Type{ir.TypeI64}, Results: []ir.Type{ir.TypeI64}}
	fn := &ir.Func{Name: "trampoline", Signature: &ir.Signature{
		Params: []ir.Type{ir.TypeI64, ir.TypeI64}, // callee, values
	}}
	fn.Emit(0, &ir.OperationLocalGet{Index: 1})
	fn.Emit(0, &ir.OperationPointerLoad{Type: ir.TypeI64, Offset: 0})
	fn.Emit(0, &ir.OperationLocalGet{Index: 0})
	fn.Emit(0, &ir.OperationCallPointer{Sig: callee})
	fn.Emit(0, &ir.OperationLocalGet{Index: 1})
	fn.Emit(0, &ir.OperationSwap{Depth: 1})
	fn.Emit(0, &ir.OperationPointerStore{Type: ir.TypeI64, Offset: 0})
	fn.Emit(0, &ir.OperationBr{Target: &ir.BranchTarget{}})

	out, err := newTestMachine(t, backend.CallConvSystemV).Compile(fn)
	require.NoError(t, err)
	require.NotEmpty(t, out.Code)
	require.Empty(t, out.Relocs) // indirect call needs no patching
	require.Empty(t, out.Traps)
}

func TestCompileStackAlloc(t *testing.T) {
	fn := &ir.Func{Name: "u0:5", Signature: &ir.Signature{Results: []ir.Type{ir.TypeI64}}}
	fn.Emit(0, &ir.OperationStackAlloc{Size: 32})
	fn.Emit(0, &ir.OperationLocalTee{Index: 0})
	fn.Emit(0, &ir.OperationBr{Target: &ir.BranchTarget{}})
	fn.Locals = []ir.Type{ir.TypeI64}

	out, err := newTestMachine(t, backend.CallConvSystemV).Compile(fn)
	require.NoError(t, err)
	require.NotEmpty(t, out.Code)
}

func TestCompileUnsupported(t *testing.T) {
	for _, tc := range []struct {
		name string
		op   ir.Operation
	}{
		{name: "global.get", op: &ir.OperationGlobalGet{Index: 0}},
		{name: "br_if", op: &ir.OperationBrIf{
			Then: &ir.BranchTarget{Label: &ir.Label{FrameID: 1}},
			Else: &ir.BranchTarget{Label: &ir.Label{FrameID: 1, Kind: ir.LabelKindContinuation}},
		}},
		{name: "memory.grow", op: &ir.OperationMemoryGrow{}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			fn := &ir.Func{Name: "u0:6", Signature: &ir.Signature{}}
			if tc.name == "br_if" {
				fn.Emit(0, &ir.OperationConstI32{Value: 1})
			}
			fn.Emit(0, tc.op)
			fn.Emit(0, &ir.OperationBr{Target: &ir.BranchTarget{}})

			_, err := newTestMachine(t, backend.CallConvSystemV).Compile(fn)
			require.ErrorIs(t, err, ErrUnsupportedOperation)
		})
	}
}

func TestWindowsUnwind(t *testing.T) {
	m := newTestMachine(t, backend.CallConvWindowsFastcall)
	out, err := m.Compile(constAddFunc())
	require.NoError(t, err)
	uw, ok := out.Unwind.(*backend.UnwindWindows)
	require.True(t, ok)
	require.NotEmpty(t, uw.Data)
	require.Equal(t, byte(0x01), uw.Data[0])
}

func TestMachineReuse(t *testing.T) {
	m := newTestMachine(t, backend.CallConvSystemV)
	first, err := m.Compile(constAddFunc())
	require.NoError(t, err)
	second, err := m.Compile(constAddFunc())
	require.NoError(t, err)
	require.Equal(t, first.Code, second.Code)
}
