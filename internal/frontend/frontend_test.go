package frontend

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cruciblelabs/crucible/ir"
	"github.com/cruciblelabs/crucible/wasm"
)

var (
	i32i32ToI32 = &wasm.FunctionType{
		Params:  []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32},
		Results: []wasm.ValueType{wasm.ValueTypeI32},
	}
	noneToI32 = &wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeI32}}
)

func testModule() *wasm.ModuleInfo {
	return &wasm.ModuleInfo{
		Signatures: []*wasm.FunctionType{noneToI32, i32i32ToI32},
		Functions:  []wasm.SignatureIndex{0, 1},
	}
}

func lowerAll(module *wasm.ModuleInfo) []*ir.Signature {
	sigs := make([]*ir.Signature, len(module.Signatures))
	for i, ft := range module.Signatures {
		sigs[i] = LowerFunctionType(ft)
	}
	return sigs
}

func translate(t *testing.T, module *wasm.ModuleInfo, sig *wasm.FunctionType, body []byte, moduleOffset uint32) (*ir.Func, error) {
	t.Helper()
	fn := &ir.Func{Name: ir.FuncName(0), Signature: LowerFunctionType(sig)}
	tr := NewTranslator()
	err := tr.Translate(module, lowerAll(module), wasm.NewCodeReader(body, moduleOffset), fn)
	return fn, err
}

func TestTranslate_ConstAdd(t *testing.T) {
	body := []byte{
		0x00,       // no local groups
		0x41, 0x01, // i32.const 1
		0x41, 0x02, // i32.const 2
		0x6a, // i32.add
		0x0b, // end
	}
	fn, err := translate(t, testModule(), noneToI32, body, 0)
	require.NoError(t, err)
	require.Equal(t, []ir.Operation{
		&ir.OperationConstI32{Value: 1},
		&ir.OperationConstI32{Value: 2},
		&ir.OperationAdd{Type: ir.UnsignedTypeI32},
		&ir.OperationBr{Target: &ir.BranchTarget{}},
	}, fn.Ops)
	require.Equal(t, []uint32{1, 3, 5, 6}, fn.Positions)
}

func TestTranslate_OffsetsAreModuleOffsets(t *testing.T) {
	body := []byte{0x00, 0x41, 0x2a, 0x0b}
	const moduleOffset = 0x1234
	fn, err := translate(t, testModule(), noneToI32, body, moduleOffset)
	require.NoError(t, err)
	require.Equal(t, []uint32{moduleOffset + 1, moduleOffset + 3}, fn.Positions)
}

func TestTranslate_Params(t *testing.T) {
	body := []byte{
		0x00,
		0x20, 0x00, // local.get 0
		0x20, 0x01, // local.get 1
		0x6a, // i32.add
		0x0b,
	}
	fn, err := translate(t, testModule(), i32i32ToI32, body, 0)
	require.NoError(t, err)
	require.Equal(t, []ir.Operation{
		&ir.OperationLocalGet{Index: 0},
		&ir.OperationLocalGet{Index: 1},
		&ir.OperationAdd{Type: ir.UnsignedTypeI32},
		&ir.OperationBr{Target: &ir.BranchTarget{}},
	}, fn.Ops)
}

func TestTranslate_DeclaredLocals(t *testing.T) {
	body := []byte{
		0x01,       // one local group
		0x02, 0x7e, // 2 x i64
		0x20, 0x02, // local.get 2 (first declared local)
		0x1a, // drop
		0x41, 0x00,
		0x0b,
	}
	fn, err := translate(t, testModule(), i32i32ToI32, body, 0)
	require.NoError(t, err)
	require.Equal(t, []ir.Type{ir.TypeI64, ir.TypeI64}, fn.Locals)
	require.Equal(t, &ir.OperationLocalGet{Index: 2}, fn.Ops[0])
}

func TestTranslate_IfElse(t *testing.T) {
	body := []byte{
		0x00,
		0x41, 0x01, // i32.const 1
		0x04, 0x7f, // if (result i32)
		0x41, 0x02, //   i32.const 2
		0x05,       // else
		0x41, 0x03, //   i32.const 3
		0x0b, // end
		0x0b, // end
	}
	fn, err := translate(t, testModule(), noneToI32, body, 0)
	require.NoError(t, err)

	then := &ir.Label{FrameID: 1, Kind: ir.LabelKindHeader}
	els := &ir.Label{FrameID: 1, Kind: ir.LabelKindElse}
	cont := &ir.Label{FrameID: 1, Kind: ir.LabelKindContinuation}
	require.Equal(t, []ir.Operation{
		&ir.OperationConstI32{Value: 1},
		&ir.OperationBrIf{Then: &ir.BranchTarget{Label: then}, Else: &ir.BranchTarget{Label: els}},
		&ir.OperationLabel{Label: then},
		&ir.OperationConstI32{Value: 2},
		&ir.OperationBr{Target: &ir.BranchTarget{Label: cont}},
		&ir.OperationLabel{Label: els},
		&ir.OperationConstI32{Value: 3},
		&ir.OperationLabel{Label: cont},
		&ir.OperationBr{Target: &ir.BranchTarget{}},
	}, fn.Ops)
}

func TestTranslate_LoopBranch(t *testing.T) {
	body := []byte{
		0x00,
		0x03, 0x40, // loop (no result)
		0x41, 0x01, // i32.const 1
		0x0d, 0x00, // br_if 0 (loop header)
		0x0b, // end (loop)
		0x41, 0x00,
		0x0b, // end (function)
	}
	fn, err := translate(t, testModule(), noneToI32, body, 0)
	require.NoError(t, err)

	header := &ir.Label{FrameID: 1, Kind: ir.LabelKindHeader}
	require.Equal(t, &ir.OperationLabel{Label: header}, fn.Ops[0])
	brIf, ok := fn.Ops[2].(*ir.OperationBrIf)
	require.True(t, ok)
	require.Equal(t, header, brIf.Then.Label)
}

func TestTranslate_BlockParams(t *testing.T) {
	body := []byte{
		0x00,
		0x41, 0x01, // i32.const 1
		0x41, 0x02, // i32.const 2
		0x02, 0x01, // block (param i32 i32) (result i32)
		0x6a, //   i32.add
		0x0b, // end
		0x0b, // end
	}
	fn, err := translate(t, testModule(), noneToI32, body, 0)
	require.NoError(t, err)
	require.Equal(t, &ir.OperationAdd{Type: ir.UnsignedTypeI32}, fn.Ops[2])
}

func TestTranslate_DeadCodeSkipped(t *testing.T) {
	body := []byte{
		0x00,
		0x41, 0x07, // i32.const 7
		0x0f,       // return
		0x41, 0x01, // dead
		0x6a, // dead
		0x0b,
	}
	fn, err := translate(t, testModule(), noneToI32, body, 0)
	require.NoError(t, err)
	require.Equal(t, []ir.Operation{
		&ir.OperationConstI32{Value: 7},
		&ir.OperationBr{Target: &ir.BranchTarget{}},
		&ir.OperationBr{Target: &ir.BranchTarget{}},
	}, fn.Ops)
}

func TestTranslate_Unreachable(t *testing.T) {
	body := []byte{0x00, 0x00, 0x0b}
	fn, err := translate(t, testModule(), noneToI32, body, 0)
	require.NoError(t, err)
	require.Equal(t, &ir.OperationUnreachable{}, fn.Ops[0])
}

func TestTranslate_Errors(t *testing.T) {
	for _, tc := range []struct {
		name string
		body []byte
	}{
		{name: "truncated body", body: []byte{0x00, 0x41}},
		{name: "missing end", body: []byte{0x00, 0x41, 0x01}},
		{name: "stack underflow", body: []byte{0x00, 0x6a, 0x0b}},
		{name: "local out of range", body: []byte{0x00, 0x20, 0x63, 0x0b}},
		{name: "invalid local type", body: []byte{0x01, 0x01, 0x19, 0x0b}},
		{name: "bad branch depth", body: []byte{0x00, 0x41, 0x00, 0x0d, 0x07, 0x0b}},
		{name: "block parameters exceed stack", body: []byte{0x00, 0x02, 0x01, 0x0b, 0x0b}},
		{name: "loop parameters exceed stack", body: []byte{0x00, 0x03, 0x01, 0x0b, 0x0b}},
		{name: "if parameters exceed stack", body: []byte{0x00, 0x41, 0x00, 0x04, 0x01, 0x0b, 0x0b}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := translate(t, testModule(), noneToI32, tc.body, 0)
			require.Error(t, err)
		})
	}
}

func TestTranslate_UnsupportedOpcode(t *testing.T) {
	for _, tc := range []struct {
		name string
		body []byte
	}{
		{name: "br_table", body: []byte{0x00, 0x41, 0x00, 0x0e, 0x00, 0x00, 0x0b}},
		{name: "sign extension", body: []byte{0x00, 0x41, 0x00, 0xc0, 0x0b}},
		{name: "misc prefix", body: []byte{0x00, 0xfc, 0x00, 0x0b}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := translate(t, testModule(), noneToI32, tc.body, 0)
			require.ErrorIs(t, err, ErrUnsupported)
		})
	}
}

func TestTranslator_Reset(t *testing.T) {
	module := testModule()
	sigs := lowerAll(module)
	tr := NewTranslator()

	first := &ir.Func{Name: ir.FuncName(0), Signature: sigs[0]}
	require.NoError(t, tr.Translate(module, sigs, wasm.NewCodeReader([]byte{0x00, 0x41, 0x01, 0x0b}, 0), first))

	second := &ir.Func{Name: ir.FuncName(1), Signature: sigs[1]}
	require.NoError(t, tr.Translate(module, sigs, wasm.NewCodeReader([]byte{0x00, 0x20, 0x00, 0x0b}, 0), second))

	require.Len(t, second.Ops, 2)
	require.Equal(t, &ir.OperationLocalGet{Index: 0}, second.Ops[0])
}
