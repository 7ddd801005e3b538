package frontend

import (
	"fmt"

	"github.com/cruciblelabs/crucible/ir"
	"github.com/cruciblelabs/crucible/internal/leb128"
	"github.com/cruciblelabs/crucible/wasm"
)

func (t *Translator) translateMemoryAccess(r wasm.CodeReader, fn *ir.Func, pos uint32, op byte) error {
	align, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return fmt.Errorf("read alignment: %w", err)
	}
	offset, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return fmt.Errorf("read offset: %w", err)
	}
	arg := ir.MemoryArg{Alignment: align, Offset: offset}

	type access struct {
		op     ir.Operation
		result ir.Type
		store  bool
		value  ir.Type
	}
	var a access
	switch op {
	case 0x28:
		a = access{op: &ir.OperationLoad{Type: ir.UnsignedTypeI32, Arg: arg}, result: ir.TypeI32}
	case 0x29:
		a = access{op: &ir.OperationLoad{Type: ir.UnsignedTypeI64, Arg: arg}, result: ir.TypeI64}
	case 0x2a:
		a = access{op: &ir.OperationLoad{Type: ir.UnsignedTypeF32, Arg: arg}, result: ir.TypeF32}
	case 0x2b:
		a = access{op: &ir.OperationLoad{Type: ir.UnsignedTypeF64, Arg: arg}, result: ir.TypeF64}
	case 0x2c:
		a = access{op: &ir.OperationLoad8{Type: ir.SignedInt32, Arg: arg}, result: ir.TypeI32}
	case 0x2d:
		a = access{op: &ir.OperationLoad8{Type: ir.SignedUint32, Arg: arg}, result: ir.TypeI32}
	case 0x2e:
		a = access{op: &ir.OperationLoad16{Type: ir.SignedInt32, Arg: arg}, result: ir.TypeI32}
	case 0x2f:
		a = access{op: &ir.OperationLoad16{Type: ir.SignedUint32, Arg: arg}, result: ir.TypeI32}
	case 0x30:
		a = access{op: &ir.OperationLoad8{Type: ir.SignedInt64, Arg: arg}, result: ir.TypeI64}
	case 0x31:
		a = access{op: &ir.OperationLoad8{Type: ir.SignedUint64, Arg: arg}, result: ir.TypeI64}
	case 0x32:
		a = access{op: &ir.OperationLoad16{Type: ir.SignedInt64, Arg: arg}, result: ir.TypeI64}
	case 0x33:
		a = access{op: &ir.OperationLoad16{Type: ir.SignedUint64, Arg: arg}, result: ir.TypeI64}
	case 0x34:
		a = access{op: &ir.OperationLoad32{Signed: true, Arg: arg}, result: ir.TypeI64}
	case 0x35:
		a = access{op: &ir.OperationLoad32{Signed: false, Arg: arg}, result: ir.TypeI64}
	case 0x36:
		a = access{op: &ir.OperationStore{Type: ir.UnsignedTypeI32, Arg: arg}, store: true}
	case 0x37:
		a = access{op: &ir.OperationStore{Type: ir.UnsignedTypeI64, Arg: arg}, store: true}
	case 0x38:
		a = access{op: &ir.OperationStore{Type: ir.UnsignedTypeF32, Arg: arg}, store: true}
	case 0x39:
		a = access{op: &ir.OperationStore{Type: ir.UnsignedTypeF64, Arg: arg}, store: true}
	case 0x3a, 0x3c:
		a = access{op: &ir.OperationStore8{Arg: arg}, store: true}
	case 0x3b, 0x3d:
		a = access{op: &ir.OperationStore16{Arg: arg}, store: true}
	case 0x3e:
		a = access{op: &ir.OperationStore32{Arg: arg}, store: true}
	}

	if a.store {
		if err := t.popN(2); err != nil { // value, base address
			return err
		}
	} else {
		if _, err := t.pop(); err != nil { // base address
			return err
		}
		t.push(a.result)
	}
	fn.Emit(pos, a.op)
	return nil
}

func (t *Translator) translateNumeric(fn *ir.Func, pos uint32, op byte) error {
	// Helper shapes over the value stack.
	cmp := func(o ir.Operation) error { // pops 2, pushes i32
		if err := t.popN(2); err != nil {
			return err
		}
		t.push(ir.TypeI32)
		fn.Emit(pos, o)
		return nil
	}
	test := func(o ir.Operation) error { // pops 1, pushes i32
		if _, err := t.pop(); err != nil {
			return err
		}
		t.push(ir.TypeI32)
		fn.Emit(pos, o)
		return nil
	}
	bin := func(o ir.Operation, typ ir.Type) error { // pops 2, pushes typ
		if err := t.popN(2); err != nil {
			return err
		}
		t.push(typ)
		fn.Emit(pos, o)
		return nil
	}
	un := func(o ir.Operation, typ ir.Type) error { // pops 1, pushes typ
		if _, err := t.pop(); err != nil {
			return err
		}
		t.push(typ)
		fn.Emit(pos, o)
		return nil
	}

	switch op {
	// i32 comparisons.
	case 0x45:
		return test(&ir.OperationEqz{Type: ir.UnsignedInt32})
	case 0x46:
		return cmp(&ir.OperationEq{Type: ir.UnsignedTypeI32})
	case 0x47:
		return cmp(&ir.OperationNe{Type: ir.UnsignedTypeI32})
	case 0x48:
		return cmp(&ir.OperationLt{Type: ir.SignedTypeInt32})
	case 0x49:
		return cmp(&ir.OperationLt{Type: ir.SignedTypeUint32})
	case 0x4a:
		return cmp(&ir.OperationGt{Type: ir.SignedTypeInt32})
	case 0x4b:
		return cmp(&ir.OperationGt{Type: ir.SignedTypeUint32})
	case 0x4c:
		return cmp(&ir.OperationLe{Type: ir.SignedTypeInt32})
	case 0x4d:
		return cmp(&ir.OperationLe{Type: ir.SignedTypeUint32})
	case 0x4e:
		return cmp(&ir.OperationGe{Type: ir.SignedTypeInt32})
	case 0x4f:
		return cmp(&ir.OperationGe{Type: ir.SignedTypeUint32})
	// i64 comparisons.
	case 0x50:
		return test(&ir.OperationEqz{Type: ir.UnsignedInt64})
	case 0x51:
		return cmp(&ir.OperationEq{Type: ir.UnsignedTypeI64})
	case 0x52:
		return cmp(&ir.OperationNe{Type: ir.UnsignedTypeI64})
	case 0x53:
		return cmp(&ir.OperationLt{Type: ir.SignedTypeInt64})
	case 0x54:
		return cmp(&ir.OperationLt{Type: ir.SignedTypeUint64})
	case 0x55:
		return cmp(&ir.OperationGt{Type: ir.SignedTypeInt64})
	case 0x56:
		return cmp(&ir.OperationGt{Type: ir.SignedTypeUint64})
	case 0x57:
		return cmp(&ir.OperationLe{Type: ir.SignedTypeInt64})
	case 0x58:
		return cmp(&ir.OperationLe{Type: ir.SignedTypeUint64})
	case 0x59:
		return cmp(&ir.OperationGe{Type: ir.SignedTypeInt64})
	case 0x5a:
		return cmp(&ir.OperationGe{Type: ir.SignedTypeUint64})
	// f32 comparisons.
	case 0x5b:
		return cmp(&ir.OperationEq{Type: ir.UnsignedTypeF32})
	case 0x5c:
		return cmp(&ir.OperationNe{Type: ir.UnsignedTypeF32})
	case 0x5d:
		return cmp(&ir.OperationLt{Type: ir.SignedTypeFloat32})
	case 0x5e:
		return cmp(&ir.OperationGt{Type: ir.SignedTypeFloat32})
	case 0x5f:
		return cmp(&ir.OperationLe{Type: ir.SignedTypeFloat32})
	case 0x60:
		return cmp(&ir.OperationGe{Type: ir.SignedTypeFloat32})
	// f64 comparisons.
	case 0x61:
		return cmp(&ir.OperationEq{Type: ir.UnsignedTypeF64})
	case 0x62:
		return cmp(&ir.OperationNe{Type: ir.UnsignedTypeF64})
	case 0x63:
		return cmp(&ir.OperationLt{Type: ir.SignedTypeFloat64})
	case 0x64:
		return cmp(&ir.OperationGt{Type: ir.SignedTypeFloat64})
	case 0x65:
		return cmp(&ir.OperationLe{Type: ir.SignedTypeFloat64})
	case 0x66:
		return cmp(&ir.OperationGe{Type: ir.SignedTypeFloat64})
	// i32 arithmetic.
	case 0x67:
		return un(&ir.OperationClz{Type: ir.UnsignedInt32}, ir.TypeI32)
	case 0x68:
		return un(&ir.OperationCtz{Type: ir.UnsignedInt32}, ir.TypeI32)
	case 0x69:
		return un(&ir.OperationPopcnt{Type: ir.UnsignedInt32}, ir.TypeI32)
	case 0x6a:
		return bin(&ir.OperationAdd{Type: ir.UnsignedTypeI32}, ir.TypeI32)
	case 0x6b:
		return bin(&ir.OperationSub{Type: ir.UnsignedTypeI32}, ir.TypeI32)
	case 0x6c:
		return bin(&ir.OperationMul{Type: ir.UnsignedTypeI32}, ir.TypeI32)
	case 0x6d:
		return bin(&ir.OperationDiv{Type: ir.SignedTypeInt32}, ir.TypeI32)
	case 0x6e:
		return bin(&ir.OperationDiv{Type: ir.SignedTypeUint32}, ir.TypeI32)
	case 0x6f:
		return bin(&ir.OperationRem{Type: ir.SignedInt32}, ir.TypeI32)
	case 0x70:
		return bin(&ir.OperationRem{Type: ir.SignedUint32}, ir.TypeI32)
	case 0x71:
		return bin(&ir.OperationAnd{Type: ir.UnsignedInt32}, ir.TypeI32)
	case 0x72:
		return bin(&ir.OperationOr{Type: ir.UnsignedInt32}, ir.TypeI32)
	case 0x73:
		return bin(&ir.OperationXor{Type: ir.UnsignedInt32}, ir.TypeI32)
	case 0x74:
		return bin(&ir.OperationShl{Type: ir.UnsignedInt32}, ir.TypeI32)
	case 0x75:
		return bin(&ir.OperationShr{Type: ir.SignedInt32}, ir.TypeI32)
	case 0x76:
		return bin(&ir.OperationShr{Type: ir.SignedUint32}, ir.TypeI32)
	case 0x77:
		return bin(&ir.OperationRotl{Type: ir.UnsignedInt32}, ir.TypeI32)
	case 0x78:
		return bin(&ir.OperationRotr{Type: ir.UnsignedInt32}, ir.TypeI32)
	// i64 arithmetic.
	case 0x79:
		return un(&ir.OperationClz{Type: ir.UnsignedInt64}, ir.TypeI64)
	case 0x7a:
		return un(&ir.OperationCtz{Type: ir.UnsignedInt64}, ir.TypeI64)
	case 0x7b:
		return un(&ir.OperationPopcnt{Type: ir.UnsignedInt64}, ir.TypeI64)
	case 0x7c:
		return bin(&ir.OperationAdd{Type: ir.UnsignedTypeI64}, ir.TypeI64)
	case 0x7d:
		return bin(&ir.OperationSub{Type: ir.UnsignedTypeI64}, ir.TypeI64)
	case 0x7e:
		return bin(&ir.OperationMul{Type: ir.UnsignedTypeI64}, ir.TypeI64)
	case 0x7f:
		return bin(&ir.OperationDiv{Type: ir.SignedTypeInt64}, ir.TypeI64)
	case 0x80:
		return bin(&ir.OperationDiv{Type: ir.SignedTypeUint64}, ir.TypeI64)
	case 0x81:
		return bin(&ir.OperationRem{Type: ir.SignedInt64}, ir.TypeI64)
	case 0x82:
		return bin(&ir.OperationRem{Type: ir.SignedUint64}, ir.TypeI64)
	case 0x83:
		return bin(&ir.OperationAnd{Type: ir.UnsignedInt64}, ir.TypeI64)
	case 0x84:
		return bin(&ir.OperationOr{Type: ir.UnsignedInt64}, ir.TypeI64)
	case 0x85:
		return bin(&ir.OperationXor{Type: ir.UnsignedInt64}, ir.TypeI64)
	case 0x86:
		return bin(&ir.OperationShl{Type: ir.UnsignedInt64}, ir.TypeI64)
	case 0x87:
		return bin(&ir.OperationShr{Type: ir.SignedInt64}, ir.TypeI64)
	case 0x88:
		return bin(&ir.OperationShr{Type: ir.SignedUint64}, ir.TypeI64)
	case 0x89:
		return bin(&ir.OperationRotl{Type: ir.UnsignedInt64}, ir.TypeI64)
	case 0x8a:
		return bin(&ir.OperationRotr{Type: ir.UnsignedInt64}, ir.TypeI64)
	// f32 arithmetic.
	case 0x8b:
		return un(&ir.OperationAbs{Type: ir.Float32}, ir.TypeF32)
	case 0x8c:
		return un(&ir.OperationNeg{Type: ir.Float32}, ir.TypeF32)
	case 0x8d:
		return un(&ir.OperationCeil{Type: ir.Float32}, ir.TypeF32)
	case 0x8e:
		return un(&ir.OperationFloor{Type: ir.Float32}, ir.TypeF32)
	case 0x8f:
		return un(&ir.OperationTrunc{Type: ir.Float32}, ir.TypeF32)
	case 0x90:
		return un(&ir.OperationNearest{Type: ir.Float32}, ir.TypeF32)
	case 0x91:
		return un(&ir.OperationSqrt{Type: ir.Float32}, ir.TypeF32)
	case 0x92:
		return bin(&ir.OperationAdd{Type: ir.UnsignedTypeF32}, ir.TypeF32)
	case 0x93:
		return bin(&ir.OperationSub{Type: ir.UnsignedTypeF32}, ir.TypeF32)
	case 0x94:
		return bin(&ir.OperationMul{Type: ir.UnsignedTypeF32}, ir.TypeF32)
	case 0x95:
		return bin(&ir.OperationDiv{Type: ir.SignedTypeFloat32}, ir.TypeF32)
	case 0x96:
		return bin(&ir.OperationMin{Type: ir.Float32}, ir.TypeF32)
	case 0x97:
		return bin(&ir.OperationMax{Type: ir.Float32}, ir.TypeF32)
	case 0x98:
		return bin(&ir.OperationCopysign{Type: ir.Float32}, ir.TypeF32)
	// f64 arithmetic.
	case 0x99:
		return un(&ir.OperationAbs{Type: ir.Float64}, ir.TypeF64)
	case 0x9a:
		return un(&ir.OperationNeg{Type: ir.Float64}, ir.TypeF64)
	case 0x9b:
		return un(&ir.OperationCeil{Type: ir.Float64}, ir.TypeF64)
	case 0x9c:
		return un(&ir.OperationFloor{Type: ir.Float64}, ir.TypeF64)
	case 0x9d:
		return un(&ir.OperationTrunc{Type: ir.Float64}, ir.TypeF64)
	case 0x9e:
		return un(&ir.OperationNearest{Type: ir.Float64}, ir.TypeF64)
	case 0x9f:
		return un(&ir.OperationSqrt{Type: ir.Float64}, ir.TypeF64)
	case 0xa0:
		return bin(&ir.OperationAdd{Type: ir.UnsignedTypeF64}, ir.TypeF64)
	case 0xa1:
		return bin(&ir.OperationSub{Type: ir.UnsignedTypeF64}, ir.TypeF64)
	case 0xa2:
		return bin(&ir.OperationMul{Type: ir.UnsignedTypeF64}, ir.TypeF64)
	case 0xa3:
		return bin(&ir.OperationDiv{Type: ir.SignedTypeFloat64}, ir.TypeF64)
	case 0xa4:
		return bin(&ir.OperationMin{Type: ir.Float64}, ir.TypeF64)
	case 0xa5:
		return bin(&ir.OperationMax{Type: ir.Float64}, ir.TypeF64)
	case 0xa6:
		return bin(&ir.OperationCopysign{Type: ir.Float64}, ir.TypeF64)
	// Conversions.
	case 0xa7:
		return un(&ir.OperationI32WrapFromI64{}, ir.TypeI32)
	case 0xa8:
		return un(&ir.OperationITruncFromF{InputType: ir.Float32, OutputType: ir.SignedInt32}, ir.TypeI32)
	case 0xa9:
		return un(&ir.OperationITruncFromF{InputType: ir.Float32, OutputType: ir.SignedUint32}, ir.TypeI32)
	case 0xaa:
		return un(&ir.OperationITruncFromF{InputType: ir.Float64, OutputType: ir.SignedInt32}, ir.TypeI32)
	case 0xab:
		return un(&ir.OperationITruncFromF{InputType: ir.Float64, OutputType: ir.SignedUint32}, ir.TypeI32)
	case 0xac:
		return un(&ir.OperationExtend{Signed: true}, ir.TypeI64)
	case 0xad:
		return un(&ir.OperationExtend{Signed: false}, ir.TypeI64)
	case 0xae:
		return un(&ir.OperationITruncFromF{InputType: ir.Float32, OutputType: ir.SignedInt64}, ir.TypeI64)
	case 0xaf:
		return un(&ir.OperationITruncFromF{InputType: ir.Float32, OutputType: ir.SignedUint64}, ir.TypeI64)
	case 0xb0:
		return un(&ir.OperationITruncFromF{InputType: ir.Float64, OutputType: ir.SignedInt64}, ir.TypeI64)
	case 0xb1:
		return un(&ir.OperationITruncFromF{InputType: ir.Float64, OutputType: ir.SignedUint64}, ir.TypeI64)
	case 0xb2:
		return un(&ir.OperationFConvertFromI{InputType: ir.SignedInt32, OutputType: ir.Float32}, ir.TypeF32)
	case 0xb3:
		return un(&ir.OperationFConvertFromI{InputType: ir.SignedUint32, OutputType: ir.Float32}, ir.TypeF32)
	case 0xb4:
		return un(&ir.OperationFConvertFromI{InputType: ir.SignedInt64, OutputType: ir.Float32}, ir.TypeF32)
	case 0xb5:
		return un(&ir.OperationFConvertFromI{InputType: ir.SignedUint64, OutputType: ir.Float32}, ir.TypeF32)
	case 0xb6:
		return un(&ir.OperationF32DemoteFromF64{}, ir.TypeF32)
	case 0xb7:
		return un(&ir.OperationFConvertFromI{InputType: ir.SignedInt32, OutputType: ir.Float64}, ir.TypeF64)
	case 0xb8:
		return un(&ir.OperationFConvertFromI{InputType: ir.SignedUint32, OutputType: ir.Float64}, ir.TypeF64)
	case 0xb9:
		return un(&ir.OperationFConvertFromI{InputType: ir.SignedInt64, OutputType: ir.Float64}, ir.TypeF64)
	case 0xba:
		return un(&ir.OperationFConvertFromI{InputType: ir.SignedUint64, OutputType: ir.Float64}, ir.TypeF64)
	case 0xbb:
		return un(&ir.OperationF64PromoteFromF32{}, ir.TypeF64)
	case 0xbc:
		return un(&ir.OperationI32ReinterpretFromF32{}, ir.TypeI32)
	case 0xbd:
		return un(&ir.OperationI64ReinterpretFromF64{}, ir.TypeI64)
	case 0xbe:
		return un(&ir.OperationF32ReinterpretFromI32{}, ir.TypeF32)
	case 0xbf:
		return un(&ir.OperationF64ReinterpretFromI64{}, ir.TypeF64)
	}
	return fmt.Errorf("%w: opcode %#x", ErrUnsupported, op)
}
