package amd64

import (
	"fmt"
	"math"

	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"

	"github.com/cruciblelabs/crucible/backend"
	"github.com/cruciblelabs/crucible/ir"
)

// relocPlaceholder is the immediate emitted at relocated call sites. A
// maximal constant forces the assembler into the 10-byte mov-imm64 form, so
// the patched field always sits two bytes past the instruction start.
const relocPlaceholder = math.MaxInt64

func (m *machine) lower(fn *ir.Func, op ir.Operation) error {
	switch o := op.(type) {
	case *ir.OperationUnreachable:
		// int3 as the faulting instruction; the trap table carries the
		// reason.
		p := m.prog(x86.AINT)
		p.From.Type = obj.TYPE_CONST
		p.From.Offset = 3
		m.add(p)
		m.trapSites = append(m.trapSites, trapSite{prog: p, code: backend.TrapUnreachable})
		return nil

	case *ir.OperationLabel:
		// Straight-line code never branches, so a label is just a marker.
		return nil

	case *ir.OperationBr:
		if o.Target.IsReturn() {
			return m.emitEpilogue(fn)
		}
		return ErrUnsupportedOperation

	case *ir.OperationConstI32:
		reg, err := m.allocReg(false)
		if err != nil {
			return err
		}
		m.emitConst(int64(o.Value), reg)
		m.push(ir.TypeI32, reg)
		return nil

	case *ir.OperationConstI64:
		reg, err := m.allocReg(false)
		if err != nil {
			return err
		}
		m.emitConst(int64(o.Value), reg)
		m.push(ir.TypeI64, reg)
		return nil

	case *ir.OperationConstF32:
		return m.lowerFloatConst(ir.TypeF32, int64(math.Float32bits(o.Value)))

	case *ir.OperationConstF64:
		return m.lowerFloatConst(ir.TypeF64, int64(math.Float64bits(o.Value)))

	case *ir.OperationLocalGet:
		return m.lowerLocalGet(fn, o.Index)

	case *ir.OperationLocalSet:
		return m.lowerLocalSet(fn, o.Index, false)

	case *ir.OperationLocalTee:
		return m.lowerLocalSet(fn, o.Index, true)

	case *ir.OperationDrop:
		v, err := m.pop()
		if err != nil {
			return err
		}
		m.freeReg(v.reg)
		return nil

	case *ir.OperationPick:
		return m.lowerPick(o.Depth)

	case *ir.OperationSwap:
		d := int(o.Depth)
		if d >= len(m.stack) {
			return fmt.Errorf("%w: swap depth %d", ErrUnsupportedOperation, o.Depth)
		}
		i, j := len(m.stack)-1, len(m.stack)-1-d
		m.stack[i], m.stack[j] = m.stack[j], m.stack[i]
		return nil

	case *ir.OperationSelect:
		return m.lowerSelect()

	case *ir.OperationAdd:
		return m.lowerBinary(o.Type, x86.AADDL, x86.AADDQ, x86.AADDSS, x86.AADDSD)
	case *ir.OperationSub:
		return m.lowerBinary(o.Type, x86.ASUBL, x86.ASUBQ, x86.ASUBSS, x86.ASUBSD)
	case *ir.OperationMul:
		return m.lowerBinary(o.Type, x86.AIMULL, x86.AIMULQ, x86.AMULSS, x86.AMULSD)

	case *ir.OperationAnd:
		return m.lowerIntBinary(o.Type, x86.AANDL, x86.AANDQ)
	case *ir.OperationOr:
		return m.lowerIntBinary(o.Type, x86.AORL, x86.AORQ)
	case *ir.OperationXor:
		return m.lowerIntBinary(o.Type, x86.AXORL, x86.AXORQ)

	case *ir.OperationShl:
		return m.lowerShift(o.Type == ir.UnsignedInt64, x86.ASHLL, x86.ASHLQ)
	case *ir.OperationShr:
		switch o.Type {
		case ir.SignedInt32:
			return m.lowerShift(false, x86.ASARL, x86.ASARL)
		case ir.SignedInt64:
			return m.lowerShift(true, x86.ASARQ, x86.ASARQ)
		case ir.SignedUint32:
			return m.lowerShift(false, x86.ASHRL, x86.ASHRL)
		default:
			return m.lowerShift(true, x86.ASHRQ, x86.ASHRQ)
		}

	case *ir.OperationDiv:
		return m.lowerDiv(o.Type)
	case *ir.OperationRem:
		return m.lowerRem(o.Type)

	case *ir.OperationEq:
		return m.lowerIntCompareU(o.Type, x86.ASETEQ)
	case *ir.OperationNe:
		return m.lowerIntCompareU(o.Type, x86.ASETNE)
	case *ir.OperationEqz:
		return m.lowerEqz(o.Type)
	case *ir.OperationLt:
		return m.lowerIntCompareS(o.Type, x86.ASETLT, x86.ASETCS)
	case *ir.OperationGt:
		return m.lowerIntCompareS(o.Type, x86.ASETGT, x86.ASETHI)
	case *ir.OperationLe:
		return m.lowerIntCompareS(o.Type, x86.ASETLE, x86.ASETLS)
	case *ir.OperationGe:
		return m.lowerIntCompareS(o.Type, x86.ASETGE, x86.ASETCC)

	case *ir.OperationSqrt:
		if o.Type == ir.Float32 {
			return m.lowerFloatUnary(x86.ASQRTSS)
		}
		return m.lowerFloatUnary(x86.ASQRTSD)

	case *ir.OperationCeil:
		return m.lowerFloatLibCall(o.Type, backend.LibCallCeilF32, backend.LibCallCeilF64)
	case *ir.OperationFloor:
		return m.lowerFloatLibCall(o.Type, backend.LibCallFloorF32, backend.LibCallFloorF64)
	case *ir.OperationTrunc:
		return m.lowerFloatLibCall(o.Type, backend.LibCallTruncF32, backend.LibCallTruncF64)
	case *ir.OperationNearest:
		return m.lowerFloatLibCall(o.Type, backend.LibCallNearestF32, backend.LibCallNearestF64)

	case *ir.OperationI32WrapFromI64:
		return m.lowerIntUnary(ir.TypeI32, x86.AMOVL)
	case *ir.OperationExtend:
		if o.Signed {
			return m.lowerIntUnary(ir.TypeI64, x86.AMOVLQSX)
		}
		return m.lowerIntUnary(ir.TypeI64, x86.AMOVL)

	case *ir.OperationI32ReinterpretFromF32:
		return m.lowerReinterpret(ir.TypeI32, false)
	case *ir.OperationI64ReinterpretFromF64:
		return m.lowerReinterpret(ir.TypeI64, false)
	case *ir.OperationF32ReinterpretFromI32:
		return m.lowerReinterpret(ir.TypeF32, true)
	case *ir.OperationF64ReinterpretFromI64:
		return m.lowerReinterpret(ir.TypeF64, true)

	case *ir.OperationCall:
		if o.Sig == nil {
			return fmt.Errorf("%w: call without signature", ErrUnsupportedOperation)
		}
		if err := m.marshalArgs(o.Sig); err != nil {
			return err
		}
		m.emitRelocatedCall(backend.ExternalName{Kind: backend.NameKindUserFunc, FuncIndex: o.FunctionIndex})
		return m.takeResult(o.Sig)

	case *ir.OperationCallPointer:
		ptr, err := m.pop()
		if err != nil {
			return err
		}
		m.emitRegToReg(x86.AMOVQ, ptr.reg, tmpReg)
		m.freeReg(ptr.reg)
		if err := m.marshalArgs(o.Sig); err != nil {
			return err
		}
		call := m.prog(obj.ACALL)
		call.To.Type = obj.TYPE_REG
		call.To.Reg = tmpReg
		m.add(call)
		return m.takeResult(o.Sig)

	case *ir.OperationPointerLoad:
		return m.lowerPointerLoad(o.Type, o.Offset)
	case *ir.OperationPointerStore:
		return m.lowerPointerStore(o.Type, o.Offset)

	case *ir.OperationStackAlloc:
		reg, err := m.allocReg(false)
		if err != nil {
			return err
		}
		m.allocCursor += int32((o.Size + 7) &^ 7)
		lea := m.prog(x86.ALEAQ)
		lea.From.Type = obj.TYPE_MEM
		lea.From.Reg = x86.REG_BP
		lea.From.Offset = -int64(m.allocCursor)
		lea.To.Type = obj.TYPE_REG
		lea.To.Reg = reg
		m.add(lea)
		m.push(ir.TypeI64, reg)
		return nil

	default:
		return ErrUnsupportedOperation
	}
}

func (m *machine) emitConst(v int64, reg int16) {
	p := m.prog(x86.AMOVQ)
	p.From.Type = obj.TYPE_CONST
	p.From.Offset = v
	p.To.Type = obj.TYPE_REG
	p.To.Reg = reg
	m.add(p)
}

func (m *machine) emitRelocatedCall(name backend.ExternalName) {
	mov := m.prog(x86.AMOVQ)
	mov.From.Type = obj.TYPE_CONST
	mov.From.Offset = relocPlaceholder
	mov.To.Type = obj.TYPE_REG
	mov.To.Reg = tmpReg
	m.add(mov)
	m.relocSites = append(m.relocSites, relocSite{prog: mov, name: name})

	call := m.prog(obj.ACALL)
	call.To.Type = obj.TYPE_REG
	call.To.Reg = tmpReg
	m.add(call)
}

func (m *machine) lowerFloatConst(typ ir.Type, bits int64) error {
	reg, err := m.allocReg(true)
	if err != nil {
		return err
	}
	m.emitConst(bits, tmpReg)
	m.emitRegToReg(x86.AMOVQ, tmpReg, reg)
	m.push(typ, reg)
	return nil
}

func (m *machine) lowerLocalGet(fn *ir.Func, index uint32) error {
	typ, err := m.localType(fn, index)
	if err != nil {
		return err
	}
	reg, err := m.allocReg(isFloat(typ))
	if err != nil {
		return err
	}
	as := x86.AMOVQ
	if isFloat(typ) {
		as = x86.AMOVSD
	}
	p := m.prog(as)
	p.From.Type = obj.TYPE_MEM
	p.From.Reg = x86.REG_BP
	p.From.Offset = int64(m.localOffset(int(index)))
	p.To.Type = obj.TYPE_REG
	p.To.Reg = reg
	m.add(p)
	m.push(typ, reg)
	return nil
}

func (m *machine) lowerLocalSet(fn *ir.Func, index uint32, tee bool) error {
	if _, err := m.localType(fn, index); err != nil {
		return err
	}
	if len(m.stack) == 0 {
		return fmt.Errorf("%w: value stack underflow", ErrUnsupportedOperation)
	}
	v := m.stack[len(m.stack)-1]
	as := x86.AMOVQ
	if isFloat(v.typ) {
		as = x86.AMOVSD
	}
	p := m.prog(as)
	p.From.Type = obj.TYPE_REG
	p.From.Reg = v.reg
	p.To.Type = obj.TYPE_MEM
	p.To.Reg = x86.REG_BP
	p.To.Offset = int64(m.localOffset(int(index)))
	m.add(p)
	if !tee {
		m.stack = m.stack[:len(m.stack)-1]
		m.freeReg(v.reg)
	}
	return nil
}

func (m *machine) localType(fn *ir.Func, index uint32) (ir.Type, error) {
	params := fn.Signature.Params
	if int(index) < len(params) {
		return params[index], nil
	}
	if li := int(index) - len(params); li < len(fn.Locals) {
		return fn.Locals[li], nil
	}
	return 0, fmt.Errorf("%w: local %d out of range", ErrUnsupportedOperation, index)
}

func (m *machine) lowerPick(depth uint32) error {
	d := int(depth)
	if d >= len(m.stack) {
		return fmt.Errorf("%w: pick depth %d", ErrUnsupportedOperation, depth)
	}
	src := m.stack[len(m.stack)-1-d]
	reg, err := m.allocReg(isFloat(src.typ))
	if err != nil {
		return err
	}
	as := x86.AMOVQ
	if isFloat(src.typ) {
		as = x86.AMOVSD
	}
	m.emitRegToReg(as, src.reg, reg)
	m.push(src.typ, reg)
	return nil
}

func (m *machine) lowerSelect() error {
	cond, err := m.pop()
	if err != nil {
		return err
	}
	v2, err := m.pop()
	if err != nil {
		return err
	}
	v1, err := m.pop()
	if err != nil {
		return err
	}
	if isFloat(v1.typ) {
		return fmt.Errorf("%w: float select", ErrUnsupportedOperation)
	}
	cmp := m.prog(x86.ACMPQ)
	cmp.From.Type = obj.TYPE_REG
	cmp.From.Reg = cond.reg
	cmp.To.Type = obj.TYPE_CONST
	cmp.To.Offset = 0
	m.add(cmp)
	m.emitRegToReg(x86.ACMOVQEQ, v2.reg, v1.reg)
	m.freeReg(cond.reg)
	m.freeReg(v2.reg)
	m.push(v1.typ, v1.reg)
	return nil
}

// lowerBinary pops (y, x), computes x op y in place, and pushes x.
func (m *machine) lowerBinary(typ ir.UnsignedType, l, q, ss, sd obj.As) error {
	y, err := m.pop()
	if err != nil {
		return err
	}
	x, err := m.pop()
	if err != nil {
		return err
	}
	var as obj.As
	switch typ {
	case ir.UnsignedTypeI32:
		as = l
	case ir.UnsignedTypeI64:
		as = q
	case ir.UnsignedTypeF32:
		as = ss
	default:
		as = sd
	}
	m.emitRegToReg(as, y.reg, x.reg)
	m.freeReg(y.reg)
	m.push(x.typ, x.reg)
	return nil
}

func (m *machine) lowerIntBinary(typ ir.UnsignedInt, l, q obj.As) error {
	as := q
	if typ == ir.UnsignedInt32 {
		as = l
	}
	y, err := m.pop()
	if err != nil {
		return err
	}
	x, err := m.pop()
	if err != nil {
		return err
	}
	m.emitRegToReg(as, y.reg, x.reg)
	m.freeReg(y.reg)
	m.push(x.typ, x.reg)
	return nil
}

// lowerShift moves the shift amount into CL, the only register the
// variable-shift forms accept.
func (m *machine) lowerShift(is64 bool, l, q obj.As) error {
	as := l
	if is64 {
		as = q
	}
	y, err := m.pop()
	if err != nil {
		return err
	}
	x, err := m.pop()
	if err != nil {
		return err
	}
	m.emitRegToReg(x86.AMOVQ, y.reg, x86.REG_CX)
	m.freeReg(y.reg)
	p := m.prog(as)
	p.From.Type = obj.TYPE_REG
	p.From.Reg = x86.REG_CX
	p.To.Type = obj.TYPE_REG
	p.To.Reg = x.reg
	m.add(p)
	m.push(x.typ, x.reg)
	return nil
}

// lowerDiv handles both float division and the rax/rdx integer division
// dance. The divide instruction itself is the recorded trap site: a zero
// divisor faults there.
func (m *machine) lowerDiv(typ ir.SignedType) error {
	switch typ {
	case ir.SignedTypeFloat32:
		return m.lowerBinary(ir.UnsignedTypeF32, 0, 0, x86.ADIVSS, x86.ADIVSD)
	case ir.SignedTypeFloat64:
		return m.lowerBinary(ir.UnsignedTypeF64, 0, 0, x86.ADIVSS, x86.ADIVSD)
	}
	signed := typ == ir.SignedTypeInt32 || typ == ir.SignedTypeInt64
	is64 := typ == ir.SignedTypeInt64 || typ == ir.SignedTypeUint64
	return m.lowerIntDiv(signed, is64, x86.REG_AX)
}

func (m *machine) lowerRem(typ ir.SignedInt) error {
	signed := typ == ir.SignedInt32 || typ == ir.SignedInt64
	is64 := typ == ir.SignedInt64 || typ == ir.SignedUint64
	return m.lowerIntDiv(signed, is64, x86.REG_DX)
}

func (m *machine) lowerIntDiv(signed, is64 bool, resultReg int16) error {
	y, err := m.pop()
	if err != nil {
		return err
	}
	x, err := m.pop()
	if err != nil {
		return err
	}
	m.emitRegToReg(x86.AMOVQ, x.reg, x86.REG_AX)
	if signed {
		ext := x86.ACDQ
		if is64 {
			ext = x86.ACQO
		}
		m.add(m.prog(ext))
	} else {
		m.emitRegToReg(x86.AXORQ, x86.REG_DX, x86.REG_DX)
	}
	var as obj.As
	switch {
	case signed && is64:
		as = x86.AIDIVQ
	case signed:
		as = x86.AIDIVL
	case is64:
		as = x86.ADIVQ
	default:
		as = x86.ADIVL
	}
	div := m.prog(as)
	div.From.Type = obj.TYPE_REG
	div.From.Reg = y.reg
	m.add(div)
	m.trapSites = append(m.trapSites, trapSite{prog: div, code: backend.TrapIntegerDivisionByZero})
	m.emitRegToReg(x86.AMOVQ, resultReg, x.reg)
	m.freeReg(y.reg)
	m.push(x.typ, x.reg)
	return nil
}

// lowerIntCompareU compares sign-agnostically; equality tests only.
func (m *machine) lowerIntCompareU(typ ir.UnsignedType, set obj.As) error {
	var cmp obj.As
	switch typ {
	case ir.UnsignedTypeI32:
		cmp = x86.ACMPL
	case ir.UnsignedTypeI64:
		cmp = x86.ACMPQ
	default:
		return fmt.Errorf("%w: float comparison", ErrUnsupportedOperation)
	}
	return m.emitCompare(cmp, set)
}

func (m *machine) lowerIntCompareS(typ ir.SignedType, signedSet, unsignedSet obj.As) error {
	var cmp, set obj.As
	switch typ {
	case ir.SignedTypeInt32:
		cmp, set = x86.ACMPL, signedSet
	case ir.SignedTypeInt64:
		cmp, set = x86.ACMPQ, signedSet
	case ir.SignedTypeUint32:
		cmp, set = x86.ACMPL, unsignedSet
	case ir.SignedTypeUint64:
		cmp, set = x86.ACMPQ, unsignedSet
	default:
		return fmt.Errorf("%w: float comparison", ErrUnsupportedOperation)
	}
	return m.emitCompare(cmp, set)
}

// emitCompare pops (y, x), pushes the i32 result of "x cc y".
func (m *machine) emitCompare(cmp, set obj.As) error {
	y, err := m.pop()
	if err != nil {
		return err
	}
	x, err := m.pop()
	if err != nil {
		return err
	}
	p := m.prog(cmp)
	p.From.Type = obj.TYPE_REG
	p.From.Reg = x.reg
	p.To.Type = obj.TYPE_REG
	p.To.Reg = y.reg
	m.add(p)
	m.emitSetcc(set, x.reg)
	m.freeReg(y.reg)
	m.push(ir.TypeI32, x.reg)
	return nil
}

func (m *machine) lowerEqz(typ ir.UnsignedInt) error {
	cmp := x86.ACMPQ
	if typ == ir.UnsignedInt32 {
		cmp = x86.ACMPL
	}
	x, err := m.pop()
	if err != nil {
		return err
	}
	p := m.prog(cmp)
	p.From.Type = obj.TYPE_REG
	p.From.Reg = x.reg
	p.To.Type = obj.TYPE_CONST
	p.To.Offset = 0
	m.add(p)
	m.emitSetcc(x86.ASETEQ, x.reg)
	m.push(ir.TypeI32, x.reg)
	return nil
}

func (m *machine) emitSetcc(set obj.As, dst int16) {
	p := m.prog(set)
	p.To.Type = obj.TYPE_REG
	p.To.Reg = tmpReg
	m.add(p)
	m.emitRegToReg(x86.AMOVBLZX, tmpReg, dst)
}

func (m *machine) lowerFloatUnary(as obj.As) error {
	x, err := m.pop()
	if err != nil {
		return err
	}
	m.emitRegToReg(as, x.reg, x.reg)
	m.push(x.typ, x.reg)
	return nil
}

func (m *machine) lowerIntUnary(resultType ir.Type, as obj.As) error {
	x, err := m.pop()
	if err != nil {
		return err
	}
	m.emitRegToReg(as, x.reg, x.reg)
	m.push(resultType, x.reg)
	return nil
}

func (m *machine) lowerReinterpret(resultType ir.Type, toFloat bool) error {
	x, err := m.pop()
	if err != nil {
		return err
	}
	reg, err := m.allocReg(toFloat)
	if err != nil {
		return err
	}
	m.emitRegToReg(x86.AMOVQ, x.reg, reg)
	m.freeReg(x.reg)
	m.push(resultType, reg)
	return nil
}

// lowerFloatLibCall routes a rounding operation to its runtime intrinsic,
// relocated like any external call.
func (m *machine) lowerFloatLibCall(typ ir.Float, f32, f64 backend.LibCall) error {
	lc := f64
	mov := x86.AMOVSD
	if typ == ir.Float32 {
		lc = f32
		mov = x86.AMOVSS
	}
	x, err := m.pop()
	if err != nil {
		return err
	}
	m.emitRegToReg(mov, x.reg, x86.REG_X0)
	m.freeReg(x.reg)
	m.emitRelocatedCall(backend.ExternalName{Kind: backend.NameKindLibCall, LibCall: lc})
	reg, err := m.allocReg(true)
	if err != nil {
		return err
	}
	m.emitRegToReg(mov, x86.REG_X0, reg)
	m.push(typeForFloat(typ), reg)
	return nil
}

func typeForFloat(f ir.Float) ir.Type {
	if f == ir.Float32 {
		return ir.TypeF32
	}
	return ir.TypeF64
}

// marshalArgs pops Sig's parameters off the value stack into the System V
// argument registers, last parameter first.
func (m *machine) marshalArgs(sig *ir.Signature) error {
	intIdx, floatIdx := 0, 0
	dst := make([]int16, len(sig.Params))
	for i, p := range sig.Params {
		if isFloat(p) {
			if floatIdx >= len(floatArgRegs) {
				return fmt.Errorf("%w: more than %d float arguments", ErrUnsupportedOperation, len(floatArgRegs))
			}
			dst[i] = floatArgRegs[floatIdx]
			floatIdx++
		} else {
			if intIdx >= len(intArgRegs) {
				return fmt.Errorf("%w: more than %d integer arguments", ErrUnsupportedOperation, len(intArgRegs))
			}
			dst[i] = intArgRegs[intIdx]
			intIdx++
		}
	}
	for i := len(sig.Params) - 1; i >= 0; i-- {
		v, err := m.pop()
		if err != nil {
			return err
		}
		as := x86.AMOVQ
		if isFloat(v.typ) {
			as = x86.AMOVSD
		}
		m.emitRegToReg(as, v.reg, dst[i])
		m.freeReg(v.reg)
	}
	return nil
}

// takeResult moves a single call result out of its return register into a
// pool register.
func (m *machine) takeResult(sig *ir.Signature) error {
	switch len(sig.Results) {
	case 0:
		return nil
	case 1:
	default:
		return fmt.Errorf("%w: multiple results", ErrUnsupportedOperation)
	}
	typ := sig.Results[0]
	reg, err := m.allocReg(isFloat(typ))
	if err != nil {
		return err
	}
	if isFloat(typ) {
		m.emitRegToReg(x86.AMOVQ, x86.REG_X0, reg)
	} else {
		m.emitRegToReg(x86.AMOVQ, x86.REG_AX, reg)
	}
	m.push(typ, reg)
	return nil
}

func (m *machine) lowerPointerLoad(typ ir.Type, offset uint32) error {
	addr, err := m.pop()
	if err != nil {
		return err
	}
	var as obj.As
	dst := addr.reg
	switch typ {
	case ir.TypeI32:
		as = x86.AMOVL
	case ir.TypeI64:
		as = x86.AMOVQ
	case ir.TypeF32, ir.TypeF64:
		as = x86.AMOVSD
		if typ == ir.TypeF32 {
			as = x86.AMOVSS
		}
		dst, err = m.allocReg(true)
		if err != nil {
			return err
		}
	}
	p := m.prog(as)
	p.From.Type = obj.TYPE_MEM
	p.From.Reg = addr.reg
	p.From.Offset = int64(offset)
	p.To.Type = obj.TYPE_REG
	p.To.Reg = dst
	m.add(p)
	if dst != addr.reg {
		m.freeReg(addr.reg)
	}
	m.push(typ, dst)
	return nil
}

func (m *machine) lowerPointerStore(typ ir.Type, offset uint32) error {
	v, err := m.pop()
	if err != nil {
		return err
	}
	addr, err := m.pop()
	if err != nil {
		return err
	}
	var as obj.As
	switch typ {
	case ir.TypeI32:
		as = x86.AMOVL
	case ir.TypeI64:
		as = x86.AMOVQ
	case ir.TypeF32:
		as = x86.AMOVSS
	default:
		as = x86.AMOVSD
	}
	p := m.prog(as)
	p.From.Type = obj.TYPE_REG
	p.From.Reg = v.reg
	p.To.Type = obj.TYPE_MEM
	p.To.Reg = addr.reg
	p.To.Offset = int64(offset)
	m.add(p)
	m.freeReg(v.reg)
	m.freeReg(addr.reg)
	return nil
}
