package frontend

import (
	"fmt"
	"io"
	"math"

	"github.com/cruciblelabs/crucible/ir"
	"github.com/cruciblelabs/crucible/internal/leb128"
	"github.com/cruciblelabs/crucible/wasm"
)

// Opcodes of the supported surface. Everything else reports ErrUnsupported.
const (
	opUnreachable  = 0x00
	opNop          = 0x01
	opBlock        = 0x02
	opLoop         = 0x03
	opIf           = 0x04
	opElse         = 0x05
	opEnd          = 0x0b
	opBr           = 0x0c
	opBrIf         = 0x0d
	opBrTable      = 0x0e
	opReturn       = 0x0f
	opCall         = 0x10
	opCallIndirect = 0x11
	opDrop         = 0x1a
	opSelect       = 0x1b
	opLocalGet     = 0x20
	opLocalSet     = 0x21
	opLocalTee     = 0x22
	opGlobalGet    = 0x23
	opGlobalSet    = 0x24
	opMemorySize   = 0x3f
	opMemoryGrow   = 0x40
	opI32Const     = 0x41
	opI64Const     = 0x42
	opF32Const     = 0x43
	opF64Const     = 0x44
)

func (t *Translator) translateOpcode(module *wasm.ModuleInfo, sigs []*ir.Signature, r wasm.CodeReader, fn *ir.Func, pos uint32, op byte) error {
	if t.unreachable {
		return t.skipDeadCode(sigs, r, fn, pos, op)
	}

	switch op {
	case opUnreachable:
		fn.Emit(pos, &ir.OperationUnreachable{})
		t.enterUnreachable()
	case opNop:
	case opBlock:
		bt, err := t.readBlockType(sigs, r)
		if err != nil {
			return err
		}
		base, err := t.frameBase(bt)
		if err != nil {
			return err
		}
		t.frames = append(t.frames, controlFrame{
			frameID:          t.nextID(),
			kind:             controlFrameKindBlock,
			originalStackLen: base,
			blockType:        bt,
		})
	case opLoop:
		bt, err := t.readBlockType(sigs, r)
		if err != nil {
			return err
		}
		base, err := t.frameBase(bt)
		if err != nil {
			return err
		}
		frame := controlFrame{
			frameID:          t.nextID(),
			kind:             controlFrameKindLoop,
			originalStackLen: base,
			blockType:        bt,
		}
		t.frames = append(t.frames, frame)
		fn.Emit(pos, &ir.OperationLabel{Label: &ir.Label{FrameID: frame.frameID, Kind: ir.LabelKindHeader}})
	case opIf:
		bt, err := t.readBlockType(sigs, r)
		if err != nil {
			return err
		}
		if _, err := t.pop(); err != nil { // condition
			return err
		}
		base, err := t.frameBase(bt)
		if err != nil {
			return err
		}
		frame := controlFrame{
			frameID:          t.nextID(),
			kind:             controlFrameKindIfWithoutElse,
			originalStackLen: base,
			blockType:        bt,
		}
		t.frames = append(t.frames, frame)
		thenLabel := &ir.Label{FrameID: frame.frameID, Kind: ir.LabelKindHeader}
		elseLabel := &ir.Label{FrameID: frame.frameID, Kind: ir.LabelKindElse}
		fn.Emit(pos, &ir.OperationBrIf{
			Then: &ir.BranchTarget{Label: thenLabel},
			Else: &ir.BranchTarget{Label: elseLabel},
		})
		fn.Emit(pos, &ir.OperationLabel{Label: thenLabel})
	case opElse:
		frame := &t.frames[len(t.frames)-1]
		if frame.kind != controlFrameKindIfWithoutElse {
			return fmt.Errorf("else outside if")
		}
		frame.kind = controlFrameKindIfWithElse
		// The then arm falls through to the continuation; the else arm
		// begins at the else label the if's branch referenced.
		fn.Emit(pos, &ir.OperationBr{Target: &ir.BranchTarget{Label: &ir.Label{FrameID: frame.frameID, Kind: ir.LabelKindContinuation}}})
		fn.Emit(pos, &ir.OperationLabel{Label: &ir.Label{FrameID: frame.frameID, Kind: ir.LabelKindElse}})
		t.stack = t.stack[:frame.originalStackLen]
		t.push(frame.blockType.Params...)
	case opEnd:
		t.endFrame(fn, pos)
	case opBr:
		depth, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return fmt.Errorf("read br depth: %w", err)
		}
		frame, err := t.frameAt(depth)
		if err != nil {
			return err
		}
		fn.Emit(pos, &ir.OperationBr{Target: frame.branchTarget()})
		t.enterUnreachable()
	case opBrIf:
		depth, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return fmt.Errorf("read br_if depth: %w", err)
		}
		frame, err := t.frameAt(depth)
		if err != nil {
			return err
		}
		if _, err := t.pop(); err != nil { // condition
			return err
		}
		fallthroughLabel := &ir.Label{FrameID: t.nextID(), Kind: ir.LabelKindHeader}
		fn.Emit(pos, &ir.OperationBrIf{
			Then: frame.branchTarget(),
			Else: &ir.BranchTarget{Label: fallthroughLabel},
		})
		fn.Emit(pos, &ir.OperationLabel{Label: fallthroughLabel})
	case opBrTable:
		return fmt.Errorf("%w: br_table", ErrUnsupported)
	case opReturn:
		fn.Emit(pos, &ir.OperationBr{Target: &ir.BranchTarget{}})
		t.enterUnreachable()
	case opCall:
		index, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return fmt.Errorf("read call target: %w", err)
		}
		if int(index) >= len(module.Functions) {
			return fmt.Errorf("call target %d out of range", index)
		}
		sig := module.SignatureOf(wasm.FunctionIndex(index))
		if err := t.popN(len(sig.Params)); err != nil {
			return err
		}
		for _, res := range sig.Results {
			t.push(LowerValueType(res))
		}
		fn.Emit(pos, &ir.OperationCall{FunctionIndex: index, Sig: LowerFunctionType(sig)})
	case opCallIndirect:
		typeIndex, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return fmt.Errorf("read call_indirect type: %w", err)
		}
		tableIndex, err := r.ReadByte()
		if err != nil {
			return fmt.Errorf("read call_indirect table: %w", err)
		}
		if int(typeIndex) >= len(module.Signatures) {
			return fmt.Errorf("call_indirect type %d out of range", typeIndex)
		}
		if _, err := t.pop(); err != nil { // element index
			return err
		}
		sig := module.Signatures[typeIndex]
		if err := t.popN(len(sig.Params)); err != nil {
			return err
		}
		for _, res := range sig.Results {
			t.push(LowerValueType(res))
		}
		fn.Emit(pos, &ir.OperationCallIndirect{TypeIndex: typeIndex, TableIndex: uint32(tableIndex)})
	case opDrop:
		if _, err := t.pop(); err != nil {
			return err
		}
		fn.Emit(pos, &ir.OperationDrop{})
	case opSelect:
		if _, err := t.pop(); err != nil { // condition
			return err
		}
		v, err := t.pop()
		if err != nil {
			return err
		}
		if _, err := t.pop(); err != nil {
			return err
		}
		t.push(v)
		fn.Emit(pos, &ir.OperationSelect{})
	case opLocalGet:
		index, err := t.localIndex(r)
		if err != nil {
			return err
		}
		t.push(t.locals[index])
		fn.Emit(pos, &ir.OperationLocalGet{Index: index})
	case opLocalSet:
		index, err := t.localIndex(r)
		if err != nil {
			return err
		}
		if _, err := t.pop(); err != nil {
			return err
		}
		fn.Emit(pos, &ir.OperationLocalSet{Index: index})
	case opLocalTee:
		index, err := t.localIndex(r)
		if err != nil {
			return err
		}
		if _, err := t.pop(); err != nil {
			return err
		}
		t.push(t.locals[index])
		fn.Emit(pos, &ir.OperationLocalTee{Index: index})
	case opGlobalGet:
		index, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return fmt.Errorf("read global index: %w", err)
		}
		if int(index) >= len(module.Globals) {
			return fmt.Errorf("global %d out of range", index)
		}
		t.push(LowerValueType(module.Globals[index].Type))
		fn.Emit(pos, &ir.OperationGlobalGet{Index: index})
	case opGlobalSet:
		index, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return fmt.Errorf("read global index: %w", err)
		}
		if int(index) >= len(module.Globals) {
			return fmt.Errorf("global %d out of range", index)
		}
		if _, err := t.pop(); err != nil {
			return err
		}
		fn.Emit(pos, &ir.OperationGlobalSet{Index: index})
	case opMemorySize:
		if err := expectZeroByte(r, "memory.size"); err != nil {
			return err
		}
		t.push(ir.TypeI32)
		fn.Emit(pos, &ir.OperationMemorySize{})
	case opMemoryGrow:
		if err := expectZeroByte(r, "memory.grow"); err != nil {
			return err
		}
		if _, err := t.pop(); err != nil {
			return err
		}
		t.push(ir.TypeI32)
		fn.Emit(pos, &ir.OperationMemoryGrow{})
	case opI32Const:
		v, _, err := leb128.DecodeInt32(r)
		if err != nil {
			return fmt.Errorf("read i32.const: %w", err)
		}
		t.push(ir.TypeI32)
		fn.Emit(pos, &ir.OperationConstI32{Value: uint32(v)})
	case opI64Const:
		v, _, err := leb128.DecodeInt64(r)
		if err != nil {
			return fmt.Errorf("read i64.const: %w", err)
		}
		t.push(ir.TypeI64)
		fn.Emit(pos, &ir.OperationConstI64{Value: uint64(v)})
	case opF32Const:
		v, err := readF32(r)
		if err != nil {
			return err
		}
		t.push(ir.TypeF32)
		fn.Emit(pos, &ir.OperationConstF32{Value: v})
	case opF64Const:
		v, err := readF64(r)
		if err != nil {
			return err
		}
		t.push(ir.TypeF64)
		fn.Emit(pos, &ir.OperationConstF64{Value: v})
	default:
		if op >= 0x28 && op <= 0x3e {
			return t.translateMemoryAccess(r, fn, pos, op)
		}
		if op >= 0x45 && op <= 0xbf {
			return t.translateNumeric(fn, pos, op)
		}
		return fmt.Errorf("%w: opcode %#x", ErrUnsupported, op)
	}
	return nil
}

func (t *Translator) localIndex(r wasm.CodeReader) (uint32, error) {
	index, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return 0, fmt.Errorf("read local index: %w", err)
	}
	if int(index) >= len(t.locals) {
		return 0, fmt.Errorf("local %d out of range", index)
	}
	return index, nil
}

// endFrame closes the innermost control frame, emitting the labels branches
// into it referenced and restoring the value stack to the frame's results.
func (t *Translator) endFrame(fn *ir.Func, pos uint32) {
	frame := t.frames[len(t.frames)-1]
	t.frames = t.frames[:len(t.frames)-1]

	if frame.kind == controlFrameKindFunction {
		fn.Emit(pos, &ir.OperationBr{Target: &ir.BranchTarget{}})
		return
	}
	if frame.kind == controlFrameKindIfWithoutElse {
		// The else label was referenced by the if's branch; with no else
		// arm it lands directly on the continuation.
		fn.Emit(pos, &ir.OperationLabel{Label: &ir.Label{FrameID: frame.frameID, Kind: ir.LabelKindElse}})
	}
	fn.Emit(pos, &ir.OperationLabel{Label: &ir.Label{FrameID: frame.frameID, Kind: ir.LabelKindContinuation}})
	t.stack = t.stack[:frame.originalStackLen]
	t.push(frame.blockType.Results...)
}

func (t *Translator) enterUnreachable() {
	t.unreachable = true
	t.unreachableDepth = 0
}

// skipDeadCode consumes instructions after an unconditional transfer without
// emitting, tracking nesting until control flow becomes live again.
func (t *Translator) skipDeadCode(sigs []*ir.Signature, r wasm.CodeReader, fn *ir.Func, pos uint32, op byte) error {
	switch op {
	case opBlock, opLoop, opIf:
		if _, err := t.readBlockType(sigs, r); err != nil {
			return err
		}
		t.unreachableDepth++
		return nil
	case opElse:
		if t.unreachableDepth == 0 {
			frame := &t.frames[len(t.frames)-1]
			if frame.kind != controlFrameKindIfWithoutElse {
				return fmt.Errorf("else outside if")
			}
			frame.kind = controlFrameKindIfWithElse
			t.unreachable = false
			fn.Emit(pos, &ir.OperationLabel{Label: &ir.Label{FrameID: frame.frameID, Kind: ir.LabelKindElse}})
			t.stack = t.stack[:frame.originalStackLen]
			t.push(frame.blockType.Params...)
		}
		return nil
	case opEnd:
		if t.unreachableDepth > 0 {
			t.unreachableDepth--
			return nil
		}
		t.unreachable = false
		// The stack below the frame is intact; endFrame restores the
		// frame's result types.
		t.endFrame(fn, pos)
		return nil
	default:
		return skipImmediates(r, op)
	}
}

// skipImmediates consumes the immediates of one dead instruction.
func skipImmediates(r wasm.CodeReader, op byte) error {
	var err error
	switch {
	case op == opBr || op == opBrIf || op == opCall ||
		(op >= opLocalGet && op <= opGlobalSet):
		_, _, err = leb128.DecodeUint32(r)
	case op == opBrTable:
		count, _, derr := leb128.DecodeUint32(r)
		if derr != nil {
			return derr
		}
		for i := uint32(0); i <= count; i++ {
			if _, _, err = leb128.DecodeUint32(r); err != nil {
				return err
			}
		}
	case op == opCallIndirect:
		if _, _, err = leb128.DecodeUint32(r); err != nil {
			return err
		}
		_, err = r.ReadByte()
	case op >= 0x28 && op <= 0x3e: // memory accesses: align + offset
		if _, _, err = leb128.DecodeUint32(r); err != nil {
			return err
		}
		_, _, err = leb128.DecodeUint32(r)
	case op == opMemorySize || op == opMemoryGrow:
		_, err = r.ReadByte()
	case op == opI32Const:
		_, _, err = leb128.DecodeInt32(r)
	case op == opI64Const:
		_, _, err = leb128.DecodeInt64(r)
	case op == opF32Const:
		_, err = readF32(r)
	case op == opF64Const:
		_, err = readF64(r)
	}
	return err
}

func expectZeroByte(r wasm.CodeReader, what string) error {
	b, err := r.ReadByte()
	if err != nil {
		return fmt.Errorf("read %s immediate: %w", what, err)
	}
	if b != 0 {
		return fmt.Errorf("invalid %s immediate %#x", what, b)
	}
	return nil
}

func readF32(r io.Reader) (float32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("read f32.const: %w", err)
	}
	v := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	return math.Float32frombits(v), nil
}

func readF64(r io.Reader) (float64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("read f64.const: %w", err)
	}
	var v uint64
	for i, bb := range b {
		v |= uint64(bb) << (8 * i)
	}
	return math.Float64frombits(v), nil
}
