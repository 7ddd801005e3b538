// Package frontend translates one WebAssembly function body at a time into
// the backend-neutral IR. It assumes the module has already been validated
// upstream: structural errors are still detected and reported, but semantic
// validation is not repeated here.
package frontend

import (
	"errors"
	"fmt"

	"github.com/cruciblelabs/crucible/ir"
	"github.com/cruciblelabs/crucible/internal/leb128"
	"github.com/cruciblelabs/crucible/wasm"
)

// ErrUnsupported is wrapped into errors for well-formed instructions outside
// the supported opcode surface.
var ErrUnsupported = errors.New("unsupported instruction")

// LowerFunctionType lowers a module signature into its IR form.
func LowerFunctionType(ft *wasm.FunctionType) *ir.Signature {
	sig := &ir.Signature{
		Params:  make([]ir.Type, len(ft.Params)),
		Results: make([]ir.Type, len(ft.Results)),
	}
	for i, t := range ft.Params {
		sig.Params[i] = LowerValueType(t)
	}
	for i, t := range ft.Results {
		sig.Results[i] = LowerValueType(t)
	}
	return sig
}

// LowerValueType lowers one value type.
func LowerValueType(t wasm.ValueType) ir.Type {
	switch t {
	case wasm.ValueTypeI32:
		return ir.TypeI32
	case wasm.ValueTypeI64:
		return ir.TypeI64
	case wasm.ValueTypeF32:
		return ir.TypeF32
	case wasm.ValueTypeF64:
		return ir.TypeF64
	}
	panic(fmt.Sprintf("invalid value type %#x", byte(t)))
}

type controlFrameKind byte

const (
	controlFrameKindFunction controlFrameKind = iota
	controlFrameKindBlock
	controlFrameKindLoop
	controlFrameKindIfWithoutElse
	controlFrameKindIfWithElse
)

type controlFrame struct {
	frameID          uint32
	kind             controlFrameKind
	originalStackLen int
	blockType        *ir.Signature
}

// branchTarget returns where a br to this frame lands: loop headers branch
// back, every other frame branches to its continuation, and the function
// frame is a return.
func (c *controlFrame) branchTarget() *ir.BranchTarget {
	switch c.kind {
	case controlFrameKindFunction:
		return &ir.BranchTarget{}
	case controlFrameKindLoop:
		return &ir.BranchTarget{Label: &ir.Label{FrameID: c.frameID, Kind: ir.LabelKindHeader}}
	default:
		return &ir.BranchTarget{Label: &ir.Label{FrameID: c.frameID, Kind: ir.LabelKindContinuation}}
	}
}

// Translator converts function bodies to IR. It is scratch state owned by
// one worker and reused across the functions that worker is assigned;
// Reset between functions keeps the allocations.
type Translator struct {
	stack  []ir.Type
	frames []controlFrame
	locals []ir.Type

	nextFrameID uint32

	// unreachableDepth tracks nesting while skipping dead code after an
	// unconditional transfer; no operations are emitted in that state.
	unreachable      bool
	unreachableDepth int
}

// NewTranslator returns a fresh Translator.
func NewTranslator() *Translator {
	return &Translator{}
}

// Reset prepares the Translator for the next function body.
func (t *Translator) Reset() {
	t.stack = t.stack[:0]
	t.frames = t.frames[:0]
	t.locals = t.locals[:0]
	t.nextFrameID = 0
	t.unreachable = false
	t.unreachableDepth = 0
}

// Translate decodes one function body from r into fn, which must already
// carry its name and signature. module and sigs are read-only shared state.
func (t *Translator) Translate(module *wasm.ModuleInfo, sigs []*ir.Signature, r wasm.CodeReader, fn *ir.Func) error {
	t.Reset()

	if err := t.readLocals(r, fn); err != nil {
		return err
	}

	// Parameters occupy the first local slots.
	for _, p := range fn.Signature.Params {
		t.locals = append(t.locals, p)
	}
	t.locals = append(t.locals, fn.Locals...)

	t.frames = append(t.frames, controlFrame{
		kind:      controlFrameKindFunction,
		blockType: fn.Signature,
	})

	for len(t.frames) > 0 {
		pos := r.CurrentOffset()
		op, err := r.ReadByte()
		if err != nil {
			return fmt.Errorf("read opcode: %w", err)
		}
		if err := t.translateOpcode(module, sigs, r, fn, pos, op); err != nil {
			return fmt.Errorf("instruction %#x at offset %#x: %w", op, pos, err)
		}
	}
	return nil
}

func (t *Translator) readLocals(r wasm.CodeReader, fn *ir.Func) error {
	groups, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return fmt.Errorf("read local group count: %w", err)
	}
	for i := uint32(0); i < groups; i++ {
		n, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return fmt.Errorf("read local count: %w", err)
		}
		b, err := r.ReadByte()
		if err != nil {
			return fmt.Errorf("read local type: %w", err)
		}
		vt, err := valueType(b)
		if err != nil {
			return err
		}
		for j := uint32(0); j < n; j++ {
			fn.Locals = append(fn.Locals, vt)
		}
	}
	return nil
}

func valueType(b byte) (ir.Type, error) {
	switch wasm.ValueType(b) {
	case wasm.ValueTypeI32, wasm.ValueTypeI64, wasm.ValueTypeF32, wasm.ValueTypeF64:
		return LowerValueType(wasm.ValueType(b)), nil
	}
	return 0, fmt.Errorf("invalid value type %#x", b)
}

func (t *Translator) readBlockType(sigs []*ir.Signature, r wasm.CodeReader) (*ir.Signature, error) {
	raw, _, err := leb128.DecodeInt33AsInt64(r)
	if err != nil {
		return nil, fmt.Errorf("read block type: %w", err)
	}
	switch raw {
	case -64: // 0x40: no results
		return &ir.Signature{}, nil
	case -1: // i32
		return &ir.Signature{Results: []ir.Type{ir.TypeI32}}, nil
	case -2: // i64
		return &ir.Signature{Results: []ir.Type{ir.TypeI64}}, nil
	case -3: // f32
		return &ir.Signature{Results: []ir.Type{ir.TypeF32}}, nil
	case -4: // f64
		return &ir.Signature{Results: []ir.Type{ir.TypeF64}}, nil
	default:
		if raw < 0 || raw >= int64(len(sigs)) {
			return nil, fmt.Errorf("invalid block type %d", raw)
		}
		return sigs[raw], nil
	}
}

func (t *Translator) push(types ...ir.Type) {
	t.stack = append(t.stack, types...)
}

func (t *Translator) pop() (ir.Type, error) {
	if len(t.stack) == 0 {
		return 0, errors.New("value stack underflow")
	}
	v := t.stack[len(t.stack)-1]
	t.stack = t.stack[:len(t.stack)-1]
	return v, nil
}

func (t *Translator) popN(n int) error {
	if len(t.stack) < n {
		return errors.New("value stack underflow")
	}
	t.stack = t.stack[:len(t.stack)-n]
	return nil
}

// frameBase returns the stack length an entered frame restores to. Block
// parameters must already be on the stack when the frame opens.
func (t *Translator) frameBase(bt *ir.Signature) (int, error) {
	if len(t.stack) < len(bt.Params) {
		return 0, fmt.Errorf("block type takes %d parameters but stack holds %d", len(bt.Params), len(t.stack))
	}
	return len(t.stack) - len(bt.Params), nil
}

func (t *Translator) frameAt(depth uint32) (*controlFrame, error) {
	if int(depth) >= len(t.frames) {
		return nil, fmt.Errorf("branch depth %d exceeds nesting %d", depth, len(t.frames))
	}
	return &t.frames[len(t.frames)-1-int(depth)], nil
}

func (t *Translator) nextID() uint32 {
	t.nextFrameID++
	return t.nextFrameID
}
