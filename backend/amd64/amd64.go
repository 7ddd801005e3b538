// Package amd64 is the reference code-generation backend for x86-64. It
// lowers the straight-line subset of the IR (everything the trampoline
// builders emit, plus simple function bodies) into position-independent
// machine code via the golang-asm assembler.
//
// Call targets are never resolved here: direct calls load a zero 64-bit
// immediate that is reported as an absolute relocation against the callee's
// symbolic name, and the loader patches it.
package amd64

import (
	"errors"
	"fmt"

	asm "github.com/twitchyliquid64/golang-asm"
	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"

	"github.com/cruciblelabs/crucible/backend"
	"github.com/cruciblelabs/crucible/ir"
)

// ErrUnsupportedOperation is wrapped into errors for IR operations outside
// the subset this backend lowers.
var ErrUnsupportedOperation = errors.New("amd64: unsupported operation")

type amd64Backend struct {
	isa backend.ISA
}

// NewBackend returns a Backend generating x86-64 code with the given calling
// convention.
func NewBackend(callConv backend.CallConv) backend.Backend {
	return &amd64Backend{isa: backend.ISA{
		Arch:         backend.ArchAMD64,
		CallConv:     callConv,
		PointerBytes: 8,
	}}
}

func (b *amd64Backend) ISA() *backend.ISA { return &b.isa }

func (b *amd64Backend) NewMachine() (backend.Machine, error) {
	m := &machine{isa: &b.isa}
	if err := m.newBuilder(); err != nil {
		return nil, err
	}
	return m, nil
}

// System V AMD64 argument registers.
var (
	intArgRegs   = []int16{x86.REG_DI, x86.REG_SI, x86.REG_DX, x86.REG_CX, x86.REG_R8, x86.REG_R9}
	floatArgRegs = []int16{x86.REG_X0, x86.REG_X1, x86.REG_X2, x86.REG_X3, x86.REG_X4, x86.REG_X5, x86.REG_X6, x86.REG_X7}

	// Value-stack pools. Integers live in callee-saved registers so they
	// survive calls without spilling; the float pool is caller-saved, so
	// floats must not be live across a call (the supported IR subset
	// never needs that).
	intPoolRegs   = []int16{x86.REG_BX, x86.REG_R12, x86.REG_R13, x86.REG_R14, x86.REG_R15}
	floatPoolRegs = []int16{x86.REG_X8, x86.REG_X9, x86.REG_X10, x86.REG_X11, x86.REG_X12, x86.REG_X13}
)

// tmpReg is the scratch register for relocated addresses and moves. Not an
// argument register, so it is safe through call setup.
const tmpReg = x86.REG_R11

// savedRegsBytes is the space the prologue's pool-register pushes occupy
// below rbp.
const savedRegsBytes = int32(40) // rbx, r12..r15

type valueLoc struct {
	typ ir.Type
	reg int16
}

func isFloat(t ir.Type) bool { return t == ir.TypeF32 || t == ir.TypeF64 }

// machine is the per-worker scratch context. Owned by one worker, reused
// across functions via Reset.
type machine struct {
	isa     *backend.ISA
	builder *asm.Builder

	stack   []valueLoc
	regUsed map[int16]bool

	// frame layout, fixed before emission by scanning the function.
	localCount  int
	frameSize   int32
	allocCursor int32

	// relocSites records 64-bit immediates to patch: the Prog of the MOVQ
	// plus the symbolic name.
	relocSites []relocSite
	// trapSites records possibly-faulting instructions.
	trapSites []trapSite
	// opStarts maps each lowered IR operation to its first Prog, for the
	// source-location table.
	opStarts []opStart

	prologuePushBP *obj.Prog
	prologueMovBP  *obj.Prog
	afterPrologue  *obj.Prog
}

type relocSite struct {
	prog *obj.Prog
	name backend.ExternalName
}

type trapSite struct {
	prog *obj.Prog
	code backend.TrapKind
}

type opStart struct {
	prog      *obj.Prog
	srcOffset uint32
}

func (m *machine) newBuilder() error {
	b, err := asm.NewBuilder("amd64", 1024)
	if err != nil {
		return fmt.Errorf("amd64: create assembly builder: %w", err)
	}
	m.builder = b
	return nil
}

// Reset implements backend.Machine. The assembler builder cannot be reused
// after Assemble, so a fresh one is created; the bookkeeping slices keep
// their capacity.
func (m *machine) Reset() {
	m.builder = nil
	m.stack = m.stack[:0]
	m.regUsed = nil
	m.relocSites = m.relocSites[:0]
	m.trapSites = m.trapSites[:0]
	m.opStarts = m.opStarts[:0]
	m.localCount = 0
	m.frameSize = 0
	m.allocCursor = 0
	m.prologuePushBP = nil
	m.prologueMovBP = nil
	m.afterPrologue = nil
}

// Compile implements backend.Machine.
func (m *machine) Compile(fn *ir.Func) (*backend.CompiledCode, error) {
	if m.builder == nil {
		if err := m.newBuilder(); err != nil {
			return nil, err
		}
	}
	defer m.Reset()

	if len(fn.Signature.Results) > 1 {
		return nil, fmt.Errorf("%w: multiple results", ErrUnsupportedOperation)
	}
	m.regUsed = map[int16]bool{}

	if err := m.layoutFrame(fn); err != nil {
		return nil, err
	}
	m.emitPrologue()
	if err := m.spillParams(fn); err != nil {
		return nil, err
	}

	for i, op := range fn.Ops {
		marker := m.prog(obj.ANOP)
		m.add(marker)
		m.opStarts = append(m.opStarts, opStart{prog: marker, srcOffset: fn.Positions[i]})
		if err := m.lower(fn, op); err != nil {
			return nil, fmt.Errorf("operation %d (%s): %w", i, op, err)
		}
	}

	code := m.builder.Assemble()
	return m.finish(code)
}

// layoutFrame sizes the stack frame: one 8-byte slot per local (parameters
// included) plus every stack_alloc reservation, 16-byte aligned such that
// rsp is call-aligned at call sites.
func (m *machine) layoutFrame(fn *ir.Func) error {
	m.localCount = len(fn.Signature.Params) + len(fn.Locals)
	raw := int32(m.localCount) * 8
	for _, op := range fn.Ops {
		if alloc, ok := op.(*ir.OperationStackAlloc); ok {
			raw += int32((alloc.Size + 7) &^ 7)
		}
	}
	// After the return address, rbp push and the saved pool registers the
	// stack is 8 modulo 16; the frame padding restores call alignment.
	m.frameSize = (raw+15)&^15 + 8
	m.allocCursor = savedRegsBytes + int32(m.localCount)*8
	return nil
}

// localOffset returns the rbp-relative offset of local slot i.
func (m *machine) localOffset(i int) int32 {
	return -(savedRegsBytes + int32(i+1)*8)
}

func (m *machine) emitPrologue() {
	push := m.prog(x86.APUSHQ)
	push.From.Type = obj.TYPE_REG
	push.From.Reg = x86.REG_BP
	m.add(push)
	m.prologuePushBP = push

	mov := m.prog(x86.AMOVQ)
	mov.From.Type = obj.TYPE_REG
	mov.From.Reg = x86.REG_SP
	mov.To.Type = obj.TYPE_REG
	mov.To.Reg = x86.REG_BP
	m.add(mov)
	m.prologueMovBP = mov

	for _, r := range intPoolRegs {
		p := m.prog(x86.APUSHQ)
		p.From.Type = obj.TYPE_REG
		p.From.Reg = r
		m.add(p)
		if m.afterPrologue == nil {
			m.afterPrologue = p
		}
	}

	sub := m.prog(x86.ASUBQ)
	sub.From.Type = obj.TYPE_CONST
	sub.From.Offset = int64(m.frameSize)
	sub.To.Type = obj.TYPE_REG
	sub.To.Reg = x86.REG_SP
	m.add(sub)
}

func (m *machine) emitEpilogue(fn *ir.Func) error {
	if len(fn.Signature.Results) == 1 {
		loc, err := m.pop()
		if err != nil {
			return err
		}
		if isFloat(loc.typ) {
			m.emitRegToReg(x86.AMOVQ, loc.reg, x86.REG_X0)
		} else {
			m.emitRegToReg(x86.AMOVQ, loc.reg, x86.REG_AX)
		}
		m.freeReg(loc.reg)
	}

	add := m.prog(x86.AADDQ)
	add.From.Type = obj.TYPE_CONST
	add.From.Offset = int64(m.frameSize)
	add.To.Type = obj.TYPE_REG
	add.To.Reg = x86.REG_SP
	m.add(add)

	for i := len(intPoolRegs) - 1; i >= 0; i-- {
		p := m.prog(x86.APOPQ)
		p.To.Type = obj.TYPE_REG
		p.To.Reg = intPoolRegs[i]
		m.add(p)
	}
	pop := m.prog(x86.APOPQ)
	pop.To.Type = obj.TYPE_REG
	pop.To.Reg = x86.REG_BP
	m.add(pop)

	m.add(m.prog(obj.ARET))
	return nil
}

// spillParams stores the register-passed parameters into their local slots
// so later local.get operations have a stable home to load from.
func (m *machine) spillParams(fn *ir.Func) error {
	intIdx, floatIdx := 0, 0
	for i, p := range fn.Signature.Params {
		var src int16
		if isFloat(p) {
			if floatIdx >= len(floatArgRegs) {
				return fmt.Errorf("%w: more than %d float parameters", ErrUnsupportedOperation, len(floatArgRegs))
			}
			src = floatArgRegs[floatIdx]
			floatIdx++
		} else {
			if intIdx >= len(intArgRegs) {
				return fmt.Errorf("%w: more than %d integer parameters", ErrUnsupportedOperation, len(intArgRegs))
			}
			src = intArgRegs[intIdx]
			intIdx++
		}
		mov := m.prog(x86.AMOVQ)
		mov.From.Type = obj.TYPE_REG
		mov.From.Reg = src
		mov.To.Type = obj.TYPE_MEM
		mov.To.Reg = x86.REG_BP
		mov.To.Offset = int64(m.localOffset(i))
		m.add(mov)
	}
	return nil
}

// finish turns assembler output into the backend result, resolving every
// recorded site to its final code offset.
func (m *machine) finish(code []byte) (*backend.CompiledCode, error) {
	out := &backend.CompiledCode{Code: append([]byte(nil), code...)}

	for _, site := range m.relocSites {
		// Skip the REX prefix and opcode of MOVQ $imm64, reg.
		out.Relocs = append(out.Relocs, backend.MachReloc{
			Offset: uint32(site.prog.Pc) + 2,
			Kind:   backend.RelocAbs8,
			Name:   site.name,
		})
	}
	for _, site := range m.trapSites {
		out.Traps = append(out.Traps, backend.MachTrap{
			Offset: uint32(site.prog.Pc),
			Code:   site.code,
		})
	}
	for _, s := range m.opStarts {
		out.SourceLocs = append(out.SourceLocs, backend.SourceLoc{
			CodeOffset: uint32(s.prog.Pc),
			SrcOffset:  s.srcOffset,
		})
	}
	out.Unwind = m.unwindInfo(uint32(len(code)))
	return out, nil
}

// unwindInfo describes the frame established by emitPrologue in the shape
// the target convention wants.
func (m *machine) unwindInfo(codeLen uint32) backend.UnwindInfo {
	afterPush := uint32(m.prologueMovBP.Pc)
	afterMov := uint32(m.afterPrologue.Pc)
	switch m.isa.CallConv {
	case backend.CallConvSystemV:
		return &backend.UnwindFDE{
			CodeLen: codeLen,
			Ops: []backend.FrameOp{
				{CodeOffset: afterPush, Kind: backend.FrameOpDefCFAOffset, Offset: 16},
				{CodeOffset: afterPush, Kind: backend.FrameOpRegisterAt, Reg: 6, Offset: -16},
				{CodeOffset: afterMov, Kind: backend.FrameOpDefCFARegister, Reg: 6},
			},
		}
	case backend.CallConvWindowsFastcall:
		return &backend.UnwindWindows{Data: windowsUnwindInfo(byte(afterMov))}
	default:
		return nil
	}
}

// windowsUnwindInfo builds the minimal UNWIND_INFO for the push rbp /
// mov rbp,rsp prologue.
func windowsUnwindInfo(prologueSize byte) []byte {
	const (
		uwopPushNonvol = 0
		uwopSetFPReg   = 3
		regRBP         = 5
	)
	return []byte{
		0x01,         // version 1, no flags
		prologueSize, // size of prologue
		0x02,         // unwind code count
		regRBP,       // frame register rbp, offset 0
		prologueSize, uwopSetFPReg << 0, // set frame pointer
		0x01, uwopPushNonvol | regRBP<<4, // push rbp at offset 1
	}
}

// prog allocates a new instruction.
func (m *machine) prog(as obj.As) *obj.Prog {
	p := m.builder.NewProg()
	p.As = as
	return p
}

func (m *machine) add(p *obj.Prog) {
	m.builder.AddInstruction(p)
}

func (m *machine) emitRegToReg(as obj.As, from, to int16) {
	p := m.prog(as)
	p.From.Type = obj.TYPE_REG
	p.From.Reg = from
	p.To.Type = obj.TYPE_REG
	p.To.Reg = to
	m.add(p)
}

// allocReg takes a free register from the pool of the given class.
func (m *machine) allocReg(float bool) (int16, error) {
	pool := intPoolRegs
	if float {
		pool = floatPoolRegs
	}
	for _, r := range pool {
		if !m.regUsed[r] {
			m.regUsed[r] = true
			return r, nil
		}
	}
	return 0, fmt.Errorf("%w: expression too deep for register pool", ErrUnsupportedOperation)
}

func (m *machine) freeReg(r int16) { delete(m.regUsed, r) }

func (m *machine) push(typ ir.Type, reg int16) {
	m.stack = append(m.stack, valueLoc{typ: typ, reg: reg})
}

func (m *machine) pop() (valueLoc, error) {
	if len(m.stack) == 0 {
		return valueLoc{}, fmt.Errorf("%w: value stack underflow", ErrUnsupportedOperation)
	}
	v := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return v, nil
}
