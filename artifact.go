package crucible

import (
	"fmt"

	"github.com/cruciblelabs/crucible/backend"
	"github.com/cruciblelabs/crucible/wasm"
)

// SectionIndex identifies a custom section within a Compilation, dense and
// zero-based in section emission order.
type SectionIndex uint32

// FunctionBodyData is one validated function body as sliced out of the
// module binary. Bytes is borrowed from the caller and never mutated;
// ModuleOffset is the offset of its first byte in the module binary.
type FunctionBodyData struct {
	Bytes        []byte
	ModuleOffset uint32
}

// FunctionBody is position-independent machine code plus its unwind
// description.
type FunctionBody struct {
	Code []byte
	// Unwind is nil when the target records no unwind information for
	// this body.
	Unwind UnwindInfo
}

// UnwindInfo is the portable unwind variant attached to a compiled body.
// Exactly one of the implementations applies; nil means absent.
type UnwindInfo interface {
	unwindInfo()
}

// UnwindDwarf marks a body whose frame is described by an FDE in the
// module's shared eh_frame section.
type UnwindDwarf struct{}

// UnwindWindowsX64 carries self-contained Windows x64 UNWIND_INFO bytes.
type UnwindWindowsX64 struct {
	Data []byte
}

func (*UnwindDwarf) unwindInfo() {}

func (*UnwindWindowsX64) unwindInfo() {}

// RelocationKind is a portable relocation kind.
type RelocationKind byte

const (
	// RelocationAbs8 is a 64-bit absolute address.
	RelocationAbs8 RelocationKind = iota
	// RelocationX86CallPCRel4 is a 32-bit PC-relative x86 call displacement.
	RelocationX86CallPCRel4
	// RelocationArm64Call is an AArch64 call26 displacement.
	RelocationArm64Call
)

func (k RelocationKind) String() string {
	switch k {
	case RelocationAbs8:
		return "abs8"
	case RelocationX86CallPCRel4:
		return "x86_call_pcrel4"
	case RelocationArm64Call:
		return "arm64_call"
	}
	return "unknown"
}

// RelocationTargetKind discriminates RelocationTarget.
type RelocationTargetKind byte

const (
	// RelocationTargetLocalFunc resolves to a function defined in this
	// module, by local function index.
	RelocationTargetLocalFunc RelocationTargetKind = iota
	// RelocationTargetLibCall resolves to a runtime intrinsic.
	RelocationTargetLibCall
)

// RelocationTarget is the closed set of symbols a portable relocation may
// reference. Imports are never valid targets: calls to imports go through
// indirection the runtime owns.
type RelocationTarget struct {
	Kind RelocationTargetKind
	// LocalFunc is valid when Kind is RelocationTargetLocalFunc.
	LocalFunc wasm.LocalFunctionIndex
	// LibCall is valid when Kind is RelocationTargetLibCall.
	LibCall backend.LibCall
}

func (t RelocationTarget) String() string {
	switch t.Kind {
	case RelocationTargetLocalFunc:
		return fmt.Sprintf("local_func[%d]", t.LocalFunc)
	case RelocationTargetLibCall:
		return "libcall." + t.LibCall.String()
	}
	return "unknown"
}

// Relocation is one patch the loader must apply to a body or section.
type Relocation struct {
	Kind   RelocationKind
	Target RelocationTarget
	// Offset of the patched field from the start of the containing body
	// or section.
	Offset uint32
	Addend int64
}

// TrapCode is the portable reason attached to a possibly-faulting code site.
type TrapCode byte

const (
	TrapCodeStackOverflow TrapCode = iota
	TrapCodeHeapAccessOutOfBounds
	TrapCodeHeapMisaligned
	TrapCodeTableAccessOutOfBounds
	TrapCodeIndirectCallToNull
	TrapCodeBadSignature
	TrapCodeIntegerOverflow
	TrapCodeIntegerDivisionByZero
	TrapCodeBadConversionToInteger
	TrapCodeUnreachableCodeReached
)

func (c TrapCode) String() string {
	switch c {
	case TrapCodeStackOverflow:
		return "stack_overflow"
	case TrapCodeHeapAccessOutOfBounds:
		return "heap_access_oob"
	case TrapCodeHeapMisaligned:
		return "heap_misaligned"
	case TrapCodeTableAccessOutOfBounds:
		return "table_access_oob"
	case TrapCodeIndirectCallToNull:
		return "indirect_call_to_null"
	case TrapCodeBadSignature:
		return "bad_signature"
	case TrapCodeIntegerOverflow:
		return "integer_overflow"
	case TrapCodeIntegerDivisionByZero:
		return "integer_division_by_zero"
	case TrapCodeBadConversionToInteger:
		return "bad_conversion_to_integer"
	case TrapCodeUnreachableCodeReached:
		return "unreachable"
	}
	return "unknown"
}

// TrapInformation locates one trap site within a compiled body.
type TrapInformation struct {
	// CodeOffset of the faulting instruction from the start of the body.
	CodeOffset uint32
	Code       TrapCode
}

// InstructionAddressMap maps one machine-code offset back to the module
// offset of the instruction it was generated from.
type InstructionAddressMap struct {
	SrcOffset  uint32
	CodeOffset uint32
}

// FunctionAddressMap is the per-function source map: instruction entries in
// ascending code order plus the module-offset range of the body.
type FunctionAddressMap struct {
	Instructions   []InstructionAddressMap
	StartSrcOffset uint32
	EndSrcOffset   uint32
	// BodyLen is the machine code length, so the last instruction entry
	// has a well-defined extent.
	BodyLen uint32
}

// CompiledFunction is the full per-function compilation result.
type CompiledFunction struct {
	Body        FunctionBody
	Relocations []Relocation
	Traps       []TrapInformation
	AddressMap  FunctionAddressMap
}

// CustomSection is an out-of-band byte blob the loader places alongside the
// code, with its own relocations (the unwind table's FDE address slots).
type CustomSection struct {
	Bytes       []byte
	Relocations []Relocation
}

// Dwarf points at the custom section holding the module's eh_frame table.
type Dwarf struct {
	Section SectionIndex
}

// Compilation is the complete result of compiling one module's functions.
//
// Every slice is dense: Functions by local function index, CallTrampolines
// by signature index, DynamicTrampolines by import index, CustomSections by
// SectionIndex.
type Compilation struct {
	Functions          []CompiledFunction
	CustomSections     []CustomSection
	CallTrampolines    []FunctionBody
	DynamicTrampolines []FunctionBody
	// Dwarf is non-nil exactly when a table-based unwind section was
	// emitted, and names it.
	Dwarf *Dwarf
}
