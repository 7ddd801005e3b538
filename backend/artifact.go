package backend

import "fmt"

// RelocKind is a machine-level relocation kind.
type RelocKind byte

const (
	// RelocAbs8 is a 64-bit absolute address.
	RelocAbs8 RelocKind = iota
	// RelocX86CallPCRel4 is a 32-bit PC-relative x86 call displacement.
	RelocX86CallPCRel4
	// RelocArm64Call is an AArch64 call26 displacement.
	RelocArm64Call
)

func (k RelocKind) String() string {
	switch k {
	case RelocAbs8:
		return "abs8"
	case RelocX86CallPCRel4:
		return "x86_call_pcrel4"
	case RelocArm64Call:
		return "arm64_call"
	}
	return "unknown"
}

// NameKind classifies an ExternalName.
type NameKind byte

const (
	// NameKindUserFunc references a module function by module-wide index.
	NameKindUserFunc NameKind = iota
	// NameKindLibCall references a runtime intrinsic.
	NameKindLibCall
)

// ExternalName is the symbolic target of a relocation as a backend reports
// it: either a function in the single user namespace, or a runtime libcall.
type ExternalName struct {
	Kind NameKind
	// FuncIndex is the module-wide function index when Kind is
	// NameKindUserFunc.
	FuncIndex uint32
	// LibCall is valid when Kind is NameKindLibCall.
	LibCall LibCall
}

func (n ExternalName) String() string {
	switch n.Kind {
	case NameKindUserFunc:
		return fmt.Sprintf("u0:%d", n.FuncIndex)
	case NameKindLibCall:
		return "%" + n.LibCall.String()
	}
	return "unknown"
}

// LibCall is a runtime intrinsic a backend may emit calls to.
type LibCall byte

const (
	LibCallProbestack LibCall = iota
	LibCallCeilF32
	LibCallCeilF64
	LibCallFloorF32
	LibCallFloorF64
	LibCallTruncF32
	LibCallTruncF64
	LibCallNearestF32
	LibCallNearestF64
)

func (l LibCall) String() string {
	switch l {
	case LibCallProbestack:
		return "probestack"
	case LibCallCeilF32:
		return "ceil_f32"
	case LibCallCeilF64:
		return "ceil_f64"
	case LibCallFloorF32:
		return "floor_f32"
	case LibCallFloorF64:
		return "floor_f64"
	case LibCallTruncF32:
		return "trunc_f32"
	case LibCallTruncF64:
		return "trunc_f64"
	case LibCallNearestF32:
		return "nearest_f32"
	case LibCallNearestF64:
		return "nearest_f64"
	}
	return "unknown"
}

// MachReloc is one patch site in emitted machine code.
type MachReloc struct {
	// Offset of the patched field from the start of the function code.
	Offset uint32
	Kind   RelocKind
	Name   ExternalName
	Addend int64
}

// TrapKind is the machine-level trap cause attached to a faulting site.
type TrapKind byte

const (
	TrapStackOverflow TrapKind = iota
	TrapHeapOutOfBounds
	TrapHeapMisaligned
	TrapTableOutOfBounds
	TrapIndirectCallToNull
	TrapBadSignature
	TrapIntegerOverflow
	TrapIntegerDivisionByZero
	TrapBadConversionToInteger
	TrapUnreachable
	// TrapInterrupt is an asynchronous interrupt check. No portable trap
	// kind exists for it; the normalizer rejects it.
	TrapInterrupt
	// TrapUser is a backend-defined code. The normalizer rejects it.
	TrapUser
)

func (t TrapKind) String() string {
	switch t {
	case TrapStackOverflow:
		return "stack_overflow"
	case TrapHeapOutOfBounds:
		return "heap_oob"
	case TrapHeapMisaligned:
		return "heap_misaligned"
	case TrapTableOutOfBounds:
		return "table_oob"
	case TrapIndirectCallToNull:
		return "indirect_call_to_null"
	case TrapBadSignature:
		return "bad_signature"
	case TrapIntegerOverflow:
		return "integer_overflow"
	case TrapIntegerDivisionByZero:
		return "integer_division_by_zero"
	case TrapBadConversionToInteger:
		return "bad_conversion_to_integer"
	case TrapUnreachable:
		return "unreachable"
	case TrapInterrupt:
		return "interrupt"
	case TrapUser:
		return "user"
	}
	return "unknown"
}

// MachTrap is one possibly-faulting site in emitted machine code.
type MachTrap struct {
	// Offset of the faulting instruction from the start of the function.
	Offset uint32
	Code   TrapKind
}
