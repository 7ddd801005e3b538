// Package backend defines the contract between the compilation pipeline and
// a code-generation backend: the pipeline hands a populated ir.Func to a
// Machine and receives machine code plus the raw relocation, trap and unwind
// records this repository later normalizes into its portable artifact types.
//
// Everything in this package is free of WebAssembly module concepts so a
// backend can be swapped without touching the orchestrator or normalizer.
package backend

import "github.com/cruciblelabs/crucible/ir"

// Arch is a target instruction-set architecture.
type Arch byte

const (
	ArchAMD64 Arch = iota
	ArchARM64
)

func (a Arch) String() string {
	switch a {
	case ArchAMD64:
		return "amd64"
	case ArchARM64:
		return "arm64"
	}
	return "unknown"
}

// CallConv is the default calling convention of the target platform.
type CallConv byte

const (
	// CallConvSystemV is the System V AMD64 ABI, with table-based (DWARF
	// eh_frame) stack unwinding.
	CallConvSystemV CallConv = iota
	// CallConvWindowsFastcall is the Windows x64 convention, with
	// self-contained per-function unwind data.
	CallConvWindowsFastcall
)

func (c CallConv) String() string {
	switch c {
	case CallConvSystemV:
		return "system_v"
	case CallConvWindowsFastcall:
		return "windows_fastcall"
	}
	return "unknown"
}

// ISA is the resolved, immutable target description shared read-only by all
// compilation workers.
type ISA struct {
	Arch         Arch
	CallConv     CallConv
	PointerBytes uint8
}

// Backend is a code-generation backend for one ISA. Implementations must be
// safe for concurrent use of distinct Machines; the Backend itself is only
// read after construction.
type Backend interface {
	// ISA returns the target description this backend generates code for.
	ISA() *ISA
	// NewMachine returns a fresh compilation scratch context. A Machine is
	// owned by exactly one worker at a time and reused across functions
	// via Reset.
	NewMachine() (Machine, error)
}

// Machine compiles IR function bodies into machine code. Not safe for
// concurrent use.
type Machine interface {
	// Compile generates position-independent machine code for fn along
	// with the relocation, trap and unwind records describing it.
	Compile(fn *ir.Func) (*CompiledCode, error)
	// Reset prepares the Machine for the next function, retaining
	// allocated scratch where possible.
	Reset()
}

// CompiledCode is the raw result of compiling one ir.Func.
type CompiledCode struct {
	// Code is the emitted machine code.
	Code []byte
	// Relocs are patch sites in Code, in ascending offset order.
	Relocs []MachReloc
	// Traps are the possibly-faulting sites in Code, in ascending offset
	// order.
	Traps []MachTrap
	// Unwind describes how to unwind frames of this function; nil when the
	// target convention produces none.
	Unwind UnwindInfo
	// SourceLocs maps code offsets back to the module offsets recorded in
	// fn.Positions, in ascending code offset order.
	SourceLocs []SourceLoc
}

// SourceLoc associates one emitted instruction with the module offset of the
// instruction it was lowered from.
type SourceLoc struct {
	CodeOffset uint32
	SrcOffset  uint32
}
