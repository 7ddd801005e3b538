// Package ir defines the backend-neutral intermediate representation this
// compiler lowers WebAssembly function bodies into, and which code-generation
// backends consume. The representation is a flat operation list over an
// implicit value stack, in the spirit of microwasm-like IRs: structured
// control flow is lowered to labels and branches by the frontend.
//
// This package is deliberately free of WebAssembly module concepts; the
// frontend owns the mapping from module index spaces into IR.
package ir

import (
	"fmt"
	"strings"
)

// Type is an IR value type. Pointers are I64 on 64-bit targets.
type Type byte

const (
	TypeI32 Type = iota
	TypeI64
	TypeF32
	TypeF64
)

func (t Type) String() string {
	switch t {
	case TypeI32:
		return "i32"
	case TypeI64:
		return "i64"
	case TypeF32:
		return "f32"
	case TypeF64:
		return "f64"
	}
	return "unknown"
}

// Signature is a function signature at the IR level.
type Signature struct {
	Params  []Type
	Results []Type
}

func (s *Signature) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i, p := range s.Params {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(p.String())
	}
	sb.WriteString(")->(")
	for i, r := range s.Results {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(r.String())
	}
	sb.WriteByte(')')
	return sb.String()
}

// EqualTo returns true if both signatures have identical types.
func (s *Signature) EqualTo(other *Signature) bool {
	if len(s.Params) != len(other.Params) || len(s.Results) != len(other.Results) {
		return false
	}
	for i := range s.Params {
		if s.Params[i] != other.Params[i] {
			return false
		}
	}
	for i := range s.Results {
		if s.Results[i] != other.Results[i] {
			return false
		}
	}
	return true
}

// Func is one function body in IR form, ready for a backend.
type Func struct {
	// Name identifies the function to the backend and, through it, to
	// relocation records. Local module functions are named with
	// FuncName(index) so relocations against them can be resolved back to
	// function indices.
	Name string
	// Signature is the function's type, copied from the module's
	// signature table by the frontend.
	Signature *Signature
	// Locals are the types of the declared locals, excluding parameters.
	Locals []Type
	// Ops is the operation list.
	Ops []Operation
	// Positions holds, for each operation in Ops, the original module
	// offset of the instruction it was lowered from. Operations synthesized
	// without a source instruction (e.g. trampoline bodies) carry 0.
	Positions []uint32
}

// Emit appends op lowered from the instruction at the given module offset.
func (f *Func) Emit(pos uint32, op Operation) {
	f.Ops = append(f.Ops, op)
	f.Positions = append(f.Positions, pos)
}

// String renders the function for diagnostics, one operation per line.
func (f *Func) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "function %s %s\n", f.Name, f.Signature)
	for i, op := range f.Ops {
		fmt.Fprintf(&sb, "  @%#x %s\n", f.Positions[i], op)
	}
	return sb.String()
}

const funcNamePrefix = "u0:"

// FuncName returns the IR name of the module-wide function index, following
// the single user namespace convention backends report relocations with.
func FuncName(index uint32) string {
	return fmt.Sprintf("%s%d", funcNamePrefix, index)
}
