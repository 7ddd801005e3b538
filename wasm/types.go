// Package wasm holds the module-level descriptor types this compiler core
// consumes from the upstream parser/validator: function types, the module's
// index spaces, and the memory/table layout styles. Nothing in this package
// decodes or validates a module; that happens upstream.
package wasm

import "strings"

// ValueType is a WebAssembly value type.
type ValueType byte

const (
	ValueTypeI32 ValueType = 0x7f
	ValueTypeI64 ValueType = 0x7e
	ValueTypeF32 ValueType = 0x7d
	ValueTypeF64 ValueType = 0x7c
)

func (v ValueType) String() string {
	switch v {
	case ValueTypeI32:
		return "i32"
	case ValueTypeI64:
		return "i64"
	case ValueTypeF32:
		return "f32"
	case ValueTypeF64:
		return "f64"
	}
	return "unknown"
}

// FunctionType is a function signature: parameter and result value types.
// Owned by the module's type section; functions and imports reference these
// by SignatureIndex and never copy them.
type FunctionType struct {
	Params  []ValueType
	Results []ValueType
}

func (f *FunctionType) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i, p := range f.Params {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(p.String())
	}
	sb.WriteString(")->(")
	for i, r := range f.Results {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(r.String())
	}
	sb.WriteByte(')')
	return sb.String()
}

// EqualTo returns true if the two signatures have identical parameter and
// result types.
func (f *FunctionType) EqualTo(other *FunctionType) bool {
	if len(f.Params) != len(other.Params) || len(f.Results) != len(other.Results) {
		return false
	}
	for i := range f.Params {
		if f.Params[i] != other.Params[i] {
			return false
		}
	}
	for i := range f.Results {
		if f.Results[i] != other.Results[i] {
			return false
		}
	}
	return true
}

// Index types. All index spaces are dense, zero-based and immutable once the
// module is known.
type (
	// SignatureIndex indexes into ModuleInfo.Signatures.
	SignatureIndex uint32
	// FunctionIndex is a module-wide function index. Imported functions
	// come first, local functions after them.
	FunctionIndex uint32
	// LocalFunctionIndex indexes only the functions defined in the module,
	// i.e. FunctionIndex minus the imported-function count.
	LocalFunctionIndex uint32
)
