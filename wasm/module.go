package wasm

// MemoryStyle describes how a linear memory is laid out by the runtime.
// The translator lowers loads and stores without consulting it; picking a
// bounds-check strategy from the style is a backend concern, and no current
// backend consumes it yet.
type MemoryStyle struct {
	// Static is true when the memory is allocated with a fixed maximum so
	// accesses can be checked against a compile-time bound.
	Static bool
	// Bound is the maximum size in pages when Static.
	Bound uint32
	// OffsetGuardSize is the size in bytes of the guard region after the
	// memory, letting small constant offsets skip explicit checks.
	OffsetGuardSize uint64
}

// TableStyle describes how call_indirect signature checks are performed for
// a table. Like MemoryStyle it is carried for backends lowering the check
// and not yet consumed.
type TableStyle struct {
	// CallerChecksSignature is true when the caller performs the signature
	// check against the table entry before the indirect call.
	CallerChecksSignature bool
}

// GlobalType declares a module global's value type and mutability.
type GlobalType struct {
	Type    ValueType
	Mutable bool
}

// ModuleInfo is the read-only per-module metadata shared by every
// compilation task: the signature table, the function index space, and the
// memory/table layout styles. It is never mutated once published.
type ModuleInfo struct {
	// Signatures is the module's type section, dense by SignatureIndex.
	Signatures []*FunctionType
	// Functions maps every FunctionIndex (imports first) to its signature.
	Functions []SignatureIndex
	// ImportedFunctionCount is the number of imported functions, which is
	// also the FunctionIndex of the first local function.
	ImportedFunctionCount uint32
	// Globals is dense by global index.
	Globals []GlobalType
	// MemoryStyles is dense by memory index.
	MemoryStyles []MemoryStyle
	// TableStyles is dense by table index.
	TableStyles []TableStyle
}

// LocalFunctionCount returns the number of functions defined in this module.
func (m *ModuleInfo) LocalFunctionCount() uint32 {
	return uint32(len(m.Functions)) - m.ImportedFunctionCount
}

// FunctionIndexForLocal converts a local function index into the module-wide
// function index space.
func (m *ModuleInfo) FunctionIndexForLocal(i LocalFunctionIndex) FunctionIndex {
	return FunctionIndex(uint32(i) + m.ImportedFunctionCount)
}

// LocalFunctionIndexFor converts a module-wide function index back into the
// local index space. ok is false when the function is an import.
func (m *ModuleInfo) LocalFunctionIndexFor(i FunctionIndex) (LocalFunctionIndex, bool) {
	if uint32(i) < m.ImportedFunctionCount {
		return 0, false
	}
	return LocalFunctionIndex(uint32(i) - m.ImportedFunctionCount), true
}

// SignatureOf returns the signature of the given module-wide function index.
func (m *ModuleInfo) SignatureOf(i FunctionIndex) *FunctionType {
	return m.Signatures[m.Functions[i]]
}

// ImportedFunctionTypes returns the signatures of the imported functions,
// dense by import order.
func (m *ModuleInfo) ImportedFunctionTypes() []*FunctionType {
	ret := make([]*FunctionType, m.ImportedFunctionCount)
	for i := uint32(0); i < m.ImportedFunctionCount; i++ {
		ret[i] = m.SignatureOf(FunctionIndex(i))
	}
	return ret
}
