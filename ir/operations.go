package ir

import "fmt"

// UnsignedInt distinguishes the two integer widths for sign-agnostic ops.
type UnsignedInt byte

const (
	UnsignedInt32 UnsignedInt = iota
	UnsignedInt64
)

func (s UnsignedInt) String() (ret string) {
	switch s {
	case UnsignedInt32:
		ret = "i32"
	case UnsignedInt64:
		ret = "i64"
	}
	return
}

// SignedInt distinguishes integer width and signedness.
type SignedInt byte

const (
	SignedInt32 SignedInt = iota
	SignedInt64
	SignedUint32
	SignedUint64
)

func (s SignedInt) String() (ret string) {
	switch s {
	case SignedInt32:
		ret = "s32"
	case SignedInt64:
		ret = "s64"
	case SignedUint32:
		ret = "u32"
	case SignedUint64:
		ret = "u64"
	}
	return
}

// Float distinguishes the two float widths.
type Float byte

const (
	Float32 Float = iota
	Float64
)

func (s Float) String() (ret string) {
	switch s {
	case Float32:
		ret = "f32"
	case Float64:
		ret = "f64"
	}
	return
}

// UnsignedType is any value type where signedness is irrelevant.
type UnsignedType byte

const (
	UnsignedTypeI32 UnsignedType = iota
	UnsignedTypeI64
	UnsignedTypeF32
	UnsignedTypeF64
)

func (s UnsignedType) String() (ret string) {
	switch s {
	case UnsignedTypeI32:
		ret = "i32"
	case UnsignedTypeI64:
		ret = "i64"
	case UnsignedTypeF32:
		ret = "f32"
	case UnsignedTypeF64:
		ret = "f64"
	}
	return
}

// SignedType is any value type including integer signedness.
type SignedType byte

const (
	SignedTypeInt32 SignedType = iota
	SignedTypeUint32
	SignedTypeInt64
	SignedTypeUint64
	SignedTypeFloat32
	SignedTypeFloat64
)

func (s SignedType) String() (ret string) {
	switch s {
	case SignedTypeInt32:
		ret = "s32"
	case SignedTypeUint32:
		ret = "u32"
	case SignedTypeInt64:
		ret = "s64"
	case SignedTypeUint64:
		ret = "u64"
	case SignedTypeFloat32:
		ret = "f32"
	case SignedTypeFloat64:
		ret = "f64"
	}
	return
}

// LabelKind tells which position in a lowered control frame a label marks.
type LabelKind byte

const (
	// LabelKindHeader marks the beginning of a loop body.
	LabelKindHeader LabelKind = iota
	// LabelKindElse marks the beginning of an else arm.
	LabelKindElse
	// LabelKindContinuation marks the instruction after a control frame.
	LabelKindContinuation
)

func (k LabelKind) String() (ret string) {
	switch k {
	case LabelKindHeader:
		ret = "header"
	case LabelKindElse:
		ret = "else"
	case LabelKindContinuation:
		ret = "continuation"
	}
	return
}

// Label identifies a branch destination within one function.
type Label struct {
	FrameID uint32
	Kind    LabelKind
}

func (l *Label) String() string {
	return fmt.Sprintf(".L%d_%s", l.FrameID, l.Kind)
}

// BranchTarget is a branch destination; a nil Label means function return.
type BranchTarget struct {
	Label *Label
}

func (t *BranchTarget) IsReturn() bool { return t.Label == nil }

func (t *BranchTarget) String() string {
	if t.IsReturn() {
		return "return"
	}
	return t.Label.String()
}

// MemoryArg is the alignment/offset immediate of a memory access.
type MemoryArg struct {
	Alignment uint32
	Offset    uint32
}

// Operation is a single IR operation over the implicit value stack.
type Operation interface {
	fmt.Stringer
}

type (
	// OperationUnreachable traps unconditionally.
	OperationUnreachable struct{}
	// OperationLabel marks a branch destination.
	OperationLabel struct{ Label *Label }
	// OperationBr branches unconditionally.
	OperationBr struct{ Target *BranchTarget }
	// OperationBrIf pops a condition and branches to Then or Else.
	OperationBrIf struct{ Then, Else *BranchTarget }

	// OperationLocalGet pushes the value of a local (parameters first).
	OperationLocalGet struct{ Index uint32 }
	// OperationLocalSet pops into a local.
	OperationLocalSet struct{ Index uint32 }
	// OperationLocalTee stores the top of stack into a local, keeping it.
	OperationLocalTee struct{ Index uint32 }
	// OperationGlobalGet pushes the value of a module global.
	OperationGlobalGet struct{ Index uint32 }
	// OperationGlobalSet pops into a module global.
	OperationGlobalSet struct{ Index uint32 }

	// OperationCall calls the function at the module-wide index. The
	// backend resolves the target symbolically and reports a relocation.
	OperationCall struct {
		FunctionIndex uint32
		// Sig is the callee's lowered signature, resolved at translation
		// time so backends need no module context.
		Sig *Signature
	}
	// OperationCallIndirect pops a table element index and calls through
	// the table, checking the signature at TypeIndex.
	OperationCallIndirect struct{ TypeIndex, TableIndex uint32 }

	// OperationDrop pops and discards the top of stack.
	OperationDrop struct{}
	// OperationSelect pops (cond, v2, v1) and pushes v1 if cond != 0 else v2.
	OperationSelect struct{}
	// OperationPick pushes a copy of the value Depth slots below the top.
	OperationPick struct{ Depth uint32 }
	// OperationSwap exchanges the top with the value Depth slots below it.
	OperationSwap struct{ Depth uint32 }

	OperationConstI32 struct{ Value uint32 }
	OperationConstI64 struct{ Value uint64 }
	OperationConstF32 struct{ Value float32 }
	OperationConstF64 struct{ Value float64 }

	OperationAdd    struct{ Type UnsignedType }
	OperationSub    struct{ Type UnsignedType }
	OperationMul    struct{ Type UnsignedType }
	OperationClz    struct{ Type UnsignedInt }
	OperationCtz    struct{ Type UnsignedInt }
	OperationPopcnt struct{ Type UnsignedInt }
	OperationDiv    struct{ Type SignedType }
	OperationRem    struct{ Type SignedInt }
	OperationAnd    struct{ Type UnsignedInt }
	OperationOr     struct{ Type UnsignedInt }
	OperationXor    struct{ Type UnsignedInt }
	OperationShl    struct{ Type UnsignedInt }
	OperationShr    struct{ Type SignedInt }
	OperationRotl   struct{ Type UnsignedInt }
	OperationRotr   struct{ Type UnsignedInt }

	OperationEq  struct{ Type UnsignedType }
	OperationNe  struct{ Type UnsignedType }
	OperationEqz struct{ Type UnsignedInt }
	OperationLt  struct{ Type SignedType }
	OperationGt  struct{ Type SignedType }
	OperationLe  struct{ Type SignedType }
	OperationGe  struct{ Type SignedType }

	OperationAbs      struct{ Type Float }
	OperationNeg      struct{ Type Float }
	OperationCeil     struct{ Type Float }
	OperationFloor    struct{ Type Float }
	OperationTrunc    struct{ Type Float }
	OperationNearest  struct{ Type Float }
	OperationSqrt     struct{ Type Float }
	OperationMin      struct{ Type Float }
	OperationMax      struct{ Type Float }
	OperationCopysign struct{ Type Float }

	OperationI32WrapFromI64 struct{}
	OperationITruncFromF    struct {
		InputType  Float
		OutputType SignedInt
	}
	OperationFConvertFromI struct {
		InputType  SignedInt
		OutputType Float
	}
	OperationF32DemoteFromF64      struct{}
	OperationF64PromoteFromF32     struct{}
	OperationI32ReinterpretFromF32 struct{}
	OperationI64ReinterpretFromF64 struct{}
	OperationF32ReinterpretFromI32 struct{}
	OperationF64ReinterpretFromI64 struct{}
	// OperationExtend extends an i32 to an i64.
	OperationExtend struct{ Signed bool }

	OperationLoad struct {
		Type UnsignedType
		Arg  MemoryArg
	}
	OperationLoad8 struct {
		Type SignedInt
		Arg  MemoryArg
	}
	OperationLoad16 struct {
		Type SignedInt
		Arg  MemoryArg
	}
	OperationLoad32 struct {
		Signed bool
		Arg    MemoryArg
	}
	OperationStore struct {
		Type UnsignedType
		Arg  MemoryArg
	}
	OperationStore8  struct{ Arg MemoryArg }
	OperationStore16 struct{ Arg MemoryArg }
	OperationStore32 struct{ Arg MemoryArg }
	OperationMemorySize struct{}
	OperationMemoryGrow struct{}

	// OperationPointerLoad pops an address and pushes the value of the
	// given type at address+Offset. Used by trampoline bodies; addresses
	// are not subject to linear-memory bounds checks.
	OperationPointerLoad struct {
		Type   Type
		Offset uint32
	}
	// OperationPointerStore pops a value, then an address, and stores the
	// value at address+Offset.
	OperationPointerStore struct {
		Type   Type
		Offset uint32
	}
	// OperationCallPointer pops a raw code pointer and then Sig's
	// parameters, and calls the pointer with the native convention.
	OperationCallPointer struct{ Sig *Signature }
	// OperationStackAlloc reserves Size bytes of the native stack frame
	// and pushes the address of the reservation.
	OperationStackAlloc struct{ Size uint32 }
)

func (*OperationUnreachable) String() string  { return "unreachable" }
func (o *OperationLabel) String() string      { return o.Label.String() + ":" }
func (o *OperationBr) String() string         { return "br " + o.Target.String() }
func (o *OperationBrIf) String() string {
	return fmt.Sprintf("br_if %s, %s", o.Then, o.Else)
}
func (o *OperationLocalGet) String() string  { return fmt.Sprintf("local.get %d", o.Index) }
func (o *OperationLocalSet) String() string  { return fmt.Sprintf("local.set %d", o.Index) }
func (o *OperationLocalTee) String() string  { return fmt.Sprintf("local.tee %d", o.Index) }
func (o *OperationGlobalGet) String() string { return fmt.Sprintf("global.get %d", o.Index) }
func (o *OperationGlobalSet) String() string { return fmt.Sprintf("global.set %d", o.Index) }
func (o *OperationCall) String() string      { return fmt.Sprintf("call %d", o.FunctionIndex) }
func (o *OperationCallIndirect) String() string {
	return fmt.Sprintf("call_indirect (type %d) (table %d)", o.TypeIndex, o.TableIndex)
}
func (*OperationDrop) String() string     { return "drop" }
func (*OperationSelect) String() string   { return "select" }
func (o *OperationPick) String() string   { return fmt.Sprintf("pick %d", o.Depth) }
func (o *OperationSwap) String() string   { return fmt.Sprintf("swap %d", o.Depth) }
func (o *OperationConstI32) String() string { return fmt.Sprintf("i32.const %d", o.Value) }
func (o *OperationConstI64) String() string { return fmt.Sprintf("i64.const %d", o.Value) }
func (o *OperationConstF32) String() string { return fmt.Sprintf("f32.const %v", o.Value) }
func (o *OperationConstF64) String() string { return fmt.Sprintf("f64.const %v", o.Value) }
func (o *OperationAdd) String() string      { return o.Type.String() + ".add" }
func (o *OperationSub) String() string      { return o.Type.String() + ".sub" }
func (o *OperationMul) String() string      { return o.Type.String() + ".mul" }
func (o *OperationClz) String() string      { return o.Type.String() + ".clz" }
func (o *OperationCtz) String() string      { return o.Type.String() + ".ctz" }
func (o *OperationPopcnt) String() string   { return o.Type.String() + ".popcnt" }
func (o *OperationDiv) String() string      { return o.Type.String() + ".div" }
func (o *OperationRem) String() string      { return o.Type.String() + ".rem" }
func (o *OperationAnd) String() string      { return o.Type.String() + ".and" }
func (o *OperationOr) String() string       { return o.Type.String() + ".or" }
func (o *OperationXor) String() string      { return o.Type.String() + ".xor" }
func (o *OperationShl) String() string      { return o.Type.String() + ".shl" }
func (o *OperationShr) String() string      { return o.Type.String() + ".shr" }
func (o *OperationRotl) String() string     { return o.Type.String() + ".rotl" }
func (o *OperationRotr) String() string     { return o.Type.String() + ".rotr" }
func (o *OperationEq) String() string       { return o.Type.String() + ".eq" }
func (o *OperationNe) String() string       { return o.Type.String() + ".ne" }
func (o *OperationEqz) String() string      { return o.Type.String() + ".eqz" }
func (o *OperationLt) String() string       { return o.Type.String() + ".lt" }
func (o *OperationGt) String() string       { return o.Type.String() + ".gt" }
func (o *OperationLe) String() string       { return o.Type.String() + ".le" }
func (o *OperationGe) String() string       { return o.Type.String() + ".ge" }
func (o *OperationAbs) String() string      { return o.Type.String() + ".abs" }
func (o *OperationNeg) String() string      { return o.Type.String() + ".neg" }
func (o *OperationCeil) String() string     { return o.Type.String() + ".ceil" }
func (o *OperationFloor) String() string    { return o.Type.String() + ".floor" }
func (o *OperationTrunc) String() string    { return o.Type.String() + ".trunc" }
func (o *OperationNearest) String() string  { return o.Type.String() + ".nearest" }
func (o *OperationSqrt) String() string     { return o.Type.String() + ".sqrt" }
func (o *OperationMin) String() string      { return o.Type.String() + ".min" }
func (o *OperationMax) String() string      { return o.Type.String() + ".max" }
func (o *OperationCopysign) String() string { return o.Type.String() + ".copysign" }
func (*OperationI32WrapFromI64) String() string { return "i32.wrap_i64" }
func (o *OperationITruncFromF) String() string {
	return fmt.Sprintf("%s.trunc_%s", o.OutputType, o.InputType)
}
func (o *OperationFConvertFromI) String() string {
	return fmt.Sprintf("%s.convert_%s", o.OutputType, o.InputType)
}
func (*OperationF32DemoteFromF64) String() string      { return "f32.demote_f64" }
func (*OperationF64PromoteFromF32) String() string     { return "f64.promote_f32" }
func (*OperationI32ReinterpretFromF32) String() string { return "i32.reinterpret_f32" }
func (*OperationI64ReinterpretFromF64) String() string { return "i64.reinterpret_f64" }
func (*OperationF32ReinterpretFromI32) String() string { return "f32.reinterpret_i32" }
func (*OperationF64ReinterpretFromI64) String() string { return "f64.reinterpret_i64" }
func (o *OperationExtend) String() string {
	if o.Signed {
		return "i64.extend_i32_s"
	}
	return "i64.extend_i32_u"
}
func (o *OperationLoad) String() string   { return o.Type.String() + ".load" }
func (o *OperationLoad8) String() string  { return o.Type.String() + ".load8" }
func (o *OperationLoad16) String() string { return o.Type.String() + ".load16" }
func (o *OperationLoad32) String() string {
	if o.Signed {
		return "i64.load32_s"
	}
	return "i64.load32_u"
}
func (o *OperationStore) String() string   { return o.Type.String() + ".store" }
func (*OperationStore8) String() string    { return "store8" }
func (*OperationStore16) String() string   { return "store16" }
func (*OperationStore32) String() string   { return "store32" }
func (*OperationMemorySize) String() string { return "memory.size" }
func (*OperationMemoryGrow) String() string { return "memory.grow" }
func (o *OperationPointerLoad) String() string {
	return fmt.Sprintf("%s.ptr_load offset=%d", o.Type, o.Offset)
}
func (o *OperationPointerStore) String() string {
	return fmt.Sprintf("%s.ptr_store offset=%d", o.Type, o.Offset)
}
func (o *OperationCallPointer) String() string { return "call_pointer " + o.Sig.String() }
func (o *OperationStackAlloc) String() string  { return fmt.Sprintf("stack_alloc %d", o.Size) }
