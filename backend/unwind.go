package backend

// UnwindInfo is the unwind descriptor a backend returns for one function.
// The concrete type is one of the mutually exclusive shapes below; a nil
// UnwindInfo means the function needs no unwind information.
type UnwindInfo interface {
	unwindInfo()
}

// FrameOpKind selects among the small subset of DWARF CFA instructions
// sufficient for the frame shapes backends emit.
type FrameOpKind byte

const (
	// FrameOpDefCFA sets the CFA rule to Reg+Offset.
	FrameOpDefCFA FrameOpKind = iota
	// FrameOpDefCFARegister changes only the CFA register.
	FrameOpDefCFARegister
	// FrameOpDefCFAOffset changes only the CFA offset.
	FrameOpDefCFAOffset
	// FrameOpRegisterAt records that Reg is saved at CFA+Offset.
	FrameOpRegisterAt
)

// FrameOp is one call-frame instruction, positioned by CodeOffset within the
// function's code.
type FrameOp struct {
	CodeOffset uint32
	Kind       FrameOpKind
	// Reg is a DWARF register number.
	Reg uint8
	// Offset is the CFA offset operand; for FrameOpRegisterAt it is the
	// signed offset of the save slot relative to the CFA.
	Offset int32
}

// UnwindFDE is the table-based shape: a frame-descriptor-entry to be merged
// into the module's shared frame table by the unwind assembler.
type UnwindFDE struct {
	// CodeLen is the length of the function's machine code.
	CodeLen uint32
	Ops     []FrameOp
}

func (*UnwindFDE) unwindInfo() {}

// UnwindWindows is the self-contained shape: UNWIND_INFO bytes embedded next
// to the function, as the Windows x64 convention requires.
type UnwindWindows struct {
	Data []byte
}

func (*UnwindWindows) unwindInfo() {}
