// Package dwarf serializes the shared stack-unwind frame table: one common
// information entry plus one frame-descriptor entry per compiled function,
// in the .eh_frame binary format consumed by SystemV unwinders.
//
// Function addresses are not known at compile time, so every FDE's
// initial-location field is emitted as zero and reported as an address
// relocation carrying the local function index; the loader resolves it.
package dwarf

import (
	"encoding/binary"
	"fmt"

	"github.com/cruciblelabs/crucible/backend"
)

// DWARF register numbers for the x86-64 SystemV frame convention.
const (
	RegRBP = 6
	RegRSP = 7
	RegRA  = 16
)

// addressSize is the pointer size of the encoded table. Only 64-bit targets
// use the table-based convention here.
const addressSize = 8

// Call-frame instruction opcodes.
const (
	cfaNop         = 0x00
	cfaAdvanceLoc1 = 0x02
	cfaAdvanceLoc2 = 0x03
	cfaAdvanceLoc4 = 0x04
	cfaDefCFA      = 0x0c
	cfaDefCFAReg   = 0x0d
	cfaDefCFAOff   = 0x0e
	cfaAdvanceLoc  = 0x40 // high two bits 01, low six bits the delta
	cfaOffset      = 0x80 // high two bits 10, low six bits the register
)

const dataAlignmentFactor = -8

// AddressReloc is a pointer-sized slot inside the encoded table that must be
// patched with the absolute address of a local function at load time.
type AddressReloc struct {
	// Offset of the 8-byte slot within the eh_frame section.
	Offset uint32
	// FuncIndex is the local function whose address belongs there.
	FuncIndex uint32
}

// FrameTable accumulates per-function frame-descriptor entries under one
// shared common information entry.
type FrameTable struct {
	fdes []fde
}

type fde struct {
	funcIndex uint32
	codeLen   uint32
	ops       []backend.FrameOp
}

// NewFrameTable returns an empty table. The CIE describes the standard
// SystemV x86-64 entry state: CFA = rsp+8, return address at CFA-8.
func NewFrameTable() *FrameTable {
	return &FrameTable{}
}

// AddFDE appends the frame-descriptor entry of the given local function.
// Entries must be added in local function index order; the serialized table
// preserves insertion order.
func (t *FrameTable) AddFDE(funcIndex uint32, u *backend.UnwindFDE) {
	t.fdes = append(t.fdes, fde{funcIndex: funcIndex, codeLen: u.CodeLen, ops: u.Ops})
}

// Len returns the number of FDEs added so far.
func (t *FrameTable) Len() int { return len(t.fdes) }

// WriteEhFrame serializes the table into one .eh_frame byte buffer plus the
// address relocations for every FDE's initial-location slot.
func (t *FrameTable) WriteEhFrame() ([]byte, []AddressReloc, error) {
	var buf []byte
	var relocs []AddressReloc

	buf = t.writeCIE(buf)

	for _, e := range t.fdes {
		var err error
		buf, relocs, err = t.writeFDE(buf, relocs, e)
		if err != nil {
			return nil, nil, err
		}
	}

	// Zero-length terminator entry.
	buf = append(buf, 0, 0, 0, 0)
	return buf, relocs, nil
}

func (t *FrameTable) writeCIE(buf []byte) []byte {
	lengthAt := len(buf)
	buf = append(buf, 0, 0, 0, 0) // length, patched below
	buf = le32(buf, 0)            // CIE id
	buf = append(buf, 1)          // version
	buf = append(buf, 'z', 'R', 0)
	buf = uleb(buf, 1)                          // code alignment factor
	buf = sleb(buf, dataAlignmentFactor)        // data alignment factor
	buf = uleb(buf, RegRA)                      // return address register
	buf = uleb(buf, 1)                          // augmentation data length
	buf = append(buf, 0x00)                     // FDE pointers: absolute, native size
	buf = append(buf, cfaDefCFA)                // CFA = rsp+8 on entry
	buf = uleb(buf, RegRSP)
	buf = uleb(buf, addressSize)
	buf = append(buf, cfaOffset|RegRA) // return address saved at CFA-8
	buf = uleb(buf, 1)
	buf = padEntry(buf, lengthAt)
	return patchLength(buf, lengthAt)
}

func (t *FrameTable) writeFDE(buf []byte, relocs []AddressReloc, e fde) ([]byte, []AddressReloc, error) {
	lengthAt := len(buf)
	buf = append(buf, 0, 0, 0, 0) // length, patched below
	// CIE pointer: distance from this field back to the CIE start, which
	// is the beginning of the section.
	buf = le32(buf, uint32(len(buf)))

	relocs = append(relocs, AddressReloc{Offset: uint32(len(buf)), FuncIndex: e.funcIndex})
	buf = le64(buf, 0)                 // initial location, patched by loader
	buf = le64(buf, uint64(e.codeLen)) // address range
	buf = uleb(buf, 0)                 // augmentation data length

	loc := uint32(0)
	for _, op := range e.ops {
		if op.CodeOffset < loc {
			return nil, nil, fmt.Errorf("frame op at %#x before current location %#x", op.CodeOffset, loc)
		}
		buf = advanceLoc(buf, op.CodeOffset-loc)
		loc = op.CodeOffset
		switch op.Kind {
		case backend.FrameOpDefCFA:
			buf = append(buf, cfaDefCFA)
			buf = uleb(buf, uint64(op.Reg))
			buf = uleb(buf, uint64(op.Offset))
		case backend.FrameOpDefCFARegister:
			buf = append(buf, cfaDefCFAReg)
			buf = uleb(buf, uint64(op.Reg))
		case backend.FrameOpDefCFAOffset:
			buf = append(buf, cfaDefCFAOff)
			buf = uleb(buf, uint64(op.Offset))
		case backend.FrameOpRegisterAt:
			if op.Offset%dataAlignmentFactor != 0 {
				return nil, nil, fmt.Errorf("register save offset %d not a multiple of %d", op.Offset, dataAlignmentFactor)
			}
			buf = append(buf, cfaOffset|op.Reg)
			buf = uleb(buf, uint64(op.Offset/dataAlignmentFactor))
		default:
			return nil, nil, fmt.Errorf("unknown frame op kind %d", op.Kind)
		}
	}
	buf = padEntry(buf, lengthAt)
	return patchLength(buf, lengthAt), relocs, nil
}

func advanceLoc(buf []byte, delta uint32) []byte {
	switch {
	case delta == 0:
		return buf
	case delta < 0x40:
		return append(buf, cfaAdvanceLoc|byte(delta))
	case delta < 0x100:
		return append(buf, cfaAdvanceLoc1, byte(delta))
	case delta < 0x10000:
		buf = append(buf, cfaAdvanceLoc2)
		return binary.LittleEndian.AppendUint16(buf, uint16(delta))
	default:
		buf = append(buf, cfaAdvanceLoc4)
		return binary.LittleEndian.AppendUint32(buf, delta)
	}
}

// padEntry nop-pads the entry starting at lengthAt so its total size is a
// multiple of the address size.
func padEntry(buf []byte, lengthAt int) []byte {
	for (len(buf)-lengthAt)%addressSize != 0 {
		buf = append(buf, cfaNop)
	}
	return buf
}

func patchLength(buf []byte, lengthAt int) []byte {
	binary.LittleEndian.PutUint32(buf[lengthAt:], uint32(len(buf)-lengthAt-4))
	return buf
}

func le32(buf []byte, v uint32) []byte { return binary.LittleEndian.AppendUint32(buf, v) }
func le64(buf []byte, v uint64) []byte { return binary.LittleEndian.AppendUint64(buf, v) }

func uleb(buf []byte, v uint64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		buf = append(buf, b)
		if v == 0 {
			return buf
		}
	}
}

func sleb(buf []byte, v int64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(buf, b)
		}
		buf = append(buf, b|0x80)
	}
}
