package dwarf

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cruciblelabs/crucible/backend"
)

// standardFrame is the FDE shape the amd64 backend emits for the
// push rbp / mov rbp,rsp prologue.
func standardFrame(codeLen uint32) *backend.UnwindFDE {
	return &backend.UnwindFDE{
		CodeLen: codeLen,
		Ops: []backend.FrameOp{
			{CodeOffset: 1, Kind: backend.FrameOpDefCFAOffset, Offset: 16},
			{CodeOffset: 1, Kind: backend.FrameOpRegisterAt, Reg: RegRBP, Offset: -16},
			{CodeOffset: 4, Kind: backend.FrameOpDefCFARegister, Reg: RegRBP},
		},
	}
}

func TestWriteEhFrame_Empty(t *testing.T) {
	data, relocs, err := NewFrameTable().WriteEhFrame()
	require.NoError(t, err)
	require.Empty(t, relocs)
	// CIE + 4-byte terminator only.
	cieLen := binary.LittleEndian.Uint32(data)
	require.Equal(t, int(cieLen)+4+4, len(data))
	require.Equal(t, []byte{0, 0, 0, 0}, data[len(data)-4:])
}

func TestWriteEhFrame_CIE(t *testing.T) {
	data, _, err := NewFrameTable().WriteEhFrame()
	require.NoError(t, err)
	exp := []byte{
		0x14, 0x00, 0x00, 0x00, // length 20
		0x00, 0x00, 0x00, 0x00, // CIE id
		0x01,             // version
		'z', 'R', 0x00,   // augmentation
		0x01,             // code alignment 1
		0x78,             // data alignment -8 (sleb)
		0x10,             // return address register 16
		0x01,             // augmentation data length
		0x00,             // pointer encoding: absolute
		0x0c, 0x07, 0x08, // def_cfa rsp+8
		0x90, 0x01, // offset r16 at cfa-8
		0x00, 0x00, // nop padding
	}
	require.Equal(t, exp, data[:len(exp)])
}

func TestWriteEhFrame_FDE(t *testing.T) {
	tbl := NewFrameTable()
	tbl.AddFDE(0, standardFrame(32))
	tbl.AddFDE(1, standardFrame(64))
	require.Equal(t, 2, tbl.Len())

	data, relocs, err := tbl.WriteEhFrame()
	require.NoError(t, err)
	require.Len(t, relocs, 2)

	// Relocation slots are in insertion order and hold zero until patched.
	require.Equal(t, uint32(0), relocs[0].FuncIndex)
	require.Equal(t, uint32(1), relocs[1].FuncIndex)
	for _, r := range relocs {
		require.Equal(t, uint64(0), binary.LittleEndian.Uint64(data[r.Offset:]))
	}

	// The first FDE starts right after the CIE (24 bytes); its CIE pointer
	// field holds the distance back to the section start.
	fdeStart := uint32(24)
	require.Equal(t, fdeStart+8, relocs[0].Offset)
	ciePtr := binary.LittleEndian.Uint32(data[fdeStart+4:])
	require.Equal(t, fdeStart+4, ciePtr)

	// Address range carries the code length.
	require.Equal(t, uint64(32), binary.LittleEndian.Uint64(data[fdeStart+16:]))

	// Terminator present.
	require.Equal(t, []byte{0, 0, 0, 0}, data[len(data)-4:])
}

func TestWriteEhFrame_Deterministic(t *testing.T) {
	build := func() []byte {
		tbl := NewFrameTable()
		tbl.AddFDE(0, standardFrame(16))
		data, _, err := tbl.WriteEhFrame()
		require.NoError(t, err)
		return data
	}
	require.Equal(t, build(), build())
}

func TestWriteEhFrame_RejectsMisalignedSave(t *testing.T) {
	tbl := NewFrameTable()
	tbl.AddFDE(0, &backend.UnwindFDE{
		CodeLen: 8,
		Ops:     []backend.FrameOp{{CodeOffset: 1, Kind: backend.FrameOpRegisterAt, Reg: RegRBP, Offset: -12}},
	})
	_, _, err := tbl.WriteEhFrame()
	require.Error(t, err)
}

func TestWriteEhFrame_RejectsBackwardsLocation(t *testing.T) {
	tbl := NewFrameTable()
	tbl.AddFDE(0, &backend.UnwindFDE{
		CodeLen: 8,
		Ops: []backend.FrameOp{
			{CodeOffset: 4, Kind: backend.FrameOpDefCFAOffset, Offset: 16},
			{CodeOffset: 1, Kind: backend.FrameOpDefCFAOffset, Offset: 8},
		},
	})
	_, _, err := tbl.WriteEhFrame()
	require.Error(t, err)
}
