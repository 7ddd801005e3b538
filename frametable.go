package crucible

import (
	"github.com/cruciblelabs/crucible/backend"
	"github.com/cruciblelabs/crucible/internal/dwarf"
	"github.com/cruciblelabs/crucible/wasm"
)

// buildDwarfSection merges the per-function frame descriptors, dense by
// local function index, into one eh_frame custom section. Functions whose
// backend reported no frame descriptor are skipped. Returns nil when the
// table would be empty.
//
// FDE initial-location slots are emitted as section relocations against the
// function they describe, so the loader can patch absolute addresses in.
func buildDwarfSection(fdes []*backend.UnwindFDE) (*CustomSection, error) {
	table := dwarf.NewFrameTable()
	for i, fde := range fdes {
		if fde == nil {
			continue
		}
		table.AddFDE(uint32(i), fde)
	}
	if table.Len() == 0 {
		return nil, nil
	}

	bytes, addrRelocs, err := table.WriteEhFrame()
	if err != nil {
		return nil, err
	}

	section := &CustomSection{Bytes: bytes}
	for _, r := range addrRelocs {
		section.Relocations = append(section.Relocations, Relocation{
			Kind:   RelocationAbs8,
			Target: RelocationTarget{Kind: RelocationTargetLocalFunc, LocalFunc: wasm.LocalFunctionIndex(r.FuncIndex)},
			Offset: r.Offset,
		})
	}
	return section, nil
}
