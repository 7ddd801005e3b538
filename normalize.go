package crucible

import (
	"fmt"
	"sort"

	"github.com/cruciblelabs/crucible/backend"
	"github.com/cruciblelabs/crucible/wasm"
)

// normalizeFunction turns raw backend output into the portable per-function
// artifact. It validates every relocation and trap against the module and
// the closed portable sets; a violation is a backend bug and surfaces as
// InternalConsistencyError.
//
// The body's UnwindFDE, if any, is returned separately so the orchestrator
// can merge it into the shared frame table.
func normalizeFunction(module *wasm.ModuleInfo, cc *backend.CompiledCode, bodyStart, bodyEnd uint32, tableUnwind bool) (CompiledFunction, *backend.UnwindFDE, error) {
	out := CompiledFunction{
		Body: FunctionBody{Code: cc.Code},
	}

	for _, r := range cc.Relocs {
		nr, err := normalizeRelocation(module, r)
		if err != nil {
			return CompiledFunction{}, nil, err
		}
		out.Relocations = append(out.Relocations, nr)
	}

	for _, tr := range cc.Traps {
		code, err := normalizeTrapKind(tr.Code)
		if err != nil {
			return CompiledFunction{}, nil, err
		}
		out.Traps = append(out.Traps, TrapInformation{CodeOffset: tr.Offset, Code: code})
	}

	out.AddressMap = buildAddressMap(cc, bodyStart, bodyEnd)

	unwind, fde, err := normalizeUnwind(cc.Unwind, tableUnwind)
	if err != nil {
		return CompiledFunction{}, nil, err
	}
	out.Body.Unwind = unwind
	return out, fde, nil
}

// normalizeRelocation maps a machine relocation onto the portable form.
// Function symbols carry module-wide indices; only locally defined functions
// are legal targets.
func normalizeRelocation(module *wasm.ModuleInfo, r backend.MachReloc) (Relocation, error) {
	out := Relocation{Offset: r.Offset, Addend: r.Addend}

	switch r.Kind {
	case backend.RelocAbs8:
		out.Kind = RelocationAbs8
	case backend.RelocX86CallPCRel4:
		out.Kind = RelocationX86CallPCRel4
	case backend.RelocArm64Call:
		out.Kind = RelocationArm64Call
	default:
		return Relocation{}, &InternalConsistencyError{
			Reason: fmt.Sprintf("relocation kind %d has no portable equivalent", r.Kind),
		}
	}

	switch r.Name.Kind {
	case backend.NameKindUserFunc:
		if int(r.Name.FuncIndex) >= len(module.Functions) {
			return Relocation{}, &InternalConsistencyError{
				Reason: fmt.Sprintf("relocation against unknown function %d", r.Name.FuncIndex),
			}
		}
		local, ok := module.LocalFunctionIndexFor(wasm.FunctionIndex(r.Name.FuncIndex))
		if !ok {
			return Relocation{}, &InternalConsistencyError{
				Reason: fmt.Sprintf("relocation against imported function %d", r.Name.FuncIndex),
			}
		}
		out.Target = RelocationTarget{Kind: RelocationTargetLocalFunc, LocalFunc: local}
	case backend.NameKindLibCall:
		out.Target = RelocationTarget{Kind: RelocationTargetLibCall, LibCall: r.Name.LibCall}
	default:
		return Relocation{}, &InternalConsistencyError{
			Reason: fmt.Sprintf("relocation against unknown symbol kind %d", r.Name.Kind),
		}
	}
	return out, nil
}

// normalizeTrapKind maps machine trap kinds 1:1 onto the closed portable
// set. Interrupt and backend-defined codes have no portable meaning.
func normalizeTrapKind(k backend.TrapKind) (TrapCode, error) {
	switch k {
	case backend.TrapStackOverflow:
		return TrapCodeStackOverflow, nil
	case backend.TrapHeapOutOfBounds:
		return TrapCodeHeapAccessOutOfBounds, nil
	case backend.TrapHeapMisaligned:
		return TrapCodeHeapMisaligned, nil
	case backend.TrapTableOutOfBounds:
		return TrapCodeTableAccessOutOfBounds, nil
	case backend.TrapIndirectCallToNull:
		return TrapCodeIndirectCallToNull, nil
	case backend.TrapBadSignature:
		return TrapCodeBadSignature, nil
	case backend.TrapIntegerOverflow:
		return TrapCodeIntegerOverflow, nil
	case backend.TrapIntegerDivisionByZero:
		return TrapCodeIntegerDivisionByZero, nil
	case backend.TrapBadConversionToInteger:
		return TrapCodeBadConversionToInteger, nil
	case backend.TrapUnreachable:
		return TrapCodeUnreachableCodeReached, nil
	default:
		return 0, &InternalConsistencyError{
			Reason: fmt.Sprintf("trap kind %q has no portable equivalent", k),
		}
	}
}

// normalizeUnwind splits the backend unwind variant into the portable tag
// and, for table-based targets, the FDE destined for the shared frame table.
// When the target carries no frame table, an FDE degrades to absent: the
// portable tag must never claim a table entry that will not be emitted.
func normalizeUnwind(u backend.UnwindInfo, tableUnwind bool) (UnwindInfo, *backend.UnwindFDE, error) {
	switch v := u.(type) {
	case nil:
		return nil, nil, nil
	case *backend.UnwindFDE:
		if !tableUnwind {
			return nil, nil, nil
		}
		return &UnwindDwarf{}, v, nil
	case *backend.UnwindWindows:
		return &UnwindWindowsX64{Data: v.Data}, nil, nil
	default:
		return nil, nil, &InternalConsistencyError{
			Reason: fmt.Sprintf("unwind variant %T has no portable equivalent", u),
		}
	}
}

// buildAddressMap produces the per-function source map from the backend's
// reported source locations, sorted by code offset.
func buildAddressMap(cc *backend.CompiledCode, bodyStart, bodyEnd uint32) FunctionAddressMap {
	am := FunctionAddressMap{
		StartSrcOffset: bodyStart,
		EndSrcOffset:   bodyEnd,
		BodyLen:        uint32(len(cc.Code)),
	}
	for _, l := range cc.SourceLocs {
		am.Instructions = append(am.Instructions, InstructionAddressMap{
			SrcOffset:  l.SrcOffset,
			CodeOffset: l.CodeOffset,
		})
	}
	sort.SliceStable(am.Instructions, func(i, j int) bool {
		return am.Instructions[i].CodeOffset < am.Instructions[j].CodeOffset
	})
	return am
}
