// Package crucible compiles validated WebAssembly function bodies into
// position-independent machine code through a pluggable code-generation
// backend, producing relocations, trap tables, unwind information and ABI
// trampolines aggregated into a single Compilation artifact.
//
// The pipeline per function is: middleware-wrapped bytecode reader →
// backend-neutral IR (internal/frontend) → machine code (backend.Machine) →
// portable artifact (normalization). Trampolines are built as IR directly
// and compiled through the same backend, and per-function frame descriptors
// are merged into one shared eh_frame section.
package crucible

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cruciblelabs/crucible/backend"
	"github.com/cruciblelabs/crucible/internal/frontend"
	"github.com/cruciblelabs/crucible/ir"
	"github.com/cruciblelabs/crucible/wasm"
)

// Compiler drives module compilation. It is immutable and safe for
// concurrent CompileModule calls.
type Compiler struct {
	workers    int
	log        *zap.Logger
	middleware []FunctionMiddleware
}

// NewCompiler returns a Compiler for the given configuration; nil selects
// the defaults.
func NewCompiler(cfg *Config) *Compiler {
	if cfg == nil {
		cfg = NewConfig()
	}
	workers := cfg.workers
	if workers < 1 {
		workers = 1
	}
	logger := cfg.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Compiler{
		workers:    workers,
		log:        logger,
		middleware: append([]FunctionMiddleware(nil), cfg.middleware...),
	}
}

// worker is the per-goroutine scratch: one translator and one backend
// machine, reused across the functions the worker is assigned.
type worker struct {
	translator *frontend.Translator
	machine    backend.Machine
}

func newWorker(be backend.Backend) (*worker, error) {
	m, err := be.NewMachine()
	if err != nil {
		return nil, fmt.Errorf("create backend machine: %w", err)
	}
	return &worker{translator: frontend.NewTranslator(), machine: m}, nil
}

// CompileModule compiles every local function body of the module, in local
// function index order, plus one call trampoline per signature and one
// dynamic trampoline per imported function.
//
// Results are placed by index, never by completion order, so sequential and
// pooled compilation produce byte-identical artifacts. The first error
// aborts the module; there is no partial output.
func (c *Compiler) CompileModule(ctx context.Context, be backend.Backend, module *wasm.ModuleInfo, bodies []FunctionBodyData) (*Compilation, error) {
	began := time.Now()
	isa := be.ISA()
	// Only the System V convention carries the shared frame table; on other
	// conventions table-shaped unwind degrades to absent during normalization.
	tableUnwind := isa.CallConv == backend.CallConvSystemV

	if uint32(len(bodies)) != module.LocalFunctionCount() {
		return nil, &InternalConsistencyError{
			Reason: fmt.Sprintf("%d bodies for %d local functions", len(bodies), module.LocalFunctionCount()),
		}
	}

	// Lower the signature table once; every worker shares it read-only.
	sigs := make([]*ir.Signature, len(module.Signatures))
	for i, ft := range module.Signatures {
		sigs[i] = frontend.LowerFunctionType(ft)
	}

	functions := make([]CompiledFunction, len(bodies))
	fdes := make([]*backend.UnwindFDE, len(bodies))

	compileOne := func(w *worker, i int) error {
		fnBegan := time.Now()
		body := bodies[i]
		reader := applyMiddleware(wasm.NewCodeReader(body.Bytes, body.ModuleOffset), c.middleware)

		funcIndex := module.FunctionIndexForLocal(wasm.LocalFunctionIndex(i))
		fn := &ir.Func{
			Name:      ir.FuncName(uint32(funcIndex)),
			Signature: sigs[module.Functions[funcIndex]],
		}
		if err := w.translator.Translate(module, sigs, reader, fn); err != nil {
			return &TranslationError{Index: wasm.LocalFunctionIndex(i), Err: err}
		}

		cc, err := w.machine.Compile(fn)
		if err != nil {
			return &CodegenError{What: "function", Index: uint32(i), IR: fn.String(), Err: err}
		}
		w.machine.Reset()

		bodyStart, bodyEnd := reader.Range()
		out, fde, err := normalizeFunction(module, cc, bodyStart, bodyEnd, tableUnwind)
		if err != nil {
			return err
		}
		functions[i] = out
		fdes[i] = fde
		c.log.Debug("compiled function",
			zap.Int("index", i),
			zap.Int("codeBytes", len(out.Body.Code)),
			zap.Duration("elapsed", time.Since(fnBegan)))
		return nil
	}

	if c.workers <= 1 || len(bodies) < 2 {
		w, err := newWorker(be)
		if err != nil {
			return nil, err
		}
		for i := range bodies {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := compileOne(w, i); err != nil {
				return nil, err
			}
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		n := c.workers
		if n > len(bodies) {
			n = len(bodies)
		}
		var next atomic.Int64
		for wk := 0; wk < n; wk++ {
			g.Go(func() error {
				w, err := newWorker(be)
				if err != nil {
					return err
				}
				for {
					i := int(next.Add(1)) - 1
					if i >= len(bodies) {
						return nil
					}
					if err := gctx.Err(); err != nil {
						return err
					}
					if err := compileOne(w, i); err != nil {
						return err
					}
				}
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	// Trampoline passes run sequentially: the bodies are tiny and their
	// order defines the artifact's index spaces.
	tm, err := be.NewMachine()
	if err != nil {
		return nil, fmt.Errorf("create backend machine: %w", err)
	}
	callTrampolines := make([]FunctionBody, len(sigs))
	for si, sig := range sigs {
		fb, err := compileTrampoline(tm, buildCallTrampoline(sig), "call trampoline", uint32(si))
		if err != nil {
			return nil, err
		}
		callTrampolines[si] = fb
	}

	offsets := NewVMOffsetsForTrampolines(isa.PointerBytes)
	dynamicTrampolines := make([]FunctionBody, module.ImportedFunctionCount)
	for ii := uint32(0); ii < module.ImportedFunctionCount; ii++ {
		fn := buildDynamicTrampoline(offsets, sigs[module.Functions[ii]])
		fn.Name = fmt.Sprintf("dynamic_trampoline:%d", ii)
		fb, err := compileTrampoline(tm, fn, "dynamic trampoline", ii)
		if err != nil {
			return nil, err
		}
		dynamicTrampolines[ii] = fb
	}

	comp := &Compilation{
		Functions:          functions,
		CallTrampolines:    callTrampolines,
		DynamicTrampolines: dynamicTrampolines,
	}
	if tableUnwind {
		section, err := buildDwarfSection(fdes)
		if err != nil {
			return nil, err
		}
		if section != nil {
			comp.CustomSections = append(comp.CustomSections, *section)
			comp.Dwarf = &Dwarf{Section: SectionIndex(len(comp.CustomSections) - 1)}
		}
	}

	c.log.Info("compiled module",
		zap.Int("functions", len(bodies)),
		zap.Int("signatures", len(sigs)),
		zap.Uint32("imports", module.ImportedFunctionCount),
		zap.Duration("elapsed", time.Since(began)))
	return comp, nil
}
