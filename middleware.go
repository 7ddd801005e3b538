package crucible

import "github.com/cruciblelabs/crucible/wasm"

// FunctionMiddleware rewrites the byte stream of one function body before
// translation, for instrumentation such as gas metering. The returned reader
// must keep reporting original module offsets through CurrentOffset and
// Range, so traps and address maps stay anchored in the module binary no
// matter how the stream was transformed.
//
// Implementations must be safe for concurrent use: when compilation fans out
// over a worker pool, one middleware value wraps bodies on every worker.
type FunctionMiddleware interface {
	Transform(r wasm.CodeReader) wasm.CodeReader
}

// FunctionMiddlewareFunc adapts a function to the FunctionMiddleware
// interface.
type FunctionMiddlewareFunc func(r wasm.CodeReader) wasm.CodeReader

func (f FunctionMiddlewareFunc) Transform(r wasm.CodeReader) wasm.CodeReader { return f(r) }

// applyMiddleware builds the per-function reader chain, first middleware
// innermost.
func applyMiddleware(r wasm.CodeReader, chain []FunctionMiddleware) wasm.CodeReader {
	for _, mw := range chain {
		r = mw.Transform(r)
	}
	return r
}
