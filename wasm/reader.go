package wasm

import "io"

// CodeReader is the byte stream a function body is decoded from. Beyond
// plain reading it reports the original module offset of the next byte, so
// that traps and address maps produced downstream always refer to offsets in
// the module binary even when the stream is wrapped by instrumentation.
//
// Implementations wrapping another CodeReader (instrumentation middleware)
// must keep CurrentOffset and Range accurate with respect to the original
// module binary, not the rewritten stream.
type CodeReader interface {
	io.Reader
	io.ByteReader
	// CurrentOffset returns the module offset of the next unread byte.
	CurrentOffset() uint32
	// Range returns the module offsets of the first byte and one past the
	// last byte of the function body.
	Range() (start, end uint32)
}

// codeReader is the plain CodeReader over a function body slice.
type codeReader struct {
	body         []byte
	moduleOffset uint32
	pos          int
}

// NewCodeReader returns a CodeReader over body, where moduleOffset is the
// offset of body's first byte in the module binary.
func NewCodeReader(body []byte, moduleOffset uint32) CodeReader {
	return &codeReader{body: body, moduleOffset: moduleOffset}
}

func (r *codeReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.body) {
		return 0, io.EOF
	}
	n := copy(p, r.body[r.pos:])
	r.pos += n
	return n, nil
}

func (r *codeReader) ReadByte() (byte, error) {
	if r.pos >= len(r.body) {
		return 0, io.EOF
	}
	b := r.body[r.pos]
	r.pos++
	return b, nil
}

func (r *codeReader) CurrentOffset() uint32 {
	return r.moduleOffset + uint32(r.pos)
}

func (r *codeReader) Range() (uint32, uint32) {
	return r.moduleOffset, r.moduleOffset + uint32(len(r.body))
}
