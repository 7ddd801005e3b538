// Package leb128 decodes the LEB128 variable-length integers used throughout
// WebAssembly function bodies. All decoders additionally report how many
// bytes were consumed so callers can keep accurate source-offset accounting.
package leb128

import (
	"errors"
	"fmt"
	"io"
)

// ErrOverflow is returned when an encoding exceeds the bit width of the
// requested integer type.
var ErrOverflow = errors.New("leb128: integer overflow")

const (
	continuationBit = 0x80
	payloadMask     = 0x7f
	signBit         = 0x40
)

func readByte(r io.Reader) (byte, error) {
	if br, ok := r.(io.ByteReader); ok {
		return br.ReadByte()
	}
	var b [1]byte
	_, err := io.ReadFull(r, b[:])
	return b[0], err
}

// DecodeUint32 reads an unsigned 32-bit LEB128 integer.
func DecodeUint32(r io.Reader) (ret uint32, num uint64, err error) {
	for shift := 0; shift < 35; shift += 7 {
		b, err := readByte(r)
		if err != nil {
			return 0, 0, fmt.Errorf("readByte failed: %w", err)
		}
		num++
		if shift == 28 && b&0xf0 != 0 {
			return 0, 0, ErrOverflow
		}
		ret |= uint32(b&payloadMask) << shift
		if b&continuationBit == 0 {
			return ret, num, nil
		}
	}
	return 0, 0, ErrOverflow
}

// DecodeUint64 reads an unsigned 64-bit LEB128 integer.
func DecodeUint64(r io.Reader) (ret uint64, num uint64, err error) {
	for shift := 0; shift < 70; shift += 7 {
		b, err := readByte(r)
		if err != nil {
			return 0, 0, fmt.Errorf("readByte failed: %w", err)
		}
		num++
		if shift == 63 && b&0xfe != 0 {
			return 0, 0, ErrOverflow
		}
		ret |= uint64(b&payloadMask) << shift
		if b&continuationBit == 0 {
			return ret, num, nil
		}
	}
	return 0, 0, ErrOverflow
}

// DecodeInt32 reads a signed 32-bit LEB128 integer.
func DecodeInt32(r io.Reader) (ret int32, num uint64, err error) {
	v, num, err := decodeSigned(r, 32)
	return int32(v), num, err
}

// DecodeInt64 reads a signed 64-bit LEB128 integer.
func DecodeInt64(r io.Reader) (ret int64, num uint64, err error) {
	return decodeSigned(r, 64)
}

// DecodeInt33AsInt64 reads the signed 33-bit integer used by block types.
func DecodeInt33AsInt64(r io.Reader) (ret int64, num uint64, err error) {
	return decodeSigned(r, 33)
}

func decodeSigned(r io.Reader, bits int) (ret int64, num uint64, err error) {
	var shift int
	var b byte
	for {
		b, err = readByte(r)
		if err != nil {
			return 0, 0, fmt.Errorf("readByte failed: %w", err)
		}
		num++
		ret |= int64(b&payloadMask) << shift
		shift += 7
		if b&continuationBit == 0 {
			break
		}
		if shift >= bits {
			return 0, 0, ErrOverflow
		}
	}
	// Sign-extend from the final payload byte.
	if shift < 64 && b&signBit != 0 {
		ret |= -1 << shift
	}
	if bits < 64 {
		// Reject encodings whose value does not fit the requested width.
		min := int64(-1) << (bits - 1)
		max := -min - 1
		if ret < min || ret > max {
			return 0, 0, ErrOverflow
		}
	}
	return ret, num, nil
}
