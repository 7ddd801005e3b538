package leb128

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeUint32(t *testing.T) {
	for _, tc := range []struct {
		bytes []byte
		exp   uint32
	}{
		{bytes: []byte{0x00}, exp: 0},
		{bytes: []byte{0x04}, exp: 4},
		{bytes: []byte{0x80, 0x7f}, exp: 16256},
		{bytes: []byte{0xe5, 0x8e, 0x26}, exp: 624485},
		{bytes: []byte{0x80, 0x80, 0x80, 0x4f}, exp: 165675008},
		{bytes: []byte{0xff, 0xff, 0xff, 0xff, 0xf}, exp: 0xffffffff},
	} {
		actual, num, err := DecodeUint32(bytes.NewReader(tc.bytes))
		require.NoError(t, err)
		require.Equal(t, tc.exp, actual)
		require.Equal(t, uint64(len(tc.bytes)), num)
	}
}

func TestDecodeUint32_Overflow(t *testing.T) {
	// 5th byte carrying bits beyond the 32nd.
	_, _, err := DecodeUint32(bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xff, 0x1f}))
	require.ErrorIs(t, err, ErrOverflow)
}

func TestDecodeUint64(t *testing.T) {
	for _, tc := range []struct {
		bytes []byte
		exp   uint64
	}{
		{bytes: []byte{0x00}, exp: 0},
		{bytes: []byte{0xe5, 0x8e, 0x26}, exp: 624485},
		{bytes: []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x1}, exp: 0xffffffffffffffff},
	} {
		actual, num, err := DecodeUint64(bytes.NewReader(tc.bytes))
		require.NoError(t, err)
		require.Equal(t, tc.exp, actual)
		require.Equal(t, uint64(len(tc.bytes)), num)
	}
}

func TestDecodeInt32(t *testing.T) {
	for _, tc := range []struct {
		bytes []byte
		exp   int32
	}{
		{bytes: []byte{0x00}, exp: 0},
		{bytes: []byte{0x04}, exp: 4},
		{bytes: []byte{0x7f}, exp: -1},
		{bytes: []byte{0x81, 0x01}, exp: 129},
		{bytes: []byte{0x7e}, exp: -2},
		{bytes: []byte{0xff, 0x7e}, exp: -129},
		{bytes: []byte{0x80, 0x80, 0x80, 0x80, 0x78}, exp: -2147483648},
	} {
		actual, num, err := DecodeInt32(bytes.NewReader(tc.bytes))
		require.NoError(t, err)
		require.Equal(t, tc.exp, actual)
		require.Equal(t, uint64(len(tc.bytes)), num)
	}
}

func TestDecodeInt64(t *testing.T) {
	for _, tc := range []struct {
		bytes []byte
		exp   int64
	}{
		{bytes: []byte{0x00}, exp: 0},
		{bytes: []byte{0x7f}, exp: -1},
		{bytes: []byte{0x81, 0x01}, exp: 129},
		{bytes: []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x7f}, exp: -9223372036854775808},
	} {
		actual, num, err := DecodeInt64(bytes.NewReader(tc.bytes))
		require.NoError(t, err)
		require.Equal(t, tc.exp, actual)
		require.Equal(t, uint64(len(tc.bytes)), num)
	}
}

func TestDecodeInt33AsInt64(t *testing.T) {
	for _, tc := range []struct {
		bytes []byte
		exp   int64
	}{
		{bytes: []byte{0x00}, exp: 0},
		{bytes: []byte{0x40}, exp: -64},
		{bytes: []byte{0x7f}, exp: -1},
		{bytes: []byte{0xff, 0xff, 0xff, 0xff, 0x0f}, exp: 4294967295},
		{bytes: []byte{0x80, 0x80, 0x80, 0x80, 0x70}, exp: -4294967296},
	} {
		actual, num, err := DecodeInt33AsInt64(bytes.NewReader(tc.bytes))
		require.NoError(t, err)
		require.Equal(t, tc.exp, actual)
		require.Equal(t, uint64(len(tc.bytes)), num)
	}
}
