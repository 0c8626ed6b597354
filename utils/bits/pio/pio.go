// Package pio reads and writes fixed-width big-endian integers in byte slices.
package pio

import "encoding/binary"

// RecommendBufioSize is the buffer size used for buffered container writers.
const RecommendBufioSize = 64 * 1024

func U8(b []byte) uint8 { return b[0] }

func U16BE(b []byte) uint16 { return binary.BigEndian.Uint16(b) }

func U24BE(b []byte) uint32 {
	_ = b[2]
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

func U32BE(b []byte) uint32 { return binary.BigEndian.Uint32(b) }

func U64BE(b []byte) uint64 { return binary.BigEndian.Uint64(b) }

func I16BE(b []byte) int16 { return int16(U16BE(b)) } //nolint:gosec // two's complement reinterpretation

func I24BE(b []byte) int32 {
	v := int32(U24BE(b)) //nolint:gosec // 24 bits fit
	if v&0x800000 != 0 {
		v -= 1 << 24
	}
	return v
}

func I32BE(b []byte) int32 { return int32(U32BE(b)) } //nolint:gosec // two's complement reinterpretation

func I64BE(b []byte) int64 { return int64(U64BE(b)) } //nolint:gosec // two's complement reinterpretation

func PutU8(b []byte, v uint8) { b[0] = v }

func PutU16BE(b []byte, v uint16) { binary.BigEndian.PutUint16(b, v) }

func PutU24BE(b []byte, v uint32) {
	_ = b[2]
	b[0] = byte(v >> 16) //nolint:gosec // truncation intended
	b[1] = byte(v >> 8)  //nolint:gosec // truncation intended
	b[2] = byte(v)       //nolint:gosec // truncation intended
}

func PutU32BE(b []byte, v uint32) { binary.BigEndian.PutUint32(b, v) }

func PutU64BE(b []byte, v uint64) { binary.BigEndian.PutUint64(b, v) }

func PutI16BE(b []byte, v int16) { PutU16BE(b, uint16(v)) } //nolint:gosec // two's complement reinterpretation

func PutI32BE(b []byte, v int32) { PutU32BE(b, uint32(v)) } //nolint:gosec // two's complement reinterpretation

func PutI64BE(b []byte, v int64) { PutU64BE(b, uint64(v)) } //nolint:gosec // two's complement reinterpretation
