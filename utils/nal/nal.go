package nal

import (
	"github.com/ugparu/gomux/utils/bits/pio"
)

// Format identifies how NAL units are delimited inside a payload.
type Format int

// Constants for different NALU (Network Abstraction Layer Unit) formats.
const (
	FormatRaw    Format = iota // single unit without framing
	FormatAVCC                 // 4-byte big-endian length prefixes
	FormatAnnexB               // 00 00 01 / 00 00 00 01 start codes
)

func (f Format) String() string {
	switch f {
	case FormatAVCC:
		return "AVCC"
	case FormatAnnexB:
		return "AnnexB"
	default:
		return "Raw"
	}
}

// MinNaluSize is the minimum size of a Network Abstraction Layer Unit (NALU).
const MinNaluSize = 4

// startCodeAt reports the length of the start code at pos, if any.
func startCodeAt(b []byte, pos int) (int, bool) {
	if pos+2 >= len(b) || b[pos] != 0 {
		return 0, false
	}

	val3 := pio.U24BE(b[pos:])
	if val3 == 1 {
		return 3, true //nolint:mnd
	}

	if val3 == 0 && pos+3 < len(b) && b[pos+3] == 1 {
		return 4, true //nolint:mnd
	}

	return 0, false
}

func splitAnnexB(b []byte) (nalus [][]byte) {
	pos := 0
	if n, ok := startCodeAt(b, 0); ok {
		pos = n
	}
	start := pos
	for pos < len(b) {
		n, ok := startCodeAt(b, pos)
		if !ok {
			pos++
			continue
		}
		if pos > start {
			nalus = append(nalus, trimTrailingZeros(b[start:pos]))
		}
		pos += n
		start = pos
	}
	if start < len(b) {
		nalus = append(nalus, b[start:])
	}
	return nalus
}

// trailing_zero_8bits may precede a 4-byte start code.
func trimTrailingZeros(b []byte) []byte {
	for len(b) > 1 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return b
}

func splitAVCC(b []byte) (nalus [][]byte, ok bool) {
	for len(b) >= MinNaluSize {
		size := pio.U32BE(b)
		b = b[MinNaluSize:]
		if uint64(size) > uint64(len(b)) {
			return nil, false
		}
		if size > 0 {
			nalus = append(nalus, b[:size])
		}
		b = b[size:]
	}
	return nalus, len(b) == 0 && len(nalus) > 0
}

// SplitNALUs splits a payload into NAL units and reports the framing that was found.
// AVCC is tried first. A payload that is not a consistent chain of length prefixes
// is treated as Annex B when it starts with a start code, and as one raw unit otherwise.
func SplitNALUs(b []byte) ([][]byte, Format) {
	if len(b) < MinNaluSize {
		return [][]byte{b}, FormatRaw
	}

	if nalus, ok := splitAVCC(b); ok {
		return nalus, FormatAVCC
	}

	if pio.U24BE(b) == 1 || pio.U32BE(b) == 1 {
		return splitAnnexB(b), FormatAnnexB
	}

	return [][]byte{b}, FormatRaw
}

// AVCCLen returns the size of nalus once written with 4-byte length prefixes.
func AVCCLen(nalus [][]byte) (n int) {
	for _, nalu := range nalus {
		n += MinNaluSize + len(nalu)
	}
	return
}

// PutAVCC writes nalus into dst with 4-byte length prefixes. dst must hold AVCCLen(nalus) bytes.
func PutAVCC(dst []byte, nalus [][]byte) int {
	n := 0
	for _, nalu := range nalus {
		pio.PutU32BE(dst[n:], uint32(len(nalu))) //nolint:gosec // NAL units are far below 4GB
		n += MinNaluSize
		n += copy(dst[n:], nalu)
	}
	return n
}

// ToAVCC converts an Annex B or raw payload to length-prefixed form. AVCC input is returned as is.
func ToAVCC(b []byte) []byte {
	nalus, format := SplitNALUs(b)
	if format == FormatAVCC {
		return b
	}
	out := make([]byte, AVCCLen(nalus))
	PutAVCC(out, nalus)
	return out
}

// ToRBSP removes emulation prevention bytes (00 00 03) from a NAL unit.
// The input is returned unchanged when it has none.
func ToRBSP(b []byte) []byte {
	var out []byte
	zeros := 0
	for i, c := range b {
		if zeros >= 2 && c == 3 { //nolint:mnd // emulation_prevention_three_byte
			if out == nil {
				out = append(make([]byte, 0, len(b)), b[:i]...)
			}
			zeros = 0
			continue
		}
		if out != nil {
			out = append(out, c)
		}
		if c == 0 {
			zeros++
		} else {
			zeros = 0
		}
	}
	if out == nil {
		return b
	}
	return out
}
