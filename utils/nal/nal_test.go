package nal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitNALUs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		in     []byte
		want   [][]byte
		format Format
	}{
		{
			name:   "short raw",
			in:     []byte{0x65, 0x88},
			want:   [][]byte{{0x65, 0x88}},
			format: FormatRaw,
		},
		{
			name:   "avcc two units",
			in:     []byte{0, 0, 0, 2, 0x67, 0xAA, 0, 0, 0, 1, 0x68},
			want:   [][]byte{{0x67, 0xAA}, {0x68}},
			format: FormatAVCC,
		},
		{
			name:   "annexb mixed start codes",
			in:     []byte{0, 0, 0, 1, 0x67, 0xAA, 0xBB, 0, 0, 1, 0x68, 0xCC, 0, 0, 0, 1, 0x65, 0x11},
			want:   [][]byte{{0x67, 0xAA, 0xBB}, {0x68, 0xCC}, {0x65, 0x11}},
			format: FormatAnnexB,
		},
		{
			name:   "annexb three byte start",
			in:     []byte{0, 0, 1, 0x09, 0xF0, 0, 0, 1, 0x41, 0x9A},
			want:   [][]byte{{0x09, 0xF0}, {0x41, 0x9A}},
			format: FormatAnnexB,
		},
		{
			name:   "no framing",
			in:     []byte{0xFF, 0xF1, 0x50, 0x80, 0x01},
			want:   [][]byte{{0xFF, 0xF1, 0x50, 0x80, 0x01}},
			format: FormatRaw,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			nalus, format := SplitNALUs(tt.in)
			require.Equal(t, tt.format, format)
			require.Equal(t, tt.want, nalus)
		})
	}
}

func TestToAVCC(t *testing.T) {
	t.Parallel()

	annexb := []byte{0, 0, 0, 1, 0x67, 0xAA, 0xBB, 0, 0, 1, 0x65, 0xCC}
	out := ToAVCC(annexb)
	require.Equal(t, []byte{0, 0, 0, 3, 0x67, 0xAA, 0xBB, 0, 0, 0, 2, 0x65, 0xCC}, out)

	nalus, format := SplitNALUs(out)
	require.Equal(t, FormatAVCC, format)
	require.Len(t, nalus, 2)

	same := ToAVCC(out)
	require.Equal(t, out, same)
}

func TestAVCCLen(t *testing.T) {
	t.Parallel()

	nalus := [][]byte{{1, 2, 3}, {4}}
	require.Equal(t, 12, AVCCLen(nalus))

	dst := make([]byte, AVCCLen(nalus))
	require.Equal(t, len(dst), PutAVCC(dst, nalus))
}

func TestToRBSP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []byte
		want []byte
	}{
		{name: "untouched", in: []byte{0x67, 0x42, 0x00, 0x1e}, want: []byte{0x67, 0x42, 0x00, 0x1e}},
		{name: "single escape", in: []byte{0x67, 0x00, 0x00, 0x03, 0x01}, want: []byte{0x67, 0x00, 0x00, 0x01}},
		{name: "double escape", in: []byte{0x00, 0x00, 0x03, 0x00, 0x00, 0x03, 0x00}, want: []byte{0x00, 0x00, 0x00, 0x00, 0x00}},
		{name: "three after one zero", in: []byte{0x01, 0x00, 0x03}, want: []byte{0x01, 0x00, 0x03}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, ToRBSP(tt.in))
		})
	}
}
