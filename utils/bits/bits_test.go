package bits

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReaderReadBits(t *testing.T) {
	t.Parallel()

	r := &Reader{R: bytes.NewReader([]byte{0b1011_0011, 0xFF, 0x00})}

	v, err := r.ReadBits(3)
	require.NoError(t, err)
	require.Equal(t, uint(0b101), v)

	v, err = r.ReadBits(5)
	require.NoError(t, err)
	require.Equal(t, uint(0b10011), v)

	v32, err := r.ReadBits32(12)
	require.NoError(t, err)
	require.Equal(t, uint32(0xFF0), v32)

	_, err = r.ReadBits(8)
	require.ErrorIs(t, err, io.EOF)
}

func TestGolomb(t *testing.T) {
	t.Parallel()

	// ue: 1 -> 0, 010 -> 1, 011 -> 2, 00100 -> 3; se: 00101 -> -2
	r := &GolombBitReader{R: bytes.NewReader([]byte{0b1010_0110, 0b0100_0010, 0b1000_0000})}

	want := []uint{0, 1, 2, 3}
	for _, w := range want {
		v, err := r.ReadExponentialGolombCode()
		require.NoError(t, err)
		require.Equal(t, w, v)
	}

	se, err := r.ReadSE()
	require.NoError(t, err)
	require.Equal(t, -2, se)
}

func TestWriter(t *testing.T) {
	t.Parallel()

	buf := new(bytes.Buffer)
	w := &Writer{W: buf}
	require.NoError(t, w.WriteBits(0b00010, 5))
	require.NoError(t, w.WriteBits(0b0100, 4))
	require.NoError(t, w.WriteBits(0b0010, 4))
	require.NoError(t, w.FlushBits())
	require.Equal(t, []byte{0x12, 0x10}, buf.Bytes())

	r := &Reader{R: bytes.NewReader(buf.Bytes())}
	v, err := r.ReadBits(5)
	require.NoError(t, err)
	require.Equal(t, uint(2), v)
}

func TestTooManyBits(t *testing.T) {
	t.Parallel()

	r := &Reader{R: bytes.NewReader(make([]byte, 16))}
	_, err := r.ReadBits64(65)
	require.Error(t, err)

	w := &Writer{W: new(bytes.Buffer)}
	require.Error(t, w.WriteBits(0, 65))
}
