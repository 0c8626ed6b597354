// Package bits provides MSB-first bit readers and writers used by the codec parsers.
package bits

import (
	"errors"
	"io"

	"github.com/icza/bitio"
)

const maxBits = 64

var errTooManyBits = errors.New("bits: more than 64 bits requested")

// Reader reads big-endian bit fields from R.
type Reader struct {
	R  io.Reader
	br *bitio.Reader
}

func (r *Reader) reader() *bitio.Reader {
	if r.br == nil {
		r.br = bitio.NewReader(r.R)
	}
	return r.br
}

// ReadBits64 reads n bits into the low bits of the result.
func (r *Reader) ReadBits64(n int) (uint64, error) {
	if n < 0 || n > maxBits {
		return 0, errTooManyBits
	}
	if n == 0 {
		return 0, nil
	}
	v, err := r.reader().ReadBits(uint8(n))
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	return v, err
}

func (r *Reader) ReadBits(n int) (uint, error) {
	v, err := r.ReadBits64(n)
	return uint(v), err
}

func (r *Reader) ReadBits32(n int) (uint32, error) {
	v, err := r.ReadBits64(n)
	return uint32(v), err //nolint:gosec // callers request at most 32 bits
}

func (r *Reader) ReadBit() (uint, error) {
	return r.ReadBits(1)
}

func (r *Reader) ReadFlag() (bool, error) {
	return r.reader().ReadBool()
}

// GolombBitReader adds Exp-Golomb decoding on top of Reader.
type GolombBitReader struct {
	R io.Reader
	Reader
}

func (r *GolombBitReader) init() {
	if r.Reader.R == nil {
		r.Reader.R = r.R
	}
}

func (r *GolombBitReader) ReadBit() (uint, error) {
	r.init()
	return r.Reader.ReadBit()
}

func (r *GolombBitReader) ReadBits(n int) (uint, error) {
	r.init()
	return r.Reader.ReadBits(n)
}

func (r *GolombBitReader) ReadBits32(n int) (uint32, error) {
	r.init()
	return r.Reader.ReadBits32(n)
}

func (r *GolombBitReader) ReadBits64(n int) (uint64, error) {
	r.init()
	return r.Reader.ReadBits64(n)
}

func (r *GolombBitReader) ReadFlag() (bool, error) {
	r.init()
	return r.Reader.ReadFlag()
}

// ReadExponentialGolombCode reads an unsigned Exp-Golomb value (ue(v)).
func (r *GolombBitReader) ReadExponentialGolombCode() (uint, error) {
	leadingZeros := 0
	for {
		b, err := r.ReadBit()
		if err != nil {
			return 0, err
		}
		if b != 0 {
			break
		}
		leadingZeros++
		if leadingZeros > 32 { //nolint:mnd
			return 0, errors.New("bits: invalid exp-golomb code")
		}
	}
	v, err := r.ReadBits(leadingZeros)
	if err != nil {
		return 0, err
	}
	return (1 << leadingZeros) - 1 + v, nil
}

// ReadSE reads a signed Exp-Golomb value (se(v)).
func (r *GolombBitReader) ReadSE() (int, error) {
	v, err := r.ReadExponentialGolombCode()
	if err != nil {
		return 0, err
	}
	if v&1 != 0 {
		return int((v + 1) / 2), nil //nolint:gosec // bounded by 33 bits
	}
	return -int(v / 2), nil //nolint:gosec // bounded by 33 bits
}

// Writer writes big-endian bit fields to W. FlushBits pads the last byte with zeros.
type Writer struct {
	W  io.Writer
	bw *bitio.Writer
}

func (w *Writer) writer() *bitio.Writer {
	if w.bw == nil {
		w.bw = bitio.NewWriter(w.W)
	}
	return w.bw
}

func (w *Writer) WriteBits(val uint, n int) error {
	if n < 0 || n > maxBits {
		return errTooManyBits
	}
	if n == 0 {
		return nil
	}
	return w.writer().WriteBits(uint64(val), uint8(n))
}

func (w *Writer) WriteFlag(b bool) error {
	return w.writer().WriteBool(b)
}

func (w *Writer) FlushBits() error {
	if w.bw == nil {
		return nil
	}
	err := w.bw.Close()
	w.bw = nil
	return err
}
