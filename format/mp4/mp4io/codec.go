package mp4io

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/ugparu/gomux/utils/bits/pio"
)

// ParseError reports the chain of boxes and fields that failed to parse.
type ParseError struct {
	Debug  string
	Offset int
	prev   *ParseError
}

func (p *ParseError) Error() string {
	s := []string{}
	for err := p; err != nil; err = err.prev {
		s = append(s, fmt.Sprintf("%s:%d", err.Debug, err.Offset))
	}
	return "mp4io: parse error: " + strings.Join(s, ",")
}

func parseErr(debug string, offset int, prev error) error {
	var pe *ParseError
	errors.As(prev, &pe)
	return &ParseError{Debug: debug, Offset: offset, prev: pe}
}

// maxImplicitEntries bounds tables whose entries are not stored one by one.
const maxImplicitEntries = 1 << 24

// reader decodes big endian fields. The first short read sticks as err.
type reader struct {
	b      []byte
	n      int
	offset int
	err    error
}

func newReader(b []byte, offset int) *reader {
	return &reader{b: b, n: HeaderSize, offset: offset}
}

func (r *reader) take(k int, field string) []byte {
	if r.err != nil {
		return nil
	}
	if k < 0 || len(r.b) < r.n+k {
		r.err = parseErr(field, r.offset+r.n, nil)
		return nil
	}
	p := r.b[r.n : r.n+k]
	r.n += k
	return p
}

func (r *reader) skip(k int, field string) { r.take(k, field) }

func (r *reader) u8(field string) uint8 {
	if p := r.take(1, field); p != nil {
		return p[0]
	}
	return 0
}

func (r *reader) u16(field string) uint16 {
	if p := r.take(2, field); p != nil {
		return pio.U16BE(p)
	}
	return 0
}

func (r *reader) u24(field string) uint32 {
	if p := r.take(3, field); p != nil {
		return pio.U24BE(p)
	}
	return 0
}

func (r *reader) u32(field string) uint32 {
	if p := r.take(4, field); p != nil {
		return pio.U32BE(p)
	}
	return 0
}

func (r *reader) u64(field string) uint64 {
	if p := r.take(8, field); p != nil {
		return pio.U64BE(p)
	}
	return 0
}

// count reads an entry count and checks that size bytes per entry follow.
func (r *reader) count(size int, field string) int {
	c := int(r.u32(field))
	if r.err == nil && (len(r.b)-r.n)/size < c {
		r.err = parseErr(field, r.offset+r.n, nil)
		return 0
	}
	return c
}

// writer encodes big endian fields into a buffer of at least Len() bytes.
type writer struct {
	b []byte
	n int
}

func newWriter(b []byte) *writer {
	return &writer{b: b, n: HeaderSize}
}

func (w *writer) u8(v uint8) {
	w.b[w.n] = v
	w.n++
}

func (w *writer) u16(v uint16) {
	pio.PutU16BE(w.b[w.n:], v)
	w.n += 2
}

func (w *writer) u24(v uint32) {
	pio.PutU24BE(w.b[w.n:], v)
	w.n += 3
}

func (w *writer) u32(v uint32) {
	pio.PutU32BE(w.b[w.n:], v)
	w.n += 4
}

func (w *writer) u64(v uint64) {
	pio.PutU64BE(w.b[w.n:], v)
	w.n += 8
}

func (w *writer) bytes(p []byte) {
	w.n += copy(w.b[w.n:], p)
}

func (w *writer) zero(k int) {
	clear(w.b[w.n : w.n+k])
	w.n += k
}

// finish writes the box header and returns the box size.
func (w *writer) finish(tag Tag) int {
	putHeader(w.b, w.n, tag)
	return w.n
}

func putHeader(b []byte, size int, tag Tag) {
	pio.PutU32BE(b, uint32(size)) //nolint:gosec // boxes written here stay below 4GiB
	pio.PutU32BE(b[4:], uint32(tag))
}

// FullBox is the version and flags prefix of ISO/IEC 14496-12 4.2.
type FullBox struct {
	Version uint8
	Flags   uint32
}

func (fb *FullBox) read(r *reader) {
	fb.Version = r.u8("version")
	fb.Flags = r.u24("flags")
}

func (fb FullBox) write(w *writer) {
	w.u8(fb.Version)
	w.u24(fb.Flags)
}

const fullBoxSize = 4

func marshalBox(b []byte, tag Tag, children []Atom) int {
	n := HeaderSize
	for _, child := range children {
		n += child.Marshal(b[n:])
	}
	putHeader(b, n, tag)
	return n
}

func boxLen(children []Atom) int {
	n := HeaderSize
	for _, child := range children {
		n += child.Len()
	}
	return n
}

// walk calls visit for every child box of b starting at byte n.
func walk(b []byte, n, offset int, visit func(tag Tag, box []byte, off int) error) error {
	for n+HeaderSize <= len(b) {
		size := int(pio.U32BE(b[n:]))
		tag := Tag(pio.U32BE(b[n+4:]))
		if size < HeaderSize || len(b)-n < size {
			return parseErr("TagSizeInvalid", offset+n, nil)
		}
		if err := visit(tag, b[n:n+size], offset+n); err != nil {
			return parseErr(tag.String(), offset+n, err)
		}
		n += size
	}
	return nil
}

func decode[T any, P interface {
	*T
	Atom
}](box []byte, off int) (P, error) {
	atom := P(new(T))
	if _, err := atom.Unmarshal(box, off); err != nil {
		return nil, err
	}
	return atom, nil
}

func unknown(tag Tag, box []byte, off int) *Dummy {
	d := &Dummy{Tag_: tag, Data: box}
	d.setPos(off, len(box))
	return d
}

func PutFixed16(b []byte, f float64) {
	intpart, fracpart := math.Modf(f)
	b[0] = uint8(intpart)
	b[1] = uint8(fracpart * 256.0)
}

func GetFixed16(b []byte) float64 {
	return float64(b[0]) + float64(b[1])/256.0
}

func PutFixed32(b []byte, f float64) {
	intpart, fracpart := math.Modf(f)
	pio.PutU16BE(b[0:2], uint16(intpart))
	pio.PutU16BE(b[2:4], uint16(fracpart*65536.0))
}

func GetFixed32(b []byte) float64 {
	return float64(pio.U16BE(b[0:2])) + float64(pio.U16BE(b[2:4]))/65536.0
}
