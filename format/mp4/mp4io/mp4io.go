// Package mp4io reads and writes ISO base media file format boxes.
package mp4io

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/ugparu/gomux/utils/bits/pio"
)

// HeaderSize is the size of a compact box header.
const HeaderSize = 8

// Sample flags of trun and trex entries.
const (
	SampleIsNonSync       uint32 = 0x00010000
	SampleHasDependencies uint32 = 0x01000000
	SampleNoDependencies  uint32 = 0x02000000

	SampleNonKeyframe = SampleHasDependencies | SampleIsNonSync
)

type Tag uint32

func (tag Tag) String() string {
	var b [4]byte
	pio.PutU32BE(b[:], uint32(tag))
	for i := range b {
		if b[i] == 0 {
			b[i] = ' '
		}
	}
	return string(b[:])
}

func StringToTag(tag string) Tag {
	var b [4]byte
	copy(b[:], tag)
	return Tag(pio.U32BE(b[:]))
}

type Atom interface {
	Pos() (int, int)
	Tag() Tag
	Marshal([]byte) int
	Unmarshal([]byte, int) (int, error)
	Len() int
	Children() []Atom
}

// AtomPos records where a box was found in its file.
type AtomPos struct {
	Offset int
	Size   int
}

func (ap AtomPos) Pos() (int, int) {
	return ap.Offset, ap.Size
}

func (ap *AtomPos) setPos(offset int, size int) {
	ap.Offset, ap.Size = offset, size
}

// leaf is embedded by boxes without children.
type leaf struct {
	AtomPos
}

func (leaf) Children() []Atom { return nil }

// Dummy keeps a box it does not understand verbatim, header included.
type Dummy struct {
	Data []byte
	Tag_ Tag //nolint:revive // Tag is the method
	leaf
}

func (d Dummy) Tag() Tag { return d.Tag_ }
func (d Dummy) Len() int { return len(d.Data) }
func (d Dummy) Marshal(b []byte) int { return copy(b, d.Data) }

func (d *Dummy) Unmarshal(b []byte, offset int) (int, error) {
	d.setPos(offset, len(b))
	d.Data = b
	return len(b), nil
}

func FindChildren(root Atom, tag Tag) Atom {
	if root.Tag() == tag {
		return root
	}
	for _, child := range root.Children() {
		if r := FindChildren(child, tag); r != nil {
			return r
		}
	}
	return nil
}

func FindChildrenByName(root Atom, tag string) Atom {
	return FindChildren(root, StringToTag(tag))
}

// ReadFileAtoms walks the top level boxes of r. moov and moof are parsed,
// every other box is returned as a Dummy with its position only.
func ReadFileAtoms(r io.ReadSeeker) (atoms []Atom, err error) {
	hdr := make([]byte, HeaderSize+8)
	for {
		var offset int64
		if offset, err = r.Seek(0, io.SeekCurrent); err != nil {
			return
		}
		if _, err = io.ReadFull(r, hdr[:HeaderSize]); err != nil {
			if errors.Is(err, io.EOF) {
				err = nil
			}
			return
		}
		hdrLen := int64(HeaderSize)
		size := int64(pio.U32BE(hdr))
		tag := Tag(pio.U32BE(hdr[4:]))

		switch size {
		case 1:
			if _, err = io.ReadFull(r, hdr[HeaderSize:]); err != nil {
				return atoms, parseErr("largesize", int(offset), nil)
			}
			size = pio.I64BE(hdr[HeaderSize:])
			hdrLen += 8
		case 0:
			var end int64
			if end, err = r.Seek(0, io.SeekEnd); err != nil {
				return
			}
			size = end - offset
			if _, err = r.Seek(offset+hdrLen, io.SeekStart); err != nil {
				return
			}
		}
		if size < hdrLen || size > math.MaxInt32 && (tag == MOOV || tag == MOOF) {
			return atoms, parseErr(tag.String(), int(offset), nil)
		}

		var atom Atom
		switch tag {
		case MOOV:
			atom = &Movie{}
		case MOOF:
			atom = &MovieFrag{}
		}

		if atom == nil {
			dummy := &Dummy{Tag_: tag}
			dummy.setPos(int(offset), int(size))
			atoms = append(atoms, dummy)
			if _, err = r.Seek(offset+size, io.SeekStart); err != nil {
				return
			}
			continue
		}

		b := make([]byte, size)
		copy(b, hdr[:hdrLen])
		if _, err = io.ReadFull(r, b[hdrLen:]); err != nil {
			return atoms, parseErr(tag.String(), int(offset), nil)
		}
		if hdrLen != HeaderSize {
			// children are parsed relative to a compact header
			b = b[hdrLen-HeaderSize:]
			copy(b, hdr[:HeaderSize])
			offset += hdrLen - HeaderSize
		}
		if _, err = atom.Unmarshal(b, int(offset)); err != nil {
			return
		}
		atoms = append(atoms, atom)
	}
}

func printAtom(out io.Writer, root Atom, depth int) {
	offset, size := root.Pos()
	fmt.Fprintf(out, "%s%s offset=%d size=%d", strings.Repeat(" ", depth*2), root.Tag(), offset, size)
	if str, ok := root.(fmt.Stringer); ok {
		fmt.Fprint(out, " ", str.String())
	}
	fmt.Fprintln(out)
	for _, child := range root.Children() {
		printAtom(out, child, depth+1)
	}
}

// FprintAtom dumps the box tree under root.
func FprintAtom(out io.Writer, root Atom) {
	printAtom(out, root, 0)
}
