//nolint:mnd // descriptor layouts of ISO/IEC 14496-1 7.2.6
package mp4io

import "github.com/ugparu/gomux/utils/bits/pio"

// descriptor tags
const (
	MP4ESDescrTag          = 3
	MP4DecConfigDescrTag   = 4
	MP4DecSpecificDescrTag = 5
	MP4SLConfigDescrTag    = 6
)

const (
	objectTypeAAC   = 0x40
	streamTypeAudio = 0x05
	descrHeaderSize = 5
)

// ElemStreamDesc is esds. DecConfig is the AudioSpecificConfig.
type ElemStreamDesc struct {
	FullBox
	ESID       uint16
	MaxBitrate uint32
	AvgBitrate uint32
	DecConfig  []byte
	leaf
}

func (esds ElemStreamDesc) Tag() Tag { return ESDS }

func (esds ElemStreamDesc) decConfigLen() int {
	return 13 + descrHeaderSize + len(esds.DecConfig)
}

func (esds ElemStreamDesc) esLen() int {
	return 3 + descrHeaderSize + esds.decConfigLen() + descrHeaderSize + 1
}

func (esds ElemStreamDesc) Len() int {
	return HeaderSize + fullBoxSize + descrHeaderSize + esds.esLen()
}

// putDescr writes a descriptor tag with its length in the padded four byte form.
func putDescr(w *writer, tag uint8, length int) {
	w.u8(tag)
	w.u8(uint8(length>>21)&0x7f | 0x80) //nolint:gosec // 7 bit groups
	w.u8(uint8(length>>14)&0x7f | 0x80) //nolint:gosec // 7 bit groups
	w.u8(uint8(length>>7)&0x7f | 0x80)  //nolint:gosec // 7 bit groups
	w.u8(uint8(length) & 0x7f)          //nolint:gosec // 7 bit groups
}

func (esds ElemStreamDesc) Marshal(b []byte) int {
	w := newWriter(b)
	esds.write(w)

	putDescr(w, MP4ESDescrTag, esds.esLen())
	w.u16(esds.ESID)
	w.u8(0)

	putDescr(w, MP4DecConfigDescrTag, esds.decConfigLen())
	w.u8(objectTypeAAC)
	w.u8(streamTypeAudio<<2 | 1)
	w.u24(0)
	w.u32(esds.MaxBitrate)
	w.u32(esds.AvgBitrate)

	putDescr(w, MP4DecSpecificDescrTag, len(esds.DecConfig))
	w.bytes(esds.DecConfig)

	putDescr(w, MP4SLConfigDescrTag, 1)
	// predefined MP4 file layout
	w.u8(2)
	return w.finish(ESDS)
}

func (esds *ElemStreamDesc) Unmarshal(b []byte, offset int) (int, error) {
	esds.setPos(offset, len(b))
	r := newReader(b, offset)
	esds.read(r)
	if r.err != nil {
		return r.n, r.err
	}
	if err := esds.parseDescs(b[r.n:], offset+r.n); err != nil {
		return r.n, err
	}
	return len(b), nil
}

// parseDescs walks sibling descriptors and descends into the ES and
// decoder configuration descriptors.
func (esds *ElemStreamDesc) parseDescs(b []byte, offset int) error {
	for n := 0; n < len(b); {
		tag := b[n]
		hdr, length, ok := descrLength(b[n+1:])
		if !ok || len(b)-n-1-hdr < length {
			return parseErr("descriptor", offset+n, nil)
		}
		body := b[n+1+hdr : n+1+hdr+length]
		bodyOff := offset + n + 1 + hdr

		switch tag {
		case MP4ESDescrTag:
			skip, ok := esHeaderLen(body)
			if !ok {
				return parseErr("ESDescriptor", bodyOff, nil)
			}
			esds.ESID = pio.U16BE(body)
			if err := esds.parseDescs(body[skip:], bodyOff+skip); err != nil {
				return err
			}
		case MP4DecConfigDescrTag:
			if len(body) < 13 {
				return parseErr("DecoderConfigDescriptor", bodyOff, nil)
			}
			esds.MaxBitrate = pio.U32BE(body[5:])
			esds.AvgBitrate = pio.U32BE(body[9:])
			if err := esds.parseDescs(body[13:], bodyOff+13); err != nil {
				return err
			}
		case MP4DecSpecificDescrTag:
			esds.DecConfig = body
		}
		n += 1 + hdr + length
	}
	return nil
}

// descrLength decodes the expandable size field of up to four bytes.
func descrLength(b []byte) (n int, length int, ok bool) {
	for n < 4 {
		if n >= len(b) {
			return 0, 0, false
		}
		c := b[n]
		n++
		length = length<<7 | int(c&0x7f)
		if c&0x80 == 0 {
			return n, length, true
		}
	}
	return n, length, true
}

// esHeaderLen is the size of the ES_Descriptor fields before its sub descriptors.
func esHeaderLen(b []byte) (int, bool) {
	if len(b) < 3 {
		return 0, false
	}
	n := 3
	flags := b[2]
	if flags&0x80 != 0 {
		n += 2
	}
	if flags&0x40 != 0 {
		if len(b) <= n {
			return 0, false
		}
		n += 1 + int(b[n])
	}
	if flags&0x20 != 0 {
		n += 2
	}
	return n, len(b) >= n
}
