//nolint:mnd // sample entry layouts of ISO/IEC 14496-12 12.1 and 12.2
package mp4io

import "github.com/ugparu/gomux/utils/bits/pio"

const (
	STSD = Tag(0x73747364)
	AVC1 = Tag(0x61766331)
	HEV1 = Tag(0x68657631)
	HVC1 = Tag(0x68766331)
	JPEG = Tag(0x6a706567)
	MJPG = Tag(0x6d6a7067)
	MP4A = Tag(0x6d703461)
	AVCC = Tag(0x61766343)
	HVCC = Tag(0x68766343)
	ESDS = Tag(0x65736473)
)

// SampleDesc is stsd with at most one visual and one audio entry.
type SampleDesc struct {
	FullBox
	Visual   *VisualSampleDesc
	Audio    *AudioSampleDesc
	Unknowns []Atom
	AtomPos
}

func (sd SampleDesc) Tag() Tag { return STSD }

func (sd SampleDesc) Children() (r []Atom) {
	if sd.Visual != nil {
		r = append(r, sd.Visual)
	}
	if sd.Audio != nil {
		r = append(r, sd.Audio)
	}
	return append(r, sd.Unknowns...)
}

func (sd SampleDesc) Len() int {
	return boxLen(sd.Children()) + fullBoxSize + 4
}

func (sd SampleDesc) Marshal(b []byte) int {
	w := newWriter(b)
	sd.write(w)
	children := sd.Children()
	w.u32(entryCount(len(children)))
	for _, child := range children {
		w.n += child.Marshal(w.b[w.n:])
	}
	return w.finish(STSD)
}

func (sd *SampleDesc) Unmarshal(b []byte, offset int) (int, error) {
	sd.setPos(offset, len(b))
	r := newReader(b, offset)
	sd.read(r)
	r.u32("EntryCount")
	if r.err != nil {
		return r.n, r.err
	}
	return len(b), walk(b, r.n, offset, func(tag Tag, box []byte, off int) (err error) {
		switch tag {
		case AVC1, HEV1, HVC1, JPEG, MJPG:
			sd.Visual, err = decode[VisualSampleDesc](box, off)
		case MP4A:
			sd.Audio, err = decode[AudioSampleDesc](box, off)
		default:
			sd.Unknowns = append(sd.Unknowns, unknown(tag, box, off))
		}
		return
	})
}

// VisualSampleDesc is a visual sample entry. Format is the codec fourcc.
type VisualSampleDesc struct {
	Format               Tag
	DataRefIdx           uint16
	Width                uint16
	Height               uint16
	HorizontalResolution float64
	VerticalResolution   float64
	FrameCount           uint16
	CompressorName       string
	Depth                uint16
	Conf                 *DecoderConf
	Unknowns             []Atom
	AtomPos
}

const visualEntrySize = 78

// NewVisualSampleDesc returns a 72 dpi, 24 bit entry referring to the first data reference.
func NewVisualSampleDesc(format Tag, width, height uint, conf *DecoderConf) *VisualSampleDesc {
	return &VisualSampleDesc{
		Format:               format,
		DataRefIdx:           1,
		Width:                uint16(width),  //nolint:gosec // picture sizes fit 16 bits
		Height:               uint16(height), //nolint:gosec // picture sizes fit 16 bits
		HorizontalResolution: 72,
		VerticalResolution:   72,
		FrameCount:           1,
		Depth:                0x18,
		Conf:                 conf,
	}
}

func (vsd VisualSampleDesc) Tag() Tag { return vsd.Format }

func (vsd VisualSampleDesc) Children() (r []Atom) {
	if vsd.Conf != nil {
		r = append(r, vsd.Conf)
	}
	return append(r, vsd.Unknowns...)
}

func (vsd VisualSampleDesc) Len() int {
	return boxLen(vsd.Children()) + visualEntrySize
}

func (vsd VisualSampleDesc) Marshal(b []byte) int {
	w := newWriter(b)
	w.zero(6)
	w.u16(vsd.DataRefIdx)
	w.zero(16)
	w.u16(vsd.Width)
	w.u16(vsd.Height)
	PutFixed32(w.b[w.n:], vsd.HorizontalResolution)
	PutFixed32(w.b[w.n+4:], vsd.VerticalResolution)
	w.n += 8
	w.zero(4)
	w.u16(vsd.FrameCount)
	var name [32]byte
	name[0] = byte(copy(name[1:], vsd.CompressorName))
	w.bytes(name[:])
	w.u16(vsd.Depth)
	w.u16(0xffff)
	for _, child := range vsd.Children() {
		w.n += child.Marshal(w.b[w.n:])
	}
	return w.finish(vsd.Format)
}

func (vsd *VisualSampleDesc) Unmarshal(b []byte, offset int) (int, error) {
	vsd.setPos(offset, len(b))
	r := newReader(b, offset)
	if len(b) >= HeaderSize {
		vsd.Format = Tag(pio.U32BE(b[4:]))
	}
	r.skip(6, "reserved")
	vsd.DataRefIdx = r.u16("DataRefIdx")
	r.skip(16, "predefined")
	vsd.Width = r.u16("Width")
	vsd.Height = r.u16("Height")
	if p := r.take(8, "Resolution"); p != nil {
		vsd.HorizontalResolution = GetFixed32(p)
		vsd.VerticalResolution = GetFixed32(p[4:])
	}
	r.skip(4, "reserved")
	vsd.FrameCount = r.u16("FrameCount")
	if p := r.take(32, "CompressorName"); p != nil {
		vsd.CompressorName = string(p[1 : 1+min(int(p[0]), 31)])
	}
	vsd.Depth = r.u16("Depth")
	r.skip(2, "predefined")
	if r.err != nil {
		return r.n, r.err
	}
	return len(b), walk(b, r.n, offset, func(tag Tag, box []byte, off int) (err error) {
		switch tag {
		case AVCC, HVCC:
			vsd.Conf, err = decode[DecoderConf](box, off)
		default:
			vsd.Unknowns = append(vsd.Unknowns, unknown(tag, box, off))
		}
		return
	})
}

// DecoderConf carries an avcC or hvcC decoder configuration record verbatim.
type DecoderConf struct {
	Type Tag
	Data []byte
	leaf
}

func (dc DecoderConf) Tag() Tag { return dc.Type }
func (dc DecoderConf) Len() int { return HeaderSize + len(dc.Data) }

func (dc DecoderConf) Marshal(b []byte) int {
	w := newWriter(b)
	w.bytes(dc.Data)
	return w.finish(dc.Type)
}

func (dc *DecoderConf) Unmarshal(b []byte, offset int) (int, error) {
	dc.setPos(offset, len(b))
	if len(b) < HeaderSize {
		return 0, parseErr("DecoderConf", offset, nil)
	}
	dc.Type = Tag(pio.U32BE(b[4:]))
	dc.Data = b[HeaderSize:]
	return len(b), nil
}

// AudioSampleDesc is an mp4a sample entry. SampleRate is 0 on the wire when
// it does not fit 16 bits, the decoder configuration has the real rate.
type AudioSampleDesc struct {
	DataRefIdx       uint16
	Version          uint16
	NumberOfChannels uint16
	SampleSize       uint16
	CompressionID    uint16
	SampleRate       float64
	Conf             *ElemStreamDesc
	Unknowns         []Atom
	AtomPos
}

const audioEntrySize = 28

// NewAudioSampleDesc returns a 16 bit mp4a entry for an AAC configuration.
func NewAudioSampleDesc(channels uint8, sampleRate uint64, conf *ElemStreamDesc) *AudioSampleDesc {
	return &AudioSampleDesc{
		DataRefIdx:       1,
		NumberOfChannels: uint16(channels),
		SampleSize:       16,
		SampleRate:       float64(sampleRate),
		Conf:             conf,
	}
}

func (asd AudioSampleDesc) Tag() Tag { return MP4A }

func (asd AudioSampleDesc) Children() (r []Atom) {
	if asd.Conf != nil {
		r = append(r, asd.Conf)
	}
	return append(r, asd.Unknowns...)
}

func (asd AudioSampleDesc) Len() int {
	return boxLen(asd.Children()) + audioEntrySize
}

func (asd AudioSampleDesc) Marshal(b []byte) int {
	w := newWriter(b)
	w.zero(6)
	w.u16(asd.DataRefIdx)
	// version 0 only
	w.zero(8)
	w.u16(asd.NumberOfChannels)
	w.u16(asd.SampleSize)
	w.u16(asd.CompressionID)
	w.zero(2)
	if asd.SampleRate < 1<<16 {
		PutFixed32(w.b[w.n:], asd.SampleRate)
		w.n += 4
	} else {
		w.zero(4)
	}
	for _, child := range asd.Children() {
		w.n += child.Marshal(w.b[w.n:])
	}
	return w.finish(MP4A)
}

func (asd *AudioSampleDesc) Unmarshal(b []byte, offset int) (int, error) {
	asd.setPos(offset, len(b))
	r := newReader(b, offset)
	r.skip(6, "reserved")
	asd.DataRefIdx = r.u16("DataRefIdx")
	asd.Version = r.u16("Version")
	r.skip(6, "reserved")
	asd.NumberOfChannels = r.u16("NumberOfChannels")
	asd.SampleSize = r.u16("SampleSize")
	asd.CompressionID = r.u16("CompressionID")
	r.skip(2, "PacketSize")
	if p := r.take(4, "SampleRate"); p != nil {
		asd.SampleRate = GetFixed32(p)
	}
	// QuickTime sound description extensions
	switch asd.Version {
	case 1:
		r.skip(16, "SoundDescriptionV1")
	case 2:
		r.skip(36, "SoundDescriptionV2")
	}
	if r.err != nil {
		return r.n, r.err
	}
	return len(b), walk(b, r.n, offset, func(tag Tag, box []byte, off int) (err error) {
		switch tag {
		case ESDS:
			asd.Conf, err = decode[ElemStreamDesc](box, off)
		default:
			asd.Unknowns = append(asd.Unknowns, unknown(tag, box, off))
		}
		return
	})
}
