//nolint:mnd // field widths of ISO/IEC 14496-12 8.8
package mp4io

import "fmt"

const (
	FTYP = Tag(0x66747970)
	MVEX = Tag(0x6d766578)
	TREX = Tag(0x74726578)
	MOOF = Tag(0x6d6f6f66)
	MFHD = Tag(0x6d666864)
	TRAF = Tag(0x74726166)
	TFHD = Tag(0x74666864)
	TFDT = Tag(0x74666474)
	TRUN = Tag(0x7472756e)
)

// tfhd flags
const (
	TFHDBaseDataOffset    = uint32(0x01)
	TFHDStsdID            = uint32(0x02)
	TFHDDefaultDuration   = uint32(0x08)
	TFHDDefaultSize       = uint32(0x10)
	TFHDDefaultFlags      = uint32(0x20)
	TFHDDurationIsEmpty   = uint32(0x10000)
	TFHDDefaultBaseIsMOOF = uint32(0x20000)
)

// trun flags
const (
	TRUNDataOffset       = uint32(0x01)
	TRUNFirstSampleFlags = uint32(0x04)
	TRUNSampleDuration   = uint32(0x100)
	TRUNSampleSize       = uint32(0x200)
	TRUNSampleFlags      = uint32(0x400)
	TRUNSampleCTS        = uint32(0x800)
)

// FileType is ftyp.
type FileType struct {
	MajorBrand       Tag
	MinorVersion     uint32
	CompatibleBrands []Tag
	leaf
}

func NewFileType(major Tag, minor uint32, compatible ...string) *FileType {
	ft := &FileType{MajorBrand: major, MinorVersion: minor}
	for _, brand := range compatible {
		ft.CompatibleBrands = append(ft.CompatibleBrands, StringToTag(brand))
	}
	return ft
}

func (ft FileType) Tag() Tag { return FTYP }
func (ft FileType) Len() int { return HeaderSize + 8 + 4*len(ft.CompatibleBrands) }

func (ft FileType) String() string {
	return fmt.Sprintf("major=%s compatible=%v", ft.MajorBrand, ft.CompatibleBrands)
}

func (ft FileType) Marshal(b []byte) int {
	w := newWriter(b)
	w.u32(uint32(ft.MajorBrand))
	w.u32(ft.MinorVersion)
	for _, brand := range ft.CompatibleBrands {
		w.u32(uint32(brand))
	}
	return w.finish(FTYP)
}

func (ft *FileType) Unmarshal(b []byte, offset int) (int, error) {
	ft.setPos(offset, len(b))
	r := newReader(b, offset)
	ft.MajorBrand = Tag(r.u32("MajorBrand"))
	ft.MinorVersion = r.u32("MinorVersion")
	for r.err == nil && len(b)-r.n >= 4 {
		ft.CompatibleBrands = append(ft.CompatibleBrands, Tag(r.u32("CompatibleBrand")))
	}
	return r.n, r.err
}

type MovieExtend struct {
	Tracks   []*TrackExtend
	Unknowns []Atom
	AtomPos
}

func (me MovieExtend) Tag() Tag { return MVEX }
func (me MovieExtend) Len() int { return boxLen(me.Children()) }
func (me MovieExtend) Marshal(b []byte) int { return marshalBox(b, MVEX, me.Children()) }

func (me MovieExtend) Children() (r []Atom) {
	for _, t := range me.Tracks {
		r = append(r, t)
	}
	return append(r, me.Unknowns...)
}

func (me *MovieExtend) Unmarshal(b []byte, offset int) (int, error) {
	me.setPos(offset, len(b))
	return len(b), walk(b, HeaderSize, offset, func(tag Tag, box []byte, off int) error {
		if tag != TREX {
			me.Unknowns = append(me.Unknowns, unknown(tag, box, off))
			return nil
		}
		t, err := decode[TrackExtend](box, off)
		if err != nil {
			return err
		}
		me.Tracks = append(me.Tracks, t)
		return nil
	})
}

// TrackExtend is trex, the per track defaults of the fragments.
type TrackExtend struct {
	FullBox
	TrackID               uint32
	DefaultSampleDescIdx  uint32
	DefaultSampleDuration uint32
	DefaultSampleSize     uint32
	DefaultSampleFlags    uint32
	leaf
}

func (te TrackExtend) Tag() Tag { return TREX }
func (te TrackExtend) Len() int { return HeaderSize + fullBoxSize + 20 }

func (te TrackExtend) Marshal(b []byte) int {
	w := newWriter(b)
	te.write(w)
	w.u32(te.TrackID)
	w.u32(te.DefaultSampleDescIdx)
	w.u32(te.DefaultSampleDuration)
	w.u32(te.DefaultSampleSize)
	w.u32(te.DefaultSampleFlags)
	return w.finish(TREX)
}

func (te *TrackExtend) Unmarshal(b []byte, offset int) (int, error) {
	te.setPos(offset, len(b))
	r := newReader(b, offset)
	te.read(r)
	te.TrackID = r.u32("TrackID")
	te.DefaultSampleDescIdx = r.u32("DefaultSampleDescIdx")
	te.DefaultSampleDuration = r.u32("DefaultSampleDuration")
	te.DefaultSampleSize = r.u32("DefaultSampleSize")
	te.DefaultSampleFlags = r.u32("DefaultSampleFlags")
	return r.n, r.err
}

type MovieFrag struct {
	Header   *MovieFragHeader
	Tracks   []*TrackFrag
	Unknowns []Atom
	AtomPos
}

func (mf MovieFrag) Tag() Tag { return MOOF }
func (mf MovieFrag) Len() int { return boxLen(mf.Children()) }
func (mf MovieFrag) Marshal(b []byte) int { return marshalBox(b, MOOF, mf.Children()) }

func (mf MovieFrag) Children() (r []Atom) {
	if mf.Header != nil {
		r = append(r, mf.Header)
	}
	for _, t := range mf.Tracks {
		r = append(r, t)
	}
	return append(r, mf.Unknowns...)
}

func (mf *MovieFrag) Unmarshal(b []byte, offset int) (int, error) {
	mf.setPos(offset, len(b))
	return len(b), walk(b, HeaderSize, offset, func(tag Tag, box []byte, off int) (err error) {
		switch tag {
		case MFHD:
			mf.Header, err = decode[MovieFragHeader](box, off)
		case TRAF:
			var t *TrackFrag
			if t, err = decode[TrackFrag](box, off); err == nil {
				mf.Tracks = append(mf.Tracks, t)
			}
		default:
			mf.Unknowns = append(mf.Unknowns, unknown(tag, box, off))
		}
		return
	})
}

// MovieFragHeader is mfhd.
type MovieFragHeader struct {
	FullBox
	Seqnum uint32
	leaf
}

func (mfh MovieFragHeader) Tag() Tag { return MFHD }
func (mfh MovieFragHeader) Len() int { return HeaderSize + fullBoxSize + 4 }

func (mfh MovieFragHeader) Marshal(b []byte) int {
	w := newWriter(b)
	mfh.write(w)
	w.u32(mfh.Seqnum)
	return w.finish(MFHD)
}

func (mfh *MovieFragHeader) Unmarshal(b []byte, offset int) (int, error) {
	mfh.setPos(offset, len(b))
	r := newReader(b, offset)
	mfh.read(r)
	mfh.Seqnum = r.u32("Seqnum")
	return r.n, r.err
}

type TrackFrag struct {
	Header     *TrackFragHeader
	DecodeTime *TrackFragDecodeTime
	Run        *TrackFragRun
	Unknowns   []Atom
	AtomPos
}

func (tf TrackFrag) Tag() Tag { return TRAF }
func (tf TrackFrag) Len() int { return boxLen(tf.Children()) }
func (tf TrackFrag) Marshal(b []byte) int { return marshalBox(b, TRAF, tf.Children()) }

func (tf TrackFrag) Children() (r []Atom) {
	if tf.Header != nil {
		r = append(r, tf.Header)
	}
	if tf.DecodeTime != nil {
		r = append(r, tf.DecodeTime)
	}
	if tf.Run != nil {
		r = append(r, tf.Run)
	}
	return append(r, tf.Unknowns...)
}

func (tf *TrackFrag) Unmarshal(b []byte, offset int) (int, error) {
	tf.setPos(offset, len(b))
	return len(b), walk(b, HeaderSize, offset, func(tag Tag, box []byte, off int) (err error) {
		switch tag {
		case TFHD:
			tf.Header, err = decode[TrackFragHeader](box, off)
		case TFDT:
			tf.DecodeTime, err = decode[TrackFragDecodeTime](box, off)
		case TRUN:
			tf.Run, err = decode[TrackFragRun](box, off)
		default:
			tf.Unknowns = append(tf.Unknowns, unknown(tag, box, off))
		}
		return
	})
}

// TrackFragHeader is tfhd. Optional fields are present when their flag is set.
type TrackFragHeader struct {
	FullBox
	TrackID         uint32
	BaseDataOffset  uint64
	StsdID          uint32
	DefaultDuration uint32
	DefaultSize     uint32
	DefaultFlags    uint32
	leaf
}

func (tfhd TrackFragHeader) Tag() Tag { return TFHD }

func (tfhd TrackFragHeader) Len() int {
	n := HeaderSize + fullBoxSize + 4
	if tfhd.Flags&TFHDBaseDataOffset != 0 {
		n += 8
	}
	for _, flag := range []uint32{TFHDStsdID, TFHDDefaultDuration, TFHDDefaultSize, TFHDDefaultFlags} {
		if tfhd.Flags&flag != 0 {
			n += 4
		}
	}
	return n
}

func (tfhd TrackFragHeader) Marshal(b []byte) int {
	w := newWriter(b)
	tfhd.write(w)
	w.u32(tfhd.TrackID)
	if tfhd.Flags&TFHDBaseDataOffset != 0 {
		w.u64(tfhd.BaseDataOffset)
	}
	if tfhd.Flags&TFHDStsdID != 0 {
		w.u32(tfhd.StsdID)
	}
	if tfhd.Flags&TFHDDefaultDuration != 0 {
		w.u32(tfhd.DefaultDuration)
	}
	if tfhd.Flags&TFHDDefaultSize != 0 {
		w.u32(tfhd.DefaultSize)
	}
	if tfhd.Flags&TFHDDefaultFlags != 0 {
		w.u32(tfhd.DefaultFlags)
	}
	return w.finish(TFHD)
}

func (tfhd *TrackFragHeader) Unmarshal(b []byte, offset int) (int, error) {
	tfhd.setPos(offset, len(b))
	r := newReader(b, offset)
	tfhd.read(r)
	tfhd.TrackID = r.u32("TrackID")
	if tfhd.Flags&TFHDBaseDataOffset != 0 {
		tfhd.BaseDataOffset = r.u64("BaseDataOffset")
	}
	if tfhd.Flags&TFHDStsdID != 0 {
		tfhd.StsdID = r.u32("StsdID")
	}
	if tfhd.Flags&TFHDDefaultDuration != 0 {
		tfhd.DefaultDuration = r.u32("DefaultDuration")
	}
	if tfhd.Flags&TFHDDefaultSize != 0 {
		tfhd.DefaultSize = r.u32("DefaultSize")
	}
	if tfhd.Flags&TFHDDefaultFlags != 0 {
		tfhd.DefaultFlags = r.u32("DefaultFlags")
	}
	return r.n, r.err
}

// TrackFragDecodeTime is tfdt, always written as version 1.
type TrackFragDecodeTime struct {
	FullBox
	Time uint64
	leaf
}

func (tfdt TrackFragDecodeTime) Tag() Tag { return TFDT }
func (tfdt TrackFragDecodeTime) Len() int { return HeaderSize + fullBoxSize + 8 }

func (tfdt TrackFragDecodeTime) Marshal(b []byte) int {
	w := newWriter(b)
	FullBox{Version: 1, Flags: tfdt.Flags}.write(w)
	w.u64(tfdt.Time)
	return w.finish(TFDT)
}

func (tfdt *TrackFragDecodeTime) Unmarshal(b []byte, offset int) (int, error) {
	tfdt.setPos(offset, len(b))
	r := newReader(b, offset)
	tfdt.read(r)
	if tfdt.Version == 1 {
		tfdt.Time = r.u64("Time")
	} else {
		tfdt.Time = uint64(r.u32("Time"))
	}
	return r.n, r.err
}

type TrackFragRunEntry struct {
	Duration uint32
	Size     uint32
	Flags    uint32
	Cts      int32
}

// TrackFragRun is trun. Version 1 makes composition offsets signed.
type TrackFragRun struct {
	FullBox
	DataOffset       int32
	FirstSampleFlags uint32
	Entries          []TrackFragRunEntry
	leaf
}

func (tfr TrackFragRun) Tag() Tag { return TRUN }

func (tfr TrackFragRun) entrySize() int {
	n := 0
	for _, flag := range []uint32{TRUNSampleDuration, TRUNSampleSize, TRUNSampleFlags, TRUNSampleCTS} {
		if tfr.Flags&flag != 0 {
			n += 4
		}
	}
	return n
}

func (tfr TrackFragRun) Len() int {
	n := HeaderSize + fullBoxSize + 4
	if tfr.Flags&TRUNDataOffset != 0 {
		n += 4
	}
	if tfr.Flags&TRUNFirstSampleFlags != 0 {
		n += 4
	}
	return n + tfr.entrySize()*len(tfr.Entries)
}

func (tfr TrackFragRun) Marshal(b []byte) int {
	w := newWriter(b)
	tfr.write(w)
	w.u32(entryCount(len(tfr.Entries)))
	if tfr.Flags&TRUNDataOffset != 0 {
		w.u32(uint32(tfr.DataOffset)) //nolint:gosec // two's complement
	}
	if tfr.Flags&TRUNFirstSampleFlags != 0 {
		w.u32(tfr.FirstSampleFlags)
	}
	for _, e := range tfr.Entries {
		if tfr.Flags&TRUNSampleDuration != 0 {
			w.u32(e.Duration)
		}
		if tfr.Flags&TRUNSampleSize != 0 {
			w.u32(e.Size)
		}
		if tfr.Flags&TRUNSampleFlags != 0 {
			w.u32(e.Flags)
		}
		if tfr.Flags&TRUNSampleCTS != 0 {
			w.u32(uint32(e.Cts)) //nolint:gosec // two's complement
		}
	}
	return w.finish(TRUN)
}

func (tfr *TrackFragRun) Unmarshal(b []byte, offset int) (int, error) {
	tfr.setPos(offset, len(b))
	r := newReader(b, offset)
	tfr.read(r)
	count := r.u32("SampleCount")
	if tfr.Flags&TRUNDataOffset != 0 {
		tfr.DataOffset = int32(r.u32("DataOffset")) //nolint:gosec // two's complement
	}
	if tfr.Flags&TRUNFirstSampleFlags != 0 {
		tfr.FirstSampleFlags = r.u32("FirstSampleFlags")
	}
	if r.err != nil {
		return r.n, r.err
	}
	size := uint64(tfr.entrySize())
	if size > 0 && uint64(len(b)-r.n) < uint64(count)*size || size == 0 && count > maxImplicitEntries {
		return r.n, parseErr("SampleCount", offset+r.n, nil)
	}
	tfr.Entries = make([]TrackFragRunEntry, count)
	for i := range tfr.Entries {
		e := &tfr.Entries[i]
		if tfr.Flags&TRUNSampleDuration != 0 {
			e.Duration = r.u32("Duration")
		}
		if tfr.Flags&TRUNSampleSize != 0 {
			e.Size = r.u32("Size")
		}
		if tfr.Flags&TRUNSampleFlags != 0 {
			e.Flags = r.u32("Flags")
		}
		if tfr.Flags&TRUNSampleCTS != 0 {
			e.Cts = int32(r.u32("Cts")) //nolint:gosec // signed in version 1
		}
	}
	return r.n, r.err
}
