//nolint:mnd // field widths of ISO/IEC 14496-12 8.2 to 8.7
package mp4io

import "math"

const (
	MOOV = Tag(0x6d6f6f76)
	MVHD = Tag(0x6d766864)
	TRAK = Tag(0x7472616b)
	TKHD = Tag(0x746b6864)
	MDIA = Tag(0x6d646961)
	MDHD = Tag(0x6d646864)
	HDLR = Tag(0x68646c72)
	MINF = Tag(0x6d696e66)
	VMHD = Tag(0x766d6864)
	SMHD = Tag(0x736d6864)
	DINF = Tag(0x64696e66)
	DREF = Tag(0x64726566)
	URL  = Tag(0x75726c20)
	MDAT = Tag(0x6d646174)
	FREE = Tag(0x66726565)

	VideoHandler = Tag(0x76696465)
	SoundHandler = Tag(0x736f756e)

	// TrackEnabled | TrackInMovie
	TrackEnabledInMovie = 0x3
	// ISO 639-2 "und" packed in 5 bit letters
	LanguageUndetermined = 0x55c4
)

// identity matrix in 16.16 and 2.30 fixed point
var unityMatrix = [9]int32{0x10000, 0, 0, 0, 0x10000, 0, 0, 0, 0x40000000}

type Movie struct {
	Header      *MovieHeader
	Tracks      []*Track
	MovieExtend *MovieExtend
	Unknowns    []Atom
	AtomPos
}

func (m Movie) Tag() Tag { return MOOV }
func (m Movie) Len() int { return boxLen(m.Children()) }
func (m Movie) Marshal(b []byte) int { return marshalBox(b, MOOV, m.Children()) }

func (m Movie) Children() (r []Atom) {
	if m.Header != nil {
		r = append(r, m.Header)
	}
	for _, t := range m.Tracks {
		r = append(r, t)
	}
	if m.MovieExtend != nil {
		r = append(r, m.MovieExtend)
	}
	return append(r, m.Unknowns...)
}

func (m *Movie) Unmarshal(b []byte, offset int) (int, error) {
	m.setPos(offset, len(b))
	return len(b), walk(b, HeaderSize, offset, func(tag Tag, box []byte, off int) (err error) {
		switch tag {
		case MVHD:
			m.Header, err = decode[MovieHeader](box, off)
		case TRAK:
			var t *Track
			if t, err = decode[Track](box, off); err == nil {
				m.Tracks = append(m.Tracks, t)
			}
		case MVEX:
			m.MovieExtend, err = decode[MovieExtend](box, off)
		default:
			m.Unknowns = append(m.Unknowns, unknown(tag, box, off))
		}
		return
	})
}

// MovieHeader is mvhd. Times are seconds since 1904-01-01 UTC.
type MovieHeader struct {
	FullBox
	CreateTime      uint64
	ModifyTime      uint64
	TimeScale       uint32
	Duration        uint64
	PreferredRate   float64
	PreferredVolume float64
	Matrix          [9]int32
	NextTrackID     uint32
	leaf
}

// NewMovieHeader returns an mvhd with unit rate and volume.
func NewMovieHeader(timeScale uint32, duration uint64, nextTrackID uint32) *MovieHeader {
	return &MovieHeader{
		TimeScale:       timeScale,
		Duration:        duration,
		PreferredRate:   1,
		PreferredVolume: 1,
		Matrix:          unityMatrix,
		NextTrackID:     nextTrackID,
	}
}

func (mvhd MovieHeader) Tag() Tag { return MVHD }

func (mvhd MovieHeader) version() uint8 {
	if mvhd.Version == 1 || mvhd.Duration > math.MaxUint32 {
		return 1
	}
	return 0
}

func (mvhd MovieHeader) Len() int {
	if mvhd.version() == 1 {
		return HeaderSize + fullBoxSize + 108
	}
	return HeaderSize + fullBoxSize + 96
}

func (mvhd MovieHeader) Marshal(b []byte) int {
	w := newWriter(b)
	v := mvhd.version()
	FullBox{Version: v, Flags: mvhd.Flags}.write(w)
	writeTimes(w, v, mvhd.CreateTime, mvhd.ModifyTime, mvhd.TimeScale, mvhd.Duration)
	PutFixed32(w.b[w.n:], mvhd.PreferredRate)
	w.n += 4
	PutFixed16(w.b[w.n:], mvhd.PreferredVolume)
	w.n += 2
	w.zero(10)
	writeMatrix(w, mvhd.Matrix)
	w.zero(24)
	w.u32(mvhd.NextTrackID)
	return w.finish(MVHD)
}

func (mvhd *MovieHeader) Unmarshal(b []byte, offset int) (int, error) {
	mvhd.setPos(offset, len(b))
	r := newReader(b, offset)
	mvhd.read(r)
	mvhd.CreateTime, mvhd.ModifyTime, mvhd.TimeScale, mvhd.Duration = readTimes(r, mvhd.Version)
	if p := r.take(4, "PreferredRate"); p != nil {
		mvhd.PreferredRate = GetFixed32(p)
	}
	if p := r.take(2, "PreferredVolume"); p != nil {
		mvhd.PreferredVolume = GetFixed16(p)
	}
	r.skip(10, "reserved")
	mvhd.Matrix = readMatrix(r)
	r.skip(24, "predefined")
	mvhd.NextTrackID = r.u32("NextTrackID")
	return r.n, r.err
}

// writeTimes writes creation, modification, an optional id and the duration
// in the layout shared by mvhd, tkhd and mdhd.
func writeTimes(w *writer, version uint8, create, modify uint64, mid uint32, duration uint64) {
	if version == 1 {
		w.u64(create)
		w.u64(modify)
		w.u32(mid)
		w.u64(duration)
		return
	}
	w.u32(uint32(create)) //nolint:gosec // version 0 holds 32 bit times
	w.u32(uint32(modify)) //nolint:gosec // version 0 holds 32 bit times
	w.u32(mid)
	w.u32(uint32(duration)) //nolint:gosec // version() picks 1 above 32 bits
}

func readTimes(r *reader, version uint8) (create, modify uint64, mid uint32, duration uint64) {
	if version == 1 {
		return r.u64("CreateTime"), r.u64("ModifyTime"), r.u32("TimeScale"), r.u64("Duration")
	}
	create = uint64(r.u32("CreateTime"))
	modify = uint64(r.u32("ModifyTime"))
	mid = r.u32("TimeScale")
	duration = uint64(r.u32("Duration"))
	return
}

func writeMatrix(w *writer, m [9]int32) {
	for _, v := range m {
		w.u32(uint32(v)) //nolint:gosec // two's complement
	}
}

func readMatrix(r *reader) (m [9]int32) {
	for i := range m {
		m[i] = int32(r.u32("Matrix")) //nolint:gosec // two's complement
	}
	return
}

type Track struct {
	Header   *TrackHeader
	Edit     *Edit
	Media    *Media
	Unknowns []Atom
	AtomPos
}

func (t Track) Tag() Tag { return TRAK }
func (t Track) Len() int { return boxLen(t.Children()) }
func (t Track) Marshal(b []byte) int { return marshalBox(b, TRAK, t.Children()) }

func (t Track) Children() (r []Atom) {
	if t.Header != nil {
		r = append(r, t.Header)
	}
	if t.Edit != nil {
		r = append(r, t.Edit)
	}
	if t.Media != nil {
		r = append(r, t.Media)
	}
	return append(r, t.Unknowns...)
}

func (t *Track) Unmarshal(b []byte, offset int) (int, error) {
	t.setPos(offset, len(b))
	return len(b), walk(b, HeaderSize, offset, func(tag Tag, box []byte, off int) (err error) {
		switch tag {
		case TKHD:
			t.Header, err = decode[TrackHeader](box, off)
		case EDTS:
			t.Edit, err = decode[Edit](box, off)
		case MDIA:
			t.Media, err = decode[Media](box, off)
		default:
			t.Unknowns = append(t.Unknowns, unknown(tag, box, off))
		}
		return
	})
}

// SampleTable returns the stbl of the track or nil.
func (t *Track) SampleTable() *SampleTable {
	if t.Media == nil || t.Media.Info == nil {
		return nil
	}
	return t.Media.Info.Sample
}

// SampleDesc returns the stsd of the track or nil.
func (t *Track) SampleDesc() *SampleDesc {
	if st := t.SampleTable(); st != nil {
		return st.SampleDesc
	}
	return nil
}

// TrackHeader is tkhd. Width and Height are in 16.16 fixed point on the wire.
type TrackHeader struct {
	FullBox
	CreateTime     uint64
	ModifyTime     uint64
	TrackID        uint32
	Duration       uint64
	Layer          int16
	AlternateGroup int16
	Volume         float64
	Matrix         [9]int32
	TrackWidth     float64
	TrackHeight    float64
	leaf
}

// NewTrackHeader returns an enabled tkhd. Audio tracks get full volume.
func NewTrackHeader(trackID uint32, duration uint64, width, height uint, audio bool) *TrackHeader {
	th := &TrackHeader{
		FullBox:     FullBox{Flags: TrackEnabledInMovie},
		TrackID:     trackID,
		Duration:    duration,
		Matrix:      unityMatrix,
		TrackWidth:  float64(width),
		TrackHeight: float64(height),
	}
	if audio {
		th.Volume = 1
		th.AlternateGroup = 1
	}
	return th
}

func (th TrackHeader) Tag() Tag { return TKHD }

func (th TrackHeader) version() uint8 {
	if th.Version == 1 || th.Duration > math.MaxUint32 {
		return 1
	}
	return 0
}

func (th TrackHeader) Len() int {
	if th.version() == 1 {
		return HeaderSize + fullBoxSize + 92
	}
	return HeaderSize + fullBoxSize + 80
}

func (th TrackHeader) Marshal(b []byte) int {
	w := newWriter(b)
	v := th.version()
	FullBox{Version: v, Flags: th.Flags}.write(w)
	if v == 1 {
		w.u64(th.CreateTime)
		w.u64(th.ModifyTime)
	} else {
		w.u32(uint32(th.CreateTime)) //nolint:gosec // version 0 holds 32 bit times
		w.u32(uint32(th.ModifyTime)) //nolint:gosec // version 0 holds 32 bit times
	}
	w.u32(th.TrackID)
	w.zero(4)
	if v == 1 {
		w.u64(th.Duration)
	} else {
		w.u32(uint32(th.Duration)) //nolint:gosec // version() picks 1 above 32 bits
	}
	w.zero(8)
	w.u16(uint16(th.Layer))          //nolint:gosec // two's complement
	w.u16(uint16(th.AlternateGroup)) //nolint:gosec // two's complement
	PutFixed16(w.b[w.n:], th.Volume)
	w.n += 2
	w.zero(2)
	writeMatrix(w, th.Matrix)
	PutFixed32(w.b[w.n:], th.TrackWidth)
	PutFixed32(w.b[w.n+4:], th.TrackHeight)
	w.n += 8
	return w.finish(TKHD)
}

func (th *TrackHeader) Unmarshal(b []byte, offset int) (int, error) {
	th.setPos(offset, len(b))
	r := newReader(b, offset)
	th.read(r)
	if th.Version == 1 {
		th.CreateTime = r.u64("CreateTime")
		th.ModifyTime = r.u64("ModifyTime")
	} else {
		th.CreateTime = uint64(r.u32("CreateTime"))
		th.ModifyTime = uint64(r.u32("ModifyTime"))
	}
	th.TrackID = r.u32("TrackID")
	r.skip(4, "reserved")
	if th.Version == 1 {
		th.Duration = r.u64("Duration")
	} else {
		th.Duration = uint64(r.u32("Duration"))
	}
	r.skip(8, "reserved")
	th.Layer = int16(r.u16("Layer"))                   //nolint:gosec // two's complement
	th.AlternateGroup = int16(r.u16("AlternateGroup")) //nolint:gosec // two's complement
	if p := r.take(2, "Volume"); p != nil {
		th.Volume = GetFixed16(p)
	}
	r.skip(2, "reserved")
	th.Matrix = readMatrix(r)
	if p := r.take(8, "TrackSize"); p != nil {
		th.TrackWidth = GetFixed32(p)
		th.TrackHeight = GetFixed32(p[4:])
	}
	return r.n, r.err
}

type Media struct {
	Header   *MediaHeader
	Handler  *HandlerRefer
	Info     *MediaInfo
	Unknowns []Atom
	AtomPos
}

func (m Media) Tag() Tag { return MDIA }
func (m Media) Len() int { return boxLen(m.Children()) }
func (m Media) Marshal(b []byte) int { return marshalBox(b, MDIA, m.Children()) }

func (m Media) Children() (r []Atom) {
	if m.Header != nil {
		r = append(r, m.Header)
	}
	if m.Handler != nil {
		r = append(r, m.Handler)
	}
	if m.Info != nil {
		r = append(r, m.Info)
	}
	return append(r, m.Unknowns...)
}

func (m *Media) Unmarshal(b []byte, offset int) (int, error) {
	m.setPos(offset, len(b))
	return len(b), walk(b, HeaderSize, offset, func(tag Tag, box []byte, off int) (err error) {
		switch tag {
		case MDHD:
			m.Header, err = decode[MediaHeader](box, off)
		case HDLR:
			m.Handler, err = decode[HandlerRefer](box, off)
		case MINF:
			m.Info, err = decode[MediaInfo](box, off)
		default:
			m.Unknowns = append(m.Unknowns, unknown(tag, box, off))
		}
		return
	})
}

// MediaHeader is mdhd. TimeScale is the time base denominator of the samples.
type MediaHeader struct {
	FullBox
	CreateTime uint64
	ModifyTime uint64
	TimeScale  uint32
	Duration   uint64
	Language   uint16
	leaf
}

func (mh MediaHeader) Tag() Tag { return MDHD }

func (mh MediaHeader) version() uint8 {
	if mh.Version == 1 || mh.Duration > math.MaxUint32 {
		return 1
	}
	return 0
}

func (mh MediaHeader) Len() int {
	if mh.version() == 1 {
		return HeaderSize + fullBoxSize + 32
	}
	return HeaderSize + fullBoxSize + 20
}

func (mh MediaHeader) Marshal(b []byte) int {
	w := newWriter(b)
	v := mh.version()
	FullBox{Version: v, Flags: mh.Flags}.write(w)
	writeTimes(w, v, mh.CreateTime, mh.ModifyTime, mh.TimeScale, mh.Duration)
	w.u16(mh.Language)
	w.zero(2)
	return w.finish(MDHD)
}

func (mh *MediaHeader) Unmarshal(b []byte, offset int) (int, error) {
	mh.setPos(offset, len(b))
	r := newReader(b, offset)
	mh.read(r)
	mh.CreateTime, mh.ModifyTime, mh.TimeScale, mh.Duration = readTimes(r, mh.Version)
	mh.Language = r.u16("Language")
	r.skip(2, "predefined")
	return r.n, r.err
}

// HandlerRefer is hdlr.
type HandlerRefer struct {
	FullBox
	Type Tag
	Name string
	leaf
}

func (h HandlerRefer) Tag() Tag { return HDLR }
func (h HandlerRefer) Len() int { return HeaderSize + fullBoxSize + 20 + len(h.Name) + 1 }

func (h HandlerRefer) Marshal(b []byte) int {
	w := newWriter(b)
	h.write(w)
	w.zero(4)
	w.u32(uint32(h.Type))
	w.zero(12)
	w.bytes([]byte(h.Name))
	w.zero(1)
	return w.finish(HDLR)
}

func (h *HandlerRefer) Unmarshal(b []byte, offset int) (int, error) {
	h.setPos(offset, len(b))
	r := newReader(b, offset)
	h.read(r)
	r.skip(4, "predefined")
	h.Type = Tag(r.u32("Type"))
	r.skip(12, "reserved")
	if r.err == nil {
		name := b[r.n:]
		for i, c := range name {
			if c == 0 {
				name = name[:i]
				break
			}
		}
		h.Name = string(name)
	}
	return len(b), r.err
}

type MediaInfo struct {
	Video    *VideoMediaInfo
	Sound    *SoundMediaInfo
	Data     *DataInfo
	Sample   *SampleTable
	Unknowns []Atom
	AtomPos
}

func (mi MediaInfo) Tag() Tag { return MINF }
func (mi MediaInfo) Len() int { return boxLen(mi.Children()) }
func (mi MediaInfo) Marshal(b []byte) int { return marshalBox(b, MINF, mi.Children()) }

func (mi MediaInfo) Children() (r []Atom) {
	if mi.Video != nil {
		r = append(r, mi.Video)
	}
	if mi.Sound != nil {
		r = append(r, mi.Sound)
	}
	if mi.Data != nil {
		r = append(r, mi.Data)
	}
	if mi.Sample != nil {
		r = append(r, mi.Sample)
	}
	return append(r, mi.Unknowns...)
}

func (mi *MediaInfo) Unmarshal(b []byte, offset int) (int, error) {
	mi.setPos(offset, len(b))
	return len(b), walk(b, HeaderSize, offset, func(tag Tag, box []byte, off int) (err error) {
		switch tag {
		case VMHD:
			mi.Video, err = decode[VideoMediaInfo](box, off)
		case SMHD:
			mi.Sound, err = decode[SoundMediaInfo](box, off)
		case DINF:
			mi.Data, err = decode[DataInfo](box, off)
		case STBL:
			mi.Sample, err = decode[SampleTable](box, off)
		default:
			mi.Unknowns = append(mi.Unknowns, unknown(tag, box, off))
		}
		return
	})
}

// VideoMediaInfo is vmhd. Its flags are always 1.
type VideoMediaInfo struct {
	FullBox
	GraphicsMode uint16
	Opcolor      [3]uint16
	leaf
}

func (vmi VideoMediaInfo) Tag() Tag { return VMHD }
func (vmi VideoMediaInfo) Len() int { return HeaderSize + fullBoxSize + 8 }

func (vmi VideoMediaInfo) Marshal(b []byte) int {
	w := newWriter(b)
	FullBox{Version: vmi.Version, Flags: 1}.write(w)
	w.u16(vmi.GraphicsMode)
	for _, c := range vmi.Opcolor {
		w.u16(c)
	}
	return w.finish(VMHD)
}

func (vmi *VideoMediaInfo) Unmarshal(b []byte, offset int) (int, error) {
	vmi.setPos(offset, len(b))
	r := newReader(b, offset)
	vmi.read(r)
	vmi.GraphicsMode = r.u16("GraphicsMode")
	for i := range vmi.Opcolor {
		vmi.Opcolor[i] = r.u16("Opcolor")
	}
	return r.n, r.err
}

// SoundMediaInfo is smhd.
type SoundMediaInfo struct {
	FullBox
	Balance int16
	leaf
}

func (smi SoundMediaInfo) Tag() Tag { return SMHD }
func (smi SoundMediaInfo) Len() int { return HeaderSize + fullBoxSize + 4 }

func (smi SoundMediaInfo) Marshal(b []byte) int {
	w := newWriter(b)
	smi.write(w)
	w.u16(uint16(smi.Balance)) //nolint:gosec // two's complement
	w.zero(2)
	return w.finish(SMHD)
}

func (smi *SoundMediaInfo) Unmarshal(b []byte, offset int) (int, error) {
	smi.setPos(offset, len(b))
	r := newReader(b, offset)
	smi.read(r)
	smi.Balance = int16(r.u16("Balance")) //nolint:gosec // two's complement
	r.skip(2, "reserved")
	return r.n, r.err
}

// DataInfo is dinf with a single self contained data reference.
type DataInfo struct {
	Refer    *DataRefer
	Unknowns []Atom
	AtomPos
}

// NewDataInfo returns a dinf whose media lives in the same file.
func NewDataInfo() *DataInfo {
	return &DataInfo{Refer: &DataRefer{URL: &DataReferURL{FullBox: FullBox{Flags: 1}}}}
}

func (di DataInfo) Tag() Tag { return DINF }
func (di DataInfo) Len() int { return boxLen(di.Children()) }
func (di DataInfo) Marshal(b []byte) int { return marshalBox(b, DINF, di.Children()) }

func (di DataInfo) Children() (r []Atom) {
	if di.Refer != nil {
		r = append(r, di.Refer)
	}
	return append(r, di.Unknowns...)
}

func (di *DataInfo) Unmarshal(b []byte, offset int) (int, error) {
	di.setPos(offset, len(b))
	return len(b), walk(b, HeaderSize, offset, func(tag Tag, box []byte, off int) (err error) {
		if tag == DREF {
			di.Refer, err = decode[DataRefer](box, off)
			return
		}
		di.Unknowns = append(di.Unknowns, unknown(tag, box, off))
		return
	})
}

type DataRefer struct {
	FullBox
	URL *DataReferURL
	AtomPos
}

func (dr DataRefer) Tag() Tag { return DREF }

func (dr DataRefer) Children() []Atom {
	if dr.URL == nil {
		return nil
	}
	return []Atom{dr.URL}
}

func (dr DataRefer) Len() int {
	return boxLen(dr.Children()) + fullBoxSize + 4
}

func (dr DataRefer) Marshal(b []byte) int {
	w := newWriter(b)
	dr.write(w)
	children := dr.Children()
	w.u32(uint32(len(children))) //nolint:gosec // at most one entry
	for _, child := range children {
		w.n += child.Marshal(w.b[w.n:])
	}
	return w.finish(DREF)
}

func (dr *DataRefer) Unmarshal(b []byte, offset int) (int, error) {
	dr.setPos(offset, len(b))
	r := newReader(b, offset)
	dr.read(r)
	r.u32("EntryCount")
	if r.err != nil {
		return r.n, r.err
	}
	return len(b), walk(b, r.n, offset, func(tag Tag, box []byte, off int) (err error) {
		if tag == URL {
			dr.URL, err = decode[DataReferURL](box, off)
		}
		return
	})
}

// DataReferURL is a url entry. Flags 1 means the media is in this file.
type DataReferURL struct {
	FullBox
	leaf
}

func (url DataReferURL) Tag() Tag { return URL }
func (url DataReferURL) Len() int { return HeaderSize + fullBoxSize }

func (url DataReferURL) Marshal(b []byte) int {
	w := newWriter(b)
	url.write(w)
	return w.finish(URL)
}

func (url *DataReferURL) Unmarshal(b []byte, offset int) (int, error) {
	url.setPos(offset, len(b))
	r := newReader(b, offset)
	url.read(r)
	return len(b), r.err
}

// Free is a padding box of Size bytes, header included.
type Free struct {
	Size int
	leaf
}

func (f Free) Tag() Tag { return FREE }
func (f Free) Len() int { return max(f.Size, HeaderSize) }

func (f Free) Marshal(b []byte) int {
	n := f.Len()
	clear(b[HeaderSize:n])
	putHeader(b, n, FREE)
	return n
}

func (f *Free) Unmarshal(b []byte, offset int) (int, error) {
	f.setPos(offset, len(b))
	f.Size = len(b)
	return len(b), nil
}
