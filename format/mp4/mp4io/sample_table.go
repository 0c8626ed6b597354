package mp4io

import (
	"fmt"
	"math"

	"github.com/ugparu/gomux/utils/bits/pio"
)

const (
	STBL = Tag(0x7374626c)
	STTS = Tag(0x73747473)
	CTTS = Tag(0x63747473)
	STSS = Tag(0x73747373)
	STSC = Tag(0x73747363)
	STSZ = Tag(0x7374737a)
	STCO = Tag(0x7374636f)
	CO64 = Tag(0x636f3634)
)

type SampleTable struct {
	SampleDesc        *SampleDesc
	TimeToSample      *TimeToSample
	CompositionOffset *CompositionOffset
	SyncSample        *SyncSample
	SampleToChunk     *SampleToChunk
	SampleSize        *SampleSize
	ChunkOffset       *ChunkOffset
	Unknowns          []Atom
	AtomPos
}

func (st SampleTable) Tag() Tag { return STBL }
func (st SampleTable) Len() int { return boxLen(st.Children()) }
func (st SampleTable) Marshal(b []byte) int { return marshalBox(b, STBL, st.Children()) }

func (st SampleTable) Children() (r []Atom) {
	if st.SampleDesc != nil {
		r = append(r, st.SampleDesc)
	}
	if st.TimeToSample != nil {
		r = append(r, st.TimeToSample)
	}
	if st.CompositionOffset != nil {
		r = append(r, st.CompositionOffset)
	}
	if st.SyncSample != nil {
		r = append(r, st.SyncSample)
	}
	if st.SampleToChunk != nil {
		r = append(r, st.SampleToChunk)
	}
	if st.SampleSize != nil {
		r = append(r, st.SampleSize)
	}
	if st.ChunkOffset != nil {
		r = append(r, st.ChunkOffset)
	}
	return append(r, st.Unknowns...)
}

func (st *SampleTable) Unmarshal(b []byte, offset int) (int, error) {
	st.setPos(offset, len(b))
	return len(b), walk(b, HeaderSize, offset, func(tag Tag, box []byte, off int) (err error) {
		switch tag {
		case STSD:
			st.SampleDesc, err = decode[SampleDesc](box, off)
		case STTS:
			st.TimeToSample, err = decode[TimeToSample](box, off)
		case CTTS:
			st.CompositionOffset, err = decode[CompositionOffset](box, off)
		case STSS:
			st.SyncSample, err = decode[SyncSample](box, off)
		case STSC:
			st.SampleToChunk, err = decode[SampleToChunk](box, off)
		case STSZ:
			st.SampleSize, err = decode[SampleSize](box, off)
		case STCO, CO64:
			st.ChunkOffset, err = decode[ChunkOffset](box, off)
		default:
			st.Unknowns = append(st.Unknowns, unknown(tag, box, off))
		}
		return
	})
}

func entryCount(n int) uint32 {
	return uint32(n) //nolint:gosec // sample tables are indexed by 32 bit numbers
}

type TimeToSampleEntry struct {
	Count    uint32
	Duration uint32
}

// TimeToSample is stts, run length coded sample durations.
type TimeToSample struct {
	FullBox
	Entries []TimeToSampleEntry
	leaf
}

func (tts TimeToSample) Tag() Tag { return STTS }
func (tts TimeToSample) Len() int { return HeaderSize + fullBoxSize + 4 + 8*len(tts.Entries) }
func (tts TimeToSample) String() string { return fmt.Sprintf("entries=%d", len(tts.Entries)) }

func (tts TimeToSample) Marshal(b []byte) int {
	w := newWriter(b)
	tts.write(w)
	w.u32(entryCount(len(tts.Entries)))
	for _, e := range tts.Entries {
		w.u32(e.Count)
		w.u32(e.Duration)
	}
	return w.finish(STTS)
}

func (tts *TimeToSample) Unmarshal(b []byte, offset int) (int, error) {
	tts.setPos(offset, len(b))
	r := newReader(b, offset)
	tts.read(r)
	tts.Entries = make([]TimeToSampleEntry, r.count(8, "EntryCount"))
	for i := range tts.Entries {
		tts.Entries[i] = TimeToSampleEntry{Count: r.u32("Count"), Duration: r.u32("Duration")}
	}
	return r.n, r.err
}

// CompositionOffsetEntry holds PTS minus DTS for Count consecutive samples.
type CompositionOffsetEntry struct {
	Count  uint32
	Offset int32
}

// CompositionOffset is ctts. Version 1 is used as soon as an offset is negative.
type CompositionOffset struct {
	FullBox
	Entries []CompositionOffsetEntry
	leaf
}

func (co CompositionOffset) Tag() Tag { return CTTS }
func (co CompositionOffset) Len() int { return HeaderSize + fullBoxSize + 4 + 8*len(co.Entries) }
func (co CompositionOffset) String() string { return fmt.Sprintf("entries=%d", len(co.Entries)) }

func (co CompositionOffset) Marshal(b []byte) int {
	w := newWriter(b)
	fb := co.FullBox
	for _, e := range co.Entries {
		if e.Offset < 0 {
			fb.Version = 1
			break
		}
	}
	fb.write(w)
	w.u32(entryCount(len(co.Entries)))
	for _, e := range co.Entries {
		w.u32(e.Count)
		w.u32(uint32(e.Offset)) //nolint:gosec // signed in version 1
	}
	return w.finish(CTTS)
}

func (co *CompositionOffset) Unmarshal(b []byte, offset int) (int, error) {
	co.setPos(offset, len(b))
	r := newReader(b, offset)
	co.read(r)
	co.Entries = make([]CompositionOffsetEntry, r.count(8, "EntryCount"))
	for i := range co.Entries {
		co.Entries[i].Count = r.u32("Count")
		co.Entries[i].Offset = int32(r.u32("Offset")) //nolint:gosec // signed in version 1
	}
	return r.n, r.err
}

// SyncSample is stss, the 1-based numbers of the key frames.
type SyncSample struct {
	FullBox
	Entries []uint32
	leaf
}

func (ss SyncSample) Tag() Tag { return STSS }
func (ss SyncSample) Len() int { return HeaderSize + fullBoxSize + 4 + 4*len(ss.Entries) }
func (ss SyncSample) String() string { return fmt.Sprintf("entries=%d", len(ss.Entries)) }

func (ss SyncSample) Marshal(b []byte) int {
	w := newWriter(b)
	ss.write(w)
	w.u32(entryCount(len(ss.Entries)))
	for _, e := range ss.Entries {
		w.u32(e)
	}
	return w.finish(STSS)
}

func (ss *SyncSample) Unmarshal(b []byte, offset int) (int, error) {
	ss.setPos(offset, len(b))
	r := newReader(b, offset)
	ss.read(r)
	ss.Entries = make([]uint32, r.count(4, "EntryCount"))
	for i := range ss.Entries {
		ss.Entries[i] = r.u32("SampleNumber")
	}
	return r.n, r.err
}

type SampleToChunkEntry struct {
	FirstChunk      uint32
	SamplesPerChunk uint32
	SampleDescID    uint32
}

// SampleToChunk is stsc. FirstChunk is 1-based.
type SampleToChunk struct {
	FullBox
	Entries []SampleToChunkEntry
	leaf
}

func (stc SampleToChunk) Tag() Tag { return STSC }
func (stc SampleToChunk) Len() int { return HeaderSize + fullBoxSize + 4 + 12*len(stc.Entries) }
func (stc SampleToChunk) String() string { return fmt.Sprintf("entries=%d", len(stc.Entries)) }

func (stc SampleToChunk) Marshal(b []byte) int {
	w := newWriter(b)
	stc.write(w)
	w.u32(entryCount(len(stc.Entries)))
	for _, e := range stc.Entries {
		w.u32(e.FirstChunk)
		w.u32(e.SamplesPerChunk)
		w.u32(e.SampleDescID)
	}
	return w.finish(STSC)
}

func (stc *SampleToChunk) Unmarshal(b []byte, offset int) (int, error) {
	stc.setPos(offset, len(b))
	r := newReader(b, offset)
	stc.read(r)
	stc.Entries = make([]SampleToChunkEntry, r.count(12, "EntryCount"))
	for i := range stc.Entries {
		stc.Entries[i] = SampleToChunkEntry{
			FirstChunk:      r.u32("FirstChunk"),
			SamplesPerChunk: r.u32("SamplesPerChunk"),
			SampleDescID:    r.u32("SampleDescID"),
		}
	}
	return r.n, r.err
}

// SampleSize is stsz. Entries always holds one size per sample; a non zero
// SampleSize writes them as a single constant.
type SampleSize struct {
	FullBox
	SampleSize uint32
	Entries    []uint32
	leaf
}

func (ss SampleSize) Tag() Tag { return STSZ }
func (ss SampleSize) String() string { return fmt.Sprintf("entries=%d", len(ss.Entries)) }

func (ss SampleSize) Len() int {
	n := HeaderSize + fullBoxSize + 8
	if ss.SampleSize == 0 {
		n += 4 * len(ss.Entries)
	}
	return n
}

func (ss SampleSize) Marshal(b []byte) int {
	w := newWriter(b)
	ss.write(w)
	w.u32(ss.SampleSize)
	w.u32(entryCount(len(ss.Entries)))
	if ss.SampleSize == 0 {
		for _, e := range ss.Entries {
			w.u32(e)
		}
	}
	return w.finish(STSZ)
}

func (ss *SampleSize) Unmarshal(b []byte, offset int) (int, error) {
	ss.setPos(offset, len(b))
	r := newReader(b, offset)
	ss.read(r)
	ss.SampleSize = r.u32("SampleSize")
	if ss.SampleSize != 0 {
		count := r.u32("SampleCount")
		if r.err == nil && count > maxImplicitEntries {
			r.err = parseErr("SampleCount", offset+r.n, nil)
		}
		if r.err == nil {
			ss.Entries = make([]uint32, count)
			for i := range ss.Entries {
				ss.Entries[i] = ss.SampleSize
			}
		}
		return r.n, r.err
	}
	ss.Entries = make([]uint32, r.count(4, "SampleCount"))
	for i := range ss.Entries {
		ss.Entries[i] = r.u32("EntrySize")
	}
	return r.n, r.err
}

// ChunkOffset is stco, or co64 once an offset needs 64 bits.
type ChunkOffset struct {
	FullBox
	Entries []uint64
	leaf
}

func (co ChunkOffset) large() bool {
	for _, e := range co.Entries {
		if e > math.MaxUint32 {
			return true
		}
	}
	return false
}

func (co ChunkOffset) Tag() Tag {
	if co.large() {
		return CO64
	}
	return STCO
}

func (co ChunkOffset) String() string { return fmt.Sprintf("entries=%d", len(co.Entries)) }

func (co ChunkOffset) Len() int {
	size := 4
	if co.large() {
		size = 8
	}
	return HeaderSize + fullBoxSize + 4 + size*len(co.Entries)
}

func (co ChunkOffset) Marshal(b []byte) int {
	w := newWriter(b)
	large := co.large()
	co.write(w)
	w.u32(entryCount(len(co.Entries)))
	for _, e := range co.Entries {
		if large {
			w.u64(e)
		} else {
			w.u32(uint32(e)) //nolint:gosec // large() is false
		}
	}
	if large {
		return w.finish(CO64)
	}
	return w.finish(STCO)
}

func (co *ChunkOffset) Unmarshal(b []byte, offset int) (int, error) {
	co.setPos(offset, len(b))
	r := newReader(b, offset)
	co.read(r)
	if len(b) >= HeaderSize && Tag(pio.U32BE(b[4:])) == CO64 {
		co.Entries = make([]uint64, r.count(8, "EntryCount"))
		for i := range co.Entries {
			co.Entries[i] = r.u64("ChunkOffset")
		}
		return r.n, r.err
	}
	co.Entries = make([]uint64, r.count(4, "EntryCount"))
	for i := range co.Entries {
		co.Entries[i] = uint64(r.u32("ChunkOffset"))
	}
	return r.n, r.err
}
