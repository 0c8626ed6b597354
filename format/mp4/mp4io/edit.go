package mp4io

import (
	"fmt"
	"math"
)

const (
	EDTS = Tag(0x65647473)
	ELST = Tag(0x656c7374)
)

// EmptyEdit is the media time of an edit that inserts nothing but delay.
const EmptyEdit = -1

// Edit is edts. Only its edit list is understood.
type Edit struct {
	List     *EditList
	Unknowns []Atom
	AtomPos
}

func (e Edit) Tag() Tag { return EDTS }
func (e Edit) Len() int { return boxLen(e.Children()) }
func (e Edit) Marshal(b []byte) int { return marshalBox(b, EDTS, e.Children()) }

func (e Edit) Children() (r []Atom) {
	if e.List != nil {
		r = append(r, e.List)
	}
	return append(r, e.Unknowns...)
}

func (e *Edit) Unmarshal(b []byte, offset int) (int, error) {
	e.setPos(offset, len(b))
	return len(b), walk(b, HeaderSize, offset, func(tag Tag, box []byte, off int) (err error) {
		if tag == ELST {
			e.List, err = decode[EditList](box, off)
			return
		}
		e.Unknowns = append(e.Unknowns, unknown(tag, box, off))
		return
	})
}

// EditListEntry maps SegmentDuration movie ticks of the presentation to the
// media starting at MediaTime, or to nothing when MediaTime is EmptyEdit.
type EditListEntry struct {
	SegmentDuration uint64
	MediaTime       int64
	MediaRate       float64
}

// EditList is elst.
type EditList struct {
	FullBox
	Entries []EditListEntry
	leaf
}

func (el EditList) Tag() Tag { return ELST }
func (el EditList) String() string { return fmt.Sprintf("entries=%d", len(el.Entries)) }

func (el EditList) version() uint8 {
	if el.Version == 1 {
		return 1
	}
	for _, e := range el.Entries {
		if e.SegmentDuration > math.MaxUint32 || e.MediaTime < math.MinInt32 || e.MediaTime > math.MaxInt32 {
			return 1
		}
	}
	return 0
}

func (el EditList) Len() int {
	if el.version() == 1 {
		return HeaderSize + fullBoxSize + 4 + 20*len(el.Entries)
	}
	return HeaderSize + fullBoxSize + 4 + 12*len(el.Entries)
}

func (el EditList) Marshal(b []byte) int {
	w := newWriter(b)
	v := el.version()
	FullBox{Version: v, Flags: el.Flags}.write(w)
	w.u32(entryCount(len(el.Entries)))
	for _, e := range el.Entries {
		if v == 1 {
			w.u64(e.SegmentDuration)
			w.u64(uint64(e.MediaTime)) //nolint:gosec // two's complement
		} else {
			w.u32(uint32(e.SegmentDuration)) //nolint:gosec // version() picks 1 above 32 bits
			w.u32(uint32(e.MediaTime))       //nolint:gosec // two's complement
		}
		PutFixed32(w.b[w.n:], e.MediaRate)
		w.n += 4
	}
	return w.finish(ELST)
}

func (el *EditList) Unmarshal(b []byte, offset int) (int, error) {
	el.setPos(offset, len(b))
	r := newReader(b, offset)
	el.read(r)
	size := 12
	if el.Version == 1 {
		size = 20
	}
	el.Entries = make([]EditListEntry, r.count(size, "EntryCount"))
	for i := range el.Entries {
		e := &el.Entries[i]
		if el.Version == 1 {
			e.SegmentDuration = r.u64("SegmentDuration")
			e.MediaTime = int64(r.u64("MediaTime")) //nolint:gosec // two's complement
		} else {
			e.SegmentDuration = uint64(r.u32("SegmentDuration"))
			e.MediaTime = int64(int32(r.u32("MediaTime"))) //nolint:gosec // two's complement
		}
		if p := r.take(4, "MediaRate"); p != nil {
			e.MediaRate = GetFixed32(p)
		}
	}
	return r.n, r.err
}

// Delay returns the movie ticks the first empty edits insert before the
// media and the media time the first real edit starts at.
func (el *EditList) Delay() (delay uint64, start int64) {
	for _, e := range el.Entries {
		if e.MediaTime != EmptyEdit {
			return delay, e.MediaTime
		}
		delay += e.SegmentDuration
	}
	return delay, 0
}
