package mp4

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/ugparu/gomux"
	"github.com/ugparu/gomux/format/mp4/mp4io"
	"github.com/ugparu/gomux/utils/bits/pio"
	"github.com/ugparu/gomux/utils/logger"
)

const (
	// 32-bit size 1, 'mdat', 64-bit largesize
	mdatHeaderSize = 16
	writeBufSize   = 64 * 1024
)

var (
	errHeaderNotWritten = errors.New("mp4: header not written")
	errTransportClosed  = errors.New("mp4: transport is not open")
)

type stream struct {
	index    int
	codec    gomux.CodecType
	trak     *mp4io.Track
	timeBase gomux.Rational

	count        int
	firstDTS     int64
	lastDTS      int64
	lastDuration int64
	duration     uint64
	hasCTS       bool

	stts   []mp4io.TimeToSampleEntry
	ctts   []mp4io.CompositionOffsetEntry
	sizes  []uint32
	sync   []uint32
	chunks []uint64
	counts []uint32 // samples per chunk
}

func (s *stream) addDuration(d uint32) {
	s.duration += uint64(d)
	if n := len(s.stts); n > 0 && s.stts[n-1].Duration == d {
		s.stts[n-1].Count++
		return
	}
	s.stts = append(s.stts, mp4io.TimeToSampleEntry{Count: 1, Duration: d})
}

func (s *stream) addOffset(off int32) {
	s.hasCTS = s.hasCTS || off != 0
	if n := len(s.ctts); n > 0 && s.ctts[n-1].Offset == off {
		s.ctts[n-1].Count++
		return
	}
	s.ctts = append(s.ctts, mp4io.CompositionOffsetEntry{Count: 1, Offset: off})
}

// closeDurations gives the final sample its own duration, or the previous delta.
func (s *stream) closeDurations() error {
	if s.count == 0 {
		return nil
	}
	d := s.lastDuration
	if d <= 0 && len(s.stts) > 0 {
		d = int64(s.stts[len(s.stts)-1].Duration)
	}
	if d < 0 || d > math.MaxUint32 {
		return fmt.Errorf("mp4: stream %d: last duration %d out of range", s.index, d)
	}
	s.addDuration(uint32(d))
	return nil
}

// start is the DTS of the first sample in movie ticks.
func (s *stream) start() int64 {
	return gomux.RescaleQ(s.firstDTS, s.timeBase, gomux.NewRational(1, movieTimeScale))
}

// fillTrack moves the collected tables into the trak. A track starting delay
// movie ticks after the earliest one gets an empty edit of that length.
func (s *stream) fillTrack(delay int64) {
	st := s.trak.SampleTable()
	st.TimeToSample.Entries = s.stts
	st.SampleSize.Entries = s.sizes
	st.ChunkOffset.Entries = s.chunks

	st.SampleToChunk.Entries = st.SampleToChunk.Entries[:0]
	for i, n := range s.counts {
		if k := len(st.SampleToChunk.Entries); k > 0 && st.SampleToChunk.Entries[k-1].SamplesPerChunk == n {
			continue
		}
		st.SampleToChunk.Entries = append(st.SampleToChunk.Entries, mp4io.SampleToChunkEntry{
			FirstChunk:      uint32(i + 1), //nolint:gosec // chunk count fits the table
			SamplesPerChunk: n,
			SampleDescID:    1,
		})
	}

	st.CompositionOffset = nil
	if s.hasCTS {
		st.CompositionOffset = &mp4io.CompositionOffset{Entries: s.ctts}
	}
	st.SyncSample = nil
	if s.codec.IsVideo() {
		st.SyncSample = &mp4io.SyncSample{Entries: s.sync}
	}

	s.trak.Media.Header.Duration = s.duration
	movieDur := gomux.RescaleQ(int64(min(s.duration, math.MaxInt64)), s.timeBase, gomux.NewRational(1, movieTimeScale)) //nolint:gosec // clamped
	s.trak.Header.Duration = uint64(max(movieDur, 0))                                                                 //nolint:gosec // clamped

	s.trak.Edit = nil
	if delay > 0 {
		s.trak.Edit = &mp4io.Edit{List: &mp4io.EditList{Entries: []mp4io.EditListEntry{
			{SegmentDuration: uint64(delay), MediaTime: mp4io.EmptyEdit, MediaRate: 1}, //nolint:gosec // positive
			{SegmentDuration: s.trak.Header.Duration, MediaRate: 1},
		}}}
		s.trak.Header.Duration += uint64(delay) //nolint:gosec // positive
	}
}

// Muxer is a Sink writing a progressive MP4: ftyp, mdat, then moov.
type Muxer struct {
	path  string
	file  *os.File
	w     io.WriteSeeker
	bw    *bufio.Writer
	flags gomux.FormatFlags

	streams []*stream
	descs   []gomux.StreamDescriptor
	last    *stream

	mdatPos int64
	pos     int64
	started bool
}

// Create returns a Muxer that writes to the file at path once its transport is opened.
func Create(path string) (gomux.Sink, error) {
	return &Muxer{path: path, flags: gomux.FlagGlobalHeader}, nil
}

// NewMuxer returns a Muxer writing to w. It needs no transport.
func NewMuxer(w io.WriteSeeker) *Muxer {
	return &Muxer{w: w, flags: gomux.FlagGlobalHeader | gomux.FlagNoFile}
}

func (m *Muxer) String() string {
	return "MP4_MUXER " + m.path
}

func (m *Muxer) Flags() gomux.FormatFlags {
	return m.flags
}

func (m *Muxer) OpenTransport() (err error) {
	if m.w != nil {
		return nil
	}
	if m.file, err = os.Create(m.path); err != nil {
		return err
	}
	m.w = m.file
	return nil
}

func (m *Muxer) CloseTransport() error {
	if m.file == nil {
		return nil
	}
	err := m.file.Close()
	m.file = nil
	m.w = nil
	return err
}

// AddStream registers a track. Video tracks get a 1/90000 time base, audio
// tracks one tick per sample.
func (m *Muxer) AddStream(sd gomux.StreamDescriptor) (int, error) {
	if m.started {
		return -1, errors.New("mp4: streams cannot be added after the header")
	}
	idx := len(m.streams)
	trak, err := NewTrack(uint32(idx+1), sd.CodecParameters) //nolint:gosec // a handful of tracks
	if err != nil {
		return -1, err
	}
	tb, err := TimeBase(sd.CodecParameters)
	if err != nil {
		return -1, err
	}

	m.streams = append(m.streams, &stream{
		index:    idx,
		codec:    sd.CodecParameters.Type(),
		trak:     trak,
		timeBase: tb,
	})
	sd.Index = idx
	sd.TimeBase = tb
	sd.GlobalHeader = true
	sd.CodecTag = uint32(trak.SampleDesc().Children()[0].Tag())
	m.descs = append(m.descs, sd)
	return idx, nil
}

func (m *Muxer) Streams() []gomux.StreamDescriptor {
	return m.descs
}

// WriteHeader writes ftyp, free and an mdat header whose 64-bit size is patched by WriteTrailer.
func (m *Muxer) WriteHeader() (err error) {
	if m.w == nil {
		return errTransportClosed
	}
	if len(m.streams) == 0 {
		return errors.New("mp4: no streams")
	}
	base, err := m.w.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}

	ftyp := NewFileType()
	free := &mp4io.Free{Size: mp4io.HeaderSize}
	b := make([]byte, ftyp.Len()+free.Len()+mdatHeaderSize)
	n := ftyp.Marshal(b)
	n += free.Marshal(b[n:])
	m.mdatPos = base + int64(n)
	pio.PutU32BE(b[n:], 1)
	pio.PutU32BE(b[n+4:], uint32(mp4io.MDAT))

	m.bw = bufio.NewWriterSize(m.w, writeBufSize)
	if _, err = m.bw.Write(b); err != nil {
		return err
	}
	m.pos = base + int64(len(b))
	m.started = true
	return nil
}

func (m *Muxer) WritePacket(pkt *gomux.Packet) error {
	if !m.started {
		return errHeaderNotWritten
	}
	if pkt.StreamIndex < 0 || pkt.StreamIndex >= len(m.streams) {
		return fmt.Errorf("mp4: packet for unknown stream %d", pkt.StreamIndex)
	}
	s := m.streams[pkt.StreamIndex]

	dts := pkt.DTS
	if dts == gomux.NoPTS {
		dts = pkt.PTS
	}
	if dts == gomux.NoPTS {
		dts = 0
		if s.count > 0 {
			dts = s.lastDTS + s.lastDuration
		}
	}
	if s.count == 0 {
		s.firstDTS = dts
	} else {
		if dts < s.lastDTS {
			return fmt.Errorf("mp4: stream %d: DTS %d after %d is not monotonic", s.index, dts, s.lastDTS)
		}
		delta := dts - s.lastDTS
		if delta > math.MaxUint32 {
			return fmt.Errorf("mp4: stream %d: DTS gap %d too large", s.index, delta)
		}
		s.addDuration(uint32(delta))
	}

	offset := int64(0)
	if pkt.PTS != gomux.NoPTS {
		offset = pkt.PTS - dts
	}
	if offset < math.MinInt32 || offset > math.MaxInt32 {
		return fmt.Errorf("mp4: stream %d: composition offset %d out of range", s.index, offset)
	}
	s.addOffset(int32(offset))

	data := SampleData(s.codec, pkt.Data())
	if m.last != s {
		s.chunks = append(s.chunks, uint64(m.pos)) //nolint:gosec // positive file offset
		s.counts = append(s.counts, 0)
		m.last = s
	}
	if _, err := m.bw.Write(data); err != nil {
		return err
	}
	m.pos += int64(len(data))
	s.counts[len(s.counts)-1]++
	s.sizes = append(s.sizes, uint32(len(data))) //nolint:gosec // samples are far below 4GB

	s.count++
	if pkt.KeyFrame {
		s.sync = append(s.sync, uint32(s.count)) //nolint:gosec // sample numbers fit the table
	}
	s.lastDTS = dts
	s.lastDuration = pkt.Duration
	return nil
}

// WriteTrailer patches the mdat size and appends moov.
func (m *Muxer) WriteTrailer() (err error) {
	if !m.started {
		return errHeaderNotWritten
	}
	m.started = false

	moov := &mp4io.Movie{Header: mp4io.NewMovieHeader(movieTimeScale, 0, uint32(len(m.streams)+1))} //nolint:gosec // a handful of tracks
	earliest := int64(math.MaxInt64)
	for _, s := range m.streams {
		if s.count > 0 {
			earliest = min(earliest, s.start())
		}
	}
	for _, s := range m.streams {
		if err = s.closeDurations(); err != nil {
			return err
		}
		delay := int64(0)
		if s.count > 0 {
			delay = s.start() - earliest
		}
		s.fillTrack(delay)
		moov.Header.Duration = max(moov.Header.Duration, s.trak.Header.Duration)
		moov.Tracks = append(moov.Tracks, s.trak)
		logger.Debugf(m, "Stream %d: %d samples in %d chunks, delayed %dms", s.index, s.count, len(s.chunks), delay)
	}

	if err = m.bw.Flush(); err != nil {
		return err
	}
	var size [8]byte
	pio.PutU64BE(size[:], uint64(m.pos-m.mdatPos)) //nolint:gosec // positive size
	if _, err = m.w.Seek(m.mdatPos+mp4io.HeaderSize, io.SeekStart); err != nil {
		return err
	}
	if _, err = m.w.Write(size[:]); err != nil {
		return err
	}
	if _, err = m.w.Seek(m.pos, io.SeekStart); err != nil {
		return err
	}

	b := make([]byte, moov.Len())
	moov.Marshal(b)
	_, err = m.w.Write(b)
	return err
}
