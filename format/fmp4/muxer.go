// Package fmp4 writes fragmented MP4 to files or any io.Writer.
package fmp4

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/ugparu/gomux"
	"github.com/ugparu/gomux/format/mp4"
	"github.com/ugparu/gomux/format/mp4/mp4io"
	"github.com/ugparu/gomux/utils/bits/pio"
	"github.com/ugparu/gomux/utils/buffer"
	"github.com/ugparu/gomux/utils/logger"
)

func init() {
	gomux.RegisterSink("fmp4", []string{"m4s", "fmp4"}, func(locator string) (gomux.Sink, error) {
		return Create(locator)
	})
}

// DefaultFragmentDuration is the minimum duration of a fragment.
const DefaultFragmentDuration = time.Second

// StdoutLocator makes Create write to standard output.
const StdoutLocator = "-"

const writeBufSize = 64 * 1024

var nanosecond = gomux.NewRational(1, int(time.Second))

var (
	errHeaderNotWritten = errors.New("fmp4: header not written")
	errTransportClosed  = errors.New("fmp4: transport is not open")
)

// Option configures a Muxer.
type Option func(*Muxer)

// WithFragmentDuration sets the minimum fragment duration. Non-positive values are ignored.
func WithFragmentDuration(d time.Duration) Option {
	return func(m *Muxer) {
		if d > 0 {
			m.fragmentDuration = d
		}
	}
}

// Muxer is a Sink writing an init segment followed by moof and mdat pairs.
// Fragments start on video key frames, or on duration alone without video.
type Muxer struct {
	path  string
	file  *os.File
	w     io.Writer
	bw    *bufio.Writer
	flags gomux.FormatFlags

	fragmentDuration time.Duration
	streams          []*stream
	descs            []gomux.StreamDescriptor
	video            *stream
	origin           time.Duration // earliest negative start of any stream

	seqnum    uint32
	fragments int
	started   bool
}

func newMuxer(opts []Option) *Muxer {
	m := &Muxer{flags: gomux.FlagGlobalHeader, fragmentDuration: DefaultFragmentDuration}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create returns a Muxer for a file path, or for standard output when locator is "-".
func Create(locator string, opts ...Option) (gomux.Sink, error) {
	m := newMuxer(opts)
	m.path = locator
	if locator == StdoutLocator {
		m.w = os.Stdout
		m.flags |= gomux.FlagNoFile
	}
	return m, nil
}

// NewMuxer returns a Muxer writing to w. It needs no transport.
func NewMuxer(w io.Writer, opts ...Option) *Muxer {
	m := newMuxer(opts)
	m.w = w
	m.flags |= gomux.FlagNoFile
	return m
}

func (m *Muxer) String() string {
	return "FMP4_MUXER " + m.path
}

func (m *Muxer) Flags() gomux.FormatFlags {
	return m.flags
}

// Fragments returns the number of fragments written so far.
func (m *Muxer) Fragments() int {
	return m.fragments
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

func (m *Muxer) AddStream(sd gomux.StreamDescriptor) (int, error) {
	if m.started {
		return -1, errors.New("fmp4: streams cannot be added after the header")
	}
	idx := len(m.streams)
	trackID := uint32(idx + 1) //nolint:gosec // a handful of tracks
	trak, err := mp4.NewTrack(trackID, sd.CodecParameters)
	if err != nil {
		return -1, err
	}
	tb, err := mp4.TimeBase(sd.CodecParameters)
	if err != nil {
		return -1, err
	}

	s := &stream{
		index:    idx,
		trackID:  trackID,
		codec:    sd.CodecParameters.Type(),
		timeBase: tb,
		trak:     trak,
	}
	m.streams = append(m.streams, s)
	if m.video == nil && s.codec.IsVideo() {
		m.video = s
	}

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

// WriteHeader writes the init segment: ftyp and a moov with empty sample tables and mvex.
func (m *Muxer) WriteHeader() error {
	if m.w == nil {
		return errTransportClosed
	}
	if len(m.streams) == 0 {
		return errors.New("fmp4: no streams")
	}

	moov := &mp4io.Movie{
		Header:      mp4io.NewMovieHeader(1000, 0, uint32(len(m.streams)+1)), //nolint:gosec,mnd // a handful of tracks
		MovieExtend: &mp4io.MovieExtend{},
	}
	for _, s := range m.streams {
		moov.Tracks = append(moov.Tracks, s.trak)
		moov.MovieExtend.Tracks = append(moov.MovieExtend.Tracks, &mp4io.TrackExtend{
			TrackID:              s.trackID,
			DefaultSampleDescIdx: 1,
		})
	}

	ftyp := mp4.NewFileType()
	ftyp.CompatibleBrands[3] = mp4io.StringToTag("dash")

	buf := buffer.Get(ftyp.Len() + moov.Len())
	defer buf.Release()
	n := ftyp.Marshal(buf.Data())
	moov.Marshal(buf.Data()[n:])

	m.bw = bufio.NewWriterSize(m.w, writeBufSize)
	if _, err := m.bw.Write(buf.Data()); err != nil {
		return err
	}
	m.started = true
	return nil
}

func (m *Muxer) shouldFlush(s *stream, key bool, dts int64) bool {
	if m.video != nil {
		return s == m.video && key && s.span(dts) >= m.fragmentDuration
	}
	return s.span(dts) >= m.fragmentDuration
}

func (m *Muxer) WritePacket(pkt *gomux.Packet) error {
	if !m.started {
		return errHeaderNotWritten
	}
	if pkt.StreamIndex < 0 || pkt.StreamIndex >= len(m.streams) {
		return fmt.Errorf("fmp4: packet for unknown stream %d", pkt.StreamIndex)
	}
	s := m.streams[pkt.StreamIndex]

	dts := pkt.DTS
	if dts == gomux.NoPTS {
		dts = pkt.PTS
	}
	if dts == gomux.NoPTS {
		dts = s.nextDTS()
	}
	if s.started && dts < s.lastDTS {
		return fmt.Errorf("fmp4: stream %d: DTS %d after %d is not monotonic", s.index, dts, s.lastDTS)
	}

	offset := int64(0)
	if pkt.PTS != gomux.NoPTS {
		offset = pkt.PTS - dts
	}
	if offset < math.MinInt32 || offset > math.MaxInt32 {
		return fmt.Errorf("fmp4: stream %d: composition offset %d out of range", s.index, offset)
	}

	if m.shouldFlush(s, pkt.KeyFrame, dts) {
		if err := m.flush(); err != nil {
			return err
		}
	}

	if !s.started {
		if err := m.startStream(s, dts); err != nil {
			return err
		}
	} else {
		s.lastDelta = dts - s.lastDTS
	}
	s.pending = append(s.pending, sample{
		dts:      dts,
		cts:      int32(offset),
		duration: pkt.Duration,
		key:      pkt.KeyFrame,
		buf:      buffer.From(mp4.SampleData(s.codec, pkt.Data())),
	})
	s.lastDTS = dts
	s.lastDuration = pkt.Duration
	return nil
}

// startStream moves the shared origin back when s starts before it, so that
// every track keeps its offset to the others and decode times stay non-negative.
func (m *Muxer) startStream(s *stream, dts int64) error {
	start := time.Duration(gomux.RescaleQRnd(dts, s.timeBase, nanosecond, gomux.RoundDown))
	if start < m.origin {
		if m.fragments > 0 {
			return fmt.Errorf("fmp4: stream %d starts at %v, before the origin %v of written fragments", s.index, start, m.origin)
		}
		m.origin = start
	}
	s.started = true
	for _, st := range m.streams {
		st.base = gomux.RescaleQ(int64(m.origin), nanosecond, st.timeBase)
	}
	return nil
}

// flush writes the pending samples of all streams as one fragment.
func (m *Muxer) flush() error {
	moof := &mp4io.MovieFrag{Header: &mp4io.MovieFragHeader{Seqnum: m.seqnum + 1}}
	var flushed []*stream
	for _, s := range m.streams {
		if len(s.pending) > 0 {
			moof.Tracks = append(moof.Tracks, s.trackFrag())
			flushed = append(flushed, s)
		}
	}
	if len(flushed) == 0 {
		return nil
	}

	moofLen := moof.Len()
	offset := moofLen + mp4io.HeaderSize
	for _, traf := range moof.Tracks {
		traf.Run.DataOffset = int32(offset) //nolint:gosec // fragments are far below 2GB
		for _, e := range traf.Run.Entries {
			offset += int(e.Size)
		}
	}
	if offset-moofLen > math.MaxUint32 {
		return errors.New("fmp4: fragment too large")
	}

	b := make([]byte, moofLen+mp4io.HeaderSize)
	moof.Marshal(b)
	pio.PutU32BE(b[moofLen:], uint32(offset-moofLen)) //nolint:gosec // checked above
	pio.PutU32BE(b[moofLen+4:], uint32(mp4io.MDAT))
	if _, err := m.bw.Write(b); err != nil {
		return err
	}
	for _, s := range flushed {
		for _, smp := range s.pending {
			if _, err := m.bw.Write(smp.buf.Data()); err != nil {
				return err
			}
		}
		s.release()
	}

	m.seqnum++
	m.fragments++
	logger.Tracef(m, "Fragment %d: %d tracks, %d bytes", m.seqnum, len(flushed), offset)
	return m.bw.Flush()
}

// WriteTrailer flushes the last fragment.
func (m *Muxer) WriteTrailer() error {
	if !m.started {
		return errHeaderNotWritten
	}
	m.started = false
	err := m.flush()
	for _, s := range m.streams {
		s.release()
	}
	if err != nil {
		return err
	}
	logger.Debugf(m, "Wrote %d fragments", m.fragments)
	return m.bw.Flush()
}
