package mp4

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/ugparu/gomux"
	"github.com/ugparu/gomux/format/mp4/mp4io"
	"github.com/ugparu/gomux/utils/buffer"
	"github.com/ugparu/gomux/utils/logger"
)

var (
	errNoMovie  = errors.New("mp4: moov atom not found")
	errNoTracks = errors.New("mp4: no supported tracks")
)

type track struct {
	index    int
	timeBase gomux.Rational
	samples  []sample
	next     int
}

func (t *track) done() bool {
	return t.next >= len(t.samples)
}

// nextTime is the DTS of the next sample in seconds.
func (t *track) nextTime() float64 {
	return float64(t.samples[t.next].dts) * t.timeBase.Float64()
}

// Demuxer is a Source reading a progressive MP4 file.
type Demuxer struct {
	r        io.ReadSeeker
	closer   io.Closer
	size     int64
	tracks   []*track
	streams  []gomux.StreamDescriptor
	location string
}

// Open opens the MP4 file at path and probes its tracks.
func Open(path string) (gomux.Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, gomux.NewError(gomux.KindOpen, "source", err)
	}
	dmx, err := NewDemuxer(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	dmx.closer = f
	dmx.location = path
	return dmx, nil
}

// NewDemuxer probes an MP4 read from r.
func NewDemuxer(r io.ReadSeeker) (*Demuxer, error) {
	dmx := &Demuxer{r: r}
	if err := dmx.probe(); err != nil {
		return nil, gomux.NewError(gomux.KindProbe, "source", err)
	}
	return dmx, nil
}

func (dmx *Demuxer) String() string {
	return "MP4_DEMUXER " + dmx.location
}

func (dmx *Demuxer) probe() (err error) {
	if dmx.size, err = dmx.r.Seek(0, io.SeekEnd); err != nil {
		return
	}
	if _, err = dmx.r.Seek(0, io.SeekStart); err != nil {
		return
	}

	atoms, err := mp4io.ReadFileAtoms(dmx.r)
	if err != nil {
		return err
	}
	var moov *mp4io.Movie
	for _, atom := range atoms {
		if m, ok := atom.(*mp4io.Movie); ok {
			moov = m
			break
		}
	}
	if moov == nil {
		return errNoMovie
	}

	movieTimeScale := uint32(0)
	if moov.Header != nil {
		movieTimeScale = moov.Header.TimeScale
	}
	for i, trk := range moov.Tracks {
		if err = dmx.addTrack(trk, movieTimeScale); err != nil {
			logger.Warningf(dmx, "Skipping track %d: %v", i, err)
		}
	}
	if len(dmx.tracks) == 0 {
		return errNoTracks
	}
	return nil
}

func (dmx *Demuxer) addTrack(trk *mp4io.Track, movieTimeScale uint32) error {
	if trk.Media == nil || trk.Media.Header == nil || trk.Media.Header.TimeScale == 0 {
		return errors.New("track without media time scale")
	}
	par, format, err := codecParameters(trk)
	if err != nil {
		return err
	}
	samples, err := buildIndex(trk.SampleTable())
	if err != nil {
		return err
	}

	t := &track{
		index:    len(dmx.tracks),
		timeBase: gomux.NewRational(1, int(trk.Media.Header.TimeScale)),
		samples:  samples,
	}
	if shift := editShift(trk, movieTimeScale, t.timeBase); shift != 0 {
		for i := range t.samples {
			t.samples[i].dts += shift
		}
	}
	dmx.tracks = append(dmx.tracks, t)
	dmx.streams = append(dmx.streams, gomux.StreamDescriptor{
		Index:           t.index,
		CodecParameters: par,
		TimeBase:        t.timeBase,
		CodecTag:        uint32(format),
		GlobalHeader:    true,
	})
	logger.Debugf(dmx, "Track %d: %v %s, %d samples", t.index, par.Type(), t.timeBase, len(samples))
	return nil
}

// editShift turns the leading edits of trk into a DTS offset: empty edits
// delay the media, the first real edit skips its media time.
func editShift(trk *mp4io.Track, movieTimeScale uint32, tb gomux.Rational) int64 {
	if trk.Edit == nil || trk.Edit.List == nil {
		return 0
	}
	delay, start := trk.Edit.List.Delay()
	shift := -start
	if delay > 0 && movieTimeScale > 0 && delay <= math.MaxInt64 {
		shift += gomux.RescaleQ(int64(delay), gomux.NewRational(1, int(movieTimeScale)), tb)
	}
	return shift
}

func (dmx *Demuxer) Streams() []gomux.StreamDescriptor {
	return dmx.streams
}

// ReadPacket returns the pending sample with the lowest DTS in seconds.
func (dmx *Demuxer) ReadPacket() (*gomux.Packet, error) {
	var chosen *track
	for _, t := range dmx.tracks {
		if t.done() {
			continue
		}
		if chosen == nil || t.nextTime() < chosen.nextTime() {
			chosen = t
		}
	}
	if chosen == nil {
		return nil, gomux.ErrEndOfStream
	}

	s := chosen.samples[chosen.next]
	chosen.next++
	if s.pos+int64(s.size) > dmx.size {
		return nil, fmt.Errorf("mp4: sample of stream %d at %d: %w", chosen.index, s.pos, io.ErrUnexpectedEOF)
	}
	if _, err := dmx.r.Seek(s.pos, io.SeekStart); err != nil {
		return nil, err
	}
	buf := buffer.Get(int(s.size))
	if _, err := io.ReadFull(dmx.r, buf.Data()); err != nil {
		buf.Release()
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("mp4: sample of stream %d at %d: %w", chosen.index, s.pos, err)
	}

	pkt := gomux.NewPacketWithBuffer(chosen.index, buf)
	pkt.DTS = s.dts
	pkt.PTS = s.dts + int64(s.cts)
	pkt.Duration = int64(s.duration)
	pkt.Pos = s.pos
	pkt.KeyFrame = s.key
	return pkt, nil
}

// Close closes the file opened by Open. Readers passed to NewDemuxer are left open.
func (dmx *Demuxer) Close() error {
	if dmx.closer == nil {
		return nil
	}
	err := dmx.closer.Close()
	dmx.closer = nil
	return err
}
