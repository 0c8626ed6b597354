package fmp4

import (
	"time"

	"github.com/ugparu/gomux"
	"github.com/ugparu/gomux/format/mp4/mp4io"
	"github.com/ugparu/gomux/utils/buffer"
)

type sample struct {
	dts      int64
	cts      int32
	duration int64 // from the packet, 0 when unknown
	key      bool
	buf      buffer.PooledBuffer
}

type stream struct {
	index    int
	trackID  uint32
	codec    gomux.CodecType
	timeBase gomux.Rational
	trak     *mp4io.Track

	pending []sample
	started bool
	base    int64 // the muxer origin in this time base, subtracted from DTS

	lastDTS      int64
	lastDelta    int64
	lastDuration int64
}

// nextDTS guesses the DTS of a packet that carries none.
func (s *stream) nextDTS() int64 {
	if !s.started {
		return 0
	}
	if s.lastDuration > 0 {
		return s.lastDTS + s.lastDuration
	}
	return s.lastDTS + s.lastDelta
}

// span is the time covered by the pending samples if a sample at dts were added.
func (s *stream) span(dts int64) time.Duration {
	if len(s.pending) == 0 {
		return 0
	}
	return time.Duration(gomux.RescaleQ(dts-s.pending[0].dts, s.timeBase, gomux.NewRational(1, int(time.Second))))
}

func (s *stream) sampleFlags(key bool) uint32 {
	if s.codec.IsVideo() && !key {
		return mp4io.SampleNonKeyframe
	}
	return mp4io.SampleNoDependencies
}

// trackFrag describes the pending samples. DataOffset is set by the caller.
func (s *stream) trackFrag() *mp4io.TrackFrag {
	run := &mp4io.TrackFragRun{
		FullBox: mp4io.FullBox{
			Flags: mp4io.TRUNDataOffset | mp4io.TRUNSampleDuration | mp4io.TRUNSampleSize | mp4io.TRUNSampleFlags,
		},
		Entries: make([]mp4io.TrackFragRunEntry, len(s.pending)),
	}
	for i, smp := range s.pending {
		var duration int64
		switch {
		case i+1 < len(s.pending):
			duration = s.pending[i+1].dts - smp.dts
		case smp.duration > 0:
			duration = smp.duration
		default:
			duration = s.lastDelta
		}
		run.Entries[i] = mp4io.TrackFragRunEntry{
			Duration: uint32(min(max(duration, 0), 1<<32-1)), //nolint:gosec // clamped
			Size:     uint32(smp.buf.Len()),                  //nolint:gosec // samples are far below 4GB
			Flags:    s.sampleFlags(smp.key),
			Cts:      smp.cts,
		}
		if smp.cts != 0 {
			run.Flags |= mp4io.TRUNSampleCTS
		}
		if smp.cts < 0 {
			run.Version = 1
		}
	}

	return &mp4io.TrackFrag{
		Header: &mp4io.TrackFragHeader{
			FullBox: mp4io.FullBox{Flags: mp4io.TFHDDefaultBaseIsMOOF},
			TrackID: s.trackID,
		},
		DecodeTime: &mp4io.TrackFragDecodeTime{Time: uint64(s.pending[0].dts - s.base)}, //nolint:gosec // base keeps it non-negative
		Run:        run,
	}
}

func (s *stream) release() {
	for i := range s.pending {
		s.pending[i].buf.Release()
		s.pending[i].buf = nil
	}
	s.pending = s.pending[:0]
}
