package mpegts

import (
	"bytes"

	"github.com/ugparu/gomux"
	"github.com/ugparu/gomux/codec/aac"
	"github.com/ugparu/gomux/codec/h264"
	"github.com/ugparu/gomux/codec/h265"
	"github.com/ugparu/gomux/utils/bits/pio"
	"github.com/ugparu/gomux/utils/logger"
)

const (
	timestampBits   = 33
	timestampPeriod = int64(1) << timestampBits
	timestampMask   = timestampPeriod - 1
)

// ClockRate is the 90 kHz clock PTS and DTS count in.
const ClockRate = 90000

// TimeBase is the time base of every MPEG-TS stream.
var TimeBase = gomux.NewRational(1, ClockRate)

// pidStream reassembles the PES packets of one elementary stream.
type pidStream struct {
	pid        uint16
	streamType uint8
	codec      gomux.CodecType
	par        gomux.CodecParameters
	index      int

	buf     []byte
	pos     int64
	started bool
	cc      int

	wrap   int64
	lastTS int64

	adtsRest   []byte
	anchorPTS  int64
	anchorSize int64 // samples emitted since anchorPTS
}

func newPIDStream(es elementaryStream) *pidStream {
	s := &pidStream{
		pid:        es.pid,
		streamType: es.streamType,
		index:      -1,
		cc:         -1,
		lastTS:     gomux.NoPTS,
		anchorPTS:  gomux.NoPTS,
	}
	switch es.streamType {
	case StreamTypeH264:
		s.codec = gomux.H264
	case StreamTypeH265:
		s.codec = gomux.H265
	case StreamTypeAAC:
		s.codec = gomux.AAC
	}
	return s
}

func (s *pidStream) String() string {
	return "TS_PID " + s.codec.String()
}

// continuity checks the counter of a packet carrying payload. It returns
// false for duplicates, which must be dropped.
func (s *pidStream) continuity(hdr packetHeader) bool {
	prev := s.cc
	s.cc = int(hdr.cc)
	switch {
	case prev < 0 || hdr.discontinuity:
		return true
	case int(hdr.cc) == prev:
		return false
	case int(hdr.cc) != (prev+1)&0x0f:
		if s.started {
			logger.Warningf(s, "continuity error on PID %d (%d after %d), dropping PES", s.pid, hdr.cc, prev)
		}
		s.started = false
		s.buf = s.buf[:0]
	}
	return true
}

// add feeds one packet payload. It returns a complete PES packet, if any,
// and the offset of its first TS packet. The returned slice is valid until
// the next call.
func (s *pidStream) add(hdr packetHeader, payload []byte, offset int64) (pes []byte, pos int64) {
	if hdr.pusi {
		if s.started {
			pes, pos = s.buf, s.pos
		}
		// new PES reuses the tail of buf, so hand out a copy
		if pes != nil {
			pes = bytes.Clone(pes)
		}
		s.buf = append(s.buf[:0], payload...)
		s.pos = offset
		s.started = true
	} else {
		if !s.started {
			return nil, 0
		}
		s.buf = append(s.buf, payload...)
	}

	if pes == nil {
		if n := s.bounded(); n > 0 && len(s.buf) >= n {
			s.started = false
			return s.buf[:n], s.pos
		}
	}
	return pes, pos
}

// bounded returns the full size of the PES being assembled, 0 when the
// header is incomplete or PES_packet_length is unset.
func (s *pidStream) bounded() int {
	if len(s.buf) < 6 { //nolint:mnd // start code, stream id, length
		return 0
	}
	n := int(pio.U16BE(s.buf[4:]))
	if n == 0 {
		return 0
	}
	return 6 + n //nolint:mnd // bytes before PES_packet_length's coverage
}

// flush returns the PES still being assembled at end of input.
func (s *pidStream) flush() ([]byte, int64) {
	if !s.started || len(s.buf) == 0 {
		return nil, 0
	}
	s.started = false
	return s.buf, s.pos
}

// unwrap extends a 33-bit timestamp to a monotonic 64-bit one.
func (s *pidStream) unwrap(ts int64) int64 {
	ts += s.wrap
	if s.lastTS != gomux.NoPTS && ts < s.lastTS-timestampPeriod/2 {
		s.wrap += timestampPeriod
		ts += timestampPeriod
	}
	s.lastTS = ts
	return ts
}

// timestamps unwraps the PES PTS and DTS. DTS follows PTS when absent and
// PTS keeps its signed 33-bit distance to DTS.
func (s *pidStream) timestamps(hdr pesHeader) (pts, dts int64) {
	if hdr.pts == gomux.NoPTS {
		return gomux.NoPTS, gomux.NoPTS
	}
	rawDTS := hdr.dts
	if rawDTS == gomux.NoPTS {
		rawDTS = hdr.pts
	}
	dts = s.unwrap(rawDTS)
	offset := (hdr.pts - rawDTS) & timestampMask
	if offset >= timestampPeriod/2 {
		offset -= timestampPeriod
	}
	return dts + offset, dts
}

// video turns one PES into one access unit packet, payload kept in Annex B.
func (s *pidStream) video(hdr pesHeader, payload []byte, pos int64) []*gomux.Packet {
	if len(payload) == 0 {
		return nil
	}
	if s.par == nil {
		s.probeVideo(payload)
	}

	pkt := gomux.NewPacket(s.index, payload)
	pkt.PTS, pkt.DTS = s.timestamps(hdr)
	pkt.Pos = pos
	if s.codec == gomux.H265 {
		pkt.KeyFrame = h265.IsKeyFrame(payload)
	} else {
		pkt.KeyFrame = h264.IsKeyFrame(payload)
	}
	return []*gomux.Packet{pkt}
}

func (s *pidStream) probeVideo(payload []byte) {
	switch s.codec {
	case gomux.H264:
		sps, pps := h264.FindParameterSets(payload)
		if sps == nil || pps == nil {
			return
		}
		par, err := h264.NewCodecDataFromSPSAndPPS(bytes.Clone(sps), bytes.Clone(pps))
		if err != nil {
			logger.Warningf(s, "PID %d: %v", s.pid, err)
			return
		}
		s.par = par
	case gomux.H265:
		vps, sps, pps := h265.FindParameterSets(payload)
		if vps == nil || sps == nil || pps == nil {
			return
		}
		par, err := h265.NewCodecDataFromVPSAndSPSAndPPS(bytes.Clone(vps), bytes.Clone(sps), bytes.Clone(pps))
		if err != nil {
			logger.Warningf(s, "PID %d: %v", s.pid, err)
			return
		}
		s.par = par
	}
	if s.par != nil {
		logger.Debugf(s, "PID %d: found %s", s.pid, s.par.Tag())
	}
}

// audio splits a PES of ADTS frames into one packet per frame. A frame cut
// at the end of the PES is completed by the next one.
func (s *pidStream) audio(hdr pesHeader, payload []byte, pos int64) []*gomux.Packet {
	pts, _ := s.timestamps(hdr)
	if len(s.adtsRest) == 0 && pts != gomux.NoPTS {
		s.anchorPTS, s.anchorSize = pts, 0
	}

	data := append(s.adtsRest, payload...) //nolint:gocritic // rest is reused as scratch
	frames, rest, err := aac.SplitADTS(data)
	if err != nil {
		logger.Warningf(s, "PID %d: %v, dropping %d bytes", s.pid, err, len(rest))
		rest = nil
	}

	pkts := make([]*gomux.Packet, 0, len(frames))
	for _, frame := range frames {
		if s.par == nil {
			par, parErr := aac.NewCodecDataFromADTSHeader(frame.Frame)
			if parErr != nil {
				logger.Warningf(s, "PID %d: %v", s.pid, parErr)
				continue
			}
			s.par = par
			logger.Debugf(s, "PID %d: found %s", s.pid, par.Tag())
		}

		pkt := gomux.NewPacket(s.index, frame.Frame)
		pkt.Pos = pos
		pkt.KeyFrame = true
		if s.anchorPTS != gomux.NoPTS && frame.Config.SampleRate > 0 {
			rate := int64(frame.Config.SampleRate)
			start := s.anchorPTS + gomux.Rescale(s.anchorSize, ClockRate, rate)
			s.anchorSize += int64(frame.Samples)
			end := s.anchorPTS + gomux.Rescale(s.anchorSize, ClockRate, rate)
			pkt.PTS, pkt.DTS, pkt.Duration = start, start, end-start
		} else {
			pkt.PTS, pkt.DTS = gomux.NoPTS, gomux.NoPTS
		}
		pkts = append(pkts, pkt)
	}
	s.adtsRest = append(s.adtsRest[:0], rest...)
	return pkts
}

// packets converts a complete PES into source packets.
func (s *pidStream) packets(pes []byte, pos int64) []*gomux.Packet {
	hdr, payload, err := parsePES(pes)
	if err != nil {
		logger.Warningf(s, "PID %d: %v", s.pid, err)
		return nil
	}
	if s.codec == gomux.AAC {
		return s.audio(hdr, payload, pos)
	}
	return s.video(hdr, payload, pos)
}
