// Package mpegts reads MPEG transport streams carrying H.264, H.265 and AAC.
package mpegts

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ugparu/gomux"
	"github.com/ugparu/gomux/utils/logger"
)

// DefaultProbeSize bounds the bytes read while looking for codec parameters.
const DefaultProbeSize = 5 << 20

const readBufferSize = 64 * 1024

var errNoProgram = errors.New("mpegts: no PMT found")

func init() {
	gomux.RegisterSource("mpegts", []string{"ts", "m2ts", "mts"}, func(locator string) (gomux.Source, error) {
		dmx, err := Open(locator)
		if err != nil {
			return nil, err
		}
		return dmx, nil
	})
}

type Option func(*Demuxer)

// WithProbeSize sets how many bytes probing may read. Non-positive values are ignored.
func WithProbeSize(n int64) Option {
	return func(dmx *Demuxer) {
		if n > 0 {
			dmx.probeSize = n
		}
	}
}

type queued struct {
	stream *pidStream
	pkt    *gomux.Packet
}

// Demuxer is a Source reading the first program of a transport stream.
type Demuxer struct {
	r         *bufio.Reader
	closer    io.Closer
	location  string
	probeSize int64

	offset  int64
	packet  [PacketSize]byte
	eof     bool
	pmtPID  int
	pmtSeen bool

	sections map[uint16]*sectionBuffer
	pids     map[uint16]*pidStream
	order    []*pidStream
	queue    []queued
	streams  []gomux.StreamDescriptor
}

// Open opens the transport stream at path and probes its streams.
func Open(path string, opts ...Option) (*Demuxer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, gomux.NewError(gomux.KindOpen, "source", err)
	}
	dmx, err := NewDemuxer(f, opts...)
	if err != nil {
		f.Close()
		return nil, err
	}
	dmx.closer = f
	dmx.location = path
	return dmx, nil
}

// NewDemuxer probes a transport stream read from r.
func NewDemuxer(r io.Reader, opts ...Option) (*Demuxer, error) {
	dmx := &Demuxer{
		r:         bufio.NewReaderSize(r, readBufferSize),
		probeSize: DefaultProbeSize,
		pmtPID:    -1,
		sections:  map[uint16]*sectionBuffer{pidPAT: {}},
		pids:      map[uint16]*pidStream{},
	}
	for _, opt := range opts {
		opt(dmx)
	}
	if err := dmx.probe(); err != nil {
		dmx.release()
		return nil, gomux.NewError(gomux.KindProbe, "source", err)
	}
	return dmx, nil
}

func (dmx *Demuxer) String() string {
	return "TS_DEMUXER " + dmx.location
}

func (dmx *Demuxer) Streams() []gomux.StreamDescriptor {
	return dmx.streams
}

// ready reports whether every stream of the program has codec parameters.
func (dmx *Demuxer) ready() bool {
	if !dmx.pmtSeen {
		return false
	}
	for _, s := range dmx.order {
		if s.par == nil {
			return false
		}
	}
	return true
}

func (dmx *Demuxer) probe() error {
	for !dmx.ready() && dmx.offset < dmx.probeSize && !dmx.eof {
		if err := dmx.next(); err != nil {
			return err
		}
	}
	if !dmx.pmtSeen {
		return errNoProgram
	}

	for _, s := range dmx.order {
		if s.par == nil {
			logger.Warningf(dmx, "PID %d (%s): no codec parameters after %d bytes, stream ignored", s.pid, s.codec, dmx.offset)
			continue
		}
		s.index = len(dmx.streams)
		dmx.streams = append(dmx.streams, gomux.StreamDescriptor{
			Index:           s.index,
			CodecParameters: s.par,
			TimeBase:        TimeBase,
		})
		logger.Infof(dmx, "stream %d: PID %d %s", s.index, s.pid, s.par.Tag())
	}
	if len(dmx.streams) == 0 {
		return fmt.Errorf("mpegts: no usable streams in %d bytes", dmx.offset)
	}
	return nil
}

// ReadPacket returns the next packet in stream order of the input.
func (dmx *Demuxer) ReadPacket() (*gomux.Packet, error) {
	for {
		if pkt := dmx.pop(); pkt != nil {
			return pkt, nil
		}
		if dmx.eof {
			return nil, gomux.ErrEndOfStream
		}
		if err := dmx.next(); err != nil {
			return nil, err
		}
	}
}

func (dmx *Demuxer) pop() *gomux.Packet {
	for len(dmx.queue) > 0 {
		q := dmx.queue[0]
		dmx.queue[0] = queued{}
		dmx.queue = dmx.queue[1:]
		if q.stream.index < 0 {
			q.pkt.Release()
			continue
		}
		q.pkt.StreamIndex = q.stream.index
		return q.pkt
	}
	return nil
}

// next reads one TS packet. At end of input the pending PES packets are flushed.
func (dmx *Demuxer) next() error {
	err := dmx.readPacket()
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			logger.Warningf(dmx, "truncated packet at offset %d", dmx.offset)
		}
		for _, s := range dmx.order {
			if pes, pos := s.flush(); pes != nil {
				dmx.enqueue(s, s.packets(pes, pos))
			}
		}
		dmx.eof = true
		return nil
	}
	if err != nil {
		return err
	}

	start := dmx.offset
	dmx.offset += PacketSize
	hdr, payload, err := parsePacket(dmx.packet[:])
	if err != nil {
		return err
	}
	if hdr.transportErr {
		logger.Warningf(dmx, "transport error indicator set on PID %d at offset %d", hdr.pid, start)
		return nil
	}
	if hdr.pid == pidNull || !hdr.hasPayload {
		return nil
	}

	if sb, ok := dmx.sections[hdr.pid]; ok {
		if section := sb.add(hdr.pusi, payload); section != nil {
			dmx.handleSection(hdr.pid, section)
		}
		return nil
	}

	s, ok := dmx.pids[hdr.pid]
	if !ok || !s.continuity(hdr) {
		return nil
	}
	if pes, pos := s.add(hdr, payload, start); pes != nil {
		dmx.enqueue(s, s.packets(pes, pos))
	}
	return nil
}

// readPacket fills dmx.packet. After a bad sync byte it skips garbage until
// a 0x47 that the following packet confirms.
func (dmx *Demuxer) readPacket() error {
	if _, err := io.ReadFull(dmx.r, dmx.packet[:]); err != nil {
		return err
	}
	if dmx.packet[0] == syncByte {
		return nil
	}

	skipped := 0
	for {
		i := bytes.IndexByte(dmx.packet[1:], syncByte) + 1
		if i == 0 {
			i = PacketSize
		}
		skipped += i
		dmx.offset += int64(i)
		n := copy(dmx.packet[:], dmx.packet[i:])
		if _, err := io.ReadFull(dmx.r, dmx.packet[n:]); err != nil {
			return err
		}
		if dmx.confirmed() {
			break
		}
	}
	logger.Warningf(dmx, "%v, skipped %d bytes", errSync, skipped)
	return nil
}

// confirmed reports whether a candidate packet starts with a sync byte and
// is followed by another one or by the end of the input.
func (dmx *Demuxer) confirmed() bool {
	if dmx.packet[0] != syncByte {
		return false
	}
	next, err := dmx.r.Peek(1)
	return err != nil || next[0] == syncByte
}

func (dmx *Demuxer) handleSection(pid uint16, section []byte) {
	switch {
	case pid == pidPAT && section[0] == tableIDPAT:
		if dmx.pmtPID >= 0 {
			return
		}
		pmts, err := parsePAT(section)
		if err != nil {
			logger.Warningf(dmx, "PAT: %v", err)
			return
		}
		if len(pmts) == 0 {
			return
		}
		if len(pmts) > 1 {
			logger.Infof(dmx, "%d programs, demuxing the first", len(pmts))
		}
		dmx.pmtPID = int(pmts[0])
		dmx.sections[pmts[0]] = &sectionBuffer{}
	case int(pid) == dmx.pmtPID && section[0] == tableIDPMT:
		if dmx.pmtSeen {
			return
		}
		streams, err := parsePMT(section)
		if err != nil {
			logger.Warningf(dmx, "PMT: %v", err)
			return
		}
		dmx.pmtSeen = true
		for _, es := range streams {
			switch es.streamType {
			case StreamTypeH264, StreamTypeH265, StreamTypeAAC:
			default:
				logger.Warningf(dmx, "PID %d: stream type 0x%02x not supported, ignored", es.pid, es.streamType)
				continue
			}
			if _, dup := dmx.pids[es.pid]; dup {
				continue
			}
			s := newPIDStream(es)
			dmx.pids[es.pid] = s
			dmx.order = append(dmx.order, s)
		}
	}
}

func (dmx *Demuxer) enqueue(s *pidStream, pkts []*gomux.Packet) {
	for _, pkt := range pkts {
		dmx.queue = append(dmx.queue, queued{stream: s, pkt: pkt})
	}
}

func (dmx *Demuxer) release() {
	for _, q := range dmx.queue {
		q.pkt.Release()
	}
	dmx.queue = nil
}

// Close releases queued packets and closes the file opened by Open.
func (dmx *Demuxer) Close() error {
	dmx.release()
	if dmx.closer == nil {
		return nil
	}
	err := dmx.closer.Close()
	dmx.closer = nil
	return err
}
