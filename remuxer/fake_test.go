package remuxer

import (
	"crypto/sha256"
	"errors"
	"io"

	"github.com/ugparu/gomux"
	"github.com/ugparu/gomux/codec"
)

var (
	errTruncated   = errors.New("truncated input")
	errUnsupported = errors.New("unsupported codec")
	errDiskFull    = errors.New("disk full")
)

type fakeParams struct {
	codec.BaseParameters
}

func (p *fakeParams) Tag() string { return p.CodecType.String() }

func newParams(ct gomux.CodecType) *fakeParams {
	return &fakeParams{BaseParameters: codec.BaseParameters{CodecType: ct}}
}

type fakeSource struct {
	streams   []gomux.StreamDescriptor
	packets   []*gomux.Packet
	hashes    [][32]byte
	failAfter int // -1 never
	next      int
	closed    int
}

func (s *fakeSource) Streams() []gomux.StreamDescriptor { return s.streams }

func (s *fakeSource) ReadPacket() (*gomux.Packet, error) {
	if s.failAfter >= 0 && s.next == s.failAfter {
		return nil, errTruncated
	}
	if s.next >= len(s.packets) {
		return nil, io.EOF
	}
	pkt := s.packets[s.next]
	s.next++
	return pkt, nil
}

func (s *fakeSource) Close() error {
	s.closed++
	return nil
}

type writtenPacket struct {
	gomux.Packet
	hash [32]byte
}

type fakeSink struct {
	flags         gomux.FormatFlags
	rejectStream  int // -1 never
	headerTBs     []gomux.Rational
	failWriteAt   int // -1 never
	trailerErr    error
	streams       []gomux.StreamDescriptor
	written       []writtenPacket
	headers       int
	trailers      int
	transportOpen int
	transportShut int
}

func newFakeSink() *fakeSink {
	return &fakeSink{rejectStream: -1, failWriteAt: -1}
}

func (s *fakeSink) Flags() gomux.FormatFlags { return s.flags }

func (s *fakeSink) AddStream(sd gomux.StreamDescriptor) (int, error) {
	if len(s.streams) == s.rejectStream {
		return -1, errUnsupported
	}
	s.streams = append(s.streams, sd)
	return len(s.streams) - 1, nil
}

func (s *fakeSink) Streams() []gomux.StreamDescriptor { return s.streams }

func (s *fakeSink) OpenTransport() error {
	s.transportOpen++
	return nil
}

func (s *fakeSink) CloseTransport() error {
	s.transportShut++
	return nil
}

func (s *fakeSink) WriteHeader() error {
	s.headers++
	for i, tb := range s.headerTBs {
		s.streams[i].TimeBase = tb
	}
	return nil
}

func (s *fakeSink) WritePacket(pkt *gomux.Packet) error {
	if len(s.written) == s.failWriteAt {
		return errDiskFull
	}
	cp := *pkt
	s.written = append(s.written, writtenPacket{Packet: cp, hash: sha256.Sum256(pkt.Data())})
	return nil
}

func (s *fakeSink) WriteTrailer() error {
	s.trailers++
	return s.trailerErr
}

// interleaved builds n packets alternating between a 1/90000 video stream
// and a 1/48000 audio stream.
func interleaved(n int) *fakeSource {
	src := &fakeSource{
		failAfter: -1,
		streams: []gomux.StreamDescriptor{
			{Index: 0, CodecParameters: newParams(gomux.H264), TimeBase: gomux.NewRational(1, 90000), CodecTag: 0x31637661},
			{Index: 1, CodecParameters: newParams(gomux.AAC), TimeBase: gomux.NewRational(1, 48000), CodecTag: 0x6134706d},
		},
	}
	var v, a int64
	for i := 0; i < n; i++ {
		var pkt *gomux.Packet
		if i%2 == 0 {
			pkt = gomux.NewPacket(0, []byte{0, 0, 0, 2, 0x65, byte(i)})
			pkt.PTS, pkt.DTS, pkt.Duration = v+3000, v, 3000
			pkt.KeyFrame = i%20 == 0
			v += 3000
		} else {
			pkt = gomux.NewPacket(1, []byte{0x21, byte(i), 0x7f})
			pkt.PTS, pkt.DTS, pkt.Duration = a, a, 1024
			a += 1024
		}
		pkt.Pos = int64(i * 100)
		src.packets = append(src.packets, pkt)
		src.hashes = append(src.hashes, sha256.Sum256(pkt.Data()))
	}
	return src
}

func openers(src *fakeSource, sink *fakeSink) []Option {
	return []Option{
		WithSourceOpener(func(string) (gomux.Source, error) { return src, nil }),
		WithSinkOpener(func(string) (gomux.Sink, error) { return sink, nil }),
	}
}
