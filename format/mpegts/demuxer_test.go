package mpegts

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ugparu/gomux"
	"github.com/ugparu/gomux/codec/aac"
	"github.com/ugparu/gomux/codec/h264"
)

const (
	pmtPID   = 0x1000
	videoPID = 0x100
	audioPID = 0x101
	dataPID  = 0x102
)

var (
	testSPS = []byte{
		0x67, 0x64, 0x00, 0x1f, 0xac, 0xd9, 0x40, 0x50,
		0x05, 0xbb, 0xff, 0x00, 0x03, 0x00, 0x04, 0x6a,
		0x02, 0x02, 0x02, 0x80, 0x00, 0x01, 0xf4, 0x80,
		0x00, 0x5d, 0xc0, 0x07, 0x8c, 0x18, 0xcb,
	}
	testPPS = []byte{0x68, 0xeb, 0xe3, 0xcb, 0x22, 0xc0}
)

// tsWriter builds a transport stream with valid continuity counters.
type tsWriter struct {
	buf bytes.Buffer
	cc  map[uint16]uint8
}

func newTSWriter() *tsWriter {
	return &tsWriter{cc: map[uint16]uint8{}}
}

func (w *tsWriter) packet(pid uint16, pusi bool, payload []byte) int {
	pkt := make([]byte, PacketSize)
	pkt[0] = syncByte
	pkt[1] = byte(pid >> 8 & 0x1f)
	if pusi {
		pkt[1] |= 0x40
	}
	pkt[2] = byte(pid)
	pkt[3] = 0x10 | w.cc[pid]
	w.cc[pid] = (w.cc[pid] + 1) & 0x0f

	n := min(len(payload), PacketSize-4)
	if n < PacketSize-4 {
		pkt[3] |= 0x20
		afLen := PacketSize - 5 - n
		pkt[4] = byte(afLen)
		for i := 5; i < 5+afLen; i++ {
			pkt[i] = 0xff
		}
		if afLen > 0 {
			pkt[5] = 0
		}
	}
	copy(pkt[PacketSize-n:], payload[:n])
	w.buf.Write(pkt)
	return n
}

func (w *tsWriter) psi(pid uint16, section []byte) {
	payload := append([]byte{0}, section...)
	for len(payload) < PacketSize-4 {
		payload = append(payload, 0xff)
	}
	w.packet(pid, true, payload)
}

func (w *tsWriter) pes(pid uint16, pes []byte) {
	first := true
	for len(pes) > 0 {
		n := w.packet(pid, first, pes)
		pes = pes[n:]
		first = false
	}
}

func (w *tsWriter) program(streams ...elementaryStream) {
	w.psi(pidPAT, section(tableIDPAT, []byte{0x00, 0x01, 0xc1, 0x00, 0x00, 0x00, 0x01, 0xe0 | pmtPID>>8, pmtPID & 0xff}))

	body := []byte{0x00, 0x01, 0xc1, 0x00, 0x00, 0xe0 | videoPID>>8, videoPID & 0xff, 0xf0, 0x00}
	for _, es := range streams {
		body = append(body, es.streamType, 0xe0|byte(es.pid>>8), byte(es.pid), 0xf0, 0x00)
	}
	w.psi(pmtPID, section(tableIDPMT, body))
}

func section(tableID byte, body []byte) []byte {
	n := len(body) + 4
	s := append([]byte{tableID, 0xb0 | byte(n>>8), byte(n)}, body...)
	crc := crc32(s)
	return append(s, byte(crc>>24), byte(crc>>16), byte(crc>>8), byte(crc))
}

func timestamp(prefix byte, ts int64) []byte {
	return []byte{
		prefix<<4 | byte(ts>>29)&0x0e | 1,
		byte(ts >> 22),
		byte(ts>>14)&0xfe | 1,
		byte(ts >> 7),
		byte(ts<<1) | 1,
	}
}

// pesPacket wraps payload with PTS and, when dts is set, DTS. Video PES
// packets are unbounded.
func pesPacket(streamID byte, pts, dts int64, payload []byte) []byte {
	var opt []byte
	flags := byte(0)
	switch {
	case dts != gomux.NoPTS:
		flags = 0xc0
		opt = append(timestamp(0x3, pts), timestamp(0x1, dts)...)
	case pts != gomux.NoPTS:
		flags = 0x80
		opt = timestamp(0x2, pts)
	}
	pes := []byte{0, 0, 1, streamID, 0, 0, 0x80, flags, byte(len(opt))}
	pes = append(pes, opt...)
	pes = append(pes, payload...)
	if streamID&0xe0 == 0xc0 {
		n := len(pes) - 6
		pes[4], pes[5] = byte(n>>8), byte(n)
	}
	return pes
}

// AAC LC, 48 kHz, stereo
func adtsFrame(payload ...byte) []byte {
	n := 7 + len(payload)
	return append([]byte{
		0xff, 0xf1, 0x4c,
		0x80 | byte(n>>11)&0x3,
		byte(n >> 3),
		byte(n&0x7)<<5 | 0x1f,
		0xfc,
	}, payload...)
}

func keyFrame(size int) []byte {
	au := append([]byte{0, 0, 0, 1}, testSPS...)
	au = append(au, 0, 0, 0, 1)
	au = append(au, testPPS...)
	au = append(au, 0, 0, 1, 0x65)
	return append(au, bytes.Repeat([]byte{0x88}, size)...)
}

func readAll(t *testing.T, dmx *Demuxer) []*gomux.Packet {
	t.Helper()
	var pkts []*gomux.Packet
	for {
		pkt, err := dmx.ReadPacket()
		if err != nil {
			require.ErrorIs(t, err, io.EOF)
			break
		}
		pkts = append(pkts, pkt)
	}
	_, err := dmx.ReadPacket()
	require.ErrorIs(t, err, gomux.ErrEndOfStream)
	return pkts
}

func TestDemux(t *testing.T) {
	t.Parallel()

	frameA := adtsFrame(0xa1, 0xa2)
	frameB := adtsFrame(0xb1, 0xb2)
	frameC := adtsFrame(0xc1, 0xc2, 0xc3)
	au0 := keyFrame(300)
	au1 := []byte{0, 0, 0, 1, 0x41, 0x9a, 0x02}

	w := newTSWriter()
	w.program(
		elementaryStream{pid: videoPID, streamType: StreamTypeH264},
		elementaryStream{pid: audioPID, streamType: StreamTypeAAC},
		elementaryStream{pid: dataPID, streamType: 0x06},
	)
	w.pes(videoPID, pesPacket(0xe0, 6000, 3000, au0))
	audio := append(append(bytes.Clone(frameA), frameB...), frameC[:4]...)
	w.pes(audioPID, pesPacket(0xc0, 3000, gomux.NoPTS, audio))
	w.pes(videoPID, pesPacket(0xe0, 9000, 6000, au1))
	w.pes(audioPID, pesPacket(0xc0, 99999, gomux.NoPTS, frameC[4:]))

	dmx, err := NewDemuxer(bytes.NewReader(w.buf.Bytes()))
	require.NoError(t, err)
	defer dmx.Close()

	streams := dmx.Streams()
	require.Len(t, streams, 2)
	require.Equal(t, gomux.H264, streams[0].Codec())
	require.Equal(t, TimeBase, streams[0].TimeBase)
	video, ok := streams[0].CodecParameters.(*h264.CodecParameters)
	require.True(t, ok)
	require.Equal(t, uint(1280), video.Width())
	require.Equal(t, gomux.AAC, streams[1].Codec())
	audioPar, ok := streams[1].CodecParameters.(*aac.CodecParameters)
	require.True(t, ok)
	require.Equal(t, uint64(48000), audioPar.SampleRate())
	require.Equal(t, uint8(2), audioPar.Channels())

	expected := []struct {
		stream   int
		pts, dts int64
		duration int64
		key      bool
		data     []byte
	}{
		{stream: 1, pts: 3000, dts: 3000, duration: 1920, key: true, data: frameA},
		{stream: 1, pts: 4920, dts: 4920, duration: 1920, key: true, data: frameB},
		{stream: 0, pts: 6000, dts: 3000, key: true, data: au0},
		{stream: 1, pts: 6840, dts: 6840, duration: 1920, key: true, data: frameC},
		{stream: 0, pts: 9000, dts: 6000, data: au1},
	}
	pkts := readAll(t, dmx)
	require.Len(t, pkts, len(expected))
	for i, want := range expected {
		pkt := pkts[i]
		require.Equal(t, want.stream, pkt.StreamIndex, "packet %d", i)
		require.Equal(t, want.pts, pkt.PTS, "packet %d", i)
		require.Equal(t, want.dts, pkt.DTS, "packet %d", i)
		require.Equal(t, want.duration, pkt.Duration, "packet %d", i)
		require.Equal(t, want.key, pkt.KeyFrame, "packet %d", i)
		require.Equal(t, want.data, pkt.Data(), "packet %d", i)
		pkt.Release()
	}
	// PAT and PMT precede the first video packet
	require.Equal(t, int64(2*PacketSize), pkts[2].Pos)
}

func TestTimestampWrap(t *testing.T) {
	t.Parallel()

	w := newTSWriter()
	w.program(elementaryStream{pid: videoPID, streamType: StreamTypeH264})
	w.pes(videoPID, pesPacket(0xe0, 0, timestampPeriod-3000, keyFrame(10)))
	w.pes(videoPID, pesPacket(0xe0, 3000, 0, []byte{0, 0, 1, 0x41, 0x01}))
	w.pes(videoPID, pesPacket(0xe0, 6000, gomux.NoPTS, []byte{0, 0, 1, 0x41, 0x02}))

	dmx, err := NewDemuxer(bytes.NewReader(w.buf.Bytes()))
	require.NoError(t, err)

	pkts := readAll(t, dmx)
	require.Len(t, pkts, 3)
	require.Equal(t, timestampPeriod-3000, pkts[0].DTS)
	require.Equal(t, timestampPeriod, pkts[0].PTS)
	require.Equal(t, timestampPeriod, pkts[1].DTS)
	require.Equal(t, timestampPeriod+3000, pkts[1].PTS)
	require.Equal(t, timestampPeriod+6000, pkts[2].DTS)
	require.Equal(t, timestampPeriod+6000, pkts[2].PTS)
	require.NoError(t, dmx.Close())
}

func TestStreamWithoutParametersIsDropped(t *testing.T) {
	t.Parallel()

	w := newTSWriter()
	w.program(
		elementaryStream{pid: videoPID, streamType: StreamTypeH264},
		elementaryStream{pid: audioPID, streamType: StreamTypeAAC},
	)
	for i := range 3 {
		w.pes(videoPID, pesPacket(0xe0, int64(i)*3000, gomux.NoPTS, []byte{0, 0, 1, 0x41, byte(i)}))
		w.pes(audioPID, pesPacket(0xc0, int64(i)*1920, gomux.NoPTS, adtsFrame(byte(i))))
	}

	dmx, err := NewDemuxer(bytes.NewReader(w.buf.Bytes()))
	require.NoError(t, err)
	require.Len(t, dmx.Streams(), 1)
	require.Equal(t, gomux.AAC, dmx.Streams()[0].Codec())

	pkts := readAll(t, dmx)
	require.Len(t, pkts, 3)
	for i, pkt := range pkts {
		require.Equal(t, 0, pkt.StreamIndex)
		require.Equal(t, int64(i)*1920, pkt.PTS)
	}
}

func TestResyncAndContinuity(t *testing.T) {
	t.Parallel()

	w := newTSWriter()
	w.program(elementaryStream{pid: videoPID, streamType: StreamTypeH264})
	w.pes(videoPID, pesPacket(0xe0, 0, gomux.NoPTS, keyFrame(10)))
	w.buf.Write([]byte{0x00, 0x47, 0x12, 0x00, 0x00})

	// second PES loses its middle packet
	lost := pesPacket(0xe0, 3000, gomux.NoPTS, append([]byte{0, 0, 1, 0x41}, bytes.Repeat([]byte{0x11}, 400)...))
	w.packet(videoPID, true, lost)
	w.cc[videoPID]++
	w.packet(videoPID, false, lost[2*(PacketSize-4):])

	w.pes(videoPID, pesPacket(0xe0, 6000, gomux.NoPTS, []byte{0, 0, 1, 0x41, 0x03}))

	dmx, err := NewDemuxer(bytes.NewReader(w.buf.Bytes()))
	require.NoError(t, err)

	pkts := readAll(t, dmx)
	require.Len(t, pkts, 2)
	require.Equal(t, int64(0), pkts[0].PTS)
	require.True(t, pkts[0].KeyFrame)
	require.Equal(t, int64(6000), pkts[1].PTS)
}

func TestStrayByteAfterKeyFrame(t *testing.T) {
	t.Parallel()

	w := newTSWriter()
	w.program(elementaryStream{pid: videoPID, streamType: StreamTypeH264})
	w.pes(videoPID, pesPacket(0xe0, 0, gomux.NoPTS, keyFrame(10)))
	w.buf.WriteByte(0x00)
	w.pes(videoPID, pesPacket(0xe0, 3000, gomux.NoPTS, []byte{0, 0, 1, 0x41, 0x01}))
	w.pes(videoPID, pesPacket(0xe0, 6000, gomux.NoPTS, []byte{0, 0, 1, 0x41, 0x02}))

	dmx, err := NewDemuxer(bytes.NewReader(w.buf.Bytes()))
	require.NoError(t, err)
	require.Len(t, dmx.Streams(), 1)

	pkts := readAll(t, dmx)
	require.Len(t, pkts, 3)
	require.True(t, pkts[0].KeyFrame)
	require.Equal(t, []int64{0, 3000, 6000}, []int64{pkts[0].PTS, pkts[1].PTS, pkts[2].PTS})
}

func TestProbeErrors(t *testing.T) {
	t.Parallel()

	_, err := Open(filepath.Join(t.TempDir(), "missing.ts"))
	require.ErrorIs(t, err, gomux.ErrOpen)

	_, err = NewDemuxer(bytes.NewReader(nil))
	require.ErrorIs(t, err, gomux.ErrProbe)
	require.ErrorIs(t, err, errNoProgram)

	// PMT with a broken CRC is never accepted
	w := newTSWriter()
	w.psi(pidPAT, section(tableIDPAT, []byte{0x00, 0x01, 0xc1, 0x00, 0x00, 0x00, 0x01, 0xe0 | pmtPID>>8, pmtPID & 0xff}))
	pmt := section(tableIDPMT, []byte{0x00, 0x01, 0xc1, 0x00, 0x00, 0xe1, 0x00, 0xf0, 0x00, StreamTypeH264, 0xe1, 0x00, 0xf0, 0x00})
	pmt[len(pmt)-1] ^= 0xff
	w.psi(pmtPID, pmt)
	_, err = NewDemuxer(bytes.NewReader(w.buf.Bytes()))
	require.ErrorIs(t, err, errNoProgram)

	w = newTSWriter()
	w.program(elementaryStream{pid: dataPID, streamType: 0x06})
	_, err = NewDemuxer(bytes.NewReader(w.buf.Bytes()))
	require.ErrorIs(t, err, gomux.ErrProbe)

	w = newTSWriter()
	w.program(elementaryStream{pid: videoPID, streamType: StreamTypeH264})
	for range 10 {
		w.pes(videoPID, pesPacket(0xe0, 0, gomux.NoPTS, keyFrame(1000)))
	}
	_, err = NewDemuxer(bytes.NewReader(w.buf.Bytes()), WithProbeSize(4*PacketSize))
	require.ErrorIs(t, err, gomux.ErrProbe)
}

func TestParsePES(t *testing.T) {
	t.Parallel()

	hdr, payload, err := parsePES([]byte{0, 0, 1, 0xbe, 0x00, 0x02, 0xff, 0xff, 0xaa})
	require.NoError(t, err)
	require.Equal(t, gomux.NoPTS, hdr.pts)
	require.Equal(t, []byte{0xff, 0xff}, payload)

	hdr, payload, err = parsePES(pesPacket(0xe0, timestampMask, 1, []byte{7}))
	require.NoError(t, err)
	require.Equal(t, timestampMask, hdr.pts)
	require.Equal(t, int64(1), hdr.dts)
	require.Equal(t, []byte{7}, payload)

	_, _, err = parsePES([]byte{0, 0, 2, 0xe0, 0, 0})
	require.Error(t, err)

	require.Zero(t, crc32(section(tableIDPAT, []byte{0, 1, 0xc1, 0, 0})))
}
