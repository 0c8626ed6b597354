package mpegts

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ugparu/gomux"
	"github.com/ugparu/gomux/format/mp4"
	"github.com/ugparu/gomux/remuxer"
)

func avcc(nalus ...[]byte) []byte {
	var b []byte
	for _, nalu := range nalus {
		b = binary.BigEndian.AppendUint32(b, uint32(len(nalu))) //nolint:gosec // tiny test units
		b = append(b, nalu...)
	}
	return b
}

func TestRemuxToMP4(t *testing.T) {
	t.Parallel()

	// audio starts at 1s, video at 1.5s
	w := newTSWriter()
	w.program(
		elementaryStream{pid: videoPID, streamType: StreamTypeH264},
		elementaryStream{pid: audioPID, streamType: StreamTypeAAC},
	)
	for i := range int64(3) {
		w.pes(audioPID, pesPacket(0xc0, 90000+i*1920, gomux.NoPTS, adtsFrame(0xa0, byte(i))))
	}
	w.pes(videoPID, pesPacket(0xe0, 135000, gomux.NoPTS, keyFrame(20)))
	w.pes(videoPID, pesPacket(0xe0, 138000, gomux.NoPTS, []byte{0, 0, 1, 0x41, 0x9a, 0x01}))
	w.pes(videoPID, pesPacket(0xe0, 141000, gomux.NoPTS, []byte{0, 0, 1, 0x41, 0x9a, 0x02}))

	dir := t.TempDir()
	in, out := filepath.Join(dir, "in.ts"), filepath.Join(dir, "out.mp4")
	require.NoError(t, os.WriteFile(in, w.buf.Bytes(), 0o600))

	frames, err := remuxer.New(in, out).Remux()
	require.NoError(t, err)
	require.Equal(t, int64(6), frames)

	src, err := mp4.Open(out)
	require.NoError(t, err)
	defer src.Close()

	streams := src.Streams()
	require.Len(t, streams, 2)
	require.Equal(t, gomux.H264, streams[0].Codec())
	require.Equal(t, gomux.AAC, streams[1].Codec())

	var video, audio [][]byte
	first := map[int]float64{}
	for {
		pkt, err := src.ReadPacket()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		if _, seen := first[pkt.StreamIndex]; !seen {
			first[pkt.StreamIndex] = float64(pkt.DTS) * streams[pkt.StreamIndex].TimeBase.Float64()
		}
		data := append([]byte(nil), pkt.Data()...)
		if pkt.StreamIndex == 0 {
			video = append(video, data)
		} else {
			audio = append(audio, data)
		}
		pkt.Release()
	}

	idr := append([]byte{0x65}, keyFrame(20)[len(keyFrame(0)):]...)
	require.Equal(t, [][]byte{
		avcc(testSPS, testPPS, idr),
		avcc([]byte{0x41, 0x9a, 0x01}),
		avcc([]byte{0x41, 0x9a, 0x02}),
	}, video)
	require.Equal(t, [][]byte{{0xa0, 0}, {0xa0, 1}, {0xa0, 2}}, audio)
	require.InDelta(t, 0.5, first[0]-first[1], 1e-3)
}
