package gomux

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPacket(t *testing.T) {
	t.Parallel()

	src := []byte{1, 2, 3, 4}
	pkt := NewPacket(1, src)
	src[0] = 9

	require.Equal(t, []byte{1, 2, 3, 4}, pkt.Data())
	require.Equal(t, 4, pkt.Len())
	require.Equal(t, NoPTS, pkt.PTS)
	require.Equal(t, NoPTS, pkt.DTS)
	require.Equal(t, int64(-1), pkt.Pos)
	require.Contains(t, pkt.String(), "pts=NOPTS")

	pkt.Release()
	require.Nil(t, pkt.Data())
	require.Zero(t, pkt.Len())
	pkt.Release()

	var empty *Packet
	require.Equal(t, "EMPTY_PACKET", empty.String())
}

func TestStreamDescriptor(t *testing.T) {
	t.Parallel()

	require.Equal(t, CodecType(0), StreamDescriptor{}.Codec())
	require.True(t, (FlagGlobalHeader | FlagNoFile).Has(FlagNoFile))
	require.False(t, FlagGlobalHeader.Has(FlagNoFile))
	require.Equal(t, "audio", AAC.MediaType())
	require.Equal(t, "video", H264.MediaType())
	require.Equal(t, "MJPEG", MJPEG.String())
}
