package remuxer

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ugparu/gomux"
)

func TestBuildOutputStreams(t *testing.T) {
	t.Parallel()

	in := interleaved(0).streams
	in = append(in, gomux.StreamDescriptor{
		Index: 2, CodecParameters: newParams(gomux.H265), TimeBase: gomux.NewRational(1, 1000), CodecTag: 0x31766568,
	})

	for _, flags := range []gomux.FormatFlags{0, gomux.FlagGlobalHeader, gomux.FlagGlobalHeader | gomux.FlagNoFile} {
		sink := newFakeSink()
		sink.flags = flags

		out, err := BuildOutputStreams(sink, in)
		require.NoError(t, err)
		require.Len(t, out, len(in))
		require.Equal(t, out, sink.streams)

		for i := range in {
			require.Equal(t, i, out[i].Index)
			require.Equal(t, in[i].Codec(), out[i].Codec())
			require.Equal(t, in[i].TimeBase, out[i].TimeBase)
			require.Zero(t, out[i].CodecTag)
			require.Equal(t, flags.Has(gomux.FlagGlobalHeader), out[i].GlobalHeader)
			require.NotZero(t, in[i].CodecTag, "input table must not be modified")
		}
	}
}

func TestBuildOutputStreamsRejected(t *testing.T) {
	t.Parallel()

	sink := newFakeSink()
	sink.rejectStream = 0

	out, err := BuildOutputStreams(sink, interleaved(0).streams)
	require.Nil(t, out)
	require.ErrorIs(t, err, gomux.ErrAllocation)

	var e *gomux.Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, "mapper", e.Component)
}

func TestBuildOutputStreamsOutOfOrder(t *testing.T) {
	t.Parallel()

	in := interleaved(0).streams
	in[0], in[1] = in[1], in[0]

	_, err := BuildOutputStreams(newFakeSink(), in)
	require.ErrorIs(t, err, gomux.ErrProbe)
}

func TestBuildOutputStreamsEmpty(t *testing.T) {
	t.Parallel()

	out, err := BuildOutputStreams(newFakeSink(), nil)
	require.NoError(t, err)
	require.Empty(t, out)
}
