package remuxer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ugparu/gomux"
)

func TestRescalePacket(t *testing.T) {
	t.Parallel()

	tb90k := gomux.NewRational(1, 90000)
	tb48k := gomux.NewRational(1, 48000)
	tbMs := gomux.NewRational(1, 1000)

	tests := []struct {
		name             string
		in, out          gomux.Rational
		pts, dts, dur    int64
		wantPTS, wantDTS int64
		wantDur          int64
	}{
		{
			name: "90k to ms", in: tb90k, out: tbMs,
			pts: 183000, dts: 180000, dur: 3000,
			wantPTS: 2033, wantDTS: 2000, wantDur: 33,
		},
		{
			name: "48k to 90k", in: tb48k, out: tb90k,
			pts: 1024, dts: 1024, dur: 1024,
			wantPTS: 1920, wantDTS: 1920, wantDur: 1920,
		},
		{
			name: "unknown timestamps", in: tb90k, out: tb48k,
			pts: gomux.NoPTS, dts: gomux.NoPTS, dur: 0,
			wantPTS: gomux.NoPTS, wantDTS: gomux.NoPTS, wantDur: 0,
		},
		{
			name: "max sentinel", in: tb48k, out: tbMs,
			pts: math.MaxInt64, dts: 48000, dur: 0,
			wantPTS: math.MaxInt64, wantDTS: 1000, wantDur: 0,
		},
		{
			name: "identity", in: tb48k, out: tb48k,
			pts: 12345, dts: -7, dur: 1,
			wantPTS: 12345, wantDTS: -7, wantDur: 1,
		},
		{
			name: "negative dts rounds away from zero", in: tb90k, out: tbMs,
			pts: 0, dts: -135, dur: 0,
			wantPTS: 0, wantDTS: -2, wantDur: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			data := []byte{1, 2, 3}
			pkt := gomux.NewPacket(1, data)
			pkt.PTS, pkt.DTS, pkt.Duration, pkt.Pos = tt.pts, tt.dts, tt.dur, 4096

			RescalePacket(pkt, tt.in, tt.out)
			require.Equal(t, tt.wantPTS, pkt.PTS)
			require.Equal(t, tt.wantDTS, pkt.DTS)
			require.Equal(t, tt.wantDur, pkt.Duration)
			require.Equal(t, int64(-1), pkt.Pos)
			require.Equal(t, 1, pkt.StreamIndex)
			require.Equal(t, data, pkt.Data())
		})
	}
}
