package remuxer

import "github.com/ugparu/gomux"

// tsRounding rounds to nearest and keeps NoPTS and math.MaxInt64 intact.
const tsRounding = gomux.RoundNearInf | gomux.RoundPassMinMax

// RescalePacket converts the timestamps of pkt from time base in to time base out
// and clears its byte position. Payload and stream index are left alone.
func RescalePacket(pkt *gomux.Packet, in, out gomux.Rational) {
	pkt.PTS = gomux.RescaleQRnd(pkt.PTS, in, out, tsRounding)
	pkt.DTS = gomux.RescaleQRnd(pkt.DTS, in, out, tsRounding)
	pkt.Duration = gomux.RescaleQ(pkt.Duration, in, out)
	pkt.Pos = -1
}
