//nolint:mnd // field layout of ISO/IEC 13818-1 2.4.3
package mpegts

import (
	"errors"
	"fmt"

	"github.com/ugparu/gomux"
	"github.com/ugparu/gomux/utils/bits/pio"
)

const (
	PacketSize = 188
	syncByte   = 0x47

	pidPAT  = 0x0000
	pidNull = 0x1fff
)

// Stream types of the PMT that can be demuxed.
const (
	StreamTypeAAC  = 0x0f
	StreamTypeH264 = 0x1b
	StreamTypeH265 = 0x24
)

var errSync = errors.New("mpegts: lost sync")

type packetHeader struct {
	pid           uint16
	pusi          bool // payload_unit_start_indicator
	transportErr  bool
	discontinuity bool
	hasPayload    bool
	cc            uint8
}

// parsePacket returns the header and payload of one 188-byte packet. The payload aliases b.
func parsePacket(b []byte) (hdr packetHeader, payload []byte, err error) {
	if len(b) != PacketSize {
		return hdr, nil, fmt.Errorf("mpegts: packet size %d", len(b))
	}
	if b[0] != syncByte {
		return hdr, nil, errSync
	}

	hdr.transportErr = b[1]&0x80 != 0
	hdr.pusi = b[1]&0x40 != 0
	hdr.pid = pio.U16BE(b[1:]) & 0x1fff
	hasAdaptation := b[3]&0x20 != 0
	hdr.hasPayload = b[3]&0x10 != 0
	hdr.cc = b[3] & 0x0f

	offset := 4
	if hasAdaptation {
		afLen := int(b[4])
		if afLen > 0 {
			hdr.discontinuity = b[5]&0x80 != 0
		}
		offset += 1 + afLen
	}
	if !hdr.hasPayload || offset >= PacketSize {
		return hdr, nil, nil
	}
	return hdr, b[offset:], nil
}

type pesHeader struct {
	pts, dts int64
	length   int // PES_packet_length, 0 when unbounded
}

// parsePES splits a PES packet into its timestamps and elementary stream payload.
func parsePES(b []byte) (hdr pesHeader, payload []byte, err error) {
	hdr.pts, hdr.dts = gomux.NoPTS, gomux.NoPTS
	if len(b) < 6 || pio.U24BE(b) != 1 {
		return hdr, nil, errors.New("mpegts: missing PES start code")
	}
	streamID := b[3]
	hdr.length = int(pio.U16BE(b[4:]))
	end := len(b)
	if hdr.length > 0 && 6+hdr.length < end {
		end = 6 + hdr.length
	}

	switch streamID {
	case 0xbc, 0xbe, 0xbf, 0xf0, 0xf1, 0xf2, 0xf8, 0xff:
		// no optional header
		return hdr, b[6:end], nil
	}

	if len(b) < 9 {
		return hdr, nil, errors.New("mpegts: PES header too short")
	}
	flags := b[7] >> 6
	start := 9 + int(b[8])
	if start > end {
		return hdr, nil, errors.New("mpegts: PES header exceeds packet")
	}
	if flags&0x2 != 0 && len(b) >= 14 {
		hdr.pts = parseTimestamp(b[9:])
	}
	if flags == 0x3 && len(b) >= 19 {
		hdr.dts = parseTimestamp(b[14:])
	}
	return hdr, b[start:end], nil
}

// parseTimestamp reads a 33-bit PTS or DTS from its 5-byte marker encoding.
func parseTimestamp(b []byte) int64 {
	return int64(b[0]>>1&0x07)<<30 |
		int64(b[1])<<22 |
		int64(b[2]>>1)<<15 |
		int64(b[3])<<7 |
		int64(b[4]>>1)
}
