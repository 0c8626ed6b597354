package gomux

import (
	"fmt"

	"github.com/ugparu/gomux/utils/buffer"
)

// Packet is one compressed access unit. Timestamps are expressed in the
// time base of the stream it belongs to.
type Packet struct {
	StreamIndex int
	PTS         int64 // NoPTS when unknown
	DTS         int64 // NoPTS when unknown
	Duration    int64 // 0 when unknown
	Pos         int64 // byte position in the source, -1 when unknown
	KeyFrame    bool
	buf         buffer.PooledBuffer
}

// NewPacket creates a packet owning a pooled copy of data.
func NewPacket(streamIndex int, data []byte) *Packet {
	return &Packet{
		StreamIndex: streamIndex,
		PTS:         NoPTS,
		DTS:         NoPTS,
		Pos:         -1,
		buf:         buffer.From(data),
	}
}

// NewPacketWithBuffer creates a packet that takes ownership of buf.
func NewPacketWithBuffer(streamIndex int, buf buffer.PooledBuffer) *Packet {
	return &Packet{
		StreamIndex: streamIndex,
		PTS:         NoPTS,
		DTS:         NoPTS,
		Pos:         -1,
		buf:         buf,
	}
}

// Data returns the payload. It must not be used after Release.
func (pkt *Packet) Data() []byte {
	if pkt == nil || pkt.buf == nil {
		return nil
	}
	return pkt.buf.Data()
}

func (pkt *Packet) Len() int {
	if pkt == nil || pkt.buf == nil {
		return 0
	}
	return pkt.buf.Len()
}

// Release returns the payload buffer to its pool.
func (pkt *Packet) Release() {
	if pkt == nil || pkt.buf == nil {
		return
	}
	pkt.buf.Release()
	pkt.buf = nil
}

func (pkt *Packet) String() string {
	if pkt == nil {
		return "EMPTY_PACKET"
	}
	return fmt.Sprintf("PACKET idx=%d pts=%s dts=%s dur=%d sz=%d key=%t",
		pkt.StreamIndex, TimestampString(pkt.PTS), TimestampString(pkt.DTS), pkt.Duration, pkt.Len(), pkt.KeyFrame)
}
