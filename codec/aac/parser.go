//nolint:mnd // bit layouts of ISO/IEC 14496-3
package aac

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/ugparu/gomux"
	"github.com/ugparu/gomux/utils/bits"
)

// Audio object types, ISO/IEC 14496-3 table 1.17.
const (
	AotAacMain     = 1
	AotAacLc       = 2
	AotAacSsr      = 3
	AotAacLtp      = 4
	AotSbr         = 5
	AotAacScalable = 6
	AotErAacLc     = 17
	AotErAacLd     = 23
	AotPs          = 29
	AotEscape      = 31
	AotErAacEld    = 39
	AotUsac        = 42
)

// SamplesPerFrame is the number of PCM samples coded in one AAC-LC raw data block.
const SamplesPerFrame = 1024

// ADTSHeaderLength is the size of an ADTS header without CRC.
const ADTSHeaderLength = 7

type MPEG4AudioConfig struct {
	SampleRate      int
	ChannelLayout   gomux.ChannelLayout
	ObjectType      uint
	SampleRateIndex uint
	ChannelConfig   uint
}

func (config *MPEG4AudioConfig) IsValid() bool {
	return config.ObjectType > 0
}

// Complete derives SampleRate and ChannelLayout from their table indexes.
func (config *MPEG4AudioConfig) Complete() {
	if config.SampleRateIndex < uint(len(sampleRateTable)) {
		config.SampleRate = sampleRateTable[config.SampleRateIndex]
	}
	if config.ChannelConfig < uint(len(chanConfigTable)) {
		config.ChannelLayout = chanConfigTable[config.ChannelConfig]
	}
}

var sampleRateTable = []int{
	96000, 88200, 64000, 48000, 44100, 32000,
	24000, 22050, 16000, 12000, 11025, 8000, 7350,
}

// channel_configuration 0 is defined in the AOT specific config; 8-15 are reserved.
var chanConfigTable = []gomux.ChannelLayout{
	0,
	gomux.ChMono,
	gomux.ChStereo,
	gomux.ChSurround,
	gomux.Ch40,
	gomux.Ch50,
	gomux.Ch51,
	gomux.Ch71,
}

// ADTSHeader is one parsed ADTS frame header.
type ADTSHeader struct {
	Config    MPEG4AudioConfig
	HeaderLen int // 7, or 9 with CRC
	FrameLen  int // header plus payload
	Samples   int
}

// ParseADTSHeader parses the ADTS header at the start of frame.
func ParseADTSHeader(frame []byte) (hdr ADTSHeader, err error) {
	if len(frame) < ADTSHeaderLength {
		err = fmt.Errorf("aacparser: insufficient data for ADTS header, need at least 7 bytes, got %d", len(frame))
		return
	}

	if !IsADTS(frame) {
		err = fmt.Errorf("aacparser: invalid ADTS sync word: %02x %02x", frame[0], frame[1])
		return
	}

	hdr.Config.ObjectType = uint(frame[2]>>6) + 1
	hdr.Config.SampleRateIndex = uint(frame[2] >> 2 & 0xf)
	hdr.Config.ChannelConfig = uint(frame[2]<<2&0x4 | frame[3]>>6&0x3)

	if hdr.Config.SampleRateIndex >= uint(len(sampleRateTable)) {
		err = fmt.Errorf("aacparser: invalid sample rate index: %d", hdr.Config.SampleRateIndex)
		return
	}
	if hdr.Config.ChannelConfig == 0 || hdr.Config.ChannelConfig >= uint(len(chanConfigTable)) {
		err = fmt.Errorf("aacparser: invalid channel configuration: %d", hdr.Config.ChannelConfig)
		return
	}
	hdr.Config.Complete()

	hdr.FrameLen = int(frame[3]&0x3)<<11 | int(frame[4])<<3 | int(frame[5]>>5)
	hdr.Samples = (int(frame[6]&0x3) + 1) * SamplesPerFrame

	hdr.HeaderLen = ADTSHeaderLength
	if frame[1]&0x1 == 0 {
		hdr.HeaderLen = ADTSHeaderLength + 2
	}

	if hdr.FrameLen < hdr.HeaderLen {
		err = fmt.Errorf("aacparser: invalid ADTS frame length: %d (must be >= %d)", hdr.FrameLen, hdr.HeaderLen)
		return
	}
	return
}

// IsADTS reports whether b starts with an ADTS sync word (layer 0).
func IsADTS(b []byte) bool {
	return len(b) >= 2 && b[0] == 0xff && b[1]&0xf6 == 0xf0
}

// ADTSFrame is one ADTS frame found by SplitADTS.
type ADTSFrame struct {
	ADTSHeader
	Frame   []byte // header and payload
	Payload []byte // raw_data_block without header
}

// SplitADTS splits a buffer of concatenated ADTS frames. A trailing partial
// frame is returned in rest.
func SplitADTS(b []byte) (frames []ADTSFrame, rest []byte, err error) {
	for len(b) > 0 {
		if len(b) < ADTSHeaderLength {
			return frames, b, nil
		}
		var hdr ADTSHeader
		if hdr, err = ParseADTSHeader(b); err != nil {
			return frames, b, err
		}
		if hdr.FrameLen > len(b) {
			return frames, b, nil
		}
		frames = append(frames, ADTSFrame{
			ADTSHeader: hdr,
			Frame:      b[:hdr.FrameLen],
			Payload:    b[hdr.HeaderLen:hdr.FrameLen],
		})
		b = b[hdr.FrameLen:]
	}
	return frames, nil, nil
}

// StripADTS returns the raw payloads of all complete ADTS frames in b, joined.
// Input that does not start with an ADTS header is returned unchanged.
func StripADTS(b []byte) []byte {
	if !IsADTS(b) {
		return b
	}
	frames, _, err := SplitADTS(b)
	if err != nil || len(frames) == 0 {
		return b
	}
	if len(frames) == 1 {
		return frames[0].Payload
	}
	n := 0
	for _, f := range frames {
		n += len(f.Payload)
	}
	out := make([]byte, 0, n)
	for _, f := range frames {
		out = append(out, f.Payload...)
	}
	return out
}

// FillADTSHeader writes an unprotected ADTS header for a payload of the given size.
func FillADTSHeader(header []byte, config MPEG4AudioConfig, samples int, payloadLength int) error {
	if len(header) < ADTSHeaderLength {
		return fmt.Errorf("aacparser: header buffer too small, needs at least %d bytes, got %d",
			ADTSHeaderLength, len(header))
	}
	if !config.IsValid() || config.ObjectType > 4 {
		return errors.New("aacparser: invalid MPEG4 audio configuration for ADTS")
	}
	if config.SampleRateIndex >= uint(len(sampleRateTable)) {
		return fmt.Errorf("aacparser: invalid sample rate index: %d", config.SampleRateIndex)
	}
	if config.ChannelConfig >= uint(len(chanConfigTable)) {
		return fmt.Errorf("aacparser: invalid channel configuration: %d", config.ChannelConfig)
	}
	if samples <= 0 || samples%SamplesPerFrame != 0 || samples > 4*SamplesPerFrame {
		return fmt.Errorf("aacparser: invalid samples count: %d", samples)
	}
	if payloadLength < 0 {
		return fmt.Errorf("aacparser: invalid payload length: %d", payloadLength)
	}

	frameLength := payloadLength + ADTSHeaderLength
	if frameLength >= 1<<13 {
		return fmt.Errorf("aacparser: payload length too large: %d (max %d)", frameLength, (1<<13)-1)
	}

	// AAAAAAAA AAAABCCD EEFFFFGH HHIJKLMM MMMMMMMM MMMOOOOO OOOOOOPP
	header[0] = 0xff
	header[1] = 0xf1
	header[2] = byte(config.ObjectType-1)&0x3<<6 | byte(config.SampleRateIndex)&0xf<<2 | byte(config.ChannelConfig>>2)&0x1
	header[3] = byte(config.ChannelConfig&0x3)<<6 | byte(frameLength>>11)&0x3
	header[4] = byte(frameLength >> 3)
	header[5] = byte(frameLength)&0x7<<5 | 0x1f
	header[6] = 0xfc | byte(samples/SamplesPerFrame-1)
	return nil
}

func readObjectType(r *bits.Reader) (objectType uint, err error) {
	if objectType, err = r.ReadBits(5); err != nil {
		return
	}
	if objectType == AotEscape {
		var ext uint
		if ext, err = r.ReadBits(6); err != nil {
			return
		}
		objectType = 32 + ext
	}
	return
}

func writeObjectType(w *bits.Writer, objectType uint) error {
	if objectType >= 32 {
		if err := w.WriteBits(AotEscape, 5); err != nil {
			return err
		}
		return w.WriteBits(objectType-32, 6)
	}
	return w.WriteBits(objectType, 5)
}

// readSampleRate returns the index, or 0xf with the explicit frequency.
func readSampleRate(r *bits.Reader) (index uint, rate int, err error) {
	if index, err = r.ReadBits(4); err != nil {
		return
	}
	if index == 0xf {
		var v uint
		if v, err = r.ReadBits(24); err != nil {
			return
		}
		rate = int(v) //nolint:gosec // 24 bits
	}
	return
}

// ParseMPEG4AudioConfigBytes parses an AudioSpecificConfig as carried in esds.
func ParseMPEG4AudioConfigBytes(data []byte) (config MPEG4AudioConfig, err error) {
	if len(data) == 0 {
		return config, errors.New("aacparser: empty MPEG4 audio config data")
	}

	br := &bits.Reader{R: bytes.NewReader(data)}

	if config.ObjectType, err = readObjectType(br); err != nil {
		return config, fmt.Errorf("aacparser: insufficient data for object type: %w", err)
	}

	var rate int
	if config.SampleRateIndex, rate, err = readSampleRate(br); err != nil {
		return config, fmt.Errorf("aacparser: insufficient data for sample rate index: %w", err)
	}

	if config.ChannelConfig, err = br.ReadBits(4); err != nil {
		return config, fmt.Errorf("aacparser: insufficient data for channel config: %w", err)
	}

	config.Complete()
	if config.SampleRateIndex == 0xf {
		config.SampleRate = rate
	}
	return
}

// WriteMPEG4AudioConfig writes the AudioSpecificConfig for config.
func WriteMPEG4AudioConfig(w io.Writer, config MPEG4AudioConfig) error {
	if w == nil {
		return errors.New("aacparser: writer is nil")
	}

	bw := &bits.Writer{W: w}
	if err := writeObjectType(bw, config.ObjectType); err != nil {
		return err
	}

	index := config.SampleRateIndex
	if config.SampleRate != 0 {
		index = 0xf
		for i, rate := range sampleRateTable {
			if rate == config.SampleRate {
				index = uint(i) //nolint:gosec // table index
				break
			}
		}
	}
	if err := bw.WriteBits(index, 4); err != nil {
		return err
	}
	if index == 0xf {
		if err := bw.WriteBits(uint(config.SampleRate), 24); err != nil { //nolint:gosec // 24-bit field
			return err
		}
	}

	channelConfig := config.ChannelConfig
	if channelConfig == 0 {
		for i, layout := range chanConfigTable {
			if i > 0 && layout == config.ChannelLayout {
				channelConfig = uint(i) //nolint:gosec // table index
				break
			}
		}
	}
	if err := bw.WriteBits(channelConfig, 4); err != nil {
		return err
	}

	// frameLengthFlag, dependsOnCoreCoder, extensionFlag
	if err := bw.WriteBits(0, 3); err != nil {
		return err
	}
	return bw.FlushBits()
}
