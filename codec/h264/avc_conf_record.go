package h264

import "github.com/ugparu/gomux/utils/bits/pio"

// AVCDecoderConfRecord is the avcC payload of ISO/IEC 14496-15 5.3.3.1.
type AVCDecoderConfRecord struct {
	AVCProfileIndication uint8
	ProfileCompatibility uint8
	AVCLevelIndication   uint8
	LengthSizeMinusOne   uint8 // NAL unit length prefix size minus one, 3 for 4-byte prefixes
	SPS                  [][]byte
	PPS                  [][]byte
}

// avcC header: version, profile, compatibility, level, length size
const recordHeaderSize = 5

// readParamSets reads count sets of a 16-bit length followed by the bytes.
// The returned sets alias b.
func readParamSets(b []byte, n, count int) ([][]byte, int, error) {
	sets := make([][]byte, 0, count)
	for range count {
		if len(b) < n+lengthFieldSize {
			return nil, n, ErrDecconfInvalid
		}
		end := n + lengthFieldSize + int(pio.U16BE(b[n:]))
		if len(b) < end {
			return nil, n, ErrDecconfInvalid
		}
		sets = append(sets, b[n+lengthFieldSize:end])
		n = end
	}
	return sets, n, nil
}

func writeParamSets(b []byte, n int, sets [][]byte) int {
	for _, set := range sets {
		pio.PutU16BE(b[n:], uint16(len(set))) //nolint:gosec // parameter sets are far below 64KiB
		n += lengthFieldSize + copy(b[n+lengthFieldSize:], set)
	}
	return n
}

// Unmarshal parses b and returns the bytes consumed.
func (avc *AVCDecoderConfRecord) Unmarshal(b []byte) (n int, err error) {
	if len(b) < recordHeaderSize+2 {
		return 0, ErrDecconfInvalid
	}
	avc.AVCProfileIndication = b[1]
	avc.ProfileCompatibility = b[2]
	avc.AVCLevelIndication = b[3]
	avc.LengthSizeMinusOne = b[4] & maskLengthSizeMinusOne

	if avc.SPS, n, err = readParamSets(b, recordHeaderSize+1, int(b[recordHeaderSize]&maskSPSCount)); err != nil {
		return n, err
	}
	if len(b) <= n {
		return n, ErrDecconfInvalid
	}
	avc.PPS, n, err = readParamSets(b, n+1, int(b[n]))
	return n, err
}

func (avc *AVCDecoderConfRecord) Len() int {
	n := recordHeaderSize + 2
	for _, sets := range [][][]byte{avc.SPS, avc.PPS} {
		for _, set := range sets {
			n += lengthFieldSize + len(set)
		}
	}
	return n
}

// Marshal writes the record into b, which holds at least Len bytes.
func (avc *AVCDecoderConfRecord) Marshal(b []byte) int {
	b[0] = 1
	b[1] = avc.AVCProfileIndication
	b[2] = avc.ProfileCompatibility
	b[3] = avc.AVCLevelIndication
	b[4] = avc.LengthSizeMinusOne | maskLengthSizeMinusOneInv
	b[recordHeaderSize] = uint8(len(avc.SPS)) | maskSPSCountInv //nolint:gosec // at most 31 sets
	n := writeParamSets(b, recordHeaderSize+1, avc.SPS)
	b[n] = uint8(len(avc.PPS)) //nolint:gosec // at most 255 sets
	return writeParamSets(b, n+1, avc.PPS)
}
