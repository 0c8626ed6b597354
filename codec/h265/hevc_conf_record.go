//nolint:mnd // field layout of ISO/IEC 14496-15 8.3.3.1
package h265

import (
	"errors"

	"github.com/ugparu/gomux/utils/bits/pio"
)

// hvcCHeaderSize is the fixed part of the record before the NAL unit arrays.
const hvcCHeaderSize = 23

// HEVCDecoderConfRecord is the hvcC payload.
type HEVCDecoderConfRecord struct {
	GeneralProfileSpace              uint8
	GeneralTierFlag                  uint8
	GeneralProfileIDC                uint8
	GeneralProfileCompatibilityFlags uint32
	GeneralConstraintIndicatorFlags  uint64
	GeneralLevelIDC                  uint8
	ChromaFormat                     uint8
	BitDepthLumaMinus8               uint8
	BitDepthChromaMinus8             uint8
	NumTemporalLayers                uint8
	TemporalIDNested                 uint8
	LengthSizeMinusOne               uint8
	VPS                              [][]byte
	SPS                              [][]byte
	PPS                              [][]byte
}

var ErrDecconfInvalid = errors.New("h265parser: HEVCDecoderConfRecord invalid")

// recordFromSPS fills the profile and format fields from a parsed SPS.
//
//nolint:gosec // SPS fields fit their record widths
func recordFromSPS(info SPSInfo) HEVCDecoderConfRecord {
	return HEVCDecoderConfRecord{
		GeneralProfileSpace:              uint8(info.GeneralProfileSpace),
		GeneralTierFlag:                  uint8(info.GeneralTierFlag),
		GeneralProfileIDC:                uint8(info.GeneralProfileIDC),
		GeneralProfileCompatibilityFlags: info.GeneralProfileCompatibilityFlags,
		GeneralConstraintIndicatorFlags:  info.GeneralConstraintIndicatorFlags,
		GeneralLevelIDC:                  uint8(info.GeneralLevelIDC),
		ChromaFormat:                     uint8(info.ChromaFormat),
		BitDepthLumaMinus8:               uint8(info.BitDepthLumaMinus8),
		BitDepthChromaMinus8:             uint8(info.BitDepthChromaMinus8),
		NumTemporalLayers:                uint8(info.NumTemporalLayers),
		TemporalIDNested:                 uint8(info.TemporalIDNested),
		LengthSizeMinusOne:               3,
	}
}

func (hvc *HEVCDecoderConfRecord) arrays() []struct {
	typ   uint8
	nalus [][]byte
} {
	return []struct {
		typ   uint8
		nalus [][]byte
	}{
		{NalUnitVps, hvc.VPS},
		{NalUnitSps, hvc.SPS},
		{NalUnitPps, hvc.PPS},
	}
}

func (hvc *HEVCDecoderConfRecord) Unmarshal(b []byte) (n int, err error) {
	if len(b) < hvcCHeaderSize {
		err = ErrDecconfInvalid
		return
	}
	hvc.GeneralProfileSpace = b[1] >> 6
	hvc.GeneralTierFlag = b[1] >> 5 & 0x1
	hvc.GeneralProfileIDC = b[1] & 0x1f
	hvc.GeneralProfileCompatibilityFlags = pio.U32BE(b[2:])
	hvc.GeneralConstraintIndicatorFlags = uint64(pio.U16BE(b[6:]))<<32 | uint64(pio.U32BE(b[8:]))
	hvc.GeneralLevelIDC = b[12]
	hvc.ChromaFormat = b[16] & 0x3
	hvc.BitDepthLumaMinus8 = b[17] & 0x7
	hvc.BitDepthChromaMinus8 = b[18] & 0x7
	hvc.NumTemporalLayers = b[21] >> 3 & 0x7
	hvc.TemporalIDNested = b[21] >> 2 & 0x1
	hvc.LengthSizeMinusOne = b[21] & 0x3

	numOfArrays := int(b[22])
	n = hvcCHeaderSize
	for range numOfArrays {
		if len(b) < n+3 {
			err = ErrDecconfInvalid
			return
		}
		typ := b[n] & 0x3f
		count := int(pio.U16BE(b[n+1:]))
		n += 3

		for range count {
			if len(b) < n+2 {
				err = ErrDecconfInvalid
				return
			}
			size := int(pio.U16BE(b[n:]))
			n += 2
			if len(b) < n+size {
				err = ErrDecconfInvalid
				return
			}
			nalu := b[n : n+size]
			n += size

			switch typ {
			case NalUnitVps:
				hvc.VPS = append(hvc.VPS, nalu)
			case NalUnitSps:
				hvc.SPS = append(hvc.SPS, nalu)
			case NalUnitPps:
				hvc.PPS = append(hvc.PPS, nalu)
			}
		}
	}
	return
}

func (hvc *HEVCDecoderConfRecord) Len() (n int) {
	n = hvcCHeaderSize
	for _, array := range hvc.arrays() {
		if len(array.nalus) == 0 {
			continue
		}
		n += 3
		for _, nalu := range array.nalus {
			n += 2 + len(nalu)
		}
	}
	return
}

// Marshal writes the record into b, which must hold Len() bytes.
func (hvc *HEVCDecoderConfRecord) Marshal(b []byte) (n int) {
	b[0] = 1
	b[1] = hvc.GeneralProfileSpace<<6 | hvc.GeneralTierFlag<<5 | hvc.GeneralProfileIDC&0x1f
	pio.PutU32BE(b[2:], hvc.GeneralProfileCompatibilityFlags)
	pio.PutU16BE(b[6:], uint16(hvc.GeneralConstraintIndicatorFlags>>32)) //nolint:gosec // upper 16 of 48 bits
	pio.PutU32BE(b[8:], uint32(hvc.GeneralConstraintIndicatorFlags))     //nolint:gosec // lower 32 bits
	b[12] = hvc.GeneralLevelIDC
	// min_spatial_segmentation_idc unknown
	b[13] = 0xf0
	b[14] = 0x00
	b[15] = 0xfc
	b[16] = 0xfc | hvc.ChromaFormat&0x3
	b[17] = 0xf8 | hvc.BitDepthLumaMinus8&0x7
	b[18] = 0xf8 | hvc.BitDepthChromaMinus8&0x7
	// avgFrameRate unspecified
	b[19] = 0
	b[20] = 0
	b[21] = hvc.NumTemporalLayers&0x7<<3 | hvc.TemporalIDNested&0x1<<2 | hvc.LengthSizeMinusOne&0x3

	n = hvcCHeaderSize
	numOfArrays := 0
	for _, array := range hvc.arrays() {
		if len(array.nalus) == 0 {
			continue
		}
		numOfArrays++
		// array_completeness 0, parameter sets may repeat in band
		b[n] = array.typ
		pio.PutU16BE(b[n+1:], uint16(len(array.nalus))) //nolint:gosec // at most a few parameter sets
		n += 3
		for _, nalu := range array.nalus {
			pio.PutU16BE(b[n:], uint16(len(nalu))) //nolint:gosec // parameter sets are far below 64KiB
			n += 2
			n += copy(b[n:], nalu)
		}
	}
	b[22] = uint8(numOfArrays) //nolint:gosec // at most 3
	return
}
