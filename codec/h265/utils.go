package h265

import "github.com/ugparu/gomux/utils/nal"

const (
	NalUnitCodedSliceTrailN    = 0
	NalUnitCodedSliceTrailR    = 1
	NalUnitCodedSliceBlaWLp    = 16
	NalUnitCodedSliceBlaWRadl  = 17
	NalUnitCodedSliceBlaNLp    = 18
	NalUnitCodedSliceIdrWRadl  = 19
	NalUnitCodedSliceIdrNLp    = 20
	NalUnitCodedSliceCra       = 21
	NalUnitVps                 = 32
	NalUnitSps                 = 33
	NalUnitPps                 = 34
	NalUnitAccessUnitDelimiter = 35
	NalUnitPrefixSei           = 39

	MaxSubLayers = 7

	nalHeaderSize = 2

	bitrateEstimationFactor = 1.71 // Estimation factor for H265 encoding
	referenceFrameRate      = 30.0 // Reference frame rate in FPS
	kbpsToBpsMultiplier     = 1000 // Conversion from kbps to bps
)

type SPSInfo struct {
	Width                            uint
	Height                           uint
	CropLeft                         uint
	CropRight                        uint
	CropTop                          uint
	CropBottom                       uint
	NumTemporalLayers                uint
	TemporalIDNested                 uint
	ChromaFormat                     uint
	PicWidthInLumaSamples            uint
	PicHeightInLumaSamples           uint
	BitDepthLumaMinus8               uint
	BitDepthChromaMinus8             uint
	GeneralProfileSpace              uint
	GeneralTierFlag                  uint
	GeneralProfileIDC                uint
	GeneralProfileCompatibilityFlags uint32
	GeneralConstraintIndicatorFlags  uint64
	GeneralLevelIDC                  uint
	FPS                              uint
}

// NALUType returns nal_unit_type from the two-byte NAL header.
func NALUType(nalu []byte) uint8 {
	if len(nalu) == 0 {
		return 0
	}
	return (nalu[0] >> 1) & 0x3f //nolint:mnd // forbidden_zero_bit + 6 bits
}

// IsKey reports whether a NAL unit type is an IRAP picture.
func IsKey(naluType uint8) bool {
	return naluType >= NalUnitCodedSliceBlaWLp && naluType <= NalUnitCodedSliceCra
}

// IsKeyFrame reports whether an access unit in any framing holds an IRAP picture.
func IsKeyFrame(payload []byte) bool {
	nalus, _ := nal.SplitNALUs(payload)
	for _, nalu := range nalus {
		if IsKey(NALUType(nalu)) {
			return true
		}
	}
	return false
}

// FindParameterSets returns the first VPS, SPS and PPS of an access unit, if present.
func FindParameterSets(payload []byte) (vps, sps, pps []byte) {
	nalus, _ := nal.SplitNALUs(payload)
	for _, nalu := range nalus {
		if len(nalu) <= nalHeaderSize {
			continue
		}
		switch NALUType(nalu) {
		case NalUnitVps:
			if vps == nil {
				vps = nalu
			}
		case NalUnitSps:
			if sps == nil {
				sps = nalu
			}
		case NalUnitPps:
			if pps == nil {
				pps = nalu
			}
		}
	}
	return
}
