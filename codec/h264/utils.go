package h264

import "github.com/ugparu/gomux/utils/nal"

// NAL unit types used by the containers.
const (
	NaluNonIDR    = 1
	NaluCodedIDR  = 5
	NaluSEI       = 6
	NaluSPS       = 7
	NaluPPS       = 8
	NaluAUD       = 9
	naluTypeMask  = 0x1f
	minSPSPayload = 4
)

const (
	maskLengthSizeMinusOne    = 0x03
	maskSPSCount              = 0x1f
	maskLengthSizeMinusOneInv = 0xfc
	maskSPSCountInv           = 0xe0

	// Length field size in AVCDecoderConfRecord
	lengthFieldSize = 2

	defaultScaleValue = 8
	maxScaleValue     = 256

	chromaFormat3 = 3

	scalingListSizeSmall = 16
	scalingListSizeLarge = 64
	scalingListThreshold = 6

	aspectRatioExtended = 255

	// rough bits/s estimate used when the stream does not carry one
	bitrateScaleFactor = 1.71
	bitrateFrameRate   = 30
	bitrateMultiplier  = 1000

	mbSize = 16
)

// SPSInfo represents information extracted from Sequence Parameter Sets (SPS) in a video stream.
type SPSInfo struct {
	ID                uint // Identifier for the SPS.
	ProfileIDC        uint // Profile identifier for the SPS.
	LevelIDC          uint // Level identifier for the SPS.
	ConstraintSetFlag uint // Constraint set flag for the SPS.

	MbWidth  uint // Width of macroblocks in the SPS.
	MbHeight uint // Height of macroblocks in the SPS.

	CropLeft   uint // Left cropping value for the SPS.
	CropRight  uint // Right cropping value for the SPS.
	CropTop    uint // Top cropping value for the SPS.
	CropBottom uint // Bottom cropping value for the SPS.

	Width  uint // Width of the video frame.
	Height uint // Height of the video frame.
	FPS    uint // Frames per second (FPS) for the video stream, 0 without VUI timing.
}

// NALUType returns nal_unit_type of a NAL unit.
func NALUType(nalu []byte) uint8 {
	if len(nalu) == 0 {
		return 0
	}
	return nalu[0] & naluTypeMask
}

// IsKeyFrame reports whether an access unit in any framing holds an IDR slice.
func IsKeyFrame(payload []byte) bool {
	nalus, _ := nal.SplitNALUs(payload)
	for _, nalu := range nalus {
		if NALUType(nalu) == NaluCodedIDR {
			return true
		}
	}
	return false
}

// FindParameterSets returns the first SPS and PPS of an access unit, if present.
func FindParameterSets(payload []byte) (sps, pps []byte) {
	nalus, _ := nal.SplitNALUs(payload)
	for _, nalu := range nalus {
		switch NALUType(nalu) {
		case NaluSPS:
			if sps == nil && len(nalu) >= minSPSPayload {
				sps = nalu
			}
		case NaluPPS:
			if pps == nil {
				pps = nalu
			}
		}
	}
	return
}
