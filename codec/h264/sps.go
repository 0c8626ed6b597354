//nolint:mnd // syntax element widths of ITU-T H.264 7.3.2.1
package h264

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ugparu/gomux/utils/bits"
	"github.com/ugparu/gomux/utils/nal"
)

var errSPSTooShort = errors.New("h264parser: SPS too short")

// profiles that carry chroma_format_idc and the scaling matrices
var highProfiles = map[uint]struct{}{
	100: {}, 110: {}, 122: {}, 244: {}, 44: {}, 83: {}, 86: {},
	118: {}, 128: {}, 138: {}, 139: {}, 134: {}, 135: {},
}

func skipScalingList(r *bits.GolombBitReader, size int) error {
	lastScale, nextScale := defaultScaleValue, defaultScaleValue
	for range size {
		if nextScale != 0 {
			delta, err := r.ReadSE()
			if err != nil {
				return err
			}
			nextScale = (lastScale + delta + maxScaleValue) % maxScaleValue
		}
		if nextScale != 0 {
			lastScale = nextScale
		}
	}
	return nil
}

// parseSPS extracts picture geometry and frame rate from an SPS NAL unit,
// header byte included.
func parseSPS(data []byte) (s SPSInfo, err error) {
	if len(data) < minSPSPayload {
		return s, errSPSTooShort
	}
	if NALUType(data) != NaluSPS {
		return s, fmt.Errorf("h264parser: NAL type %d is not an SPS", NALUType(data))
	}

	r := &bits.GolombBitReader{R: bytes.NewReader(nal.ToRBSP(data[1:]))}

	if s.ProfileIDC, err = r.ReadBits(8); err != nil {
		return
	}
	if s.ConstraintSetFlag, err = r.ReadBits(8); err != nil {
		return
	}
	if s.LevelIDC, err = r.ReadBits(8); err != nil {
		return
	}
	if s.ID, err = r.ReadExponentialGolombCode(); err != nil {
		return
	}

	chromaFormatIdc := uint(1)
	separateColourPlane := false
	if _, ok := highProfiles[s.ProfileIDC]; ok {
		if chromaFormatIdc, err = r.ReadExponentialGolombCode(); err != nil {
			return
		}
		if chromaFormatIdc == chromaFormat3 {
			if separateColourPlane, err = r.ReadFlag(); err != nil {
				return
			}
		}
		// bit_depth_luma_minus8, bit_depth_chroma_minus8
		for range 2 {
			if _, err = r.ReadExponentialGolombCode(); err != nil {
				return
			}
		}
		// qpprime_y_zero_transform_bypass_flag
		if _, err = r.ReadBit(); err != nil {
			return
		}
		var scalingMatrix bool
		if scalingMatrix, err = r.ReadFlag(); err != nil {
			return
		}
		if scalingMatrix {
			lists := 8
			if chromaFormatIdc == chromaFormat3 {
				lists = 12
			}
			for i := range lists {
				var present bool
				if present, err = r.ReadFlag(); err != nil {
					return
				}
				if !present {
					continue
				}
				size := scalingListSizeSmall
				if i >= scalingListThreshold {
					size = scalingListSizeLarge
				}
				if err = skipScalingList(r, size); err != nil {
					return
				}
			}
		}
	}

	// log2_max_frame_num_minus4
	if _, err = r.ReadExponentialGolombCode(); err != nil {
		return
	}

	var pocType uint
	if pocType, err = r.ReadExponentialGolombCode(); err != nil {
		return
	}
	switch pocType {
	case 0:
		if _, err = r.ReadExponentialGolombCode(); err != nil {
			return
		}
	case 1:
		if _, err = r.ReadBit(); err != nil {
			return
		}
		for range 2 {
			if _, err = r.ReadSE(); err != nil {
				return
			}
		}
		var cycle uint
		if cycle, err = r.ReadExponentialGolombCode(); err != nil {
			return
		}
		for range cycle {
			if _, err = r.ReadSE(); err != nil {
				return
			}
		}
	}

	// max_num_ref_frames, gaps_in_frame_num_value_allowed_flag
	if _, err = r.ReadExponentialGolombCode(); err != nil {
		return
	}
	if _, err = r.ReadBit(); err != nil {
		return
	}

	if s.MbWidth, err = r.ReadExponentialGolombCode(); err != nil {
		return
	}
	s.MbWidth++
	if s.MbHeight, err = r.ReadExponentialGolombCode(); err != nil {
		return
	}
	s.MbHeight++

	var frameMbsOnly uint
	if frameMbsOnly, err = r.ReadBit(); err != nil {
		return
	}
	if frameMbsOnly == 0 {
		// mb_adaptive_frame_field_flag
		if _, err = r.ReadBit(); err != nil {
			return
		}
	}
	// direct_8x8_inference_flag
	if _, err = r.ReadBit(); err != nil {
		return
	}

	var cropping bool
	if cropping, err = r.ReadFlag(); err != nil {
		return
	}
	if cropping {
		for _, v := range []*uint{&s.CropLeft, &s.CropRight, &s.CropTop, &s.CropBottom} {
			if *v, err = r.ReadExponentialGolombCode(); err != nil {
				return
			}
		}
	}

	subWidthC, subHeightC := uint(2), uint(2)
	switch {
	case separateColourPlane || chromaFormatIdc == 0 || chromaFormatIdc == chromaFormat3:
		subWidthC, subHeightC = 1, 1
	case chromaFormatIdc == 2:
		subHeightC = 1
	}
	cropUnitY := subHeightC * (2 - frameMbsOnly)
	if subWidthC*(s.CropLeft+s.CropRight) >= s.MbWidth*mbSize ||
		cropUnitY*(s.CropTop+s.CropBottom) >= (2-frameMbsOnly)*s.MbHeight*mbSize {
		return s, errors.New("h264parser: cropping exceeds picture size")
	}

	s.Width = s.MbWidth*mbSize - subWidthC*(s.CropLeft+s.CropRight)
	s.Height = (2-frameMbsOnly)*s.MbHeight*mbSize - cropUnitY*(s.CropTop+s.CropBottom)

	var vui bool
	if vui, err = r.ReadFlag(); err != nil || !vui {
		// geometry is known, a truncated tail is tolerated
		return s, nil
	}
	s.FPS, _ = readVUITiming(r)
	return s, nil
}

// readVUITiming skips the VUI fields preceding timing_info and returns
// time_scale / (2 * num_units_in_tick), or 0 when timing is absent.
func readVUITiming(r *bits.GolombBitReader) (uint, error) {
	present, err := r.ReadFlag()
	if err != nil {
		return 0, err
	}
	if present {
		var idc uint
		if idc, err = r.ReadBits(8); err != nil {
			return 0, err
		}
		if idc == aspectRatioExtended {
			if _, err = r.ReadBits(32); err != nil {
				return 0, err
			}
		}
	}

	// overscan_info_present_flag, overscan_appropriate_flag
	if present, err = r.ReadFlag(); err != nil {
		return 0, err
	}
	if present {
		if _, err = r.ReadBit(); err != nil {
			return 0, err
		}
	}

	if present, err = r.ReadFlag(); err != nil {
		return 0, err
	}
	if present {
		// video_format, video_full_range_flag
		if _, err = r.ReadBits(4); err != nil {
			return 0, err
		}
		var colour bool
		if colour, err = r.ReadFlag(); err != nil {
			return 0, err
		}
		if colour {
			if _, err = r.ReadBits(24); err != nil {
				return 0, err
			}
		}
	}

	if present, err = r.ReadFlag(); err != nil {
		return 0, err
	}
	if present {
		for range 2 {
			if _, err = r.ReadExponentialGolombCode(); err != nil {
				return 0, err
			}
		}
	}

	if present, err = r.ReadFlag(); err != nil || !present {
		return 0, err
	}
	var numUnitsInTick, timeScale uint32
	if numUnitsInTick, err = r.ReadBits32(32); err != nil {
		return 0, err
	}
	if timeScale, err = r.ReadBits32(32); err != nil {
		return 0, err
	}
	if numUnitsInTick == 0 {
		return 0, nil
	}
	return uint(uint64(timeScale) / (2 * uint64(numUnitsInTick))), nil
}
