//nolint:mnd // This file contains many magic numbers that are part of the H.265 specification
package h265

import (
	"bytes"
	"errors"

	"github.com/ugparu/gomux/utils/bits"
	"github.com/ugparu/gomux/utils/nal"
)

var (
	ErrH265IncorectUnitSize = errors.New("h265parser: incorrect unit size")
	ErrH265IncorectUnitType = errors.New("h265parser: incorrect unit type")
)

// ParseSPS reads the profile, tier, level and picture geometry of an SPS NAL unit,
// header included. Fields after the bit depths are not needed and not read.
func ParseSPS(sps []byte) (ctx SPSInfo, err error) {
	if len(sps) < nalHeaderSize+2 {
		err = ErrH265IncorectUnitSize
		return
	}
	if NALUType(sps) != NalUnitSps {
		err = ErrH265IncorectUnitType
		return
	}
	br := &bits.GolombBitReader{R: bytes.NewReader(nal.ToRBSP(sps[nalHeaderSize:]))}
	// sps_video_parameter_set_id
	if _, err = br.ReadBits(4); err != nil {
		return
	}
	spsMaxSubLayersMinus1, err := br.ReadBits(3)
	if err != nil {
		return
	}
	ctx.NumTemporalLayers = spsMaxSubLayersMinus1 + 1
	if ctx.TemporalIDNested, err = br.ReadBit(); err != nil {
		return
	}
	if err = parsePTL(br, &ctx, spsMaxSubLayersMinus1); err != nil {
		return
	}
	// sps_seq_parameter_set_id
	if _, err = br.ReadExponentialGolombCode(); err != nil {
		return
	}
	if ctx.ChromaFormat, err = br.ReadExponentialGolombCode(); err != nil {
		return
	}
	separateColourPlane := false
	if ctx.ChromaFormat == 3 {
		if separateColourPlane, err = br.ReadFlag(); err != nil {
			return
		}
	}
	if ctx.PicWidthInLumaSamples, err = br.ReadExponentialGolombCode(); err != nil {
		return
	}
	if ctx.PicHeightInLumaSamples, err = br.ReadExponentialGolombCode(); err != nil {
		return
	}
	ctx.Width = ctx.PicWidthInLumaSamples
	ctx.Height = ctx.PicHeightInLumaSamples

	conformanceWindow, err := br.ReadFlag()
	if err != nil {
		return
	}
	if conformanceWindow {
		for _, v := range []*uint{&ctx.CropLeft, &ctx.CropRight, &ctx.CropTop, &ctx.CropBottom} {
			if *v, err = br.ReadExponentialGolombCode(); err != nil {
				return
			}
		}
		subWidthC, subHeightC := uint(2), uint(2)
		switch {
		case separateColourPlane || ctx.ChromaFormat == 0 || ctx.ChromaFormat == 3:
			subWidthC, subHeightC = 1, 1
		case ctx.ChromaFormat == 2:
			subHeightC = 1
		}
		cropX := subWidthC * (ctx.CropLeft + ctx.CropRight)
		cropY := subHeightC * (ctx.CropTop + ctx.CropBottom)
		if cropX >= ctx.Width || cropY >= ctx.Height {
			err = errors.New("h265parser: conformance window exceeds picture size")
			return
		}
		ctx.Width -= cropX
		ctx.Height -= cropY
	}

	// geometry is known, a truncated tail is tolerated
	if ctx.BitDepthLumaMinus8, err = br.ReadExponentialGolombCode(); err != nil {
		return ctx, nil
	}
	if ctx.BitDepthChromaMinus8, err = br.ReadExponentialGolombCode(); err != nil {
		return ctx, nil
	}
	return ctx, nil
}

func parsePTL(br *bits.GolombBitReader, ctx *SPSInfo, maxSubLayersMinus1 uint) error {
	var err error
	if ctx.GeneralProfileSpace, err = br.ReadBits(2); err != nil {
		return err
	}
	if ctx.GeneralTierFlag, err = br.ReadBit(); err != nil {
		return err
	}
	if ctx.GeneralProfileIDC, err = br.ReadBits(5); err != nil {
		return err
	}
	if ctx.GeneralProfileCompatibilityFlags, err = br.ReadBits32(32); err != nil {
		return err
	}
	if ctx.GeneralConstraintIndicatorFlags, err = br.ReadBits64(48); err != nil {
		return err
	}
	if ctx.GeneralLevelIDC, err = br.ReadBits(8); err != nil {
		return err
	}
	if maxSubLayersMinus1 == 0 {
		return nil
	}
	subLayerProfilePresentFlag := make([]uint, maxSubLayersMinus1)
	subLayerLevelPresentFlag := make([]uint, maxSubLayersMinus1)
	for i := range maxSubLayersMinus1 {
		if subLayerProfilePresentFlag[i], err = br.ReadBit(); err != nil {
			return err
		}
		if subLayerLevelPresentFlag[i], err = br.ReadBit(); err != nil {
			return err
		}
	}
	// reserved_zero_2bits
	for i := maxSubLayersMinus1; i < 8; i++ {
		if _, err = br.ReadBits(2); err != nil {
			return err
		}
	}
	for i := range maxSubLayersMinus1 {
		if subLayerProfilePresentFlag[i] != 0 {
			// profile space, tier, idc, compatibility flags, constraint flags
			if _, err = br.ReadBits64(56); err != nil {
				return err
			}
			if _, err = br.ReadBits32(32); err != nil {
				return err
			}
		}
		if subLayerLevelPresentFlag[i] != 0 {
			if _, err = br.ReadBits(8); err != nil {
				return err
			}
		}
	}
	return nil
}
