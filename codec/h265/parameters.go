package h265

import (
	"errors"
	"fmt"
	"math/bits"
	"strings"

	"github.com/ugparu/gomux"
	"github.com/ugparu/gomux/codec"
)

type CodecParameters struct {
	codec.BaseParameters
	Record     []byte
	RecordInfo HEVCDecoderConfRecord
	SPSInfo    SPSInfo
}

func NewCodecDataFromHEVCDecoderConfRecord(record []byte) (*CodecParameters, error) {
	codecPar := &CodecParameters{Record: record}
	if _, err := (&codecPar.RecordInfo).Unmarshal(record); err != nil {
		return nil, err
	}
	if len(codecPar.RecordInfo.SPS) == 0 {
		return nil, errors.New("h265parser: no SPS found in HEVCDecoderConfRecord")
	}
	if len(codecPar.RecordInfo.PPS) == 0 {
		return nil, errors.New("h265parser: no PPS found in HEVCDecoderConfRecord")
	}
	if len(codecPar.RecordInfo.VPS) == 0 {
		return nil, errors.New("h265parser: no VPS found in HEVCDecoderConfRecord")
	}

	var err error
	if codecPar.SPSInfo, err = ParseSPS(codecPar.RecordInfo.SPS[0]); err != nil {
		return nil, fmt.Errorf("h265parser: parse SPS failed(%w)", err)
	}
	codecPar.CodecType = gomux.H265
	codecPar.estimateBitrate()
	return codecPar, nil
}

func NewCodecDataFromVPSAndSPSAndPPS(vps, sps, pps []byte) (*CodecParameters, error) {
	if len(sps) == 0 || len(pps) == 0 || len(vps) == 0 {
		return nil, errors.New("h265parser: VPS, SPS and PPS are all required")
	}

	info, err := ParseSPS(sps)
	if err != nil {
		return nil, fmt.Errorf("h265parser: parse SPS failed(%w)", err)
	}

	recordinfo := recordFromSPS(info)
	recordinfo.VPS = [][]byte{vps}
	recordinfo.SPS = [][]byte{sps}
	recordinfo.PPS = [][]byte{pps}

	buf := make([]byte, recordinfo.Len())
	recordinfo.Marshal(buf)

	codecPar := &CodecParameters{Record: buf, RecordInfo: recordinfo, SPSInfo: info}
	codecPar.CodecType = gomux.H265
	codecPar.estimateBitrate()
	return codecPar, nil
}

// estimateBitrate scales with width and frame rate, assuming 30 fps when unknown.
func (par *CodecParameters) estimateBitrate() {
	fps := float64(par.FPS())
	if fps == 0 {
		fps = referenceFrameRate
	}
	par.BRate = uint(float64(par.Width()) * (bitrateEstimationFactor * (referenceFrameRate / fps)) * kbpsToBpsMultiplier)
}

func (par *CodecParameters) HEVCDecoderConfRecordBytes() []byte {
	return par.Record
}

func (par *CodecParameters) SPS() []byte {
	if len(par.RecordInfo.SPS) == 0 {
		return []byte{}
	}
	return par.RecordInfo.SPS[0]
}

func (par *CodecParameters) PPS() []byte {
	if len(par.RecordInfo.PPS) == 0 {
		return []byte{}
	}
	return par.RecordInfo.PPS[0]
}

func (par *CodecParameters) VPS() []byte {
	if len(par.RecordInfo.VPS) == 0 {
		return []byte{}
	}
	return par.RecordInfo.VPS[0]
}

func (par *CodecParameters) Width() uint {
	return par.SPSInfo.Width
}

func (par *CodecParameters) Height() uint {
	return par.SPSInfo.Height
}

func (par *CodecParameters) FPS() uint {
	return par.SPSInfo.FPS
}

// Tag returns the RFC 6381 codecs value, e.g. hev1.1.6.L93.B0.
func (par *CodecParameters) Tag() string {
	rec := par.RecordInfo

	var sb strings.Builder
	sb.WriteString("hev1.")
	if rec.GeneralProfileSpace > 0 {
		sb.WriteByte('A' + rec.GeneralProfileSpace - 1)
	}
	tier := 'L'
	if rec.GeneralTierFlag == 1 {
		tier = 'H'
	}
	fmt.Fprintf(&sb, "%d.%X.%c%d", rec.GeneralProfileIDC, bits.Reverse32(rec.GeneralProfileCompatibilityFlags),
		tier, rec.GeneralLevelIDC)

	var constraints [6]byte
	last := -1
	for i := range constraints {
		constraints[i] = byte(rec.GeneralConstraintIndicatorFlags >> (8 * (5 - i)))
		if constraints[i] != 0 {
			last = i
		}
	}
	for i := 0; i <= last; i++ {
		fmt.Fprintf(&sb, ".%X", constraints[i])
	}
	return sb.String()
}
