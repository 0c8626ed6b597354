package h264

import (
	"errors"
	"fmt"

	"github.com/ugparu/gomux"
	"github.com/ugparu/gomux/codec"
	"github.com/ugparu/gomux/utils/nal"
)

type CodecParameters struct {
	codec.BaseParameters
	Record     []byte
	RecordInfo AVCDecoderConfRecord
	SPSInfo    SPSInfo
}

func NewCodecDataFromSPSAndPPS(sps, pps []byte) (*CodecParameters, error) {
	if len(sps) < minSPSPayload {
		return nil, errSPSTooShort
	}
	if len(pps) == 0 {
		return nil, errors.New("h264parser: empty PPS")
	}

	recordinfo := AVCDecoderConfRecord{
		AVCProfileIndication: sps[1],
		ProfileCompatibility: sps[2],
		AVCLevelIndication:   sps[3],
		LengthSizeMinusOne:   nal.MinNaluSize - 1,
		SPS:                  [][]byte{sps},
		PPS:                  [][]byte{pps},
	}

	buf := make([]byte, recordinfo.Len())
	recordinfo.Marshal(buf)

	codecPar := &CodecParameters{Record: buf, RecordInfo: recordinfo}
	codecPar.CodecType = gomux.H264

	var err error
	if codecPar.SPSInfo, err = parseSPS(sps); err != nil {
		return nil, fmt.Errorf("h264parser: parse SPS failed(%w)", err)
	}
	codecPar.estimateBitrate()
	return codecPar, nil
}

func NewCodecDataFromAVCDecoderConfRecord(record []byte) (*CodecParameters, error) {
	codecPar := &CodecParameters{Record: record}
	if _, err := (&codecPar.RecordInfo).Unmarshal(record); err != nil {
		return nil, err
	}
	if len(codecPar.RecordInfo.SPS) == 0 {
		return nil, errors.New("h264parser: no SPS found in AVCDecoderConfRecord")
	}
	if len(codecPar.RecordInfo.PPS) == 0 {
		return nil, errors.New("h264parser: no PPS found in AVCDecoderConfRecord")
	}

	var err error
	if codecPar.SPSInfo, err = parseSPS(codecPar.RecordInfo.SPS[0]); err != nil {
		return nil, fmt.Errorf("h264parser: parse SPS failed(%w)", err)
	}

	codecPar.CodecType = gomux.H264
	codecPar.estimateBitrate()
	return codecPar, nil
}

// estimateBitrate scales with width and frame rate, assuming 30 fps when unknown.
func (par *CodecParameters) estimateBitrate() {
	fps := float64(par.FPS())
	if fps == 0 {
		fps = bitrateFrameRate
	}
	widthFactor := float64(par.Width())
	fpsRatio := bitrateFrameRate / fps
	par.BRate = uint(widthFactor*bitrateScaleFactor*fpsRatio) * bitrateMultiplier
}

var ErrDecconfInvalid = errors.New("h264parser: AVCDecoderConfRecord invalid")

func (par *CodecParameters) AVCDecoderConfRecordBytes() []byte {
	return par.Record
}

func (par *CodecParameters) SPS() []byte {
	return par.RecordInfo.SPS[0]
}

func (par *CodecParameters) PPS() []byte {
	return par.RecordInfo.PPS[0]
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

func (par *CodecParameters) Tag() string {
	return fmt.Sprintf("avc1.%02X%02X%02X",
		par.RecordInfo.AVCProfileIndication, par.RecordInfo.ProfileCompatibility, par.RecordInfo.AVCLevelIndication)
}
