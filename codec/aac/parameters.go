package aac

import (
	"bytes"
	"fmt"

	"github.com/ugparu/gomux"
	"github.com/ugparu/gomux/codec"
)

type CodecParameters struct {
	codec.BaseParameters
	ConfigBytes []byte
	Config      MPEG4AudioConfig
}

func NewCodecDataFromMPEG4AudioConfig(config MPEG4AudioConfig) (*CodecParameters, error) {
	b := new(bytes.Buffer)
	if err := WriteMPEG4AudioConfig(b, config); err != nil {
		return nil, err
	}
	return NewCodecDataFromMPEG4AudioConfigBytes(b.Bytes())
}

func NewCodecDataFromMPEG4AudioConfigBytes(config []byte) (*CodecParameters, error) {
	cod := &CodecParameters{ConfigBytes: config}

	var err error
	if cod.Config, err = ParseMPEG4AudioConfigBytes(config); err != nil {
		return nil, fmt.Errorf("aacparser: parse MPEG4AudioConfig failed(%w)", err)
	}
	if cod.Config.SampleRate == 0 {
		return nil, fmt.Errorf("aacparser: unknown sample rate index %d", cod.Config.SampleRateIndex)
	}
	cod.CodecType = gomux.AAC

	const bitsPerSample = 2
	cod.BRate = uint(cod.SampleRate()) * uint(cod.Channels()) * bitsPerSample

	return cod, nil
}

// NewCodecDataFromADTSHeader builds parameters from the first ADTS header of a stream.
func NewCodecDataFromADTSHeader(frame []byte) (*CodecParameters, error) {
	hdr, err := ParseADTSHeader(frame)
	if err != nil {
		return nil, err
	}
	return NewCodecDataFromMPEG4AudioConfig(hdr.Config)
}

func (cd *CodecParameters) MPEG4AudioConfigBytes() []byte {
	return cd.ConfigBytes
}

func (cd *CodecParameters) ChannelLayout() gomux.ChannelLayout {
	return cd.Config.ChannelLayout
}

func (cd *CodecParameters) SampleRate() uint64 {
	return uint64(cd.Config.SampleRate) //nolint:gosec // sample rates are positive
}

func (cd *CodecParameters) Channels() uint8 {
	if cd.Config.ChannelLayout == 0 {
		return uint8(cd.Config.ChannelConfig) //nolint:gosec // 4-bit field
	}
	return uint8(cd.Config.ChannelLayout.Count()) //nolint:gosec // at most 16 channels
}

func (cd *CodecParameters) Tag() string {
	return fmt.Sprintf("mp4a.40.%d", cd.Config.ObjectType)
}
