// Package mp4 reads and writes progressive MP4 files.
package mp4

import (
	"errors"
	"fmt"

	"github.com/ugparu/gomux"
	"github.com/ugparu/gomux/codec/aac"
	"github.com/ugparu/gomux/codec/h264"
	"github.com/ugparu/gomux/codec/h265"
	"github.com/ugparu/gomux/codec/mjpeg"
	"github.com/ugparu/gomux/format/mp4/mp4io"
	"github.com/ugparu/gomux/utils"
	"github.com/ugparu/gomux/utils/nal"
)

func init() {
	exts := []string{"mp4", "m4v", "m4a", "mov"}
	gomux.RegisterSource("mp4", exts, Open)
	gomux.RegisterSink("mp4", exts, Create)
}

// VideoTimeScale is the media time scale of every written video track.
const VideoTimeScale = 90000

// movieTimeScale is the mvhd and tkhd time scale.
const movieTimeScale = 1000

var ErrUnsupportedCodec = errors.New("mp4: unsupported codec")

// NewFileType returns the ftyp written ahead of progressive and fragmented files.
func NewFileType() *mp4io.FileType {
	return mp4io.NewFileType(mp4io.StringToTag("isom"), 0x200, "isom", "iso2", "avc1", "mp41") //nolint:mnd
}

// TimeBase returns the time base of a written track carrying par.
func TimeBase(par gomux.CodecParameters) (gomux.Rational, error) {
	if par == nil {
		return gomux.Rational{}, fmt.Errorf("%w: %w", ErrUnsupportedCodec, utils.NoCodecDataError{})
	}
	switch p := par.(type) {
	case gomux.AudioCodecParameters:
		if p.SampleRate() == 0 {
			return gomux.Rational{}, fmt.Errorf("mp4: %v stream without sample rate", p.Type())
		}
		return gomux.NewRational(1, int(p.SampleRate())), nil //nolint:gosec // audio sample rates fit int
	case gomux.VideoCodecParameters:
		return gomux.NewRational(1, VideoTimeScale), nil
	}
	return gomux.Rational{}, fmt.Errorf("%w: %w", ErrUnsupportedCodec, utils.UnsupportedCodecError{Codec: par.Type()})
}

// NewSampleDesc builds the stsd holding the sample entry for par.
func NewSampleDesc(par gomux.CodecParameters, trackID uint32) (*mp4io.SampleDesc, error) {
	sd := &mp4io.SampleDesc{}
	switch p := par.(type) {
	case *h264.CodecParameters:
		sd.Visual = mp4io.NewVisualSampleDesc(mp4io.AVC1, p.Width(), p.Height(),
			&mp4io.DecoderConf{Type: mp4io.AVCC, Data: p.AVCDecoderConfRecordBytes()})
	case *h265.CodecParameters:
		sd.Visual = mp4io.NewVisualSampleDesc(mp4io.HEV1, p.Width(), p.Height(),
			&mp4io.DecoderConf{Type: mp4io.HVCC, Data: p.HEVCDecoderConfRecordBytes()})
	case *mjpeg.CodecParameters:
		sd.Visual = mp4io.NewVisualSampleDesc(mp4io.JPEG, p.Width(), p.Height(), nil)
	case *aac.CodecParameters:
		bitrate := uint32(min(p.Bitrate(), 1<<32-1)) //nolint:gosec // clamped
		sd.Audio = mp4io.NewAudioSampleDesc(p.Channels(), p.SampleRate(), &mp4io.ElemStreamDesc{
			ESID:       uint16(trackID), //nolint:gosec // a handful of tracks
			MaxBitrate: bitrate,
			AvgBitrate: bitrate,
			DecConfig:  p.MPEG4AudioConfigBytes(),
		})
	default:
		if par == nil {
			return nil, fmt.Errorf("%w: %w", ErrUnsupportedCodec, utils.NoCodecDataError{})
		}
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedCodec, utils.UnsupportedCodecError{Codec: par.Type()})
	}
	return sd, nil
}

// NewTrack returns a trak for par with an empty sample table.
func NewTrack(trackID uint32, par gomux.CodecParameters) (*mp4io.Track, error) {
	tb, err := TimeBase(par)
	if err != nil {
		return nil, err
	}
	desc, err := NewSampleDesc(par, trackID)
	if err != nil {
		return nil, err
	}

	info := &mp4io.MediaInfo{
		Data: mp4io.NewDataInfo(),
		Sample: &mp4io.SampleTable{
			SampleDesc:    desc,
			TimeToSample:  &mp4io.TimeToSample{},
			SampleToChunk: &mp4io.SampleToChunk{},
			SampleSize:    &mp4io.SampleSize{},
			ChunkOffset:   &mp4io.ChunkOffset{},
		},
	}
	handler := &mp4io.HandlerRefer{Type: mp4io.VideoHandler, Name: "VideoHandler"}
	var width, height uint
	audio := par.Type().IsAudio()
	if audio {
		info.Sound = &mp4io.SoundMediaInfo{}
		handler = &mp4io.HandlerRefer{Type: mp4io.SoundHandler, Name: "SoundHandler"}
	} else {
		info.Video = &mp4io.VideoMediaInfo{}
		if vpar, ok := par.(gomux.VideoCodecParameters); ok {
			width, height = vpar.Width(), vpar.Height()
		}
	}

	return &mp4io.Track{
		Header: mp4io.NewTrackHeader(trackID, 0, width, height, audio),
		Media: &mp4io.Media{
			Header: &mp4io.MediaHeader{
				TimeScale: uint32(tb.Den), //nolint:gosec // positive time base
				Language:  mp4io.LanguageUndetermined,
			},
			Handler: handler,
			Info:    info,
		},
	}, nil
}

// SampleData converts a packet payload to its stored form: length prefixed
// NAL units for H.264 and H.265, raw access units for AAC.
func SampleData(codec gomux.CodecType, data []byte) []byte {
	switch codec {
	case gomux.H264, gomux.H265:
		return nal.ToAVCC(data)
	case gomux.AAC:
		return aac.StripADTS(data)
	}
	return data
}

// codecParameters rebuilds the parameters of a track read from a file.
func codecParameters(trk *mp4io.Track) (gomux.CodecParameters, mp4io.Tag, error) {
	desc := trk.SampleDesc()
	if desc == nil {
		return nil, 0, errors.New("track without sample description")
	}

	if v := desc.Visual; v != nil {
		switch {
		case v.Conf != nil && v.Conf.Type == mp4io.AVCC:
			par, err := h264.NewCodecDataFromAVCDecoderConfRecord(v.Conf.Data)
			return par, v.Format, err
		case v.Conf != nil && v.Conf.Type == mp4io.HVCC:
			par, err := h265.NewCodecDataFromHEVCDecoderConfRecord(v.Conf.Data)
			return par, v.Format, err
		case v.Format == mp4io.JPEG || v.Format == mp4io.MJPG:
			return mjpeg.NewCodecParameters(uint(v.Width), uint(v.Height), frameRate(trk)), v.Format, nil
		}
		return nil, 0, fmt.Errorf("%w: sample entry %s", ErrUnsupportedCodec, v.Format)
	}

	if a := desc.Audio; a != nil {
		if a.Conf == nil || len(a.Conf.DecConfig) == 0 {
			return nil, 0, fmt.Errorf("%w: mp4a without decoder config", ErrUnsupportedCodec)
		}
		par, err := aac.NewCodecDataFromMPEG4AudioConfigBytes(a.Conf.DecConfig)
		return par, mp4io.MP4A, err
	}

	if len(desc.Unknowns) > 0 {
		return nil, 0, fmt.Errorf("%w: sample entry %s", ErrUnsupportedCodec, desc.Unknowns[0].Tag())
	}
	return nil, 0, errors.New("empty sample description")
}

// frameRate estimates frames per second from the first stts entry.
func frameRate(trk *mp4io.Track) uint {
	st := trk.SampleTable()
	if st == nil || st.TimeToSample == nil || len(st.TimeToSample.Entries) == 0 ||
		trk.Media.Header == nil || st.TimeToSample.Entries[0].Duration == 0 {
		return 0
	}
	return uint(trk.Media.Header.TimeScale / st.TimeToSample.Entries[0].Duration)
}
