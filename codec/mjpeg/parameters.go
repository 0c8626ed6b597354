// Package mjpeg describes Motion JPEG tracks. Every frame is a complete JPEG
// image, so the stream carries no decoder configuration.
package mjpeg

import (
	"fmt"

	"github.com/ugparu/gomux"
	"github.com/ugparu/gomux/codec"
)

// intra-only coding spends about one bit per two pixels
const pixelsPerBit = 2

type CodecParameters struct {
	codec.BaseParameters
	width, height uint
	fps           uint
}

// NewCodecParameters returns parameters for frames of width x height at fps,
// with a bitrate estimated from the pixel rate. fps may be 0 when unknown.
func NewCodecParameters(width, height, fps uint) *CodecParameters {
	return &CodecParameters{
		BaseParameters: codec.BaseParameters{
			CodecType: gomux.MJPEG,
			BRate:     width * height * fps / pixelsPerBit,
		},
		width:  width,
		height: height,
		fps:    fps,
	}
}

func (par *CodecParameters) Width() uint  { return par.width }
func (par *CodecParameters) Height() uint { return par.height }
func (par *CodecParameters) FPS() uint    { return par.fps }

func (par *CodecParameters) Tag() string {
	return fmt.Sprintf("mjpeg.%dx%d", par.width, par.height)
}
