// Package codec holds what all codec parameter records share.
package codec

import (
	"fmt"
	"math"

	"github.com/ugparu/gomux"
)

type BaseParameters struct {
	BRate uint
	gomux.CodecType
}

func (par *BaseParameters) Type() gomux.CodecType {
	if par == nil {
		return math.MaxUint32
	}
	return par.CodecType
}

func (par *BaseParameters) SetBitrate(br uint) {
	par.BRate = br
}

func (par *BaseParameters) Bitrate() uint {
	if par == nil {
		return 0
	}
	return par.BRate
}

func (par *BaseParameters) String() string {
	if par == nil {
		return "EMPTY_CODEC_PARAMETERS"
	}
	return fmt.Sprintf("CODEC_PARAMETERS codec=%v", par.CodecType)
}
