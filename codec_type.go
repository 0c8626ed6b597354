package gomux

// CodecType identifies the codec of a stream. The lowest bit marks audio.
type CodecType uint32

const audioCodec CodecType = 1

// Codecs the containers know about. OPUS is recognised but no sink carries it.
const (
	H264  CodecType = 1 << 1
	H265  CodecType = 2 << 1
	MJPEG CodecType = 3 << 1
	AAC   CodecType = 1<<1 | audioCodec
	OPUS  CodecType = 2<<1 | audioCodec
)

var codecNames = map[CodecType]string{
	H264:  "H264",
	H265:  "H265",
	MJPEG: "MJPEG",
	AAC:   "AAC",
	OPUS:  "OPUS",
}

func (ct CodecType) String() string {
	if name, ok := codecNames[ct]; ok {
		return name
	}
	return "UNKNOWN"
}

func (ct CodecType) IsAudio() bool {
	return ct&audioCodec != 0
}

func (ct CodecType) IsVideo() bool {
	return !ct.IsAudio()
}

// MediaType is "audio" or "video", as printed in stream listings.
func (ct CodecType) MediaType() string {
	if ct.IsAudio() {
		return "audio"
	}
	return "video"
}
