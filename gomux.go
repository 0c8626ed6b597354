// Package gomux defines the types shared by the remux pipeline and the
// container sources and sinks that plug into it.
package gomux

// CodecParameters defines the interface for multimedia codec configuration.
// Parameters are opaque to the pipeline and are carried from source to sink unchanged.
type CodecParameters interface {
	Type() CodecType // Returns the codec type (audio/video).
	Tag() string     // Returns the codec identifier string (RFC 6381 style).
	Bitrate() uint   // Returns the codec's bitrate in bits per second.
}

// VideoCodecParameters extends CodecParameters with video-specific properties.
type VideoCodecParameters interface {
	CodecParameters // Inherits all CodecParameters methods.
	Width() uint    // Returns the video frame width in pixels.
	Height() uint   // Returns the video frame height in pixels.
	FPS() uint      // Returns the video frame rate (frames per second).
}

// AudioCodecParameters extends CodecParameters with audio-specific properties.
type AudioCodecParameters interface {
	CodecParameters     // Inherits all CodecParameters methods.
	SampleRate() uint64 // Returns the audio sampling frequency in Hz.
	Channels() uint8    // Returns the number of audio channels.
}

// StreamDescriptor describes one elementary stream of a container.
type StreamDescriptor struct {
	Index           int             // 0-based, assigned by the source
	CodecParameters CodecParameters // opaque, never modified by the pipeline
	TimeBase        Rational        // unit of PTS, DTS and duration
	CodecTag        uint32          // container-specific codec tag, 0 lets the sink choose
	GlobalHeader    bool            // codec configuration lives in the container header
}

// Codec returns the codec identity of the stream.
func (sd StreamDescriptor) Codec() CodecType {
	if sd.CodecParameters == nil {
		return 0
	}
	return sd.CodecParameters.Type()
}

// FormatFlags are the capabilities a sink advertises.
type FormatFlags uint32

const (
	// FlagGlobalHeader means codec configuration must be placed in the container header.
	FlagGlobalHeader FormatFlags = 1 << iota
	// FlagNoFile means the sink manages its own I/O and needs no transport.
	FlagNoFile
)

func (f FormatFlags) Has(flag FormatFlags) bool {
	return f&flag == flag
}

// Source is an opened input container.
type Source interface {
	Streams() []StreamDescriptor  // Returns the probed stream table, stable after open.
	ReadPacket() (*Packet, error) // Returns the next packet in container order or io.EOF.
	Close() error                 // Releases the input.
}

// Sink is an output container under construction.
type Sink interface {
	Flags() FormatFlags                         // Returns the format capabilities.
	AddStream(sd StreamDescriptor) (int, error) // Registers an output stream, returns its index.
	Streams() []StreamDescriptor                // Returns the output stream table.
	OpenTransport() error                       // Opens the destination byte channel.
	CloseTransport() error                      // Closes the destination byte channel.
	WriteHeader() error                         // Writes the container header, may fix time bases.
	WritePacket(pkt *Packet) error              // Writes one packet, payload bytes unchanged.
	WriteTrailer() error                        // Finalizes the container.
}

// SourceOpener opens a Source for a locator such as a file path.
type SourceOpener func(locator string) (Source, error)

// SinkOpener creates a Sink for a destination locator. The destination is not
// touched before OpenTransport unless the sink has FlagNoFile.
type SinkOpener func(locator string) (Sink, error)
