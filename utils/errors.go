package utils

import "fmt"

// NoCodecDataError represents an error indicating that the no codec data was provided.
type NoCodecDataError struct {
}

// Error returns the error message for NoCodecDataError.
func (NoCodecDataError) Error() string {
	return "No codec data"
}

// NilPacketError represents an error indicating that provided packet is nil.
type NilPacketError struct {
}

// Error method implementation for NilPacketError.
func (NilPacketError) Error() string {
	return "nil packet"
}

// UnsupportedCodecError is returned by containers that cannot carry a codec.
type UnsupportedCodecError struct {
	Codec fmt.Stringer
}

func (e UnsupportedCodecError) Error() string {
	return fmt.Sprintf("unsupported codec %v", e.Codec)
}
