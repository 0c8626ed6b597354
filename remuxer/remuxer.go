// Package remuxer copies packets from a source container to a sink container,
// rescaling timestamps between stream time bases without touching payloads.
package remuxer

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/ugparu/gomux"
	"github.com/ugparu/gomux/utils"
	"github.com/ugparu/gomux/utils/logger"
)

// Remuxer runs one input to output conversion.
type Remuxer struct {
	input        string
	output       string
	inputFormat  string
	outputFormat string
	openSource   gomux.SourceOpener
	openSink     gomux.SinkOpener
	frames       atomic.Int64
}

// New creates a Remuxer for the given locators. Formats are resolved from the
// registry by extension unless forced with options.
func New(input, output string, opts ...Option) *Remuxer {
	r := &Remuxer{
		input:  input,
		output: output,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Remuxer) String() string {
	return "REMUXER"
}

// Frames returns the number of packets written so far. It is safe to call
// while Remux is running.
func (r *Remuxer) Frames() int64 {
	return r.frames.Load()
}

func (r *Remuxer) openers() (gomux.SourceOpener, gomux.SinkOpener, error) {
	openSource, openSink := r.openSource, r.openSink

	var err error
	if openSource == nil {
		if openSource, err = gomux.SourceFor(r.input, r.inputFormat); err != nil {
			return nil, nil, gomux.NewError(gomux.KindOpen, componentSource, err)
		}
	}
	if openSink == nil {
		if openSink, err = gomux.SinkFor(r.output, r.outputFormat); err != nil {
			return nil, nil, gomux.NewError(gomux.KindOpen, componentSink, err)
		}
	}
	return openSource, openSink, nil
}

// Remux copies every packet of the input to the output and returns the number
// of packets written. End of input is not an error. Once the output header is
// written the trailer is always attempted, and the input is always closed.
func (r *Remuxer) Remux() (frames int64, err error) {
	r.frames.Store(0)

	openSource, openSink, err := r.openers()
	if err != nil {
		return 0, err
	}

	src, err := openSource(r.input)
	if err != nil {
		return 0, gomux.NewError(gomux.KindOpen, componentSource, fmt.Errorf("could not open input %q: %w", r.input, err))
	}
	defer func() {
		if closeErr := src.Close(); closeErr != nil {
			logger.Warningf(r, "Failed to close input %s: %v", r.input, closeErr)
		}
	}()

	in := src.Streams()
	logStreams(r, "Input", r.input, in)

	sink, err := openSink(r.output)
	if err != nil {
		return 0, gomux.NewError(gomux.KindOpen, componentSink, fmt.Errorf("could not create output %q: %w", r.output, err))
	}

	if _, err = BuildOutputStreams(sink, in); err != nil {
		return 0, err
	}

	if !sink.Flags().Has(gomux.FlagNoFile) {
		output := newTransport(sink, r.output)
		if err = output.Start(openTransport); err != nil {
			return 0, gomux.NewError(gomux.KindOpen, componentSink, fmt.Errorf("could not open output %q: %w", r.output, err))
		}
		defer func() {
			if closeErr := output.Close(); closeErr != nil {
				if err == nil {
					err = gomux.NewError(gomux.KindWrite, componentSink, fmt.Errorf("close output: %w", closeErr))
					return
				}
				logger.Errorf(r, "Failed to close output %s: %v", r.output, closeErr)
			}
		}()
	}

	if err = sink.WriteHeader(); err != nil {
		return 0, gomux.NewError(gomux.KindWrite, componentSink, fmt.Errorf("write header: %w", err))
	}
	defer func() {
		if trailerErr := sink.WriteTrailer(); trailerErr != nil {
			if err == nil {
				err = gomux.NewError(gomux.KindWrite, componentSink, fmt.Errorf("write trailer: %w", trailerErr))
				return
			}
			logger.Errorf(r, "Failed to write trailer after error: %v", trailerErr)
		}
	}()

	out := sink.Streams()
	if len(out) != len(in) {
		return 0, &gomux.Error{
			Kind:      gomux.KindAllocation,
			Component: componentSink,
			Err:       fmt.Errorf("sink reports %d streams for %d inputs", len(out), len(in)),
		}
	}
	logStreams(r, "Output", r.output, out)

	err = r.copyPackets(src, sink, in, out)
	frames = r.frames.Load()
	if err != nil {
		logger.Errorf(r, "Remux stopped after %d frames: %v", frames, err)
		return frames, err
	}
	logger.Infof(r, "Remuxed %d frames", frames)
	return frames, nil
}

func (r *Remuxer) copyPackets(src gomux.Source, sink gomux.Sink, in, out []gomux.StreamDescriptor) error {
	for {
		pkt, err := src.ReadPacket()
		if err != nil {
			pkt.Release()
			if errors.Is(err, gomux.ErrEndOfStream) {
				return nil
			}
			return gomux.NewError(gomux.KindRead, componentSource, err)
		}
		if pkt == nil {
			return gomux.NewError(gomux.KindRead, componentSource, utils.NilPacketError{})
		}

		idx := pkt.StreamIndex
		if idx < 0 || idx >= len(in) {
			pkt.Release()
			return gomux.NewError(gomux.KindRead, componentSource, fmt.Errorf("packet for unknown stream %d", idx))
		}

		logPacket(r, "in", pkt, in[idx].TimeBase)
		RescalePacket(pkt, in[idx].TimeBase, out[idx].TimeBase)
		logPacket(r, "out", pkt, out[idx].TimeBase)

		err = sink.WritePacket(pkt)
		pkt.Release()
		if err != nil {
			return gomux.NewError(gomux.KindWrite, componentSink, fmt.Errorf("write packet: %w", err))
		}
		r.frames.Add(1)
	}
}

func logStreams(r *Remuxer, direction, locator string, streams []gomux.StreamDescriptor) {
	logger.Infof(r, "%s %s: %d streams", direction, locator, len(streams))
	for _, sd := range streams {
		tag := ""
		if sd.CodecParameters != nil {
			tag = sd.CodecParameters.Tag()
		}
		logger.Infof(r, "  #%d %s %v %s tb=%s", sd.Index, sd.Codec().MediaType(), sd.Codec(), tag, sd.TimeBase)
	}
}

func logPacket(r *Remuxer, tag string, pkt *gomux.Packet, tb gomux.Rational) {
	if !logrus.IsLevelEnabled(logrus.TraceLevel) {
		return
	}
	logger.Tracef(r, "%s: pts:%s pts_time:%s dts:%s dts_time:%s duration:%d duration_time:%s stream_index:%d",
		tag,
		gomux.TimestampString(pkt.PTS), gomux.TimeString(pkt.PTS, tb),
		gomux.TimestampString(pkt.DTS), gomux.TimeString(pkt.DTS, tb),
		pkt.Duration, gomux.TimeString(pkt.Duration, tb),
		pkt.StreamIndex)
}
