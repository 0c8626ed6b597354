package remuxer

import (
	"fmt"

	"github.com/ugparu/gomux"
)

const (
	componentSource = "source"
	componentSink   = "sink"
	componentMapper = "mapper"
)

// BuildOutputStreams registers one output stream on sink for every input stream,
// in index order. Codec parameters are shared, not copied, and the codec tag is
// cleared so the sink picks a tag valid for its own container.
func BuildOutputStreams(sink gomux.Sink, in []gomux.StreamDescriptor) ([]gomux.StreamDescriptor, error) {
	globalHeader := sink.Flags().Has(gomux.FlagGlobalHeader)

	out := make([]gomux.StreamDescriptor, 0, len(in))
	for i, sd := range in {
		if sd.Index != i {
			return nil, &gomux.Error{
				Kind:      gomux.KindProbe,
				Component: componentMapper,
				Err:       fmt.Errorf("input stream at position %d has index %d", i, sd.Index),
			}
		}

		osd := gomux.StreamDescriptor{
			Index:           i,
			CodecParameters: sd.CodecParameters,
			TimeBase:        sd.TimeBase,
			CodecTag:        0,
			GlobalHeader:    globalHeader,
		}

		idx, err := sink.AddStream(osd)
		if err != nil {
			return nil, &gomux.Error{
				Kind:      gomux.KindAllocation,
				Component: componentMapper,
				Err:       fmt.Errorf("failed allocating output stream %d (%v): %w", i, sd.Codec(), err),
			}
		}
		if idx != i {
			return nil, &gomux.Error{
				Kind:      gomux.KindAllocation,
				Component: componentMapper,
				Err:       fmt.Errorf("sink assigned index %d to input stream %d", idx, i),
			}
		}
		out = append(out, osd)
	}
	return out, nil
}
