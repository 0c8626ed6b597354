package mp4

import (
	"errors"
	"fmt"

	"github.com/ugparu/gomux/format/mp4/mp4io"
)

// sample is one entry of a track's flattened sample tables.
type sample struct {
	pos      int64
	size     uint32
	dts      int64
	cts      int32
	duration uint32
	key      bool
}

// buildIndex resolves stsz, stsc, stco, stts, ctts and stss into per-sample records.
func buildIndex(st *mp4io.SampleTable) ([]sample, error) {
	if st == nil || st.SampleSize == nil || st.ChunkOffset == nil || st.SampleToChunk == nil || st.TimeToSample == nil {
		return nil, errors.New("incomplete sample table")
	}

	sizes := st.SampleSize.Entries
	samples := make([]sample, len(sizes))
	if len(samples) == 0 {
		return samples, nil
	}

	stsc := st.SampleToChunk.Entries
	if len(stsc) == 0 {
		return nil, errors.New("empty stsc")
	}
	i, entry := 0, 0
	for chunk, offset := range st.ChunkOffset.Entries {
		for entry+1 < len(stsc) && int(stsc[entry+1].FirstChunk) <= chunk+1 {
			entry++
		}
		pos := int64(offset) //nolint:gosec // offsets beyond 8EiB are not real files
		for range stsc[entry].SamplesPerChunk {
			if i == len(samples) {
				break
			}
			samples[i].pos = pos
			samples[i].size = sizes[i]
			pos += int64(sizes[i])
			i++
		}
	}
	if i < len(samples) {
		return nil, fmt.Errorf("chunks hold %d of %d samples", i, len(samples))
	}

	i = 0
	var dts int64
	var duration uint32
	for _, e := range st.TimeToSample.Entries {
		for range e.Count {
			if i == len(samples) {
				break
			}
			samples[i].dts = dts
			samples[i].duration = e.Duration
			dts += int64(e.Duration)
			i++
		}
		duration = e.Duration
	}
	// a short stts repeats its last delta
	for ; i < len(samples); i++ {
		samples[i].dts = dts
		samples[i].duration = duration
		dts += int64(duration)
	}

	if st.CompositionOffset != nil {
		i = 0
		for _, e := range st.CompositionOffset.Entries {
			for range e.Count {
				if i == len(samples) {
					break
				}
				samples[i].cts = e.Offset
				i++
			}
		}
	}

	if st.SyncSample == nil {
		for i := range samples {
			samples[i].key = true
		}
	} else {
		for _, n := range st.SyncSample.Entries {
			if n >= 1 && int(n) <= len(samples) {
				samples[n-1].key = true
			}
		}
	}
	return samples, nil
}
