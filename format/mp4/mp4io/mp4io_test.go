package mp4io

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ugparu/gomux/utils/bits/pio"
)

func marshal(t *testing.T, atom Atom) []byte {
	t.Helper()
	b := make([]byte, atom.Len())
	require.Equal(t, len(b), atom.Marshal(b), "%s length", atom.Tag())
	return b
}

func testMovie() *Movie {
	video := &Track{
		Header: NewTrackHeader(1, 9000, 1280, 720, false),
		Media: &Media{
			Header:  &MediaHeader{TimeScale: 90000, Duration: 9000, Language: LanguageUndetermined},
			Handler: &HandlerRefer{Type: VideoHandler, Name: "VideoHandler"},
			Info: &MediaInfo{
				Video: &VideoMediaInfo{},
				Data:  NewDataInfo(),
				Sample: &SampleTable{
					SampleDesc: &SampleDesc{Visual: NewVisualSampleDesc(AVC1, 1280, 720,
						&DecoderConf{Type: AVCC, Data: []byte{1, 0x64, 0, 0x1f, 0xff, 0xe0, 0}})},
					TimeToSample:      &TimeToSample{Entries: []TimeToSampleEntry{{Count: 3, Duration: 3000}}},
					CompositionOffset: &CompositionOffset{Entries: []CompositionOffsetEntry{{Count: 1, Offset: 3000}, {Count: 2, Offset: -3000}}},
					SyncSample:        &SyncSample{Entries: []uint32{1}},
					SampleToChunk:     &SampleToChunk{Entries: []SampleToChunkEntry{{FirstChunk: 1, SamplesPerChunk: 1, SampleDescID: 1}}},
					SampleSize:        &SampleSize{Entries: []uint32{10, 20, 30}},
					ChunkOffset:       &ChunkOffset{Entries: []uint64{40, 50, 70}},
				},
			},
		},
	}
	audio := &Track{
		Header: NewTrackHeader(2, 1500, 0, 0, true),
		Edit: &Edit{List: &EditList{Entries: []EditListEntry{
			{SegmentDuration: 500, MediaTime: EmptyEdit, MediaRate: 1},
			{SegmentDuration: 1000, MediaRate: 1},
		}}},
		Media: &Media{
			Header:  &MediaHeader{TimeScale: 48000, Duration: 48000, Language: LanguageUndetermined},
			Handler: &HandlerRefer{Type: SoundHandler, Name: "SoundHandler"},
			Info: &MediaInfo{
				Sound: &SoundMediaInfo{},
				Data:  NewDataInfo(),
				Sample: &SampleTable{
					SampleDesc:    &SampleDesc{Audio: NewAudioSampleDesc(2, 48000, &ElemStreamDesc{ESID: 2, DecConfig: []byte{0x11, 0x90}})},
					TimeToSample:  &TimeToSample{Entries: []TimeToSampleEntry{{Count: 2, Duration: 1024}}},
					SampleToChunk: &SampleToChunk{Entries: []SampleToChunkEntry{{FirstChunk: 1, SamplesPerChunk: 2, SampleDescID: 1}}},
					SampleSize:    &SampleSize{SampleSize: 6, Entries: []uint32{6, 6}},
					ChunkOffset:   &ChunkOffset{Entries: []uint64{100}},
				},
			},
		},
	}
	return &Movie{Header: NewMovieHeader(1000, 1000, 3), Tracks: []*Track{video, audio}}
}

func TestMovieRoundTrip(t *testing.T) {
	t.Parallel()

	var file bytes.Buffer
	file.Write(marshal(t, NewFileType(StringToTag("isom"), 0x200, "isom", "iso2", "avc1", "mp41")))
	file.Write(marshal(t, &Free{Size: 8}))
	moovOffset := file.Len()
	file.Write(marshal(t, testMovie()))
	// mdat running to the end of file
	file.Write([]byte{0, 0, 0, 0, 'm', 'd', 'a', 't', 1, 2, 3})

	atoms, err := ReadFileAtoms(bytes.NewReader(file.Bytes()))
	require.NoError(t, err)
	require.Len(t, atoms, 4)
	require.Equal(t, FTYP, atoms[0].Tag())
	require.Equal(t, MDAT, atoms[3].Tag())
	_, mdatSize := atoms[3].Pos()
	require.Equal(t, 11, mdatSize)

	moov, ok := atoms[2].(*Movie)
	require.True(t, ok)
	offset, _ := moov.Pos()
	require.Equal(t, moovOffset, offset)
	require.Equal(t, uint32(1000), moov.Header.TimeScale)
	require.Equal(t, uint32(3), moov.Header.NextTrackID)
	require.InDelta(t, 1.0, moov.Header.PreferredRate, 1e-9)
	require.Len(t, moov.Tracks, 2)

	video := moov.Tracks[0]
	require.Equal(t, uint32(1), video.Header.TrackID)
	require.InDelta(t, 1280.0, video.Header.TrackWidth, 1e-9)
	require.Equal(t, uint32(90000), video.Media.Header.TimeScale)
	require.Equal(t, VideoHandler, video.Media.Handler.Type)
	require.Equal(t, "VideoHandler", video.Media.Handler.Name)
	require.NotNil(t, video.Media.Info.Data.Refer.URL)

	st := video.SampleTable()
	require.Equal(t, AVC1, st.SampleDesc.Visual.Format)
	require.Equal(t, uint16(720), st.SampleDesc.Visual.Height)
	require.Equal(t, []byte{1, 0x64, 0, 0x1f, 0xff, 0xe0, 0}, st.SampleDesc.Visual.Conf.Data)
	require.Equal(t, []CompositionOffsetEntry{{Count: 1, Offset: 3000}, {Count: 2, Offset: -3000}}, st.CompositionOffset.Entries)
	require.Equal(t, uint8(1), st.CompositionOffset.Version)
	require.Equal(t, []uint32{1}, st.SyncSample.Entries)
	require.Equal(t, []uint32{10, 20, 30}, st.SampleSize.Entries)
	require.Equal(t, []uint64{40, 50, 70}, st.ChunkOffset.Entries)
	require.Equal(t, STCO, st.ChunkOffset.Tag())

	audio := moov.Tracks[1].SampleDesc().Audio
	require.Equal(t, uint16(2), audio.NumberOfChannels)
	require.InDelta(t, 48000.0, audio.SampleRate, 1e-9)
	require.Equal(t, []byte{0x11, 0x90}, audio.Conf.DecConfig)
	require.Equal(t, uint16(2), audio.Conf.ESID)
	require.Equal(t, []uint32{6, 6}, moov.Tracks[1].SampleTable().SampleSize.Entries)
	require.Nil(t, video.Edit)
	require.NotNil(t, moov.Tracks[1].Edit)
	delay, start := moov.Tracks[1].Edit.List.Delay()
	require.Equal(t, uint64(500), delay)
	require.Equal(t, int64(0), start)

	var dump bytes.Buffer
	FprintAtom(&dump, moov)
	require.Contains(t, dump.String(), "stts")
	require.Equal(t, AVCC, FindChildrenByName(moov, "avcC").Tag())
}

func TestEditList(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name    string
		entries []EditListEntry
		version uint8
		delay   uint64
		start   int64
	}{
		{"empty", nil, 0, 0, 0},
		{"shift", []EditListEntry{{SegmentDuration: 900, MediaTime: 1024, MediaRate: 1}}, 0, 0, 1024},
		{"delay", []EditListEntry{
			{SegmentDuration: 250, MediaTime: EmptyEdit, MediaRate: 1},
			{SegmentDuration: 250, MediaTime: EmptyEdit, MediaRate: 1},
			{SegmentDuration: 4000, MediaTime: 3000, MediaRate: 1},
		}, 0, 500, 3000},
		{"wide", []EditListEntry{
			{SegmentDuration: 1 << 33, MediaTime: EmptyEdit, MediaRate: 1},
			{SegmentDuration: 10, MediaRate: 1},
		}, 1, 1 << 33, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			b := marshal(t, &Edit{List: &EditList{Entries: tc.entries}})
			edts, err := decode[Edit](b, 0)
			require.NoError(t, err)
			require.NotNil(t, edts.List)
			require.Equal(t, tc.version, edts.List.Version)
			require.Len(t, edts.List.Entries, len(tc.entries))
			for i, e := range tc.entries {
				require.Equal(t, e.SegmentDuration, edts.List.Entries[i].SegmentDuration)
				require.Equal(t, e.MediaTime, edts.List.Entries[i].MediaTime)
				require.InDelta(t, e.MediaRate, edts.List.Entries[i].MediaRate, 1e-9)
			}
			delay, start := edts.List.Delay()
			require.Equal(t, tc.delay, delay)
			require.Equal(t, tc.start, start)
		})
	}
}

func TestLargeBoxes(t *testing.T) {
	t.Parallel()

	co := ChunkOffset{Entries: []uint64{8, 1 << 33}}
	require.Equal(t, CO64, co.Tag())
	b := marshal(t, &co)
	require.Equal(t, "co64", Tag(pio.U32BE(b[4:])).String())

	var parsed ChunkOffset
	_, err := parsed.Unmarshal(b, 0)
	require.NoError(t, err)
	require.Equal(t, co.Entries, parsed.Entries)

	mdhd := MediaHeader{TimeScale: 90000, Duration: 1 << 40}
	b = marshal(t, &mdhd)
	require.Equal(t, byte(1), b[8])
	var mh MediaHeader
	_, err = mh.Unmarshal(b, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(1<<40), mh.Duration)

	// mdat with a 64 bit size followed by a moov
	var file bytes.Buffer
	file.Write([]byte{0, 0, 0, 1, 'm', 'd', 'a', 't', 0, 0, 0, 0, 0, 0, 0, 20, 0xaa, 0xbb, 0xcc, 0xdd})
	file.Write(marshal(t, &Movie{Header: NewMovieHeader(1000, 0, 1)}))
	atoms, err := ReadFileAtoms(bytes.NewReader(file.Bytes()))
	require.NoError(t, err)
	require.Len(t, atoms, 2)
	require.Equal(t, MOOV, atoms[1].Tag())
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	moov := marshal(t, testMovie())

	for _, n := range []int{HeaderSize + 20, len(moov) / 2, len(moov) - 3} {
		truncated := append([]byte{}, moov[:n]...)
		pio.PutU32BE(truncated, uint32(n))
		_, err := ReadFileAtoms(bytes.NewReader(truncated))
		var pe *ParseError
		require.ErrorAs(t, err, &pe, "truncated at %d", n)
		require.Contains(t, err.Error(), "mp4io: parse error")
	}

	// moov declaring more bytes than the file holds
	short := append([]byte{}, moov...)
	pio.PutU32BE(short, uint32(len(moov)+100))
	_, err := ReadFileAtoms(bytes.NewReader(short))
	require.Error(t, err)

	stts := marshal(t, &TimeToSample{Entries: []TimeToSampleEntry{{1, 1}}})
	pio.PutU32BE(stts[12:], 1<<30)
	_, err = new(TimeToSample).Unmarshal(stts, 0)
	require.Error(t, err)
}

func TestElemStreamDesc(t *testing.T) {
	t.Parallel()

	// compact lengths and an ES descriptor with a dependency id
	b := []byte{
		0, 0, 0, 0, 'e', 's', 'd', 's', 0, 0, 0, 0,
		0x03, 0x1b, 0x00, 0x01, 0x80, 0x00, 0x05,
		0x04, 0x11, 0x40, 0x15, 0x00, 0x00, 0x00, 0x00, 0x01, 0xf4, 0x00, 0x00, 0x01, 0xf4, 0x00,
		0x05, 0x02, 0x12, 0x10,
		0x06, 0x01, 0x02,
	}
	pio.PutU32BE(b, uint32(len(b)))

	var esds ElemStreamDesc
	_, err := esds.Unmarshal(b, 0)
	require.NoError(t, err)
	require.Equal(t, []byte{0x12, 0x10}, esds.DecConfig)
	require.Equal(t, uint16(1), esds.ESID)
	require.Equal(t, uint32(128000), esds.MaxBitrate)

	out := marshal(t, &ElemStreamDesc{ESID: 1, DecConfig: []byte{0x12, 0x10, 0x56, 0xe5, 0x00}})
	var again ElemStreamDesc
	_, err = again.Unmarshal(out, 0)
	require.NoError(t, err)
	require.Equal(t, []byte{0x12, 0x10, 0x56, 0xe5, 0x00}, again.DecConfig)

	_, err = new(ElemStreamDesc).Unmarshal(b[:20], 0)
	require.Error(t, err)
}

func TestMovieFragRoundTrip(t *testing.T) {
	t.Parallel()

	moof := MovieFrag{
		Header: &MovieFragHeader{Seqnum: 7},
		Tracks: []*TrackFrag{{
			Header: &TrackFragHeader{
				FullBox:      FullBox{Flags: TFHDDefaultBaseIsMOOF | TFHDDefaultFlags},
				TrackID:      1,
				DefaultFlags: SampleNonKeyframe,
			},
			DecodeTime: &TrackFragDecodeTime{Time: 1 << 35},
			Run: &TrackFragRun{
				FullBox: FullBox{
					Version: 1,
					Flags:   TRUNDataOffset | TRUNFirstSampleFlags | TRUNSampleDuration | TRUNSampleSize | TRUNSampleCTS,
				},
				DataOffset:       120,
				FirstSampleFlags: SampleNoDependencies,
				Entries: []TrackFragRunEntry{
					{Duration: 3000, Size: 100, Cts: 3000},
					{Duration: 3000, Size: 50, Cts: -3000},
				},
			},
		}},
	}
	b := marshal(t, &moof)

	atoms, err := ReadFileAtoms(bytes.NewReader(b))
	require.NoError(t, err)
	parsed, ok := atoms[0].(*MovieFrag)
	require.True(t, ok)
	require.Equal(t, uint32(7), parsed.Header.Seqnum)
	tf := parsed.Tracks[0]
	require.Equal(t, uint32(1), tf.Header.TrackID)
	require.Equal(t, SampleNonKeyframe, tf.Header.DefaultFlags)
	require.Equal(t, uint64(1<<35), tf.DecodeTime.Time)
	require.Equal(t, int32(120), tf.Run.DataOffset)
	require.Equal(t, moof.Tracks[0].Run.Entries, tf.Run.Entries)

	mvex := MovieExtend{Tracks: []*TrackExtend{{TrackID: 1, DefaultSampleDescIdx: 1}}}
	var me MovieExtend
	_, err = me.Unmarshal(marshal(t, &mvex), 0)
	require.NoError(t, err)
	require.Equal(t, uint32(1), me.Tracks[0].TrackID)
}
