package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/ugparu/gomux"
	"github.com/ugparu/gomux/codec/h264"
	"github.com/ugparu/gomux/format/mp4"
)

var (
	testSPS = []byte{
		0x67, 0x64, 0x00, 0x1f, 0xac, 0xd9, 0x40, 0x50,
		0x05, 0xbb, 0xff, 0x00, 0x03, 0x00, 0x04, 0x6a,
		0x02, 0x02, 0x02, 0x80, 0x00, 0x01, 0xf4, 0x80,
		0x00, 0x5d, 0xc0, 0x07, 0x8c, 0x18, 0xcb,
	}
	testPPS = []byte{0x68, 0xeb, 0xe3, 0xcb, 0x22, 0xc0}
)

type fixedProgress int64

func (p fixedProgress) Frames() int64 { return int64(p) }

func writeInput(t *testing.T, path string) {
	t.Helper()

	par, err := h264.NewCodecDataFromSPSAndPPS(testSPS, testPPS)
	require.NoError(t, err)
	sink, err := mp4.Create(path)
	require.NoError(t, err)
	_, err = sink.AddStream(gomux.StreamDescriptor{CodecParameters: par, TimeBase: gomux.NewRational(1, 90000)})
	require.NoError(t, err)
	require.NoError(t, sink.OpenTransport())
	require.NoError(t, sink.WriteHeader())
	for i := range 3 {
		pkt := gomux.NewPacket(0, []byte{0, 0, 0, 3, 0x41, 0x9a, byte(i)})
		pkt.PTS, pkt.DTS, pkt.Duration = int64(i)*3000, int64(i)*3000, 3000
		pkt.KeyFrame = i == 0
		require.NoError(t, sink.WritePacket(pkt))
		pkt.Release()
	}
	require.NoError(t, sink.WriteTrailer())
	require.NoError(t, sink.CloseTransport())
}

func TestParseFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{name: "no arguments", args: nil, wantErr: true},
		{name: "output missing", args: []string{"in.mp4"}, wantErr: true},
		{name: "bad level", args: []string{"-log-level", "loud", "in.mp4", "out.mp4"}, wantErr: true},
		{name: "negative fragment", args: []string{"-fragment", "-1s", "in.mp4", "out.mp4"}, wantErr: true},
		{name: "unknown flag", args: []string{"-x", "in.mp4", "out.mp4"}, wantErr: true},
		{name: "fragment with mp4 format", args: []string{"-fragment", "2s", "-o-format", "mp4", "in.ts", "out.mp4"}, wantErr: true},
		{name: "fragment with fmp4 format", args: []string{"-i-format", "mpegts", "-fragment", "2s", "-o-format", "fmp4", "-log-level", "debug", "in.ts", "out.mp4"}},
		{name: "ok", args: []string{"-i-format", "mpegts", "-fragment", "2s", "-log-level", "debug", "in.ts", "out.mp4"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var stderr bytes.Buffer
			cfg, err := parseFlags(tt.args, &stderr)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, "in.ts", cfg.input)
			require.Equal(t, "out.mp4", cfg.output)
			require.Equal(t, "mpegts", cfg.inputFormat)
			require.Equal(t, 2*time.Second, cfg.fragment)
			require.Equal(t, logrus.DebugLevel, cfg.logLevel)
			require.Len(t, cfg.options(), 3)
		})
	}
}

func TestLogLevelFromEnvironment(t *testing.T) {
	t.Setenv(logLevelEnv, "warning")

	cfg, err := parseFlags([]string{"in.mp4", "out.mp4"}, &bytes.Buffer{})
	require.NoError(t, err)
	require.Equal(t, logrus.WarnLevel, cfg.logLevel)
	require.Len(t, cfg.options(), 2)
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.mp4")
	writeInput(t, input)

	var stderr bytes.Buffer
	require.Equal(t, exitUsage, run([]string{input}, &stderr))
	require.Contains(t, stderr.String(), "usage: gomux")

	require.Equal(t, exitError, run([]string{filepath.Join(dir, "missing.mp4"), filepath.Join(dir, "x.mp4")}, &stderr))
	require.Equal(t, exitError, run([]string{input, filepath.Join(dir, "out.unknown")}, &stderr))

	output := filepath.Join(dir, "out.mp4")
	require.Equal(t, exitOK, run([]string{"-log-level", "error", input, output}, &stderr))
	src, err := mp4.Open(output)
	require.NoError(t, err)
	frames := 0
	for {
		pkt, readErr := src.ReadPacket()
		if readErr != nil {
			require.ErrorIs(t, readErr, gomux.ErrEndOfStream)
			break
		}
		require.Equal(t, int64(frames)*3000, pkt.PTS)
		pkt.Release()
		frames++
	}
	require.Equal(t, 3, frames)
	require.NoError(t, src.Close())

	fragmented := filepath.Join(dir, "frag.mp4")
	require.Equal(t, exitOK, run([]string{"-log-level", "error", "-fragment", "50ms", input, fragmented}, &stderr))
	data, err := os.ReadFile(fragmented)
	require.NoError(t, err)
	require.Equal(t, []byte("ftyp"), data[4:8])
	require.Contains(t, string(data), "moof")
}

func TestProgressEndpoint(t *testing.T) {
	t.Parallel()

	router := newRouter(fixedProgress(42))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/progress", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Frames int64 `json:"frames"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, int64(42), body.Frames)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}
