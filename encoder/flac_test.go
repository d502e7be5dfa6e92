package encoder

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/mewkiz/flac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pcm(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func ramp(n int) []int16 {
	s := make([]int16, n)
	for i := range s {
		s[i] = int16(i % 1000)
	}
	return s
}

func decodeAll(t *testing.T, data []byte) []int32 {
	t.Helper()
	stream, err := flac.New(bytes.NewReader(data))
	require.NoError(t, err)
	defer stream.Close()

	var out []int32
	for {
		f, err := stream.ParseNext()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, f.Subframes[0].Samples...)
	}
}

func TestFlacEncoderEmpty(t *testing.T) {
	enc, err := NewFlac(0)
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	assert.Zero(t, enc.TotalFrames())
	assert.NotEmpty(t, enc.Bytes(), "header is always written")
}

func TestFlacEncoderPartialBlock(t *testing.T) {
	enc, err := NewFlac(SampleRate)
	require.NoError(t, err)

	partial := ramp(BlockSize / 4)
	require.NoError(t, enc.EncodeBlock(partial))
	require.NoError(t, enc.Close())
	assert.Equal(t, uint64(len(partial)), enc.TotalFrames())
}

func TestAssembleRoundTrip(t *testing.T) {
	samples := ramp(BlockSize*2 + 300)
	raw := pcm(samples)

	// Split at odd offsets so a sample straddles two chunks.
	chunks := [][]byte{raw[:1001], raw[1001:5003], raw[5003:]}

	art, err := Assemble(chunks, SampleRate)
	require.NoError(t, err)
	assert.Equal(t, "fLaC", string(art.Data[:4]))
	assert.Equal(t, "audio/flac", art.ContentType)
	assert.Equal(t, uint64(len(samples)), art.Frames)

	got := decodeAll(t, art.Data)
	require.Len(t, got, len(samples))
	for i := range samples {
		if int32(samples[i]) != got[i] {
			t.Fatalf("sample %d: got %d want %d", i, got[i], samples[i])
		}
	}
}

func TestAssembleNoChunks(t *testing.T) {
	art, err := Assemble(nil, SampleRate)
	require.NoError(t, err)
	assert.Zero(t, art.Frames)
	assert.Zero(t, art.Duration())
}

func TestArtifactDuration(t *testing.T) {
	art, err := Assemble([][]byte{pcm(make([]int16, SampleRate*2))}, SampleRate)
	require.NoError(t, err)
	assert.Equal(t, "2s", art.Duration().String())
}
