package encoder

import (
	"encoding/binary"
	"fmt"
	"time"
)

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096
)

type Encoder interface {
	EncodeBlock(block []int16) error
	Close() error
	Bytes() []byte
	TotalFrames() uint64
}

// Artifact is one finished recording, ready for upload.
type Artifact struct {
	Data        []byte
	ContentType string
	Filename    string
	Frames      uint64
	SampleRate  int
}

// Duration is the audio length implied by the encoded frame count.
func (a *Artifact) Duration() time.Duration {
	if a.SampleRate == 0 {
		return 0
	}
	return time.Duration(a.Frames) * time.Second / time.Duration(a.SampleRate)
}

// Assemble concatenates 16-bit LE mono PCM chunks and encodes them into a
// single FLAC artifact. Chunk boundaries need not align to samples.
func Assemble(chunks [][]byte, sampleRate int) (*Artifact, error) {
	enc, err := NewFlac(sampleRate)
	if err != nil {
		return nil, err
	}

	block := make([]int16, 0, BlockSize)
	var carry []byte
	flush := func() error {
		if len(block) == 0 {
			return nil
		}
		if err := enc.EncodeBlock(block); err != nil {
			return err
		}
		block = block[:0]
		return nil
	}

	for _, chunk := range chunks {
		if len(carry) > 0 {
			chunk = append(carry, chunk...)
			carry = nil
		}
		n := len(chunk) &^ 1
		for i := 0; i < n; i += 2 {
			block = append(block, int16(binary.LittleEndian.Uint16(chunk[i:])))
			if len(block) == BlockSize {
				if err := flush(); err != nil {
					return nil, err
				}
			}
		}
		if n < len(chunk) {
			carry = []byte{chunk[n]}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("closing flac encoder: %w", err)
	}

	return &Artifact{
		Data:        enc.Bytes(),
		ContentType: "audio/flac",
		Filename:    "recording.flac",
		Frames:      enc.TotalFrames(),
		SampleRate:  sampleRate,
	}, nil
}
