package clipboard

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thoughtcap/model"
)

func stubClipboard(t *testing.T) *string {
	t.Helper()
	var buf string
	prevW, prevR := writeAll, readAll
	writeAll = func(s string) error { buf = s; return nil }
	readAll = func() (string, error) { return buf, nil }
	t.Cleanup(func() { writeAll, readAll = prevW, prevR })
	return &buf
}

func TestFormat(t *testing.T) {
	tr := &model.Transcription{
		Text: "  buy milk. call mom.  ",
		Segments: []model.Segment{
			{Start: 0, End: 1.2, Text: " buy milk."},
			{Start: 61.7, End: 63, Text: "call mom."},
			{Start: 70, End: 71, Text: "   "},
		},
	}
	assert.Equal(t, "buy milk. call mom.", Format(tr, false))
	assert.Equal(t, "[00:00] buy milk.\n[01:01] call mom.", Format(tr, true))
	assert.Equal(t, "plain", Format(&model.Transcription{Text: "plain"}, true))
	assert.Empty(t, Format(nil, true))
}

func TestCopyTranscript(t *testing.T) {
	buf := stubClipboard(t)

	require.NoError(t, CopyTranscript(System{}, &model.Transcription{Text: "hello"}, false))
	assert.Equal(t, "hello", *buf)
	got, err := Read()
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	assert.ErrorIs(t, CopyTranscript(System{}, &model.Transcription{Text: " "}, false), ErrEmpty)

	writeAll = func(string) error { return errors.New("no xclip") }
	err = CopyTranscript(System{}, &model.Transcription{Text: "hello"}, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no xclip")
}
