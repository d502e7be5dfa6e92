package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	s, err := ParseTimestamp("20240315_142607")
	require.NoError(t, err)
	assert.Equal(t, Stamp{Year: 2024, Month: 3, Day: 15, Hour: 14, Minute: 26, Second: 7}, s)
}

func TestParseTimestampWithoutSeconds(t *testing.T) {
	s, err := ParseTimestamp("20240315_1426")
	require.NoError(t, err)
	assert.Equal(t, 14, s.Hour)
	assert.Equal(t, 26, s.Minute)
	assert.Equal(t, 0, s.Second)
}

func TestParseTimestampSuffixIgnored(t *testing.T) {
	s, err := ParseTimestamp("20240315_142607_2")
	require.NoError(t, err)
	assert.Equal(t, 7, s.Second)
}

func TestParseTimestampInvalid(t *testing.T) {
	for _, raw := range []string{"", "2024", "2024031X_142607", "20241345_142607"} {
		t.Run(raw, func(t *testing.T) {
			_, err := ParseTimestamp(raw)
			assert.Error(t, err)
		})
	}
}

func TestDisplayTime(t *testing.T) {
	assert.Equal(t, "2024-03-15 14:26", Recording{Timestamp: "20240315_142607"}.DisplayTime())
	assert.Equal(t, "garbage", Recording{Timestamp: "garbage"}.DisplayTime())
}

func TestComputeStats(t *testing.T) {
	recs := []Recording{
		{Filename: "a", DurationSeconds: 10, SizeBytes: 100, HasTranscription: true},
		{Filename: "b", DurationSeconds: 5, SizeBytes: 50},
		{Filename: "c", DurationSeconds: 0, SizeBytes: 0, HasTranscription: true},
	}
	assert.Equal(t, Stats{Count: 3, TotalDurationSeconds: 15, TotalSizeBytes: 150, TranscribedCount: 2}, ComputeStats(recs))
	assert.Equal(t, Stats{}, ComputeStats(nil))
}

func TestTranscriptionEmpty(t *testing.T) {
	var nilT *Transcription
	assert.True(t, nilT.Empty())
	assert.True(t, (&Transcription{Text: "  \n"}).Empty())
	assert.False(t, (&Transcription{Text: "hello"}).Empty())
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "00:00", FormatDuration(0))
	assert.Equal(t, "01:05", FormatDuration(65))
	assert.Equal(t, "00:00", FormatDuration(-3))
}
