package catalog

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thoughtcap/model"
)

const (
	timeout = 2 * time.Second
	tick    = time.Millisecond
)

func TestRenderRows(t *testing.T) {
	vm := Render(sample, "r3.webm", true, DetailState{})
	require.Len(t, vm.Rows, 3)
	assert.Equal(t, 2, vm.SelectedIndex)
	assert.True(t, vm.Rows[2].Selected)
	assert.False(t, vm.Rows[0].Selected)

	assert.Equal(t, "2024-03-01 10:15", vm.Rows[0].Time)
	assert.Equal(t, "00:12", vm.Rows[0].Duration)
	assert.Equal(t, "2.0 KiB", vm.Rows[0].Size)
	assert.True(t, vm.Rows[1].Transcribed)
	assert.Empty(t, vm.Placeholder)
	assert.Equal(t, model.ComputeStats(sample), vm.Stats)
	assert.Contains(t, vm.Summary, "3 recordings")
}

func TestRenderPlaceholders(t *testing.T) {
	assert.Equal(t, placeholderEmpty, Render(nil, "", true, DetailState{}).Placeholder)
	assert.Equal(t, placeholderDegraded, Render(nil, "", false, DetailState{}).Placeholder)
}

func TestRenderDetailStates(t *testing.T) {
	tr := &model.Transcription{Text: "hello world", Segments: []model.Segment{{Start: 0, End: 1, Text: "hello world"}}}

	cases := []struct {
		name     string
		selected string
		detail   DetailState
		kind     DetailKind
		body     string
	}{
		{"no selection", "", DetailState{Kind: DetailReady, Filename: "r1.webm", Transcription: tr}, DetailEmpty, detailEmptyText},
		{"stale detail", "r1.webm", DetailState{Kind: DetailReady, Filename: "r2.webm", Transcription: tr}, DetailLoading, detailLoadingText},
		{"loading", "r1.webm", DetailState{Kind: DetailLoading, Filename: "r1.webm"}, DetailLoading, detailLoadingText},
		{"ready", "r1.webm", DetailState{Kind: DetailReady, Filename: "r1.webm", Transcription: tr}, DetailReady, "hello world"},
		{"ready but empty", "r1.webm", DetailState{Kind: DetailReady, Filename: "r1.webm"}, DetailError, "Transcript is empty."},
		{"pending", "r1.webm", DetailState{Kind: DetailPending, Filename: "r1.webm"}, DetailPending, detailPendingText},
		{"error", "r1.webm", DetailState{Kind: DetailError, Filename: "r1.webm", Err: errors.New("boom")}, DetailError, "Could not load transcript: boom"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := Render(sample, tc.selected, true, tc.detail).Detail
			assert.Equal(t, tc.kind, d.Kind)
			assert.Equal(t, tc.body, d.Body)
		})
	}
}

func TestRenderIsPure(t *testing.T) {
	recs := append([]model.Recording(nil), sample...)
	a := Render(recs, "r1.webm", true, DetailState{Kind: DetailLoading, Filename: "r1.webm"})
	b := Render(recs, "r1.webm", true, DetailState{Kind: DetailLoading, Filename: "r1.webm"})
	assert.Equal(t, a, b)
	assert.Equal(t, sample, recs)
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "0 B", FormatSize(0))
	assert.Equal(t, "1023 B", FormatSize(1023))
	assert.Equal(t, "1.0 KiB", FormatSize(1024))
	assert.Equal(t, "1.5 MiB", FormatSize(1536*1024))
	assert.Equal(t, "0 B", FormatSize(-5))
}

func TestDetailKindString(t *testing.T) {
	assert.Equal(t, "pending", DetailPending.String())
	assert.Equal(t, "detail(42)", DetailKind(42).String())
}
