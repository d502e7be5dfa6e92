package catalog

import (
	"fmt"

	"thoughtcap/model"
)

type DetailKind int

const (
	DetailEmpty DetailKind = iota
	DetailLoading
	DetailReady
	// DetailPending: polling gave up but the backend may still finish.
	DetailPending
	DetailError
)

func (k DetailKind) String() string {
	switch k {
	case DetailEmpty:
		return "empty"
	case DetailLoading:
		return "loading"
	case DetailReady:
		return "ready"
	case DetailPending:
		return "pending"
	case DetailError:
		return "error"
	}
	return fmt.Sprintf("detail(%d)", int(k))
}

// DetailState is what the UI knows about the transcript of Filename.
type DetailState struct {
	Kind          DetailKind
	Filename      string
	Transcription *model.Transcription
	Err           error
}

type Row struct {
	Filename    string
	Time        string
	Duration    string
	Size        string
	Transcribed bool
	Selected    bool
}

type DetailView struct {
	Kind     DetailKind
	Title    string
	Meta     string
	Body     string
	Segments []model.Segment
}

type ViewModel struct {
	Rows          []Row
	SelectedIndex int // -1 when nothing is selected
	Stats         model.Stats
	Summary       string
	// Placeholder is shown instead of Rows when the list is empty.
	Placeholder string
	Detail      DetailView
}

const (
	placeholderEmpty    = "No recordings yet. Press r to record."
	placeholderDegraded = "Recordings unavailable. Check the backend and press R to retry."

	detailEmptyText   = "Select a recording to view its transcript."
	detailLoadingText = "Loading transcript..."
	detailPendingText = "Transcription is taking longer than expected. Select the recording again to check."
)

// Render is a pure function of catalog contents, selection and detail
// state. A detail state for another filename than the selection renders as
// loading; without a selection the detail pane is always empty.
func Render(recs []model.Recording, selected string, authoritative bool, detail DetailState) ViewModel {
	vm := ViewModel{
		Rows:          make([]Row, 0, len(recs)),
		SelectedIndex: -1,
		Stats:         model.ComputeStats(recs),
	}

	var sel *model.Recording
	for i := range recs {
		r := recs[i]
		row := Row{
			Filename:    r.Filename,
			Time:        r.DisplayTime(),
			Duration:    model.FormatDuration(r.DurationSeconds),
			Size:        FormatSize(r.SizeBytes),
			Transcribed: r.HasTranscription,
		}
		if selected != "" && r.Filename == selected {
			row.Selected = true
			vm.SelectedIndex = i
			sel = &recs[i]
		}
		vm.Rows = append(vm.Rows, row)
	}

	switch {
	case len(recs) > 0:
	case authoritative:
		vm.Placeholder = placeholderEmpty
	default:
		vm.Placeholder = placeholderDegraded
	}

	vm.Summary = fmt.Sprintf("%d recordings · %s total · %s · %d transcribed",
		vm.Stats.Count,
		model.FormatDuration(vm.Stats.TotalDurationSeconds),
		FormatSize(vm.Stats.TotalSizeBytes),
		vm.Stats.TranscribedCount)

	vm.Detail = renderDetail(sel, detail)
	return vm
}

func renderDetail(sel *model.Recording, detail DetailState) DetailView {
	if sel == nil {
		return DetailView{Kind: DetailEmpty, Body: detailEmptyText}
	}

	dv := DetailView{
		Title: sel.DisplayTime(),
		Meta:  fmt.Sprintf("%s · %s · %s", sel.Filename, model.FormatDuration(sel.DurationSeconds), FormatSize(sel.SizeBytes)),
	}
	if detail.Filename != sel.Filename {
		dv.Kind = DetailLoading
		dv.Body = detailLoadingText
		return dv
	}

	dv.Kind = detail.Kind
	switch detail.Kind {
	case DetailReady:
		if detail.Transcription.Empty() {
			dv.Kind = DetailError
			dv.Body = "Transcript is empty."
			return dv
		}
		dv.Body = detail.Transcription.Text
		dv.Segments = detail.Transcription.Segments
	case DetailPending:
		dv.Body = detailPendingText
	case DetailError:
		msg := "unknown error"
		if detail.Err != nil {
			msg = detail.Err.Error()
		}
		dv.Body = "Could not load transcript: " + msg
	case DetailEmpty, DetailLoading:
		dv.Kind = DetailLoading
		dv.Body = detailLoadingText
	}
	return dv
}

// FormatSize renders a byte count with a binary unit.
func FormatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", max(n, 0))
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
