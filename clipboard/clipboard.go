package clipboard

import (
	"errors"
	"fmt"
	"strings"

	cb "github.com/atotto/clipboard"

	"thoughtcap/model"
)

var ErrEmpty = errors.New("nothing to copy")

// Swapped in tests so they never touch the real clipboard.
var (
	writeAll = cb.WriteAll
	readAll  = cb.ReadAll
)

func Read() (string, error) {
	return readAll()
}

func Copy(text string) error {
	return writeAll(text)
}

// Format renders a transcript as plain text. With timestamps every segment
// goes on its own line prefixed by its start offset.
func Format(t *model.Transcription, timestamps bool) string {
	if t.Empty() {
		return ""
	}
	if !timestamps || len(t.Segments) == 0 {
		return strings.TrimSpace(t.Text)
	}
	var b strings.Builder
	for _, s := range t.Segments {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		total := int(s.Start)
		fmt.Fprintf(&b, "[%02d:%02d] %s\n", total/60, total%60, text)
	}
	return strings.TrimRight(b.String(), "\n")
}

type Writer interface {
	Copy(text string) error
}

// CopyTranscript puts the formatted transcript on w.
func CopyTranscript(w Writer, t *model.Transcription, timestamps bool) error {
	text := Format(t, timestamps)
	if text == "" {
		return ErrEmpty
	}
	if err := w.Copy(text); err != nil {
		return fmt.Errorf("clipboard: %w", err)
	}
	return nil
}

// Unsupported reports whether the platform has no clipboard utility.
func Unsupported() bool {
	return cb.Unsupported
}

// System is the OS clipboard as a value, for code that takes an interface.
type System struct{}

func (System) Copy(text string) error { return Copy(text) }
func (System) Read() (string, error)  { return Read() }
