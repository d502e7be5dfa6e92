package model

import (
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the fixed-width creation stamp the backend assigns.
const TimestampLayout = "20060102_150405"

type Recording struct {
	Filename         string `json:"filename"`
	Timestamp        string `json:"timestamp"`
	DurationSeconds  int    `json:"duration"`
	SizeBytes        int64  `json:"size"`
	HasTranscription bool   `json:"has_transcription"`
	URL              string `json:"url"`
}

type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type Transcription struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
}

func (t *Transcription) Empty() bool {
	return t == nil || strings.TrimSpace(t.Text) == ""
}

// Stats are derived from catalog contents and never stored on their own.
type Stats struct {
	Count                int   `json:"total"`
	TotalDurationSeconds int   `json:"totalDuration"`
	TotalSizeBytes       int64 `json:"totalSize"`
	TranscribedCount     int   `json:"totalTranscribed"`
}

func ComputeStats(recs []Recording) Stats {
	s := Stats{Count: len(recs)}
	for _, r := range recs {
		s.TotalDurationSeconds += r.DurationSeconds
		s.TotalSizeBytes += r.SizeBytes
		if r.HasTranscription {
			s.TranscribedCount++
		}
	}
	return s
}

type Stamp struct {
	Year, Month, Day     int
	Hour, Minute, Second int
}

func (s Stamp) Time() time.Time {
	return time.Date(s.Year, time.Month(s.Month), s.Day, s.Hour, s.Minute, s.Second, 0, time.Local)
}

// ParseTimestamp accepts YYYYMMDD_HHMMSS, and YYYYMMDD_HHMM when seconds are
// missing. Anything trailing the stamp (e.g. a counter suffix) is ignored.
func ParseTimestamp(raw string) (Stamp, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) < len("20060102_1504") {
		return Stamp{}, fmt.Errorf("timestamp %q too short", raw)
	}
	layout := TimestampLayout
	value := raw
	if len(raw) >= len(TimestampLayout) {
		value = raw[:len(TimestampLayout)]
	} else {
		layout = "20060102_1504"
		value = raw[:len(layout)]
	}
	t, err := time.ParseInLocation(layout, value, time.Local)
	if err != nil {
		return Stamp{}, fmt.Errorf("parsing timestamp %q: %w", raw, err)
	}
	return Stamp{
		Year:   t.Year(),
		Month:  int(t.Month()),
		Day:    t.Day(),
		Hour:   t.Hour(),
		Minute: t.Minute(),
		Second: t.Second(),
	}, nil
}

// DisplayTime renders the creation stamp for list rows, falling back to the
// raw value when it does not parse.
func (r Recording) DisplayTime() string {
	s, err := ParseTimestamp(r.Timestamp)
	if err != nil {
		return r.Timestamp
	}
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d", s.Year, s.Month, s.Day, s.Hour, s.Minute)
}

func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
