package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"thoughtcap/model"
)

type Type string

// Outbound events.
const (
	RecordingStarted   Type = "recording_started"
	RecordingStopped   Type = "recording_stopped"
	RecordingPaused    Type = "recording_paused"
	RecordingResumed   Type = "recording_resumed"
	AudioLevel         Type = "audio_level"
	StatsUpdate        Type = "stats_update"
	TranscriptionReady Type = "transcription_ready"
)

// Inbound commands. TranscriptionReady doubles as a command when a peer
// learns about a finished transcript before our poll does.
const (
	StartRecording Type = "start_recording"
	StopRecording  Type = "stop_recording"
)

type Event struct {
	ID   string    `json:"id"`
	Type Type      `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data,omitempty"`
}

func New(t Type, data any) Event {
	return Event{ID: uuid.NewString(), Type: t, Time: time.Now(), Data: data}
}

type RecordingStoppedData struct {
	Duration      int   `json:"duration"`
	EstimatedSize int64 `json:"estimatedSize"`
}

type AudioLevelData struct {
	Level     int       `json:"level"`
	Frequency int       `json:"frequency"`
	Waveform  []float64 `json:"waveform"`
}

type TranscriptionReadyData struct {
	Filename      string               `json:"filename"`
	Transcription *model.Transcription `json:"transcription,omitempty"`
}

// Publisher is a fire-and-forget sink; implementations must not block.
type Publisher interface {
	Publish(ev Event)
}

type nop struct{}

func (nop) Publish(Event) {}

var Nop Publisher = nop{}

// Fanout publishes to every non-nil sink in order.
type Fanout []Publisher

func (f Fanout) Publish(ev Event) {
	for _, p := range f {
		if p != nil {
			p.Publish(ev)
		}
	}
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(Event)

func (f PublisherFunc) Publish(ev Event) { f(ev) }

// Buffer records published events. Safe for concurrent use.
type Buffer struct {
	mu     sync.Mutex
	events []Event
}

func (b *Buffer) Publish(ev Event) {
	b.mu.Lock()
	b.events = append(b.events, ev)
	b.mu.Unlock()
}

func (b *Buffer) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

func (b *Buffer) Count(t Type) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, ev := range b.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func (b *Buffer) Types() []Type {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Type, 0, len(b.events))
	for _, ev := range b.events {
		out = append(out, ev.Type)
	}
	return out
}

func (b *Buffer) Last(t Type) (Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.events) - 1; i >= 0; i-- {
		if b.events[i].Type == t {
			return b.events[i], true
		}
	}
	return Event{}, false
}

// Command is an inbound request received over the event channel.
type Command struct {
	Type          Type
	Filename      string
	Transcription *model.Transcription
}

type wireCommand struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// DecodeCommand parses an inbound frame. Unknown types are rejected.
func DecodeCommand(raw []byte) (Command, error) {
	var w wireCommand
	if err := json.Unmarshal(raw, &w); err != nil {
		return Command{}, err
	}
	cmd := Command{Type: w.Type}
	switch w.Type {
	case StartRecording, StopRecording:
		return cmd, nil
	case TranscriptionReady:
		var d TranscriptionReadyData
		if len(w.Data) == 0 {
			return Command{}, errMissingData
		}
		if err := json.Unmarshal(w.Data, &d); err != nil {
			return Command{}, err
		}
		if d.Filename == "" {
			return Command{}, errMissingFilename
		}
		cmd.Filename = d.Filename
		cmd.Transcription = d.Transcription
		return cmd, nil
	default:
		return Command{}, &UnknownCommandError{Type: w.Type}
	}
}
