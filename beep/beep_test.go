package beep

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"thoughtcap/events"
)

type recorder struct {
	mu     sync.Mutex
	played []Sound
}

func (r *recorder) Play(s Sound) {
	r.mu.Lock()
	r.played = append(r.played, s)
	r.mu.Unlock()
}

func TestSamples(t *testing.T) {
	start := Samples(Start)
	assert.Len(t, start, int(sampleRate*0.12))
	assert.Zero(t, start[0], "sine starts at zero")

	var peak int16
	for _, v := range start {
		peak = max(peak, v)
	}
	assert.InDelta(t, 32767*0.5, float64(peak), 32767*0.1)

	errSound := Samples(Error)
	one := int(sampleRate * 0.08)
	assert.Len(t, errSound, 2*one+int(sampleRate*0.05))
	assert.Equal(t, errSound[:one], errSound[len(errSound)-one:], "double beep repeats the tone")

	assert.Nil(t, Samples(Sound(99)))
}

func TestCues(t *testing.T) {
	r := &recorder{}
	c := NewCues(r)
	c.Publish(events.New(events.RecordingStarted, nil))
	c.Publish(events.New(events.AudioLevel, events.AudioLevelData{Level: 10}))
	c.Publish(events.New(events.RecordingPaused, nil))
	c.Publish(events.New(events.RecordingStopped, events.RecordingStoppedData{}))
	c.Failed()
	assert.Equal(t, []Sound{Start, End, Error}, r.played)
}
