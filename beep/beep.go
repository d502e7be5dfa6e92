package beep

import (
	"math"

	"thoughtcap/events"
)

type Sound int

const (
	Start Sound = iota
	End
	Error
)

type Player interface {
	Play(s Sound)
}

const sampleRate = 44100

type tone struct {
	freq     float64
	duration float64
	volume   float64
	decay    float64
	// gap > 0 plays the tone twice with gap seconds of silence between.
	gap float64
}

var tones = map[Sound]tone{
	Start: {freq: 1200, duration: 0.12, volume: 0.5, decay: 60},
	End:   {freq: 900, duration: 0.15, volume: 0.5, decay: 40},
	Error: {freq: 350, duration: 0.08, volume: 0.6, decay: 30, gap: 0.05},
}

// Samples renders s as mono 16-bit PCM at 44.1 kHz: a sine with an
// exponential decay envelope.
func Samples(s Sound) []int16 {
	t, ok := tones[s]
	if !ok {
		return nil
	}
	n := int(sampleRate * t.duration)
	one := make([]int16, n)
	for i := range one {
		x := float64(i) / sampleRate
		one[i] = int16(math.Sin(2*math.Pi*t.freq*x) * 32767 * t.volume * math.Exp(-x*t.decay))
	}
	if t.gap <= 0 {
		return one
	}
	out := make([]int16, 0, 2*n+int(sampleRate*t.gap))
	out = append(out, one...)
	out = append(out, make([]int16, int(sampleRate*t.gap))...)
	return append(out, one...)
}

// Cues plays a sound when a recording starts or stops, and on failures.
type Cues struct {
	player Player
}

func NewCues(p Player) *Cues {
	return &Cues{player: p}
}

func (c *Cues) Publish(ev events.Event) {
	switch ev.Type {
	case events.RecordingStarted:
		c.player.Play(Start)
	case events.RecordingStopped:
		c.player.Play(End)
	}
}

// Failed plays the error sound.
func (c *Cues) Failed() {
	c.player.Play(Error)
}
