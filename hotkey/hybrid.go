package hotkey

import (
	"context"
	"sync"
	"time"

	"thoughtcap/events"
)

type Mode string

const (
	ModeIdle   Mode = "idle"
	ModePTT    Mode = "ptt"
	ModeToggle Mode = "toggle"
)

// DefaultLongPress separates a tap from a hold.
const DefaultLongPress = 400 * time.Millisecond

// Hybrid turns one key combination into recording commands. Every press
// starts a recording; a press held past longPress stops on release
// (push-to-talk), a shorter tap keeps recording until the next press is
// released.
type Hybrid struct {
	commands chan events.Command

	mu   sync.Mutex
	mode Mode
}

// NewHybrid runs until ctx is done.
func NewHybrid(ctx context.Context, hk Hotkey, longPress time.Duration) *Hybrid {
	if longPress <= 0 {
		longPress = DefaultLongPress
	}
	h := &Hybrid{
		commands: make(chan events.Command, 2),
		mode:     ModeIdle,
	}
	go h.run(ctx, hk, longPress)
	return h
}

// Commands yields start_recording and stop_recording in strict alternation.
// It is closed when the context ends.
func (h *Hybrid) Commands() <-chan events.Command { return h.commands }

func (h *Hybrid) Mode() Mode {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.mode
}

func (h *Hybrid) setMode(m Mode) {
	h.mu.Lock()
	h.mode = m
	h.mu.Unlock()
}

func (h *Hybrid) emit(ctx context.Context, t events.Type) bool {
	select {
	case h.commands <- events.Command{Type: t}:
		return true
	case <-ctx.Done():
		return false
	}
}

func wait(ctx context.Context, ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	case <-ctx.Done():
		return false
	}
}

func (h *Hybrid) run(ctx context.Context, hk Hotkey, longPress time.Duration) {
	defer close(h.commands)
	for {
		if !wait(ctx, hk.Keydown()) {
			return
		}
		// The mode only decides when we stop, so start right away.
		h.setMode(ModeToggle)
		if !h.emit(ctx, events.StartRecording) {
			return
		}

		timer := time.NewTimer(longPress)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			h.setMode(ModePTT)
			if !wait(ctx, hk.Keyup()) {
				return
			}
		case <-hk.Keyup():
			timer.Stop()
			if !wait(ctx, hk.Keydown()) || !wait(ctx, hk.Keyup()) {
				return
			}
		}

		h.setMode(ModeIdle)
		if !h.emit(ctx, events.StopRecording) {
			return
		}
	}
}
