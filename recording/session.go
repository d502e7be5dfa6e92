package recording

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"thoughtcap/audio"
	"thoughtcap/encoder"
	"thoughtcap/events"
)

type State int

const (
	Idle State = iota
	Recording
	Paused
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Paused:
		return "paused"
	case Stopping:
		return "stopping"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var ErrSessionActive = errors.New("a recording session is already active")

// UploadFunc receives the finished artifact. Its error is returned from Stop
// but never keeps the session out of Idle.
type UploadFunc func(ctx context.Context, art *encoder.Artifact, durationSeconds int) error

type Config struct {
	Audio   audio.Context
	Device  *audio.DeviceInfo
	Capture audio.CaptureConfig
	Events  events.Publisher
	Upload  UploadFunc
	Log     zerolog.Logger

	// OnTick receives the displayed elapsed time once per TickInterval
	// while recording. It is not called while paused.
	OnTick func(elapsed time.Duration)

	TickInterval  time.Duration
	LevelInterval time.Duration

	Now func() time.Time
}

// Session owns the capture device for the life of one recording.
type Session struct {
	cfg     Config
	log     zerolog.Logger
	limiter *rate.Limiter

	mu          sync.Mutex
	state       State
	id          string
	dev         audio.CaptureDevice
	chunks      [][]byte
	started     time.Time
	pausedAt    time.Time
	pausedTotal time.Duration
	tickStop    chan struct{}
	tickDone    chan struct{}
}

func New(cfg Config) *Session {
	if cfg.Events == nil {
		cfg.Events = events.Nop
	}
	if cfg.Capture.SampleRate == 0 {
		cfg.Capture = audio.DefaultCaptureConfig()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.LevelInterval <= 0 {
		cfg.LevelInterval = 100 * time.Millisecond
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Session{
		cfg:     cfg,
		log:     cfg.Log.With().Str("component", "session").Logger(),
		limiter: rate.NewLimiter(rate.Every(cfg.LevelInterval), 1),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Elapsed is the displayed timer value: wall time since Start minus time
// spent paused. Zero when idle.
func (s *Session) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsedLocked()
}

func (s *Session) elapsedLocked() time.Duration {
	switch s.state {
	case Recording, Stopping:
		return s.cfg.Now().Sub(s.started) - s.pausedTotal
	case Paused:
		return s.pausedAt.Sub(s.started) - s.pausedTotal
	}
	return 0
}

func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Idle {
		return ErrSessionActive
	}

	if err := audio.CheckAccess(s.cfg.Audio); err != nil {
		return err
	}
	dev, err := s.cfg.Audio.NewCapture(s.cfg.Device, s.cfg.Capture)
	if err != nil {
		return fmt.Errorf("%w: %v", audio.ErrPermissionDenied, err)
	}
	dev.SetCallback(s.onData)
	if err := dev.Start(); err != nil {
		dev.ClearCallback()
		dev.Close()
		return fmt.Errorf("%w: %v", audio.ErrPermissionDenied, err)
	}

	s.id = uuid.NewString()
	s.dev = dev
	s.chunks = nil
	s.started = s.cfg.Now()
	s.pausedTotal = 0
	s.state = Recording
	s.tickStop = make(chan struct{})
	s.tickDone = make(chan struct{})
	go s.tick(s.tickStop, s.tickDone)

	s.log.Info().Str("session", s.id).Str("device", dev.DeviceName()).Msg("recording started")
	s.cfg.Events.Publish(events.New(events.RecordingStarted, nil))
	return nil
}

func (s *Session) Pause() {
	s.mu.Lock()
	if s.state != Recording {
		s.mu.Unlock()
		return
	}
	s.state = Paused
	s.pausedAt = s.cfg.Now()
	s.mu.Unlock()

	s.log.Debug().Str("session", s.id).Msg("paused")
	s.cfg.Events.Publish(events.New(events.RecordingPaused, nil))
}

func (s *Session) Resume() {
	s.mu.Lock()
	if s.state != Paused {
		s.mu.Unlock()
		return
	}
	s.pausedTotal += s.cfg.Now().Sub(s.pausedAt)
	s.state = Recording
	s.mu.Unlock()

	s.log.Debug().Str("session", s.id).Msg("resumed")
	s.cfg.Events.Publish(events.New(events.RecordingResumed, nil))
}

// Stop finalizes the recording, hands it to the uploader and returns to
// Idle. Stop while idle is a no-op.
func (s *Session) Stop(ctx context.Context) (*encoder.Artifact, error) {
	s.mu.Lock()
	if s.state != Recording && s.state != Paused {
		s.mu.Unlock()
		return nil, nil
	}
	if s.state == Paused {
		s.pausedTotal += s.cfg.Now().Sub(s.pausedAt)
	}
	s.state = Stopping
	duration := int(s.cfg.Now().Sub(s.started) / time.Second)
	id := s.id
	s.mu.Unlock()

	defer s.setState(Idle)
	chunks := s.release()

	art, err := encoder.Assemble(chunks, int(s.cfg.Capture.SampleRate))
	if err != nil {
		s.log.Error().Err(err).Str("session", id).Msg("encode failed")
		return nil, fmt.Errorf("encoding recording: %w", err)
	}

	s.log.Info().
		Str("session", id).
		Int("duration_s", duration).
		Int("size", len(art.Data)).
		Uint64("frames", art.Frames).
		Msg("recording stopped")
	s.cfg.Events.Publish(events.New(events.RecordingStopped, events.RecordingStoppedData{
		Duration:      duration,
		EstimatedSize: int64(len(art.Data)),
	}))

	if s.cfg.Upload == nil {
		return art, nil
	}
	if err := s.cfg.Upload(ctx, art, duration); err != nil {
		return art, err
	}
	return art, nil
}

// Teardown abandons any active recording without uploading. Safe to call
// in any state and more than once.
func (s *Session) Teardown() {
	s.mu.Lock()
	if s.state != Recording && s.state != Paused {
		s.mu.Unlock()
		return
	}
	s.state = Stopping
	s.mu.Unlock()

	s.release()
	s.setState(Idle)
	s.log.Info().Msg("recording discarded")
}

// release stops the timer and closes the device. Only the caller that moved
// the session into Stopping reaches here, so the device is closed once.
func (s *Session) release() [][]byte {
	s.mu.Lock()
	dev := s.dev
	s.dev = nil
	stop, done := s.tickStop, s.tickDone
	s.tickStop, s.tickDone = nil, nil
	s.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	if dev != nil {
		dev.ClearCallback()
		dev.Stop()
		dev.Close()
	}

	s.mu.Lock()
	chunks := s.chunks
	s.chunks = nil
	s.mu.Unlock()
	return chunks
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) onData(data []byte, _ uint32) {
	if len(data) == 0 {
		return
	}
	s.mu.Lock()
	if s.state != Recording {
		s.mu.Unlock()
		return
	}
	chunk := make([]byte, len(data))
	copy(chunk, data)
	s.chunks = append(s.chunks, chunk)
	s.mu.Unlock()

	if !s.limiter.Allow() {
		return
	}
	m := audio.Measure(chunk, int(s.cfg.Capture.SampleRate))
	s.cfg.Events.Publish(events.New(events.AudioLevel, events.AudioLevelData{
		Level:     m.Level,
		Frequency: m.Frequency,
		Waveform:  m.Waveform,
	}))
}

func (s *Session) tick(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	t := time.NewTicker(s.cfg.TickInterval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			s.mu.Lock()
			st := s.state
			elapsed := s.elapsedLocked()
			s.mu.Unlock()
			if st == Recording && s.cfg.OnTick != nil {
				s.cfg.OnTick(elapsed)
			}
		}
	}
}

// FormatClock renders d as MM:SS, truncating to whole seconds.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
