package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"thoughtcap/audio"
	"thoughtcap/catalog"
	"thoughtcap/config"
	"thoughtcap/encoder"
	"thoughtcap/events"
	"thoughtcap/log"
	"thoughtcap/model"
	"thoughtcap/recording"
	"thoughtcap/transcriber"
)

var (
	ErrNotConfirmed = errors.New("delete not confirmed")
	ErrUnknown      = errors.New("unknown recording")
	ErrClosed       = errors.New("controller closed")
)

// Notice is a one-line message for the user: upload and permission
// failures, slow transcriptions.
type Notice struct {
	Text string
	Err  error
}

type Options struct {
	Config *config.Config
	// Audio may be nil for commands that never record.
	Audio  audio.Context
	Device *audio.DeviceInfo
	API    transcriber.API
	// Hub, when set, receives every event and feeds Run with commands.
	Hub    *events.Hub
	Events events.Publisher
	Log    zerolog.Logger

	OnTick   func(elapsed time.Duration)
	OnNotice func(Notice)
	// OnChange fires whenever the view may have changed.
	OnChange func()

	Now func() time.Time
}

// Controller owns one recording session, the coordinator, the catalog and
// the transcript cache for the life of the process.
type Controller struct {
	opts    Options
	log     zerolog.Logger
	events  events.Publisher
	cache   *catalog.TranscriptCache
	catalog *catalog.Catalog
	coord   *transcriber.Coordinator
	session *recording.Session

	mu         sync.Mutex
	detail     catalog.DetailState
	detailSeq  uint64
	timedOut   map[string]struct{}
	lastUpload transcriber.UploadResult
	uploads    int
	closed     bool

	closeOnce sync.Once
}

func New(opts Options) (*Controller, error) {
	if opts.Config == nil {
		return nil, errors.New("app: config is required")
	}
	if opts.API == nil {
		return nil, errors.New("app: api is required")
	}

	c := &Controller{
		opts:     opts,
		log:      opts.Log.With().Str("component", "controller").Logger(),
		timedOut: make(map[string]struct{}),
	}

	sinks := events.Fanout{opts.Events}
	if opts.Hub != nil {
		sinks = append(sinks, opts.Hub)
	}
	sinks = append(sinks, events.PublisherFunc(c.observe))
	c.events = sinks

	cache, err := catalog.OpenTranscriptCache(opts.Log)
	if err != nil {
		return nil, fmt.Errorf("open transcript cache: %w", err)
	}
	c.cache = cache

	c.catalog = catalog.New(opts.API, catalog.Options{
		Cache:  cache,
		Events: c.events,
		Log:    opts.Log,
	})

	cfg := opts.Config
	c.coord = transcriber.NewCoordinator(transcriber.CoordinatorConfig{
		API:          opts.API,
		Catalog:      c.catalog,
		Cache:        cache,
		Events:       c.events,
		Log:          opts.Log,
		PollInterval: cfg.Poll.Interval,
		MaxAttempts:  cfg.Poll.MaxAttempts,
		OnPollDone:   c.pollDone,
		OnResolved:   c.resolved,
	})

	capture := audio.DefaultCaptureConfig()
	capture.SampleRate = uint32(cfg.Audio.SampleRate)
	c.session = recording.New(recording.Config{
		Audio:         opts.Audio,
		Device:        opts.Device,
		Capture:       capture,
		Events:        c.events,
		Upload:        c.upload,
		Log:           opts.Log,
		OnTick:        opts.OnTick,
		LevelInterval: cfg.Level.Interval,
		Now:           opts.Now,
	})
	return c, nil
}

func (c *Controller) Catalog() *catalog.Catalog             { return c.catalog }
func (c *Controller) Coordinator() *transcriber.Coordinator { return c.coord }
func (c *Controller) Session() *recording.Session           { return c.session }

// Start begins recording. Permission failures are also reported as a
// notice.
func (c *Controller) Start(ctx context.Context) error {
	if c.isClosed() {
		return ErrClosed
	}
	var err error
	if c.opts.Audio == nil {
		err = fmt.Errorf("%w: no audio backend", audio.ErrPermissionDenied)
	} else {
		err = c.session.Start(ctx)
	}
	switch {
	case err == nil:
		c.changed()
	case errors.Is(err, audio.ErrPermissionDenied):
		c.notify(Notice{Text: "Microphone unavailable. Check permissions and the selected device.", Err: err})
	}
	return err
}

func (c *Controller) Pause() {
	c.session.Pause()
	c.changed()
}

func (c *Controller) Resume() {
	c.session.Resume()
	c.changed()
}

// Stop finishes the recording and uploads it. It returns the upload result;
// a zero result with a nil error means nothing was recording.
func (c *Controller) Stop(ctx context.Context) (transcriber.UploadResult, error) {
	art, err := c.session.Stop(ctx)
	c.changed()
	if err != nil {
		c.notify(Notice{Text: "Recording was not saved.", Err: err})
		return transcriber.UploadResult{}, err
	}
	if art == nil {
		return transcriber.UploadResult{}, nil
	}
	c.mu.Lock()
	res := c.lastUpload
	c.mu.Unlock()
	return res, nil
}

// Toggle starts a recording when idle and stops it otherwise.
func (c *Controller) Toggle(ctx context.Context) error {
	if c.session.State() == recording.Idle {
		return c.Start(ctx)
	}
	_, err := c.Stop(ctx)
	return err
}

func (c *Controller) upload(ctx context.Context, art *encoder.Artifact, durationSeconds int) error {
	res, err := c.coord.Upload(ctx, art, durationSeconds)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	c.mu.Lock()
	c.lastUpload = res
	c.uploads++
	c.mu.Unlock()
	return nil
}

// Uploads counts the recordings saved since New.
func (c *Controller) Uploads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uploads
}

func (c *Controller) Reload(ctx context.Context) []model.Recording {
	recs := c.catalog.Reload(ctx)
	c.changed()
	return recs
}

// Select shows filename in the detail pane and loads its transcript: from
// the cache, from the backend, or by requesting transcription. While a poll
// for filename is running the pane stays in the loading state.
func (c *Controller) Select(ctx context.Context, filename string) (catalog.DetailState, error) {
	if !c.catalog.Select(filename) {
		return catalog.DetailState{}, fmt.Errorf("%w: %s", ErrUnknown, filename)
	}

	c.mu.Lock()
	c.detailSeq++
	seq := c.detailSeq
	c.detail = catalog.DetailState{Kind: catalog.DetailLoading, Filename: filename}
	c.mu.Unlock()
	c.changed()

	if slices.Contains(c.coord.ActivePolls(), filename) {
		return c.Detail(), nil
	}

	t, err := c.coord.FetchOrRequest(ctx, filename)
	next := catalog.DetailState{Filename: filename}
	switch {
	case err == nil:
		next.Kind = catalog.DetailReady
		next.Transcription = t
	case errors.Is(err, transcriber.ErrNoTranscript) && c.wasTimedOut(filename):
		next.Kind = catalog.DetailPending
	default:
		next.Kind = catalog.DetailError
		next.Err = err
	}

	c.mu.Lock()
	if seq == c.detailSeq {
		c.detail = next
		if next.Kind == catalog.DetailReady {
			delete(c.timedOut, filename)
		}
	}
	c.mu.Unlock()
	c.changed()
	return next, err
}

func (c *Controller) wasTimedOut(filename string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.timedOut[filename]
	return ok
}

func (c *Controller) Detail() catalog.DetailState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.detail
}

func (c *Controller) View() catalog.ViewModel {
	return c.catalog.View(c.Detail())
}

// Delete removes filename after confirm approves it. A nil confirm counts
// as declined.
func (c *Controller) Delete(ctx context.Context, filename string, confirm func(model.Recording) bool) error {
	rec, ok := c.catalog.Get(filename)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknown, filename)
	}
	if confirm == nil || !confirm(rec) {
		return ErrNotConfirmed
	}
	if err := c.catalog.Delete(ctx, filename); err != nil {
		c.notify(Notice{Text: "Delete failed.", Err: err})
		return err
	}
	c.coord.Forget(filename)

	c.mu.Lock()
	delete(c.timedOut, filename)
	if c.detail.Filename == filename {
		c.detailSeq++
		c.detail = catalog.DetailState{}
	}
	c.mu.Unlock()
	c.changed()
	return nil
}

// Dispatch applies one inbound command.
func (c *Controller) Dispatch(ctx context.Context, cmd events.Command) error {
	c.log.Debug().Str("type", string(cmd.Type)).Str("filename", cmd.Filename).Msg("command")
	switch cmd.Type {
	case events.StartRecording:
		return c.Start(ctx)
	case events.StopRecording:
		_, err := c.Stop(ctx)
		return err
	case events.TranscriptionReady:
		c.coord.HandleExternalReady(cmd.Filename, cmd.Transcription)
		return nil
	}
	return &events.UnknownCommandError{Type: cmd.Type}
}

// Run dispatches commands until ctx is done or commands is closed.
func (c *Controller) Run(ctx context.Context, commands <-chan events.Command) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-commands:
			if !ok {
				return
			}
			if err := c.Dispatch(ctx, cmd); err != nil && !errors.Is(err, recording.ErrSessionActive) {
				c.log.Warn().Err(err).Str("type", string(cmd.Type)).Msg("command failed")
			}
		}
	}
}

func (c *Controller) pollDone(filename string, outcome transcriber.PollOutcome) {
	switch outcome {
	case transcriber.PollTimedOut:
		c.mu.Lock()
		c.timedOut[filename] = struct{}{}
		if c.detail.Filename == filename && c.detail.Kind == catalog.DetailLoading {
			c.detail.Kind = catalog.DetailPending
		}
		c.mu.Unlock()
		c.notify(Notice{Text: fmt.Sprintf("Transcription of %s is taking longer than expected.", filename)})
	case transcriber.PollFailed:
		c.mu.Lock()
		if c.detail.Filename == filename && c.detail.Kind == catalog.DetailLoading {
			c.detail = catalog.DetailState{Kind: catalog.DetailError, Filename: filename, Err: errors.New("transcription check failed")}
		}
		c.mu.Unlock()
	}
	c.changed()
}

func (c *Controller) resolved(filename string, t *model.Transcription) {
	if !t.Empty() {
		log.Transcript(filename, t.Text)
	}
	c.mu.Lock()
	delete(c.timedOut, filename)
	if c.detail.Filename == filename && c.detail.Kind != catalog.DetailReady {
		c.detail = catalog.DetailState{Kind: catalog.DetailReady, Filename: filename, Transcription: t}
	}
	c.mu.Unlock()
	c.changed()
}

// observe redraws on events that change what the catalog shows.
func (c *Controller) observe(ev events.Event) {
	switch ev.Type {
	case events.StatsUpdate, events.TranscriptionReady:
		c.changed()
	}
}

func (c *Controller) notify(n Notice) {
	if n.Err != nil {
		c.log.Error().Err(n.Err).Msg(n.Text)
	} else {
		c.log.Info().Msg(n.Text)
	}
	if c.opts.OnNotice != nil {
		c.opts.OnNotice(n)
	}
}

func (c *Controller) changed() {
	if c.opts.OnChange != nil {
		c.opts.OnChange()
	}
}

func (c *Controller) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close discards an active recording, cancels every poll, disconnects
// subscribers and drops the transcript cache. Safe to call more than once.
func (c *Controller) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		c.session.Teardown()
		c.coord.Close()
		if c.opts.Hub != nil {
			c.opts.Hub.Close()
		}
		err = c.cache.Close()
		c.log.Debug().Msg("closed")
	})
	return err
}
