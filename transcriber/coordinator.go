package transcriber

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"thoughtcap/encoder"
	"thoughtcap/events"
	"thoughtcap/model"
)

const (
	DefaultPollInterval = time.Second
	DefaultMaxAttempts  = 30
)

type PollOutcome int

const (
	PollResolved PollOutcome = iota
	// PollTimedOut: attempts ran out. The transcript may still arrive.
	PollTimedOut
	PollFailed
	// PollCanceled: replaced by a newer poll, resolved elsewhere, or shut down.
	PollCanceled
)

func (o PollOutcome) String() string {
	switch o {
	case PollResolved:
		return "resolved"
	case PollTimedOut:
		return "timed_out"
	case PollFailed:
		return "failed"
	case PollCanceled:
		return "canceled"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Catalog is the slice of the recording catalog the coordinator updates.
type Catalog interface {
	Reload(ctx context.Context) []model.Recording
	MarkTranscribed(filename string) bool
}

type Cache interface {
	Get(filename string) (*model.Transcription, bool)
	Put(filename string, t *model.Transcription)
}

type CoordinatorConfig struct {
	API     API
	Catalog Catalog
	Cache   Cache
	Events  events.Publisher
	Log     zerolog.Logger

	PollInterval time.Duration
	MaxAttempts  int

	// OnPollDone observes the end of every poll loop.
	OnPollDone func(filename string, outcome PollOutcome)
	// OnResolved observes every transcript that resolves a recording,
	// including an empty one.
	OnResolved func(filename string, t *model.Transcription)
}

type poll struct {
	cancel context.CancelFunc
}

// Coordinator moves finished recordings through upload, transcription
// polling and retrieval.
type Coordinator struct {
	cfg CoordinatorConfig
	log zerolog.Logger

	base     context.Context
	shutdown context.CancelFunc
	wg       sync.WaitGroup

	mu       sync.Mutex
	polls    map[string]*poll
	resolved map[string]struct{}
}

func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	if cfg.Events == nil {
		cfg.Events = events.Nop
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	base, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		cfg:      cfg,
		log:      cfg.Log.With().Str("component", "coordinator").Logger(),
		base:     base,
		shutdown: cancel,
		polls:    make(map[string]*poll),
		resolved: make(map[string]struct{}),
	}
}

// Upload sends the artifact and kicks off whatever follows: a poll loop if
// transcription is pending, immediate resolution otherwise. Upload errors
// are returned as-is and never retried.
func (c *Coordinator) Upload(ctx context.Context, art *encoder.Artifact, durationSeconds int) (UploadResult, error) {
	res, err := c.cfg.API.Save(ctx, art, durationSeconds)
	if err != nil {
		c.log.Error().Err(err).Int("duration_s", durationSeconds).Msg("upload failed")
		return UploadResult{}, err
	}

	if c.cfg.Catalog != nil {
		c.cfg.Catalog.Reload(ctx)
	}

	if res.Pending {
		c.StartPoll(res.Filename)
		return res, nil
	}

	tr, err := c.cfg.API.GetTranscription(ctx, res.Filename)
	if err != nil {
		c.log.Debug().Err(err).Str("filename", res.Filename).Msg("transcript not fetched after upload")
		tr = nil
	}
	c.resolve(res.Filename, tr)
	return res, nil
}

// StartPoll runs PollForTranscription in the background. The poll is
// visible in ActivePolls when StartPoll returns.
func (c *Coordinator) StartPoll(filename string) {
	ctx, p := c.register(c.base, filename)
	go c.runPoll(ctx, filename, p)
}

// PollForTranscription asks for the transcript once per interval until it
// arrives, attempts run out or a request fails. A running poll for the
// same filename is canceled and replaced.
func (c *Coordinator) PollForTranscription(ctx context.Context, filename string) PollOutcome {
	ctx, p := c.register(ctx, filename)
	return c.runPoll(ctx, filename, p)
}

func (c *Coordinator) register(ctx context.Context, filename string) (context.Context, *poll) {
	ctx, cancel := context.WithCancel(ctx)
	p := &poll{cancel: cancel}

	c.mu.Lock()
	if prev, ok := c.polls[filename]; ok {
		c.log.Debug().Str("filename", filename).Msg("replacing running poll")
		prev.cancel()
	}
	c.polls[filename] = p
	c.wg.Add(1)
	c.mu.Unlock()
	return ctx, p
}

func (c *Coordinator) runPoll(ctx context.Context, filename string, p *poll) PollOutcome {
	defer func() {
		c.mu.Lock()
		if c.polls[filename] == p {
			delete(c.polls, filename)
		}
		c.mu.Unlock()
		p.cancel()
		c.wg.Done()
	}()

	outcome, attempts := c.poll(ctx, filename)

	ev := c.log.Info()
	if outcome == PollTimedOut {
		ev = c.log.Warn()
	}
	ev.Str("filename", filename).Str("outcome", outcome.String()).Int("attempts", attempts).Msg("poll finished")

	if c.cfg.OnPollDone != nil {
		c.cfg.OnPollDone(filename, outcome)
	}
	return outcome
}

func (c *Coordinator) poll(ctx context.Context, filename string) (PollOutcome, int) {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return PollCanceled, attempt - 1
		case <-ticker.C:
		}

		tr, err := c.cfg.API.GetTranscription(ctx, filename)
		switch {
		case err == nil && !tr.Empty():
			if ctx.Err() != nil {
				return PollCanceled, attempt
			}
			c.resolve(filename, tr)
			return PollResolved, attempt
		case err == nil, errors.Is(err, ErrNoTranscript):
			continue
		case ctx.Err() != nil:
			return PollCanceled, attempt
		default:
			c.log.Error().Err(err).Str("filename", filename).Int("attempt", attempt).Msg("poll aborted")
			return PollFailed, attempt
		}
	}
	return PollTimedOut, c.cfg.MaxAttempts
}

// HandleExternalReady applies a transcript announced by a peer, stopping
// any poll still waiting on it.
func (c *Coordinator) HandleExternalReady(filename string, t *model.Transcription) {
	c.cancelPoll(filename)
	c.resolve(filename, t)
}

// resolve marks filename transcribed and announces it. Only the first call
// per filename has any effect.
func (c *Coordinator) resolve(filename string, t *model.Transcription) bool {
	c.mu.Lock()
	if _, done := c.resolved[filename]; done {
		c.mu.Unlock()
		return false
	}
	c.resolved[filename] = struct{}{}
	c.mu.Unlock()

	if !t.Empty() && c.cfg.Cache != nil {
		c.cfg.Cache.Put(filename, t)
	}
	if c.cfg.OnResolved != nil {
		c.cfg.OnResolved(filename, t)
	}
	if c.cfg.Catalog != nil {
		c.cfg.Catalog.MarkTranscribed(filename)
	}
	c.cfg.Events.Publish(events.New(events.TranscriptionReady, events.TranscriptionReadyData{
		Filename:      filename,
		Transcription: t,
	}))
	c.log.Info().Str("filename", filename).Msg("transcription ready")
	return true
}

// FetchOrRequest returns the transcript for filename from cache, then from
// the backend, and finally by asking the backend to transcribe on demand.
func (c *Coordinator) FetchOrRequest(ctx context.Context, filename string) (*model.Transcription, error) {
	if c.cfg.Cache != nil {
		if t, ok := c.cfg.Cache.Get(filename); ok {
			return t, nil
		}
	}

	t, err := c.cfg.API.GetTranscription(ctx, filename)
	if err == nil {
		c.store(filename, t)
		return t, nil
	}
	if !errors.Is(err, ErrNoTranscript) {
		c.log.Warn().Err(err).Str("filename", filename).Msg("fetch failed, requesting transcription")
	}

	t, err = c.cfg.API.Transcribe(ctx, filename)
	if err != nil {
		return nil, fmt.Errorf("transcribe %s: %w", filename, err)
	}
	c.store(filename, t)
	if c.cfg.Catalog != nil {
		c.cfg.Catalog.MarkTranscribed(filename)
	}
	return t, nil
}

func (c *Coordinator) store(filename string, t *model.Transcription) {
	if c.cfg.Cache != nil {
		c.cfg.Cache.Put(filename, t)
	}
}

func (c *Coordinator) cancelPoll(filename string) {
	c.mu.Lock()
	p, ok := c.polls[filename]
	if ok {
		delete(c.polls, filename)
	}
	c.mu.Unlock()
	if ok {
		p.cancel()
	}
}

// Forget drops every trace of filename after it was deleted.
func (c *Coordinator) Forget(filename string) {
	c.cancelPoll(filename)
	c.mu.Lock()
	delete(c.resolved, filename)
	c.mu.Unlock()
}

// ActivePolls lists the filenames with a running poll loop, sorted.
func (c *Coordinator) ActivePolls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.polls))
	for f := range c.polls {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Wait blocks until every poll loop has exited.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Close cancels all polls and waits for them. Safe to call more than once.
func (c *Coordinator) Close() {
	c.shutdown()
	c.mu.Lock()
	for _, p := range c.polls {
		p.cancel()
	}
	c.mu.Unlock()
	c.wg.Wait()
}
