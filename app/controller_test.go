package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thoughtcap/audio"
	"thoughtcap/catalog"
	"thoughtcap/config"
	"thoughtcap/events"
	"thoughtcap/model"
	"thoughtcap/recording"
	"thoughtcap/transcriber"
)

const (
	timeout = 3 * time.Second
	tick    = time.Millisecond
)

type harness struct {
	ctrl    *Controller
	backend *transcriber.FakeBackend
	audio   *audio.FakeContext
	events  *events.Buffer

	mu      sync.Mutex
	notices []Notice
}

func (h *harness) Notices() []Notice {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Notice(nil), h.notices...)
}

func testConfig() *config.Config {
	return &config.Config{
		API:   config.APIConfig{BaseURL: "http://unused", Timeout: 5 * time.Second},
		Poll:  config.PollConfig{Interval: 5 * time.Millisecond, MaxAttempts: 30},
		Audio: config.AudioConfig{SampleRate: audio.SampleRate},
		Level: config.LevelConfig{Interval: 100 * time.Millisecond},
	}
}

func newHarness(t *testing.T, mutate func(*config.Config)) *harness {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}

	fb := transcriber.NewFakeBackend()
	srv := httptest.NewServer(fb)
	t.Cleanup(srv.Close)

	h := &harness{
		backend: fb,
		audio:   audio.NewFakeContext(make([]byte, audio.SampleRate*audio.BytesPerSample)),
		events:  &events.Buffer{},
	}
	ctrl, err := New(Options{
		Config: cfg,
		Audio:  h.audio,
		API:    transcriber.NewClient(srv.URL, cfg.API.Timeout, zerolog.Nop()),
		Events: h.events,
		Log:    zerolog.Nop(),
		OnNotice: func(n Notice) {
			h.mu.Lock()
			h.notices = append(h.notices, n)
			h.mu.Unlock()
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { ctrl.Close() })
	h.ctrl = ctrl
	return h
}

// record runs one start/stop cycle and returns the upload result.
func (h *harness) record(t *testing.T) (transcriber.UploadResult, error) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.ctrl.Start(ctx))
	select {
	case <-h.audio.Last().AudioDone():
	case <-time.After(timeout):
		t.Fatal("fake capture never finished")
	}
	return h.ctrl.Stop(ctx)
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
	_, err = New(Options{Config: testConfig()})
	assert.Error(t, err)
}

func TestStartWithoutAudio(t *testing.T) {
	fb := transcriber.NewFakeBackend()
	srv := httptest.NewServer(fb)
	t.Cleanup(srv.Close)

	ctrl, err := New(Options{Config: testConfig(), API: transcriber.NewClient(srv.URL, time.Second, zerolog.Nop()), Log: zerolog.Nop()})
	require.NoError(t, err)
	defer ctrl.Close()
	assert.ErrorIs(t, ctrl.Start(context.Background()), audio.ErrPermissionDenied)
	assert.Equal(t, recording.Idle, ctrl.Session().State())
}

func TestPendingUploadResolvesOnce(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.SetSaveTranscript("remember the milk", 2)

	res, err := h.record(t)
	require.NoError(t, err)
	require.NotEmpty(t, res.Filename)
	assert.True(t, res.Pending)

	require.Eventually(t, func() bool {
		return h.events.Count(events.TranscriptionReady) == 1
	}, timeout, tick)
	h.ctrl.Coordinator().Wait()

	assert.Equal(t, 1, h.events.Count(events.TranscriptionReady))
	assert.Equal(t, 1, h.ctrl.Uploads())
	assert.Equal(t, 3, h.backend.Calls("get:"+res.Filename))
	assert.Equal(t, recording.Idle, h.ctrl.Session().State())

	rec, ok := h.ctrl.Catalog().Get(res.Filename)
	require.True(t, ok, "catalog reloaded after upload")
	assert.True(t, rec.HasTranscription)

	detail, err := h.ctrl.Select(context.Background(), res.Filename)
	require.NoError(t, err)
	assert.Equal(t, catalog.DetailReady, detail.Kind)
	assert.Equal(t, "remember the milk", detail.Transcription.Text)
	assert.Equal(t, 3, h.backend.Calls("get:"+res.Filename), "served from the cache")

	vm := h.ctrl.View()
	assert.Equal(t, 0, vm.SelectedIndex)
	assert.Equal(t, "remember the milk", vm.Detail.Body)
}

func TestPermissionDeniedNotifies(t *testing.T) {
	h := newHarness(t, nil)
	h.audio.DevicesErr = errors.New("no devices")

	err := h.ctrl.Start(context.Background())
	require.ErrorIs(t, err, audio.ErrPermissionDenied)
	assert.Equal(t, recording.Idle, h.ctrl.Session().State())

	notices := h.Notices()
	require.Len(t, notices, 1)
	assert.ErrorIs(t, notices[0].Err, audio.ErrPermissionDenied)
	assert.Zero(t, h.events.Count(events.RecordingStarted))
}

func TestUploadFailureSurfaces(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.SetFail("save", http.StatusInternalServerError)

	_, err := h.record(t)
	require.Error(t, err)
	assert.ErrorIs(t, err, transcriber.ErrTransport)
	assert.Equal(t, recording.Idle, h.ctrl.Session().State())
	assert.Equal(t, 1, h.backend.Calls("save"), "no retry")

	notices := h.Notices()
	require.Len(t, notices, 1)
	assert.ErrorIs(t, notices[0].Err, transcriber.ErrTransport)
	assert.Zero(t, h.events.Count(events.TranscriptionReady))
}

func TestPollTimeoutShowsPending(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Poll.Interval = 50 * time.Millisecond
		cfg.Poll.MaxAttempts = 2
	})
	h.backend.SetSaveTranscript("slow words", 1000)

	res, err := h.record(t)
	require.NoError(t, err)
	require.True(t, res.Pending)

	require.Eventually(t, func() bool {
		return len(h.ctrl.Coordinator().ActivePolls()) == 1
	}, timeout, tick)
	detail, err := h.ctrl.Select(context.Background(), res.Filename)
	require.NoError(t, err)
	assert.Equal(t, catalog.DetailLoading, detail.Kind, "no fetch while polling")

	require.Eventually(t, func() bool {
		return h.ctrl.Detail().Kind == catalog.DetailPending
	}, timeout, tick)
	assert.Equal(t, 2, h.backend.Calls("get:"+res.Filename))
	assert.Zero(t, h.events.Count(events.TranscriptionReady))

	notices := h.Notices()
	require.Len(t, notices, 1)
	assert.NoError(t, notices[0].Err)
	assert.Contains(t, notices[0].Text, "taking longer than expected")

	// Selecting again checks once more; the backend answers on demand.
	detail, err = h.ctrl.Select(context.Background(), res.Filename)
	require.NoError(t, err)
	assert.Equal(t, catalog.DetailReady, detail.Kind)
	assert.Equal(t, "slow words", detail.Transcription.Text)
}

func TestSelectRightAfterUploadWaitsForPoll(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.SetSaveTranscript("later", 1000)

	res, err := h.record(t)
	require.NoError(t, err)
	require.True(t, res.Pending)

	detail, err := h.ctrl.Select(context.Background(), res.Filename)
	require.NoError(t, err)
	assert.Equal(t, catalog.DetailLoading, detail.Kind)
	assert.Zero(t, h.backend.Calls("transcribe"))
}

func TestEmptyPeerTranscriptEndsLoading(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Poll.Interval = 20 * time.Millisecond
		cfg.Poll.MaxAttempts = 1000
	})
	h.backend.SetSaveTranscript("never", 100000)

	res, err := h.record(t)
	require.NoError(t, err)
	require.True(t, res.Pending)
	require.Len(t, h.ctrl.Coordinator().ActivePolls(), 1)

	detail, err := h.ctrl.Select(context.Background(), res.Filename)
	require.NoError(t, err)
	require.Equal(t, catalog.DetailLoading, detail.Kind)

	require.NoError(t, h.ctrl.Dispatch(context.Background(), events.Command{Type: events.TranscriptionReady, Filename: res.Filename}))
	h.ctrl.Coordinator().Wait()

	assert.Empty(t, h.ctrl.Coordinator().ActivePolls())
	assert.Equal(t, catalog.DetailError, h.ctrl.View().Detail.Kind)
	assert.Equal(t, "Transcript is empty.", h.ctrl.View().Detail.Body)
	rec, _ := h.ctrl.Catalog().Get(res.Filename)
	assert.True(t, rec.HasTranscription)
}

func TestSelectFallsBackToTranscribe(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.Add(model.Recording{Filename: "a.flac", Timestamp: "20240301_101500"}, "")
	h.backend.Add(model.Recording{Filename: "b.flac", Timestamp: "20240301_111500"}, "")
	h.ctrl.Reload(context.Background())

	h.backend.SetTranscribeText("on demand")
	detail, err := h.ctrl.Select(context.Background(), "a.flac")
	require.NoError(t, err)
	assert.Equal(t, catalog.DetailReady, detail.Kind)
	assert.Equal(t, 1, h.backend.Calls("transcribe"))
	rec, _ := h.ctrl.Catalog().Get("a.flac")
	assert.True(t, rec.HasTranscription)

	h.backend.SetTranscribeText("")
	detail, err = h.ctrl.Select(context.Background(), "b.flac")
	require.Error(t, err)
	assert.Equal(t, catalog.DetailError, detail.Kind)
	assert.Equal(t, catalog.DetailError, h.ctrl.View().Detail.Kind)

	_, err = h.ctrl.Select(context.Background(), "missing.flac")
	assert.ErrorIs(t, err, ErrUnknown)
}

func TestDeleteNeedsConfirmation(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.Add(model.Recording{Filename: "a.flac", Timestamp: "20240301_101500"}, "hello")
	h.ctrl.Reload(context.Background())
	_, err := h.ctrl.Select(context.Background(), "a.flac")
	require.NoError(t, err)

	ctx := context.Background()
	assert.ErrorIs(t, h.ctrl.Delete(ctx, "a.flac", nil), ErrNotConfirmed)
	var asked model.Recording
	assert.ErrorIs(t, h.ctrl.Delete(ctx, "a.flac", func(r model.Recording) bool {
		asked = r
		return false
	}), ErrNotConfirmed)
	assert.Equal(t, "a.flac", asked.Filename)
	assert.True(t, h.backend.Has("a.flac"))
	assert.Zero(t, h.backend.Calls("delete"))

	require.NoError(t, h.ctrl.Delete(ctx, "a.flac", func(model.Recording) bool { return true }))
	assert.False(t, h.backend.Has("a.flac"))
	assert.Equal(t, catalog.DetailState{}, h.ctrl.Detail())

	vm := h.ctrl.View()
	assert.Equal(t, catalog.DetailEmpty, vm.Detail.Kind)
	assert.Equal(t, -1, vm.SelectedIndex)
	assert.Zero(t, vm.Stats.Count)

	assert.ErrorIs(t, h.ctrl.Delete(ctx, "a.flac", func(model.Recording) bool { return true }), ErrUnknown)
}

func TestDeleteFailureKeepsEntry(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.Add(model.Recording{Filename: "a.flac", Timestamp: "20240301_101500"}, "")
	h.ctrl.Reload(context.Background())
	h.backend.SetFail("delete", http.StatusInternalServerError)

	err := h.ctrl.Delete(context.Background(), "a.flac", func(model.Recording) bool { return true })
	require.ErrorIs(t, err, transcriber.ErrTransport)
	_, ok := h.ctrl.Catalog().Get("a.flac")
	assert.True(t, ok)
	assert.Len(t, h.Notices(), 1)
}

func TestRunDispatchesCommands(t *testing.T) {
	h := newHarness(t, nil)
	h.backend.SetSaveTranscript("dictated", 0)
	h.backend.Add(model.Recording{Filename: "peer.flac", Timestamp: "20240301_101500"}, "")
	h.ctrl.Reload(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	commands := make(chan events.Command)
	done := make(chan struct{})
	go func() {
		h.ctrl.Run(ctx, commands)
		close(done)
	}()

	commands <- events.Command{Type: events.StartRecording}
	require.Eventually(t, func() bool {
		return h.ctrl.Session().State() == recording.Recording
	}, timeout, tick)
	<-h.audio.Last().AudioDone()
	commands <- events.Command{Type: events.StartRecording}
	commands <- events.Command{Type: events.StopRecording}
	require.Eventually(t, func() bool {
		return h.backend.Calls("save") == 1 && h.ctrl.Session().State() == recording.Idle
	}, timeout, tick)
	assert.Len(t, h.audio.Captures(), 1, "second start ignored")

	tr := &model.Transcription{Text: "from a peer"}
	commands <- events.Command{Type: events.TranscriptionReady, Filename: "peer.flac", Transcription: tr}
	commands <- events.Command{Type: events.TranscriptionReady, Filename: "peer.flac", Transcription: tr}
	require.Eventually(t, func() bool {
		rec, _ := h.ctrl.Catalog().Get("peer.flac")
		return rec.HasTranscription
	}, timeout, tick)

	cancel()
	<-done

	ready := 0
	for _, ev := range h.events.Events() {
		if ev.Type == events.TranscriptionReady && ev.Data.(events.TranscriptionReadyData).Filename == "peer.flac" {
			ready++
		}
	}
	assert.Equal(t, 1, ready)

	var unknown *events.UnknownCommandError
	assert.ErrorAs(t, h.ctrl.Dispatch(context.Background(), events.Command{Type: "dance"}), &unknown)
}

func TestCloseDiscardsRecording(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.ctrl.Start(context.Background()))
	dev := h.audio.Last()

	require.NoError(t, h.ctrl.Close())
	require.NoError(t, h.ctrl.Close())

	assert.Equal(t, recording.Idle, h.ctrl.Session().State())
	assert.Equal(t, 1, dev.Closes())
	assert.Zero(t, h.backend.Calls("save"))
	assert.ErrorIs(t, h.ctrl.Start(context.Background()), ErrClosed)
}

func TestToggle(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	require.NoError(t, h.ctrl.Toggle(ctx))
	assert.Equal(t, recording.Recording, h.ctrl.Session().State())
	h.ctrl.Pause()
	assert.Equal(t, recording.Paused, h.ctrl.Session().State())
	h.ctrl.Resume()
	<-h.audio.Last().AudioDone()
	require.NoError(t, h.ctrl.Toggle(ctx))
	assert.Equal(t, recording.Idle, h.ctrl.Session().State())
	assert.Equal(t, 1, h.backend.Calls("save"))
}
