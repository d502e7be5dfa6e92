package doctor

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thoughtcap/audio"
	"thoughtcap/model"
	"thoughtcap/transcriber"
)

type memClipboard struct {
	text    string
	copyErr error
}

func (m *memClipboard) Copy(text string) error {
	if m.copyErr != nil {
		return m.copyErr
	}
	m.text = text
	return nil
}

func (m *memClipboard) Read() (string, error) { return m.text, nil }

func backend(t *testing.T) (*transcriber.FakeBackend, *transcriber.Client, string) {
	t.Helper()
	fb := transcriber.NewFakeBackend()
	srv := httptest.NewServer(fb)
	t.Cleanup(srv.Close)
	return fb, transcriber.NewClient(srv.URL, time.Second, zerolog.Nop()), srv.URL
}

func TestAllChecksPass(t *testing.T) {
	fb, client, url := backend(t)
	fb.Add(model.Recording{Filename: "a.flac", Timestamp: "20240301_101500"}, "hello")

	clip := &memClipboard{text: "keep me"}
	deps := Deps{
		Audio:      audio.NewFakeContext(make([]byte, 3200)),
		Capture:    20 * time.Millisecond,
		Backend:    client,
		BackendURL: url,
		Clipboard:  clip,
		Hotkey:     func() (string, error) { return "Ctrl+Shift+Space available", nil },
	}

	var out bytes.Buffer
	code := Run(context.Background(), &out, Checks(deps))
	assert.Equal(t, 0, code, out.String())
	assert.Contains(t, out.String(), "[1/4] Microphone")
	assert.Contains(t, out.String(), "fake: captured 3.1 KiB")
	assert.Contains(t, out.String(), "1 recording(s), 1 transcribed")
	assert.Contains(t, out.String(), "All checks passed!")
	assert.Equal(t, "keep me", clip.text, "clipboard restored")
}

func TestFailuresAndSkips(t *testing.T) {
	fb, client, url := backend(t)
	fb.SetFail("list", http.StatusBadGateway)

	actx := audio.NewFakeContext(nil)
	actx.DevicesErr = errors.New("access denied")

	deps := Deps{
		Audio:      actx,
		Backend:    client,
		BackendURL: url,
		Clipboard:  &memClipboard{copyErr: errors.New("no xclip")},
	}

	var out bytes.Buffer
	code := Run(context.Background(), &out, Checks(deps))
	assert.Equal(t, 1, code)
	s := out.String()
	assert.Contains(t, s, "FAIL: "+audio.ErrPermissionDenied.Error())
	assert.Contains(t, s, "status 502")
	assert.Contains(t, s, "no xclip")
	assert.Contains(t, s, "SKIP: hotkey disabled")
	assert.Contains(t, s, "3 check(s) failed")
}

func TestMicrophoneSilentCapture(t *testing.T) {
	deps := Deps{Audio: audio.NewFakeContext(nil), Capture: 10 * time.Millisecond}
	_, err := deps.checkMicrophone(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no audio captured")

	deps.Audio = audio.NewFakeContext(make([]byte, 640))
	msg, err := deps.checkMicrophone(context.Background())
	require.NoError(t, err)
	assert.Contains(t, msg, "silent")
}
