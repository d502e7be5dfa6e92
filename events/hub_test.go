package events

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialHub(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(NewRouter(h))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func TestHubBroadcastsEvents(t *testing.T) {
	h := NewHub(zerolog.Nop())
	defer h.Close()
	conn := dialHub(t, h)

	h.Publish(New(RecordingStopped, RecordingStoppedData{Duration: 12, EstimatedSize: 192000}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var got struct {
		ID   string               `json:"id"`
		Type Type                 `json:"type"`
		Data RecordingStoppedData `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, RecordingStopped, got.Type)
	assert.Equal(t, 12, got.Data.Duration)
	assert.Equal(t, int64(192000), got.Data.EstimatedSize)
}

func TestHubDeliversCommands(t *testing.T) {
	h := NewHub(zerolog.Nop())
	defer h.Close()
	conn := dialHub(t, h)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"bogus"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"transcription_ready","data":{"filename":"r1.webm","transcription":{"text":"hello","segments":[]}}}`)))

	select {
	case cmd := <-h.Commands():
		assert.Equal(t, TranscriptionReady, cmd.Type)
		assert.Equal(t, "r1.webm", cmd.Filename)
		require.NotNil(t, cmd.Transcription)
		assert.Equal(t, "hello", cmd.Transcription.Text)
	case <-time.After(2 * time.Second):
		t.Fatal("command not delivered")
	}
}

func TestHubCloseDisconnects(t *testing.T) {
	h := NewHub(zerolog.Nop())
	conn := dialHub(t, h)

	h.Close()
	h.Close()
	assert.Equal(t, 0, h.ClientCount())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)

	h.Publish(New(RecordingStarted, nil))
}

func TestHealthz(t *testing.T) {
	h := NewHub(zerolog.Nop())
	defer h.Close()

	rec := httptest.NewRecorder()
	NewRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"subscribers":0`)
}

func TestDecodeCommand(t *testing.T) {
	cmd, err := DecodeCommand([]byte(`{"type":"start_recording"}`))
	require.NoError(t, err)
	assert.Equal(t, StartRecording, cmd.Type)

	cmd, err = DecodeCommand([]byte(`{"type":"stop_recording"}`))
	require.NoError(t, err)
	assert.Equal(t, StopRecording, cmd.Type)

	_, err = DecodeCommand([]byte(`{"type":"transcription_ready"}`))
	assert.Error(t, err)

	_, err = DecodeCommand([]byte(`{"type":"transcription_ready","data":{"filename":""}}`))
	assert.Error(t, err)

	_, err = DecodeCommand([]byte(`{"type":"audio_level"}`))
	var unknown *UnknownCommandError
	assert.ErrorAs(t, err, &unknown)

	_, err = DecodeCommand([]byte(`not json`))
	assert.Error(t, err)
}

func TestBuffer(t *testing.T) {
	var b Buffer
	Fanout{&b, nil, Nop}.Publish(New(RecordingStarted, nil))
	b.Publish(New(RecordingPaused, nil))
	b.Publish(New(RecordingStarted, nil))

	assert.Equal(t, 2, b.Count(RecordingStarted))
	assert.Equal(t, []Type{RecordingStarted, RecordingPaused, RecordingStarted}, b.Types())
	_, ok := b.Last(StatsUpdate)
	assert.False(t, ok)
}
