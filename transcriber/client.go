package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"thoughtcap/encoder"
	"thoughtcap/model"
)

const (
	DefaultBaseURL = "http://localhost:8000"

	apiPrefix       = "/api/thought-capture"
	requestIDHeader = "X-Request-ID"
)

// API is the transcription backend.
type API interface {
	List(ctx context.Context) ([]model.Recording, error)
	Save(ctx context.Context, art *encoder.Artifact, durationSeconds int) (UploadResult, error)
	GetTranscription(ctx context.Context, filename string) (*model.Transcription, error)
	Transcribe(ctx context.Context, filename string) (*model.Transcription, error)
	Delete(ctx context.Context, filename string) error
}

type UploadResult struct {
	Filename string `json:"filename"`
	Pending  bool   `json:"transcription_pending"`
}

type listResponse struct {
	Files []model.Recording `json:"files"`
}

type transcriptResponse struct {
	Success       bool                 `json:"success"`
	Transcription *model.Transcription `json:"transcription,omitempty"`
	Error         string               `json:"error,omitempty"`
}

// Client talks to the backend over HTTP. Safe for concurrent use.
type Client struct {
	base   string
	client *TracedClient
	log    zerolog.Logger
}

func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	log = log.With().Str("component", "api").Logger()
	return &Client{
		base:   strings.TrimRight(baseURL, "/"),
		client: NewTracedClient(timeout, log),
		log:    log,
	}
}

func (c *Client) BaseURL() string { return c.base }

func (c *Client) endpoint(name, filename string) string {
	u := c.base + apiPrefix + "/" + name
	if filename != "" {
		u += "/" + url.PathEscape(filename)
	}
	return u
}

func (c *Client) do(ctx context.Context, op, method, target string, body io.Reader, contentType string) (*TracedResponse, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	req.Header.Set(requestIDHeader, uuid.NewString())
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	if !resp.OK() {
		return nil, &TransportError{Op: op, Status: resp.StatusCode, Err: errors.New(snippet(resp.Body))}
	}
	return resp, nil
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	if s == "" {
		return "empty response"
	}
	return s
}

func decode(op string, resp *TracedResponse, v any) error {
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return &TransportError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) List(ctx context.Context) ([]model.Recording, error) {
	resp, err := c.do(ctx, "list", http.MethodGet, c.endpoint("list-audios", ""), nil, "")
	if err != nil {
		return nil, err
	}
	var out listResponse
	if err := decode("list", resp, &out); err != nil {
		return nil, err
	}
	return out.Files, nil
}

func (c *Client) Save(ctx context.Context, art *encoder.Artifact, durationSeconds int) (UploadResult, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("audio", art.Filename)
	if err != nil {
		return UploadResult{}, &TransportError{Op: "save", Err: err}
	}
	if _, err := part.Write(art.Data); err != nil {
		return UploadResult{}, &TransportError{Op: "save", Err: err}
	}
	writer.WriteField("duration", strconv.Itoa(durationSeconds))
	writer.Close()

	resp, err := c.do(ctx, "save", http.MethodPost, c.endpoint("save-audio", ""), &body, writer.FormDataContentType())
	if err != nil {
		return UploadResult{}, err
	}
	var out UploadResult
	if err := decode("save", resp, &out); err != nil {
		return UploadResult{}, err
	}
	if out.Filename == "" {
		return UploadResult{}, &TransportError{Op: "save", Status: resp.StatusCode, Err: errors.New("response carries no filename")}
	}
	c.log.Info().
		Str("filename", out.Filename).
		Bool("pending", out.Pending).
		Int("bytes", len(art.Data)).
		Dur("upload", resp.Metrics.Total).
		Msg("uploaded")
	return out, nil
}

func (c *Client) transcript(ctx context.Context, op, method, name, filename string) (*model.Transcription, error) {
	resp, err := c.do(ctx, op, method, c.endpoint(name, filename), nil, "")
	if err != nil {
		return nil, err
	}
	var out transcriptResponse
	if err := decode(op, resp, &out); err != nil {
		return nil, err
	}
	if !out.Success || out.Transcription.Empty() {
		return nil, ErrNoTranscript
	}
	return out.Transcription, nil
}

// GetTranscription returns ErrNoTranscript while the backend has nothing yet.
func (c *Client) GetTranscription(ctx context.Context, filename string) (*model.Transcription, error) {
	return c.transcript(ctx, "get-transcription", http.MethodGet, "get-transcription", filename)
}

// Transcribe asks the backend to transcribe now and waits for the result.
func (c *Client) Transcribe(ctx context.Context, filename string) (*model.Transcription, error) {
	return c.transcript(ctx, "transcribe", http.MethodPost, "transcribe", filename)
}

func (c *Client) Delete(ctx context.Context, filename string) error {
	_, err := c.do(ctx, "delete", http.MethodDelete, c.endpoint("delete-audio", filename), nil, "")
	return err
}
