// Package client implements the HTTP client for the workflow backend. All
// requests share one cookie jar so the session established at login rides
// along with every subsequent call, mirroring how the backend tracks jobs
// per browser session.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/voxmail/voxmail/internal/audio"
)

// Status values reported by the job check endpoints.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
	StatusNotFound   = "not_found"
)

// Config contains API client configuration
type Config struct {
	// BaseURL of the workflow backend
	BaseURL string

	// Timeout for each request
	Timeout time.Duration
}

// StatusResponse is the payload of the job check endpoints
type StatusResponse struct {
	Status        string `json:"status"`
	Transcription string `json:"transcription,omitempty"`
	Summary       string `json:"summary,omitempty"`
	Error         string `json:"error,omitempty"`
}

// SummaryResponse is the payload of the summarize endpoint. Either Status
// is "processing" or the result fields carry a synchronous answer.
type SummaryResponse struct {
	Status       string `json:"status,omitempty"`
	Summary      string `json:"summary,omitempty"`
	KeyElements  string `json:"key_elements,omitempty"`
	EmailContent string `json:"email_content,omitempty"`
	Error        string `json:"error,omitempty"`
}

// EmailRequest is the payload of the send-email endpoint
type EmailRequest struct {
	SenderEmail string   `json:"sender_email"`
	Recipients  []string `json:"recipients"`
	Subject     string   `json:"subject"`
	Content     string   `json:"content"`
}

// Client talks to the workflow backend over HTTP
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a Client with a fresh cookie jar
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Jar:     jar,
			Timeout: timeout,
		},
		logger: logger,
	}, nil
}

// Login authenticates against the backend and stores the session cookie.
// The backend keys users by email and authorizes them with a static key.
func (c *Client) Login(ctx context.Context, email, key string) error {
	endpoint := fmt.Sprintf("%s/?email=%s&key=%s",
		c.baseURL, url.QueryEscape(email), url.QueryEscape(key))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create login request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrUnauthorized
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login failed with status %d", resp.StatusCode)
	}

	c.logger.Info("Logged in",
		slog.String("email", email),
	)

	return nil
}

// SubmitTranscription uploads an audio payload for transcription. The
// backend registers a background job for the session and returns
// immediately; results are retrieved with CheckTranscription.
func (c *Client) SubmitTranscription(ctx context.Context, payload *audio.Payload) error {
	if payload == nil || payload.Size() == 0 {
		return fmt.Errorf("audio payload cannot be empty")
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("audio_file", payload.Filename)
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := part.Write(payload.Data); err != nil {
		return fmt.Errorf("failed to write audio data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/transcription", &buf)
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted:
	case http.StatusUnauthorized:
		io.Copy(io.Discard, resp.Body)
		return ErrUnauthorized
	case http.StatusTooManyRequests:
		io.Copy(io.Discard, resp.Body)
		return ErrQuotaExceeded
	default:
		return serverError(resp, "upload")
	}
	io.Copy(io.Discard, resp.Body)

	c.logger.Info("Transcription submitted",
		slog.Int("payload_bytes", payload.Size()),
	)

	return nil
}

// CheckTranscription retrieves the status of the session's transcription job
func (c *Client) CheckTranscription(ctx context.Context) (*StatusResponse, error) {
	return c.checkStatus(ctx, "/check-transcription")
}

// SubmitSummary asks the backend to summarize a transcription. The endpoint
// may answer synchronously with the full result or acknowledge with a
// processing status that requires polling; callers branch on the response.
func (c *Client) SubmitSummary(ctx context.Context, transcription string) (*SummaryResponse, error) {
	if strings.TrimSpace(transcription) == "" {
		return nil, fmt.Errorf("transcription text cannot be empty")
	}

	body, err := json.Marshal(map[string]string{
		"transcription_text": transcription,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode summary request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/summarize", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create summary request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("summary request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted:
	case http.StatusUnauthorized:
		io.Copy(io.Discard, resp.Body)
		return nil, ErrUnauthorized
	default:
		return nil, serverError(resp, "summary submission")
	}

	var summary SummaryResponse
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		return nil, fmt.Errorf("failed to decode summary response: %w", err)
	}

	c.logger.Info("Summary submitted",
		slog.Int("transcription_chars", len(transcription)),
		slog.Bool("synchronous", summary.Status != StatusProcessing),
	)

	return &summary, nil
}

// CheckSummary retrieves the status of the session's summary job
func (c *Client) CheckSummary(ctx context.Context) (*StatusResponse, error) {
	return c.checkStatus(ctx, "/check-summary")
}

// checkStatus performs one GET against a job check endpoint
func (c *Client) checkStatus(ctx context.Context, path string) (*StatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create status request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		io.Copy(io.Discard, resp.Body)
		return nil, ErrUnauthorized
	}

	if resp.StatusCode != http.StatusOK {
		return nil, serverError(resp, "status request")
	}

	var status StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode status response: %w", err)
	}

	return &status, nil
}

// serverError reads a failed response and surfaces the backend's
// {"error": ...} message verbatim when one is present, so the user sees
// the server's own text rather than a status code.
func serverError(resp *http.Response, action string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		return errors.New(payload.Error)
	}

	return fmt.Errorf("%s failed with status %d", action, resp.StatusCode)
}

// SendEmail dispatches the summary email through the backend
func (c *Client) SendEmail(ctx context.Context, email EmailRequest) error {
	body, err := json.Marshal(email)
	if err != nil {
		return fmt.Errorf("failed to encode email request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/send-email", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("email request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		io.Copy(io.Discard, resp.Body)
		return ErrUnauthorized
	default:
		return serverError(resp, "email dispatch")
	}
	io.Copy(io.Discard, resp.Body)

	c.logger.Info("Email dispatched",
		slog.Int("recipients", len(email.Recipients)),
	)

	return nil
}

// Health checks backend availability
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend unhealthy: status %d", resp.StatusCode)
	}

	return nil
}
