// Package tts is the client for the VOICEVOX-compatible speech synthesis
// HTTP service. Synthesis is a two-step protocol: an audio query is built
// from the text, mutated with per-line prosody overrides, and submitted for
// rendering to WAV.
package tts

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/zundamotion/zundamotion/internal/config"
	"github.com/zundamotion/zundamotion/internal/version"
)

// Default retry tuning. Synthesis engines often queue requests, so delays
// start high and stay bounded.
const (
	defaultRetryDelay    = 4 * time.Second
	defaultRetryMaxDelay = 10 * time.Second
	defaultAttempts      = 5
)

// ErrMaxRetries is returned after all synthesis attempts fail.
var ErrMaxRetries = errors.New("max retries exceeded")

// EngineError reports a non-retryable response from the synthesis service.
type EngineError struct {
	StatusCode int
	Body       string
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("synthesis engine returned %d: %s", e.StatusCode, e.Body)
}

// Request is one line of speech to synthesize.
type Request struct {
	Text    string
	Speaker int
	Speed   float64 // 1.0 = engine default
	Pitch   float64 // 0.0 = engine default
}

// Client talks to the synthesis engine with retries and transparent
// response decompression.
type Client struct {
	baseURL    string
	httpClient *http.Client
	attempts   int
	retryDelay time.Duration
	maxDelay   time.Duration
	logger     *slog.Logger
}

// NewClient builds a client from configuration.
func NewClient(cfg config.TTSConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
		attempts:   attempts,
		retryDelay: defaultRetryDelay,
		maxDelay:   defaultRetryMaxDelay,
		logger:     logger.With(slog.String("component", "tts")),
	}
}

// Synthesize renders one line to WAV bytes.
func (c *Client) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	query, err := c.audioQuery(ctx, req)
	if err != nil {
		return nil, err
	}

	// Prosody overrides are applied client-side on the query object, so the
	// engine renders exactly what the cache key describes.
	query["speedScale"] = req.Speed
	query["pitchScale"] = req.Pitch

	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("encoding audio query: %w", err)
	}

	wav, err := c.post(ctx,
		fmt.Sprintf("%s/synthesis?speaker=%d", c.baseURL, req.Speaker),
		"application/json", body)
	if err != nil {
		return nil, fmt.Errorf("synthesizing speech: %w", err)
	}
	return wav, nil
}

// audioQuery asks the engine for the synthesis parameters of the text.
func (c *Client) audioQuery(ctx context.Context, req Request) (map[string]any, error) {
	u := fmt.Sprintf("%s/audio_query?text=%s&speaker=%d",
		c.baseURL, url.QueryEscape(req.Text), req.Speaker)

	raw, err := c.post(ctx, u, "", nil)
	if err != nil {
		return nil, fmt.Errorf("building audio query: %w", err)
	}

	var query map[string]any
	if err := json.Unmarshal(raw, &query); err != nil {
		return nil, fmt.Errorf("parsing audio query: %w", err)
	}
	return query, nil
}

// post issues a POST with retries and exponential backoff. Client errors
// (4xx) fail immediately; everything else retries.
func (c *Client) post(ctx context.Context, u, contentType string, body []byte) ([]byte, error) {
	var lastErr error
	delay := c.retryDelay

	for attempt := 0; attempt < c.attempts; attempt++ {
		if attempt > 0 {
			c.logger.Debug("retrying synthesis request",
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		data, err := c.postOnce(ctx, u, contentType, body)
		if err == nil {
			return data, nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		var engineErr *EngineError
		if errors.As(err, &engineErr) && engineErr.StatusCode >= 400 && engineErr.StatusCode < 500 {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrMaxRetries, lastErr)
}

func (c *Client) postOnce(ctx context.Context, u, contentType string, body []byte) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, rd)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	reader, err := decompressed(resp)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := string(data)
		if len(msg) > 256 {
			msg = msg[:256]
		}
		return nil, &EngineError{StatusCode: resp.StatusCode, Body: msg}
	}
	return data, nil
}

// decompressed wraps the response body according to Content-Encoding.
func decompressed(resp *http.Response) (io.ReadCloser, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "br":
		return io.NopCloser(brotli.NewReader(resp.Body)), nil
	case "gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("initializing gzip reader: %w", err)
		}
		return zr, nil
	case "deflate":
		return flate.NewReader(resp.Body), nil
	default:
		return resp.Body, nil
	}
}

// Speakers fetches the engine's speaker catalog, for diagnostics.
func (c *Client) Speakers(ctx context.Context) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/speakers", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("listing speakers: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading speakers: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &EngineError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}
