// Package llm is the HTTP client for the external generation backend. Calls
// are guarded by composed timeouts and a bounded retry loop with exponential
// backoff; a read timeout additionally fires a quiet health probe so a cold
// cluster can start warming up between attempts.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Config holds the tunables for one client. The read timeout is the long one:
// the backend may sit behind a cold model shard and take most of a minute to
// produce response headers.
type Config struct {
	BaseURL        string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	PoolTimeout    time.Duration
	Retries        int // total attempts = Retries + 1
	Backoff        time.Duration
}

// GenerateResponse is the payload shape shared by all generation endpoints.
type GenerateResponse struct {
	Output          string `json:"output"`
	Model           string `json:"model"`
	PromptTokens    int    `json:"prompt_tokens"`
	GeneratedTokens int    `json:"generated_tokens"`
}

// TimeoutError marks a call that exceeded its read deadline after all retries.
type TimeoutError struct {
	Path string
	Err  error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("llm: %s timed out: %v", e.Path, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// TransportError marks a network-level failure (refused connection, DNS, ...).
type TransportError struct {
	Path string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("llm: %s transport failure: %v", e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusError marks a non-2xx response from the backend.
type StatusError struct {
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llm: %s returned status %d: %s", e.Path, e.StatusCode, e.Body)
}

// Client performs calls against one backend base URL.
type Client struct {
	cfg  Config
	http *http.Client

	// sleep waits for the backoff delay; tests swap it out.
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a client from cfg. The connect budget maps to the dialer, the
// read budget to the response-header deadline, and the write and pool budgets
// fold into the overall per-attempt cap (Go's transport has no separate
// knobs for them).
func New(cfg Config) *Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: cfg.ConnectTimeout,
		}).DialContext,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.ReadTimeout,
		MaxIdleConnsPerHost:   4,
	}
	total := cfg.ConnectTimeout + cfg.ReadTimeout + cfg.WriteTimeout + cfg.PoolTimeout
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Transport: transport,
			Timeout:   total,
		},
		sleep: sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Generate maps to POST /v1/generate.
func (c *Client) Generate(ctx context.Context, payload any) (*GenerateResponse, int64, error) {
	return c.post(ctx, "/v1/generate", payload)
}

// Chat maps to POST /v1/chat.
func (c *Client) Chat(ctx context.Context, payload any) (*GenerateResponse, int64, error) {
	return c.post(ctx, "/v1/chat", payload)
}

// AnswerFeedback maps to POST /v1/survey/answer_feedback.
func (c *Client) AnswerFeedback(ctx context.Context, payload any) (*GenerateResponse, int64, error) {
	return c.post(ctx, "/v1/survey/answer_feedback", payload)
}

// FinalFeedback maps to POST /v1/survey/final_feedback.
func (c *Client) FinalFeedback(ctx context.Context, payload any) (*GenerateResponse, int64, error) {
	return c.post(ctx, "/v1/survey/final_feedback", payload)
}

// Healthz reports whether the backend answers GET /healthz with a 2xx. It
// goes through the same retry loop as every other call and never surfaces an
// error; callers only want the boolean gate.
func (c *Client) Healthz(ctx context.Context) bool {
	return c.get(ctx, "/healthz") == nil
}

// post runs the bounded-retry loop and returns the decoded body plus elapsed
// wall time in milliseconds across all attempts.
func (c *Client) post(ctx context.Context, path string, payload any) (*GenerateResponse, int64, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("llm: encode %s payload: %w", path, err)
	}
	start := time.Now()
	var lastErr error
	for attempt := 0; ; attempt++ {
		out, err := c.attempt(ctx, http.MethodPost, path, body)
		if err == nil {
			return out, time.Since(start).Milliseconds(), nil
		}
		lastErr = err
		if attempt >= c.cfg.Retries {
			return nil, time.Since(start).Milliseconds(), lastErr
		}
		// A read timeout during shard warmup: poke the health endpoint so the
		// cluster spins up. The probe result never changes the retry decision.
		var te *TimeoutError
		if errors.As(err, &te) {
			c.probeQuietly(ctx)
		}
		if err := c.sleep(ctx, c.cfg.Backoff*(1<<attempt)); err != nil {
			return nil, time.Since(start).Milliseconds(), lastErr
		}
	}
}

func (c *Client) get(ctx context.Context, path string) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		_, err := c.attempt(ctx, http.MethodGet, path, nil)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt >= c.cfg.Retries {
			return lastErr
		}
		var te *TimeoutError
		if errors.As(err, &te) {
			c.probeQuietly(ctx)
		}
		if err := c.sleep(ctx, c.cfg.Backoff*(1<<attempt)); err != nil {
			return lastErr
		}
	}
}

// attempt performs a single request and classifies failures.
func (c *Client) attempt(ctx context.Context, method, path string, body []byte) (*GenerateResponse, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, &TransportError{Path: path, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classify(path, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classify(path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Path: path, StatusCode: resp.StatusCode, Body: truncate(string(b), 200)}
	}

	var out GenerateResponse
	if len(b) > 0 {
		if err := json.Unmarshal(b, &out); err != nil {
			return nil, &TransportError{Path: path, Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	return &out, nil
}

// probeQuietly fires a single best-effort GET /healthz, swallowing any failure.
func (c *Client) probeQuietly(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/healthz", nil)
	if err != nil {
		return
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

func classify(path string, err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &TimeoutError{Path: path, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Path: path, Err: err}
	}
	return &TransportError{Path: path, Err: err}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
