// Package api is the typed client for the legal-research backend. Every call
// goes through a retry loop gated by a per-endpoint circuit breaker; failures
// normalize to *Error with the backend's error-code taxonomy.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/barrister-ai/barrister/internal/resilience"
)

const (
	defaultTimeout      = 60 * time.Second
	maxResponseBodySize = 4 << 20 // 4MB
)

// Endpoint keys for circuit breaking. Each key fails independently.
const (
	EndpointChat      = "chat"
	EndpointSearch    = "search"
	EndpointFeedback  = "feedback"
	EndpointWorkspace = "workspace"
	EndpointAuth      = "auth"
)

// ClientConfig carries the dependencies for a Client. Zero values select
// defaults; Breakers and Tracker may be nil to disable those layers.
type ClientConfig struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Retry      resilience.RetryConfig
	Breakers   *resilience.BreakerSet
	Tracker    *resilience.Tracker
}

// Client communicates with the legal-research backend over JSON/HTTPS.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      resilience.RetryConfig
	breakers   *resilience.BreakerSet
	tracker    *resilience.Tracker
	logger     *slog.Logger

	mu    sync.RWMutex
	token string

	// sleep is swapped out by tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a Client for the given backend.
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	retry := cfg.Retry
	if retry.MaxRetries == 0 && retry.BaseDelay == 0 {
		retry = resilience.DefaultRetryConfig()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: httpClient,
		retry:      retry,
		breakers:   cfg.Breakers,
		tracker:    cfg.Tracker,
		logger:     slog.Default(),
		sleep:      sleepContext,
	}
}

// SetToken replaces the bearer token used for subsequent requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current bearer token ("" when unauthenticated).
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// BreakerStatus exposes the circuit state of one endpoint for display.
func (c *Client) BreakerStatus(endpoint string) resilience.BreakerStatus {
	if c.breakers == nil {
		return resilience.BreakerStatus{}
	}
	return c.breakers.Status(endpoint)
}

// SendChat sends one conversational turn and returns the generated answer
// with its citations.
func (c *Client) SendChat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if len(req.Messages) > MaxHistoryMessages {
		req.Messages = req.Messages[len(req.Messages)-MaxHistoryMessages:]
	}
	var resp ChatResponse
	if err := c.do(ctx, EndpointChat, "chat", http.MethodPost, "/v1/chat", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Search runs an authenticated search. A partial backend failure is still a
// success response; inspect Status and Sources for per-source detail.
func (c *Client) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	var resp SearchResponse
	trackKey := "search:" + req.Query
	if err := c.do(ctx, EndpointSearch, trackKey, http.MethodPost, "/v1/search", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SendFeedback records a thumbs-up/down on a generated answer.
func (c *Client) SendFeedback(ctx context.Context, req FeedbackRequest) error {
	return c.do(ctx, EndpointFeedback, "feedback", http.MethodPost, "/v1/feedback", req, nil)
}

// UploadDocument adds one document to the caller's workspace corpus.
func (c *Client) UploadDocument(ctx context.Context, req UploadDocumentRequest) (*UploadDocumentResponse, error) {
	var resp UploadDocumentResponse
	if err := c.do(ctx, EndpointWorkspace, "workspace", http.MethodPost, "/v1/workspace/documents", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Login exchanges an email for a bearer token. The caller is responsible for
// persisting the token and installing it via SetToken.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	var resp LoginResponse
	if err := c.do(ctx, EndpointAuth, "auth", http.MethodPost, "/auth/login", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// do runs the attempt loop for one logical request: circuit gate, HTTP call,
// retry classification, server-directed or exponential delay, breaker and
// tracker bookkeeping. attempt counts retries (0 = first retry).
func (c *Client) do(ctx context.Context, endpoint, trackKey, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = b
	}

	var br *resilience.Breaker
	if c.breakers != nil {
		br = c.breakers.Get(endpoint)
	}

	for attempt := 0; ; attempt++ {
		if br != nil && !br.Allow() {
			st := br.Status()
			notRetryable := false
			return &Error{
				Code:      CodeServiceUnavailable,
				Message:   fmt.Sprintf("%s is temporarily unavailable; retrying in %s", endpoint, st.RecoveryTime.Round(time.Second)),
				Retryable: &notRetryable,
			}
		}

		apiErr, rateLimit := c.attempt(ctx, method, path, body, out)
		if apiErr == nil {
			if br != nil {
				br.RecordSuccess()
			}
			if attempt > 0 {
				c.trackEnd(trackKey, attempt)
			}
			return nil
		}

		if br != nil {
			br.RecordFailure()
		}

		// Context cancellation is never retried.
		if ctx.Err() != nil {
			c.trackEnd(trackKey, attempt)
			return apiErr
		}

		retryable := resilience.ShouldRetry(apiErr, apiErr.Status)
		if !retryable || attempt >= c.retry.MaxRetries {
			if retryable && c.tracker != nil {
				c.tracker.SetMaxExceeded(trackKey)
			}
			c.trackEnd(trackKey, attempt)
			return apiErr
		}

		delay := resilience.RetryDelay(apiErr, rateLimit, attempt, c.retry)
		if c.tracker != nil {
			c.tracker.StartRetry(trackKey)
			c.tracker.IncrementRetry(trackKey)
		}
		c.logger.Debug("retrying request",
			"endpoint", endpoint,
			"status", apiErr.Status,
			"attempt", attempt+1,
			"delay", delay,
		)
		if err := c.sleep(ctx, delay); err != nil {
			c.trackEnd(trackKey, attempt)
			return apiErr
		}
	}
}

func (c *Client) trackEnd(trackKey string, retries int) {
	if c.tracker == nil {
		return
	}
	c.tracker.EndRetry(trackKey)
	c.tracker.UpdateRetryCount(trackKey, retries)
}

// attempt performs a single HTTP round trip. A nil *Error means success with
// out populated; otherwise the error carries the normalized failure and the
// returned RateLimit carries any Retry-After header hint.
func (c *Client) attempt(ctx context.Context, method, path string, body []byte, out any) (*Error, *resilience.RateLimit) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return &Error{Status: 0, Message: fmt.Sprintf("creating request: %v", err)}, nil
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Status: 0, Message: err.Error()}, nil
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return &Error{Status: 0, Message: fmt.Sprintf("reading response: %v", err)}, nil
	}

	if resp.StatusCode < 400 {
		if out != nil {
			if err := json.Unmarshal(respBody, out); err != nil {
				return &Error{
					Status:  resp.StatusCode,
					Code:    CodeInternalError,
					Message: fmt.Sprintf("decoding response: %v", err),
				}, nil
			}
		}
		return nil, nil
	}

	return parseError(resp.StatusCode, respBody), rateLimitFromHeader(resp.Header)
}

// parseError builds an *Error from the response envelope, falling back to a
// generic shape when the body is not the documented envelope.
func parseError(status int, body []byte) *Error {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Code != "" {
		return &Error{
			Status:            status,
			Code:              env.Error.Code,
			Message:           env.Error.Message,
			RequestID:         env.Error.RequestID,
			Retryable:         env.Error.Retryable,
			RetryAfterSeconds: env.Error.RetryAfterSeconds,
		}
	}
	return &Error{
		Status:  status,
		Code:    CodeInternalError,
		Message: fmt.Sprintf("server returned %d", status),
	}
}

// rateLimitFromHeader extracts the Retry-After throttling signal. The header
// is the only place raw seconds are parsed; everything above this boundary
// works in durations.
func rateLimitFromHeader(h http.Header) *resilience.RateLimit {
	raw := h.Get("Retry-After")
	if raw == "" {
		return nil
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || seconds <= 0 {
		return nil
	}
	return &resilience.RateLimit{RetryAfterSeconds: seconds}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
