package catalograg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const maxErrorBody = 64 << 10

// Client is the catalograg SDK entry point.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	apiKey  string
	obs     *observer
}

// New creates a Client for the server at baseURL, e.g. "http://localhost:8080".
func New(baseURL string, opts ...Option) (*Client, error) {
	cfg := &clientConfig{timeout: defaultTimeout}
	for _, o := range opts {
		o.apply(cfg)
	}

	if baseURL == "" {
		return nil, errors.New("catalograg: base URL is required")
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("catalograg: parse base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("catalograg: unsupported scheme %q", u.Scheme)
	}

	hc := cfg.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.timeout}
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, fmt.Errorf("catalograg: init observer: %w", err)
	}

	return &Client{baseURL: u, http: hc, apiKey: cfg.apiKey, obs: obs}, nil
}

// CreateSession starts a new conversation and returns its id.
func (c *Client) CreateSession(ctx context.Context) (id string, err error) {
	start := time.Now()
	defer func() { c.obs.observe("create_session", start, err) }()

	var out struct {
		SessionID string `json:"sessionId"`
	}
	if _, err = c.do(ctx, http.MethodPost, "/api/chat/session", nil, &out); err != nil {
		return "", err
	}
	return out.SessionID, nil
}

// SendMessage asks a question within a session.
func (c *Client) SendMessage(ctx context.Context, sessionID, message string) (resp Response, err error) {
	start := time.Now()
	defer func() { c.obs.observe("send_message", start, err) }()

	body := struct {
		Message string `json:"message"`
	}{Message: message}

	h, err := c.do(ctx, http.MethodPost, "/api/chat/"+url.PathEscape(sessionID), body, &resp)
	if err != nil {
		return Response{}, err
	}
	resp.EmbeddingTokens = headerInt(h, "X-Embedding-Tokens")
	resp.CompletionTokens = headerInt(h, "X-Completion-Tokens")
	c.obs.observeTokens(resp)
	return resp, nil
}

// History returns the messages of a session in order.
func (c *Client) History(ctx context.Context, sessionID string) (msgs []Message, err error) {
	start := time.Now()
	defer func() { c.obs.observe("history", start, err) }()

	var out struct {
		Messages []Message `json:"messages"`
	}
	if _, err = c.do(ctx, http.MethodGet, "/api/chat/"+url.PathEscape(sessionID)+"/history", nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// ListSessions returns every live session.
func (c *Client) ListSessions(ctx context.Context) (sessions []Session, err error) {
	start := time.Now()
	defer func() { c.obs.observe("list_sessions", start, err) }()

	var out struct {
		Sessions []Session `json:"sessions"`
	}
	if _, err = c.do(ctx, http.MethodGet, "/api/chat/sessions", nil, &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// DeleteSession removes a session.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("delete_session", start, err) }()

	_, err = c.do(ctx, http.MethodDelete, "/api/chat/"+url.PathEscape(sessionID), nil, nil)
	return err
}

// Health checks the server components. A degraded server answers 503 with
// a report, which is returned without error.
func (c *Client) Health(ctx context.Context) (status HealthStatus, err error) {
	start := time.Now()
	defer func() { c.obs.observe("health", start, err) }()

	req, err := c.newRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return HealthStatus{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return HealthStatus{}, fmt.Errorf("catalograg: health: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return HealthStatus{}, decodeError(resp)
	}
	if err = json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return HealthStatus{}, fmt.Errorf("catalograg: decode health: %w", err)
	}
	return status, nil
}

// Usage returns the token usage report for the given period.
func (c *Client) Usage(ctx context.Context, period UsagePeriod) (report UsageReport, err error) {
	start := time.Now()
	defer func() { c.obs.observe("usage", start, err) }()

	path := "/api/usage"
	if period != "" {
		path += "?period=" + url.QueryEscape(string(period))
	}

	var dto usageReportDTO
	if _, err = c.do(ctx, http.MethodGet, path, nil, &dto); err != nil {
		return UsageReport{}, err
	}
	return UsageReport{
		Period:      dto.Period,
		PeriodStart: time.UnixMilli(dto.PeriodStart).UTC(),
		PeriodEnd:   time.UnixMilli(dto.PeriodEnd).UTC(),
		Providers:   dto.Providers,
	}, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("catalograg: encode request: %w", err)
		}
		r = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, r)
	if err != nil {
		return nil, fmt.Errorf("catalograg: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

// do sends a request and decodes a 2xx JSON body into out (nil skips decoding).
func (c *Client) do(ctx context.Context, method, path string, body, out any) (http.Header, error) {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalograg: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeError(resp)
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("catalograg: decode response: %w", err)
		}
	}
	return resp.Header, nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Code != "" {
		apiErr.Code = body.Code
		apiErr.Message = body.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}

func headerInt(h http.Header, key string) int {
	n, _ := strconv.Atoi(h.Get(key))
	return n
}
