// File: internal/backend/client.go
// Description: Client for the simplification backend. One method per endpoint,
// bearer auth plus the caller-identifying header on every call, typed status
// failures so callers can branch on the classified HTTP outcome.

package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/avelichko7/textlens/api/schemas"
	"github.com/avelichko7/textlens/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// HeaderExtensionID identifies the calling installation to the backend.
const HeaderExtensionID = "X-Extension-ID"

// maxErrorBody caps how much of a failed response is read for the detail.
const maxErrorBody = 64 * 1024

// StatusError is a non-2xx backend response. Detail carries the server's
// explanation verbatim when one was provided.
type StatusError struct {
	Status int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend returned status %d", e.Status)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.Status, e.Detail)
}

// Client talks to the simplification backend.
type Client struct {
	cfg       config.BackendConfig
	http      *http.Client
	streaming *http.Client
	probeGate *rate.Limiter
	log       *zap.Logger
}

// New builds a backend client. The streaming client carries no overall
// timeout: a simplification stream legitimately outlives any fixed deadline
// and is bounded by the request context instead.
func New(cfg config.BackendConfig, logger *zap.Logger) *Client {
	probe := rate.Limit(cfg.ProbeRate)
	if cfg.ProbeRate <= 0 {
		probe = rate.Inf
	}
	return &Client{
		cfg:       cfg,
		http:      newHTTPClient(cfg.RequestTimeout),
		streaming: newHTTPClient(0),
		probeGate: rate.NewLimiter(probe, cfg.ProbeBurst),
		log:       logger.Named("backend"),
	}
}

func (c *Client) url(path string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + path
}

func (c *Client) newRequest(ctx context.Context, method, path, token string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s %s: %w", method, path, err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set(HeaderExtensionID, c.cfg.CallerID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// statusError drains up to maxErrorBody of a failed response and extracts the
// server detail: the JSON `detail` field when the body parses, the raw body
// otherwise.
func statusError(resp *http.Response) *StatusError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Detail != "" {
		return &StatusError{Status: resp.StatusCode, Detail: payload.Detail}
	}
	return &StatusError{Status: resp.StatusCode, Detail: strings.TrimSpace(string(raw))}
}

// decode reads a 2xx JSON response into v, converting any other status into a
// StatusError.
func decode(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	if v == nil {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode backend response: %w", err)
	}
	return nil
}

// Simplify opens a streaming simplification. On success the returned body
// yields plain-text chunks as the server flushes them; the caller owns
// closing it. Non-2xx responses are returned as *StatusError with the body
// already drained and closed.
func (c *Client) Simplify(ctx context.Context, token string, req schemas.SelectionRequest) (io.ReadCloser, error) {
	if req.Language == "" {
		req.Language = c.cfg.Language
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode simplify request: %w", err)
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/api/simplify", token, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	resp, err := c.streaming.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("simplify request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}
	return resp.Body, nil
}

// Me returns the subscription attached to the credential. Calls are gated by
// the probe limiter because the overlay polls this endpoint while open.
func (c *Client) Me(ctx context.Context, token string) (schemas.Subscription, error) {
	var sub schemas.Subscription
	if err := c.probeGate.Wait(ctx); err != nil {
		return sub, fmt.Errorf("probe limiter: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodGet, "/api/me", token, nil)
	if err != nil {
		return sub, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return sub, fmt.Errorf("me request failed: %w", err)
	}
	return sub, decode(resp, &sub)
}

// Profile returns the identity profile of the signed-in user.
func (c *Client) Profile(ctx context.Context, token string) (schemas.Profile, error) {
	var p schemas.Profile
	req, err := c.newRequest(ctx, http.MethodGet, "/api/profile", token, nil)
	if err != nil {
		return p, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return p, fmt.Errorf("profile request failed: %w", err)
	}
	return p, decode(resp, &p)
}

// Health probes the unauthenticated health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/health", "", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("health request failed: %w", err)
	}
	return decode(resp, nil)
}

// Settings fetches the per-user AI tuning values.
func (c *Client) Settings(ctx context.Context, token string) (schemas.AISettings, error) {
	var s schemas.AISettings
	req, err := c.newRequest(ctx, http.MethodGet, "/api/settings", token, nil)
	if err != nil {
		return s, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return s, fmt.Errorf("settings request failed: %w", err)
	}
	return s, decode(resp, &s)
}

// SaveSettings persists the per-user AI tuning values.
func (c *Client) SaveSettings(ctx context.Context, token string, s schemas.AISettings) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/api/settings", token, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("save settings request failed: %w", err)
	}
	return decode(resp, nil)
}

// History returns one page of past simplifications, newest first.
func (c *Client) History(ctx context.Context, token string, page int) (schemas.HistoryPage, error) {
	var h schemas.HistoryPage
	req, err := c.newRequest(ctx, http.MethodGet, "/api/history?page="+strconv.Itoa(page), token, nil)
	if err != nil {
		return h, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return h, fmt.Errorf("history request failed: %w", err)
	}
	return h, decode(resp, &h)
}

// Upgrade requests a plan change and returns the resulting subscription.
func (c *Client) Upgrade(ctx context.Context, token, planID string) (schemas.Subscription, error) {
	var sub schemas.Subscription
	payload, err := json.Marshal(map[string]string{"plan_id": planID})
	if err != nil {
		return sub, fmt.Errorf("failed to encode upgrade request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/api/upgrade", token, bytes.NewReader(payload))
	if err != nil {
		return sub, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return sub, fmt.Errorf("upgrade request failed: %w", err)
	}
	return sub, decode(resp, &sub)
}
