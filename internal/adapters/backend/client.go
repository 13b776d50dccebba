// Package backend is the storefront REST backend client: zones, stores and the
// geocoding proxy.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/samirrijal/pourzone/internal/core/domain"
	"github.com/samirrijal/pourzone/internal/pkg/metrics"
)

// Config configures the backend client.
type Config struct {
	BaseURL     string
	APIKey      string
	Timeout     time.Duration
	MaxAttempts int
	Backoff     time.Duration
	// Dial overrides the TCP dialer, for tests.
	Dial fasthttp.DialFunc
}

// Client implements ports.ZoneBackend, ports.StoreBackend and ports.GeocodeProvider
// over the storefront REST API.
type Client struct {
	http        *fasthttp.Client
	base        string
	apiKey      string
	timeout     time.Duration
	maxAttempts int
	backoff     time.Duration
}

// New creates a new backend client.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 200 * time.Millisecond
	}
	return &Client{
		http: &fasthttp.Client{
			Name:                "pourzone",
			ReadTimeout:         cfg.Timeout,
			WriteTimeout:        cfg.Timeout,
			MaxConnsPerHost:     16,
			MaxIdleConnDuration: 30 * time.Second,
			Dial:                cfg.Dial,
		},
		base:        strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		timeout:     cfg.Timeout,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
	}
}

// Name identifies the client in the geocoding provider chain.
func (c *Client) Name() string { return "backend" }

// statusError is a non-2xx answer from the backend.
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

// envelope is the backend's response wrapper.
type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

type request struct {
	method   string
	path     string
	query    map[string]string
	body     any
	endpoint string
}

// call performs r and decodes the payload into out. Transport failures and gateway
// statuses become KindNetwork, 404 becomes KindNotFound, anything else KindBackend.
func (c *Client) call(ctx context.Context, r request, out any) error {
	start := time.Now()
	body, err := c.doWithRetry(ctx, r)
	metrics.BackendRequestDuration.WithLabelValues(r.endpoint).Observe(time.Since(start).Seconds())
	metrics.BackendRequests.WithLabelValues(r.endpoint, statusClass(err)).Inc()
	if err != nil {
		return classify(r.endpoint, err)
	}

	data, err := unwrap(body)
	if err != nil {
		return domain.NewError(domain.KindBackend, "backend."+r.endpoint, err.Error(), nil)
	}
	if out == nil || len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return domain.NewError(domain.KindBackend, "backend."+r.endpoint, "decode response", err)
	}
	return nil
}

// doWithRetry retries transient failures (transport errors, 429 and gateway statuses)
// with exponential backoff while respecting context cancellation.
func (c *Client) doWithRetry(ctx context.Context, r request) ([]byte, error) {
	var payload []byte
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		payload = b
	}

	backoff := c.backoff
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		body, err := c.do(ctx, r, payload)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if !retryable(err) || attempt == c.maxAttempts {
			return nil, lastErr
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, r request, payload []byte) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.base + r.path)
	req.Header.SetMethod(r.method)
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	for k, v := range r.query {
		req.URI().QueryArgs().Add(k, v)
	}
	if payload != nil {
		req.Header.SetContentType("application/json")
		req.SetBody(payload)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return nil, err
	}

	body := append([]byte(nil), resp.Body()...)
	if code := resp.StatusCode(); code >= 400 {
		return nil, &statusError{Code: code, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}

func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		switch se.Code {
		case 429, 502, 503, 504:
			return true
		}
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func classify(endpoint string, err error) error {
	op := "backend." + endpoint
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var se *statusError
	if !errors.As(err, &se) {
		return domain.NewError(domain.KindNetwork, op, "", err)
	}
	msg := messageOf(se.Body)
	switch {
	case se.Code == 404:
		return domain.NewError(domain.KindNotFound, op, msg, se)
	case se.Code == 429, se.Code == 502, se.Code == 503, se.Code == 504:
		return domain.NewError(domain.KindNetwork, op, msg, se)
	default:
		return domain.NewError(domain.KindBackend, op, msg, se)
	}
}

func statusClass(err error) string {
	if err == nil {
		return "2xx"
	}
	var se *statusError
	if errors.As(err, &se) {
		return strconv.Itoa(se.Code/100) + "xx"
	}
	return "transport"
}

// unwrap returns the payload of an enveloped response, or the body itself when the
// endpoint answers without an envelope.
func unwrap(body []byte) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" || !strings.HasPrefix(trimmed, "{") {
		return json.RawMessage(trimmed), nil
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Success == nil {
		return json.RawMessage(trimmed), nil
	}
	if !*env.Success {
		if env.Message == "" {
			env.Message = "request rejected"
		}
		return nil, errors.New(env.Message)
	}
	return env.Data, nil
}

// messageOf extracts the envelope message of an error body, if any.
func messageOf(body string) string {
	var env envelope
	if err := json.Unmarshal([]byte(body), &env); err == nil && env.Message != "" {
		return env.Message
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return body
}

// Reachable performs a single GET against path and reports whether any HTTP answer came
// back, along with its status code.
func (c *Client) Reachable(ctx context.Context, path string) (int, error) {
	_, err := c.do(ctx, request{method: fasthttp.MethodGet, path: path}, nil)
	if err == nil {
		return 200, nil
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.Code, nil
	}
	return 0, domain.NewError(domain.KindNetwork, "backend.reachable", "", err)
}
