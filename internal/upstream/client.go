package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/raskol/raskol/internal/circuitbreaker"
	"github.com/raskol/raskol/internal/raskol"
	"github.com/raskol/raskol/internal/telemetry"
)

const maxResponseBody = 32 << 20 // 32 MB, guards against unbounded memory use

// apiError carries an upstream HTTP status so circuitbreaker.ClassifyError
// can weight it without inspecting strings.
type apiError struct {
	StatusCode int
}

func (e *apiError) Error() string   { return fmt.Sprintf("upstream status %d", e.StatusCode) }
func (e *apiError) HTTPStatus() int { return e.StatusCode }

// Response is what the router needs back from a forwarded call.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Usage      *raskol.Usage // nil if the body wasn't JSON or had no usage field
}

// Client forwards requests to a single fixed upstream host, substituting
// the configured bearer credential and guarding calls with a circuit
// breaker.
type Client struct {
	httpClient *http.Client
	target     string // host, no scheme, e.g. "api.groq.com"
	authToken  string
	breaker    *circuitbreaker.Breaker
	metrics    *telemetry.Metrics
}

// New builds a Client. transport is typically the result of NewTransport.
func New(transport http.RoundTripper, target, authToken string, breaker *circuitbreaker.Breaker) *Client {
	return &Client{
		httpClient: &http.Client{Transport: transport, Timeout: 60 * time.Second},
		target:     target,
		authToken:  authToken,
		breaker:    breaker,
	}
}

// WithMetrics attaches Prometheus metrics the Client updates as the breaker
// changes state. Optional; a Client with no metrics attached behaves exactly
// as before.
func (c *Client) WithMetrics(m *telemetry.Metrics) *Client {
	c.metrics = m
	return c
}

// ErrBreakerOpen is returned when the circuit breaker rejects the call
// without attempting it.
var ErrBreakerOpen = errors.New("circuit breaker open")

// Forward proxies method/path/header/body to the configured upstream over
// HTTPS, substituting credentials, and returns the response verbatim along
// with any usage fields it could extract. It never retries.
func (c *Client) Forward(ctx context.Context, method, path string, header http.Header, body []byte) (Response, error) {
	if c.breaker != nil && !c.breaker.Allow() {
		if c.metrics != nil {
			c.metrics.CircuitBreakerRejects.Inc()
			c.metrics.CircuitBreakerState.Set(float64(c.breaker.State()))
		}
		return Response{}, ErrBreakerOpen
	}

	resp, err := c.do(ctx, method, path, header, body)
	if c.breaker != nil {
		if err != nil {
			c.breaker.RecordError(circuitbreaker.ClassifyError(err))
		} else if resp.StatusCode >= 400 {
			c.breaker.RecordError(circuitbreaker.ClassifyError(&apiError{StatusCode: resp.StatusCode}))
		} else {
			c.breaker.RecordSuccess()
		}
		if c.metrics != nil {
			c.metrics.CircuitBreakerState.Set(float64(c.breaker.State()))
		}
	}
	return resp, err
}

func (c *Client) do(ctx context.Context, method, path string, header http.Header, body []byte) (Response, error) {
	targetURL := "https://" + c.target + path

	outReq, err := http.NewRequestWithContext(ctx, method, targetURL, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("build upstream request: %w", err)
	}

	for key, vals := range header {
		if _, hop := hopByHopHeaders[key]; hop {
			continue
		}
		if strings.EqualFold(key, "Authorization") || strings.EqualFold(key, "Host") {
			continue
		}
		outReq.Header[key] = vals
	}
	outReq.Header.Set("Authorization", "Bearer "+c.authToken)
	outReq.Host = c.target

	resp, err := c.httpClient.Do(outReq)
	if err != nil {
		return Response{}, fmt.Errorf("upstream request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return Response{}, fmt.Errorf("read upstream response: %w", err)
	}

	header = make(http.Header, len(resp.Header))
	for key, vals := range resp.Header {
		if _, hop := hopByHopHeaders[key]; hop {
			continue
		}
		header[key] = vals
	}

	out := Response{StatusCode: resp.StatusCode, Header: header, Body: respBody}
	if usage := extractUsage(resp.Header.Get("Content-Type"), respBody); usage != nil {
		out.Usage = usage
	}
	return out, nil
}

// extractUsage pulls the usage.* fields out of a JSON response body. It
// returns nil if the content type isn't JSON, the body doesn't parse, or
// no usage object is present.
func extractUsage(contentType string, body []byte) *raskol.Usage {
	if !strings.Contains(contentType, "application/json") {
		return nil
	}
	if !gjson.ValidBytes(body) {
		return nil
	}
	u := gjson.GetBytes(body, "usage")
	if !u.Exists() || u.Type != gjson.JSON {
		return nil
	}
	total := u.Get("total_tokens")
	if !total.Exists() {
		return nil
	}
	usage := &raskol.Usage{TotalTokens: total.Int()}
	if v := u.Get("queue_time"); v.Exists() {
		usage.QueueTime = v.Float()
	}
	if v := u.Get("prompt_time"); v.Exists() {
		usage.PromptTime = v.Float()
	}
	if v := u.Get("completion_time"); v.Exists() {
		usage.CompletionTime = v.Float()
	}
	if v := u.Get("total_time"); v.Exists() {
		usage.TotalTime = v.Float()
	}
	return usage
}
