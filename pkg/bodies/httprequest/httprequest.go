// Package httprequest provides a built-in vertex body that performs an HTTP
// request and returns the decoded response.
package httprequest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/loomwork/loom/pkg/registry"
	"github.com/loomwork/loom/pkg/workflow"
)

const defaultTimeoutSeconds = 30

var (
	// ErrURLInvalid is returned when the request URL is missing or not a string.
	ErrURLInvalid = errors.New("invalid HTTP request url")
	// ErrServerError is returned when the server keeps answering 5xx.
	ErrServerError = errors.New("server error during HTTP request")
)

const schema = `{
	"type": "object",
	"properties": {
		"url": {"type": "string", "description": "Absolute request URL."},
		"method": {"type": "string", "default": "GET"},
		"headers": {"type": "object", "additionalProperties": {"type": "string"}},
		"body": {"type": "string"},
		"timeout": {"type": "number", "description": "Request timeout in seconds."},
		"retry": {
			"type": "object",
			"properties": {
				"attempts": {"type": "number"},
				"delay": {"type": "number"}
			}
		}
	},
	"required": ["url"]
}`

// RetryConfig defines retry behavior for the request.
type RetryConfig struct {
	Attempts int
	Delay    int
}

type request struct {
	url     string
	method  string
	headers map[string]string
	body    string
	timeout time.Duration
	retry   RetryConfig
	logger  *slog.Logger
}

type Factory struct {
	Logger *slog.Logger
}

func NewFactory(logger *slog.Logger) Factory {
	return Factory{Logger: logger}
}

func (Factory) ID() string {
	return "http_request"
}

func (Factory) Schema() string {
	return schema
}

// Create builds a body that performs the configured request each time the
// vertex runs. The vertex's resolved inputs are ignored; the request is
// fully described by its static parameters.
func (f Factory) Create(params map[string]any) (workflow.Body, error) {
	req, err := parseParams(params)
	if err != nil {
		return nil, err
	}

	req.logger = f.Logger
	if req.logger == nil {
		req.logger = slog.Default()
	}

	req.logger = req.logger.With("module", "http_request_body", "url", req.url)

	return func(map[string]any) (any, error) {
		return req.do(context.Background())
	}, nil
}

func parseParams(params map[string]any) (*request, error) {
	url, ok := params["url"].(string)
	if !ok || url == "" {
		return nil, fmt.Errorf("missing or invalid 'url' in parameters: %w", ErrURLInvalid)
	}

	method, _ := params["method"].(string)
	if method == "" {
		method = http.MethodGet
	}

	body, _ := params["body"].(string)

	headers := make(map[string]string)

	if headersConfig, exists := params["headers"]; exists {
		if headersMap, ok := headersConfig.(map[string]any); ok {
			for k, v := range headersMap {
				if strVal, ok := v.(string); ok {
					headers[k] = strVal
				}
			}
		}
	}

	timeout := defaultTimeoutSeconds * time.Second
	if seconds, ok := params["timeout"].(float64); ok && seconds > 0 {
		timeout = time.Duration(seconds * float64(time.Second))
	}

	retry := RetryConfig{Attempts: 1, Delay: 0}
	if retryConfig, exists := params["retry"]; exists {
		retry = parseRetryConfig(retryConfig)
	}

	return &request{
		url:     url,
		method:  strings.ToUpper(method),
		headers: headers,
		body:    body,
		timeout: timeout,
		retry:   retry,
	}, nil
}

func parseRetryConfig(retryConfig any) RetryConfig {
	retry := RetryConfig{Attempts: 1, Delay: 0}

	retryMap, ok := retryConfig.(map[string]any)
	if !ok {
		return retry
	}

	if attempts, ok := retryMap["attempts"].(float64); ok {
		retry.Attempts = int(attempts)
	}

	if delay, ok := retryMap["delay"].(float64); ok {
		retry.Delay = int(delay)
	}

	return retry
}

func (r *request) do(ctx context.Context) (any, error) {
	var (
		lastErr error
		resp    *http.Response
	)

	for attempt := 1; attempt <= r.retry.Attempts; attempt++ {
		if attempt > 1 {
			r.logger.InfoContext(ctx, "retrying HTTP request", "attempt", attempt, "of", r.retry.Attempts)
			time.Sleep(time.Duration(r.retry.Delay) * time.Second)
		}

		req, err := http.NewRequestWithContext(ctx, r.method, r.url, strings.NewReader(r.body))
		if err != nil {
			lastErr = err

			continue
		}

		for key, value := range r.headers {
			req.Header.Set(key, value)
		}

		client := &http.Client{Timeout: r.timeout}

		resp, err = client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request failed: %w", err)

			continue
		}

		if resp.StatusCode >= 500 && attempt < r.retry.Attempts {
			if err := resp.Body.Close(); err != nil {
				r.logger.ErrorContext(ctx, "failed to close response body", "error", err)
			}

			lastErr = fmt.Errorf("server error (status %d), retrying: %w", resp.StatusCode, ErrServerError)

			continue
		}

		break
	}

	if resp == nil {
		return nil, fmt.Errorf("all retry attempts failed, last error: %w", lastErr)
	}

	return r.processResponse(ctx, resp)
}

// processResponse decodes a JSON payload when the body parses as one,
// otherwise keeps it as a string.
func (r *request) processResponse(ctx context.Context, resp *http.Response) (any, error) {
	defer func() {
		if err := resp.Body.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close response body", "error", err)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var body any = string(raw)

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err == nil {
		body = decoded
	}

	headers := make(map[string]string, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	return map[string]any{
		"status_code": resp.StatusCode,
		"body":        body,
		"headers":     headers,
	}, nil
}

var _ registry.BodyFactory = Factory{}
