// Package llm invokes the external text-generation endpoint. The HTTP
// shape is dialect-specific and owned by a Profile selected once at
// startup.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"

	"github.com/kus-aws/backend-go/internal/config"
	"github.com/kus-aws/backend-go/internal/logger"
)

// Client is the minimal generation interface the orchestrator depends
// on; tests substitute a deterministic fake.
type Client interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// HTTPClient calls the model endpoint over HTTP. It is immutable and
// safe for concurrent use.
type HTTPClient struct {
	cfg     config.ModelConfig
	profile Profile
	http    *http.Client
}

// NewClient builds the process-wide model client from configuration.
func NewClient(cfg config.ModelConfig) (*HTTPClient, error) {
	profile, err := ProfileFor(cfg)
	if err != nil {
		return nil, err
	}

	// Fail the connection attempt fast; bound total read time so our own
	// HTTP responses cannot hang on a stuck provider.
	transport := &http.Transport{
		DialContext: (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext,
	}
	return &HTTPClient{
		cfg:     cfg,
		profile: profile,
		http: &http.Client{
			Timeout:   cfg.ReadTimeout,
			Transport: transport,
		},
	}, nil
}

// providerError is the error envelope some providers return alongside
// non-200 statuses.
type providerError struct {
	Message string `json:"message"`
	Type    string `json:"__type"`
}

// Generate invokes the model with the configured dialect and returns the
// generated text.
func (c *HTTPClient) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if prompt == "" {
		return "", ErrEmptyPrompt
	}
	if maxTokens <= 0 || maxTokens > c.profile.MaxOutputTokens() {
		return "", fmt.Errorf("%w: %d", ErrInvalidMaxTokens, maxTokens)
	}

	body, err := c.profile.BuildRequest(prompt, maxTokens)
	if err != nil {
		return "", fmt.Errorf("build model request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/model/%s/invoke", c.cfg.BaseURL, url.PathEscape(c.cfg.ID))

	resp, err := c.doWithRetry(ctx, endpoint, body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", c.classifyError(resp.StatusCode, payload)
	}

	text, err := c.profile.ParseResponse(payload)
	if err != nil {
		logger.L.Error("model response did not match configured dialect",
			"model", c.cfg.ID, "provider", string(c.cfg.Provider), "error", err)
		return "", err
	}
	return text, nil
}

// doWithRetry performs the request with at most one transport-level
// retry. Client errors (4xx) are never retried.
func (c *HTTPClient) doWithRetry(ctx context.Context, endpoint string, body []byte) (*http.Response, error) {
	const attempts = 2

	var lastErr error
	for i := 0; i < attempts; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		if c.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			logger.L.Warn("model request attempt failed", "attempt", i+1, "error", err)
			continue
		}
		if resp.StatusCode >= 500 && i < attempts-1 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			logger.L.Warn("model server error, retrying once", "status", resp.StatusCode)
			continue
		}
		return resp, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

// classifyError maps a non-200 provider response onto the failure
// taxonomy. Provider payloads are logged, never surfaced.
func (c *HTTPClient) classifyError(status int, payload []byte) error {
	var perr providerError
	_ = json.Unmarshal(payload, &perr)

	logger.L.Error("model provider error",
		"status", status, "type", perr.Type, "message", perr.Message, "model", c.cfg.ID)

	switch {
	case status == http.StatusTooManyRequests || perr.Type == "ThrottlingException":
		return ErrRateLimited
	case status == http.StatusRequestTimeout ||
		status == http.StatusGatewayTimeout ||
		perr.Type == "ModelTimeoutException":
		return ErrUpstreamTimeout
	default:
		return fmt.Errorf("%w: status %d", ErrUnavailable, status)
	}
}
