package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultEndpoint       = "http://127.0.0.1:8855"
	DefaultRequestTimeout = 15 * time.Second

	maxResponseBytes = 4 * 1024 * 1024
)

// PromptContext carries the source material handed to the extraction model.
type PromptContext struct {
	SourceKey string `json:"source_key"`
	PageURL   string `json:"page_url,omitempty"`
	PageText  string `json:"page_text"`
}

// Meta describes one model invocation, persisted only for observability.
type Meta struct {
	Model     string  `json:"model,omitempty"`
	LatencyMS float64 `json:"latency_ms,omitempty"`
}

// Capability is the AI adapter used by the pipeline. Both operations are
// fallible, timed-out remote calls; callers own any retry policy.
type Capability interface {
	ExtractStructured(ctx context.Context, prompt PromptContext) ([]json.RawMessage, Meta, error)
	CompareSimilarity(ctx context.Context, textA, textB string) (float64, error)
}

// Client talks to the AI sidecar over HTTP.
type Client struct {
	endpoint   string
	httpClient *http.Client
	timeout    time.Duration
}

type Options struct {
	Endpoint       string
	RequestTimeout time.Duration
	HTTPClient     *http.Client
}

func NewClient(opts Options) *Client {
	endpoint := strings.TrimRight(strings.TrimSpace(opts.Endpoint), "/")
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		endpoint:   endpoint,
		httpClient: httpClient,
		timeout:    timeout,
	}
}

type extractResponse struct {
	Events    []json.RawMessage `json:"events"`
	Model     string            `json:"model"`
	ElapsedMS *float64          `json:"elapsed_ms"`
}

func (c *Client) ExtractStructured(ctx context.Context, prompt PromptContext) ([]json.RawMessage, Meta, error) {
	if c == nil {
		return nil, Meta{}, fmt.Errorf("ai client is not initialized")
	}
	if strings.TrimSpace(prompt.PageText) == "" {
		return nil, Meta{}, fmt.Errorf("page text is required")
	}

	var resp extractResponse
	if err := c.postJSON(ctx, "/extract", prompt, &resp); err != nil {
		return nil, Meta{}, err
	}

	meta := Meta{Model: resp.Model}
	if resp.ElapsedMS != nil {
		meta.LatencyMS = *resp.ElapsedMS
	}
	return resp.Events, meta, nil
}

type compareRequest struct {
	TextA string `json:"text_a"`
	TextB string `json:"text_b"`
}

type compareResponse struct {
	Similarity *float64 `json:"similarity"`
}

func (c *Client) CompareSimilarity(ctx context.Context, textA, textB string) (float64, error) {
	if c == nil {
		return 0, fmt.Errorf("ai client is not initialized")
	}
	if strings.TrimSpace(textA) == "" || strings.TrimSpace(textB) == "" {
		return 0, fmt.Errorf("both comparison texts are required")
	}

	var resp compareResponse
	if err := c.postJSON(ctx, "/compare", compareRequest{TextA: textA, TextB: textB}, &resp); err != nil {
		return 0, err
	}
	if resp.Similarity == nil {
		return 0, fmt.Errorf("compare response missing similarity")
	}

	similarity := *resp.Similarity
	if similarity < 0 || similarity > 1 {
		return 0, fmt.Errorf("compare similarity out of range: %f", similarity)
	}
	return similarity, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned status %d", path, resp.StatusCode)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
