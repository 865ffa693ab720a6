package sopqa

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

const defaultTimeout = 2 * time.Minute

// Client is the sopqa SDK entry point.
type Client struct {
	baseURL    string
	apiKey     string
	userAgent  string
	httpClient *http.Client
}

// New creates a client for the service at baseURL.
func New(baseURL string, opts ...Option) *Client {
	cfg := clientConfig{timeout: defaultTimeout}
	for _, opt := range opts {
		opt.apply(&cfg)
	}

	hc := cfg.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.timeout}
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     cfg.apiKey,
		userAgent:  cfg.userAgent,
		httpClient: hc,
	}
}

// Ask answers a question grounded in the indexed documents.
func (c *Client) Ask(ctx context.Context, question string) (AskResult, error) {
	var res AskResult
	err := c.do(ctx, http.MethodPost, "/api/v1/ask",
		map[string]string{"question": question}, &res)
	return res, err
}

// IngestText chunks and indexes raw text. Source labels the text in
// answer citations; empty means the service assigns one. Returns the
// number of chunks indexed.
func (c *Client) IngestText(ctx context.Context, content, source string) (int, error) {
	var res struct {
		ChunksIndexed int `json:"chunks_indexed"`
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/documents",
		map[string]string{"content": content, "source": source}, &res)
	return res.ChunksIndexed, err
}

// IngestPath indexes a file or directory on the server's filesystem.
func (c *Client) IngestPath(ctx context.Context, path string) (int, error) {
	var res struct {
		ChunksIndexed int `json:"chunks_indexed"`
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/documents",
		map[string]string{"path": path}, &res)
	return res.ChunksIndexed, err
}

// Reindex clears the index and rebuilds it from a server-side folder.
// Empty folder means the service's configured ingest folder.
func (c *Client) Reindex(ctx context.Context, folder string) (int, error) {
	var body any
	if folder != "" {
		body = map[string]string{"folder": folder}
	}
	var res struct {
		ChunksIndexed int `json:"chunks_indexed"`
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/reindex", body, &res)
	return res.ChunksIndexed, err
}

// Stats returns index and retrieval policy statistics.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var res Stats
	err := c.do(ctx, http.MethodGet, "/api/v1/stats", nil, &res)
	return res, err
}

// Health returns the service health report. A degraded service yields
// both the report and an error wrapping ErrUnavailable.
func (c *Client) Health(ctx context.Context) (Health, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return Health{}, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Health{}, fmt.Errorf("sopqa: health request: %w", err)
	}
	defer resp.Body.Close()

	var h Health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return Health{}, fmt.Errorf("sopqa: decoding health response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return h, fmt.Errorf("sopqa: service %s: %w", h.Status, ErrUnavailable)
	}
	return h, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sopqa: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("sopqa: decoding %s response: %w", path, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("sopqa: encoding request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("sopqa: building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	return req, nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		sentinel:   sentinelForStatus(resp.StatusCode),
	}

	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(data, &body) == nil && body.Message != "" {
		apiErr.Code = body.Code
		apiErr.Message = body.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
