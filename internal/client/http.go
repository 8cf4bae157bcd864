package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/alfredjeanlab/paywatch/internal/broadcast"
	"github.com/alfredjeanlab/paywatch/internal/ingest"
	"github.com/alfredjeanlab/paywatch/internal/model"
	"github.com/alfredjeanlab/paywatch/internal/queryrpc"
)

// HTTPClient implements Client using the paywatch HTTP/JSON API, plus the
// ingest, authorization and stream endpoints that only HTTP exposes.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "http://localhost:8080"). When token is non-empty, an Authorization
// header is set on every request.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

func sourcePath(sourceID, leaf string) string {
	return "/v1/sources/" + url.PathEscape(sourceID) + "/" + leaf
}

// --- Query ---

func (c *HTTPClient) IsMonitoringAuthorized(ctx context.Context) (bool, error) {
	var resp queryrpc.AuthorizedResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/authorization", nil, &resp); err != nil {
		return false, err
	}
	return resp.Authorized, nil
}

func (c *HTTPClient) GetState(ctx context.Context, sourceID string) (*queryrpc.StateResponse, error) {
	var resp queryrpc.StateResponse
	if err := c.doJSON(ctx, http.MethodGet, sourcePath(sourceID, "state"), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) GetLatestEvent(ctx context.Context, sourceID string) (*model.Event, error) {
	var resp queryrpc.EventResponse
	if err := c.doJSON(ctx, http.MethodGet, sourcePath(sourceID, "latest"), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Event, nil
}

func (c *HTTPClient) GetLatestMatchingEvent(ctx context.Context, sourceID string) (*model.Event, error) {
	var resp queryrpc.EventResponse
	if err := c.doJSON(ctx, http.MethodGet, sourcePath(sourceID, "latest-matching"), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Event, nil
}

func (c *HTTPClient) GetActiveSnapshot(ctx context.Context, sourceID string) ([]model.Event, error) {
	var resp queryrpc.SnapshotResponse
	if err := c.doJSON(ctx, http.MethodGet, sourcePath(sourceID, "snapshot"), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Events == nil {
		resp.Events = []model.Event{}
	}
	return resp.Events, nil
}

func (c *HTTPClient) ListSources(ctx context.Context) (*queryrpc.SourcesResponse, error) {
	var resp queryrpc.SourcesResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/sources", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// --- Authorization ---

func (c *HTTPClient) SetAuthorized(ctx context.Context, authorized bool) error {
	return c.doJSON(ctx, http.MethodPut, "/v1/authorization", map[string]bool{"authorized": authorized}, nil)
}

// --- Ingest ---

// Posted sends a posted signal.
func (c *HTTPClient) Posted(ctx context.Context, req ingest.Request) (ingest.Result, error) {
	return c.ingest(ctx, "/v1/events/posted", req)
}

// Removed sends a removed signal.
func (c *HTTPClient) Removed(ctx context.Context, req ingest.Request) (ingest.Result, error) {
	return c.ingest(ctx, "/v1/events/removed", req)
}

func (c *HTTPClient) ingest(ctx context.Context, path string, req ingest.Request) (ingest.Result, error) {
	var resp struct {
		Ignored bool `json:"ignored"`
		model.DerivedState
	}
	if err := c.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		return ingest.Result{}, err
	}
	if resp.Ignored {
		return ingest.Result{Ignored: true}, nil
	}
	return ingest.Result{State: resp.DerivedState.Normalize()}, nil
}

// --- Health ---

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// --- Stream ---

// Stream connects to the SSE endpoint and calls fn for every notification
// until ctx is done, the server closes the stream, or fn returns an error.
// types optionally restricts the notification kinds.
func (c *HTTPClient) Stream(ctx context.Context, types []broadcast.Kind, fn func(broadcast.Notification) error) error {
	path := "/v1/events/stream"
	if len(types) > 0 {
		names := make([]string, len(types))
		for i, k := range types {
			names[i] = string(k)
		}
		path += "?" + url.Values{"types": {strings.Join(names, ",")}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return apiError(resp.StatusCode, body)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	var data []byte
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if len(data) == 0 {
				continue
			}
			n, err := broadcast.Decode(data)
			data = data[:0]
			if err != nil {
				return fmt.Errorf("decoding notification: %w", err)
			}
			if err := fn(n); err != nil {
				return err
			}
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(line, "data:")...)
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("reading stream: %w", err)
	}
	return nil
}

// --- internal helpers ---

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

func apiError(code int, body []byte) *APIError {
	var errResp struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		return &APIError{StatusCode: code, Message: errResp.Error}
	}
	return &APIError{StatusCode: code, Message: string(body)}
}

func (c *HTTPClient) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// doJSON performs an HTTP request with optional JSON body and decodes the JSON response.
// If result is nil, the response body is discarded.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return apiError(resp.StatusCode, respBody)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
