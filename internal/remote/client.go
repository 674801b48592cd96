// Package remote implements the HTTP client for the backend CRUD API and
// the error taxonomy the sync engine uses to tell transient faults from
// validation faults.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// CreatedRecord is the remote's response to a create call: the canonical
// identifiers assigned by the server-side allocator.
type CreatedRecord struct {
	ID        int64  `json:"id"`
	DisplayID string `json:"display_id"`
}

// Client talks to the backend CRUD API. Every call is bounded by the
// http.Client timeout set at construction.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a Client for the given base URL. timeout bounds each request.
func New(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
			},
		},
		logger: logger.With(slog.String("component", "remote_client")),
	}
}

// Create inserts a row and returns the canonical identifiers the remote
// assigned. POST /api/v1/{table}.
func (c *Client) Create(ctx context.Context, table string, payload map[string]any) (CreatedRecord, error) {
	var created CreatedRecord
	if err := c.do(ctx, http.MethodPost, "/api/v1/"+url.PathEscape(table), payload, &created); err != nil {
		return CreatedRecord{}, fmt.Errorf("create %s: %w", table, err)
	}
	return created, nil
}

// Update replaces the row identified by its display ID.
// PUT /api/v1/{table}/{id}.
func (c *Client) Update(ctx context.Context, table, id string, payload map[string]any) error {
	path := "/api/v1/" + url.PathEscape(table) + "/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodPut, path, payload, nil); err != nil {
		return fmt.Errorf("update %s/%s: %w", table, id, err)
	}
	return nil
}

// Count returns the number of rows in a remote table.
// GET /api/v1/{table}/count.
func (c *Client) Count(ctx context.Context, table string) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/"+url.PathEscape(table)+"/count", nil, &out); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return out.Count, nil
}

// Ping probes the remote's health endpoint. Used by the connectivity
// monitor; any transport or non-2xx failure reports unreachable.
func (c *Client) Ping(ctx context.Context) bool {
	err := c.do(ctx, http.MethodGet, "/api/v1/health", nil, nil)
	return err == nil
}

// do issues one request with a JSON body and decodes a JSON response into
// out when non-nil. Transport failures come back as plain wrapped errors
// (network faults); non-2xx statuses come back as *APIError.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var errBody struct {
			Error string `json:"error"`
		}
		if decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&errBody); decodeErr == nil {
			apiErr.Message = errBody.Error
		}
		return apiErr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
