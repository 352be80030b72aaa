// Package client is cmd/hq's thin HTTP client for pkg/api, the counterpart
// of cuemby-warren's pkg/client (which spoke gRPC to the manager over
// mTLS). It speaks plain JSON-over-HTTP to the loopback `hq server`
// address instead, since there is no cluster boundary to authenticate
// across (see pkg/api's package doc).
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spirali/hyperqueue/pkg/api"
)

// Client talks to a running `hq server` instance.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a Client against the API listening at addr (host:port, no
// scheme).
func New(addr string) *Client {
	return &Client{
		baseURL: "http://" + addr,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var errResp api.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error != "" {
			return fmt.Errorf("%s %s: %s (status %d)", method, path, errResp.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Submit posts a new batch of tasks.
func (c *Client) Submit(ctx context.Context, req api.SubmitRequest) (*api.SubmitResponse, error) {
	var out api.SubmitResponse
	if err := c.do(ctx, http.MethodPost, "/v1/jobs", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Cancel cancels the given tasks and their transitive consumers.
func (c *Client) Cancel(ctx context.Context, req api.CancelRequest) (*api.CancelResponse, error) {
	var out api.CancelResponse
	if err := c.do(ctx, http.MethodPost, "/v1/cancel", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status fetches the current task/worker snapshot.
func (c *Client) Status(ctx context.Context) (*api.StatusResponse, error) {
	var out api.StatusResponse
	if err := c.do(ctx, http.MethodGet, "/v1/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AddQueue registers a new auto-allocation queue descriptor.
func (c *Client) AddQueue(ctx context.Context, req api.QueueAddRequest) (*api.QueueAddResponse, error) {
	var out api.QueueAddResponse
	if err := c.do(ctx, http.MethodPost, "/v1/autoalloc", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListQueues lists every configured queue descriptor.
func (c *Client) ListQueues(ctx context.Context) (*api.QueueListResponse, error) {
	var out api.QueueListResponse
	if err := c.do(ctx, http.MethodGet, "/v1/autoalloc", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// QueueInfo fetches one descriptor's info and allocations.
func (c *Client) QueueInfo(ctx context.Context, id uint64) (*api.QueueInfoResponse, error) {
	var out api.QueueInfoResponse
	path := fmt.Sprintf("/v1/autoalloc/%d", id)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// QueueEvents fetches one descriptor's event log.
func (c *Client) QueueEvents(ctx context.Context, id uint64) (*api.QueueEventsResponse, error) {
	var out api.QueueEventsResponse
	path := fmt.Sprintf("/v1/autoalloc/%d/events", id)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RemoveQueue deletes a queue descriptor.
func (c *Client) RemoveQueue(ctx context.Context, id uint64) error {
	path := fmt.Sprintf("/v1/autoalloc/%d", id)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}
