// Package http holds the outbound HTTP client shared by the completion backends.
package http

import (
	"bytes"
	"context"
	"net/http"
	"time"
)

const userAgent = "querybot/1.0"

// Client sends JSON requests with a fixed overall timeout and optional bearer auth.
type Client struct {
	httpClient *http.Client
	token      string
}

func NewClient(timeout time.Duration, token string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		token:      token,
	}
}

// PostJSON sends body to url. A new request is built on every call so the
// same body can be retried.
func (c *Client) PostJSON(ctx context.Context, url string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return c.httpClient.Do(req)
}
