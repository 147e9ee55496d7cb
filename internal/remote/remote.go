// Package remote is the HTTP client for peer trackers. Tasks that carry a
// remote address are mirrored through it: probes, creates, updates and
// forwarded sub-resource calls all go through Do.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/agentsea/taskara/internal/config"
	"github.com/agentsea/taskara/internal/errs"
	"github.com/agentsea/taskara/internal/logging"
)

const defaultTimeout = 30 * time.Second

// Client talks to one peer tracker.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  logging.Logger
}

// NewClient builds a client for the peer at baseURL. An empty token falls
// back to HUB_API_KEY and then the global config file at call time.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  logging.NewComponentLogger("Remote"),
	}
}

// BaseURL returns the peer address this client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) bearer() string {
	if c.token != "" {
		return c.token
	}
	return config.RemoteAuthToken()
}

// Do performs one JSON round trip. A nil body sends no payload; a non-nil
// out receives the decoded response. Non-2xx statuses surface as
// RemoteFailure carrying the upstream status.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.bearer(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return errs.Timeout("remote tracker %s timed out", c.baseURL)
		}
		return errs.Wrap(errs.KindRemoteFailure, err, "remote tracker %s unreachable", c.baseURL)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return errs.Wrap(errs.KindRemoteFailure, err, "read remote response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Debug("%s %s -> %d", method, path, resp.StatusCode)
		return errs.RemoteFailure(resp.StatusCode, "remote tracker returned %d for %s %s",
			resp.StatusCode, method, path)
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return errs.Wrap(errs.KindRemoteFailure, err, "decode remote response")
		}
	}
	return nil
}
