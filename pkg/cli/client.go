package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	apiv1 "github.com/beam-cloud/bucketmount/pkg/api/v1"
	"github.com/beam-cloud/bucketmount/pkg/mount"
	"github.com/beam-cloud/bucketmount/pkg/types"
)

const clientTimeout = 10 * time.Second

// APIError is a failed call to the control API.
type APIError struct {
	Status      int
	Message     string
	Unreachable bool
}

func (e *APIError) Error() string {
	if e.Unreachable {
		return "control api unreachable: " + e.Message
	}
	return fmt.Sprintf("control api returned %d: %s", e.Status, e.Message)
}

// Client talks to a running `bucketmount serve`.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(cfg types.APIConfig) *Client {
	return &Client{
		baseURL: fmt.Sprintf("http://%s:%d%s", cfg.Host, cfg.Port, apiv1.HttpServerBaseRoute),
		token:   cfg.AuthToken,
		http:    &http.Client{Timeout: clientTimeout},
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func (c *Client) Status(ctx context.Context) (mount.Status, error) {
	var status mount.Status
	err := c.do(ctx, http.MethodGet, "/status", nil, &status)
	return status, err
}

func (c *Client) Mount(ctx context.Context, profile string) error {
	return c.do(ctx, http.MethodPost, "/mount", apiv1.MountRequest{Profile: profile}, nil)
}

func (c *Client) Unmount(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/unmount", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &APIError{Message: err.Error(), Unreachable: true}
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return &APIError{Status: resp.StatusCode, Message: fmt.Sprintf("decode response: %v", err)}
	}
	if resp.StatusCode >= 300 || !env.Success {
		msg := env.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}

	if out != nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}
