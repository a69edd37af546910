// Package transport reaches the dashboard backend. All message operations go
// through one remote-procedure endpoint with an action-tagged JSON envelope.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"campuschat/internal/domain"
)

// Client implements domain.MessageAPI over the dashboard RPC endpoint.
// It carries no retry logic: the sync loop swallows poll failures and the
// mutation coordinator surfaces write failures without retrying.
type Client struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

type Config struct {
	Endpoint string
	Timeout  time.Duration
	Logger   *slog.Logger
}

func NewClient(cfg Config) *Client {
	return NewClientWithHTTP(cfg, SharedHTTPClient(cfg.Timeout))
}

func NewClientWithHTTP(cfg Config, client *http.Client) *Client {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if client == nil {
		client = &http.Client{}
	}
	return &Client{
		endpoint: cfg.Endpoint,
		client:   client,
		logger:   cfg.Logger,
	}
}

// envelope is the request body every action shares.
type envelope struct {
	Action  string `json:"action"`
	Payload any    `json:"payload"`
}

type fetchPayload struct {
	ViewerID   int64      `json:"viewerId"`
	ViewerRole string     `json:"viewerRole"`
	Since      *time.Time `json:"sinceTimestamp"` // null requests full history
}

type fetchResponse struct {
	Messages []domain.Message `json:"messages"`
}

type sendPayload struct {
	Message any `json:"message"`
}

type savedResponse struct {
	SavedMessage domain.Message `json:"savedMessage"`
}

// FetchSince returns messages with a server timestamp strictly greater than
// since. A zero since is the full-history sentinel, sent as a null.
func (c *Client) FetchSince(ctx context.Context, viewerID int64, viewerRole string, since time.Time) ([]domain.Message, error) {
	payload := fetchPayload{ViewerID: viewerID, ViewerRole: viewerRole}
	if !since.IsZero() {
		payload.Since = &since
	}
	var resp fetchResponse
	if err := c.rpc(ctx, "getMessages", payload, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

func (c *Client) Send(ctx context.Context, draft domain.Draft) (domain.Message, error) {
	var resp savedResponse
	if err := c.rpc(ctx, "sendMessage", sendPayload{Message: draft}, &resp); err != nil {
		return domain.Message{}, err
	}
	return resp.SavedMessage, nil
}

func (c *Client) Edit(ctx context.Context, msg domain.Message) (domain.Message, error) {
	var resp savedResponse
	if err := c.rpc(ctx, "editMessage", sendPayload{Message: msg}, &resp); err != nil {
		return domain.Message{}, err
	}
	return resp.SavedMessage, nil
}

// Delete issues the remote soft-delete. The backend responds with a bare
// acknowledgement; no body is required.
func (c *Client) Delete(ctx context.Context, msg domain.Message) error {
	return c.rpc(ctx, "deleteMessage", sendPayload{Message: msg}, nil)
}

func (c *Client) rpc(ctx context.Context, action string, payload, out any) error {
	body, err := json.Marshal(envelope{Action: action, Payload: payload})
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: backend returned %d: %s", action, resp.StatusCode, snippet)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", action, err)
	}
	return nil
}
