// Package client provides a Go client for the node registry API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/vortunix/noderegistry/internal/model"
)

// Client is a node registry API client.
type Client struct {
	BaseURL string
	http    *resty.Client
}

// APIError is returned for non-2xx responses.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("registry api: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("registry api: %d %s", e.Status, e.Message)
}

// CheckIn is the answer to a node check-in.
type CheckIn struct {
	Bot model.Bot
	// Persisted is only set when the server awaits its commit.
	Persisted *bool
}

// New creates a new client for the server at baseURL.
func New(baseURL string) *Client {
	baseURL = strings.TrimSuffix(baseURL, "/")
	return &Client{
		BaseURL: baseURL,
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(30 * time.Second).
			SetHeader("Accept", "application/json"),
	}
}

// Verify performs a check-in for the node holding token.
func (c *Client) Verify(ctx context.Context, token string) (CheckIn, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("token", token).
		Get("/api/verifikasi/{token}")
	if err != nil {
		return CheckIn{}, err
	}
	if resp.IsError() {
		return CheckIn{}, apiError(resp)
	}

	var out CheckIn
	if err := json.Unmarshal(resp.Body(), &out.Bot); err != nil {
		return CheckIn{}, err
	}
	// success and persisted ride along in the flat record
	delete(out.Bot.Extra, "success")
	if raw, ok := out.Bot.Extra["persisted"]; ok {
		var persisted bool
		if err := json.Unmarshal(raw, &persisted); err == nil {
			out.Persisted = &persisted
		}
		delete(out.Bot.Extra, "persisted")
	}
	if len(out.Bot.Extra) == 0 {
		out.Bot.Extra = nil
	}
	return out, nil
}

func (c *Client) Stats(ctx context.Context) (model.Stats, error) {
	var stats model.Stats
	err := c.get(ctx, "/api/stats", &stats)
	return stats, err
}

func (c *Client) Logs(ctx context.Context) ([]model.AnnotatedLog, error) {
	var logs []model.AnnotatedLog
	err := c.get(ctx, "/api/logs", &logs)
	return logs, err
}

func (c *Client) List(ctx context.Context) (model.Registry, error) {
	var reg model.Registry
	err := c.get(ctx, "/api/list", &reg)
	return reg, err
}

// Sync replaces the whole registry with reg.
func (c *Client) Sync(ctx context.Context, reg model.Registry, action string) error {
	if reg == nil {
		reg = model.Registry{}
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]any{"newList": reg, "action": action}).
		Post("/api/sync")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return apiError(resp)
	}
	return nil
}

// Login checks a dashboard username and password.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var out struct {
		Success  bool   `json:"success"`
		Username string `json:"username"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"username": username, "password": password}).
		Post("/api/login")
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", apiError(resp)
	}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", err
	}
	return out.Username, nil
}

func (c *Client) get(ctx context.Context, path string, dest any) error {
	resp, err := c.http.R().SetContext(ctx).Get(path)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return apiError(resp)
	}
	return json.Unmarshal(resp.Body(), dest)
}

func apiError(resp *resty.Response) error {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(resp.Body(), &body)
	msg := body.Error
	if msg == "" {
		msg = body.Message
	}
	return &APIError{Status: resp.StatusCode(), Message: msg}
}
