package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hay-kot/orderbell/internal/core/feed"
	"github.com/hay-kot/orderbell/internal/core/notify"
	"github.com/hay-kot/orderbell/internal/core/view"
)

// ErrNotFound is returned by Client calls that target an unknown id.
var ErrNotFound = errors.New("not found")

// Client talks to a running server. It satisfies the same command surface
// as the engine so render layers can drive either one.
type Client struct {
	base *url.URL
	http *http.Client
}

// NewClient returns a client for the server at baseURL.
func NewClient(baseURL string) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url must be http or https, got %q", u.Scheme)
	}
	return &Client{base: u, http: &http.Client{Timeout: 10 * time.Second}}, nil
}

func (c *Client) endpoint(path string) string {
	u := *c.base
	u.Path = u.Path + path
	return u.String()
}

func (c *Client) call(ctx context.Context, method, path string, out any) error {
	return c.send(ctx, method, path, nil, out)
}

func (c *Client) send(ctx context.Context, method, path string, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 300:
		var e ErrorResponse
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, e.Error)
		}
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// Notifications fetches the log and the unread count.
func (c *Client) Notifications(ctx context.Context) ([]notify.Notification, int, error) {
	var out struct {
		Notifications []notify.Notification `json:"notifications"`
		Unread        int                   `json:"unread"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/notifications", &out); err != nil {
		return nil, 0, err
	}
	return out.Notifications, out.Unread, nil
}

func (c *Client) MarkRead(ctx context.Context, id string) (bool, error) {
	var out struct {
		Changed bool `json:"changed"`
	}
	err := c.call(ctx, http.MethodPost, "/api/notifications/"+url.PathEscape(id)+"/read", &out)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return out.Changed, err
}

func (c *Client) MarkAllRead(ctx context.Context) (int, error) {
	var out struct {
		Changed int `json:"changed"`
	}
	err := c.call(ctx, http.MethodPost, "/api/notifications/read-all", &out)
	return out.Changed, err
}

func (c *Client) Clear(ctx context.Context) error {
	return c.call(ctx, http.MethodDelete, "/api/notifications", nil)
}

func (c *Client) DismissToast(ctx context.Context, id string) (bool, error) {
	err := c.call(ctx, http.MethodDelete, "/api/toasts/"+url.PathEscape(id), nil)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Ingest posts c to the server as if it had arrived on the feed. It
// reports whether a notification was produced.
func (c *Client) Ingest(ctx context.Context, change feed.Change) (notify.Notification, bool, error) {
	body, err := feed.EncodePayload(change)
	if err != nil {
		return notify.Notification{}, false, err
	}
	var out struct {
		Accepted     bool                `json:"accepted"`
		Notification notify.Notification `json:"notification"`
	}
	if err := c.send(ctx, http.MethodPost, "/api/changes", body, &out); err != nil {
		if errors.Is(err, ErrNotFound) {
			return notify.Notification{}, false, errors.New("server does not accept changes (ingest disabled)")
		}
		return notify.Notification{}, false, err
	}
	return out.Notification, out.Accepted, nil
}

// Stream dials /api/stream and delivers snapshots until ctx is cancelled or
// the connection drops. The channel is closed on return.
func (c *Client) Stream(ctx context.Context) (<-chan *view.Snapshot, error) {
	u := *c.base
	u.Scheme = map[string]string{"http": "ws", "https": "wss"}[u.Scheme]
	u.Path = u.Path + "/api/stream"

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial stream: %w", err)
	}

	out := make(chan *view.Snapshot, 1)
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	go func() {
		defer close(out)
		for {
			var f StreamFrame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			if f.Snapshot == nil {
				continue
			}
			select {
			case out <- f.Snapshot:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
