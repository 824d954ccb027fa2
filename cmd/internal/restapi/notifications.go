package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	v1 "daycheck/shared/contracts/push/v1"
)

// UnreadNotifications lists the caller's unread notifications.
func (c *Client) UnreadNotifications(ctx context.Context) ([]v1.Notification, error) {
	return c.listNotifications(ctx, "/api/notifications/unread")
}

// AllNotifications lists every notification of the caller, read or not.
func (c *Client) AllNotifications(ctx context.Context) ([]v1.Notification, error) {
	return c.listNotifications(ctx, "/api/notifications")
}

func (c *Client) listNotifications(ctx context.Context, path string) ([]v1.Notification, error) {
	body, err := c.DoRaw(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	out, err := DecodeList[v1.Notification](body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedResponse, path, err)
	}
	return out, nil
}

// MarkRead marks one notification read and returns the updated record.
// Backends that answer with an empty body yield a record carrying only ID and Read.
func (c *Client) MarkRead(ctx context.Context, id v1.ID) (v1.Notification, error) {
	path := "/api/notifications/" + url.PathEscape(id.String()) + "/read"
	body, err := c.DoRaw(ctx, http.MethodPatch, path, nil, nil)
	if err != nil {
		return v1.Notification{}, err
	}
	n := v1.Notification{ID: id, Read: true}
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '{' {
		if err := DecodeItem(trimmed, &n); err != nil {
			return v1.Notification{}, fmt.Errorf("%w: %s: %v", ErrMalformedResponse, path, err)
		}
	}
	return n, nil
}

// MarkAllRead marks every notification of the caller read.
func (c *Client) MarkAllRead(ctx context.Context) error {
	return c.Do(ctx, http.MethodPatch, "/api/notifications/read-all", nil, nil, nil)
}

// DecodeList accepts a bare JSON array or an object wrapping it in "data".
func DecodeList[T any](body []byte) ([]T, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return []T{}, nil
	}
	if body[0] == '{' {
		var wrapped struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(body, &wrapped); err != nil {
			return nil, err
		}
		body = bytes.TrimSpace(wrapped.Data)
		if len(body) == 0 || bytes.Equal(body, []byte("null")) {
			return []T{}, nil
		}
	}
	var out []T
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

// DecodeItem accepts a bare object or an object wrapping it in "data".
func DecodeItem(body []byte, dst any) error {
	var wrapped struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil {
		if data := bytes.TrimSpace(wrapped.Data); len(data) > 0 && data[0] == '{' {
			body = data
		}
	}
	return json.Unmarshal(body, dst)
}
