package realtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"daycheck/cmd/internal/restapi"
	v1 "daycheck/shared/contracts/push/v1"
)

var (
	// ErrNoCredentials is returned when a connection is attempted without an access token.
	ErrNoCredentials = errors.New("no access token")

	// ErrUnexpectedStatus is returned when the stream endpoint does not answer 200 text/event-stream.
	ErrUnexpectedStatus = errors.New("unexpected stream response")
)

// StatusError carries the rejected stream response.
type StatusError struct {
	Status      int
	ContentType string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status=%d content_type=%q", ErrUnexpectedStatus, e.Status, e.ContentType)
}

func (e *StatusError) Unwrap() error { return ErrUnexpectedStatus }

// Dialer opens one event-stream connection. The returned body is read until
// it fails or is closed; closing it ends the connection.
type Dialer interface {
	Dial(ctx context.Context) (io.ReadCloser, error)
}

// HTTPDialer opens the notification stream through the shared REST client,
// so the bearer credential and cookie jar go with it.
type HTTPDialer struct {
	api  *restapi.Client
	path string
}

// NewHTTPDialer returns a Dialer for the notification stream endpoint.
func NewHTTPDialer(api *restapi.Client) *HTTPDialer {
	return &HTTPDialer{api: api, path: v1.StreamPath}
}

func (d *HTTPDialer) Dial(ctx context.Context) (io.ReadCloser, error) {
	if d.api.Bearer() == "" {
		return nil, ErrNoCredentials
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.api.Endpoint(d.path, nil), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	d.api.Authorize(req)

	resp, err := d.api.HTTPClient().Do(req)
	if err != nil {
		return nil, err
	}

	ct := resp.Header.Get("Content-Type")
	mt, _, _ := mime.ParseMediaType(ct)
	if resp.StatusCode != http.StatusOK || mt != "text/event-stream" {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, &StatusError{Status: resp.StatusCode, ContentType: ct}
	}
	return resp.Body, nil
}
