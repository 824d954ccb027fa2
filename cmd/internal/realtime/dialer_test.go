package realtime

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"daycheck/cmd/internal/restapi"
	v1 "daycheck/shared/contracts/push/v1"
)

func TestHTTPDialer(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != v1.StreamPath {
			http.NotFound(w, r)
			return
		}
		switch r.Header.Get("Authorization") {
		case "Bearer good":
			w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
			_, _ = io.WriteString(w, "event: connect\ndata: hello\n\n")
		case "Bearer html":
			w.Header().Set("Content-Type", "text/html")
			_, _ = io.WriteString(w, "<html></html>")
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer srv.Close()

	api, err := restapi.New(srv.URL, restapi.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("restapi.New: %v", err)
	}
	d := NewHTTPDialer(api)

	if _, err := d.Dial(context.Background()); !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("no bearer: err=%v want=%v", err, ErrNoCredentials)
	}

	api.SetBearer("bad")
	_, err = d.Dial(context.Background())
	var se *StatusError
	if !errors.As(err, &se) || se.Status != http.StatusUnauthorized || !errors.Is(err, ErrUnexpectedStatus) {
		t.Fatalf("unauthorized: err=%v", err)
	}

	api.SetBearer("html")
	if _, err := d.Dial(context.Background()); !errors.Is(err, ErrUnexpectedStatus) {
		t.Fatalf("wrong content type: err=%v", err)
	}

	api.SetBearer("good")
	body, err := d.Dial(context.Background())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer body.Close()

	var got []Event
	_ = readEvents(body, func(ev Event) { got = append(got, ev) })
	if len(got) != 1 || got[0].Name != v1.EventConnect || got[0].Data != "hello" {
		t.Fatalf("events=%+v", got)
	}
}
