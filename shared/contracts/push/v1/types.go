// Package v1 defines the DayCheck push contract v1.
//
// Notifications travel over a server-sent event stream. This package is shared
// between the stream client and the dev backend to keep the wire format authoritative.
package v1

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// StreamPath is the SSE endpoint relative to the API base URL.
const StreamPath = "/api/sse/connect"

// Event names (wire-stable).
const (
	// EventConnect is the handshake event sent right after the stream opens.
	EventConnect = "connect"
	// EventNotification carries one JSON-encoded Notification in its data field.
	EventNotification = "notification"
)

// ID is a notification identifier. Backends emit it either as a JSON string or a number.
type ID string

func (id ID) String() string { return string(id) }

// UnmarshalJSON accepts a string, a number, or null.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.New("id: want string or number")
	}
	*id = ID(n.String())
	return nil
}

// Timestamp accepts RFC 3339 as well as zone-less local date-times ("2006-01-02T15:04:05").
// Zone-less values are interpreted in time.Local.
type Timestamp struct {
	time.Time
}

var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errors.New("timestamp: want string")
	}
	s = strings.TrimSpace(s)
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		t.Time = ts
		return nil
	}
	for _, layout := range localLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			t.Time = ts
			return nil
		}
	}
	return errors.New("timestamp: unsupported format " + s)
}

// Notification is a server-originated message addressed to the authenticated user.
type Notification struct {
	ID               ID        `json:"id"`
	Message          string    `json:"message"`
	NotificationTime Timestamp `json:"notificationTime"`
	Read             bool      `json:"read,omitempty"`
}

// ConnectPayload is the optional body of the connect event.
type ConnectPayload struct {
	Message string `json:"message,omitempty"`
	UserID  string `json:"userId,omitempty"`
}
