package restapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrMalformedResponse is returned when a 2xx body does not have the expected shape.
var ErrMalformedResponse = errors.New("malformed response")

// Backend error codes with client-side meaning.
const (
	CodeDuplicateEmail   = "M001"
	CodeEmailNotVerified = "M002"
	CodeInvalidAuthCode  = "A004"
)

// Error is a non-2xx response from the backend.
type Error struct {
	Status    int
	Code      string
	Message   string
	RequestID string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%q", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d message=%q", e.Status, e.Message)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

// CodeOf returns the backend error code carried by err, or "".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// MessageOf returns the backend error message carried by err, or "".
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return ""
}

// IsUnauthorized reports whether err is a 401 response.
func IsUnauthorized(err error) bool { return StatusOf(err) == http.StatusUnauthorized }

// parseError accepts both the flat {"code","message"} body and the
// {"error":{"code","message"}} envelope. Unknown bodies yield an Error with only Status set.
func parseError(status int, body []byte, requestID string) *Error {
	e := &Error{Status: status, RequestID: requestID}

	var flat struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &flat); err != nil {
		return e
	}
	e.Code = flat.Code
	e.Message = flat.Message

	nestedRaw := bytes.TrimSpace(flat.Error)
	if len(nestedRaw) > 0 && nestedRaw[0] == '{' {
		var nested struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(nestedRaw, &nested); err == nil {
			if e.Code == "" {
				e.Code = nested.Code
			}
			if e.Message == "" {
				e.Message = nested.Message
			}
		}
	}
	return e
}
