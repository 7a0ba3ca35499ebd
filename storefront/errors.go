package storefront

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// TransportError is a request that never produced a response: network
// failure, timeout or cancellation. It is not retried; the next read after
// the entry goes stale tries again.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("storefront: %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// APIError is a non-2xx response. Message is the body's "error" field, or
// the raw body text when it has none.
type APIError struct {
	Status  int
	Message string
	Body    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("storefront: %d %s", e.Status, http.StatusText(e.Status))
	}
	return e.Message
}

// NotFound reports a 404.
func (e *APIError) NotFound() bool { return e.Status == http.StatusNotFound }

const defaultErrorMessage = "Could not add to cart."

// ParseAPIError returns the message to show for err: the server's "error"
// field when there is one, else the error text itself.
func ParseAPIError(err error) string {
	if err == nil {
		return defaultErrorMessage
	}
	var ae *APIError
	if errors.As(err, &ae) {
		if ae.Message != "" {
			return ae.Message
		}
		return ae.Error()
	}
	msg := err.Error()
	if m, ok := errorField([]byte(msg)); ok {
		return m
	}
	return msg
}

func newAPIError(status int, body []byte) *APIError {
	ae := &APIError{Status: status, Body: string(body)}
	if m, ok := errorField(body); ok {
		ae.Message = m
	} else {
		ae.Message = strings.TrimSpace(string(body))
	}
	return ae
}

func errorField(b []byte) (string, bool) {
	var v struct {
		Error *string `json:"error"`
	}
	if json.Unmarshal(b, &v) != nil || v.Error == nil {
		return "", false
	}
	return *v.Error, true
}
