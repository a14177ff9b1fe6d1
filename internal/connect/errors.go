package connect

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrNotFound matches any *APIError with status 404.
var ErrNotFound = errors.New("not found")

// APIError is a non-2xx response from the platform.
// The body shape is {"error_code": "...", "errors": ["..."]}.
type APIError struct {
	StatusCode int      `json:"-"`
	ErrorCode  string   `json:"error_code"`
	Errors     []string `json:"errors"`
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("connect api: status %d", e.StatusCode)
	if e.ErrorCode != "" {
		msg += " " + e.ErrorCode
	}
	if len(e.Errors) > 0 {
		msg += ": " + strings.Join(e.Errors, "; ")
	}
	return msg
}

// Is lets errors.Is(err, ErrNotFound) see through 404 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}
