package client

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	// ErrBadRequest indicates the server rejected the request parameters.
	ErrBadRequest = errors.New("bad request")
	// ErrNotFound indicates the requested resource is not known to the server.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable indicates the server could not produce a price.
	ErrUnavailable = errors.New("service unavailable")
)

// statusError converts a non-2xx response into an error carrying the
// response body, mapping well-known status codes to sentinel errors.
func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	msg := strings.TrimSpace(string(body))

	switch resp.StatusCode {
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ErrBadRequest, msg)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, msg)
	case http.StatusServiceUnavailable:
		return fmt.Errorf("%w: %s", ErrUnavailable, msg)
	}

	return fmt.Errorf("oracle server returned %d: %s", resp.StatusCode, msg)
}
