// Package apijson decodes API response bodies into typed values. When a body
// does not match the expected shape, the decoder tries the server's structured
// error body before giving up, so callers see the server's explanation instead
// of a bare JSON error.
package apijson

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
)

// maxSnippet bounds how much of an undecodable body is kept on DecodeError.
const maxSnippet = 256

// ErrNilResponse is returned when DecodeResponse is handed a nil response.
var ErrNilResponse = errors.New("response cannot be nil")

// APIError is the structured error body returned by the server, e.g.
// {"error": "Record not found"} or the OAuth-style pair with
// error_description.
type APIError struct {
	// StatusCode is the HTTP status of the response that carried the error.
	// Zero when the error body arrived with a 2xx status.
	StatusCode int `json:"-"`

	// Message is the "error" field.
	Message string `json:"error"`

	// Description is the optional "error_description" field.
	Description string `json:"error_description,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	msg := e.Message
	if e.Description != "" {
		msg = e.Description
	}
	if msg == "" {
		msg = "unknown API error"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("api error (status %d): %s", e.StatusCode, msg)
	}
	return "api error: " + msg
}

// DecodeError reports a body that is neither the expected shape nor a
// structured API error.
type DecodeError struct {
	// Target is the Go type the body was decoded into.
	Target string
	// Snippet holds the start of the offending body.
	Snippet string
	Err     error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Target, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode unmarshals body into T. On failure it attempts to read body as an
// APIError; if that succeeds the APIError is returned, otherwise a
// *DecodeError wrapping the original json error.
func Decode[T any](body []byte) (T, error) {
	var v T
	err := json.Unmarshal(body, &v)
	if err == nil {
		return v, nil
	}

	var zero T
	if apiErr, ok := ParseAPIError(body); ok {
		return zero, apiErr
	}

	return zero, &DecodeError{
		Target:  typeName[T](),
		Snippet: snippet(body),
		Err:     err,
	}
}

// DecodeResponse reads and closes resp.Body and decodes it into T.
// Responses with status >= 400 never reach the target type: they are
// returned as *APIError, filled from the body when the body is a
// structured error.
func DecodeResponse[T any](resp *http.Response) (T, error) {
	var zero T
	if resp == nil {
		return zero, ErrNilResponse
	}
	if resp.Body == nil {
		resp.Body = http.NoBody
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return zero, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr, ok := ParseAPIError(body)
		if !ok {
			apiErr = &APIError{Message: http.StatusText(resp.StatusCode)}
		}
		apiErr.StatusCode = resp.StatusCode
		return zero, apiErr
	}

	return Decode[T](body)
}

// ParseAPIError reports whether body is a structured API error.
// A body only counts when its "error" field is a non-empty string.
func ParseAPIError(body []byte) (*APIError, bool) {
	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err != nil {
		return nil, false
	}
	if apiErr.Message == "" {
		return nil, false
	}
	return &apiErr, true
}

func typeName[T any]() string {
	t := reflect.TypeOf((*T)(nil)).Elem()
	return t.String()
}

func snippet(body []byte) string {
	if len(body) > maxSnippet {
		return string(body[:maxSnippet])
	}
	return string(body)
}
