package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Sentinel errors for misuse of the session lifecycle. These are always
// raised synchronously to the immediate caller, never swallowed.
var (
	// ErrNotInitialized is returned when the configuration store is read
	// before Initialize has been called.
	ErrNotInitialized = errors.New("sdk: configuration not initialized")

	// ErrMissingRefreshToken is returned when a refresh is attempted and
	// neither the caller nor the stored session supplies a refresh token.
	ErrMissingRefreshToken = errors.New("sdk: no refresh token available")

	// ErrNoSession is returned when a refresh is attempted without any
	// stored session.
	ErrNoSession = errors.New("sdk: no active session")

	// ErrMissingAPIKey is returned when sign-out cannot resolve a key to
	// invalidate.
	ErrMissingAPIKey = errors.New("sdk: api key required")
)

// APIError is a structured failure the server returned over a successful
// HTTP round-trip.
type APIError struct {
	Status  int
	Code    string
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	code := e.Code
	if code == "" {
		code = "UNKNOWN"
	}
	msg := e.Message
	if msg == "" {
		msg = fmt.Sprintf("%s (%d)", code, e.Status)
	}
	return fmt.Sprintf("sdk: %s: %s", code, msg)
}

// decodeAPIError builds an APIError from an error-status response body.
// Bodies without a recognizable envelope fall back to the Unknown Error/400
// pair so callers always get a populated error.
func decodeAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}
	if len(body) > 0 {
		var envelope struct {
			Message string `json:"message"`
			Code    string `json:"code"`
			Status  int    `json:"status"`
		}
		if err := json.Unmarshal(body, &envelope); err == nil {
			apiErr.Code = envelope.Code
			apiErr.Message = envelope.Message
			if envelope.Status != 0 {
				apiErr.Status = envelope.Status
			}
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = "Unknown Error"
		apiErr.Status = 400
	}
	return apiErr
}

// OAuthError is the structured error shape OAuth endpoints return. It is
// deliberately not unified with APIError: OAuth callers need the original
// error/error_description/error_uri field names intact.
type OAuthError struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	URI         string `json:"error_uri,omitempty"`
}

// Error implements the error interface.
func (e *OAuthError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("sdk: oauth error %s: %s", e.Code, e.Description)
	}
	return fmt.Sprintf("sdk: oauth error %s", e.Code)
}

// decodeOAuthError preserves the provider error body unmodified. A body that
// is not a recognizable OAuth error still surfaces raw in the description.
func decodeOAuthError(status int, body []byte) *OAuthError {
	oauthErr := &OAuthError{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, oauthErr); err == nil && oauthErr.Code != "" {
			return oauthErr
		}
	}
	oauthErr.Code = "unknown_error"
	oauthErr.Description = strings.TrimSpace(string(body))
	if oauthErr.Description == "" {
		oauthErr.Description = fmt.Sprintf("http %d", status)
	}
	return oauthErr
}

// TransportErrorKind classifies failures that never produced an HTTP
// envelope.
type TransportErrorKind string

const (
	TransportErrorConnection TransportErrorKind = "connection"
	TransportErrorTimeout    TransportErrorKind = "timeout"
	TransportErrorCanceled   TransportErrorKind = "canceled"
	TransportErrorDecode     TransportErrorKind = "decode"
)

// TransportError wraps network and parse failures. It always propagates
// unnormalized so callers can distinguish "the API told me no" from "I
// couldn't reach the API".
type TransportError struct {
	Kind    TransportErrorKind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("sdk: transport %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("sdk: transport %s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *TransportError) Unwrap() error { return e.Cause }

func classifyTransportErrorKind(err error) TransportErrorKind {
	if errors.Is(err, context.Canceled) {
		return TransportErrorCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return TransportErrorTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return TransportErrorTimeout
	}
	return TransportErrorConnection
}

// normalizeAuthError shapes failures surfaced through the password, client,
// and refresh flows: API errors are guaranteed a non-empty message (never a
// raw empty object), transport errors and sentinels pass through untouched.
func normalizeAuthError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if strings.TrimSpace(apiErr.Message) == "" || apiErr.Message == "Unknown Error" {
			apiErr.Message = "Unknown error occurred"
		}
		return apiErr
	}
	return err
}
