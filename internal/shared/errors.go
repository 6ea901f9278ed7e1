package shared

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("conflict")

	ErrPermissionDenied   = errors.New("microphone permission denied")
	ErrDeviceUnavailable  = errors.New("audio device unavailable")
	ErrEndpointResolution = errors.New("endpoint resolution failed")
	ErrTransport          = errors.New("transport error")
	ErrMalformedMessage   = errors.New("malformed message")
	ErrPlayback           = errors.New("playback failed")
	ErrDecode             = errors.New("decode failed")

	ErrNotOpen           = errors.New("connection not open")
	ErrFailedPermanently = errors.New("connection failed permanently")
	ErrRetriesExhausted  = errors.New("reconnect attempts exhausted")
)

type ErrorKind string

const (
	KindPermissionDenied   ErrorKind = "permission_denied"
	KindDeviceUnavailable  ErrorKind = "device_unavailable"
	KindEndpointResolution ErrorKind = "endpoint_resolution_failure"
	KindTransport          ErrorKind = "transport_error"
	KindMalformedMessage   ErrorKind = "malformed_message"
	KindPlayback           ErrorKind = "playback_failure"
	KindDecode             ErrorKind = "decode_failure"
	KindUnknown            ErrorKind = "unknown"
)

var kinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrPermissionDenied, KindPermissionDenied},
	{ErrDeviceUnavailable, KindDeviceUnavailable},
	{ErrEndpointResolution, KindEndpointResolution},
	{ErrRetriesExhausted, KindTransport},
	{ErrFailedPermanently, KindTransport},
	{ErrTransport, KindTransport},
	{ErrMalformedMessage, KindMalformedMessage},
	{ErrPlayback, KindPlayback},
	{ErrDecode, KindDecode},
}

// Kind classifies err into the taxonomy surfaced to the UI layer.
func Kind(err error) ErrorKind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}

// Retryable reports whether the connection layer may retry err on its own.
// Device errors need a new user action first.
func Retryable(err error) bool {
	switch Kind(err) {
	case KindEndpointResolution, KindTransport:
		return true
	}
	return false
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func NewAPIError(code, message string) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
	}
}

func (e *APIError) WithDetails(details any) *APIError {
	e.Details = details
	return e
}

func (e *APIError) ToHTTP(status int) *echo.HTTPError {
	return echo.NewHTTPError(status, e)
}

func BadRequest(code, message string) *echo.HTTPError {
	return NewAPIError(code, message).ToHTTP(http.StatusBadRequest)
}

func NotFound(code, message string) *echo.HTTPError {
	return NewAPIError(code, message).ToHTTP(http.StatusNotFound)
}

func Forbidden(code, message string) *echo.HTTPError {
	return NewAPIError(code, message).ToHTTP(http.StatusForbidden)
}

func Conflict(code, message string) *echo.HTTPError {
	return NewAPIError(code, message).ToHTTP(http.StatusConflict)
}

func ServiceUnavailable(code, message string) *echo.HTTPError {
	return NewAPIError(code, message).ToHTTP(http.StatusServiceUnavailable)
}

func InternalError(code, message string) *echo.HTTPError {
	return NewAPIError(code, message).ToHTTP(http.StatusInternalServerError)
}
