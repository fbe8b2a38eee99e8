package vlmrun

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// ErrorKind classifies every error surfaced by the SDK.
type ErrorKind string

const (
	KindValidation     ErrorKind = "validation_error"
	KindAuthentication ErrorKind = "authentication_error"
	KindNotFound       ErrorKind = "not_found_error"
	KindRateLimit      ErrorKind = "rate_limit_error"
	KindServer         ErrorKind = "server_error"
	KindNetwork        ErrorKind = "network_error"
	KindTimeout        ErrorKind = "timeout_error"
	KindDecode         ErrorKind = "decode_error"
	KindDependency     ErrorKind = "dependency_error"
	KindConfiguration  ErrorKind = "configuration_error"
	KindAPI            ErrorKind = "api_error"
)

var defaultSuggestions = map[ErrorKind]string{
	KindValidation:     "Check your request parameters",
	KindAuthentication: "Check your API key and ensure it is valid",
	KindNotFound:       "Check the resource ID or path",
	KindRateLimit:      "Reduce request frequency or contact support to increase your rate limit",
	KindServer:         "Please try again later or contact support if the issue persists",
	KindNetwork:        "Check your internet connection and try again",
	KindTimeout:        "Try again later or increase the timeout",
	KindDecode:         "The API returned an unexpected payload; upgrade the SDK or contact support",
	KindDependency:     "Install the required dependency",
	KindConfiguration:  "Check your client configuration",
	KindAPI:            "Check the error details or contact support",
}

// Sentinels for errors.Is matching by kind.
var (
	ErrValidation     = &Error{Kind: KindValidation}
	ErrAuthentication = &Error{Kind: KindAuthentication}
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrRateLimit      = &Error{Kind: KindRateLimit}
	ErrServer         = &Error{Kind: KindServer}
	ErrNetwork        = &Error{Kind: KindNetwork}
	ErrTimeout        = &Error{Kind: KindTimeout}
	ErrDecode         = &Error{Kind: KindDecode}
	ErrDependency     = &Error{Kind: KindDependency}
	ErrConfiguration  = &Error{Kind: KindConfiguration}
	ErrAPI            = &Error{Kind: KindAPI}

	// ErrAuth is shorthand for ErrAuthentication.
	ErrAuth = ErrAuthentication

	ErrMissingAPIKey = &Error{
		Kind:       KindConfiguration,
		Message:    "API key is required",
		Suggestion: "Provide it or set VLMRUN_API_KEY",
	}
)

// Error is the single error type returned by the SDK.
type Error struct {
	Kind       ErrorKind
	Message    string
	Suggestion string
	StatusCode int
	RequestID  string
	Body       []byte
	Details    map[string]any
	Headers    http.Header
	RetryAfter *time.Duration

	Err error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("vlmrun ")
	b.WriteString(string(e.Kind))
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (%d)", e.StatusCode)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.RequestID != "" {
		fmt.Fprintf(&b, " (request_id=%s)", e.RequestID)
	}
	if e.Suggestion != "" {
		fmt.Fprintf(&b, " [suggestion: %s]", e.Suggestion)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports kind equality so that errors.Is(err, ErrNotFound) works for any not-found error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	if t == e {
		return true
	}
	return t.Message == "" && t.StatusCode == 0 && t.Kind == e.Kind
}

// Retryable reports whether the executor treats the error as transient.
func (e *Error) Retryable() bool {
	if e == nil {
		return false
	}
	switch e.Kind {
	case KindNetwork, KindTimeout, KindRateLimit, KindServer:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether err is a transient SDK error.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return false
}

// KindOf returns the kind of err, or the empty kind for foreign errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func newError(kind ErrorKind, message string, cause error) *Error {
	return &Error{
		Kind:       kind,
		Message:    message,
		Suggestion: defaultSuggestions[kind],
		Err:        cause,
	}
}

func newValidationError(format string, args ...any) *Error {
	return newError(KindValidation, fmt.Sprintf(format, args...), nil)
}

func newDecodeError(status int, body []byte, cause error) *Error {
	e := newError(KindDecode, fmt.Sprintf("decode response: %v", cause), cause)
	e.StatusCode = status
	e.Body = body
	return e
}

// NewDependencyError reports a capability invoked without its external dependency.
func NewDependencyError(dependency, suggestion string) *Error {
	e := newError(KindDependency, fmt.Sprintf("%s is required for this operation but was not found", dependency), nil)
	if suggestion != "" {
		e.Suggestion = suggestion
	}
	return e
}

func kindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return KindValidation
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return KindAuthentication
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusRequestTimeout:
		return KindTimeout
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status >= 500:
		return KindServer
	default:
		return KindAPI
	}
}

// apiErrorFromResponse maps an HTTP status code and optional JSON body to a typed error.
func apiErrorFromResponse(status int, body []byte, headers http.Header, requestIDHeader string) *Error {
	message, details := extractErrorDetail(status, body)
	kind := kindForStatus(status)

	e := newError(kind, message, nil)
	e.StatusCode = status
	e.Body = body
	e.Details = details
	e.Headers = headers
	if headers != nil && requestIDHeader != "" {
		e.RequestID = headers.Get(requestIDHeader)
	}
	if kind == KindRateLimit || status == http.StatusServiceUnavailable {
		e.RetryAfter = parseRetryAfter(headers)
	}
	return e
}

// extractErrorDetail pulls a human message out of the common error envelopes:
// {"detail": "..."}, {"detail": [{"msg": "..."}]}, {"message": "..."}, {"error": {"message": "..."}}, {"error": "..."}.
func extractErrorDetail(status int, body []byte) (string, map[string]any) {
	details := map[string]any{}
	raw := strings.TrimSpace(string(body))
	if raw == "" {
		return fmt.Sprintf("HTTP %d", status), details
	}
	if !gjson.Valid(raw) {
		return raw, details
	}

	parsed := gjson.Parse(raw)
	if parsed.IsObject() {
		_ = json.Unmarshal(body, &details)
	}
	for _, path := range []string{"detail", "message", "error.message", "error", "detail.0.msg"} {
		v := parsed.Get(path)
		if v.Type == gjson.String && v.String() != "" {
			return v.String(), details
		}
	}
	return raw, details
}

func parseRetryAfter(headers http.Header) *time.Duration {
	if headers == nil {
		return nil
	}
	val := headers.Get("Retry-After")
	if val == "" {
		return nil
	}
	if seconds, err := strconv.Atoi(val); err == nil {
		d := time.Duration(seconds) * time.Second
		return &d
	}
	if t, err := http.ParseTime(val); err == nil {
		d := time.Until(t)
		return &d
	}
	return nil
}
