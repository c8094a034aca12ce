package capture

import (
	"context"
	"errors"
	"net/http"
)

type Kind string

const (
	KindValidation        Kind = "validation-error"
	KindSessionStart      Kind = "session-start-failure"
	KindNavigationTimeout Kind = "navigation-timeout"
	KindNavigation        Kind = "navigation-error"
	KindCapture           Kind = "capture-failure"
	KindInternal          Kind = "internal-failure"
)

// HTTPStatus is the status code a transport should pair the kind with.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindSessionStart:
		return http.StatusServiceUnavailable
	case KindNavigationTimeout:
		return http.StatusGatewayTimeout
	case KindNavigation:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Failure is the only error type returned by Service.Capture.
type Failure struct {
	Kind    Kind
	Message string
	Err     error
}

func (f *Failure) Error() string {
	return string(f.Kind) + ": " + f.Message
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func newFailure(kind Kind, message string, err error) *Failure {
	if err != nil {
		message = message + ": " + err.Error()
	}
	return &Failure{Kind: kind, Message: message, Err: err}
}

// ErrNavigationTimeout is wrapped by sessions when the page did not reach
// network idle in time.
var ErrNavigationTimeout = errors.New("navigation timed out")

// KindOf classifies err. Errors that are not a *Failure are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return KindInternal
}

// AsFailure converts any error into a *Failure.
func AsFailure(err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newFailure(KindInternal, "capture deadline exceeded", err)
	}
	return newFailure(KindInternal, "unexpected error", err)
}
