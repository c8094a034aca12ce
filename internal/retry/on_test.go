package retry_test

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"runtime"
	"testing"
	"webshot/internal/retry"

	"github.com/google/go-cmp/cmp"
)

func TestCheckResponse(t *testing.T) {
	type in struct {
		retryOn  string
		response *http.Response
	}

	tests := []struct {
		name string
		in   in
		want bool
	}{
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{"5xx", &http.Response{StatusCode: http.StatusInternalServerError}},
			true,
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{"gateway-error", &http.Response{StatusCode: http.StatusInternalServerError}},
			false,
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{"gateway-error", &http.Response{StatusCode: http.StatusGatewayTimeout}},
			true,
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{"unavailable", &http.Response{StatusCode: http.StatusServiceUnavailable}},
			true,
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{"unavailable", &http.Response{StatusCode: http.StatusBadGateway}},
			false,
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{"retriable-4xx", &http.Response{StatusCode: http.StatusConflict}},
			true,
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{"429, 418", &http.Response{StatusCode: http.StatusTooManyRequests}},
			true,
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{"connect-failure", &http.Response{StatusCode: http.StatusServiceUnavailable}},
			false,
		},
	}

	for _, tt := range tests {
		name := tt.name
		in := tt.in
		want := tt.want
		t.Run(name, func(t *testing.T) {
			retryOn, err := retry.NewRetryOnFromString(in.retryOn)
			if err != nil {
				t.Fatal(err)
			}
			got := retryOn.CheckResponse(in.response)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}
}

func TestCheckError(t *testing.T) {
	type in struct {
		retryOn *retry.On
		err     error
	}

	fromString := func(s string) *retry.On {
		retryOn, err := retry.NewRetryOnFromString(s)
		if err != nil {
			t.Fatal(err)
		}
		return retryOn
	}

	tests := []struct {
		name string
		in   in
		want bool
	}{
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{retry.NewDefaultRetryOn(), &temporaryError{"fake"}},
			false,
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{retry.NewDefaultRetryOn(), fmt.Errorf("wrapped: %w", io.EOF)},
			false,
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{retry.NewDefaultRetryOn(), &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}},
			true,
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{retry.NewDefaultRetryOn(), &net.OpError{Op: "read", Net: "tcp", Err: errors.New("connection reset")}},
			false,
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{retry.NewDefaultRetryOn(), errors.New("fake")},
			false,
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{fromString("gateway-error"), &temporaryError{"fake"}},
			false,
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{fromString("reset"), &temporaryError{"fake"}},
			true,
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{fromString("reset"), fmt.Errorf("wrapped: %w", io.EOF)},
			true,
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{fromString("reset"), &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}},
			false,
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{fromString("5xx"), io.EOF},
			true,
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{fromString("5xx"), &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}},
			true,
		},
	}

	for _, tt := range tests {
		name := tt.name
		in := tt.in
		want := tt.want
		t.Run(name, func(t *testing.T) {
			got := in.retryOn.CheckError(in.err)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}
}

func TestNewRetryOnFromStringInvalid(t *testing.T) {
	if _, err := retry.NewRetryOnFromString("5xx,teapot"); err == nil {
		t.Error("expected an error for an unknown token")
	}
}
