package retry

import (
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/xerrors"
)

type On struct {
	_5xx           bool
	gatewayError   bool
	unavailable    bool
	connectFailure bool
	reset          bool
	retriable4xx   bool
	statusCodes    []int
}

// NewDefaultRetryOn only retries requests that never reached the server, so
// a capture that failed on the server side is never repeated.
func NewDefaultRetryOn() *On {
	return &On{
		connectFailure: true,
		statusCodes:    []int{},
	}
}

func NewRetryOnFromString(s string) (*On, error) {
	o := &On{}
	for _, s := range strings.Split(s, ",") {
		switch strings.TrimSpace(s) {
		case "":
		case "5xx":
			o._5xx = true
		case "gateway-error":
			o.gatewayError = true
		case "unavailable":
			o.unavailable = true
		case "connect-failure":
			o.connectFailure = true
		case "reset":
			o.reset = true
		case "retriable-4xx":
			o.retriable4xx = true
		default:
			statusCode, err := strconv.Atoi(strings.TrimSpace(s))
			if err != nil {
				return nil, xerrors.Errorf("invalid retryOn: %s", s)
			}
			o.statusCodes = append(o.statusCodes, statusCode)
		}
	}
	return o, nil
}

// copy from https://github.com/envoyproxy/envoy/blob/70d6ec1df6384118cf2fa2f02c0041edb76b2377/source/common/router/retry_state_impl.cc#L387
func (o *On) CheckResponse(response *http.Response) bool {
	if (o._5xx && response.StatusCode >= 500 && response.StatusCode < 600) ||
		(o.gatewayError && response.StatusCode >= 502 && response.StatusCode < 505) ||
		(o.unavailable && response.StatusCode == http.StatusServiceUnavailable) ||
		(o.retriable4xx && response.StatusCode == 409) {
		return true
	}

	for _, i := range o.statusCodes {
		if i == response.StatusCode {
			return true
		}
	}

	return false
}

// CheckError reports whether err is worth another attempt. connect-failure
// only covers requests that never left this process, while reset also covers
// connections dropped after the request may have been delivered.
func (o *On) CheckError(err error) bool {
	var opErr *net.OpError
	if (o.connectFailure || o._5xx) && errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}

	if !o.reset && !o._5xx {
		return false
	}
	type temporary interface{ Temporary() bool }
	var terr temporary
	return (errors.As(err, &terr) && terr.Temporary()) || errors.Is(err, io.EOF)
}
