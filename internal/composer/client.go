package composer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"webshot/internal/capture"
	"webshot/internal/retry"
	"webshot/internal/routes"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/xerrors"
)

// Client talks to a running capture service. It satisfies capture.Capturer so
// a Composer can use either a remote service or an in-process one.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ capture.Capturer = (*Client)(nil)

// NewClient returns a Client that retries only when the service could not be
// reached at all. A capture that failed inside the service is never repeated.
func NewClient(baseURL string) *Client {
	return NewClientWithHTTPClient(baseURL, &http.Client{
		Transport: otelhttp.NewTransport(&retry.Transport{
			Base:          http.DefaultTransport,
			RetryStrategy: retry.NewExponentialBackOff(100*time.Millisecond, 2*time.Second, 3, nil),
			RetryOn:       retry.NewDefaultRetryOn(),
		}),
	})
}

func NewClientWithHTTPClient(baseURL string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}
}

func (c *Client) Capture(ctx context.Context, request capture.Request) (*capture.Artifact, error) {
	b, err := json.Marshal(request)
	if err != nil {
		return nil, xerrors.Errorf("failed to encode capture request: %w", err)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/capture", bytes.NewReader(b))
	if err != nil {
		return nil, xerrors.Errorf("failed to build capture request: %w", err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(httpRequest)
	if err != nil {
		return nil, xerrors.Errorf("capture service unreachable: %w", err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, xerrors.Errorf("failed to read capture response: %w", err)
	}

	var captureResponse routes.CaptureResponse
	if err := json.Unmarshal(body, &captureResponse); err != nil {
		return nil, &capture.Failure{
			Kind:    capture.KindInternal,
			Message: fmt.Sprintf("unexpected response from capture service (status %d)", response.StatusCode),
			Err:     err,
		}
	}

	if !captureResponse.Success {
		kind := capture.Kind(captureResponse.Kind)
		if kind == "" {
			kind = capture.KindInternal
		}
		return nil, &capture.Failure{
			Kind:    kind,
			Message: captureResponse.Error,
		}
	}

	artifact, err := capture.ParseDataURI(captureResponse.Screenshot)
	if err != nil {
		return nil, &capture.Failure{
			Kind:    capture.KindInternal,
			Message: "capture service returned a malformed artifact",
			Err:     err,
		}
	}
	return artifact, nil
}
