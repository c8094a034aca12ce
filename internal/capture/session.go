package capture

import (
	"context"
	"math"
	"time"
)

// SessionFactory launches one isolated browser session per call. Sessions are
// never shared or reused.
type SessionFactory interface {
	NewSession(ctx context.Context, options SessionOptions) (Session, error)
}

type Proxy struct {
	Server   string
	Username string
	Password string
}

type SessionOptions struct {
	// Proxy is nil unless the request asked for the region proxy and one is
	// configured.
	Proxy *Proxy
}

type Viewport struct {
	Width             int
	Height            int
	DeviceScaleFactor float64
}

type ScreenshotOptions struct {
	Format   Format
	Quality  int
	FullPage bool
	// MaxHeight caps FullPage captures, in CSS pixels.
	MaxHeight int
}

// Session is a single request-scoped browser. Close must be called exactly
// once, after which no other method may be used.
type Session interface {
	SetViewport(ctx context.Context, viewport Viewport) error
	SetFilter(ctx context.Context, filter Filter) error
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	InjectStyle(ctx context.Context, css string) error
	Screenshot(ctx context.Context, options ScreenshotOptions) ([]byte, error)
	PDF(ctx context.Context) ([]byte, error)
	Close(ctx context.Context) error
}

// fullPageClip returns the height in CSS pixels to clip a full-page capture
// to, so that the artifact stays within maxHeight device pixels. ok is false
// when the document already fits.
func fullPageClip(documentHeight int, deviceScaleFactor float64, maxHeight int) (height int, ok bool) {
	if maxHeight <= 0 {
		return 0, false
	}
	if deviceScaleFactor <= 0 {
		deviceScaleFactor = 1
	}
	height = int(math.Floor(float64(maxHeight) / deviceScaleFactor))
	if documentHeight <= height {
		return 0, false
	}
	return height, true
}
