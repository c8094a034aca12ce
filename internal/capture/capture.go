package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Artifact is the encoded output of a capture tagged with its MIME type.
type Artifact struct {
	MimeType string
	Bytes    []byte
}

type Capturer interface {
	Capture(ctx context.Context, request Request) (*Artifact, error)
}

type Config struct {
	// NavigationTimeout bounds the wait for network idle.
	NavigationTimeout time.Duration
	// Deadline bounds the whole request, teardown excluded.
	Deadline          time.Duration
	TeardownTimeout   time.Duration
	MaxFullPageHeight int

	// AdFilter is installed when a request sets BlockAdsAndTrackers.
	AdFilter Filter
	// RegionProxy is used for requests that set UseRegionProxy. When nil the
	// option is accepted and has no effect.
	RegionProxy *Proxy
}

func DefaultConfig() Config {
	return Config{
		NavigationTimeout: 30 * time.Second,
		Deadline:          90 * time.Second,
		TeardownTimeout:   10 * time.Second,
		MaxFullPageHeight: 20000,
		AdFilter:          DefaultBlocklist().Filter(),
	}
}

// Service runs the capture pipeline. Every call launches its own session
// through Factory and tears it down before returning.
type Service struct {
	Factory  SessionFactory
	Config   Config
	Logger   *slog.Logger
	Duration metric.Int64Histogram
}

var _ Capturer = (*Service)(nil)

// Capture returns the artifact for request or a *Failure. It never returns
// any other error type.
func (s *Service) Capture(ctx context.Context, request Request) (artifact *Artifact, err error) {
	start := time.Now()
	ctx, span := s.tracer().Start(ctx, "capture", trace.WithAttributes(
		attribute.String("capture.url", request.URL),
		attribute.String("capture.format", string(request.Format)),
	))
	defer func() {
		result := "success"
		if err != nil {
			result = string(KindOf(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()

		elapsed := time.Since(start)
		if s.Duration != nil {
			s.Duration.Record(ctx, elapsed.Microseconds(), metric.WithAttributes(
				attribute.Key("format").String(string(request.Format)),
				attribute.Key("result").String(result),
			))
		}
		if err != nil {
			s.logger().Warn("capture failed", "url", request.URL, "format", request.Format, "kind", result, "error", err, "elapsed", elapsed)
		} else {
			s.logger().Info("capture succeeded", "url", request.URL, "format", request.Format, "bytes", len(artifact.Bytes), "elapsed", elapsed)
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			artifact = nil
			err = &Failure{Kind: KindInternal, Message: fmt.Sprintf("panic during capture: %v", r)}
		}
	}()

	if err := request.Validate(); err != nil {
		return nil, err
	}

	if s.Config.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Config.Deadline)
		defer cancel()
	}

	options := SessionOptions{}
	if request.UseRegionProxy {
		if s.Config.RegionProxy != nil {
			options.Proxy = s.Config.RegionProxy
		} else {
			s.logger().Debug("region proxy requested but not configured", "url", request.URL)
		}
	}

	var session Session
	if err := s.step(ctx, "session.start", func(ctx context.Context) error {
		var err error
		session, err = s.Factory.NewSession(ctx, options)
		return err
	}); err != nil {
		return nil, newFailure(KindSessionStart, "failed to start browser session", err)
	}
	defer s.teardown(ctx, session)

	return s.run(ctx, session, request)
}

func (s *Service) run(ctx context.Context, session Session, request Request) (*Artifact, error) {
	if err := s.step(ctx, "session.viewport", func(ctx context.Context) error {
		return session.SetViewport(ctx, Viewport{
			Width:             request.Width,
			Height:            request.Height,
			DeviceScaleFactor: request.DeviceScaleFactor(),
		})
	}); err != nil {
		return nil, stepFailure(ctx, KindInternal, "failed to configure viewport", err)
	}

	// The filter has to be in place before navigation starts, otherwise it
	// misses everything requested during the initial load.
	if request.BlockAdsAndTrackers {
		if err := s.step(ctx, "session.filter", func(ctx context.Context) error {
			return session.SetFilter(ctx, s.Config.AdFilter)
		}); err != nil {
			return nil, stepFailure(ctx, KindInternal, "failed to install request filter", err)
		}
	}

	if err := s.step(ctx, "session.navigate", func(ctx context.Context) error {
		return session.Navigate(ctx, request.URL, s.Config.NavigationTimeout)
	}); err != nil {
		if errors.Is(err, ErrNavigationTimeout) && ctx.Err() == nil {
			return nil, newFailure(KindNavigationTimeout, fmt.Sprintf("%s did not reach network idle within %s", request.URL, s.Config.NavigationTimeout), err)
		}
		return nil, stepFailure(ctx, KindNavigation, fmt.Sprintf("failed to load %s", request.URL), err)
	}

	if request.ExtraStyle != "" {
		if err := s.step(ctx, "session.style", func(ctx context.Context) error {
			return session.InjectStyle(ctx, request.ExtraStyle)
		}); err != nil {
			return nil, stepFailure(ctx, KindInternal, "failed to inject extra style", err)
		}
	}

	if request.DelayMs > 0 {
		if err := s.step(ctx, "session.settle", func(ctx context.Context) error {
			timer := time.NewTimer(time.Duration(request.DelayMs) * time.Millisecond)
			defer timer.Stop()
			select {
			case <-timer.C:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}); err != nil {
			return nil, stepFailure(ctx, KindInternal, "interrupted while waiting for the page to settle", err)
		}
	}

	var data []byte
	if err := s.step(ctx, "session.capture", func(ctx context.Context) error {
		var err error
		switch request.Format {
		case FormatPDF:
			data, err = session.PDF(ctx)
		default:
			options := ScreenshotOptions{
				Format:    request.Format,
				FullPage:  request.FullPage,
				MaxHeight: s.Config.MaxFullPageHeight,
			}
			if request.Format == FormatJPEG {
				options.Quality = request.Quality
			}
			data, err = session.Screenshot(ctx, options)
		}
		return err
	}); err != nil {
		return nil, stepFailure(ctx, KindCapture, "failed to capture artifact", err)
	}
	if len(data) == 0 {
		return nil, &Failure{Kind: KindCapture, Message: "browser returned an empty artifact"}
	}

	return &Artifact{
		MimeType: request.Format.MimeType(),
		Bytes:    data,
	}, nil
}

// teardown runs on a context detached from the request so that a cancelled
// or expired request still releases its browser.
func (s *Service) teardown(ctx context.Context, session Session) {
	timeout := s.Config.TeardownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := s.step(ctx, "session.close", session.Close); err != nil {
		s.logger().Error("failed to tear down browser session", "error", err)
	}
}

func (s *Service) step(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := s.tracer().Start(ctx, name)
	defer span.End()

	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// stepFailure reports an expired request deadline as internal, whatever the
// step that noticed it.
func stepFailure(ctx context.Context, kind Kind, message string, err error) *Failure {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return newFailure(KindInternal, message, fmt.Errorf("capture deadline exceeded: %w", ctxErr))
	}
	return newFailure(kind, message, err)
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Service) tracer() trace.Tracer {
	return otel.Tracer("webshot/internal/capture")
}
