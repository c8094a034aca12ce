package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
)

type PlaywrightConfig struct {
	Headless                  bool
	ChromeDevtoolsProtocolURL string
	PDFFormat                 string
}

func DefaultPlaywrightConfig() PlaywrightConfig {
	return PlaywrightConfig{
		Headless:  true,
		PDFFormat: "A4",
	}
}

type playwrightFactory struct {
	config PlaywrightConfig
}

func NewPlaywrightSessionFactory(p PlaywrightConfig) SessionFactory {
	return &playwrightFactory{
		config: p,
	}
}

// NewSession starts a playwright driver and a browser owned by the session.
// With ChromeDevtoolsProtocolURL set the browser is shared, but the session
// still gets its own browser context.
func (f *playwrightFactory) NewSession(ctx context.Context, options SessionOptions) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	s := &playwrightSession{
		pw:     pw,
		config: f.config,
	}
	if options.Proxy != nil {
		s.proxy = &playwright.Proxy{
			Server: options.Proxy.Server,
		}
		if options.Proxy.Username != "" {
			s.proxy.Username = playwright.String(options.Proxy.Username)
			s.proxy.Password = playwright.String(options.Proxy.Password)
		}
	}

	if f.config.ChromeDevtoolsProtocolURL == "" {
		s.browser, err = pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
			Headless: playwright.Bool(f.config.Headless),
			Proxy:    s.proxy,
		})
		if err != nil {
			_ = pw.Stop()
			return nil, fmt.Errorf("failed to launch browser: %w", err)
		}
		s.ownsBrowser = true
	} else {
		s.browser, err = pw.Chromium.ConnectOverCDP(f.config.ChromeDevtoolsProtocolURL)
		if err != nil {
			_ = pw.Stop()
			return nil, fmt.Errorf("failed to connect to browser via CDP at %s: %w", f.config.ChromeDevtoolsProtocolURL, err)
		}
	}

	return s, nil
}

type playwrightSession struct {
	pw          *playwright.Playwright
	browser     playwright.Browser
	ownsBrowser bool
	config      PlaywrightConfig
	proxy       *playwright.Proxy

	browserContext playwright.BrowserContext
	page           playwright.Page
	viewport       Viewport
}

// watch closes the page when ctx ends, which unblocks any pending
// playwright call.
func (s *playwrightSession) watch(ctx context.Context) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = s.page.Close()
		case <-done:
		}
	}()
	return func() { close(done) }
}

func (s *playwrightSession) SetViewport(ctx context.Context, viewport Viewport) error {
	browserContext, err := s.browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  viewport.Width,
			Height: viewport.Height,
		},
		DeviceScaleFactor: playwright.Float(viewport.DeviceScaleFactor),
		Proxy:             s.proxy,
	})
	if err != nil {
		return fmt.Errorf("failed to create browser context: %w", err)
	}
	s.browserContext = browserContext

	page, err := browserContext.NewPage()
	if err != nil {
		return fmt.Errorf("failed to create new page: %w", err)
	}
	s.page = page
	s.viewport = viewport

	return nil
}

func (s *playwrightSession) SetFilter(ctx context.Context, filter Filter) error {
	if err := s.page.Route("**/*", func(route playwright.Route) {
		if filter.Evaluate(playwrightResource(route.Request(), s.page.MainFrame())) == Abort {
			_ = route.Abort("blockedbyclient")
			return
		}
		_ = route.Continue()
	}); err != nil {
		return fmt.Errorf("failed to install request filter: %w", err)
	}
	return nil
}

// playwrightResource only treats the navigation of the main frame as the
// page navigation, so documents loaded into iframes are still filtered.
func playwrightResource(request playwright.Request, mainFrame playwright.Frame) Resource {
	return Resource{
		URL:        request.URL(),
		Type:       request.ResourceType(),
		Navigation: request.IsNavigationRequest() && request.Frame() == mainFrame,
	}
}

func (s *playwrightSession) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	defer s.watch(ctx)()

	if _, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
	}); err != nil {
		if errors.Is(err, playwright.ErrTimeout) {
			return fmt.Errorf("%w: %w", ErrNavigationTimeout, err)
		}
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (s *playwrightSession) InjectStyle(ctx context.Context, css string) error {
	defer s.watch(ctx)()

	if _, err := s.page.AddStyleTag(playwright.PageAddStyleTagOptions{
		Content: playwright.String(css),
	}); err != nil {
		return fmt.Errorf("failed to add style tag: %w", err)
	}
	return nil
}

func (s *playwrightSession) Screenshot(ctx context.Context, o ScreenshotOptions) ([]byte, error) {
	defer s.watch(ctx)()

	options := playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(o.FullPage),
	}

	switch o.Format {
	case FormatJPEG:
		options.Type = playwright.ScreenshotTypeJpeg
		options.Quality = playwright.Int(o.Quality)
	default:
		options.Type = playwright.ScreenshotTypePng
	}

	if o.FullPage && o.MaxHeight > 0 {
		height, err := s.documentHeight()
		if err != nil {
			return nil, err
		}
		if clipHeight, ok := fullPageClip(height, s.viewport.DeviceScaleFactor, o.MaxHeight); ok {
			options.FullPage = playwright.Bool(false)
			options.Clip = &playwright.Rect{
				X:      0,
				Y:      0,
				Width:  float64(s.viewport.Width),
				Height: float64(clipHeight),
			}
		}
	}

	b, err := s.page.Screenshot(options)
	if err != nil {
		return nil, fmt.Errorf("failed to take screenshot: %w", err)
	}
	return b, nil
}

const documentHeightScript = `() => Math.max(
	document.documentElement ? document.documentElement.scrollHeight : 0,
	document.body ? document.body.scrollHeight : 0
)`

func (s *playwrightSession) documentHeight() (int, error) {
	v, err := s.page.Evaluate(documentHeightScript)
	if err != nil {
		return 0, fmt.Errorf("failed to measure document height: %w", err)
	}
	switch h := v.(type) {
	case int:
		return h, nil
	case int64:
		return int(h), nil
	case float64:
		return int(h), nil
	default:
		return 0, fmt.Errorf("unexpected document height %v (%T)", v, v)
	}
}

func (s *playwrightSession) PDF(ctx context.Context) ([]byte, error) {
	defer s.watch(ctx)()

	b, err := s.page.PDF(playwright.PagePdfOptions{
		Format:          playwright.String(s.config.PDFFormat),
		PrintBackground: playwright.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to print PDF: %w", err)
	}
	return b, nil
}

func (s *playwrightSession) Close(ctx context.Context) error {
	var errs []error
	if s.browserContext != nil {
		if err := s.browserContext.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser context: %w", err))
		}
	}
	if s.ownsBrowser {
		if err := s.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}
	if err := s.pw.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
	}
	return errors.Join(errs...)
}
