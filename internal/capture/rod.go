package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

type RodConfig struct {
	// ControlURL is the DevTools WebSocket URL of an external Chrome. Empty
	// launches a local Chrome per session.
	ControlURL string
	Headless   bool
	// IdleWindow is how long the network must stay quiet for the page to be
	// considered loaded.
	IdleWindow time.Duration
}

func DefaultRodConfig() RodConfig {
	return RodConfig{
		Headless:   true,
		IdleWindow: 500 * time.Millisecond,
	}
}

type rodFactory struct {
	config RodConfig
}

func NewRodSessionFactory(r RodConfig) SessionFactory {
	return &rodFactory{
		config: r,
	}
}

func (f *rodFactory) NewSession(ctx context.Context, options SessionOptions) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := &rodSession{config: f.config, proxy: options.Proxy}

	controlURL := f.config.ControlURL
	if controlURL == "" {
		l := launcher.New().Headless(f.config.Headless)
		u, err := l.Context(ctx).Launch()
		if err != nil {
			l.Kill()
			l.Cleanup()
			return nil, fmt.Errorf("failed to launch chrome: %w", err)
		}
		controlURL = u
		s.launcher = l
	} else if !strings.HasPrefix(controlURL, "ws://") && !strings.HasPrefix(controlURL, "wss://") {
		u, err := launcher.ResolveURL(controlURL)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve devtools url %s: %w", controlURL, err)
		}
		controlURL = u
	}

	// the session owns its websocket so Close can release it even when the
	// browser outlives the session
	ws := &cdp.WebSocket{}
	if err := ws.Connect(ctx, controlURL, nil); err != nil {
		s.kill()
		return nil, fmt.Errorf("failed to connect to chrome at %s: %w", controlURL, err)
	}
	s.ws = ws

	root := rod.New().Client(cdp.New().Start(ws))
	if err := root.Connect(); err != nil {
		_ = s.Close(context.Background())
		return nil, fmt.Errorf("failed to connect to chrome at %s: %w", controlURL, err)
	}
	s.root = root

	browserContext := proto.TargetCreateBrowserContext{}
	if options.Proxy != nil {
		browserContext.ProxyServer = options.Proxy.Server
	}
	res, err := browserContext.Call(root)
	if err != nil {
		_ = s.Close(context.Background())
		return nil, fmt.Errorf("failed to create incognito context: %w", err)
	}
	incognito := *root
	incognito.BrowserContextID = res.BrowserContextID
	s.browser = &incognito

	return s, nil
}

type rodSession struct {
	config   RodConfig
	proxy    *Proxy
	launcher *launcher.Launcher
	ws       *cdp.WebSocket
	root     *rod.Browser
	browser  *rod.Browser
	page     *rod.Page
	viewport Viewport

	mu            sync.Mutex
	filter        Filter
	stopIntercept context.CancelFunc
}

func (s *rodSession) SetViewport(ctx context.Context, viewport Viewport) error {
	page, err := s.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return fmt.Errorf("failed to create new page: %w", err)
	}
	s.page = page

	if err := page.Context(ctx).SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             viewport.Width,
		Height:            viewport.Height,
		DeviceScaleFactor: viewport.DeviceScaleFactor,
	}); err != nil {
		return fmt.Errorf("failed to set viewport: %w", err)
	}
	s.viewport = viewport

	// proxy credentials are answered through the same interception hook as
	// the request filter
	if s.proxy != nil && s.proxy.Username != "" {
		if err := s.intercept(); err != nil {
			return err
		}
	}

	return nil
}

func (s *rodSession) SetFilter(ctx context.Context, filter Filter) error {
	s.mu.Lock()
	s.filter = filter
	s.mu.Unlock()
	return s.intercept()
}

func (s *rodSession) currentFilter() Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

// intercept pauses every request of the page and lets the current filter
// decide on it. It is installed at most once per page.
func (s *rodSession) intercept() error {
	if s.stopIntercept != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.stopIntercept = cancel
	page := s.page.Context(ctx)
	mainFrame := s.page.FrameID

	wait := page.EachEvent(func(e *proto.FetchRequestPaused) {
		go func() {
			if s.currentFilter().Evaluate(rodResource(e, mainFrame)) == Abort {
				_ = proto.FetchFailRequest{
					RequestID:   e.RequestID,
					ErrorReason: proto.NetworkErrorReasonBlockedByClient,
				}.Call(page)
				return
			}
			_ = proto.FetchContinueRequest{RequestID: e.RequestID}.Call(page)
		}()
	}, func(e *proto.FetchAuthRequired) {
		go func() {
			_ = proto.FetchContinueWithAuth{
				RequestID:             e.RequestID,
				AuthChallengeResponse: proxyChallengeResponse(s.proxy, e.AuthChallenge),
			}.Call(page)
		}()
	})

	if err := (proto.FetchEnable{
		Patterns:           []*proto.FetchRequestPattern{{URLPattern: "*"}},
		HandleAuthRequests: s.proxy != nil && s.proxy.Username != "",
	}).Call(page); err != nil {
		cancel()
		s.stopIntercept = nil
		return fmt.Errorf("failed to enable request interception: %w", err)
	}
	go wait()

	return nil
}

// rodResource only treats a document request of the page's own frame as
// the navigation, so documents loaded into iframes are still filtered.
func rodResource(e *proto.FetchRequestPaused, mainFrame proto.PageFrameID) Resource {
	r := Resource{
		Type:       strings.ToLower(string(e.ResourceType)),
		Navigation: e.ResourceType == proto.NetworkResourceTypeDocument && e.FrameID == mainFrame,
	}
	if e.Request != nil {
		r.URL = e.Request.URL
	}
	return r
}

func proxyChallengeResponse(proxy *Proxy, challenge *proto.FetchAuthChallenge) *proto.FetchAuthChallengeResponse {
	if proxy == nil || proxy.Username == "" || challenge == nil || challenge.Source != proto.FetchAuthChallengeSourceProxy {
		return &proto.FetchAuthChallengeResponse{
			Response: proto.FetchAuthChallengeResponseResponseDefault,
		}
	}
	return &proto.FetchAuthChallengeResponse{
		Response: proto.FetchAuthChallengeResponseResponseProvideCredentials,
		Username: proxy.Username,
		Password: proxy.Password,
	}
}

func (s *rodSession) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	navigationCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		navigationCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	page := s.page.Context(navigationCtx)

	wait := page.WaitRequestIdle(s.config.IdleWindow, nil, nil, nil)
	err := page.Navigate(url)
	if err == nil {
		wait()
		err = navigationCtx.Err()
	}

	if err != nil {
		if errors.Is(navigationCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("%w: %w", ErrNavigationTimeout, err)
		}
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (s *rodSession) InjectStyle(ctx context.Context, css string) error {
	if err := s.page.Context(ctx).AddStyleTag("", css); err != nil {
		return fmt.Errorf("failed to add style tag: %w", err)
	}
	return nil
}

func (s *rodSession) Screenshot(ctx context.Context, o ScreenshotOptions) ([]byte, error) {
	page := s.page.Context(ctx)

	request := &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	}
	if o.Format == FormatJPEG {
		quality := o.Quality
		request.Format = proto.PageCaptureScreenshotFormatJpeg
		request.Quality = &quality
	}

	fullPage := o.FullPage
	if o.FullPage && o.MaxHeight > 0 {
		res, err := page.Eval(documentHeightScript)
		if err != nil {
			return nil, fmt.Errorf("failed to measure document height: %w", err)
		}
		if clipHeight, ok := fullPageClip(res.Value.Int(), s.viewport.DeviceScaleFactor, o.MaxHeight); ok {
			fullPage = false
			request.CaptureBeyondViewport = true
			request.Clip = &proto.PageViewport{
				X:      0,
				Y:      0,
				Width:  float64(s.viewport.Width),
				Height: float64(clipHeight),
				Scale:  1,
			}
		}
	}

	b, err := page.Screenshot(fullPage, request)
	if err != nil {
		return nil, fmt.Errorf("failed to take screenshot: %w", err)
	}
	return b, nil
}

// A4 in inches.
const (
	pdfPaperWidth  = 8.27
	pdfPaperHeight = 11.69
)

func (s *rodSession) PDF(ctx context.Context) ([]byte, error) {
	width, height := pdfPaperWidth, pdfPaperHeight
	r, err := s.page.Context(ctx).PDF(&proto.PagePrintToPDF{
		PrintBackground: true,
		PaperWidth:      &width,
		PaperHeight:     &height,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to print PDF: %w", err)
	}

	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF stream: %w", err)
	}
	return b, nil
}

func (s *rodSession) Close(ctx context.Context) error {
	var errs []error
	if s.stopIntercept != nil {
		s.stopIntercept()
	}
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to dispose incognito context: %w", err))
		}
	}
	if s.root != nil && s.launcher != nil {
		if err := s.root.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close chrome: %w", err))
		}
	}
	if s.ws != nil {
		if err := s.ws.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, fmt.Errorf("failed to close devtools connection: %w", err))
		}
	}
	s.kill()
	return errors.Join(errs...)
}

func (s *rodSession) kill() {
	if s.launcher == nil {
		return
	}
	s.launcher.Kill()
	s.launcher.Cleanup()
}
