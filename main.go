package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log"
	"time"
	"webshot/internal/capture"
	"webshot/internal/env"
	"webshot/internal/runnable"

	"github.com/joho/godotenv"
	"github.com/playwright-community/playwright-go"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("failed to load .env: %v", err)
	}

	var debug bool
	var backend string
	var installBrowsers bool
	var chromeDevtoolsProtocolURL string
	var navigationTimeout time.Duration
	var deadline time.Duration
	var teardownTimeout time.Duration
	var maxFullPageHeight int
	var blocklistFile string
	var regionProxyServer string
	var regionProxyUsername string
	var regionProxyPassword string
	flag.BoolVar(&debug, "debug", env.OrDefault("DEBUG", false), "Enable text logs and pprof endpoints")
	flag.StringVar(&backend, "browser-backend", env.OrDefault("BROWSER_BACKEND", "playwright"), "Browser automation backend (playwright or rod)")
	flag.BoolVar(&installBrowsers, "install-browsers", env.OrDefault("INSTALL_BROWSERS", false), "Install playwright chromium before serving")
	flag.StringVar(&chromeDevtoolsProtocolURL, "chrome-devtools-protocol-url", env.OrDefault("CHROME_DEVTOOLS_PROTOCOL_URL", ""), "Connect to existing browser instead of launching one per request (e.g., http://localhost:9222 or a ws:// DevTools URL)")
	flag.DurationVar(&navigationTimeout, "navigation-timeout", env.OrDefault("NAVIGATION_TIMEOUT", 30*time.Second), "Maximum wait for the page to reach network idle")
	flag.DurationVar(&deadline, "capture-deadline", env.OrDefault("CAPTURE_DEADLINE", 90*time.Second), "Overall deadline of a capture request")
	flag.DurationVar(&teardownTimeout, "teardown-timeout", env.OrDefault("TEARDOWN_TIMEOUT", 10*time.Second), "Maximum time spent closing a browser session")
	flag.IntVar(&maxFullPageHeight, "max-full-page-height", env.OrDefault("MAX_FULL_PAGE_HEIGHT", 20000), "Height cap of full page captures in pixels")
	flag.StringVar(&blocklistFile, "blocklist-file", env.OrDefault("BLOCKLIST_FILE", ""), "YAML file with additional ad/tracker hosts and resource types")
	flag.StringVar(&regionProxyServer, "region-proxy-server", env.OrDefault("REGION_PROXY_SERVER", ""), "Proxy used by requests with useRegionProxy (e.g., http://proxy:3128)")
	flag.StringVar(&regionProxyUsername, "region-proxy-username", env.OrDefault("REGION_PROXY_USERNAME", ""), "Region proxy username")
	flag.StringVar(&regionProxyPassword, "region-proxy-password", env.OrDefault("REGION_PROXY_PASSWORD", ""), "Region proxy password")

	flag.Parse()

	runnable.Debug = debug

	blocklist, err := capture.LoadBlocklist(blocklistFile)
	if err != nil {
		log.Fatalf("failed to load blocklist: %v", err)
	}

	config := capture.DefaultConfig()
	config.NavigationTimeout = navigationTimeout
	config.Deadline = deadline
	config.TeardownTimeout = teardownTimeout
	config.MaxFullPageHeight = maxFullPageHeight
	config.AdFilter = blocklist.Filter()
	if regionProxyServer != "" {
		config.RegionProxy = &capture.Proxy{
			Server:   regionProxyServer,
			Username: regionProxyUsername,
			Password: regionProxyPassword,
		}
	}

	var factory capture.SessionFactory
	switch backend {
	case "playwright":
		if installBrowsers {
			if err := playwright.Install(&playwright.RunOptions{
				Browsers: []string{"chromium"},
			}); err != nil {
				log.Fatalf("failed to install playwright browsers: %v", err)
			}
		}
		p := capture.DefaultPlaywrightConfig()
		p.ChromeDevtoolsProtocolURL = chromeDevtoolsProtocolURL
		factory = capture.NewPlaywrightSessionFactory(p)
	case "rod":
		r := capture.DefaultRodConfig()
		r.ControlURL = chromeDevtoolsProtocolURL
		factory = capture.NewRodSessionFactory(r)
	default:
		log.Fatalf("unknown browser backend: %s", backend)
	}

	if err := runnable.NewServer(factory, config).Start(context.Background()); err != nil {
		log.Fatalf("failed to run capture server: %v", err)
	}
}
