package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"
	"webshot/internal/capture"
	"webshot/internal/composer"
	"webshot/internal/env"
	"webshot/internal/history"
	"webshot/internal/runnable"
	"webshot/internal/storage"

	"github.com/joho/godotenv"
)

type Output struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	CapturedAt  time.Time `json:"capturedAt"`
	ArtifactRef string    `json:"artifactRef"`
	SharedURL   string    `json:"sharedURL,omitempty"`
}

func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".webshot", "history.db")
	}
	return filepath.Join(home, ".webshot", "history.db")
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("failed to load .env: %v", err)
	}

	request := capture.DefaultRequest()
	var format string
	var server string
	var output string
	var shareBucket string
	var historyPath string
	var showHistory bool
	flag.StringVar(&server, "server", env.OrDefault("WEBSHOT_SERVER", "http://localhost:8080"), "Capture service base URL")
	flag.StringVar(&output, "output", env.OrDefault("OUTPUT", "."), "Directory the artifact is downloaded to")
	flag.StringVar(&shareBucket, "share", env.OrDefault("SHARE_BUCKET", ""), "S3 bucket the artifact is also shared to (S3_ENDPOINT_URL overrides the endpoint)")
	flag.StringVar(&historyPath, "history-db", env.OrDefault("HISTORY_DB", defaultHistoryPath()), "SQLite file keeping the capture history")
	flag.BoolVar(&showHistory, "history", false, "Print the capture history and exit")
	flag.BoolVar(&request.FullPage, "full-page", false, "Capture the whole scrollable page")
	flag.BoolVar(&request.UseRegionProxy, "region-proxy", false, "Route the capture through the region proxy")
	flag.BoolVar(&request.BlockAdsAndTrackers, "block-ads", false, "Block ads, trackers and media")
	flag.IntVar(&request.Width, "width", request.Width, "Viewport width in CSS pixels")
	flag.IntVar(&request.Height, "height", request.Height, "Viewport height in CSS pixels")
	flag.IntVar(&request.ZoomPercent, "zoom", request.ZoomPercent, "Zoom in percent, applied as device scale factor")
	flag.StringVar(&format, "format", string(request.Format), "Artifact format (png, jpeg or pdf)")
	flag.IntVar(&request.Quality, "quality", request.Quality, "JPEG quality")
	flag.IntVar(&request.DelayMs, "delay", request.DelayMs, "Settle delay in milliseconds after the page is idle")
	flag.StringVar(&request.ExtraStyle, "style", "", "Extra CSS injected before capturing")

	flag.Parse()

	logger, err := runnable.NewLogger()
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := history.NewSQLiteStore(ctx, historyPath, history.DefaultPolicy())
	if err != nil {
		log.Fatalf("failed to open history: %v", err)
	}
	defer store.Close()

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")

	if showHistory {
		entries, err := store.List(ctx)
		if err != nil {
			log.Fatalf("failed to list history: %v", err)
		}
		if entries == nil {
			entries = []history.Entry{}
		}
		if err := encoder.Encode(entries); err != nil {
			log.Fatalf("failed to encode history: %v", err)
		}
		return
	}

	args := flag.Args()
	if len(args) == 0 {
		log.Fatalf("url not specified")
	}
	request.URL = args[0]
	request.Format = capture.ParseFormat(format)

	downloads, err := storage.NewFileStorage(ctx, storage.FileConfig{
		Directory: output,
	})
	if err != nil {
		log.Fatalf("failed to create storage backend: %v", err)
	}

	c := &composer.Composer{
		Capturer: composer.NewClient(server),
		Storage:  downloads,
		History:  store,
		Logger:   logger,
	}
	if shareBucket != "" {
		share, err := storage.NewS3Storage(ctx, storage.S3Config{
			Bucket: shareBucket,
			Prefix: "shared/",
		})
		if err != nil {
			log.Fatalf("failed to create share backend: %v", err)
		}
		c.Share = share
	}

	result, err := c.Compose(ctx, request)
	if err != nil {
		var failure *capture.Failure
		if errors.As(err, &failure) {
			log.Fatalf("capture failed (%s): %s", failure.Kind, failure.Message)
		}
		log.Fatalf("capture failed: %v", err)
	}

	if err := encoder.Encode(Output{
		ID:          result.Entry.ID,
		URL:         result.Entry.URL,
		CapturedAt:  result.Entry.CapturedAt,
		ArtifactRef: result.Entry.ArtifactRef,
		SharedURL:   result.SharedURL,
	}); err != nil {
		log.Fatalf("failed to encode result: %v", err)
	}
}
