package composer_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"webshot/internal/capture"
	"webshot/internal/composer"
	"webshot/internal/history"
	"webshot/internal/routes"
	"webshot/internal/storage"

	"github.com/google/go-cmp/cmp"
)

type fakeCapturer struct {
	mu       sync.Mutex
	err      error
	artifact *capture.Artifact
	requests []capture.Request
}

func (f *fakeCapturer) Capture(ctx context.Context, request capture.Request) (*capture.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, request)
	if f.err != nil {
		return nil, f.err
	}
	return f.artifact, nil
}

type failingStorage struct {
	storage.Storage
}

func (failingStorage) Put(ctx context.Context, key string, data []byte) (string, error) {
	return "", errors.New("bucket unavailable")
}

func (failingStorage) Delete(ctx context.Context, url string) error {
	return nil
}

func newService(t *testing.T, capturer capture.Capturer) *composer.Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.Handle("POST /api/capture", routes.Capture(capturer))
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return composer.NewClient(server.URL)
}

func request(url string) capture.Request {
	r := capture.DefaultRequest()
	r.URL = url
	return r
}

var pngArtifact = &capture.Artifact{MimeType: "image/png", Bytes: []byte("\x89PNG fake")}

func TestClientCapture(t *testing.T) {
	type want struct {
		kind     capture.Kind
		artifact *capture.Artifact
	}

	tests := []struct {
		name     string
		capturer *fakeCapturer
		want     want
	}{
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			&fakeCapturer{artifact: pngArtifact},
			want{"", pngArtifact},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			&fakeCapturer{err: &capture.Failure{Kind: capture.KindNavigationTimeout, Message: "navigation did not finish"}},
			want{capture.KindNavigationTimeout, nil},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			&fakeCapturer{err: &capture.Failure{Kind: capture.KindSessionStart, Message: "browser unavailable"}},
			want{capture.KindSessionStart, nil},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			&fakeCapturer{err: errors.New("boom")},
			want{capture.KindInternal, nil},
		},
	}

	for _, tt := range tests {
		name := tt.name
		capturer := tt.capturer
		expected := tt.want
		t.Run(name, func(t *testing.T) {
			client := newService(t, capturer)

			artifact, err := client.Capture(context.Background(), request("https://example.com"))
			if diff := cmp.Diff(expected.kind, kindOrEmpty(err)); diff != "" {
				t.Errorf("kind (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(expected.artifact, artifact); diff != "" {
				t.Errorf("artifact (-want +got):\n%s", diff)
			}
		})
	}
}

func kindOrEmpty(err error) capture.Kind {
	if err == nil {
		return ""
	}
	return capture.KindOf(err)
}

func TestClientSendsEveryField(t *testing.T) {
	capturer := &fakeCapturer{artifact: pngArtifact}
	client := newService(t, capturer)

	r := request("https://example.com/docs")
	r.Format = capture.FormatJPEG
	r.Quality = 55
	r.ZoomPercent = 150
	r.FullPage = true
	r.BlockAdsAndTrackers = true
	r.ExtraStyle = "header { display: none; }"
	r.DelayMs = 250

	if _, err := client.Capture(context.Background(), r); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]capture.Request{r}, capturer.requests); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestClientRejectsNonJSONResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	_, err := composer.NewClient(server.URL).Capture(context.Background(), request("https://example.com"))
	if kind := capture.KindOf(err); kind != capture.KindInternal {
		t.Errorf("expected %s, got %s (%v)", capture.KindInternal, kind, err)
	}
}

func TestClientDoesNotRepeatDroppedCapture(t *testing.T) {
	var started atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.ReadAll(r.Body)
		started.Add(1)
		conn, _, err := http.NewResponseController(w).Hijack()
		if err != nil {
			t.Error(err)
			return
		}
		_ = conn.Close()
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := composer.NewClient(server.URL).Capture(ctx, request("https://example.com")); err == nil {
		t.Fatal("expected an error for a dropped connection")
	}
	if diff := cmp.Diff(int32(1), started.Load()); diff != "" {
		t.Errorf("captures started (-want +got):\n%s", diff)
	}
}

func newComposer(t *testing.T, capturer capture.Capturer, policy history.Policy) (*composer.Composer, string) {
	t.Helper()
	directory := t.TempDir()
	s, err := storage.NewFileStorage(context.Background(), storage.FileConfig{Directory: directory})
	if err != nil {
		t.Fatal(err)
	}

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var ticks int
	return &composer.Composer{
		Capturer: capturer,
		Storage:  s,
		History:  history.NewMemoryStore(policy),
		Now: func() time.Time {
			ticks++
			return base.Add(time.Duration(ticks) * time.Second)
		},
	}, directory
}

func TestComposeStoresArtifactAndHistory(t *testing.T) {
	c, directory := newComposer(t, &fakeCapturer{artifact: pngArtifact}, nil)

	result, err := c.Compose(context.Background(), request("https://example.com"))
	if err != nil {
		t.Fatal(err)
	}

	if !strings.HasPrefix(result.Entry.ArtifactRef, directory) || !strings.HasSuffix(result.Entry.ArtifactRef, ".png") {
		t.Errorf("unexpected artifact ref %s", result.Entry.ArtifactRef)
	}
	b, err := os.ReadFile(result.Entry.ArtifactRef)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(pngArtifact.Bytes, b); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}

	entries, err := c.History.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]history.Entry{result.Entry}, entries); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestComposeFailureTouchesNothing(t *testing.T) {
	failure := &capture.Failure{Kind: capture.KindNavigation, Message: "net::ERR_NAME_NOT_RESOLVED"}
	c, directory := newComposer(t, &fakeCapturer{err: failure}, nil)

	_, err := c.Compose(context.Background(), request("https://unknown.invalid"))
	if !errors.Is(err, failure) {
		t.Fatalf("expected the capture failure, got %v", err)
	}

	assertEmpty(t, c, directory)
}

func TestComposeShareFailureRollsBack(t *testing.T) {
	c, directory := newComposer(t, &fakeCapturer{artifact: pngArtifact}, nil)
	c.Share = failingStorage{}

	if _, err := c.Compose(context.Background(), request("https://example.com")); err == nil || !strings.Contains(err.Error(), "bucket unavailable") {
		t.Fatalf("expected a share error, got %v", err)
	}

	assertEmpty(t, c, directory)
}

func TestComposeSharesArtifact(t *testing.T) {
	c, _ := newComposer(t, &fakeCapturer{artifact: pngArtifact}, nil)
	shared, err := storage.NewFileStorage(context.Background(), storage.FileConfig{Directory: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	c.Share = shared

	result, err := c.Compose(context.Background(), request("https://example.com"))
	if err != nil {
		t.Fatal(err)
	}
	if result.SharedURL == "" || result.SharedURL == result.Entry.ArtifactRef {
		t.Errorf("expected a distinct shared url, got %q", result.SharedURL)
	}
	if _, err := os.Stat(result.SharedURL); err != nil {
		t.Error(err)
	}
}

func TestComposeEvictsOldArtifacts(t *testing.T) {
	policy, err := history.MostRecent(2)
	if err != nil {
		t.Fatal(err)
	}
	c, _ := newComposer(t, &fakeCapturer{artifact: pngArtifact}, policy)

	var refs []string
	for i := 0; i < 3; i++ {
		result, err := c.Compose(context.Background(), request(fmt.Sprintf("https://example.com/%d", i)))
		if err != nil {
			t.Fatal(err)
		}
		refs = append(refs, result.Entry.ArtifactRef)
	}

	if _, err := os.Stat(refs[0]); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected %s to be deleted, got %v", refs[0], err)
	}
	for _, ref := range refs[1:] {
		if _, err := os.Stat(ref); err != nil {
			t.Errorf("expected %s to survive: %v", ref, err)
		}
	}
}

func TestArtifactKey(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 42, time.UTC)
	a := composer.ArtifactKey("https://example.com", at, "png")
	b := composer.ArtifactKey("https://example.com", at.Add(time.Nanosecond), "png")

	if !strings.HasPrefix(a, "capture/") || !strings.HasSuffix(a, "20260301120000000000042.png") {
		t.Errorf("unexpected key %s", a)
	}
	if a == b {
		t.Errorf("expected distinct keys, both were %s", a)
	}
}

func assertEmpty(t *testing.T, c *composer.Composer, directory string) {
	t.Helper()
	entries, err := c.History.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no history, got %v", entries)
	}

	var files []string
	if err := filepath.WalkDir(directory, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if len(files) != 0 {
		t.Errorf("expected no stored files, got %v", files)
	}
}
