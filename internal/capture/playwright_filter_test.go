package capture

import (
	"testing"

	"github.com/playwright-community/playwright-go"
)

type frameMock struct {
	playwright.Frame
	name string
}

type requestMock struct {
	playwright.Request
	url          string
	resourceType string
	navigation   bool
	frame        playwright.Frame
}

func (r *requestMock) URL() string { return r.url }
func (r *requestMock) ResourceType() string { return r.resourceType }
func (r *requestMock) IsNavigationRequest() bool { return r.navigation }
func (r *requestMock) Frame() playwright.Frame { return r.frame }

func TestPlaywrightResource(t *testing.T) {
	mainFrame := &frameMock{name: "main"}
	adFrame := &frameMock{name: "ad"}
	filter := DefaultBlocklist().Filter()

	tests := []struct {
		request *requestMock
		want    Verdict
	}{
		{&requestMock{url: "https://doubleclick.net/", resourceType: "document", navigation: true, frame: mainFrame}, Allow},
		{&requestMock{url: "https://ad.doubleclick.net/frame.html", resourceType: "document", navigation: true, frame: adFrame}, Abort},
		{&requestMock{url: "https://example.com/clip.webm", resourceType: "media", frame: mainFrame}, Abort},
		{&requestMock{url: "https://example.com/style.css", resourceType: "stylesheet", frame: mainFrame}, Allow},
	}

	for _, tt := range tests {
		if got := filter.Evaluate(playwrightResource(tt.request, mainFrame)); got != tt.want {
			t.Errorf("%s (%s): expected %s, got %s", tt.request.url, tt.request.resourceType, tt.want, got)
		}
	}
}
