package capture

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatPDF  Format = "pdf"
)

func (f Format) MimeType() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatPDF:
		return "application/pdf"
	default:
		return "image/png"
	}
}

func (f Format) Extension() string {
	return string(f)
}

// UnmarshalJSON accepts both the short names and the long
// raster-png/raster-jpeg/document-pdf spellings.
func (f *Format) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*f = ParseFormat(s)
	return nil
}

// ParseFormat normalizes a format name. Unknown names are returned as is so
// that Validate can report them.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "png", "raster-png":
		return FormatPNG
	case "jpeg", "jpg", "raster-jpeg":
		return FormatJPEG
	case "pdf", "document-pdf":
		return FormatPDF
	default:
		return Format(s)
	}
}

const (
	MinWidth       = 100
	MaxWidth       = 3840
	MinHeight      = 100
	MaxHeight      = 2160
	MinZoomPercent = 10
	MaxZoomPercent = 200
	MinQuality     = 0
	MaxQuality     = 100
	MaxDelayMs     = 10000

	MaxExtraStyleBytes = 64 << 10
)

// Request is an immutable description of one capture.
type Request struct {
	URL                 string `json:"url"`
	FullPage            bool   `json:"fullPage"`
	UseRegionProxy      bool   `json:"useRegionProxy"`
	BlockAdsAndTrackers bool   `json:"blockAdsAndTrackers"`
	Width               int    `json:"width"`
	Height              int    `json:"height"`
	ZoomPercent         int    `json:"zoomPercent"`
	Format              Format `json:"format"`
	Quality             int    `json:"quality"`
	DelayMs             int    `json:"delayMs"`
	ExtraStyle          string `json:"extraStyle,omitempty"`
}

func DefaultRequest() Request {
	return Request{
		Width:       1280,
		Height:      720,
		ZoomPercent: 100,
		Format:      FormatPNG,
		Quality:     80,
	}
}

// DecodeRequest reads a JSON payload on top of DefaultRequest, so omitted
// fields keep their defaults.
func DecodeRequest(b []byte) (Request, error) {
	r := DefaultRequest()
	if err := json.Unmarshal(b, &r); err != nil {
		return Request{}, err
	}
	return r, nil
}

func (r Request) DeviceScaleFactor() float64 {
	return float64(r.ZoomPercent) / 100
}

// Validate checks every field and reports all violations at once. It does
// not touch anything outside the request.
func (r Request) Validate() error {
	var problems []string
	add := func(field string, format string, args ...any) {
		problems = append(problems, field+": "+fmt.Sprintf(format, args...))
	}

	if err := validateURL(r.URL); err != nil {
		add("url", "%s", err)
	}
	if r.Width < MinWidth || r.Width > MaxWidth {
		add("width", "must be between %d and %d, got %d", MinWidth, MaxWidth, r.Width)
	}
	if r.Height < MinHeight || r.Height > MaxHeight {
		add("height", "must be between %d and %d, got %d", MinHeight, MaxHeight, r.Height)
	}
	if r.ZoomPercent < MinZoomPercent || r.ZoomPercent > MaxZoomPercent {
		add("zoomPercent", "must be between %d and %d, got %d", MinZoomPercent, MaxZoomPercent, r.ZoomPercent)
	}
	switch r.Format {
	case FormatPNG, FormatJPEG, FormatPDF:
	default:
		add("format", "must be one of png, jpeg or pdf, got %q", string(r.Format))
	}
	if r.Quality < MinQuality || r.Quality > MaxQuality {
		add("quality", "must be between %d and %d, got %d", MinQuality, MaxQuality, r.Quality)
	}
	if r.DelayMs < 0 || r.DelayMs > MaxDelayMs {
		add("delayMs", "must be between 0 and %d, got %d", MaxDelayMs, r.DelayMs)
	}
	if len(r.ExtraStyle) > MaxExtraStyleBytes {
		add("extraStyle", "must not exceed %d bytes", MaxExtraStyleBytes)
	}

	if len(problems) == 0 {
		return nil
	}
	return &Failure{
		Kind:    KindValidation,
		Message: strings.Join(problems, "; "),
	}
}

func validateURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("is not a valid URL")
	}
	if !u.IsAbs() {
		return fmt.Errorf("must be an absolute URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("must have a host")
	}
	return nil
}
