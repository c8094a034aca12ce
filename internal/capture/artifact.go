package capture

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// DataURI encodes the artifact as a self-describing base64 data URI.
func (a *Artifact) DataURI() string {
	return "data:" + a.MimeType + ";base64," + base64.StdEncoding.EncodeToString(a.Bytes)
}

func ParseDataURI(uri string) (*Artifact, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil, fmt.Errorf("not a data URI")
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, fmt.Errorf("data URI has no payload")
	}
	mimeType, ok := strings.CutSuffix(header, ";base64")
	if !ok {
		return nil, fmt.Errorf("data URI is not base64 encoded")
	}

	b, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode data URI: %w", err)
	}
	return &Artifact{
		MimeType: mimeType,
		Bytes:    b,
	}, nil
}

// Extension maps the MIME type back to a file extension.
func (a *Artifact) Extension() string {
	switch a.MimeType {
	case "image/jpeg":
		return FormatJPEG.Extension()
	case "application/pdf":
		return FormatPDF.Extension()
	default:
		return FormatPNG.Extension()
	}
}
