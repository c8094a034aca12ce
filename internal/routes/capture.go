package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"webshot/internal/capture"
	"webshot/internal/myhttp"
)

type CaptureResponse struct {
	Success    bool   `json:"success"`
	Screenshot string `json:"screenshot,omitempty"`
	Error      string `json:"error,omitempty"`
	Kind       string `json:"kind,omitempty"`
}

const maxRequestBytes = 1 << 20

func Capture(capturer capture.Capturer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := myhttp.Logger(r.Context())

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
		if err != nil {
			var maxBytesError *http.MaxBytesError
			if errors.As(err, &maxBytesError) {
				writeFailure(w, &capture.Failure{Kind: capture.KindValidation, Message: fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)})
				return
			}
			logger.Error(fmt.Sprintf("failed to read request body: %s", err))
			writeFailure(w, &capture.Failure{Kind: capture.KindValidation, Message: "failed to read request body"})
			return
		}

		request, err := capture.DecodeRequest(body)
		if err != nil {
			writeFailure(w, &capture.Failure{Kind: capture.KindValidation, Message: fmt.Sprintf("invalid JSON payload: %s", err)})
			return
		}

		artifact, err := capturer.Capture(r.Context(), request)
		if err != nil {
			writeFailure(w, capture.AsFailure(err))
			return
		}

		writeJSON(w, http.StatusOK, CaptureResponse{
			Success:    true,
			Screenshot: artifact.DataURI(),
		})
	}
}

func writeFailure(w http.ResponseWriter, f *capture.Failure) {
	writeJSON(w, f.Kind.HTTPStatus(), CaptureResponse{
		Success: false,
		Error:   f.Message,
		Kind:    string(f.Kind),
	})
}

func writeJSON(w http.ResponseWriter, status int, response CaptureResponse) {
	b, err := json.Marshal(response)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}
