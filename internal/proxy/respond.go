package proxy

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"github.com/classyid/whatsapp-api-frontend/internal/media"
	"github.com/classyid/whatsapp-api-frontend/internal/whatsapp"
)

type errorBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, status int, contentType string, body []byte) {
	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Status: "error", Message: message, Code: code})
}

// writeFailure maps an error from any layer to its HTTP response. Internal
// details are logged, never returned.
func writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr   *media.ValidationError
		remote *whatsapp.RemoteError
		tooBig *http.MaxBytesError
	)
	switch {
	case errors.As(err, &tooBig):
		writeError(w, http.StatusRequestEntityTooLarge, media.CodeFileTooLarge, "File too large")
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Code, verr.Reason)
	case errors.Is(err, whatsapp.ErrUnreachable):
		writeError(w, http.StatusServiceUnavailable, "remote_unreachable", "WhatsApp API is unreachable")
	case errors.As(err, &remote):
		writeRaw(w, remote.Status, remote.ContentType, remote.Body)
	case errors.Is(err, whatsapp.ErrBadResponse):
		writeError(w, http.StatusBadGateway, "bad_gateway", "WhatsApp API returned an invalid response")
	default:
		hlog.FromRequest(r).Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "", "Internal server error")
	}
}
