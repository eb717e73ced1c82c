package handlers

import (
	"compress/gzip"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/thiskanishk/healthassist-cds/logging"
)

// Responses smaller than this are not worth compressing.
const compressionThreshold = 1024

// RespondWithJSON writes payload as JSON, gzip-compressed when the client
// accepts it and the body is large enough.
func RespondWithJSON(w http.ResponseWriter, r *http.Request, code int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logging.Error("Failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Add("Vary", "Accept-Encoding")

	if len(data) >= compressionThreshold && r != nil &&
		strings.Contains(strings.ToLower(r.Header.Get("Accept-Encoding")), "gzip") {
		w.Header().Set("Content-Encoding", "gzip")
		w.WriteHeader(code)
		gz := gzip.NewWriter(w)
		if _, err := gz.Write(data); err != nil {
			logging.Warn("Failed to write compressed response", "error", err)
		}
		if err := gz.Close(); err != nil {
			logging.Warn("Failed to flush compressed response", "error", err)
		}
		return
	}

	w.WriteHeader(code)
	if _, err := w.Write(data); err != nil {
		logging.Warn("Failed to write response", "error", err)
	}
}

// ErrorResponse is the body of every non-2xx answer. ErrorID correlates the
// response with the server log line.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
	ErrorID string `json:"error_id"`
	Kind    string `json:"kind,omitempty"`
}

// RespondWithError writes an ErrorResponse and logs it under a fresh error id.
func RespondWithError(w http.ResponseWriter, r *http.Request, code int, message string) {
	respondWithKind(w, r, code, message, "", nil)
}

func respondWithKind(w http.ResponseWriter, r *http.Request, code int, message, kind string, cause error) {
	id := uuid.NewString()

	attrs := []any{"error_id", id, "code", code, "message", message}
	if r != nil {
		attrs = append(attrs, "method", r.Method, "path", r.URL.Path)
	}
	if kind != "" {
		attrs = append(attrs, "kind", kind)
	}
	if cause != nil {
		attrs = append(attrs, "error", cause)
	}
	if code >= http.StatusInternalServerError {
		logging.Error("Request failed", attrs...)
	} else {
		logging.Debug("Request rejected", attrs...)
	}

	RespondWithJSON(w, r, code, ErrorResponse{
		Error:   http.StatusText(code),
		Message: message,
		Code:    code,
		ErrorID: id,
		Kind:    kind,
	})
}
