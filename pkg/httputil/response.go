// Package httputil provides shared HTTP response helpers.
package httputil

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
)

// Content types used by turq's own responses.
const (
	ContentTypeJSON = "application/json"
	ContentTypeText = "text/plain; charset=utf-8"
	ContentTypeHTML = "text/html; charset=utf-8"
)

// WriteJSON writes a JSON response with the given status code.
// It sets the Content-Type header to application/json.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", ContentTypeJSON)
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// WriteError writes a JSON error response with the given status code.
// The error response includes an error code and a human-readable message.
func WriteError(w http.ResponseWriter, status int, errCode, message string) {
	WriteJSON(w, status, map[string]string{
		"error":   errCode,
		"message": message,
	})
}

// WriteErrorWithDetails writes a JSON error response whose extra fields
// are merged into the top-level object next to error and message.
func WriteErrorWithDetails(w http.ResponseWriter, status int, errCode, message string, details map[string]any) {
	body := make(map[string]any, len(details)+2)
	for k, v := range details {
		body[k] = v
	}
	body["error"] = errCode
	body["message"] = message
	WriteJSON(w, status, body)
}

// WriteOK writes a 200 OK response with data.
func WriteOK(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, data)
}

// WriteText writes a plain-text response with an explicit Content-Length.
func WriteText(w http.ResponseWriter, status int, text string) {
	writeBody(w, status, ContentTypeText, text)
}

// WriteHTML writes an HTML response with an explicit Content-Length.
func WriteHTML(w http.ResponseWriter, status int, html string) {
	writeBody(w, status, ContentTypeHTML, html)
}

func writeBody(w http.ResponseWriter, status int, contentType, body string) {
	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
