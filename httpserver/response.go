package httpserver

import (
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// Response wraps a successful result.
//
//	{"data": {...}, "extensions": {...}}
type Response[T any] struct {
	Data       T   `json:"data"`
	Extensions any `json:"extensions,omitempty"`
}

// ErrorBody is the shape of every error response.
//
//	{"error": "...", "code": "P2028", "meta": {...}, "extensions": {...}}
type ErrorBody struct {
	Error      string         `json:"error"`
	Code       string         `json:"code,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
	Extensions any            `json:"extensions,omitempty"`
}

// WriteJSON writes body as JSON with the given status code.
//
// If encoding fails the error is logged; the status line has already been
// sent at that point.
func WriteJSON[T any](w http.ResponseWriter, statusCode int, body T) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().
			Err(err).
			Int("status_code", statusCode).
			Msg("failed to encode JSON response")
	}
}

// WriteRawJSON writes an already encoded JSON body.
func WriteRawJSON(w http.ResponseWriter, statusCode int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if _, err := w.Write(body); err != nil {
		log.Debug().Err(err).Msg("failed to write response")
	}
}

// WriteError writes an error response.
func WriteError(w http.ResponseWriter, statusCode int, body ErrorBody) {
	WriteJSON(w, statusCode, body)
}

// WriteSuccess writes {"data": data}.
func WriteSuccess[T any](w http.ResponseWriter, statusCode int, data T) {
	WriteJSON(w, statusCode, Response[T]{Data: data})
}
