// Package server provides HTTP and WebSocket helpers for the recorder control plane.
package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/oszuidwest/zwfm-vadrecorder/internal/types"
	"github.com/oszuidwest/zwfm-vadrecorder/internal/util"
)

// maxRequestBody limits JSON request bodies.
const maxRequestBody = 1 << 20

// WriteJSON writes data as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// WriteError writes an error response. Validation errors carry their field
// details.
func WriteError(w http.ResponseWriter, status int, err error) {
	body := types.APIError{Error: err.Error()}
	var verr *types.ValidationError
	if errors.As(err, &verr) {
		body.Error = "validation failed"
		body.Validation = verr
	}
	WriteJSON(w, status, body)
}

// WriteMessage writes an error response with a plain message.
func WriteMessage(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, types.APIError{Error: message})
}

// DecodeAndValidate decodes a JSON body into data and validates it.
// Returns true if successful, false if an error response was already sent.
func DecodeAndValidate[T any](w http.ResponseWriter, r *http.Request, data *T) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(data); err != nil {
		WriteError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return false
	}

	if err := util.ValidateStruct(data); err != nil {
		WriteError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

// RequireMethod rejects requests that do not use method.
func RequireMethod(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			WriteMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		next(w, r)
	}
}

// SecurityHeaders returns middleware that wraps handlers with security headers.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// APIKeyAuth returns middleware that requires the X-API-Key header to match
// the key returned by apiKey. An empty key leaves the API open.
func APIKeyAuth(apiKey func() string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			key := apiKey()
			if key == "" {
				next(w, r)
				return
			}
			provided := r.Header.Get("X-API-Key")
			if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
				WriteMessage(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			next(w, r)
		}
	}
}
