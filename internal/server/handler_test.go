package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/oszuidwest/zwfm-vadrecorder/internal/types"
)

func TestDecodeAndValidate(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantOK     bool
		wantStatus int
		wantField  string
	}{
		{"valid", `{"aggressiveness": 1, "codec": "ogg"}`, true, http.StatusOK, ""},
		{"malformed", `{"aggressiveness":`, false, http.StatusBadRequest, ""},
		{"unknown field", `{"volume": 11}`, false, http.StatusBadRequest, ""},
		{"out of range", `{"aggressiveness": 7}`, false, http.StatusBadRequest, "aggressiveness"},
		{"bad url", `{"webhook_url": "not a url"}`, false, http.StatusBadRequest, "webhook_url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPut, "/api/settings", strings.NewReader(tt.body))

			var data SettingsUpdateRequest
			ok := DecodeAndValidate(rec, req, &data)
			if ok != tt.wantOK {
				t.Fatalf("DecodeAndValidate() = %v, want %v (body %s)", ok, tt.wantOK, rec.Body)
			}
			if ok {
				return
			}
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var body types.APIError
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			if tt.wantField == "" {
				return
			}
			if body.Validation == nil || len(body.Validation.Errors) != 1 || body.Validation.Errors[0].Field != tt.wantField {
				t.Errorf("validation = %+v, want field %s", body.Validation, tt.wantField)
			}
		})
	}
}

func TestWriteErrorPlain(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, http.StatusConflict, errors.New("busy"))
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), `"error":"busy"`) {
		t.Errorf("body = %s", rec.Body)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	key := ""
	ok := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }
	h := APIKeyAuth(func() string { return key })(ok)

	do := func(header string) int {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
		if header != "" {
			req.Header.Set("X-API-Key", header)
		}
		h(rec, req)
		return rec.Code
	}

	if got := do(""); got != http.StatusNoContent {
		t.Errorf("open API returned %d", got)
	}
	key = "secret"
	if got := do(""); got != http.StatusUnauthorized {
		t.Errorf("missing key returned %d", got)
	}
	if got := do("wrong"); got != http.StatusUnauthorized {
		t.Errorf("wrong key returned %d", got)
	}
	if got := do("secret"); got != http.StatusNoContent {
		t.Errorf("right key returned %d", got)
	}
}

func TestRequireMethod(t *testing.T) {
	h := RequireMethod(http.MethodPost, func(w http.ResponseWriter, r *http.Request) {})
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/api/session/start", nil))
	if rec.Code != http.StatusMethodNotAllowed || rec.Header().Get("Allow") != http.MethodPost {
		t.Errorf("status = %d, allow = %q", rec.Code, rec.Header().Get("Allow"))
	}
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	for _, h := range []string{"X-Frame-Options", "X-Content-Type-Options", "Referrer-Policy"} {
		if rec.Header().Get(h) == "" {
			t.Errorf("%s not set", h)
		}
	}
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		origin string
		host   string
		want   bool
	}{
		{"", "recorder.example:8080", true},
		{"http://recorder.example", "recorder.example:8080", true},
		{"http://localhost:3000", "recorder.example:8080", true},
		{"http://192.168.1.20", "recorder.example:8080", true},
		{"https://evil.example", "recorder.example:8080", false},
		{"://bad", "recorder.example:8080", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		req.Host = tt.host
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		if got := checkOrigin(req); got != tt.want {
			t.Errorf("checkOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}
