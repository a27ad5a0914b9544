package server

import "github.com/oszuidwest/zwfm-vadrecorder/internal/config"

// Request types for the HTTP API with validation tags. Nil fields leave the
// current value unchanged.

// SettingsUpdateRequest is the request body for PUT /api/settings. Changes
// take effect at the next session start.
type SettingsUpdateRequest struct {
	Device           *string           `json:"device" validate:"omitempty,max=256"`
	VADBackend       *string           `json:"vad_backend" validate:"omitempty,oneof=webrtc energy"`
	Aggressiveness   *int              `json:"aggressiveness" validate:"omitempty,gte=0,lte=3"`
	SilenceTimeoutMs *int64            `json:"silence_timeout_ms" validate:"omitempty,gte=10,lte=60000"`
	Codec            *string           `json:"codec" validate:"omitempty,oneof=mp3 ogg"`
	WebhookURL       *string           `json:"webhook_url" validate:"omitempty,http_url,max=2048"`
	FieldName        *string           `json:"field_name" validate:"omitempty,min=1,max=64"`
	WebhookHeaders   map[string]string `json:"webhook_headers" validate:"omitempty,max=32"`
}

// Apply copies the set fields onto s.
func (req *SettingsUpdateRequest) Apply(s *config.Settings) {
	if req.Device != nil {
		s.Audio.Device = *req.Device
	}
	if req.VADBackend != nil {
		s.VAD.Backend = *req.VADBackend
	}
	if req.Aggressiveness != nil {
		s.VAD.Aggressiveness = *req.Aggressiveness
	}
	if req.SilenceTimeoutMs != nil {
		s.Utterance.SilenceTimeoutMs = *req.SilenceTimeoutMs
	}
	if req.Codec != nil {
		s.Export.Codec = *req.Codec
	}
	if req.WebhookURL != nil {
		s.Webhook.URL = *req.WebhookURL
	}
	if req.FieldName != nil {
		s.Webhook.FieldName = *req.FieldName
	}
	if req.WebhookHeaders != nil {
		s.Webhook.Headers = req.WebhookHeaders
	}
}

// SettingsView is the response body for GET /api/settings. Secrets are
// left out.
type SettingsView struct {
	config.Settings
	APIKeySet  bool `json:"api_key_set"`
	ArchiveSet bool `json:"archive_configured"`
}

// NewSettingsView returns the public view of s.
func NewSettingsView(s *config.Settings) SettingsView {
	v := SettingsView{
		Settings:   *s,
		APIKeySet:  s.Server.APIKey != "",
		ArchiveSet: s.HasArchive(),
	}
	v.Webhook.Headers = redactHeaders(s.Webhook.Headers)
	return v
}

// redactHeaders hides header values, which often carry credentials.
func redactHeaders(h map[string]string) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = "***"
	}
	return out
}
