package types

// WSStatusResponse is sent to WebSocket clients on connect and every few seconds.
type WSStatusResponse struct {
	Type            string        `json:"type"` // "status"
	FFmpegAvailable bool          `json:"ffmpeg_available"`
	Session         SessionStatus `json:"session"`
	Version         VersionInfo   `json:"version"`
}

// WSLevelsResponse carries live meter levels.
type WSLevelsResponse struct {
	Type   string      `json:"type"` // "levels"
	Levels AudioLevels `json:"levels"`
}

// WSCommandResult answers a WebSocket command.
type WSCommandResult struct {
	Type    string `json:"type"` // "<command>_result"
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// VersionInfo contains version comparison data.
type VersionInfo struct {
	Current     string `json:"current"`
	Latest      string `json:"latest,omitempty"`
	UpdateAvail bool   `json:"update_available"`
	Commit      string `json:"commit,omitempty"`
	BuildTime   string `json:"build_time,omitempty"`
}

// APIError is the body of an error response from the HTTP API.
type APIError struct {
	Error      string           `json:"error"`
	Validation *ValidationError `json:"validation,omitempty"`
}
